// Package testlog provides a go-ethereum log.Logger that writes through testing.T,
// so output is attached to the test that produced it.
package testlog

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Testing is the subset of testing.TB used by the logger.
type Testing interface {
	Logf(format string, args ...any)
	Helper()
	Cleanup(func())
}

type handler struct {
	t      Testing
	mu     sync.Mutex
	done   bool
	format log.Format
}

func (h *handler) Log(r *log.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	// testing.T panics when logged to after the test returned
	if h.done {
		return nil
	}
	h.t.Helper()
	h.t.Logf("%s", h.format.Format(r))
	return nil
}

// Logger returns a logger that writes records at or above level to t.
func Logger(t Testing, level log.Lvl) log.Logger {
	h := &handler{t: t, format: log.TerminalFormat(false)}
	t.Cleanup(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.done = true
	})
	l := log.New()
	l.SetHandler(log.LvlFilterHandler(level, h))
	return l
}
