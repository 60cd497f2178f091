package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestEventRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	ev := NewEvent(With(registry), "donatehub", "txmgr", "publish", "tx publish")
	ev.Record()
	ev.Record()
	require.Equal(t, 2.0, testutil.ToFloat64(ev.Total))
	require.Greater(t, testutil.ToFloat64(ev.LastTime), 0.0)
}

func TestEventVecRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	ev := NewEventVec(With(registry), "donatehub", "txmgr", "confirm", "tx confirm", []string{"status"})
	ev.Record("success")
	ev.Record("failed")
	ev.Record("success")
	require.Equal(t, 2.0, testutil.ToFloat64(ev.Total.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(ev.Total.WithLabelValues("failed")))
}

func TestCLIConfigCheck(t *testing.T) {
	require.NoError(t, CLIConfig{}.Check())
	require.NoError(t, CLIConfig{Enabled: true, ListenAddr: "127.0.0.1", ListenPort: 7300}.Check())
	require.Error(t, CLIConfig{Enabled: true, ListenPort: 70000}.Check())
}

func TestServerServesRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	ev := NewEvent(With(registry), "donatehub", "deployer", "deploy", "deploy")
	ev.Record()

	srv, err := StartServer(registry, "127.0.0.1", 0)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, srv.Stop(ctx))
	}()

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "donatehub_deployer_deploy_total 1")
}
