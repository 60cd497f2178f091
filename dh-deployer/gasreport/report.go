// Package gasreport collects the gas used by contract deployments and method
// calls and renders it as a priced table.
package gasreport

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/params"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const DefaultOutputFile = "gas-report.txt"

// Stats aggregates the gas used by one method or deployment.
type Stats struct {
	Min   uint64
	Max   uint64
	Total uint64
	Calls uint64
}

func (s *Stats) add(gas uint64) {
	if s.Calls == 0 || gas < s.Min {
		s.Min = gas
	}
	if gas > s.Max {
		s.Max = gas
	}
	s.Total += gas
	s.Calls++
}

func (s Stats) Avg() uint64 {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / s.Calls
}

type methodKey struct {
	contract string
	method   string
}

// Report is safe for concurrent use.
type Report struct {
	mu          sync.Mutex
	methods     map[methodKey]*Stats
	deployments map[string]*Stats
}

func NewReport() *Report {
	return &Report{
		methods:     make(map[methodKey]*Stats),
		deployments: make(map[string]*Stats),
	}
}

func (r *Report) RecordCall(contract, method string, gasUsed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := methodKey{contract, method}
	s, ok := r.methods[k]
	if !ok {
		s = new(Stats)
		r.methods[k] = s
	}
	s.add(gasUsed)
}

func (r *Report) RecordDeployment(contract string, gasUsed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.deployments[contract]
	if !ok {
		s = new(Stats)
		r.deployments[contract] = s
	}
	s.add(gasUsed)
}

// Method returns the stats of contract.method, if any call was recorded.
func (r *Report) Method(contract, method string) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.methods[methodKey{contract, method}]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

func (r *Report) Deployment(contract string) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.deployments[contract]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

func (r *Report) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.methods) == 0 && len(r.deployments) == 0
}

// Pricing converts gas into a fiat cost. A nil GasPrice or zero TokenPrice
// leaves the cost column empty.
type Pricing struct {
	GasPrice   *big.Int
	TokenPrice float64
	Currency   string
}

// Cost returns the fiat cost of gas at the configured prices.
func (p Pricing) Cost(gas uint64) (float64, bool) {
	if p.GasPrice == nil || p.GasPrice.Sign() == 0 || p.TokenPrice == 0 {
		return 0, false
	}
	wei := new(big.Int).Mul(p.GasPrice, new(big.Int).SetUint64(gas))
	eth := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	cost, _ := new(big.Float).Mul(eth, big.NewFloat(p.TokenPrice)).Float64()
	return cost, true
}

// Render writes the report as a colourless table.
func (r *Report) Render(w io.Writer, p Pricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	costHeader := "Avg cost"
	if p.Currency != "" {
		costHeader = fmt.Sprintf("%s (%s)", costHeader, p.Currency)
	}
	gasPrice := "-"
	if p.GasPrice != nil {
		gasPrice = new(big.Float).Quo(new(big.Float).SetInt(p.GasPrice), big.NewFloat(params.GWei)).Text('f', 2) + " gwei"
	}
	if _, err := fmt.Fprintf(w, "Gas price: %s\n", gasPrice); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Contract", "Method", "Min", "Max", "Avg", "# calls", costHeader})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	keys := maps.Keys(r.methods)
	slices.SortFunc(keys, func(a, b methodKey) bool {
		if a.contract != b.contract {
			return a.contract < b.contract
		}
		return a.method < b.method
	})
	for _, k := range keys {
		table.Append(row(k.contract, k.method, *r.methods[k], p))
	}
	names := maps.Keys(r.deployments)
	slices.Sort(names)
	for _, name := range names {
		table.Append(row(name, "(deployment)", *r.deployments[name], p))
	}
	table.Render()
	return nil
}

func row(contract, method string, s Stats, p Pricing) []string {
	cost := "-"
	if c, ok := p.Cost(s.Avg()); ok {
		cost = strconv.FormatFloat(c, 'f', 2, 64)
	}
	return []string{
		contract,
		method,
		strconv.FormatUint(s.Min, 10),
		strconv.FormatUint(s.Max, 10),
		strconv.FormatUint(s.Avg(), 10),
		strconv.FormatUint(s.Calls, 10),
		cost,
	}
}

// WriteFile renders the report into path, replacing any previous report.
func (r *Report) WriteFile(path string, p Pricing) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create gas report: %w", err)
	}
	if err := r.Render(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
