package gasreport

import (
	"bytes"
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"
)

func TestReportStats(t *testing.T) {
	r := NewReport()
	require.True(t, r.Empty())

	r.RecordCall("DonateHub", "fund", 90000)
	r.RecordCall("DonateHub", "fund", 50000)
	r.RecordCall("DonateHub", "fund", 70000)
	r.RecordDeployment("DonateHub", 1000000)

	s, ok := r.Method("DonateHub", "fund")
	require.True(t, ok)
	require.Equal(t, Stats{Min: 50000, Max: 90000, Total: 210000, Calls: 3}, s)
	require.EqualValues(t, 70000, s.Avg())

	_, ok = r.Method("DonateHub", "withdraw")
	require.False(t, ok)

	d, ok := r.Deployment("DonateHub")
	require.True(t, ok)
	require.EqualValues(t, 1, d.Calls)
	require.False(t, r.Empty())
}

func TestPricingCost(t *testing.T) {
	p := Pricing{GasPrice: big.NewInt(10 * params.GWei), TokenPrice: 200000, Currency: "INR"}
	// 100000 gas at 10 gwei is 0.001 ether
	cost, ok := p.Cost(100000)
	require.True(t, ok)
	require.InDelta(t, 200.0, cost, 1e-9)

	_, ok = Pricing{GasPrice: big.NewInt(1)}.Cost(100000)
	require.False(t, ok)
	_, ok = Pricing{TokenPrice: 1}.Cost(100000)
	require.False(t, ok)
}

func TestRender(t *testing.T) {
	r := NewReport()
	r.RecordCall("DonateHub", "withdraw", 40000)
	r.RecordCall("DonateHub", "cheaperWithdraw", 30000)
	r.RecordDeployment("MockV3Aggregator", 500000)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, Pricing{GasPrice: big.NewInt(8 * params.GWei), TokenPrice: 100000, Currency: "INR"}))
	out := buf.String()
	require.Contains(t, out, "Gas price: 8.00 gwei")
	require.Contains(t, out, "Avg cost (INR)")
	require.Contains(t, out, "(deployment)")
	require.NotContains(t, out, "\x1b[")
	// rows are sorted by contract then method
	require.Less(t, strings.Index(out, "cheaperWithdraw"), strings.Index(out, "withdraw "))
	require.Contains(t, out, "400.00")

	buf.Reset()
	require.NoError(t, r.Render(&buf, Pricing{}))
	require.Contains(t, buf.String(), "Gas price: -")
}

func TestWriteFile(t *testing.T) {
	r := NewReport()
	r.RecordCall("DonateHub", "fund", 1)
	path := filepath.Join(t.TempDir(), DefaultOutputFile)
	require.NoError(t, r.WriteFile(path, Pricing{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "fund")
}

func TestQuoteClient(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query())
		mu.Unlock()
		if r.Header.Get("X-CMC_PRO_API_KEY") != "cmc-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":{"error_code":1002,"error_message":"API key missing."}}`))
			return
		}
		// only INR is quoted, whatever was asked for
		_, _ = w.Write([]byte(`{"status":{"error_code":0},"data":{"ETH":{"quote":{"INR":{"price":152345.5}}}}}`))
	}))
	defer srv.Close()

	price, err := NewQuoteClient(srv.URL, "cmc-key").Price(context.Background(), TokenSymbol, DefaultCurrency)
	require.NoError(t, err)
	require.Equal(t, 152345.5, price)

	_, err = NewQuoteClient(srv.URL, "cmc-key").Price(context.Background(), TokenSymbol, "USD")
	require.ErrorIs(t, err, ErrNoQuote)
	require.ErrorContains(t, err, "for ETH in USD")

	_, err = NewQuoteClient(srv.URL, "cmc-key").Price(context.Background(), "BTC", DefaultCurrency)
	require.ErrorIs(t, err, ErrNoQuote)

	_, err = NewQuoteClient(srv.URL, "wrong").Price(context.Background(), TokenSymbol, DefaultCurrency)
	require.ErrorContains(t, err, "API key missing.")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, queries, 4)
	require.Equal(t, "ETH", queries[0].Get("symbol"))
	require.Equal(t, "INR", queries[0].Get("convert"))
	require.Equal(t, "USD", queries[1].Get("convert"))
	require.Equal(t, "BTC", queries[2].Get("symbol"))
}
