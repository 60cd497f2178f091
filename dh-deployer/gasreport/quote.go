package gasreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultQuoteURL = "https://pro-api.coinmarketcap.com/v1/cryptocurrency/quotes/latest"
	DefaultCurrency = "INR"
	TokenSymbol     = "ETH"
)

var ErrNoQuote = errors.New("no quote")

// QuoteClient fetches token prices from the CoinMarketCap quotes endpoint.
type QuoteClient struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewQuoteClient(apiURL, apiKey string) *QuoteClient {
	if apiURL == "" {
		apiURL = DefaultQuoteURL
	}
	return &QuoteClient{
		url:    apiURL,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

type quoteResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Quote map[string]struct {
			Price float64 `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// Price returns the latest price of symbol in currency.
func (c *QuoteClient) Price(ctx context.Context, symbol, currency string) (float64, error) {
	q := url.Values{"symbol": {symbol}, "convert": {currency}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote request failed: %w", err)
	}
	defer res.Body.Close()

	var out quoteResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return 0, fmt.Errorf("invalid quote response (%s): %w", res.Status, err)
	}
	if out.Status.ErrorCode != 0 || res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote request rejected (%s): %s", res.Status, out.Status.ErrorMessage)
	}
	token, ok := out.Data[symbol]
	if !ok {
		return 0, fmt.Errorf("%w for %s", ErrNoQuote, symbol)
	}
	price, ok := token.Quote[currency]
	if !ok {
		return 0, fmt.Errorf("%w for %s in %s", ErrNoQuote, symbol, currency)
	}
	return price.Price, nil
}
