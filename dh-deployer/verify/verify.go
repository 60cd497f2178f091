// Package verify publishes the source of deployed contracts to an
// Etherscan-compatible block explorer.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"github.com/donatehub/donatehub/dh-deployer/artifacts"
	"github.com/donatehub/donatehub/dh-deployer/deployments"
)

var (
	ErrVerificationFailed = errors.New("verification failed")
	ErrTimeout            = errors.New("verification still pending")
)

const (
	resultPending         = "Pending in queue"
	resultPass            = "Pass - Verified"
	resultAlreadyVerified = "Already Verified"
)

// apiResponse is the envelope of every explorer API reply.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r apiResponse) resultString() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return string(r.Result)
	}
	return s
}

type Config struct {
	APIURL string
	APIKey string
	// Interval between verification status checks.
	PollInterval time.Duration
	MaxPolls     int
	// RequestsPerSecond bounds the calls to the API. Free keys allow 5.
	RequestsPerSecond float64
	// Progress receives a spinner while waiting; nil disables it.
	Progress io.Writer
}

func DefaultConfig(apiURL, apiKey string) Config {
	return Config{
		APIURL:            apiURL,
		APIKey:            apiKey,
		PollInterval:      5 * time.Second,
		MaxPolls:          24,
		RequestsPerSecond: 5,
	}
}

// Client talks to the explorer's contract API.
type Client struct {
	cfg       Config
	http      *http.Client
	limiter   *rate.Limiter
	artifacts artifacts.Source
	l         log.Logger
}

func NewClient(l log.Logger, cfg Config, arts artifacts.Source) *Client {
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		artifacts: arts,
		l:         l.New("service", "verify"),
	}
}

// VerifyBestEffort verifies and only logs failures.
func (c *Client) VerifyBestEffort(ctx context.Context, name string, rec *deployments.Record) {
	c.l.Info("Verifying contract...", "contract", name, "address", rec.Address)
	if err := c.Verify(ctx, name, rec); err != nil {
		c.l.Warn("contract verification failed", "contract", name, "address", rec.Address, "err", err)
		return
	}
	c.l.Info("contract verified", "contract", name, "address", rec.Address)
}

// Verify submits the source of the recorded deployment and waits for the
// explorer's verdict. A contract that is already verified is a success.
func (c *Client) Verify(ctx context.Context, name string, rec *deployments.Record) error {
	if c.cfg.APIKey == "" {
		return errors.New("no explorer API key configured")
	}
	verified, err := c.IsVerified(ctx, rec)
	if err != nil {
		return err
	}
	if verified {
		c.l.Info("contract is already verified", "address", rec.Address)
		return nil
	}

	artifact, err := c.artifacts.Artifact(name)
	if err != nil {
		return err
	}
	buildInfo, err := c.artifacts.BuildInfo(name)
	if err != nil {
		return err
	}
	parsed, err := artifact.ParseABI()
	if err != nil {
		return err
	}
	ctorArgs, err := EncodeConstructorArgs(parsed, rec.Args)
	if err != nil {
		return err
	}

	form := url.Values{
		"module":                {"contract"},
		"action":                {"verifysourcecode"},
		"contractaddress":       {rec.Address.Hex()},
		"sourceCode":            {string(buildInfo.Input)},
		"codeformat":            {"solidity-standard-json-input"},
		"contractname":          {artifact.FullyQualifiedName()},
		"compilerversion":       {"v" + buildInfo.SolcLongVersion},
		"constructorArguements": {strings.TrimPrefix(hexutil.Encode(ctorArgs), "0x")},
	}
	resp, err := c.post(ctx, form)
	if err != nil {
		return err
	}
	if resp.Status != "1" {
		result := resp.resultString()
		if isAlreadyVerified(result) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrVerificationFailed, result)
	}
	return c.waitVerified(ctx, resp.resultString())
}

// IsVerified reports whether the explorer already has source for the address.
func (c *Client) IsVerified(ctx context.Context, rec *deployments.Record) (bool, error) {
	resp, err := c.get(ctx, url.Values{
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {rec.Address.Hex()},
	})
	if err != nil {
		return false, err
	}
	var sources []struct {
		SourceCode string `json:"SourceCode"`
	}
	if err := json.Unmarshal(resp.Result, &sources); err != nil {
		// unverified or unknown contracts come back as a plain message
		return false, nil
	}
	return len(sources) > 0 && sources[0].SourceCode != "", nil
}

func (c *Client) waitVerified(ctx context.Context, guid string) error {
	var bar *progressbar.ProgressBar
	if c.cfg.Progress != nil {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(c.cfg.Progress),
			progressbar.OptionSetDescription("waiting for verification"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for i := 0; i < c.cfg.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if bar != nil {
			_ = bar.Add(1)
		}
		resp, err := c.get(ctx, url.Values{
			"module": {"contract"},
			"action": {"checkverifystatus"},
			"guid":   {guid},
		})
		if err != nil {
			c.l.Debug("verification status check failed", "guid", guid, "err", err)
			continue
		}
		result := resp.resultString()
		switch {
		case result == resultPending:
			continue
		case result == resultPass, isAlreadyVerified(result):
			return nil
		default:
			return fmt.Errorf("%w: %s", ErrVerificationFailed, result)
		}
	}
	return fmt.Errorf("%w after %d checks: %s", ErrTimeout, c.cfg.MaxPolls, guid)
}

func isAlreadyVerified(result string) bool {
	return strings.Contains(strings.ToLower(result), "already verified")
}

func (c *Client) get(ctx context.Context, query url.Values) (apiResponse, error) {
	query.Set("apikey", c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"?"+query.Encode(), nil)
	if err != nil {
		return apiResponse{}, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, form url.Values) (apiResponse, error) {
	form.Set("apikey", c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, strings.NewReader(form.Encode()))
	if err != nil {
		return apiResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (apiResponse, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return apiResponse{}, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("explorer request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return apiResponse{}, fmt.Errorf("explorer returned %s: %s", res.Status, body)
	}
	var out apiResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return apiResponse{}, fmt.Errorf("invalid explorer response: %w", err)
	}
	return out, nil
}
