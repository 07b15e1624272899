// Package metals provides a client for the Metals-API spot price feed.
package metals

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://metals-api.com/api"

// Client fetches spot prices.
type Client interface {
	// SpotPrice returns the USD price per troy ounce for symbol (e.g. "XAG").
	SpotPrice(ctx context.Context, symbol string) (float64, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Metals-API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type latestResponse struct {
	Success bool               `json:"success"`
	Base    string             `json:"base"`
	Rates   map[string]float64 `json:"rates"`
	Error   *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
}

// SpotPrice implements Client. The feed quotes metals per USD, so the price
// is the inverse rate unless the USD-denominated rate is also present.
func (c *httpClient) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	if c.apiKey == "" {
		return 0, eris.New("metals: api key not configured")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	params := url.Values{
		"access_key": {c.apiKey},
		"base":       {"USD"},
		"symbols":    {symbol},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/latest?"+params.Encode(), nil)
	if err != nil {
		return 0, eris.Wrap(err, "metals: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "metals: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, eris.Wrap(err, "metals: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var latest latestResponse
	if err := json.Unmarshal(body, &latest); err != nil {
		return 0, eris.Wrap(err, "metals: unmarshal response")
	}
	if !latest.Success {
		if latest.Error != nil {
			return 0, eris.Errorf("metals: api error %d: %s", latest.Error.Code, latest.Error.Info)
		}
		return 0, eris.New("metals: request unsuccessful")
	}

	if usd, ok := latest.Rates["USD"+symbol]; ok && usd > 0 {
		return usd, nil
	}
	rate, ok := latest.Rates[symbol]
	if !ok || rate <= 0 {
		return 0, eris.Errorf("metals: no rate for %s", symbol)
	}
	return 1 / rate, nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "metals: unexpected status " + http.StatusText(e.StatusCode) + ": " + e.Body
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
