package scrape

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/arbitrage-cli/internal/resilience"
)

const (
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultMaxBodyBytes = 2 << 20
)

// LocalOption configures a LocalScraper.
type LocalOption func(*LocalScraper)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) LocalOption {
	return func(s *LocalScraper) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) LocalOption {
	return func(s *LocalScraper) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithRateLimit throttles outbound requests to perSec requests per second.
func WithRateLimit(perSec float64) LocalOption {
	return func(s *LocalScraper) {
		if perSec > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithLocalHTTPClient swaps the underlying HTTP client.
func WithLocalHTTPClient(hc *http.Client) LocalOption {
	return func(s *LocalScraper) { s.http = hc }
}

// LocalScraper fetches pages with a plain HTTP GET and parses them with
// goquery.
type LocalScraper struct {
	http      *http.Client
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
}

// NewLocalScraper creates a LocalScraper with the given request timeout.
func NewLocalScraper(timeout time.Duration, opts ...LocalOption) *LocalScraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &LocalScraper{
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
		maxBody:   defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalScraper) Name() string { return "local_http" }

func (s *LocalScraper) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	base, err := url.Parse(rawURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, eris.Errorf("scrape: invalid url %q", rawURL)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "scrape: rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: read body")
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		zap.L().Debug("scrape: blocked", zap.String("url", rawURL), zap.String("block", string(bt)))
		return nil, eris.Errorf("scrape: blocked by %s", bt)
	}
	if resp.StatusCode >= 400 {
		return nil, resilience.StatusError("scrape", resp.StatusCode, string(body))
	}

	// Redirects may have moved the page; relative image paths follow it.
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	page, err := ExtractPage(bytes.NewReader(decodeBody(body, resp.Header.Get("Content-Type"))), base)
	if err != nil {
		return nil, err
	}
	return &Result{
		URL:       rawURL,
		Title:     page.Title,
		Text:      page.Text,
		ImageURLs: page.ImageURLs,
		Source:    s.Name(),
	}, nil
}
