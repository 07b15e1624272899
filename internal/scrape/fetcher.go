package scrape

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/pkg/jina"
)

// Content is what the pipeline receives from a fetch: description text and
// the ordered image URLs. A zero Content means nothing usable was found.
type Content struct {
	Text      string
	ImageURLs []string
	Source    string
}

// Fetcher turns a listing URL into Content. It never returns an error;
// every failure collapses to an empty Content.
type Fetcher struct {
	scraper Scraper
	guard   *resilience.Guard
}

// NewFetcher wraps a Scraper. guard may be nil.
func NewFetcher(s Scraper, guard *resilience.Guard) *Fetcher {
	return &Fetcher{scraper: s, guard: guard}
}

// NewFetcherFromConfig assembles the local, browser and Jina scrapers that
// the configuration enables.
func NewFetcherFromConfig(cfg *config.Config, guard *resilience.Guard) *Fetcher {
	timeout := time.Duration(cfg.Scrape.TimeoutSecs) * time.Second
	scrapers := []Scraper{
		NewLocalScraper(timeout,
			WithUserAgent(cfg.Scrape.UserAgent),
			WithMaxBodyBytes(cfg.Scrape.MaxBodyBytes),
			WithRateLimit(cfg.Scrape.RatePerSec),
		),
	}
	if cfg.Scrape.Browser {
		scrapers = append(scrapers, NewBrowserScraper(2*timeout, cfg.Scrape.UserAgent, ""))
	}
	if cfg.Jina.Key != "" {
		scrapers = append(scrapers, NewJinaAdapter(jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))))
	}
	return NewFetcher(NewChain(scrapers...), guard)
}

// Fetch scrapes url. Errors are logged and yield an empty Content.
func (f *Fetcher) Fetch(ctx context.Context, url string) Content {
	result, err := resilience.Call(ctx, f.guard, "scrape", func(ctx context.Context) (*Result, error) {
		return f.scraper.Scrape(ctx, url)
	})
	if err != nil {
		zap.L().Warn("scrape: fetch failed", zap.String("url", url), zap.Error(err))
		return Content{}
	}
	if result == nil {
		return Content{}
	}
	images := result.ImageURLs
	if images == nil {
		images = []string{}
	}
	return Content{Text: result.Text, ImageURLs: images, Source: result.Source}
}
