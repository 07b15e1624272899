package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries scrapers in order and returns the first result with text.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a scraper chain. Nil scrapers are skipped.
func NewChain(scrapers ...Scraper) *Chain {
	c := &Chain{}
	for _, s := range scrapers {
		if s != nil {
			c.scrapers = append(c.scrapers, s)
		}
	}
	return c
}

// Scrape tries each scraper until one returns a non-empty result. An empty
// page from an earlier scraper is kept so its images survive if every later
// scraper fails.
func (c *Chain) Scrape(ctx context.Context, url string) (*Result, error) {
	var (
		lastErr error
		fallbk  *Result
	)
	for _, s := range c.scrapers {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scrape: chain cancelled")
		}

		result, err := s.Scrape(ctx, url)
		if err != nil {
			zap.L().Debug("scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if result.Empty() {
			zap.L().Debug("scraper returned empty page, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", url),
			)
			if fallbk == nil {
				fallbk = result
			}
			continue
		}
		return result, nil
	}

	if fallbk != nil {
		return fallbk, nil
	}
	if lastErr != nil {
		return nil, eris.Wrapf(lastErr, "scrape: all scrapers failed for %s", url)
	}
	return nil, eris.Errorf("scrape: no scrapers configured for %s", url)
}

func (c *Chain) Name() string { return "chain" }
