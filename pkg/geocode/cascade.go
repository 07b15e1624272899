package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cascade tries providers in order and returns the first match.
type Cascade struct {
	providers []Provider
}

// NewCascade creates a Cascade. Nil providers are skipped.
func NewCascade(providers ...Provider) *Cascade {
	c := &Cascade{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Geocode returns the first matched result. An address no provider can
// resolve is an unmatched result, not an error. An error is returned only
// when every provider failed outright.
func (c *Cascade) Geocode(ctx context.Context, query string) (*Result, error) {
	var (
		lastErr error
		failed  int
	)
	for _, p := range c.providers {
		result, err := p.Geocode(ctx, query)
		if err != nil {
			zap.L().Debug("geocode: provider failed",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			lastErr = err
			failed++
			continue
		}
		if result != nil && result.Matched {
			return result, nil
		}
	}

	if failed > 0 && failed == len(c.providers) {
		return nil, eris.Wrap(lastErr, "geocode: all providers failed")
	}
	return &Result{Matched: false}, nil
}

// Cached memoizes geocoding results, including non-matches, keyed on the
// normalized address.
type Cached struct {
	next Client

	mu      sync.Mutex
	entries map[string]Result
}

// NewCached wraps next with an in-memory result cache.
func NewCached(next Client) *Cached {
	return &Cached{next: next, entries: make(map[string]Result)}
}

// Geocode implements Client. Errors are not cached.
func (c *Cached) Geocode(ctx context.Context, query string) (*Result, error) {
	key := cacheKey(query)

	c.mu.Lock()
	if r, ok := c.entries[key]; ok {
		c.mu.Unlock()
		zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("matched", r.Matched))
		return &r, nil
	}
	c.mu.Unlock()

	r, err := c.next.Geocode(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = *r
	c.mu.Unlock()
	return r, nil
}

// cacheKey returns SHA-256 hex of the normalized address.
func cacheKey(query string) string {
	h := sha256.Sum256([]byte(strings.ToLower(normalizeQuery(query))))
	return fmt.Sprintf("%x", h)
}
