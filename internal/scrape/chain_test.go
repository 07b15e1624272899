package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name   string
	result *Result
	err    error
	calls  int
}

func (m *mockScraper) Name() string { return m.name }
func (m *mockScraper) Scrape(_ context.Context, _ string) (*Result, error) {
	m.calls++
	return m.result, m.err
}

func TestChain_FirstSuccess(t *testing.T) {
	s1 := &mockScraper{name: "primary", result: &Result{Text: "content", Source: "primary"}}
	s2 := &mockScraper{name: "fallback"}

	res, err := NewChain(s1, s2).Scrape(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Source)
	assert.Equal(t, 0, s2.calls)
}

func TestChain_FallbackOnError(t *testing.T) {
	s1 := &mockScraper{name: "primary", err: errors.New("boom")}
	s2 := &mockScraper{name: "fallback", result: &Result{Text: "content", Source: "fallback"}}

	res, err := NewChain(s1, nil, s2).Scrape(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Source)
}

func TestChain_FallbackOnEmpty(t *testing.T) {
	s1 := &mockScraper{name: "primary", result: &Result{Source: "primary", ImageURLs: []string{"https://x/1.jpg"}}}
	s2 := &mockScraper{name: "fallback", result: &Result{Text: "rendered", Source: "fallback"}}

	res, err := NewChain(s1, s2).Scrape(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Source)
}

func TestChain_KeepsEmptyWhenOthersFail(t *testing.T) {
	s1 := &mockScraper{name: "primary", result: &Result{Source: "primary"}}
	s2 := &mockScraper{name: "fallback", err: errors.New("down")}

	res, err := NewChain(s1, s2).Scrape(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Source)
	assert.True(t, res.Empty())
}

func TestChain_AllFail(t *testing.T) {
	s1 := &mockScraper{name: "a", err: errors.New("a failed")}
	s2 := &mockScraper{name: "b", err: errors.New("b failed")}

	_, err := NewChain(s1, s2).Scrape(context.Background(), "https://shop.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
}

func TestChain_NoScrapers(t *testing.T) {
	_, err := NewChain().Scrape(context.Background(), "https://shop.example.com")
	require.Error(t, err)
}

func TestChain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s1 := &mockScraper{name: "a", result: &Result{Text: "x"}}

	_, err := NewChain(s1).Scrape(ctx, "https://shop.example.com")
	require.Error(t, err)
	assert.Equal(t, 0, s1.calls)
}
