// Package scrape fetches listing pages and extracts their description text
// and image URLs.
package scrape

import (
	"context"
)

// Result holds the content extracted from one listing page.
type Result struct {
	URL       string
	Title     string
	Text      string
	ImageURLs []string
	Source    string // e.g. "local_http", "browser", "jina"
}

// Empty reports whether the page yielded no description text.
func (r *Result) Empty() bool {
	return r == nil || r.Text == ""
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
}
