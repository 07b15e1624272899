package scrape

import (
	"context"
	"errors"
	"net/url"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/pkg/jina"
)

// JinaAdapter fetches pages through the Jina Reader API.
type JinaAdapter struct {
	client jina.Client
}

// NewJinaAdapter wraps a Jina client as a Scraper.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{client: client}
}

func (j *JinaAdapter) Name() string { return "jina" }

func (j *JinaAdapter) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	resp, err := j.client.Read(ctx, rawURL)
	if err != nil {
		var se *jina.StatusError
		if errors.As(err, &se) {
			return nil, resilience.StatusError("jina", se.StatusCode, se.Body)
		}
		return nil, eris.Wrap(err, "scrape: jina read")
	}

	base, _ := url.Parse(rawURL)
	images := markdownImages(resp.Data.Content, base)
	seen := make(map[string]bool, len(images))
	for _, u := range images {
		seen[u] = true
	}

	// The images summary is a map; sort for a stable order after the inline ones.
	extra := make([]string, 0, len(resp.Data.Images))
	for _, u := range resp.Data.Images {
		if abs := resolveURL(base, u); abs != "" && !seen[abs] {
			seen[abs] = true
			extra = append(extra, abs)
		}
	}
	sort.Strings(extra)

	return &Result{
		URL:       rawURL,
		Title:     resp.Data.Title,
		Text:      CleanText(resp.Data.Content),
		ImageURLs: append(images, extra...),
		Source:    j.Name(),
	}, nil
}
