package scrape

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// BrowserScraper renders pages in headless Chrome before extracting them.
// It handles listings that only populate their DOM client-side.
type BrowserScraper struct {
	timeout   time.Duration
	userAgent string
	execPath  string
}

// NewBrowserScraper creates a BrowserScraper. execPath may be empty to let
// chromedp locate Chrome on PATH.
func NewBrowserScraper(timeout time.Duration, userAgent, execPath string) *BrowserScraper {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &BrowserScraper{timeout: timeout, userAgent: userAgent, execPath: execPath}
}

func (b *BrowserScraper) Name() string { return "browser" }

func (b *BrowserScraper) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	base, err := url.Parse(rawURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, eris.Errorf("scrape: invalid url %q", rawURL)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(b.userAgent),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	var html, location string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, eris.Wrap(err, "scrape: browser render")
	}

	if loc, err := url.Parse(location); err == nil && loc.Scheme != "" {
		base = loc
	}
	page, err := ExtractPage(strings.NewReader(html), base)
	if err != nil {
		return nil, err
	}
	return &Result{
		URL:       rawURL,
		Title:     page.Title,
		Text:      page.Text,
		ImageURLs: page.ImageURLs,
		Source:    b.Name(),
	}, nil
}
