package scrape

import (
	"io"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Page is the text and imagery pulled from an HTML document.
type Page struct {
	Title     string
	Text      string
	ImageURLs []string
}

// ExtractPage parses an HTML document, drops non-content elements and returns
// the cleaned visible text plus every image URL resolved against base.
func ExtractPage(r io.Reader, base *url.URL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse html")
	}

	doc.Find("script, style, noscript, template, svg").Remove()

	page := &Page{
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		ImageURLs: extractImages(doc, base),
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	page.Text = CleanText(textWithBreaks(root))
	return page, nil
}

// textWithBreaks renders a selection's text with a newline after each
// block-level element so CleanText can split it into lines.
func textWithBreaks(sel *goquery.Selection) string {
	sel.Find("br, p, div, li, tr, h1, h2, h3, h4, h5, h6, section, article, header, footer, dd, dt").
		Each(func(_ int, s *goquery.Selection) {
			s.AppendHtml("\n")
		})
	return sel.Text()
}

func extractImages(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	images := []string{}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			src = strings.TrimSpace(s.AttrOr("data-src", ""))
		}
		abs := resolveURL(base, src)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		images = append(images, abs)
	})
	return images
}

// resolveURL makes src absolute. Protocol-relative and root-relative sources
// resolve against base; data URIs and unparsable values are dropped.
func resolveURL(base *url.URL, src string) string {
	if src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

var multiSpace = regexp.MustCompile(`\s{2,}`)

// CleanText trims every line, splits lines on runs of whitespace into
// phrases and joins the non-empty phrases with newlines.
func CleanText(raw string) string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		for _, phrase := range multiSpace.Split(strings.TrimSpace(line), -1) {
			if p := strings.TrimSpace(phrase); p != "" {
				out = append(out, p)
			}
		}
	}
	return strings.Join(out, "\n")
}

// decodeBody converts body to UTF-8 using the charset named in contentType.
// Unknown or missing charsets leave the body untouched.
func decodeBody(body []byte, contentType string) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	cs := strings.ToLower(params["charset"])
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

var markdownImage = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)`)

// markdownImages returns the absolute image URLs referenced in markdown.
func markdownImages(md string, base *url.URL) []string {
	seen := make(map[string]bool)
	images := []string{}
	for _, m := range markdownImage.FindAllStringSubmatch(md, -1) {
		abs := resolveURL(base, m[1])
		if abs == "" || seen[abs] {
			continue
		}
		seen[abs] = true
		images = append(images, abs)
	}
	return images
}
