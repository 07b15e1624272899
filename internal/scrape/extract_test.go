package scrape

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><head><title> Estate Sterling Lot </title><style>.x{color:red}</style></head>
<body><script>var tracker = 1;</script>
<h1>Sterling flatware</h1>
<p>Heavy   tarnish, 500 grams</p>
<noscript>enable js</noscript>
<img src="/img/a.jpg">
<img src="//cdn.example.com/b.png">
<img src="data:image/png;base64,AAAA" data-src="https://cdn.example.com/c.jpg">
<img src="/img/a.jpg">
<img src="">
</body></html>`

func TestExtractPage(t *testing.T) {
	base, _ := url.Parse("https://shop.example.com/listing/1")
	page, err := ExtractPage(strings.NewReader(listingHTML), base)
	require.NoError(t, err)

	assert.Equal(t, "Estate Sterling Lot", page.Title)
	assert.Contains(t, page.Text, "Sterling flatware")
	assert.Contains(t, page.Text, "tarnish, 500 grams")
	assert.NotContains(t, page.Text, "tracker")
	assert.NotContains(t, page.Text, "color:red")
	assert.NotContains(t, page.Text, "enable js")
	assert.Equal(t, []string{
		"https://shop.example.com/img/a.jpg",
		"https://cdn.example.com/b.png",
		"https://cdn.example.com/c.jpg",
	}, page.ImageURLs)
}

func TestExtractPage_NoImages(t *testing.T) {
	page, err := ExtractPage(strings.NewReader("<html><body><p>plain</p></body></html>"), nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", page.Text)
	assert.NotNil(t, page.ImageURLs)
	assert.Empty(t, page.ImageURLs)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "  \n\t\n  ", ""},
		{"trims lines", "  a  \n b ", "a\nb"},
		{"splits double spaces", "one  two   three", "one\ntwo\nthree"},
		{"keeps single spaces", "one two", "one two"},
		{"drops blank lines", "a\n\n\nb", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://shop.example.com/items/42")
	tests := []struct {
		src  string
		want string
	}{
		{"https://x.com/a.jpg", "https://x.com/a.jpg"},
		{"/a.jpg", "https://shop.example.com/a.jpg"},
		{"b.jpg", "https://shop.example.com/items/b.jpg"},
		{"//cdn.x.com/c.jpg", "https://cdn.x.com/c.jpg"},
		{"data:image/gif;base64,R0lG", ""},
		{"javascript:void(0)", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveURL(base, tt.src), tt.src)
	}
}

func TestDecodeBody(t *testing.T) {
	latin := []byte{'c', 'a', 'f', 0xE9}
	assert.Equal(t, "café", string(decodeBody(latin, "text/html; charset=windows-1252")))
	assert.Equal(t, latin, decodeBody(latin, "text/html"))
	assert.Equal(t, latin, decodeBody(latin, "text/html; charset=bogus-charset"))
	assert.Equal(t, []byte("ok"), decodeBody([]byte("ok"), "text/html; charset=UTF-8"))
}

func TestMarkdownImages(t *testing.T) {
	base, _ := url.Parse("https://shop.example.com/")
	md := "Intro ![front](https://cdn.example.com/1.jpg) and ![](/2.jpg \"title\")\n![dup](https://cdn.example.com/1.jpg)"
	assert.Equal(t, []string{
		"https://cdn.example.com/1.jpg",
		"https://shop.example.com/2.jpg",
	}, markdownImages(md, base))
}
