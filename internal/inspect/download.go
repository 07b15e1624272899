package inspect

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arbitrage-cli/internal/resilience"
)

// maxImageBytes matches the vision API's per-image limit.
const maxImageBytes = 5 << 20

var supportedMedia = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Downloader fetches image bytes.
type Downloader struct {
	http      *http.Client
	userAgent string
}

// NewDownloader creates a Downloader with a per-request timeout.
func NewDownloader(timeout time.Duration, userAgent string) *Downloader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Downloader{http: &http.Client{Timeout: timeout}, userAgent: userAgent}
}

// Image is a downloaded picture ready for inspection.
type Image struct {
	URL       string
	MediaType string
	Data      []byte
}

// Download fetches url and sniffs its media type.
func (d *Downloader) Download(ctx context.Context, url string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "inspect: create image request")
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "inspect: download image")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("image", resp.StatusCode, "")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "inspect: read image")
	}
	if len(data) == 0 {
		return nil, eris.New("inspect: empty image")
	}
	if len(data) > maxImageBytes {
		return nil, eris.Errorf("inspect: image exceeds %d bytes", maxImageBytes)
	}

	mediaType := detectMediaType(resp.Header.Get("Content-Type"), data)
	if !supportedMedia[mediaType] {
		return nil, eris.Errorf("inspect: unsupported image type %q", mediaType)
	}
	return &Image{URL: url, MediaType: mediaType, Data: data}, nil
}

// detectMediaType prefers sniffed content over the declared header, since
// CDNs often serve images as application/octet-stream.
func detectMediaType(header string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if supportedMedia[sniffed] {
		return sniffed
	}
	if mt, _, err := mime.ParseMediaType(header); err == nil {
		return strings.ToLower(mt)
	}
	return sniffed
}
