package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimOption configures a Nominatim provider.
type NominatimOption func(*Nominatim)

// WithNominatimURL points the provider at a self-hosted instance.
func WithNominatimURL(u string) NominatimOption {
	return func(n *Nominatim) {
		if u != "" {
			n.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithNominatimHTTPClient sets a custom HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(n *Nominatim) { n.http = hc }
}

// WithNominatimRate sets the request rate. The public instance allows one
// request per second.
func WithNominatimRate(rps float64) NominatimOption {
	return func(n *Nominatim) {
		if rps > 0 {
			n.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// Nominatim geocodes with OpenStreetMap's search API.
type Nominatim struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewNominatim creates a Nominatim provider. userAgent identifies the
// application as the usage policy requires.
func NewNominatim(userAgent string, opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		baseURL:   defaultNominatimURL,
		userAgent: userAgent,
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	AddressType string `json:"addresstype"`
	Category    string `json:"category"`
}

// Geocode implements Provider.
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Result, error) {
	q := normalizeQuery(query)
	if q == "" {
		return &Result{Source: n.Name()}, nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":      {q},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(places) == 0 {
		return &Result{Source: n.Name()}, nil
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, eris.Errorf("geocode: nominatim returned bad coordinates %q,%q", places[0].Lat, places[0].Lon)
	}

	return &Result{
		Latitude:         lat,
		Longitude:        lon,
		FormattedAddress: places[0].DisplayName,
		Source:           n.Name(),
		Quality:          nominatimQuality(places[0].AddressType),
		Matched:          true,
	}, nil
}

// nominatimQuality maps an OSM address type to our quality taxonomy.
func nominatimQuality(addressType string) string {
	switch addressType {
	case "house", "building":
		return "rooftop"
	case "road", "street":
		return "range"
	case "postcode", "suburb", "neighbourhood", "quarter":
		return "centroid"
	default:
		return "approximate"
	}
}
