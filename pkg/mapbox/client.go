// Package mapbox provides a client for the Mapbox Optimization API.
package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const (
	defaultBaseURL = "https://api.mapbox.com"
	defaultProfile = "mapbox/driving"

	// MinCoordinates and MaxCoordinates bound a single optimization request.
	MinCoordinates = 2
	MaxCoordinates = 12
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Trip is an optimized visiting order over the requested coordinates.
type Trip struct {
	// Order lists input indexes in visiting order.
	Order []int
	// DistanceMeters and DurationSeconds cover the whole trip.
	DistanceMeters  float64
	DurationSeconds float64
	// Geometry is the full route line, nil if the API returned none.
	Geometry *geom.LineString
}

// Client computes optimized trips.
type Client interface {
	OptimizeTrip(ctx context.Context, coords []Coordinate) (*Trip, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithProfile sets the routing profile (e.g. "mapbox/walking").
func WithProfile(p string) Option {
	return func(c *httpClient) {
		if p != "" {
			c.profile = strings.Trim(p, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	token   string
	baseURL string
	profile string
	http    *http.Client
}

// NewClient creates a Mapbox Optimization API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		profile: defaultProfile,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type optimizeResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Waypoints []struct {
		WaypointIndex int        `json:"waypoint_index"`
		TripsIndex    int        `json:"trips_index"`
		Location      [2]float64 `json:"location"`
	} `json:"waypoints"`
	Trips []struct {
		Geometry json.RawMessage `json:"geometry"`
		Distance float64         `json:"distance"`
		Duration float64         `json:"duration"`
	} `json:"trips"`
}

// OptimizeTrip implements Client. The trip starts at the first coordinate and
// ends at the last one.
func (c *httpClient) OptimizeTrip(ctx context.Context, coords []Coordinate) (*Trip, error) {
	if c.token == "" {
		return nil, eris.New("mapbox: access token not configured")
	}
	if len(coords) < MinCoordinates {
		return nil, eris.Errorf("mapbox: at least %d coordinates are required, got %d", MinCoordinates, len(coords))
	}
	if len(coords) > MaxCoordinates {
		return nil, eris.Errorf("mapbox: at most %d coordinates are allowed, got %d", MaxCoordinates, len(coords))
	}

	params := url.Values{
		"access_token": {c.token},
		"overview":     {"full"},
		"geometries":   {"geojson"},
		"source":       {"first"},
		"destination":  {"last"},
		"roundtrip":    {"false"},
	}
	endpoint := c.baseURL + "/optimized-trips/v1/" + c.profile + "/" + formatCoordinates(coords) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "mapbox: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "mapbox: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, eris.Wrap(err, "mapbox: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	var out optimizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "mapbox: unmarshal response")
	}
	if out.Code != "Ok" {
		return nil, eris.Errorf("mapbox: api error %s: %s", out.Code, out.Message)
	}
	if len(out.Trips) == 0 {
		return nil, eris.New("mapbox: response contained no trips")
	}
	if len(out.Waypoints) != len(coords) {
		return nil, eris.Errorf("mapbox: expected %d waypoints, got %d", len(coords), len(out.Waypoints))
	}

	trip := &Trip{
		Order:           visitOrder(out),
		DistanceMeters:  out.Trips[0].Distance,
		DurationSeconds: out.Trips[0].Duration,
	}
	if len(out.Trips[0].Geometry) > 0 && string(out.Trips[0].Geometry) != "null" {
		line, err := decodeLine(out.Trips[0].Geometry)
		if err != nil {
			return nil, err
		}
		trip.Geometry = line
	}
	return trip, nil
}

// visitOrder maps the API's per-input waypoint_index back to input indexes
// sorted by visit position.
func visitOrder(out optimizeResponse) []int {
	order := make([]int, len(out.Waypoints))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return out.Waypoints[order[a]].WaypointIndex < out.Waypoints[order[b]].WaypointIndex
	})
	return order
}

func decodeLine(raw json.RawMessage) (*geom.LineString, error) {
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, eris.Wrap(err, "mapbox: decode trip geometry")
	}
	line, ok := g.(*geom.LineString)
	if !ok {
		return nil, eris.Errorf("mapbox: unexpected trip geometry %T", g)
	}
	return line.SetSRID(4326), nil
}

// formatCoordinates renders "lng,lat;lng,lat" as the API expects.
func formatCoordinates(coords []Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.FormatFloat(c.Longitude, 'f', 6, 64) + "," + strconv.FormatFloat(c.Latitude, 'f', 6, 64)
	}
	return strings.Join(parts, ";")
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "mapbox: unexpected status " + http.StatusText(e.StatusCode) + ": " + e.Body
}
