// Package geocode resolves free-form addresses to coordinates via Nominatim
// (primary) and Google (fallback).
package geocode

import (
	"context"
	"strings"
)

// Client geocodes a single free-form address.
type Client interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Provider is one geocoding backend in a cascade.
type Provider interface {
	Client
	Name() string
}

// Result holds the geocoding output for an address. Latitude and Longitude
// are only meaningful when Matched is true.
type Result struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	Source           string // "nominatim" or "google"
	Quality          string // "rooftop", "range", "centroid", "approximate"
	Matched          bool
}

// normalizeQuery collapses whitespace so equivalent addresses share a key.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
