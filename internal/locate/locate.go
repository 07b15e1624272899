// Package locate turns the address a classifier pulled from a listing into
// coordinates.
package locate

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/pkg/anthropic"
	"github.com/sells-group/arbitrage-cli/pkg/geocode"
)

const cleanupPrompt = `You are a geocoding expert. Convert a messy, unstructured or colloquial address into a standard street address that a geocoding API can understand.
For example, "Corner of 5th and Main, blue house" becomes "5th Street and Main Street".
Return only the cleaned address and nothing else.`

// Location is a resolved address. All fields are zero when Matched is false.
type Location struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	Matched          bool
}

// Resolver resolves a free-form address.
type Resolver interface {
	Resolve(ctx context.Context, address string) (Location, error)
}

// Option configures a GeoResolver.
type Option func(*GeoResolver)

// WithCleanup enables LLM normalization of the address before geocoding.
func WithCleanup(client anthropic.Client, model string) Option {
	return func(r *GeoResolver) {
		r.ai = client
		r.model = model
	}
}

// WithGuard routes geocoder and LLM calls through a resilience guard.
func WithGuard(g *resilience.Guard) Option {
	return func(r *GeoResolver) { r.guard = g }
}

// GeoResolver cleans an address (optionally) and geocodes it.
type GeoResolver struct {
	geocoder geocode.Client
	ai       anthropic.Client
	model    string
	guard    *resilience.Guard
}

// New creates a GeoResolver over geocoder.
func New(geocoder geocode.Client, opts ...Option) *GeoResolver {
	r := &GeoResolver{geocoder: geocoder}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve geocodes address. An address no provider recognizes yields an
// unmatched Location and a nil error.
func (r *GeoResolver) Resolve(ctx context.Context, address string) (Location, error) {
	query := r.clean(ctx, strings.TrimSpace(address))
	if query == "" {
		return Location{}, nil
	}

	res, err := resilience.Call(ctx, r.guard, "geocode", func(ctx context.Context) (*geocode.Result, error) {
		return r.geocoder.Geocode(ctx, query)
	})
	if err != nil {
		return Location{}, eris.Wrap(err, "locate: geocode")
	}
	if res == nil || !res.Matched {
		zap.L().Warn("locate: address not resolved", zap.String("address", query))
		return Location{}, nil
	}
	return Location{
		Latitude:         res.Latitude,
		Longitude:        res.Longitude,
		FormattedAddress: res.FormattedAddress,
		Matched:          true,
	}, nil
}

// clean asks the model to normalize address. Any failure falls back to the
// original text.
func (r *GeoResolver) clean(ctx context.Context, address string) string {
	if r.ai == nil || address == "" {
		return address
	}

	temp := 0.0
	resp, err := resilience.Call(ctx, r.guard, "anthropic", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       r.model,
			MaxTokens:   200,
			System:      []anthropic.SystemBlock{{Text: cleanupPrompt, Cache: true}},
			Messages:    []anthropic.Message{{Role: "user", Content: address}},
			Temperature: &temp,
		})
	})
	if err != nil {
		zap.L().Warn("locate: address cleanup failed, using original", zap.Error(err))
		return address
	}
	resp.Usage.LogCost(r.model, "address_cleanup")

	cleaned := strings.Trim(strings.TrimSpace(resp.Text()), `"`)
	if cleaned == "" {
		return address
	}
	return cleaned
}
