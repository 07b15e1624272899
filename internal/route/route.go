// Package route plans pickup trips over completed items.
package route

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/internal/store"
	"github.com/sells-group/arbitrage-cli/pkg/mapbox"
)

// ErrNotEnoughStops is returned when fewer than two routable points remain.
var ErrNotEnoughStops = eris.New("route: at least two stops with coordinates are required")

// ItemSource is the subset of the store the planner reads.
type ItemSource interface {
	store.ItemReader
	ListItems(ctx context.Context, filter store.ItemFilter) ([]model.Item, error)
}

// Request selects the items to visit. With no ItemIDs every completed item
// with coordinates is a candidate.
type Request struct {
	ItemIDs []string           `json:"item_ids,omitempty"`
	Origin  *mapbox.Coordinate `json:"origin,omitempty"`
}

// Stop is one item on the planned trip.
type Stop struct {
	Sequence  int     `json:"sequence"`
	ItemID    string  `json:"item_id"`
	SourceURL string  `json:"source_url"`
	Score     *int    `json:"score,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Plan is an optimized pickup trip.
type Plan struct {
	Origin          *mapbox.Coordinate `json:"origin,omitempty"`
	Stops           []Stop             `json:"stops"`
	DistanceMeters  float64            `json:"distance_meters"`
	DurationSeconds float64            `json:"duration_seconds"`
	Geometry        json.RawMessage    `json:"geometry,omitempty"`
	// Skipped lists requested items that could not be routed.
	Skipped []string `json:"skipped,omitempty"`
}

// Planner builds pickup plans.
type Planner struct {
	items  ItemSource
	client mapbox.Client
	guard  *resilience.Guard
}

// NewPlanner creates a Planner. guard may be nil.
func NewPlanner(items ItemSource, client mapbox.Client, guard *resilience.Guard) *Planner {
	return &Planner{items: items, client: client, guard: guard}
}

const candidateLimit = 1000

// Plan selects routable items and asks the optimizer for a visiting order.
// When more items qualify than one request can carry, the highest scored
// items are kept and the rest are reported in Skipped.
func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	candidates, skipped, err := p.candidates(ctx, req.ItemIDs)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return scoreOf(candidates[i]) > scoreOf(candidates[j])
	})

	capacity := mapbox.MaxCoordinates
	if req.Origin != nil {
		capacity--
	}
	if len(candidates) > capacity {
		for _, it := range candidates[capacity:] {
			skipped = append(skipped, it.ID)
		}
		zap.L().Info("route: too many stops for one trip, keeping highest scored",
			zap.Int("candidates", len(candidates)),
			zap.Int("kept", capacity),
		)
		candidates = candidates[:capacity]
	}

	coords := make([]mapbox.Coordinate, 0, len(candidates)+1)
	if req.Origin != nil {
		coords = append(coords, *req.Origin)
	}
	for _, it := range candidates {
		coords = append(coords, mapbox.Coordinate{Latitude: *it.Latitude, Longitude: *it.Longitude})
	}
	if len(coords) < mapbox.MinCoordinates {
		return nil, ErrNotEnoughStops
	}

	trip, err := resilience.Call(ctx, p.guard, "mapbox", func(ctx context.Context) (*mapbox.Trip, error) {
		return p.client.OptimizeTrip(ctx, coords)
	})
	if err != nil {
		return nil, eris.Wrap(err, "route: optimize trip")
	}

	plan := &Plan{
		Origin:          req.Origin,
		Stops:           make([]Stop, 0, len(candidates)),
		DistanceMeters:  trip.DistanceMeters,
		DurationSeconds: trip.DurationSeconds,
		Skipped:         skipped,
	}
	offset := len(coords) - len(candidates)
	for _, idx := range trip.Order {
		if idx < offset {
			continue
		}
		it := candidates[idx-offset]
		plan.Stops = append(plan.Stops, Stop{
			Sequence:  len(plan.Stops) + 1,
			ItemID:    it.ID,
			SourceURL: it.SourceURL,
			Score:     it.Score,
			Latitude:  *it.Latitude,
			Longitude: *it.Longitude,
		})
	}

	if trip.Geometry != nil {
		raw, err := geojson.Marshal(trip.Geometry)
		if err != nil {
			return nil, eris.Wrap(err, "route: encode geometry")
		}
		plan.Geometry = raw
	}
	return plan, nil
}

func (p *Planner) candidates(ctx context.Context, ids []string) ([]model.Item, []string, error) {
	if len(ids) == 0 {
		items, err := p.items.ListItems(ctx, store.ItemFilter{Status: model.StatusCompleted, Limit: candidateLimit})
		if err != nil {
			return nil, nil, eris.Wrap(err, "route: list items")
		}
		var out []model.Item
		for _, it := range items {
			if it.HasLocation() {
				out = append(out, it)
			}
		}
		return out, nil, nil
	}

	var out []model.Item
	var skipped []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		it, err := p.items.GetItem(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			skipped = append(skipped, id)
			continue
		}
		if err != nil {
			return nil, nil, eris.Wrapf(err, "route: get item %s", id)
		}
		if it.Status != model.StatusCompleted || !it.HasLocation() {
			skipped = append(skipped, id)
			continue
		}
		out = append(out, *it)
	}
	return out, skipped, nil
}

func scoreOf(it model.Item) int {
	if it.Score == nil {
		return 0
	}
	return *it.Score
}
