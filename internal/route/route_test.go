package route

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/store"
	"github.com/sells-group/arbitrage-cli/pkg/mapbox"
)

type fakeItems struct {
	items   map[string]*model.Item
	listErr error
	filter  store.ItemFilter
}

func (f *fakeItems) GetItem(_ context.Context, id string) (*model.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return it, nil
}

func (f *fakeItems) ListItems(_ context.Context, filter store.ItemFilter) ([]model.Item, error) {
	f.filter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Item
	for _, id := range sortedIDs(f.items) {
		it := f.items[id]
		if filter.Status == "" || it.Status == filter.Status {
			out = append(out, *it)
		}
	}
	return out, nil
}

func sortedIDs(m map[string]*model.Item) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type mockTrips struct{ mock.Mock }

func (m *mockTrips) OptimizeTrip(ctx context.Context, coords []mapbox.Coordinate) (*mapbox.Trip, error) {
	args := m.Called(ctx, coords)
	trip, _ := args.Get(0).(*mapbox.Trip)
	return trip, args.Error(1)
}

func item(id string, status model.ItemStatus, score int, lat, lng float64) *model.Item {
	it := &model.Item{ID: id, SourceURL: "https://example.com/" + id, Status: status}
	if score > 0 {
		it.Score = &score
	}
	if lat != 0 || lng != 0 {
		it.SetLocation(lat, lng)
	}
	return it
}

func TestPlan_AllCompleted(t *testing.T) {
	items := &fakeItems{items: map[string]*model.Item{
		"a": item("a", model.StatusCompleted, 5, 30.26, -97.74),
		"b": item("b", model.StatusCompleted, 9, 30.30, -97.70),
		"c": item("c", model.StatusCompleted, 7, 0, 0),
	}}
	trips := &mockTrips{}
	line := geom.NewLineStringFlat(geom.XY, []float64{-97.70, 30.30, -97.74, 30.26})
	trips.On("OptimizeTrip", mock.Anything, []mapbox.Coordinate{
		{Latitude: 30.30, Longitude: -97.70},
		{Latitude: 30.26, Longitude: -97.74},
	}).Return(&mapbox.Trip{Order: []int{0, 1}, DistanceMeters: 6000, DurationSeconds: 700, Geometry: line}, nil)

	plan, err := NewPlanner(items, trips, nil).Plan(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, items.filter.Status)
	require.Len(t, plan.Stops, 2)
	assert.Equal(t, "b", plan.Stops[0].ItemID)
	assert.Equal(t, 1, plan.Stops[0].Sequence)
	assert.Equal(t, "a", plan.Stops[1].ItemID)
	assert.Equal(t, 2, plan.Stops[1].Sequence)
	assert.InDelta(t, 6000, plan.DistanceMeters, 1e-9)
	assert.Empty(t, plan.Skipped)

	var g struct {
		Type        string      `json:"type"`
		Coordinates [][]float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(plan.Geometry, &g))
	assert.Equal(t, "LineString", g.Type)
	assert.Len(t, g.Coordinates, 2)
	trips.AssertExpectations(t)
}

func TestPlan_WithOriginAndReorder(t *testing.T) {
	items := &fakeItems{items: map[string]*model.Item{
		"a": item("a", model.StatusCompleted, 8, 30.26, -97.74),
		"b": item("b", model.StatusCompleted, 6, 30.30, -97.70),
	}}
	origin := &mapbox.Coordinate{Latitude: 30.0, Longitude: -97.0}
	trips := &mockTrips{}
	trips.On("OptimizeTrip", mock.Anything, mock.MatchedBy(func(c []mapbox.Coordinate) bool {
		return len(c) == 3 && c[0] == *origin
	})).Return(&mapbox.Trip{Order: []int{0, 2, 1}}, nil)

	plan, err := NewPlanner(items, trips, nil).Plan(context.Background(), Request{Origin: origin})
	require.NoError(t, err)

	require.Len(t, plan.Stops, 2)
	assert.Equal(t, "b", plan.Stops[0].ItemID)
	assert.Equal(t, "a", plan.Stops[1].ItemID)
	assert.Equal(t, origin, plan.Origin)
	assert.Nil(t, plan.Geometry)
}

func TestPlan_SelectedItems(t *testing.T) {
	items := &fakeItems{items: map[string]*model.Item{
		"a": item("a", model.StatusCompleted, 5, 30.26, -97.74),
		"b": item("b", model.StatusCompleted, 4, 30.30, -97.70),
		"p": item("p", model.StatusGeocoding, 9, 30.1, -97.1),
		"n": item("n", model.StatusCompleted, 9, 0, 0),
	}}
	trips := &mockTrips{}
	trips.On("OptimizeTrip", mock.Anything, mock.Anything).Return(&mapbox.Trip{Order: []int{0, 1}}, nil)

	plan, err := NewPlanner(items, trips, nil).Plan(context.Background(), Request{
		ItemIDs: []string{"a", "p", "missing", "b", "n", "a"},
	})
	require.NoError(t, err)

	assert.Len(t, plan.Stops, 2)
	assert.Equal(t, []string{"p", "missing", "n"}, plan.Skipped)
}

func TestPlan_NotEnoughStops(t *testing.T) {
	items := &fakeItems{items: map[string]*model.Item{
		"a": item("a", model.StatusCompleted, 5, 30.26, -97.74),
		"b": item("b", model.StatusFailed, 5, 30.30, -97.70),
	}}
	trips := &mockTrips{}

	_, err := NewPlanner(items, trips, nil).Plan(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotEnoughStops)
	trips.AssertNotCalled(t, "OptimizeTrip", mock.Anything, mock.Anything)
}

func TestPlan_OriginCountsTowardMinimum(t *testing.T) {
	items := &fakeItems{items: map[string]*model.Item{
		"a": item("a", model.StatusCompleted, 5, 30.26, -97.74),
	}}
	trips := &mockTrips{}
	trips.On("OptimizeTrip", mock.Anything, mock.Anything).Return(&mapbox.Trip{Order: []int{0, 1}}, nil)

	plan, err := NewPlanner(items, trips, nil).Plan(context.Background(), Request{
		Origin: &mapbox.Coordinate{Latitude: 30, Longitude: -97},
	})
	require.NoError(t, err)
	assert.Len(t, plan.Stops, 1)
}

func TestPlan_TruncatesToHighestScored(t *testing.T) {
	items := &fakeItems{items: map[string]*model.Item{}}
	for i := 0; i < mapbox.MaxCoordinates+2; i++ {
		id := string(rune('a' + i))
		items.items[id] = item(id, model.StatusCompleted, i+1, 30+float64(i)/100, -97)
	}
	trips := &mockTrips{}
	order := make([]int, mapbox.MaxCoordinates)
	for i := range order {
		order[i] = i
	}
	trips.On("OptimizeTrip", mock.Anything, mock.MatchedBy(func(c []mapbox.Coordinate) bool {
		return len(c) == mapbox.MaxCoordinates
	})).Return(&mapbox.Trip{Order: order}, nil)

	plan, err := NewPlanner(items, trips, nil).Plan(context.Background(), Request{})
	require.NoError(t, err)

	assert.Len(t, plan.Stops, mapbox.MaxCoordinates)
	assert.ElementsMatch(t, []string{"a", "b"}, plan.Skipped)
	assert.Equal(t, "n", plan.Stops[0].ItemID)
}

func TestPlan_OptimizerError(t *testing.T) {
	items := &fakeItems{items: map[string]*model.Item{
		"a": item("a", model.StatusCompleted, 5, 30.26, -97.74),
		"b": item("b", model.StatusCompleted, 4, 30.30, -97.70),
	}}
	trips := &mockTrips{}
	trips.On("OptimizeTrip", mock.Anything, mock.Anything).Return(nil, errors.New("mapbox down"))

	_, err := NewPlanner(items, trips, nil).Plan(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route: optimize trip")
}

func TestPlan_ListError(t *testing.T) {
	items := &fakeItems{listErr: errors.New("db down")}

	_, err := NewPlanner(items, &mockTrips{}, nil).Plan(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route: list items")
}
