package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/arbitrage-cli/internal/locate"
	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/scrape"
	"github.com/sells-group/arbitrage-cli/internal/store"
)

// --- Store fake ---

// memStore keeps items in memory and records every status it persists.
type memStore struct {
	mu       sync.Mutex
	items    map[string]model.Item
	statuses []model.ItemStatus
	getErr   error
	// failOn makes SaveItem fail when persisting this status.
	failOn  model.ItemStatus
	saveErr error
}

func newMemStore(items ...*model.Item) *memStore {
	s := &memStore{items: make(map[string]model.Item)}
	for _, it := range items {
		s.items[it.ID] = *it
	}
	return s
}

func (s *memStore) GetItem(_ context.Context, id string) (*model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	it, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &it, nil
}

func (s *memStore) SaveItem(_ context.Context, item *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil && item.Status == s.failOn {
		return s.saveErr
	}
	cur, ok := s.items[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != item.Version {
		return store.ErrConflict
	}
	item.Version++
	s.items[item.ID] = *item
	s.statuses = append(s.statuses, item.Status)
	return nil
}

func (s *memStore) get(id string) model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

func (s *memStore) history() []model.ItemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ItemStatus(nil), s.statuses...)
}

// --- Adapter mocks ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) scrape.Content {
	args := m.Called(ctx, url)
	return args.Get(0).(scrape.Content)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, text string) (model.Classification, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(model.Classification), args.Error(1)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, address string) (locate.Location, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(locate.Location), args.Error(1)
}

type mockInspector struct {
	mock.Mock
}

func (m *mockInspector) Inspect(ctx context.Context, imageURL string) (*model.HallmarkFindings, error) {
	args := m.Called(ctx, imageURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.HallmarkFindings), args.Error(1)
}

type mockValuator struct {
	mock.Mock
}

func (m *mockValuator) Valuate(ctx context.Context, weightGrams, purity, purchasePrice float64) (*model.Valuation, error) {
	args := m.Called(ctx, weightGrams, purity, purchasePrice)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Valuation), args.Error(1)
}

// harness wires a Driver to fresh mocks.
type harness struct {
	store      *memStore
	fetcher    *mockFetcher
	classifier *mockClassifier
	resolver   *mockResolver
	inspector  *mockInspector
	valuator   *mockValuator
	driver     *Driver
}

func newHarness(item *model.Item, opts ...Option) *harness {
	h := &harness{
		store:      newMemStore(item),
		fetcher:    &mockFetcher{},
		classifier: &mockClassifier{},
		resolver:   &mockResolver{},
		inspector:  &mockInspector{},
		valuator:   &mockValuator{},
	}
	h.driver = New(h.store, Stages{
		Fetcher:    h.fetcher,
		Classifier: h.classifier,
		Resolver:   h.resolver,
		Inspector:  h.inspector,
		Valuator:   h.valuator,
	}, opts...)
	return h
}

func (h *harness) assertExpectations(t mock.TestingT) {
	h.fetcher.AssertExpectations(t)
	h.classifier.AssertExpectations(t)
	h.resolver.AssertExpectations(t)
	h.inspector.AssertExpectations(t)
	h.valuator.AssertExpectations(t)
}
