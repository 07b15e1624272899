package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arbitrage-cli/internal/resilience"
)

type fakeDLQ struct {
	mu        sync.Mutex
	entries   []resilience.DLQEntry
	removed   []string
	bumped    []string
	dequeueFn func() ([]resilience.DLQEntry, error)
}

func (f *fakeDLQ) EnqueueDLQ(_ context.Context, e resilience.DLQEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeDLQ) DequeueDLQ(_ context.Context, _ resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	if f.dequeueFn != nil {
		return f.dequeueFn()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]resilience.DLQEntry(nil), f.entries...), nil
}

func (f *fakeDLQ) IncrementDLQRetry(_ context.Context, id string, _ time.Time, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumped = append(f.bumped, id)
	return nil
}

func (f *fakeDLQ) RemoveDLQ(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDLQ) CountDLQ(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

func (f *fakeDLQ) snapshot() []resilience.DLQEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]resilience.DLQEntry(nil), f.entries...)
}

// countingProcessor records deliveries per id and fails the first failN of
// each.
type countingProcessor struct {
	mu    sync.Mutex
	calls map[string]int
	failN int
}

func newCountingProcessor(failN int) *countingProcessor {
	return &countingProcessor{calls: make(map[string]int), failN: failN}
}

func (p *countingProcessor) Process(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[id]++
	if p.calls[id] <= p.failN {
		return eris.New("store unavailable")
	}
	return nil
}

func (p *countingProcessor) count(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}
