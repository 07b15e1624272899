package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	Items map[model.ItemStatus]int `json:"items"`

	ItemsTotal     int     `json:"items_total"`
	InFlight       int     `json:"in_flight"`
	Completed      int     `json:"completed"`
	FailedScraping int     `json:"failed_scraping"`
	Failed         int     `json:"failed"`
	FailRate       float64 `json:"fail_rate"`

	DLQDepth int `json:"dlq_depth"`

	// Breakers maps external service names to their circuit state.
	Breakers map[string]string `json:"breakers,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// Finished returns the number of items in a terminal state.
func (s *MetricsSnapshot) Finished() int {
	return s.Completed + s.FailedScraping + s.Failed
}

// OpenBreakers returns the services whose circuit is not closed.
func (s *MetricsSnapshot) OpenBreakers() []string {
	var open []string
	for name, state := range s.Breakers {
		if state != resilience.CircuitClosed.String() {
			open = append(open, name)
		}
	}
	return open
}

// StatusSource abstracts the store queries needed by the collector.
type StatusSource interface {
	CountByStatus(ctx context.Context) (map[model.ItemStatus]int, error)
	CountDLQ(ctx context.Context) (int, error)
}

// Collector gathers metrics from the store and the breaker registry.
type Collector struct {
	store    StatusSource
	breakers *resilience.ServiceBreakers
}

// NewCollector creates a new metrics collector. breakers may be nil.
func NewCollector(st StatusSource, breakers *resilience.ServiceBreakers) *Collector {
	return &Collector{store: st, breakers: breakers}
}

// Collect gathers a snapshot of item counts, DLQ depth and breaker states.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		Items:       make(map[model.ItemStatus]int, len(model.AllStatuses)),
		CollectedAt: time.Now().UTC(),
	}

	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count items")
	}
	for _, s := range model.AllStatuses {
		snap.Items[s] = counts[s]
	}

	for status, n := range counts {
		snap.ItemsTotal += n
		switch status {
		case model.StatusCompleted:
			snap.Completed += n
		case model.StatusFailedScraping:
			snap.FailedScraping += n
		case model.StatusFailed:
			snap.Failed += n
		default:
			snap.InFlight += n
		}
	}

	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.FailedScraping+snap.Failed) / float64(finished)
	}

	dlqCount, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	if c.breakers != nil {
		states := c.breakers.States()
		snap.Breakers = make(map[string]string, len(states))
		for name, st := range states {
			snap.Breakers[name] = st.String()
		}
	}

	return snap, nil
}
