package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
)

var (
	// ErrNotFound is returned when an item does not exist.
	ErrNotFound = eris.New("store: item not found")
	// ErrConflict is returned by SaveItem when the stored version no longer
	// matches the one the caller read.
	ErrConflict = eris.New("store: item version conflict")
)

// ItemFilter specifies criteria for listing items.
type ItemFilter struct {
	Status model.ItemStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f ItemFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// ItemReader loads item records.
type ItemReader interface {
	GetItem(ctx context.Context, id string) (*model.Item, error)
}

// ItemWriter persists item records. SaveItem writes the whole record and
// bumps its version.
type ItemWriter interface {
	SaveItem(ctx context.Context, item *model.Item) error
}

// DeadLetters persists items whose dispatch kept failing.
type DeadLetters interface {
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)
}

// Store defines the persistence interface for discovered items.
type Store interface {
	ItemReader
	ItemWriter
	DeadLetters

	CreateItem(ctx context.Context, sourceURL string) (*model.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error)
	CountByStatus(ctx context.Context) (map[model.ItemStatus]int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
