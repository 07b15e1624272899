// Package queue dispatches item ids to the pipeline driver with
// at-least-once delivery.
package queue

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrQueueFull is returned when the local buffer cannot take another item.
var ErrQueueFull = eris.New("queue: full")

// ErrClosed is returned when enqueueing after shutdown.
var ErrClosed = eris.New("queue: closed")

// Processor handles one delivery. A non-nil error asks for redelivery.
type Processor interface {
	Process(ctx context.Context, itemID string) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, itemID string) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, itemID string) error { return f(ctx, itemID) }

// Dispatcher schedules an item for asynchronous processing.
type Dispatcher interface {
	Enqueue(ctx context.Context, itemID string) error
}
