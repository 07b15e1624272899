package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/internal/store"
)

// ReplayResult summarizes a dead-letter replay.
type ReplayResult struct {
	Replayed int
	Failed   int
}

// Replay hands dead-lettered items back to d. Entries that were enqueued are
// removed; entries that could not be enqueued have their retry count bumped.
func Replay(ctx context.Context, dlq store.DeadLetters, d Dispatcher, filter resilience.DLQFilter) (ReplayResult, error) {
	var res ReplayResult

	entries, err := dlq.DequeueDLQ(ctx, filter)
	if err != nil {
		return res, eris.Wrap(err, "queue: load dead letters")
	}

	for _, e := range entries {
		log := zap.L().With(zap.String("item_id", e.ItemID), zap.String("dlq_id", e.ID))
		if !e.CanRetry() {
			continue
		}

		if err := d.Enqueue(ctx, e.ItemID); err != nil {
			res.Failed++
			next := time.Now().UTC().Add(resilience.Backoff(e.RetryCount+1, resilience.DefaultRetryConfig()))
			if incErr := dlq.IncrementDLQRetry(ctx, e.ID, next, err.Error()); incErr != nil {
				log.Warn("queue: bump dead-letter retry failed", zap.Error(incErr))
			}
			log.Warn("queue: replay enqueue failed", zap.Error(err))
			continue
		}

		if err := dlq.RemoveDLQ(ctx, e.ID); err != nil {
			log.Warn("queue: remove replayed dead letter failed", zap.Error(err))
		}
		res.Replayed++
		log.Info("queue: dead letter replayed")
	}
	return res, nil
}
