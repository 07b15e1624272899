package main

import (
	"context"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/queue"
	"github.com/sells-group/arbitrage-cli/internal/store"
)

// dispatch is a running task dispatcher. Wait blocks until locally queued
// work drains; Close stops local workers or the Temporal client.
type dispatch struct {
	queue.Dispatcher
	wait  func(ctx context.Context) error
	close func()
}

func (d *dispatch) Wait(ctx context.Context) error { return d.wait(ctx) }
func (d *dispatch) Close()                         { d.close() }

// startDispatcher returns the configured dispatcher. The local queue runs
// the pipeline in this process and needs env.Driver; the Temporal
// dispatcher only starts workflows. minSize raises the local buffer for
// bulk enqueues.
func startDispatcher(ctx context.Context, env *appEnv, minSize int) (*dispatch, error) {
	if cfg.Queue.Driver == "temporal" {
		c, err := queue.DialTemporal(cfg.Temporal)
		if err != nil {
			return nil, err
		}
		return temporalDispatch(c), nil
	}

	qcfg := queue.LocalConfigFrom(cfg.Queue)
	if minSize > qcfg.Size {
		qcfg.Size = minSize
	}
	return localDispatch(ctx, queue.NewLocal(env.Driver, env.Store, qcfg)), nil
}

func temporalDispatch(c client.Client) *dispatch {
	return &dispatch{
		Dispatcher: queue.NewTemporalDispatcher(c, cfg.Temporal.TaskQueue, queue.DefaultWorkflowOptions()),
		wait:       func(context.Context) error { return nil },
		close:      c.Close,
	}
}

func localDispatch(ctx context.Context, q *queue.LocalQueue) *dispatch {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := q.Run(runCtx); err != nil {
			zap.L().Error("local queue stopped", zap.Error(err))
		}
	}()
	return &dispatch{
		Dispatcher: q,
		wait:       q.Wait,
		close: func() {
			cancel()
			<-done
		},
	}
}

// resumeStatuses are the non-terminal states an item can be left in when
// an in-process queue stops.
var resumeStatuses = []model.ItemStatus{
	model.StatusPending,
	model.StatusScraping,
	model.StatusAnalyzingText,
	model.StatusGeocoding,
	model.StatusAnalyzingImages,
	model.StatusCalculatingROI,
}

// resumeUnfinished re-enqueues items left non-terminal by a previous
// process. It returns the number of items enqueued.
func resumeUnfinished(ctx context.Context, st store.Store, d queue.Dispatcher, limit int) (int, error) {
	n := 0
	for _, status := range resumeStatuses {
		items, err := st.ListItems(ctx, store.ItemFilter{Status: status, Limit: limit})
		if err != nil {
			return n, err
		}
		for _, it := range items {
			if err := d.Enqueue(ctx, it.ID); err != nil {
				zap.L().Warn("resume: enqueue failed", zap.String("item_id", it.ID), zap.Error(err))
				continue
			}
			n++
		}
	}
	return n, nil
}
