package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/internal/store"
)

// LocalConfig tunes the in-process queue.
type LocalConfig struct {
	Workers     int
	Size        int
	MaxAttempts int
	Backoff     time.Duration
}

// LocalConfigFrom maps the queue config section.
func LocalConfigFrom(cfg config.QueueConfig) LocalConfig {
	return LocalConfig{
		Workers:     cfg.Workers,
		Size:        cfg.Size,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     time.Duration(cfg.BackoffMs) * time.Millisecond,
	}
}

func (c LocalConfig) withDefaults() LocalConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Size <= 0 {
		c.Size = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	return c
}

// LocalQueue is an in-process worker pool. An id that is queued, running or
// waiting for redelivery is not accepted twice, so at most one delivery per
// id runs at a time.
type LocalQueue struct {
	proc Processor
	dlq  store.DeadLetters
	cfg  LocalConfig

	ch chan string

	mu       sync.Mutex
	attempts map[string]int
	closed   bool
	idle     *sync.Cond
	timers   map[string]*time.Timer

	nowFunc func() time.Time
}

// NewLocal creates a LocalQueue. dlq may be nil to drop exhausted items
// after logging them.
func NewLocal(proc Processor, dlq store.DeadLetters, cfg LocalConfig) *LocalQueue {
	cfg = cfg.withDefaults()
	q := &LocalQueue{
		proc:     proc,
		dlq:      dlq,
		cfg:      cfg,
		ch:       make(chan string, cfg.Size),
		attempts: make(map[string]int),
		timers:   make(map[string]*time.Timer),
		nowFunc:  time.Now,
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Enqueue implements Dispatcher. Enqueueing an id already in flight is a
// no-op.
func (q *LocalQueue) Enqueue(_ context.Context, itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if _, ok := q.attempts[itemID]; ok {
		zap.L().Debug("queue: item already in flight", zap.String("item_id", itemID))
		return nil
	}

	select {
	case q.ch <- itemID:
		q.attempts[itemID] = 0
		return nil
	default:
		return eris.Wrapf(ErrQueueFull, "queue: enqueue %s", itemID)
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (q *LocalQueue) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			q.work(gctx, i)
			return nil
		})
	}
	err := g.Wait()

	q.mu.Lock()
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	// Undelivered ids stay non-terminal in the store.
	clear(q.attempts)
	q.idle.Broadcast()
	q.mu.Unlock()
	return err
}

func (q *LocalQueue) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.ch:
			q.deliver(ctx, worker, id)
		}
	}
}

func (q *LocalQueue) deliver(ctx context.Context, worker int, id string) {
	log := zap.L().With(zap.String("item_id", id), zap.Int("worker", worker))

	err := q.proc.Process(ctx, id)

	q.mu.Lock()
	attempt := q.attempts[id] + 1
	q.attempts[id] = attempt
	q.mu.Unlock()

	if err == nil {
		q.done(id)
		return
	}
	if ctx.Err() != nil {
		// Shutting down. The item keeps its non-terminal status in the store.
		log.Warn("queue: delivery interrupted", zap.Error(err))
		q.done(id)
		return
	}

	if attempt < q.cfg.MaxAttempts {
		delay := resilience.Backoff(attempt-1, resilience.RetryConfig{
			InitialBackoff: q.cfg.Backoff,
			MaxBackoff:     q.cfg.Backoff * 32,
			Multiplier:     2,
			JitterFraction: 0.1,
		})
		log.Warn("queue: delivery failed, redelivering",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		q.redeliver(id, delay)
		return
	}

	log.Error("queue: delivery attempts exhausted", zap.Int("attempts", attempt), zap.Error(err))
	if q.dlq != nil {
		entry := resilience.NewDLQEntry(id, err, q.cfg.MaxAttempts, q.nowFunc().UTC())
		if dlqErr := q.dlq.EnqueueDLQ(context.WithoutCancel(ctx), entry); dlqErr != nil {
			log.Error("queue: dead-letter failed", zap.Error(dlqErr))
		}
	}
	q.done(id)
}

func (q *LocalQueue) redeliver(id string, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.schedule(id, delay)
}

// schedule puts id back on the channel after delay. q.mu must be held.
func (q *LocalQueue) schedule(id string, delay time.Duration) {
	if q.closed {
		delete(q.attempts, id)
		q.idle.Broadcast()
		return
	}
	q.timers[id] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, id)
		if q.closed {
			return
		}
		select {
		case q.ch <- id:
		default:
			q.schedule(id, delay)
		}
	})
}

func (q *LocalQueue) done(id string) {
	q.mu.Lock()
	delete(q.attempts, id)
	q.idle.Broadcast()
	q.mu.Unlock()
}

// Pending returns the number of ids queued, running or awaiting redelivery.
func (q *LocalQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.attempts)
}

// Wait blocks until no ids are pending or ctx is done.
func (q *LocalQueue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.mu.Lock()
		for len(q.attempts) > 0 && ctx.Err() == nil {
			q.idle.Wait()
		}
		q.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Wake the waiter so it observes ctx and exits.
		q.mu.Lock()
		q.idle.Broadcast()
		q.mu.Unlock()
		return eris.Wrap(ctx.Err(), "queue: wait")
	}
}
