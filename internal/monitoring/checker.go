package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/config"
)

// Checker evaluates alert thresholds on a fixed interval and posts what it
// finds. An alert type that fired within the repeat window is held back so
// a condition that persists across ticks notifies once.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	repeat    time.Duration

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
	nowFunc  func() time.Time
}

// NewChecker creates a Checker. A zero interval means five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		repeat:    time.Duration(cfg.RepeatAfterSecs) * time.Second,
		lastSent:  make(map[AlertType]time.Time),
		nowFunc:   time.Now,
	}
}

// Run checks once immediately and then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", c.interval),
		zap.Duration("repeat_after", c.repeat),
	)

	c.Check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects a snapshot, drops alerts still inside their repeat window
// and sends the rest. It returns the number of alerts that were not
// suppressed.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		zap.L().Error("monitoring: collect snapshot failed", zap.Error(err))
		return 0
	}

	fresh := c.suppressRepeats(c.alerter.Evaluate(snap))
	if len(fresh) == 0 {
		return 0
	}

	for _, a := range fresh {
		zap.L().Warn("monitoring: alert",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("message", a.Message),
		)
	}
	c.alerter.SendAlerts(ctx, fresh)
	return len(fresh)
}

func (c *Checker) suppressRepeats(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	out := alerts[:0]
	for _, a := range alerts {
		if last, ok := c.lastSent[a.Type]; ok && c.repeat > 0 && now.Sub(last) < c.repeat {
			continue
		}
		c.lastSent[a.Type] = now
		out = append(out, a)
	}
	return out
}
