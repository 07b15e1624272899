package valuation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/pkg/metals"
)

// Valuator appraises an item from its weight and purity.
type Valuator interface {
	Valuate(ctx context.Context, weightGrams, purity, purchasePrice float64) (*model.Valuation, error)
}

// Option configures a SpotValuator.
type Option func(*SpotValuator)

// WithGuard routes price lookups through a resilience guard.
func WithGuard(g *resilience.Guard) Option {
	return func(v *SpotValuator) { v.guard = g }
}

// WithPriceTTL reuses a fetched spot price for ttl.
func WithPriceTTL(ttl time.Duration) Option {
	return func(v *SpotValuator) { v.ttl = ttl }
}

// WithTimeout bounds each price lookup.
func WithTimeout(d time.Duration) Option {
	return func(v *SpotValuator) { v.timeout = d }
}

// SpotValuator values items at the current spot price.
type SpotValuator struct {
	client  metals.Client
	symbol  string
	guard   *resilience.Guard
	ttl     time.Duration
	timeout time.Duration
	nowFunc func() time.Time

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
}

// NewSpotValuator creates a SpotValuator for symbol (default "XAG").
func NewSpotValuator(client metals.Client, symbol string, opts ...Option) *SpotValuator {
	if symbol == "" {
		symbol = "XAG"
	}
	v := &SpotValuator{client: client, symbol: symbol, nowFunc: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Valuate implements Valuator.
func (v *SpotValuator) Valuate(ctx context.Context, weightGrams, purity, purchasePrice float64) (*model.Valuation, error) {
	if weightGrams < 0 || purity < 0 || purity > 1 {
		return nil, eris.Errorf("valuation: invalid weight %.3f or purity %.3f", weightGrams, purity)
	}

	spot, err := v.spotPrice(ctx)
	if err != nil {
		return nil, err
	}

	val := Calculate(spot, weightGrams, purity, purchasePrice)
	zap.L().Debug("valuation: computed",
		zap.Float64("spot", spot),
		zap.Float64("silver_value", val.SilverValue),
		zap.Float64("max_buy", val.MaxBuyPrice),
	)
	return &val, nil
}

func (v *SpotValuator) spotPrice(ctx context.Context) (float64, error) {
	if v.ttl > 0 {
		v.mu.Lock()
		if v.price > 0 && v.nowFunc().Sub(v.fetchedAt) < v.ttl {
			p := v.price
			v.mu.Unlock()
			return p, nil
		}
		v.mu.Unlock()
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	price, err := resilience.Call(ctx, v.guard, "metals", func(ctx context.Context) (float64, error) {
		p, err := v.client.SpotPrice(ctx, v.symbol)
		var se *metals.StatusError
		if errors.As(err, &se) {
			return 0, resilience.StatusError("metals", se.StatusCode, se.Body)
		}
		return p, err
	})
	if err != nil {
		return 0, eris.Wrap(err, "valuation: spot price")
	}

	v.mu.Lock()
	v.price = price
	v.fetchedAt = v.nowFunc()
	v.mu.Unlock()
	return price, nil
}
