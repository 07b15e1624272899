// Package pipeline drives a discovered item through scraping, text
// classification, geocoding, image inspection and valuation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/classify"
	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/inspect"
	"github.com/sells-group/arbitrage-cli/internal/locate"
	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/scrape"
	"github.com/sells-group/arbitrage-cli/internal/store"
	"github.com/sells-group/arbitrage-cli/internal/valuation"
)

// placeholderPurchasePrice is used until asking prices are captured at
// discovery time.
const placeholderPurchasePrice = 0

// ItemStore is the slice of the store the driver needs.
type ItemStore interface {
	store.ItemReader
	store.ItemWriter
}

// Fetcher extracts listing content. It reports failure as empty content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) scrape.Content
}

// Stages bundles the external adapters, one per stage.
type Stages struct {
	Fetcher    Fetcher
	Classifier classify.Classifier
	Resolver   locate.Resolver
	Inspector  inspect.Inspector
	Valuator   valuation.Valuator
}

// Driver runs the discovery state machine for one item at a time.
type Driver struct {
	store            ItemStore
	stages           Stages
	imageConcurrency int
	itemTimeout      time.Duration
}

// Option configures a Driver.
type Option func(*Driver)

// WithImageConcurrency bounds parallel image inspections per item.
func WithImageConcurrency(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.imageConcurrency = n
		}
	}
}

// WithItemTimeout bounds the adapter calls of a single run. Zero disables it.
func WithItemTimeout(t time.Duration) Option {
	return func(d *Driver) { d.itemTimeout = t }
}

// New creates a Driver.
func New(st ItemStore, stages Stages, opts ...Option) *Driver {
	d := &Driver{store: st, stages: stages, imageConcurrency: 4}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OptionsFromConfig maps the pipeline config section to driver options.
func OptionsFromConfig(cfg config.PipelineConfig) []Option {
	return []Option{
		WithImageConcurrency(cfg.ImageConcurrency),
		WithItemTimeout(time.Duration(cfg.ItemTimeoutSecs) * time.Second),
	}
}

// Process runs every stage for the item with the given id. Business failures
// end in a terminal status and a nil error. An error is returned only when
// the record could not be read or written, so the dispatcher can redeliver.
func (d *Driver) Process(ctx context.Context, id string) (err error) {
	log := zap.L().With(zap.String("item_id", id))

	item, err := d.store.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Error("pipeline: item not found")
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "pipeline: load item %s", id)
	}

	log = log.With(zap.String("url", item.SourceURL))
	log.Info("pipeline: starting discovery")
	item.ResetOutputs()

	stageCtx := ctx
	if d.itemTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, d.itemTimeout)
		defer cancel()
	}

	run := &run{
		driver: d,
		item:   item,
		log:    log,
		ctx:    ctx,
		stage:  stageCtx,
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Error("pipeline: unexpected failure",
			zap.String("status", string(item.Status)),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
		err = run.finish(model.StatusFailed)
	}()

	return run.execute()
}

// run carries the state of one Process invocation.
type run struct {
	driver *Driver
	item   *model.Item
	log    *zap.Logger
	// ctx is used for store writes so a stage deadline never blocks the
	// final status from being recorded.
	ctx   context.Context
	stage context.Context
}

func (r *run) execute() error {
	st := r.driver.stages

	// 1. Scrape. The only fatal stage.
	if err := r.advance(model.StatusScraping); err != nil {
		return err
	}
	var content scrape.Content
	r.track("scrape", func() (string, error) {
		content = st.Fetcher.Fetch(r.stage, r.item.SourceURL)
		return fmt.Sprintf("%d chars, %d images via %s", len(content.Text), len(content.ImageURLs), content.Source), nil
	})
	if content.Text == "" {
		r.log.Error("pipeline: no content extracted")
		return r.finish(model.StatusFailedScraping)
	}
	r.item.Description = content.Text
	r.item.ImageURLs = content.ImageURLs

	// 2. Classify. Failures leave score and extractions unset.
	if err := r.advance(model.StatusAnalyzingText); err != nil {
		return err
	}
	var cls model.Classification
	r.track("classify", func() (string, error) {
		var err error
		cls, err = st.Classifier.Classify(r.stage, r.item.Description)
		if err != nil {
			cls = model.Classification{}
			return "", err
		}
		score := cls.Score
		r.item.Score = &score
		r.item.Reasoning = cls.Reasoning
		return fmt.Sprintf("score %d", score), nil
	})

	// 3. Geocode when the classifier found an address.
	if cls.Address.Usable() {
		if err := r.advance(model.StatusGeocoding); err != nil {
			return err
		}
		r.track("geocode", func() (string, error) {
			loc, err := st.Resolver.Resolve(r.stage, cls.Address.Value)
			if err != nil {
				return "", err
			}
			if !loc.Matched {
				return "unresolved", nil
			}
			r.item.SetLocation(loc.Latitude, loc.Longitude)
			return loc.FormattedAddress, nil
		})
	}

	// 4. Inspect every image.
	if len(r.item.ImageURLs) > 0 {
		if err := r.advance(model.StatusAnalyzingImages); err != nil {
			return err
		}
		r.track("inspect_images", func() (string, error) {
			r.item.ImageAnalyses = r.inspectImages(r.item.ImageURLs)
			failed := 0
			for _, a := range r.item.ImageAnalyses {
				if a.Failed() {
					failed++
				}
			}
			return fmt.Sprintf("%d images, %d failed", len(r.item.ImageAnalyses), failed), nil
		})
	}

	// 5. Value the silver when weight and purity are known.
	if cls.Valuable() {
		if err := r.advance(model.StatusCalculatingROI); err != nil {
			return err
		}
		r.track("valuate", func() (string, error) {
			val, err := st.Valuator.Valuate(r.stage, *cls.WeightGrams, *cls.Purity, placeholderPurchasePrice)
			if err != nil {
				return "", err
			}
			r.item.Valuation = val
			return fmt.Sprintf("max buy %.2f", val.MaxBuyPrice), nil
		})
	}

	return r.finish(model.StatusCompleted)
}

// advance records the next status before the stage's side effects run.
func (r *run) advance(status model.ItemStatus) error {
	r.item.Status = status
	if err := r.driver.store.SaveItem(r.ctx, r.item); err != nil {
		return eris.Wrapf(err, "pipeline: persist status %s", status)
	}
	return nil
}

// finish records a terminal status.
func (r *run) finish(status model.ItemStatus) error {
	if err := r.advance(status); err != nil {
		return err
	}
	r.log.Info("pipeline: discovery finished", zap.String("status", string(status)))
	return nil
}

// track runs one stage, logging its duration and outcome. Stage errors are
// degrading: they are logged and swallowed.
func (r *run) track(stage string, fn func() (string, error)) {
	start := time.Now()
	detail, err := fn()
	duration := time.Since(start).Milliseconds()

	if err != nil {
		r.log.Warn("pipeline: stage failed",
			zap.String("stage", stage),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return
	}
	r.log.Info("pipeline: stage complete",
		zap.String("stage", stage),
		zap.Int64("duration_ms", duration),
		zap.String("detail", detail),
	)
}
