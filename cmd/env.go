package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/classify"
	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/db"
	"github.com/sells-group/arbitrage-cli/internal/inspect"
	"github.com/sells-group/arbitrage-cli/internal/locate"
	"github.com/sells-group/arbitrage-cli/internal/monitoring"
	"github.com/sells-group/arbitrage-cli/internal/pipeline"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/internal/route"
	"github.com/sells-group/arbitrage-cli/internal/scrape"
	"github.com/sells-group/arbitrage-cli/internal/store"
	"github.com/sells-group/arbitrage-cli/internal/valuation"
	anthropicpkg "github.com/sells-group/arbitrage-cli/pkg/anthropic"
	"github.com/sells-group/arbitrage-cli/pkg/geocode"
	"github.com/sells-group/arbitrage-cli/pkg/mapbox"
	"github.com/sells-group/arbitrage-cli/pkg/metals"
)

// initStore opens the configured store and applies its schema.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "arbitrage.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// appEnv holds the store and the assembled pipeline shared by commands.
type appEnv struct {
	Store  store.Store
	Guard  *resilience.Guard
	Driver *pipeline.Driver
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Collector returns a metrics collector over the store and breakers.
func (e *appEnv) Collector() *monitoring.Collector {
	return monitoring.NewCollector(e.Store, e.Guard.Breakers())
}

// Planner returns a route planner, or nil when Mapbox is not configured.
func (e *appEnv) Planner() *route.Planner {
	if cfg.Mapbox.Token == "" {
		return nil
	}
	client := mapbox.NewClient(cfg.Mapbox.Token,
		mapbox.WithBaseURL(cfg.Mapbox.BaseURL),
		mapbox.WithProfile(cfg.Mapbox.Profile),
	)
	return route.NewPlanner(e.Store, client, e.Guard)
}

// initEnv validates the config for mode, opens the store and, for modes
// that run the pipeline, builds the driver.
func initEnv(ctx context.Context, mode config.Mode) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &appEnv{Store: st, Guard: resilience.FromConfig(cfg.Resilience)}
	if runsPipeline(mode) {
		env.Driver = buildDriver(st, env.Guard)
	}
	return env, nil
}

func runsPipeline(mode config.Mode) bool {
	switch mode {
	case config.ModeProcess, config.ModeWorker:
		return true
	case config.ModeServe:
		return cfg.Queue.Driver == "local"
	}
	return false
}

// buildDriver wires every stage adapter from config.
func buildDriver(st store.Store, guard *resilience.Guard) *pipeline.Driver {
	ai := anthropicpkg.NewClient(cfg.Anthropic.Key)

	stages := pipeline.Stages{
		Fetcher:    scrape.NewFetcherFromConfig(cfg, guard),
		Classifier: classify.New(ai, cfg.Anthropic.TextModel, cfg.Anthropic.MaxTokens, classify.WithGuard(guard)),
		Resolver:   buildResolver(ai, guard),
		Inspector: inspect.New(ai, cfg.Anthropic.VisionModel, cfg.Anthropic.MaxTokens,
			time.Duration(cfg.Pipeline.ImageTimeoutSecs)*time.Second, guard),
		Valuator: valuation.NewSpotValuator(
			metals.NewClient(cfg.Metals.Key, metals.WithBaseURL(cfg.Metals.BaseURL)),
			cfg.Metals.Symbol,
			valuation.WithGuard(guard),
			valuation.WithPriceTTL(5*time.Minute),
			valuation.WithTimeout(time.Duration(cfg.Pipeline.ValuationTimeoutSecs)*time.Second),
		),
	}
	return pipeline.New(st, stages, pipeline.OptionsFromConfig(cfg.Pipeline)...)
}

func buildResolver(ai anthropicpkg.Client, guard *resilience.Guard) locate.Resolver {
	providers := []geocode.Provider{
		geocode.NewNominatim(cfg.Geocode.NominatimUserAgent,
			geocode.WithNominatimURL(cfg.Geocode.NominatimURL),
			geocode.WithNominatimRate(cfg.Geocode.RatePerSec),
		),
	}
	if cfg.Geocode.GoogleAPIKey != "" {
		providers = append(providers, geocode.NewGoogle(cfg.Geocode.GoogleAPIKey))
		zap.L().Info("google geocoding fallback enabled")
	}

	opts := []locate.Option{locate.WithGuard(guard)}
	if cfg.Geocode.CleanAddress {
		opts = append(opts, locate.WithCleanup(ai, cfg.Anthropic.AddressModel))
	}
	return locate.New(geocode.NewCached(geocode.NewCascade(providers...)), opts...)
}
