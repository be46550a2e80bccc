// Package rescueradar wires the scrape engine into one embeddable unit.
//
// Example usage:
//
//	cfg, _ := config.Load("")
//	app, err := rescueradar.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//
//	orgs, _ := app.LoadOrgs("")
//	summary := app.RunAll(ctx, orgs)
//
// The CLI is a thin shell over this package; anything it can do, an embedding
// program can do directly.
package rescueradar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rescueradar/rescueradar/internal/adoption"
	"github.com/rescueradar/rescueradar/internal/batch"
	"github.com/rescueradar/rescueradar/internal/config"
	"github.com/rescueradar/rescueradar/internal/database"
	"github.com/rescueradar/rescueradar/internal/enrichment"
	"github.com/rescueradar/rescueradar/internal/fetch"
	"github.com/rescueradar/rescueradar/internal/images"
	"github.com/rescueradar/rescueradar/internal/logging"
	"github.com/rescueradar/rescueradar/internal/metrics"
	"github.com/rescueradar/rescueradar/internal/orchestrator"
	"github.com/rescueradar/rescueradar/internal/orgconfig"
	"github.com/rescueradar/rescueradar/internal/quality"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/session"
	"github.com/rescueradar/rescueradar/internal/standardize"
	"github.com/rescueradar/rescueradar/internal/store"
	"github.com/rescueradar/rescueradar/internal/telemetry"
)

// standardizerCacheSize bounds the breed/age memoization cache.
const standardizerCacheSize = 2048

// Option customizes App construction.
type Option func(*App)

// WithLogger substitutes the root logger built from config.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithBrowser enables the shared headless browser for adapters that need
// rendered pages. Without it those adapters fail their scrape with a setup
// error; everything else runs normally.
func WithBrowser(opts fetch.BrowserOptions) Option {
	return func(a *App) { a.browser = fetch.NewBrowser(opts, a.logger) }
}

// WithRewriter substitutes the enrichment LLM, for embedding programs that
// bring their own.
func WithRewriter(rw enrichment.Rewriter) Option {
	return func(a *App) { a.rewriter = rw }
}

// App is the assembled engine: pool, store, fetcher, runner, orchestrator,
// telemetry. Construct with New, release with Close.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool      *database.Pool
	store     *store.Store
	client    *fetch.Client
	browser   *fetch.Browser
	sink      *telemetry.Sink
	metrics   *metrics.Metrics
	runner    *scraper.Runner
	orch      *orchestrator.Orchestrator
	rewriter  enrichment.Rewriter
	detector  *adoption.Detector
	qualityMo *quality.Monitor
}

// New connects to the database and assembles the engine.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	app := &App{cfg: cfg}
	app.logger = logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Environment: cfg.Environment,
	})
	for _, opt := range opts {
		opt(app)
	}

	sink, err := telemetry.New(cfg.Telemetry, cfg.Environment, app.logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	app.sink = sink
	app.metrics = metrics.New(cfg.Metrics, app.logger)

	pool, err := database.New(ctx, cfg.Database, app.logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	app.pool = pool
	app.store = store.New(pool.Pgx(), app.logger)

	app.client = fetch.New(cfg.Fetch, app.logger)

	std := standardize.New(standardizerCacheSize)
	verifier := images.New(app.client, cfg.Fetch.DetailPoolSize, app.logger)
	guard := session.GuardConfig{
		HistoryWindow:     cfg.Reconcile.HistoryWindow,
		ThresholdFraction: cfg.Reconcile.ThresholdFraction,
		AbsoluteFloor:     cfg.Reconcile.AbsoluteFloor,
	}
	app.runner = scraper.NewRunner(app.store, pool.Pgx(), std, app.sink, verifier, guard, app.logger)
	app.orch = orchestrator.New(cfg.Orchestrator, app.runner, app.client, app.browser, app.metrics, app.logger)

	app.detector = adoption.New(app.store.Animals, app.client, app.logger)
	app.qualityMo = quality.NewMonitor(app.store, app.logger)

	return app, nil
}

// Logger exposes the root logger for embedding programs.
func (a *App) Logger() *slog.Logger { return a.logger }

// Store exposes the table gateways.
func (a *App) Store() *store.Store { return a.store }

// LoadOrgs reads the per-organization YAML files. An empty dir uses the
// configured directory.
func (a *App) LoadOrgs(dir string) ([]*orgconfig.Config, error) {
	if dir == "" {
		dir = a.cfg.Orchestrator.ConfigDir
	}
	return orgconfig.LoadDir(dir)
}

// RunAll scrapes every enabled organization under the parallelism bound.
func (a *App) RunAll(ctx context.Context, configs []*orgconfig.Config) *orchestrator.Summary {
	return a.orch.RunAll(ctx, configs)
}

// RunOne scrapes a single organization.
func (a *App) RunOne(ctx context.Context, cfg *orgconfig.Config) orchestrator.RunResult {
	return a.orch.RunOne(ctx, cfg)
}

// EnabledOrgs filters and sorts the enabled organizations.
func (a *App) EnabledOrgs(configs []*orgconfig.Config) []*orgconfig.Config {
	return a.orch.ListEnabledOrganizations(configs)
}

// CheckAdoptions re-checks long-missing animals for one organization.
func (a *App) CheckAdoptions(ctx context.Context, cfg *orgconfig.Config) (*adoption.Report, error) {
	org, err := a.store.Organizations.GetByConfigID(ctx, cfg.ConfigID)
	if err != nil {
		return nil, err
	}
	return a.detector.Run(ctx, org.ID, cfg)
}

// Enrich rewrites up to limit raw descriptions through the configured LLM.
func (a *App) Enrich(ctx context.Context, limit int) (*enrichment.Report, error) {
	rw := a.rewriter
	if rw == nil {
		var err error
		rw, err = enrichment.NewAnthropicRewriter(a.cfg.Enrichment)
		if err != nil {
			return nil, err
		}
	}
	proc := batch.New(a.pool.Pgx(), batch.Config{
		BatchSize:       a.cfg.Enrichment.BatchSize,
		MaxRetries:      3,
		RetryDelay:      time.Second,
		CommitFrequency: 5,
	}, a.logger)
	svc := enrichment.New(a.store.Animals, rw, proc, a.sink, a.cfg.Enrichment, a.logger)
	return svc.Run(ctx, limit)
}

// Quality scores stored animals, for every active org or a single one.
func (a *App) Quality(ctx context.Context, configID string) (*quality.Report, error) {
	return a.qualityMo.Run(ctx, configID)
}

// Close flushes telemetry and releases the pool and browser. Safe after a
// partially failed New.
func (a *App) Close() {
	if a.sink != nil {
		a.sink.Flush(2 * time.Second)
	}
	if a.metrics != nil {
		_ = a.metrics.Shutdown(context.Background())
	}
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.logger.Warn("browser close failed", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
