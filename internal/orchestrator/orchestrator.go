// Package orchestrator is the cron-facing driver: it fans enabled
// organizations out over a bounded pool of scrapes, isolates every failure,
// and reduces the results to one JSON summary and one exit code.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rescueradar/rescueradar/internal/config"
	"github.com/rescueradar/rescueradar/internal/fetch"
	"github.com/rescueradar/rescueradar/internal/metrics"
	"github.com/rescueradar/rescueradar/internal/orgconfig"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/types"
)

// ScrapeRunner runs one organization's scrape lifecycle. *scraper.Runner
// implements it.
type ScrapeRunner interface {
	Run(ctx context.Context, cfg *orgconfig.Config, adapter scraper.Adapter) (*scraper.RunStats, error)
}

// RunResult is one organization's outcome inside a batch run.
type RunResult struct {
	ConfigID        string  `json:"config_id"`
	Outcome         string  `json:"outcome"`
	DogsFound       int     `json:"dogs_found"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error,omitempty"`
}

// Failed reports whether the scrape counts against the exit code. A partial
// failure kept its data, so it does not.
func (r RunResult) Failed() bool {
	return r.Outcome == string(types.OutcomeFailure)
}

// Summary is the machine-readable batch report emitted on stdout.
type Summary struct {
	BatchComplete   bool        `json:"batch_complete"`
	Timestamp       string      `json:"timestamp"`
	TotalOrgs       int         `json:"total_orgs"`
	Successful      int         `json:"successful"`
	Failed          int         `json:"failed"`
	TotalDogsFound  int         `json:"total_dogs_found"`
	DurationSeconds float64     `json:"duration_seconds"`
	FailedOrgs      []string    `json:"failed_orgs"`
	OverallSuccess  bool        `json:"overall_success"`
	Results         []RunResult `json:"results,omitempty"`
}

// WriteJSON emits the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Orchestrator owns the batch run.
type Orchestrator struct {
	cfg     config.OrchestratorConfig
	runner  ScrapeRunner
	client  *fetch.Client
	browser *fetch.Browser
	metrics *metrics.Metrics
	logger  *slog.Logger

	// lookup is the registry resolution; tests override it.
	lookup func(key string) (scraper.Descriptor, scraper.Factory, error)
	now    func() time.Time
}

// New creates an Orchestrator. browser and metrics may be nil.
func New(cfg config.OrchestratorConfig, runner ScrapeRunner, client *fetch.Client, browser *fetch.Browser, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 4
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = 20 * time.Minute
	}
	return &Orchestrator{
		cfg:     cfg,
		runner:  runner,
		client:  client,
		browser: browser,
		metrics: m,
		logger:  logger.With("component", "orchestrator"),
		lookup:  scraper.Lookup,
		now:     time.Now,
	}
}

// ListEnabledOrganizations filters configs to active ones, sorted by slug.
func (o *Orchestrator) ListEnabledOrganizations(configs []*orgconfig.Config) []*orgconfig.Config {
	enabled := orgconfig.Enabled(configs)
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].ConfigID < enabled[j].ConfigID })
	return enabled
}

// RunOne runs a single organization under the per-scrape timeout. It never
// propagates an error or panic; everything becomes a RunResult.
func (o *Orchestrator) RunOne(ctx context.Context, cfg *orgconfig.Config) (res RunResult) {
	start := o.now()
	res.ConfigID = cfg.ConfigID
	res.Outcome = string(types.OutcomeFailure)

	defer func() {
		if rec := recover(); rec != nil {
			res.Error = fmt.Sprintf("panic: %v", rec)
			o.logger.Error("scrape panicked", "org", cfg.ConfigID, "panic", rec)
		}
		res.DurationSeconds = o.now().Sub(start).Seconds()
	}()

	_, factory, err := o.lookup(cfg.AdapterKey())
	if err != nil {
		res.Error = err.Error()
		o.logger.Error("adapter lookup failed", "org", cfg.ConfigID, "error", err)
		return res
	}

	var client *fetch.Client
	if o.client != nil {
		client = o.client.ForOrg(cfg.Delay())
	}
	adapter := factory(scraper.Env{
		Client:  client,
		Browser: o.browser,
		Config:  cfg,
		Logger:  o.logger.With("adapter", cfg.AdapterKey()),
	})

	scrapeCtx, cancel := context.WithTimeout(ctx, o.cfg.ScrapeTimeout)
	defer cancel()

	if o.metrics != nil {
		o.metrics.ScrapeStarted()
	}
	stats, err := o.runner.Run(scrapeCtx, cfg, adapter)
	if stats != nil {
		res.Outcome = string(stats.Outcome)
		res.DogsFound = stats.DogsFound
	}
	if err != nil {
		res.Error = err.Error()
	}
	if o.metrics != nil {
		var added, updated, unchanged, failures int
		if stats != nil && stats.Log != nil {
			added = stats.Log.DogsAdded
			updated = stats.Log.DogsUpdated
			unchanged = stats.Log.DogsUnchanged
			failures = stats.Log.ProcessingFailures
		}
		o.metrics.ScrapeFinished(cfg.ConfigID, res.Outcome, o.now().Sub(start),
			res.DogsFound, added, updated, unchanged, failures)
	}
	return res
}

// RunAll fans the configs out under the parallelism bound. A cancelled ctx
// (signal) stops admitting new scrapes; in-flight ones run to their timeout.
func (o *Orchestrator) RunAll(ctx context.Context, configs []*orgconfig.Config) *Summary {
	start := o.now()
	enabled := o.ListEnabledOrganizations(configs)

	summary := &Summary{
		TotalOrgs:  len(enabled),
		FailedOrgs: []string{},
	}

	sem := semaphore.NewWeighted(int64(o.cfg.MaxParallel))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	o.logger.Info("batch run starting",
		"orgs", len(enabled), "parallel", o.cfg.MaxParallel)

	for _, cfg := range enabled {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Shutdown requested: the remaining orgs count as failed so the
			// summary never claims a clean run it did not do.
			mu.Lock()
			summary.Failed++
			summary.FailedOrgs = append(summary.FailedOrgs, cfg.ConfigID)
			summary.Results = append(summary.Results, RunResult{
				ConfigID: cfg.ConfigID,
				Outcome:  string(types.OutcomeFailure),
				Error:    "shutdown before start",
			})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(cfg *orgconfig.Config) {
			defer wg.Done()
			defer sem.Release(1)

			// The scrape context survives the admission context so in-flight
			// scrapes drain gracefully on shutdown.
			res := o.RunOne(context.WithoutCancel(ctx), cfg)

			mu.Lock()
			defer mu.Unlock()
			summary.Results = append(summary.Results, res)
			summary.TotalDogsFound += res.DogsFound
			if res.Failed() {
				summary.Failed++
				summary.FailedOrgs = append(summary.FailedOrgs, res.ConfigID)
			} else {
				summary.Successful++
			}
		}(cfg)
	}
	wg.Wait()

	sort.Strings(summary.FailedOrgs)
	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].ConfigID < summary.Results[j].ConfigID
	})

	summary.BatchComplete = true
	summary.Timestamp = o.now().UTC().Format(time.RFC3339)
	summary.DurationSeconds = o.now().Sub(start).Seconds()
	summary.OverallSuccess = summary.Failed == 0

	o.logger.Info("batch run finished",
		"successful", summary.Successful,
		"failed", summary.Failed,
		"total_dogs_found", summary.TotalDogsFound,
		"duration_seconds", summary.DurationSeconds,
	)
	return summary
}
