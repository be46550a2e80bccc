package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rescueradar/rescueradar/internal/batch"
	"github.com/rescueradar/rescueradar/internal/filtering"
	"github.com/rescueradar/rescueradar/internal/images"
	"github.com/rescueradar/rescueradar/internal/orgconfig"
	"github.com/rescueradar/rescueradar/internal/progress"
	"github.com/rescueradar/rescueradar/internal/quality"
	"github.com/rescueradar/rescueradar/internal/session"
	"github.com/rescueradar/rescueradar/internal/standardize"
	"github.com/rescueradar/rescueradar/internal/store"
	"github.com/rescueradar/rescueradar/internal/types"
)

// OrganizationStore resolves the database row for a configured source.
type OrganizationStore interface {
	Ensure(ctx context.Context, configID, name, websiteURL string, active bool) (*types.Organization, error)
}

// ScrapeLogStore opens and closes scrape log rows.
type ScrapeLogStore interface {
	Start(ctx context.Context, orgID int64, correlationID string) (int64, error)
	Complete(ctx context.Context, log *types.ScrapeLog) error
	RecentFoundCounts(ctx context.Context, orgID int64, n int) ([]int, error)
}

// AnimalStore is the slice of the animal gateway the Runner drives.
type AnimalStore interface {
	StoredAdoptionURLs(ctx context.Context, orgID int64) (map[string]struct{}, error)
	ContentHashes(ctx context.Context, orgID int64) (map[string]string, error)
	Reconcile(ctx context.Context, orgID int64, seen []string, applyAbsence bool) (store.ReconcileResult, error)
	UpsertSQL(a *types.Animal) (string, []any)
}

// ImageStore renders image metadata statements.
type ImageStore interface {
	UpsertSQL(img *types.AnimalImage) (string, []any)
}

// BatchProcessor commits rendered statements in transactional windows.
type BatchProcessor interface {
	Process(ctx context.Context, items []batch.Item, render batch.RenderFunc, progress batch.ProgressFunc) (*batch.Result, error)
}

// ImageVerifier checks candidate image URLs. nil disables verification.
type ImageVerifier interface {
	Verify(ctx context.Context, orgID int64, candidates []images.Candidate) []*types.AnimalImage
}

// Stores bundles the gateways the Runner needs. Filled from *store.Store in
// production; tests substitute fakes per field.
type Stores struct {
	Orgs    OrganizationStore
	Logs    ScrapeLogStore
	Animals AnimalStore
	Images  ImageStore
}

// FromStore adapts the production store bundle.
func FromStore(st *store.Store) Stores {
	return Stores{
		Orgs:    st.Organizations,
		Logs:    st.ScrapeLogs,
		Animals: st.Animals,
		Images:  st.Images,
	}
}

// Runner drives the shared scrape lifecycle for every adapter.
type Runner struct {
	stores       Stores
	standardizer *standardize.Standardizer
	alerter      session.Alerter
	verifier     ImageVerifier
	guard        session.GuardConfig
	logger       *slog.Logger

	// newBatch builds the per-scrape processor; tests inject a fake.
	newBatch func(cfg batch.Config) BatchProcessor
}

// NewRunner wires a Runner over the production store. db is the pool the
// batch processor opens transactions on.
func NewRunner(st *store.Store, db batch.Beginner, std *standardize.Standardizer, alerter session.Alerter, verifier ImageVerifier, guard session.GuardConfig, logger *slog.Logger) *Runner {
	r := &Runner{
		stores:       FromStore(st),
		standardizer: std,
		alerter:      alerter,
		verifier:     verifier,
		guard:        guard,
		logger:       logger.With("component", "scraper"),
	}
	r.newBatch = func(cfg batch.Config) BatchProcessor {
		return batch.New(db, cfg, logger)
	}
	return r
}

// RunStats is what one completed scrape reports upward.
type RunStats struct {
	ConfigID  string
	Outcome   types.Outcome
	DogsFound int
	Log       *types.ScrapeLog
}

// Run executes the full lifecycle for one organization. A returned error is
// always a *types.ScrapeError; the scrape log is completed in every path
// where it was opened.
func (r *Runner) Run(ctx context.Context, cfg *orgconfig.Config, adapter Adapter) (*RunStats, error) {
	logger := r.logger.With("org", cfg.ConfigID)
	started := time.Now()

	org, err := r.stores.Orgs.Ensure(ctx, cfg.ConfigID, cfg.Name, cfg.Metadata.WebsiteURL, cfg.Active)
	if err != nil {
		return nil, r.fail(cfg.ConfigID, types.KindFatalSetup, err)
	}

	correlationID := uuid.NewString()
	logID, err := r.stores.Logs.Start(ctx, org.ID, correlationID)
	if err != nil {
		return nil, r.fail(cfg.ConfigID, types.KindFatalSetup, err)
	}

	logRow := &types.ScrapeLog{
		ID:             logID,
		OrganizationID: org.ID,
		CorrelationID:  correlationID,
		StartedAt:      started,
	}
	logger = logger.With("correlation_id", correlationID)
	logger.Info("scrape starting")

	sess := session.New(org.ID, cfg.ConfigID, r.stores.Animals, r.stores.Logs, r.alerter, r.guard, logger)

	// Collection phase. A failed or panicking collect closes the log as a
	// failure with no counter transitions.
	collectStart := time.Now()
	raw, err := safeCollect(ctx, adapter)
	logRow.CollectionSeconds = time.Since(collectStart).Seconds()
	if err != nil {
		return r.complete(ctx, logRow, cfg.ConfigID, types.OutcomeFailure, started, 0, err, logger)
	}

	raw = normalize(raw, logger)

	tracker := progress.New(len(raw), cfg.Scraper.BatchSize, logger)
	tracker.StartPhase("processing")
	processStart := time.Now()

	filter := filtering.New(sess, r.stores.Animals, org.ID, cfg.Scraper.SkipExistingAnimals, logger)
	filter.RecordAllFound(raw)
	kept, err := filter.FilterNew(ctx, raw)
	if err != nil {
		return r.complete(ctx, logRow, cfg.ConfigID, types.OutcomeFailure, started, 0, err, logger)
	}
	logRow.DogsFound = filter.EffectiveFoundCount(len(kept))
	logRow.DogsSkipped = filter.Stats().Skipped

	hashes, err := r.stores.Animals.ContentHashes(ctx, org.ID)
	if err != nil {
		return r.complete(ctx, logRow, cfg.ConfigID, types.OutcomeFailure, started, logRow.DogsFound, err, logger)
	}

	animals, dropped := r.buildAnimals(org.ID, kept, hashes, tracker, logger)
	logRow.ProcessingFailures += dropped

	proc := r.newBatch(batch.Config{
		BatchSize:       cfg.Scraper.BatchSize,
		MaxRetries:      cfg.Scraper.MaxRetries,
		RetryDelay:      time.Second,
		CommitFrequency: 5,
	})

	upsertRes, err := proc.Process(ctx, animalItems(animals), r.renderAnimal, func(done, total int) {
		tracker.Advance(done - tracker.Processed())
	})
	if err != nil {
		return r.complete(ctx, logRow, cfg.ConfigID, types.OutcomeFailure, started, logRow.DogsFound, err, logger)
	}
	logRow.ProcessingFailures += len(upsertRes.Errors)
	countOutcomes(logRow, tracker)

	// Image metadata rides a second pass through the same processor.
	imageRows := r.imageRows(ctx, org.ID, cfg, kept, tracker)
	if len(imageRows) > 0 {
		imgRes, err := proc.Process(ctx, imageItems(imageRows), r.renderImage, nil)
		if err != nil {
			return r.complete(ctx, logRow, cfg.ConfigID, types.OutcomeFailure, started, logRow.DogsFound, err, logger)
		}
		logRow.ProcessingFailures += len(imgRes.Errors)
	}
	for _, img := range imageRows {
		if img.Verified || img.CheckedAt == nil {
			logRow.ImagesUploaded++
		} else {
			logRow.ImagesFailed++
		}
	}

	closeRes, err := sess.Close(ctx)
	if err != nil {
		return r.complete(ctx, logRow, cfg.ConfigID, types.OutcomeFailure, started, logRow.DogsFound, err, logger)
	}

	tracker.EndPhase()
	logRow.ProcessingSeconds = time.Since(processStart).Seconds()
	logRow.DataQualityScore = quality.Average(animals)
	tracker.Finish()

	return r.complete(ctx, logRow, cfg.ConfigID, closeRes.Outcome, started, logRow.DogsFound, nil, logger)
}

// renderAnimal is the batch RenderFunc for animal upserts.
func (r *Runner) renderAnimal(item batch.Item) (string, []any, error) {
	a, ok := item.Payload.(*types.Animal)
	if !ok {
		return "", nil, fmt.Errorf("unexpected payload %T", item.Payload)
	}
	sql, args := r.stores.Animals.UpsertSQL(a)
	return sql, args, nil
}

// renderImage is the batch RenderFunc for image metadata rows.
func (r *Runner) renderImage(item batch.Item) (string, []any, error) {
	img, ok := item.Payload.(*types.AnimalImage)
	if !ok {
		return "", nil, fmt.Errorf("unexpected payload %T", item.Payload)
	}
	sql, args := r.stores.Images.UpsertSQL(img)
	return sql, args, nil
}

// fail wraps a pre-log failure; there is no scrape log to complete yet.
func (r *Runner) fail(configID string, kind types.Kind, err error) error {
	return &types.ScrapeError{Kind: kind, ConfigID: configID, Err: err}
}

// complete closes the scrape log exactly once and shapes the return values.
func (r *Runner) complete(ctx context.Context, logRow *types.ScrapeLog, configID string, outcome types.Outcome, started time.Time, found int, cause error, logger *slog.Logger) (*RunStats, error) {
	logRow.Outcome = outcome
	logRow.DurationSeconds = time.Since(started).Seconds()
	if cause != nil {
		logRow.ErrorDetail = cause.Error()
	}

	// Completion must survive a cancelled scrape context.
	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.stores.Logs.Complete(completeCtx, logRow); err != nil {
		logger.Error("failed to complete scrape log", "error", err)
	}

	stats := &RunStats{
		ConfigID:  configID,
		Outcome:   outcome,
		DogsFound: found,
		Log:       logRow,
	}
	if cause != nil {
		logger.Error("scrape failed",
			"outcome", outcome, "kind", types.KindOf(cause), "error", cause)
		return stats, &types.ScrapeError{Kind: types.KindOf(cause), ConfigID: configID, Err: cause}
	}

	logger.Info("scrape complete",
		"outcome", outcome,
		"found", logRow.DogsFound,
		"added", logRow.DogsAdded,
		"updated", logRow.DogsUpdated,
		"unchanged", logRow.DogsUnchanged,
		"duration_seconds", logRow.DurationSeconds,
	)
	return stats, nil
}

// safeCollect invokes the adapter with a panic guard. Adapters may not crash
// a scrape; a panic becomes an ordinary failed collection.
func safeCollect(ctx context.Context, adapter Adapter) (raw []*types.RawAnimal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("adapter panic: %v", rec)
		}
	}()
	return adapter.CollectData(ctx)
}

// normalize trims every string field, drops items with no usable identity,
// and dedupes by external id within the run.
func normalize(raw []*types.RawAnimal, logger *slog.Logger) []*types.RawAnimal {
	seen := make(map[string]struct{}, len(raw))
	out := raw[:0:0]
	for _, item := range raw {
		if item == nil {
			continue
		}
		item.ExternalID = strings.TrimSpace(item.ExternalID)
		item.Name = strings.TrimSpace(item.Name)
		item.AdoptionURL = strings.TrimSpace(item.AdoptionURL)
		item.PrimaryImageURL = strings.TrimSpace(item.PrimaryImageURL)
		item.Breed = strings.TrimSpace(item.Breed)
		item.AgeText = strings.TrimSpace(item.AgeText)
		item.Sex = strings.TrimSpace(item.Sex)
		item.Size = strings.TrimSpace(item.Size)

		if item.ExternalID == "" && item.AdoptionURL == "" {
			continue
		}
		if item.ExternalID != "" {
			if _, dup := seen[item.ExternalID]; dup {
				logger.Debug("duplicate external id dropped", "external_id", item.ExternalID)
				continue
			}
			seen[item.ExternalID] = struct{}{}
		}
		out = append(out, item)
	}
	return out
}

// buildAnimals validates, standardizes, and classifies each kept item.
// Validation failures drop the item and are counted, never fatal.
func (r *Runner) buildAnimals(orgID int64, kept []*types.RawAnimal, hashes map[string]string, tracker *progress.Tracker, logger *slog.Logger) ([]*types.Animal, int) {
	animals := make([]*types.Animal, 0, len(kept))
	dropped := 0
	for _, raw := range kept {
		if err := raw.Validate(); err != nil {
			dropped++
			tracker.Record(progress.OpItemsDropped, 1)
			logger.Warn("item failed validation", "external_id", raw.ExternalID, "error", err)
			continue
		}

		std := r.standardizer.Standardize(raw)
		a := &types.Animal{
			OrganizationID:  orgID,
			ExternalID:      raw.ExternalID,
			AdoptionURL:     raw.AdoptionURL,
			Name:            raw.Name,
			Breed:           raw.Breed,
			AgeText:         raw.AgeText,
			Gender:          raw.Sex,
			Size:            raw.Size,
			PrimaryImageURL: raw.PrimaryImageURL,
			Properties:      raw.Properties,
			Status:          types.StatusAvailable,
		}
		standardize.Apply(a, std)
		if raw.Description != "" {
			a.Properties = withProperty(a.Properties, "description", raw.Description)
		}
		if len(raw.ImageURLs) > 0 {
			a.Properties = withProperty(a.Properties, "image_urls", raw.ImageURLs)
		}
		a.ContentHash = a.Fingerprint()
		animals = append(animals, a)
	}

	// Classify against the stored hashes before the batch runs.
	for _, a := range animals {
		prev, exists := hashes[a.ExternalID]
		switch {
		case !exists:
			tracker.Record(progress.OpAnimalsAdded, 1)
		case prev != a.ContentHash:
			tracker.Record(progress.OpAnimalsUpdated, 1)
		default:
			tracker.Record(progress.OpAnimalsUnchanged, 1)
		}
	}
	return animals, dropped
}

func withProperty(props map[string]any, key string, value any) map[string]any {
	if props == nil {
		props = make(map[string]any)
	}
	props[key] = value
	return props
}

func countOutcomes(logRow *types.ScrapeLog, tracker *progress.Tracker) {
	logRow.DogsAdded = tracker.Count(progress.OpAnimalsAdded)
	logRow.DogsUpdated = tracker.Count(progress.OpAnimalsUpdated)
	logRow.DogsUnchanged = tracker.Count(progress.OpAnimalsUnchanged)
}

// imageRows assembles the animal_images rows for this scrape: primary plus
// gallery, verified through the checker when the org opts in.
func (r *Runner) imageRows(ctx context.Context, orgID int64, cfg *orgconfig.Config, kept []*types.RawAnimal, tracker *progress.Tracker) []*types.AnimalImage {
	var candidates []images.Candidate
	for _, raw := range kept {
		if raw.ExternalID == "" || raw.PrimaryImageURL == "" {
			continue
		}
		candidates = append(candidates, images.Candidate{
			ExternalID: raw.ExternalID, URL: raw.PrimaryImageURL, Position: 0,
		})
		for i, u := range raw.ImageURLs {
			if u == "" {
				continue
			}
			candidates = append(candidates, images.Candidate{
				ExternalID: raw.ExternalID, URL: u, Position: i + 1,
			})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	if cfg.Scraper.VerifyImages && r.verifier != nil {
		rows := r.verifier.Verify(ctx, orgID, candidates)
		for _, row := range rows {
			if row.Verified {
				tracker.Record(progress.OpImagesVerified, 1)
			} else {
				tracker.Record(progress.OpImagesFailed, 1)
			}
		}
		return rows
	}

	// Verification off: store the metadata as-is, unchecked.
	rows := make([]*types.AnimalImage, 0, len(candidates))
	for _, cand := range candidates {
		rows = append(rows, &types.AnimalImage{
			OrganizationID: orgID,
			ExternalID:     cand.ExternalID,
			ImageURL:       cand.URL,
			Position:       cand.Position,
		})
	}
	return rows
}

func animalItems(animals []*types.Animal) []batch.Item {
	items := make([]batch.Item, len(animals))
	for i, a := range animals {
		items[i] = batch.Item{ID: a.ExternalID, Payload: a}
	}
	return items
}

func imageItems(rows []*types.AnimalImage) []batch.Item {
	items := make([]batch.Item, len(rows))
	for i, img := range rows {
		items[i] = batch.Item{ID: img.ExternalID, Payload: img}
	}
	return items
}
