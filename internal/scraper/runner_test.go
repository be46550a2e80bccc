package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescueradar/rescueradar/internal/batch"
	"github.com/rescueradar/rescueradar/internal/images"
	"github.com/rescueradar/rescueradar/internal/logging"
	"github.com/rescueradar/rescueradar/internal/orgconfig"
	"github.com/rescueradar/rescueradar/internal/session"
	"github.com/rescueradar/rescueradar/internal/standardize"
	"github.com/rescueradar/rescueradar/internal/store"
	"github.com/rescueradar/rescueradar/internal/types"
)

type fakeOrgs struct {
	org *types.Organization
	err error
}

func (f *fakeOrgs) Ensure(ctx context.Context, configID, name, websiteURL string, active bool) (*types.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.org, nil
}

type fakeLogs struct {
	startErr  error
	completed []types.ScrapeLog
	counts    []int
}

func (f *fakeLogs) Start(ctx context.Context, orgID int64, correlationID string) (int64, error) {
	if f.startErr != nil {
		return 0, f.startErr
	}
	return 42, nil
}

func (f *fakeLogs) Complete(ctx context.Context, log *types.ScrapeLog) error {
	f.completed = append(f.completed, *log)
	return nil
}

func (f *fakeLogs) RecentFoundCounts(ctx context.Context, orgID int64, n int) ([]int, error) {
	return f.counts, nil
}

type reconcileCall struct {
	seen         []string
	applyAbsence bool
}

type fakeAnimals struct {
	urls       map[string]struct{}
	hashes     map[string]string
	reconciles []reconcileCall
}

func (f *fakeAnimals) StoredAdoptionURLs(ctx context.Context, orgID int64) (map[string]struct{}, error) {
	if f.urls == nil {
		return map[string]struct{}{}, nil
	}
	return f.urls, nil
}

func (f *fakeAnimals) ContentHashes(ctx context.Context, orgID int64) (map[string]string, error) {
	if f.hashes == nil {
		return map[string]string{}, nil
	}
	return f.hashes, nil
}

func (f *fakeAnimals) Reconcile(ctx context.Context, orgID int64, seen []string, applyAbsence bool) (store.ReconcileResult, error) {
	f.reconciles = append(f.reconciles, reconcileCall{seen, applyAbsence})
	return store.ReconcileResult{SeenUpdated: int64(len(seen))}, nil
}

func (f *fakeAnimals) UpsertSQL(a *types.Animal) (string, []any) {
	return "UPSERT animals", []any{a.ExternalID}
}

type fakeImageStore struct{}

func (f *fakeImageStore) UpsertSQL(img *types.AnimalImage) (string, []any) {
	return "UPSERT animal_images", []any{img.ExternalID, img.ImageURL}
}

// fakeBatch renders every item and records the payloads, mimicking an
// all-successful run.
type fakeBatch struct {
	animals []*types.Animal
	images  []*types.AnimalImage
	err     error
}

func (f *fakeBatch) Process(ctx context.Context, items []batch.Item, render batch.RenderFunc, progress batch.ProgressFunc) (*batch.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := &batch.Result{TotalProcessed: len(items), SuccessfulBatches: 1}
	for _, item := range items {
		if _, _, err := render(item); err != nil {
			res.Errors = append(res.Errors, batch.ItemError{Kind: types.KindItemRender})
			continue
		}
		switch p := item.Payload.(type) {
		case *types.Animal:
			f.animals = append(f.animals, p)
		case *types.AnimalImage:
			f.images = append(f.images, p)
		}
	}
	if progress != nil {
		progress(len(items), len(items))
	}
	return res, nil
}

type fakeVerifier struct {
	called bool
}

func (f *fakeVerifier) Verify(ctx context.Context, orgID int64, candidates []images.Candidate) []*types.AnimalImage {
	f.called = true
	now := time.Now()
	rows := make([]*types.AnimalImage, len(candidates))
	for i, c := range candidates {
		rows[i] = &types.AnimalImage{
			OrganizationID: orgID, ExternalID: c.ExternalID, ImageURL: c.URL,
			Position: c.Position, Verified: i%2 == 0, CheckedAt: &now,
		}
	}
	return rows
}

type staticAdapter struct {
	raw []*types.RawAnimal
	err error
}

func (a *staticAdapter) CollectData(ctx context.Context) ([]*types.RawAnimal, error) {
	return a.raw, a.err
}

type panicAdapter struct{}

func (panicAdapter) CollectData(ctx context.Context) ([]*types.RawAnimal, error) {
	panic("selector changed under us")
}

func testOrgConfig() *orgconfig.Config {
	cfg, err := orgconfig.Parse([]byte(`
config_id: test-org
name: Test Org
active: true
metadata:
  website_url: https://test.example.org
`), "test.yaml")
	if err != nil {
		panic(err)
	}
	return cfg
}

func rawDog(id string) *types.RawAnimal {
	return &types.RawAnimal{
		ExternalID:      id,
		Name:            "Dog " + id,
		AdoptionURL:     "https://test.example.org/dogs/" + id,
		PrimaryImageURL: "https://cdn.example.org/" + id + ".jpg",
		Breed:           "labrador",
		AgeText:         "2 years",
		Sex:             "female",
	}
}

type testEnv struct {
	orgs     *fakeOrgs
	logs     *fakeLogs
	animals  *fakeAnimals
	batch    *fakeBatch
	verifier *fakeVerifier
	runner   *Runner
}

func newTestEnv() *testEnv {
	env := &testEnv{
		orgs:     &fakeOrgs{org: &types.Organization{ID: 7, ConfigID: "test-org"}},
		logs:     &fakeLogs{},
		animals:  &fakeAnimals{},
		batch:    &fakeBatch{},
		verifier: &fakeVerifier{},
	}
	env.runner = &Runner{
		stores: Stores{
			Orgs:    env.orgs,
			Logs:    env.logs,
			Animals: env.animals,
			Images:  &fakeImageStore{},
		},
		standardizer: standardize.New(64),
		verifier:     env.verifier,
		guard:        session.GuardConfig{HistoryWindow: 3, ThresholdFraction: 0.5, AbsoluteFloor: 10},
		logger:       logging.Discard(),
	}
	env.runner.newBatch = func(cfg batch.Config) BatchProcessor { return env.batch }
	return env
}

func TestRunHappyPath(t *testing.T) {
	env := newTestEnv()
	adapter := &staticAdapter{raw: []*types.RawAnimal{
		rawDog("a"),
		rawDog("b"),
		rawDog("a"), // duplicate within the run, dropped by normalize
		{ExternalID: "c", Name: "No Image", AdoptionURL: "https://x.org/c"}, // fails validation
	}}

	stats, err := env.runner.Run(context.Background(), testOrgConfig(), adapter)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSuccess, stats.Outcome)
	assert.Equal(t, 3, stats.DogsFound)

	// Two animals survived validation and were committed.
	require.Len(t, env.batch.animals, 2)
	first := env.batch.animals[0]
	assert.Equal(t, "a", first.ExternalID)
	assert.Equal(t, "Labrador Retriever", first.StandardizedBreed)
	assert.NotEmpty(t, first.ContentHash)
	assert.Equal(t, types.StatusAvailable, first.Status)

	// Presence was recorded for everything found, including the item that
	// later failed validation.
	require.Len(t, env.animals.reconciles, 1)
	assert.Equal(t, []string{"a", "b", "c"}, env.animals.reconciles[0].seen)
	assert.True(t, env.animals.reconciles[0].applyAbsence)

	// The log was completed exactly once with the aggregate stats.
	require.Len(t, env.logs.completed, 1)
	logRow := env.logs.completed[0]
	assert.Equal(t, types.OutcomeSuccess, logRow.Outcome)
	assert.Equal(t, 3, logRow.DogsFound)
	assert.Equal(t, 2, logRow.DogsAdded)
	assert.Equal(t, 1, logRow.ProcessingFailures)
	assert.Greater(t, logRow.DataQualityScore, 0.0)
	assert.NotEmpty(t, logRow.CorrelationID)
}

func TestRunClassifiesUnchangedOnSecondScrape(t *testing.T) {
	env := newTestEnv()
	adapter := &staticAdapter{raw: []*types.RawAnimal{rawDog("a"), rawDog("b")}}

	_, err := env.runner.Run(context.Background(), testOrgConfig(), adapter)
	require.NoError(t, err)
	require.Len(t, env.batch.animals, 2)

	// Second scrape: stored hashes match exactly -> unchanged; a changed
	// name -> updated.
	env.animals.hashes = map[string]string{
		"a": env.batch.animals[0].ContentHash,
		"b": env.batch.animals[1].ContentHash,
	}
	env.batch.animals = nil
	changed := rawDog("b")
	changed.Name = "Renamed"
	adapter2 := &staticAdapter{raw: []*types.RawAnimal{rawDog("a"), changed}}

	_, err = env.runner.Run(context.Background(), testOrgConfig(), adapter2)
	require.NoError(t, err)

	logRow := env.logs.completed[1]
	assert.Equal(t, 0, logRow.DogsAdded)
	assert.Equal(t, 1, logRow.DogsUpdated)
	assert.Equal(t, 1, logRow.DogsUnchanged)
}

func TestRunAdapterErrorIsFailure(t *testing.T) {
	env := newTestEnv()
	adapter := &staticAdapter{err: &types.FetchError{URL: "https://x.org", Err: assert.AnError}}

	stats, err := env.runner.Run(context.Background(), testOrgConfig(), adapter)
	require.Error(t, err)

	var se *types.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, types.KindTransientNetwork, se.Kind)
	assert.Equal(t, types.OutcomeFailure, stats.Outcome)

	// No transitions on failure; the log still closed.
	assert.Empty(t, env.animals.reconciles)
	require.Len(t, env.logs.completed, 1)
	assert.Equal(t, types.OutcomeFailure, env.logs.completed[0].Outcome)
	assert.NotEmpty(t, env.logs.completed[0].ErrorDetail)
}

func TestRunAdapterPanicIsContained(t *testing.T) {
	env := newTestEnv()

	stats, err := env.runner.Run(context.Background(), testOrgConfig(), panicAdapter{})
	require.Error(t, err)
	assert.Equal(t, types.OutcomeFailure, stats.Outcome)
	assert.Contains(t, err.Error(), "adapter panic")
	assert.Empty(t, env.animals.reconciles)
}

func TestRunSkipExisting(t *testing.T) {
	env := newTestEnv()
	env.animals.urls = map[string]struct{}{
		"https://test.example.org/dogs/a": {},
	}
	cfg := testOrgConfig()
	cfg.Scraper.SkipExistingAnimals = true
	adapter := &staticAdapter{raw: []*types.RawAnimal{rawDog("a"), rawDog("b")}}

	stats, err := env.runner.Run(context.Background(), cfg, adapter)
	require.NoError(t, err)

	// Found counts discovery volume; only the new dog was processed.
	assert.Equal(t, 2, stats.DogsFound)
	require.Len(t, env.batch.animals, 1)
	assert.Equal(t, "b", env.batch.animals[0].ExternalID)
	assert.Equal(t, 1, env.logs.completed[0].DogsSkipped)

	// Both were still marked seen.
	assert.Equal(t, []string{"a", "b"}, env.animals.reconciles[0].seen)
}

func TestRunPartialFailureGuard(t *testing.T) {
	env := newTestEnv()
	env.logs.counts = []int{100, 100, 100}
	adapter := &staticAdapter{raw: []*types.RawAnimal{rawDog("a")}}

	stats, err := env.runner.Run(context.Background(), testOrgConfig(), adapter)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomePartialFailure, stats.Outcome)
	require.Len(t, env.animals.reconciles, 1)
	assert.False(t, env.animals.reconciles[0].applyAbsence)
	assert.Equal(t, types.OutcomePartialFailure, env.logs.completed[0].Outcome)
}

func TestRunImageVerification(t *testing.T) {
	env := newTestEnv()
	cfg := testOrgConfig()
	cfg.Scraper.VerifyImages = true
	dog := rawDog("a")
	dog.ImageURLs = []string{"https://cdn.example.org/a-2.jpg"}
	adapter := &staticAdapter{raw: []*types.RawAnimal{dog}}

	_, err := env.runner.Run(context.Background(), cfg, adapter)
	require.NoError(t, err)

	assert.True(t, env.verifier.called)
	require.Len(t, env.batch.images, 2)
	logRow := env.logs.completed[0]
	assert.Equal(t, 1, logRow.ImagesUploaded)
	assert.Equal(t, 1, logRow.ImagesFailed)
}

func TestRunEnsureFailureIsSetupError(t *testing.T) {
	env := newTestEnv()
	env.orgs.err = &types.DatabaseError{Op: "ensure organization", Err: assert.AnError}

	_, err := env.runner.Run(context.Background(), testOrgConfig(), &staticAdapter{})
	var se *types.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, types.KindFatalSetup, se.Kind)
	assert.Empty(t, env.logs.completed)
}

func TestRegistry(t *testing.T) {
	Register(Descriptor{Key: "registry-test", Name: "Registry Test"}, func(env Env) Adapter {
		return &staticAdapter{}
	})

	desc, factory, err := Lookup("registry-test")
	require.NoError(t, err)
	assert.Equal(t, "Registry Test", desc.Name)
	assert.NotNil(t, factory(Env{}))
	assert.Contains(t, Keys(), "registry-test")

	_, _, err = Lookup("nope")
	assert.ErrorIs(t, err, types.ErrUnknownAdapter)

	assert.Panics(t, func() {
		Register(Descriptor{Key: "registry-test"}, nil)
	})
}
