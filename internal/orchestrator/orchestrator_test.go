package orchestrator

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescueradar/rescueradar/internal/config"
	"github.com/rescueradar/rescueradar/internal/logging"
	"github.com/rescueradar/rescueradar/internal/orgconfig"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/types"
)

type nopAdapter struct{}

func (nopAdapter) CollectData(ctx context.Context) ([]*types.RawAnimal, error) { return nil, nil }

type scriptedRunner struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
	outcomes    map[string]types.Outcome
	errs        map[string]error
	panics      map[string]bool
	found       map[string]int
}

func (r *scriptedRunner) Run(ctx context.Context, cfg *orgconfig.Config, adapter scraper.Adapter) (*scraper.RunStats, error) {
	cur := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		max := r.maxInFlight.Load()
		if cur <= max || r.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.panics[cfg.ConfigID] {
		panic("runner exploded")
	}
	outcome := types.OutcomeSuccess
	if o, ok := r.outcomes[cfg.ConfigID]; ok {
		outcome = o
	}
	stats := &scraper.RunStats{
		ConfigID:  cfg.ConfigID,
		Outcome:   outcome,
		DogsFound: r.found[cfg.ConfigID],
		Log:       &types.ScrapeLog{},
	}
	return stats, r.errs[cfg.ConfigID]
}

func orgCfg(id string, active bool) *orgconfig.Config {
	doc := "config_id: " + id + "\nname: " + id + "\nactive: "
	if active {
		doc += "true"
	} else {
		doc += "false"
	}
	doc += "\nmetadata:\n  website_url: https://" + id + ".org\n"
	cfg, err := orgconfig.Parse([]byte(doc), id)
	if err != nil {
		panic(err)
	}
	return cfg
}

func newTestOrchestrator(runner ScrapeRunner, parallel int) *Orchestrator {
	o := New(config.OrchestratorConfig{MaxParallel: parallel, ScrapeTimeout: time.Minute},
		runner, nil, nil, nil, logging.Discard())
	o.lookup = func(key string) (scraper.Descriptor, scraper.Factory, error) {
		return scraper.Descriptor{Key: key}, func(env scraper.Env) scraper.Adapter { return nopAdapter{} }, nil
	}
	return o
}

func TestListEnabledOrganizations(t *testing.T) {
	o := newTestOrchestrator(&scriptedRunner{}, 2)
	configs := []*orgconfig.Config{orgCfg("bravo", true), orgCfg("alpha", true), orgCfg("off", false)}

	enabled := o.ListEnabledOrganizations(configs)
	require.Len(t, enabled, 2)
	assert.Equal(t, "alpha", enabled[0].ConfigID)
	assert.Equal(t, "bravo", enabled[1].ConfigID)
}

func TestRunAllHappyPath(t *testing.T) {
	runner := &scriptedRunner{found: map[string]int{"alpha": 10, "bravo": 5}}
	o := newTestOrchestrator(runner, 2)

	summary := o.RunAll(context.Background(), []*orgconfig.Config{orgCfg("alpha", true), orgCfg("bravo", true)})

	assert.True(t, summary.BatchComplete)
	assert.True(t, summary.OverallSuccess)
	assert.Equal(t, 2, summary.TotalOrgs)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 15, summary.TotalDogsFound)
	assert.Empty(t, summary.FailedOrgs)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "alpha", summary.Results[0].ConfigID)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	runner := &scriptedRunner{
		outcomes: map[string]types.Outcome{"bad": types.OutcomeFailure},
		errs: map[string]error{
			"bad": &types.ScrapeError{Kind: types.KindTransientNetwork, ConfigID: "bad", Err: assert.AnError},
		},
		found: map[string]int{"good": 7},
	}
	o := newTestOrchestrator(runner, 2)

	summary := o.RunAll(context.Background(), []*orgconfig.Config{orgCfg("bad", true), orgCfg("good", true)})

	assert.False(t, summary.OverallSuccess)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"bad"}, summary.FailedOrgs)
	assert.Equal(t, 7, summary.TotalDogsFound)
}

func TestRunAllPartialFailureDoesNotFailBatch(t *testing.T) {
	runner := &scriptedRunner{
		outcomes: map[string]types.Outcome{"guarded": types.OutcomePartialFailure},
	}
	o := newTestOrchestrator(runner, 1)

	summary := o.RunAll(context.Background(), []*orgconfig.Config{orgCfg("guarded", true)})
	assert.True(t, summary.OverallSuccess)
	assert.Equal(t, 1, summary.Successful)
}

func TestRunOneContainsPanic(t *testing.T) {
	runner := &scriptedRunner{panics: map[string]bool{"boom": true}}
	o := newTestOrchestrator(runner, 1)

	res := o.RunOne(context.Background(), orgCfg("boom", true))
	assert.Equal(t, string(types.OutcomeFailure), res.Outcome)
	assert.Contains(t, res.Error, "panic")
}

func TestRunOneUnknownAdapter(t *testing.T) {
	o := New(config.OrchestratorConfig{}, &scriptedRunner{}, nil, nil, nil, logging.Discard())

	res := o.RunOne(context.Background(), orgCfg("unregistered-org", true))
	assert.Equal(t, string(types.OutcomeFailure), res.Outcome)
	assert.Contains(t, res.Error, "no adapter registered")
}

func TestRunAllBoundsParallelism(t *testing.T) {
	runner := &scriptedRunner{delay: 20 * time.Millisecond}
	o := newTestOrchestrator(runner, 2)

	var configs []*orgconfig.Config
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		configs = append(configs, orgCfg("org-"+id, true))
	}
	summary := o.RunAll(context.Background(), configs)

	assert.Equal(t, 6, summary.Successful)
	assert.LessOrEqual(t, runner.maxInFlight.Load(), int32(2))
}

func TestRunAllStopsAdmittingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(&scriptedRunner{}, 1)
	summary := o.RunAll(ctx, []*orgconfig.Config{orgCfg("alpha", true), orgCfg("bravo", true)})

	assert.False(t, summary.OverallSuccess)
	assert.Equal(t, 2, summary.Failed)
	for _, res := range summary.Results {
		assert.Equal(t, "shutdown before start", res.Error)
	}
}

func TestSummaryWriteJSON(t *testing.T) {
	summary := &Summary{
		BatchComplete:  true,
		Timestamp:      "2026-08-25T12:00:00Z",
		TotalOrgs:      1,
		Successful:     1,
		FailedOrgs:     []string{},
		OverallSuccess: true,
	}

	var buf bytes.Buffer
	require.NoError(t, summary.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"batch_complete": true`)
	assert.Contains(t, buf.String(), `"failed_orgs": []`)
}
