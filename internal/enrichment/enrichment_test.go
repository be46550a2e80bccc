package enrichment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescueradar/rescueradar/internal/batch"
	"github.com/rescueradar/rescueradar/internal/config"
	"github.com/rescueradar/rescueradar/internal/logging"
	"github.com/rescueradar/rescueradar/internal/types"
)

type fakeSource struct {
	animals  []*types.Animal
	gotLimit int
}

func (f *fakeSource) ListForEnrichment(_ context.Context, limit int) ([]*types.Animal, error) {
	f.gotLimit = limit
	return f.animals, nil
}

func (f *fakeSource) EnrichmentSQL(animalID int64, enriched string) (string, []any) {
	return "UPDATE animals SET enriched", []any{animalID, enriched}
}

type fakeRewriter struct {
	failFor map[string]bool
	calls   []string
}

func (f *fakeRewriter) Rewrite(_ context.Context, name, _, description string) (string, error) {
	f.calls = append(f.calls, name)
	if f.failFor[name] {
		return "", assert.AnError
	}
	return "Polished: " + description, nil
}

type fakeProc struct {
	items []batch.Item
	args  [][]any
}

func (f *fakeProc) Process(_ context.Context, items []batch.Item, render batch.RenderFunc, _ batch.ProgressFunc) (*batch.Result, error) {
	f.items = items
	res := &batch.Result{TotalProcessed: len(items), SuccessfulBatches: 1}
	for _, item := range items {
		_, args, err := render(item)
		if err != nil {
			res.Errors = append(res.Errors, batch.ItemError{Kind: types.KindItemRender, Detail: err.Error()})
			continue
		}
		f.args = append(f.args, args)
	}
	return res, nil
}

type fakeAlerter struct {
	rate, threshold float64
	called          bool
}

func (f *fakeAlerter) AlertEnrichmentFailureRate(rate, threshold float64) {
	f.called = true
	f.rate = rate
	f.threshold = threshold
}

func dog(id int64, name, description string) *types.Animal {
	return &types.Animal{
		ID:         id,
		ExternalID: name,
		Name:       name,
		Breed:      "Mixed",
		Properties: map[string]any{"description": description},
	}
}

func testService(src *fakeSource, rw *fakeRewriter, proc *fakeProc, alerter *fakeAlerter, threshold float64) *Service {
	cfg := config.EnrichmentConfig{Model: "claude-3-5-haiku-latest", BatchSize: 25, FailureRateThreshold: threshold}
	return New(src, rw, proc, alerter, cfg, logging.Discard())
}

func TestRunEnrichesAndCommits(t *testing.T) {
	src := &fakeSource{animals: []*types.Animal{
		dog(1, "rex", "GOOD BOY needs home urgent!!"),
		dog(2, "luna", "sweet girl"),
	}}
	rw := &fakeRewriter{}
	proc := &fakeProc{}
	alerter := &fakeAlerter{}

	report, err := testService(src, rw, proc, alerter, 0.25).Run(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, 50, src.gotLimit)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Enriched)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, report.Committed)
	assert.False(t, alerter.called)

	require.Len(t, proc.items, 2)
	assert.Equal(t, "rex", proc.items[0].ID)
	require.Len(t, proc.args, 2)
	assert.Equal(t, []any{int64(1), "Polished: GOOD BOY needs home urgent!!"}, proc.args[0])
}

func TestRunFailureRateAlert(t *testing.T) {
	src := &fakeSource{animals: []*types.Animal{
		dog(1, "rex", "a"), dog(2, "luna", "b"), dog(3, "pip", "c"), dog(4, "mila", "d"),
	}}
	rw := &fakeRewriter{failFor: map[string]bool{"rex": true, "luna": true}}
	proc := &fakeProc{}
	alerter := &fakeAlerter{}

	report, err := testService(src, rw, proc, alerter, 0.25).Run(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 2, report.Enriched)
	assert.InDelta(t, 0.5, report.FailureRate, 0.001)

	// The run still commits the survivors; the alarm is telemetry, not a stop.
	assert.Len(t, proc.items, 2)
	assert.True(t, alerter.called)
	assert.InDelta(t, 0.5, alerter.rate, 0.001)
	assert.InDelta(t, 0.25, alerter.threshold, 0.001)
}

func TestRunBelowThresholdNoAlert(t *testing.T) {
	src := &fakeSource{animals: []*types.Animal{
		dog(1, "rex", "a"), dog(2, "luna", "b"), dog(3, "pip", "c"), dog(4, "mila", "d"), dog(5, "ava", "e"),
	}}
	rw := &fakeRewriter{failFor: map[string]bool{"ava": true}}
	alerter := &fakeAlerter{}

	report, err := testService(src, rw, &fakeProc{}, alerter, 0.25).Run(context.Background(), 10)
	require.NoError(t, err)

	assert.InDelta(t, 0.2, report.FailureRate, 0.001)
	assert.False(t, alerter.called)
}

func TestRunEmptyQueue(t *testing.T) {
	src := &fakeSource{}
	rw := &fakeRewriter{}
	proc := &fakeProc{}

	report, err := testService(src, rw, proc, &fakeAlerter{}, 0.25).Run(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Candidates)
	assert.Empty(t, rw.calls)
	assert.Nil(t, proc.items)
}

func TestNewAnthropicRewriterRequiresKey(t *testing.T) {
	_, err := NewAnthropicRewriter(config.EnrichmentConfig{Model: "claude-3-5-haiku-latest"})
	require.Error(t, err)
}
