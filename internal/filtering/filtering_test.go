package filtering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescueradar/rescueradar/internal/logging"
	"github.com/rescueradar/rescueradar/internal/types"
)

type fakeRecorder struct {
	seen []string
}

func (r *fakeRecorder) MarkSeen(id string) { r.seen = append(r.seen, id) }

type fakeURLSource struct {
	urls map[string]struct{}
	err  error
}

func (f *fakeURLSource) StoredAdoptionURLs(ctx context.Context, orgID int64) (map[string]struct{}, error) {
	return f.urls, f.err
}

func rawItems(pairs ...string) []*types.RawAnimal {
	var items []*types.RawAnimal
	for i := 0; i+1 < len(pairs); i += 2 {
		items = append(items, &types.RawAnimal{ExternalID: pairs[i], AdoptionURL: pairs[i+1]})
	}
	return items
}

func TestRecordAllFound(t *testing.T) {
	rec := &fakeRecorder{}
	svc := New(rec, &fakeURLSource{}, 1, false, logging.Discard())

	items := rawItems("a", "u1", "b", "u2")
	items = append(items, &types.RawAnimal{ExternalID: "", AdoptionURL: "u3"})
	svc.RecordAllFound(items)

	assert.Equal(t, []string{"a", "b"}, rec.seen)
}

func TestFilterNewDisabled(t *testing.T) {
	svc := New(&fakeRecorder{}, &fakeURLSource{urls: map[string]struct{}{"u1": {}}}, 1, false, logging.Discard())

	items := rawItems("a", "u1", "b", "u2")
	svc.RecordAllFound(items)
	kept, err := svc.FilterNew(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, items, kept)
	assert.Equal(t, 2, svc.EffectiveFoundCount(len(kept)))
}

func TestFilterNewSkipsStoredURLs(t *testing.T) {
	src := &fakeURLSource{urls: map[string]struct{}{"u1": {}, "u3": {}}}
	svc := New(&fakeRecorder{}, src, 1, true, logging.Discard())

	items := rawItems("a", "u1", "b", "u2", "c", "u3")
	svc.RecordAllFound(items)
	kept, err := svc.FilterNew(context.Background(), items)
	require.NoError(t, err)

	require.Len(t, kept, 1)
	assert.Equal(t, "b", kept[0].ExternalID)

	// The invariant: nothing returned has a stored URL.
	for _, item := range kept {
		_, stored := src.urls[item.AdoptionURL]
		assert.False(t, stored)
	}

	stats := svc.Stats()
	assert.Equal(t, 3, stats.TotalBefore)
	assert.Equal(t, 2, stats.Skipped)

	// Run summaries report discovery volume, not processing volume.
	assert.Equal(t, 3, svc.EffectiveFoundCount(len(kept)))
}

func TestFilterNewLookupError(t *testing.T) {
	src := &fakeURLSource{err: assert.AnError}
	svc := New(&fakeRecorder{}, src, 1, true, logging.Discard())

	items := rawItems("a", "u1")
	svc.RecordAllFound(items)
	_, err := svc.FilterNew(context.Background(), items)
	assert.Error(t, err)
}
