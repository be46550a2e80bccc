package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rescueradar/rescueradar/internal/logging"
)

func TestVerbosityFor(t *testing.T) {
	tests := []struct {
		total int
		want  Verbosity
	}{
		{0, VerbosityMinimal},
		{25, VerbosityMinimal},
		{26, VerbosityStandard},
		{75, VerbosityStandard},
		{76, VerbosityDetailed},
		{150, VerbosityDetailed},
		{151, VerbosityComprehensive},
		{1000, VerbosityComprehensive},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityFor(tt.total), "total=%d", tt.total)
	}
}

func TestShouldLogAtMostOncePerBatch(t *testing.T) {
	tr := New(100, 10, logging.Discard())

	logs := 0
	for i := 0; i < 100; i++ {
		done := tr.processed.Add(1)
		if tr.shouldLog(done) {
			logs++
		}
	}
	// Every 10 items: at 10, 20, ..., 100.
	assert.Equal(t, 10, logs)
}

func TestMinimalVerbosityNeverLogsProgress(t *testing.T) {
	tr := New(5, 1, logging.Discard())
	for i := int64(1); i <= 5; i++ {
		assert.False(t, tr.shouldLog(i))
	}
}

func TestOperationCounters(t *testing.T) {
	tr := New(50, 10, logging.Discard())
	tr.Record(OpAnimalsAdded, 3)
	tr.Record(OpAnimalsAdded, 2)
	tr.Record(OpImagesFailed, 1)

	assert.Equal(t, 5, tr.Count(OpAnimalsAdded))
	assert.Equal(t, 1, tr.Count(OpImagesFailed))
	assert.Zero(t, tr.Count(OpAnimalsUpdated))
}

func TestPhaseTiming(t *testing.T) {
	tr := New(10, 5, logging.Discard())

	tr.StartPhase("collection")
	time.Sleep(20 * time.Millisecond)
	tr.StartPhase("processing") // implicitly ends collection
	time.Sleep(10 * time.Millisecond)
	tr.EndPhase()

	assert.GreaterOrEqual(t, tr.PhaseDuration("collection"), 20*time.Millisecond)
	assert.GreaterOrEqual(t, tr.PhaseDuration("processing"), 10*time.Millisecond)
}

func TestETA(t *testing.T) {
	tr := New(100, 10, logging.Discard())

	// No work yet: zero throughput, ETA undefined.
	_, ok := tr.ETA()
	assert.False(t, ok)

	tr.Advance(50)
	time.Sleep(10 * time.Millisecond)
	eta, ok := tr.ETA()
	assert.True(t, ok)
	assert.Greater(t, eta, time.Duration(0))

	tr.Advance(50)
	eta, ok = tr.ETA()
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), eta)
}

func TestETAUndefinedForUnknownTotal(t *testing.T) {
	tr := New(0, 10, logging.Discard())
	tr.Advance(10)
	_, ok := tr.ETA()
	assert.False(t, ok)
}
