// Package progress tracks per-scrape telemetry with verbosity that adapts to
// the expected work size: a five-dog rescue logs start and end, a
// three-hundred-dog shelter gets throughput and an ETA.
package progress

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Verbosity is chosen from the expected total item count.
type Verbosity int

const (
	VerbosityMinimal       Verbosity = iota // <= 25 items: start/end only
	VerbosityStandard                       // 26-75: periodic batch updates
	VerbosityDetailed                       // 76-150: throughput + progress
	VerbosityComprehensive                  // > 150: progress bar, ETA, breakdown
)

func (v Verbosity) String() string {
	switch v {
	case VerbosityMinimal:
		return "minimal"
	case VerbosityStandard:
		return "standard"
	case VerbosityDetailed:
		return "detailed"
	case VerbosityComprehensive:
		return "comprehensive"
	default:
		return "unknown"
	}
}

// VerbosityFor maps an expected total to a verbosity level.
func VerbosityFor(total int) Verbosity {
	switch {
	case total <= 25:
		return VerbosityMinimal
	case total <= 75:
		return VerbosityStandard
	case total <= 150:
		return VerbosityDetailed
	default:
		return VerbosityComprehensive
	}
}

// Operation kinds tracked by the counter map.
const (
	OpAnimalsAdded     = "animals_added"
	OpAnimalsUpdated   = "animals_updated"
	OpAnimalsUnchanged = "animals_unchanged"
	OpAnimalsSkipped   = "animals_skipped"
	OpImagesVerified   = "images_verified"
	OpImagesFailed     = "images_failed"
	OpItemsDropped     = "items_dropped"
)

// Tracker is scrape-local and mutated only by the framework goroutine,
// except the atomic processed counter which adapter worker pools may bump.
type Tracker struct {
	logger    *slog.Logger
	verbosity Verbosity
	total     int
	batchSize int

	processed atomic.Int64
	lastLog   atomic.Int64 // processed count at the previous log

	mu       sync.RWMutex
	ops      map[string]int
	phases   map[string]time.Duration
	started  time.Time
	phaseAt  time.Time
	curPhase string
}

// New creates a tracker sized for the expected total. A zero or negative
// total means unknown and gets minimal verbosity with logging every batch.
func New(total, batchSize int, logger *slog.Logger) *Tracker {
	if batchSize < 1 {
		batchSize = 25
	}
	t := &Tracker{
		logger:    logger.With("component", "progress"),
		verbosity: VerbosityFor(total),
		total:     total,
		batchSize: batchSize,
		ops:       make(map[string]int),
		phases:    make(map[string]time.Duration),
		started:   time.Now(),
	}
	t.logger.Info("scrape started",
		"expected_total", total,
		"verbosity", t.verbosity.String(),
	)
	return t
}

// Verbosity returns the chosen level.
func (t *Tracker) Verbosity() Verbosity { return t.verbosity }

// StartPhase begins timing a named phase, ending any previous one.
func (t *Tracker) StartPhase(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endPhaseLocked()
	t.curPhase = name
	t.phaseAt = time.Now()
}

// EndPhase closes the current phase.
func (t *Tracker) EndPhase() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endPhaseLocked()
}

func (t *Tracker) endPhaseLocked() {
	if t.curPhase != "" {
		t.phases[t.curPhase] += time.Since(t.phaseAt)
		t.curPhase = ""
	}
}

// PhaseDuration returns the accumulated duration of a phase.
func (t *Tracker) PhaseDuration(name string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phases[name]
}

// Record bumps an operation counter.
func (t *Tracker) Record(op string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops[op] += n
}

// Count returns one operation counter.
func (t *Tracker) Count(op string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ops[op]
}

// Advance marks n items processed and emits a progress line when the
// verbosity calls for one.
func (t *Tracker) Advance(n int) {
	done := t.processed.Add(int64(n))
	if !t.shouldLog(done) {
		return
	}

	attrs := []any{"processed", done}
	if t.total > 0 {
		attrs = append(attrs, "total", t.total)
	}
	if t.verbosity >= VerbosityDetailed {
		attrs = append(attrs, "throughput_per_sec", round2(t.Throughput()))
	}
	if t.verbosity >= VerbosityComprehensive {
		if eta, ok := t.ETA(); ok {
			attrs = append(attrs, "eta", eta.Round(time.Second).String())
		}
	}
	t.logger.Info("progress", attrs...)
}

// shouldLog returns true at most once per batchSize items, and never at
// minimal verbosity.
func (t *Tracker) shouldLog(done int64) bool {
	if t.verbosity == VerbosityMinimal {
		return false
	}
	last := t.lastLog.Load()
	if done-last < int64(t.batchSize) {
		return false
	}
	return t.lastLog.CompareAndSwap(last, done)
}

// Processed returns the cumulative processed count.
func (t *Tracker) Processed() int {
	return int(t.processed.Load())
}

// Throughput is items per second since start.
func (t *Tracker) Throughput() float64 {
	elapsed := time.Since(t.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.processed.Load()) / elapsed
}

// ETA estimates remaining wall time. Undefined (ok=false) at zero
// throughput or unknown total.
func (t *Tracker) ETA() (time.Duration, bool) {
	tp := t.Throughput()
	if tp <= 0 || t.total <= 0 {
		return 0, false
	}
	remaining := t.total - int(t.processed.Load())
	if remaining <= 0 {
		return 0, true
	}
	return time.Duration(float64(remaining) / tp * float64(time.Second)), true
}

// Elapsed is wall time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration { return time.Since(t.started) }

// Finish logs the end-of-scrape summary with the per-operation breakdown.
func (t *Tracker) Finish() {
	t.mu.Lock()
	t.endPhaseLocked()
	ops := make(map[string]int, len(t.ops))
	for k, v := range t.ops {
		ops[k] = v
	}
	phases := make(map[string]time.Duration, len(t.phases))
	for k, v := range t.phases {
		phases[k] = v
	}
	t.mu.Unlock()

	attrs := []any{
		"processed", t.processed.Load(),
		"elapsed", t.Elapsed().Round(time.Millisecond),
	}
	for op, n := range ops {
		if n > 0 {
			attrs = append(attrs, op, n)
		}
	}
	if t.verbosity >= VerbosityDetailed {
		for phase, d := range phases {
			attrs = append(attrs, "phase_"+phase, d.Round(time.Millisecond))
		}
		attrs = append(attrs, "throughput_per_sec", round2(t.Throughput()))
	}
	t.logger.Info("scrape finished", attrs...)
}

func round2(f float64) float64 {
	return float64(int(f*100)) / 100
}
