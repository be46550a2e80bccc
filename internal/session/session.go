// Package session tracks which external ids one scrape observed and, at
// close, reconciles the organization's stored animals against that set. The
// close step drives the stale-detection counters and is guarded against
// implausibly small scrapes so a broken adapter cannot mass-demote healthy
// data.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/rescueradar/rescueradar/internal/store"
	"github.com/rescueradar/rescueradar/internal/types"
)

// Reconciler applies the presence/absence transitions atomically for one
// organization. *store.AnimalStore implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, orgID int64, seen []string, applyAbsence bool) (store.ReconcileResult, error)
}

// History supplies recent successful scrape volumes for the guard.
type History interface {
	RecentFoundCounts(ctx context.Context, orgID int64, n int) ([]int, error)
}

// Alerter receives guard trips. The telemetry sink implements it; tests use
// a recording fake.
type Alerter interface {
	AlertZeroItems(configID string, historicalAvg float64)
	AlertPartialFailure(configID string, observed int, expected float64)
}

// GuardConfig tunes the partial-failure guard.
type GuardConfig struct {
	// HistoryWindow is how many recent successful scrapes feed the average.
	HistoryWindow int

	// ThresholdFraction trips the guard when observed/average falls below it.
	ThresholdFraction float64

	// AbsoluteFloor must also exceed the observed count for the guard to
	// trip, so small sources are not flagged by ordinary noise.
	AbsoluteFloor int
}

func (c *GuardConfig) normalize() {
	if c.HistoryWindow < 1 {
		c.HistoryWindow = 3
	}
	if c.ThresholdFraction <= 0 || c.ThresholdFraction > 1 {
		c.ThresholdFraction = 0.5
	}
	if c.AbsoluteFloor < 0 {
		c.AbsoluteFloor = 0
	}
}

// Result reports what Close decided and applied.
type Result struct {
	Outcome       types.Outcome
	Observed      int
	HistoricalAvg float64
	Ratio         float64 // observed / historical average; 1 when no history
	SeenUpdated   int64
	UnseenUpdated int64
}

// Session is the per-scrape observation set. Scrape-local; the mutex exists
// because adapter detail-fetch pools may mark ids from worker goroutines.
type Session struct {
	orgID    int64
	configID string

	reconciler Reconciler
	history    History
	alerter    Alerter
	guard      GuardConfig
	logger     *slog.Logger

	mu       sync.Mutex
	observed map[string]struct{}
	closed   bool
}

// New opens a session for one scrape of one organization.
func New(orgID int64, configID string, reconciler Reconciler, history History, alerter Alerter, guard GuardConfig, logger *slog.Logger) *Session {
	guard.normalize()
	return &Session{
		orgID:      orgID,
		configID:   configID,
		reconciler: reconciler,
		history:    history,
		alerter:    alerter,
		guard:      guard,
		logger:     logger.With("component", "session", "org", configID),
		observed:   make(map[string]struct{}),
	}
}

// MarkSeen records one observed external id. Safe for concurrent use.
func (s *Session) MarkSeen(externalID string) {
	if externalID == "" {
		return
	}
	s.mu.Lock()
	s.observed[externalID] = struct{}{}
	s.mu.Unlock()
}

// Seen reports whether an id was observed this session.
func (s *Session) Seen(externalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.observed[externalID]
	return ok
}

// ObservedCount returns the number of distinct observed ids.
func (s *Session) ObservedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observed)
}

// ObservedIDs returns the observed set, sorted for deterministic SQL.
func (s *Session) ObservedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.observed))
	for id := range s.observed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close applies the stale-detection transitions once. Seen animals always
// get their counter reset; absence transitions are suppressed when the
// partial-failure guard trips. Close is not called for scrapes that failed
// outright, so a timeout never tears the counters.
func (s *Session) Close(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, types.ErrScrapeStopped
	}
	s.closed = true
	s.mu.Unlock()

	ids := s.ObservedIDs()
	res := &Result{Outcome: types.OutcomeSuccess, Observed: len(ids), Ratio: 1}

	counts, err := s.history.RecentFoundCounts(ctx, s.orgID, s.guard.HistoryWindow)
	if err != nil {
		return nil, err
	}
	if len(counts) > 0 {
		sum := 0
		for _, c := range counts {
			sum += c
		}
		res.HistoricalAvg = float64(sum) / float64(len(counts))
	}
	if res.HistoricalAvg > 0 {
		res.Ratio = float64(res.Observed) / res.HistoricalAvg
	}

	applyAbsence := true
	switch {
	case res.Observed == 0 && res.HistoricalAvg > 0:
		// A historically productive source returning nothing is never
		// believable.
		res.Outcome = types.OutcomePartialFailure
		applyAbsence = false
		s.logger.Error("zero items from source with history",
			"historical_avg", res.HistoricalAvg)
		if s.alerter != nil {
			s.alerter.AlertZeroItems(s.configID, res.HistoricalAvg)
		}
	case res.HistoricalAvg > 0 &&
		res.Ratio < s.guard.ThresholdFraction &&
		res.Observed < s.guard.AbsoluteFloor:
		res.Outcome = types.OutcomePartialFailure
		applyAbsence = false
		s.logger.Warn("partial failure detected, absence transitions suppressed",
			"observed", res.Observed,
			"historical_avg", res.HistoricalAvg,
			"ratio", res.Ratio,
		)
		if s.alerter != nil {
			s.alerter.AlertPartialFailure(s.configID, res.Observed, res.HistoricalAvg)
		}
	}

	rec, err := s.reconciler.Reconcile(ctx, s.orgID, ids, applyAbsence)
	if err != nil {
		return nil, err
	}
	res.SeenUpdated = rec.SeenUpdated
	res.UnseenUpdated = rec.UnseenUpdated

	s.logger.Debug("session closed",
		"outcome", res.Outcome,
		"observed", res.Observed,
		"seen_updated", res.SeenUpdated,
		"unseen_updated", res.UnseenUpdated,
	)
	return res, nil
}
