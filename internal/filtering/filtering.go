// Package filtering computes the set of newly-seen items versus what the
// store already holds. Presence recording is unconditional and always runs
// first; the skip-existing filter is a policy layer on top of it. Getting
// that order wrong would mass-demote healthy animals, so the service owns
// both steps.
package filtering

import (
	"context"
	"log/slog"

	"github.com/rescueradar/rescueradar/internal/types"
)

// PresenceRecorder receives every observed external id, pre-filter. The
// session manager implements it.
type PresenceRecorder interface {
	MarkSeen(externalID string)
}

// URLSource looks up the adoption URLs currently stored for an organization.
type URLSource interface {
	StoredAdoptionURLs(ctx context.Context, orgID int64) (map[string]struct{}, error)
}

// Stats exposes filter volumes for the scrape log.
type Stats struct {
	TotalBefore int
	Skipped     int
}

// Service filters one scrape's discovered items.
type Service struct {
	recorder     PresenceRecorder
	urls         URLSource
	orgID        int64
	skipExisting bool
	logger       *slog.Logger

	recorded bool
	stats    Stats
}

// New creates a Service for one scrape.
func New(recorder PresenceRecorder, urls URLSource, orgID int64, skipExisting bool, logger *slog.Logger) *Service {
	return &Service{
		recorder:     recorder,
		urls:         urls,
		orgID:        orgID,
		skipExisting: skipExisting,
		logger:       logger.With("component", "filtering"),
	}
}

// RecordAllFound marks every item with an external id as seen this session.
// Must run before FilterNew.
func (s *Service) RecordAllFound(items []*types.RawAnimal) {
	for _, item := range items {
		if item.ExternalID != "" {
			s.recorder.MarkSeen(item.ExternalID)
		}
	}
	s.recorded = true
}

// FilterNew returns the items to process. With skip-existing off this is the
// input unchanged; with it on, items whose adoption URL is already stored
// are dropped.
func (s *Service) FilterNew(ctx context.Context, items []*types.RawAnimal) ([]*types.RawAnimal, error) {
	if !s.recorded {
		// Ordering violation; filtering without presence recording corrupts
		// stale detection downstream.
		s.logger.Error("FilterNew called before RecordAllFound")
	}

	s.stats.TotalBefore = len(items)
	if !s.skipExisting {
		return items, nil
	}

	stored, err := s.urls.StoredAdoptionURLs(ctx, s.orgID)
	if err != nil {
		return nil, err
	}

	kept := items[:0:0]
	for _, item := range items {
		if _, exists := stored[item.AdoptionURL]; exists {
			s.stats.Skipped++
			continue
		}
		kept = append(kept, item)
	}

	if s.stats.Skipped > 0 {
		s.logger.Info("skipped existing animals",
			"total", s.stats.TotalBefore,
			"skipped", s.stats.Skipped,
			"new", len(kept),
		)
	}
	return kept, nil
}

// EffectiveFoundCount reports discovery volume for run summaries: the
// pre-filter total when skipping is on, else the given post-filter count.
func (s *Service) EffectiveFoundCount(postFilterCount int) int {
	if s.skipExisting {
		return s.stats.TotalBefore
	}
	return postFilterCount
}

// Stats returns the filter volumes seen so far.
func (s *Service) Stats() Stats { return s.stats }
