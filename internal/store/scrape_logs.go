package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rescueradar/rescueradar/internal/types"
)

// ScrapeLogStore reads and writes the scrape_logs table.
type ScrapeLogStore struct {
	db     DB
	logger *slog.Logger
}

// Start opens a scrape log row and returns its id.
func (s *ScrapeLogStore) Start(ctx context.Context, orgID int64, correlationID string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO scrape_logs (organization_id, correlation_id, started_at)
		VALUES ($1, $2, now())
		RETURNING id`,
		orgID, correlationID).Scan(&id)
	if err != nil {
		return 0, &types.DatabaseError{Op: "start scrape log", Err: err}
	}
	return id, nil
}

// Complete closes a scrape log with its aggregated stats. Only the owning
// scrape calls this, exactly once.
func (s *ScrapeLogStore) Complete(ctx context.Context, log *types.ScrapeLog) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scrape_logs SET
			ended_at = now(),
			outcome = $2,
			dogs_found = $3,
			dogs_skipped = $4,
			dogs_added = $5,
			dogs_updated = $6,
			dogs_unchanged = $7,
			images_uploaded = $8,
			images_failed = $9,
			processing_failures = $10,
			collection_seconds = $11,
			processing_seconds = $12,
			duration_seconds = $13,
			data_quality_score = $14,
			error_detail = $15
		WHERE id = $1`,
		log.ID, log.Outcome,
		log.DogsFound, log.DogsSkipped, log.DogsAdded, log.DogsUpdated,
		log.DogsUnchanged, log.ImagesUploaded, log.ImagesFailed,
		log.ProcessingFailures,
		log.CollectionSeconds, log.ProcessingSeconds, log.DurationSeconds,
		log.DataQualityScore, log.ErrorDetail)
	if err != nil {
		return &types.DatabaseError{Op: "complete scrape log", Err: err}
	}
	return nil
}

// RecentFoundCounts returns dogs_found from the last n successful scrapes of
// one organization, newest first. The partial-failure guard's history.
func (s *ScrapeLogStore) RecentFoundCounts(ctx context.Context, orgID int64, n int) ([]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT dogs_found FROM scrape_logs
		WHERE organization_id = $1 AND outcome = 'success'
		ORDER BY started_at DESC
		LIMIT $2`,
		orgID, n)
	if err != nil {
		return nil, &types.DatabaseError{Op: "recent found counts", Err: err}
	}
	defer rows.Close()

	var counts []int
	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan found count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
