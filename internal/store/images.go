package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rescueradar/rescueradar/internal/types"
)

// ImageStore renders statements for the animal_images table. Image rows ride
// the same batch processor as animal upserts, so this store is all builders.
type ImageStore struct {
	db     DB
	logger *slog.Logger
}

// UpsertSQL renders the insert-or-update statement for one image row.
func (s *ImageStore) UpsertSQL(img *types.AnimalImage) (string, []any) {
	const q = `
		INSERT INTO animal_images (
			organization_id, external_id, image_url, position,
			content_type, bytes, verified, checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (organization_id, external_id, image_url) DO UPDATE SET
			position = EXCLUDED.position,
			content_type = EXCLUDED.content_type,
			bytes = EXCLUDED.bytes,
			verified = EXCLUDED.verified,
			checked_at = EXCLUDED.checked_at`
	return q, []any{
		img.OrganizationID, img.ExternalID, img.ImageURL, img.Position,
		img.ContentType, img.Bytes, img.Verified, img.CheckedAt,
	}
}

// VerifiedCounts returns external_id -> verified image count for one
// organization. The quality monitor's visual-appeal input.
func (s *ImageStore) VerifiedCounts(ctx context.Context, orgID int64) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT external_id, count(*) FROM animal_images
		WHERE organization_id = $1 AND verified
		GROUP BY external_id`, orgID)
	if err != nil {
		return nil, &types.DatabaseError{Op: "verified image counts", Err: err}
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan image count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
