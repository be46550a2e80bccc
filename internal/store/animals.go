package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rescueradar/rescueradar/internal/types"
)

// AnimalStore reads and writes the animals table.
type AnimalStore struct {
	db     DB
	logger *slog.Logger
}

const animalColumns = `
	id, organization_id, external_id, adoption_url, name,
	breed, standardized_breed, breed_group, primary_breed,
	age_text, age_min_months, age_max_months, age_category,
	sex, gender, size, standardized_size, standardization_confidence,
	primary_image_url, properties, status, availability_confidence,
	consecutive_scrapes_missing, last_seen_at, adoption_checked_at,
	adoption_check_data, content_hash, created_at, updated_at`

func scanAnimal(row pgx.Row) (*types.Animal, error) {
	var a types.Animal
	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.ExternalID, &a.AdoptionURL, &a.Name,
		&a.Breed, &a.StandardizedBreed, &a.BreedGroup, &a.PrimaryBreed,
		&a.AgeText, &a.AgeMinMonths, &a.AgeMaxMonths, &a.AgeCategory,
		&a.Sex, &a.Gender, &a.Size, &a.StandardizedSize, &a.StandardizationConfidence,
		&a.PrimaryImageURL, &a.Properties, &a.Status, &a.AvailabilityConfidence,
		&a.ConsecutiveScrapesMissing, &a.LastSeenAt, &a.AdoptionCheckedAt,
		&a.AdoptionCheckData, &a.ContentHash, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertSQL renders the insert-or-update statement for one animal. The batch
// processor executes it inside its own transaction; this function stays pure.
func (s *AnimalStore) UpsertSQL(a *types.Animal) (string, []any) {
	const q = `
		INSERT INTO animals (
			organization_id, external_id, adoption_url, name,
			breed, standardized_breed, breed_group, primary_breed,
			age_text, age_min_months, age_max_months, age_category,
			sex, gender, size, standardized_size, standardization_confidence,
			primary_image_url, properties, status, availability_confidence,
			consecutive_scrapes_missing, last_seen_at, content_hash
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			'high', 0, now(), $21
		)
		ON CONFLICT (organization_id, external_id) DO UPDATE SET
			adoption_url = EXCLUDED.adoption_url,
			name = EXCLUDED.name,
			breed = EXCLUDED.breed,
			standardized_breed = EXCLUDED.standardized_breed,
			breed_group = EXCLUDED.breed_group,
			primary_breed = EXCLUDED.primary_breed,
			age_text = EXCLUDED.age_text,
			age_min_months = EXCLUDED.age_min_months,
			age_max_months = EXCLUDED.age_max_months,
			age_category = EXCLUDED.age_category,
			sex = EXCLUDED.sex,
			gender = EXCLUDED.gender,
			size = EXCLUDED.size,
			standardized_size = EXCLUDED.standardized_size,
			standardization_confidence = EXCLUDED.standardization_confidence,
			primary_image_url = EXCLUDED.primary_image_url,
			properties = EXCLUDED.properties,
			content_hash = EXCLUDED.content_hash,
			updated_at = now()`

	props := a.Properties
	if props == nil {
		props = map[string]any{}
	}
	args := []any{
		a.OrganizationID, a.ExternalID, a.AdoptionURL, a.Name,
		a.Breed, a.StandardizedBreed, a.BreedGroup, a.PrimaryBreed,
		a.AgeText, a.AgeMinMonths, a.AgeMaxMonths, a.AgeCategory,
		a.Sex, a.Gender, a.Size, a.StandardizedSize, a.StandardizationConfidence,
		a.PrimaryImageURL, props, a.Status, a.ContentHash,
	}
	return q, args
}

// GetByExternalID fetches one animal by its source key.
func (s *AnimalStore) GetByExternalID(ctx context.Context, orgID int64, externalID string) (*types.Animal, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+animalColumns+` FROM animals
		 WHERE organization_id = $1 AND external_id = $2`, orgID, externalID)
	a, err := scanAnimal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pgx.ErrNoRows
	}
	if err != nil {
		return nil, &types.DatabaseError{Op: "get animal", Err: err}
	}
	return a, nil
}

// ListByOrganization returns all stored animals for one organization.
func (s *AnimalStore) ListByOrganization(ctx context.Context, orgID int64) ([]*types.Animal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+animalColumns+` FROM animals
		 WHERE organization_id = $1 ORDER BY external_id`, orgID)
	if err != nil {
		return nil, &types.DatabaseError{Op: "list animals", Err: err}
	}
	defer rows.Close()

	var animals []*types.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan animal: %w", err)
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}

// StoredAdoptionURLs returns the set of adoption URLs currently stored for
// one organization. The filtering service's skip-existing lookup.
func (s *AnimalStore) StoredAdoptionURLs(ctx context.Context, orgID int64) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx,
		`SELECT adoption_url FROM animals WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, &types.DatabaseError{Op: "stored adoption urls", Err: err}
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan adoption url: %w", err)
		}
		urls[u] = struct{}{}
	}
	return urls, rows.Err()
}

// ContentHashes returns external_id -> content_hash for one organization,
// used to classify an upsert as added, updated, or unchanged before the
// batch commits.
func (s *AnimalStore) ContentHashes(ctx context.Context, orgID int64) (map[string]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT external_id, content_hash FROM animals WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, &types.DatabaseError{Op: "content hashes", Err: err}
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan content hash: %w", err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

// ReconcileResult reports how many rows each reconciliation branch touched.
type ReconcileResult struct {
	SeenUpdated   int64
	UnseenUpdated int64
}

// Reconcile applies the stale-detection transitions for one organization in
// a single transaction. Animals in seen get their counter reset and
// confidence restored; when applyAbsence is set, animals not in seen are
// incremented and demoted (medium below four prior misses, low at or above).
func (s *AnimalStore) Reconcile(ctx context.Context, orgID int64, seen []string, applyAbsence bool) (ReconcileResult, error) {
	var res ReconcileResult

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return res, &types.DatabaseError{Op: "reconcile begin", Err: err}
	}
	defer tx.Rollback(ctx)

	if len(seen) > 0 {
		tag, err := tx.Exec(ctx, `
			UPDATE animals SET
				consecutive_scrapes_missing = 0,
				availability_confidence = 'high',
				last_seen_at = now(),
				updated_at = now()
			WHERE organization_id = $1 AND external_id = ANY($2)`,
			orgID, seen)
		if err != nil {
			return res, &types.DatabaseError{Op: "reconcile seen", Err: err}
		}
		res.SeenUpdated = tag.RowsAffected()
	}

	if applyAbsence {
		tag, err := tx.Exec(ctx, `
			UPDATE animals SET
				consecutive_scrapes_missing = consecutive_scrapes_missing + 1,
				availability_confidence = CASE
					WHEN consecutive_scrapes_missing >= 4 THEN 'low'
					ELSE 'medium'
				END,
				updated_at = now()
			WHERE organization_id = $1 AND NOT (external_id = ANY($2))`,
			orgID, seen)
		if err != nil {
			return res, &types.DatabaseError{Op: "reconcile unseen", Err: err}
		}
		res.UnseenUpdated = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return res, &types.DatabaseError{Op: "reconcile commit", Err: err}
	}
	return res, nil
}

// ListForAdoptionCheck selects long-missing animals due for a listing
// re-check: counter at or past the threshold, not already adopted, and not
// checked within the interval. Capped at limit rows.
func (s *AnimalStore) ListForAdoptionCheck(ctx context.Context, orgID int64, threshold int, interval time.Duration, limit int) ([]*types.Animal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+animalColumns+` FROM animals
		 WHERE organization_id = $1
		   AND consecutive_scrapes_missing >= $2
		   AND status NOT IN ('adopted', 'reserved')
		   AND (adoption_checked_at IS NULL OR adoption_checked_at < now() - $3::interval)
		 ORDER BY consecutive_scrapes_missing DESC
		 LIMIT $4`,
		orgID, threshold, fmt.Sprintf("%d seconds", int(interval.Seconds())), limit)
	if err != nil {
		return nil, &types.DatabaseError{Op: "list for adoption check", Err: err}
	}
	defer rows.Close()

	var animals []*types.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan animal: %w", err)
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}

// UpdateAdoptionCheck records one adoption re-check outcome. data is the
// size-capped evidence JSON; a nil data stores SQL NULL.
func (s *AnimalStore) UpdateAdoptionCheck(ctx context.Context, animalID int64, status types.Status, data []byte) error {
	_, err := s.db.Exec(ctx, `
		UPDATE animals SET
			status = $2,
			adoption_checked_at = now(),
			adoption_check_data = $3,
			updated_at = now()
		WHERE id = $1`,
		animalID, status, data)
	if err != nil {
		return &types.DatabaseError{Op: "update adoption check", Err: err}
	}
	return nil
}

// ListForEnrichment selects animals with a raw description but no enriched
// one yet.
func (s *AnimalStore) ListForEnrichment(ctx context.Context, limit int) ([]*types.Animal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+animalColumns+` FROM animals
		 WHERE properties ? 'description'
		   AND NOT properties ? 'enriched_description'
		   AND status = 'available'
		 ORDER BY id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, &types.DatabaseError{Op: "list for enrichment", Err: err}
	}
	defer rows.Close()

	var animals []*types.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan animal: %w", err)
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}

// EnrichmentSQL renders the statement that stores an enriched description
// into the properties blob. Consumed by the batch processor.
func (s *AnimalStore) EnrichmentSQL(animalID int64, enriched string) (string, []any) {
	const q = `
		UPDATE animals SET
			properties = jsonb_set(properties, '{enriched_description}', to_jsonb($2::text)),
			updated_at = now()
		WHERE id = $1`
	return q, []any{animalID, enriched}
}
