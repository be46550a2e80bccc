package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rescueradar/rescueradar/internal/types"
)

// OrganizationStore reads and writes the organizations table.
type OrganizationStore struct {
	db     DB
	logger *slog.Logger
}

const orgColumns = `id, config_id, name, website_url, active, created_at, updated_at`

func scanOrganization(row pgx.Row) (*types.Organization, error) {
	var o types.Organization
	err := row.Scan(&o.ID, &o.ConfigID, &o.Name, &o.WebsiteURL, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetByConfigID looks up an organization by its stable slug.
func (s *OrganizationStore) GetByConfigID(ctx context.Context, configID string) (*types.Organization, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE config_id = $1`, configID)
	o, err := scanOrganization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrOrgNotFound
	}
	if err != nil {
		return nil, &types.DatabaseError{Op: "get organization", Err: err}
	}
	return o, nil
}

// Ensure resolves the database row for a configured organization, inserting
// it on first sight and syncing name/url/active on subsequent loads. Config
// sync is the only writer of organization identity.
func (s *OrganizationStore) Ensure(ctx context.Context, configID, name, websiteURL string, active bool) (*types.Organization, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO organizations (config_id, name, website_url, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (config_id) DO UPDATE SET
			name = EXCLUDED.name,
			website_url = EXCLUDED.website_url,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING `+orgColumns,
		configID, name, websiteURL, active)
	o, err := scanOrganization(row)
	if err != nil {
		return nil, &types.DatabaseError{Op: "ensure organization", Err: err}
	}
	return o, nil
}

// ListActive returns all active organizations ordered by slug.
func (s *OrganizationStore) ListActive(ctx context.Context) ([]*types.Organization, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE active ORDER BY config_id`)
	if err != nil {
		return nil, &types.DatabaseError{Op: "list organizations", Err: err}
	}
	defer rows.Close()

	var orgs []*types.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}
