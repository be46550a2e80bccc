// Package store provides typed access to the organizations, animals,
// animal_images, and scrape_logs tables. SQL lives here and nowhere else;
// callers above this layer work with the domain records in internal/types.
package store

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the slice of pgx that the store needs. *pgxpool.Pool satisfies it;
// tests substitute fakes.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store bundles the table gateways over one connection pool.
type Store struct {
	db     DB
	logger *slog.Logger

	Organizations *OrganizationStore
	Animals       *AnimalStore
	Images        *ImageStore
	ScrapeLogs    *ScrapeLogStore
}

// New creates a Store over the given pool.
func New(db DB, logger *slog.Logger) *Store {
	l := logger.With("component", "store")
	return &Store{
		db:            db,
		logger:        l,
		Organizations: &OrganizationStore{db: db, logger: l},
		Animals:       &AnimalStore{db: db, logger: l},
		Images:        &ImageStore{db: db, logger: l},
		ScrapeLogs:    &ScrapeLogStore{db: db, logger: l},
	}
}

// DB exposes the underlying pool for the batch processor's transactions.
func (s *Store) DB() DB { return s.db }
