package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_scan_results",
		Up: `
CREATE TABLE IF NOT EXISTS scan_results (
	id            BIGSERIAL PRIMARY KEY,
	scan_id       VARCHAR(128) NOT NULL,
	site_id       BIGINT NOT NULL,
	scanned_at    TIMESTAMPTZ NOT NULL,
	link_type     VARCHAR(32) NOT NULL,
	location_type VARCHAR(255) NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	link          TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_scan_results_scan_id ON scan_results (scan_id, id);
CREATE INDEX IF NOT EXISTS idx_scan_results_site_id ON scan_results (site_id);
`,
		Down: `DROP TABLE IF EXISTS scan_results;`,
	},
}

// Migrate applies every migration newer than the recorded version, each in
// its own transaction.
func (s *Service) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.version(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for _, m := range sorted {
		if m.Version <= current {
			continue
		}
		if err := s.apply(ctx, m.Up, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name)
			return err
		}); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		s.log.LogInfof("applied migration %d (%s)", m.Version, m.Name)
	}
	return nil
}

// Rollback reverts the latest applied migration.
func (s *Service) Rollback(ctx context.Context) error {
	current, err := s.version(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current == 0 {
		return fmt.Errorf("no migrations to roll back")
	}
	for _, m := range migrations {
		if m.Version != current {
			continue
		}
		return s.apply(ctx, m.Down, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.Version)
			return err
		})
	}
	return fmt.Errorf("migration %d not found", current)
}

func (s *Service) version(ctx context.Context) (int, error) {
	var v int
	err := s.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	return v, err
}

func (s *Service) apply(ctx context.Context, stmt string, record func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit()
}
