package results

import (
	"context"
	"fmt"
	"strings"

	"linkscan/internal/core/scanid"
	"linkscan/internal/core/scope"
	"linkscan/internal/logger"

	"github.com/jmoiron/sqlx"
)

const insertRows = `INSERT INTO scan_results
	(scan_id, site_id, scanned_at, link_type, location_type, title, link, url)
	VALUES (:scan_id, :site_id, :scanned_at, :link_type, :location_type, :title, :link, :url)`

// networkPattern is a LIKE pattern matching ids created by batch scans.
var networkPattern = strings.ReplaceAll(scanid.NetworkPrefix, "_", `\_`) + "%"

// Store is the durable table of scan results.
type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, log: logger.New("ResultStore")}
}

// Append inserts rows with one multi-row statement: all rows or an error.
// Callers de-duplicate; the store inserts whatever it is given.
func (s *Store) Append(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := s.db.NamedExecContext(ctx, insertRows, rows); err != nil {
		return fmt.Errorf("insert %d scan rows: %w", len(rows), err)
	}
	return nil
}

// ListSummaries groups rows by scan id, newest scan first. The site view
// hides batch scans, which belong to the network view.
func (s *Store) ListSummaries(ctx context.Context, sc scope.Scope) ([]Summary, error) {
	query := `SELECT scan_id, MIN(scanned_at) AS started_at, COUNT(*) AS row_count FROM scan_results`
	var args []interface{}
	if !sc.IsNetwork() {
		query += ` WHERE site_id = $1 AND scan_id NOT LIKE $2`
		args = append(args, sc.SiteID(), networkPattern)
	}
	query += ` GROUP BY scan_id ORDER BY started_at DESC`

	var out []Summary
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list scan summaries: %w", err)
	}
	return out, nil
}

// DeleteScan removes a scan's rows, only the scope's site rows in site scope.
func (s *Store) DeleteScan(ctx context.Context, scanID string, sc scope.Scope) (int64, error) {
	query := `DELETE FROM scan_results WHERE scan_id = $1`
	args := []interface{}{scanID}
	if !sc.IsNetwork() {
		query += ` AND site_id = $2`
		args = append(args, sc.SiteID())
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete scan %s: %w", scanID, err)
	}
	n, _ := res.RowsAffected()
	s.log.LogInfof("deleted %d rows of scan %s (%s)", n, scanID, sc)
	return n, nil
}

// DeleteAll empties the table in network scope, or removes one site's rows.
func (s *Store) DeleteAll(ctx context.Context, sc scope.Scope) error {
	var err error
	if sc.IsNetwork() {
		_, err = s.db.ExecContext(ctx, `TRUNCATE TABLE scan_results`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM scan_results WHERE site_id = $1`, sc.SiteID())
	}
	if err != nil {
		return fmt.Errorf("delete all results (%s): %w", sc, err)
	}
	return nil
}

// PageRows returns a page of a scan's rows in insertion order.
func (s *Store) PageRows(ctx context.Context, scanID string, limit, offset int) ([]Row, error) {
	var out []Row
	err := s.db.SelectContext(ctx, &out, `SELECT id, scan_id, site_id, scanned_at, link_type, location_type, title, link, url
		FROM scan_results WHERE scan_id = $1 ORDER BY id ASC LIMIT $2 OFFSET $3`, scanID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("page rows of %s: %w", scanID, err)
	}
	return out, nil
}
