package results

import (
	"context"
	"errors"
	"testing"
	"time"

	"linkscan/internal/core/scope"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rowColumns = []string{"id", "scan_id", "site_id", "scanned_at", "link_type", "location_type", "title", "link", "url"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewStore(sqlx.NewDb(mockDB, "postgres")), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAppendInsertsAllRowsInOneStatement(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []Row{
		{ScanID: "scan_network_a", SiteID: 2, ScannedAt: at, LinkType: LinkPDF, LocationType: "Page", Title: "Forms", Link: "https://x/a.pdf", URL: "https://x/forms"},
		{ScanID: "scan_network_a", SiteID: 2, ScannedAt: at, LinkType: LinkPublicURL, LocationType: "Page", Title: "Forms", URL: "https://x/forms"},
	}

	mock.ExpectExec(`INSERT INTO scan_results`).
		WithArgs(
			"scan_network_a", int64(2), at, "PDF", "Page", "Forms", "https://x/a.pdf", "https://x/forms",
			"scan_network_a", int64(2), at, "Public URL", "Page", "Forms", "", "https://x/forms",
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.Append(context.Background(), rows))
	expectationsMet(t, mock)
}

func TestAppendEmptyIsNoop(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.Append(context.Background(), nil))
	expectationsMet(t, mock)
}

func TestAppendSurfacesStorageError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO scan_results`).WillReturnError(errors.New("disk full"))

	err := store.Append(context.Background(), []Row{{ScanID: "s", SiteID: 1, LinkType: LinkPDF}})
	assert.ErrorContains(t, err, "disk full")
	expectationsMet(t, mock)
}

func TestListSummariesNetwork(t *testing.T) {
	store, mock := newMockStore(t)
	newer := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT scan_id, MIN\(scanned_at\) AS started_at, COUNT\(\*\) AS row_count FROM scan_results GROUP BY scan_id ORDER BY started_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"scan_id", "started_at", "row_count"}).
			AddRow("scan_network_b", newer, 10).
			AddRow("scan_main_a", older, 3))

	got, err := store.ListSummaries(context.Background(), scope.Network())
	require.NoError(t, err)
	assert.Equal(t, []Summary{
		{ScanID: "scan_network_b", StartedAt: newer, Rows: 10},
		{ScanID: "scan_main_a", StartedAt: older, Rows: 3},
	}, got)
	expectationsMet(t, mock)
}

func TestListSummariesSiteExcludesNetworkScans(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM scan_results WHERE site_id = \$1 AND scan_id NOT LIKE \$2 GROUP BY scan_id`).
		WithArgs(int64(7), `scan\_network\_%`).
		WillReturnRows(sqlmock.NewRows([]string{"scan_id", "started_at", "row_count"}))

	got, err := store.ListSummaries(context.Background(), scope.Site(7))
	require.NoError(t, err)
	assert.Empty(t, got)
	expectationsMet(t, mock)
}

func TestDeleteScan(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM scan_results WHERE scan_id = \$1$`).
		WithArgs("scan_network_a").
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec(`DELETE FROM scan_results WHERE scan_id = \$1 AND site_id = \$2`).
		WithArgs("scan_main_a", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.DeleteScan(context.Background(), "scan_network_a", scope.Network())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	n, err = store.DeleteScan(context.Background(), "scan_main_a", scope.Site(3))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	expectationsMet(t, mock)
}

func TestDeleteAll(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`TRUNCATE TABLE scan_results`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM scan_results WHERE site_id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 9))

	require.NoError(t, store.DeleteAll(context.Background(), scope.Network()))
	require.NoError(t, store.DeleteAll(context.Background(), scope.Site(5)))
	expectationsMet(t, mock)
}

func TestPageRows(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM scan_results WHERE scan_id = \$1 ORDER BY id ASC LIMIT \$2 OFFSET \$3`).
		WithArgs("scan_a", 500, 1000).
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow(1001, "scan_a", 1, at, "PDF", "Post", "T", "https://x/a.pdf", "https://x/t").
			AddRow(1002, "scan_a", 1, at, "Public URL", "Post", "T", "", "https://x/t"))

	rows, err := store.PageRows(context.Background(), "scan_a", 500, 1000)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, LinkPDF, rows[0].LinkType)
	assert.Equal(t, LinkPublicURL, rows[1].LinkType)
	assert.Equal(t, int64(1002), rows[1].ID)
	expectationsMet(t, mock)
}
