package results

import "time"

// LinkType is stored verbatim in link_type.
type LinkType string

const (
	LinkPDF       LinkType = "PDF"
	LinkPublicURL LinkType = "Public URL"
	// LinkMenu marks menu-only classifications. Export ignores it.
	LinkMenu LinkType = "Menu"
)

const (
	LocationMenu = "Menu"
	// FieldLocationSuffix is appended to the location of links found in
	// custom fields.
	FieldLocationSuffix = " (ACF Field)"
)

// Row is one scan result. Rows are immutable once written.
type Row struct {
	ID           int64     `db:"id" json:"id"`
	ScanID       string    `db:"scan_id" json:"scan_id"`
	SiteID       int64     `db:"site_id" json:"site_id"`
	ScannedAt    time.Time `db:"scanned_at" json:"timestamp"`
	LinkType     LinkType  `db:"link_type" json:"link_type"`
	LocationType string    `db:"location_type" json:"location_type"`
	Title        string    `db:"title" json:"title"`
	Link         string    `db:"link" json:"link"`
	URL          string    `db:"url" json:"url"`
}

// Summary groups the rows of one scan.
type Summary struct {
	ScanID    string    `db:"scan_id" json:"scan_id"`
	StartedAt time.Time `db:"started_at" json:"started_at"`
	Rows      int64     `db:"row_count" json:"rows"`
}
