package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscan_scan_jobs_total",
			Help: "Site scan jobs run, by outcome.",
		},
		[]string{"status"}, // ok, failed, site_missing
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkscan_scan_duration_seconds",
			Help:    "Duration of one site scan.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscan_scan_rows_written_total",
			Help: "Scan result rows written, by link type.",
		},
		[]string{"link_type"},
	)

	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscan_scan_batch_flushes_total",
			Help: "Result batch inserts, by outcome.",
		},
		[]string{"status"},
	)

	DocumentsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkscan_scan_documents_skipped_total",
			Help: "Documents skipped because they failed to load.",
		},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscan_exports_total",
			Help: "CSV exports generated, by outcome.",
		},
		[]string{"status"},
	)

	ExportRowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkscan_export_rows_written_total",
			Help: "Data rows written to CSV exports.",
		},
	)
)
