package scan

import (
	"context"

	"linkscan/internal/core/results"
	"linkscan/internal/metrics"
)

// RowWriter persists a batch of rows atomically.
type RowWriter interface {
	Append(ctx context.Context, rows []results.Row) error
}

// batcher buffers rows and writes them in fixed-size multi-row inserts.
type batcher struct {
	w     RowWriter
	size  int
	rows  []results.Row
	stats *Stats
}

func newBatcher(w RowWriter, size int, stats *Stats) *batcher {
	return &batcher{w: w, size: size, rows: make([]results.Row, 0, size), stats: stats}
}

func (b *batcher) add(ctx context.Context, r results.Row) error {
	b.rows = append(b.rows, r)
	if len(b.rows) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.rows) == 0 {
		return nil
	}
	if err := b.w.Append(ctx, b.rows); err != nil {
		metrics.BatchFlushes.WithLabelValues("error").Inc()
		return err
	}
	metrics.BatchFlushes.WithLabelValues("ok").Inc()
	for _, r := range b.rows {
		metrics.RowsWritten.WithLabelValues(string(r.LinkType)).Inc()
		b.stats.count(r)
	}
	b.stats.Batches++
	b.rows = b.rows[:0]
	return nil
}

// seenSet suppresses duplicate links within one executor run.
type seenSet map[string]struct{}

// first records link and reports whether it was new.
func (s seenSet) first(link string) bool {
	if _, ok := s[link]; ok {
		return false
	}
	s[link] = struct{}{}
	return true
}
