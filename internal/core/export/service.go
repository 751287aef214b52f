package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"linkscan/internal/core/linkcheck"
	"linkscan/internal/core/results"
	"linkscan/internal/core/scanid"
	"linkscan/internal/logger"
	"linkscan/internal/metrics"
	"linkscan/internal/platform/tasks"

	"github.com/hibiken/asynq"
)

const TaskTypeGenerateCSV = "export:csv"

const DefaultPageSize = 500

var ErrInvalidScanID = errors.New("invalid scan id")

type Payload struct {
	ScanID string `json:"scan_id"`
}

// State of a scan's export as seen by callers.
type State string

const (
	StateReady  State = "ready"
	StateQueued State = "queued"
	StateNone   State = "none"
)

type RowPager interface {
	PageRows(ctx context.Context, scanID string, limit, offset int) ([]results.Row, error)
}

// Mirror receives a copy of every finished export.
type Mirror interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Remove(ctx context.Context, key string) error
}

type Options struct {
	Dir      string
	PageSize int
	// Mirror is optional.
	Mirror Mirror
}

type Service struct {
	rows     RowPager
	queue    tasks.Queue
	dir      string
	pageSize int
	mirror   Mirror
	log      *logger.Logger
}

func NewService(rows RowPager, queue tasks.Queue, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Service{
		rows:     rows,
		queue:    queue,
		dir:      opts.Dir,
		pageSize: opts.PageSize,
		mirror:   opts.Mirror,
		log:      logger.New("Exporter"),
	}
}

func ref(id string) tasks.Ref {
	return tasks.Ref{Type: TaskTypeGenerateCSV, Queue: tasks.QueueExports, Key: id}
}

// FileName is the export's file name, also its object key in the mirror.
func FileName(id string) string { return "scan_" + id + ".csv" }

// Path is where the export of id lives once generated.
func (s *Service) Path(id string) string { return filepath.Join(s.dir, FileName(id)) }

// Request enqueues generation unless a job for the scan is already waiting.
func (s *Service) Request(ctx context.Context, id string) (State, error) {
	if !scanid.Valid(id) {
		return StateNone, ErrInvalidScanID
	}
	err := s.queue.Enqueue(ctx, tasks.Job{Ref: ref(id), Payload: Payload{ScanID: id}})
	if err != nil && !errors.Is(err, tasks.ErrAlreadyQueued) {
		return StateNone, fmt.Errorf("enqueue export of %s: %w", id, err)
	}
	return StateQueued, nil
}

// State reports ready when the file exists, queued when a job is waiting.
// A file is only ever present complete.
func (s *Service) State(ctx context.Context, id string) (State, error) {
	if !scanid.Valid(id) {
		return StateNone, ErrInvalidScanID
	}
	if _, err := os.Stat(s.Path(id)); err == nil {
		return StateReady, nil
	}
	pending, err := s.queue.Pending(ctx, ref(id))
	if err != nil {
		return StateNone, err
	}
	if pending {
		return StateQueued, nil
	}
	return StateNone, nil
}

func (s *Service) HandleGenerateTask(ctx context.Context, task *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode export payload: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := s.Generate(ctx, p.ScanID); err != nil {
		// The missing file is the failure signal; the job itself is done.
		metrics.ExportsTotal.WithLabelValues("failed").Inc()
		s.log.LogErrorf("export of %s failed: %v", p.ScanID, err)
		return nil
	}
	metrics.ExportsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Generate writes the scan's rows to its CSV file page by page and returns
// the number of data rows written. The file appears atomically.
func (s *Service) Generate(ctx context.Context, id string) (int, error) {
	if !scanid.Valid(id) {
		return 0, ErrInvalidScanID
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, FileName(id)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	written, err := s.write(ctx, tmp, id)
	if err != nil {
		return written, err
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(id)); err != nil {
		return written, fmt.Errorf("publish export file: %w", err)
	}
	metrics.ExportRowsWritten.Add(float64(written))
	s.log.LogInfof("exported %d rows of %s to %s", written, id, s.Path(id))

	s.upload(ctx, id)
	return written, nil
}

func (s *Service) write(ctx context.Context, f *os.File, id string) (int, error) {
	buf := bufio.NewWriter(f)
	w := csv.NewWriter(buf)
	if err := w.Write([]string{"url", "type"}); err != nil {
		return 0, err
	}

	written := 0
	for offset := 0; ; offset += s.pageSize {
		page, err := s.rows.PageRows(ctx, id, s.pageSize, offset)
		if err != nil {
			return written, err
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			rec, ok := linkcheck.ForExport(string(r.LinkType), r.Link, r.URL)
			if !ok {
				continue
			}
			if err := w.Write([]string{rec.URL, rec.Type}); err != nil {
				return written, err
			}
			written++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return written, err
	}
	return written, buf.Flush()
}

func (s *Service) upload(ctx context.Context, id string) {
	if s.mirror == nil {
		return
	}
	f, err := os.Open(s.Path(id))
	if err != nil {
		s.log.LogWarnf("mirror upload of %s skipped: %v", id, err)
		return
	}
	defer f.Close()
	if err := s.mirror.Upload(ctx, FileName(id), f, "text/csv"); err != nil {
		s.log.LogWarnf("mirror upload of %s failed: %v", id, err)
	}
}

// Remove deletes the export file and any mirrored copy. A missing file is
// not an error.
func (s *Service) Remove(ctx context.Context, id string) error {
	if !scanid.Valid(id) {
		return ErrInvalidScanID
	}
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove export of %s: %w", id, err)
	}
	if s.mirror != nil {
		if err := s.mirror.Remove(ctx, FileName(id)); err != nil {
			s.log.LogWarnf("remove mirrored export of %s: %v", id, err)
		}
	}
	return nil
}
