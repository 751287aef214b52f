package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"linkscan/internal/core/scan"
	"linkscan/internal/core/scanid"
	"linkscan/internal/core/scope"
	"linkscan/internal/core/sites"
	"linkscan/internal/logger"
	"linkscan/internal/metrics"
	"linkscan/internal/platform/tasks"

	"github.com/hibiken/asynq"
)

const TaskTypeSiteScan = "scan:site"

// DefaultMaxDelay spreads batch jobs over five minutes.
const DefaultMaxDelay = 300 * time.Second

type SiteScanPayload struct {
	SiteID int64  `json:"site_id"`
	ScanID string `json:"scan_id"`
	Batch  bool   `json:"batch"`
}

type StatusStore interface {
	Get(ctx context.Context, sc scope.Scope) (string, bool, error)
	Set(ctx context.Context, sc scope.Scope, scanID string) error
	Clear(ctx context.Context, sc scope.Scope) error
}

type SiteLister interface {
	ListSites(ctx context.Context) ([]sites.Site, error)
	Site(ctx context.Context, id int64) (sites.Site, error)
}

type Runner interface {
	Run(ctx context.Context, site sites.Site, scanID string) (scan.Stats, error)
}

type ResultDeleter interface {
	DeleteScan(ctx context.Context, scanID string, sc scope.Scope) (int64, error)
}

type ArtifactRemover interface {
	Remove(ctx context.Context, scanID string) error
}

type Deps struct {
	Sites     SiteLister
	Status    StatusStore
	Queue     tasks.Queue
	Runner    Runner
	Results   ResultDeleter
	Artifacts ArtifactRemover
}

type Service struct {
	Deps
	maxDelay time.Duration
	jitter   func(max time.Duration) time.Duration
	log      *logger.Logger
}

func NewService(d Deps, maxDelay time.Duration) *Service {
	if maxDelay < 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Service{Deps: d, maxDelay: maxDelay, jitter: randomDelay, log: logger.New("Scheduler")}
}

// randomDelay picks a whole number of seconds in [0, max].
func randomDelay(max time.Duration) time.Duration {
	secs := int64(max / time.Second)
	if secs <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(secs+1)) * time.Second
}

func siteRef(id int64) tasks.Ref {
	return tasks.Ref{Type: TaskTypeSiteScan, Queue: tasks.QueueScans, Key: strconv.FormatInt(id, 10)}
}

// Scheduled reports what a scheduling call did.
type Scheduled struct {
	ScanID   string `json:"scan_id"`
	Enqueued int    `json:"enqueued"`
	Skipped  int    `json:"skipped"`
	Total    int    `json:"total"`
}

// Schedule starts a batch scan in network scope, a single-site scan otherwise.
func (s *Service) Schedule(ctx context.Context, sc scope.Scope) (Scheduled, error) {
	if sc.IsNetwork() {
		return s.ScheduleNetwork(ctx)
	}
	return s.ScheduleSite(ctx, sc.SiteID())
}

// ScheduleNetwork records one shared scan id for the network and every site
// that is not already waiting, then enqueues one delayed job per such site.
// Sites with a waiting job keep it; nothing is enqueued twice. When every
// site is skipped the previous network id stays current.
func (s *Service) ScheduleNetwork(ctx context.Context) (out Scheduled, err error) {
	list, err := s.Sites.ListSites(ctx)
	if err != nil {
		return Scheduled{}, fmt.Errorf("list sites: %w", err)
	}
	prev, hadPrev, err := s.Status.Get(ctx, scope.Network())
	if err != nil {
		return Scheduled{}, err
	}
	id := scanid.ForNetwork()
	if err := s.Status.Set(ctx, scope.Network(), id); err != nil {
		return Scheduled{}, err
	}
	defer func() {
		if out.Enqueued > 0 {
			return
		}
		out.ScanID = prev
		var rerr error
		if hadPrev {
			rerr = s.Status.Set(ctx, scope.Network(), prev)
		} else {
			rerr = s.Status.Clear(ctx, scope.Network())
		}
		if rerr != nil && err == nil {
			err = rerr
		}
	}()

	out = Scheduled{ScanID: id, Total: len(list)}
	for _, site := range list {
		pending, err := s.Queue.Pending(ctx, siteRef(site.ID))
		if err != nil {
			return out, err
		}
		if pending {
			out.Skipped++
			continue
		}
		if err := s.Status.Set(ctx, scope.Site(site.ID), id); err != nil {
			return out, err
		}
		job := tasks.Job{
			Ref:     siteRef(site.ID),
			Payload: SiteScanPayload{SiteID: site.ID, ScanID: id, Batch: true},
			Delay:   s.jitter(s.maxDelay),
		}
		if err := s.Queue.Enqueue(ctx, job); err != nil {
			if errors.Is(err, tasks.ErrAlreadyQueued) {
				out.Skipped++
				continue
			}
			return out, fmt.Errorf("enqueue site %d: %w", site.ID, err)
		}
		out.Enqueued++
	}
	if out.Enqueued == 0 {
		s.log.LogInfof("network scan not started: all %d sites already waiting", out.Skipped)
		return out, nil
	}
	s.log.LogInfof("scheduled network scan %s: %d enqueued, %d already waiting", id, out.Enqueued, out.Skipped)
	return out, nil
}

// ScheduleSite records a fresh scan id for the site and enqueues an
// immediate job unless one is already waiting; the waiting job then runs
// under the new id.
func (s *Service) ScheduleSite(ctx context.Context, siteID int64) (Scheduled, error) {
	site, err := s.Sites.Site(ctx, siteID)
	if err != nil {
		return Scheduled{}, err
	}
	id := scanid.ForSite(site.ID, site.Name)
	if err := s.Status.Set(ctx, scope.Site(site.ID), id); err != nil {
		return Scheduled{}, err
	}

	out := Scheduled{ScanID: id, Total: 1}
	err = s.Queue.Enqueue(ctx, tasks.Job{
		Ref:     siteRef(site.ID),
		Payload: SiteScanPayload{SiteID: site.ID, ScanID: id},
	})
	switch {
	case errors.Is(err, tasks.ErrAlreadyQueued):
		s.log.LogDebugf("site %d already has a waiting scan", site.ID)
		out.Skipped = 1
	case err != nil:
		return out, fmt.Errorf("enqueue site %d: %w", site.ID, err)
	default:
		out.Enqueued = 1
	}
	s.log.LogInfof("scheduled scan %s for site %d", id, site.ID)
	return out, nil
}

// HandleSiteScanTask is the worker entry point. Scan failures are logged and
// the job still counts as completed; only an unreadable payload is rejected.
func (s *Service) HandleSiteScanTask(ctx context.Context, task *asynq.Task) error {
	var p SiteScanPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode site scan payload: %v: %w", err, asynq.SkipRetry)
	}
	return s.RunSiteScan(ctx, p)
}

// RunSiteScan scans one site under its current scan id, then moves the site
// back to idle. When no site has a waiting job left, the network scan is over.
func (s *Service) RunSiteScan(ctx context.Context, p SiteScanPayload) error {
	log := s.log.With(map[string]interface{}{"site_id": p.SiteID})
	defer s.finish(ctx, p.SiteID, log)

	site, err := s.Sites.Site(ctx, p.SiteID)
	if err != nil {
		metrics.ScanJobsTotal.WithLabelValues("site_missing").Inc()
		log.LogError("site scan skipped", err)
		return nil
	}

	id, err := s.resolveScanID(ctx, site, p)
	if err != nil {
		metrics.ScanJobsTotal.WithLabelValues("failed").Inc()
		log.LogError("resolve scan id", err)
		return nil
	}

	start := time.Now()
	stats, err := s.Runner.Run(ctx, site, id)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScanJobsTotal.WithLabelValues("failed").Inc()
		log.LogErrorf("scan %s of site %d stopped after %d rows: %v", id, site.ID, stats.Rows(), err)
		return nil
	}
	metrics.ScanJobsTotal.WithLabelValues("ok").Inc()
	log.LogSuccessf("scan %s of site %d done: %d documents, %d pdf, %d field, %d menu, %d public, %d skipped",
		id, site.ID, stats.Documents, stats.PDFLinks, stats.FieldLinks, stats.MenuLinks, stats.PublicURLs, stats.Skipped)
	return nil
}

// resolveScanID prefers the site's recorded id, then the network id, then
// the id carried in the job, and finally mints a single-site id.
func (s *Service) resolveScanID(ctx context.Context, site sites.Site, p SiteScanPayload) (string, error) {
	if id, ok, err := s.Status.Get(ctx, scope.Site(site.ID)); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	if id, ok, err := s.Status.Get(ctx, scope.Network()); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	if p.ScanID != "" {
		return p.ScanID, nil
	}
	return scanid.ForSite(site.ID, site.Name), nil
}

func (s *Service) finish(ctx context.Context, siteID int64, log *logger.Logger) {
	// Completion must be recorded even when the job's context is done.
	ctx = context.WithoutCancel(ctx)

	list, err := s.Sites.ListSites(ctx)
	if err != nil {
		log.LogError("list sites after scan", err)
	} else {
		waiting, err := s.countPending(ctx, list)
		if err != nil {
			log.LogError("check waiting scans", err)
		} else if waiting == 0 {
			if err := s.Status.Clear(ctx, scope.Network()); err != nil {
				log.LogError("clear network scan id", err)
			}
		}
	}
	if err := s.Status.Clear(ctx, scope.Site(siteID)); err != nil {
		log.LogError("clear site scan id", err)
	}
}

func (s *Service) countPending(ctx context.Context, list []sites.Site) (int, error) {
	n := 0
	for _, site := range list {
		pending, err := s.Queue.Pending(ctx, siteRef(site.ID))
		if err != nil {
			return 0, err
		}
		if pending {
			n++
		}
	}
	return n, nil
}

type Progress struct {
	Active  bool   `json:"is_scan_active"`
	Pending int    `json:"pending"`
	Total   int    `json:"total"`
	ScanID  string `json:"scan_id,omitempty"`
}

// Progress counts the sites in scope that still have a waiting job.
func (s *Service) Progress(ctx context.Context, sc scope.Scope) (Progress, error) {
	var out Progress
	id, _, err := s.Status.Get(ctx, sc)
	if err != nil {
		return out, err
	}
	out.ScanID = id

	if sc.IsNetwork() {
		list, err := s.Sites.ListSites(ctx)
		if err != nil {
			return out, fmt.Errorf("list sites: %w", err)
		}
		out.Total = len(list)
		if out.Pending, err = s.countPending(ctx, list); err != nil {
			return out, err
		}
	} else {
		out.Total = 1
		pending, err := s.Queue.Pending(ctx, siteRef(sc.SiteID()))
		if err != nil {
			return out, err
		}
		if pending {
			out.Pending = 1
		}
	}
	out.Active = out.Pending > 0
	return out, nil
}

type Stopped struct {
	ScanID      string `json:"scan_id,omitempty"`
	Cancelled   int    `json:"cancelled"`
	RowsDeleted int64  `json:"rows_deleted"`
}

// StopAll cancels every waiting job in scope. When the scope has a current
// scan, its rows and export file are removed and the scope's scan ids are
// cleared. Jobs already running are not interrupted.
func (s *Service) StopAll(ctx context.Context, sc scope.Scope) (Stopped, error) {
	var out Stopped
	var targets []sites.Site
	if sc.IsNetwork() {
		list, err := s.Sites.ListSites(ctx)
		if err != nil {
			return out, fmt.Errorf("list sites: %w", err)
		}
		targets = list
	} else {
		targets = []sites.Site{{ID: sc.SiteID()}}
	}

	id, ok, err := s.Status.Get(ctx, sc)
	if err != nil {
		return out, err
	}

	for _, site := range targets {
		pending, err := s.Queue.Pending(ctx, siteRef(site.ID))
		if err != nil {
			return out, err
		}
		if !pending {
			continue
		}
		if err := s.Queue.Cancel(ctx, siteRef(site.ID)); err != nil {
			return out, err
		}
		out.Cancelled++
	}

	if !ok {
		s.log.LogInfof("stopped %s: %d jobs cancelled, no current scan", sc, out.Cancelled)
		return out, nil
	}
	out.ScanID = id

	if out.RowsDeleted, err = s.Results.DeleteScan(ctx, id, sc); err != nil {
		return out, err
	}
	if err := s.Artifacts.Remove(ctx, id); err != nil {
		s.log.LogWarnf("remove export of %s: %v", id, err)
	}
	if err := s.Status.Clear(ctx, sc); err != nil {
		return out, err
	}
	if sc.IsNetwork() {
		for _, site := range targets {
			if err := s.Status.Clear(ctx, scope.Site(site.ID)); err != nil {
				return out, err
			}
		}
	}
	s.log.LogInfof("stopped %s scan %s: %d jobs cancelled, %d rows deleted", sc, id, out.Cancelled, out.RowsDeleted)
	return out, nil
}
