// Package scan walks one site's documents and menus and records PDF links
// and public document URLs.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"linkscan/internal/core/content"
	"linkscan/internal/core/linkcheck"
	"linkscan/internal/core/results"
	"linkscan/internal/core/sites"
	"linkscan/internal/logger"
	"linkscan/internal/metrics"
)

const (
	DefaultBatchSize = 100
	DefaultPageSize  = 100
)

type Options struct {
	BatchSize int
	PageSize  int
}

// Stats counts what one run wrote and skipped.
type Stats struct {
	Documents  int `json:"documents"`
	Skipped    int `json:"skipped"`
	PDFLinks   int `json:"pdf_links"`
	FieldLinks int `json:"field_links"`
	MenuLinks  int `json:"menu_links"`
	PublicURLs int `json:"public_urls"`
	Batches    int `json:"batches"`
}

func (s *Stats) count(r results.Row) {
	switch {
	case r.LinkType == results.LinkPublicURL:
		s.PublicURLs++
	case r.LocationType == results.LocationMenu:
		s.MenuLinks++
	case strings.HasSuffix(r.LocationType, results.FieldLocationSuffix):
		s.FieldLinks++
	default:
		s.PDFLinks++
	}
}

// Rows is the total number of rows written.
func (s Stats) Rows() int { return s.PDFLinks + s.FieldLinks + s.MenuLinks + s.PublicURLs }

type Executor struct {
	opener content.Opener
	store  RowWriter
	opts   Options
	now    func() time.Time
	log    *logger.Logger
}

func NewExecutor(opener content.Opener, store RowWriter, opts Options) *Executor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Executor{opener: opener, store: store, opts: opts, now: time.Now, log: logger.New("ScanExecutor")}
}

// run holds the state of one executor invocation.
type run struct {
	repo    content.Repository
	site    sites.Site
	scanID  string
	at      time.Time
	stats   Stats
	log     *logger.Logger
	links   *batcher
	public  *batcher
	docSeen seenSet
}

// Run writes every result row for one site under scanID. Rows are flushed
// as batches fill, so a storage error leaves earlier batches in place and
// aborts the rest of the scan. Documents that fail to load are skipped.
func (e *Executor) Run(ctx context.Context, site sites.Site, scanID string) (Stats, error) {
	repo, err := e.opener.Open(site)
	if err != nil {
		return Stats{}, fmt.Errorf("open site %d: %w", site.ID, err)
	}

	r := &run{
		repo:    repo,
		site:    site,
		scanID:  scanID,
		at:      e.now().UTC(),
		log:     e.log.With(map[string]interface{}{"scan_id": scanID, "site_id": site.ID}),
		docSeen: seenSet{},
	}
	r.links = newBatcher(e.store, e.opts.BatchSize, &r.stats)
	r.public = newBatcher(e.store, e.opts.BatchSize, &r.stats)

	if err := e.scanDocuments(ctx, r); err != nil {
		return r.stats, err
	}
	if err := r.links.flush(ctx); err != nil {
		return r.stats, err
	}

	if err := e.scanMenus(ctx, r); err != nil {
		return r.stats, err
	}
	if err := r.links.flush(ctx); err != nil {
		return r.stats, err
	}

	if err := r.public.flush(ctx); err != nil {
		return r.stats, err
	}
	return r.stats, nil
}

func (e *Executor) scanDocuments(ctx context.Context, r *run) error {
	types, err := r.repo.Types(ctx)
	if err != nil {
		return fmt.Errorf("list content types: %w", err)
	}
	for _, t := range types {
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids, err := r.repo.ListPublished(ctx, t, page, e.opts.PageSize)
			if err != nil {
				// The rest of this type is unreachable; keep going with the next.
				r.log.LogWarnf("list %s page %d failed: %v", t.Name, page, err)
				break
			}
			if len(ids) == 0 {
				break
			}
			for _, id := range ids {
				if err := e.scanDocument(ctx, r, t, id); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *Executor) scanDocument(ctx context.Context, r *run, t content.Type, id int64) error {
	doc, err := r.repo.Document(ctx, t, id)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			r.log.LogWarnf("skipping %s %d: %v", t.Name, id, err)
		}
		r.stats.Skipped++
		metrics.DocumentsSkipped.Inc()
		return nil
	}
	if !doc.Visible() {
		return nil
	}
	r.stats.Documents++

	location := t.Label
	if location == "" {
		location = t.Name
	}

	for _, href := range linkcheck.Hrefs(doc.Content) {
		link, kind := linkcheck.Classify(href)
		if kind != linkcheck.PDF || !r.docSeen.first(link) {
			continue
		}
		if err := r.links.add(ctx, r.row(results.LinkPDF, location, doc.Title, link, doc.Permalink)); err != nil {
			return err
		}
	}

	fields, err := r.repo.Fields(ctx, t, id)
	if err != nil {
		r.log.LogDebugf("no fields for %s %d: %v", t.Name, id, err)
		fields = nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, ok := fields[key].(string)
		if !ok {
			continue
		}
		for _, raw := range linkcheck.URLs(value) {
			link, kind := linkcheck.Classify(raw)
			if kind != linkcheck.PDF || !r.docSeen.first(link) {
				continue
			}
			row := r.row(results.LinkPDF, location+results.FieldLocationSuffix,
				doc.Title+" (Field: "+key+")", link, doc.Permalink)
			if err := r.links.add(ctx, row); err != nil {
				return err
			}
		}
	}

	// Every visible document gets its row; export drops an empty url.
	return r.public.add(ctx, r.row(results.LinkPublicURL, location, doc.Title, "", doc.Permalink))
}

// scanMenus uses its own seen-set: a link in both a document and a menu
// yields one row for each.
func (e *Executor) scanMenus(ctx context.Context, r *run) error {
	menus, err := r.repo.Menus(ctx)
	if err != nil {
		r.log.LogWarnf("list menus failed: %v", err)
		return nil
	}
	seen := seenSet{}
	for _, m := range menus {
		items, err := r.repo.MenuItems(ctx, m)
		if err != nil {
			r.log.LogWarnf("list items of menu %d failed: %v", m.ID, err)
			continue
		}
		for _, item := range items {
			link, kind := linkcheck.Classify(item.URL)
			if kind != linkcheck.PDF || !seen.first(link) {
				continue
			}
			if err := r.links.add(ctx, r.row(results.LinkPDF, results.LocationMenu, item.Title, link, "")); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) row(t results.LinkType, location, title, link, url string) results.Row {
	return results.Row{
		ScanID:       r.scanID,
		SiteID:       r.site.ID,
		ScannedAt:    r.at,
		LinkType:     t,
		LocationType: location,
		Title:        title,
		Link:         link,
		URL:          url,
	}
}
