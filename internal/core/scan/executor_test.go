package scan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"linkscan/internal/core/content"
	"linkscan/internal/core/results"
	"linkscan/internal/core/sites"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	postType = content.Type{Name: "post", Label: "Post"}
	pageType = content.Type{Name: "page", Label: "Page"}
	testSite = sites.Site{ID: 7, Name: "News", URL: "https://news.example.edu"}
)

type fakeRepo struct {
	types    []content.Type
	docs     map[string][]content.Document
	fields   map[int64]map[string]interface{}
	fieldErr map[int64]error
	docErr   map[int64]error
	menus    []content.Menu
	items    map[int64][]content.MenuItem
	listed   map[int64]int
}

func newFakeRepo(types ...content.Type) *fakeRepo {
	return &fakeRepo{
		types:    types,
		docs:     map[string][]content.Document{},
		fields:   map[int64]map[string]interface{}{},
		fieldErr: map[int64]error{},
		docErr:   map[int64]error{},
		items:    map[int64][]content.MenuItem{},
		listed:   map[int64]int{},
	}
}

func (f *fakeRepo) addDoc(t content.Type, d content.Document) {
	d.Type = t.Name
	if d.Status == "" {
		d.Status = "publish"
	}
	if d.Permalink == "" {
		d.Permalink = fmt.Sprintf("https://news.example.edu/?p=%d", d.ID)
	}
	f.docs[t.Name] = append(f.docs[t.Name], d)
}

func (f *fakeRepo) Types(context.Context) ([]content.Type, error) { return f.types, nil }

// ListPublished mirrors the REST API: password protected documents are
// listed, drafts are not.
func (f *fakeRepo) ListPublished(_ context.Context, t content.Type, page, perPage int) ([]int64, error) {
	var ids []int64
	for _, d := range f.docs[t.Name] {
		if d.Status == "publish" {
			ids = append(ids, d.ID)
		}
	}
	start := (page - 1) * perPage
	if start >= len(ids) {
		return nil, nil
	}
	end := start + perPage
	if end > len(ids) {
		end = len(ids)
	}
	for _, id := range ids[start:end] {
		f.listed[id]++
	}
	return ids[start:end], nil
}

func (f *fakeRepo) Document(_ context.Context, t content.Type, id int64) (content.Document, error) {
	if err := f.docErr[id]; err != nil {
		return content.Document{}, err
	}
	for _, d := range f.docs[t.Name] {
		if d.ID == id {
			return d, nil
		}
	}
	return content.Document{}, content.ErrNotFound
}

func (f *fakeRepo) Fields(_ context.Context, _ content.Type, id int64) (map[string]interface{}, error) {
	if err := f.fieldErr[id]; err != nil {
		return nil, err
	}
	return f.fields[id], nil
}

func (f *fakeRepo) Menus(context.Context) ([]content.Menu, error) { return f.menus, nil }

func (f *fakeRepo) MenuItems(_ context.Context, m content.Menu) ([]content.MenuItem, error) {
	return f.items[m.ID], nil
}

type fakeOpener struct{ repo content.Repository }

func (o fakeOpener) Open(sites.Site) (content.Repository, error) { return o.repo, nil }

type memWriter struct {
	batches [][]results.Row
	// failOn makes the n-th Append call (1-based) fail.
	failOn int
	calls  int
}

func (w *memWriter) Append(_ context.Context, rows []results.Row) error {
	w.calls++
	if w.failOn > 0 && w.calls == w.failOn {
		return errors.New("insert failed")
	}
	w.batches = append(w.batches, append([]results.Row(nil), rows...))
	return nil
}

func (w *memWriter) rows() []results.Row {
	var out []results.Row
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}

func (w *memWriter) byType(t results.LinkType) []results.Row {
	var out []results.Row
	for _, r := range w.rows() {
		if r.LinkType == t {
			out = append(out, r)
		}
	}
	return out
}

func newTestExecutor(repo content.Repository, w RowWriter) *Executor {
	e := NewExecutor(fakeOpener{repo: repo}, w, Options{})
	e.now = func() time.Time { return time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC) }
	return e
}

func TestDuplicateLinksAcrossContentAndFieldsYieldOneRow(t *testing.T) {
	repo := newFakeRepo(postType)
	repo.addDoc(postType, content.Document{ID: 1, Title: "Forms", Content: `
		<a href="https://x/doc.pdf">one</a>
		<a href=" https://x/doc.pdf ">two</a>
		<a href='https://x/doc.pdf'>three</a>`})
	repo.addDoc(postType, content.Document{ID: 2, Title: "Again", Content: `<a href="https://x/doc.pdf">four</a>`})
	repo.fields[2] = map[string]interface{}{"download": "Get it at https://x/doc.pdf"}
	w := &memWriter{}

	stats, err := newTestExecutor(repo, w).Run(context.Background(), testSite, "scan_news_1")
	require.NoError(t, err)

	pdfs := w.byType(results.LinkPDF)
	require.Len(t, pdfs, 1)
	assert.Equal(t, results.Row{
		ScanID:       "scan_news_1",
		SiteID:       7,
		ScannedAt:    time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC),
		LinkType:     results.LinkPDF,
		LocationType: "Post",
		Title:        "Forms",
		Link:         "https://x/doc.pdf",
		URL:          "https://news.example.edu/?p=1",
	}, pdfs[0])
	assert.Equal(t, 1, stats.PDFLinks)
	assert.Equal(t, 0, stats.FieldLinks)
}

func TestFieldLinksAreSuffixed(t *testing.T) {
	repo := newFakeRepo(pageType)
	repo.addDoc(pageType, content.Document{ID: 5, Title: "Handbook", Content: "<p>none</p>"})
	repo.fields[5] = map[string]interface{}{
		"z_notes":  "https://x/b.pdf and https://x/page",
		"a_upload": "https://x/a.PDF",
		"count":    3,
		"nested":   map[string]interface{}{"file": "https://x/c.pdf"},
	}
	w := &memWriter{}

	stats, err := newTestExecutor(repo, w).Run(context.Background(), testSite, "s")
	require.NoError(t, err)

	pdfs := w.byType(results.LinkPDF)
	require.Len(t, pdfs, 2)
	assert.Equal(t, "https://x/a.PDF", pdfs[0].Link)
	assert.Equal(t, "Page (ACF Field)", pdfs[0].LocationType)
	assert.Equal(t, "Handbook (Field: a_upload)", pdfs[0].Title)
	assert.Equal(t, "https://x/b.pdf", pdfs[1].Link)
	assert.Equal(t, "Handbook (Field: z_notes)", pdfs[1].Title)
	assert.Equal(t, 2, stats.FieldLinks)
}

func TestContentAndMenuDedupAreIndependent(t *testing.T) {
	repo := newFakeRepo(pageType)
	repo.addDoc(pageType, content.Document{ID: 1, Title: "Home", Content: `<a href="https://x/guide.pdf">Guide</a>`})
	repo.menus = []content.Menu{{ID: 10, Name: "Main"}, {ID: 11, Name: "Footer"}}
	repo.items[10] = []content.MenuItem{
		{ID: 1, Title: "Guide", URL: "https://x/guide.pdf"},
		{ID: 2, Title: "About", URL: "https://x/about"},
	}
	repo.items[11] = []content.MenuItem{{ID: 3, Title: "Guide again", URL: " https://x/guide.pdf"}}
	w := &memWriter{}

	stats, err := newTestExecutor(repo, w).Run(context.Background(), testSite, "s")
	require.NoError(t, err)

	var guide []results.Row
	for _, r := range w.byType(results.LinkPDF) {
		if r.Link == "https://x/guide.pdf" {
			guide = append(guide, r)
		}
	}
	require.Len(t, guide, 2)
	assert.Equal(t, "Page", guide[0].LocationType)
	assert.Equal(t, results.LocationMenu, guide[1].LocationType)
	assert.Equal(t, "Guide", guide[1].Title)
	assert.Empty(t, guide[1].URL)
	assert.Equal(t, 1, stats.MenuLinks)
}

func TestEveryVisibleDocumentGetsOnePublicURLRow(t *testing.T) {
	repo := newFakeRepo(postType, pageType)
	repo.addDoc(postType, content.Document{ID: 1, Title: "With PDF", Content: `<a href="/a.pdf">a</a>`})
	repo.addDoc(postType, content.Document{ID: 2, Title: "Plain", Content: "text"})
	repo.addDoc(postType, content.Document{ID: 3, Title: "Secret", Protected: true, Content: `<a href="/s.pdf">s</a>`})
	repo.addDoc(postType, content.Document{ID: 4, Title: "Draft", Status: "draft"})
	repo.addDoc(pageType, content.Document{ID: 9, Title: "About"})
	w := &memWriter{}

	stats, err := newTestExecutor(repo, w).Run(context.Background(), testSite, "s")
	require.NoError(t, err)

	public := w.byType(results.LinkPublicURL)
	require.Len(t, public, 3)
	got := map[string]results.Row{}
	for _, r := range public {
		got[r.Title] = r
		assert.Empty(t, r.Link)
	}
	assert.Contains(t, got, "With PDF")
	assert.Contains(t, got, "Plain")
	assert.Equal(t, "Page", got["About"].LocationType)
	assert.Equal(t, "https://news.example.edu/?p=9", got["About"].URL)

	for _, r := range w.byType(results.LinkPDF) {
		assert.NotEqual(t, "/s.pdf", r.Link, "protected documents are not scanned")
	}
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.PublicURLs)
}

func TestDocumentWithoutPermalinkStillGetsPublicURLRow(t *testing.T) {
	repo := newFakeRepo(pageType)
	repo.addDoc(pageType, content.Document{ID: 1, Title: "Orphan"})
	// addDoc fills in a permalink; drop it.
	repo.docs[pageType.Name][0].Permalink = ""
	w := &memWriter{}

	stats, err := newTestExecutor(repo, w).Run(context.Background(), testSite, "s")
	require.NoError(t, err)

	public := w.byType(results.LinkPublicURL)
	require.Len(t, public, 1)
	assert.Equal(t, "Orphan", public[0].Title)
	assert.Empty(t, public[0].URL)
	assert.Equal(t, 1, stats.PublicURLs)
}

func TestPaginationVisitsEveryDocumentOnce(t *testing.T) {
	repo := newFakeRepo(postType)
	for i := 1; i <= 150; i++ {
		repo.addDoc(postType, content.Document{
			ID:      int64(i),
			Title:   fmt.Sprintf("Post %d", i),
			Content: fmt.Sprintf(`<a href="https://x/%d.pdf">f</a>`, i),
		})
	}
	w := &memWriter{}

	stats, err := newTestExecutor(repo, w).Run(context.Background(), testSite, "s")
	require.NoError(t, err)

	assert.Len(t, repo.listed, 150)
	for id, n := range repo.listed {
		assert.Equal(t, 1, n, "document %d listed more than once", id)
	}
	assert.Len(t, w.byType(results.LinkPDF), 150)
	assert.Len(t, w.byType(results.LinkPublicURL), 150)
	assert.Equal(t, 150, stats.Documents)
}

func TestRowsAreWrittenInBatchesOfOneHundred(t *testing.T) {
	repo := newFakeRepo(postType)
	for i := 1; i <= 250; i++ {
		repo.addDoc(postType, content.Document{ID: int64(i), Content: fmt.Sprintf(`<a href="/%d.pdf">f</a>`, i)})
	}
	w := &memWriter{}

	stats, err := newTestExecutor(repo, w).Run(context.Background(), testSite, "s")
	require.NoError(t, err)

	var sizes []int
	for _, b := range w.batches {
		sizes = append(sizes, len(b))
		for _, r := range b {
			assert.Equal(t, time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC), r.ScannedAt)
		}
	}
	// PDF and public URL rows fill separate batches; partial batches are
	// flushed when their phase ends.
	assert.Equal(t, []int{100, 100, 100, 100, 50, 50}, sizes)
	assert.Equal(t, 6, stats.Batches)
	assert.Equal(t, 500, stats.Rows())
}

func TestStorageErrorAbortsScanAndKeepsEarlierBatches(t *testing.T) {
	repo := newFakeRepo(postType)
	for i := 1; i <= 300; i++ {
		repo.addDoc(postType, content.Document{ID: int64(i), Content: fmt.Sprintf(`<a href="/%d.pdf">f</a>`, i)})
	}
	repo.menus = []content.Menu{{ID: 1}}
	repo.items[1] = []content.MenuItem{{URL: "/menu.pdf"}}
	w := &memWriter{failOn: 3}

	_, err := newTestExecutor(repo, w).Run(context.Background(), testSite, "s")
	require.ErrorContains(t, err, "insert failed")

	assert.Len(t, w.batches, 2)
	for _, r := range w.rows() {
		assert.NotEqual(t, results.LocationMenu, r.LocationType)
	}
}

func TestFailedDocumentsAndFieldsAreSkipped(t *testing.T) {
	repo := newFakeRepo(postType)
	repo.addDoc(postType, content.Document{ID: 1, Title: "Broken", Content: `<a href="/a.pdf">a</a>`})
	repo.addDoc(postType, content.Document{ID: 2, Title: "Fine", Content: `<a href="/b.pdf">b</a>`})
	repo.docErr[1] = errors.New("corrupt")
	repo.fieldErr[2] = errors.New("field plugin missing")
	w := &memWriter{}

	stats, err := newTestExecutor(repo, w).Run(context.Background(), testSite, "s")
	require.NoError(t, err)

	pdfs := w.byType(results.LinkPDF)
	require.Len(t, pdfs, 1)
	assert.Equal(t, "/b.pdf", pdfs[0].Link)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Documents)
}

func TestSeparateRunsDoNotShareSeenSets(t *testing.T) {
	repo := newFakeRepo(postType)
	repo.addDoc(postType, content.Document{ID: 1, Content: `<a href="/a.pdf">a</a>`})
	w := &memWriter{}
	e := newTestExecutor(repo, w)

	_, err := e.Run(context.Background(), sites.Site{ID: 1}, "s")
	require.NoError(t, err)
	_, err = e.Run(context.Background(), sites.Site{ID: 2}, "s")
	require.NoError(t, err)

	assert.Len(t, w.byType(results.LinkPDF), 2)
}

func TestCancelledContextStopsTraversal(t *testing.T) {
	repo := newFakeRepo(postType)
	repo.addDoc(postType, content.Document{ID: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExecutor(repo, &memWriter{}).Run(ctx, testSite, "s")
	assert.ErrorIs(t, err, context.Canceled)
}
