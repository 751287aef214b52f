package wordpress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"linkscan/internal/core/content"
	"linkscan/internal/core/sites"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ content.Repository = (*Client)(nil)
var _ content.Opener = (*Opener)(nil)

const typesJSON = `{
  "post": {"name": "Posts", "slug": "post", "rest_base": "posts", "viewable": true, "labels": {"singular_name": "Post"}},
  "page": {"name": "Pages", "slug": "page", "rest_base": "pages", "viewable": true, "labels": {"singular_name": "Page"}},
  "attachment": {"name": "Media", "slug": "attachment", "rest_base": "media", "viewable": true},
  "wp_block": {"name": "Patterns", "slug": "wp_block", "rest_base": "blocks", "viewable": false},
  "event": {"name": "Events", "slug": "event", "rest_base": "events"},
  "private_thing": {"name": "Hidden", "slug": "private_thing", "rest_base": "hidden", "viewable": false}
}`

type recorded struct {
	auth  bool
	query map[string]string
}

func newServer(t *testing.T) (*httptest.Server, map[string]recorded) {
	t.Helper()
	seen := map[string]recorded{}
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		_, _, ok := r.BasicAuth()
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		seen[r.URL.Path] = recorded{auth: ok, query: q}
	}
	mux.HandleFunc("/wp-json/wp/v2/types", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		fmt.Fprint(w, typesJSON)
	})
	mux.HandleFunc("/wp-json/wp/v2/posts", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.URL.Query().Get("page") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":"rest_post_invalid_page_number","message":"The page number requested is larger than the number of pages available."}`)
			return
		}
		fmt.Fprint(w, `[{"id":3},{"id":9}]`)
	})
	mux.HandleFunc("/wp-json/wp/v2/posts/3", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.URL.Query().Get("_fields") == "acf" {
			fmt.Fprint(w, `{"acf":{"brochure":"https://x/b.pdf","count":3}}`)
			return
		}
		fmt.Fprint(w, `{"id":3,"type":"post","status":"publish","link":"https://x/hello",
			"title":{"rendered":"Hello &amp; <em>welcome</em>"},
			"content":{"rendered":"<p><a href=\"https://x/a.pdf\">a</a></p>","protected":false}}`)
	})
	mux.HandleFunc("/wp-json/wp/v2/posts/9", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.URL.Query().Get("_fields") == "acf" {
			fmt.Fprint(w, `{"acf":[]}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":"rest_post_invalid_id","message":"Invalid post ID."}`)
	})
	mux.HandleFunc("/wp-json/wp/v2/menus", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		fmt.Fprint(w, `[{"id":5,"name":"Footer"}]`)
	})
	mux.HandleFunc("/wp-json/wp/v2/menu-items", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		fmt.Fprint(w, `[{"id":50,"title":{"rendered":"Handbook"},"url":"https://x/handbook.pdf"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestTypesSkipsInternalAndHiddenTypes(t *testing.T) {
	srv, _ := newServer(t)
	c, err := NewClient(srv.URL, "", "", srv.Client())
	require.NoError(t, err)

	types, err := c.Types(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []content.Type{
		{Name: "event", Label: "Events"},
		{Name: "page", Label: "Page"},
		{Name: "post", Label: "Post"},
	}, types)
}

func TestListPublishedPagesAndStops(t *testing.T) {
	srv, seen := newServer(t)
	c, err := NewClient(srv.URL+"/", "", "", srv.Client())
	require.NoError(t, err)
	ctx := context.Background()
	_, err = c.Types(ctx)
	require.NoError(t, err)
	post := content.Type{Name: "post", Label: "Post"}

	ids, err := c.ListPublished(ctx, post, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 9}, ids)
	q := seen["/wp-json/wp/v2/posts"].query
	assert.Equal(t, "publish", q["status"])
	assert.Equal(t, "id", q["orderby"])
	assert.Equal(t, "asc", q["order"])
	assert.Equal(t, "100", q["per_page"])

	ids, err = c.ListPublished(ctx, post, 2, 100)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDocumentAndFields(t *testing.T) {
	srv, _ := newServer(t)
	c, err := NewClient(srv.URL, "", "", srv.Client())
	require.NoError(t, err)
	ctx := context.Background()
	post := content.Type{Name: "posts"}

	doc, err := c.Document(ctx, post, 3)
	require.NoError(t, err)
	assert.Equal(t, "Hello & welcome", doc.Title)
	assert.Equal(t, "https://x/hello", doc.Permalink)
	assert.Contains(t, doc.Content, `href="https://x/a.pdf"`)
	assert.True(t, doc.Visible())

	_, err = c.Document(ctx, post, 9)
	assert.True(t, errors.Is(err, content.ErrNotFound))

	fields, err := c.Fields(ctx, post, 3)
	require.NoError(t, err)
	assert.Equal(t, "https://x/b.pdf", fields["brochure"])
	assert.Equal(t, float64(3), fields["count"])

	fields, err = c.Fields(ctx, post, 9)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestMenus(t *testing.T) {
	srv, seen := newServer(t)
	c, err := NewClient(srv.URL, "", "", srv.Client())
	require.NoError(t, err)
	ctx := context.Background()

	menus, err := c.Menus(ctx)
	require.NoError(t, err)
	require.Equal(t, []content.Menu{{ID: 5, Name: "Footer"}}, menus)

	items, err := c.MenuItems(ctx, menus[0])
	require.NoError(t, err)
	assert.Equal(t, []content.MenuItem{{ID: 50, Title: "Handbook", URL: "https://x/handbook.pdf"}}, items)
	assert.Equal(t, "5", seen["/wp-json/wp/v2/menu-items"].query["menus"])
}

func TestOpenerAuthenticatesWithApplicationPassword(t *testing.T) {
	srv, seen := newServer(t)
	o := NewOpener(Options{User: "scanner", AppPassword: "abcd efgh ijkl", HTTPClient: srv.Client()})

	repo, err := o.Open(sites.Site{ID: 1, Name: "Main", URL: srv.URL})
	require.NoError(t, err)
	_, err = repo.Types(context.Background())
	require.NoError(t, err)

	got := seen["/wp-json/wp/v2/types"]
	assert.True(t, got.auth)
	assert.Equal(t, "edit", got.query["context"])
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url", "", "", nil)
	assert.Error(t, err)
	_, err = NewClient("ftp://x", "", "", nil)
	assert.Error(t, err)
}
