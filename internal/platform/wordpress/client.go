// Package wordpress reads site content over the WordPress REST API.
package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"linkscan/internal/core/content"
	"linkscan/internal/core/sites"
	"linkscan/internal/logger"

	"github.com/PuerkitoBio/goquery"
)

const (
	apiPath       = "/wp-json/wp/v2"
	menuItemsPage = 100
	userAgent     = "linkscan/1.0"
)

// internalTypes are registered by core but never listed publicly.
var internalTypes = map[string]bool{
	"attachment":       true,
	"nav_menu_item":    true,
	"wp_block":         true,
	"wp_template":      true,
	"wp_template_part": true,
	"wp_navigation":    true,
	"wp_global_styles": true,
	"wp_font_family":   true,
	"wp_font_face":     true,
}

type Options struct {
	User        string
	AppPassword string
	Timeout     time.Duration
	// HTTPClient overrides the default client; Timeout is then ignored.
	HTTPClient *http.Client
}

// Opener hands out one Client per site, all sharing an http.Client.
type Opener struct {
	opts Options
	http *http.Client
}

func NewOpener(opts Options) *Opener {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Opener{opts: opts, http: hc}
}

func (o *Opener) Open(site sites.Site) (content.Repository, error) {
	return NewClient(site.URL, o.opts.User, o.opts.AppPassword, o.http)
}

type Client struct {
	base string
	user string
	pass string
	http *http.Client
	log  *logger.Logger

	mu       sync.Mutex
	restBase map[string]string
}

func NewClient(siteURL, user, appPassword string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		base:     strings.TrimRight(u.String(), "/") + apiPath,
		user:     user,
		pass:     strings.ReplaceAll(appPassword, " ", ""),
		http:     hc,
		log:      logger.New("WordPress"),
		restBase: map[string]string{},
	}, nil
}

func (c *Client) authenticated() bool { return c.user != "" && c.pass != "" }

type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("wordpress: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("wordpress: unexpected status %d", e.Status)
}

// get fetches path under the API root and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	if q == nil {
		q = url.Values{}
	}
	if c.authenticated() {
		q.Set("context", "edit")
	}
	endpoint := c.base + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.authenticated() {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, content.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

type typeObject struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	RestBase string `json:"rest_base"`
	Viewable *bool  `json:"viewable"`
	Labels   struct {
		SingularName string `json:"singular_name"`
	} `json:"labels"`
}

// Types lists the publicly viewable content types, ordered by slug.
func (c *Client) Types(ctx context.Context) ([]content.Type, error) {
	var raw map[string]typeObject
	if err := c.get(ctx, "/types", nil, &raw); err != nil {
		return nil, err
	}

	var out []content.Type
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, t := range raw {
		slug := t.Slug
		if slug == "" {
			slug = key
		}
		if internalTypes[slug] || t.RestBase == "" || (t.Viewable != nil && !*t.Viewable) {
			continue
		}
		label := t.Labels.SingularName
		if label == "" {
			label = t.Name
		}
		c.restBase[slug] = t.RestBase
		out = append(out, content.Type{Name: slug, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Client) route(t content.Type) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rb, ok := c.restBase[t.Name]; ok {
		return "/" + rb
	}
	return "/" + t.Name
}

func (c *Client) ListPublished(ctx context.Context, t content.Type, page, perPage int) ([]int64, error) {
	q := url.Values{}
	q.Set("status", "publish")
	q.Set("orderby", "id")
	q.Set("order", "asc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("_fields", "id")

	var items []struct {
		ID int64 `json:"id"`
	}
	err := c.get(ctx, c.route(t), q, &items)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Code == "rest_post_invalid_page_number" {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids, nil
}

type rendered struct {
	Rendered  string `json:"rendered"`
	Raw       string `json:"raw"`
	Protected bool   `json:"protected"`
}

type documentObject struct {
	ID      int64    `json:"id"`
	Type    string   `json:"type"`
	Status  string   `json:"status"`
	Link    string   `json:"link"`
	Title   rendered `json:"title"`
	Content rendered `json:"content"`
}

func (c *Client) Document(ctx context.Context, t content.Type, id int64) (content.Document, error) {
	var d documentObject
	if err := c.get(ctx, c.route(t)+"/"+strconv.FormatInt(id, 10), nil, &d); err != nil {
		return content.Document{}, err
	}
	body := d.Content.Raw
	if body == "" {
		body = d.Content.Rendered
	}
	return content.Document{
		ID:        d.ID,
		Type:      d.Type,
		Title:     plainTitle(d.Title),
		Content:   body,
		Permalink: d.Link,
		Status:    d.Status,
		Protected: d.Content.Protected,
	}, nil
}

// plainTitle prefers the raw title and strips markup from rendered ones.
func plainTitle(r rendered) string {
	if r.Raw != "" {
		return strings.TrimSpace(r.Raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(r.Rendered))
	if err != nil {
		return strings.TrimSpace(r.Rendered)
	}
	return strings.TrimSpace(doc.Text())
}

// Fields returns the document's ACF values. A document without fields
// yields an empty map.
func (c *Client) Fields(ctx context.Context, t content.Type, id int64) (map[string]interface{}, error) {
	q := url.Values{}
	q.Set("_fields", "acf")
	var d struct {
		ACF json.RawMessage `json:"acf"`
	}
	if err := c.get(ctx, c.route(t)+"/"+strconv.FormatInt(id, 10), q, &d); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	raw := strings.TrimSpace(string(d.ACF))
	if raw == "" || raw == "null" || strings.HasPrefix(raw, "[") {
		return fields, nil
	}
	if err := json.Unmarshal(d.ACF, &fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s %d: %w", t.Name, id, err)
	}
	return fields, nil
}

func (c *Client) Menus(ctx context.Context) ([]content.Menu, error) {
	q := url.Values{}
	q.Set("per_page", "100")
	var items []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := c.get(ctx, "/menus", q, &items); err != nil {
		return nil, err
	}
	out := make([]content.Menu, 0, len(items))
	for _, m := range items {
		out = append(out, content.Menu{ID: m.ID, Name: m.Name})
	}
	return out, nil
}

func (c *Client) MenuItems(ctx context.Context, m content.Menu) ([]content.MenuItem, error) {
	var out []content.MenuItem
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("menus", strconv.FormatInt(m.ID, 10))
		q.Set("per_page", strconv.Itoa(menuItemsPage))
		q.Set("page", strconv.Itoa(page))
		var items []struct {
			ID    int64    `json:"id"`
			Title rendered `json:"title"`
			URL   string   `json:"url"`
		}
		err := c.get(ctx, "/menu-items", q, &items)
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Code == "rest_post_invalid_page_number" {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			out = append(out, content.MenuItem{ID: it.ID, Title: plainTitle(it.Title), URL: it.URL})
		}
		if len(items) < menuItemsPage {
			break
		}
	}
	c.log.LogDebugf("menu %d has %d items", m.ID, len(out))
	return out, nil
}
