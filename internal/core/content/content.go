// Package content defines what the scanner needs from a site's content
// repository. The WordPress REST adapter in platform/wordpress implements it.
package content

import (
	"context"
	"errors"

	"linkscan/internal/core/sites"
)

var ErrNotFound = errors.New("content: not found")

// Type is a publicly listed content type such as posts or pages.
type Type struct {
	Name string
	// Label is the singular, human readable name, used as a row's location.
	Label string
}

type Document struct {
	ID        int64
	Type      string
	Title     string
	Content   string
	Permalink string
	Status    string
	Protected bool
}

// Visible reports whether the document is published and not password protected.
func (d Document) Visible() bool { return d.Status == "publish" && !d.Protected }

type Menu struct {
	ID   int64
	Name string
}

type MenuItem struct {
	ID    int64
	Title string
	URL   string
}

// Repository is one site's content. ListPublished pages through the ids of
// published documents of a type, ordered by id; pages are 1-based and a page
// past the end is empty, not an error.
type Repository interface {
	Types(ctx context.Context) ([]Type, error)
	ListPublished(ctx context.Context, t Type, page, perPage int) ([]int64, error)
	Document(ctx context.Context, t Type, id int64) (Document, error)
	// Fields returns the custom structured fields attached to a document.
	Fields(ctx context.Context, t Type, id int64) (map[string]interface{}, error)
	Menus(ctx context.Context) ([]Menu, error)
	MenuItems(ctx context.Context, m Menu) ([]MenuItem, error)
}

// Opener gives access to a site's repository.
type Opener interface {
	Open(site sites.Site) (Repository, error)
}
