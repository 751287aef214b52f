package sites

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var ErrSiteNotFound = errors.New("site not found")

// Site describes one tenant of the network.
type Site struct {
	ID   int64  `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// URL is the site's base address, e.g. https://news.example.edu.
	URL string `yaml:"url" json:"url"`
}

// Directory lists every site of the network, ordered by id.
type Directory interface {
	ListSites(ctx context.Context) ([]Site, error)
}

// FileDirectory reads the site list from a YAML file:
//
//	sites:
//	  - id: 1
//	    name: Main
//	    url: https://www.example.edu
type FileDirectory struct {
	path string
}

func NewFileDirectory(path string) *FileDirectory { return &FileDirectory{path: path} }

func (d *FileDirectory) ListSites(_ context.Context) ([]Site, error) {
	b, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	var doc struct {
		Sites []Site `yaml:"sites"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse sites file %s: %w", d.path, err)
	}
	seen := make(map[int64]bool, len(doc.Sites))
	for _, s := range doc.Sites {
		if s.ID <= 0 {
			return nil, fmt.Errorf("sites file %s: site %q has no positive id", d.path, s.Name)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("sites file %s: duplicate site id %d", d.path, s.ID)
		}
		seen[s.ID] = true
	}
	sort.Slice(doc.Sites, func(i, j int) bool { return doc.Sites[i].ID < doc.Sites[j].ID })
	return doc.Sites, nil
}

// Find returns the site with the given id from list.
func Find(list []Site, id int64) (Site, error) {
	for _, s := range list {
		if s.ID == id {
			return s, nil
		}
	}
	return Site{}, fmt.Errorf("%w: %d", ErrSiteNotFound, id)
}
