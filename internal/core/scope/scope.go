// Package scope names the two views a scan can be driven from: the whole
// network of sites, or a single site.
package scope

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidScope = errors.New("invalid scope")

// Scope is the zero value for the network view.
type Scope struct {
	siteID int64
}

func Network() Scope { return Scope{} }

func Site(id int64) Scope { return Scope{siteID: id} }

func (s Scope) IsNetwork() bool { return s.siteID == 0 }

// SiteID is zero for the network scope.
func (s Scope) SiteID() int64 { return s.siteID }

func (s Scope) String() string {
	if s.IsNetwork() {
		return "network"
	}
	return "site:" + strconv.FormatInt(s.siteID, 10)
}

// Parse accepts "", "network" or a positive site id.
func Parse(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "network") {
		return Network(), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, raw)
	}
	return Site(id), nil
}
