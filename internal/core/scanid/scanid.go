// Package scanid generates scan identifiers.
//
// An id has the form scan_<label>_<suffix>. Batch scans use the label
// "network"; single-site scans use a slug of the site name. The suffix is a
// time-ordered UUID without dashes, so ids are unique and sort by creation.
package scanid

import (
	"regexp"
	"strconv"
	"strings"

	"linkscan/internal/utils/slug"

	"github.com/google/uuid"
)

const (
	NetworkLabel = "network"
	// NetworkPrefix marks ids created by batch scans.
	NetworkPrefix = "scan_" + NetworkLabel + "_"

	maxLabel = 40
	maxLen   = 128
)

var valid = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// New returns scan_<label>_<suffix>.
func New(label string) string {
	return "scan_" + label + "_" + suffix()
}

func ForNetwork() string { return New(NetworkLabel) }

// ForSite derives the label from the site name, falling back to site-<id>.
// A name that slugs to "network" also falls back, so site ids never look
// like batch ids.
func ForSite(siteID int64, name string) string {
	fallback := "site-" + strconv.FormatInt(siteID, 10)
	label := slug.GenerateWithFallback(name, fallback, maxLabel)
	if label == NetworkLabel {
		label = fallback
	}
	return New(label)
}

func IsNetwork(id string) bool { return strings.HasPrefix(id, NetworkPrefix) }

// Valid reports whether id is safe to use in file names and queries.
func Valid(id string) bool { return len(id) <= maxLen && valid.MatchString(id) }

func suffix() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}
