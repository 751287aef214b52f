package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	disallowed = regexp.MustCompile(`[^a-z0-9-]+`)
	dashes     = regexp.MustCompile(`-+`)
)

// Generate lowercases s, folds accents to ASCII and joins words with
// hyphens. The result is at most max bytes long; max <= 0 means no limit.
func Generate(s string, max int) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(fold(s))
	s = strings.NewReplacer(" ", "-", "_", "-", ".", "-", "/", "-").Replace(s)
	s = disallowed.ReplaceAllString(s, "")
	s = dashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if max > 0 && len(s) > max {
		s = strings.TrimRight(s[:max], "-")
	}
	return s
}

// GenerateWithFallback returns fallback when s produces an empty slug.
func GenerateWithFallback(s, fallback string, max int) string {
	if out := Generate(s, max); out != "" {
		return out
	}
	return fallback
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isMn(r rune) bool { return unicode.Is(unicode.Mn, r) }
