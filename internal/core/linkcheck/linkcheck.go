// Package linkcheck finds and classifies links. Everything here is pure.
package linkcheck

import (
	"regexp"
	"strings"
)

type Kind int

const (
	Ignore Kind = iota
	PDF
)

func (k Kind) String() string {
	if k == PDF {
		return "pdf"
	}
	return "ignore"
}

var (
	hrefPattern = regexp.MustCompile(`(?i)href=['"]([^'"]+)['"]`)
	urlPattern  = regexp.MustCompile(`(?i)https?://[^\s"']+`)
)

// Classify trims raw and reports whether it points at a PDF: the part before
// the first "?" must end in ".pdf", in any case. The trimmed string is the
// normalized form used for de-duplication.
func Classify(raw string) (string, Kind) {
	link := strings.TrimSpace(raw)
	if IsPDF(link) {
		return link, PDF
	}
	return link, Ignore
}

func IsPDF(link string) bool {
	link = strings.TrimSpace(link)
	if i := strings.IndexByte(link, '?'); i >= 0 {
		link = link[:i]
	}
	return len(link) > len(".pdf") && strings.EqualFold(link[len(link)-4:], ".pdf")
}

// Hrefs returns every href attribute value in markup, in document order.
func Hrefs(markup string) []string {
	matches := hrefPattern.FindAllStringSubmatch(markup, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// URLs returns every absolute http(s) URL embedded in text.
func URLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

const (
	TypePDF  = "pdf"
	TypeHTML = "html"
)

// Record is one exportable (url, type) pair.
type Record struct {
	URL  string
	Type string
}

// ForExport maps a stored row to its export record. Only the link types
// "pdf" and "public url" (any case) export; PDF rows export their link and
// public URL rows their url. Rows whose URL sanitizes to empty are dropped.
func ForExport(linkType, link, pageURL string) (Record, bool) {
	var raw, typ string
	switch strings.ToLower(strings.TrimSpace(linkType)) {
	case "pdf":
		raw, typ = link, TypePDF
	case "public url":
		raw, typ = pageURL, TypeHTML
	default:
		return Record{}, false
	}
	clean := Sanitize(raw)
	if clean == "" {
		return Record{}, false
	}
	return Record{URL: clean, Type: typ}, true
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-~+_.?#=!&;,/:%@$|*'()\[\]\x{80}-\x{10FFFF}]`)
	schemeLike  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)
)

var allowedSchemes = map[string]bool{
	"http": true, "https": true, "ftp": true, "ftps": true, "mailto": true,
	"news": true, "irc": true, "irc6": true, "ircs": true, "gopher": true,
	"nntp": true, "feed": true, "telnet": true, "mms": true, "rtsp": true,
	"sms": true, "svn": true, "tel": true, "fax": true, "xmpp": true,
	"webcal": true, "urn": true,
}

// Sanitize cleans a URL for storage in an export: spaces are encoded,
// characters outside the URL alphabet are removed, a bare host gets an
// http:// prefix, and URLs with a scheme outside the allow list become "".
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, " ", "%20")
	s = unsafeChars.ReplaceAllString(s, "")
	if s == "" {
		return ""
	}

	if !strings.Contains(s, ":") && !strings.ContainsAny(s[:1], "/#?") {
		s = "http://" + s
	}

	if m := schemeLike.FindString(s); m != "" {
		scheme := strings.ToLower(strings.TrimSuffix(m, ":"))
		if !allowedSchemes[scheme] {
			return ""
		}
	} else if strings.Contains(s, ":") && !strings.ContainsAny(s[:1], "/#?") {
		// Something like ":foo" or "1:2" with no usable scheme.
		return ""
	}
	return s
}
