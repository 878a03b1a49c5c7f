package parser

import (
	"net/url"
	"strings"
)

// ResolveURL resolves href against base. If either fails to parse, the raw
// href is returned unchanged.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	resolved, ok := resolveStrict(base, href)
	if !ok {
		return href
	}
	return resolved
}

// resolveStrict resolves href against base and reports failure instead of
// falling back. Only http(s) results are accepted.
func resolveStrict(base, href string) (string, bool) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", false
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	u := b.ResolveReference(h)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

// firstSrcset returns the URL of the first candidate in a srcset value.
func firstSrcset(srcset string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(srcset), ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isSkippableHref(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
