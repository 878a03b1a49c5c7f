package fetcher

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

var jsonLDScriptRe = regexp.MustCompile(`(?i)<script[^>]+type\s*=\s*["']?application/ld\+json`)

// HasJSONLD reports whether html contains at least one ld+json script tag.
// It is a hint only; the block may still fail to parse.
func HasJSONLD(html string) bool {
	return jsonLDScriptRe.MatchString(html)
}

// ComputeSignals derives link/image counts and the JSON-LD hint from html.
// ScrollHeight is left at zero; only a renderer can measure it.
func ComputeSignals(html string) types.DOMSignals {
	signals := types.DOMSignals{HasJSONLD: HasJSONLD(html)}
	if strings.TrimSpace(html) == "" {
		return signals
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return signals
	}
	signals.LinkCount = doc.Find("a[href]").Length()
	signals.ImageCount = doc.Find("img").Length()
	return signals
}
