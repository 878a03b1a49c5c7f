package parser

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

const paginationContainers = `.pagination a, .pager a, .paging a, nav[aria-label*="agination"] a, [class*="pagination"] a, [class*="pager"] a`

var nextGlyphs = map[string]bool{"›": true, "»": true, ">": true, "→": true, ">>": true}

// nextPhrases are the whole-anchor labels accepted outside pagination
// containers, after glyphs and punctuation are stripped.
var nextPhrases = map[string]bool{"next": true, "next page": true, "go to next page": true, "next results": true}

var nextWordRe = regexp.MustCompile(`(?i)\bnext\b`)

// FindNextLinks returns absolute "next page" URLs found in html. When
// selector is non-empty and valid it is the only source; otherwise generic
// heuristics apply. Unresolvable hrefs are dropped and the result is
// deduplicated in document order.
func FindNextLinks(html, baseURL, selector string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var hrefs []string
	if m, err := cascadia.Compile(strings.TrimSpace(selector)); selector != "" && err == nil {
		doc.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
			if href := hrefOf(s); href != "" {
				hrefs = append(hrefs, href)
			}
		})
	} else {
		hrefs = heuristicNextHrefs(doc)
	}

	seen := make(map[string]bool, len(hrefs))
	var links []string
	for _, href := range hrefs {
		if isSkippableHref(href) {
			continue
		}
		abs, ok := resolveStrict(baseURL, href)
		if !ok {
			continue
		}
		if u, err := url.Parse(abs); err == nil {
			u.Fragment = ""
			abs = u.String()
		}
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	}
	return links
}

func heuristicNextHrefs(doc *goquery.Document) []string {
	var hrefs []string
	add := func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	}

	doc.Find(`a[rel~="next"], link[rel~="next"]`).Each(add)

	doc.Find(paginationContainers).Each(func(i int, s *goquery.Selection) {
		if looksLikeNext(s) {
			add(i, s)
		}
	})

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		if nextPhrases[normalizeLabel(s.Text())] || nextPhrases[normalizeLabel(s.AttrOr("aria-label", ""))] {
			add(i, s)
		}
	})
	return hrefs
}

func looksLikeNext(s *goquery.Selection) bool {
	text := strings.TrimSpace(s.Text())
	if nextGlyphs[text] {
		return true
	}
	if nextWordRe.MatchString(text) {
		return true
	}
	for _, v := range []string{s.AttrOr("class", ""), s.AttrOr("aria-label", ""), s.AttrOr("rel", ""), s.AttrOr("title", "")} {
		if strings.Contains(strings.ToLower(v), "next") {
			return true
		}
	}
	return false
}

// normalizeLabel lowercases s and keeps only letters and single spaces.
func normalizeLabel(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return strings.Join(fields, " ")
}

func hrefOf(s *goquery.Selection) string {
	if href, ok := s.Attr("href"); ok {
		return href
	}
	href, _ := s.Find("a[href]").First().Attr("href")
	return href
}
