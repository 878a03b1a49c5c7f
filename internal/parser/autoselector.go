package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// SelectorCandidate is a generic item selector scored against a page.
type SelectorCandidate struct {
	Selector   string  `json:"selector"`
	MatchCount int     `json:"match_count"`
	Score      float64 `json:"score"` // 0-1, higher looks more like a product grid
}

var priceLikeRe = regexp.MustCompile(`(?:[$€£¥₹]|\b(?:USD|EUR|GBP|INR|JPY|CAD|AUD)\b)\s?\d|\d[\d.,]*\s?(?:[$€£¥₹]|\b(?:USD|EUR|GBP|kr|zł)\b)`)

// LooksLikePrice reports whether s contains a currency-marked amount.
func LooksLikePrice(s string) bool {
	return priceLikeRe.MatchString(s)
}

// RankSelectors scores each candidate item selector by how much its matches
// look like repeated product cards: several matches, each with a link and
// ideally a price. Candidates that do not compile or match fewer than two
// elements score zero. Results are sorted best first; ties keep input order.
func RankSelectors(html string, candidates []string) []SelectorCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	ranked := make([]SelectorCandidate, 0, len(candidates))
	for _, c := range candidates {
		sc := SelectorCandidate{Selector: c}
		m, err := cascadia.Compile(c)
		if err != nil {
			ranked = append(ranked, sc)
			continue
		}
		matches := doc.FindMatcher(m)
		sc.MatchCount = matches.Length()
		if sc.MatchCount >= 2 {
			sc.Score = scoreMatches(matches)
		}
		ranked = append(ranked, sc)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func scoreMatches(matches *goquery.Selection) float64 {
	sample := matches
	if sample.Length() > 12 {
		sample = sample.Slice(0, 12)
	}
	var withLink, withPrice, withImage int
	sample.Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "a" || s.Find("a[href]").Length() > 0 {
			withLink++
		}
		if LooksLikePrice(s.Text()) {
			withPrice++
		}
		if s.Find("img").Length() > 0 {
			withImage++
		}
	})
	n := float64(sample.Length())
	volume := float64(min(matches.Length(), 24)) / 24
	return 0.45*float64(withLink)/n + 0.3*float64(withPrice)/n + 0.1*float64(withImage)/n + 0.15*volume
}
