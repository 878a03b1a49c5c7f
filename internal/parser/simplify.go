package parser

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultMaxHTMLChars bounds the simplified HTML sent to an LLM.
const DefaultMaxHTMLChars = 80_000

var strippedElements = "script, style, noscript, iframe, svg, link, meta, head, template, canvas, object, embed"

// keptAttributes is the whitelist of attributes that survive simplification.
var keptAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"alt":        true,
	"title":      true,
	"data-src":   true,
	"data-price": true,
	"itemprop":   true,
	"itemtype":   true,
	"itemscope":  true,
	"content":    true,
}

var (
	interTagSpaceRe = regexp.MustCompile(`>\s+<`)
	spaceRunRe      = regexp.MustCompile(`\s{2,}`)
)

// SimplifyHTML strips non-content elements and non-semantic attributes to
// cut token volume, then truncates to maxChars (DefaultMaxHTMLChars if <= 0).
func SimplifyHTML(raw string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxHTMLChars
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return truncateUTF8(raw, maxChars)
	}
	doc.Find(strippedElements).Remove()

	for _, root := range doc.Nodes {
		pruneNode(root)
	}

	var buf bytes.Buffer
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	for _, n := range body.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := html.Render(&buf, c); err != nil {
				return truncateUTF8(raw, maxChars)
			}
		}
	}

	out := interTagSpaceRe.ReplaceAllString(buf.String(), "><")
	out = spaceRunRe.ReplaceAllString(out, " ")
	return truncateUTF8(strings.TrimSpace(out), maxChars)
}

// pruneNode drops comments and non-whitelisted attributes in place.
func pruneNode(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			pruneNode(c)
		}
		c = next
	}
	if n.Type != html.ElementNode || len(n.Attr) == 0 {
		return
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if keptAttributes[a.Key] && !strings.HasPrefix(a.Val, "data:") {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
