package parser

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// ExtractByXPath is the XPath counterpart of ExtractBySelectors. Sub-selectors
// are evaluated with the item node as context, so they should be relative
// (for example ".//a/@href" or ".//h2").
func ExtractByXPath(doc, baseURL string, sel types.Selectors) ([]types.Product, error) {
	if sel.IsEmpty() {
		return nil, nil
	}
	itemExpr, err := xpath.Compile(sel.Item)
	if err != nil {
		return nil, &types.ParseError{URL: baseURL, Selector: sel.Item, Err: err}
	}

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, &types.ParseError{URL: baseURL, Err: err}
	}

	var products []types.Product
	for _, item := range htmlquery.QuerySelectorAll(root, itemExpr) {
		p := types.Product{Source: "xpath"}

		if href := xpathAttr(item, sel.Link, "href"); href != "" && !isSkippableHref(href) {
			p.URL = ResolveURL(baseURL, href)
		} else if item.Data == "a" {
			if href := htmlquery.SelectAttr(item, "href"); !isSkippableHref(href) {
				p.URL = ResolveURL(baseURL, href)
			}
		}

		p.Title = xpathText(item, sel.Title)
		if p.Title == "" {
			p.Title = xpathText(item, sel.Link)
		}
		p.Price = xpathText(item, sel.Price)
		if img := xpathImage(item, sel.Image); img != "" {
			p.Image = ResolveURL(baseURL, img)
		}
		p.Description = xpathText(item, sel.Description)
		p.Brand = xpathText(item, sel.Brand)
		p.Rating = xpathText(item, sel.Rating)
		p.SKU = xpathText(item, sel.SKU)

		if p.URL == "" || p.Title == "" {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func xpathNode(item *html.Node, expr string) *html.Node {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	node, err := htmlquery.Query(item, expr)
	if err != nil {
		return nil
	}
	return node
}

func xpathText(item *html.Node, expr string) string {
	node := xpathNode(item, expr)
	if node == nil {
		return ""
	}
	return collapseSpace(htmlquery.InnerText(node))
}

// xpathAttr returns attr of the matched node, or the node's text when the
// expression already selects an attribute.
func xpathAttr(item *html.Node, expr, attr string) string {
	node := xpathNode(item, expr)
	if node == nil {
		return ""
	}
	if isAttrNode(node) {
		return strings.TrimSpace(htmlquery.InnerText(node))
	}
	if v := htmlquery.SelectAttr(node, attr); v != "" {
		return strings.TrimSpace(v)
	}
	if a := htmlquery.FindOne(node, ".//a[@href]"); a != nil {
		return strings.TrimSpace(htmlquery.SelectAttr(a, "href"))
	}
	return ""
}

func xpathImage(item *html.Node, expr string) string {
	node := xpathNode(item, expr)
	if node == nil {
		node = htmlquery.FindOne(item, ".//img")
	}
	if node == nil {
		return ""
	}
	if isAttrNode(node) {
		return strings.TrimSpace(htmlquery.InnerText(node))
	}
	if src := htmlquery.SelectAttr(node, "src"); src != "" && !strings.HasPrefix(src, "data:") {
		return strings.TrimSpace(src)
	}
	if src := htmlquery.SelectAttr(node, "data-src"); src != "" {
		return strings.TrimSpace(src)
	}
	return firstSrcset(htmlquery.SelectAttr(node, "srcset"))
}

// isAttrNode reports whether n is the detached node htmlquery synthesizes
// for an attribute match such as "@href".
func isAttrNode(n *html.Node) bool {
	return n.Parent == nil && n.Type == html.ElementNode &&
		n.FirstChild != nil && n.FirstChild == n.LastChild && n.FirstChild.Type == html.TextNode
}

// ValidateXPath reports whether expr compiles.
func ValidateXPath(expr string) error {
	if _, err := xpath.Compile(expr); err != nil {
		return fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return nil
}
