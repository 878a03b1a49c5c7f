package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// ExtractBySelectors applies sel to html and returns one candidate per item
// container that yields both a URL and a title. Link, title, price and image
// are evaluated relative to each container.
func ExtractBySelectors(html, baseURL string, sel types.Selectors) ([]types.Product, error) {
	if sel.IsEmpty() {
		return nil, nil
	}
	itemSel, err := cascadia.Compile(sel.Item)
	if err != nil {
		return nil, &types.ParseError{URL: baseURL, Selector: sel.Item, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &types.ParseError{URL: baseURL, Err: err}
	}
	return extractFromDocument(doc, itemSel, baseURL, sel), nil
}

func extractFromDocument(doc *goquery.Document, itemSel cascadia.Selector, baseURL string, sel types.Selectors) []types.Product {
	var products []types.Product
	doc.FindMatcher(itemSel).Each(func(_ int, item *goquery.Selection) {
		p := types.Product{Source: "css"}

		href := linkHref(item, sel.Link)
		if href != "" && !isSkippableHref(href) {
			p.URL = ResolveURL(baseURL, href)
		}

		if sel.Title != "" {
			p.Title = textOf(item, sel.Title)
			if p.Title == "" {
				p.Title = attrOf(item, sel.Title, "title")
			}
		}
		if p.Title == "" {
			p.Title = linkText(item, sel.Link)
		}

		p.Price = textOf(item, sel.Price)
		if p.Price == "" && sel.Price != "" {
			p.Price = attrOf(item, sel.Price, "content")
		}

		if img := imageSrc(item, sel.Image); img != "" {
			p.Image = ResolveURL(baseURL, img)
		}

		p.Description = textOf(item, sel.Description)
		p.Brand = textOf(item, sel.Brand)
		p.Rating = textOf(item, sel.Rating)
		if p.Rating == "" && sel.Rating != "" {
			p.Rating = attrOf(item, sel.Rating, "content")
		}
		p.SKU = textOf(item, sel.SKU)
		if p.SKU == "" && sel.SKU != "" {
			p.SKU = attrOf(item, sel.SKU, "content")
		}

		if p.URL == "" || p.Title == "" {
			return
		}
		products = append(products, p)
	})
	return products
}

// find evaluates a sub-selector relative to item. An invalid sub-selector
// matches nothing.
func find(item *goquery.Selection, selector string) *goquery.Selection {
	if strings.TrimSpace(selector) == "" {
		return item.Slice(0, 0)
	}
	m, err := cascadia.Compile(selector)
	if err != nil {
		return item.Slice(0, 0)
	}
	return item.FindMatcher(m)
}

func textOf(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return collapseSpace(find(item, selector).First().Text())
}

func attrOf(item *goquery.Selection, selector, attr string) string {
	if selector == "" {
		return ""
	}
	v, _ := find(item, selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

// linkHref finds the product link: the link sub-selector, the container
// itself when it is an anchor, then the first anchor inside it.
func linkHref(item *goquery.Selection, selector string) string {
	if selector != "" {
		if href, ok := find(item, selector).First().Attr("href"); ok {
			return href
		}
		if href, ok := find(item, selector).First().Find("a[href]").First().Attr("href"); ok {
			return href
		}
	}
	if goquery.NodeName(item) == "a" {
		if href, ok := item.Attr("href"); ok {
			return href
		}
	}
	href, _ := item.Find("a[href]").First().Attr("href")
	return href
}

func linkText(item *goquery.Selection, selector string) string {
	if selector != "" {
		if t := collapseSpace(find(item, selector).First().Text()); t != "" {
			return t
		}
	}
	if goquery.NodeName(item) == "a" {
		return collapseSpace(item.Text())
	}
	return ""
}

// imageSrc prefers src, then data-src, then the first srcset entry.
func imageSrc(item *goquery.Selection, selector string) string {
	img := find(item, selector).First()
	if selector == "" || img.Length() == 0 {
		img = item.Find("img").First()
	}
	if img.Length() == 0 {
		return ""
	}
	if goquery.NodeName(img) != "img" {
		if inner := img.Find("img").First(); inner.Length() > 0 {
			img = inner
		}
	}
	if src, ok := img.Attr("src"); ok && strings.TrimSpace(src) != "" && !strings.HasPrefix(src, "data:") {
		return strings.TrimSpace(src)
	}
	if src, ok := img.Attr("data-src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	if srcset, ok := img.Attr("srcset"); ok {
		return firstSrcset(srcset)
	}
	return ""
}

// ValidateCSS reports whether selector compiles.
func ValidateCSS(selector string) error {
	if _, err := cascadia.Compile(selector); err != nil {
		return fmt.Errorf("invalid css selector %q: %w", selector, err)
	}
	return nil
}
