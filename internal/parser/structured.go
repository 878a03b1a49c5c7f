package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// ldJSONBlockRe finds ld+json script bodies without a full HTML parse, so
// malformed documents still yield their structured data.
var ldJSONBlockRe = regexp.MustCompile(`(?is)<script[^>]*type\s*=\s*["']?application/ld\+json["']?[^>]*>(.*?)</script>`)

// ParseJSONLD extracts Product nodes from every ld+json block in html.
// A block that fails to parse is skipped without affecting the others.
func ParseJSONLD(html string) []types.Product {
	var products []types.Product
	for _, m := range ldJSONBlockRe.FindAllStringSubmatch(html, -1) {
		raw := cleanJSONLD(m[1])
		if raw == "" {
			continue
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		for _, node := range collectNodes(data) {
			if p, ok := productFromNode(node); ok {
				products = append(products, p)
			}
		}
	}

	out := products[:0]
	for _, p := range products {
		if p.URL == "" && p.Title == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func cleanJSONLD(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<!--")
	raw = strings.TrimSuffix(raw, "-->")
	raw = strings.TrimPrefix(raw, "//<![CDATA[")
	raw = strings.TrimSuffix(raw, "//]]>")
	return strings.TrimSpace(raw)
}

// collectNodes flattens arrays, @graph containers and ItemList elements
// into a list of candidate objects.
func collectNodes(v any) []map[string]any {
	var nodes []map[string]any
	var walk func(v any, depth int)
	walk = func(v any, depth int) {
		if depth > 8 {
			return
		}
		switch val := v.(type) {
		case []any:
			for _, el := range val {
				walk(el, depth+1)
			}
		case map[string]any:
			if graph, ok := val["@graph"]; ok {
				walk(graph, depth+1)
			}
			if list, ok := val["itemListElement"].([]any); ok {
				for _, el := range list {
					if m, ok := el.(map[string]any); ok {
						if item, ok := m["item"]; ok {
							walk(item, depth+1)
							continue
						}
					}
					walk(el, depth+1)
				}
			}
			nodes = append(nodes, val)
		}
	}
	walk(v, 0)
	return nodes
}

func isProductType(t any) bool {
	match := func(s string) bool {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "http://schema.org/"), "https://schema.org/")
		return s == "Product"
	}
	switch val := t.(type) {
	case string:
		return match(val)
	case []any:
		for _, el := range val {
			if s, ok := el.(string); ok && match(s) {
				return true
			}
		}
	}
	return false
}

func productFromNode(node map[string]any) (types.Product, bool) {
	if !isProductType(node["@type"]) {
		return types.Product{}, false
	}
	name := strings.TrimSpace(stringValue(node["name"]))
	if name == "" {
		return types.Product{}, false
	}

	p := types.Product{
		Title:       name,
		URL:         stringValue(node["url"]),
		Image:       imageValue(node["image"]),
		SKU:         stringValue(node["sku"]),
		Description: strings.TrimSpace(stringValue(node["description"])),
		Brand:       nameValue(node["brand"]),
		Price:       stringValue(node["price"]),
		Currency:    stringValue(node["priceCurrency"]),
		Source:      "jsonld",
	}

	if offer := firstOffer(node["offers"]); offer != nil {
		if p.URL == "" {
			p.URL = stringValue(offer["url"])
		}
		if price := stringValue(offer["price"]); price != "" {
			p.Price = price
		} else if low := stringValue(offer["lowPrice"]); low != "" && p.Price == "" {
			p.Price = low
		}
		if cur := stringValue(offer["priceCurrency"]); cur != "" {
			p.Currency = cur
		}
		if p.Image == "" {
			p.Image = imageValue(offer["image"])
		}
		p.InStock = availability(stringValue(offer["availability"]))
	}

	if rating, ok := node["aggregateRating"].(map[string]any); ok {
		p.Rating = stringValue(rating["ratingValue"])
		p.ReviewCount = stringValue(rating["reviewCount"])
		if p.ReviewCount == "" {
			p.ReviewCount = stringValue(rating["ratingCount"])
		}
	}

	if gtin := stringValue(node["gtin13"]); gtin != "" {
		p.SetExtra("gtin13", gtin)
	}
	if mpn := stringValue(node["mpn"]); mpn != "" {
		p.SetExtra("mpn", mpn)
	}

	return p, true
}

func firstOffer(v any) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		// AggregateOffer may nest concrete offers.
		if nested, ok := val["offers"]; ok && val["price"] == nil {
			if o := firstOffer(nested); o != nil {
				return o
			}
		}
		return val
	case []any:
		for _, el := range val {
			if m, ok := el.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func availability(s string) *bool {
	switch {
	case s == "":
		return nil
	case strings.Contains(s, "InStock"), strings.Contains(s, "LimitedAvailability"),
		strings.Contains(s, "OnlineOnly"), strings.Contains(s, "InStoreOnly"):
		return types.Bool(true)
	case strings.Contains(s, "OutOfStock"), strings.Contains(s, "SoldOut"),
		strings.Contains(s, "Discontinued"):
		return types.Bool(false)
	}
	return nil
}

// stringValue renders JSON scalars as text. Numbers keep their shortest form.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		if id, ok := val["@id"].(string); ok {
			return id
		}
	}
	return ""
}

func nameValue(v any) string {
	if m, ok := v.(map[string]any); ok {
		return stringValue(m["name"])
	}
	if arr, ok := v.([]any); ok && len(arr) > 0 {
		return nameValue(arr[0])
	}
	return stringValue(v)
}

func imageValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		for _, el := range val {
			if s := imageValue(el); s != "" {
				return s
			}
		}
	case map[string]any:
		if s := stringValue(val["url"]); s != "" {
			return s
		}
		return stringValue(val["contentUrl"])
	}
	return ""
}
