package types

import (
	"fmt"
	"net/url"
	"strings"
)

// Product is a single extracted product record.
type Product struct {
	// URL is the absolute product URL. Required.
	URL string `json:"url" bson:"url"`

	// Title is the product name. Required.
	Title string `json:"title" bson:"title"`

	// Price is kept as free text; currency formatting varies by site.
	Price string `json:"price,omitempty" bson:"price,omitempty"`

	// Image is an absolute image URL.
	Image string `json:"image,omitempty" bson:"image,omitempty"`

	// InStock is nil when availability is unknown.
	InStock *bool `json:"inStock,omitempty" bson:"in_stock,omitempty"`

	SKU         string         `json:"sku,omitempty" bson:"sku,omitempty"`
	Currency    string         `json:"currency,omitempty" bson:"currency,omitempty"`
	Breadcrumbs []string       `json:"breadcrumbs,omitempty" bson:"breadcrumbs,omitempty"`
	Extra       map[string]any `json:"extra,omitempty" bson:"extra,omitempty"`

	// Enrichment fields.
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	Brand       string `json:"brand,omitempty" bson:"brand,omitempty"`
	Rating      string `json:"rating,omitempty" bson:"rating,omitempty"`
	ReviewCount string `json:"reviewCount,omitempty" bson:"review_count,omitempty"`
	CategoryID  string `json:"categoryId,omitempty" bson:"category_id,omitempty"`

	// Source names the extractor that produced the record (jsonld, css, ...).
	Source string `json:"source,omitempty" bson:"source,omitempty"`
}

// ProductKey is the deduplication identity of a product: the exact
// (url, title) pair, case-sensitive.
type ProductKey struct {
	URL   string
	Title string
}

// Key returns the product's deduplication identity.
func (p *Product) Key() ProductKey {
	return ProductKey{URL: p.URL, Title: p.Title}
}

// Validate checks that the product has an absolute http(s) URL and a title.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product title is empty")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product url is empty")
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	return nil
}

// SetExtra stores a site-specific attribute.
func (p *Product) SetExtra(key string, value any) {
	if p.Extra == nil {
		p.Extra = make(map[string]any)
	}
	p.Extra[key] = value
}

// Clone creates a deep copy of the product.
func (p *Product) Clone() *Product {
	clone := *p
	if p.InStock != nil {
		v := *p.InStock
		clone.InStock = &v
	}
	if p.Breadcrumbs != nil {
		clone.Breadcrumbs = append([]string(nil), p.Breadcrumbs...)
	}
	if p.Extra != nil {
		clone.Extra = make(map[string]any, len(p.Extra))
		for k, v := range p.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}

// Bool returns a pointer to b, for tri-state fields.
func Bool(b bool) *bool { return &b }
