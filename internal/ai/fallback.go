package ai

import (
	"strings"

	"github.com/IshaanNene/ShelfStalk/internal/parser"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// Generic selectors for common product-listing markup. Item candidates are
// ranked against the page; the field selectors are broad unions.
var (
	genericItemSelectors = []string{
		`[itemtype*="schema.org/Product"]`,
		`[data-product-id]`,
		`[data-testid*="product"]`,
		`.product-card`,
		`.product-item`,
		`.product-tile`,
		`.product-grid-item`,
		`li.product`,
		`.product`,
		`.grid-item`,
		`.card`,
		`article`,
	}

	genericSelectors = types.Selectors{
		Link:        `a[href]`,
		Title:       `[itemprop="name"], .product-title, .product-name, [class*="product-title"], [class*="product-name"], .title, .name, h2, h3, h4`,
		Price:       `[itemprop="price"], [data-price], .price, .product-price, [class*="price"], .amount`,
		Image:       `img`,
		Description: `[itemprop="description"], .description`,
		Brand:       `[itemprop="brand"], .brand`,
		Rating:      `[itemprop="ratingValue"], .rating`,
		SKU:         `[itemprop="sku"], [data-sku]`,
	}
)

// FallbackDecision synthesizes a decision from the generic selector library.
// The result always validates and always carries non-empty item and price
// selectors. It is HYBRID even when the page has JSON-LD, since most shops
// ship Organization or BreadcrumbList blocks without any Product in them.
func FallbackDecision(obs *types.PageObservation, reason string) *types.Decision {
	sel := genericSelectors
	sel.Item = strings.Join(genericItemSelectors, ", ")

	if obs != nil && obs.HTML != "" {
		if ranked := parser.RankSelectors(obs.HTML, genericItemSelectors); len(ranked) > 0 && ranked[0].Score > 0 {
			sel.Item = ranked[0].Selector
		}
	}

	action := types.ExtractionStrategy{
		Mode:          types.ModeHTTP,
		ParseStrategy: types.ParseHybrid,
		Selectors:     sel,
		Pagination:    types.Pagination{Type: types.PaginationLink},
		Retry:         types.RetryPolicy{MaxAttempts: 1, Strategy: types.BackoffExponential},
	}
	action.Normalize()
	return &types.Decision{
		Actions:  []types.ExtractionStrategy{action},
		Fallback: true,
		Reason:   reason,
	}
}
