package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/IshaanNene/ShelfStalk/internal/parser"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// DirectExtractor asks an LLM to read products straight out of simplified
// HTML. It is the last step of the extraction chain.
type DirectExtractor struct {
	provider     Provider
	maxHTMLChars int
	logger       *slog.Logger
}

// NewDirectExtractor creates a direct extractor. maxHTMLChars <= 0 uses
// parser.DefaultMaxHTMLChars.
func NewDirectExtractor(provider Provider, maxHTMLChars int, logger *slog.Logger) *DirectExtractor {
	if maxHTMLChars <= 0 {
		maxHTMLChars = parser.DefaultMaxHTMLChars
	}
	return &DirectExtractor{
		provider:     provider,
		maxHTMLChars: maxHTMLChars,
		logger:       logger.With("component", "llm_extractor"),
	}
}

// Extract returns the valid products the model reports. Provider failures
// are returned; malformed model output is logged and yields no products.
func (x *DirectExtractor) Extract(ctx context.Context, html, baseURL, goal string) ([]types.Product, error) {
	if x == nil || x.provider == nil {
		return nil, types.ErrNoProvider
	}

	simplified := parser.SimplifyHTML(html, x.maxHTMLChars)
	if simplified == "" {
		return nil, nil
	}

	text, err := x.provider.Complete(ctx, extractPrompt(simplified, baseURL, goal))
	if err != nil {
		return nil, err
	}

	items, err := decodeItems(text)
	if err != nil {
		x.logger.Warn("unusable extraction output", "url", baseURL, "error", err)
		return nil, nil
	}

	var products []types.Product
	dropped := 0
	for _, item := range items {
		p := productFromLLM(item, baseURL)
		if err := p.Validate(); err != nil {
			dropped++
			continue
		}
		products = append(products, p)
	}
	if dropped > 0 {
		x.logger.Debug("dropped invalid llm items", "url", baseURL, "dropped", dropped, "kept", len(products))
	}
	return products, nil
}

// decodeItems accepts a bare array or an object wrapping one under
// "products" or "items".
func decodeItems(text string) ([]map[string]any, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if obj, ok := v.(map[string]any); ok {
		switch {
		case obj["products"] != nil:
			v = obj["products"]
		case obj["items"] != nil:
			v = obj["items"]
		default:
			v = []any{obj}
		}
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, types.ErrNoJSON
	}
	items := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, nil
}

func productFromLLM(m map[string]any, baseURL string) types.Product {
	p := types.Product{
		Title:       scalarString(m["title"]),
		Price:       scalarString(m["price"]),
		SKU:         scalarString(m["sku"]),
		Currency:    scalarString(m["currency"]),
		Description: scalarString(m["description"]),
		Brand:       scalarString(m["brand"]),
		Rating:      scalarString(m["rating"]),
		ReviewCount: scalarString(m["reviewCount"]),
		Source:      "llm",
	}
	if p.Title == "" {
		p.Title = scalarString(m["name"])
	}
	if href := scalarString(m["url"]); href != "" {
		p.URL = parser.ResolveURL(baseURL, href)
	}
	if img := scalarString(m["image"]); img != "" {
		p.Image = parser.ResolveURL(baseURL, img)
	}
	switch v := m["inStock"].(type) {
	case bool:
		p.InStock = types.Bool(v)
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			p.InStock = types.Bool(b)
		}
	}
	if crumbs, ok := m["breadcrumbs"].([]any); ok {
		for _, c := range crumbs {
			if s := scalarString(c); s != "" {
				p.Breadcrumbs = append(p.Breadcrumbs, s)
			}
		}
	}
	return p
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}
