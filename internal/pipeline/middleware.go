package pipeline

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// textFields returns pointers to every free-text field of p.
func textFields(p *types.Product) []*string {
	return []*string{
		&p.Title, &p.Price, &p.SKU, &p.Currency, &p.Description,
		&p.Brand, &p.Rating, &p.ReviewCount, &p.CategoryID,
	}
}

// TrimMiddleware trims whitespace from all text fields and breadcrumbs.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(p *types.Product) (*types.Product, error) {
	p.URL = strings.TrimSpace(p.URL)
	p.Image = strings.TrimSpace(p.Image)
	for _, f := range textFields(p) {
		*f = strings.TrimSpace(*f)
	}
	crumbs := p.Breadcrumbs[:0]
	for _, c := range p.Breadcrumbs {
		if c = strings.TrimSpace(c); c != "" {
			crumbs = append(crumbs, c)
		}
	}
	p.Breadcrumbs = crumbs
	return p, nil
}

// HTMLSanitizeMiddleware strips HTML tags and entities from text fields.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(p *types.Product) (*types.Product, error) {
	for _, f := range textFields(p) {
		if *f == "" {
			continue
		}
		cleaned := m.stripRe.ReplaceAllString(*f, "")
		cleaned = html.UnescapeString(cleaned)
		*f = strings.Join(strings.Fields(cleaned), " ")
	}
	return p, nil
}

// AbsoluteURLMiddleware drops products whose URL is not absolute http(s)
// and clears images that are not.
type AbsoluteURLMiddleware struct{}

func (m *AbsoluteURLMiddleware) Name() string { return "absolute_url" }

func (m *AbsoluteURLMiddleware) Process(p *types.Product) (*types.Product, error) {
	if !isAbsoluteHTTP(p.URL) {
		return nil, nil
	}
	if p.Image != "" && !isAbsoluteHTTP(p.Image) {
		p.Image = ""
	}
	return p, nil
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CurrencyDetectMiddleware fills Currency from symbols or ISO codes found
// in the price text. An existing Currency is kept.
type CurrencyDetectMiddleware struct {
	codeRe  *regexp.Regexp
	symbols []symbolCode
}

type symbolCode struct {
	symbol, code string
}

func NewCurrencyDetectMiddleware() *CurrencyDetectMiddleware {
	return &CurrencyDetectMiddleware{
		codeRe: regexp.MustCompile(`\b(USD|EUR|GBP|JPY|INR|CAD|AUD|CHF|CNY|SEK|NOK|DKK|PLN|BRL|MXN)\b`),
		// Multi-rune symbols first so "C$" is not read as "$".
		symbols: []symbolCode{
			{"C$", "CAD"}, {"A$", "AUD"}, {"R$", "BRL"}, {"zł", "PLN"},
			{"€", "EUR"}, {"£", "GBP"}, {"¥", "JPY"}, {"₹", "INR"}, {"$", "USD"},
		},
	}
}

func (m *CurrencyDetectMiddleware) Name() string { return "currency_detect" }

func (m *CurrencyDetectMiddleware) Process(p *types.Product) (*types.Product, error) {
	if p.Currency != "" || p.Price == "" {
		return p, nil
	}
	if code := m.codeRe.FindString(strings.ToUpper(p.Price)); code != "" {
		p.Currency = code
		return p, nil
	}
	for _, s := range m.symbols {
		if strings.Contains(p.Price, s.symbol) {
			p.Currency = s.code
			break
		}
	}
	return p, nil
}

// PriceAmountMiddleware parses the numeric amount out of the free-text
// price into Extra["priceAmount"]. The Price text itself is not changed.
type PriceAmountMiddleware struct {
	numberRe *regexp.Regexp
}

func NewPriceAmountMiddleware() *PriceAmountMiddleware {
	return &PriceAmountMiddleware{
		numberRe: regexp.MustCompile(`\d[\d.,\s]*`),
	}
}

func (m *PriceAmountMiddleware) Name() string { return "price_amount" }

func (m *PriceAmountMiddleware) Process(p *types.Product) (*types.Product, error) {
	if p.Price == "" {
		return p, nil
	}
	if amount, ok := ParseAmount(m.numberRe.FindString(p.Price)); ok {
		p.SetExtra("priceAmount", amount)
	}
	return p, nil
}

// ParseAmount reads "1,234.56" and "1.234,56" style numbers.
func ParseAmount(s string) (float64, bool) {
	numeric := strings.Join(strings.Fields(s), "")
	numeric = strings.TrimRight(numeric, ".,")
	if numeric == "" {
		return 0, false
	}

	lastComma := strings.LastIndex(numeric, ",")
	lastDot := strings.LastIndex(numeric, ".")
	switch {
	case lastComma > lastDot:
		// 1.234,56 or 12,50; a lone comma followed by exactly three digits
		// is a thousands separator (1,234).
		if lastDot < 0 && strings.Count(numeric, ",") == 1 && len(numeric)-lastComma-1 == 3 {
			numeric = strings.ReplaceAll(numeric, ",", "")
		} else {
			numeric = strings.ReplaceAll(numeric, ".", "")
			numeric = strings.Replace(numeric, ",", ".", 1)
		}
	case lastComma >= 0:
		numeric = strings.ReplaceAll(numeric, ",", "")
	}

	f, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// RequiredFieldsMiddleware drops products that fail Product.Validate.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(p *types.Product) (*types.Product, error) {
	if err := p.Validate(); err != nil {
		return nil, nil
	}
	return p, nil
}
