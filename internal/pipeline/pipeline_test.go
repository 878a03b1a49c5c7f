package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineBasic(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	result, err := p.Process(&types.Product{
		URL:         " https://example.com/p ",
		Title:       "  Hello World  ",
		Breadcrumbs: []string{" Home ", "", "Shoes"},
	})
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.Title != "Hello World" || result.URL != "https://example.com/p" {
		t.Errorf("expected trimmed fields, got %+v", result)
	}
	if len(result.Breadcrumbs) != 2 || result.Breadcrumbs[0] != "Home" {
		t.Errorf("unexpected breadcrumbs %v", result.Breadcrumbs)
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{}

	result, err := m.Process(&types.Product{URL: "https://example.com/a", Title: "A"})
	if err != nil || result == nil {
		t.Error("valid product should pass")
	}

	result, _ = m.Process(&types.Product{URL: "https://example.com/a"})
	if result != nil {
		t.Error("product without title should be dropped")
	}
}

func TestHTMLSanitizeMiddleware(t *testing.T) {
	m := NewHTMLSanitizeMiddleware()
	result, err := m.Process(&types.Product{
		Title:       `<b>Trail</b> Runner &amp; Co`,
		Description: `<p>Hello <i>World</i></p>`,
	})
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if result.Title != "Trail Runner & Co" {
		t.Errorf("expected 'Trail Runner & Co', got %q", result.Title)
	}
	if result.Description != "Hello World" {
		t.Errorf("expected 'Hello World', got %q", result.Description)
	}
}

func TestAbsoluteURLMiddleware(t *testing.T) {
	m := &AbsoluteURLMiddleware{}

	out, _ := m.Process(&types.Product{URL: "https://x.test/p", Title: "P", Image: "/img.jpg"})
	if out == nil || out.Image != "" {
		t.Errorf("expected relative image cleared, got %+v", out)
	}
	if out, _ := m.Process(&types.Product{URL: "/p", Title: "P"}); out != nil {
		t.Error("relative product URL should be dropped")
	}
}

func TestCurrencyDetectMiddleware(t *testing.T) {
	m := NewCurrencyDetectMiddleware()
	tests := []struct {
		price, existing, want string
	}{
		{"$9.99", "", "USD"},
		{"C$ 12.00", "", "CAD"},
		{"12,50 €", "", "EUR"},
		{"£5", "", "GBP"},
		{"40 usd", "", "USD"},
		{"$9.99", "AUD", "AUD"},
		{"9.99", "", ""},
	}
	for _, tt := range tests {
		out, _ := m.Process(&types.Product{Price: tt.price, Currency: tt.existing})
		if out.Currency != tt.want {
			t.Errorf("price %q: expected %q, got %q", tt.price, tt.want, out.Currency)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,299.00", 1299, true},
		{"1.234,56", 1234.56, true},
		{"12,50", 12.5, true},
		{"1,234", 1234, true},
		{"1 234,56", 1234.56, true},
		{"9.99", 9.99, true},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseAmount(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPriceAmountKeepsText(t *testing.T) {
	out, _ := NewPriceAmountMiddleware().Process(&types.Product{Price: "Now $1,299.00!"})
	if out.Price != "Now $1,299.00!" {
		t.Errorf("price text must not change, got %q", out.Price)
	}
	if out.Extra["priceAmount"] != 1299.0 {
		t.Errorf("expected priceAmount 1299, got %v", out.Extra["priceAmount"])
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "failing" }
func (failingMiddleware) Process(*types.Product) (*types.Product, error) {
	return nil, errors.New("boom")
}

func TestPipelineError(t *testing.T) {
	p := New(testLogger)
	p.Use(failingMiddleware{})

	_, err := p.Process(&types.Product{Title: "x"})
	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Stage != "failing" {
		t.Errorf("expected PipelineError from stage failing, got %v", err)
	}
}

func TestDefaultProcessAll(t *testing.T) {
	p := Default(testLogger)
	if p.Len() != 6 {
		t.Errorf("expected 6 middlewares, got %d", p.Len())
	}

	in := []types.Product{
		{URL: "https://x.test/a", Title: " <b>A</b> ", Price: "€ 1.234,50"},
		{URL: "https://x.test/b", Title: "  "},
		{URL: "relative/c", Title: "C"},
	}
	kept, dropped := p.ProcessAll(in)
	if len(kept) != 1 || dropped != 2 {
		t.Fatalf("expected 1 kept and 2 dropped, got %d/%d", len(kept), dropped)
	}
	a := kept[0]
	if a.Title != "A" || a.Currency != "EUR" || a.Extra["priceAmount"] != 1234.5 {
		t.Errorf("unexpected product %+v", a)
	}
	if in[0].Title != " <b>A</b> " {
		t.Error("ProcessAll must not mutate its input")
	}
}
