package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		name string
		c    FailureCounters
		want float64
	}{
		{"no pages", FailureCounters{}, 0},
		{"all good", FailureCounters{TotalPages: 4}, 1},
		{"mixed", FailureCounters{TotalPages: 4, HTTPErrors: 1, LLMErrors: 1}, 0.5},
		{"parse and empty do not count", FailureCounters{TotalPages: 2, ParsingErrors: 2, EmptyResults: 2}, 1},
		{"clamped", FailureCounters{TotalPages: 1, HTTPErrors: 1, NoHTML: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.SuccessRate(); got != tt.want {
				t.Errorf("SuccessRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecisionWithoutActionsIsInvalid(t *testing.T) {
	d := &Decision{}
	if err := d.Validate(); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("expected ErrInvalidStrategy, got %v", err)
	}
}

func TestStrategyNormalize(t *testing.T) {
	s := ExtractionStrategy{Mode: " browser ", ParseStrategy: "css", Selectors: Selectors{Item: ".card"}}
	s.Normalize()
	if s.Mode != ModeBrowser || s.ParseStrategy != ParseCSS {
		t.Errorf("unexpected normalization: %+v", s)
	}
	if s.Pagination.Type != PaginationNone || s.Retry.Strategy != BackoffExponential {
		t.Errorf("defaults not filled: %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("expected valid strategy: %v", err)
	}
}

func TestStrategyValidate(t *testing.T) {
	tests := []struct {
		name string
		s    ExtractionStrategy
	}{
		{"unknown mode", ExtractionStrategy{Mode: "FTP"}},
		{"unknown parse strategy", ExtractionStrategy{ParseStrategy: "REGEX"}},
		{"css without item", ExtractionStrategy{ParseStrategy: ParseCSS}},
		{"xpath without item", ExtractionStrategy{ParseStrategy: ParseXPath}},
		{"negative wait", ExtractionStrategy{AntiLazy: AntiLazy{WaitMs: -1}}},
		{"negative min products", ExtractionStrategy{StopCriteria: StopCriteria{MinProducts: -3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.s
			s.Normalize()
			if err := s.Validate(); !errors.Is(err, ErrInvalidStrategy) {
				t.Errorf("expected ErrInvalidStrategy, got %v", err)
			}
		})
	}
}

func TestDecisionFromJSON(t *testing.T) {
	raw := `{"actions":[{"mode":"http","parseStrategy":"hybrid","selectors":{"item":".p","price":".price"},
		"pagination":{"type":"link"},"retry":{"maxAttempts":9}}]}`
	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatal(err)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	a := d.Actions[0]
	if a.Pagination.Type != PaginationLink || a.Selectors.Price != ".price" {
		t.Errorf("unexpected action: %+v", a)
	}
	if a.Retry.Attempts() != 5 {
		t.Errorf("expected attempts clamped to 5, got %d", a.Retry.Attempts())
	}
}

func TestUsesExtractors(t *testing.T) {
	hybrid := ExtractionStrategy{ParseStrategy: ParseHybrid}
	if !hybrid.UsesJSONLD() || hybrid.UsesCSS() {
		t.Error("hybrid without selectors should only use JSON-LD")
	}
	hybrid.Selectors.Item = ".p"
	if !hybrid.UsesCSS() || hybrid.UsesXPath() {
		t.Error("hybrid with selectors should use CSS but not XPath")
	}
	x := ExtractionStrategy{ParseStrategy: ParseXPath, Selectors: Selectors{Item: "//li"}}
	if !x.UsesXPath() || x.UsesCSS() || x.UsesJSONLD() {
		t.Error("xpath strategy should use XPath only")
	}
}

func TestProductValidate(t *testing.T) {
	good := Product{URL: "https://x.test/p", Title: "P"}
	if err := good.Validate(); err != nil {
		t.Errorf("expected valid: %v", err)
	}
	for _, p := range []Product{
		{URL: "https://x.test/p"},
		{Title: "P"},
		{URL: "/relative", Title: "P"},
		{URL: "ftp://x.test/p", Title: "P"},
	} {
		if err := p.Validate(); err == nil {
			t.Errorf("expected %+v to be invalid", p)
		}
	}
}

func TestProductClone(t *testing.T) {
	p := Product{URL: "https://x.test", Title: "T", InStock: Bool(true), Breadcrumbs: []string{"a"}}
	p.SetExtra("k", "v")
	c := p.Clone()
	*c.InStock = false
	c.Breadcrumbs[0] = "b"
	c.Extra["k"] = "changed"
	if !*p.InStock || p.Breadcrumbs[0] != "a" || p.Extra["k"] != "v" {
		t.Error("clone shares state with original")
	}
	if c.Key() != p.Key() {
		t.Error("clone should keep the same key")
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	for _, err := range []error{
		&FetchError{URL: "u", Err: base},
		&ParseError{URL: "u", Err: base},
		&LLMError{Provider: "openai", Category: LLMErrServer, Err: base},
		&StorageError{Backend: "json", Err: base},
		&PipelineError{Stage: "trim", Err: base},
	} {
		if !errors.Is(err, base) {
			t.Errorf("%T does not unwrap", err)
		}
		if err.Error() == "" {
			t.Errorf("%T has empty message", err)
		}
	}
}
