package types

import (
	"fmt"
	"strings"
	"time"
)

// ParseStrategy selects which structural extractors run for a page.
type ParseStrategy string

const (
	ParseCSS    ParseStrategy = "CSS"
	ParseXPath  ParseStrategy = "XPATH"
	ParseJSONLD ParseStrategy = "JSONLD"
	ParseHybrid ParseStrategy = "HYBRID"
)

// PaginationType describes how a listing exposes further pages.
type PaginationType string

const (
	PaginationLink   PaginationType = "LINK"
	PaginationButton PaginationType = "BUTTON"
	PaginationScroll PaginationType = "SCROLL"
	PaginationParams PaginationType = "PARAMS"
	PaginationNone   PaginationType = "NONE"
)

// BackoffStrategy selects the delay curve between retry attempts.
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "EXPONENTIAL"
	BackoffJitter      BackoffStrategy = "JITTER"
)

// Selectors are named CSS (or XPath, for ParseXPath) expressions. Link,
// title, price and image are evaluated relative to each Item match.
type Selectors struct {
	Item        string `json:"item,omitempty"        mapstructure:"item"        yaml:"item"`
	Link        string `json:"link,omitempty"        mapstructure:"link"        yaml:"link"`
	Title       string `json:"title,omitempty"       mapstructure:"title"       yaml:"title"`
	Price       string `json:"price,omitempty"       mapstructure:"price"       yaml:"price"`
	Image       string `json:"image,omitempty"       mapstructure:"image"       yaml:"image"`
	Description string `json:"description,omitempty" mapstructure:"description" yaml:"description"`
	Brand       string `json:"brand,omitempty"       mapstructure:"brand"       yaml:"brand"`
	Rating      string `json:"rating,omitempty"      mapstructure:"rating"      yaml:"rating"`
	SKU         string `json:"sku,omitempty"         mapstructure:"sku"         yaml:"sku"`
}

// IsEmpty reports whether no item selector is set.
func (s Selectors) IsEmpty() bool {
	return strings.TrimSpace(s.Item) == ""
}

// Fields returns the non-empty selectors keyed by name.
func (s Selectors) Fields() map[string]string {
	all := map[string]string{
		"item": s.Item, "link": s.Link, "title": s.Title, "price": s.Price,
		"image": s.Image, "description": s.Description, "brand": s.Brand,
		"rating": s.Rating, "sku": s.SKU,
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// Pagination describes how to reach the next page of a listing.
type Pagination struct {
	Type     PaginationType `json:"type,omitempty"`
	Selector string         `json:"selector,omitempty"`
	MaxPages int            `json:"maxPages,omitempty"`
}

// AntiLazy configures scrolling before the page is read.
type AntiLazy struct {
	Scroll     bool `json:"scroll"`
	WaitMs     int  `json:"waitMs,omitempty"`
	MaxScrolls int  `json:"maxScrolls,omitempty"`
}

// Wait returns the post-load wait as a duration.
func (a AntiLazy) Wait() time.Duration {
	return time.Duration(a.WaitMs) * time.Millisecond
}

// RetryPolicy bounds repeated fetch attempts for one page.
type RetryPolicy struct {
	MaxAttempts int             `json:"maxAttempts,omitempty" mapstructure:"max_attempts" yaml:"max_attempts"`
	Strategy    BackoffStrategy `json:"strategy,omitempty"    mapstructure:"strategy"     yaml:"strategy"`
	BaseDelayMs int             `json:"baseDelayMs,omitempty" mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
}

// Attempts returns MaxAttempts clamped to [1, 5].
func (r RetryPolicy) Attempts() int {
	switch {
	case r.MaxAttempts < 1:
		return 1
	case r.MaxAttempts > 5:
		return 5
	default:
		return r.MaxAttempts
	}
}

// StopCriteria ends a run early.
type StopCriteria struct {
	MinProducts int `json:"minProducts,omitempty"`
}

// ExtractionStrategy is one proposed way of reading a page.
type ExtractionStrategy struct {
	Mode          FetchMode     `json:"mode"`
	ParseStrategy ParseStrategy `json:"parseStrategy"`
	Selectors     Selectors     `json:"selectors"`
	Pagination    Pagination    `json:"pagination"`
	AntiLazy      AntiLazy      `json:"antiLazy"`
	Retry         RetryPolicy   `json:"retry"`
	StopCriteria  StopCriteria  `json:"stopCriteria"`
}

// Normalize upper-cases enum fields and fills empty ones with defaults.
func (s *ExtractionStrategy) Normalize() {
	s.Mode = FetchMode(strings.ToUpper(strings.TrimSpace(string(s.Mode))))
	if s.Mode == "" {
		s.Mode = ModeHTTP
	}
	s.ParseStrategy = ParseStrategy(strings.ToUpper(strings.TrimSpace(string(s.ParseStrategy))))
	if s.ParseStrategy == "" {
		s.ParseStrategy = ParseHybrid
	}
	s.Pagination.Type = PaginationType(strings.ToUpper(strings.TrimSpace(string(s.Pagination.Type))))
	if s.Pagination.Type == "" {
		s.Pagination.Type = PaginationNone
	}
	s.Retry.Strategy = BackoffStrategy(strings.ToUpper(strings.TrimSpace(string(s.Retry.Strategy))))
	if s.Retry.Strategy == "" {
		s.Retry.Strategy = BackoffExponential
	}
}

// Validate checks enum membership and numeric bounds.
func (s *ExtractionStrategy) Validate() error {
	switch s.Mode {
	case ModeHTTP, ModeBrowser:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidStrategy, s.Mode)
	}
	switch s.ParseStrategy {
	case ParseCSS, ParseXPath, ParseJSONLD, ParseHybrid:
	default:
		return fmt.Errorf("%w: parseStrategy %q", ErrInvalidStrategy, s.ParseStrategy)
	}
	switch s.Pagination.Type {
	case PaginationLink, PaginationButton, PaginationScroll, PaginationParams, PaginationNone:
	default:
		return fmt.Errorf("%w: pagination.type %q", ErrInvalidStrategy, s.Pagination.Type)
	}
	switch s.Retry.Strategy {
	case BackoffExponential, BackoffJitter:
	default:
		return fmt.Errorf("%w: retry.strategy %q", ErrInvalidStrategy, s.Retry.Strategy)
	}
	if (s.ParseStrategy == ParseCSS || s.ParseStrategy == ParseXPath) && s.Selectors.IsEmpty() {
		return fmt.Errorf("%w: %s strategy without item selector", ErrInvalidStrategy, s.ParseStrategy)
	}
	if s.AntiLazy.WaitMs < 0 || s.AntiLazy.MaxScrolls < 0 {
		return fmt.Errorf("%w: negative antiLazy values", ErrInvalidStrategy)
	}
	if s.StopCriteria.MinProducts < 0 || s.Pagination.MaxPages < 0 || s.Retry.MaxAttempts < 0 {
		return fmt.Errorf("%w: negative bound", ErrInvalidStrategy)
	}
	return nil
}

// UsesJSONLD reports whether the JSON-LD extractor should run.
func (s *ExtractionStrategy) UsesJSONLD() bool {
	return s.ParseStrategy == ParseJSONLD || s.ParseStrategy == ParseHybrid
}

// UsesCSS reports whether the CSS selector extractor should run.
func (s *ExtractionStrategy) UsesCSS() bool {
	return (s.ParseStrategy == ParseCSS || s.ParseStrategy == ParseHybrid) && !s.Selectors.IsEmpty()
}

// UsesXPath reports whether the XPath extractor should run.
func (s *ExtractionStrategy) UsesXPath() bool {
	return s.ParseStrategy == ParseXPath && !s.Selectors.IsEmpty()
}

// Decision is the Decision Engine's output for one page.
type Decision struct {
	Actions []ExtractionStrategy `json:"actions"`

	// Fallback is true when the actions were synthesized rather than
	// proposed by the model.
	Fallback bool `json:"-"`

	// Reason records why a fallback was used.
	Reason string `json:"-"`
}

// Validate normalizes and validates every action. A decision with no
// actions is invalid.
func (d *Decision) Validate() error {
	if len(d.Actions) == 0 {
		return fmt.Errorf("%w: decision has no actions", ErrInvalidStrategy)
	}
	for i := range d.Actions {
		d.Actions[i].Normalize()
		if err := d.Actions[i].Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}
