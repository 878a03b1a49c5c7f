package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ShelfStalk/internal/parser"
	"github.com/IshaanNene/ShelfStalk/internal/pipeline"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// ExtractInput is everything an extractor may read for one page and action.
type ExtractInput struct {
	HTML    string
	BaseURL string
	Goal    string

	// Action is nil when the decision engine failed and only the run's
	// custom selectors may be tried.
	Action *types.ExtractionStrategy

	// Custom is the run-wide selector set supplied by the caller.
	Custom types.Selectors
}

// Extractor is one step of the extraction chain.
type Extractor interface {
	Name() string

	// Applies reports whether the step should run for in.
	Applies(in *ExtractInput) bool

	TryExtract(ctx context.Context, in *ExtractInput) ([]types.Product, error)
}

// customExtractor applies the caller's selectors regardless of the decision.
type customExtractor struct{}

func (customExtractor) Name() string { return "custom" }

func (customExtractor) Applies(in *ExtractInput) bool { return !in.Custom.IsEmpty() }

func (customExtractor) TryExtract(_ context.Context, in *ExtractInput) ([]types.Product, error) {
	products, err := parser.ExtractBySelectors(in.HTML, in.BaseURL, in.Custom)
	for i := range products {
		products[i].Source = "custom"
	}
	return products, err
}

// jsonLDExtractor reads schema.org Product nodes. Relative URLs are resolved
// against the page and a node without any URL is attributed to the page.
type jsonLDExtractor struct{}

func (jsonLDExtractor) Name() string { return "jsonld" }

func (jsonLDExtractor) Applies(in *ExtractInput) bool {
	return in.Action != nil && in.Action.UsesJSONLD()
}

func (jsonLDExtractor) TryExtract(_ context.Context, in *ExtractInput) ([]types.Product, error) {
	products := parser.ParseJSONLD(in.HTML)
	for i := range products {
		p := &products[i]
		if p.URL == "" {
			p.URL = in.BaseURL
		} else {
			p.URL = parser.ResolveURL(in.BaseURL, p.URL)
		}
		if p.Image != "" {
			p.Image = parser.ResolveURL(in.BaseURL, p.Image)
		}
	}
	return products, nil
}

// selectorExtractor runs the action's selectors as CSS, or as XPath for the
// XPATH strategy.
type selectorExtractor struct{}

func (selectorExtractor) Name() string { return "selectors" }

func (selectorExtractor) Applies(in *ExtractInput) bool {
	return in.Action != nil && (in.Action.UsesCSS() || in.Action.UsesXPath())
}

func (selectorExtractor) TryExtract(_ context.Context, in *ExtractInput) ([]types.Product, error) {
	if in.Action.UsesXPath() {
		return parser.ExtractByXPath(in.HTML, in.BaseURL, in.Action.Selectors)
	}
	return parser.ExtractBySelectors(in.HTML, in.BaseURL, in.Action.Selectors)
}

// llmExtractor asks the model to read products directly from the page.
type llmExtractor struct {
	direct DirectExtractor
}

func (x llmExtractor) Name() string { return "llm" }

func (x llmExtractor) Applies(in *ExtractInput) bool {
	return x.direct != nil && in.Action != nil
}

func (x llmExtractor) TryExtract(ctx context.Context, in *ExtractInput) ([]types.Product, error) {
	return x.direct.Extract(ctx, in.HTML, in.BaseURL, in.Goal)
}

// Chain tries extractors in order and stops at the first one whose output
// keeps at least one candidate after the pipeline.
type Chain struct {
	extractors []Extractor
	pipeline   *pipeline.Pipeline
	logger     *slog.Logger
}

// chainResult is the outcome of one pass over the chain.
type chainResult struct {
	Extractor  string
	Candidates []types.Product
	Errors     int
	Dropped    int
}

// NewChain builds the standard order: custom selectors, JSON-LD, CSS or
// XPath selectors, then direct LLM extraction when direct is non-nil.
func NewChain(direct DirectExtractor, pl *pipeline.Pipeline, logger *slog.Logger) *Chain {
	extractors := []Extractor{customExtractor{}, jsonLDExtractor{}, selectorExtractor{}}
	if direct != nil {
		extractors = append(extractors, llmExtractor{direct: direct})
	}
	return &Chain{extractors: extractors, pipeline: pl, logger: logger}
}

// Use appends an extractor to the end of the chain.
func (c *Chain) Use(x Extractor) {
	c.extractors = append(c.extractors, x)
}

// Names lists the extractors in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.extractors))
	for i, x := range c.extractors {
		names[i] = x.Name()
	}
	return names
}

// Extract runs the chain. An extractor error or panic is counted and the
// next extractor is tried.
func (c *Chain) Extract(ctx context.Context, in *ExtractInput) chainResult {
	var res chainResult
	for _, x := range c.extractors {
		if !x.Applies(in) {
			continue
		}
		raw, err := c.try(ctx, x, in)
		if err != nil {
			res.Errors++
			c.logger.Warn("extractor failed", "extractor", x.Name(), "url", in.BaseURL, "error", err)
			continue
		}
		kept, dropped := c.pipeline.ProcessAll(raw)
		res.Dropped += dropped
		c.logger.Debug("extractor finished", "extractor", x.Name(), "raw", len(raw), "kept", len(kept))
		if len(kept) > 0 {
			res.Extractor = x.Name()
			res.Candidates = kept
			return res
		}
	}
	return res
}

func (c *Chain) try(ctx context.Context, x Extractor, in *ExtractInput) (products []types.Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &types.ParseError{URL: in.BaseURL, Err: fmt.Errorf("extractor %s panicked: %v", x.Name(), r)}
		}
	}()
	return x.TryExtract(ctx, in)
}
