package pipeline

import (
	"log/slog"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// Middleware processes a product candidate and returns the (possibly
// modified) product. Return nil to drop it.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a product. Return nil to drop the product.
	Process(p *types.Product) (*types.Product, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the standard product cleaning chain: trim, strip markup,
// enforce absolute URLs, detect currency, parse the price amount and drop
// products without a title or URL.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(&AbsoluteURLMiddleware{})
	p.Use(NewCurrencyDetectMiddleware())
	p.Use(NewPriceAmountMiddleware())
	p.Use(&RequiredFieldsMiddleware{})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the product through all middleware in order.
func (p *Pipeline) Process(product *types.Product) (*types.Product, error) {
	current := product

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:   mw.Name(),
				Product: current,
				Err:     err,
			}
		}
		if result == nil {
			p.logger.Debug("product dropped", "stage", mw.Name(), "url", product.URL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// ProcessAll runs every candidate through the chain and returns the
// survivors in order. A middleware error drops only that candidate.
func (p *Pipeline) ProcessAll(products []types.Product) (kept []types.Product, dropped int) {
	for i := range products {
		out, err := p.Process(products[i].Clone())
		if err != nil {
			p.logger.Warn("pipeline error", "url", products[i].URL, "error", err)
			dropped++
			continue
		}
		if out == nil {
			dropped++
			continue
		}
		kept = append(kept, *out)
	}
	return kept, dropped
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}
