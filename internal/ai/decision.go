package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ShelfStalk/internal/cache"
	"github.com/IshaanNene/ShelfStalk/internal/parser"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// DecisionEngine asks an LLM how to read a page and degrades to
// FallbackDecision on any provider, parse or validation failure.
type DecisionEngine struct {
	provider     Provider
	cache        *cache.Cache[*types.Decision]
	maxHTMLChars int
	logger       *slog.Logger
}

// DecisionOption configures a DecisionEngine.
type DecisionOption func(*DecisionEngine)

// WithDecisionCache shares decisions across runs. The cache is advisory.
func WithDecisionCache(c *cache.Cache[*types.Decision]) DecisionOption {
	return func(e *DecisionEngine) { e.cache = c }
}

// WithMaxHTMLChars bounds the HTML placed in the decision prompt.
func WithMaxHTMLChars(n int) DecisionOption {
	return func(e *DecisionEngine) { e.maxHTMLChars = n }
}

// NewDecisionEngine creates a decision engine. A nil provider is allowed
// but makes Decide fail with ErrNoProvider.
func NewDecisionEngine(provider Provider, logger *slog.Logger, opts ...DecisionOption) *DecisionEngine {
	e := &DecisionEngine{
		provider:     provider,
		maxHTMLChars: parser.DefaultMaxHTMLChars,
		logger:       logger.With("component", "decision_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide proposes extraction actions for obs. The only error is
// ErrNoProvider when the engine has no provider; every other failure is
// absorbed into a fallback decision, so the result always has an action.
func (e *DecisionEngine) Decide(ctx context.Context, obs *types.PageObservation, goal string) (*types.Decision, error) {
	if e == nil || e.provider == nil {
		return nil, types.ErrNoProvider
	}

	key := cache.Key(e.provider.Name(), e.provider.Model(), obs.URL, goal)
	if e.cache != nil {
		if d, ok := e.cache.Get(key); ok {
			e.logger.Debug("decision cache hit", "url", obs.URL)
			return cloneDecision(d), nil
		}
	}

	text, err := e.provider.Complete(ctx, decisionPrompt(obs, goal, e.maxHTMLChars))
	if err != nil {
		e.logger.Warn("llm decision call failed, using fallback", "url", obs.URL, "error", err)
		return FallbackDecision(obs, fmt.Sprintf("llm call failed: %v", err)), nil
	}

	d, err := ParseDecision(text)
	if err != nil {
		e.logger.Warn("llm decision unusable, using fallback", "url", obs.URL, "error", err)
		return FallbackDecision(obs, fmt.Sprintf("invalid decision: %v", err)), nil
	}
	if err := validateSelectors(d); err != nil {
		e.logger.Warn("llm proposed invalid selectors, using fallback", "url", obs.URL, "error", err)
		return FallbackDecision(obs, err.Error()), nil
	}

	e.logger.Debug("decision made", "url", obs.URL, "actions", len(d.Actions),
		"mode", d.Actions[0].Mode, "parse", d.Actions[0].ParseStrategy)
	if e.cache != nil {
		e.cache.Set(key, cloneDecision(d))
	}
	return d, nil
}

// validateSelectors compiles every selector an action proposes.
func validateSelectors(d *types.Decision) error {
	for i, a := range d.Actions {
		check := parser.ValidateCSS
		if a.ParseStrategy == types.ParseXPath {
			check = parser.ValidateXPath
		}
		for name, sel := range a.Selectors.Fields() {
			if err := check(sel); err != nil {
				return fmt.Errorf("%w: action %d selector %s: %v", types.ErrInvalidStrategy, i, name, err)
			}
		}
		if a.Pagination.Selector != "" {
			if err := parser.ValidateCSS(a.Pagination.Selector); err != nil {
				return fmt.Errorf("%w: action %d pagination: %v", types.ErrInvalidStrategy, i, err)
			}
		}
	}
	return nil
}

func cloneDecision(d *types.Decision) *types.Decision {
	c := *d
	c.Actions = append([]types.ExtractionStrategy(nil), d.Actions...)
	return &c
}
