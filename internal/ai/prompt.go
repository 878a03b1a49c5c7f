package ai

import (
	"fmt"
	"strings"

	"github.com/IshaanNene/ShelfStalk/internal/parser"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

const decisionSystemPrompt = `You plan how to extract product listings from one web page.
Reply with JSON only, shaped as {"actions": [ACTION, ...]}, usually a single action.

ACTION fields:
  "mode": "HTTP" or "BROWSER" (BROWSER only if products are rendered by JavaScript)
  "parseStrategy": "CSS", "XPATH", "JSONLD" or "HYBRID" (JSON-LD first, then CSS)
  "selectors": {"item", "link", "title", "price", "image", "description", "brand", "rating", "sku"}
      "item" matches one element per product; the others are relative to it.
      Use CSS syntax unless parseStrategy is XPATH.
  "pagination": {"type": "LINK"|"BUTTON"|"SCROLL"|"PARAMS"|"NONE", "selector": "...", "maxPages": N}
  "antiLazy": {"scroll": true|false, "waitMs": N, "maxScrolls": N}
  "retry": {"maxAttempts": N, "strategy": "EXPONENTIAL"|"JITTER", "baseDelayMs": N}
  "stopCriteria": {"minProducts": N}

Only use selectors that exist in the HTML you were given. Always include a price selector.`

const extractSystemPrompt = `You extract product records from simplified HTML.
Only report products that are actually present in the HTML. Never invent values.
Reply with JSON only, shaped as {"products": [PRODUCT, ...]}.
PRODUCT requires "title" and "url"; optional fields are "price", "image", "inStock",
"sku", "currency", "breadcrumbs", "description", "brand", "rating", "reviewCount".
Copy href and src values exactly as they appear. If there are no products, reply {"products": []}.`

func decisionPrompt(obs *types.PageObservation, goal string, maxChars int) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	fmt.Fprintf(&b, "URL: %s\n", obs.URL)
	fmt.Fprintf(&b, "Fetched via: %s, status %d\n", obs.Mode, obs.Status)
	fmt.Fprintf(&b, "Signals: links=%d images=%d jsonld=%t scrollHeight=%d\n",
		obs.DOMSignals.LinkCount, obs.DOMSignals.ImageCount, obs.DOMSignals.HasJSONLD, obs.DOMSignals.ScrollHeight)
	b.WriteString("\nHTML:\n")
	b.WriteString(parser.SimplifyHTML(obs.HTML, maxChars))
	return Prompt{System: decisionSystemPrompt, User: b.String(), JSON: true}
}

func extractPrompt(simplified, baseURL, goal string) Prompt {
	user := fmt.Sprintf("Goal: %s\nPage URL: %s\n\nHTML:\n%s", goal, baseURL, simplified)
	return Prompt{System: extractSystemPrompt, User: user, JSON: true}
}
