package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// A locator finds a candidate JSON substring in free model text.
type locator func(text string) (string, bool)

// A repair rewrites a near-JSON candidate into something closer to JSON.
type repair func(candidate string) string

// Locators run in order; the first candidate that decodes (possibly after
// repair) wins.
var (
	locators = []locator{extractFenced, extractBare}
	repairs  = []repair{stripTrailingCommas, quoteBareKeys}
)

var fencedRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// ExtractJSON returns the first valid JSON value found in text.
func ExtractJSON(text string) (json.RawMessage, error) {
	for _, locate := range locators {
		candidate, ok := locate(text)
		if !ok {
			continue
		}
		if raw, ok := decodeWithRepair(candidate); ok {
			return raw, nil
		}
	}
	return nil, types.ErrNoJSON
}

// decodeWithRepair tries the candidate as-is, then after each cumulative
// repair step.
func decodeWithRepair(candidate string) (json.RawMessage, bool) {
	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), true
	}
	fixed := candidate
	for _, fix := range repairs {
		fixed = fix(fixed)
		if json.Valid([]byte(fixed)) {
			return json.RawMessage(fixed), true
		}
	}
	return nil, false
}

// extractFenced returns the body of the first markdown code fence.
func extractFenced(text string) (string, bool) {
	m := fencedRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	body := strings.TrimSpace(m[1])
	if body == "" {
		return "", false
	}
	if inner, ok := extractBare(body); ok {
		return inner, true
	}
	return body, true
}

// extractBare returns the first balanced {...} or [...] span, skipping
// brackets inside string literals.
func extractBare(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// stripTrailingCommas drops commas that directly precede a closing bracket.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// quoteBareKeys quotes identifier keys such as {mode: "HTTP"}.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString, escaped := false, false
	expectKey := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			expectKey = false
		case c == '{' || c == ',':
			expectKey = true
		case expectKey && isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
				i = j - 1
				expectKey = false
				continue
			}
			expectKey = false
		case !isSpace(c):
			expectKey = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool { return c == ' ' || c == '\n' || c == '\t' || c == '\r' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || (c >= '0' && c <= '9') }

// ParseDecision turns model text into a validated Decision. It accepts an
// {"actions": [...]} object, a bare action array, or a single action object.
func ParseDecision(text string) (*types.Decision, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	d := &types.Decision{}
	switch trimmed := strings.TrimSpace(string(raw)); {
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(raw, &d.Actions); err != nil {
			return nil, err
		}
	default:
		var shape map[string]json.RawMessage
		if err := json.Unmarshal(raw, &shape); err != nil {
			return nil, err
		}
		if actions, ok := shape["actions"]; ok {
			if err := json.Unmarshal(actions, &d.Actions); err != nil {
				return nil, err
			}
		} else if !looksLikeAction(shape) {
			return nil, fmt.Errorf("%w: response has no actions", types.ErrInvalidStrategy)
		} else {
			var single types.ExtractionStrategy
			if err := json.Unmarshal(raw, &single); err != nil {
				return nil, err
			}
			d.Actions = []types.ExtractionStrategy{single}
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func looksLikeAction(obj map[string]json.RawMessage) bool {
	for _, k := range []string{"mode", "parseStrategy", "selectors"} {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}
