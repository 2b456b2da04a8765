package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseLenient turns a raw model response into a Payload. Parsing is layered:
// strict JSON first, then markdown fence stripping, then a balanced-bracket
// substring scan. The recovered flag reports whether a recovery layer was
// needed.
func ParseLenient(raw string) (Payload, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, false, fmt.Errorf("empty model response")
	}

	if p, err := decodePayload(raw); err == nil {
		return p, false, nil
	}

	if stripped := stripFences(raw); stripped != raw {
		if p, err := decodePayload(stripped); err == nil {
			return p, true, nil
		}
	}

	if sub := firstBalanced(raw); sub != "" {
		if p, err := decodePayload(sub); err == nil {
			return p, true, nil
		}
	}

	return Payload{}, false, fmt.Errorf("model response is not parseable JSON")
}

// decodePayload accepts either the {items: [...]} envelope or a bare item
// array. Numeric fields may arrive as numbers, formatted strings, or null,
// so items are decoded generically and normalized afterwards.
func decodePayload(s string) (Payload, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var rows []map[string]any
		if err := json.Unmarshal([]byte(s), &rows); err != nil {
			return Payload{}, fmt.Errorf("decode item array: %w", err)
		}
		if err := ValidateItems(rows); err != nil {
			return Payload{}, err
		}
		return Payload{Items: NormalizeItems(rows)}, nil
	}

	var env struct {
		Items   []map[string]any `json:"items"`
		Summary string           `json:"summary"`
	}
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if env.Items == nil {
		return Payload{}, fmt.Errorf("payload has no items field")
	}
	if err := ValidateItems(env.Items); err != nil {
		return Payload{}, err
	}
	return Payload{Items: NormalizeItems(env.Items), Summary: env.Summary}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line ("json", "JSON", ...)
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// firstBalanced returns the first balanced {...} or [...] substring, tracking
// string literals and escapes so braces inside descriptions do not confuse
// the scan.
func firstBalanced(s string) string {
	start := -1
	var open, close rune
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			open = r
			if r == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := rune(s[i])
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
