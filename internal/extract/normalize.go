package extract

import (
	"fmt"
	"math"
	"strings"
)

const defaultConfidence = 0.8

// NormalizeItems converts decoded generic rows into Items. Rows without a
// usable description are dropped. Numeric fields that are absent or
// unparseable stay nil.
func NormalizeItems(rows []map[string]any) []Item {
	out := make([]Item, 0, len(rows))
	for _, row := range rows {
		desc := strings.TrimSpace(stringField(row, "description"))
		if desc == "" {
			continue
		}
		it := Item{
			Description: desc,
			Unit:        strings.TrimSpace(stringField(row, "unit")),
			Quantity:    ParseNumber(row["quantity"]),
			UnitPrice:   ParseNumber(row["unit_price"]),
			Total:       ParseNumber(row["total"]),
			RawLine:     strings.TrimSpace(stringField(row, "raw_line")),
		}
		it.Confidence = defaultConfidence
		if c := ParseNumber(row["confidence"]); c != nil {
			it.Confidence = clamp01(*c)
		}
		out = append(out, it)
	}
	return out
}

// ParseNumber accepts JSON numbers, Brazilian-formatted strings
// ("1.234,56", "R$ 12,50") and plain decimal strings. Anything absent or
// unparseable yields nil — a silent zero is indistinguishable from
// "ten items cost nothing", so zero is never fabricated.
func ParseNumber(v any) *float64 {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return &x
	case int:
		f := float64(x)
		return &f
	case string:
		return parseNumberString(x)
	default:
		return nil
	}
}

func parseNumberString(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	// Keep digits, separators and sign only.
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" || s == "-" {
		return nil
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// "1.234,56": dots are thousands separators, comma is decimal.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
		if strings.Count(s, ".") > 1 {
			return nil
		}
	case hasDot:
		// A single dot with one or two trailing digits is a decimal point;
		// otherwise dots are thousands separators ("1.234").
		idx := strings.LastIndex(s, ".")
		decimals := len(s) - idx - 1
		if strings.Count(s, ".") == 1 && decimals >= 1 && decimals <= 2 {
			break
		}
		s = strings.ReplaceAll(s, ".", "")
	}

	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Round2 rounds to two decimals, the resolution used by dedup keys.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// PlaceholderItem synthesizes the single low-confidence item inserted when a
// whole document yields nothing, so an empty run never masquerades as an
// untried one.
func PlaceholderItem(reason string) Item {
	desc := "No budget items could be extracted automatically; manual review required"
	if strings.TrimSpace(reason) != "" {
		desc = fmt.Sprintf("%s (%s)", desc, strings.TrimSpace(reason))
	}
	return Item{Description: desc, Confidence: 0.1}
}

func stringField(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
