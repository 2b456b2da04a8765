package extract

import (
	"fmt"
	"strings"
	"unicode"
)

// DedupKey builds the normalized signature of an item: uppercased,
// punctuation-stripped, space-collapsed description plus unit plus numerics
// rounded to two decimals. Two passes over the same visual rows produce
// unrelated database ids, so identity is content-based.
func DedupKey(it Item) string {
	parts := []string{
		normalizeDescription(it.Description),
		strings.ToUpper(strings.TrimSpace(it.Unit)),
		numKey(it.Quantity),
		numKey(it.UnitPrice),
		numKey(it.Total),
	}
	return strings.Join(parts, "|")
}

// MergeAugment merges an augmenting pass into an existing item set, keeping
// only incoming items whose dedup key is not already present. It reports how
// many were added and how many were discarded as duplicates.
func MergeAugment(existing, incoming []Item) (merged []Item, added, dropped int) {
	seen := make(map[string]struct{}, len(existing))
	for _, it := range existing {
		seen[DedupKey(it)] = struct{}{}
	}
	merged = make([]Item, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	for _, it := range incoming {
		key := DedupKey(it)
		if _, ok := seen[key]; ok {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, it)
		added++
	}
	return merged, added, dropped
}

func normalizeDescription(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func numKey(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", Round2(*f))
}
