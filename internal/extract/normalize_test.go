package extract

import "testing"

func TestParseNumberBRFormats(t *testing.T) {
	cases := map[string]float64{
		"1.234,56":    1234.56,
		"R$ 1.234,56": 1234.56,
		"12,50":       12.5,
		"1234.56":     1234.56,
		"1.234":       1234,
		"0,05":        0.05,
		"7":           7,
	}
	for in, want := range cases {
		got := ParseNumber(in)
		if got == nil {
			t.Fatalf("parse %q: got nil, want %v", in, want)
		}
		if *got != want {
			t.Fatalf("parse %q: got %v, want %v", in, *got, want)
		}
	}
}

func TestParseNumberNullSafety(t *testing.T) {
	for _, in := range []any{nil, "", "-", "N/A", true} {
		if got := ParseNumber(in); got != nil {
			t.Fatalf("parse %v: expected nil, got %v", in, *got)
		}
	}
}

func TestNormalizeItemsDropsEmptyDescriptions(t *testing.T) {
	rows := []map[string]any{
		{"description": "  "},
		{"description": "CONCRETE", "quantity": nil, "unit_price": "8,20"},
		{"unit": "m2"},
	}
	items := NormalizeItems(rows)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.Quantity != nil {
		t.Fatalf("absent quantity must stay nil, got %v", *it.Quantity)
	}
	if it.UnitPrice == nil || *it.UnitPrice != 8.2 {
		t.Fatalf("unexpected unit price: %+v", it.UnitPrice)
	}
	if it.Confidence != defaultConfidence {
		t.Fatalf("unexpected confidence: %v", it.Confidence)
	}
}

func TestPlaceholderItem(t *testing.T) {
	it := PlaceholderItem("scan unreadable")
	if it.Confidence != 0.1 {
		t.Fatalf("unexpected confidence: %v", it.Confidence)
	}
	if it.Quantity != nil || it.UnitPrice != nil || it.Total != nil {
		t.Fatal("placeholder must not carry fabricated numbers")
	}
	if it.Description == "" {
		t.Fatal("placeholder must name the failure")
	}
}
