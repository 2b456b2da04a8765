package extract

import "testing"

func f(v float64) *float64 { return &v }

func TestDedupKeyNormalization(t *testing.T) {
	a := Item{Description: "Concrete, fck-25 (pump)", Unit: "m3", Quantity: f(10.5), Total: f(4410)}
	b := Item{Description: "CONCRETE FCK 25 PUMP", Unit: "M3", Quantity: f(10.504), Total: f(4410.001)}
	if DedupKey(a) != DedupKey(b) {
		t.Fatalf("keys differ:\n%s\n%s", DedupKey(a), DedupKey(b))
	}

	c := Item{Description: "CONCRETE FCK 25 PUMP", Unit: "M3", Quantity: f(11), Total: f(4410)}
	if DedupKey(a) == DedupKey(c) {
		t.Fatal("different quantities must produce different keys")
	}
}

func TestDedupKeyNilVsZero(t *testing.T) {
	withNil := Item{Description: "ITEM", Quantity: nil}
	withZero := Item{Description: "ITEM", Quantity: f(0)}
	if DedupKey(withNil) == DedupKey(withZero) {
		t.Fatal("nil and zero quantity must not collide")
	}
}

func TestMergeAugmentSelfIsNoop(t *testing.T) {
	items := []Item{
		{Description: "A", Unit: "m2", Quantity: f(1)},
		{Description: "B", Unit: "kg", Quantity: f(2)},
	}
	merged, added, dropped := MergeAugment(items, items)
	if added != 0 || dropped != len(items) {
		t.Fatalf("self-merge: added=%d dropped=%d", added, dropped)
	}
	if len(merged) != len(items) {
		t.Fatalf("self-merge changed item count: %d", len(merged))
	}
}

func TestMergeAugmentKeepsNewItems(t *testing.T) {
	existing := []Item{{Description: "A", Quantity: f(1)}}
	incoming := []Item{
		{Description: "A", Quantity: f(1)},
		{Description: "C", Quantity: f(3)},
	}
	merged, added, dropped := MergeAugment(existing, incoming)
	if added != 1 || dropped != 1 {
		t.Fatalf("merge: added=%d dropped=%d", added, dropped)
	}
	if len(merged) != 2 {
		t.Fatalf("unexpected merged size %d", len(merged))
	}
}
