package util

import (
	"encoding/json"
	"strings"
	"testing"
)

type cyclic struct {
	Name string  `json:"name"`
	Next *cyclic `json:"next"`
}

func TestSafeJSONCycle(t *testing.T) {
	a := &cyclic{Name: "a"}
	a.Next = a
	out := SafeJSON(a)
	if !strings.Contains(out, "cycle") {
		t.Fatalf("expected cycle marker, got %s", out)
	}
	if !json.Valid([]byte(out)) {
		t.Fatalf("output is not valid json: %s", out)
	}
}

func TestSafeJSONDepthBound(t *testing.T) {
	deep := map[string]any{}
	cur := deep
	for i := 0; i < 20; i++ {
		next := map[string]any{}
		cur["n"] = next
		cur = next
	}
	out := SafeJSON(deep)
	if !strings.Contains(out, "depth") {
		t.Fatalf("expected depth marker, got %s", out)
	}
}

func TestSafeJSONTruncatesLongStrings(t *testing.T) {
	out := SafeJSON(map[string]string{"text": strings.Repeat("z", 5000)})
	if len(out) > 2000 {
		t.Fatalf("expected truncated string, got %d bytes", len(out))
	}
}
