package providers

import "testing"

func TestParseModelList(t *testing.T) {
	got := ParseModelList(" gemini-1.5-flash-002 | gemini-1.5-pro ||")
	if len(got) != 2 {
		t.Fatalf("expected 2 models, got %d: %v", len(got), got)
	}
	if got[0] != "gemini-1.5-flash-002" {
		t.Fatalf("unexpected first model: %s", got[0])
	}
}

func TestRankModelsProLast(t *testing.T) {
	in := []string{
		"gemini-1.5-pro",
		"gemini-1.5-flash-8b",
		"gemini-1.5-flash-latest",
		"gemini-1.5-flash-002",
	}
	got := RankModels(in)
	want := []string{
		"gemini-1.5-flash-002",
		"gemini-1.5-flash-latest",
		"gemini-1.5-flash-8b",
		"gemini-1.5-pro",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank %d: got %s want %s (full: %v)", i, got[i], want[i], got)
		}
	}
}
