package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02\n\txy"
	out := SanitizeText(in)
	if out != "abcd\n\txy" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestSanitizeTextKeepsPageMarkers(t *testing.T) {
	in := "page one\fpage two"
	out := SanitizeText(in)
	if out != in {
		t.Fatalf("form feed page marker was stripped: %q", out)
	}
}
