package providers

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"quota exceeded for project":   ErrorQuota,
		"googleapi: Error 429":         ErrorRate,
		"too many requests":            ErrorRate,
		"googleapi: Error 404: model":  ErrorRetired,
		"model gemini-0.5 deprecated":  ErrorRetired,
		"context deadline: timeout":    ErrorTransient,
		"service temporarily degraded": ErrorTransient,
		"bad request":                  ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestIsThrottle(t *testing.T) {
	if !IsThrottle(ErrorRate) || !IsThrottle(ErrorQuota) {
		t.Fatal("rate and quota must both count as throttling")
	}
	if IsThrottle(ErrorRetired) || IsThrottle(ErrorTransient) {
		t.Fatal("retired/transient must not count as throttling")
	}
}
