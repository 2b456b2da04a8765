package extract

import (
	"testing"
	"time"
)

func TestValidateLowCompleteness(t *testing.T) {
	v := Validate(3, 10, time.Second, DefaultExpectations())
	if v.ExpectedItems != 120 {
		t.Fatalf("expected 120 expected items, got %d", v.ExpectedItems)
	}
	if !v.LowCompleteness {
		t.Fatal("3 items for 10 pages must be low-completeness")
	}
	if !v.StructurallyInvalid {
		t.Fatalf("3/120 = %.3f is below the 5%% floor", v.Completeness)
	}
}

func TestValidateStructurallyInvalidFewItems(t *testing.T) {
	v := Validate(1, 5, time.Second, DefaultExpectations())
	if !v.StructurallyInvalid {
		t.Fatal("5 pages with 1 item must be structurally invalid")
	}
}

func TestValidateUnknownPagesUsesFlatMinimum(t *testing.T) {
	v := Validate(35, 0, time.Second, DefaultExpectations())
	if v.ExpectedItems != 30 {
		t.Fatalf("expected flat minimum 30, got %d", v.ExpectedItems)
	}
	if !v.Trustworthy() {
		t.Fatalf("35 items against a 30 expectation should pass: %+v", v)
	}
}

func TestValidateSlowSmallRun(t *testing.T) {
	v := Validate(40, 0, 25*time.Second, DefaultExpectations())
	if !v.LowCompleteness {
		t.Fatal("a >20s run with <50 items must be flagged")
	}
}

func TestValidateTunableItemsPerPage(t *testing.T) {
	v := Validate(20, 10, time.Second, Expectations{ItemsPerPage: 2, MinExpectedItems: 10})
	if v.ExpectedItems != 20 {
		t.Fatalf("expected 20, got %d", v.ExpectedItems)
	}
	if !v.Trustworthy() {
		t.Fatalf("exact expectation should pass: %+v", v)
	}
}
