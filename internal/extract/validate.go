package extract

import "time"

type Expectations struct {
	ItemsPerPage     int
	MinExpectedItems int
}

func DefaultExpectations() Expectations {
	return Expectations{ItemsPerPage: 12, MinExpectedItems: 30}
}

// Verdict is the validator's decision about one extraction result.
type Verdict struct {
	ItemCount           int     `json:"item_count"`
	PageCount           int     `json:"page_count"`
	ExpectedItems       int     `json:"expected_items"`
	Completeness        float64 `json:"completeness"`
	LowCompleteness     bool    `json:"low_completeness"`
	StructurallyInvalid bool    `json:"structurally_invalid"`
}

func (v Verdict) Trustworthy() bool {
	return !v.LowCompleteness && !v.StructurallyInvalid
}

// Validate scores a result against page-count-derived expectations.
// Expected item count is max(min, pages x perPage) when the page count is
// known and at least 2, else the flat minimum. A result that took unusually
// long while yielding few items is also flagged, since that pattern tracks
// partially-failed chunk runs.
func Validate(itemCount, pageCount int, elapsed time.Duration, exp Expectations) Verdict {
	if exp.ItemsPerPage <= 0 {
		exp.ItemsPerPage = 12
	}
	if exp.MinExpectedItems <= 0 {
		exp.MinExpectedItems = 30
	}

	expected := exp.MinExpectedItems
	if pageCount >= 2 {
		if byPages := pageCount * exp.ItemsPerPage; byPages > expected {
			expected = byPages
		}
	}

	v := Verdict{
		ItemCount:     itemCount,
		PageCount:     pageCount,
		ExpectedItems: expected,
		Completeness:  float64(itemCount) / float64(expected),
	}
	if itemCount < expected {
		v.LowCompleteness = true
	}
	if elapsed > 20*time.Second && itemCount < 50 {
		v.LowCompleteness = true
	}
	if pageCount >= 5 && itemCount <= 1 {
		v.StructurallyInvalid = true
	}
	if v.Completeness < 0.05 {
		v.StructurallyInvalid = true
	}
	return v
}
