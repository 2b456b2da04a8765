package providers

import "strings"

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorRetired   ErrorType = "retired"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
)

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "resource_exhausted"), strings.Contains(e, "insufficient"):
		return ErrorQuota
	case strings.Contains(e, "429"), strings.Contains(e, "rate"), strings.Contains(e, "too many requests"):
		return ErrorRate
	case strings.Contains(e, "404"), strings.Contains(e, "not found"), strings.Contains(e, "deprecated"), strings.Contains(e, "retired"):
		return ErrorRetired
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"), strings.Contains(e, "500"), strings.Contains(e, "503"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// IsThrottle reports whether an error should trigger the rate-limit path:
// HTTP 429 and quota exhaustion are both throttling, not bad input, so
// neither may cascade into OCR fallbacks.
func IsThrottle(t ErrorType) bool {
	return t == ErrorQuota || t == ErrorRate
}
