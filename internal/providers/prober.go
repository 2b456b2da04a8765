package providers

import (
	"context"
	"fmt"
	"time"

	"orcaflow/internal/util"
)

type ProbeAttempt struct {
	Model     string    `json:"model"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ProbeResult struct {
	BaseModel string         `json:"base_model"`
	Attempts  []ProbeAttempt `json:"attempts"`
}

// ProbeModels walks the ranked candidates in order and picks the first one
// that answers a one-token call. Higher-ranked (cheaper) models are tried
// first, so the reserve candidates at the tail are never touched while a
// preferred model is up. Every attempt is logged so the audit trail shows
// what was tried. All candidates failing is an availability condition, not
// a content failure.
func ProbeModels(ctx context.Context, tm TextModel, candidates []string) (ProbeResult, error) {
	ranked := RankModels(candidates)
	if len(ranked) == 0 {
		return ProbeResult{}, fmt.Errorf("probe models: %w: empty candidate list", util.ErrModelUnavailable)
	}
	attempts := make([]ProbeAttempt, 0, len(ranked))
	for _, m := range ranked {
		err := tm.Probe(ctx, m)
		a := ProbeAttempt{Model: m, OK: err == nil, Timestamp: time.Now().UTC()}
		if err != nil {
			a.Error = err.Error()
		}
		attempts = append(attempts, a)
		if err == nil {
			return ProbeResult{BaseModel: m, Attempts: attempts}, nil
		}
	}
	return ProbeResult{Attempts: attempts}, fmt.Errorf("probe models: %w: all %d candidates failed", util.ErrModelUnavailable, len(ranked))
}
