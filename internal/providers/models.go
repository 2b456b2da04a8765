package providers

import (
	"regexp"
	"sort"
	"strings"
)

// ParseModelList splits a "|"-separated candidate list from config.
func ParseModelList(raw string) []string {
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var pinnedVersion = regexp.MustCompile(`-\d{3}$`)

// RankModels orders candidates by probe preference: a pinned stable fast
// model first, then a "-latest" alias, then other same-generation variants.
// Higher-capability models rank last and are reserved for escalation, to
// bound cost and latency on the common path.
func RankModels(models []string) []string {
	out := make([]string, len(models))
	copy(out, models)
	sort.SliceStable(out, func(i, j int) bool {
		return modelRank(out[i]) < modelRank(out[j])
	})
	return out
}

func modelRank(m string) int {
	s := strings.ToLower(m)
	switch {
	case strings.Contains(s, "pro") || strings.Contains(s, "ultra"):
		return 3
	case strings.Contains(s, "flash") && pinnedVersion.MatchString(s):
		return 0
	case strings.HasSuffix(s, "-latest"):
		return 1
	default:
		return 2
	}
}
