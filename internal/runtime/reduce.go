package runtime

import "github.com/aretw0/parley/pkg/domain"

// ReduceResults picks the authoritative event from a sequence of action results.
//
// The last non-empty candidate that an explicit transition matches wins. When none
// matches, the last non-empty candidate is returned so wildcard and nomatch fallbacks
// can still apply to it. Jumps and failures never yield a candidate.
func ReduceResults(results []domain.ActionResult, matches func(string) bool) (string, bool) {
	var fallback string
	for i := len(results) - 1; i >= 0; i-- {
		cand, ok := results[i].Candidate()
		if !ok {
			continue
		}
		if matches != nil && matches(cand) {
			return cand, true
		}
		if fallback == "" {
			fallback = cand
		}
	}
	return fallback, fallback != ""
}
