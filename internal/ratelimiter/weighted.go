package ratelimiter

import (
	"time"

	"github.com/riskguard-io/riskguard/internal/store"
)

// WeightedWindow is the sliding-window-weighted-log primitive named in spec
// §4.2: each in-window timestamp is weighted by (1 - age/windowSize) rather
// than counted flatly, so recent requests count more than ones about to age
// out. Useful for smoother admission near the window boundary; not used by
// the default orchestrator decision path.
type WeightedWindow struct {
	store      *store.Store
	windowSize time.Duration
	clock      func() time.Time
}

func NewWeightedWindow(s *store.Store, windowSize time.Duration) *WeightedWindow {
	if windowSize <= 0 {
		windowSize = 60 * time.Second
	}
	return &WeightedWindow{store: s, windowSize: windowSize, clock: time.Now}
}

func weightedKey(id string) string { return "rl:weighted:" + id }

// WeightedResult reports the outcome of a Check call.
type WeightedResult struct {
	Allowed      bool
	WeightedSum  float64
	CurrentCount int
}

// Check computes the weighted sum of in-window requests for id and admits
// the new request if the sum (including it at full weight 1) stays at or
// below limit.
func (w *WeightedWindow) Check(id string, limit float64) WeightedResult {
	now := w.clock().UnixMilli()
	windowMs := float64(w.windowSize.Milliseconds())

	var result WeightedResult
	w.store.Update(weightedKey(id), func(old any, existed bool) (any, bool) {
		timestamps, _ := old.([]int64)
		cutoff := now - int64(windowMs)
		kept := timestamps[:0:0]
		for _, ts := range timestamps {
			if ts > cutoff {
				kept = append(kept, ts)
			}
		}

		var sum float64
		for _, ts := range kept {
			age := float64(now - ts)
			weight := 1 - age/windowMs
			if weight < 0 {
				weight = 0
			}
			sum += weight
		}

		if sum+1 <= limit {
			kept = append(kept, now)
			result = WeightedResult{Allowed: true, WeightedSum: sum + 1, CurrentCount: len(kept)}
		} else {
			result = WeightedResult{Allowed: false, WeightedSum: sum, CurrentCount: len(kept)}
		}
		return kept, true
	})
	return result
}
