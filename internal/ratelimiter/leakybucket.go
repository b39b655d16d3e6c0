package ratelimiter

import (
	"time"

	"github.com/riskguard-io/riskguard/internal/store"
)

// LeakyBucket is a second alternate admission primitive: capacity, a
// constant leak rate, and a per-request amount (default 1).
// Requests are admitted only while the bucket's current level plus the
// incoming amount stays within capacity.
type LeakyBucket struct {
	store *store.Store
	clock func() time.Time
}

func NewLeakyBucket(s *store.Store) *LeakyBucket {
	return &LeakyBucket{store: s, clock: time.Now}
}

type leakyState struct {
	Level    float64
	LastLeak int64 // unix millis
}

func leakyKey(id string) string { return "rl:leaky:" + id }

// LeakyResult reports the outcome of an Allow call.
type LeakyResult struct {
	Allowed bool
	Level   float64
}

// Allow attempts to add amount (default 1) to the bucket for id, leaking at
// leakPerSecond since the last call, bounded by capacity.
func (lb *LeakyBucket) Allow(id string, capacity float64, leakPerSecond float64, amount float64) LeakyResult {
	if amount <= 0 {
		amount = 1
	}
	now := lb.clock().UnixMilli()

	var result LeakyResult
	lb.store.Update(leakyKey(id), func(old any, existed bool) (any, bool) {
		st, ok := old.(*leakyState)
		if !ok || st == nil {
			st = &leakyState{LastLeak: now}
		}
		elapsedSec := float64(now-st.LastLeak) / 1000
		if elapsedSec > 0 {
			st.Level -= elapsedSec * leakPerSecond
			if st.Level < 0 {
				st.Level = 0
			}
			st.LastLeak = now
		}

		if st.Level+amount <= capacity {
			st.Level += amount
			result = LeakyResult{Allowed: true, Level: st.Level}
		} else {
			result = LeakyResult{Allowed: false, Level: st.Level}
		}
		return st, true
	})
	return result
}
