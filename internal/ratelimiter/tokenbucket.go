package ratelimiter

import (
	"time"

	"github.com/riskguard-io/riskguard/internal/store"
)

// TokenBucket is an alternate admission primitive: capacity = limit,
// refill rate = limit/windowSize tokens/sec, default cost 1. Not
// used by the default orchestrator decision path, but available for
// callers that want a smoother-than-log admission curve.
type TokenBucket struct {
	store     *store.Store
	namespace string
	clock     func() time.Time
}

// NewTokenBucket constructs a TokenBucket; namespace scopes its keys apart
// from the default sliding-window buckets (e.g. "tb").
func NewTokenBucket(s *store.Store, namespace string) *TokenBucket {
	if namespace == "" {
		namespace = "tb"
	}
	return &TokenBucket{store: s, namespace: namespace, clock: time.Now}
}

type tokenState struct {
	Tokens     float64
	LastRefill int64 // unix millis
}

func (t *TokenBucket) key(id string) string { return "rl:" + t.namespace + ":" + id }

// TokenResult reports the outcome of a Consume call.
type TokenResult struct {
	Allowed   bool
	Remaining float64
	RetryAfter time.Duration
}

// Consume attempts to take cost tokens (default 1 when cost <= 0) from the
// bucket for id, sized to capacity with the given refill rate in
// tokens/second.
func (t *TokenBucket) Consume(id string, capacity int64, refillPerSecond float64, cost int64) TokenResult {
	if cost <= 0 {
		cost = 1
	}
	now := t.clock().UnixMilli()

	var result TokenResult
	t.store.Update(t.key(id), func(old any, existed bool) (any, bool) {
		st, ok := old.(*tokenState)
		if !ok || st == nil {
			st = &tokenState{Tokens: float64(capacity), LastRefill: now}
		}
		elapsedSec := float64(now-st.LastRefill) / 1000
		if elapsedSec > 0 {
			st.Tokens += elapsedSec * refillPerSecond
			if st.Tokens > float64(capacity) {
				st.Tokens = float64(capacity)
			}
			st.LastRefill = now
		}

		if st.Tokens >= float64(cost) {
			st.Tokens -= float64(cost)
			result = TokenResult{Allowed: true, Remaining: st.Tokens}
		} else {
			deficit := float64(cost) - st.Tokens
			var retrySec float64
			if refillPerSecond > 0 {
				retrySec = deficit / refillPerSecond
			}
			result = TokenResult{
				Allowed:    false,
				Remaining:  st.Tokens,
				RetryAfter: time.Duration(retrySec * float64(time.Second)),
			}
		}
		return st, true
	})
	return result
}
