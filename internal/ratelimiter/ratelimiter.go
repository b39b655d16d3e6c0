// Package ratelimiter implements the sliding-window log rate limiter with
// adaptive penalty/reward that the risk engine orchestrator drives, plus
// token-bucket, leaky-bucket, and weighted-sliding-window primitives kept
// available for callers that want a different limiting shape but not wired
// into the default decision path. All primitives share the process-wide
// store package for state via Store.Update closures rather than a
// separate locking scheme.
package ratelimiter

import (
	"math"
	"time"

	"github.com/riskguard-io/riskguard/internal/store"
)

// Config controls the sliding-window limiter's defaults. Per-call options
// (CheckOptions) can override the limit and apply a risk multiplier.
type Config struct {
	DefaultLimit    int64         // base requests allowed per window
	WindowSize      time.Duration // default 60s
	BurstMultiplier float64       // default 2
	PenaltyDecay    float64       // default ~0.9, multiplicative decay toward 1 on compliant traffic
	RewardRate      float64       // reserved for future additive-reward variants; unused by the multiplicative decay path
	Adaptive        bool          // enable penalty reward on low utilization
}

func (c *Config) fillDefaults() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 60
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 60 * time.Second
	}
	if c.BurstMultiplier <= 0 {
		c.BurstMultiplier = 2
	}
	if c.PenaltyDecay <= 0 || c.PenaltyDecay >= 1 {
		c.PenaltyDecay = 0.9
	}
}

// Limiter is the sliding-window log limiter. It is safe for concurrent use.
type Limiter struct {
	cfg   Config
	store *store.Store
	clock func() time.Time
}

// New constructs a Limiter backed by s.
func New(s *store.Store, cfg Config) *Limiter {
	cfg.fillDefaults()
	return &Limiter{cfg: cfg, store: s, clock: time.Now}
}

type bucket struct {
	Requests   []int64 // unix millis, ascending
	CreatedAt  int64
	LastAccess int64
	Violations int
}

// CheckOptions parameterizes a single Check call.
type CheckOptions struct {
	Endpoint  string  // bucket scope; empty means identity-global
	RiskScore float64 // (0,1] shrinks the effective limit; 0 means "not provided"
}

const eps = 1e-6

// CheckResult is the outcome of a single rate-limit check.
type CheckResult struct {
	Allowed      bool
	Remaining    int64
	ResetIn      time.Duration
	Limit        int64
	CurrentCount int64
	Severity     float64
	Reason       string
	RetryAfter   time.Duration
}

func bucketKey(id, endpoint string) string { return "rl:bucket:" + id + "|" + endpoint }
func penaltyKey(id string) string          { return "rl:penalty:" + id }

// Reset purges every bucket and the penalty for id: identity reset must
// clear all rate-limiter state atomically with respect to readers.
func (l *Limiter) Reset(id string) {
	l.store.DeletePrefix(bucketKey(id, ""))
	l.store.Delete(penaltyKey(id))
}

// Penalty returns the identity's current penalty multiplier in [1, 10],
// defaulting to 1 when none has been recorded.
func (l *Limiter) Penalty(id string) float64 {
	v, ok := l.store.Get(penaltyKey(id))
	if !ok {
		return 1
	}
	p, _ := v.(float64)
	if p < 1 {
		return 1
	}
	return p
}

// Check runs the sliding-window algorithm for identity id.
func (l *Limiter) Check(id string, opts CheckOptions) CheckResult {
	now := l.clock()
	nowMs := now.UnixMilli()
	windowMs := l.cfg.WindowSize.Milliseconds()
	key := bucketKey(id, opts.Endpoint)
	pkey := penaltyKey(id)

	penalty := l.Penalty(id)

	var result CheckResult
	l.store.Update(key, func(old any, existed bool) (any, bool) {
		b, ok := old.(*bucket)
		if !ok || b == nil {
			b = &bucket{CreatedAt: nowMs}
		}

		// 1) prune timestamps older than now - windowSize
		cutoff := nowMs - windowMs
		pruned := b.Requests[:0:0]
		for _, ts := range b.Requests {
			if ts > cutoff {
				pruned = append(pruned, ts)
			}
		}
		b.Requests = pruned
		b.LastAccess = nowMs

		currentCount := int64(len(b.Requests))

		// 2) effective limit
		limit := float64(l.cfg.DefaultLimit) / penalty
		if opts.RiskScore > 0 && opts.RiskScore <= 1 {
			limit *= 1 - 0.7*opts.RiskScore
		}
		effLimit := int64(math.Floor(limit))
		if effLimit < 1 {
			effLimit = 1
		}

		// 3) burst limit
		burstLimit := int64(math.Floor(float64(effLimit) * l.cfg.BurstMultiplier))
		if burstLimit < effLimit {
			burstLimit = effLimit
		}

		var oldest int64
		if len(b.Requests) > 0 {
			oldest = b.Requests[0]
		} else {
			oldest = nowMs
		}
		resetIn := oldest + windowMs - nowMs
		if resetIn < 0 {
			resetIn = 0
		}

		if currentCount >= effLimit {
			// 4) deny path
			var severity float64
			reason := "rateExceeded"
			if currentCount >= burstLimit {
				severity = 1
				reason = "burstExceeded"
			} else if burstLimit > effLimit {
				severity = float64(currentCount-effLimit) / float64(burstLimit-effLimit)
			}
			newPenalty := math.Min(penalty*(1+0.5*severity), 10)
			l.store.Update(pkey, func(any, bool) (any, bool) { return newPenalty, true })
			b.Violations++

			retryAfter := time.Duration(float64(l.cfg.WindowSize) / 10 * severity * newPenalty)

			result = CheckResult{
				Allowed:      false,
				Remaining:    0,
				ResetIn:      time.Duration(resetIn) * time.Millisecond,
				Limit:        effLimit,
				CurrentCount: currentCount,
				Severity:     severity,
				Reason:       reason,
				RetryAfter:   retryAfter,
			}
			return b, true
		}

		// 5) allow path
		b.Requests = append(b.Requests, nowMs)
		if currentCount < effLimit/2 && l.cfg.Adaptive {
			newPenalty := math.Max(penalty*l.cfg.PenaltyDecay, 1)
			if newPenalty-1 < eps {
				l.store.Delete(pkey)
			} else {
				l.store.Update(pkey, func(any, bool) (any, bool) { return newPenalty, true })
			}
		}

		result = CheckResult{
			Allowed:      true,
			Remaining:    effLimit - currentCount - 1,
			ResetIn:      time.Duration(resetIn) * time.Millisecond,
			Limit:        effLimit,
			CurrentCount: currentCount + 1,
		}
		return b, true
	})

	return result
}

// Cleanup deletes buckets untouched for more than 10*windowSize. Intended
// to be called on a ticker.
func (l *Limiter) Cleanup() int {
	now := l.clock().UnixMilli()
	staleAfter := 10 * l.cfg.WindowSize.Milliseconds()
	n := 0
	for _, k := range l.store.Keys("rl:bucket:*") {
		v, ok := l.store.Get(k)
		if !ok {
			continue
		}
		b, ok := v.(*bucket)
		if !ok {
			continue
		}
		if now-b.LastAccess > staleAfter {
			l.store.Delete(k)
			n++
		}
	}
	return n
}
