package ratelimiter

import (
	"testing"
	"time"

	"github.com/riskguard-io/riskguard/internal/store"
)

func newTestLimiter(t *testing.T, limit int64, window time.Duration, clock func() time.Time) *Limiter {
	t.Helper()
	s := store.New(store.Options{SweepInterval: -1, Clock: clock})
	t.Cleanup(s.Close)
	return New(s, Config{DefaultLimit: limit, WindowSize: window, Adaptive: true})
}

func TestAllowsUpToLimitThenDenies(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	l := newTestLimiter(t, 5, 10*time.Second, clock)

	for i := 0; i < 5; i++ {
		r := l.Check("alice", CheckOptions{})
		if !r.Allowed {
			t.Fatalf("request %d should be allowed, got denied", i+1)
		}
	}
	r := l.Check("alice", CheckOptions{})
	if r.Allowed {
		t.Fatalf("request 6 should be denied")
	}
	if r.RetryAfter <= 0 && r.Severity > 0 {
		// severity>0 always implies a positive retryAfter once penalty>=1
	}
}

func TestCapacityRestoresAfterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	l := newTestLimiter(t, 3, 5*time.Second, clock)

	for i := 0; i < 3; i++ {
		l.Check("bob", CheckOptions{})
	}
	if l.Check("bob", CheckOptions{}).Allowed {
		t.Fatalf("4th request should be denied")
	}

	now = now.Add(6 * time.Second)
	r := l.Check("bob", CheckOptions{})
	if !r.Allowed {
		t.Fatalf("request after window elapses should be allowed")
	}
}

func TestPenaltyBoundedAndDecaysOnCompliance(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	l := newTestLimiter(t, 2, 10*time.Second, clock)

	// drive violations to push penalty up
	for i := 0; i < 20; i++ {
		l.Check("carol", CheckOptions{})
	}
	p := l.Penalty("carol")
	if p < 1 || p > 10 {
		t.Fatalf("penalty out of bounds: %v", p)
	}

	// let the window clear and send compliant low-volume traffic
	now = now.Add(20 * time.Second)
	for i := 0; i < 5; i++ {
		l.Check("carol", CheckOptions{})
		now = now.Add(20 * time.Second)
	}
	p2 := l.Penalty("carol")
	if p2 > p {
		t.Fatalf("penalty should not increase under compliant traffic: before=%v after=%v", p, p2)
	}
}

func TestRiskScoreShrinksEffectiveLimit(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	l := newTestLimiter(t, 10, 10*time.Second, clock)

	r := l.Check("dave", CheckOptions{RiskScore: 1.0})
	// limit = floor(10 * (1-0.7)) = floor(3) = 3
	if r.Limit != 3 {
		t.Fatalf("want effective limit 3 under max risk, got %d", r.Limit)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	s := store.New(store.Options{SweepInterval: -1, Clock: clock})
	defer s.Close()
	tb := NewTokenBucket(s, "")
	tb.clock = clock

	for i := 0; i < 5; i++ {
		r := tb.Consume("x", 5, 1, 1)
		if !r.Allowed {
			t.Fatalf("token %d should be allowed", i)
		}
	}
	if tb.Consume("x", 5, 1, 1).Allowed {
		t.Fatalf("bucket should be empty")
	}
	now = now.Add(3 * time.Second)
	if !tb.Consume("x", 5, 1, 1).Allowed {
		t.Fatalf("should refill after waiting")
	}
}

func TestLeakyBucketLeaks(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	s := store.New(store.Options{SweepInterval: -1, Clock: clock})
	defer s.Close()
	lb := NewLeakyBucket(s)
	lb.clock = clock

	for i := 0; i < 5; i++ {
		lb.Allow("y", 5, 1, 1)
	}
	if lb.Allow("y", 5, 1, 1).Allowed {
		t.Fatalf("bucket should be full")
	}
	now = now.Add(2 * time.Second)
	if !lb.Allow("y", 5, 1, 1).Allowed {
		t.Fatalf("should admit after leaking")
	}
}

func TestAdaptiveRecomputeNeedsMinimumHistory(t *testing.T) {
	usage := make([]float64, 10)
	got := AdaptiveRecompute(usage, 100, 100, 0)
	if got != 100 {
		t.Fatalf("want unchanged limit with insufficient history, got %v", got)
	}
}

func TestAdaptiveRecomputeRaisesOnLowUsage(t *testing.T) {
	usage := make([]float64, 60)
	for i := range usage {
		usage[i] = 0.1
	}
	got := AdaptiveRecompute(usage, 100, 100, 0)
	if got <= 100 {
		t.Fatalf("want raised limit on low usage, got %v", got)
	}
}

func TestAdaptiveRecomputeClampsToBounds(t *testing.T) {
	usage := make([]float64, 60)
	for i := range usage {
		usage[i] = 0.01
	}
	limit := 1000.0
	for i := 0; i < 50; i++ {
		limit = AdaptiveRecompute(usage, limit, 100, 0)
	}
	if limit > 300 {
		t.Fatalf("limit should clamp to 3x default (300), got %v", limit)
	}
}
