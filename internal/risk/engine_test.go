package risk

import (
	"testing"
	"time"

	"github.com/riskguard-io/riskguard/internal/ratelimiter"
	"github.com/riskguard-io/riskguard/internal/store"
)

func newTestEngine(t *testing.T, clock *int64) *Engine {
	t.Helper()
	s := store.New(store.Options{SweepInterval: -1})
	t.Cleanup(s.Close)
	cfg := Config{
		Clock: func() int64 { return *clock },
	}
	return New(s, cfg)
}

func TestBruteForceLoginEscalatesBeforeLimit(t *testing.T) {
	now := int64(0)
	e := newTestEngine(t, &now)

	var sawEscalation bool
	var last Decision
	for i := 0; i < 30; i++ {
		last = e.Evaluate(Request{
			Identity:  "attacker",
			IP:        "1.2.3.4",
			UserAgent: "Mozilla/5.0",
			Action:    "login",
			Endpoint:  "/api/login",
			Method:    "POST",
		})
		if last.Action.Type == "block" || last.Action.Type == "ban" {
			sawEscalation = true
		}
		now += 500 // 30 requests over 15s
	}

	if !sawEscalation {
		t.Fatalf("expected a block/ban decision by request 30 for a sustained brute-force pattern, last action=%v reason=%v attackType=%v",
			last.Action.Type, last.Action.Reason, last.AttackType)
	}
	if last.AttackType != "bruteForce" {
		t.Fatalf("expected bruteForce to be identified as the attack type, got %q", last.AttackType)
	}
}

func TestRoboticTimingYieldsHighAutomationAndChallengeOrAbove(t *testing.T) {
	now := int64(0)
	e := newTestEngine(t, &now)

	var last Decision
	for i := 0; i < 100; i++ {
		last = e.Evaluate(Request{
			Identity:  "robot",
			IP:        "5.6.7.8",
			UserAgent: "Mozilla/5.0",
			Action:    "click",
			Endpoint:  "/api/resource",
		})
		now += 1000
	}

	if last.Components["behavior"] < 0.3 {
		t.Fatalf("expected a meaningfully elevated behavior risk for robotic timing, got %v", last.Components["behavior"])
	}
	if last.Action.Type == "allow" {
		t.Fatalf("expected at least a challenge action for robotic timing, got allow")
	}
}

func TestColdStartLegitimateUserAllowsWithUnreliableBehavior(t *testing.T) {
	now := int64(1000)
	e := newTestEngine(t, &now)

	d := e.Evaluate(Request{
		Identity:  "newuser",
		IP:        "203.0.113.9",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
		Action:    "view",
		Endpoint:  "/home",
		Method:    "GET",
	})

	if d.RiskLevel != "minimal" && d.RiskLevel != "low" {
		t.Fatalf("expected minimal or low risk level for a cold-start legitimate user, got %v", d.RiskLevel)
	}
	if d.Action.Type != "allow" {
		t.Fatalf("expected allow action for cold-start legitimate user, got %v", d.Action.Type)
	}
}

func TestBotUserAgentFloorsScoreAndBlocks(t *testing.T) {
	now := int64(2000)
	e := newTestEngine(t, &now)

	d := e.Evaluate(Request{
		Identity:  "botclient",
		IP:        "9.9.9.9",
		UserAgent: "python-requests/2.31",
		Action:    "scrape",
		Endpoint:  "/api/data",
	})

	if d.RiskScore < 0.7 {
		t.Fatalf("expected fused score floored at 0.7 for detected bot, got %v", d.RiskScore)
	}
	if d.Action.Type != "block" && d.Action.Type != "ban" {
		t.Fatalf("expected block (or ban) action for bot user-agent, got %v", d.Action.Type)
	}
}

func TestRateLimitRecoveryAfterWindow(t *testing.T) {
	now := int64(0)
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	cfg := Config{
		Clock: func() int64 { return now },
		RateLimiter: ratelimiter.Config{
			DefaultLimit: 10,
			WindowSize:   10 * time.Second,
		},
	}
	e := New(s, cfg)

	var denied Decision
	for i := 0; i < 11; i++ {
		denied = e.Evaluate(Request{Identity: "rluser", IP: "1.1.1.1", Action: "call", Endpoint: "/api/x"})
	}
	if denied.Action.Reason != "rate_limit_exceeded" {
		t.Fatalf("expected the 11th request to be rate-limited, got reason=%v", denied.Action.Reason)
	}

	now += 11 * 1000 // past the 10s window
	after := e.Evaluate(Request{Identity: "rluser", IP: "1.1.1.1", Action: "call", Endpoint: "/api/x"})
	if after.Action.Reason == "rate_limit_exceeded" {
		t.Fatalf("expected recovery after the window elapsed")
	}
}

func TestResetUserClearsState(t *testing.T) {
	now := int64(0)
	e := newTestEngine(t, &now)

	var before Decision
	for i := 0; i < 15; i++ {
		before = e.Evaluate(Request{Identity: "touser", IP: "1.2.3.4", Action: "a", Endpoint: "/x"})
		now += 1000
	}
	if before.Components["behavior"] == 0 {
		t.Fatalf("expected a reliable nonzero behavior contribution once enough events accumulate")
	}

	e.ResetUser("touser")

	d := e.Evaluate(Request{Identity: "touser", IP: "1.2.3.4", Action: "a", Endpoint: "/x"})
	if d.Components["behavior"] != 0 {
		t.Fatalf("expected zero behavior contribution immediately after reset, got %v", d.Components["behavior"])
	}
}

func TestRiskScoreAlwaysClamped(t *testing.T) {
	now := int64(0)
	e := newTestEngine(t, &now)

	for i := 0; i < 50; i++ {
		d := e.Evaluate(Request{
			Identity:  "heavy",
			IP:        "6.6.6.6",
			UserAgent: "curl/8.0",
			Action:    "login",
			Endpoint:  "/api/login",
		})
		if d.RiskScore < 0 || d.RiskScore > 1 {
			t.Fatalf("risk score escaped [0,1]: %v", d.RiskScore)
		}
		now += 100
	}
}

func TestHooksFireOnBlockAndHighRisk(t *testing.T) {
	now := int64(0)
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()

	var highRiskFired, blockFired bool
	cfg := Config{
		Clock: func() int64 { return now },
		Hooks: Hooks{
			OnHighRisk: func(Decision) { highRiskFired = true },
			OnBlock:    func(Decision) { blockFired = true },
		},
	}
	e := New(s, cfg)

	for i := 0; i < 5; i++ {
		e.Evaluate(Request{Identity: "hookuser", IP: "2.2.2.2", UserAgent: "python-requests/2.31", Action: "login", Endpoint: "/api/login"})
		now += 100
	}

	if !highRiskFired {
		t.Fatalf("expected OnHighRisk to fire for a bot-floored high-risk decision")
	}
	if !blockFired {
		t.Fatalf("expected OnBlock to fire once the decision reached block")
	}
}

func TestHookPanicIsSwallowed(t *testing.T) {
	now := int64(0)
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()

	cfg := Config{
		Clock: func() int64 { return now },
		Hooks: Hooks{
			OnBlock: func(Decision) { panic("boom") },
		},
	}
	e := New(s, cfg)

	d := e.Evaluate(Request{Identity: "panicuser", IP: "3.3.3.3", UserAgent: "python-requests/2.31", Action: "x", Endpoint: "/y"})
	if d.Action.Type == "" {
		t.Fatalf("expected a decision to still be returned despite a panicking hook")
	}
}

func TestDecisionDeterministicForReplayedStream(t *testing.T) {
	build := func() []Decision {
		now := int64(0)
		s := store.New(store.Options{SweepInterval: -1})
		defer s.Close()
		e := New(s, Config{Clock: func() int64 { return now }})

		var out []Decision
		for i := 0; i < 10; i++ {
			out = append(out, e.Evaluate(Request{
				Identity:  "replay",
				IP:        "4.4.4.4",
				UserAgent: "Mozilla/5.0",
				Action:    "view",
				Endpoint:  "/home",
			}))
			now += 1000
		}
		return out
	}

	a := build()
	b := build()
	for i := range a {
		if a[i].RiskScore != b[i].RiskScore || a[i].Action.Type != b[i].Action.Type {
			t.Fatalf("expected deterministic replay at step %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
