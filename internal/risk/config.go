package risk

import (
	"time"

	"github.com/riskguard-io/riskguard/internal/ratelimiter"
)

// Thresholds maps a fused risk score to a risk level and, unchanged, to an
// action tier.
type Thresholds struct {
	Low      float64
	Medium   float64
	High     float64
	Critical float64
}

func (t *Thresholds) fillDefaults() {
	if t.Low <= 0 {
		t.Low = 0.3
	}
	if t.Medium <= 0 {
		t.Medium = 0.5
	}
	if t.High <= 0 {
		t.High = 0.7
	}
	if t.Critical <= 0 {
		t.Critical = 0.9
	}
}

// Weights are the per-signal fusion weights. They need not sum to 1: the
// fuser normalizes by the sum of weights of signals actually present.
type Weights struct {
	Behavior    float64
	Patterns    float64
	RateLimit   float64
	Fingerprint float64
	Reputation  float64
	Session     float64 // the supplemented sixth signal; see internal/session
}

func (w *Weights) fillDefaults() {
	if w.Behavior <= 0 {
		w.Behavior = 0.25
	}
	if w.Patterns <= 0 {
		w.Patterns = 0.25
	}
	if w.RateLimit <= 0 {
		w.RateLimit = 0.20
	}
	if w.Fingerprint <= 0 {
		w.Fingerprint = 0.15
	}
	if w.Reputation <= 0 {
		w.Reputation = 0.15
	}
	if w.Session <= 0 {
		w.Session = 0.10
	}
}

// ActionDurations controls how long a block or ban holds.
type ActionDurations struct {
	Block time.Duration
	Ban   time.Duration
}

func (a *ActionDurations) fillDefaults() {
	if a.Block <= 0 {
		a.Block = time.Hour
	}
	if a.Ban <= 0 {
		a.Ban = 24 * time.Hour
	}
}

// Hooks are the optional side-effect callbacks fired after a decision.
// Hook failures are swallowed and never affect the decision already made.
type Hooks struct {
	OnHighRisk func(Decision)
	OnBlock    func(Decision)
	OnAnomaly  func(Decision)
}

// Config is the engine's construction-time policy.
type Config struct {
	Thresholds      Thresholds
	Weights         Weights
	RateLimiter     ratelimiter.Config
	ActionDurations ActionDurations
	ThrottleFactor  float64
	Hooks           Hooks
	Clock           func() int64 // unix millis; defaults to time.Now
}

func (c *Config) fillDefaults() {
	c.Thresholds.fillDefaults()
	c.Weights.fillDefaults()
	c.ActionDurations.fillDefaults()
	if c.ThrottleFactor <= 0 {
		c.ThrottleFactor = 0.5
	}
}
