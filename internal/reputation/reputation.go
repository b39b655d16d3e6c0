// Package reputation tracks a decaying per-identity trust score derived
// from the engine's own prior decisions.
package reputation

import (
	"github.com/riskguard-io/riskguard/internal/numeric"
	"github.com/riskguard-io/riskguard/internal/store"
)

// MaxHistory bounds the persisted decision history.
const MaxHistory = 100

// EWMAWindow bounds how many of the most recent decisions feed the
// block-ratio half of the blend. The EWMA itself is a
// running exponential average rather than a fixed window, which at
// alpha=0.3 already discounts anything more than ~20 decisions old to
// near-zero weight.
const EWMAWindow = 20

const ewmaAlpha = 0.3

// Record is one past decision's contribution to reputation: its fused risk
// score and whether it resulted in a blocking action (block or ban).
type Record struct {
	Score   float64
	Blocked bool
}

// Profile is the persisted per-identity reputation state.
type Profile struct {
	History []Record
	EWMA    float64
	Seeded  bool
}

func key(identity string) string { return "reputation:" + identity }

// Load returns identity's reputation profile, or a zero-value Profile if
// none exists.
func Load(s *store.Store, identity string) Profile {
	v, ok := s.Get(key(identity))
	if !ok {
		return Profile{}
	}
	p, _ := v.(Profile)
	return p
}

// Value returns identity's current reputation in [0,1] and whether any
// history exists. A fresh identity with no decisions is unreliable: callers
// should drop reputation's weight rather than assume neutral trust.
func Value(s *store.Store, identity string) (score float64, reliable bool) {
	p := Load(s, identity)
	if len(p.History) == 0 {
		return 0, false
	}
	return blend(p), true
}

// Update appends a new decision outcome and folds its score into the
// running EWMA (effective window EWMAWindow decisions), then persists the
// result.
func Update(s *store.Store, identity string, score float64, blocked bool) Profile {
	p := Load(s, identity)
	p.History = append(p.History, Record{Score: score, Blocked: blocked})
	if len(p.History) > MaxHistory {
		p.History = p.History[len(p.History)-MaxHistory:]
	}

	if !p.Seeded {
		p.EWMA = score
		p.Seeded = true
	} else {
		p.EWMA = numeric.EWMA(p.EWMA, score, ewmaAlpha)
	}

	s.Set(key(identity), p, 0)
	return p
}

// Reset purges identity's reputation history.
func Reset(s *store.Store, identity string) {
	s.Delete(key(identity))
}

func blend(p Profile) float64 {
	window := p.History
	if len(window) > EWMAWindow {
		window = window[len(window)-EWMAWindow:]
	}
	var blocked int
	for _, r := range window {
		if r.Blocked {
			blocked++
		}
	}
	blockRatio := float64(blocked) / float64(len(window))
	return numeric.Clamp01(0.7*p.EWMA + 0.3*blockRatio)
}
