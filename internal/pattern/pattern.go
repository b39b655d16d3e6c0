// Package pattern finds repeating action sub-sequences, temporal
// bursts/periodicity/clock alignment, and matches against a closed set of
// known attack classes over an identity's recent event history.
package pattern

import (
	"sort"

	"github.com/riskguard-io/riskguard/internal/events"
	"github.com/riskguard-io/riskguard/internal/numeric"
)

// Pattern is one detected pattern with a bounded risk contribution.
type Pattern struct {
	Kind        string // "sequence", "temporal", "attack", "coordinated"
	Name        string
	Description string
	Risk        float64
	Multiplier  float64 // known attacks only: the registry's riskMultiplier, 0 otherwise
	Metadata    map[string]any
}

// Result aggregates every detector's output for one identity.
type Result struct {
	Sequence         []Pattern
	Temporal         []Pattern
	KnownAttacks     []Pattern
	Coordinated      []Pattern
	Risk             float64
	AttackType       string  // name of the highest-risk known attack, "" if none
	AttackMultiplier float64 // that attack's registry riskMultiplier, 0 if AttackType == ""
}

// Detect runs all four detectors over evs (oldest first) and aggregates
// their risk.
func Detect(evs []events.Event) Result {
	res := Result{
		Sequence:     detectSequences(evs),
		Temporal:     detectTemporal(evs),
		KnownAttacks: detectKnownAttacks(evs),
		Coordinated:  detectCoordinated(evs),
	}

	var risks []float64
	for _, group := range [][]Pattern{res.Sequence, res.Temporal, res.KnownAttacks, res.Coordinated} {
		for _, p := range group {
			risks = append(risks, p.Risk)
		}
	}
	if len(risks) > 0 {
		count := float64(len(risks))
		res.Risk = numeric.Clamp01(0.6*numeric.Max(risks) + 0.3*numeric.Mean(risks) + minFloat(0.2, count/10))
	}

	var best *Pattern
	for i := range res.KnownAttacks {
		p := &res.KnownAttacks[i]
		if best == nil || p.Risk > best.Risk {
			best = p
		}
	}
	if best != nil {
		res.AttackType = best.Name
		res.AttackMultiplier = best.Multiplier
	}
	return res
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// topByRisk returns the top n patterns by risk, descending.
func topByRisk(ps []Pattern, n int) []Pattern {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Risk > ps[j].Risk })
	if len(ps) > n {
		ps = ps[:n]
	}
	return ps
}
