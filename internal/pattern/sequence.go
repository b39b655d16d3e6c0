package pattern

import (
	"fmt"
	"math"
	"strings"

	"github.com/riskguard-io/riskguard/internal/events"
	"github.com/riskguard-io/riskguard/internal/numeric"
)

// sequenceSignificance is the minimum occurrence count for a sub-sequence
// to be reported.
const sequenceSignificance = 3

// detectSequences finds repeating contiguous action sub-sequences of length
// L in [2, min(10, N/2)] occurring at least sequenceSignificance times.
func detectSequences(evs []events.Event) []Pattern {
	n := len(evs)
	maxL := n / 2
	if maxL > 10 {
		maxL = 10
	}
	if maxL < 2 {
		return nil
	}

	actions := make([]string, n)
	for i, e := range evs {
		actions[i] = e.Action
	}

	var out []Pattern
	for l := 2; l <= maxL; l++ {
		out = append(out, sequencesOfLength(evs, actions, l, maxL)...)
	}
	return topByRisk(out, 10)
}

func sequencesOfLength(evs []events.Event, actions []string, l, maxL int) []Pattern {
	occurrences := make(map[string][]int) // key -> start indices
	for i := 0; i+l <= len(actions); i++ {
		key := strings.Join(actions[i:i+l], ">")
		occurrences[key] = append(occurrences[key], i)
	}

	var out []Pattern
	for key, starts := range occurrences {
		if len(starts) < sequenceSignificance {
			continue
		}
		ts := make([]float64, len(starts))
		for i, idx := range starts {
			ts[i] = float64(evs[idx].TimestampMs)
		}
		intervals := numeric.Diffs(ts)
		cv := numeric.CoefficientOfVariation(intervals)

		risk := math.Log2(float64(len(starts))) / 10
		risk += 0.3 * float64(l) / float64(maxL)
		if cv < 0.2 && len(intervals) > 0 {
			risk += 0.3
		}
		risk = numeric.Clamp01(risk)

		out = append(out, Pattern{
			Kind:        "sequence",
			Name:        fmt.Sprintf("sequence:%d", l),
			Description: fmt.Sprintf("action sequence %q repeated %d times", key, len(starts)),
			Risk:        risk,
			Metadata: map[string]any{
				"sequence": key,
				"length":   l,
				"count":    len(starts),
			},
		})
	}
	return out
}
