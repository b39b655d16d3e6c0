package pattern

import (
	"fmt"
	"regexp"

	"github.com/riskguard-io/riskguard/internal/events"
	"github.com/riskguard-io/riskguard/internal/numeric"
)

// attackConstraints are the optional extra conditions a known attack's match
// set must satisfy for its conditional risk bonuses to apply.
type attackConstraints struct {
	maxIntervalMs float64 // 0 means unset
	sequentialIDs bool
	lowVariance   bool
}

// knownAttack is one entry in the closed-set attack registry, compiled once
// at package init so matching never pays regexp compilation cost per request.
type knownAttack struct {
	name           string
	re             *regexp.Regexp // matched against action and endpoint
	minRepetitions int
	constraints    attackConstraints
	riskMultiplier float64
}

var knownAttacks = []knownAttack{
	{
		name:           "bruteForce",
		re:             regexp.MustCompile(`(?i)login|auth|signin|password`),
		minRepetitions: 5,
		constraints:    attackConstraints{maxIntervalMs: 2000},
		riskMultiplier: 1.2,
	},
	{
		name:           "enumeration",
		re:             regexp.MustCompile(`(?i)/(users?|accounts?|api)/\d+`),
		minRepetitions: 10,
		constraints:    attackConstraints{sequentialIDs: true},
		riskMultiplier: 1.0,
	},
	{
		name:           "scraping",
		re:             regexp.MustCompile(`(?i)/(products?|listings?|catalog|search)`),
		minRepetitions: 50,
		constraints:    attackConstraints{lowVariance: true},
		riskMultiplier: 0.8,
	},
	{
		name:           "cardTesting",
		re:             regexp.MustCompile(`(?i)payment|checkout|card|billing`),
		minRepetitions: 5,
		constraints:    attackConstraints{maxIntervalMs: 3000},
		riskMultiplier: 1.5,
	},
	{
		name:           "accountTakeover",
		re:             regexp.MustCompile(`(?i)password.?reset|login.?attempt|mfa|recovery`),
		minRepetitions: 8,
		constraints:    attackConstraints{maxIntervalMs: 5000},
		riskMultiplier: 1.3,
	},
	{
		name:           "apiAbuse",
		re:             regexp.MustCompile(`(?i)/api/`),
		minRepetitions: 100,
		constraints:    attackConstraints{lowVariance: true},
		riskMultiplier: 0.9,
	},
}

// detectKnownAttacks matches evs against the closed attack registry.
func detectKnownAttacks(evs []events.Event) []Pattern {
	var out []Pattern
	for _, attack := range knownAttacks {
		p, ok := matchAttack(attack, evs)
		if ok {
			out = append(out, p)
		}
	}
	return out
}

func matchAttack(a knownAttack, evs []events.Event) (Pattern, bool) {
	var matched []events.Event
	for _, e := range evs {
		if a.re.MatchString(e.Action) || a.re.MatchString(e.Endpoint) {
			matched = append(matched, e)
		}
	}
	if len(matched) < a.minRepetitions {
		return Pattern{}, false
	}

	ts := make([]float64, len(matched))
	for i, e := range matched {
		ts[i] = float64(e.TimestampMs)
	}
	intervals := numeric.Diffs(ts)

	bonus := 1.0
	satisfied := map[string]bool{}
	if a.constraints.maxIntervalMs > 0 {
		if numeric.Mean(intervals) <= a.constraints.maxIntervalMs {
			bonus += 0.1
			satisfied["maxInterval"] = true
		}
	}
	if a.constraints.sequentialIDs {
		if sequentialTrailingIDs(matched) {
			bonus += 0.1
			satisfied["sequentialIds"] = true
		}
	}
	if a.constraints.lowVariance {
		if numeric.CoefficientOfVariation(intervals) < 0.2 {
			bonus += 0.1
			satisfied["lowVariance"] = true
		}
	}

	risk := numeric.Clamp01(float64(len(matched)) / (3 * float64(a.minRepetitions)) * a.riskMultiplier * bonus)

	return Pattern{
		Kind:        "attack",
		Name:        a.name,
		Description: fmt.Sprintf("%s matched on %d events", a.name, len(matched)),
		Risk:        risk,
		Multiplier:  a.riskMultiplier,
		Metadata: map[string]any{
			"matchCount":     len(matched),
			"minRepetitions": a.minRepetitions,
			"satisfied":      satisfied,
		},
	}, true
}

// sequentialTrailingIDs reports whether the trailing numeric IDs in the
// matched events' endpoints are mostly consecutive (diff of 1).
func sequentialTrailingIDs(evs []events.Event) bool {
	var ids []int64
	for _, e := range evs {
		if id, ok := trailingID(e.Endpoint); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) < 2 {
		return false
	}
	consecutive := 0
	for i := 1; i < len(ids); i++ {
		if ids[i]-ids[i-1] == 1 {
			consecutive++
		}
	}
	return float64(consecutive)/float64(len(ids)-1) > 0.5
}

func trailingID(endpoint string) (int64, bool) {
	i := len(endpoint)
	for i > 0 && endpoint[i-1] >= '0' && endpoint[i-1] <= '9' {
		i--
	}
	if i == len(endpoint) {
		return 0, false
	}
	var n int64
	for _, c := range endpoint[i:] {
		n = n*10 + int64(c-'0')
	}
	return n, true
}
