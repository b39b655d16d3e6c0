package pattern

import (
	"fmt"

	"github.com/riskguard-io/riskguard/internal/events"
	"github.com/riskguard-io/riskguard/internal/numeric"
)

const (
	endpointZScoreThreshold  = 3.0
	payloadRepetitionMin     = 10
	payloadRepetitionThresh  = 0.8
	ipRotationMinEvents      = 5
	ipRotationMinFraction    = 0.5
	sameUAMinIPs             = 5
	perSecondBurstThreshold  = 20
)

// detectCoordinated flags endpoint hotspotting, payload repetition, IP
// rotation, UA reuse across many IPs, and per-second request bursts.
func detectCoordinated(evs []events.Event) []Pattern {
	var out []Pattern
	out = append(out, endpointHotspots(evs)...)
	if p, ok := payloadRepetitionPattern(evs); ok {
		out = append(out, p)
	}
	if p, ok := ipRotationPattern(evs); ok {
		out = append(out, p)
	}
	if p, ok := sameUAManyIPsPattern(evs); ok {
		out = append(out, p)
	}
	out = append(out, perSecondBurstPatterns(evs)...)
	return out
}

func endpointHotspots(evs []events.Event) []Pattern {
	counts := make(map[string]int)
	for _, e := range evs {
		counts[e.Endpoint]++
	}
	if len(counts) < 2 {
		return nil
	}
	xs := make([]float64, 0, len(counts))
	for _, c := range counts {
		xs = append(xs, float64(c))
	}
	mean := numeric.Mean(xs)
	std := numeric.StdDev(xs)

	var out []Pattern
	for endpoint, c := range counts {
		z := numeric.ZScore(float64(c), mean, std)
		if z > endpointZScoreThreshold {
			out = append(out, Pattern{
				Kind:        "coordinated",
				Name:        "endpointHotspot",
				Description: fmt.Sprintf("endpoint %q requested %d times (z=%.1f)", endpoint, c, z),
				Risk:        numeric.Clamp01(0.4 + 0.1*z/endpointZScoreThreshold),
				Metadata:    map[string]any{"endpoint": endpoint, "count": c, "zScore": z},
			})
		}
	}
	return out
}

func payloadRepetitionPattern(evs []events.Event) (Pattern, bool) {
	if len(evs) < payloadRepetitionMin {
		return Pattern{}, false
	}
	counts := make(map[int64]int)
	for _, e := range evs {
		counts[e.PayloadSize]++
	}
	var mode int
	for _, c := range counts {
		if c > mode {
			mode = c
		}
	}
	fraction := float64(mode) / float64(len(evs))
	if fraction <= payloadRepetitionThresh {
		return Pattern{}, false
	}
	return Pattern{
		Kind:        "coordinated",
		Name:        "payloadRepetition",
		Description: fmt.Sprintf("%.0f%% of payloads share an identical size", fraction*100),
		Risk:        numeric.Clamp01(0.3 + 0.3*fraction),
		Metadata:    map[string]any{"fraction": fraction},
	}, true
}

func ipRotationPattern(evs []events.Event) (Pattern, bool) {
	if len(evs) < ipRotationMinEvents {
		return Pattern{}, false
	}
	ips := make(map[string]struct{})
	for _, e := range evs {
		if e.IP != "" {
			ips[e.IP] = struct{}{}
		}
	}
	fraction := float64(len(ips)) / float64(len(evs))
	if fraction <= ipRotationMinFraction {
		return Pattern{}, false
	}
	return Pattern{
		Kind:        "coordinated",
		Name:        "ipRotation",
		Description: fmt.Sprintf("%d distinct IPs across %d events", len(ips), len(evs)),
		Risk:        numeric.Clamp01(0.3 + 0.3*fraction),
		Metadata:    map[string]any{"uniqueIPs": len(ips), "events": len(evs)},
	}, true
}

func sameUAManyIPsPattern(evs []events.Event) (Pattern, bool) {
	uas := make(map[string]struct{})
	ips := make(map[string]struct{})
	for _, e := range evs {
		if e.UserAgent != "" {
			uas[e.UserAgent] = struct{}{}
		}
		if e.IP != "" {
			ips[e.IP] = struct{}{}
		}
	}
	if len(uas) != 1 || len(ips) < sameUAMinIPs {
		return Pattern{}, false
	}
	return Pattern{
		Kind:        "coordinated",
		Name:        "sameUAManyIPs",
		Description: fmt.Sprintf("single user-agent observed across %d IPs", len(ips)),
		Risk:        numeric.Clamp01(0.4 + 0.05*float64(len(ips))),
		Metadata:    map[string]any{"uniqueIPs": len(ips)},
	}, true
}

func perSecondBurstPatterns(evs []events.Event) []Pattern {
	buckets := make(map[int64]int)
	for _, e := range evs {
		buckets[e.TimestampMs/1000]++
	}
	var out []Pattern
	for sec, c := range buckets {
		if c > perSecondBurstThreshold {
			out = append(out, Pattern{
				Kind:        "coordinated",
				Name:        "perSecondBurst",
				Description: fmt.Sprintf("%d events within one second", c),
				Risk:        numeric.Clamp01(0.4 + 0.02*float64(c-perSecondBurstThreshold)),
				Metadata:    map[string]any{"second": sec, "count": c},
			})
		}
	}
	return out
}
