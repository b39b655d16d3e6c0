package pattern

import (
	"fmt"
	"math"

	"github.com/riskguard-io/riskguard/internal/events"
	"github.com/riskguard-io/riskguard/internal/numeric"
)

const (
	periodicityBucketMs     = 100.0
	periodicityMinFraction  = 0.3
	burstMinRun             = 5
	burstIntervalFraction   = 0.2
	clockAlignmentMinFrac   = 0.3
	clockAlignmentToleranceMs = 0
)

// detectTemporal runs periodicity, burst, and clock-alignment detection
// over evs.
func detectTemporal(evs []events.Event) []Pattern {
	if len(evs) < 2 {
		return nil
	}
	ts := make([]float64, len(evs))
	for i, e := range evs {
		ts[i] = float64(e.TimestampMs)
	}
	intervals := numeric.Diffs(ts)

	var out []Pattern
	if p, ok := periodicityPattern(intervals); ok {
		out = append(out, p)
	}
	out = append(out, burstPatterns(intervals)...)
	if p, ok := clockAlignmentPattern(evs); ok {
		out = append(out, p)
	}
	return out
}

func periodicityPattern(intervals []float64) (Pattern, bool) {
	if len(intervals) == 0 {
		return Pattern{}, false
	}
	buckets := make(map[int64]int, len(intervals))
	for _, iv := range intervals {
		b := int64(math.Round(iv / periodicityBucketMs))
		buckets[b]++
	}
	var mode int
	for _, c := range buckets {
		if c > mode {
			mode = c
		}
	}
	fraction := float64(mode) / float64(len(intervals))
	if fraction < periodicityMinFraction {
		return Pattern{}, false
	}
	risk := numeric.Clamp01(0.6 * fraction)
	return Pattern{
		Kind:        "temporal",
		Name:        "periodicity",
		Description: fmt.Sprintf("%.0f%% of intervals cluster in one 100ms bucket", fraction*100),
		Risk:        risk,
		Metadata:    map[string]any{"confidence": fraction},
	}, true
}

func burstPatterns(intervals []float64) []Pattern {
	avg := numeric.Mean(intervals)
	if avg <= 0 {
		return nil
	}
	threshold := burstIntervalFraction * avg

	var out []Pattern
	runStart := -1
	flush := func(end int) {
		length := end - runStart
		if length < burstMinRun {
			return
		}
		runIntervals := intervals[runStart:end]
		duration := numeric.Sum(runIntervals)
		var rate float64
		if duration > 0 {
			rate = float64(length) / (duration / 1000)
		}
		risk := numeric.Clamp01(0.2 + 0.1*float64(length)/float64(burstMinRun) + 0.05*rate)
		out = append(out, Pattern{
			Kind:        "temporal",
			Name:        "burst",
			Description: fmt.Sprintf("%d events in a tight burst (%.1f events/s)", length+1, rate),
			Risk:        risk,
			Metadata: map[string]any{
				"count":      length + 1,
				"durationMs": duration,
				"rate":       rate,
			},
		})
	}

	for i, iv := range intervals {
		if iv < threshold {
			if runStart == -1 {
				runStart = i
			}
			continue
		}
		if runStart != -1 {
			flush(i)
			runStart = -1
		}
	}
	if runStart != -1 {
		flush(len(intervals))
	}
	return out
}

func clockAlignmentPattern(evs []events.Event) (Pattern, bool) {
	aligned := 0
	for _, e := range evs {
		ms := e.TimestampMs
		if ms%3600000 == clockAlignmentToleranceMs || ms%60000 == clockAlignmentToleranceMs || ms%1000 == clockAlignmentToleranceMs {
			aligned++
		}
	}
	fraction := float64(aligned) / float64(len(evs))
	if fraction <= clockAlignmentMinFrac {
		return Pattern{}, false
	}
	risk := numeric.Clamp01(0.5 * fraction)
	return Pattern{
		Kind:        "temporal",
		Name:        "clockAlignment",
		Description: fmt.Sprintf("%.0f%% of events land exactly on a clock boundary", fraction*100),
		Risk:        risk,
		Metadata:    map[string]any{"fraction": fraction},
	}, true
}
