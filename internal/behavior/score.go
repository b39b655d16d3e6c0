package behavior

import (
	"time"

	"github.com/riskguard-io/riskguard/internal/events"
	"github.com/riskguard-io/riskguard/internal/numeric"
)

// Thresholds and weights for the six behavioral sub-scores.
const (
	anomalyThreshold = 2.5
	anomalyWeight    = 0.25
	velocityWeight   = 0.20
	rhythmWeight     = 0.15
	diversityWeight  = 0.10
	automationWeight = 0.20
	sessionWeight    = 0.10

	anomalyInclusion  = 0.3
	velocityInclusion = 0.5
	rhythmInclusion   = 0.4
	lowDivInclusion   = 0.8
	automationIncl    = 0.6
	sessionIncl       = 0.5

	minBaselineConfidence = 0.3
)

// Result carries the six sub-scores plus the fused behavior risk.
type Result struct {
	Reliable       bool
	Anomaly        float64
	Velocity       float64
	Rhythm         float64
	Diversity      float64 // raw diversity (higher = more diverse = less risky)
	Automation     float64
	SessionAnomaly float64
	Risk           float64
}

// Score computes the behavior risk for identity from its recent events and
// stored profile. It does not modify the profile: it returns the newly
// extracted feature vector for the caller to pass to Update. Fewer than
// MinSamples events yields {Reliable:false, Risk:0.5}
// (StateNotInitialized).
func Score(evs []events.Event, profile Profile, nowMs int64) (Result, FeatureVector, bool) {
	fv, ok := Extract(evs, nowMs)
	if !ok {
		return Result{Reliable: false, Risk: 0.5}, FeatureVector{}, false
	}

	intervals := intervalsOf(evs)

	anomaly := anomalyScore(fv, profile)
	velocity := velocityScore(intervals)
	rhythm := rhythmScore(intervals)
	diversity := diversityScore(fv)
	automation := automationScore(evs, intervals)
	session := sessionAnomalyScore(evs)

	type factor struct {
		value     float64
		weight    float64
		threshold float64
	}
	factors := []factor{
		{anomaly, anomalyWeight, anomalyInclusion},
		{velocity, velocityWeight, velocityInclusion},
		{rhythm, rhythmWeight, rhythmInclusion},
		{1 - diversity, diversityWeight, lowDivInclusion},
		{automation, automationWeight, automationIncl},
		{session, sessionWeight, sessionIncl},
	}

	var weightSum, scoreSum float64
	for _, f := range factors {
		if f.value > f.threshold {
			weightSum += f.weight
			scoreSum += f.weight * f.value
		}
	}
	risk := 0.0
	if weightSum > 0 {
		risk = numeric.Clamp01(scoreSum / weightSum)
	}

	res := Result{
		Reliable:       true,
		Anomaly:        anomaly,
		Velocity:       velocity,
		Rhythm:         rhythm,
		Diversity:      diversity,
		Automation:     automation,
		SessionAnomaly: session,
		Risk:           risk,
	}
	return res, fv, true
}

func intervalsOf(evs []events.Event) []float64 {
	ts := make([]float64, len(evs))
	for i, e := range evs {
		ts[i] = float64(e.TimestampMs)
	}
	return numeric.Diffs(ts)
}

// anomalyScore is only computed when a baseline exists and confidence is
// sufficient.
func anomalyScore(fv FeatureVector, profile Profile) float64 {
	if profile.Baseline == nil || profile.Confidence < minBaselineConfidence {
		return 0
	}
	vals := fv.Values()
	var zs []float64
	for _, name := range featureNames {
		stat, ok := profile.Baseline[name]
		if !ok {
			continue
		}
		z := numeric.ZScore(vals[name], stat.Mean, stat.Std)
		capped := z / anomalyThreshold
		if capped > 2 {
			capped = 2
		}
		zs = append(zs, capped)
	}
	if len(zs) == 0 {
		return 0
	}
	return numeric.Clamp01(numeric.Sigmoid(numeric.Mean(zs) - 1))
}

func velocityScore(intervals []float64) float64 {
	if len(intervals) == 0 {
		return 0
	}
	var score float64
	minInterval := numeric.Min(intervals)
	switch {
	case minInterval < 50:
		score += 0.4
	case minInterval < 100:
		score += 0.2
	}

	meanInterval := numeric.Mean(intervals)
	var eventsPerSec float64
	if meanInterval > 0 {
		eventsPerSec = 1000 / meanInterval
	}
	switch {
	case eventsPerSec > 10:
		score += 0.3
	case eventsPerSec > 5:
		score += 0.15
	}

	score += 0.3 * burstScore(intervals)
	return numeric.Clamp01(score)
}

// burstScore combines the count of burst runs (contiguous intervals below
// 0.2x the mean) and the longest such run, per the glossary's Burst
// definition.
func burstScore(intervals []float64) float64 {
	mean := numeric.Mean(intervals)
	if mean <= 0 {
		return 0
	}
	threshold := 0.2 * mean

	var runs, longest, current int
	for _, iv := range intervals {
		if iv < threshold {
			current++
			if current > longest {
				longest = current
			}
		} else {
			if current >= 2 {
				runs++
			}
			current = 0
		}
	}
	if current >= 2 {
		runs++
	}

	countComponent := numeric.Clamp01(float64(runs) / 3)
	lenComponent := numeric.Clamp01(float64(longest) / 10)
	return numeric.Clamp01(0.5*countComponent + 0.5*lenComponent)
}

func rhythmScore(intervals []float64) float64 {
	if len(intervals) == 0 {
		return 0
	}
	cv := numeric.CoefficientOfVariation(intervals)
	var score float64
	switch {
	case cv < 0.1:
		score += 0.8
	case cv < 0.2:
		score += 0.5
	case cv < 0.3:
		score += 0.2
	}

	aligned := 0
	for _, iv := range intervals {
		remainder := mod(iv, 100)
		dist := remainder
		if 100-remainder < dist {
			dist = 100 - remainder
		}
		if dist <= 20 {
			aligned++
		}
	}
	if float64(aligned)/float64(len(intervals)) > 0.8 {
		score += 0.2
	}
	return numeric.Clamp01(score)
}

func mod(v, m float64) float64 {
	r := v - float64(int64(v/m))*m
	if r < 0 {
		r += m
	}
	return r
}

// diversityScore blends unique-ratio and normalized entropy of actions and
// endpoints; higher means more diverse (less risky).
func diversityScore(fv FeatureVector) float64 {
	if fv.EventCount == 0 {
		return 1 // no evidence of monotony; treat as maximally diverse (least risky)
	}
	actionUniqueRatio := numeric.Clamp01(fv.UniqueActions / fv.EventCount)
	endpointUniqueRatio := numeric.Clamp01(fv.UniqueEndpoints / fv.EventCount)

	actionDiversity := 0.5*actionUniqueRatio + 0.5*fv.ActionEntropy
	endpointDiversity := 0.5*endpointUniqueRatio + 0.5*fv.EndpointEntropy

	return numeric.Clamp01(0.5*actionDiversity + 0.5*endpointDiversity)
}

func automationScore(evs []events.Event, intervals []float64) float64 {
	if len(intervals) == 0 {
		return 0
	}

	multiples := 0
	for _, iv := range intervals {
		if isNearMultiple(iv, 100, 15) || isNearMultiple(iv, 500, 15) || isNearMultiple(iv, 1000, 15) {
			multiples++
		}
	}
	multipleFraction := float64(multiples) / float64(len(intervals))

	repetition := intervalRepetitionScore(intervals)
	sequenceRep := sequenceRepetitionScore(evs)
	missingMarkers := missingHumanMarkersScore(evs)

	score := multipleFraction*0.3 + repetition*0.2 + sequenceRep*0.25 + missingMarkers*0.25
	return numeric.Clamp01(score)
}

func isNearMultiple(v, base, tolerance float64) bool {
	r := mod(v, base)
	dist := r
	if base-r < dist {
		dist = base - r
	}
	return dist <= tolerance
}

// intervalRepetitionScore is the fraction of intervals that fall in the
// single most common 10ms bucket.
func intervalRepetitionScore(intervals []float64) float64 {
	if len(intervals) == 0 {
		return 0
	}
	buckets := make(map[int64]int)
	for _, iv := range intervals {
		b := int64(iv / 10) // 10ms buckets
		buckets[b]++
	}
	var mode int
	for _, c := range buckets {
		if c > mode {
			mode = c
		}
	}
	return float64(mode) / float64(len(intervals))
}

// sequenceRepetitionScore measures monotony in the action sequence via the
// most common action bigram's share of all bigrams.
func sequenceRepetitionScore(evs []events.Event) float64 {
	if len(evs) < 2 {
		return 0
	}
	bigrams := make(map[string]int)
	total := 0
	for i := 1; i < len(evs); i++ {
		key := evs[i-1].Action + ">" + evs[i].Action
		bigrams[key]++
		total++
	}
	if total == 0 {
		return 0
	}
	var mode int
	for _, c := range bigrams {
		if c > mode {
			mode = c
		}
	}
	return float64(mode) / float64(total)
}

// missingHumanMarkersScore measures the fraction of human-activity markers
// that are absent: pointer movement and scroll events have no corresponding
// fields on Event, so they are always counted absent; response-time
// variability is measured from actual data when available.
func missingHumanMarkersScore(evs []events.Event) float64 {
	absent := 2.0 // mouse, scroll: never observable from Event
	var respTimes []float64
	for _, e := range evs {
		if e.ResponseTime > 0 {
			respTimes = append(respTimes, e.ResponseTime)
		}
	}
	if len(respTimes) >= 2 {
		cv := numeric.CoefficientOfVariation(respTimes)
		if cv < 0.1 {
			absent++
		}
	}
	return absent / 3
}

func sessionAnomalyScore(evs []events.Event) float64 {
	if len(evs) == 0 {
		return 0
	}
	var score float64

	if hasBurstWindow(evs, 20, 5*time.Second) {
		score += 0.4
	}

	hours := make([]int, len(evs))
	for i, e := range evs {
		hours[i] = time.UnixMilli(e.TimestampMs).UTC().Hour()
	}
	if numeric.NormalizedEntropy(hours) < 0.2 {
		score += 0.2
	}

	span := time.Duration(evs[len(evs)-1].TimestampMs-evs[0].TimestampMs) * time.Millisecond
	if span > 30*time.Minute && !hasGapExceeding(evs, time.Minute) {
		score += 0.4
	}

	return numeric.Clamp01(score)
}

// hasBurstWindow reports whether any sliding window of size `window`
// contains more than `count` events.
func hasBurstWindow(evs []events.Event, count int, window time.Duration) bool {
	windowMs := window.Milliseconds()
	left := 0
	for right := 0; right < len(evs); right++ {
		for evs[right].TimestampMs-evs[left].TimestampMs > windowMs {
			left++
		}
		if right-left+1 > count {
			return true
		}
	}
	return false
}

// hasGapExceeding reports whether any consecutive pair of events is
// separated by more than gap.
func hasGapExceeding(evs []events.Event, gap time.Duration) bool {
	gapMs := gap.Milliseconds()
	for i := 1; i < len(evs); i++ {
		if evs[i].TimestampMs-evs[i-1].TimestampMs > gapMs {
			return true
		}
	}
	return false
}
