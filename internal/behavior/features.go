// Package behavior extracts features from a caller's recent event history,
// maintains a per-identity behavioral baseline, and emits a behavior risk
// score in [0,1] from six weighted sub-scores.
package behavior

import (
	"github.com/riskguard-io/riskguard/internal/events"
	"github.com/riskguard-io/riskguard/internal/numeric"
)

// MinSamples is the minimum event count required before any feature
// vector is extracted at all.
const MinSamples = 10

// FeatureVector is one snapshot of behavioral features over a window of
// recent events.
type FeatureVector struct {
	TimestampMs      int64
	IntervalMean     float64
	IntervalStd      float64
	IntervalEntropy  float64
	ActionEntropy    float64
	EndpointEntropy  float64
	EventCount       float64
	UniqueActions    float64
	UniqueEndpoints  float64
	ResponseTimeMean float64
	ResponseTimeStd  float64
	PayloadMean      float64
	TimeSpanMs       float64
	EventsPerMinute  float64
}

// featureNames enumerates, in order, the fields Values() returns, used
// by the baseline and z-score machinery so they never need reflection.
var featureNames = []string{
	"intervalMean", "intervalStd", "intervalEntropy", "actionEntropy",
	"endpointEntropy", "eventCount", "uniqueActions", "uniqueEndpoints",
	"responseTimeMean", "responseTimeStd", "payloadMean", "timeSpanMs",
	"eventsPerMinute",
}

// Values returns the feature vector as a name -> value map for generic
// baseline/z-score computation.
func (f FeatureVector) Values() map[string]float64 {
	return map[string]float64{
		"intervalMean":     f.IntervalMean,
		"intervalStd":      f.IntervalStd,
		"intervalEntropy":  f.IntervalEntropy,
		"actionEntropy":    f.ActionEntropy,
		"endpointEntropy":  f.EndpointEntropy,
		"eventCount":       f.EventCount,
		"uniqueActions":    f.UniqueActions,
		"uniqueEndpoints":  f.UniqueEndpoints,
		"responseTimeMean": f.ResponseTimeMean,
		"responseTimeStd":  f.ResponseTimeStd,
		"payloadMean":      f.PayloadMean,
		"timeSpanMs":       f.TimeSpanMs,
		"eventsPerMinute":  f.EventsPerMinute,
	}
}

// Extract computes a FeatureVector from evs (oldest first). ok is false
// when fewer than MinSamples events are present.
func Extract(evs []events.Event, nowMs int64) (fv FeatureVector, ok bool) {
	if len(evs) < MinSamples {
		return FeatureVector{}, false
	}

	ts := make([]float64, len(evs))
	actions := make([]string, len(evs))
	endpoints := make([]string, len(evs))
	var respTimes, payloads []float64
	uniqueActions := map[string]struct{}{}
	uniqueEndpoints := map[string]struct{}{}

	for i, e := range evs {
		ts[i] = float64(e.TimestampMs)
		actions[i] = e.Action
		endpoints[i] = e.Endpoint
		uniqueActions[e.Action] = struct{}{}
		uniqueEndpoints[e.Endpoint] = struct{}{}
		if e.ResponseTime > 0 {
			respTimes = append(respTimes, e.ResponseTime)
		}
		payloads = append(payloads, float64(e.PayloadSize))
	}

	intervals := numeric.Diffs(ts)
	timeSpan := ts[len(ts)-1] - ts[0]

	var eventsPerMinute float64
	if timeSpan > 0 {
		eventsPerMinute = float64(len(evs)) / (timeSpan / 60000)
	}

	fv = FeatureVector{
		TimestampMs:      nowMs,
		IntervalMean:     numeric.Mean(intervals),
		IntervalStd:      numeric.StdDev(intervals),
		IntervalEntropy:  numeric.IntervalEntropy(intervals, 100),
		ActionEntropy:    numeric.NormalizedEntropy(actions),
		EndpointEntropy:  numeric.NormalizedEntropy(endpoints),
		EventCount:       float64(len(evs)),
		UniqueActions:    float64(len(uniqueActions)),
		UniqueEndpoints:  float64(len(uniqueEndpoints)),
		ResponseTimeMean: numeric.Mean(respTimes),
		ResponseTimeStd:  numeric.StdDev(respTimes),
		PayloadMean:      numeric.Mean(payloads),
		TimeSpanMs:       timeSpan,
		EventsPerMinute:  eventsPerMinute,
	}
	return fv, true
}
