package behavior

import (
	"github.com/riskguard-io/riskguard/internal/numeric"
	"github.com/riskguard-io/riskguard/internal/store"
)

// MaxFeatureHistory bounds the profile's feature-vector queue.
const MaxFeatureHistory = 100

// MinBaselineSamples is the minimum feature-history length before a
// baseline is computed.
const MinBaselineSamples = 5

// FeatureStat summarizes one feature's distribution across history.
type FeatureStat struct {
	Mean   float64
	Std    float64
	Median float64
	Q1     float64
	Q3     float64
}

// Profile is the per-identity behavioral profile.
type Profile struct {
	FeatureHistory []FeatureVector
	Baseline       map[string]FeatureStat // nil until >= MinBaselineSamples
	Confidence     float64
	LastUpdated    int64
}

// Confidence is min(len(featureHistory)/20, 1).
func confidenceFor(n int) float64 {
	return numeric.Clamp01(float64(n) / 20)
}

func profileKey(identity string) string { return "behavior:profile:" + identity }

// Load returns identity's profile, or a zero-value Profile if none exists.
func Load(s *store.Store, identity string) Profile {
	v, ok := s.Get(profileKey(identity))
	if !ok {
		return Profile{}
	}
	p, _ := v.(Profile)
	return p
}

// Update appends fv to identity's profile history (bounded, oldest-first
// trim), recomputes the baseline once enough samples exist, and persists
// the result.
func Update(s *store.Store, identity string, fv FeatureVector) Profile {
	p := Load(s, identity)
	p.FeatureHistory = append(p.FeatureHistory, fv)
	if len(p.FeatureHistory) > MaxFeatureHistory {
		p.FeatureHistory = p.FeatureHistory[len(p.FeatureHistory)-MaxFeatureHistory:]
	}
	p.Confidence = confidenceFor(len(p.FeatureHistory))
	p.LastUpdated = fv.TimestampMs
	if len(p.FeatureHistory) >= MinBaselineSamples {
		p.Baseline = computeBaseline(p.FeatureHistory)
	}
	s.Set(profileKey(identity), p, 0)
	return p
}

// Reset purges identity's profile.
func Reset(s *store.Store, identity string) {
	s.Delete(profileKey(identity))
}

func computeBaseline(history []FeatureVector) map[string]FeatureStat {
	byFeature := make(map[string][]float64, len(featureNames))
	for _, name := range featureNames {
		byFeature[name] = make([]float64, 0, len(history))
	}
	for _, fv := range history {
		vals := fv.Values()
		for _, name := range featureNames {
			byFeature[name] = append(byFeature[name], vals[name])
		}
	}
	out := make(map[string]FeatureStat, len(featureNames))
	for _, name := range featureNames {
		xs := byFeature[name]
		q1, q3 := numeric.IQR(xs)
		out[name] = FeatureStat{
			Mean:   numeric.Mean(xs),
			Std:    numeric.StdDev(xs),
			Median: numeric.Median(xs),
			Q1:     q1,
			Q3:     q3,
		}
	}
	return out
}
