package ratelimiter

import "github.com/riskguard-io/riskguard/internal/numeric"

// AdaptiveRecompute performs per-identity adaptive limit recomputation:
// given at least 50 utilization samples (each a fraction of
// the current limit actually used in one window), it raises or lowers the
// limit based on mean/peak utilization, clamps to [0.1x, 3x] of
// defaultLimit, then further shrinks by risk.
//
// usageFractions are utilization ratios (used/limit) per historical window;
// at least 50 are required or the current limit is returned unchanged.
func AdaptiveRecompute(usageFractions []float64, currentLimit, defaultLimit float64, riskScore float64) float64 {
	if len(usageFractions) < 50 {
		return currentLimit
	}

	mean := numeric.Mean(usageFractions)
	peak := numeric.Max(usageFractions)

	newLimit := currentLimit
	switch {
	case mean < 0.3 && peak < 0.5:
		newLimit = currentLimit * 1.2
	case mean > 0.8 || peak > 0.95:
		newLimit = currentLimit * 0.8
	}

	lo := defaultLimit * 0.1
	hi := defaultLimit * 3
	newLimit = numeric.Clamp(newLimit, lo, hi)

	if riskScore > 0 {
		newLimit *= 1 - 0.5*numeric.Clamp01(riskScore)
	}
	return newLimit
}
