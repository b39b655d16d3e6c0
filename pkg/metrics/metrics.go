// Package metrics exposes the Prometheus series the engine and its HTTP
// adapter publish: a flat set of package-level counters, histograms, and
// gauges registered once, covering the full risk-decision surface rather
// than rate-limiting alone.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/riskguard-io/riskguard/internal/risk"
	"github.com/riskguard-io/riskguard/internal/store"
)

var (
	// DecisionsTotal counts every decision passed to Observe, labeled by the
	// action it resolved to and the dominant reason behind it.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "decisions_total",
			Help:      "Total risk decisions, labeled by action and reason.",
		},
		[]string{"action", "reason"},
	)

	AttacksDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "attacks_detected_total",
			Help:      "Total decisions whose pattern detector identified a known attack type.",
		},
		[]string{"attack_type"},
	)

	RiskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "riskguard",
			Name:      "risk_score",
			Help:      "Distribution of fused risk scores across decisions.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	ComponentScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskguard",
			Name:      "component_score",
			Help:      "Distribution of each signal's contribution before fusion.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"component"},
	)

	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "riskguard",
			Name:      "evaluation_duration_ms",
			Help:      "Wall-clock duration of a single Evaluate call, in milliseconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// HookFailuresTotal is registered with the other series, but nothing in
	// this module increments it: risk.Engine recovers hook panics and only
	// logs them.
	HookFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "hook_failures_total",
			Help:      "Total panics recovered from a user-supplied hook, labeled by hook name.",
		},
		[]string{"hook"},
	)

	StoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskguard",
			Name:      "store_size",
			Help:      "Current number of live keys in the state store.",
		},
	)

	StoreHitRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskguard",
			Name:      "store_hit_rate",
			Help:      "Fraction of store reads that hit a live key since process start.",
		},
	)

	StoreEvictionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskguard",
			Name:      "store_evictions_total",
			Help:      "Cumulative entries evicted from the state store under capacity pressure.",
		},
	)

	registerOnce sync.Once
)

// Register registers every RiskGuard series once against reg.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			DecisionsTotal,
			AttacksDetectedTotal,
			RiskScore,
			ComponentScore,
			EvaluationDuration,
			HookFailuresTotal,
			StoreSize,
			StoreHitRate,
			StoreEvictionsTotal,
		)
	})
}

// Observe records one decision's contribution to the series above. Callers
// invoke it from the HTTP adapter or directly after Engine.Evaluate.
func Observe(d risk.Decision) {
	DecisionsTotal.WithLabelValues(d.Action.Type, d.Action.Reason).Inc()
	if d.AttackType != "" {
		AttacksDetectedTotal.WithLabelValues(d.AttackType).Inc()
	}
	RiskScore.Observe(d.RiskScore)
	for name, v := range d.Components {
		ComponentScore.WithLabelValues(name).Observe(v)
	}
	EvaluationDuration.Observe(d.Metadata.EvaluationTimeMs)
}

// ObserveStore samples store-wide counters into the gauge series above. Call
// it periodically (e.g. once per scrape or on a ticker), not per-request.
func ObserveStore(s *store.Store) {
	st := s.GetStats()
	StoreSize.Set(float64(st.Size))
	StoreHitRate.Set(st.HitRate)
	StoreEvictionsTotal.Set(float64(st.Evictions))
}
