// Package risk implements the RiskEngine orchestrator: it fuses behavior,
// pattern, rate-limit, fingerprint, reputation, and (optionally) session
// signals into a single bounded decision per request.
package risk

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riskguard-io/riskguard/internal/behavior"
	"github.com/riskguard-io/riskguard/internal/events"
	"github.com/riskguard-io/riskguard/internal/fingerprint"
	"github.com/riskguard-io/riskguard/internal/pattern"
	"github.com/riskguard-io/riskguard/internal/ratelimiter"
	"github.com/riskguard-io/riskguard/internal/reputation"
	"github.com/riskguard-io/riskguard/internal/session"
	"github.com/riskguard-io/riskguard/internal/store"
)

// Stats is the engine's running global counters.
type Stats struct {
	Total       int64
	Allowed     int64
	Challenged  int64
	Throttled   int64
	Blocked     int64
	Banned      int64
	MeanScore   float64
}

// Engine is the concurrency-safe request evaluation pipeline. All mutable
// per-identity state lives in the shared store; Engine itself holds only
// the producers and global counters.
type Engine struct {
	store *store.Store
	cfg   Config

	limiter    *ratelimiter.Limiter
	fpTracker  *fingerprint.Tracker
	sessionTrk *session.Tracker

	statsMu sync.Mutex
	stats   Stats
}

// New constructs an Engine backed by s.
func New(s *store.Store, cfg Config) *Engine {
	cfg.fillDefaults()
	clock := cfg.Clock
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}
	return &Engine{
		store:      s,
		cfg:        cfg,
		limiter:    ratelimiter.New(s, cfg.RateLimiter),
		fpTracker:  fingerprint.NewTracker(s, clock),
		sessionTrk: session.NewTracker(s),
	}
}

type component struct {
	value    float64
	weight   float64
	reliable bool
}

// Evaluate runs the full pipeline for one request. It never returns an
// error and never panics outward: an internal failure is recovered and
// surfaced as a fail-open allow decision.
func (e *Engine) Evaluate(req Request) (decision Decision) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("identity", req.Identity).Msg("evaluate_panic_recovered")
			decision = e.failOpen(req)
		}
	}()

	identity := req.Identity
	if identity == "" {
		identity = "anonymous"
	}
	nowMs := req.TimestampMs
	if nowMs == 0 {
		nowMs = e.clockMs()
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = syntheticSessionID(req.IP, req.UserAgent, nowMs)
	}

	events.Record(e.store, identity, events.Event{
		TimestampMs:  nowMs,
		Action:       req.Action,
		Endpoint:     req.Endpoint,
		IP:           req.IP,
		UserAgent:    req.UserAgent,
		ResponseTime: req.ResponseTime,
		PayloadSize:  req.PayloadSize,
		StatusCode:   req.StatusCode,
		Method:       req.Method,
	})
	evs := events.Recent(e.store, identity)

	prevRepScore, repReliable := reputation.Value(e.store, identity)

	profile := behavior.Load(e.store, identity)
	behaviorRes, fv, behaviorOK := behavior.Score(evs, profile, nowMs)
	if behaviorOK {
		behavior.Update(e.store, identity, fv)
	}

	patternRes := pattern.Detect(evs)

	rlResult := e.limiter.Check(identity, ratelimiter.CheckOptions{
		Endpoint:  req.Endpoint,
		RiskScore: prevRepScore,
	})
	var rlContribution float64
	if !rlResult.Allowed {
		rlContribution = rlResult.Severity
		if rlContribution <= 0 {
			rlContribution = 0.5
		}
	}

	fp := fingerprint.Generate(fingerprint.Request{UserAgent: req.UserAgent, IP: req.IP, Client: req.Client})
	stable := e.fpTracker.Record(identity, fp.Hash, nowMs)
	suspicious := !stable
	fpContribution := fp.Anomaly
	if fp.Bot > fpContribution {
		fpContribution = fp.Bot
	}
	if suspicious && 0.7 > fpContribution {
		fpContribution = 0.7
	}

	sessRes := e.sessionTrk.Check(identity, sessionID, req.Geo, req.HasGeo, nowMs)
	var sessionContribution float64
	if sessRes.Flagged {
		sessionContribution = sessRes.Risk
	}

	components := map[string]component{
		"behavior":    {value: behaviorRes.Risk, weight: e.cfg.Weights.Behavior, reliable: behaviorOK},
		"patterns":    {value: patternRes.Risk, weight: e.cfg.Weights.Patterns, reliable: true},
		"rateLimit":   {value: rlContribution, weight: e.cfg.Weights.RateLimit, reliable: true},
		"fingerprint": {value: fpContribution, weight: e.cfg.Weights.Fingerprint, reliable: true},
		"reputation":  {value: prevRepScore, weight: e.cfg.Weights.Reputation, reliable: repReliable},
		"session":     {value: sessionContribution, weight: e.cfg.Weights.Session, reliable: sessRes.Reliable},
	}

	fused := fuse(components)

	if patternRes.AttackType != "" {
		floor := 0.6
		if patternRes.AttackMultiplier >= 1.0 {
			// High-confidence attack classes (bruteForce, enumeration,
			// accountTakeover, cardTesting) must escalate past throttle on
			// their own, not just nudge the medium tier.
			floor = math.Max(floor, e.cfg.Thresholds.High)
		}
		fused = math.Max(fused, floor)
	}
	if fp.IsBot {
		fused = math.Max(fused, 0.7)
	}
	if !rlResult.Allowed {
		fused = math.Max(fused, 0.5)
	}
	fused = clamp01(fused)

	level := levelFor(fused, e.cfg.Thresholds)
	action := e.selectAction(fused, level, patternRes, fp, behaviorRes, rlResult)
	allowed := action.Type == "allow" || action.Type == "challenge"

	blocked := action.Type == "block" || action.Type == "ban"
	reputation.Update(e.store, identity, fused, blocked)

	decision = Decision{
		Identity:   identity,
		SessionID:  sessionID,
		RiskScore:  fused,
		RiskLevel:  level,
		Action:     action,
		Allowed:    allowed,
		AttackType: patternRes.AttackType,
		Components: map[string]float64{
			"behavior":    behaviorRes.Risk,
			"patterns":    patternRes.Risk,
			"rateLimit":   rlContribution,
			"fingerprint": fpContribution,
			"reputation":  prevRepScore,
			"session":     sessionContribution,
		},
		Metadata: Metadata{
			EvaluationTimeMs: float64(time.Since(start).Microseconds()) / 1000,
			TimestampMs:      nowMs,
		},
	}

	e.recordStats(action.Type, fused)
	e.fireHooks(decision)

	return decision
}

// fuse computes the weighted mean over reliable components, normalizing by
// the sum of weights actually present.
func fuse(components map[string]component) float64 {
	var numerator, denom float64
	for _, c := range components {
		if !c.reliable {
			continue
		}
		numerator += c.weight * c.value
		denom += c.weight
	}
	if denom == 0 {
		return 0
	}
	return numerator / denom
}

func levelFor(score float64, t Thresholds) string {
	switch {
	case score >= t.Critical:
		return "critical"
	case score >= t.High:
		return "high"
	case score >= t.Medium:
		return "medium"
	case score >= t.Low:
		return "low"
	default:
		return "minimal"
	}
}

func (e *Engine) selectAction(score float64, level string, patternRes pattern.Result, fp fingerprint.Fingerprint, behaviorRes behavior.Result, rl ratelimiter.CheckResult) Action {
	reason := dominantReason(patternRes, fp, behaviorRes, rl)

	switch level {
	case "critical":
		return Action{Type: "ban", Reason: reason, Duration: e.cfg.ActionDurations.Ban.Milliseconds()}
	case "high":
		return Action{Type: "block", Reason: reason, Duration: e.cfg.ActionDurations.Block.Milliseconds()}
	case "medium":
		return Action{Type: "throttle", Reason: reason, Factor: e.cfg.ThrottleFactor}
	case "low":
		return Action{Type: "challenge", Reason: reason, ChallengeType: challengeTypeFor(fp, behaviorRes)}
	default:
		return Action{Type: "allow", Reason: "low_risk"}
	}
}

func challengeTypeFor(fp fingerprint.Fingerprint, behaviorRes behavior.Result) string {
	switch {
	case fp.Bot > 0.5:
		return "captcha"
	case behaviorRes.Automation > 0.5:
		return "proof_of_work"
	default:
		return "js_challenge"
	}
}

func dominantReason(patternRes pattern.Result, fp fingerprint.Fingerprint, behaviorRes behavior.Result, rl ratelimiter.CheckResult) string {
	switch {
	case !rl.Allowed:
		return "rate_limit_exceeded"
	case patternRes.AttackType != "":
		return "detected_" + patternRes.AttackType
	case fp.IsBot:
		return "detected_bot"
	case behaviorRes.Automation > 0.6:
		return "detected_automation"
	default:
		return "high_risk_score"
	}
}

func (e *Engine) recordStats(actionType string, score float64) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats.Total++
	n := float64(e.stats.Total)
	e.stats.MeanScore += (score - e.stats.MeanScore) / n
	switch actionType {
	case "allow":
		e.stats.Allowed++
	case "challenge":
		e.stats.Challenged++
	case "throttle":
		e.stats.Throttled++
	case "block":
		e.stats.Blocked++
	case "ban":
		e.stats.Banned++
	}
}

// Stats returns a snapshot of the engine's running counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

func (e *Engine) fireHooks(d Decision) {
	if d.RiskScore >= e.cfg.Thresholds.High {
		e.safeHook(e.cfg.Hooks.OnHighRisk, d)
	}
	if d.Action.Type == "block" || d.Action.Type == "ban" {
		e.safeHook(e.cfg.Hooks.OnBlock, d)
	}
	if d.AttackType != "" {
		e.safeHook(e.cfg.Hooks.OnAnomaly, d)
	}
}

// safeHook invokes hook with panic recovery: hook failures are swallowed
// and never affect the decision already made.
func (e *Engine) safeHook(hook func(Decision), d Decision) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("hook_panic_recovered")
		}
	}()
	hook(d)
}

// failOpen returns the fail-safe allow decision used when Evaluate recovers
// from an internal panic: the engine must never fail-closed.
func (e *Engine) failOpen(req Request) Decision {
	return Decision{
		Identity:  req.Identity,
		RiskScore: 0,
		RiskLevel: "minimal",
		Action:    Action{Type: "allow", Reason: "internal_error"},
		Allowed:   true,
		Metadata:  Metadata{TimestampMs: e.clockMs()},
	}
}

// ResetUser purges every piece of per-identity state: events, behavior
// profile, reputation, rate-limiter buckets/penalty, fingerprint history,
// and last-known session, all atomically with respect to readers.
func (e *Engine) ResetUser(identity string) {
	events.Reset(e.store, identity)
	behavior.Reset(e.store, identity)
	reputation.Reset(e.store, identity)
	e.limiter.Reset(identity)
	e.fpTracker.Reset(identity)
	e.sessionTrk.Reset(identity)
}

func (e *Engine) clockMs() int64 {
	if e.cfg.Clock != nil {
		return e.cfg.Clock()
	}
	return time.Now().UnixMilli()
}

func syntheticSessionID(ip, userAgent string, nowMs int64) string {
	h := fnv.New64a()
	h.Write([]byte(ip))
	h.Write([]byte{'|'})
	h.Write([]byte(userAgent))
	h.Write([]byte{'|'})
	h.Write([]byte(time.UnixMilli(nowMs).UTC().Format(time.RFC3339)))
	return "sess-" + itoaHex(h.Sum64())
}

func itoaHex(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%16]
		v /= 16
	}
	return string(buf[i:])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
