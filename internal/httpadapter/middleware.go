package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/riskguard-io/riskguard/internal/risk"
	"github.com/riskguard-io/riskguard/pkg/metrics"
)

// ChallengeResponseHeader lets a caller who already solved a challenge pass
// through without being re-challenged for the same decision.
const ChallengeResponseHeader = "X-Challenge-Response"

// Middleware evaluates every request against engine and either forwards it,
// throttles it with a synthetic delay, or short-circuits it with a
// challenge/block response.
func Middleware(engine *risk.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := ExtractRequest(r)
			decision := engine.Evaluate(req)
			metrics.Observe(decision)

			w.Header().Set("X-Risk-Score", strconv.FormatFloat(decision.RiskScore, 'f', 3, 64))
			w.Header().Set("X-Risk-Level", decision.RiskLevel)

			switch decision.Action.Type {
			case "allow":
				next.ServeHTTP(w, r)
				return

			case "challenge":
				if r.Header.Get(ChallengeResponseHeader) != "" {
					next.ServeHTTP(w, r)
					return
				}
				writeChallenge(w, decision)
				return

			case "throttle":
				delayThrottle(decision)
				next.ServeHTTP(w, r)
				return

			case "block", "ban":
				writeBlocked(w, decision)
				return

			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// baseThrottleDelayMs is scaled by the inverse of the decision's factor, so a
// factor of 0.5 (half rate) roughly doubles perceived latency on the slow
// path.
const baseThrottleDelayMs = 100.0

func delayThrottle(d risk.Decision) {
	factor := d.Action.Factor
	if factor <= 0 {
		factor = 1
	}
	delay := time.Duration(baseThrottleDelayMs/factor) * time.Millisecond
	time.Sleep(delay)
}

func writeChallenge(w http.ResponseWriter, d risk.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"challengeType": d.Action.ChallengeType,
		"challenge":     uuid.NewString(),
		"requestId":     uuid.NewString(),
	})
}

func writeBlocked(w http.ResponseWriter, d risk.Decision) {
	retryAfter := d.Action.Duration / 1000
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"reason":     d.Action.Reason,
		"retryAfter": retryAfter,
		"requestId":  uuid.NewString(),
	})
}
