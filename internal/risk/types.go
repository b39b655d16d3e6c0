package risk

import (
	"github.com/riskguard-io/riskguard/internal/fingerprint"
	"github.com/riskguard-io/riskguard/internal/session"
)

// Request is the engine's inbound contract. The HTTP adapter
// (internal/httpadapter) is responsible for populating it from a
// net/http.Request; Evaluate itself has no transport dependency.
type Request struct {
	Identity  string // already resolved by the adapter's preference chain
	SessionID string // empty triggers synthetic session-id derivation
	IP        string
	Method    string
	Path      string
	Endpoint  string
	Action    string
	Headers   map[string]string // case-insensitive: adapter lowercases keys
	UserAgent string

	ResponseTime float64 // milliseconds; 0 means not provided
	PayloadSize  int64
	StatusCode   int

	Client fingerprint.ClientHints
	Geo    session.GeoHint
	HasGeo bool

	TimestampMs int64 // 0 triggers Engine.clockMs()
}

// Action is the selected mitigation attached to a Decision.
type Action struct {
	Type          string // allow | challenge | throttle | block | ban
	Reason        string
	Duration      int64 // milliseconds; 0 when not applicable
	Factor        float64
	ChallengeType string
}

// Metadata carries evaluation bookkeeping.
type Metadata struct {
	EvaluationTimeMs float64
	TimestampMs      int64
}

// Decision is the engine's outbound contract.
type Decision struct {
	Identity   string
	SessionID  string
	RiskScore  float64
	RiskLevel  string
	Action     Action
	Allowed    bool
	Components map[string]float64
	AttackType string
	Metadata   Metadata
}
