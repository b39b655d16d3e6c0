// Package session implements an optional "impossible travel" signal: two
// sessions for the same identity whose geographic separation could not
// plausibly be covered in the elapsed time. It is not one of the five
// mandatory signal producers the orchestrator always fuses; it treats this
// as a sixth signal that drops its weight whenever geo hints are
// unavailable.
package session

import (
	"math"

	"github.com/riskguard-io/riskguard/internal/numeric"
	"github.com/riskguard-io/riskguard/internal/store"
)

// maxPlausibleKmh is the fastest speed a legitimate session hop is assumed
// capable of (long-haul commercial flight plus ground transit margin).
const maxPlausibleKmh = 1000.0

// impossibleTravelFloor is the minimum risk contribution once two sessions
// are flagged impossible.
const impossibleTravelFloor = 0.6

// GeoHint is an optional, client-declared or IP-geolocated coordinate pair.
type GeoHint struct {
	Lat float64
	Lon float64
}

// record is one session's persisted location+time for an identity.
type record struct {
	SessionID   string
	TimestampMs int64
	Geo         GeoHint
	HasGeo      bool
}

func key(identity string) string { return "session:last:" + identity }

// Tracker maintains the most recent geo-tagged session per identity.
type Tracker struct {
	store *store.Store
}

// NewTracker constructs a Tracker backed by s.
func NewTracker(s *store.Store) *Tracker {
	return &Tracker{store: s}
}

// Result is the outcome of checking one session against the identity's
// prior session.
type Result struct {
	Reliable bool // false when either session lacks a geo hint
	Flagged  bool
	Risk     float64
	SpeedKmh float64
}

// Check compares (sessionID, geo, nowMs) against identity's last recorded
// geo-tagged session, then records the new one as current.
func (t *Tracker) Check(identity, sessionID string, geo GeoHint, hasGeo bool, nowMs int64) Result {
	prev := t.loadLast(identity)
	if hasGeo {
		defer t.storeLast(identity, record{SessionID: sessionID, TimestampMs: nowMs, Geo: geo, HasGeo: hasGeo})
	}

	if !hasGeo || !prev.HasGeo || prev.SessionID == sessionID {
		return Result{Reliable: false}
	}

	elapsedHours := float64(nowMs-prev.TimestampMs) / 3600000
	if elapsedHours <= 0 {
		return Result{Reliable: false}
	}

	distanceKm := haversineKm(prev.Geo, geo)
	speedKmh := distanceKm / elapsedHours

	if speedKmh <= maxPlausibleKmh {
		return Result{Reliable: true, SpeedKmh: speedKmh}
	}

	excess := (speedKmh/maxPlausibleKmh - 1)
	risk := numeric.Clamp01(impossibleTravelFloor + 0.2*numeric.Clamp(excess, 0, 2))
	return Result{Reliable: true, Flagged: true, Risk: risk, SpeedKmh: speedKmh}
}

// Reset purges identity's last-known session.
func (t *Tracker) Reset(identity string) {
	t.store.Delete(key(identity))
}

func (t *Tracker) loadLast(identity string) record {
	v, ok := t.store.Get(key(identity))
	if !ok {
		return record{}
	}
	r, _ := v.(record)
	return r
}

func (t *Tracker) storeLast(identity string, r record) {
	t.store.Set(key(identity), r, 0)
}

// haversineKm returns the great-circle distance between two coordinates in
// kilometers.
func haversineKm(a, b GeoHint) float64 {
	const earthRadiusKm = 6371.0
	lat1, lon1 := degToRad(a.Lat), degToRad(a.Lon)
	lat2, lon2 := degToRad(b.Lat), degToRad(b.Lon)
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
