package session

import (
	"testing"

	"github.com/riskguard-io/riskguard/internal/store"
)

func TestFirstSessionIsUnreliable(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	tr := NewTracker(s)

	r := tr.Check("user1", "sess-a", GeoHint{Lat: 40.7, Lon: -74.0}, true, 0)
	if r.Reliable {
		t.Fatalf("expected unreliable result with no prior session")
	}
}

func TestImpossibleTravelFlagged(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	tr := NewTracker(s)

	// New York
	tr.Check("user1", "sess-a", GeoHint{Lat: 40.7128, Lon: -74.0060}, true, 0)
	// Tokyo, 3 minutes later, ~10,800 km away, impossible within 3 minutes.
	r := tr.Check("user1", "sess-b", GeoHint{Lat: 35.6762, Lon: 139.6503}, true, 3*60*1000)

	if !r.Reliable {
		t.Fatalf("expected reliable result with two geo-tagged sessions")
	}
	if !r.Flagged {
		t.Fatalf("expected impossible travel to be flagged")
	}
	if r.Risk < 0.6 {
		t.Fatalf("expected risk floored at 0.6, got %v", r.Risk)
	}
}

func TestPlausibleTravelNotFlagged(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	tr := NewTracker(s)

	tr.Check("user2", "sess-a", GeoHint{Lat: 40.7128, Lon: -74.0060}, true, 0)
	// Boston, several hours later, short hop, plenty of time.
	r := tr.Check("user2", "sess-b", GeoHint{Lat: 42.3601, Lon: -71.0589}, true, 6*3600*1000)

	if !r.Reliable {
		t.Fatalf("expected reliable result")
	}
	if r.Flagged {
		t.Fatalf("expected plausible travel to not be flagged")
	}
}

func TestMissingGeoIsUnreliable(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	tr := NewTracker(s)

	tr.Check("user3", "sess-a", GeoHint{}, false, 0)
	r := tr.Check("user3", "sess-b", GeoHint{Lat: 1, Lon: 1}, true, 1000)
	if r.Reliable {
		t.Fatalf("expected unreliable result when prior session lacked geo")
	}
}

func TestSameSessionIDIsUnreliable(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	tr := NewTracker(s)

	tr.Check("user4", "sess-a", GeoHint{Lat: 1, Lon: 1}, true, 0)
	r := tr.Check("user4", "sess-a", GeoHint{Lat: 50, Lon: 50}, true, 1000)
	if r.Reliable {
		t.Fatalf("expected unreliable result when comparing a session against itself")
	}
}

func TestResetPurgesLastSession(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	tr := NewTracker(s)

	tr.Check("user5", "sess-a", GeoHint{Lat: 1, Lon: 1}, true, 0)
	tr.Reset("user5")
	r := tr.Check("user5", "sess-b", GeoHint{Lat: 50, Lon: 50}, true, 1000)
	if r.Reliable {
		t.Fatalf("expected unreliable result after reset purged the prior session")
	}
}
