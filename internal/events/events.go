// Package events defines the per-request Event record and the bounded,
// store-backed per-identity event log shared by the behavior analyzer,
// pattern detector, and orchestrator.
package events

import (
	"github.com/riskguard-io/riskguard/internal/store"
)

// MaxHistory is the cap on events retained per identity.
const MaxHistory = 1000

// Event is one recorded request.
type Event struct {
	TimestampMs  int64
	Action       string
	Endpoint     string
	IP           string
	UserAgent    string
	ResponseTime float64 // milliseconds; 0 means "not provided"
	PayloadSize  int64
	StatusCode   int // 0 means "not provided"
	Method       string
}

func key(identity string) string { return "events:" + identity }

// Record appends e to identity's bounded event log.
func Record(s *store.Store, identity string, e Event) {
	s.Push(key(identity), e, MaxHistory)
}

// Recent returns identity's event log, oldest first, or nil if none exist.
func Recent(s *store.Store, identity string) []Event {
	v, ok := s.Get(key(identity))
	if !ok {
		return nil
	}
	list, _ := v.([]any)
	out := make([]Event, 0, len(list))
	for _, item := range list {
		if e, ok := item.(Event); ok {
			out = append(out, e)
		}
	}
	return out
}

// LastN returns up to the last n events for identity, oldest first.
func LastN(s *store.Store, identity string, n int) []Event {
	all := Recent(s, identity)
	if n <= 0 || len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// Reset purges identity's event log.
func Reset(s *store.Store, identity string) {
	s.Delete(key(identity))
}
