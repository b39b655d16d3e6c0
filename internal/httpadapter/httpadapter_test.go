package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/riskguard-io/riskguard/internal/risk"
	"github.com/riskguard-io/riskguard/internal/store"
)

func TestExtractRequestIdentityPreferenceChain(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?userId=fromquery", nil)
	r.Header.Set(IdentityHeader, "fromheader")
	req := ExtractRequest(r)
	if req.Identity != "fromquery" {
		t.Fatalf("expected userId query param to win, got %q", req.Identity)
	}

	r2 := httptest.NewRequest(http.MethodGet, "/x", nil)
	r2.Header.Set(IdentityHeader, "fromheader")
	req2 := ExtractRequest(r2)
	if req2.Identity != "fromheader" {
		t.Fatalf("expected X-User-Id header fallback, got %q", req2.Identity)
	}

	r3 := httptest.NewRequest(http.MethodGet, "/x", nil)
	r3.RemoteAddr = "203.0.113.5:4444"
	req3 := ExtractRequest(r3)
	if req3.Identity != "203.0.113.5" {
		t.Fatalf("expected caller IP fallback, got %q", req3.Identity)
	}
}

func TestExtractRequestGeoAndClientHints(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("X-Geo-Lat", "40.71")
	r.Header.Set("X-Geo-Lon", "-74.0")
	r.Header.Set(ClientHintsHeader, `{"platform":"Win32","fonts":["Arial","Helvetica"],"touch":false}`)

	req := ExtractRequest(r)
	if !req.HasGeo || req.Geo.Lat != 40.71 || req.Geo.Lon != -74.0 {
		t.Fatalf("expected geo extracted from headers, got %+v", req.Geo)
	}
	if req.Client.Platform != "Win32" {
		t.Fatalf("expected client platform extracted, got %q", req.Client.Platform)
	}
	if len(req.Client.Fonts) != 2 || req.Client.Fonts[0] != "Arial" {
		t.Fatalf("expected fonts parsed from JSON hints, got %+v", req.Client.Fonts)
	}
	if !req.Client.TouchKnown || req.Client.Touch {
		t.Fatalf("expected touch known and false, got known=%v value=%v", req.Client.TouchKnown, req.Client.Touch)
	}
}

func TestMiddlewareAllowsLowRiskRequest(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	e := risk.New(s, risk.Config{})

	called := false
	h := Middleware(e)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/home", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if !called {
		t.Fatalf("expected low-risk request to reach the downstream handler")
	}
	if w.Header().Get("X-Risk-Score") == "" {
		t.Fatalf("expected X-Risk-Score header to be set")
	}
}

func TestMiddlewareBlocksBotUserAgent(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	e := risk.New(s, risk.Config{})

	called := false
	h := Middleware(e)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	r.Header.Set("User-Agent", "python-requests/2.31")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if called {
		t.Fatalf("expected bot user-agent to be blocked before reaching downstream handler")
	}
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a blocked decision, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "reason") {
		t.Fatalf("expected a reason field in the block body, got %s", w.Body.String())
	}
}

func TestMiddlewareChallengeHonorsResponseHeader(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()
	// Stretch the challenge band (low..medium) over nearly every score so
	// this cold-start Chrome request (fused score 0.175, from its
	// fingerprint contribution alone) produces a "challenge" action to bypass.
	e := risk.New(s, risk.Config{
		Thresholds: risk.Thresholds{Low: 0.01, Medium: 0.98, High: 0.99, Critical: 0.999},
	})

	called := false
	h := Middleware(e)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/resource", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")
	r.Header.Set(ChallengeResponseHeader, "solved")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if !called {
		t.Fatalf("expected the challenge-response bypass header to let the request through, got status %d", w.Code)
	}
}
