// Package httpadapter is the thin net/http integration layer: it builds a
// risk.Request from an inbound *http.Request and maps a risk.Decision back
// onto the response, but holds none of the engine's own logic.
package httpadapter

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/riskguard-io/riskguard/internal/fingerprint"
	"github.com/riskguard-io/riskguard/internal/risk"
	"github.com/riskguard-io/riskguard/internal/session"
)

// ClientHintsHeader carries a JSON-encoded blob of client-declared
// attributes (screen, timezone, platform, canvas/webgl hashes, touch,
// cookies) the way a browser-side collector script would attach it.
const ClientHintsHeader = "X-Client-Hints"

// IdentityHeader is consulted after the userId query/header pair and before
// falling back to the caller's IP.
const IdentityHeader = "X-User-Id"

// ExtractRequest builds the engine's inbound contract from a net/http
// request, resolving identity through a preference chain:
// userId (query or header) -> X-User-Id -> caller IP -> "anonymous".
func ExtractRequest(r *http.Request) risk.Request {
	headers := lowercaseHeaders(r.Header)
	ip := clientIP(r)

	req := risk.Request{
		Identity:  resolveIdentity(r, headers, ip),
		SessionID: firstNonEmpty(r.URL.Query().Get("sessionId"), headers["x-session-id"]),
		IP:        ip,
		Method:    r.Method,
		Path:      r.URL.Path,
		Endpoint:  endpointOf(r),
		Action:    firstNonEmpty(r.URL.Query().Get("action"), headers["x-action"], r.Method+":"+r.URL.Path),
		Headers:   headers,
		UserAgent: r.UserAgent(),
		Client:    extractClientHints(r.Header.Get(ClientHintsHeader)),
	}

	if rt := headers["x-response-time-ms"]; rt != "" {
		if f, err := strconv.ParseFloat(rt, 64); err == nil {
			req.ResponseTime = f
		}
	}
	if cl := r.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			req.PayloadSize = n
		}
	}

	if lat, lon, ok := extractGeo(headers); ok {
		req.Geo = session.GeoHint{Lat: lat, Lon: lon}
		req.HasGeo = true
	}

	return req
}

func resolveIdentity(r *http.Request, headers map[string]string, ip string) string {
	if id := r.URL.Query().Get("userId"); id != "" {
		return id
	}
	if id := headers["userid"]; id != "" {
		return id
	}
	if id := headers[strings.ToLower(IdentityHeader)]; id != "" {
		return id
	}
	if ip != "" {
		return ip
	}
	return "anonymous"
}

// endpointOf is the bucketing key used by the rate limiter and the pattern
// detector's endpoint-hotspot check. Callers that mount chi routes with
// path parameters should prefer a static prefix so sibling resources bucket
// together; this layer takes whatever chi (or the raw mux) already resolved
// the path to.
func endpointOf(r *http.Request) string {
	return r.URL.Path
}

func lowercaseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		out[strings.ToLower(k)] = v[0]
	}
	return out
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func extractGeo(headers map[string]string) (lat, lon float64, ok bool) {
	latStr, lonStr := headers["x-geo-lat"], headers["x-geo-lon"]
	if latStr == "" || lonStr == "" {
		return 0, 0, false
	}
	la, errA := strconv.ParseFloat(latStr, 64)
	lo, errB := strconv.ParseFloat(lonStr, 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return la, lo, true
}

// wireClientHints is the JSON shape expected on the ClientHintsHeader.
// Pointer fields distinguish "not collected" from "collected as false",
// feeding fingerprint.ClientHints's own Known flags.
type wireClientHints struct {
	Timezone       string   `json:"timezone"`
	ScreenWidth    int      `json:"screenWidth"`
	ScreenHeight   int      `json:"screenHeight"`
	Platform       string   `json:"platform"`
	Canvas         string   `json:"canvas"`
	WebGL          string   `json:"webgl"`
	Plugins        []string `json:"plugins"`
	Fonts          []string `json:"fonts"`
	AudioHash      string   `json:"audioHash"`
	ColorDepth     int      `json:"colorDepth"`
	Touch          *bool    `json:"touch"`
	CookiesEnabled *bool    `json:"cookiesEnabled"`
	Connection     string   `json:"connection"`
	AcceptLanguage []string `json:"acceptLanguage"`
}

func extractClientHints(raw string) fingerprint.ClientHints {
	if raw == "" {
		return fingerprint.ClientHints{}
	}
	var w wireClientHints
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return fingerprint.ClientHints{}
	}
	hints := fingerprint.ClientHints{
		Timezone:       w.Timezone,
		ScreenWidth:    w.ScreenWidth,
		ScreenHeight:   w.ScreenHeight,
		Platform:       w.Platform,
		Canvas:         w.Canvas,
		WebGL:          w.WebGL,
		Plugins:        w.Plugins,
		Fonts:          w.Fonts,
		AudioHash:      w.AudioHash,
		ColorDepth:     w.ColorDepth,
		Connection:     w.Connection,
		AcceptLanguage: w.AcceptLanguage,
	}
	if w.Touch != nil {
		hints.TouchKnown = true
		hints.Touch = *w.Touch
	}
	if w.CookiesEnabled != nil {
		hints.CookiesKnown = true
		hints.CookiesEnabled = *w.CookiesEnabled
	}
	return hints
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
