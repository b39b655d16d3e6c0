// Package fingerprint derives a stable device/client fingerprint from
// request headers and client-declared attributes, scores it for anomaly and
// bot likelihood, and tracks per-identity fingerprint stability over time.
package fingerprint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/riskguard-io/riskguard/internal/store"
)

// ClientHints carries the client-declared attributes the HTTP adapter
// extracts from the request, all optional.
type ClientHints struct {
	Timezone         string
	ScreenWidth      int
	ScreenHeight     int
	Platform         string
	Canvas           string // opaque canvas-rendering hash, empty if not collected
	WebGL            string // opaque WebGL-rendering hash
	Plugins          []string
	Fonts            []string
	AudioHash        string
	ColorDepth       int
	Touch            bool
	TouchKnown       bool
	CookiesEnabled   bool
	CookiesKnown     bool
	Connection       string
	AcceptLanguage   []string // primary language codes, e.g. ["en", "fr"]
	AcceptEncoding   string
}

// Request is the subset of the adapter's inbound record the fingerprinter
// needs.
type Request struct {
	UserAgent string
	IP        string
	Client    ClientHints
}

// Fingerprint is the derived result for one request.
type Fingerprint struct {
	Hash       uint32
	UA         UAInfo
	IPClass    IPClass
	Anomaly    float64
	Bot        float64
	IsBot      bool
	Confidence float64
}

const fnvOffset32 = 0x811c9dc5
const fnvPrime32 = 16777619

func fnv1a(s string) uint32 {
	h := uint32(fnvOffset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// Generate computes the deterministic fingerprint for req.
func Generate(req Request) Fingerprint {
	ua := ParseUserAgent(req.UserAgent)
	ipClass := ClassifyIP(req.IP)

	components := []string{
		fmt.Sprintf("%x", fnv1a(req.UserAgent)),
		fmt.Sprintf("%x", fnv1a(IPPrefix3(req.IP))),
		fmt.Sprintf("%x", fnv1a(joinSorted(req.Client.AcceptLanguage))),
		req.Client.Timezone,
		fmt.Sprintf("%dx%d", req.Client.ScreenWidth, req.Client.ScreenHeight),
		req.Client.Platform,
		fmt.Sprintf("%x", fnv1a(req.Client.Canvas)),
		fmt.Sprintf("%x", fnv1a(req.Client.WebGL)),
		fmt.Sprintf("%x", fnv1a(joinSorted(req.Client.Plugins))),
		fmt.Sprintf("%x", fnv1a(joinSorted(req.Client.Fonts))),
	}
	hash := fnv1a(strings.Join(components, "|"))

	bot, isBot := BotScore(req, ua, ipClass)
	fp := Fingerprint{
		Hash:       hash,
		UA:         ua,
		IPClass:    ipClass,
		Anomaly:    AnomalyScore(req, ua, ipClass),
		Bot:        bot,
		IsBot:      isBot,
		Confidence: Confidence(req),
	}
	return fp
}

func joinSorted(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	cp := append([]string{}, xs...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

// AnomalyScore sums weighted indicators into [0,1].
func AnomalyScore(req Request, ua UAInfo, ipClass IPClass) float64 {
	var score float64
	if ua.IsBot {
		score += 0.8
	}
	if req.UserAgent == "" {
		score += 0.3
	}
	if ipClass == IPDatacenter {
		score += 0.4
	}
	if ua.Browser == "Chrome" && ua.MajorVersion > 0 && ua.MajorVersion < 70 {
		score += 0.2
	}
	if req.Client.Timezone == "" && req.Client.ScreenWidth == 0 && req.Client.ScreenHeight == 0 {
		score += 0.3
	}
	if req.Client.Canvas == "" && req.Client.WebGL == "" {
		score += 0.2
	}
	if req.Client.ScreenWidth > 3840 || (req.Client.ScreenWidth > 0 && req.Client.ScreenWidth < 320) {
		score += 0.15
	}
	if ua.Device == "mobile" && req.Client.TouchKnown && !req.Client.Touch {
		score += 0.25
	}
	if ua.Browser == "Chrome" && ua.OS == "Windows" && len(req.Client.Plugins) == 0 {
		score += 0.15
	}
	if req.Client.CookiesKnown && !req.Client.CookiesEnabled {
		score += 0.1
	}
	return clamp01(score)
}

// BotScore computes the weighted bot-likelihood sum.
// isBot reports whether score exceeds 0.7.
func BotScore(req Request, ua UAInfo, ipClass IPClass) (score float64, isBot bool) {
	if ua.IsBot {
		score += 0.9
	}
	if req.Client.noJS() {
		score += 0.7
	}
	if req.Client.phantomNavigator() {
		score += 0.6
	}
	if isHeadlessChrome(req.UserAgent) {
		score += 0.95
	}
	if isWebDriver(req.UserAgent) {
		score += 1.0
	}
	if ipClass == IPDatacenter {
		score += 0.3
	}
	score = clamp01(score)
	return score, score > 0.7
}

// noJS is a hook for a client-side JS-execution probe; request records that
// never ran JS (e.g. no client hints collected at all) are flagged.
func (c ClientHints) noJS() bool {
	return c.Timezone == "" && c.ScreenWidth == 0 && c.Canvas == "" && c.WebGL == "" && len(c.Plugins) == 0 && len(c.Fonts) == 0
}

// phantomNavigator approximates PhantomJS/old-headless navigator fingerprints:
// platform declared but no plugin list and no canvas, a combination real
// browsers rarely produce.
func (c ClientHints) phantomNavigator() bool {
	return c.Platform != "" && len(c.Plugins) == 0 && c.Canvas == ""
}

func isHeadlessChrome(ua string) bool {
	return strings.Contains(strings.ToLower(ua), "headlesschrome")
}

func isWebDriver(ua string) bool {
	return strings.Contains(strings.ToLower(ua), "webdriver")
}

// weight vector for Confidence.
var confidenceWeights = map[string]float64{
	"userAgent":      0.15,
	"ip":             0.20,
	"timezone":       0.10,
	"screen":         0.10,
	"acceptLanguage": 0.10,
	"acceptEncoding": 0.05,
	"connection":     0.05,
	"colorDepth":     0.05,
	"platform":       0.05,
	"plugins":        0.05,
	"canvas":         0.05,
	"webgl":          0.05,
}

// Confidence returns the weighted fraction of present components, plus
// bonuses for higher-signal collectors, clamped to [0,1].
func Confidence(req Request) float64 {
	var total float64
	present := func(name string, ok bool) {
		if ok {
			total += confidenceWeights[name]
		}
	}
	present("userAgent", req.UserAgent != "")
	present("ip", req.IP != "")
	present("timezone", req.Client.Timezone != "")
	present("screen", req.Client.ScreenWidth > 0 && req.Client.ScreenHeight > 0)
	present("acceptLanguage", len(req.Client.AcceptLanguage) > 0)
	present("acceptEncoding", req.Client.AcceptEncoding != "")
	present("connection", req.Client.Connection != "")
	present("colorDepth", req.Client.ColorDepth > 0)
	present("platform", req.Client.Platform != "")
	present("plugins", len(req.Client.Plugins) > 0)
	present("canvas", req.Client.Canvas != "")
	present("webgl", req.Client.WebGL != "")

	if req.Client.Canvas != "" {
		total += 0.05
	}
	if req.Client.WebGL != "" {
		total += 0.05
	}
	if len(req.Client.Fonts) > 0 {
		total += 0.03
	}
	if req.Client.AudioHash != "" {
		total += 0.02
	}
	return clamp01(total)
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

// --- Stability tracking ---

const maxFingerprintHistory = 100
const stabilityWindow = 10
const stabilityDistinctThreshold = 3

type historyEntry struct {
	Hash      uint32
	Timestamp int64 // unix millis
}

func historyKey(identity string) string { return "fp:history:" + identity }

// Tracker records fingerprint history per identity and reports stability.
type Tracker struct {
	store *store.Store
	clock func() int64
}

func NewTracker(s *store.Store, clock func() int64) *Tracker {
	if clock == nil {
		clock = func() int64 { return 0 }
	}
	return &Tracker{store: s, clock: clock}
}

// Record appends the current fingerprint hash to identity's bounded history
// and returns whether it is stable: fewer than 3 distinct hashes among the
// last 10 samples.
func (t *Tracker) Record(identity string, hash uint32, nowMs int64) (stable bool) {
	t.store.Push(historyKey(identity), historyEntry{Hash: hash, Timestamp: nowMs}, maxFingerprintHistory)

	v, ok := t.store.Get(historyKey(identity))
	if !ok {
		return true
	}
	list, _ := v.([]any)
	start := 0
	if len(list) > stabilityWindow {
		start = len(list) - stabilityWindow
	}
	distinct := map[uint32]struct{}{}
	for _, item := range list[start:] {
		e, ok := item.(historyEntry)
		if !ok {
			continue
		}
		distinct[e.Hash] = struct{}{}
	}
	return len(distinct) < stabilityDistinctThreshold
}

// Reset purges identity's fingerprint history.
func (t *Tracker) Reset(identity string) {
	t.store.Delete(historyKey(identity))
}
