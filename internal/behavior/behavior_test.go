package behavior

import (
	"testing"

	"github.com/riskguard-io/riskguard/internal/events"
	"github.com/riskguard-io/riskguard/internal/store"
)

func regularEvents(n int, intervalMs int64, action, endpoint string) []events.Event {
	out := make([]events.Event, n)
	for i := 0; i < n; i++ {
		out[i] = events.Event{
			TimestampMs:  int64(i) * intervalMs,
			Action:       action,
			Endpoint:     endpoint,
			ResponseTime: 50,
			PayloadSize:  100,
		}
	}
	return out
}

func TestScoreBelowMinSamplesIsUnreliable(t *testing.T) {
	evs := regularEvents(5, 1000, "click", "/a")
	res, _, ok := Score(evs, Profile{}, 5000)
	if ok {
		t.Fatalf("expected ok=false under MinSamples")
	}
	if res.Reliable {
		t.Fatalf("expected Reliable=false under MinSamples")
	}
	if res.Risk != 0.5 {
		t.Fatalf("expected degraded risk 0.5, got %v", res.Risk)
	}
}

func TestScoreHighlyRegularTrafficScoresHighAutomation(t *testing.T) {
	evs := regularEvents(50, 100, "click", "/a")
	res, fv, ok := Score(evs, Profile{}, evs[len(evs)-1].TimestampMs+100)
	if !ok || !res.Reliable {
		t.Fatalf("expected a reliable score")
	}
	if res.Automation < 0.5 {
		t.Fatalf("perfectly regular 100ms-aligned single-action traffic should score high automation, got %v", res.Automation)
	}
	if fv.EventCount != 50 {
		t.Fatalf("feature extraction mismatch: %v", fv.EventCount)
	}
}

func TestScoreDiverseHumanlikeTrafficScoresLowAutomation(t *testing.T) {
	evs := make([]events.Event, 0, 30)
	actions := []string{"view", "click", "scroll", "search", "purchase"}
	endpoints := []string{"/home", "/cart", "/product", "/search", "/checkout"}
	ts := int64(0)
	for i := 0; i < 30; i++ {
		ts += int64(300 + (i%7)*137)
		evs = append(evs, events.Event{
			TimestampMs:  ts,
			Action:       actions[i%len(actions)],
			Endpoint:     endpoints[(i*3)%len(endpoints)],
			ResponseTime: float64(40 + (i%5)*23),
			PayloadSize:  int64(80 + i*11),
		})
	}
	res, _, ok := Score(evs, Profile{}, ts+500)
	if !ok || !res.Reliable {
		t.Fatalf("expected a reliable score")
	}
	if res.Automation > 0.5 {
		t.Fatalf("diverse irregular traffic should score low automation, got %v", res.Automation)
	}
}

func TestVelocityScoreHighFor10msIntervals(t *testing.T) {
	intervals := []float64{10, 10, 10, 10, 10, 10, 10, 10}
	v := velocityScore(intervals)
	if v < 0.6 {
		t.Fatalf("10ms-apart events should register high velocity, got %v", v)
	}
}

func TestRhythmScoreHighForUniformIntervals(t *testing.T) {
	intervals := []float64{500, 500, 500, 500, 500, 500}
	r := rhythmScore(intervals)
	if r < 0.8 {
		t.Fatalf("zero-variance intervals should score near-max rhythm, got %v", r)
	}
}

func TestDiversityScoreLowForRepeatedSingleAction(t *testing.T) {
	evs := regularEvents(20, 1000, "click", "/a")
	fv, ok := Extract(evs, 20000)
	if !ok {
		t.Fatalf("expected extraction to succeed")
	}
	d := diversityScore(fv)
	if d > 0.3 {
		t.Fatalf("single repeated action/endpoint should score low diversity, got %v", d)
	}
}

func TestAnomalyScoreZeroWithoutBaseline(t *testing.T) {
	evs := regularEvents(15, 200, "click", "/a")
	fv, _ := Extract(evs, 3000)
	a := anomalyScore(fv, Profile{})
	if a != 0 {
		t.Fatalf("expected zero anomaly contribution with no baseline, got %v", a)
	}
}

func TestProfileBuildsBaselineAfterMinSamples(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()

	var p Profile
	for i := 0; i < MinBaselineSamples; i++ {
		evs := regularEvents(15, 250, "click", "/a")
		fv, ok := Extract(evs, int64(i+1)*1000)
		if !ok {
			t.Fatalf("expected extraction to succeed")
		}
		p = Update(s, "user1", fv)
	}
	if p.Baseline == nil {
		t.Fatalf("expected baseline to be populated after %d samples", MinBaselineSamples)
	}
	if p.Confidence <= 0 {
		t.Fatalf("expected nonzero confidence, got %v", p.Confidence)
	}
}

func TestProfileConfidenceRampsTowardOne(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()

	var p Profile
	for i := 0; i < 20; i++ {
		evs := regularEvents(15, 250, "click", "/a")
		fv, _ := Extract(evs, int64(i+1)*1000)
		p = Update(s, "user2", fv)
	}
	if p.Confidence != 1 {
		t.Fatalf("expected confidence to saturate at 1 after 20 samples, got %v", p.Confidence)
	}
}

func TestResetPurgesProfile(t *testing.T) {
	s := store.New(store.Options{SweepInterval: -1})
	defer s.Close()

	evs := regularEvents(15, 250, "click", "/a")
	fv, _ := Extract(evs, 1000)
	Update(s, "user3", fv)
	Reset(s, "user3")

	p := Load(s, "user3")
	if p.Baseline != nil || len(p.FeatureHistory) != 0 {
		t.Fatalf("expected empty profile after reset")
	}
}

func TestSessionAnomalyScoreFlagsTightBurstWindow(t *testing.T) {
	evs := make([]events.Event, 25)
	for i := range evs {
		evs[i] = events.Event{TimestampMs: int64(i) * 100, Action: "click", Endpoint: "/a"}
	}
	score := sessionAnomalyScore(evs)
	if score < 0.4 {
		t.Fatalf("25 events within 2.5s should trigger the burst-window factor, got %v", score)
	}
}

func TestBurstScoreZeroForNoBursts(t *testing.T) {
	intervals := []float64{1000, 1000, 1000, 1000}
	if b := burstScore(intervals); b != 0 {
		t.Fatalf("uniform non-bursty intervals should score zero burst, got %v", b)
	}
}
