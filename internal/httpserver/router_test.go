package httpserver_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/riskguard-io/riskguard/internal/anomaly"
	"github.com/riskguard-io/riskguard/internal/httpserver"
	"github.com/riskguard-io/riskguard/internal/risk"
	"github.com/riskguard-io/riskguard/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	s := store.New(store.Options{SweepInterval: -1})
	t.Cleanup(s.Close)
	e := risk.New(s, risk.Config{})
	return httpserver.NewRouter(httpserver.Deps{Engine: e, OfflineForest: anomaly.NewIsolationForest(1)})
}

func TestHealthReportsOKWhenNotDraining(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestMetricsIsServed(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestEvaluateAllowsLowRiskRequest(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/evaluate", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Risk-Score") == "" {
		t.Fatalf("expected X-Risk-Score header on the evaluate response")
	}
}

func TestAdminResetReturnsNoContent(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/admin/reset/someuser", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("want 204, got %d", resp.StatusCode)
	}
}

func TestOfflineAnomalyScoresVectors(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	body := `{"vectors":[[0,0,0],[0,0,0],[0,0,0],[100,100,100]]}`
	resp, err := http.Post(ts.URL+"/admin/offline-anomaly", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	r := newTestRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}
