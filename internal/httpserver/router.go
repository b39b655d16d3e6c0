// Package httpserver assembles the demo HTTP server's router: the
// /evaluate entrypoint behind the risk middleware, plus the local
// /health, /metrics, and /admin endpoints.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riskguard-io/riskguard/internal/anomaly"
	"github.com/riskguard-io/riskguard/internal/httpadapter"
	"github.com/riskguard-io/riskguard/internal/risk"
)

// Deps wires the router to the pieces main.go constructs.
type Deps struct {
	Engine *risk.Engine
	// OfflineForest, if non-nil, backs the debug endpoint that scores
	// arbitrary feature vectors with the unwired isolation-forest analysis.
	OfflineForest *anomaly.IsolationForest
}

// NewRouter builds the Chi router serving /evaluate behind the risk
// middleware, local health/metrics endpoints, and admin reset.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(httpadapter.AccessLoggerFromEnv())

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if IsDraining() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"draining"}` + "\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.With(httpadapter.Middleware(d.Engine)).Post("/evaluate", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"accepted"}`))
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Post("/reset/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if id == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			d.Engine.ResetUser(id)
			w.WriteHeader(http.StatusNoContent)
		})

		if d.OfflineForest != nil {
			admin.Post("/offline-anomaly", handleOfflineAnomaly(d.OfflineForest))
		}
	})

	r.NotFound(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found"}`))
	}))

	return r
}

// handleOfflineAnomaly scores a caller-supplied batch of feature vectors
// with the isolation forest. It is never reachable from /evaluate; this
// analysis stays debug-only until it earns a place in the live decision
// path.
func handleOfflineAnomaly(forest *anomaly.IsolationForest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vectors [][]float64 `json:"vectors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_body"}`))
			return
		}
		scores := forest.Score(body.Vectors)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"scores": scores})
	}
}
