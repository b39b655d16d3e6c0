// Command riskguard runs the demo HTTP server: an /evaluate endpoint
// guarded by the risk engine, plus /health, /metrics, and /admin. Uses an
// env-driven config path, zerolog setup, and graceful SIGINT/SIGTERM drain.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/riskguard-io/riskguard/internal/anomaly"
	"github.com/riskguard-io/riskguard/internal/httpserver"
	"github.com/riskguard-io/riskguard/internal/ratelimiter"
	"github.com/riskguard-io/riskguard/internal/risk"
	"github.com/riskguard-io/riskguard/internal/store"
	"github.com/riskguard-io/riskguard/pkg/config"
	"github.com/riskguard-io/riskguard/pkg/metrics"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfgPath := getenv("RISKGUARD_CONFIG", "")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", cfgPath).Msg("load config")
	}

	switch strings.ToLower(firstNonEmpty(cfg.Logging.Level, getenv("LOG_LEVEL", "info"))) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	s, closeStore := buildStore(cfg)
	defer closeStore()

	engine := risk.New(s, risk.Config{
		Thresholds: risk.Thresholds{
			Low: cfg.Thresholds.Low, Medium: cfg.Thresholds.Medium,
			High: cfg.Thresholds.High, Critical: cfg.Thresholds.Critical,
		},
		Weights: risk.Weights{
			Behavior: cfg.Weights.Behavior, Patterns: cfg.Weights.Patterns,
			RateLimit: cfg.Weights.RateLimit, Fingerprint: cfg.Weights.Fingerprint,
			Reputation: cfg.Weights.Reputation, Session: cfg.Weights.Session,
		},
		RateLimiter: ratelimiter.Config{
			DefaultLimit:    cfg.RateLimit.DefaultLimit,
			WindowSize:      cfg.RateLimit.Window(),
			BurstMultiplier: cfg.RateLimit.BurstMultiplier,
			PenaltyDecay:    cfg.RateLimit.PenaltyDecay,
			Adaptive:        cfg.RateLimit.Adaptive,
		},
		ActionDurations: risk.ActionDurations{
			Block: cfg.ActionDurations.Block(),
			Ban:   cfg.ActionDurations.Ban(),
		},
		ThrottleFactor: cfg.ThrottleFactor,
		Hooks:          buildHooks(cfg),
	})

	router := httpserver.NewRouter(httpserver.Deps{
		Engine:        engine,
		OfflineForest: anomaly.NewIsolationForest(0),
	})

	metrics.Register(prometheus.DefaultRegisterer)
	registerMetrics(s)

	addr := firstNonEmpty(cfg.Server.Addr, getenv("RISKGUARD_HTTP_ADDR", ":8080"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", addr).Str("store_backend", cfg.Store.Backend).Msg("riskguard starting")

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown requested; draining")

	httpserver.EnableDrainFlag(true)
	httpserver.SetDraining(true)

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown did not complete in time; forcing close")
		_ = srv.Close()
	} else {
		log.Info().Msg("http server shut down cleanly")
	}

	log.Info().Msg("riskguard exited")
}

// buildStore constructs the in-memory store unconditionally (it backs
// Engine's own key space regardless of backend choice) and, when
// store.backend is "redis", also stands up a RedisStore and periodically
// exports the in-memory store into it. This is a networked-backend
// substitution point that never makes Engine itself depend on Redis.
func buildStore(cfg *config.Config) (*store.Store, func()) {
	s := store.New(store.Options{Capacity: cfg.Store.Capacity})

	if strings.ToLower(cfg.Store.Backend) != "redis" {
		return s, s.Close
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.Redis.Addr,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not reachable; continuing on in-memory store only")
	} else {
		log.Info().Msg("redis reachable; periodic snapshot export enabled")
	}

	redisStore := store.NewRedisStore(rdb, cfg.Store.Redis.Prefix)
	stop := make(chan struct{})
	go snapshotLoop(s, redisStore, stop)

	return s, func() {
		close(stop)
		s.Close()
		_ = rdb.Close()
	}
}

func snapshotLoop(s *store.Store, rs *store.RedisStore, stop chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			data, err := s.Export()
			if err != nil {
				log.Warn().Err(err).Msg("store export failed")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := rs.Set(ctx, "snapshot", string(data), 0); err != nil {
				log.Warn().Err(err).Msg("redis snapshot write failed")
			}
			cancel()
		}
	}
}

func buildHooks(cfg *config.Config) risk.Hooks {
	var h risk.Hooks
	if cfg.Hooks.LogHighRisk {
		h.OnHighRisk = func(d risk.Decision) {
			log.Warn().Str("identity", d.Identity).Float64("score", d.RiskScore).Str("level", d.RiskLevel).Msg("high_risk_decision")
		}
	}
	if cfg.Hooks.LogBlock {
		h.OnBlock = func(d risk.Decision) {
			log.Warn().Str("identity", d.Identity).Str("action", d.Action.Type).Str("reason", d.Action.Reason).Msg("blocked")
		}
	}
	if cfg.Hooks.LogAnomaly {
		h.OnAnomaly = func(d risk.Decision) {
			log.Info().Str("identity", d.Identity).Str("attack_type", d.AttackType).Msg("attack_detected")
		}
	}
	return h
}

func registerMetrics(s *store.Store) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.ObserveStore(s)
		}
	}()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
