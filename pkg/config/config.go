// Package config loads RiskGuard's policy document: a single YAML file
// read through github.com/knadh/koanf/v2 with the yaml parser and file
// provider, unmarshaled into a typed struct tagged with `yaml`.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Server configures the demo HTTP server.
type Server struct {
	Addr string `yaml:"addr"`
}

// Store selects the state-store backend. Backend "redis" requires Redis to
// be populated below; "memory" (the default) needs nothing further.
type Store struct {
	Backend  string `yaml:"backend"` // "memory" | "redis"
	Capacity int    `yaml:"capacity"`
	Redis    Redis  `yaml:"redis"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// Thresholds maps a fused risk score to a risk level.
type Thresholds struct {
	Low      float64 `yaml:"low"`
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// Weights are the per-signal fusion weights.
type Weights struct {
	Behavior    float64 `yaml:"behavior"`
	Patterns    float64 `yaml:"patterns"`
	RateLimit   float64 `yaml:"rate_limit"`
	Fingerprint float64 `yaml:"fingerprint"`
	Reputation  float64 `yaml:"reputation"`
	Session     float64 `yaml:"session"`
}

// RateLimit mirrors internal/ratelimiter.Config's tunables.
type RateLimit struct {
	DefaultLimit    int64   `yaml:"default_limit"`
	WindowSeconds   int     `yaml:"window_seconds"`
	BurstMultiplier float64 `yaml:"burst_multiplier"`
	PenaltyDecay    float64 `yaml:"penalty_decay"`
	Adaptive        bool    `yaml:"adaptive"`
}

// ActionDurations controls how long a block or ban holds.
type ActionDurations struct {
	BlockSeconds int `yaml:"block_seconds"`
	BanSeconds   int `yaml:"ban_seconds"`
}

// Hooks toggles which side-effect hooks main.go wires into the engine.
// The hooks themselves (logging, alerting) are Go closures built in
// main.go; the config only says which ones to attach.
type Hooks struct {
	LogHighRisk bool `yaml:"log_high_risk"`
	LogBlock    bool `yaml:"log_block"`
	LogAnomaly  bool `yaml:"log_anomaly"`
}

// Logging holds the log level and access-log settings. main.go applies
// Level; AccessLog and AccessSample are parsed but not read anywhere: the
// access logger takes its settings from the ACCESS_LOG and
// ACCESS_LOG_SAMPLE env vars.
type Logging struct {
	Level         string `yaml:"level"`
	AccessLog     bool   `yaml:"access_log"`
	AccessSample  int    `yaml:"access_log_sample"`
}

type Config struct {
	Server          Server          `yaml:"server"`
	Store           Store           `yaml:"store"`
	Thresholds      Thresholds      `yaml:"thresholds"`
	Weights         Weights         `yaml:"weights"`
	RateLimit       RateLimit       `yaml:"rate_limit"`
	ActionDurations ActionDurations `yaml:"action_durations"`
	ThrottleFactor  float64         `yaml:"throttle_factor"`
	Hooks           Hooks           `yaml:"hooks"`
	Logging         Logging         `yaml:"logging"`
}

func (rl RateLimit) Window() time.Duration {
	if rl.WindowSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(rl.WindowSeconds) * time.Second
}

func (a ActionDurations) Block() time.Duration {
	if a.BlockSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(a.BlockSeconds) * time.Second
}

func (a ActionDurations) Ban() time.Duration {
	if a.BanSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.BanSeconds) * time.Second
}

// Load reads the policy document at path (falling back to the
// RISKGUARD_CONFIG env var, then "configs/policies.yaml").
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RISKGUARD_CONFIG")
	}
	if path == "" {
		path = "configs/policies.yaml"
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
