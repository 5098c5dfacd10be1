// Package config loads process configuration from the environment (with
// an optional .env file), the way the teacher's config package does:
// github.com/joho/godotenv.Load() followed by typed getEnv* helpers with
// defaults, ending in a Validate() pass.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/statarb/engine/internal/model"
)

// Config is the full ambient + domain configuration for the process. The
// Snapshot field is the mutable Configuration Snapshot (spec.md §3);
// everything else is fixed for the process lifetime.
type Config struct {
	UpstreamURL string
	ListenAddr  string

	TickBufferCapacity int
	FinalizedBarCap    int
	AlertCap           int
	AlertCooldown      time.Duration
	BroadcastCadence   time.Duration
	CorrelationWindow  int
	RollingWindow      int

	JWTSecret       string
	AdminPassphraseHash string

	Snapshot model.ConfigSnapshot
}

// Load reads .env (if present) then builds a Config from the environment,
// applying the documented defaults (spec.md §6) and validating the
// result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		UpstreamURL: getEnv("UPSTREAM_URL", "wss://fstream.binance.com/stream"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),

		TickBufferCapacity: getEnvAsInt("TICK_BUFFER_SIZE", 10000),
		FinalizedBarCap:    getEnvAsInt("FINALIZED_BAR_CAP", 1000),
		AlertCap:           getEnvAsInt("MAX_ALERTS", 100),
		AlertCooldown:      time.Duration(getEnvAsInt("ALERT_COOLDOWN_SECONDS", 60)) * time.Second,
		BroadcastCadence:   time.Duration(getEnvAsInt("BATCH_PUBLISH_INTERVAL_MS", 1000)) * time.Millisecond,
		CorrelationWindow:  getEnvAsInt("CORRELATION_WINDOW", 60),
		RollingWindow:      getEnvAsInt("ROLLING_WINDOW", 20),

		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		AdminPassphraseHash: getEnv("ADMIN_PASSPHRASE_HASH", ""),

		Snapshot: model.ConfigSnapshot{
			SelectedSymbols: getEnvAsSlice("DEFAULT_SYMBOLS", []string{"BTCUSDT", "ETHUSDT"}),
			Timeframe:       getEnv("TIMEFRAME", "1m"),
			WindowSize:      getEnvAsInt("WINDOW_SIZE", 20),
			RegressionKind:  model.RegressionKind(getEnv("REGRESSION_TYPE", "ols")),
			ZScoreThreshold: getEnvAsFloat("Z_SCORE_THRESHOLD", 2.0),
			IsLive:          getEnvAsBool("IS_LIVE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration is internally consistent.
func (c *Config) Validate() error {
	if c.TickBufferCapacity <= 0 {
		return fmt.Errorf("TICK_BUFFER_SIZE must be positive, got %d", c.TickBufferCapacity)
	}
	if c.AlertCap <= 0 {
		return fmt.Errorf("MAX_ALERTS must be positive, got %d", c.AlertCap)
	}
	if len(c.Snapshot.SelectedSymbols) == 0 {
		return fmt.Errorf("DEFAULT_SYMBOLS must not be empty")
	}
	if c.Snapshot.RegressionKind != model.RegressionOLS && c.Snapshot.RegressionKind != model.RegressionRobust {
		return fmt.Errorf("REGRESSION_TYPE must be %q or %q, got %q", model.RegressionOLS, model.RegressionRobust, c.Snapshot.RegressionKind)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return fallback
}
