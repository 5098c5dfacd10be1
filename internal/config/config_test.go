package config

import (
	"os"
	"testing"

	"github.com/statarb/engine/internal/model"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		orig, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, orig)
			}
		})
	}
}

func TestLoadAppliesDocumentedDefaults(t *testing.T) {
	clearEnv(t, "TICK_BUFFER_SIZE", "MAX_ALERTS", "DEFAULT_SYMBOLS", "REGRESSION_TYPE", "Z_SCORE_THRESHOLD", "WINDOW_SIZE", "TIMEFRAME", "IS_LIVE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TickBufferCapacity != 10000 {
		t.Fatalf("TickBufferCapacity = %d, want 10000", cfg.TickBufferCapacity)
	}
	if cfg.AlertCap != 100 {
		t.Fatalf("AlertCap = %d, want 100", cfg.AlertCap)
	}
	if len(cfg.Snapshot.SelectedSymbols) != 2 || cfg.Snapshot.SelectedSymbols[0] != "BTCUSDT" {
		t.Fatalf("SelectedSymbols = %v, want [BTCUSDT ETHUSDT]", cfg.Snapshot.SelectedSymbols)
	}
	if cfg.Snapshot.RegressionKind != model.RegressionOLS {
		t.Fatalf("RegressionKind = %v, want ols", cfg.Snapshot.RegressionKind)
	}
	if cfg.Snapshot.ZScoreThreshold != 2.0 {
		t.Fatalf("ZScoreThreshold = %v, want 2.0", cfg.Snapshot.ZScoreThreshold)
	}
	if !cfg.Snapshot.IsLive {
		t.Fatal("expected IsLive default to be true")
	}
}

func TestValidateRejectsNonPositiveBufferCapacity(t *testing.T) {
	cfg := &Config{
		TickBufferCapacity: 0,
		AlertCap:           1,
		Snapshot: model.ConfigSnapshot{
			SelectedSymbols: []string{"BTCUSDT"},
			RegressionKind:  model.RegressionOLS,
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a non-positive tick buffer capacity")
	}
}

func TestValidateRejectsEmptySymbols(t *testing.T) {
	cfg := &Config{
		TickBufferCapacity: 1,
		AlertCap:           1,
		Snapshot: model.ConfigSnapshot{
			SelectedSymbols: nil,
			RegressionKind:  model.RegressionOLS,
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for empty selected symbols")
	}
}

func TestValidateRejectsUnknownRegressionKind(t *testing.T) {
	cfg := &Config{
		TickBufferCapacity: 1,
		AlertCap:           1,
		Snapshot: model.ConfigSnapshot{
			SelectedSymbols: []string{"BTCUSDT"},
			RegressionKind:  model.RegressionKind("garbage"),
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown regression kind")
	}
}

func TestGetEnvAsSliceTrimsWhitespace(t *testing.T) {
	os.Setenv("TEST_SYMS", "BTCUSDT, ETHUSDT , SOLUSDT")
	defer os.Unsetenv("TEST_SYMS")

	got := getEnvAsSlice("TEST_SYMS", nil)
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
