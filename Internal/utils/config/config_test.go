package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fazecat/benfordscan/Internal/types"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []int{5, 7, 10, 15, 30}, cfg.Benford.Windows)
	assert.Equal(t, 20.0, cfg.Benford.LongThreshold)
	assert.Equal(t, 15.0, cfg.Benford.ShortThreshold)
	assert.Equal(t, 5, cfg.Signals.ToleranceDays)
	assert.Equal(t, 10, cfg.Signals.MinGapDays)
	assert.Equal(t, []int{5, 10, 20, 30}, cfg.Outcome.Horizons)
	assert.InDelta(t, 0.0021, cfg.Backtest.RoundTripCost, 1e-12)
	assert.Equal(t, 30, cfg.Backtest.MaxHoldDays)
	assert.Equal(t, 4, cfg.Validation.GoCriteria)
	assert.Equal(t, 3, cfg.Validation.ConditionalMin)
	assert.Len(t, cfg.Profiles, 3)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"rsi band inverted", func(c *Config) { c.Signals.RSIMin, c.Signals.RSIMax = 80, 20 }},
		{"conditional above go", func(c *Config) { c.Validation.ConditionalMin = 5 }},
		{"empty horizons", func(c *Config) { c.Outcome.Horizons = nil }},
		{"long window not evaluated", func(c *Config) { c.Benford.Windows = []int{5, 7, 10} }},
		{"short window not evaluated", func(c *Config) { c.Benford.ShortWindows = []int{5, 20} }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"zero stop profile", func(c *Config) {
			c.Profiles["broken"] = types.ParameterSet{TakeProfitPct: 0.2}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
environment: test
benford:
  long_threshold: 25
signals:
  min_gap_days: 7
profiles:
  tight:
    take_profit_pct: 0.12
    stop_loss_pct: 0.06
    cooldown_days: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("BENFORD_ROUND_TRIP_COST", "0.003")
	t.Setenv("BENFORD_WINDOWS", "5,7,10,30")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("BENFORD_API_KEY", "k3y")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 25.0, cfg.Benford.LongThreshold)
	assert.Equal(t, 15.0, cfg.Benford.ShortThreshold, "unset keys keep their defaults")
	assert.Equal(t, 7, cfg.Signals.MinGapDays)
	assert.InDelta(t, 0.003, cfg.Backtest.RoundTripCost, 1e-12)
	assert.Equal(t, []int{5, 7, 10, 30}, cfg.Benford.Windows)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "cache:6379", cfg.Cache.Addr)
	assert.Equal(t, "s3cret", cfg.API.JWTSecret)
	assert.Equal(t, "k3y", cfg.API.APIKey)
	assert.Equal(t, 10, cfg.Grid.TopInstruments)

	require.NotNil(t, cfg.GetProfile("tight"))
	assert.Equal(t, 2, cfg.GetProfile("tight").CooldownDays)
	assert.NotNil(t, cfg.GetProfile("default"), "file profiles are merged into the built-in set")
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Run("env windows drop the long window", func(t *testing.T) {
		t.Setenv("BENFORD_WINDOWS", "5,7")
		_, err := LoadConfig(filepath.Join("..", "..", "..", "config.example.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "long_window")
	})

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signals:\n  rsi_min: 90\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Grid.MinSampleSize = 12
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Grid.MinSampleSize)
	assert.Equal(t, cfg.Grid.TakeProfits, loaded.Grid.TakeProfits)
}
