package config

import (
	"flag"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dm/dashsync/internal/model"
)

func validEnv() map[string]string {
	return map[string]string{
		"DASHSYNC_BASE_URL": "https://example.supabase.co",
		"DASHSYNC_API_KEY":  "anon",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(validEnv())
	require.NoError(t, err)
	assert.Equal(t, 500*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Headless)
	require.NoError(t, cfg.Validate())

	cols, err := cfg.ParsedCollections()
	require.NoError(t, err)
	assert.Equal(t, model.Collections(), cols)
}

func TestLoadFrom_Values(t *testing.T) {
	e := validEnv()
	e["DASHSYNC_REFRESH_INTERVAL"] = "5m"
	e["DASHSYNC_COLLECTIONS"] = "concrete_demand,driver_schedule"
	e["DASHSYNC_LOG_LEVEL"] = "debug"
	e["DASHSYNC_HEADLESS"] = "true"
	e["DASHSYNC_CACHE_PATH"] = ":memory:"

	cfg, err := LoadFrom(e)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	assert.True(t, cfg.Headless)

	cols, err := cfg.ParsedCollections()
	require.NoError(t, err)
	assert.Equal(t, []model.Collection{model.CollectionConcreteDemand, model.CollectionDriverSchedule}, cols)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	p, err := cfg.ResolvedCachePath()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", p)
}

func TestLoadFrom_BadDuration(t *testing.T) {
	e := validEnv()
	e["DASHSYNC_REFRESH_INTERVAL"] = "soon"
	_, err := LoadFrom(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := LoadFrom(validEnv())
	require.NoError(t, err)

	fs := flag.NewFlagSet("dashsync", flag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--interval", "30s",
		"--collections", " powder_demand , admix_inventory,",
		"--headless",
	}))

	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, []string{"powder_demand", "admix_inventory"}, cfg.Collections)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "https://example.supabase.co", cfg.BaseURL, "unset flags keep env values")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.BaseURL = "" }, "base URL is required"},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://host" }, "unsupported scheme"},
		{"no host", func(c *Config) { c.BaseURL = "http://:8080" }, "host is required"},
		{"missing key", func(c *Config) { c.APIKey = "" }, "API key is required"},
		{"zero interval", func(c *Config) { c.RefreshInterval = 0 }, "interval must be positive"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "timeout must be positive"},
		{"unknown collection", func(c *Config) { c.Collections = []string{"bogus"} }, "bogus"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"bad schedule date", func(c *Config) { c.ScheduleDate = "14/10/2025" }, "invalid schedule date"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFrom(validEnv())
			require.NoError(t, err)
			tc.mutate(&cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestResolvedCachePath_Default(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	p, err := Config{}.ResolvedCachePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("dashsync", "cache.db"), filepath.Join(filepath.Base(filepath.Dir(p)), filepath.Base(p)))
}

func TestScheduleDateFlag(t *testing.T) {
	cfg, err := LoadFrom(validEnv())
	require.NoError(t, err)
	fs := flag.NewFlagSet("dashsync", flag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--schedule-date", "2025-10-14"}))
	assert.Equal(t, "2025-10-14", cfg.ScheduleDate)
	assert.NoError(t, cfg.Validate())
}
