// Package config loads dashsync settings from DASHSYNC_* environment
// variables and command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dm/dashsync/internal/model"
)

// Config holds every runtime setting. Flags bound with BindFlags override
// values read from the environment.
type Config struct {
	BaseURL         string        `env:"DASHSYNC_BASE_URL"`
	APIKey          string        `env:"DASHSYNC_API_KEY"`
	Insecure        bool          `env:"DASHSYNC_INSECURE"`
	RefreshInterval time.Duration `env:"DASHSYNC_REFRESH_INTERVAL" envDefault:"500s"`
	RequestTimeout  time.Duration `env:"DASHSYNC_REQUEST_TIMEOUT" envDefault:"10s"`
	Collections     []string      `env:"DASHSYNC_COLLECTIONS" envSeparator:","`
	// ScheduleDate (YYYY-MM-DD) limits the driver schedule to one day.
	ScheduleDate string `env:"DASHSYNC_SCHEDULE_DATE"`

	// CachePath is the SQLite cache file; ":memory:" keeps it in process.
	CachePath  string `env:"DASHSYNC_CACHE_PATH"`
	SurfaceDir string `env:"DASHSYNC_SURFACE_DIR"`

	LogLevel    string `env:"DASHSYNC_LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"DASHSYNC_LOG_FILE"`
	TraceStdout bool   `env:"DASHSYNC_TRACE_STDOUT"`
	Headless    bool   `env:"DASHSYNC_HEADLESS"`
}

// Load reads the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadFrom reads the given environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// BindFlags registers flags on fs that default to the current values of c
// and write into it.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BaseURL, "url", c.BaseURL, "backend base URL (DASHSYNC_BASE_URL)")
	fs.StringVar(&c.APIKey, "api-key", c.APIKey, "backend API key (DASHSYNC_API_KEY)")
	fs.BoolVar(&c.Insecure, "insecure", c.Insecure, "skip TLS certificate verification")
	fs.DurationVar(&c.RefreshInterval, "interval", c.RefreshInterval, "sync interval (e.g. 500s, 5m)")
	fs.DurationVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "per-request timeout")
	fs.StringVar(&c.ScheduleDate, "schedule-date", c.ScheduleDate, "sync the driver schedule of one day (YYYY-MM-DD)")
	fs.StringVar(&c.CachePath, "cache-path", c.CachePath, `snapshot cache file, or ":memory:"`)
	fs.StringVar(&c.SurfaceDir, "surface-dir", c.SurfaceDir, "write dashboard payloads into this directory")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn, or error")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "write logs to this file instead of stderr")
	fs.BoolVar(&c.TraceStdout, "trace-stdout", c.TraceStdout, "export trace spans to stdout")
	fs.BoolVar(&c.Headless, "headless", c.Headless, "run without the status monitor")
	fs.Func("collections", "comma-separated collections to sync (default all)", func(s string) error {
		c.Collections = splitList(s)
		return nil
	})
}

// Validate checks that the config can start a sync engine.
func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base URL is required (--url or DASHSYNC_BASE_URL)"))
	} else if u, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("unsupported scheme %q (must be http or https)", u.Scheme))
	} else if u.Hostname() == "" {
		errs = append(errs, fmt.Errorf("invalid base URL %q: host is required", c.BaseURL))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("API key is required (--api-key or DASHSYNC_API_KEY)"))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.ScheduleDate != "" {
		if _, err := time.Parse(time.DateOnly, c.ScheduleDate); err != nil {
			errs = append(errs, fmt.Errorf("invalid schedule date %q (want YYYY-MM-DD)", c.ScheduleDate))
		}
	}
	if _, err := c.ParsedCollections(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParsedCollections returns the configured collections, or all of them when
// none are set.
func (c Config) ParsedCollections() ([]model.Collection, error) {
	return model.ParseCollections(c.Collections)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return l, nil
}

// ResolvedCachePath returns CachePath, defaulting to dashsync/cache.db
// under the user cache directory.
func (c Config) ResolvedCachePath() (string, error) {
	if c.CachePath != "" {
		return c.CachePath, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache dir: %w", err)
	}
	return filepath.Join(dir, "dashsync", "cache.db"), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
