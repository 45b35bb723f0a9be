package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/dm/dashsync/internal/bridge"
	"github.com/dm/dashsync/internal/cache"
	"github.com/dm/dashsync/internal/client"
	"github.com/dm/dashsync/internal/config"
	"github.com/dm/dashsync/internal/dashboard"
	"github.com/dm/dashsync/internal/engine"
	"github.com/dm/dashsync/internal/lifecycle"
	"github.com/dm/dashsync/internal/model"
	"github.com/dm/dashsync/internal/telemetry"
	"github.com/dm/dashsync/internal/tui"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 5 * time.Second

// parseArgs applies command-line flags on top of base and validates the result.
func parseArgs(args []string, base config.Config, usageOut io.Writer) (config.Config, error) {
	cfg := base
	fs := flag.NewFlagSet("dashsync", flag.ContinueOnError)
	fs.SetOutput(usageOut)
	cfg.BindFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(usageOut, "usage: dashsync [flags]\n\n")
		fmt.Fprintf(usageOut, "settings are read from DASHSYNC_* variables; flags override them.\n\n")
		fmt.Fprintf(usageOut, "examples:\n")
		fmt.Fprintf(usageOut, "  dashsync --url https://project.example.co --api-key $KEY\n")
		fmt.Fprintf(usageOut, "  dashsync --headless --surface-dir ./surfaces --interval 5m\n")
		fmt.Fprintf(usageOut, "  dashsync --collections chameleon_inventory,driver_schedule\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if fs.NArg() > 0 {
		return config.Config{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	base, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := parseArgs(os.Args[1:], base, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logOut, closeLog, err := openLogOutput(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	log, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "dashsync",
		ServiceVersion: version,
		Stdout:         cfg.TraceStdout,
		Writer:         logOut,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", "err", err)
		}
	}()

	cols, err := cfg.ParsedCollections()
	if err != nil {
		return err
	}

	c, err := client.NewDefaultClient(client.ClientConfig{
		BaseURL:            cfg.BaseURL,
		APIKey:             cfg.APIKey,
		InsecureSkipVerify: cfg.Insecure,
		RequestTimeout:     cfg.RequestTimeout,
		Queries:            queryOverrides(cfg),
		Logger:             log,
	})
	if err != nil {
		return err
	}

	store, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	eng := engine.New(c, store, engine.Options{
		Interval:    cfg.RefreshInterval,
		Collections: cols,
		Logger:      log,
		Tracer:      otel.Tracer("github.com/dm/dashsync"),
	})

	br := bridge.New(log)
	if err := attachSurfaces(ctx, br, cfg.SurfaceDir); err != nil {
		return err
	}
	ctrl := lifecycle.NewController(eng, br, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// Subscribe before Run so the startup cache load reaches the bridge.
	bridgeSub := eng.Subscribe()
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return ignoreCanceled(br.Run(gctx, bridgeSub.Updates())) })

	log.Info("dashsync starting",
		"version", version,
		"url", c.BaseURL(),
		"interval", cfg.RefreshInterval,
		"collections", len(cols),
		"surfaces", len(br.Surfaces()),
		"cache_written", cacheWritten(gctx, store, log),
		"headless", cfg.Headless,
	)
	checkConnectivity(gctx, c, log)

	if err := ctrl.BecameActive(gctx); err != nil {
		cancel()
		return errors.Join(err, g.Wait())
	}

	if cfg.Headless {
		sigs := make(chan os.Signal, 1)
		notifyLifecycle(sigs)
		defer signal.Stop(sigs)
		g.Go(func() error { return ignoreCanceled(handleSignals(gctx, ctrl, sigs, log)) })
	} else {
		monitorSub := eng.Subscribe()
		p := tea.NewProgram(tui.NewApp(eng, ctrl, monitorSub.Updates()),
			tea.WithAltScreen(),
			tea.WithContext(gctx),
		)
		g.Go(func() error {
			defer cancel()
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("status monitor: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info("dashsync stopped")
	return err
}

// openLogOutput returns the log destination. The status monitor owns the
// terminal, so without a log file its logs are discarded.
func openLogOutput(cfg config.Config) (io.Writer, func(), error) {
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}
	if cfg.Headless {
		return os.Stderr, func() {}, nil
	}
	return io.Discard, func() {}, nil
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// openCache opens the SQLite snapshot cache, creating its directory.
func openCache(cfg config.Config) (*cache.SQLiteStore, error) {
	path, err := cfg.ResolvedCachePath()
	if err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return cache.Open(path)
}

// attachSurfaces attaches one directory surface per data-driven dashboard.
// An empty dir attaches nothing.
func attachSurfaces(ctx context.Context, br *bridge.Bridge, dir string) error {
	if dir == "" {
		return nil
	}
	for _, d := range dashboard.DataDashboards() {
		s, err := bridge.NewDirSurface(dir, d.SurfaceID(), d.Uses...)
		if err != nil {
			return fmt.Errorf("surface %s: %w", d.Name, err)
		}
		if err := br.Attach(ctx, s, true); err != nil {
			return err
		}
	}
	return nil
}

// activator is the lifecycle surface driven by process signals.
type activator interface {
	BecameActive(ctx context.Context) error
	WillResignActive(ctx context.Context) error
}

// handleSignals maps background/foreground signals onto lifecycle
// transitions until ctx is done.
func handleSignals(ctx context.Context, a activator, sigs <-chan os.Signal, log *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-sigs:
			var err error
			switch sig {
			case backgroundSignal:
				err = a.WillResignActive(ctx)
			case foregroundSignal:
				err = a.BecameActive(ctx)
			default:
				continue
			}
			if err != nil {
				log.Warn("lifecycle transition failed", "signal", sig, "err", err)
			}
		}
	}
}

// queryOverrides returns the per-collection queries implied by cfg.
func queryOverrides(cfg config.Config) map[model.Collection]client.Query {
	if cfg.ScheduleDate == "" {
		return nil
	}
	return map[model.Collection]client.Query{
		model.CollectionDriverSchedule: client.DriverScheduleFor(cfg.ScheduleDate),
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// checkConnectivity pings the backend once. A failure only warns: the
// engine keeps serving the cached snapshot and retries every cycle.
func checkConnectivity(ctx context.Context, p pinger, log *slog.Logger) bool {
	if err := p.Ping(ctx); err != nil {
		log.Warn("backend unreachable at startup", "err", err, "retryable", client.IsRetryable(err))
		return false
	}
	log.Info("backend reachable")
	return true
}

type cacheAger interface {
	UpdatedAt(ctx context.Context) (time.Time, bool, error)
}

// cacheWritten describes when the cached snapshot was last written.
func cacheWritten(ctx context.Context, s cacheAger, log *slog.Logger) string {
	at, ok, err := s.UpdatedAt(ctx)
	if err != nil {
		log.Warn("read cache age", "err", err)
		return "unknown"
	}
	if !ok {
		return "never"
	}
	return at.UTC().Format(time.RFC3339)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
