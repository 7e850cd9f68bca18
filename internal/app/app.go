// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order mirrors the teacher's staged init (infra, then domain
// services, then the server): open the Store, build the ambient C2-C8
// subsystems, construct the C9 ProxyEngine, start the C10 CacheWarmer, then
// start the HTTP server last so nothing serves traffic against a half-wired
// App.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dctx-team/routex/internal/breaker"
	"github.com/dctx-team/routex/internal/cachewarmer"
	"github.com/dctx-team/routex/internal/config"
	"github.com/dctx-team/routex/internal/loadbalance"
	"github.com/dctx-team/routex/internal/metrics"
	"github.com/dctx-team/routex/internal/proxy"
	"github.com/dctx-team/routex/internal/ratelimit"
	"github.com/dctx-team/routex/internal/server"
	"github.com/dctx-team/routex/internal/smartrouter"
	"github.com/dctx-team/routex/internal/store"
	"github.com/dctx-team/routex/internal/tracer"
	"github.com/dctx-team/routex/internal/transform"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connection — nil when REDIS_URL is empty or the
	// connection check fails. The RPM limiter additionally needs
	// RATE_LIMIT_RPM > 0.
	rdb *redis.Client

	st      *store.Store
	met     *metrics.Registry
	tr      *tracer.Tracer
	br      *breaker.Breaker
	lb      *loadbalance.LoadBalancer
	router  *smartrouter.Router
	xforms  *transform.Manager
	engine  *proxy.Engine
	warmer  *cachewarmer.Warmer
	limiter *ratelimit.RPMLimiter
	srv     *server.Server
}

// New initialises all subsystems and returns a ready-to-run App. All
// resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"services", a.initServices},
		{"engine", a.initEngine},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and the cache warmer, and blocks until ctx is
// cancelled or an error occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting routex",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("load_balance_strategy", a.cfg.LoadBalanceStrategy),
		slog.String("data_dir", a.cfg.DataDir),
	)

	a.warmer.Start(ctx, a.cfg.CacheWarmer.WarmOnStartup)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.srv.Start(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times in sequence; it takes no lock, so calls must not overlap.
func (a *App) Close() {
	if a.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = a.srv.Shutdown(shutdownCtx)
		cancel()
		a.srv = nil
	}
	if a.warmer != nil {
		a.warmer.Close()
		a.warmer = nil
	}
	if a.engine != nil {
		a.engine.Close()
		a.engine = nil
	}
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.log.Error("store close error", slog.String("error", err.Error()))
		}
		a.st = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ─────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe
// logging, e.g. "redis://:secret@localhost:6379" -> "redis://***@localhost:6379".
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}

func dbPath(dataDir string) string {
	return filepath.Join(dataDir, "routex.db")
}
