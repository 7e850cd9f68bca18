package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dctx-team/routex/internal/api"
	"github.com/dctx-team/routex/internal/breaker"
	"github.com/dctx-team/routex/internal/cachewarmer"
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

// initInfra opens the data directory, the Store and (optionally) Redis.
func (a *App) initInfra(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", a.cfg.DataDir, err)
	}

	st, err := store.Open(store.Options{Path: dbPath(a.cfg.DataDir)}, a.log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.st = st

	if a.cfg.Redis.URL != "" {
		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			a.log.Warn("redis unavailable, continuing without it",
				slog.String("url", redactURL(a.cfg.Redis.URL)),
				slog.String("error", err.Error()),
			)
		} else {
			a.rdb = rdb
		}
	}

	return nil
}

// initServices builds the ambient C2-C8 subsystems (metrics, tracer, circuit
// breaker, load balancer, smart router, transformer pipeline, rate limiter).
func (a *App) initServices(ctx context.Context) error {
	a.met = metrics.New()
	a.tr = tracer.New(a.cfg.Tracer.MaxSpans, a.log)
	a.br = breaker.New(breaker.Config{
		ErrorThreshold: a.cfg.CircuitBreaker.ErrorThreshold,
		ResetTimeout:   a.cfg.CircuitBreaker.ResetTimeout,
	})
	a.lb = loadbalance.New(loadbalance.Strategy(a.cfg.LoadBalanceStrategy))

	a.router = smartrouter.New()
	rules, err := a.st.ListEnabledRoutingRules(ctx)
	if err != nil {
		return fmt.Errorf("load routing rules: %w", err)
	}
	a.router.Reload(rules)

	a.xforms = transform.NewManager(a.log)
	a.xforms.Register(transform.NewAnthropicTransformer())
	a.xforms.Register(transform.NewOpenAITransformer())
	a.xforms.Register(transform.NewGeminiTransformer())
	a.xforms.Register(transform.NewMaxTokenTransformer())
	a.xforms.Register(transform.NewSamplingTransformer())
	a.xforms.Register(transform.NewCleanCacheTransformer())

	if a.rdb != nil && a.cfg.RateLimit.RPMLimit > 0 {
		a.limiter = ratelimit.NewRPMLimiter(a.rdb, a.cfg.RateLimit.RPMLimit)
	}

	return nil
}

// initEngine builds the C9 ProxyEngine and the C10 CacheWarmer that shares
// its LoadBalancer and Store.
func (a *App) initEngine(ctx context.Context) error {
	a.engine = proxy.NewEngine(a.st, a.met, a.tr, a.br, a.lb, a.router, a.xforms, a.log)
	a.engine.RetryCfg.MaxRetries = a.cfg.Retry.MaxRetries
	a.engine.RetryCfg.BaseDelay = a.cfg.Retry.BaseDelay
	a.engine.RetryCfg.MaxDelay = a.cfg.Retry.MaxDelay
	a.engine.RetryCfg.ExponentialBase = a.cfg.Retry.ExponentialBase

	interval := a.cfg.CacheWarmer.IntervalMs
	if interval <= 0 {
		interval = 5 * 60 * 1000
	}
	a.warmer = cachewarmer.New(a.st, a.lb, a.met, a.log, time.Duration(interval)*time.Millisecond)

	return nil
}

// initServer builds the Deps bundle and the HTTP server on top of it.
func (a *App) initServer(ctx context.Context) error {
	deps := api.NewDeps(a.st, a.met, a.tr, a.br, a.lb, a.router, a.xforms, a.engine, a.warmer,
		a.limiter, a.cfg, a.log, a.version)
	a.srv = server.New(deps)
	return nil
}
