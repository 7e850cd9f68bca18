package api

import (
	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/cachewarmer"
	"github.com/dctx-team/routex/pkg/apierr"
)

// configView is the subset of Config safe to expose over the admin API —
// secrets (MasterPassword, EncryptionSalt, Redis.URL) are never included.
type configView struct {
	Port                int      `json:"port"`
	LogLevel            string   `json:"logLevel"`
	DataDir             string   `json:"dataDir"`
	Locale              string   `json:"locale"`
	CORSOrigins         []string `json:"corsOrigins"`
	LoadBalanceStrategy string   `json:"loadBalanceStrategy"`
	RateLimitRPM        int      `json:"rateLimitRpm"`
	RetryMaxRetries     int      `json:"retryMaxRetries"`
	CBErrorThreshold    int      `json:"circuitBreakerErrorThreshold"`
	CacheWarmOnStartup  bool     `json:"cacheWarmOnStartup"`
	CacheWarmIntervalMs int      `json:"cacheWarmIntervalMs"`
	TracerMaxSpans      int      `json:"tracerMaxSpans"`
	DashboardProtected  bool     `json:"dashboardProtected"`
}

// GetConfig handles GET /api/config.
func (d *Deps) GetConfig(ctx *fasthttp.RequestCtx) {
	c := d.Config
	apierr.WriteOK(ctx, configView{
		Port: c.Port, LogLevel: c.LogLevel, DataDir: c.DataDir, Locale: c.Locale,
		CORSOrigins: c.CORSOrigins, LoadBalanceStrategy: c.LoadBalanceStrategy,
		RateLimitRPM: c.RateLimit.RPMLimit, RetryMaxRetries: c.Retry.MaxRetries,
		CBErrorThreshold: c.CircuitBreaker.ErrorThreshold, CacheWarmOnStartup: c.CacheWarmer.WarmOnStartup,
		CacheWarmIntervalMs: c.CacheWarmer.IntervalMs, TracerMaxSpans: c.Tracer.MaxSpans,
		DashboardProtected: c.DashboardPassword != "",
	})
}

// GetLoggingLevel handles GET /api/logging/level.
func (d *Deps) GetLoggingLevel(ctx *fasthttp.RequestCtx) {
	apierr.WriteOK(ctx, map[string]string{"level": d.Config.LogLevel})
}

// DatabaseCacheStats handles GET /api/database/cache/stats.
func (d *Deps) DatabaseCacheStats(ctx *fasthttp.RequestCtx) {
	hits, misses := d.Store.CacheStats()
	apierr.WriteOK(ctx, map[string]int64{"hits": hits, "misses": misses})
}

type cacheInvalidateRequest struct {
	Target string `json:"target"`
}

// InvalidateCache handles POST /api/cache/invalidate, forcing an immediate
// CacheWarmer re-warm of the given target ("channels", "routing", or "").
func (d *Deps) InvalidateCache(ctx *fasthttp.RequestCtx) {
	var req cacheInvalidateRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	d.Warmer.InvalidateCache(ctx, cachewarmer.Target(req.Target))
	apierr.WriteOK(ctx, map[string]bool{"invalidated": true})
}
