// Package api implements Routex's admin JSON handlers (spec §6): channel
// and routing-rule CRUD, tee destinations, requests/analytics, metrics,
// tracing, i18n, config and OAuth. Handlers are methods on Deps so every
// file in this package shares one set of wired subsystems, the way the
// teacher's internal/proxy/gateway.go methods all hang off *Gateway.
package api

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/breaker"
	"github.com/dctx-team/routex/internal/cachewarmer"
	"github.com/dctx-team/routex/internal/config"
	"github.com/dctx-team/routex/internal/loadbalance"
	"github.com/dctx-team/routex/internal/metrics"
	"github.com/dctx-team/routex/internal/proxy"
	"github.com/dctx-team/routex/internal/ratelimit"
	"github.com/dctx-team/routex/internal/smartrouter"
	"github.com/dctx-team/routex/internal/store"
	"github.com/dctx-team/routex/internal/tracer"
	"github.com/dctx-team/routex/internal/transform"
	"github.com/dctx-team/routex/pkg/apierr"
)

// Deps holds every subsystem an admin handler or the proxy bridge needs.
type Deps struct {
	Store      *store.Store
	Metrics    *metrics.Registry
	Tracer     *tracer.Tracer
	Breaker    *breaker.Breaker
	LB         *loadbalance.LoadBalancer
	Router     *smartrouter.Router
	Transforms *transform.Manager
	Engine     *proxy.Engine
	Warmer     *cachewarmer.Warmer
	Limiter    *ratelimit.RPMLimiter
	Config     *config.Config
	Log        *slog.Logger
	Version    string

	locale string // current admin-API i18n locale (GET/PUT /api/i18n/locale)
}

// NewDeps builds a Deps, defaulting the i18n locale from cfg.
func NewDeps(
	st *store.Store,
	met *metrics.Registry,
	tr *tracer.Tracer,
	br *breaker.Breaker,
	lb *loadbalance.LoadBalancer,
	router *smartrouter.Router,
	xf *transform.Manager,
	engine *proxy.Engine,
	warmer *cachewarmer.Warmer,
	limiter *ratelimit.RPMLimiter,
	cfg *config.Config,
	log *slog.Logger,
	version string,
) *Deps {
	return &Deps{
		Store: st, Metrics: met, Tracer: tr, Breaker: br, LB: lb, Router: router,
		Transforms: xf, Engine: engine, Warmer: warmer, Limiter: limiter,
		Config: cfg, Log: log, Version: version, locale: cfg.Locale,
	}
}

// prod reports whether Internal error messages should be hidden (spec §7).
func (d *Deps) prod() bool {
	return d.Config.LogLevel != "debug"
}

func requestIDOf(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue("request_id").(string)
	return id
}

// readJSON decodes the request body into v, returning a Validation *Error
// on malformed JSON.
func readJSON(ctx *fasthttp.RequestCtx, v any) *apierr.Error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apierr.New(apierr.KindValidation, "invalid_json", err.Error())
	}
	return nil
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func queryString(ctx *fasthttp.RequestCtx, name string) string {
	return string(ctx.QueryArgs().Peek(name))
}

func queryInt(ctx *fasthttp.RequestCtx, name string, def int) int {
	raw := string(ctx.QueryArgs().Peek(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// logAndWrite writes err as the response, logging it with component/path/
// requestId context per spec §7's propagation policy. A plain (non-*Error)
// err is classified Internal.
func (d *Deps) logAndWrite(ctx *fasthttp.RequestCtx, component string, err error) {
	ae, ok := err.(*apierr.Error)
	if !ok {
		ae = apierr.New(apierr.KindInternal, "internal_error", err.Error())
	}
	d.Log.Error("api_error",
		slog.String("component", component),
		slog.String("path", string(ctx.Path())),
		slog.String("request_id", requestIDOf(ctx)),
		slog.String("kind", string(ae.Kind)),
		slog.String("error", ae.Message),
	)
	apierr.WriteErr(ctx, ae, d.prod())
}
