package server

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/api"
	"github.com/dctx-team/routex/pkg/apierr"
)

// rateLimited enforces the inbound RPM limit on /v1 proxy traffic only; the
// admin API is not rate limited. A nil Limiter (no Redis configured) is a
// no-op, per spec's "rate limiting is optional" (§6).
func rateLimited(deps *api.Deps) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if deps.Limiter == nil || !strings.HasPrefix(string(ctx.Path()), "/v1/") {
				next(ctx)
				return
			}
			allowed, err := deps.Limiter.Allow(ctx)
			if err != nil || !allowed {
				apierr.WriteErr(ctx, apierr.New(apierr.KindRateLimit, "rate_limited", "too many requests"), false)
				return
			}
			next(ctx)
		}
	}
}

// adminAuth gates every /api route behind the dashboard password when one is
// configured; /v1 proxy traffic and /health are never gated here since
// provider channel credentials are the real authorization boundary for
// proxied requests.
func adminAuth(deps *api.Deps) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			path := string(ctx.Path())
			if deps.Config.DashboardPassword == "" || !strings.HasPrefix(path, "/api") {
				next(ctx)
				return
			}
			if string(ctx.Request.Header.Peek("X-Dashboard-Password")) != deps.Config.DashboardPassword {
				apierr.WriteErr(ctx, apierr.New(apierr.KindAuthentication, "unauthorized", "missing or invalid dashboard password"), false)
				return
			}
			next(ctx)
		}
	}
}
