package server

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/api"
	"github.com/dctx-team/routex/internal/config"
	"github.com/dctx-team/routex/internal/ratelimit"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// --- adminAuth ---------------------------------------------------------------

func TestAdminAuth_NoPasswordConfigured_PassesThrough(t *testing.T) {
	deps := &api.Deps{Config: &config.Config{DashboardPassword: ""}}
	called := false
	handler := adminAuth(deps)(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/api/channels")
	handler(ctx)

	if !called {
		t.Error("expected handler to be called when no dashboard password is configured")
	}
}

func TestAdminAuth_NonAPIPath_PassesThrough(t *testing.T) {
	deps := &api.Deps{Config: &config.Config{DashboardPassword: "secret"}}
	called := false
	handler := adminAuth(deps)(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/health")
	handler(ctx)

	if !called {
		t.Error("expected handler to be called for non-/api paths regardless of password")
	}
}

func TestAdminAuth_MissingPassword_Rejected(t *testing.T) {
	deps := &api.Deps{Config: &config.Config{DashboardPassword: "secret"}}
	called := false
	handler := adminAuth(deps)(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/api/channels")
	handler(ctx)

	if called {
		t.Error("handler should not be called without the dashboard password header")
	}
	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("expected 401, got %d", ctx.Response.StatusCode())
	}
}

func TestAdminAuth_WrongPassword_Rejected(t *testing.T) {
	deps := &api.Deps{Config: &config.Config{DashboardPassword: "secret"}}
	handler := adminAuth(deps)(func(ctx *fasthttp.RequestCtx) {
		t.Error("handler should not be called with a wrong password")
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/api/channels")
	ctx.Request.Header.Set("X-Dashboard-Password", "nope")
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("expected 401, got %d", ctx.Response.StatusCode())
	}
}

func TestAdminAuth_CorrectPassword_PassesThrough(t *testing.T) {
	deps := &api.Deps{Config: &config.Config{DashboardPassword: "secret"}}
	called := false
	handler := adminAuth(deps)(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/api/channels")
	ctx.Request.Header.Set("X-Dashboard-Password", "secret")
	handler(ctx)

	if !called {
		t.Error("expected handler to be called with the correct password")
	}
}

// --- rateLimited ---------------------------------------------------------------

func TestRateLimited_NilLimiter_PassesThrough(t *testing.T) {
	deps := &api.Deps{Config: &config.Config{}, Limiter: nil}
	called := false
	handler := rateLimited(deps)(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/v1/messages")
	handler(ctx)

	if !called {
		t.Error("expected handler to be called when no limiter is configured")
	}
}

func TestRateLimited_NonV1Path_PassesThrough(t *testing.T) {
	limiter := ratelimit.NewRPMLimiter(newTestRedisClient(t), 0)
	deps := &api.Deps{Config: &config.Config{}, Limiter: limiter}
	called := false
	handler := rateLimited(deps)(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/api/channels")
	handler(ctx)

	if !called {
		t.Error("expected handler to be called for non-/v1 paths even with a zero-limit limiter")
	}
}

func TestRateLimited_AllowsUnderLimit(t *testing.T) {
	limiter := ratelimit.NewRPMLimiter(newTestRedisClient(t), 5)
	deps := &api.Deps{Config: &config.Config{}, Limiter: limiter}
	called := false
	handler := rateLimited(deps)(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/v1/messages")
	handler(ctx)

	if !called {
		t.Error("expected handler to be called while under the RPM limit")
	}
}

func TestRateLimited_BlocksOverLimit(t *testing.T) {
	limiter := ratelimit.NewRPMLimiter(newTestRedisClient(t), 1)
	deps := &api.Deps{Config: &config.Config{}, Limiter: limiter}

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/v1/messages")
	rateLimited(deps)(func(ctx *fasthttp.RequestCtx) {})(ctx)

	called := false
	ctx2 := &fasthttp.RequestCtx{}
	ctx2.Request.SetRequestURI("/v1/messages")
	rateLimited(deps)(func(ctx *fasthttp.RequestCtx) { called = true })(ctx2)

	if called {
		t.Error("handler should not be called once the RPM limit is exceeded")
	}
	if ctx2.Response.StatusCode() != fasthttp.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", ctx2.Response.StatusCode())
	}
}
