package api_test

import (
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestGetConfig_NeverExposesSecrets(t *testing.T) {
	d := newTestDeps(t)
	d.Config.DashboardPassword = "secret"
	d.Config.MasterPassword = "master-secret"
	d.Config.EncryptionSalt = "salt-secret"

	ctx := &fasthttp.RequestCtx{}
	d.GetConfig(ctx)

	body := string(ctx.Response.Body())
	for _, secret := range []string{"secret", "master-secret", "salt-secret"} {
		if strings.Contains(body, secret) {
			t.Errorf("expected config response to never contain secret %q, got %s", secret, body)
		}
	}
	if !strings.Contains(body, `"dashboardProtected":true`) {
		t.Errorf("expected dashboardProtected=true when a password is set, got %s", body)
	}
}

func TestGetConfig_DashboardUnprotectedWhenNoPassword(t *testing.T) {
	d := newTestDeps(t)
	ctx := &fasthttp.RequestCtx{}
	d.GetConfig(ctx)

	if !strings.Contains(string(ctx.Response.Body()), `"dashboardProtected":false`) {
		t.Errorf("expected dashboardProtected=false with no password set, got %s", ctx.Response.Body())
	}
}

func TestDatabaseCacheStats_ReturnsCounters(t *testing.T) {
	d := newTestDeps(t)
	ctx := &fasthttp.RequestCtx{}
	d.DatabaseCacheStats(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("expected 200, got %d", ctx.Response.StatusCode())
	}
	if !strings.Contains(string(ctx.Response.Body()), `"hits"`) {
		t.Errorf("expected hits field in body, got %s", ctx.Response.Body())
	}
}

func TestInvalidateCache_AcceptsTarget(t *testing.T) {
	d := newTestDeps(t)
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetBody([]byte(`{"target":"channels"}`))
	d.InvalidateCache(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("expected 200, got %d", ctx.Response.StatusCode())
	}
}
