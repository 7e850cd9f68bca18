package api_test

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func TestGetMetrics_ReturnsSnapshot(t *testing.T) {
	d := newTestDeps(t)
	ctx := &fasthttp.RequestCtx{}
	d.GetMetrics(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("expected 200, got %d", ctx.Response.StatusCode())
	}
	if len(ctx.Response.Body()) == 0 {
		t.Error("expected a non-empty metrics snapshot body")
	}
}

func TestResetMetrics_ReturnsOK(t *testing.T) {
	d := newTestDeps(t)
	ctx := &fasthttp.RequestCtx{}
	d.ResetMetrics(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("expected 200, got %d", ctx.Response.StatusCode())
	}
}
