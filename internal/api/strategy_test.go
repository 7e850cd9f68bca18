package api_test

import (
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestGetStrategy_DefaultsToPriority(t *testing.T) {
	d := newTestDeps(t)
	ctx := &fasthttp.RequestCtx{}
	d.GetStrategy(ctx)

	if !strings.Contains(string(ctx.Response.Body()), `"strategy":"priority"`) {
		t.Errorf("expected default strategy priority, got %s", ctx.Response.Body())
	}
}

func TestSetStrategy_RejectsUnknownStrategy(t *testing.T) {
	d := newTestDeps(t)
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetBody([]byte(`{"strategy":"random"}`))
	d.SetStrategy(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Errorf("expected 400 for an unknown strategy, got %d", ctx.Response.StatusCode())
	}
}

func TestSetStrategy_AppliesValidStrategy(t *testing.T) {
	d := newTestDeps(t)
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetBody([]byte(`{"strategy":"round_robin"}`))
	d.SetStrategy(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}

	getCtx := &fasthttp.RequestCtx{}
	d.GetStrategy(getCtx)
	if !strings.Contains(string(getCtx.Response.Body()), `"strategy":"round_robin"`) {
		t.Errorf("expected strategy change to persist, got %s", getCtx.Response.Body())
	}
}
