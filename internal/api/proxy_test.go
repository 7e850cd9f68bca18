package api_test

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func TestProxyRequest_NoAvailableChannelReturns503(t *testing.T) {
	d := newTestDeps(t)
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI("/v1/messages")
	ctx.Request.SetBody([]byte(`{"model":"claude-3","messages":[{"role":"user","content":"hi"}]}`))

	d.ProxyRequest(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Errorf("expected 503 when no channel is enabled, got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
}

func TestProxyRequest_NoChannelServesRequestedModelReturns503(t *testing.T) {
	d := newTestDeps(t)

	createCtx := &fasthttp.RequestCtx{}
	createCtx.Request.SetBody([]byte(`{"name":"a","type":"anthropic","apiKey":"sk-secret","models":["claude-2"]}`))
	d.CreateChannel(createCtx)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI("/v1/messages")
	ctx.Request.SetBody([]byte(`{"model":"claude-3","messages":[{"role":"user","content":"hi"}]}`))

	d.ProxyRequest(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Errorf("expected 503 when no enabled channel serves claude-3, got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
}
