package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/loadbalance"
	"github.com/dctx-team/routex/internal/proxy"
	"github.com/dctx-team/routex/pkg/apierr"
)

// ProxyRequest handles the canonical /v1/* surface: it parses the incoming
// request, runs it through the Engine, and writes back the upstream
// response, the way the teacher's gateway.go handler bridged fasthttp
// straight into dispatchChat.
func (d *Deps) ProxyRequest(ctx *fasthttp.RequestCtx) {
	headers := make(map[string]string)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})

	parsed := proxy.ParseRequest(string(ctx.Method()), string(ctx.Path()), headers, ctx.PostBody())

	result, err := d.Engine.Handle(ctx, parsed)
	if err != nil {
		d.writeProxyError(ctx, err)
		return
	}

	ctx.Response.Header.Set("X-Trace-Id", result.TraceID)
	ctx.Response.Header.Set("X-Channel-Id", result.ChannelID)
	if result.RoutingRule != "" {
		ctx.Response.Header.Set("X-Routing-Rule", result.RoutingRule)
	}
	ctx.SetStatusCode(result.StatusCode)
	ctx.SetContentType("application/json")
	ctx.SetBody(result.Body)
}

func (d *Deps) writeProxyError(ctx *fasthttp.RequestCtx, err error) {
	if errors.Is(err, proxy.ErrNoAvailableChannel) || errors.Is(err, loadbalance.ErrNoAvailableChannel) {
		d.logAndWrite(ctx, "proxy", apierr.New(apierr.KindNoAvailableChannel, "no_available_channel", "no enabled channel is available for this request"))
		return
	}
	d.logAndWrite(ctx, "proxy", apierr.New(apierr.KindChannel, "upstream_error", err.Error()))
}
