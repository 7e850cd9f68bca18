package api

import (
	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/pkg/apierr"
)

// TracingStats handles GET /api/tracing/stats.
func (d *Deps) TracingStats(ctx *fasthttp.RequestCtx) {
	count, max := d.Tracer.Stats()
	apierr.WriteOK(ctx, map[string]int{"spans": count, "maxSpans": max})
}

// GetTrace handles GET /api/tracing/traces/:traceId.
func (d *Deps) GetTrace(ctx *fasthttp.RequestCtx) {
	spans := d.Tracer.GetTraceSpans(pathParam(ctx, "traceId"))
	if len(spans) == 0 {
		d.logAndWrite(ctx, "tracing", apierr.New(apierr.KindNotFound, "trace_not_found", "trace not found"))
		return
	}
	apierr.WriteOK(ctx, spans)
}

// GetSpan handles GET /api/tracing/spans/:spanId.
func (d *Deps) GetSpan(ctx *fasthttp.RequestCtx) {
	span, ok := d.Tracer.GetSpan(pathParam(ctx, "spanId"))
	if !ok {
		d.logAndWrite(ctx, "tracing", apierr.New(apierr.KindNotFound, "span_not_found", "span not found"))
		return
	}
	apierr.WriteOK(ctx, span)
}

// ClearTraces handles POST /api/tracing/clear.
func (d *Deps) ClearTraces(ctx *fasthttp.RequestCtx) {
	d.Tracer.Clear()
	apierr.WriteOK(ctx, map[string]bool{"cleared": true})
}
