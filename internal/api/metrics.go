package api

import (
	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/pkg/apierr"
)

// GetMetrics handles GET /api/metrics and its /api/metrics/all alias: the
// JSON view of every registered instrument, alongside the Prometheus text
// endpoint served directly off Metrics.Handler().
func (d *Deps) GetMetrics(ctx *fasthttp.RequestCtx) {
	d.Metrics.ObserveRuntimeMemory()
	families, err := d.Metrics.Snapshot()
	if err != nil {
		d.logAndWrite(ctx, "metrics", apierr.New(apierr.KindInternal, "snapshot_failed", err.Error()))
		return
	}
	apierr.WriteOK(ctx, families)
}

// ResetMetrics handles POST /api/metrics/reset.
func (d *Deps) ResetMetrics(ctx *fasthttp.RequestCtx) {
	d.Metrics.Reset()
	apierr.WriteOK(ctx, map[string]bool{"reset": true})
}
