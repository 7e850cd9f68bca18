package api

import (
	"runtime"

	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/pkg/apierr"
)

// Health handles GET /health and /health/live: a liveness probe that never
// depends on the Store.
func (d *Deps) Health(ctx *fasthttp.RequestCtx) {
	apierr.WriteOK(ctx, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready: readiness requires at least one
// enabled channel, mirroring the deleted healthchecker's "no providers
// available" gate.
func (d *Deps) HealthReady(ctx *fasthttp.RequestCtx) {
	chs, err := d.Store.ListEnabledChannels(ctx)
	if err != nil {
		d.logAndWrite(ctx, "health", storeErr(err))
		return
	}
	if len(chs) == 0 {
		d.logAndWrite(ctx, "health", apierr.New(apierr.KindNoAvailableChannel, "not_ready", "no enabled channels"))
		return
	}
	apierr.WriteOK(ctx, map[string]any{"status": "ready", "enabledChannels": len(chs)})
}

// HealthDetailed handles GET /health/detailed: memory stats, database
// connectivity and a flat issue list.
func (d *Deps) HealthDetailed(ctx *fasthttp.RequestCtx) {
	var issues []string

	dbErr := d.Store.Ping(ctx)
	if dbErr != nil {
		issues = append(issues, "database unreachable: "+dbErr.Error())
	}

	chs, err := d.Store.ListEnabledChannels(ctx)
	if err != nil {
		issues = append(issues, "channel listing failed: "+err.Error())
	} else if len(chs) == 0 {
		issues = append(issues, "no enabled channels")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := "healthy"
	if len(issues) > 0 {
		status = "degraded"
	}

	apierr.WriteOK(ctx, map[string]any{
		"status": status,
		"issues": issues,
		"memory": map[string]uint64{
			"heapAllocBytes": m.HeapAlloc,
			"heapSysBytes":   m.HeapSys,
			"stackSysBytes":  m.StackSys,
		},
		"database": map[string]bool{"reachable": dbErr == nil},
	})
}
