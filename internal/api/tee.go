package api

import (
	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/store"
	"github.com/dctx-team/routex/pkg/apierr"
)

type teeRequest struct {
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	Enabled       bool              `json:"enabled"`
	URL           string            `json:"url"`
	Method        string            `json:"method"`
	Headers       map[string]string `json:"headers"`
	FilePath      string            `json:"filePath"`
	CustomHandler string            `json:"customHandler"`
	Filter        store.TeeFilter   `json:"filter"`
	Retries       int               `json:"retries"`
	TimeoutMs     int               `json:"timeoutMs"`
}

type teePatchRequest struct {
	Name          *string            `json:"name"`
	Enabled       *bool              `json:"enabled"`
	URL           *string            `json:"url"`
	Method        *string            `json:"method"`
	Headers       map[string]string  `json:"headers"`
	FilePath      *string            `json:"filePath"`
	CustomHandler *string            `json:"customHandler"`
	Filter        *store.TeeFilter   `json:"filter"`
	Retries       *int               `json:"retries"`
	TimeoutMs     *int               `json:"timeoutMs"`
}

// ListTeeDestinations handles GET /api/tee.
func (d *Deps) ListTeeDestinations(ctx *fasthttp.RequestCtx) {
	dests, err := d.Store.ListTeeDestinations(ctx)
	if err != nil {
		d.logAndWrite(ctx, "tee", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, dests)
}

// CreateTeeDestination handles POST /api/tee.
func (d *Deps) CreateTeeDestination(ctx *fasthttp.RequestCtx) {
	var req teeRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	dest, err := d.Store.CreateTeeDestination(ctx, store.TeeDestinationInput{
		Name: req.Name, Type: req.Type, Enabled: req.Enabled, URL: req.URL, Method: req.Method,
		Headers: req.Headers, FilePath: req.FilePath, CustomHandler: req.CustomHandler,
		Filter: req.Filter, Retries: req.Retries, TimeoutMs: req.TimeoutMs,
	})
	if err != nil {
		d.logAndWrite(ctx, "tee", storeErr(err))
		return
	}
	apierr.WriteCreated(ctx, dest)
}

// GetTeeDestination handles GET /api/tee/:id.
func (d *Deps) GetTeeDestination(ctx *fasthttp.RequestCtx) {
	dest, err := d.Store.GetTeeDestination(ctx, pathParam(ctx, "id"))
	if err != nil {
		d.logAndWrite(ctx, "tee", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, dest)
}

// UpdateTeeDestination handles PUT /api/tee/:id.
func (d *Deps) UpdateTeeDestination(ctx *fasthttp.RequestCtx) {
	var req teePatchRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	dest, err := d.Store.UpdateTeeDestination(ctx, pathParam(ctx, "id"), store.TeeDestinationPatch{
		Name: req.Name, Enabled: req.Enabled, URL: req.URL, Method: req.Method, Headers: req.Headers,
		FilePath: req.FilePath, CustomHandler: req.CustomHandler, Filter: req.Filter,
		Retries: req.Retries, TimeoutMs: req.TimeoutMs,
	})
	if err != nil {
		d.logAndWrite(ctx, "tee", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, dest)
}

// DeleteTeeDestination handles DELETE /api/tee/:id.
func (d *Deps) DeleteTeeDestination(ctx *fasthttp.RequestCtx) {
	ok, err := d.Store.DeleteTeeDestination(ctx, pathParam(ctx, "id"))
	if err != nil {
		d.logAndWrite(ctx, "tee", storeErr(err))
		return
	}
	if !ok {
		d.logAndWrite(ctx, "tee", apierr.New(apierr.KindNotFound, "tee_not_found", "tee destination not found"))
		return
	}
	apierr.WriteOK(ctx, map[string]bool{"deleted": true})
}

// EnableTeeDestination handles POST /api/tee/:id/enable.
func (d *Deps) EnableTeeDestination(ctx *fasthttp.RequestCtx) { d.setTeeEnabled(ctx, true) }

// DisableTeeDestination handles POST /api/tee/:id/disable.
func (d *Deps) DisableTeeDestination(ctx *fasthttp.RequestCtx) { d.setTeeEnabled(ctx, false) }

func (d *Deps) setTeeEnabled(ctx *fasthttp.RequestCtx, enabled bool) {
	id := pathParam(ctx, "id")
	if err := d.Store.SetTeeDestinationEnabled(ctx, id, enabled); err != nil {
		d.logAndWrite(ctx, "tee", storeErr(err))
		return
	}
	dest, err := d.Store.GetTeeDestination(ctx, id)
	if err != nil {
		d.logAndWrite(ctx, "tee", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, dest)
}
