package api

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/providers"
	"github.com/dctx-team/routex/internal/store"
	"github.com/dctx-team/routex/pkg/apierr"
)

// providerFor builds the transient ChannelProvider used to probe a channel
// from an admin test request; the proxy hot path builds its own through the
// same factory inside internal/proxy's engine.
func providerFor(ctx context.Context, ch store.Channel) (providers.ChannelProvider, error) {
	return providers.New(ctx, ch.Type, ch.BaseURL, ch.APIKey)
}

type channelRequest struct {
	Name         string               `json:"name"`
	Type         string               `json:"type"`
	BaseURL      string               `json:"baseUrl"`
	APIKey       string               `json:"apiKey"`
	Models       []string             `json:"models"`
	Priority     int                  `json:"priority"`
	Weight       float64              `json:"weight"`
	Transformers []store.TransformerRef `json:"transformers"`
}

type channelPatchRequest struct {
	Name         *string                `json:"name"`
	BaseURL      *string                `json:"baseUrl"`
	APIKey       *string                `json:"apiKey"`
	Models       []string               `json:"models"`
	Priority     *int                   `json:"priority"`
	Weight       *float64               `json:"weight"`
	Status       *store.ChannelStatus   `json:"status"`
	Transformers []store.TransformerRef `json:"transformers"`
}

// ListChannels handles GET /api/channels.
func (d *Deps) ListChannels(ctx *fasthttp.RequestCtx) {
	chs, err := d.Store.ListChannels(ctx)
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, redactAll(chs))
}

// CreateChannel handles POST /api/channels.
func (d *Deps) CreateChannel(ctx *fasthttp.RequestCtx) {
	var req channelRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	ch, err := d.Store.CreateChannel(ctx, store.ChannelInput{
		Name: req.Name, Type: req.Type, BaseURL: req.BaseURL, APIKey: req.APIKey,
		Models: req.Models, Priority: req.Priority, Weight: req.Weight, Transformers: req.Transformers,
	})
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	d.Warmer.InvalidateCache(ctx, "channels")
	apierr.WriteCreated(ctx, ch.Redacted())
}

// GetChannel handles GET /api/channels/:id.
func (d *Deps) GetChannel(ctx *fasthttp.RequestCtx) {
	ch, err := d.Store.GetChannel(ctx, pathParam(ctx, "id"))
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, ch.Redacted())
}

// UpdateChannel handles PUT /api/channels/:id.
func (d *Deps) UpdateChannel(ctx *fasthttp.RequestCtx) {
	var req channelPatchRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	ch, err := d.Store.UpdateChannel(ctx, pathParam(ctx, "id"), store.ChannelPatch{
		Name: req.Name, BaseURL: req.BaseURL, APIKey: req.APIKey, Models: req.Models,
		Priority: req.Priority, Weight: req.Weight, Status: req.Status, Transformers: req.Transformers,
	})
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	d.Router.Reload(reloadRules(ctx, d.Store, d.Log))
	d.Warmer.InvalidateCache(ctx, "channels")
	apierr.WriteOK(ctx, ch.Redacted())
}

// DeleteChannel handles DELETE /api/channels/:id.
func (d *Deps) DeleteChannel(ctx *fasthttp.RequestCtx) {
	ok, err := d.Store.DeleteChannel(ctx, pathParam(ctx, "id"))
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	if !ok {
		d.logAndWrite(ctx, "channels", apierr.New(apierr.KindNotFound, "channel_not_found", "channel not found"))
		return
	}
	d.Warmer.InvalidateCache(ctx, "channels")
	apierr.WriteOK(ctx, map[string]bool{"deleted": true})
}

// TestChannel handles POST /api/channels/:id/test: a minimal provider ping.
func (d *Deps) TestChannel(ctx *fasthttp.RequestCtx) {
	ch, err := d.Store.GetChannel(ctx, pathParam(ctx, "id"))
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, map[string]any{ch.ID: d.pingChannel(ctx, ch)})
}

// TestAllChannels handles POST /api/channels/test/all.
func (d *Deps) TestAllChannels(ctx *fasthttp.RequestCtx) {
	chs, err := d.Store.ListChannels(ctx)
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, d.pingAll(ctx, chs))
}

// TestEnabledChannels handles POST /api/channels/test/enabled.
func (d *Deps) TestEnabledChannels(ctx *fasthttp.RequestCtx) {
	chs, err := d.Store.ListEnabledChannels(ctx)
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, d.pingAll(ctx, chs))
}

func (d *Deps) pingAll(ctx context.Context, chs []store.Channel) map[string]any {
	out := make(map[string]any, len(chs))
	for _, ch := range chs {
		out[ch.ID] = d.pingChannel(ctx, ch)
	}
	return out
}

type pingResult struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Latency int64  `json:"latencyMs"`
}

func (d *Deps) pingChannel(ctx context.Context, ch store.Channel) pingResult {
	prov, err := providerFor(ctx, ch)
	if err != nil {
		return pingResult{OK: false, Error: err.Error()}
	}
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := prov.HealthCheck(probeCtx); err != nil {
		return pingResult{OK: false, Error: err.Error(), Latency: time.Since(start).Milliseconds()}
	}
	return pingResult{OK: true, Latency: time.Since(start).Milliseconds()}
}

// ExportChannels handles GET /api/channels/export.
func (d *Deps) ExportChannels(ctx *fasthttp.RequestCtx) {
	includeSecrets := queryString(ctx, "includeSecrets") == "true" && d.masterAuthorized(ctx)
	export, err := d.Store.ExportChannels(ctx, includeSecrets)
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, export)
}

type importRequest struct {
	store.ChannelExport
	ReplaceExisting bool `json:"replaceExisting"`
}

// ImportChannels handles POST /api/channels/import.
func (d *Deps) ImportChannels(ctx *fasthttp.RequestCtx) {
	var req importRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	if req.ReplaceExisting && !d.masterAuthorized(ctx) {
		d.logAndWrite(ctx, "channels", apierr.New(apierr.KindAuthentication, "master_password_required", "replaceExisting requires the master password"))
		return
	}
	n, err := d.Store.ImportChannels(ctx, req.ChannelExport, req.ReplaceExisting)
	if err != nil {
		d.logAndWrite(ctx, "channels", storeErr(err))
		return
	}
	d.Warmer.InvalidateCache(ctx, "channels")
	apierr.WriteOK(ctx, map[string]int{"imported": n})
}

func (d *Deps) masterAuthorized(ctx *fasthttp.RequestCtx) bool {
	if d.Config.MasterPassword == "" {
		return true
	}
	return string(ctx.Request.Header.Peek("X-Master-Password")) == d.Config.MasterPassword
}

func redactAll(chs []store.Channel) []store.Channel {
	out := make([]store.Channel, len(chs))
	for i, c := range chs {
		out[i] = c.Redacted()
	}
	return out
}

func storeErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apierr.New(apierr.KindNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrValidation):
		return apierr.New(apierr.KindValidation, "validation", err.Error())
	case errors.Is(err, store.ErrConflict):
		return apierr.New(apierr.KindValidation, "conflict", err.Error())
	case errors.Is(err, store.ErrStorage):
		return apierr.New(apierr.KindStorage, "storage", err.Error())
	default:
		return apierr.New(apierr.KindInternal, "internal_error", err.Error())
	}
}
