package api

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/store"
	"github.com/dctx-team/routex/pkg/apierr"
)

// requestRow augments a RequestLog with its estimated cost, for GET /api/requests.
type requestRow struct {
	store.RequestLog
	Cost float64 `json:"cost"`
}

func augment(rows []store.RequestLog) []requestRow {
	out := make([]requestRow, len(rows))
	for i, r := range rows {
		out[i] = requestRow{RequestLog: r, Cost: r.Cost()}
	}
	return out
}

func parseQueryTime(ctx *fasthttp.RequestCtx, name string) *time.Time {
	raw := queryString(ctx, name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// ListRequests handles GET /api/requests.
func (d *Deps) ListRequests(ctx *fasthttp.RequestCtx) {
	q := store.RequestQuery{
		Status:    queryString(ctx, "status"),
		ChannelID: queryString(ctx, "channelId"),
		Model:     queryString(ctx, "model"),
		Q:         queryString(ctx, "q"),
		Since:     parseQueryTime(ctx, "since"),
		Until:     parseQueryTime(ctx, "until"),
		Limit:     queryInt(ctx, "limit", 100),
		Offset:    queryInt(ctx, "offset", 0),
	}
	page, err := d.Store.GetRequestsFiltered(ctx, q)
	if err != nil {
		d.logAndWrite(ctx, "requests", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, map[string]any{
		"data": augment(page.Rows),
		"meta": map[string]any{
			"total":     page.Total,
			"limit":     page.EffectiveLimit,
			"offset":    page.EffectiveOffset,
			"timestamp": time.Now().UnixMilli(),
		},
	})
}

// GetAnalytics handles GET /api/analytics.
func (d *Deps) GetAnalytics(ctx *fasthttp.RequestCtx) {
	a, err := d.Store.GetAnalytics(ctx)
	if err != nil {
		d.logAndWrite(ctx, "requests", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, a)
}
