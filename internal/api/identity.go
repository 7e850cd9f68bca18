package api

import (
	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/pkg/apierr"
)

// Identity handles GET /api: server identity, counts and current strategy,
// the first thing an admin client fetches to orient itself.
func (d *Deps) Identity(ctx *fasthttp.RequestCtx) {
	chs, _ := d.Store.ListChannels(ctx)
	rules, _ := d.Store.ListRoutingRules(ctx)
	tees, _ := d.Store.ListTeeDestinations(ctx)

	apierr.WriteOK(ctx, map[string]any{
		"name":          "routex",
		"version":       d.Version,
		"strategy":      string(d.LB.GetStrategy()),
		"locale":        d.locale,
		"channels":      len(chs),
		"routingRules":  len(rules),
		"teeDestinations": len(tees),
	})
}
