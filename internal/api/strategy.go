package api

import (
	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/loadbalance"
	"github.com/dctx-team/routex/pkg/apierr"
)

var validStrategies = map[loadbalance.Strategy]bool{
	loadbalance.StrategyPriority:   true,
	loadbalance.StrategyRoundRobin: true,
	loadbalance.StrategyWeighted:   true,
	loadbalance.StrategyLeastUsed:  true,
}

// GetStrategy handles GET /api/load-balancer/strategy (and its /api/strategy alias).
func (d *Deps) GetStrategy(ctx *fasthttp.RequestCtx) {
	apierr.WriteOK(ctx, map[string]string{"strategy": string(d.LB.GetStrategy())})
}

type strategyRequest struct {
	Strategy string `json:"strategy"`
}

// SetStrategy handles PUT /api/load-balancer/strategy (and its /api/strategy alias).
func (d *Deps) SetStrategy(ctx *fasthttp.RequestCtx) {
	var req strategyRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	s := loadbalance.Strategy(req.Strategy)
	if !validStrategies[s] {
		d.logAndWrite(ctx, "strategy", apierr.New(apierr.KindValidation, "invalid_strategy", "unknown load balancer strategy: "+req.Strategy))
		return
	}
	d.LB.SetStrategy(s)
	apierr.WriteOK(ctx, map[string]string{"strategy": string(s)})
}
