package api

import (
	"context"
	"log/slog"

	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/smartrouter"
	"github.com/dctx-team/routex/internal/store"
	"github.com/dctx-team/routex/pkg/apierr"
)

// reloadRules re-reads enabled rules from the Store, for every routing-rule
// write per spec §6's "write operations trigger SmartRouter rule-set reload".
func reloadRules(ctx context.Context, st *store.Store, log *slog.Logger) []store.RoutingRule {
	rules, err := st.ListEnabledRoutingRules(ctx)
	if err != nil {
		log.Error("routing: reload failed", slog.String("error", err.Error()))
		return nil
	}
	return rules
}

type ruleRequest struct {
	Name          string             `json:"name"`
	Type          string             `json:"type"`
	Condition     store.RuleCondition `json:"condition"`
	TargetChannel string             `json:"targetChannel"`
	TargetModel   string             `json:"targetModel"`
	Priority      int                `json:"priority"`
	Enabled       bool               `json:"enabled"`
}

type rulePatchRequest struct {
	Name          *string              `json:"name"`
	Condition     *store.RuleCondition `json:"condition"`
	TargetChannel *string              `json:"targetChannel"`
	TargetModel   *string              `json:"targetModel"`
	Priority      *int                 `json:"priority"`
	Enabled       *bool                `json:"enabled"`
}

// ListRules handles GET /api/routing/rules.
func (d *Deps) ListRules(ctx *fasthttp.RequestCtx) {
	rules, err := d.Store.ListRoutingRules(ctx)
	if err != nil {
		d.logAndWrite(ctx, "routing", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, rules)
}

// CreateRule handles POST /api/routing/rules.
func (d *Deps) CreateRule(ctx *fasthttp.RequestCtx) {
	var req ruleRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	rule, err := d.Store.CreateRoutingRule(ctx, store.RoutingRuleInput{
		Name: req.Name, Type: req.Type, Condition: req.Condition,
		TargetChannel: req.TargetChannel, TargetModel: req.TargetModel,
		Priority: req.Priority, Enabled: req.Enabled,
	})
	if err != nil {
		d.logAndWrite(ctx, "routing", storeErr(err))
		return
	}
	d.Router.Reload(reloadRules(ctx, d.Store, d.Log))
	apierr.WriteCreated(ctx, rule)
}

// GetRule handles GET /api/routing/rules/:id.
func (d *Deps) GetRule(ctx *fasthttp.RequestCtx) {
	rule, err := d.Store.GetRoutingRule(ctx, pathParam(ctx, "id"))
	if err != nil {
		d.logAndWrite(ctx, "routing", storeErr(err))
		return
	}
	apierr.WriteOK(ctx, rule)
}

// UpdateRule handles PUT /api/routing/rules/:id.
func (d *Deps) UpdateRule(ctx *fasthttp.RequestCtx) {
	var req rulePatchRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	rule, err := d.Store.UpdateRoutingRule(ctx, pathParam(ctx, "id"), store.RoutingRulePatch{
		Name: req.Name, Condition: req.Condition, TargetChannel: req.TargetChannel,
		TargetModel: req.TargetModel, Priority: req.Priority, Enabled: req.Enabled,
	})
	if err != nil {
		d.logAndWrite(ctx, "routing", storeErr(err))
		return
	}
	d.Router.Reload(reloadRules(ctx, d.Store, d.Log))
	apierr.WriteOK(ctx, rule)
}

// DeleteRule handles DELETE /api/routing/rules/:id.
func (d *Deps) DeleteRule(ctx *fasthttp.RequestCtx) {
	ok, err := d.Store.DeleteRoutingRule(ctx, pathParam(ctx, "id"))
	if err != nil {
		d.logAndWrite(ctx, "routing", storeErr(err))
		return
	}
	if !ok {
		d.logAndWrite(ctx, "routing", apierr.New(apierr.KindNotFound, "rule_not_found", "routing rule not found"))
		return
	}
	d.Router.Reload(reloadRules(ctx, d.Store, d.Log))
	apierr.WriteOK(ctx, map[string]bool{"deleted": true})
}

// EnableRule handles POST /api/routing/rules/:id/enable.
func (d *Deps) EnableRule(ctx *fasthttp.RequestCtx) { d.setRuleEnabled(ctx, true) }

// DisableRule handles POST /api/routing/rules/:id/disable.
func (d *Deps) DisableRule(ctx *fasthttp.RequestCtx) { d.setRuleEnabled(ctx, false) }

func (d *Deps) setRuleEnabled(ctx *fasthttp.RequestCtx, enabled bool) {
	rule, err := d.Store.SetRoutingRuleEnabled(ctx, pathParam(ctx, "id"), enabled)
	if err != nil {
		d.logAndWrite(ctx, "routing", storeErr(err))
		return
	}
	d.Router.Reload(reloadRules(ctx, d.Store, d.Log))
	apierr.WriteOK(ctx, rule)
}

// ReloadRules handles POST /api/routing/rules/reload.
func (d *Deps) ReloadRules(ctx *fasthttp.RequestCtx) {
	rules := reloadRules(ctx, d.Store, d.Log)
	d.Router.Reload(rules)
	apierr.WriteOK(ctx, map[string]int{"loaded": len(rules)})
}

type ruleTestRequest struct {
	Condition store.RuleCondition `json:"condition"`
	Request   map[string]any      `json:"request"`
}

// TestRule handles POST /api/routing/rules/test: evaluates a candidate
// condition against a sample request body without touching the live rule set.
func (d *Deps) TestRule(ctx *fasthttp.RequestCtx) {
	var req ruleTestRequest
	if ve := readJSON(ctx, &req); ve != nil {
		apierr.WriteErr(ctx, ve, d.prod())
		return
	}
	rctx := smartrouter.AnalyzeRequest(req.Request)
	matched := d.Router.EvaluateCondition(req.Condition, rctx)
	apierr.WriteOK(ctx, map[string]any{"matched": matched, "context": rctx})
}
