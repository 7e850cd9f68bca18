// Package smartrouter implements Routex's SmartRouter (C8): rule-based
// predicate matching against an incoming request, grounded on spec §4.5's
// condition grammar. The teacher has no equivalent component — its
// internal/proxy/routing.go is a static alias-map fallback, which this
// package's Match "no rule matched" path intentionally mirrors by returning
// nil so the caller falls through to the LoadBalancer, exactly as the
// teacher's resolveProvider falls through to its default alias.
package smartrouter

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dctx-team/routex/internal/store"
)

// RequestContext is the parsed view of an incoming request a rule evaluates against.
type RequestContext struct {
	Model           string
	UserText        string // concatenated user-role message text
	EstimatedTokens int
	HasTools        bool
	HasImages       bool
	ContentCategory string
	ComplexityLevel string
	HasCode         bool
	ProgrammingLang string
	Intent          string
	WordCount       int
	Raw             map[string]any // full parsed body, for customFunction predicates
}

// Match is the result of a successful rule evaluation.
type Match struct {
	Channel     string
	Model       string
	Rule        store.RoutingRule
}

// CustomFunc is a registered customFunction predicate.
type CustomFunc func(ctx RequestContext) bool

// Router evaluates enabled rules, sorted by priority DESC, against a request.
type Router struct {
	mu    sync.RWMutex
	rules []store.RoutingRule

	customMu  sync.RWMutex
	customFns map[string]CustomFunc

	exprMu    sync.Mutex
	exprCache map[string]*vm.Program
}

// New creates an empty Router; call Reload to populate it.
func New() *Router {
	return &Router{
		customFns: make(map[string]CustomFunc),
		exprCache: make(map[string]*vm.Program),
	}
}

// Reload replaces the active rule set, sorted by priority DESC (ties keep
// insertion/Store order). Called on every routing-rule write (spec §6).
func (r *Router) Reload(rules []store.RoutingRule) {
	sorted := make([]store.RoutingRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Enabled {
			sorted = append(sorted, rule)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	r.mu.Lock()
	r.rules = sorted
	r.mu.Unlock()
}

// RegisterCustomFunction registers a named customFunction predicate,
// evaluable from a RoutingRule's condition.customFunction field.
func (r *Router) RegisterCustomFunction(name string, fn CustomFunc) {
	r.customMu.Lock()
	defer r.customMu.Unlock()
	r.customFns[name] = fn
}

// RegisterExprFunction registers a named customFunction predicate expressed
// as an expr-lang expression compiled against RequestContext fields, e.g.
// `WordCount > 500 && HasCode`.
func (r *Router) RegisterExprFunction(name, expression string) error {
	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return err
	}
	r.exprMu.Lock()
	r.exprCache[name] = program
	r.exprMu.Unlock()
	return nil
}

// Match evaluates all enabled rules, highest priority first, and returns the
// first whose condition is satisfied, or nil if none match (spec §4.5, §8).
func (r *Router) Match(ctx RequestContext) *Match {
	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	for _, rule := range rules {
		if r.satisfies(rule.Condition, ctx) {
			return &Match{Channel: rule.TargetChannel, Model: rule.TargetModel, Rule: rule}
		}
	}
	return nil
}

// EvaluateCondition exposes satisfies for the routing rule "test" admin
// endpoint, which checks one candidate condition against a sample request
// context without touching the registered rule set.
func (r *Router) EvaluateCondition(c store.RuleCondition, ctx RequestContext) bool {
	return r.satisfies(c, ctx)
}

func (r *Router) satisfies(c store.RuleCondition, ctx RequestContext) bool {
	if c.TokenThreshold > 0 && ctx.EstimatedTokens < c.TokenThreshold {
		return false
	}
	if len(c.Keywords) > 0 && !containsAnyKeyword(ctx.UserText, c.Keywords) {
		return false
	}
	if c.UserPattern != "" && !matchesPattern(c.UserPattern, ctx.UserText) {
		return false
	}
	if c.ModelPattern != "" && !matchesPattern(c.ModelPattern, ctx.Model) {
		return false
	}
	if c.HasTools != nil && *c.HasTools != ctx.HasTools {
		return false
	}
	if c.HasImages != nil && *c.HasImages != ctx.HasImages {
		return false
	}
	if c.ContentCategory != "" && !strings.EqualFold(c.ContentCategory, ctx.ContentCategory) {
		return false
	}
	if c.ComplexityLevel != "" && !strings.EqualFold(c.ComplexityLevel, ctx.ComplexityLevel) {
		return false
	}
	if c.HasCode != nil && *c.HasCode != ctx.HasCode {
		return false
	}
	if c.ProgrammingLang != "" && !strings.EqualFold(c.ProgrammingLang, ctx.ProgrammingLang) {
		return false
	}
	if c.Intent != "" && !strings.EqualFold(c.Intent, ctx.Intent) {
		return false
	}
	if c.MinWordCount > 0 && ctx.WordCount < c.MinWordCount {
		return false
	}
	if c.MaxWordCount > 0 && ctx.WordCount > c.MaxWordCount {
		return false
	}
	if c.CustomFunction != "" && !r.evalCustom(c.CustomFunction, ctx) {
		return false
	}
	return true
}

func (r *Router) evalCustom(name string, ctx RequestContext) bool {
	r.customMu.RLock()
	fn, ok := r.customFns[name]
	r.customMu.RUnlock()
	if ok {
		return fn(ctx)
	}

	r.exprMu.Lock()
	program, ok := r.exprCache[name]
	r.exprMu.Unlock()
	if !ok {
		return false // unregistered predicate: fail closed, never fatal
	}

	env := map[string]any{
		"Model":           ctx.Model,
		"UserText":        ctx.UserText,
		"EstimatedTokens": ctx.EstimatedTokens,
		"HasTools":        ctx.HasTools,
		"HasImages":       ctx.HasImages,
		"ContentCategory": ctx.ContentCategory,
		"ComplexityLevel": ctx.ComplexityLevel,
		"HasCode":         ctx.HasCode,
		"ProgrammingLang": ctx.ProgrammingLang,
		"Intent":          ctx.Intent,
		"WordCount":       ctx.WordCount,
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}

func containsAnyKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

var patternCache sync.Map // string -> *regexp.Regexp

func matchesPattern(pattern, text string) bool {
	var re *regexp.Regexp
	if v, ok := patternCache.Load(pattern); ok {
		re = v.(*regexp.Regexp)
	} else {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		re = compiled
		patternCache.Store(pattern, re)
	}
	return re.MatchString(text)
}

// EstimateTokens approximates prompt token count per spec §4.5's estimator:
// Claude-family models ~chars/3.5, others ~chars/4, with a flat per-image
// adjustment.
func EstimateTokens(model string, charCount int, imageBlocks int) int {
	divisor := 4.0
	if strings.Contains(strings.ToLower(model), "claude") {
		divisor = 3.5
	}
	tokens := float64(charCount) / divisor
	tokens += float64(imageBlocks) * 1500
	return int(tokens)
}
