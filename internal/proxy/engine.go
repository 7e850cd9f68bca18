// Package proxy implements Routex's ProxyEngine (C9): the orchestrator that
// ties the Store, CircuitBreaker, LoadBalancer, SmartRouter,
// TransformerPipeline and provider adapters into one request path, plus the
// tee dispatcher. The fasthttp HTTP surface lives in internal/api and
// internal/server.
//
// Grounded on the teacher's internal/proxy/gateway.go dispatchChat, with the
// static provider map and failover loop replaced by the Store-backed
// candidate list and C4/C5/C6/C7/C8 collaborators per spec §4.7.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dctx-team/routex/internal/breaker"
	"github.com/dctx-team/routex/internal/loadbalance"
	"github.com/dctx-team/routex/internal/metrics"
	"github.com/dctx-team/routex/internal/providers"
	"github.com/dctx-team/routex/internal/retry"
	"github.com/dctx-team/routex/internal/smartrouter"
	"github.com/dctx-team/routex/internal/store"
	"github.com/dctx-team/routex/internal/tracer"
	"github.com/dctx-team/routex/internal/transform"
)

// ErrNoAvailableChannel is returned when no enabled channel serves the
// requested model or all such channels have an open circuit.
var ErrNoAvailableChannel = loadbalance.ErrNoAvailableChannel

// Engine is the C9 ProxyEngine.
type Engine struct {
	Store      *store.Store
	Metrics    *metrics.Registry
	Tracer     *tracer.Tracer
	Breaker    *breaker.Breaker
	LB         *loadbalance.LoadBalancer
	Router     *smartrouter.Router
	Transforms *transform.Manager
	RetryCfg   retry.Config
	Log        *slog.Logger

	tee *teeDispatcher
}

// NewEngine wires the collaborators into one Engine. Callers construct each
// collaborator (app/init.go) so they can be shared with the HTTP admin API.
func NewEngine(
	st *store.Store,
	m *metrics.Registry,
	tr *tracer.Tracer,
	br *breaker.Breaker,
	lb *loadbalance.LoadBalancer,
	router *smartrouter.Router,
	transforms *transform.Manager,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Store:      st,
		Metrics:    m,
		Tracer:     tr,
		Breaker:    br,
		LB:         lb,
		Router:     router,
		Transforms: transforms,
		RetryCfg:   retry.DefaultConfig(),
		Log:        log,
		tee:        newTeeDispatcher(st, m, log),
	}
}

// Close drains the tee dispatcher, part of graceful shutdown (spec §5).
func (e *Engine) Close() {
	e.tee.Close()
}

// ParsedRequest is the once-parsed view of an incoming proxy request.
type ParsedRequest struct {
	Method    string
	Path      string
	Headers   map[string]string
	Body      transform.Body // nil if the body did not parse as JSON
	Model     string
	SessionID string
}

// Result is what the HTTP layer needs to write a response.
type Result struct {
	StatusCode  int
	Body        []byte
	ChannelID   string
	ChannelName string
	TraceID     string
	SpanID      string
	RoutingRule string
	LatencyMs   int
}

// Handle runs the full proxy pipeline for one incoming request (spec §4.7).
func (e *Engine) Handle(ctx context.Context, req ParsedRequest) (Result, error) {
	traceCtx := tracer.ExtractTraceContext(req.Headers)
	root := e.Tracer.StartSpan("proxy.handle", traceCtx, map[string]string{
		"method": req.Method,
		"path":   req.Path,
	})
	start := time.Now()

	candidates, err := e.listCandidates(ctx, req.Model)
	if err != nil {
		e.Tracer.EndSpan(root.SpanID, tracer.StatusError, map[string]string{"error": err.Error()})
		return Result{}, err
	}
	if len(candidates) == 0 {
		e.Tracer.EndSpan(root.SpanID, tracer.StatusError, map[string]string{"error": "no_available_channel"})
		return Result{}, ErrNoAvailableChannel
	}

	channel, overrideModel, ruleName := e.selectChannel(req, candidates)
	if req.Body != nil && overrideModel != "" {
		req.Body["model"] = overrideModel
	}

	respBody, statusCode, err := e.forwardWithRetries(ctx, channel, req, candidates)
	latency := time.Since(start)

	success := err == nil && statusCode < 400
	e.recordOutcome(ctx, channel, req, respBody, statusCode, success, latency, root.TraceID)

	if err != nil {
		e.Tracer.EndSpan(root.SpanID, tracer.StatusError, map[string]string{"error": err.Error()})
		return Result{}, err
	}

	e.Tracer.EndSpan(root.SpanID, tracer.StatusSuccess, map[string]string{"channel": channel.ID})

	out, _ := json.Marshal(respBody)
	return Result{
		StatusCode:  statusCode,
		Body:        out,
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		TraceID:     root.TraceID,
		SpanID:      root.SpanID,
		RoutingRule: ruleName,
		LatencyMs:   int(latency.Milliseconds()),
	}, nil
}

func (e *Engine) listCandidates(ctx context.Context, model string) ([]store.Channel, error) {
	channels, err := e.Store.ListEnabledChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("proxy: list channels: %w", err)
	}
	candidates := make([]store.Channel, 0, len(channels))
	for _, ch := range channels {
		if e.Breaker.IsOpen(ch.ID) {
			continue
		}
		if model != "" && len(ch.Models) > 0 && !containsString(ch.Models, model) {
			continue
		}
		candidates = append(candidates, ch)
	}
	return candidates, nil
}

// selectChannel runs the SmartRouter first, falling through to the
// LoadBalancer when no rule matches (spec §4.5, §4.7). The second return is
// the matched rule's targetModel override, empty when none applies.
func (e *Engine) selectChannel(req ParsedRequest, candidates []store.Channel) (store.Channel, string, string) {
	reqCtx := smartrouter.AnalyzeRequest(req.Body)
	if match := e.Router.Match(reqCtx); match != nil {
		for _, c := range candidates {
			if c.Name == match.Channel {
				return c, match.Model, match.Rule.Name
			}
		}
	}

	lbCandidates := make([]loadbalance.Candidate, len(candidates))
	for i, c := range candidates {
		lbCandidates[i] = loadbalance.Candidate{
			ID: c.ID, Name: c.Name, Priority: c.Priority, Weight: c.Weight, RequestCount: c.RequestCount,
		}
	}
	picked, err := e.LB.Select(lbCandidates, loadbalance.SelectionContext{SessionID: req.SessionID, Model: req.Model})
	if err != nil {
		return candidates[0], "", ""
	}
	for _, c := range candidates {
		if c.ID == picked.ID {
			return c, "", ""
		}
	}
	return candidates[0], "", ""
}

// forwardWithRetries loops up to RetryCfg.MaxRetries+1 attempts, re-selecting
// a channel when the breaker opens mid-loop (spec §4.7).
func (e *Engine) forwardWithRetries(ctx context.Context, channel store.Channel, req ParsedRequest, candidates []store.Channel) (map[string]any, int, error) {
	var lastErr error
	for attempt := 1; attempt <= e.RetryCfg.MaxRetries+1; attempt++ {
		body, status, err := e.forward(ctx, channel, req)
		if err == nil {
			return body, status, nil
		}
		lastErr = err

		opened := e.Breaker.RecordFailure(channel.ID)
		_ = e.Store.SetChannelFailureState(ctx, channel.ID, e.Breaker.ConsecutiveFailures(channel.ID),
			channelStatusForBreaker(opened), breakerResetDeadline(opened))

		if !retry.IsRetriable(err) || attempt > e.RetryCfg.MaxRetries {
			break
		}

		if opened {
			if alt, ok := e.pickAlternative(req, candidates, channel.ID); ok {
				channel = alt
			}
		}

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(retry.CalculateDelay(e.RetryCfg, attempt)):
		}
	}
	return nil, 0, lastErr
}

func channelStatusForBreaker(opened bool) store.ChannelStatus {
	if opened {
		return store.ChannelRateLimited
	}
	return store.ChannelEnabled
}

func breakerResetDeadline(opened bool) *time.Time {
	if !opened {
		return nil
	}
	t := time.Now().Add(60 * time.Second)
	return &t
}

func (e *Engine) pickAlternative(req ParsedRequest, candidates []store.Channel, excludeID string) (store.Channel, bool) {
	remaining := make([]store.Channel, 0, len(candidates))
	for _, c := range candidates {
		if c.ID != excludeID && !e.Breaker.IsOpen(c.ID) {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == 0 {
		return store.Channel{}, false
	}
	picked, _, _ := e.selectChannel(req, remaining)
	return picked, true
}

// forward performs a single upstream HTTP call for one channel (spec §4.7
// "forward" steps 1-5).
func (e *Engine) forward(ctx context.Context, channel store.Channel, req ParsedRequest) (map[string]any, int, error) {
	provider, err := providers.New(ctx, channel.Type, channel.BaseURL, channel.APIKey)
	if err != nil {
		return nil, 0, fmt.Errorf("proxy: resolve provider for channel %s: %w", channel.ID, err)
	}

	refs := make([]transform.Ref, len(channel.Transformers))
	for i, t := range channel.Transformers {
		refs[i] = transform.Ref{Name: t.Name, Options: t.Options}
	}

	dialectBody, _ := e.Transforms.ApplyRequest(req.Body, refs)

	stream, _ := req.Body["stream"].(bool)
	respBody, streamCh, err := provider.Do(ctx, dialectBody, stream)
	if err != nil {
		status := 502
		var sc providers.StatusCoder
		if errors.As(err, &sc) {
			status = sc.HTTPStatus()
		}
		return nil, status, &retry.HTTPError{Status: status}
	}

	if stream && streamCh != nil {
		// Streaming responses are not relayed: streamCh is not read, and
		// Handle returns a nil body with status 200.
		return nil, 200, nil
	}

	canonical := e.Transforms.ApplyResponse(transform.Body(respBody), refs)
	return canonical, 200, nil
}

func (e *Engine) recordOutcome(ctx context.Context, channel store.Channel, req ParsedRequest, respBody map[string]any, statusCode int, success bool, latency time.Duration, traceID string) {
	inputTokens, outputTokens, cachedTokens := extractUsage(respBody)

	entry := store.RequestLog{
		ID:           uuid.New().String(),
		ChannelID:    channel.ID,
		Model:        req.Model,
		Method:       req.Method,
		Path:         req.Path,
		StatusCode:   statusCode,
		LatencyMs:    int(latency.Milliseconds()),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CachedTokens: cachedTokens,
		Success:      success,
		Timestamp:    time.Now(),
		TraceID:      traceID,
	}
	if !success {
		entry.Error = "upstream request failed"
	}
	e.Store.LogRequest(ctx, entry)

	statusLabel := "failure"
	if success {
		statusLabel = "success"
	}
	e.Metrics.IncCounter("routex_requests_total", "total proxied requests", 1,
		map[string]string{"channel": channel.Name, "status": statusLabel})
	if success {
		e.Metrics.IncCounter("routex_requests_success_total", "successful proxied requests", 1,
			map[string]string{"channel": channel.Name})
		e.Breaker.RecordSuccess(channel.ID)
		_ = e.Store.ResetChannelBreaker(ctx, channel.ID)
	}
	e.Metrics.IncCounter("routex_tokens_total", "tokens processed", float64(inputTokens),
		map[string]string{"channel": channel.Name, "direction": "input"})
	e.Metrics.IncCounter("routex_tokens_total", "tokens processed", float64(outputTokens),
		map[string]string{"channel": channel.Name, "direction": "output"})
	e.Metrics.IncCounter("routex_tokens_total", "tokens processed", float64(cachedTokens),
		map[string]string{"channel": channel.Name, "direction": "cached"})
	e.Metrics.ObserveHistogram("routex_request_duration_seconds", "proxy request latency", nil, latency.Seconds(),
		map[string]string{"channel": channel.Name})

	_ = e.Store.IncrementChannelUsage(ctx, channel.ID, success)

	e.tee.Tee(teeEvent{
		Channel:    channel,
		Model:      req.Model,
		StatusCode: statusCode,
		LatencyMs:  int(latency.Milliseconds()),
		Success:    success,
		Request:    req.Body,
		Response:   respBody,
	})
}

func extractUsage(body map[string]any) (input, output, cached int) {
	usage, ok := body["usage"].(map[string]any)
	if !ok {
		return 0, 0, 0
	}
	input = intField(usage["input_tokens"])
	output = intField(usage["output_tokens"])
	cached = intField(usage["cache_read_input_tokens"])
	return input, output, cached
}

func intField(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

// ParseRequest extracts method/path/headers/body from a raw request (spec
// §4.7 "parseRequest" step). Host and x-* headers are dropped, except
// x-trace* headers and x-request-id, which are kept; body parse failure is
// non-fatal.
func ParseRequest(method, path string, rawHeaders map[string]string, rawBody []byte) ParsedRequest {
	headers := make(map[string]string, len(rawHeaders))
	for k, v := range rawHeaders {
		lower := strings.ToLower(k)
		if lower == "host" || (strings.HasPrefix(lower, "x-") && !strings.HasPrefix(lower, "x-trace") && lower != "x-request-id") {
			continue
		}
		headers[k] = v
	}

	var body transform.Body
	if len(rawBody) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal(rawBody, &parsed); err == nil {
			body = parsed
		}
	}

	model := ""
	sessionID := ""
	if body != nil {
		if m, ok := body["model"].(string); ok {
			model = m
		}
		if s, ok := body["metadata"].(map[string]any); ok {
			if sid, ok := s["session_id"].(string); ok {
				sessionID = sid
			}
		}
	}

	return ParsedRequest{
		Method:    method,
		Path:      path,
		Headers:   headers,
		Body:      body,
		Model:     model,
		SessionID: sessionID,
	}
}
