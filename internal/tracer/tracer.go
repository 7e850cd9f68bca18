// Package tracer implements Routex's in-memory span tree (C3): a bounded
// spanId → Span map with W3C traceparent propagation, grounded structurally
// on the teacher's internal/proxy/healthchecker.go bounded-background-state
// idiom (mutex-guarded struct, no external tracing SDK — see DESIGN.md for
// why go.opentelemetry.io/otel was considered and rejected here).
package tracer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Span.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// LogEntry is one log line attached to a span.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
}

// Span is a single tracing record.
type Span struct {
	TraceID      string            `json:"traceId"`
	SpanID       string            `json:"spanId"`
	ParentSpanID string            `json:"parentSpanId,omitempty"`
	Name         string            `json:"name"`
	StartTime    time.Time         `json:"startTime"`
	EndTime      *time.Time        `json:"endTime,omitempty"`
	DurationMs   *int64            `json:"duration,omitempty"`
	Status       Status            `json:"status"`
	Tags         map[string]string `json:"tags,omitempty"`
	Logs         []LogEntry        `json:"logs,omitempty"`

	insertSeq uint64
}

// Context carries the identifiers needed to continue or start a trace.
type Context struct {
	TraceID      string
	ParentSpanID string
}

// Tracer is the bounded in-memory span store.
type Tracer struct {
	mu       sync.Mutex
	spans    map[string]*Span
	order    []string // insertion order, for FIFO eviction
	maxSpans int
	seq      uint64
	log      *slog.Logger
}

// New creates a Tracer bounded to maxSpans (spec default 10,000).
func New(maxSpans int, log *slog.Logger) *Tracer {
	if maxSpans <= 0 {
		maxSpans = 10_000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracer{
		spans:    make(map[string]*Span),
		maxSpans: maxSpans,
		log:      log,
	}
}

// StartSpan allocates ids if absent and stores the span as pending.
func (t *Tracer) StartSpan(name string, ctx Context, tags map[string]string) *Span {
	traceID := ctx.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	s := &Span{
		TraceID:      traceID,
		SpanID:       uuid.NewString(),
		ParentSpanID: ctx.ParentSpanID,
		Name:         name,
		StartTime:    time.Now(),
		Status:       StatusPending,
		Tags:         cloneTags(tags),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	s.insertSeq = t.seq
	t.spans[s.SpanID] = s
	t.order = append(t.order, s.SpanID)
	t.evictLocked()
	return s
}

func (t *Tracer) evictLocked() {
	for len(t.order) > t.maxSpans {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.spans, oldest)
	}
}

// EndSpan sets endTime/duration and merges extra tags. No-op on unknown id.
func (t *Tracer) EndSpan(spanID string, status Status, extraTags map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spans[spanID]
	if !ok {
		t.log.Warn("tracer: endSpan on unknown span", slog.String("span_id", spanID))
		return
	}
	now := time.Now()
	s.EndTime = &now
	dur := now.Sub(s.StartTime).Milliseconds()
	s.DurationMs = &dur
	s.Status = status
	for k, v := range extraTags {
		if s.Tags == nil {
			s.Tags = make(map[string]string)
		}
		s.Tags[k] = v
	}
}

// AddTags merges tags into an existing span.
func (t *Tracer) AddTags(spanID string, tags map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spans[spanID]
	if !ok {
		return
	}
	if s.Tags == nil {
		s.Tags = make(map[string]string)
	}
	for k, v := range tags {
		s.Tags[k] = v
	}
}

// AddLog appends a log entry to a span.
func (t *Tracer) AddLog(spanID, message, level string) {
	if level == "" {
		level = "info"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spans[spanID]
	if !ok {
		return
	}
	s.Logs = append(s.Logs, LogEntry{Timestamp: time.Now(), Message: message, Level: level})
}

// GetSpan returns a copy of a span by id.
func (t *Tracer) GetSpan(spanID string) (Span, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spans[spanID]
	if !ok {
		return Span{}, false
	}
	return *s, true
}

// GetTraceSpans returns every span sharing traceID, oldest first.
func (t *Tracer) GetTraceSpans(traceID string) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Span
	for _, id := range t.order {
		s := t.spans[id]
		if s != nil && s.TraceID == traceID {
			out = append(out, *s)
		}
	}
	return out
}

// ClearOldSpans removes spans whose startTime is older than olderThanMs ago.
func (t *Tracer) ClearOldSpans(olderThanMs int64) int {
	cutoff := time.Now().Add(-time.Duration(olderThanMs) * time.Millisecond)
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.order[:0:0]
	removed := 0
	for _, id := range t.order {
		s := t.spans[id]
		if s != nil && s.StartTime.Before(cutoff) {
			delete(t.spans, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	return removed
}

// Clear removes every span.
func (t *Tracer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = make(map[string]*Span)
	t.order = nil
}

// Stats reports the current span count, for the tracing admin endpoints.
func (t *Tracer) Stats() (count, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans), t.maxSpans
}

func cloneTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// ExtractTraceContext recognizes x-trace-id, x-request-id and W3C traceparent.
func ExtractTraceContext(headers map[string]string) Context {
	if tp, ok := headerLookup(headers, "traceparent"); ok {
		parts := strings.Split(tp, "-")
		if len(parts) >= 3 {
			return Context{TraceID: parts[1], ParentSpanID: parts[2]}
		}
	}
	if tid, ok := headerLookup(headers, "x-trace-id"); ok {
		ctx := Context{TraceID: tid}
		if sid, ok := headerLookup(headers, "x-parent-span-id"); ok {
			ctx.ParentSpanID = sid
		}
		return ctx
	}
	if rid, ok := headerLookup(headers, "x-request-id"); ok {
		return Context{TraceID: rid}
	}
	return Context{}
}

func headerLookup(headers map[string]string, key string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, key) && v != "" {
			return v, true
		}
	}
	return "", false
}

// InjectTraceContext writes x-trace-id, x-span-id, x-parent-span-id? and a
// synthesized W3C traceparent into headers.
func InjectTraceContext(headers map[string]string, s Span) {
	headers["x-trace-id"] = s.TraceID
	headers["x-span-id"] = s.SpanID
	if s.ParentSpanID != "" {
		headers["x-parent-span-id"] = s.ParentSpanID
	}
	headers["traceparent"] = fmt.Sprintf("00-%s-%s-01", s.TraceID, s.SpanID)
}
