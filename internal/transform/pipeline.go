package transform

import (
	"log/slog"
	"sync"
)

// Ref is one (name, options) pair in a channel's transformer chain.
type Ref struct {
	Name    string
	Options map[string]any
}

// Manager holds the name -> Transformer registry and applies ordered chains.
type Manager struct {
	mu    sync.RWMutex
	named map[string]Transformer
	log   *slog.Logger
}

// NewManager creates an empty Manager; call Register to populate it.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{named: make(map[string]Transformer), log: log}
}

// Register adds (or replaces) a named transformer. New providers are new
// registrations — no inheritance is needed (spec §9).
func (m *Manager) Register(t Transformer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.named[t.Name()] = t
}

func (m *Manager) lookup(name string) (Transformer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.named[name]
	return t, ok
}

// ApplyRequest applies refs left to right, merging emitted headers (later
// overrides earlier). Unknown names are skipped with a warning; a
// transformer error is logged and the pipeline continues with the
// pre-transform body — never a fatal request failure (spec §4.6).
func (m *Manager) ApplyRequest(body Body, refs []Ref) (Body, Headers) {
	headers := make(Headers)
	for _, ref := range refs {
		t, ok := m.lookup(ref.Name)
		if !ok {
			m.log.Warn("transform: unknown transformer, skipping", slog.String("name", ref.Name))
			continue
		}
		out, h, err := t.TransformRequest(body, ref.Options)
		if err != nil {
			m.log.Warn("transform: request transform failed, using pre-transform body",
				slog.String("name", ref.Name), slog.String("error", err.Error()))
			continue
		}
		body = out
		for k, v := range h {
			headers[k] = v
		}
	}
	return body, headers
}

// ApplyResponse applies refs in the reverse order of the same list (spec §4.6).
func (m *Manager) ApplyResponse(body Body, refs []Ref) Body {
	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		t, ok := m.lookup(ref.Name)
		if !ok {
			m.log.Warn("transform: unknown transformer, skipping", slog.String("name", ref.Name))
			continue
		}
		out, err := t.TransformResponse(body, ref.Options)
		if err != nil {
			m.log.Warn("transform: response transform failed, using pre-transform body",
				slog.String("name", ref.Name), slog.String("error", err.Error()))
			continue
		}
		body = out
	}
	return body
}
