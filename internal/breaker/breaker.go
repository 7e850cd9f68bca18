// Package breaker implements Routex's per-channel circuit breaker (C6).
//
// Grounded on the teacher's internal/proxy/circuitbreaker.go per-provider
// mutex-guarded state-struct shape, but implementing spec §4.4's exact
// two-state contract (enabled / rate_limited with a hard 60s reset) instead
// of the teacher's three-state closed/open/half-open model — see DESIGN.md
// for why the simpler model was chosen.
package breaker

import (
	"sync"
	"time"
)

// Config holds circuit breaker tuning parameters.
type Config struct {
	// ErrorThreshold is the number of consecutive failures that opens the
	// breaker. Default 5 (spec §4.4).
	ErrorThreshold int
	// ResetTimeout is how long after the last failure the breaker
	// auto-resets. Default 60s (spec §4.4).
	ResetTimeout time.Duration
}

func (c Config) errorThreshold() int {
	if c.ErrorThreshold > 0 {
		return c.ErrorThreshold
	}
	return 5
}

func (c Config) resetTimeout() time.Duration {
	if c.ResetTimeout > 0 {
		return c.ResetTimeout
	}
	return 60 * time.Second
}

type channelState struct {
	mu                  sync.Mutex
	consecutiveFailures int
	open                bool
	lastFailure         time.Time
}

// Breaker tracks independent two-state breakers keyed by channel id.
type Breaker struct {
	cfg Config
	mu  sync.RWMutex
	ch  map[string]*channelState
}

// New creates a Breaker with the given config (zero value uses spec defaults).
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, ch: make(map[string]*channelState)}
}

func (b *Breaker) state(channelID string) *channelState {
	b.mu.RLock()
	s, ok := b.ch[channelID]
	b.mu.RUnlock()
	if ok {
		return s
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.ch[channelID]; ok {
		return s
	}
	s = &channelState{}
	b.ch[channelID] = s
	return s
}

// IsOpen reports whether channelID's breaker currently rejects requests.
// A breaker auto-resets (and returns false) once ResetTimeout has elapsed
// since the last recorded failure.
func (b *Breaker) IsOpen(channelID string) bool {
	s := b.state(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return false
	}
	if time.Since(s.lastFailure) > b.cfg.resetTimeout() {
		s.open = false
		s.consecutiveFailures = 0
		return false
	}
	return true
}

// RecordFailure increments the consecutive-failure counter for channelID.
// Reaching ErrorThreshold opens the breaker. Returns true if this call
// transitioned the breaker from closed to open.
func (b *Breaker) RecordFailure(channelID string) (opened bool) {
	s := b.state(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	s.lastFailure = time.Now()
	if !s.open && s.consecutiveFailures >= b.cfg.errorThreshold() {
		s.open = true
		opened = true
	}
	return opened
}

// RecordSuccess immediately resets the breaker for channelID.
func (b *Breaker) RecordSuccess(channelID string) {
	s := b.state(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	s.open = false
}

// Reset forces a channel's breaker back to closed, used when an operator
// manually re-enables a channel.
func (b *Breaker) Reset(channelID string) {
	b.RecordSuccess(channelID)
}

// ConsecutiveFailures returns the current failure tally for channelID.
func (b *Breaker) ConsecutiveFailures(channelID string) int {
	s := b.state(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}
