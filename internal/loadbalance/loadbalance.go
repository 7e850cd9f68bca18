// Package loadbalance implements Routex's LoadBalancer (C5): four selection
// strategies plus session affinity, grounded structurally on the teacher's
// internal/proxy/routing.go static-alias-map fallback idiom (kept as the
// "no match" path in the SmartRouter, not here) and spec §4.5's exact
// selection rules.
package loadbalance

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Strategy names (spec §4.5, also the admin API's /api/strategy values).
type Strategy string

const (
	StrategyPriority    Strategy = "priority"
	StrategyRoundRobin  Strategy = "round_robin"
	StrategyWeighted    Strategy = "weighted"
	StrategyLeastUsed   Strategy = "least_used"
)

// ErrNoAvailableChannel is returned when candidates is empty.
var ErrNoAvailableChannel = errors.New("loadbalance: no available channel")

// Candidate is the minimal view of a Channel the LoadBalancer needs —
// decoupled from internal/store so this package has no storage dependency.
type Candidate struct {
	ID           string
	Name         string
	Priority     int
	Weight       float64
	RequestCount int64
}

// SelectionContext carries optional session-affinity and model hints.
type SelectionContext struct {
	SessionID string
	Model     string
}

const sessionAffinityTTL = 5 * time.Hour

// LoadBalancer picks a channel from an enabled candidate set.
type LoadBalancer struct {
	mu       sync.Mutex
	strategy Strategy
	rrIndex  int

	affinity *lru.LRU[string, string] // sessionId -> channelId
}

// New creates a LoadBalancer using the given default strategy.
func New(strategy Strategy) *LoadBalancer {
	if strategy == "" {
		strategy = StrategyPriority
	}
	return &LoadBalancer{
		strategy: strategy,
		affinity: lru.NewLRU[string, string](100_000, nil, sessionAffinityTTL),
	}
}

// SetStrategy changes the active strategy (PUT /api/load-balancer/strategy).
func (lb *LoadBalancer) SetStrategy(s Strategy) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.strategy = s
}

// GetStrategy returns the active strategy.
func (lb *LoadBalancer) GetStrategy() Strategy {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.strategy
}

// Select picks a channel from candidates under the active strategy,
// consulting and updating session affinity first when sctx.SessionID is set.
func (lb *LoadBalancer) Select(candidates []Candidate, sctx SelectionContext) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoAvailableChannel
	}

	if sctx.SessionID != "" {
		if channelID, ok := lb.affinity.Get(sctx.SessionID); ok {
			for _, c := range candidates {
				if c.ID == channelID {
					return c, nil
				}
			}
			lb.affinity.Remove(sctx.SessionID)
		}
	}

	lb.mu.Lock()
	strategy := lb.strategy
	lb.mu.Unlock()

	chosen, err := lb.selectByStrategy(strategy, candidates)
	if err != nil {
		return Candidate{}, err
	}

	if sctx.SessionID != "" {
		lb.affinity.Add(sctx.SessionID, chosen.ID)
	}
	return chosen, nil
}

func (lb *LoadBalancer) selectByStrategy(strategy Strategy, candidates []Candidate) (Candidate, error) {
	switch strategy {
	case StrategyRoundRobin:
		return lb.selectRoundRobin(candidates)
	case StrategyWeighted:
		return selectWeighted(candidates)
	case StrategyLeastUsed:
		return selectLeastUsed(candidates), nil
	default:
		return selectPriority(candidates), nil
	}
}

// selectPriority picks the max-priority candidate; ties keep the order
// given by the Store (priority DESC, name ASC), so the first match wins.
func selectPriority(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Priority > best.Priority {
			best = c
		}
	}
	return best
}

func (lb *LoadBalancer) selectRoundRobin(candidates []Candidate) (Candidate, error) {
	sorted := sortedByName(candidates)
	lb.mu.Lock()
	defer lb.mu.Unlock()
	idx := lb.rrIndex % len(sorted)
	lb.rrIndex++
	return sorted[idx], nil
}

func sortedByName(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func selectWeighted(candidates []Candidate) (Candidate, error) {
	var total float64
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return selectPriority(candidates), nil
	}
	r := rand.Float64() * total
	for _, c := range candidates {
		r -= c.Weight
		if r <= 0 {
			return c, nil
		}
	}
	return candidates[len(candidates)-1], nil
}

func selectLeastUsed(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.RequestCount < best.RequestCount {
			best = c
		}
	}
	return best
}

// ResetRoundRobin resets the round-robin index, used by tests and by
// channel membership changes that should restart rotation from zero.
func (lb *LoadBalancer) ResetRoundRobin() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.rrIndex = 0
}

// InvalidateSession removes a session's affinity binding.
func (lb *LoadBalancer) InvalidateSession(sessionID string) {
	lb.affinity.Remove(sessionID)
}

// InvalidateCache clears the entire session-affinity table, used by C10's
// CacheWarmer.invalidateCache.
func (lb *LoadBalancer) InvalidateCache() {
	lb.affinity.Purge()
}
