// Package cachewarmer implements C10: a background refresher that keeps the
// Store's row cache and the LoadBalancer's selection cache warm so the first
// request after a cold start (or after an admin mutation invalidates a
// cache) doesn't pay a full database round trip.
//
// Grounded on internal/proxy/healthchecker.go's ticker-plus-busy-flag idiom:
// same shape (NewX starts a background goroutine, Close stops it via a done
// channel and WaitGroup), repurposed from health probing to cache warming.
package cachewarmer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dctx-team/routex/internal/loadbalance"
	"github.com/dctx-team/routex/internal/metrics"
	"github.com/dctx-team/routex/internal/store"
)

// Target is one of the cache domains this warmer can selectively invalidate.
type Target string

const (
	TargetChannels Target = "channels"
	TargetRouting  Target = "routing"
	TargetAll      Target = ""
)

// Warmer periodically re-reads the hot paths of the Store and forces the
// LoadBalancer to recompute its selection state, so a cold cache never shows
// up on the request-serving path.
type Warmer struct {
	store *store.Store
	lb    *loadbalance.LoadBalancer
	met   *metrics.Registry
	log   *slog.Logger

	interval time.Duration

	busy atomic.Bool
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Warmer. It does not start the background loop; call Start.
func New(st *store.Store, lb *loadbalance.LoadBalancer, met *metrics.Registry, log *slog.Logger, interval time.Duration) *Warmer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Warmer{
		store:    st,
		lb:       lb,
		met:      met,
		log:      log,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs an optional synchronous warm cycle (when warmOnStartup is set)
// and then launches the background refresh loop.
func (w *Warmer) Start(ctx context.Context, warmOnStartup bool) {
	if warmOnStartup {
		w.warm(ctx)
	}
	w.wg.Add(1)
	go w.run(ctx)
}

// Close stops the background refresh loop.
func (w *Warmer) Close() {
	close(w.done)
	w.wg.Wait()
}

func (w *Warmer) run(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.warm(ctx)
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// warm forces a re-read of the channels and routing rules tables (priming
// the Store's row cache) and re-derives the LoadBalancer's candidate list,
// guarded by a single-flight busy flag so an overrunning cycle never stacks.
func (w *Warmer) warm(ctx context.Context) {
	if !w.busy.CompareAndSwap(false, true) {
		return
	}
	defer w.busy.Store(false)

	start := time.Now()

	channels, err := w.store.ListEnabledChannels(ctx)
	if err != nil {
		w.log.Warn("cachewarmer: list enabled channels failed", "error", err)
	}

	if _, err := w.store.ListEnabledRoutingRules(ctx); err != nil {
		w.log.Warn("cachewarmer: list enabled routing rules failed", "error", err)
	}

	if _, err := w.store.GetAnalytics(ctx); err != nil {
		w.log.Warn("cachewarmer: analytics aggregate failed", "error", err)
	}

	models := make(map[string]struct{})
	for _, ch := range channels {
		for _, m := range ch.Models {
			models[m] = struct{}{}
		}
	}
	candidates := make([]loadbalance.Candidate, 0, len(channels))
	for _, ch := range channels {
		candidates = append(candidates, loadbalance.Candidate{
			ID:       ch.ID,
			Name:     ch.Name,
			Priority: ch.Priority,
			Weight:   ch.Weight,
		})
	}
	for model := range models {
		if len(candidates) == 0 {
			break
		}
		if _, err := w.lb.Select(candidates, loadbalance.SelectionContext{Model: model}); err != nil {
			continue
		}
	}

	if w.met != nil {
		w.met.ObserveHistogram("cachewarmer_cycle_seconds", "Duration of a cache warm cycle", nil, time.Since(start).Seconds(), nil)
		w.met.SetGauge("cachewarmer_last_run_timestamp", "Unix timestamp of the last warm cycle", float64(time.Now().Unix()), nil)
	}
	w.log.Debug("cachewarmer: warm cycle complete", "channels", len(channels), "models", len(models), "duration_ms", time.Since(start).Milliseconds())
}

// InvalidateCache drops the LoadBalancer's selection cache for the given
// target and immediately re-warms it. TargetAll (empty string) invalidates
// everything.
func (w *Warmer) InvalidateCache(ctx context.Context, target Target) {
	switch target {
	case TargetChannels, TargetAll:
		w.lb.InvalidateCache()
	}
	w.warm(ctx)
}
