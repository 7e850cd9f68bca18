package api_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dctx-team/routex/internal/api"
	"github.com/dctx-team/routex/internal/breaker"
	"github.com/dctx-team/routex/internal/cachewarmer"
	"github.com/dctx-team/routex/internal/config"
	"github.com/dctx-team/routex/internal/loadbalance"
	"github.com/dctx-team/routex/internal/metrics"
	"github.com/dctx-team/routex/internal/proxy"
	"github.com/dctx-team/routex/internal/smartrouter"
	"github.com/dctx-team/routex/internal/store"
	"github.com/dctx-team/routex/internal/tracer"
	"github.com/dctx-team/routex/internal/transform"
)

// idFromBody extracts data.id from a {success, data} handler response body,
// used to chain a create call into a follow-up get/update/delete in tests.
func idFromBody(t *testing.T, body []byte) string {
	t.Helper()
	var v struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("unmarshal id from body: %v (%s)", err, body)
	}
	if v.Data.ID == "" {
		t.Fatalf("expected a non-empty id in body %s", body)
	}
	return v.Data.ID
}

// newTestDeps wires a full Deps bundle against a temp-file SQLite store, the
// same collaborators internal/app/init.go builds in production.
func newTestDeps(t *testing.T) *api.Deps {
	t.Helper()
	return newTestDepsWithOptions(t, store.Options{})
}

// newTestDepsFastFlush is newTestDeps with the batched request-log writer
// configured to flush after a single entry, for tests that log a request
// and immediately expect it to be queryable.
func newTestDepsFastFlush(t *testing.T) *api.Deps {
	t.Helper()
	return newTestDepsWithOptions(t, store.Options{
		BatchHighWater: 1,
		FlushInterval:  50 * time.Millisecond,
	})
}

func newTestDepsWithOptions(t *testing.T, opts store.Options) *api.Deps {
	t.Helper()

	dir := t.TempDir()
	opts.Path = filepath.Join(dir, "routex.db")
	st, err := store.Open(opts, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	met := metrics.New()
	tr := tracer.New(1000, nil)
	br := breaker.New(breaker.Config{ErrorThreshold: 5})
	lb := loadbalance.New(loadbalance.StrategyPriority)
	router := smartrouter.New()
	xforms := transform.NewManager(nil)

	engine := proxy.NewEngine(st, met, tr, br, lb, router, xforms, nil)
	t.Cleanup(engine.Close)

	warmer := cachewarmer.New(st, lb, met, nil, 0)
	t.Cleanup(warmer.Close)

	cfg := &config.Config{Locale: "en", LoadBalanceStrategy: "priority"}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return api.NewDeps(st, met, tr, br, lb, router, xforms, engine, warmer, nil, cfg, log, "test")
}
