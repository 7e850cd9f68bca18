package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dctx-team/routex/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Options{Path: filepath.Join(dir, "routex.db")}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStore_Ping(t *testing.T) {
	st := newTestStore(t)
	if err := st.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestStore_CacheStats_StartsAtZero(t *testing.T) {
	st := newTestStore(t)
	hits, misses := st.CacheStats()
	if hits != 0 || misses != 0 {
		t.Errorf("expected zero hits/misses on a fresh store, got hits=%d misses=%d", hits, misses)
	}
}

func TestStore_CacheStats_TracksGetChannel(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c, err := st.CreateChannel(ctx, store.ChannelInput{Name: "a", Type: "anthropic", Models: []string{"claude-3"}})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	if _, err := st.GetChannel(ctx, c.ID); err != nil {
		t.Fatalf("get channel (miss, populates cache): %v", err)
	}
	if _, err := st.GetChannel(ctx, c.ID); err != nil {
		t.Fatalf("get channel (hit): %v", err)
	}

	hits, misses := st.CacheStats()
	if hits < 1 {
		t.Errorf("expected at least one cache hit, got %d", hits)
	}
	if misses < 1 {
		t.Errorf("expected at least one cache miss, got %d", misses)
	}
}
