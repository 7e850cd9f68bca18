package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dctx-team/routex/internal/store"
)

// newTestStoreFastFlush configures the batched log writer to flush after a
// single buffered entry, so tests can assert on freshly logged requests
// without sleeping for the ticker interval.
func newTestStoreFastFlush(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Options{
		Path:           filepath.Join(dir, "routex.db"),
		BatchHighWater: 1,
		FlushInterval:  50 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func waitForRequestCount(t *testing.T, st *store.Store, want int) store.RequestPage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		page, err := st.GetRequestsFiltered(context.Background(), store.RequestQuery{})
		if err != nil {
			t.Fatalf("get requests filtered: %v", err)
		}
		if page.Total >= want || time.Now().After(deadline) {
			return page
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRequests_LogRequestIsQueryable(t *testing.T) {
	st := newTestStoreFastFlush(t)

	st.LogRequest(context.Background(), store.RequestLog{
		ChannelID: "chan-a", Model: "claude-3", Method: "POST", Path: "/v1/messages",
		StatusCode: 200, LatencyMs: 120, InputTokens: 100, OutputTokens: 50, Success: true,
	})

	page := waitForRequestCount(t, st, 1)
	if page.Total != 1 {
		t.Fatalf("expected 1 logged request, got %d", page.Total)
	}
	if page.Rows[0].ChannelID != "chan-a" {
		t.Errorf("expected channel_id to round-trip, got %q", page.Rows[0].ChannelID)
	}
}

func TestRequests_FilteredByStatus(t *testing.T) {
	st := newTestStoreFastFlush(t)
	ctx := context.Background()

	st.LogRequest(ctx, store.RequestLog{ChannelID: "a", Model: "m", Method: "POST", Path: "/v1/messages", Success: true})
	st.LogRequest(ctx, store.RequestLog{ChannelID: "a", Model: "m", Method: "POST", Path: "/v1/messages", Success: false})
	waitForRequestCount(t, st, 2)

	page, err := st.GetRequestsFiltered(ctx, store.RequestQuery{Status: "failure"})
	if err != nil {
		t.Fatalf("get requests filtered: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 failed request, got %d", page.Total)
	}
	if page.Rows[0].Success {
		t.Error("expected the filtered row to be a failure")
	}
}

func TestRequests_FilteredRejectsInvertedTimeRange(t *testing.T) {
	st := newTestStoreFastFlush(t)
	now := time.Now()
	since := now
	until := now.Add(-time.Hour)

	_, err := st.GetRequestsFiltered(context.Background(), store.RequestQuery{Since: &since, Until: &until})
	if err == nil {
		t.Error("expected an error for since >= until")
	}
}

func TestRequests_LimitClampedToMax(t *testing.T) {
	st := newTestStoreFastFlush(t)
	page, err := st.GetRequestsFiltered(context.Background(), store.RequestQuery{Limit: 5000})
	if err != nil {
		t.Fatalf("get requests filtered: %v", err)
	}
	if page.EffectiveLimit != 1000 {
		t.Errorf("expected limit clamped to 1000, got %d", page.EffectiveLimit)
	}
}

func TestAnalytics_AggregatesLoggedRequests(t *testing.T) {
	st := newTestStoreFastFlush(t)
	ctx := context.Background()

	st.LogRequest(ctx, store.RequestLog{
		ChannelID: "a", Model: "m", Method: "POST", Path: "/v1/messages",
		InputTokens: 1_000_000, OutputTokens: 1_000_000, Success: true,
	})
	waitForRequestCount(t, st, 1)

	a, err := st.GetAnalytics(ctx)
	if err != nil {
		t.Fatalf("get analytics: %v", err)
	}
	if a.Total != 1 {
		t.Fatalf("expected 1 total request, got %d", a.Total)
	}
	if a.EstimatedCost <= 0 {
		t.Errorf("expected a positive estimated cost, got %v", a.EstimatedCost)
	}
}
