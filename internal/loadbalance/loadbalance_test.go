package loadbalance

import (
	"testing"
)

func TestSelect_EmptyCandidatesErrors(t *testing.T) {
	lb := New(StrategyPriority)
	_, err := lb.Select(nil, SelectionContext{})
	if err != ErrNoAvailableChannel {
		t.Errorf("expected ErrNoAvailableChannel, got %v", err)
	}
}

func TestSelect_PriorityPicksHighest(t *testing.T) {
	lb := New(StrategyPriority)
	candidates := []Candidate{
		{ID: "a", Priority: 1},
		{ID: "b", Priority: 5},
		{ID: "c", Priority: 3},
	}
	got, err := lb.Select(candidates, SelectionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "b" {
		t.Errorf("expected the highest-priority candidate b, got %s", got.ID)
	}
}

func TestSelect_RoundRobinCyclesByName(t *testing.T) {
	lb := New(StrategyRoundRobin)
	candidates := []Candidate{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}, {ID: "c", Name: "c"}}

	var seen []string
	for i := 0; i < 6; i++ {
		got, err := lb.Select(candidates, SelectionContext{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen = append(seen, got.ID)
	}
	want := []string{"a", "b", "c", "a", "b", "c"}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("index %d: expected %s, got %s (full sequence %v)", i, want[i], seen[i], seen)
			break
		}
	}
}

func TestSelect_LeastUsedPicksLowestRequestCount(t *testing.T) {
	lb := New(StrategyLeastUsed)
	candidates := []Candidate{
		{ID: "a", RequestCount: 50},
		{ID: "b", RequestCount: 5},
		{ID: "c", RequestCount: 20},
	}
	got, err := lb.Select(candidates, SelectionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "b" {
		t.Errorf("expected the least-used candidate b, got %s", got.ID)
	}
}

func TestSelect_WeightedZeroWeightsFallsBackToPriority(t *testing.T) {
	lb := New(StrategyWeighted)
	candidates := []Candidate{{ID: "a", Priority: 1}, {ID: "b", Priority: 9}}
	got, err := lb.Select(candidates, SelectionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "b" {
		t.Errorf("expected zero-weight candidates to fall back to priority selection, got %s", got.ID)
	}
}

func TestSelect_WeightedSingleNonZeroCandidateAlwaysWins(t *testing.T) {
	lb := New(StrategyWeighted)
	candidates := []Candidate{{ID: "a", Weight: 1}, {ID: "b", Weight: 0}}
	for i := 0; i < 20; i++ {
		got, err := lb.Select(candidates, SelectionContext{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != "a" {
			t.Fatalf("expected the only weighted candidate a to always win, got %s", got.ID)
		}
	}
}

func TestSelect_SessionAffinityStickToPreviousChannel(t *testing.T) {
	lb := New(StrategyRoundRobin)
	candidates := []Candidate{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}}

	first, err := lb.Select(candidates, SelectionContext{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		got, err := lb.Select(candidates, SelectionContext{SessionID: "sess-1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != first.ID {
			t.Errorf("expected session affinity to stick to %s, got %s", first.ID, got.ID)
		}
	}
}

func TestSelect_SessionAffinityFallsThroughWhenChannelGone(t *testing.T) {
	lb := New(StrategyPriority)
	_, err := lb.Select([]Candidate{{ID: "a", Priority: 1}}, SelectionContext{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := lb.Select([]Candidate{{ID: "b", Priority: 1}}, SelectionContext{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "b" {
		t.Errorf("expected fallback to the only remaining candidate b, got %s", got.ID)
	}
}

func TestSetStrategyAndGetStrategy(t *testing.T) {
	lb := New(StrategyPriority)
	lb.SetStrategy(StrategyLeastUsed)
	if lb.GetStrategy() != StrategyLeastUsed {
		t.Errorf("expected GetStrategy to report the updated strategy")
	}
}

func TestInvalidateSession_RemovesAffinity(t *testing.T) {
	lb := New(StrategyRoundRobin)
	candidates := []Candidate{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}}
	lb.Select(candidates, SelectionContext{SessionID: "sess-1"})

	lb.InvalidateSession("sess-1")
	if _, ok := lb.affinity.Get("sess-1"); ok {
		t.Error("expected InvalidateSession to remove the session's affinity entry")
	}
}

func TestInvalidateCache_ClearsAllAffinity(t *testing.T) {
	lb := New(StrategyRoundRobin)
	candidates := []Candidate{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}}
	lb.Select(candidates, SelectionContext{SessionID: "sess-1"})
	lb.Select(candidates, SelectionContext{SessionID: "sess-2"})

	lb.InvalidateCache()

	if _, ok := lb.affinity.Get("sess-1"); ok {
		t.Error("expected InvalidateCache to purge session affinity entries")
	}
}
