package metrics

import (
	"strings"
	"testing"
)

func TestIncCounter_AccumulatesAcrossCalls(t *testing.T) {
	r := New()
	r.IncCounter("test_counter_total", "test counter", 1, map[string]string{"channel": "a"})
	r.IncCounter("test_counter_total", "test counter", 2, map[string]string{"channel": "a"})

	families, err := r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := findFamily(t, families, "test_counter_total")
	if len(f.Samples) != 1 || f.Samples[0].Value != 3 {
		t.Errorf("expected accumulated value 3, got %+v", f.Samples)
	}
}

func TestIncCounter_DistinctLabelSetsAreSeparateSeries(t *testing.T) {
	r := New()
	r.IncCounter("test_counter_total", "test counter", 1, map[string]string{"channel": "a"})
	r.IncCounter("test_counter_total", "test counter", 5, map[string]string{"channel": "b"})

	families, err := r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := findFamily(t, families, "test_counter_total")
	if len(f.Samples) != 2 {
		t.Fatalf("expected 2 distinct label-set series, got %d", len(f.Samples))
	}
}

func TestSetGauge_OverwritesPreviousValue(t *testing.T) {
	r := New()
	r.SetGauge("test_gauge", "test gauge", 10, nil)
	r.SetGauge("test_gauge", "test gauge", 42, nil)

	families, err := r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := findFamily(t, families, "test_gauge")
	if len(f.Samples) != 1 || f.Samples[0].Value != 42 {
		t.Errorf("expected gauge overwritten to 42, got %+v", f.Samples)
	}
}

func TestIncGaugeDecGauge_AdjustByOne(t *testing.T) {
	r := New()
	r.IncGauge("test_gauge2", "test gauge", nil)
	r.IncGauge("test_gauge2", "test gauge", nil)
	r.DecGauge("test_gauge2", "test gauge", nil)

	families, err := r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := findFamily(t, families, "test_gauge2")
	if len(f.Samples) != 1 || f.Samples[0].Value != 1 {
		t.Errorf("expected gauge at 1 after two increments and one decrement, got %+v", f.Samples)
	}
}

func TestObserveHistogram_RecordsSampleSum(t *testing.T) {
	r := New()
	r.ObserveHistogram("test_hist_seconds", "test histogram", []float64{0.1, 1, 10}, 0.5, nil)
	r.ObserveHistogram("test_hist_seconds", "test histogram", []float64{0.1, 1, 10}, 1.5, nil)

	families, err := r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := findFamily(t, families, "test_hist_seconds")
	if len(f.Samples) != 1 || f.Samples[0].Value != 2.0 {
		t.Errorf("expected histogram sample sum 2.0, got %+v", f.Samples)
	}
}

func TestObserveSummary_RecordsSampleSum(t *testing.T) {
	r := New()
	r.ObserveSummary("test_summary_seconds", "test summary", defaultObjectives, 1, nil)
	r.ObserveSummary("test_summary_seconds", "test summary", defaultObjectives, 2, nil)

	families, err := r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := findFamily(t, families, "test_summary_seconds")
	if len(f.Samples) != 1 || f.Samples[0].Value != 3 {
		t.Errorf("expected summary sample sum 3, got %+v", f.Samples)
	}
}

func TestRegisterDefaults_SeedsExpectedFamilies(t *testing.T) {
	r := New()
	families, err := r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"routex_requests_total",
		"routex_tokens_total",
		"routex_request_duration_seconds",
		"routex_channel_status",
		"routex_circuit_breaker_open_total",
		"routex_circuit_breaker_open",
		"routex_store_cache_hits_total",
		"routex_store_cache_misses_total",
		"routex_retry_exhausted_total",
		"routex_tee_failed_total",
	}
	for _, name := range want {
		found := false
		for _, f := range families {
			if f.Name == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected default family %q to be registered", name)
		}
	}
}

func TestReset_ClearsValuesButKeepsRegistration(t *testing.T) {
	r := New()
	r.IncCounter("test_counter_total", "test counter", 5, map[string]string{"channel": "a"})

	r.Reset()

	families, err := r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range families {
		if f.Name == "test_counter_total" {
			for _, s := range f.Samples {
				if s.Value != 0 {
					t.Errorf("expected counter reset to 0, got %v", s.Value)
				}
			}
		}
	}

	// Re-incrementing after reset must still work against the same vector.
	r.IncCounter("test_counter_total", "test counter", 1, map[string]string{"channel": "a"})
	families, err = r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := findFamily(t, families, "test_counter_total")
	if len(f.Samples) != 1 || f.Samples[0].Value != 1 {
		t.Errorf("expected counter at 1 after reset+increment, got %+v", f.Samples)
	}
}

func TestObserveRuntimeMemory_SetsProcessGauges(t *testing.T) {
	r := New()
	r.ObserveRuntimeMemory()

	families, err := r.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"routex_process_heap_alloc_bytes", "routex_process_heap_sys_bytes", "routex_process_stack_sys_bytes", "routex_uptime_seconds"} {
		findFamily(t, families, name)
	}
}

func TestEscapeLabelValue_EscapesBackslashQuoteNewline(t *testing.T) {
	got := EscapeLabelValue(`a\b"c` + "\n" + "d")
	want := `a\\b\"c\nd`
	if got != want {
		t.Errorf("EscapeLabelValue() = %q, want %q", got, want)
	}
}

func TestHandler_ServesPrometheusTextExposition(t *testing.T) {
	r := New()
	r.IncCounter("routex_requests_total", "Total proxy requests", 1, map[string]string{"channel": "a", "status": "success"})

	// Exercise via the underlying Prometheus registry directly to avoid
	// depending on a live fasthttp listener in this package-level test.
	mfs, err := r.PromRegistry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "routex_requests_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected routex_requests_total to be gatherable from the underlying registry")
	}
	if r.Handler() == nil {
		t.Error("expected a non-nil fasthttp handler")
	}
}

func findFamily(t *testing.T, families []Family, name string) Family {
	t.Helper()
	for _, f := range families {
		if f.Name == name {
			return f
		}
	}
	var names []string
	for _, f := range families {
		names = append(names, f.Name)
	}
	t.Fatalf("family %q not found among %s", name, strings.Join(names, ", "))
	return Family{}
}
