package breaker

import (
	"testing"
	"time"
)

func TestBreaker_InitialStateClosed(t *testing.T) {
	b := New(Config{})
	if b.IsOpen("chan-a") {
		t.Error("a fresh channel should start closed")
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{ErrorThreshold: 3})

	for i := 0; i < 2; i++ {
		if opened := b.RecordFailure("chan-a"); opened {
			t.Fatalf("should not open before the threshold, iteration %d", i)
		}
	}
	if b.IsOpen("chan-a") {
		t.Fatal("should remain closed below the threshold")
	}

	if opened := b.RecordFailure("chan-a"); !opened {
		t.Error("expected the threshold-reaching failure to report opened=true")
	}
	if !b.IsOpen("chan-a") {
		t.Error("expected the breaker to be open after reaching the threshold")
	}
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := New(Config{ErrorThreshold: 3})
	b.RecordFailure("chan-a")
	b.RecordFailure("chan-a")
	b.RecordSuccess("chan-a")

	if got := b.ConsecutiveFailures("chan-a"); got != 0 {
		t.Errorf("expected 0 consecutive failures after success, got %d", got)
	}
	if b.IsOpen("chan-a") {
		t.Error("success should not leave the breaker open")
	}
}

func TestBreaker_AutoResetsAfterTimeout(t *testing.T) {
	b := New(Config{ErrorThreshold: 1, ResetTimeout: time.Millisecond})
	b.RecordFailure("chan-a")
	if !b.IsOpen("chan-a") {
		t.Fatal("expected breaker to open after a single failure at threshold 1")
	}

	time.Sleep(5 * time.Millisecond)
	if b.IsOpen("chan-a") {
		t.Error("expected the breaker to auto-reset once ResetTimeout has elapsed")
	}
	if got := b.ConsecutiveFailures("chan-a"); got != 0 {
		t.Errorf("expected failure counter to clear on auto-reset, got %d", got)
	}
}

func TestBreaker_IndependentChannels(t *testing.T) {
	b := New(Config{ErrorThreshold: 1})
	b.RecordFailure("chan-a")

	if !b.IsOpen("chan-a") {
		t.Error("chan-a should be open")
	}
	if b.IsOpen("chan-b") {
		t.Error("chan-b should remain closed")
	}
}

func TestBreaker_ResetForcesClosed(t *testing.T) {
	b := New(Config{ErrorThreshold: 1})
	b.RecordFailure("chan-a")
	if !b.IsOpen("chan-a") {
		t.Fatal("expected chan-a to be open before Reset")
	}

	b.Reset("chan-a")
	if b.IsOpen("chan-a") {
		t.Error("expected Reset to force the breaker closed")
	}
}

func TestBreaker_DefaultsApplyWithZeroConfig(t *testing.T) {
	b := New(Config{})
	for i := 0; i < 4; i++ {
		b.RecordFailure("chan-a")
	}
	if b.IsOpen("chan-a") {
		t.Fatal("default threshold is 5; 4 failures should not open the breaker")
	}
	b.RecordFailure("chan-a")
	if !b.IsOpen("chan-a") {
		t.Error("the 5th consecutive failure should open the breaker under default config")
	}
}
