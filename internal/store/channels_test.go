package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dctx-team/routex/internal/store"
)

func TestChannels_CreateValidatesRequiredFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateChannel(ctx, store.ChannelInput{Name: "a"})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected ErrValidation for missing type/models, got %v", err)
	}
}

func TestChannels_CreateDefaultsWeightAndStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c, err := st.CreateChannel(ctx, store.ChannelInput{Name: "a", Type: "anthropic", Models: []string{"claude-3"}})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if c.Weight != 1 {
		t.Errorf("expected default weight 1, got %v", c.Weight)
	}
	if c.Status != store.ChannelEnabled {
		t.Errorf("expected new channel to be enabled, got %v", c.Status)
	}
}

func TestChannels_CreateRejectsDuplicateName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := store.ChannelInput{Name: "dup", Type: "anthropic", Models: []string{"claude-3"}}
	if _, err := st.CreateChannel(ctx, in); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	_, err := st.CreateChannel(ctx, in)
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate name, got %v", err)
	}
}

func TestChannels_GetNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetChannel(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestChannels_UpdatePartialLeavesUnsetFieldsUnchanged(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c, err := st.CreateChannel(ctx, store.ChannelInput{
		Name: "original", Type: "anthropic", BaseURL: "https://a.example.com", Models: []string{"claude-3"},
	})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	newName := "renamed"
	updated, err := st.UpdateChannel(ctx, c.ID, store.ChannelPatch{Name: &newName})
	if err != nil {
		t.Fatalf("update channel: %v", err)
	}
	if updated.Name != "renamed" {
		t.Errorf("expected name to change to 'renamed', got %q", updated.Name)
	}
	if updated.BaseURL != "https://a.example.com" {
		t.Errorf("expected unset BaseURL field to remain unchanged, got %q", updated.BaseURL)
	}
}

func TestChannels_DeleteReportsExistence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c, err := st.CreateChannel(ctx, store.ChannelInput{Name: "a", Type: "anthropic", Models: []string{"claude-3"}})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	deleted, err := st.DeleteChannel(ctx, c.ID)
	if err != nil {
		t.Fatalf("delete channel: %v", err)
	}
	if !deleted {
		t.Error("expected DeleteChannel to report true for an existing channel")
	}

	deletedAgain, err := st.DeleteChannel(ctx, c.ID)
	if err != nil {
		t.Fatalf("delete channel (second time): %v", err)
	}
	if deletedAgain {
		t.Error("expected DeleteChannel to report false for an already-deleted channel")
	}
}

func TestChannels_ListEnabledExcludesDisabled(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c, err := st.CreateChannel(ctx, store.ChannelInput{Name: "a", Type: "anthropic", Models: []string{"claude-3"}})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	disabled := store.ChannelDisabled
	if _, err := st.UpdateChannel(ctx, c.ID, store.ChannelPatch{Status: &disabled}); err != nil {
		t.Fatalf("update channel: %v", err)
	}

	enabled, err := st.ListEnabledChannels(ctx)
	if err != nil {
		t.Fatalf("list enabled channels: %v", err)
	}
	for _, ch := range enabled {
		if ch.ID == c.ID {
			t.Error("expected disabled channel to be excluded from ListEnabledChannels")
		}
	}
}
