package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/badge"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage"
)

func TestCreateGetPut(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateBadgeState(ctx, badge.State{
		TokenID:         "42",
		BaseImageCID:    "QmBase",
		CurrentImageCID: "QmBase",
	})
	if err != nil {
		t.Fatalf("CreateBadgeState: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1 on create, got %d", created.Version)
	}

	if _, err := store.CreateBadgeState(ctx, badge.State{TokenID: "42", BaseImageCID: "QmBase"}); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := store.GetBadgeState(ctx, "42")
	if err != nil {
		t.Fatalf("GetBadgeState: %v", err)
	}
	got.EquippedFlair = append(got.EquippedFlair, flair.Item{FlairID: "a", ImageCID: "QmA", SlotIndex: 0})
	updated, err := store.PutBadgeState(ctx, got)
	if err != nil {
		t.Fatalf("PutBadgeState: %v", err)
	}
	if updated.Version != 2 || len(updated.EquippedFlair) != 1 {
		t.Fatalf("unexpected updated state %+v", updated)
	}

	if _, err := store.GetBadgeState(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutRejectsStaleVersion(t *testing.T) {
	store := New()
	ctx := context.Background()

	st, err := store.CreateBadgeState(ctx, badge.State{TokenID: "42", BaseImageCID: "QmBase"})
	if err != nil {
		t.Fatalf("CreateBadgeState: %v", err)
	}

	if _, err := store.PutBadgeState(ctx, st); err != nil {
		t.Fatalf("first put: %v", err)
	}

	// Second writer holding the old version loses.
	if _, err := store.PutBadgeState(ctx, st); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	store := New()
	ctx := context.Background()

	st, _ := store.CreateBadgeState(ctx, badge.State{
		TokenID:       "42",
		BaseImageCID:  "QmBase",
		EquippedFlair: []flair.Item{{FlairID: "a", ImageCID: "QmA", SlotIndex: 0}},
	})
	st.EquippedFlair[0].FlairID = "mutated"

	fresh, _ := store.GetBadgeState(ctx, "42")
	if fresh.EquippedFlair[0].FlairID != "a" {
		t.Fatal("stored state was mutated through a returned slice")
	}
}
