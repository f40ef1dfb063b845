package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/badge"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage"
)

var stateColumns = []string{
	"token_id", "owner_fid", "base_image_cid", "current_image_cid",
	"equipped_flair", "version", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestCreateBadgeState(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO badge_states").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.CreateBadgeState(context.Background(), badge.State{
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

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateBadgeStateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO badge_states").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.CreateBadgeState(context.Background(), badge.State{
		TokenID:      "42",
		BaseImageCID: "QmBase",
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetBadgeState(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM badge_states").
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows(stateColumns).AddRow(
			"42", "fid-1", "QmBase", "QmCurrent",
			[]byte(`[{"flairId":"a","imageCid":"QmA","slotIndex":1}]`),
			3, now, now,
		))

	st, err := store.GetBadgeState(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetBadgeState: %v", err)
	}
	if st.Version != 3 || st.CurrentImageCID != "QmCurrent" {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(st.EquippedFlair) != 1 || st.EquippedFlair[0].SlotIndex != 1 {
		t.Fatalf("unexpected occupancy %+v", st.EquippedFlair)
	}
}

func TestGetBadgeStateMiss(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM badge_states").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetBadgeState(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutBadgeState(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE badge_states").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := store.PutBadgeState(context.Background(), badge.State{
		TokenID:         "42",
		CurrentImageCID: "QmNew",
		Version:         3,
	})
	if err != nil {
		t.Fatalf("PutBadgeState: %v", err)
	}
	if updated.Version != 4 {
		t.Fatalf("expected version bump to 4, got %d", updated.Version)
	}
}

func TestPutBadgeStateStaleVersion(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	// Zero rows affected, but the row exists at a newer version: the caller
	// lost the compare-and-swap.
	mock.ExpectExec("UPDATE badge_states").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM badge_states").
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows(stateColumns).AddRow(
			"42", "", "QmBase", "QmBase", []byte(`[]`), 4, now, now,
		))

	_, err := store.PutBadgeState(context.Background(), badge.State{
		TokenID: "42",
		Version: 3,
	})
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestPutBadgeStateMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE badge_states").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM badge_states").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.PutBadgeState(context.Background(), badge.State{
		TokenID: "missing",
		Version: 1,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
