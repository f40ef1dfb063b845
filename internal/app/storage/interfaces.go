// Package storage defines the persistence interfaces for badge state.
package storage

import (
	"context"
	"errors"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/badge"
)

var (
	// ErrNotFound reports a missing badge record.
	ErrNotFound = errors.New("badge state not found")
	// ErrAlreadyExists reports a duplicate create.
	ErrAlreadyExists = errors.New("badge state already exists")
	// ErrVersionConflict reports a lost compare-and-swap: the stored version
	// does not match the version the caller read.
	ErrVersionConflict = errors.New("badge state version conflict")
)

// BadgeStateStore persists badge occupancy records. The on-chain registry is
// the eventual source of truth; implementations of this interface mirror it
// so the service can validate transitions before committing.
type BadgeStateStore interface {
	// CreateBadgeState inserts a new record at version 1.
	CreateBadgeState(ctx context.Context, st badge.State) (badge.State, error)
	// GetBadgeState returns the record for tokenID or ErrNotFound.
	GetBadgeState(ctx context.Context, tokenID string) (badge.State, error)
	// PutBadgeState writes st only if the stored version equals st.Version,
	// then returns the record with the version incremented. Returns
	// ErrVersionConflict on a concurrent write, ErrNotFound if absent.
	PutBadgeState(ctx context.Context, st badge.State) (badge.State, error)
	// ListBadgeStates returns all records, ordered by token id.
	ListBadgeStates(ctx context.Context) ([]badge.State, error)
}
