// Package postgres implements BadgeStateStore backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/badge"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.BadgeStateStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateBadgeState(ctx context.Context, st badge.State) (badge.State, error) {
	now := time.Now().UTC()
	st.Version = 1
	st.CreatedAt = now
	st.UpdatedAt = now

	flairJSON, err := json.Marshal(st.EquippedFlair)
	if err != nil {
		return badge.State{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO badge_states (token_id, owner_fid, base_image_cid, current_image_cid, equipped_flair, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, st.TokenID, st.OwnerFID, st.BaseImageCID, st.CurrentImageCID, flairJSON, st.Version, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return badge.State{}, storage.ErrAlreadyExists
		}
		return badge.State{}, err
	}
	return st, nil
}

func (s *Store) GetBadgeState(ctx context.Context, tokenID string) (badge.State, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token_id, owner_fid, base_image_cid, current_image_cid, equipped_flair, version, created_at, updated_at
		FROM badge_states
		WHERE token_id = $1
	`, tokenID)
	return scanState(row)
}

func (s *Store) PutBadgeState(ctx context.Context, st badge.State) (badge.State, error) {
	flairJSON, err := json.Marshal(st.EquippedFlair)
	if err != nil {
		return badge.State{}, err
	}
	st.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE badge_states
		SET current_image_cid = $2, equipped_flair = $3, version = version + 1, updated_at = $4
		WHERE token_id = $1 AND version = $5
	`, st.TokenID, st.CurrentImageCID, flairJSON, st.UpdatedAt, st.Version)
	if err != nil {
		return badge.State{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return badge.State{}, err
	}
	if affected == 0 {
		// Distinguish a missing row from a lost compare-and-swap.
		if _, err := s.GetBadgeState(ctx, st.TokenID); errors.Is(err, storage.ErrNotFound) {
			return badge.State{}, storage.ErrNotFound
		}
		return badge.State{}, storage.ErrVersionConflict
	}
	st.Version++
	return st, nil
}

func (s *Store) ListBadgeStates(ctx context.Context) ([]badge.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_id, owner_fid, base_image_cid, current_image_cid, equipped_flair, version, created_at, updated_at
		FROM badge_states
		ORDER BY token_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []badge.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (badge.State, error) {
	var st badge.State
	var flairJSON []byte
	err := row.Scan(&st.TokenID, &st.OwnerFID, &st.BaseImageCID, &st.CurrentImageCID, &flairJSON, &st.Version, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return badge.State{}, storage.ErrNotFound
	}
	if err != nil {
		return badge.State{}, err
	}
	if len(flairJSON) > 0 {
		var items []flair.Item
		if err := json.Unmarshal(flairJSON, &items); err != nil {
			return badge.State{}, err
		}
		st.EquippedFlair = items
	}
	return st, nil
}
