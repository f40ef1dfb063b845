// Package memory provides an in-memory BadgeStateStore. It is safe for
// concurrent use and is primarily intended for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/badge"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage"
)

// Store is the in-memory implementation of storage.BadgeStateStore.
type Store struct {
	mu     sync.RWMutex
	badges map[string]badge.State
}

var _ storage.BadgeStateStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{badges: make(map[string]badge.State)}
}

func (s *Store) CreateBadgeState(_ context.Context, st badge.State) (badge.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.badges[st.TokenID]; exists {
		return badge.State{}, storage.ErrAlreadyExists
	}
	now := time.Now().UTC()
	st.Version = 1
	st.CreatedAt = now
	st.UpdatedAt = now
	st.EquippedFlair = cloneItems(st.EquippedFlair)
	s.badges[st.TokenID] = st
	return clone(st), nil
}

func (s *Store) GetBadgeState(_ context.Context, tokenID string) (badge.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.badges[tokenID]
	if !ok {
		return badge.State{}, storage.ErrNotFound
	}
	return clone(st), nil
}

func (s *Store) PutBadgeState(_ context.Context, st badge.State) (badge.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.badges[st.TokenID]
	if !ok {
		return badge.State{}, storage.ErrNotFound
	}
	if existing.Version != st.Version {
		return badge.State{}, storage.ErrVersionConflict
	}
	st.Version++
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = time.Now().UTC()
	st.EquippedFlair = cloneItems(st.EquippedFlair)
	s.badges[st.TokenID] = st
	return clone(st), nil
}

func (s *Store) ListBadgeStates(_ context.Context) ([]badge.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]badge.State, 0, len(s.badges))
	for _, st := range s.badges {
		out = append(out, clone(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

func clone(st badge.State) badge.State {
	st.EquippedFlair = cloneItems(st.EquippedFlair)
	return st
}

func cloneItems(items []flair.Item) []flair.Item {
	if items == nil {
		return nil
	}
	out := make([]flair.Item, len(items))
	copy(out, items)
	return out
}
