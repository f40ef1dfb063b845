// Package flair implements the equip/unequip state machine. Transitions are
// pure functions of (occupancy set, operation): callers get back a new set or
// an error, never a mutated input.
package flair

import (
	"errors"
	"fmt"
	"sort"

	domain "github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

var (
	ErrSlotOutOfRange = errors.New("slot index out of range")
	ErrSlotOccupied   = errors.New("slot already occupied")
	ErrSlotEmpty      = errors.New("no flair equipped in slot")
	ErrInvalidSet     = errors.New("invalid occupancy set")
)

// Service validates and computes occupancy transitions.
type Service struct {
	log *logger.Logger
}

// New constructs a flair service.
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("flair")
	}
	return &Service{log: log}
}

// Validate checks the occupancy invariants: at most one item per slot, every
// slot in range, set size bounded by the slot count.
func (s *Service) Validate(set []domain.Item) error {
	if len(set) > domain.SlotCount {
		return fmt.Errorf("%w: %d items for %d slots", ErrInvalidSet, len(set), domain.SlotCount)
	}
	seen := make(map[int]bool, len(set))
	for _, it := range set {
		if !domain.ValidSlot(it.SlotIndex) {
			return fmt.Errorf("%w: slot %d", ErrSlotOutOfRange, it.SlotIndex)
		}
		if seen[it.SlotIndex] {
			return fmt.Errorf("%w: duplicate slot %d", ErrInvalidSet, it.SlotIndex)
		}
		seen[it.SlotIndex] = true
	}
	return nil
}

// Equip adds item to the set. The target slot must be in range and empty.
// The input set is never modified; the result is sorted by slot ascending.
func (s *Service) Equip(set []domain.Item, item domain.Item) ([]domain.Item, error) {
	if !domain.ValidSlot(item.SlotIndex) {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotOutOfRange, item.SlotIndex)
	}
	for _, it := range set {
		if it.SlotIndex == item.SlotIndex {
			return nil, fmt.Errorf("%w: slot %d holds flair %s", ErrSlotOccupied, item.SlotIndex, it.FlairID)
		}
	}

	out := make([]domain.Item, 0, len(set)+1)
	out = append(out, set...)
	out = append(out, item)
	sortBySlot(out)
	s.log.Debugf("equip slot %d: occupancy %d -> %d", item.SlotIndex, len(set), len(out))
	return out, nil
}

// Unequip removes the item at slot. The slot must be in range and occupied.
// The input set is never modified; the result is sorted by slot ascending.
func (s *Service) Unequip(set []domain.Item, slot int) ([]domain.Item, error) {
	if !domain.ValidSlot(slot) {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotOutOfRange, slot)
	}

	found := false
	out := make([]domain.Item, 0, len(set))
	for _, it := range set {
		if it.SlotIndex == slot {
			found = true
			continue
		}
		out = append(out, it)
	}
	if !found {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotEmpty, slot)
	}
	sortBySlot(out)
	s.log.Debugf("unequip slot %d: occupancy %d -> %d", slot, len(set), len(out))
	return out, nil
}

func sortBySlot(items []domain.Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].SlotIndex < items[j].SlotIndex })
}
