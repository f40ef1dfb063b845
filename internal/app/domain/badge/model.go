// Package badge holds the badge state model.
package badge

import (
	"time"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/flair"
)

// State is the persisted record for one badge token. EquippedFlair and
// CurrentImageCID change only through a successful equip or unequip
// operation; Version increments on every write and backs the store's
// compare-and-swap.
type State struct {
	TokenID         string       `json:"tokenId"`
	OwnerFID        string       `json:"ownerFid,omitempty"`
	BaseImageCID    string       `json:"baseImageCid"`
	CurrentImageCID string       `json:"currentImageCid"`
	EquippedFlair   []flair.Item `json:"equippedFlair"`
	Version         int64        `json:"version"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// ItemAt returns the equipped item at slot, if any.
func (s State) ItemAt(slot int) (flair.Item, bool) {
	for _, it := range s.EquippedFlair {
		if it.SlotIndex == slot {
			return it, true
		}
	}
	return flair.Item{}, false
}
