// Package flair holds the flair data model and the fixed slot geometry for
// the badge canvas.
package flair

import "fmt"

// Item is one piece of flair equipped on a badge. Within a badge's occupancy
// set no two items may share a SlotIndex.
type Item struct {
	FlairID   string `json:"flairId"`
	ImageCID  string `json:"imageCid"`
	SlotIndex int    `json:"slotIndex"`
}

// Rect is an axis-aligned rectangle in canvas pixel coordinates, keyed by its
// top-left corner.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

const (
	// CanvasSize is the fixed width and height of every rendered badge.
	CanvasSize = 1024

	// SlotCount is the number of flair slots on a badge.
	SlotCount = 3

	// SlotBox is the square bounding box of one slot, in pixels.
	SlotBox = 75
)

// slotTable is the canonical slot geometry: three square boxes along the
// bottom of the canvas, ordered left to right, keyed by top-left corner.
// Slot centers sit at (291,830), (482,830), (662,830).
var slotTable = [SlotCount]Rect{
	{X: 254, Y: 793, Width: SlotBox, Height: SlotBox},
	{X: 445, Y: 793, Width: SlotBox, Height: SlotBox},
	{X: 625, Y: 793, Width: SlotBox, Height: SlotBox},
}

// ErrInvalidSlot reports a geometry lookup for a slot outside the table.
type ErrInvalidSlot struct {
	Slot int
}

func (e *ErrInvalidSlot) Error() string {
	return fmt.Sprintf("invalid slot index %d: must be between 0 and %d", e.Slot, SlotCount-1)
}

// RectangleFor returns the target rectangle for a slot index.
func RectangleFor(slot int) (Rect, error) {
	if slot < 0 || slot >= SlotCount {
		return Rect{}, &ErrInvalidSlot{Slot: slot}
	}
	return slotTable[slot], nil
}

// ValidSlot reports whether slot is a configured slot index.
func ValidSlot(slot int) bool {
	return slot >= 0 && slot < SlotCount
}
