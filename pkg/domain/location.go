package domain

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel locations that do not correspond to a slot.
const (
	InventoryLocation = "Inventory"
	RetiredLocation   = "Retired"
)

// LocationKind classifies a location key.
type LocationKind int

// Location kinds.
const (
	LocationUnknown LocationKind = iota
	LocationStorage
	LocationMill
	LocationInventory
	LocationRetired
)

func (k LocationKind) String() string {
	switch k {
	case LocationStorage:
		return "storage"
	case LocationMill:
		return "mill"
	case LocationInventory:
		return "inventory"
	case LocationRetired:
		return "retired"
	}
	return "unknown"
}

// Location is a parsed location key.
type Location struct {
	Kind LocationKind
	Key  string

	// Storage coordinates.
	Rack       int
	Shelf      string
	Column     string
	SlotNumber int

	// Mill coordinates.
	MillID   string
	SlotName string
}

// StorageKey formats storage coordinates as R{rack}-{shelf}-{column}-{slot}.
func StorageKey(rack int, shelf, column string, slot int) string {
	return fmt.Sprintf("R%d-%s-%s-%d", rack, shelf, column, slot)
}

// MillSlotKey formats a mill slot key as {millId}/{slotName}.
func MillSlotKey(millID, slotName string) string {
	return millID + "/" + slotName
}

// ParseLocation classifies key. Mill keys are recognised first because mill
// ids may themselves contain dashes.
func ParseLocation(key string) (Location, error) {
	switch key {
	case InventoryLocation:
		return Location{Kind: LocationInventory, Key: key}, nil
	case RetiredLocation:
		return Location{Kind: LocationRetired, Key: key}, nil
	case "":
		return Location{}, fmt.Errorf("empty location key")
	}
	if millID, slotName, ok := strings.Cut(key, "/"); ok {
		if millID == "" || slotName == "" || strings.Contains(slotName, "/") {
			return Location{}, fmt.Errorf("malformed mill slot key %q", key)
		}
		return Location{Kind: LocationMill, Key: key, MillID: millID, SlotName: slotName}, nil
	}
	parts := strings.Split(key, "-")
	if len(parts) != 4 || !strings.HasPrefix(parts[0], "R") {
		return Location{}, fmt.Errorf("malformed storage key %q", key)
	}
	rack, err := strconv.Atoi(strings.TrimPrefix(parts[0], "R"))
	if err != nil {
		return Location{}, fmt.Errorf("malformed storage rack in %q: %w", key, err)
	}
	slot, err := strconv.Atoi(parts[3])
	if err != nil {
		return Location{}, fmt.Errorf("malformed storage slot in %q: %w", key, err)
	}
	if parts[1] == "" || parts[2] == "" {
		return Location{}, fmt.Errorf("malformed storage key %q", key)
	}
	return Location{
		Kind:       LocationStorage,
		Key:        key,
		Rack:       rack,
		Shelf:      parts[1],
		Column:     parts[2],
		SlotNumber: slot,
	}, nil
}

// KindOf returns the kind of key, or LocationUnknown when it cannot be parsed.
func KindOf(key string) LocationKind {
	loc, err := ParseLocation(key)
	if err != nil {
		return LocationUnknown
	}
	return loc.Kind
}

// StatusForLocation returns the puck status implied by a location key.
func StatusForLocation(key string) (PuckStatus, bool) {
	switch KindOf(key) {
	case LocationStorage:
		return PuckStatusInStorage, true
	case LocationMill:
		return PuckStatusInMill, true
	case LocationInventory:
		return PuckStatusInInventory, true
	case LocationRetired:
		return PuckStatusRetired, true
	}
	return "", false
}

// CompareStorageSlots orders slots rack, shelf, column, then slot number.
func CompareStorageSlots(a, b StorageSlot) int {
	return cmp.Or(
		cmp.Compare(a.Rack, b.Rack),
		cmp.Compare(a.Shelf, b.Shelf),
		cmp.Compare(a.Column, b.Column),
		cmp.Compare(a.SlotNumber, b.SlotNumber),
	)
}
