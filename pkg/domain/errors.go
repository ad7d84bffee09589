package domain

import "fmt"

// SlotOccupiedError is returned when a slot is already held by another puck.
type SlotOccupiedError struct {
	Location string
	Occupant string
	PuckID   string
}

func (e SlotOccupiedError) Error() string {
	return fmt.Sprintf("slot %s is occupied by %s (requested by %s)", e.Location, e.Occupant, e.PuckID)
}

// NoVacantSlotError is returned when a storage vacancy is required but none exists.
type NoVacantSlotError struct {
	Needed    int
	Available int
}

func (e NoVacantSlotError) Error() string {
	if e.Needed <= 1 {
		return "no vacant storage slot available"
	}
	return fmt.Sprintf("need %d vacant storage slots, %d available", e.Needed, e.Available)
}

// UnknownMaterialError is returned when a material id or shade/thickness pair
// is not in the catalog.
type UnknownMaterialError struct {
	MaterialID int
	Shade      string
	Thickness  string
}

func (e UnknownMaterialError) Error() string {
	if e.MaterialID != 0 {
		return fmt.Sprintf("unknown material id %d", e.MaterialID)
	}
	return fmt.Sprintf("unknown material %s %s", e.Shade, e.Thickness)
}

// MalformedScanError is returned when a scanned payload cannot be decoded.
type MalformedScanError struct {
	Input  string
	Reason string
	Err    error
}

func (e MalformedScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed scan %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed scan %q: %s", e.Input, e.Reason)
}

func (e MalformedScanError) Unwrap() error { return e.Err }

// InvalidSelectionError is returned when a selection of cases, pucks or
// slots cannot be acted on.
type InvalidSelectionError struct {
	Reason string
}

func (e InvalidSelectionError) Error() string {
	return "invalid selection: " + e.Reason
}

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	if len(e.Result.Violations) == 0 {
		return "transaction blocked by rules"
	}
	return fmt.Sprintf("transaction blocked by rules: %s", e.Result.Violations[0].Message)
}
