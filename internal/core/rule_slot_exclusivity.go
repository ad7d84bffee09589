package core

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"millroom/pkg/domain"
)

// NewSlotExclusivityRule returns the rule ensuring every occupied slot is held
// by exactly one existing puck that agrees about its location.
func NewSlotExclusivityRule() domain.Rule {
	return slotExclusivityRule{}
}

type slotExclusivityRule struct{}

func (slotExclusivityRule) Name() string { return "slot_exclusivity" }

func (r slotExclusivityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	holders := make(map[string][]string)
	var keys []string
	for _, slot := range view.ListStorageSlots() {
		if slot.Occupied {
			keys = append(keys, slot.FullLocation)
			holders[slot.PuckID] = append(holders[slot.PuckID], slot.FullLocation)
		}
	}
	for _, mill := range view.ListMills() {
		for _, slot := range mill.Slots {
			if slot.Occupied {
				key := domain.MillSlotKey(mill.ID, slot.Name)
				keys = append(keys, key)
				holders[slot.PuckID] = append(holders[slot.PuckID], key)
			}
		}
	}

	res := domain.Result{}
	block := func(entity domain.EntityType, id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   entity,
			EntityID: id,
		})
	}
	for _, key := range keys {
		puckID, _, _ := view.SlotOccupant(key)
		if puckID == "" {
			block(domain.EntityStorageSlot, key, fmt.Sprintf("slot %s is occupied without a puck", key))
			continue
		}
		puck, ok := view.FindPuck(puckID)
		if !ok {
			block(domain.EntityStorageSlot, key, fmt.Sprintf("slot %s holds unknown puck %s", key, puckID))
			continue
		}
		if puck.CurrentLocation != key {
			block(domain.EntityPuck, puckID, fmt.Sprintf("slot %s holds %s but the puck is at %s", key, puckID, puck.CurrentLocation))
		}
	}
	for _, puckID := range slices.Sorted(maps.Keys(holders)) {
		if slots := holders[puckID]; puckID != "" && len(slots) > 1 {
			block(domain.EntityPuck, puckID, fmt.Sprintf("puck %s occupies %d slots: %v", puckID, len(slots), slots))
		}
	}
	return res, nil
}
