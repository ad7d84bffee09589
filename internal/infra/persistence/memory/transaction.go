package memory

import (
	"fmt"
	"slices"

	"millroom/pkg/domain"
)

// CreateStorageSlot registers a vacant storage slot.
func (tx *transaction) CreateStorageSlot(slot domain.StorageSlot) (domain.StorageSlot, error) {
	key := slot.Key()
	if slot.FullLocation != "" && slot.FullLocation != key {
		return domain.StorageSlot{}, fmt.Errorf("storage slot key %q does not match coordinates %q", slot.FullLocation, key)
	}
	if domain.KindOf(key) != domain.LocationStorage {
		return domain.StorageSlot{}, fmt.Errorf("invalid storage coordinates %q", key)
	}
	if _, exists := tx.state.storage[key]; exists {
		return domain.StorageSlot{}, fmt.Errorf("storage slot %q already exists", key)
	}
	slot.FullLocation = key
	slot.Occupied = false
	slot.PuckID = ""
	tx.state.storage[key] = slot
	tx.recordChange(domain.Change{Entity: domain.EntityStorageSlot, Action: domain.ActionCreate, After: slot})
	return slot, nil
}

// CreateMill registers a mill with every slot vacant.
func (tx *transaction) CreateMill(m domain.Mill) (domain.Mill, error) {
	if m.ID == "" {
		return domain.Mill{}, fmt.Errorf("mill id required")
	}
	if _, exists := tx.state.mills[m.ID]; exists {
		return domain.Mill{}, fmt.Errorf("mill %q already exists", m.ID)
	}
	if len(m.Slots) == 0 {
		m = domain.NewMill(m.ID, m.Model)
	}
	if len(m.Slots) == 0 {
		return domain.Mill{}, fmt.Errorf("mill %q has unknown model %q", m.ID, m.Model)
	}
	m = domain.CloneMill(m)
	for i := range m.Slots {
		m.Slots[i].Occupied = false
		m.Slots[i].PuckID = ""
	}
	tx.state.mills[m.ID] = m
	tx.recordChange(domain.Change{Entity: domain.EntityMill, Action: domain.ActionCreate, After: domain.CloneMill(m)})
	return domain.CloneMill(m), nil
}

// OccupySlot marks a storage or mill slot as held by puckID. Re-occupying a
// slot with the puck that already holds it is a no-op.
func (tx *transaction) OccupySlot(key, puckID string) error {
	if puckID == "" {
		return fmt.Errorf("occupy %s: puck id required", key)
	}
	return tx.updateSlot(key, func(occupied bool, holder string) (bool, string, error) {
		if occupied && holder != puckID {
			return false, "", domain.SlotOccupiedError{Location: key, Occupant: holder, PuckID: puckID}
		}
		return true, puckID, nil
	})
}

// ClearSlot marks a slot vacant. Clearing a vacant slot is a no-op.
func (tx *transaction) ClearSlot(key string) error {
	return tx.updateSlot(key, func(bool, string) (bool, string, error) {
		return false, "", nil
	})
}

func (tx *transaction) updateSlot(key string, mutate func(occupied bool, holder string) (bool, string, error)) error {
	loc, err := domain.ParseLocation(key)
	if err != nil {
		return err
	}
	switch loc.Kind {
	case domain.LocationStorage:
		slot, ok := tx.state.storage[key]
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityStorageSlot, ID: key}
		}
		occupied, holder, err := mutate(slot.Occupied, slot.PuckID)
		if err != nil {
			return err
		}
		if occupied == slot.Occupied && holder == slot.PuckID {
			return nil
		}
		before := slot
		slot.Occupied, slot.PuckID = occupied, holder
		tx.state.storage[key] = slot
		tx.recordChange(domain.Change{Entity: domain.EntityStorageSlot, Action: domain.ActionUpdate, Before: before, After: slot})
		return nil
	case domain.LocationMill:
		mill, ok := tx.state.mills[loc.MillID]
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityMill, ID: loc.MillID}
		}
		i := slices.IndexFunc(mill.Slots, func(s domain.MillSlot) bool { return s.Name == loc.SlotName })
		if i < 0 {
			return domain.NotFoundError{Entity: domain.EntityMillSlot, ID: key}
		}
		slot := mill.Slots[i]
		occupied, holder, err := mutate(slot.Occupied, slot.PuckID)
		if err != nil {
			return err
		}
		if occupied == slot.Occupied && holder == slot.PuckID {
			return nil
		}
		before := domain.CloneMill(mill)
		mill = domain.CloneMill(mill)
		mill.Slots[i].Occupied, mill.Slots[i].PuckID = occupied, holder
		tx.state.mills[loc.MillID] = mill
		tx.recordChange(domain.Change{Entity: domain.EntityMill, Action: domain.ActionUpdate, Before: before, After: domain.CloneMill(mill)})
		return nil
	}
	return fmt.Errorf("location %q is not a slot", key)
}

// CreatePuck inserts a fully specified puck. It is used by seeding and
// imports; the material must be in the catalog and the status must agree
// with the location. Slot occupancy is left to the caller.
func (tx *transaction) CreatePuck(p domain.Puck) (domain.Puck, error) {
	if p.PuckID == "" {
		p.PuckID = tx.nextPuckID()
	}
	if _, exists := tx.state.pucks[p.PuckID]; exists {
		return domain.Puck{}, fmt.Errorf("puck %q already exists", p.PuckID)
	}
	material, err := tx.store.catalog.Resolve(domain.MaterialSpec{MaterialID: p.MaterialID, Shade: p.Shade, Thickness: p.Thickness})
	if err != nil {
		return domain.Puck{}, err
	}
	p.MaterialID, p.Shade, p.Thickness = material.ID, material.Shade, material.Thickness
	status, ok := domain.StatusForLocation(p.CurrentLocation)
	if !ok {
		return domain.Puck{}, fmt.Errorf("puck %q has invalid location %q", p.PuckID, p.CurrentLocation)
	}
	if p.Status == "" {
		p.Status = status
	}
	if p.Status != status {
		return domain.Puck{}, fmt.Errorf("puck %q status %s does not match location %s", p.PuckID, p.Status, p.CurrentLocation)
	}
	tx.state.pucks[p.PuckID] = p
	tx.recordChange(domain.Change{Entity: domain.EntityPuck, Action: domain.ActionCreate, After: p})
	return p, nil
}

// CreatePuckInStorage allocates the next PUCK id and records a new puck at a
// storage location. It does not occupy the slot.
func (tx *transaction) CreatePuckInStorage(spec domain.MaterialSpec, location string) (domain.Puck, error) {
	if domain.KindOf(location) != domain.LocationStorage {
		return domain.Puck{}, domain.InvalidSelectionError{Reason: location + " is not a storage slot"}
	}
	material, err := tx.store.catalog.Resolve(spec)
	if err != nil {
		return domain.Puck{}, err
	}
	return tx.CreatePuck(domain.Puck{
		PuckID:          tx.nextPuckID(),
		Shade:           material.Shade,
		Thickness:       material.Thickness,
		MaterialID:      material.ID,
		LotNumber:       spec.LotNumber,
		SerialNumber:    spec.SerialNumber,
		ShrinkageFactor: spec.ShrinkageFactor,
		CurrentLocation: location,
		Status:          domain.PuckStatusInStorage,
	})
}

func (tx *transaction) updatePuck(id string, mutator func(*domain.Puck) error) (domain.Puck, error) {
	current, ok := tx.state.pucks[id]
	if !ok {
		return domain.Puck{}, domain.NotFoundError{Entity: domain.EntityPuck, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Puck{}, err
	}
	current.PuckID = id
	tx.state.pucks[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityPuck, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func retiredError(id string) error {
	return domain.InvalidSelectionError{Reason: "puck " + id + " is retired"}
}

// MovePuck updates a puck's location key. Status is updated separately.
func (tx *transaction) MovePuck(id, location string) (domain.Puck, error) {
	if _, err := domain.ParseLocation(location); err != nil {
		return domain.Puck{}, err
	}
	return tx.updatePuck(id, func(p *domain.Puck) error {
		if p.Retired() {
			return retiredError(id)
		}
		p.CurrentLocation = location
		return nil
	})
}

// SetPuckStatus updates a puck's status. Retired pucks stay retired.
func (tx *transaction) SetPuckStatus(id string, status domain.PuckStatus) (domain.Puck, error) {
	if !status.Valid() {
		return domain.Puck{}, fmt.Errorf("invalid puck status %q", status)
	}
	return tx.updatePuck(id, func(p *domain.Puck) error {
		if p.Retired() && status != domain.PuckStatusRetired {
			return retiredError(id)
		}
		p.Status = status
		return nil
	})
}

// SetPuckScreenshot records the reference of the latest CAM screenshot.
func (tx *transaction) SetPuckScreenshot(id, url string) (domain.Puck, error) {
	return tx.updatePuck(id, func(p *domain.Puck) error {
		p.ScreenshotURL = url
		return nil
	})
}

// MovePuckToInventory moves a storage or mill puck to the inventory sentinel.
func (tx *transaction) MovePuckToInventory(id string) (domain.Puck, error) {
	return tx.updatePuck(id, func(p *domain.Puck) error {
		switch p.Status {
		case domain.PuckStatusRetired:
			return retiredError(id)
		case domain.PuckStatusInInventory:
			return domain.InvalidSelectionError{Reason: "puck " + id + " is already in inventory"}
		}
		p.CurrentLocation = domain.InventoryLocation
		p.Status = domain.PuckStatusInInventory
		return nil
	})
}

// MovePuckFromInventoryToStorage places an inventory puck at a storage key.
func (tx *transaction) MovePuckFromInventoryToStorage(id, location string) (domain.Puck, error) {
	if domain.KindOf(location) != domain.LocationStorage {
		return domain.Puck{}, domain.InvalidSelectionError{Reason: location + " is not a storage slot"}
	}
	return tx.updatePuck(id, func(p *domain.Puck) error {
		if p.Status != domain.PuckStatusInInventory {
			return domain.InvalidSelectionError{Reason: "puck " + id + " is not in inventory"}
		}
		p.CurrentLocation = location
		p.Status = domain.PuckStatusInStorage
		return nil
	})
}

// AddCases appends cases to the end of the queue.
func (tx *transaction) AddCases(cases []domain.Case) error {
	batch := make(map[string]struct{}, len(cases))
	for _, c := range cases {
		if c.CaseID == "" {
			return fmt.Errorf("case id required")
		}
		if _, dup := batch[c.CaseID]; dup || tx.caseIndex(c.CaseID) >= 0 {
			return fmt.Errorf("case %q already queued", c.CaseID)
		}
		if c.Shade == "" {
			return fmt.Errorf("case %q requires a shade", c.CaseID)
		}
		if !c.Consistent() || c.Units == 0 {
			return fmt.Errorf("case %q has %d units, %d teeth and %d files", c.CaseID, c.Units, len(c.ToothNumbers), len(c.StlFiles))
		}
		batch[c.CaseID] = struct{}{}
	}
	for _, c := range cases {
		c = domain.CloneCase(c)
		if c.Status == "" {
			c.Status = domain.CaseStatusCAMReady
		}
		tx.state.cases = append(tx.state.cases, c)
		tx.recordChange(domain.Change{Entity: domain.EntityCase, Action: domain.ActionCreate, After: domain.CloneCase(c)})
	}
	return nil
}

// RemoveCases drops the given cases from the queue. Unknown ids are ignored.
func (tx *transaction) RemoveCases(ids []string) error {
	for _, id := range ids {
		i := tx.caseIndex(id)
		if i < 0 {
			continue
		}
		before := tx.state.cases[i]
		tx.state.cases = slices.Delete(tx.state.cases, i, i+1)
		tx.recordChange(domain.Change{Entity: domain.EntityCase, Action: domain.ActionDelete, Before: before})
	}
	return nil
}

// ConsumeCaseUnits removes milled files from a case, deleting the case once
// nothing remains. It returns the remaining case and whether it is still
// queued. Unknown case ids are ignored.
func (tx *transaction) ConsumeCaseUnits(caseID string, milled []string) (domain.Case, bool) {
	i := tx.caseIndex(caseID)
	if i < 0 {
		return domain.Case{}, false
	}
	set := make(map[string]struct{}, len(milled))
	for _, f := range milled {
		set[f] = struct{}{}
	}
	before := tx.state.cases[i]
	rest, ok := domain.RemainingAfterMilling(before, set)
	if !ok {
		tx.state.cases = slices.Delete(tx.state.cases, i, i+1)
		tx.recordChange(domain.Change{Entity: domain.EntityCase, Action: domain.ActionDelete, Before: before})
		return domain.Case{}, false
	}
	tx.state.cases[i] = rest
	tx.recordChange(domain.Change{Entity: domain.EntityCase, Action: domain.ActionUpdate, Before: before, After: domain.CloneCase(rest)})
	return domain.CloneCase(rest), true
}

// AppendLogEntry appends to the activity log, assigning an id and timestamp
// when absent.
func (tx *transaction) AppendLogEntry(entry domain.LogEntry) (domain.LogEntry, error) {
	if entry.PuckID == "" {
		return domain.LogEntry{}, fmt.Errorf("log entry requires a puck id")
	}
	if entry.LogID == "" {
		entry.LogID = tx.store.logID()
	}
	if _, exists := tx.FindLogEntry(entry.LogID); exists {
		return domain.LogEntry{}, fmt.Errorf("log entry %q already exists", entry.LogID)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = tx.now
	}
	if entry.Kind == "" {
		entry.Kind = domain.LogKindAssignment
	}
	entry = domain.CloneLogEntry(entry)
	if entry.CaseIDs == nil {
		entry.CaseIDs = []string{}
	}
	tx.state.logs = append(tx.state.logs, entry)
	tx.recordChange(domain.Change{Entity: domain.EntityLogEntry, Action: domain.ActionCreate, After: domain.CloneLogEntry(entry)})
	return domain.CloneLogEntry(entry), nil
}

// AppendRelocationEntry records a correction of an earlier log entry.
func (tx *transaction) AppendRelocationEntry(originalLogID, puckID, previousLocation, newLocation string, caseIDs []string, notes string) (domain.LogEntry, error) {
	original, ok := tx.FindLogEntry(originalLogID)
	if !ok {
		return domain.LogEntry{}, domain.NotFoundError{Entity: domain.EntityLogEntry, ID: originalLogID}
	}
	return tx.AppendLogEntry(domain.LogEntry{
		Kind:             domain.LogKindRelocation,
		PuckID:           puckID,
		PreviousLocation: previousLocation,
		NewLocation:      newLocation,
		CaseIDs:          caseIDs,
		TechnicianName:   original.TechnicianName,
		RelocatedFrom:    originalLogID,
		Notes:            notes,
	})
}
