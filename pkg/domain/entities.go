// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by millroom.
package domain

import (
	"slices"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPuck identifies a material puck record.
	EntityPuck EntityType = "puck"
	// EntityStorageSlot identifies a storage rack slot.
	EntityStorageSlot EntityType = "storage_slot"
	// EntityMill identifies a mill and its slots.
	EntityMill EntityType = "mill"
	// EntityMillSlot identifies a single mill slot inside a mill record.
	EntityMillSlot EntityType = "mill_slot"
	// EntityCase identifies a CAM-ready case in the queue.
	EntityCase EntityType = "case"
	// EntityLogEntry identifies an activity log entry.
	EntityLogEntry EntityType = "log_entry"
)

// PuckStatus is derived from the kind of location a puck currently occupies.
type PuckStatus string

// Puck statuses. Retired is terminal.
const (
	PuckStatusInStorage   PuckStatus = "in_storage"
	PuckStatusInMill      PuckStatus = "in_mill"
	PuckStatusInInventory PuckStatus = "in_inventory"
	PuckStatusRetired     PuckStatus = "retired"
)

// Valid reports whether the status is one of the known puck statuses.
func (s PuckStatus) Valid() bool {
	switch s {
	case PuckStatusInStorage, PuckStatusInMill, PuckStatusInInventory, PuckStatusRetired:
		return true
	}
	return false
}

// CaseStatus tracks whether a case is still waiting to be milled.
type CaseStatus string

// Case statuses.
const (
	CaseStatusCAMReady  CaseStatus = "cam_ready"
	CaseStatusCompleted CaseStatus = "completed"
)

// MillModel selects the slot layout of a mill.
type MillModel string

// Supported mill models.
const (
	MillModelA52  MillModel = "A52"
	MillModelDWX  MillModel = "DWX"
	MillModel350i MillModel = "350i"
)

// SlotNames returns the ordered slot names a mill of this model exposes.
func (m MillModel) SlotNames() []string {
	switch m {
	case MillModelA52:
		return []string{"1"}
	case MillModelDWX:
		return []string{"A", "B", "C", "D", "E", "F"}
	case MillModel350i:
		return []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}
	}
	return nil
}

// LogKind distinguishes the activity that produced a log entry.
type LogKind string

// Log kinds.
const (
	LogKindAssignment      LogKind = "assignment"
	LogKindRelocation      LogKind = "relocation"
	LogKindIntake          LogKind = "intake"
	LogKindInventoryPull   LogKind = "inventory_pull"
	LogKindInventoryReturn LogKind = "inventory_return"
)

// Puck is a blank of restorative material. Shade, thickness and the material
// identifiers never change after intake.
type Puck struct {
	PuckID          string     `json:"puckId"`
	Shade           string     `json:"shade"`
	Thickness       string     `json:"thickness"`
	MaterialID      int        `json:"materialId"`
	LotNumber       int        `json:"lotNumber"`
	SerialNumber    int        `json:"serialNumber"`
	ShrinkageFactor float64    `json:"shrinkageFactor"`
	CurrentLocation string     `json:"currentLocation"`
	Status          PuckStatus `json:"status"`
	ScreenshotURL   string     `json:"screenshotUrl,omitempty"`
}

// Retired reports whether the puck has reached its terminal state.
func (p Puck) Retired() bool { return p.Status == PuckStatusRetired }

// StorageSlot is a single position in a storage rack.
type StorageSlot struct {
	Rack         int    `json:"rack"`
	Shelf        string `json:"shelf"`
	Column       string `json:"column"`
	SlotNumber   int    `json:"slotNumber"`
	FullLocation string `json:"fullLocation"`
	Occupied     bool   `json:"occupied"`
	PuckID       string `json:"puckId,omitempty"`
}

// Key returns the canonical storage key derived from the slot coordinates.
func (s StorageSlot) Key() string {
	return StorageKey(s.Rack, s.Shelf, s.Column, s.SlotNumber)
}

// MillSlot is one holder inside a mill.
type MillSlot struct {
	Name     string `json:"name"`
	Occupied bool   `json:"occupied"`
	PuckID   string `json:"puckId,omitempty"`
}

// Mill is a CNC machine with an ordered set of puck holders.
type Mill struct {
	ID    string     `json:"id"`
	Model MillModel  `json:"model"`
	Slots []MillSlot `json:"slots"`
}

// NewMill builds an empty mill with the slot layout of its model.
func NewMill(id string, model MillModel) Mill {
	names := model.SlotNames()
	slots := make([]MillSlot, 0, len(names))
	for _, name := range names {
		slots = append(slots, MillSlot{Name: name})
	}
	return Mill{ID: id, Model: model, Slots: slots}
}

// Slot returns the named slot when present.
func (m Mill) Slot(name string) (MillSlot, bool) {
	for _, slot := range m.Slots {
		if slot.Name == name {
			return slot, true
		}
	}
	return MillSlot{}, false
}

// Case is a restoration job waiting for material. Each tooth maps to exactly
// one STL file.
type Case struct {
	CaseID       string     `json:"caseId"`
	DoctorName   string     `json:"doctorName,omitempty"`
	OfficeName   string     `json:"officeName,omitempty"`
	Shade        string     `json:"shade"`
	Units        int        `json:"units"`
	ToothNumbers []int      `json:"toothNumbers"`
	StlFiles     []string   `json:"stlFiles"`
	Status       CaseStatus `json:"status"`
}

// Consistent reports whether units, tooth numbers and STL files agree.
func (c Case) Consistent() bool {
	return c.Units == len(c.ToothNumbers) && c.Units == len(c.StlFiles)
}

// LogEntry is an append-only record of a puck movement.
type LogEntry struct {
	LogID            string    `json:"logId"`
	Kind             LogKind   `json:"kind"`
	Timestamp        time.Time `json:"timestamp"`
	PuckID           string    `json:"puckId"`
	PreviousLocation string    `json:"previousLocation"`
	NewLocation      string    `json:"newLocation"`
	CaseIDs          []string  `json:"caseIds"`
	TechnicianName   string    `json:"technicianName,omitempty"`
	LastJobTriggered bool      `json:"lastJobTriggered"`
	NewPuckID        string    `json:"newPuckId,omitempty"`
	RelocatedFrom    string    `json:"relocatedFrom,omitempty"`
	Notes            string    `json:"notes,omitempty"`
}

// ClonePuck returns p unchanged; pucks hold no reference fields.
func ClonePuck(p Puck) Puck { return p }

// CloneMill deep-copies the slot slice.
func CloneMill(m Mill) Mill {
	m.Slots = slices.Clone(m.Slots)
	return m
}

// CloneCase deep-copies the tooth and file slices.
func CloneCase(c Case) Case {
	c.ToothNumbers = slices.Clone(c.ToothNumbers)
	c.StlFiles = slices.Clone(c.StlFiles)
	return c
}

// CloneLogEntry deep-copies the case id slice.
func CloneLogEntry(e LogEntry) LogEntry {
	e.CaseIDs = slices.Clone(e.CaseIDs)
	return e
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in transactions.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
