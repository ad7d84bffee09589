package memory

import (
	"cmp"
	"slices"
	"strings"

	"millroom/pkg/domain"
)

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

// ListPucks returns every puck ordered by id.
func (v transactionView) ListPucks() []domain.Puck {
	out := make([]domain.Puck, 0, len(v.state.pucks))
	for _, p := range v.state.pucks {
		out = append(out, domain.ClonePuck(p))
	}
	slices.SortFunc(out, comparePucks)
	return out
}

// FindPuck retrieves a puck by id.
func (v transactionView) FindPuck(id string) (domain.Puck, bool) {
	p, ok := v.state.pucks[id]
	return domain.ClonePuck(p), ok
}

// ListPucksByStatus returns pucks in the given status ordered by id.
func (v transactionView) ListPucksByStatus(status domain.PuckStatus) []domain.Puck {
	var out []domain.Puck
	for _, p := range v.ListPucks() {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// ListPucksByShadeAndThickness returns pucks of the given material in any status.
func (v transactionView) ListPucksByShadeAndThickness(shade, thickness string) []domain.Puck {
	var out []domain.Puck
	for _, p := range v.ListPucks() {
		if p.Shade == shade && p.Thickness == thickness {
			out = append(out, p)
		}
	}
	return out
}

// ListStorageSlots returns storage slots in first-fit scan order.
func (v transactionView) ListStorageSlots() []domain.StorageSlot {
	out := make([]domain.StorageSlot, 0, len(v.state.storage))
	for _, s := range v.state.storage {
		out = append(out, s)
	}
	slices.SortFunc(out, domain.CompareStorageSlots)
	return out
}

// FindStorageSlot retrieves a storage slot by key.
func (v transactionView) FindStorageSlot(key string) (domain.StorageSlot, bool) {
	s, ok := v.state.storage[key]
	return s, ok
}

// FindFirstAvailableSlot returns the first vacant storage slot scanning rack,
// shelf, column, then slot number.
func (v transactionView) FindFirstAvailableSlot() (domain.StorageSlot, bool) {
	slots := v.FindAvailableSlots(1)
	if len(slots) == 0 {
		return domain.StorageSlot{}, false
	}
	return slots[0], true
}

// FindAvailableSlots returns up to n vacant storage slots in scan order.
func (v transactionView) FindAvailableSlots(n int) []domain.StorageSlot {
	if n <= 0 {
		return nil
	}
	var out []domain.StorageSlot
	for _, s := range v.ListStorageSlots() {
		if s.Occupied {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}

// ListMills returns mills ordered by id.
func (v transactionView) ListMills() []domain.Mill {
	out := make([]domain.Mill, 0, len(v.state.mills))
	for _, m := range v.state.mills {
		out = append(out, domain.CloneMill(m))
	}
	slices.SortFunc(out, func(a, b domain.Mill) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// FindMill retrieves a mill by id.
func (v transactionView) FindMill(id string) (domain.Mill, bool) {
	m, ok := v.state.mills[id]
	if !ok {
		return domain.Mill{}, false
	}
	return domain.CloneMill(m), true
}

// SlotOccupant resolves a storage or mill key. exists is false when the key
// names no slot.
func (v transactionView) SlotOccupant(key string) (puckID string, occupied, exists bool) {
	loc, err := domain.ParseLocation(key)
	if err != nil {
		return "", false, false
	}
	switch loc.Kind {
	case domain.LocationStorage:
		s, ok := v.state.storage[key]
		if !ok {
			return "", false, false
		}
		return s.PuckID, s.Occupied, true
	case domain.LocationMill:
		m, ok := v.state.mills[loc.MillID]
		if !ok {
			return "", false, false
		}
		slot, ok := m.Slot(loc.SlotName)
		if !ok {
			return "", false, false
		}
		return slot.PuckID, slot.Occupied, true
	}
	return "", false, false
}

// ListCases returns the queue in insertion order.
func (v transactionView) ListCases() []domain.Case {
	out := make([]domain.Case, 0, len(v.state.cases))
	for _, c := range v.state.cases {
		out = append(out, domain.CloneCase(c))
	}
	return out
}

// FindCase retrieves a queued case by id.
func (v transactionView) FindCase(id string) (domain.Case, bool) {
	i := v.caseIndex(id)
	if i < 0 {
		return domain.Case{}, false
	}
	return domain.CloneCase(v.state.cases[i]), true
}

func (v transactionView) caseIndex(id string) int {
	return slices.IndexFunc(v.state.cases, func(c domain.Case) bool { return c.CaseID == id })
}

// ListCasesByShade returns queued cases of one shade in queue order.
func (v transactionView) ListCasesByShade(shade string) []domain.Case {
	var out []domain.Case
	for _, c := range v.state.cases {
		if c.Shade == shade {
			out = append(out, domain.CloneCase(c))
		}
	}
	return out
}

// ValidateSelection checks that every case is queued once and all share one
// shade, returning that shade.
func (v transactionView) ValidateSelection(caseIDs []string) (string, error) {
	if len(caseIDs) == 0 {
		return "", domain.InvalidSelectionError{Reason: "no cases selected"}
	}
	shade := ""
	seen := make(map[string]struct{}, len(caseIDs))
	for _, id := range caseIDs {
		if _, dup := seen[id]; dup {
			return "", domain.InvalidSelectionError{Reason: "case " + id + " is selected twice"}
		}
		seen[id] = struct{}{}
		c, ok := v.FindCase(id)
		if !ok {
			return "", domain.InvalidSelectionError{Reason: "case " + id + " is not in the queue"}
		}
		if shade == "" {
			shade = c.Shade
			continue
		}
		if c.Shade != shade {
			return "", domain.InvalidSelectionError{Reason: "cases span shades " + shade + " and " + c.Shade}
		}
	}
	return shade, nil
}

// ListLogEntries returns the activity log in append order.
func (v transactionView) ListLogEntries() []domain.LogEntry {
	out := make([]domain.LogEntry, 0, len(v.state.logs))
	for _, e := range v.state.logs {
		out = append(out, domain.CloneLogEntry(e))
	}
	return out
}

// FindLogEntry retrieves a log entry by id.
func (v transactionView) FindLogEntry(id string) (domain.LogEntry, bool) {
	for _, e := range v.state.logs {
		if e.LogID == id {
			return domain.CloneLogEntry(e), true
		}
	}
	return domain.LogEntry{}, false
}

// SearchLog returns entries newest first whose puck, cases, technician or
// replacement puck contain query, ignoring case. An empty query matches all.
func (v transactionView) SearchLog(query string) []domain.LogEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []domain.LogEntry
	for i := len(v.state.logs) - 1; i >= 0; i-- {
		e := v.state.logs[i]
		if q == "" || logMatches(e, q) {
			out = append(out, domain.CloneLogEntry(e))
		}
	}
	slices.SortStableFunc(out, func(a, b domain.LogEntry) int { return b.Timestamp.Compare(a.Timestamp) })
	return out
}

func logMatches(e domain.LogEntry, q string) bool {
	fields := append([]string{e.PuckID, e.TechnicianName, e.NewPuckID}, e.CaseIDs...)
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
