package testutil

import (
	"fmt"
	"time"

	"millroom/pkg/domain"
)

// Layout builds deterministic registry snapshots. Methods panic on
// references to slots that were never declared.
type Layout struct {
	snap    domain.Snapshot
	catalog *domain.Catalog
	fill    int
}

// NewLayout returns an empty layout resolving materials against the standard catalog.
func NewLayout() *Layout {
	return &Layout{catalog: domain.StandardMaterials()}
}

// StandardLayout mirrors the lab floor: rack 1 with shelves and columns A-G
// of nine slots each, plus the five production mills.
func StandardLayout() *Layout {
	return NewLayout().
		Storage(1, "ABCDEFG", "ABCDEFG", 9).
		Mill("A52-1", domain.MillModelA52).
		Mill("A52-2", domain.MillModelA52).
		Mill("DWX-1", domain.MillModelDWX).
		Mill("DWX-2", domain.MillModelDWX).
		Mill("350i-1", domain.MillModel350i)
}

// Storage declares vacant slots for every shelf and column letter given.
func (l *Layout) Storage(rack int, shelves, columns string, slots int) *Layout {
	for _, shelf := range shelves {
		for _, column := range columns {
			for n := 1; n <= slots; n++ {
				slot := domain.StorageSlot{Rack: rack, Shelf: string(shelf), Column: string(column), SlotNumber: n}
				slot.FullLocation = slot.Key()
				l.snap.StorageSlots = append(l.snap.StorageSlots, slot)
			}
		}
	}
	return l
}

// Mill declares an empty mill.
func (l *Layout) Mill(id string, model domain.MillModel) *Layout {
	l.snap.Mills = append(l.snap.Mills, domain.NewMill(id, model))
	return l
}

// Puck places a puck of the given catalog material at location, occupying
// the slot when location is a storage or mill key.
func (l *Layout) Puck(id string, materialID int, location string) *Layout {
	material, ok := l.catalog.Lookup(materialID)
	if !ok {
		panic(fmt.Sprintf("layout: unknown material %d", materialID))
	}
	status, ok := domain.StatusForLocation(location)
	if !ok {
		panic(fmt.Sprintf("layout: invalid location %q", location))
	}
	l.occupy(location, id)
	l.snap.Pucks = append(l.snap.Pucks, domain.Puck{
		PuckID:          id,
		Shade:           material.Shade,
		Thickness:       material.Thickness,
		MaterialID:      material.ID,
		LotNumber:       100000 + len(l.snap.Pucks),
		SerialNumber:    20000 + len(l.snap.Pucks),
		ShrinkageFactor: 1.2345,
		CurrentLocation: location,
		Status:          status,
	})
	return l
}

// FillStorage occupies every vacant storage slot except the last `leave`
// (in scan order) with pucks of the given material.
func (l *Layout) FillStorage(materialID int, leave int) *Layout {
	var vacant []string
	for _, slot := range l.snap.StorageSlots {
		if !slot.Occupied {
			vacant = append(vacant, slot.FullLocation)
		}
	}
	for i := 0; i < len(vacant)-leave; i++ {
		l.fill++
		l.Puck(fmt.Sprintf("FILL-%04d", l.fill), materialID, vacant[i])
	}
	return l
}

// Case queues a cam-ready crown case with one STL file per tooth.
func (l *Layout) Case(id, shade string, teeth ...int) *Layout {
	c := domain.Case{
		CaseID:     id,
		DoctorName: "Dr. Fixture",
		OfficeName: "Fixture Dental",
		Shade:      shade,
		Units:      len(teeth),
		Status:     domain.CaseStatusCAMReady,
	}
	for _, tooth := range teeth {
		c.ToothNumbers = append(c.ToothNumbers, tooth)
		c.StlFiles = append(c.StlFiles, StlFile(id, tooth, shade))
	}
	l.snap.Cases = append(l.snap.Cases, c)
	return l
}

// Log appends a prepared log entry.
func (l *Layout) Log(entry domain.LogEntry) *Layout {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	}
	if entry.CaseIDs == nil {
		entry.CaseIDs = []string{}
	}
	l.snap.MillLogs = append(l.snap.MillLogs, entry)
	return l
}

// Snapshot returns a deep copy of the layout.
func (l *Layout) Snapshot() domain.Snapshot {
	out := domain.Snapshot{
		StorageSlots: append([]domain.StorageSlot(nil), l.snap.StorageSlots...),
		Pucks:        append([]domain.Puck(nil), l.snap.Pucks...),
	}
	for _, m := range l.snap.Mills {
		out.Mills = append(out.Mills, domain.CloneMill(m))
	}
	for _, c := range l.snap.Cases {
		out.Cases = append(out.Cases, domain.CloneCase(c))
	}
	for _, e := range l.snap.MillLogs {
		out.MillLogs = append(out.MillLogs, domain.CloneLogEntry(e))
	}
	return out
}

// StlFile formats a crown STL file name.
func StlFile(caseID string, tooth int, shade string) string {
	return fmt.Sprintf("%s|Crown|%d|%s.stl", caseID, tooth, shade)
}

func (l *Layout) occupy(location, puckID string) {
	loc, err := domain.ParseLocation(location)
	if err != nil {
		panic(fmt.Sprintf("layout: %v", err))
	}
	switch loc.Kind {
	case domain.LocationStorage:
		for i := range l.snap.StorageSlots {
			if l.snap.StorageSlots[i].FullLocation == location {
				l.mark(location, &l.snap.StorageSlots[i].Occupied, &l.snap.StorageSlots[i].PuckID, puckID)
				return
			}
		}
	case domain.LocationMill:
		for i := range l.snap.Mills {
			if l.snap.Mills[i].ID != loc.MillID {
				continue
			}
			for j := range l.snap.Mills[i].Slots {
				slot := &l.snap.Mills[i].Slots[j]
				if slot.Name == loc.SlotName {
					l.mark(location, &slot.Occupied, &slot.PuckID, puckID)
					return
				}
			}
		}
	default:
		return
	}
	panic(fmt.Sprintf("layout: undeclared slot %q", location))
}

func (l *Layout) mark(location string, occupied *bool, holder *string, puckID string) {
	if *occupied {
		panic(fmt.Sprintf("layout: %s already holds %s", location, *holder))
	}
	*occupied = true
	*holder = puckID
}
