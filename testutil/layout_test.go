package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"millroom/pkg/domain"
)

func TestStandardLayoutShape(t *testing.T) {
	snap := StandardLayout().Snapshot()
	if got := len(snap.StorageSlots); got != 7*7*9 {
		t.Fatalf("expected %d storage slots, got %d", 7*7*9, got)
	}
	if got := len(snap.Mills); got != 5 {
		t.Fatalf("expected 5 mills, got %d", got)
	}
	if snap.StorageSlots[0].FullLocation != "R1-A-A-1" {
		t.Fatalf("unexpected first slot %s", snap.StorageSlots[0].FullLocation)
	}
}

func TestLayoutPuckOccupiesSlot(t *testing.T) {
	snap := NewLayout().
		Storage(1, "A", "A", 2).
		Mill("DWX-1", domain.MillModelDWX).
		Puck("PUCK-000001", 128549, "R1-A-A-2").
		Puck("PUCK-000002", 128549, "DWX-1/C").
		Puck("PUCK-000003", 128549, domain.InventoryLocation).
		Snapshot()
	if !snap.StorageSlots[1].Occupied || snap.StorageSlots[1].PuckID != "PUCK-000001" {
		t.Fatalf("expected storage slot to be occupied: %+v", snap.StorageSlots[1])
	}
	slot, _ := snap.Mills[0].Slot("C")
	if !slot.Occupied || slot.PuckID != "PUCK-000002" {
		t.Fatalf("expected mill slot to be occupied: %+v", slot)
	}
	if snap.Pucks[2].Status != domain.PuckStatusInInventory || snap.Pucks[1].Status != domain.PuckStatusInMill {
		t.Fatalf("unexpected statuses %+v", snap.Pucks)
	}
}

func TestLayoutFillStorageLeavesVacancies(t *testing.T) {
	snap := NewLayout().Storage(1, "AB", "A", 3).FillStorage(128549, 2).Snapshot()
	vacant := 0
	for _, s := range snap.StorageSlots {
		if !s.Occupied {
			vacant++
		}
	}
	if vacant != 2 || len(snap.Pucks) != 4 {
		t.Fatalf("expected 2 vacancies and 4 pucks, got %d and %d", vacant, len(snap.Pucks))
	}
}

func TestLayoutPanicsOnUndeclaredSlot(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for undeclared slot")
		}
	}()
	NewLayout().Puck("PUCK-000001", 128549, "R9-Z-Z-9")
}

func TestLayoutCaseFiles(t *testing.T) {
	snap := NewLayout().Case("C-1", "A2", 3, 4).Snapshot()
	c := snap.Cases[0]
	if !c.Consistent() || c.StlFiles[1] != "C-1|Crown|4|A2.stl" {
		t.Fatalf("unexpected case %+v", c)
	}
}

func TestAssertNoDirectImportsFlagsViolation(t *testing.T) {
	dir := t.TempDir()
	src := "package x\n\nimport _ \"millroom/internal/core\"\n"
	if err := os.WriteFile(filepath.Join(dir, "x.go"), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "x.go") {
		t.Fatalf("expected one violation, got %v", viols)
	}
	rec := &recordingFatal{}
	failIfDirectViolations(rec, "test", viols)
	if !rec.called {
		t.Fatalf("expected failure to be reported")
	}
}

func TestNonStdlibImportForbidden(t *testing.T) {
	forbidden := NonStdlibImportForbidden("")
	if forbidden("strings") || forbidden("encoding/json") {
		t.Fatalf("stdlib imports must be allowed")
	}
	if !forbidden("github.com/google/uuid") || !forbidden("millroom/internal/core") {
		t.Fatalf("third-party and module imports must be rejected")
	}
	if NonStdlibImportForbidden("millroom/pkg/")("millroom/pkg/domain") {
		t.Fatalf("allowed prefix must pass")
	}
}

type recordingFatal struct{ called bool }

func (r *recordingFatal) Fatalf(string, ...any) { r.called = true }
