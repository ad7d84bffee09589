package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"millroom/pkg/domain"
	"millroom/testutil"
)

const shadeA2 = 128549 // A2 14mm

func TestAssignmentDisplacesOccupantIntoVacancy(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Mill("A52-1", domain.MillModelA52).
		Puck("PUCK-000001", shadeA2, "R1-A-A-2").
		Puck("PUCK-000002", shadeA2, "A52-1/1").
		Case("AB01", "A2", 4))

	a, err := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := a.SelectDestination(ctx, "A52-1", ""); err != nil {
		t.Fatalf("select: %v", err)
	}
	if a.Destination() != "A52-1/1" {
		t.Fatalf("single-slot mill should auto-bind, got %q", a.Destination())
	}
	displaced, vacancy := a.Displacement()
	if displaced != "PUCK-000002" || vacancy != "R1-A-A-1" {
		t.Fatalf("unexpected displacement %s -> %s", displaced, vacancy)
	}
	if err := a.Next(); err != nil || a.Step() != StepConfirmDisplacement {
		t.Fatalf("expected displacement step, got %s (%v)", a.Step(), err)
	}
	if err := a.Back(); err != nil || a.Step() != StepSelectDestination {
		t.Fatalf("expected back to destination, got %s (%v)", a.Step(), err)
	}
	a2, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	walkToSubmit(t, a2, "A52-1", "")
	a2.SetTechnician("Jordan")

	summary, err := a2.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	moved := mustPuck(t, svc, "PUCK-000002")
	if moved.CurrentLocation != "R1-A-A-1" || moved.Status != domain.PuckStatusInStorage {
		t.Fatalf("displaced puck not stored: %+v", moved)
	}
	placed := mustPuck(t, svc, "PUCK-000001")
	if placed.CurrentLocation != "A52-1/1" || placed.Status != domain.PuckStatusInMill {
		t.Fatalf("selected puck not milled: %+v", placed)
	}
	if placed.ScreenshotURL != "file:///shots/mill.png" {
		t.Fatalf("screenshot not recorded: %q", placed.ScreenshotURL)
	}
	if holder, occupied := slotHolder(t, svc, "R1-A-A-2"); occupied {
		t.Fatalf("origin slot still held by %s", holder)
	}
	if holder, _ := slotHolder(t, svc, "A52-1/1"); holder != "PUCK-000001" {
		t.Fatalf("destination held by %q", holder)
	}

	logs, _ := svc.Logs(ctx)
	if len(logs) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(logs))
	}
	entry := logs[0]
	if entry.PreviousLocation != "R1-A-A-2" || entry.NewLocation != "A52-1/1" || entry.TechnicianName != "Jordan" {
		t.Fatalf("unexpected log entry %+v", entry)
	}
	if !entry.Timestamp.Equal(labDay) || entry.Kind != domain.LogKindAssignment {
		t.Fatalf("unexpected log stamp %+v", entry)
	}
	if summary.Title != "Milling Assignment Completed." || summary.DisplacedTo != "R1-A-A-1" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	want := []string{
		"Old Puck PUCK-000002 relocated to Storage Rack R1-A-A-1",
		"Selected Puck PUCK-000001 moved to A52-1 Slot 1",
		"Case AB01 removed from queue",
	}
	if !reflect.DeepEqual(summary.Items, want) {
		t.Fatalf("unexpected summary items %q", summary.Items)
	}
	if got, ok := a2.Summary(); !ok || got.Entry.LogID != entry.LogID {
		t.Fatalf("summary not retained: %+v", got)
	}
	if err := a2.Done(); err != nil || a2.Step() != StepClosed {
		t.Fatalf("done: %v", err)
	}
}

func TestSkippedFilesStayQueued(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Mill("DWX-1", domain.MillModelDWX).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4, 5))

	a, err := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	skip := testutil.StlFile("AB01", 5, "A2")
	if err := a.ToggleSkip(skip); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if err := a.ToggleSkip("XX|Crown|1|A2.stl"); err == nil {
		t.Fatalf("expected foreign file to be rejected")
	}
	walkToSubmit(t, a, "DWX-1", "C")
	summary, err := a.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	cases, _ := svc.Cases(ctx)
	if len(cases) != 1 {
		t.Fatalf("expected case to remain queued, got %+v", cases)
	}
	c := cases[0]
	if c.Units != 1 || !reflect.DeepEqual(c.StlFiles, []string{skip}) || !reflect.DeepEqual(c.ToothNumbers, []int{5}) {
		t.Fatalf("unexpected remaining case %+v", c)
	}
	if summary.Items[len(summary.Items)-1] != "Case AB01 keeps 1 unit(s) in the queue" {
		t.Fatalf("unexpected items %q", summary.Items)
	}
}

func TestGcodeConfirmationFreezesSkips(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 1).
		Mill("DWX-1", domain.MillModelDWX).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4, 5))

	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	file := testutil.StlFile("AB01", 4, "A2")
	if err := a.ToggleSkip(file); err != nil {
		t.Fatalf("skip: %v", err)
	}
	walkToSubmit(t, a, "DWX-1", "A")
	before := a.Skipped()
	var invalid domain.InvalidSelectionError
	if err := a.ToggleSkip(file); !errors.As(err, &invalid) {
		t.Fatalf("expected frozen selection error, got %v", err)
	}
	if !reflect.DeepEqual(before, a.Skipped()) {
		t.Fatalf("skip state changed after confirmation")
	}
	if err := a.Back(); err != nil || a.Step() != StepConfirmGcode {
		t.Fatalf("back: %v", err)
	}
	if err := a.ConfirmGcode(false); err == nil {
		t.Fatalf("expected confirmation to be one-way")
	}
}

func TestSubmitWithoutVacancyLeavesRegistriesUntouched(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Mill("A52-1", domain.MillModelA52).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Puck("PUCK-000002", shadeA2, "A52-1/1").
		Case("AB01", "A2", 4))

	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	walkToSubmit(t, a, "A52-1", "1")
	if _, err := svc.StockPuck(ctx, domain.MaterialSpec{MaterialID: shadeA2}, ""); err != nil {
		t.Fatalf("fill last vacancy: %v", err)
	}
	before := svc.Store().ExportState()

	_, err := a.Submit(ctx)
	var none domain.NoVacantSlotError
	if !errors.As(err, &none) || none.Needed != 1 || none.Available != 0 {
		t.Fatalf("expected NoVacantSlotError, got %v", err)
	}
	if !reflect.DeepEqual(before, svc.Store().ExportState()) {
		t.Fatalf("registries changed after failed submit")
	}
	if a.Step() != StepSubmit {
		t.Fatalf("failed submit should stay on submit, got %s", a.Step())
	}
}

func TestSelectDestinationWithoutVacancy(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 1).
		Mill("A52-1", domain.MillModelA52).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Puck("PUCK-000002", shadeA2, "A52-1/1").
		Case("AB01", "A2", 4))

	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	var none domain.NoVacantSlotError
	if err := a.SelectDestination(ctx, "A52-1", ""); !errors.As(err, &none) {
		t.Fatalf("expected NoVacantSlotError, got %v", err)
	}
	if a.Destination() != "" {
		t.Fatalf("failed selection must not bind a destination")
	}
	if err := a.Next(); err == nil {
		t.Fatalf("expected next to require a destination")
	}
}

func TestSelectDestinationValidation(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.StandardLayout().
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4))
	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})

	var missing domain.NotFoundError
	if err := a.SelectDestination(ctx, "NOPE", ""); !errors.As(err, &missing) {
		t.Fatalf("expected unknown mill, got %v", err)
	}
	var invalid domain.InvalidSelectionError
	if err := a.SelectDestination(ctx, "DWX-1", ""); !errors.As(err, &invalid) {
		t.Fatalf("expected multi-slot mill to require a slot, got %v", err)
	}
	if err := a.SelectDestination(ctx, "DWX-1", "Q"); !errors.As(err, &missing) {
		t.Fatalf("expected unknown slot, got %v", err)
	}
	if err := a.SelectDestination(ctx, "350i-1", "12"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := a.Next(); err != nil || a.Step() != StepCaptureScreenshot {
		t.Fatalf("empty slot should skip displacement, got %s (%v)", a.Step(), err)
	}
	if err := a.Next(); !errors.As(err, &invalid) {
		t.Fatalf("expected screenshot requirement, got %v", err)
	}
	if err := a.SetScreenshot("  "); err == nil {
		t.Fatalf("expected blank screenshot to be rejected")
	}
	if _, err := a.Submit(ctx); err == nil {
		t.Fatalf("expected submit before the submit step to fail")
	}
}

func TestBeginAssignmentRejectsBadSelections(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Puck("PUCK-000002", shadeA2, domain.InventoryLocation).
		Puck("PUCK-000003", shadeA2, domain.RetiredLocation).
		Case("AB01", "A2", 4).
		Case("AB02", "B1", 7))

	cases := map[string]struct {
		puck  string
		cases []string
	}{
		"mixed shades": {"PUCK-000001", []string{"AB01", "AB02"}},
		"puck shade":   {"PUCK-000001", []string{"AB02"}},
		"no cases":     {"PUCK-000001", nil},
		"inventory":    {"PUCK-000002", []string{"AB01"}},
		"retired":      {"PUCK-000003", []string{"AB01"}},
		"unknown case": {"PUCK-000001", []string{"ZZ99"}},
		"duplicate":    {"PUCK-000001", []string{"AB01", "AB01"}},
	}
	for name, tc := range cases {
		if _, err := svc.BeginAssignment(ctx, tc.puck, tc.cases); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
	var missing domain.NotFoundError
	if _, err := svc.BeginAssignment(ctx, "PUCK-404", []string{"AB01"}); !errors.As(err, &missing) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDuplicateCaseSelectionIsRejected(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 1).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4))
	var invalid domain.InvalidSelectionError
	if _, err := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01", "AB01"}); !errors.As(err, &invalid) ||
		!strings.Contains(invalid.Reason, "AB01 is selected twice") {
		t.Fatalf("expected duplicate case rejection, got %v", err)
	}
}

func TestLastJobRetiresPuckAndPullsReplacement(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Mill("A52-1", domain.MillModelA52).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Puck("PUCK-000009", shadeA2, domain.InventoryLocation).
		Puck("PUCK-000010", 128606, domain.InventoryLocation).
		Case("AB01", "A2", 4))

	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	if err := a.BeginLastJob(); err != nil {
		t.Fatalf("last job: %v", err)
	}
	var invalid domain.InvalidSelectionError
	if err := a.Next(); !errors.As(err, &invalid) {
		t.Fatalf("replacement branch must gate next, got %v", err)
	}
	candidates, err := a.ReplacementCandidates(ctx)
	if err != nil || len(candidates) != 1 || candidates[0].PuckID != "PUCK-000009" {
		t.Fatalf("unexpected candidates %+v (%v)", candidates, err)
	}
	if err := a.ChooseReplacement(ctx, "PUCK-000010"); !errors.As(err, &invalid) {
		t.Fatalf("expected thickness mismatch to be rejected, got %v", err)
	}
	if err := a.ChooseReplacement(ctx, "PUCK-000009"); err != nil {
		t.Fatalf("choose: %v", err)
	}
	if a.Replacement() != "PUCK-000009" || a.Step() != StepSelectDestination {
		t.Fatalf("replacement not recorded")
	}
	walkToSubmit(t, a, "A52-1", "")

	summary, err := a.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	retired := mustPuck(t, svc, "PUCK-000001")
	if retired.Status != domain.PuckStatusRetired || retired.CurrentLocation != domain.RetiredLocation {
		t.Fatalf("original puck not retired: %+v", retired)
	}
	if _, occupied := slotHolder(t, svc, "A52-1/1"); occupied {
		t.Fatalf("retired puck's mill slot must be cleared")
	}
	replacement := mustPuck(t, svc, "PUCK-000009")
	if replacement.Status != domain.PuckStatusInStorage || replacement.CurrentLocation != "R1-A-A-2" {
		t.Fatalf("replacement not pulled to storage: %+v", replacement)
	}
	if summary.Entry.NewPuckID != "PUCK-000009" || !summary.Entry.LastJobTriggered {
		t.Fatalf("log entry missing replacement linkage: %+v", summary.Entry)
	}
	if !strings.HasSuffix(summary.Title, "Puck Replaced Successfully.") {
		t.Fatalf("unexpected title %q", summary.Title)
	}
	if last := summary.Items[len(summary.Items)-1]; last != "Puck PUCK-000001 retired after final job (Replaced by PUCK-000009)" {
		t.Fatalf("unexpected final item %q", last)
	}
	if domain.IsReassignable(summary.Entry, labDay) {
		t.Fatalf("last-job entries are not reassignable")
	}
}

func TestCancelLastJobClearsReplacement(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Mill("A52-1", domain.MillModelA52).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Puck("PUCK-000002", shadeA2, "R1-A-A-2").
		Case("AB01", "A2", 4))
	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	_ = a.BeginLastJob()
	if err := a.CancelLastJob(); err != nil {
		t.Fatalf("cancel last job: %v", err)
	}
	if a.Replacement() != "" || a.Step() != StepSelectDestination {
		t.Fatalf("expected replacement branch to be discarded")
	}
	walkToSubmit(t, a, "A52-1", "")
	summary, err := a.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Entry.LastJobTriggered || mustPuck(t, svc, "PUCK-000001").Retired() {
		t.Fatalf("puck must not retire without a replacement")
	}
}

func TestLastJobWithScannedReplacement(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Mill("A52-1", domain.MillModelA52).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4))

	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	if err := a.BeginLastJob(); err != nil {
		t.Fatalf("last job: %v", err)
	}
	var invalid domain.InvalidSelectionError
	if err := a.ScanReplacement(ctx, "1.2|7|128606|55"); !errors.As(err, &invalid) {
		t.Fatalf("expected thickness mismatch to be rejected, got %v", err)
	}
	var malformed domain.MalformedScanError
	if err := a.ScanReplacement(ctx, "1.2|7|128549"); !errors.As(err, &malformed) {
		t.Fatalf("expected malformed scan error, got %v", err)
	}
	if err := a.ScanReplacement(ctx, "1.2|7|128549|55"); err != nil {
		t.Fatalf("scan replacement: %v", err)
	}
	if a.Step() != StepSelectDestination || a.Replacement() != "" {
		t.Fatalf("scanned replacement must return to destination without an id yet")
	}
	walkToSubmit(t, a, "A52-1", "")

	summary, err := a.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Entry.NewPuckID != "PUCK-000002" || !summary.Entry.LastJobTriggered || a.Replacement() != "PUCK-000002" {
		t.Fatalf("log entry missing scanned replacement: %+v", summary.Entry)
	}
	created := mustPuck(t, svc, "PUCK-000002")
	if created.Status != domain.PuckStatusInStorage || created.CurrentLocation != "R1-A-A-2" ||
		created.LotNumber != 55 || created.SerialNumber != 7 {
		t.Fatalf("scanned puck not stored at the planned vacancy: %+v", created)
	}
	if holder, occupied := slotHolder(t, svc, "R1-A-A-2"); !occupied || holder != "PUCK-000002" {
		t.Fatalf("vacancy not occupied by scanned puck: %q %v", holder, occupied)
	}
	if !mustPuck(t, svc, "PUCK-000001").Retired() {
		t.Fatalf("original puck must retire")
	}
	if last := summary.Items[len(summary.Items)-1]; last != "Puck PUCK-000001 retired after final job (Replaced by PUCK-000002)" {
		t.Fatalf("unexpected final item %q", last)
	}
}

func TestSubscriberMayReadWizardDuringSubmit(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 1).
		Mill("DWX-1", domain.MillModelDWX).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4))
	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	walkToSubmit(t, a, "DWX-1", "D")

	seen := make(chan Step, 1)
	svc.Subscribe(func([]Change) {
		select {
		case seen <- a.Step():
		default:
		}
	})
	done := make(chan error, 1)
	go func() {
		_, err := a.Submit(ctx)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("submit did not return while a subscriber read the wizard")
	}
	if step := <-seen; step != StepSummary {
		t.Fatalf("subscriber saw step %v, want summary", step)
	}
}

func TestReassignmentRecordsRelocation(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Mill("DWX-1", domain.MillModelDWX).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Puck("PUCK-000002", shadeA2, "DWX-1/B").
		Case("AB01", "A2", 4, 5).
		Case("AB02", "A2", 9))

	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	a.SetTechnician("Sam")
	walkToSubmit(t, a, "DWX-1", "A")
	first, err := a.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	queued, _ := svc.Cases(ctx)

	reassignable, _ := svc.ReassignableLogs(ctx, labDay.Add(3*time.Hour))
	if len(reassignable) != 1 || reassignable[0].LogID != first.Entry.LogID {
		t.Fatalf("expected today's entry to be reassignable, got %+v", reassignable)
	}
	if _, err := svc.BeginReassignment(ctx, first.Entry.LogID, labDay.Add(24*time.Hour)); err == nil {
		t.Fatalf("expected yesterday's entry to be rejected")
	}

	r, err := svc.BeginReassignment(ctx, first.Entry.LogID, labDay)
	if err != nil {
		t.Fatalf("begin reassignment: %v", err)
	}
	var invalid domain.InvalidSelectionError
	if err := r.SelectDestination(ctx, "DWX-1", "A"); !errors.As(err, &invalid) {
		t.Fatalf("expected same-slot reassignment to be rejected, got %v", err)
	}
	if err := r.BeginLastJob(); !errors.As(err, &invalid) {
		t.Fatalf("expected last job to be unavailable, got %v", err)
	}
	walkToSubmit(t, r, "DWX-1", "B")
	summary, err := r.Submit(ctx)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	entry := summary.Entry
	if entry.Kind != domain.LogKindRelocation || entry.RelocatedFrom != first.Entry.LogID {
		t.Fatalf("expected relocation entry, got %+v", entry)
	}
	if entry.PreviousLocation != "DWX-1/A" || entry.NewLocation != "DWX-1/B" || entry.TechnicianName != "Sam" {
		t.Fatalf("unexpected relocation locations %+v", entry)
	}
	if entry.Notes != "Relocated from DWX-1/A due to mill reassignment" || entry.LastJobTriggered {
		t.Fatalf("unexpected relocation notes %+v", entry)
	}
	if !reflect.DeepEqual(entry.CaseIDs, []string{"AB01"}) {
		t.Fatalf("relocation should carry the original cases, got %v", entry.CaseIDs)
	}
	if summary.Title != "Puck Reassigned Successfully." || summary.DisplacedTo != "R1-A-A-1" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if p := mustPuck(t, svc, "PUCK-000001"); p.CurrentLocation != "DWX-1/B" {
		t.Fatalf("puck not relocated: %+v", p)
	}
	if p := mustPuck(t, svc, "PUCK-000002"); p.CurrentLocation != "R1-A-A-1" {
		t.Fatalf("occupant not displaced: %+v", p)
	}
	if _, occupied := slotHolder(t, svc, "DWX-1/A"); occupied {
		t.Fatalf("previous mill slot must be cleared")
	}
	after, _ := svc.Cases(ctx)
	if !reflect.DeepEqual(queued, after) {
		t.Fatalf("reassignment must not touch the case queue")
	}
}

func TestConcurrentSubmitAppliesOnce(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 1).
		Mill("DWX-1", domain.MillModelDWX).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4))
	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	walkToSubmit(t, a, "DWX-1", "D")

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Submit(ctx); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes == 0 {
		t.Fatalf("expected at least one successful submit")
	}
	logs, _ := svc.Logs(ctx)
	if len(logs) != 1 {
		t.Fatalf("expected one log entry, got %d", len(logs))
	}
	if _, err := a.Submit(ctx); err == nil || !strings.Contains(err.Error(), "already submitted") {
		t.Fatalf("expected resubmit rejection, got %v", err)
	}
}

func TestCancelDiscardsWizardState(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Mill("A52-1", domain.MillModelA52).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Puck("PUCK-000002", shadeA2, "A52-1/1").
		Case("AB01", "A2", 4))
	before := svc.Store().ExportState()

	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	walkToSubmit(t, a, "A52-1", "")
	a.Cancel()
	if a.Step() != StepClosed {
		t.Fatalf("expected closed, got %s", a.Step())
	}
	if err := a.Next(); err == nil {
		t.Fatalf("closed workflow must reject next")
	}
	if _, err := a.Submit(ctx); err == nil {
		t.Fatalf("closed workflow must reject submit")
	}
	if !reflect.DeepEqual(before, svc.Store().ExportState()) {
		t.Fatalf("cancel mutated the registries")
	}
}

func TestSubmitDetectsDrift(t *testing.T) {
	ctx := context.Background()
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 2).
		Mill("DWX-1", domain.MillModelDWX).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4))
	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	walkToSubmit(t, a, "DWX-1", "A")
	if _, err := svc.ReturnToInventory(ctx, "PUCK-000001"); err != nil {
		t.Fatalf("return: %v", err)
	}
	var invalid domain.InvalidSelectionError
	if _, err := a.Submit(ctx); !errors.As(err, &invalid) {
		t.Fatalf("expected drift to be detected, got %v", err)
	}
}

func TestAttachScreenshotStoresBlob(t *testing.T) {
	ctx := context.Background()
	store := newMemoryBlobs(t)
	svc := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 1).
		Mill("DWX-1", domain.MillModelDWX).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4), WithBlobStore(store))
	a, _ := svc.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	if _, err := a.AttachScreenshot(ctx, "shot.png", "image/png", strings.NewReader("png")); err == nil {
		t.Fatalf("expected attach outside the screenshot step to fail")
	}
	_ = a.SelectDestination(ctx, "DWX-1", "E")
	_ = a.Next()
	url, err := a.AttachScreenshot(ctx, `C:\captures\shot.png`, "image/png", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if url != "memory://screenshots/PUCK-000001/shot.png" || a.Screenshot() != url {
		t.Fatalf("unexpected screenshot url %q", url)
	}
	if _, err := a.AttachScreenshot(ctx, "shot.png", "image/png", strings.NewReader("again")); err == nil {
		t.Fatalf("expected duplicate screenshot to be rejected")
	}

	bare := newLab(t, testutil.NewLayout().
		Storage(1, "A", "A", 1).
		Mill("DWX-1", domain.MillModelDWX).
		Puck("PUCK-000001", shadeA2, "R1-A-A-1").
		Case("AB01", "A2", 4))
	b, _ := bare.BeginAssignment(ctx, "PUCK-000001", []string{"AB01"})
	_ = b.SelectDestination(ctx, "DWX-1", "E")
	_ = b.Next()
	if _, err := b.AttachScreenshot(ctx, "shot.png", "image/png", strings.NewReader("png")); err == nil {
		t.Fatalf("expected missing blob store error")
	}
}

func TestStepNames(t *testing.T) {
	if StepConfirmDisplacement.String() != "confirm_displacement" || Step(42).String() != "step(42)" {
		t.Fatalf("unexpected step names")
	}
}
