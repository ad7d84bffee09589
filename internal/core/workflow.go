package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"millroom/internal/blob"
	"millroom/pkg/domain"
)

// Step is a stage of the assignment workflow.
type Step int

const (
	StepSelectDestination Step = iota
	StepReplacePuck
	StepConfirmDisplacement
	StepCaptureScreenshot
	StepConfirmGcode
	StepSubmit
	StepSummary
	StepClosed
)

func (s Step) String() string {
	switch s {
	case StepSelectDestination:
		return "select_destination"
	case StepReplacePuck:
		return "replace_puck"
	case StepConfirmDisplacement:
		return "confirm_displacement"
	case StepCaptureScreenshot:
		return "capture_screenshot"
	case StepConfirmGcode:
		return "confirm_gcode"
	case StepSubmit:
		return "submit"
	case StepSummary:
		return "summary"
	case StepClosed:
		return "closed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Summary describes a committed assignment.
type Summary struct {
	Title       string
	Items       []string
	Entry       LogEntry
	DisplacedTo string
}

type workflowMode int

const (
	modeAssign workflowMode = iota
	modeReassign
)

// Assignment is one run of the mill assignment wizard. Nothing is written to
// the store before Submit; Cancel discards all state.
type Assignment struct {
	svc    *Service
	mode   workflowMode
	flight singleflight.Group

	mu         sync.Mutex
	step       Step
	puck       Puck
	origin     string
	original   LogEntry
	cases      []Case
	technician string

	millID   string
	slotName string
	occupant string

	displaceTo string

	replacement     string
	replacementFrom domain.PuckStatus
	replacementTo   string
	replacementScan *domain.MaterialSpec

	screenshot string
	gcode      bool
	skipped    map[string]struct{}

	summary Summary
}

// BeginAssignment starts the wizard for placing puckID in a mill to cut
// caseIDs. The cases must share one shade, matching the puck.
func (s *Service) BeginAssignment(ctx context.Context, puckID string, caseIDs []string) (*Assignment, error) {
	a := &Assignment{svc: s, mode: modeAssign, skipped: make(map[string]struct{})}
	err := s.view(ctx, func(v TransactionView) error {
		p, err := selectablePuck(v, puckID)
		if err != nil {
			return err
		}
		shade, err := v.ValidateSelection(caseIDs)
		if err != nil {
			return err
		}
		if shade != p.Shade {
			return domain.InvalidSelectionError{Reason: fmt.Sprintf("puck %s is shade %s, cases are %s", p.PuckID, p.Shade, shade)}
		}
		a.puck = p
		a.origin = p.CurrentLocation
		for _, id := range caseIDs {
			c, _ := v.FindCase(id)
			a.cases = append(a.cases, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.selection.Set(a.puck.Shade)
	s.logger.Debug("assignment started", "puck", puckID, "cases", strings.Join(caseIDs, ","))
	return a, nil
}

// BeginReassignment starts the wizard for moving the puck of a reassignable
// log entry to another mill slot. The case queue is not touched.
func (s *Service) BeginReassignment(ctx context.Context, logID string, now time.Time) (*Assignment, error) {
	a := &Assignment{svc: s, mode: modeReassign, skipped: make(map[string]struct{})}
	err := s.view(ctx, func(v TransactionView) error {
		entry, ok := v.FindLogEntry(logID)
		if !ok {
			return domain.NotFoundError{Entity: EntityLogEntry, ID: logID}
		}
		if !domain.IsReassignable(entry, now) {
			return domain.InvalidSelectionError{Reason: "log entry " + logID + " can no longer be reassigned"}
		}
		p, err := selectablePuck(v, entry.PuckID)
		if err != nil {
			return err
		}
		a.puck = p
		a.original = entry
		a.origin = entry.NewLocation
		a.technician = entry.TechnicianName
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("reassignment started", "log", logID, "puck", a.puck.PuckID)
	return a, nil
}

func selectablePuck(v TransactionView, id string) (Puck, error) {
	p, ok := v.FindPuck(id)
	if !ok {
		return Puck{}, domain.NotFoundError{Entity: EntityPuck, ID: id}
	}
	switch p.Status {
	case domain.PuckStatusRetired:
		return Puck{}, domain.InvalidSelectionError{Reason: "puck " + id + " is retired"}
	case domain.PuckStatusInInventory:
		return Puck{}, domain.InvalidSelectionError{Reason: "puck " + id + " must be pulled from inventory first"}
	}
	return p, nil
}

// Step reports the current stage.
func (a *Assignment) Step() Step {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.step
}

// Puck returns the puck being placed as it was when the workflow began.
func (a *Assignment) Puck() Puck {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.puck
}

// Cases returns the selected cases as they were when the workflow began.
func (a *Assignment) Cases() []Case {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Case, 0, len(a.cases))
	for _, c := range a.cases {
		out = append(out, domain.CloneCase(c))
	}
	return out
}

// Destination returns the chosen mill slot key, or "".
func (a *Assignment) Destination() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.destination()
}

func (a *Assignment) destination() string {
	if a.millID == "" {
		return ""
	}
	return domain.MillSlotKey(a.millID, a.slotName)
}

// Displacement returns the puck that will be moved out of the destination and
// the storage slot reserved for it. Both are empty when no displacement is needed.
func (a *Assignment) Displacement() (puckID, vacancy string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.occupant, a.displaceTo
}

// SetTechnician records who performed the assignment.
func (a *Assignment) SetTechnician(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.open(); err != nil {
		return err
	}
	a.technician = strings.TrimSpace(name)
	return nil
}

func (a *Assignment) open() error {
	switch a.step {
	case StepClosed:
		return domain.InvalidSelectionError{Reason: "assignment is closed"}
	case StepSummary:
		return domain.InvalidSelectionError{Reason: "assignment already submitted"}
	}
	return nil
}

func (a *Assignment) expect(step Step) error {
	if err := a.open(); err != nil {
		return err
	}
	if a.step != step {
		return domain.InvalidSelectionError{Reason: fmt.Sprintf("workflow is at %s, not %s", a.step, step)}
	}
	return nil
}

// SelectDestination chooses the mill slot. Single-slot mills bind their only
// slot and accept an empty slotName. When the slot holds another puck a
// storage vacancy for it is reserved immediately.
func (a *Assignment) SelectDestination(ctx context.Context, millID, slotName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepSelectDestination); err != nil {
		return err
	}
	return a.svc.view(ctx, func(v TransactionView) error {
		mill, ok := v.FindMill(millID)
		if !ok {
			return domain.NotFoundError{Entity: EntityMill, ID: millID}
		}
		switch {
		case len(mill.Slots) == 1 && (slotName == "" || slotName == mill.Slots[0].Name):
			slotName = mill.Slots[0].Name
		case slotName == "":
			return domain.InvalidSelectionError{Reason: "mill " + millID + " requires a slot"}
		}
		slot, ok := mill.Slot(slotName)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityMillSlot, ID: domain.MillSlotKey(millID, slotName)}
		}
		key := domain.MillSlotKey(millID, slotName)
		if a.mode == modeReassign && key == a.origin {
			return domain.InvalidSelectionError{Reason: "puck is already assigned to " + key}
		}
		occupant := ""
		if slot.Occupied && slot.PuckID != a.puck.PuckID {
			occupant = slot.PuckID
		}
		displaceTo, replacementTo, err := planVacancies(v, occupant != "", a.needsReplacementSlot())
		if err != nil {
			return err
		}
		a.millID, a.slotName, a.occupant = millID, slotName, occupant
		a.displaceTo, a.replacementTo = displaceTo, replacementTo
		return nil
	})
}

// planVacancies reserves storage slots in scan order: first for a displaced
// puck, then for a replacement pulled from inventory or scanned at the bench.
func planVacancies(v TransactionView, displace, pull bool) (string, string, error) {
	needed := 0
	if displace {
		needed++
	}
	if pull {
		needed++
	}
	if needed == 0 {
		return "", "", nil
	}
	slots := v.FindAvailableSlots(needed)
	if len(slots) < needed {
		return "", "", domain.NoVacantSlotError{Needed: needed, Available: len(slots)}
	}
	var displaceTo, pullTo string
	if displace {
		displaceTo, slots = slots[0].Key(), slots[1:]
	}
	if pull {
		pullTo = slots[0].Key()
	}
	return displaceTo, pullTo, nil
}

// BeginLastJob opens the replacement branch. It must be resolved with
// ChooseReplacement, ScanReplacement or CancelLastJob before the wizard can
// advance.
func (a *Assignment) BeginLastJob() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepSelectDestination); err != nil {
		return err
	}
	if a.mode == modeReassign {
		return domain.InvalidSelectionError{Reason: "reassignment cannot retire a puck"}
	}
	a.step = StepReplacePuck
	return nil
}

// ReplacementCandidates lists storage and inventory pucks of the same shade
// and thickness as the puck being placed.
func (a *Assignment) ReplacementCandidates(ctx context.Context) ([]Puck, error) {
	a.mu.Lock()
	puck := a.puck
	a.mu.Unlock()
	var out []Puck
	err := a.svc.view(ctx, func(v TransactionView) error {
		out = replacementCandidates(v, puck)
		return nil
	})
	return out, err
}

func replacementCandidates(v TransactionView, puck Puck) []Puck {
	var out []Puck
	for _, p := range v.ListPucksByShadeAndThickness(puck.Shade, puck.Thickness) {
		if p.PuckID == puck.PuckID {
			continue
		}
		if p.Status == domain.PuckStatusInStorage || p.Status == domain.PuckStatusInInventory {
			out = append(out, p)
		}
	}
	return out
}

// ChooseReplacement resolves the Last Job branch with puckID. A replacement
// still in inventory needs its own storage vacancy.
func (a *Assignment) ChooseReplacement(ctx context.Context, puckID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepReplacePuck); err != nil {
		return err
	}
	return a.svc.view(ctx, func(v TransactionView) error {
		idx := slices.IndexFunc(replacementCandidates(v, a.puck), func(p Puck) bool { return p.PuckID == puckID })
		if idx < 0 {
			return domain.InvalidSelectionError{Reason: "puck " + puckID + " cannot replace " + a.puck.PuckID}
		}
		candidate, _ := v.FindPuck(puckID)
		replacementTo := ""
		if a.millID != "" || candidate.Status == domain.PuckStatusInInventory {
			var err error
			a.displaceTo, replacementTo, err = planVacancies(v, a.occupant != "", candidate.Status == domain.PuckStatusInInventory)
			if err != nil {
				return err
			}
		}
		a.replacement = puckID
		a.replacementFrom = candidate.Status
		a.replacementTo = replacementTo
		a.replacementScan = nil
		a.step = StepSelectDestination
		return nil
	})
}

// ScanReplacement resolves the Last Job branch with a puck scanned at the
// bench. The puck is created in its own storage vacancy on submit.
func (a *Assignment) ScanReplacement(ctx context.Context, scan string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepReplacePuck); err != nil {
		return err
	}
	spec, err := domain.ParseScan(scan, a.svc.catalog)
	if err != nil {
		a.svc.logger.Warn("scan rejected", "error", err)
		return err
	}
	if spec.Shade != a.puck.Shade || spec.Thickness != a.puck.Thickness {
		return domain.InvalidSelectionError{Reason: fmt.Sprintf("scanned %s %s cannot replace %s", spec.Shade, spec.Thickness, a.puck.PuckID)}
	}
	return a.svc.view(ctx, func(v TransactionView) error {
		displaceTo, replacementTo, err := planVacancies(v, a.occupant != "", true)
		if err != nil {
			return err
		}
		a.displaceTo = displaceTo
		a.replacement, a.replacementFrom, a.replacementTo = "", "", replacementTo
		a.replacementScan = &spec
		a.step = StepSelectDestination
		return nil
	})
}

// CancelLastJob leaves the replacement branch without a replacement.
func (a *Assignment) CancelLastJob() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepReplacePuck); err != nil {
		return err
	}
	a.replacement, a.replacementFrom, a.replacementTo = "", "", ""
	a.replacementScan = nil
	a.step = StepSelectDestination
	return nil
}

// needsReplacementSlot reports whether the replacement lands in a storage
// vacancy on submit.
func (a *Assignment) needsReplacementSlot() bool {
	return a.replacementFrom == domain.PuckStatusInInventory || a.replacementScan != nil
}

// Replacement returns the chosen replacement puck id, or "". A scanned
// replacement has no id until submit.
func (a *Assignment) Replacement() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.replacement
}

// ConfirmDisplacement acknowledges the displacement and advances.
func (a *Assignment) ConfirmDisplacement() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepConfirmDisplacement); err != nil {
		return err
	}
	a.step = StepCaptureScreenshot
	return nil
}

// SetScreenshot records an already stored screenshot reference.
func (a *Assignment) SetScreenshot(ref string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepCaptureScreenshot); err != nil {
		return err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.InvalidSelectionError{Reason: "screenshot reference is empty"}
	}
	a.screenshot = ref
	return nil
}

// AttachScreenshot uploads r to the blob store under the puck's screenshot
// prefix and records the stored URL.
func (a *Assignment) AttachScreenshot(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepCaptureScreenshot); err != nil {
		return "", err
	}
	if a.svc.blobs == nil {
		return "", errors.New("no screenshot store configured")
	}
	key := blob.ScreenshotKey(a.puck.PuckID, name)
	info, err := a.svc.blobs.Put(ctx, key, r, blob.PutOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("store screenshot %s: %w", key, err)
	}
	a.screenshot = info.URL
	a.svc.logger.Debug("screenshot stored", "puck", a.puck.PuckID, "key", info.Key, "bytes", info.Size)
	return info.URL, nil
}

// Screenshot returns the recorded screenshot reference.
func (a *Assignment) Screenshot() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.screenshot
}

// ToggleSkip flips whether file is left in the queue instead of being milled.
// After G-code confirmation the choice is frozen and the call is rejected
// without changing anything.
func (a *Assignment) ToggleSkip(file string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.open(); err != nil {
		return err
	}
	if a.gcode {
		return domain.InvalidSelectionError{Reason: "G-code confirmed; file selection is frozen"}
	}
	if !a.hasFile(file) {
		return domain.InvalidSelectionError{Reason: "file " + file + " is not part of the selected cases"}
	}
	if _, ok := a.skipped[file]; ok {
		delete(a.skipped, file)
	} else {
		a.skipped[file] = struct{}{}
	}
	return nil
}

func (a *Assignment) hasFile(file string) bool {
	for _, c := range a.cases {
		if slices.Contains(c.StlFiles, file) {
			return true
		}
	}
	return false
}

// Skipped lists the skipped files in case order.
func (a *Assignment) Skipped() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, c := range a.cases {
		for _, f := range c.StlFiles {
			if _, ok := a.skipped[f]; ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// ConfirmGcode records the G-code confirmation. Confirmation is one-way.
func (a *Assignment) ConfirmGcode(confirmed bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepConfirmGcode); err != nil {
		return err
	}
	if !confirmed && a.gcode {
		return domain.InvalidSelectionError{Reason: "G-code confirmation cannot be withdrawn"}
	}
	a.gcode = confirmed
	return nil
}

// Next advances past the current step once its precondition holds.
func (a *Assignment) Next() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.open(); err != nil {
		return err
	}
	switch a.step {
	case StepSelectDestination:
		if a.millID == "" {
			return domain.InvalidSelectionError{Reason: "choose a mill and slot first"}
		}
		if a.occupant != "" {
			a.step = StepConfirmDisplacement
		} else {
			a.step = StepCaptureScreenshot
		}
	case StepReplacePuck:
		return domain.InvalidSelectionError{Reason: "choose or cancel the replacement puck first"}
	case StepConfirmDisplacement:
		a.step = StepCaptureScreenshot
	case StepCaptureScreenshot:
		if a.screenshot == "" {
			return domain.InvalidSelectionError{Reason: "a screenshot is required"}
		}
		a.step = StepConfirmGcode
	case StepConfirmGcode:
		if !a.gcode {
			return domain.InvalidSelectionError{Reason: "G-code must be confirmed"}
		}
		a.step = StepSubmit
	case StepSubmit:
		return domain.InvalidSelectionError{Reason: "submit the assignment to continue"}
	}
	return nil
}

// Back returns to the previous step. Recorded choices are kept.
func (a *Assignment) Back() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.open(); err != nil {
		return err
	}
	switch a.step {
	case StepSelectDestination, StepReplacePuck:
		return domain.InvalidSelectionError{Reason: "already at the first step"}
	case StepConfirmDisplacement:
		a.step = StepSelectDestination
	case StepCaptureScreenshot:
		if a.occupant != "" {
			a.step = StepConfirmDisplacement
		} else {
			a.step = StepSelectDestination
		}
	case StepConfirmGcode:
		a.step = StepCaptureScreenshot
	case StepSubmit:
		a.step = StepConfirmGcode
	}
	return nil
}

// Cancel discards the workflow without touching the store.
func (a *Assignment) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.step = StepClosed
}

// Done closes a submitted workflow.
func (a *Assignment) Done() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.step != StepSummary {
		return domain.InvalidSelectionError{Reason: "assignment has not been submitted"}
	}
	a.step = StepClosed
	return nil
}

// Summary returns the summary of a submitted workflow.
func (a *Assignment) Summary() (Summary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summary, a.summary.Entry.LogID != ""
}

// Submit validates every precondition and then applies the assignment in a
// single store transaction. Concurrent calls share one execution; calls after
// a successful submit are rejected.
func (a *Assignment) Submit(ctx context.Context) (Summary, error) {
	v, err, _ := a.flight.Do("submit", func() (any, error) {
		return a.submit(ctx)
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// submit notifies subscribers only after a.mu is released, so a subscriber
// may read the wizard it was triggered by.
func (a *Assignment) submit(ctx context.Context) (Summary, error) {
	summary, changes, err := a.commitSubmit(ctx)
	if err != nil {
		return Summary{}, err
	}
	a.svc.notify(changes)
	return summary, nil
}

func (a *Assignment) commitSubmit(ctx context.Context) (Summary, []Change, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.expect(StepSubmit); err != nil {
		return Summary{}, nil, err
	}
	switch {
	case a.millID == "":
		return Summary{}, nil, domain.InvalidSelectionError{Reason: "choose a mill and slot first"}
	case a.screenshot == "":
		return Summary{}, nil, domain.InvalidSelectionError{Reason: "a screenshot is required"}
	case !a.gcode:
		return Summary{}, nil, domain.InvalidSelectionError{Reason: "G-code must be confirmed"}
	}
	op := "assignment.submit"
	if a.mode == modeReassign {
		op = "reassignment.submit"
	}
	var summary Summary
	_, changes, err := a.svc.commit(ctx, op, func(tx Transaction) error {
		if err := a.precheck(tx); err != nil {
			return err
		}
		var err error
		summary, err = a.apply(tx)
		return err
	})
	if err != nil {
		return Summary{}, nil, err
	}
	a.summary = summary
	a.step = StepSummary
	if summary.Entry.NewPuckID != "" {
		a.replacement = summary.Entry.NewPuckID
	}
	a.svc.logger.Info("assignment submitted", "puck", a.puck.PuckID, "destination", a.destination(), "log", summary.Entry.LogID)
	return summary, changes, nil
}

// precheck fails before the first mutation when the registries drifted from
// what the wizard showed.
func (a *Assignment) precheck(tx Transaction) error {
	puck, ok := tx.FindPuck(a.puck.PuckID)
	if !ok {
		return domain.NotFoundError{Entity: EntityPuck, ID: a.puck.PuckID}
	}
	if puck.Retired() || puck.Status == domain.PuckStatusInInventory {
		return domain.InvalidSelectionError{Reason: "puck " + puck.PuckID + " is no longer available"}
	}
	dest := a.destination()
	holder, occupied, exists := tx.SlotOccupant(dest)
	if !exists {
		return domain.NotFoundError{Entity: domain.EntityMillSlot, ID: dest}
	}
	if occupied && holder != a.puck.PuckID && holder != a.occupant {
		return domain.InvalidSelectionError{Reason: fmt.Sprintf("%s is now held by %s", dest, holder)}
	}
	if a.occupant != "" && (!occupied || holder != a.occupant) {
		return domain.InvalidSelectionError{Reason: fmt.Sprintf("%s no longer holds %s", dest, a.occupant)}
	}
	vacancies := []string{a.displaceTo, a.replacementTo}
	needed, available := 0, 0
	for _, key := range vacancies {
		if key == "" {
			continue
		}
		needed++
		if _, taken, ok := tx.SlotOccupant(key); ok && !taken {
			available++
		}
	}
	if available < needed {
		return domain.NoVacantSlotError{Needed: needed, Available: available}
	}
	if a.replacement != "" {
		r, ok := tx.FindPuck(a.replacement)
		if !ok || r.Status != a.replacementFrom {
			return domain.InvalidSelectionError{Reason: "replacement puck " + a.replacement + " is no longer available"}
		}
	}
	return nil
}

func (a *Assignment) apply(tx Transaction) (Summary, error) {
	id := a.puck.PuckID
	dest := a.destination()
	live, _ := tx.FindPuck(id)
	var items []string

	if live.CurrentLocation != dest {
		if k := domain.KindOf(live.CurrentLocation); k == domain.LocationStorage || k == domain.LocationMill {
			if err := tx.ClearSlot(live.CurrentLocation); err != nil {
				return Summary{}, err
			}
		}
		if _, err := tx.MovePuck(id, dest); err != nil {
			return Summary{}, err
		}
		if _, err := tx.SetPuckStatus(id, domain.PuckStatusInMill); err != nil {
			return Summary{}, err
		}
	}
	if _, err := tx.SetPuckScreenshot(id, a.screenshot); err != nil {
		return Summary{}, err
	}
	if a.occupant != "" {
		if err := tx.ClearSlot(dest); err != nil {
			return Summary{}, err
		}
	}
	if err := tx.OccupySlot(dest, id); err != nil {
		return Summary{}, err
	}
	items = append(items, fmt.Sprintf("Selected Puck %s moved to %s Slot %s", id, a.millID, a.slotName))

	if a.occupant != "" {
		if _, err := tx.MovePuck(a.occupant, a.displaceTo); err != nil {
			return Summary{}, err
		}
		if _, err := tx.SetPuckStatus(a.occupant, domain.PuckStatusInStorage); err != nil {
			return Summary{}, err
		}
		if err := tx.OccupySlot(a.displaceTo, a.occupant); err != nil {
			return Summary{}, err
		}
		items = append([]string{fmt.Sprintf("Old Puck %s relocated to Storage Rack %s", a.occupant, a.displaceTo)}, items...)
	}

	if a.mode == modeReassign {
		prev := a.original.NewLocation
		entry, err := tx.AppendRelocationEntry(a.original.LogID, id, prev, dest, a.original.CaseIDs,
			fmt.Sprintf("Relocated from %s due to mill reassignment", prev))
		if err != nil {
			return Summary{}, err
		}
		return Summary{Title: "Puck Reassigned Successfully.", Items: items, Entry: entry, DisplacedTo: a.displaceTo}, nil
	}

	caseIDs := make([]string, 0, len(a.cases))
	for _, c := range a.cases {
		caseIDs = append(caseIDs, c.CaseID)
		var milled []string
		for _, f := range c.StlFiles {
			if _, skip := a.skipped[f]; !skip {
				milled = append(milled, f)
			}
		}
		if rest, queued := tx.ConsumeCaseUnits(c.CaseID, milled); queued {
			items = append(items, fmt.Sprintf("Case %s keeps %d unit(s) in the queue", c.CaseID, rest.Units))
		} else {
			items = append(items, fmt.Sprintf("Case %s removed from queue", c.CaseID))
		}
	}

	title := "Milling Assignment Completed."
	replacement := a.replacement
	if a.replacementScan != nil {
		created, err := tx.CreatePuckInStorage(*a.replacementScan, a.replacementTo)
		if err != nil {
			return Summary{}, err
		}
		if err := tx.OccupySlot(a.replacementTo, created.PuckID); err != nil {
			return Summary{}, err
		}
		replacement = created.PuckID
		items = append(items, fmt.Sprintf("Replacement Puck %s scanned into %s", replacement, a.replacementTo))
	}
	if replacement != "" {
		if a.replacementFrom == domain.PuckStatusInInventory {
			if _, err := tx.MovePuckFromInventoryToStorage(replacement, a.replacementTo); err != nil {
				return Summary{}, err
			}
			if err := tx.OccupySlot(a.replacementTo, replacement); err != nil {
				return Summary{}, err
			}
			items = append(items, fmt.Sprintf("Replacement Puck %s pulled from inventory to %s", replacement, a.replacementTo))
		}
		if _, err := tx.MovePuck(id, domain.RetiredLocation); err != nil {
			return Summary{}, err
		}
		if _, err := tx.SetPuckStatus(id, domain.PuckStatusRetired); err != nil {
			return Summary{}, err
		}
		if err := tx.ClearSlot(dest); err != nil {
			return Summary{}, err
		}
		items = append(items, fmt.Sprintf("Puck %s retired after final job (Replaced by %s)", id, replacement))
		title = "Milling Assignment Completed. Puck Replaced Successfully."
	}

	entry, err := tx.AppendLogEntry(LogEntry{
		Kind:             domain.LogKindAssignment,
		Timestamp:        a.svc.clock.Now(),
		PuckID:           id,
		PreviousLocation: a.origin,
		NewLocation:      dest,
		CaseIDs:          caseIDs,
		TechnicianName:   a.technician,
		LastJobTriggered: replacement != "",
		NewPuckID:        replacement,
	})
	if err != nil {
		return Summary{}, err
	}
	return Summary{Title: title, Items: items, Entry: entry, DisplacedTo: a.displaceTo}, nil
}
