package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"millroom/internal/core"
	"millroom/internal/report"
	"millroom/pkg/domain"
	"millroom/testutil"
)

// InitCmd imports the standard lab layout.
type InitCmd struct {
	Force bool `help:"Replace an existing layout."`
}

func (c *InitCmd) Run(ctx context.Context, app *App) error {
	slots, err := app.Service.StorageSlots(ctx)
	if err != nil {
		return err
	}
	if len(slots) > 0 && !c.Force {
		return errors.New("store already holds a layout; pass --force to replace it")
	}
	snap := testutil.StandardLayout().Snapshot()
	if err := app.Service.ImportLayout(ctx, snap); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Imported %d storage slots and %d mills.\n", len(snap.StorageSlots), len(snap.Mills))
	return nil
}

// StatusCmd prints registry totals.
type StatusCmd struct{}

func (c *StatusCmd) Run(ctx context.Context, app *App) error {
	pucks, err := app.Service.Pucks(ctx)
	if err != nil {
		return err
	}
	slots, err := app.Service.StorageSlots(ctx)
	if err != nil {
		return err
	}
	mills, err := app.Service.Mills(ctx)
	if err != nil {
		return err
	}
	cases, err := app.Service.Cases(ctx)
	if err != nil {
		return err
	}

	byStatus := map[domain.PuckStatus]int{}
	for _, p := range pucks {
		byStatus[p.Status]++
	}
	vacant := 0
	for _, s := range slots {
		if !s.Occupied {
			vacant++
		}
	}
	units := 0
	for _, cs := range cases {
		units += cs.Units
	}

	w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Pucks in storage\t%d\n", byStatus[domain.PuckStatusInStorage])
	fmt.Fprintf(w, "Pucks in mills\t%d\n", byStatus[domain.PuckStatusInMill])
	fmt.Fprintf(w, "Pucks in inventory\t%d\n", byStatus[domain.PuckStatusInInventory])
	fmt.Fprintf(w, "Pucks retired\t%d\n", byStatus[domain.PuckStatusRetired])
	fmt.Fprintf(w, "Vacant storage slots\t%d of %d\n", vacant, len(slots))
	fmt.Fprintf(w, "Queued cases\t%d (%d units)\n", len(cases), units)
	for _, m := range mills {
		var held []string
		for _, s := range m.Slots {
			if s.Occupied {
				held = append(held, s.Name+"="+s.PuckID)
			}
		}
		fmt.Fprintf(w, "Mill %s (%s)\t%d/%d %s\n", m.ID, m.Model, len(held), len(m.Slots), strings.Join(held, " "))
	}
	return w.Flush()
}

// IntakeCmd scans a puck into storage.
type IntakeCmd struct {
	Scan  string `arg:"" help:"Scanner payload: shrinkage|serial|material|lot."`
	Shade string `help:"Reject pucks whose shade differs."`
}

func (c *IntakeCmd) Run(ctx context.Context, app *App) error {
	p, err := app.Service.IntakePuck(ctx, c.Scan, c.Shade)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Puck %s (%s %s) stored at %s\n", p.PuckID, p.Shade, p.Thickness, p.CurrentLocation)
	return nil
}

// PullCmd moves an inventory puck into storage.
type PullCmd struct {
	Puck string `arg:"" help:"Puck id."`
}

func (c *PullCmd) Run(ctx context.Context, app *App) error {
	p, err := app.Service.PullFromInventory(ctx, c.Puck)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Puck %s pulled to %s\n", p.PuckID, p.CurrentLocation)
	return nil
}

// ReturnCmd moves a stored puck back to inventory.
type ReturnCmd struct {
	Puck string `arg:"" help:"Puck id."`
}

func (c *ReturnCmd) Run(ctx context.Context, app *App) error {
	p, err := app.Service.ReturnToInventory(ctx, c.Puck)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Puck %s returned to %s\n", p.PuckID, p.CurrentLocation)
	return nil
}

// CasesCmd groups the case queue commands.
type CasesCmd struct {
	Add    CaseAddCmd    `cmd:"" help:"Queue a case."`
	List   CaseListCmd   `cmd:"" help:"List queued cases." default:"1"`
	Remove CaseRemoveCmd `cmd:"" help:"Drop cases from the queue."`
}

// CaseAddCmd queues one case. STL names are derived from the teeth unless
// given explicitly.
type CaseAddCmd struct {
	ID     string   `arg:"" help:"Case id."`
	Shade  string   `required:"" help:"Restoration shade."`
	Teeth  []int    `help:"Tooth numbers." sep:","`
	Files  []string `name:"file" help:"STL file names ({case}|{type}|{tooth}|{shade}.stl)."`
	Doctor string   `help:"Doctor name."`
	Office string   `help:"Office name."`
}

func (c *CaseAddCmd) Run(ctx context.Context, app *App) error {
	cs := domain.Case{
		CaseID:     c.ID,
		DoctorName: c.Doctor,
		OfficeName: c.Office,
		Shade:      strings.ToUpper(strings.TrimSpace(c.Shade)),
		Status:     domain.CaseStatusCAMReady,
	}
	if len(c.Files) > 0 {
		for _, f := range c.Files {
			tooth, ok := domain.ToothNumberFromFile(f)
			if !ok {
				return fmt.Errorf("no tooth number in file name %q", f)
			}
			cs.StlFiles = append(cs.StlFiles, f)
			cs.ToothNumbers = append(cs.ToothNumbers, tooth)
		}
	} else {
		for _, tooth := range c.Teeth {
			cs.StlFiles = append(cs.StlFiles, testutil.StlFile(c.ID, tooth, cs.Shade))
			cs.ToothNumbers = append(cs.ToothNumbers, tooth)
		}
	}
	cs.Units = len(cs.StlFiles)
	if err := app.Service.AddCases(ctx, []core.Case{cs}); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Case %s queued with %d unit(s)\n", cs.CaseID, cs.Units)
	return nil
}

// CaseListCmd lists the queue, optionally for one shade.
type CaseListCmd struct {
	Shade string `help:"Only cases of this shade."`
}

func (c *CaseListCmd) Run(ctx context.Context, app *App) error {
	var (
		cases []core.Case
		err   error
	)
	if c.Shade != "" {
		cases, err = app.Service.CasesByShade(ctx, c.Shade)
	} else {
		cases, err = app.Service.Cases(ctx)
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CASE\tSHADE\tUNITS\tTEETH\tDOCTOR")
	for _, cs := range cases {
		teeth := make([]string, len(cs.ToothNumbers))
		for i, t := range cs.ToothNumbers {
			teeth[i] = fmt.Sprint(t)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", cs.CaseID, cs.Shade, cs.Units, strings.Join(teeth, ","), cs.DoctorName)
	}
	return w.Flush()
}

// CaseRemoveCmd drops cases from the queue.
type CaseRemoveCmd struct {
	IDs []string `arg:"" help:"Case ids."`
}

func (c *CaseRemoveCmd) Run(ctx context.Context, app *App) error {
	if err := app.Service.RemoveCases(ctx, c.IDs); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Removed %d case(s)\n", len(c.IDs))
	return nil
}

// Placement holds the flags shared by assign and reassign.
type Placement struct {
	Mill           string `required:"" help:"Destination mill id."`
	Slot           string `help:"Destination slot letter. Optional for single-slot mills."`
	Screenshot     string `required:"" help:"Screenshot file to upload, or an existing reference."`
	Displace       bool   `help:"Allow relocating the puck currently in the slot."`
	GcodeConfirmed bool   `name:"gcode-confirmed" help:"Confirm the G-code was sent to the mill."`
	Technician     string `help:"Technician name."`
}

// drive walks an open workflow from destination selection to the summary.
func (p Placement) drive(ctx context.Context, app *App, a *core.Assignment, skip []string) (core.Summary, error) {
	if p.Technician != "" {
		if err := a.SetTechnician(p.Technician); err != nil {
			return core.Summary{}, err
		}
	}
	if err := a.SelectDestination(ctx, p.Mill, p.Slot); err != nil {
		return core.Summary{}, err
	}
	if err := a.Next(); err != nil {
		return core.Summary{}, err
	}
	if a.Step() == core.StepConfirmDisplacement {
		occupant, vacancy := a.Displacement()
		if !p.Displace {
			return core.Summary{}, fmt.Errorf("%s holds puck %s; pass --displace to move it to %s", a.Destination(), occupant, vacancy)
		}
		if err := a.ConfirmDisplacement(); err != nil {
			return core.Summary{}, err
		}
	}
	if err := attachScreenshot(ctx, a, p.Screenshot); err != nil {
		return core.Summary{}, err
	}
	if err := a.Next(); err != nil {
		return core.Summary{}, err
	}
	for _, f := range skip {
		if err := a.ToggleSkip(f); err != nil {
			return core.Summary{}, err
		}
	}
	if !p.GcodeConfirmed {
		return core.Summary{}, errors.New("G-code must be confirmed with --gcode-confirmed")
	}
	if err := a.ConfirmGcode(true); err != nil {
		return core.Summary{}, err
	}
	if err := a.Next(); err != nil {
		return core.Summary{}, err
	}
	summary, err := a.Submit(ctx)
	if err != nil {
		return core.Summary{}, err
	}
	printSummary(app, summary)
	return summary, a.Done()
}

func attachScreenshot(ctx context.Context, a *core.Assignment, ref string) error {
	f, err := os.Open(ref)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return a.SetScreenshot(ref)
		}
		return err
	}
	defer func() { _ = f.Close() }()
	contentType := mime.TypeByExtension(filepath.Ext(ref))
	_, err = a.AttachScreenshot(ctx, filepath.Base(ref), contentType, f)
	return err
}

func printSummary(app *App, s core.Summary) {
	fmt.Fprintln(app.Out, s.Title)
	for _, item := range s.Items {
		fmt.Fprintf(app.Out, "  - %s\n", item)
	}
	fmt.Fprintf(app.Out, "Log entry %s\n", s.Entry.LogID)
}

// AssignCmd runs the assignment workflow non-interactively.
type AssignCmd struct {
	Placement `embed:""`
	Puck            string   `arg:"" help:"Puck id."`
	Cases           []string `name:"case" required:"" help:"Case ids to mill."`
	Skip            []string `help:"STL files to leave in the queue."`
	Replacement     string   `xor:"replacement" help:"Retire the puck after this job, replacing it with this puck."`
	ReplacementScan string   `xor:"replacement" help:"Retire the puck after this job, replacing it with a newly scanned puck."`
}

func (c *AssignCmd) Run(ctx context.Context, app *App) error {
	a, err := app.Service.BeginAssignment(ctx, c.Puck, c.Cases)
	if err != nil {
		return err
	}
	if c.Replacement != "" || c.ReplacementScan != "" {
		if err := a.BeginLastJob(); err != nil {
			a.Cancel()
			return err
		}
		if c.ReplacementScan != "" {
			err = a.ScanReplacement(ctx, c.ReplacementScan)
		} else {
			err = a.ChooseReplacement(ctx, c.Replacement)
		}
		if err != nil {
			a.Cancel()
			return err
		}
	}
	if _, err := c.drive(ctx, app, a, c.Skip); err != nil {
		a.Cancel()
		return err
	}
	return nil
}

// ReassignCmd moves a same-day assignment to another slot.
type ReassignCmd struct {
	Placement `embed:""`
	LogID string `arg:"" name:"log-id" help:"Log entry of the assignment to move."`
}

func (c *ReassignCmd) Run(ctx context.Context, app *App) error {
	a, err := app.Service.BeginReassignment(ctx, c.LogID, app.Now())
	if err != nil {
		return err
	}
	if _, err := c.drive(ctx, app, a, nil); err != nil {
		a.Cancel()
		return err
	}
	return nil
}

// LogCmd prints the mill log.
type LogCmd struct {
	Query        string `arg:"" optional:"" help:"Match puck, case, technician or replacement puck."`
	Reassignable bool   `help:"Only entries that can still be reassigned today."`
}

func (c *LogCmd) Run(ctx context.Context, app *App) error {
	var (
		entries []core.LogEntry
		err     error
	)
	switch {
	case c.Reassignable:
		entries, err = app.Service.ReassignableLogs(ctx, app.Now())
	case c.Query != "":
		entries, err = app.Service.SearchLog(ctx, c.Query)
	default:
		entries, err = app.Service.Logs(ctx)
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOG\tTIME\tKIND\tPUCK\tFROM\tTO\tCASES\tNOTE")
	for _, e := range entries {
		note := e.Notes
		if e.LastJobTriggered {
			note = "last job, replaced by " + e.NewPuckID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.LogID, e.Timestamp.UTC().Format("2006-01-02 15:04"), e.Kind, e.PuckID,
			e.PreviousLocation, e.NewLocation, strings.Join(e.CaseIDs, ","), note)
	}
	return w.Flush()
}

// ReportCmd prints the replenishment analysis.
type ReportCmd struct {
	Xlsx       string `help:"Also write an XLSX workbook to this path." type:"path"`
	OrderQueue bool   `name:"order-queue" help:"List retired pucks grouped for reordering."`
}

func (c *ReportCmd) Run(ctx context.Context, app *App) error {
	pucks, err := app.Service.Pucks(ctx)
	if err != nil {
		return err
	}
	logs, err := app.Service.Logs(ctx)
	if err != nil {
		return err
	}
	analysis := report.Analyze(pucks, logs, app.Service.Catalog(), app.Now())

	w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MATERIAL\tSHADE\tTHICKNESS\tRETIRED\tWEEKLY\tACTIVE\tRECOMMENDED\tSHORTAGE\tSTATUS")
	for _, m := range analysis.Materials {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.1f\t%d\t%d\t%d\t%s\n",
			m.Material.ID, m.Material.Shade, m.Material.Thickness, m.Retired,
			m.WeeklyAverage, m.Active, m.Recommended, m.Shortage, m.Status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "%d low, %d ok, %d excess\n",
		analysis.Count(report.StatusLow), analysis.Count(report.StatusOK), analysis.Count(report.StatusExcess))

	if c.OrderQueue {
		for _, g := range report.RetiredOrderQueue(pucks) {
			fmt.Fprintf(app.Out, "%s %s: %d retired (%s)\n", g.Shade, g.Thickness, len(g.PuckIDs), strings.Join(g.PuckIDs, ", "))
		}
	}

	if c.Xlsx == "" {
		return nil
	}
	f, err := os.Create(c.Xlsx)
	if err != nil {
		return err
	}
	if err := report.WriteWorkbook(f, logs, analysis); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Workbook written to %s\n", c.Xlsx)
	return nil
}
