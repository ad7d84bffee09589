package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"millroom/pkg/domain"
)

const (
	activitySheet      = "Activity"
	replenishmentSheet = "Replenishment"
	timestampLayout    = "2006-01-02 15:04:05"
)

var (
	activityHeaders      = []string{"Log ID", "Kind", "Timestamp", "Puck", "From", "To", "Cases", "Technician", "Last Job", "Replacement", "Notes"}
	replenishmentHeaders = []string{"Material", "Shade", "Thickness", "Retired (5 wk)", "Weekly Avg", "Active", "Recommended", "Shortage", "Status"}
)

// WriteWorkbook writes an XLSX workbook with the mill log on the Activity
// sheet and the analysis on the Replenishment sheet.
func WriteWorkbook(w io.Writer, logs []domain.LogEntry, analysis Analysis) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", activitySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(replenishmentSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	activity := make([][]any, 0, len(logs))
	for _, e := range logs {
		activity = append(activity, []any{
			e.LogID, string(e.Kind), e.Timestamp.UTC().Format(timestampLayout), e.PuckID,
			e.PreviousLocation, e.NewLocation, strings.Join(e.CaseIDs, ", "), e.TechnicianName,
			yesNo(e.LastJobTriggered), e.NewPuckID, e.Notes,
		})
	}
	if err := writeTable(f, activitySheet, activityHeaders, activity, headerStyle); err != nil {
		return err
	}

	rows := make([][]any, 0, len(analysis.Materials))
	for _, m := range analysis.Materials {
		rows = append(rows, []any{
			m.Material.ID, m.Material.Shade, m.Material.Thickness, m.Retired,
			m.WeeklyAverage, m.Active, m.Recommended, m.Shortage, string(m.Status),
		})
	}
	if err := writeTable(f, replenishmentSheet, replenishmentHeaders, rows, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("%s header: %w", sheet, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, r+2, err)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
