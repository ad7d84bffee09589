package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"millroom/pkg/domain"
)

var now = time.Date(2024, time.May, 14, 12, 0, 0, 0, time.UTC)

func puck(id string, materialID int, shade, thickness string, status domain.PuckStatus) domain.Puck {
	return domain.Puck{PuckID: id, MaterialID: materialID, Shade: shade, Thickness: thickness, Status: status}
}

func lastJob(puckID string, at time.Time) domain.LogEntry {
	return domain.LogEntry{LogID: "log-" + puckID, Kind: domain.LogKindAssignment, PuckID: puckID, Timestamp: at, LastJobTriggered: true}
}

func testCatalog(t *testing.T) *domain.Catalog {
	t.Helper()
	c, err := domain.NewCatalog([]domain.Material{
		{ID: 1, Shade: "A1", Thickness: "14mm"},
		{ID: 2, Shade: "A2", Thickness: "14mm"},
		{ID: 3, Shade: "B1", Thickness: "20mm"},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestAnalyzeRecommendsFiveWeeksOfUsage(t *testing.T) {
	pucks := []domain.Puck{
		puck("P1", 2, "A2", "14mm", domain.PuckStatusRetired),
		puck("P2", 2, "A2", "14mm", domain.PuckStatusRetired),
		puck("P3", 2, "A2", "14mm", domain.PuckStatusRetired),
		puck("P4", 2, "A2", "14mm", domain.PuckStatusRetired),
		puck("P5", 2, "A2", "14mm", domain.PuckStatusInStorage),
		puck("P6", 3, "B1", "20mm", domain.PuckStatusInStorage),
		puck("P7", 1, "A1", "14mm", domain.PuckStatusRetired),
	}
	logs := []domain.LogEntry{
		lastJob("P1", now.Add(-24*time.Hour)),
		lastJob("P2", now.Add(-10*24*time.Hour)),
		lastJob("P3", now.Add(-34*24*time.Hour)),
		lastJob("P4", now.Add(-36*24*time.Hour)), // outside window
		lastJob("P7", now.Add(-2*24*time.Hour)),
		lastJob("ghost", now.Add(-time.Hour)),
		{PuckID: "P5", Timestamp: now.Add(-time.Hour)},
	}
	a := Analyze(pucks, logs, testCatalog(t), now)
	if !a.From.Equal(now.Add(-35*24*time.Hour)) || !a.To.Equal(now) {
		t.Fatalf("unexpected window %v - %v", a.From, a.To)
	}
	if len(a.Materials) != 3 {
		t.Fatalf("expected a row per material in use, got %+v", a.Materials)
	}
	// low rows first, then ok, then excess
	a1, a2, b1 := a.Materials[0], a.Materials[1], a.Materials[2]
	if a1.Material.ID != 1 || a1.Retired != 1 || a1.Active != 0 || a1.Recommended != 1 || a1.Shortage != 1 || a1.Status != StatusLow {
		t.Fatalf("unexpected A1 row %+v", a1)
	}
	if a2.Material.ID != 2 || a2.Retired != 3 || a2.WeeklyAverage != 0.6 || a2.Recommended != 3 || a2.Active != 1 || a2.Shortage != 2 || a2.Status != StatusLow {
		t.Fatalf("unexpected A2 row %+v", a2)
	}
	if b1.Material.ID != 3 || b1.Recommended != 0 || b1.Active != 1 || b1.Status != StatusExcess {
		t.Fatalf("unexpected B1 row %+v", b1)
	}
	if len(a.Shortages()) != 2 || a.Count(StatusLow) != 2 || a.Count(StatusExcess) != 1 || a.Count(StatusOK) != 0 {
		t.Fatalf("unexpected summary %+v", a)
	}
}

func TestAnalyzeOmitsIdleMaterials(t *testing.T) {
	pucks := []domain.Puck{
		puck("P1", 1, "A1", "14mm", domain.PuckStatusRetired),
		puck("P2", 2, "A2", "14mm", domain.PuckStatusInMill),
	}
	logs := []domain.LogEntry{lastJob("P1", now.Add(-40*24*time.Hour))}
	a := Analyze(pucks, logs, testCatalog(t), now)
	if len(a.Materials) != 1 || a.Materials[0].Material.ID != 2 {
		t.Fatalf("expected only the stocked A2 row, got %+v", a.Materials)
	}
	if empty := Analyze(nil, nil, testCatalog(t), now); len(empty.Materials) != 0 {
		t.Fatalf("expected no rows without pucks or usage, got %+v", empty.Materials)
	}
}

func TestClassifyThresholds(t *testing.T) {
	cases := []struct {
		active, recommended int
		want                Status
	}{
		{0, 0, StatusOK},
		{6, 10, StatusLow},
		{7, 10, StatusOK},
		{13, 10, StatusOK},
		{14, 10, StatusExcess},
	}
	for _, tc := range cases {
		if got := classify(tc.active, tc.recommended); got != tc.want {
			t.Fatalf("classify(%d, %d) = %s, want %s", tc.active, tc.recommended, got, tc.want)
		}
	}
}

func TestRetiredOrderQueueGroupsByShadeAndThickness(t *testing.T) {
	groups := RetiredOrderQueue([]domain.Puck{
		puck("P3", 2, "A2", "14mm", domain.PuckStatusRetired),
		puck("P1", 2, "A2", "14mm", domain.PuckStatusRetired),
		puck("P2", 1, "A1", "20mm", domain.PuckStatusRetired),
		puck("P4", 1, "A1", "14mm", domain.PuckStatusInMill),
	})
	if len(groups) != 2 {
		t.Fatalf("unexpected groups %+v", groups)
	}
	if groups[0].Shade != "A1" || groups[0].Thickness != "20mm" || len(groups[0].PuckIDs) != 1 {
		t.Fatalf("unexpected first group %+v", groups[0])
	}
	if groups[1].Shade != "A2" || groups[1].PuckIDs[0] != "P1" || groups[1].PuckIDs[1] != "P3" {
		t.Fatalf("unexpected second group %+v", groups[1])
	}
}

func TestWriteWorkbookProducesBothSheets(t *testing.T) {
	logs := []domain.LogEntry{{
		LogID: "log-1", Kind: domain.LogKindAssignment, Timestamp: now, PuckID: "PUCK-000001",
		PreviousLocation: "R1-A-A-1", NewLocation: "DWX-1/A", CaseIDs: []string{"C1", "C2"}, TechnicianName: "sam",
	}}
	a := Analyze([]domain.Puck{puck("PUCK-000002", 1, "A1", "14mm", domain.PuckStatusInStorage)}, logs, testCatalog(t), now)

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, logs, a); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(activitySheet)
	if err != nil {
		t.Fatalf("activity rows: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "Log ID" || rows[1][3] != "PUCK-000001" || rows[1][6] != "C1, C2" || rows[1][8] != "no" {
		t.Fatalf("unexpected activity rows %v", rows)
	}
	if rows[1][2] != "2024-05-14 12:00:00" {
		t.Fatalf("unexpected timestamp %q", rows[1][2])
	}

	rows, err = f.GetRows(replenishmentSheet)
	if err != nil {
		t.Fatalf("replenishment rows: %v", err)
	}
	if len(rows) != 2 || rows[0][8] != "Status" || rows[1][1] != "A1" || rows[1][8] != "excess" {
		t.Fatalf("unexpected replenishment rows %v", rows)
	}
}
