// Package report derives replenishment recommendations from the mill log and
// exports activity workbooks.
package report

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"millroom/pkg/domain"
)

// Window is the trailing usage period and the stock coverage target.
const (
	WindowWeeks = 5
	window      = WindowWeeks * 7 * 24 * time.Hour
)

// Status classifies active stock against the recommended level.
type Status string

const (
	StatusLow    Status = "low"
	StatusOK     Status = "ok"
	StatusExcess Status = "excess"
)

var statusOrder = map[Status]int{StatusLow: 0, StatusOK: 1, StatusExcess: 2}

// MaterialUsage is the analysis row for one catalog material.
type MaterialUsage struct {
	Material      domain.Material
	Retired       int
	WeeklyAverage float64
	Active        int
	Recommended   int
	Shortage      int
	Status        Status
}

// Analysis is the replenishment analysis for a point in time.
type Analysis struct {
	From      time.Time
	To        time.Time
	Materials []MaterialUsage
}

// Shortages returns the rows whose active stock is below the recommended
// level.
func (a Analysis) Shortages() []MaterialUsage {
	var out []MaterialUsage
	for _, m := range a.Materials {
		if m.Shortage > 0 {
			out = append(out, m)
		}
	}
	return out
}

// Count returns how many materials have the given status.
func (a Analysis) Count(status Status) int {
	n := 0
	for _, m := range a.Materials {
		if m.Status == status {
			n++
		}
	}
	return n
}

// Analyze counts last-job retirements per material in the trailing window
// ending at now and compares them with the pucks still in service. Materials
// with neither usage in the window nor active stock are omitted; rows are
// ordered low, ok, excess and then by material id.
func Analyze(pucks []domain.Puck, logs []domain.LogEntry, catalog *domain.Catalog, now time.Time) Analysis {
	if catalog == nil {
		catalog = domain.StandardMaterials()
	}
	from := now.Add(-window)
	byID := make(map[string]domain.Puck, len(pucks))
	active := map[int]int{}
	for _, p := range pucks {
		byID[p.PuckID] = p
		if !p.Retired() {
			active[p.MaterialID]++
		}
	}
	retired := map[int]int{}
	for _, e := range logs {
		if !e.LastJobTriggered || e.Timestamp.Before(from) || e.Timestamp.After(now) {
			continue
		}
		if p, ok := byID[e.PuckID]; ok {
			retired[p.MaterialID]++
		}
	}

	var rows []MaterialUsage
	for _, m := range catalog.Entries() {
		row := MaterialUsage{Material: m, Retired: retired[m.ID], Active: active[m.ID]}
		if row.Retired == 0 && row.Active == 0 {
			continue
		}
		row.WeeklyAverage = float64(row.Retired) / WindowWeeks
		row.Recommended = int(math.Ceil(row.WeeklyAverage * WindowWeeks))
		row.Shortage = max(row.Recommended-row.Active, 0)
		row.Status = classify(row.Active, row.Recommended)
		rows = append(rows, row)
	}
	slices.SortStableFunc(rows, func(a, b MaterialUsage) int {
		if c := cmp.Compare(statusOrder[a.Status], statusOrder[b.Status]); c != 0 {
			return c
		}
		return cmp.Compare(a.Material.ID, b.Material.ID)
	})
	return Analysis{From: from, To: now, Materials: rows}
}

func classify(active, recommended int) Status {
	switch {
	case float64(active) < float64(recommended)*0.7:
		return StatusLow
	case float64(active) > float64(recommended)*1.3:
		return StatusExcess
	default:
		return StatusOK
	}
}

// OrderGroup is a set of retired pucks sharing shade and thickness.
type OrderGroup struct {
	Shade     string
	Thickness string
	PuckIDs   []string
}

// RetiredOrderQueue groups retired pucks by shade and thickness, sorted by
// shade then thickness.
func RetiredOrderQueue(pucks []domain.Puck) []OrderGroup {
	index := map[string]int{}
	var groups []OrderGroup
	for _, p := range pucks {
		if !p.Retired() {
			continue
		}
		key := strings.ToUpper(p.Shade) + "|" + strings.ToLower(p.Thickness)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, OrderGroup{Shade: p.Shade, Thickness: p.Thickness})
		}
		groups[i].PuckIDs = append(groups[i].PuckIDs, p.PuckID)
	}
	for i := range groups {
		slices.Sort(groups[i].PuckIDs)
	}
	slices.SortFunc(groups, func(a, b OrderGroup) int {
		if c := cmp.Compare(a.Shade, b.Shade); c != 0 {
			return c
		}
		return cmp.Compare(a.Thickness, b.Thickness)
	})
	return groups
}
