package domain

import "time"

// IsReassignable reports whether entry may be corrected by a reassignment at
// time now: it must be an assignment or relocation that did not retire its
// puck, recorded on the same calendar day as now in now's location.
func IsReassignable(entry LogEntry, now time.Time) bool {
	if entry.LastJobTriggered {
		return false
	}
	if entry.Kind != LogKindAssignment && entry.Kind != LogKindRelocation {
		return false
	}
	if KindOf(entry.NewLocation) != LocationMill {
		return false
	}
	ts := entry.Timestamp.In(now.Location())
	y1, m1, d1 := ts.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
