package core

import (
	"context"
	"fmt"

	"millroom/pkg/domain"
)

// NewLocationCoherenceRule returns the rule ensuring a puck's status matches
// its location kind and that slot locations are backed by the slot record.
func NewLocationCoherenceRule() domain.Rule {
	return locationCoherenceRule{}
}

type locationCoherenceRule struct{}

func (locationCoherenceRule) Name() string { return "location_coherence" }

func (r locationCoherenceRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, puck := range view.ListPucks() {
		msg := ""
		status, ok := domain.StatusForLocation(puck.CurrentLocation)
		switch {
		case !ok:
			msg = fmt.Sprintf("puck %s has unrecognised location %q", puck.PuckID, puck.CurrentLocation)
		case status != puck.Status:
			msg = fmt.Sprintf("puck %s is %s but located at %s", puck.PuckID, puck.Status, puck.CurrentLocation)
		case status == domain.PuckStatusInStorage || status == domain.PuckStatusInMill:
			holder, occupied, exists := view.SlotOccupant(puck.CurrentLocation)
			if !exists {
				msg = fmt.Sprintf("puck %s is at unknown slot %s", puck.PuckID, puck.CurrentLocation)
			} else if !occupied || holder != puck.PuckID {
				msg = fmt.Sprintf("puck %s is at %s but the slot records %q", puck.PuckID, puck.CurrentLocation, holder)
			}
		}
		if msg == "" {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityPuck,
			EntityID: puck.PuckID,
		})
	}
	return res, nil
}
