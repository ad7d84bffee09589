package core

import (
	"context"
	"fmt"

	"millroom/pkg/domain"
)

// NewCaseUnitsRule returns the rule keeping units, tooth numbers and STL
// files of every queued case in step.
func NewCaseUnitsRule() domain.Rule {
	return caseUnitsRule{}
}

type caseUnitsRule struct{}

func (caseUnitsRule) Name() string { return "case_units" }

func (r caseUnitsRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range view.ListCases() {
		if c.Consistent() && c.Units > 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("case %s has %d units, %d teeth and %d files", c.CaseID, c.Units, len(c.ToothNumbers), len(c.StlFiles)),
			Entity:   domain.EntityCase,
			EntityID: c.CaseID,
		})
	}
	return res, nil
}
