package core

import "millroom/pkg/domain"

// NewRulesEngine constructs an engine with no rules registered.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewSlotExclusivityRule())
	engine.Register(NewLocationCoherenceRule())
	engine.Register(NewCaseUnitsRule())
	return engine
}
