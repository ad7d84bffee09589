package core

import "millroom/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Puck               = domain.Puck
	StorageSlot        = domain.StorageSlot
	Mill               = domain.Mill
	Case               = domain.Case
	LogEntry           = domain.LogEntry
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityPuck        = domain.EntityPuck
	EntityStorageSlot = domain.EntityStorageSlot
	EntityMill        = domain.EntityMill
	EntityCase        = domain.EntityCase
	EntityLogEntry    = domain.EntityLogEntry
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)
