package domain

import "context"

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView

	ListPucksByStatus(status PuckStatus) []Puck
	ListPucksByShadeAndThickness(shade, thickness string) []Puck
	FindStorageSlot(key string) (StorageSlot, bool)
	FindMill(id string) (Mill, bool)
	FindCase(id string) (Case, bool)
	ListCasesByShade(shade string) []Case
	ValidateSelection(caseIDs []string) (string, error)
	ListLogEntries() []LogEntry
	FindLogEntry(id string) (LogEntry, bool)
	SearchLog(query string) []LogEntry
	FindFirstAvailableSlot() (StorageSlot, bool)
	FindAvailableSlots(n int) []StorageSlot
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Slot methods never touch puck records
// and puck methods never touch slot occupancy; callers pair them.
type Transaction interface {
	TransactionView

	Snapshot() TransactionView
	Changes() []Change

	CreateStorageSlot(slot StorageSlot) (StorageSlot, error)
	CreateMill(mill Mill) (Mill, error)
	OccupySlot(key, puckID string) error
	ClearSlot(key string) error

	CreatePuck(p Puck) (Puck, error)
	CreatePuckInStorage(spec MaterialSpec, location string) (Puck, error)
	MovePuck(id, location string) (Puck, error)
	SetPuckStatus(id string, status PuckStatus) (Puck, error)
	SetPuckScreenshot(id, url string) (Puck, error)
	MovePuckToInventory(id string) (Puck, error)
	MovePuckFromInventoryToStorage(id, location string) (Puck, error)

	AddCases(cases []Case) error
	RemoveCases(ids []string) error
	ConsumeCaseUnits(caseID string, milled []string) (Case, bool)

	AppendLogEntry(entry LogEntry) (LogEntry, error)
	AppendRelocationEntry(originalLogID, puckID, previousLocation, newLocation string, caseIDs []string, notes string) (LogEntry, error)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState() Snapshot
	ImportState(snapshot Snapshot) error
	Catalog() *Catalog
}
