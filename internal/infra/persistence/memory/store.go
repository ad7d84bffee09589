// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"millroom/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	pucks   map[string]domain.Puck
	storage map[string]domain.StorageSlot
	mills   map[string]domain.Mill
	cases   []domain.Case
	logs    []domain.LogEntry
}

func newMemoryState() memoryState {
	return memoryState{
		pucks:   make(map[string]domain.Puck),
		storage: make(map[string]domain.StorageSlot),
		mills:   make(map[string]domain.Mill),
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		pucks:   make(map[string]domain.Puck, len(s.pucks)),
		storage: make(map[string]domain.StorageSlot, len(s.storage)),
		mills:   make(map[string]domain.Mill, len(s.mills)),
		cases:   make([]domain.Case, 0, len(s.cases)),
		logs:    make([]domain.LogEntry, 0, len(s.logs)),
	}
	for k, v := range s.pucks {
		out.pucks[k] = domain.ClonePuck(v)
	}
	for k, v := range s.storage {
		out.storage[k] = v
	}
	for k, v := range s.mills {
		out.mills[k] = domain.CloneMill(v)
	}
	for _, c := range s.cases {
		out.cases = append(out.cases, domain.CloneCase(c))
	}
	for _, e := range s.logs {
		out.logs = append(out.logs, domain.CloneLogEntry(e))
	}
	return out
}

// Store provides an in-memory transactional store for the millroom registries.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	engine  *domain.RulesEngine
	catalog *domain.Catalog
	nowFn   func() time.Time
	logID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithCatalog sets the material catalog used to validate pucks.
func WithCatalog(c *domain.Catalog) Option {
	return func(s *Store) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithNowFunc sets the clock used to stamp log entries.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:   newMemoryState(),
		engine:  engine,
		catalog: domain.StandardMaterials(),
		nowFn:   func() time.Time { return time.Now().UTC() },
		logID:   func() string { return "log-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot domain.Snapshot) error {
	state, err := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Catalog returns the material catalog used for validation.
func (s *Store) Catalog() *domain.Catalog {
	return s.catalog
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no blocking rule
// fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	tx.transactionView = transactionView{state: &tx.state}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.transactionView, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

type transaction struct {
	transactionView
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return tx.transactionView
}

// Changes returns the changes recorded so far.
func (tx *transaction) Changes() []domain.Change {
	return slices.Clone(tx.changes)
}

var puckIDPattern = regexp.MustCompile(`^PUCK-(\d+)$`)

func (tx *transaction) nextPuckID() string {
	highest := 0
	for id := range tx.state.pucks {
		m := puckIDPattern.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("PUCK-%06d", highest+1)
}

func snapshotFromMemoryState(state memoryState) domain.Snapshot {
	view := transactionView{state: &state}
	snap := domain.Snapshot{
		Pucks:        view.ListPucks(),
		StorageSlots: view.ListStorageSlots(),
		Mills:        view.ListMills(),
		Cases:        view.ListCases(),
		MillLogs:     view.ListLogEntries(),
	}
	return snap
}

func memoryStateFromSnapshot(s domain.Snapshot) (memoryState, error) {
	state := newMemoryState()
	for _, p := range s.Pucks {
		if _, dup := state.pucks[p.PuckID]; dup {
			return memoryState{}, fmt.Errorf("duplicate puck %q in snapshot", p.PuckID)
		}
		state.pucks[p.PuckID] = domain.ClonePuck(p)
	}
	for _, slot := range s.StorageSlots {
		if _, dup := state.storage[slot.FullLocation]; dup {
			return memoryState{}, fmt.Errorf("duplicate storage slot %q in snapshot", slot.FullLocation)
		}
		state.storage[slot.FullLocation] = slot
	}
	for _, m := range s.Mills {
		if _, dup := state.mills[m.ID]; dup {
			return memoryState{}, fmt.Errorf("duplicate mill %q in snapshot", m.ID)
		}
		state.mills[m.ID] = domain.CloneMill(m)
	}
	seen := make(map[string]struct{}, len(s.Cases))
	for _, c := range s.Cases {
		if _, dup := seen[c.CaseID]; dup {
			return memoryState{}, fmt.Errorf("duplicate case %q in snapshot", c.CaseID)
		}
		seen[c.CaseID] = struct{}{}
		state.cases = append(state.cases, domain.CloneCase(c))
	}
	for _, e := range s.MillLogs {
		state.logs = append(state.logs, domain.CloneLogEntry(e))
	}
	return state, nil
}

// migrateSnapshot fills fields that older dashboard exports leave empty.
func migrateSnapshot(snapshot domain.Snapshot) domain.Snapshot {
	out := domain.Snapshot{
		Cases:        make([]domain.Case, 0, len(snapshot.Cases)),
		Pucks:        make([]domain.Puck, 0, len(snapshot.Pucks)),
		StorageSlots: make([]domain.StorageSlot, 0, len(snapshot.StorageSlots)),
		Mills:        make([]domain.Mill, 0, len(snapshot.Mills)),
		MillLogs:     make([]domain.LogEntry, 0, len(snapshot.MillLogs)),
	}
	for _, p := range snapshot.Pucks {
		if p.Status == "" {
			if status, ok := domain.StatusForLocation(p.CurrentLocation); ok {
				p.Status = status
			}
		}
		out.Pucks = append(out.Pucks, p)
	}
	for _, slot := range snapshot.StorageSlots {
		if slot.FullLocation == "" {
			slot.FullLocation = slot.Key()
		}
		if slot.PuckID == "" {
			slot.Occupied = false
		}
		out.StorageSlots = append(out.StorageSlots, slot)
	}
	for _, m := range snapshot.Mills {
		m = domain.CloneMill(m)
		if len(m.Slots) == 0 {
			m.Slots = domain.NewMill(m.ID, m.Model).Slots
		}
		for i := range m.Slots {
			if m.Slots[i].PuckID == "" {
				m.Slots[i].Occupied = false
			}
		}
		out.Mills = append(out.Mills, m)
	}
	for _, c := range snapshot.Cases {
		c = domain.CloneCase(c)
		if c.Status == "" {
			c.Status = domain.CaseStatusCAMReady
		}
		out.Cases = append(out.Cases, c)
	}
	for _, e := range snapshot.MillLogs {
		e = domain.CloneLogEntry(e)
		if e.Kind == "" {
			e.Kind = domain.LogKindAssignment
			if e.RelocatedFrom != "" {
				e.Kind = domain.LogKindRelocation
			}
		}
		if e.CaseIDs == nil {
			e.CaseIDs = []string{}
		}
		out.MillLogs = append(out.MillLogs, e)
	}
	return out
}

func comparePucks(a, b domain.Puck) int { return cmp.Compare(a.PuckID, b.PuckID) }
