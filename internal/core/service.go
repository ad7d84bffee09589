package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"millroom/internal/blob"
	"millroom/internal/infra/persistence/memory"
	"millroom/pkg/domain"
)

// Service exposes the transactional lab operations over a persistent store.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	blobs   blob.Store
	catalog *domain.Catalog

	selection *Selection

	mu          sync.Mutex
	subscribers map[int]func([]Change)
	nextSub     int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder records per-operation outcomes.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer wraps every operation in a span.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithBlobStore enables screenshot uploads.
func WithBlobStore(store blob.Store) Option {
	return func(s *Service) {
		s.blobs = store
	}
}

// WithCatalog sets the material catalog of in-memory services.
func WithCatalog(catalog *domain.Catalog) Option {
	return func(s *Service) {
		if catalog != nil {
			s.catalog = catalog
		}
	}
}

func newService(opts []Option) *Service {
	s := &Service{
		clock:       ClockFunc(nil),
		logger:      noopLogger{},
		metrics:     noopMetricsRecorder{},
		tracer:      noopTracer{},
		selection:   NewSelection(),
		subscribers: make(map[int]func([]Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := newService(opts)
	s.store = store
	s.catalog = store.Catalog()
	return s
}

// NewInMemoryService creates a service and in-memory store. A nil engine
// selects the default invariant rules.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	s := newService(opts)
	storeOpts := []memory.Option{memory.WithNowFunc(s.clock.Now)}
	if s.catalog != nil {
		storeOpts = append(storeOpts, memory.WithCatalog(s.catalog))
	}
	s.store = memory.NewStore(engine, storeOpts...)
	s.catalog = s.store.Catalog()
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Catalog returns the material catalog in use.
func (s *Service) Catalog() *domain.Catalog { return s.catalog }

// Selection returns the shared case-shade selection.
func (s *Service) Selection() *Selection { return s.selection }

// Subscribe registers fn to receive the changes of every committed
// operation. Notification is synchronous, after commit. The returned function
// removes the subscription.
func (s *Service) Subscribe(fn func([]Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Service) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	fns := make([]func([]Change), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subscribers[id])
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(changes)
	}
}

// run executes fn in a store transaction with tracing, metrics and logging,
// then notifies subscribers of the committed changes.
func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error) (Result, error) {
	res, changes, err := s.commit(ctx, op, fn)
	if err != nil {
		return res, err
	}
	s.notify(changes)
	return res, nil
}

// commit is run without the notification. Callers holding their own locks
// notify once those are released.
func (s *Service) commit(ctx context.Context, op string, fn func(Transaction) error) (Result, []Change, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	var changes []Change
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if err := fn(tx); err != nil {
			return err
		}
		changes = tx.Changes()
		return nil
	})
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	for _, v := range res.Violations {
		if v.Severity != SeverityBlock {
			s.logger.Warn("rule violation", "op", op, "rule", v.Rule, "entity", v.EntityID, "message", v.Message)
		}
	}
	if err != nil {
		s.logger.Error("operation failed", "op", op, "error", err)
		return res, nil, err
	}
	s.logger.Debug("operation committed", "op", op, "changes", len(changes))
	return res, changes, nil
}

func (s *Service) view(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// ImportLayout replaces the registries with snapshot, typically a fixture
// layout when initialising a lab.
func (s *Service) ImportLayout(ctx context.Context, snapshot domain.Snapshot) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "import_layout")
	err := s.store.ImportState(snapshot)
	span.End(err)
	s.metrics.Observe(ctx, "import_layout", err == nil, time.Since(start))
	if err != nil {
		s.logger.Error("import layout failed", "error", err)
		return err
	}
	s.logger.Info("layout imported", "pucks", len(snapshot.Pucks), "slots", len(snapshot.StorageSlots), "mills", len(snapshot.Mills))
	return nil
}

// IntakePuck decodes a scanned label and stores the new puck in the first
// vacant storage slot. A non-empty expectedShade must match the scanned material.
func (s *Service) IntakePuck(ctx context.Context, scan, expectedShade string) (Puck, error) {
	spec, err := domain.ParseScan(scan, s.catalog)
	if err != nil {
		s.logger.Warn("scan rejected", "error", err)
		return Puck{}, err
	}
	if expectedShade != "" && !strings.EqualFold(expectedShade, spec.Shade) {
		return Puck{}, domain.InvalidSelectionError{Reason: fmt.Sprintf("scanned shade %s does not match expected %s", spec.Shade, expectedShade)}
	}
	return s.StockPuck(ctx, spec, "")
}

// StockPuck creates a puck in storage at location, or at the first vacant
// slot when location is empty, and records an intake log entry.
func (s *Service) StockPuck(ctx context.Context, spec domain.MaterialSpec, location string) (Puck, error) {
	var created Puck
	_, err := s.run(ctx, "stock_puck", func(tx Transaction) error {
		if location == "" {
			slot, ok := tx.FindFirstAvailableSlot()
			if !ok {
				return domain.NoVacantSlotError{Needed: 1}
			}
			location = slot.Key()
		}
		var err error
		if created, err = tx.CreatePuckInStorage(spec, location); err != nil {
			return err
		}
		if err := tx.OccupySlot(location, created.PuckID); err != nil {
			return err
		}
		_, err = tx.AppendLogEntry(LogEntry{
			Kind:        domain.LogKindIntake,
			Timestamp:   s.clock.Now(),
			PuckID:      created.PuckID,
			NewLocation: location,
			Notes:       fmt.Sprintf("Scanned %s %s lot %d into storage", created.Shade, created.Thickness, created.LotNumber),
		})
		return err
	})
	if err != nil {
		return Puck{}, err
	}
	s.logger.Info("puck stocked", "puck", created.PuckID, "location", location)
	return created, nil
}

// PullFromInventory moves an inventory puck into the first vacant storage slot.
func (s *Service) PullFromInventory(ctx context.Context, puckID string) (Puck, error) {
	var moved Puck
	_, err := s.run(ctx, "pull_from_inventory", func(tx Transaction) error {
		slot, ok := tx.FindFirstAvailableSlot()
		if !ok {
			return domain.NoVacantSlotError{Needed: 1}
		}
		var err error
		if moved, err = tx.MovePuckFromInventoryToStorage(puckID, slot.Key()); err != nil {
			return err
		}
		if err := tx.OccupySlot(slot.Key(), puckID); err != nil {
			return err
		}
		_, err = tx.AppendLogEntry(LogEntry{
			Kind:             domain.LogKindInventoryPull,
			Timestamp:        s.clock.Now(),
			PuckID:           puckID,
			PreviousLocation: domain.InventoryLocation,
			NewLocation:      slot.Key(),
		})
		return err
	})
	if err != nil {
		return Puck{}, err
	}
	return moved, nil
}

// ReturnToInventory takes a storage or mill puck out of its slot and back to
// inventory.
func (s *Service) ReturnToInventory(ctx context.Context, puckID string) (Puck, error) {
	var moved Puck
	_, err := s.run(ctx, "return_to_inventory", func(tx Transaction) error {
		current, ok := tx.FindPuck(puckID)
		if !ok {
			return domain.NotFoundError{Entity: EntityPuck, ID: puckID}
		}
		var err error
		if moved, err = tx.MovePuckToInventory(puckID); err != nil {
			return err
		}
		if k := domain.KindOf(current.CurrentLocation); k == domain.LocationStorage || k == domain.LocationMill {
			if err := tx.ClearSlot(current.CurrentLocation); err != nil {
				return err
			}
		}
		_, err = tx.AppendLogEntry(LogEntry{
			Kind:             domain.LogKindInventoryReturn,
			Timestamp:        s.clock.Now(),
			PuckID:           puckID,
			PreviousLocation: current.CurrentLocation,
			NewLocation:      domain.InventoryLocation,
		})
		return err
	})
	if err != nil {
		return Puck{}, err
	}
	return moved, nil
}

// AddCases appends cases to the queue.
func (s *Service) AddCases(ctx context.Context, cases []Case) error {
	_, err := s.run(ctx, "add_cases", func(tx Transaction) error {
		return tx.AddCases(cases)
	})
	return err
}

// RemoveCases drops cases from the queue.
func (s *Service) RemoveCases(ctx context.Context, ids []string) error {
	_, err := s.run(ctx, "remove_cases", func(tx Transaction) error {
		return tx.RemoveCases(ids)
	})
	return err
}

// Pucks lists every puck ordered by id.
func (s *Service) Pucks(ctx context.Context) ([]Puck, error) {
	var out []Puck
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListPucks()
		return nil
	})
	return out, err
}

// PucksByStatus lists pucks in the given status.
func (s *Service) PucksByStatus(ctx context.Context, status domain.PuckStatus) ([]Puck, error) {
	var out []Puck
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListPucksByStatus(status)
		return nil
	})
	return out, err
}

// FindPuck returns the puck with id.
func (s *Service) FindPuck(ctx context.Context, id string) (Puck, error) {
	var out Puck
	err := s.view(ctx, func(v TransactionView) error {
		p, ok := v.FindPuck(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityPuck, ID: id}
		}
		out = p
		return nil
	})
	return out, err
}

// StorageSlots lists storage slots in scan order.
func (s *Service) StorageSlots(ctx context.Context) ([]StorageSlot, error) {
	var out []StorageSlot
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListStorageSlots()
		return nil
	})
	return out, err
}

// Mills lists mills ordered by id.
func (s *Service) Mills(ctx context.Context) ([]Mill, error) {
	var out []Mill
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListMills()
		return nil
	})
	return out, err
}

// Cases lists the queue in order.
func (s *Service) Cases(ctx context.Context) ([]Case, error) {
	var out []Case
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListCases()
		return nil
	})
	return out, err
}

// CasesByShade lists queued cases sharing shade.
func (s *Service) CasesByShade(ctx context.Context, shade string) ([]Case, error) {
	var out []Case
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListCasesByShade(shade)
		return nil
	})
	return out, err
}

// SelectedCases lists the cases matching the current selection shade.
func (s *Service) SelectedCases(ctx context.Context) ([]Case, error) {
	shade := s.selection.Shade()
	if shade == "" {
		return nil, nil
	}
	return s.CasesByShade(ctx, shade)
}

// Logs returns the activity log in append order.
func (s *Service) Logs(ctx context.Context) ([]LogEntry, error) {
	var out []LogEntry
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListLogEntries()
		return nil
	})
	return out, err
}

// SearchLog returns matching log entries, newest first.
func (s *Service) SearchLog(ctx context.Context, query string) ([]LogEntry, error) {
	var out []LogEntry
	err := s.view(ctx, func(v TransactionView) error {
		out = v.SearchLog(query)
		return nil
	})
	return out, err
}

// ReassignableLogs returns the entries that BeginReassignment would accept at now.
func (s *Service) ReassignableLogs(ctx context.Context, now time.Time) ([]LogEntry, error) {
	logs, err := s.Logs(ctx)
	if err != nil {
		return nil, err
	}
	var out []LogEntry
	for _, e := range logs {
		if domain.IsReassignable(e, now) {
			out = append(out, e)
		}
	}
	return out, nil
}
