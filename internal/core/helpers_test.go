package core

import (
	"context"
	"testing"
	"time"

	"millroom/internal/blob"
	"millroom/testutil"
)

var labDay = time.Date(2024, time.May, 14, 9, 30, 0, 0, time.UTC)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) has(call string) bool {
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

// newLab returns an in-memory service with the default rules, a fixed clock
// and layout imported.
func newLab(t *testing.T, layout *testutil.Layout, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(stubClock{t: labDay})}, opts...)
	svc := NewInMemoryService(nil, opts...)
	if err := svc.ImportLayout(context.Background(), layout.Snapshot()); err != nil {
		t.Fatalf("import layout: %v", err)
	}
	return svc
}

// walkToSubmit drives a fresh assignment from destination selection to the
// submit step.
func walkToSubmit(t *testing.T, a *Assignment, millID, slot string) {
	t.Helper()
	ctx := context.Background()
	if err := a.SelectDestination(ctx, millID, slot); err != nil {
		t.Fatalf("select destination: %v", err)
	}
	if err := a.Next(); err != nil {
		t.Fatalf("next after destination: %v", err)
	}
	if a.Step() == StepConfirmDisplacement {
		if err := a.ConfirmDisplacement(); err != nil {
			t.Fatalf("confirm displacement: %v", err)
		}
	}
	if err := a.SetScreenshot("file:///shots/mill.png"); err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	if err := a.Next(); err != nil {
		t.Fatalf("next after screenshot: %v", err)
	}
	if err := a.ConfirmGcode(true); err != nil {
		t.Fatalf("confirm gcode: %v", err)
	}
	if err := a.Next(); err != nil {
		t.Fatalf("next after gcode: %v", err)
	}
	if a.Step() != StepSubmit {
		t.Fatalf("expected submit step, got %s", a.Step())
	}
}

func mustPuck(t *testing.T, svc *Service, id string) Puck {
	t.Helper()
	p, err := svc.FindPuck(context.Background(), id)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	return p
}

func slotHolder(t *testing.T, svc *Service, key string) (string, bool) {
	t.Helper()
	var holder string
	var occupied bool
	err := svc.Store().View(context.Background(), func(v TransactionView) error {
		holder, occupied, _ = v.SlotOccupant(key)
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	return holder, occupied
}

func newMemoryBlobs(t *testing.T) blob.Store {
	t.Helper()
	store, err := blob.Open(context.Background(), blob.Config{Driver: blob.DriverMemory})
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	return store
}
