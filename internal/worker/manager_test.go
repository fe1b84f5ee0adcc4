package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/formdesk/flowengine/internal/application/service"
	"github.com/formdesk/flowengine/internal/engine/workflow"
)

type fakeWorker struct {
	name     string
	startErr error
	log      *[]string
	mu       *sync.Mutex
}

func (w *fakeWorker) Name() string { return w.name }

func (w *fakeWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.record("start:" + w.name)
	return nil
}

func (w *fakeWorker) Stop() {
	w.record("stop:" + w.name)
}

func (w *fakeWorker) record(event string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	*w.log = append(*w.log, event)
}

func TestManager_StartsInOrderStopsInReverse(t *testing.T) {
	var log []string
	var mu sync.Mutex

	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "first", log: &log, mu: &mu})
	m.Register(&fakeWorker{name: "second", log: &log, mu: &mu})

	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	m.StopAll()

	want := []string{"start:first", "start:second", "stop:second", "stop:first"}
	if len(log) != len(want) {
		t.Fatalf("event log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestManager_StartAllStopsOnFirstFailure(t *testing.T) {
	var log []string
	var mu sync.Mutex

	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "ok", log: &log, mu: &mu})
	m.Register(&fakeWorker{name: "broken", startErr: fmt.Errorf("port in use"), log: &log, mu: &mu})
	m.Register(&fakeWorker{name: "never", log: &log, mu: &mu})

	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("expected StartAll to surface the worker error")
	}

	for _, e := range log {
		if e == "start:never" {
			t.Error("worker after the failing one was started")
		}
	}
}

type scanRecorder struct {
	mu       sync.Mutex
	scans    []string
	notified int
}

func (r *scanRecorder) Scan(ctx context.Context, tenantID string) ([]workflow.EscalationCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, tenantID)
	if tenantID == "acme" {
		return []workflow.EscalationCandidate{{
			InstanceID:     7,
			Step:           "manager_review",
			TargetRole:     "senior_manager",
			HoursInStep:    72,
			ThresholdHours: 48,
		}}, nil
	}
	return nil, nil
}

func (r *scanRecorder) NotifyCandidates(ctx context.Context, tenantID string, candidates []workflow.EscalationCandidate) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified += len(candidates)
	return len(candidates)
}

var _ service.EscalationService = (*scanRecorder)(nil)

func TestEscalationMonitor_RunOnceScansEveryTenant(t *testing.T) {
	rec := &scanRecorder{}
	m := NewEscalationMonitor(rec, []string{"acme", "globex"}, "*/15 * * * *", zap.NewNop())

	m.RunOnce(context.Background())

	if len(rec.scans) != 2 {
		t.Fatalf("scanned %d tenants, want 2", len(rec.scans))
	}
	// Only acme had a breach, and only breaches get notified.
	if rec.notified != 1 {
		t.Errorf("notified %d candidates, want 1", rec.notified)
	}
}

func TestEscalationMonitor_RejectsBadSchedule(t *testing.T) {
	m := NewEscalationMonitor(&scanRecorder{}, []string{"acme"}, "not a cron spec", zap.NewNop())

	if err := m.Start(context.Background()); err == nil {
		m.Stop()
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestEscalationMonitor_StartStopLifecycle(t *testing.T) {
	m := NewEscalationMonitor(&scanRecorder{}, []string{"acme"}, "*/15 * * * *", zap.NewNop())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}
	m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("restart after Stop failed: %v", err)
	}
	m.Stop()
}
