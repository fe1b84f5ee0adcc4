package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/formdesk/flowengine/internal/application/service"
)

// EscalationMonitor periodically scans every configured tenant for SLA
// breaches and notifies the escalation targets. Scanning is read-only;
// moving an instance to another step still takes an explicit escalate
// action.
type EscalationMonitor struct {
	escalations service.EscalationService
	tenants     []string
	spec        string
	runTimeout  time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	started bool
}

// NewEscalationMonitor creates a monitor that runs on the given cron spec
// (standard 5-field expressions) for the given tenants
func NewEscalationMonitor(
	escalations service.EscalationService,
	tenants []string,
	spec string,
	logger *zap.Logger,
) *EscalationMonitor {
	if spec == "" {
		spec = "*/15 * * * *"
	}
	return &EscalationMonitor{
		escalations: escalations,
		tenants:     tenants,
		spec:        spec,
		runTimeout:  2 * time.Minute,
		logger:      logger,
	}
}

// Name identifies the worker
func (m *EscalationMonitor) Name() string { return "escalation-monitor" }

// Start validates the schedule and begins running scans
func (m *EscalationMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("escalation monitor already started")
	}

	runCtx, cancel := context.WithCancel(ctx)

	c := cron.New()
	if _, err := c.AddFunc(m.spec, func() { m.RunOnce(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid escalation schedule %q: %w", m.spec, err)
	}

	m.cron = c
	m.cancel = cancel
	m.started = true
	c.Start()

	m.logger.Info("Escalation monitor started",
		zap.String("schedule", m.spec),
		zap.Int("tenants", len(m.tenants)))
	return nil
}

// Stop halts the schedule and waits for an in-flight scan to finish
func (m *EscalationMonitor) Stop() {
	m.mu.Lock()
	c := m.cron
	cancel := m.cancel
	m.started = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
}

// RunOnce performs one scan over all tenants. Exposed so the schedule and
// the admin endpoint share the same path.
func (m *EscalationMonitor) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, m.runTimeout)
	defer cancel()

	for _, tenantID := range m.tenants {
		candidates, err := m.escalations.Scan(runCtx, tenantID)
		if err != nil {
			m.logger.Error("Escalation scan failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		delivered := m.escalations.NotifyCandidates(runCtx, tenantID, candidates)
		m.logger.Info("Escalation breaches notified",
			zap.String("tenant_id", tenantID),
			zap.Int("breaches", len(candidates)),
			zap.Int("delivered", delivered))
	}
}

var _ Worker = (*EscalationMonitor)(nil)
