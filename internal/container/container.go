// Package container wires application dependencies and manages their
// lifecycle: ordered initialization, reverse-order teardown.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/formdesk/flowengine/internal/application/dispatcher"
	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/application/service"
	"github.com/formdesk/flowengine/internal/config"
	"github.com/formdesk/flowengine/internal/engine/methodology"
	"github.com/formdesk/flowengine/internal/engine/trigger"
	"github.com/formdesk/flowengine/internal/engine/workflow"
	"github.com/formdesk/flowengine/internal/infrastructure/persistence/sqlite"
	"github.com/formdesk/flowengine/internal/infrastructure/queue"
	"github.com/formdesk/flowengine/internal/interfaces/http"
	"github.com/formdesk/flowengine/internal/report"
	"github.com/formdesk/flowengine/internal/worker"
	"github.com/formdesk/flowengine/pkg/database"
)

// Container holds all wired components
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle
	taskQueue    *queue.SQLiteQueue
	directory    port.UserDirectory

	// Engines
	workflowEngine *workflow.Engine
	methodologies  *methodology.Registry
	triggerEngine  *trigger.Dispatcher

	// Application
	bus      dispatcher.Dispatcher
	services *ServiceBundle
	exporter *report.Exporter

	// Interfaces and workers
	httpServer *http.Server
	workers    *worker.Manager

	// Lifecycle
	mu     sync.Mutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories
type RepositoryBundle struct {
	Template port.TemplateRepository
	Instance port.InstanceRepository
	History  port.HistoryRepository
}

// ServiceBundle groups all application services
type ServiceBundle struct {
	Template   service.TemplateService
	Form       service.FormService
	Trigger    service.TriggerService
	Escalation service.EscalationService
}

// NewContainer creates a container from configuration. Components are not
// initialized until Start.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order and launches the
// background workers. The HTTP server is wired but not started; run it
// with HTTPServer().Start.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	c.initEngines()
	c.logger.Info("Engines initialized")

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(runCtx); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers started")

	c.initHTTPServer()

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		c.workers.StopAll()
		c.logger.Info("Workers stopped")
	}

	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			c.logger.Error("Failed to close event bus", zap.Error(err))
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// HTTPServer returns the wired HTTP server
func (c *Container) HTTPServer() *http.Server {
	return c.httpServer
}

// Services returns the application service bundle
func (c *Container) Services() *ServiceBundle {
	return c.services
}

func (c *Container) initDatabase() error {
	db, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = db
	c.txManager = sqlite.NewDB(db.DB, c.logger)
	c.repositories = ProvideRepositories(db, c.logger)
	c.taskQueue = queue.NewSQLiteQueue(db.DB, c.logger)
	c.directory = ProvideDirectory(&c.config.Directory)
	return nil
}

func (c *Container) initEngines() {
	engineLogger := &zapLoggerAdapter{logger: c.logger}

	c.workflowEngine = workflow.NewEngine(engineLogger)
	c.methodologies = methodology.NewRegistry(engineLogger)
	c.triggerEngine = ProvideTriggerEngine(&TriggerEngineDeps{
		Directory: c.directory,
		TaskQueue: c.taskQueue,
		Logger:    c.logger,
	})
}

func (c *Container) initServices() error {
	bus := ProvideDispatcher(c.logger)
	c.bus = bus

	c.exporter = report.NewExporter(c.repositories.Template, c.repositories.Instance, c.logger)

	c.services = ProvideServices(&ServiceDeps{
		Config:         c.config,
		Repos:          c.repositories,
		TxManager:      c.txManager,
		Bus:            bus,
		WorkflowEngine: c.workflowEngine,
		Methodologies:  c.methodologies,
		TriggerEngine:  c.triggerEngine,
		Directory:      c.directory,
		TaskQueue:      c.taskQueue,
		Logger:         c.logger,
	})

	// Triggers react to every lifecycle event the workflow raises.
	c.services.Trigger.RegisterAll(bus)
	return nil
}

func (c *Container) initWorkers(ctx context.Context) error {
	c.workers = worker.NewManager(c.logger)

	runner := ProvideTaskRunner(&TaskRunnerDeps{
		Config:    c.config,
		TaskQueue: c.taskQueue,
		Exporter:  c.exporter,
		Logger:    c.logger,
	})
	c.workers.Register(runner)

	monitor := worker.NewEscalationMonitor(
		c.services.Escalation,
		c.config.Escalation.Tenants,
		c.config.Escalation.Schedule,
		c.logger,
	)
	c.workers.Register(monitor)

	return c.workers.StartAll(ctx)
}

func (c *Container) initHTTPServer() {
	c.httpServer = http.NewServer(
		http.ServerConfig{
			Host:         c.config.Server.Host,
			Port:         c.config.Server.Port,
			ReadTimeout:  c.config.Server.ReadTimeout,
			WriteTimeout: c.config.Server.WriteTimeout,
		},
		c.services.Template,
		c.services.Form,
		c.services.Escalation,
		c.methodologies,
		c.exporter,
		&zapLoggerAdapter{logger: c.logger},
	)
}

// zapLoggerAdapter adapts zap.Logger to the keysAndValues Logger interfaces
// used by the engine and service packages
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues)...)
}

func convertToZapFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
