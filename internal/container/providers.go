package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/formdesk/flowengine/internal/application/dispatcher"
	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/application/service"
	"github.com/formdesk/flowengine/internal/config"
	"github.com/formdesk/flowengine/internal/engine/methodology"
	"github.com/formdesk/flowengine/internal/engine/trigger"
	"github.com/formdesk/flowengine/internal/engine/workflow"
	"github.com/formdesk/flowengine/internal/infrastructure/directory"
	"github.com/formdesk/flowengine/internal/infrastructure/notify"
	"github.com/formdesk/flowengine/internal/infrastructure/persistence/repository"
	"github.com/formdesk/flowengine/internal/infrastructure/persistence/sqlite"
	"github.com/formdesk/flowengine/internal/infrastructure/queue"
	"github.com/formdesk/flowengine/internal/infrastructure/webhook"
	"github.com/formdesk/flowengine/internal/report"
	"github.com/formdesk/flowengine/pkg/database"
)

// ProvideDatabase opens the SQLite database and runs pending migrations
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.MigrationsDir != "" {
		migrator := database.NewMigrator(db, logger)
		if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return db, nil
}

// ProvideRepositories creates all repositories from a database connection
func ProvideRepositories(db *database.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Template: repository.NewTemplateRepository(db.DB, logger),
		Instance: repository.NewInstanceRepository(db.DB, logger),
		History:  repository.NewHistoryRepository(db.DB, logger),
	}
}

// ProvideDirectory builds the configured static user directory
func ProvideDirectory(cfg *config.DirectoryConfig) port.UserDirectory {
	return directory.NewStaticDirectory(cfg.Users)
}

// ProvideDispatcher creates the in-process event bus
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	)
}

// TriggerEngineDeps holds dependencies for the trigger engine
type TriggerEngineDeps struct {
	Directory port.UserDirectory
	TaskQueue port.TaskQueue
	Logger    *zap.Logger
}

// ProvideTriggerEngine creates the trigger dispatcher. Its side effects go
// through the task queue so trigger evaluation never blocks on a mail
// server or a slow webhook endpoint.
func ProvideTriggerEngine(deps *TriggerEngineDeps) *trigger.Dispatcher {
	return trigger.NewDispatcher(
		deps.Directory,
		notify.NewQueueNotifier(deps.TaskQueue, deps.Logger),
		webhook.NewQueueSender(deps.TaskQueue, deps.Logger),
		&zapLoggerAdapter{logger: deps.Logger},
	)
}

// ServiceDeps holds dependencies for creating the application services
type ServiceDeps struct {
	Config         *config.Config
	Repos          *RepositoryBundle
	TxManager      *sqlite.DB
	Bus            dispatcher.Dispatcher
	WorkflowEngine *workflow.Engine
	Methodologies  *methodology.Registry
	TriggerEngine  *trigger.Dispatcher
	Directory      port.UserDirectory
	TaskQueue      port.TaskQueue
	Logger         *zap.Logger
}

// ProvideServices creates all application services
func ProvideServices(deps *ServiceDeps) *ServiceBundle {
	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	return &ServiceBundle{
		Template: service.NewTemplateService(
			deps.Repos.Template,
			deps.Methodologies,
			serviceLogger,
		),
		Form: service.NewFormService(
			deps.Repos.Template,
			deps.Repos.Instance,
			deps.Repos.History,
			deps.TxManager,
			deps.WorkflowEngine,
			deps.Bus,
			serviceLogger,
		),
		Trigger: service.NewTriggerService(
			deps.Repos.Template,
			deps.Repos.Instance,
			deps.TxManager,
			deps.TriggerEngine,
			serviceLogger,
		),
		Escalation: service.NewEscalationService(
			deps.Repos.Template,
			deps.Repos.Instance,
			deps.Directory,
			notify.NewQueueNotifier(deps.TaskQueue, deps.Logger),
			deps.WorkflowEngine,
			deps.Config.Escalation.ScanLimit,
			serviceLogger,
		),
	}
}

// TaskRunnerDeps holds dependencies for the background task runner
type TaskRunnerDeps struct {
	Config    *config.Config
	TaskQueue *queue.SQLiteQueue
	Exporter  *report.Exporter
	Logger    *zap.Logger
}

// ProvideTaskRunner creates the queue runner with a handler per task kind
func ProvideTaskRunner(deps *TaskRunnerDeps) *queue.Runner {
	cfg := deps.Config
	runner := queue.NewRunner(deps.TaskQueue, cfg.Queue.PollInterval, cfg.Queue.BatchSize, deps.Logger)

	// Mail delivery degrades to log-only when no SMTP host is configured.
	var delivery port.Notifier
	if cfg.SMTP.Host != "" {
		delivery = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, deps.Logger)
	} else {
		delivery = notify.NewLogNotifier(deps.Logger)
	}
	runner.Register(port.TaskNotifyEmail, notify.TaskHandler(delivery))

	client := webhook.NewClient(cfg.Webhook.Timeout, cfg.Webhook.SigningSecret, deps.Logger)
	runner.Register(port.TaskWebhookDelivery, webhook.TaskHandler(client))

	runner.Register(port.TaskReportExport, report.TaskHandler(deps.Exporter))

	return runner
}
