package container

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/rfq-workflow/internal/application/dispatcher"
	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/application/service"
	"github.com/garyjia/rfq-workflow/internal/application/workflow"
	"github.com/garyjia/rfq-workflow/internal/domain/event"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/export"
	infraLark "github.com/garyjia/rfq-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/storage"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/worker"
	"github.com/garyjia/rfq-workflow/migrations"
	"github.com/garyjia/rfq-workflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the SQLite database and applies the embedded
// migrations. Returns DatabaseBundle containing sql.DB and TransactionManager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
// Returns RepositoryBundle containing all repository implementations.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		RFQ:          repository.NewRFQRepository(sqlDB, logger),
		SKU:          repository.NewSKURepository(sqlDB, logger),
		Assignment:   repository.NewAssignmentRepository(sqlDB, logger),
		Audit:        repository.NewAuditRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
		Template:     repository.NewTemplateRepository(sqlDB, logger),
		User:         repository.NewUserRepository(sqlDB, logger),
		Plant:        repository.NewPlantRepository(sqlDB, logger),
		State:        repository.NewStateRepository(sqlDB, logger),
	}, nil
}

// ProvideCatalog loads the states lookup table and checks it covers every
// state the transition table uses.
func ProvideCatalog(ctx context.Context, states port.StateRepository) (*domainwf.Catalog, error) {
	if states == nil {
		return nil, fmt.Errorf("state repository is required")
	}

	defs, err := states.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load states: %w", err)
	}

	rows := make([]domainwf.StateInfo, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, domainwf.StateInfo{
			ID:       domainwf.State(d.ID),
			Name:     d.Name,
			Terminal: d.Terminal,
		})
	}
	return domainwf.NewCatalog(rows)
}

// ProvideNotifier creates the Lark messenger. With Lark disabled the
// messenger only logs what it would have sent.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) (port.Notifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if !cfg.Enabled {
		logger.Info("Lark delivery disabled, notifications will be logged only")
		return infraLark.NewMessenger(nil, logger), nil
	}

	client := infraLark.NewClient(infraLark.Config{
		AppID:          cfg.AppID,
		AppSecret:      cfg.AppSecret,
		BaseURL:        cfg.BaseURL,
		RequestTimeout: cfg.APITimeout,
	}, logger)
	return infraLark.NewMessenger(client, logger), nil
}

// ProvideStorage creates the file storage for rendered quotations.
func ProvideStorage(cfg *ExportConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("export config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return storage.NewLocalFileStorage(cfg.OutputDir, logger), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos        *RepositoryBundle
	TxManager    port.TransactionManager
	Notifier     port.Notifier
	Storage      port.FileStorage
	Catalog      *domainwf.Catalog
	Notification *NotificationConfig
	Export       *ExportConfig
	Logger       *zap.Logger
}

// ProvideServices creates all application services.
// Returns ServiceBundle containing all service implementations.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("file storage is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("state catalog is required")
	}
	if deps.Notification == nil || deps.Export == nil {
		return nil, fmt.Errorf("notification and export config are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create logger adapter for services
	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	costing := service.NewCostingService(repos.SKU, serviceLogger)

	return &ServiceBundle{
		Costing: costing,
		Directory: service.NewDirectoryService(
			repos.RFQ,
			repos.Assignment,
			repos.User,
			repos.Plant,
			serviceLogger,
		),
		RFQ: service.NewRFQService(
			repos.RFQ,
			repos.SKU,
			repos.Audit,
			repos.Assignment,
			repos.User,
			costing,
			deps.TxManager,
			deps.Catalog,
			serviceLogger,
		),
		Notification: service.NewNotificationService(
			repos.Notification,
			repos.Template,
			deps.Notifier,
			service.NotificationConfig{
				SendTimeout:       deps.Notification.SendTimeout,
				Concurrency:       deps.Notification.Concurrency,
				MaxAttempts:       deps.Notification.MaxAttempts,
				RetryBatchSize:    deps.Notification.RetryBatchSize,
				PendingStaleAfter: deps.Notification.PendingStaleAfter,
			},
			serviceLogger,
		),
		Quotation: service.NewQuotationService(
			repos.RFQ,
			repos.SKU,
			repos.Audit,
			export.NewQuotationWorkbook(deps.Export.CompanyName, deps.Logger),
			deps.Storage,
			deps.Catalog,
			serviceLogger,
		),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
// Returns dispatcher.Dispatcher implementation.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create dispatcher logger adapter
	dispatcherLogger := &zapLoggerAdapter{logger: logger}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(dispatcherLogger),
	), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	Services   *ServiceBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Catalog    *domainwf.Catalog
	Workflow   *WorkflowConfig
	Export     *ExportConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine and registers event handlers.
// Returns workflow.WorkflowEngine implementation.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Workflow == nil || deps.Export == nil {
		return nil, fmt.Errorf("workflow and export config are required")
	}

	engine := workflow.NewEngine(
		workflow.Repositories{
			RFQs:        deps.Repos.RFQ,
			SKUs:        deps.Repos.SKU,
			Assignments: deps.Repos.Assignment,
			Audit:       deps.Repos.Audit,
		},
		deps.Services.Directory,
		deps.Services.Costing,
		deps.Services.Notification,
		deps.TxManager,
		&zapLoggerAdapter{logger: deps.Logger},
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithCatalog(deps.Catalog),
		workflow.WithConflictRetries(deps.Workflow.ConflictRetries),
		workflow.WithRecalcTimeout(deps.Workflow.RecalcTimeout),
	)

	// Every event gets a structured audit log line
	eventLogger := createEventLogHandler(deps.Logger)
	for _, t := range []event.Type{
		event.TypeRFQTransitioned,
		event.TypeRevisionCreated,
		event.TypeRFQClosed,
		event.TypeNotificationFailed,
	} {
		deps.Dispatcher.SubscribeNamed(t, "event_log", eventLogger)
	}

	if deps.Export.ExportOnClose {
		deps.Dispatcher.SubscribeNamed(event.TypeRFQClosed, "quotation_exporter", deps.Services.Quotation.HandleRFQClosed)
	}

	return engine, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Services  *ServiceBundle
	WorkerCfg *WorkerConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if deps.WorkerCfg == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	retryWorker := worker.NewNotificationRetryWorker(
		worker.RetryWorkerConfig{
			PollInterval: deps.WorkerCfg.RetryPollInterval,
			RunTimeout:   deps.WorkerCfg.RetryRunTimeout,
		},
		deps.Services.Notification,
		deps.Logger,
	)
	manager.Register(retryWorker)

	return manager, nil
}

// createEventLogHandler writes one log line per dispatched event
func createEventLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		if evt == nil {
			return fmt.Errorf("event cannot be nil")
		}
		logger.Info("Workflow event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.Int64("rfq_id", evt.RFQID),
			zap.String("correlation_id", evt.CorrelationID),
			zap.Any("payload", evt.Payload))
		return nil
	}
}
