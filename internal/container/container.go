package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/rfq-workflow/internal/application/dispatcher"
	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/application/service"
	"github.com/garyjia/rfq-workflow/internal/application/workflow"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/worker"
)

// Container owns the RFQ service graph from the SQLite handle up to the
// retry workers.
type Container struct {
	config *Config
	logger *zap.Logger

	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle
	catalog      *domainwf.Catalog
	notifier     port.Notifier
	fileStorage  port.FileStorage
	dispatcher   dispatcher.Dispatcher
	workflow     workflow.WorkflowEngine
	services     *ServiceBundle
	workers      *worker.WorkerManager

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	RFQ          port.RFQRepository
	SKU          port.SKURepository
	Assignment   port.AssignmentRepository
	Audit        port.AuditRepository
	Notification port.NotificationRepository
	Template     port.TemplateRepository
	User         port.UserRepository
	Plant        port.PlantRepository
	State        port.StateRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	RFQ          service.RFQService
	Directory    *service.DirectoryService
	Costing      *service.CostingService
	Notification service.NotificationService
	Quotation    *service.QuotationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg. Nothing is opened until Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("config is required")
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// startStep is one stage of container initialization.
type startStep struct {
	name string
	run  func() error
}

// Start brings components up in dependency order: database and catalog,
// Lark, storage, services, dispatcher with the engine, then workers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed.Load():
		return fmt.Errorf("container has been closed")
	case c.ready.Load():
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting RFQ container")

	steps := []startStep{
		{"database", c.initDatabase},
		{"external clients", c.initExternalClients},
		{"storage", c.initStorage},
		{"services", c.initServices},
		{"dispatcher and workflow", c.initDispatcherAndWorkflow},
		{"workers", c.initWorkers},
	}
	for i, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component ready",
			zap.String("component", step.name),
			zap.Int("step", i+1),
			zap.Int("of", len(steps)))
	}

	c.ready.Store(true)
	c.logger.Info("RFQ container started", zap.Int("states", len(c.catalog.States())))
	return nil
}

// Close tears components down in reverse start order. The dispatcher is
// drained before the database closes so an in-flight quotation export can
// still read its RFQ.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)
	c.logger.Info("Closing RFQ container")

	if c.cancel != nil {
		c.cancel()
	}

	type closer struct {
		name  string
		close func() error
	}
	var closers []closer
	if c.workers != nil {
		closers = append(closers, closer{"workers", c.workers.StopAll})
	}
	if c.dispatcher != nil {
		closers = append(closers, closer{"dispatcher", c.dispatcher.Close})
	}
	if c.sqlDB != nil {
		closers = append(closers, closer{"database", c.sqlDB.Close})
	}

	var failed int
	for _, cl := range closers {
		if err := cl.close(); err != nil {
			failed++
			c.logger.Error("Component close failed", zap.String("component", cl.name), zap.Error(err))
			continue
		}
		c.logger.Info("Component closed", zap.String("component", cl.name))
	}

	if failed > 0 {
		return fmt.Errorf("container closed with %d errors", failed)
	}
	c.logger.Info("RFQ container closed")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports each component; Overall is false if any is unhealthy.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}
	report := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.sqlDB == nil:
		report("database", false, "not initialized")
	default:
		if err := c.sqlDB.Ping(); err != nil {
			report("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			report("database", true, "")
		}
	}

	if c.workers == nil {
		report("workers", false, "not initialized")
	} else {
		report("workers", c.workers.IsRunning(), fmt.Sprintf("%d registered", c.workers.GetWorkerCount()))
	}

	report("dispatcher", c.dispatcher != nil, notInitialized(c.dispatcher != nil))
	report("workflow", c.workflow != nil, notInitialized(c.workflow != nil))
	report("catalog", c.catalog != nil, notInitialized(c.catalog != nil))

	return status
}

func notInitialized(ok bool) string {
	if ok {
		return ""
	}
	return "not initialized"
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.sqlDB, c.db = bundle.SqlDB, bundle.TransactionMgr

	if c.repositories, err = ProvideRepositories(c.sqlDB, c.logger); err == nil {
		c.catalog, err = ProvideCatalog(c.ctx, c.repositories.State)
	}
	if err != nil {
		_ = c.sqlDB.Close()
		c.sqlDB = nil
	}
	return err
}

func (c *Container) initExternalClients() (err error) {
	c.notifier, err = ProvideNotifier(&c.config.Lark, c.logger)
	return err
}

func (c *Container) initStorage() (err error) {
	c.fileStorage, err = ProvideStorage(&c.config.Export, c.logger)
	return err
}

func (c *Container) initServices() (err error) {
	c.services, err = ProvideServices(&ServiceDeps{
		Repos:        c.repositories,
		TxManager:    c.db,
		Notifier:     c.notifier,
		Storage:      c.fileStorage,
		Catalog:      c.catalog,
		Notification: &c.config.Notification,
		Export:       &c.config.Export,
		Logger:       c.logger,
	})
	return err
}

// initDispatcherAndWorkflow builds the engine on top of a fresh dispatcher
// and subscribes the event_log and quotation_exporter handlers.
func (c *Container) initDispatcherAndWorkflow() (err error) {
	if c.dispatcher, err = ProvideDispatcher(c.logger); err != nil {
		return err
	}
	c.workflow, err = ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		Services:   c.services,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Catalog:    c.catalog,
		Workflow:   &c.config.Workflow,
		Export:     &c.config.Export,
		Logger:     c.logger,
	})
	return err
}

func (c *Container) initWorkers() (err error) {
	c.workers, err = ProvideWorkers(&WorkerDeps{
		Services:  c.services,
		WorkerCfg: &c.config.Worker,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	return nil
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Catalog returns the loaded states lookup table.
func (c *Container) Catalog() *domainwf.Catalog {
	return c.catalog
}

// Notifier returns the notification transport.
func (c *Container) Notifier() port.Notifier {
	return c.notifier
}

// FileStorage returns the quotation file storage.
func (c *Container) FileStorage() port.FileStorage {
	return c.fileStorage
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the Info/Error logger interfaces
// of the application layer.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// Logger is the key-value logger the application and HTTP layers take
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NewLoggerAdapter wraps a zap logger for the application and HTTP layers
func NewLoggerAdapter(logger *zap.Logger) Logger {
	return &zapLoggerAdapter{logger: logger}
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
