package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/rfq-workflow/internal/application/dispatcher"
	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/application/service"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	"github.com/garyjia/rfq-workflow/internal/domain/event"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
	"github.com/google/uuid"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Repositories groups the stores a transition writes through
type Repositories struct {
	RFQs        port.RFQRepository
	SKUs        port.SKURepository
	Assignments port.AssignmentRepository
	Audit       port.AuditRepository
}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	repos         Repositories
	resolver      port.AssigneeResolver
	calculator    port.CostCalculator
	notifications service.NotificationService
	txManager     port.TransactionManager
	dispatcher    dispatcher.Dispatcher
	logger        Logger

	table   *domainwf.Table
	catalog *domainwf.Catalog

	conflictRetries int
	recalcTimeout   time.Duration
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithConflictRetries sets how many times a transition is re-run with a
// fresh read after losing an optimistic check
func WithConflictRetries(n int) EngineOption {
	return func(e *engineImpl) {
		if n >= 0 {
			e.conflictRetries = n
		}
	}
}

// WithRecalcTimeout bounds each cost recalculation
func WithRecalcTimeout(timeout time.Duration) EngineOption {
	return func(e *engineImpl) {
		if timeout > 0 {
			e.recalcTimeout = timeout
		}
	}
}

// WithCatalog sets the state lookup table loaded from the store
func WithCatalog(c *domainwf.Catalog) EngineOption {
	return func(e *engineImpl) {
		if c != nil {
			e.catalog = c
		}
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	repos Repositories,
	resolver port.AssigneeResolver,
	calculator port.CostCalculator,
	notifications service.NotificationService,
	txManager port.TransactionManager,
	logger Logger,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		repos:         repos,
		resolver:      resolver,
		calculator:    calculator,
		notifications: notifications,
		txManager:     txManager,
		logger:        logger,
		table:         NewRFQTable(),
		catalog:       domainwf.DefaultCatalog(),
		recalcTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Fire executes a transition. Rejections are returned as *TransitionError
// wrapping one of the workflow error sentinels.
func (e *engineImpl) Fire(ctx context.Context, trigger domainwf.Trigger, cmd domainwf.Command) (*TransitionResult, error) {
	if !cmd.ActingRole.IsValid() {
		return nil, &domainwf.TransitionError{
			Trigger: trigger,
			RFQID:   cmd.RFQID,
			Err:     fmt.Errorf("%w: unknown role %q", domainwf.ErrValidation, cmd.ActingRole),
		}
	}

	var (
		t   *transition
		err error
	)
	for attempt := 0; ; attempt++ {
		t, err = e.execute(ctx, trigger, cmd)
		if err == nil || !domainwf.IsRetryable(err) || attempt >= e.conflictRetries {
			break
		}
		e.logger.Info("Retrying transition after conflict",
			"trigger", trigger, "rfq_id", cmd.RFQID, "attempt", attempt+1)
	}

	if err != nil {
		e.logger.Error("Transition rejected",
			"trigger", trigger,
			"rfq_id", cmd.RFQID,
			"user_id", cmd.ActingUserID,
			"role", cmd.ActingRole,
			"error", err,
		)
		return nil, &domainwf.TransitionError{Trigger: trigger, RFQID: cmd.RFQID, Err: err}
	}

	// The row is committed; delivery failures only produce warnings
	e.deliver(ctx, t)
	e.emit(ctx, t)

	e.logger.Info("Transition committed",
		"trigger", trigger,
		"rfq_id", t.result.RFQID,
		"from", t.result.PreviousState,
		"to", t.result.NewState,
		"audit_entry_id", t.result.AuditEntryID,
		"assignments", len(t.result.AssignmentIDs),
		"notifications", len(t.result.Notifications),
	)
	return t.result, nil
}

// execute runs one attempt inside a transaction
func (e *engineImpl) execute(ctx context.Context, trigger domainwf.Trigger, cmd domainwf.Command) (*transition, error) {
	var t *transition

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		rfq, err := e.loadLive(txCtx, cmd.RFQID)
		if err != nil {
			return err
		}

		from := domainwf.State(rfq.StateID)
		if !e.catalog.Contains(from) {
			return fmt.Errorf("%w: rfq %d has state %d", domainwf.ErrUnknownState, rfq.ID, rfq.StateID)
		}

		if rule, ok := e.table.Rule(trigger); ok && !rfq.Active && !rule.Reactivates() {
			return fmt.Errorf("%w: rfq %d is paused", domainwf.ErrInactiveResource, rfq.ID)
		}

		if cmd, err = e.withRequestedPlants(txCtx, trigger, rfq, cmd); err != nil {
			return err
		}

		res, err := e.table.Resolve(txCtx, from, trigger, cmd)
		if err != nil {
			return err
		}

		if res.RequiresAssignment {
			assigned, err := e.repos.Assignments.Exists(txCtx, rfq.ID, cmd.ActingUserID, cmd.ActingRole.String())
			if err != nil {
				return err
			}
			if !assigned {
				return fmt.Errorf("%w: user %d holds no %s assignment on rfq %d",
					domainwf.ErrPreconditionFailed, cmd.ActingUserID, cmd.ActingRole, rfq.ID)
			}
		}

		t = newTransition(txCtx, e, trigger, cmd, rfq, res)
		return t.apply()
	})
	if err != nil {
		return nil, classify(err)
	}

	return t, nil
}

// withRequestedPlants fills an approval's plant selection from the plants
// named at submission when the caller selected none.
func (e *engineImpl) withRequestedPlants(ctx context.Context, trigger domainwf.Trigger, rfq *entity.RFQ, cmd domainwf.Command) (domainwf.Command, error) {
	sel := cmd.Selection()
	if trigger != domainwf.TriggerApprove || len(sel.PlantIDs) > 0 {
		return cmd, nil
	}

	plants, err := e.repos.RFQs.ListPlants(ctx, rfq.ID)
	if err != nil || len(plants) == 0 {
		return cmd, err
	}
	sel.PlantIDs = plants
	cmd.Target = &sel
	return cmd, nil
}

// loadLive returns the RFQ a request acts on. Revisions are read-only
// snapshots, so a revision id resolves to its original.
func (e *engineImpl) loadLive(ctx context.Context, id int64) (*entity.RFQ, error) {
	rfq, err := e.repos.RFQs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rfq == nil {
		return nil, fmt.Errorf("%w: rfq %d", domainwf.ErrNotFound, id)
	}
	if !rfq.IsRevision() {
		return rfq, nil
	}

	if rfq.ParentRFQID == nil {
		return nil, fmt.Errorf("%w: revision %d has no parent", domainwf.ErrUnknownState, rfq.ID)
	}
	parent, err := e.repos.RFQs.GetByID(ctx, *rfq.ParentRFQID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: parent %d of revision %d", domainwf.ErrNotFound, *rfq.ParentRFQID, rfq.ID)
	}
	return parent, nil
}

var taxonomy = []error{
	domainwf.ErrPreconditionFailed,
	domainwf.ErrInactiveResource,
	domainwf.ErrValidation,
	domainwf.ErrConcurrencyConflict,
	domainwf.ErrDependencyFailure,
	domainwf.ErrTimeout,
	domainwf.ErrNotFound,
	domainwf.ErrUnknownState,
}

// classify wraps unexpected store errors as dependency failures
func classify(err error) error {
	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domainwf.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domainwf.ErrDependencyFailure, err)
}

// deliver sends the committed notification records
func (e *engineImpl) deliver(ctx context.Context, t *transition) {
	if len(t.pending) == 0 {
		return
	}

	results := e.notifications.DeliverAll(ctx, t.pending)
	for i, r := range results {
		nr := NotificationResult{
			NotificationID:  r.NotificationID,
			RecipientUserID: r.RecipientUserID,
			Email:           r.Email,
			Template:        t.pending[i].TemplateTag,
			Delivered:       r.Err == nil,
		}
		if r.Err != nil {
			nr.Error = r.Err.Error()
			t.warn("notification to %s failed: %v", r.Email, r.Err)
		}
		t.result.Notifications = append(t.result.Notifications, nr)
	}
}

// emit publishes the committed transition to subscribers
func (e *engineImpl) emit(ctx context.Context, t *transition) {
	if e.dispatcher == nil {
		return
	}

	r := t.result
	correlationID := uuid.NewString()

	e.dispatcher.DispatchAsync(ctx, event.NewEventWithCorrelation(event.TypeRFQTransitioned, r.RFQID,
		map[string]interface{}{
			"trigger":        r.Trigger.String(),
			"previous_state": r.PreviousState.ID(),
			"new_state":      r.NewState.ID(),
			"active":         r.Active,
			"actor_user_id":  t.cmd.ActingUserID,
			"actor_role":     t.cmd.ActingRole.String(),
			"audit_entry_id": r.AuditEntryID,
		}, correlationID))

	if r.RevisionID != 0 {
		e.dispatcher.DispatchAsync(ctx, event.NewEventWithCorrelation(event.TypeRevisionCreated, r.RFQID,
			map[string]interface{}{
				"revision_id": r.RevisionID,
				"version_no":  r.RevisionVersionNo,
			}, correlationID))
	}

	if r.NewState == domainwf.StateClosed && r.PreviousState != domainwf.StateClosed {
		e.dispatcher.DispatchAsync(ctx, event.NewEventWithCorrelation(event.TypeRFQClosed, r.RFQID, nil, correlationID))
	}

	for _, n := range r.Notifications {
		if n.Delivered {
			continue
		}
		e.dispatcher.DispatchAsync(ctx, event.NewEventWithCorrelation(event.TypeNotificationFailed, r.RFQID,
			map[string]interface{}{
				"notification_id": n.NotificationID,
				"email":           n.Email,
				"template":        n.Template,
				"error":           n.Error,
			}, correlationID))
	}
}

// PermittedTriggers returns what the role may fire on the RFQ now
func (e *engineImpl) PermittedTriggers(ctx context.Context, rfqID int64, role domainwf.Role) ([]domainwf.Trigger, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", domainwf.ErrValidation, role)
	}

	rfq, err := e.loadLive(ctx, rfqID)
	if err != nil {
		return nil, classify(err)
	}

	var permitted []domainwf.Trigger
	for _, trigger := range e.table.Permitted(domainwf.State(rfq.StateID), role) {
		rule, _ := e.table.Rule(trigger)
		// Paused RFQs only accept reactivation; active ones have nothing to resume
		if rule.Reactivates() == rfq.Active {
			continue
		}
		permitted = append(permitted, trigger)
	}
	return permitted, nil
}

// GetCurrentState returns the state of the RFQ a request would act on
func (e *engineImpl) GetCurrentState(ctx context.Context, rfqID int64) (domainwf.State, error) {
	rfq, err := e.loadLive(ctx, rfqID)
	if err != nil {
		return 0, classify(err)
	}
	return domainwf.State(rfq.StateID), nil
}
