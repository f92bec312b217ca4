package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/rfq-workflow/internal/application/dispatcher"
	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/application/service"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	"github.com/garyjia/rfq-workflow/internal/domain/event"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/rfq-workflow/migrations"
	"github.com/garyjia/rfq-workflow/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock implementations

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockNotifier struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (m *mockNotifier) Notify(ctx context.Context, toEmail, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[toEmail] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, toEmail)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type failingCalculator struct {
	err   error
	block bool
	calls int
}

func (f *failingCalculator) RecalculateCosts(ctx context.Context, rfqID int64, skuID *int64, mode domainwf.RecalcMode) ([]entity.CostFigures, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, f.err
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Type
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// hookedRFQRepo runs a hook once, right after the first read, so a
// competing transition can commit between read and write
type hookedRFQRepo struct {
	port.RFQRepository
	once sync.Once
	hook func()
}

func (r *hookedRFQRepo) GetByID(ctx context.Context, id int64) (*entity.RFQ, error) {
	rfq, err := r.RFQRepository.GetByID(ctx, id)
	if r.hook != nil {
		r.once.Do(r.hook)
	}
	return rfq, err
}

// Test harness

type harness struct {
	engine     WorkflowEngine
	rfqs       port.RFQRepository
	skus       port.SKURepository
	audit      port.AuditRepository
	assigns    port.AssignmentRepository
	notes      port.NotificationRepository
	notifier   *mockNotifier
	dispatcher *mockDispatcher
	hooked     *hookedRFQRepo

	plantA, plantB *entity.Plant

	manager, headA, headB     *entity.User
	npd, vde, pe, peOther     *entity.User
	commercial, commercialMgr *entity.User
}

type harnessOption struct {
	calculator port.CostCalculator
	engineOpts []EngineOption
}

func newHarness(t *testing.T, opt harnessOption) *harness {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "rfq.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(migrations.FS))

	rfqRepo := repository.NewRFQRepository(db.DB, logger)
	userRepo := repository.NewUserRepository(db.DB, logger)
	plantRepo := repository.NewPlantRepository(db.DB, logger)

	h := &harness{
		rfqs:       rfqRepo,
		skus:       repository.NewSKURepository(db.DB, logger),
		audit:      repository.NewAuditRepository(db.DB, logger),
		assigns:    repository.NewAssignmentRepository(db.DB, logger),
		notes:      repository.NewNotificationRepository(db.DB, logger),
		notifier:   &mockNotifier{failFor: map[string]bool{}},
		dispatcher: &mockDispatcher{},
		hooked:     &hookedRFQRepo{RFQRepository: rfqRepo},
	}

	h.plantA = &entity.Plant{Code: "PA", Name: "Plant A"}
	h.plantB = &entity.Plant{Code: "PB", Name: "Plant B"}
	require.NoError(t, plantRepo.Create(ctx, h.plantA))
	require.NoError(t, plantRepo.Create(ctx, h.plantB))

	newUser := func(email string, role domainwf.Role, plant *entity.Plant, isDefault bool) *entity.User {
		u := &entity.User{Email: email, FirstName: string(role), Role: role.String(), IsDefault: isDefault, Active: true}
		if plant != nil {
			u.PlantID = &plant.ID
		}
		require.NoError(t, userRepo.Create(ctx, u))
		return u
	}
	h.manager = newUser("am@example.com", domainwf.RoleAccountManager, nil, false)
	h.headA = newUser("head-a@example.com", domainwf.RolePlantHead, h.plantA, false)
	h.headB = newUser("head-b@example.com", domainwf.RolePlantHead, h.plantB, false)
	h.npd = newUser("npd@example.com", domainwf.RoleNPDEngineer, h.plantA, false)
	h.vde = newUser("vde@example.com", domainwf.RoleVendorEngineer, h.plantA, false)
	h.pe = newUser("pe@example.com", domainwf.RoleProcessEngineer, h.plantA, false)
	h.peOther = newUser("pe-2@example.com", domainwf.RoleProcessEngineer, h.plantA, false)
	h.commercial = newUser("ct@example.com", domainwf.RoleCommercialTeam, nil, false)
	h.commercialMgr = newUser("cm@example.com", domainwf.RoleCommercialManager, nil, true)

	calculator := opt.calculator
	if calculator == nil {
		calculator = service.NewCostingService(h.skus, nopLogger{})
	}

	directory := service.NewDirectoryService(rfqRepo, h.assigns, userRepo, plantRepo, nopLogger{})
	notifications := service.NewNotificationService(h.notes, repository.NewTemplateRepository(db.DB, logger),
		h.notifier, service.NotificationConfig{SendTimeout: time.Second}, nopLogger{})

	opts := append([]EngineOption{WithDispatcher(h.dispatcher)}, opt.engineOpts...)
	h.engine = NewEngine(
		Repositories{RFQs: h.hooked, SKUs: h.skus, Assignments: h.assigns, Audit: h.audit},
		directory,
		calculator,
		notifications,
		sqlite.NewDB(db.DB, logger),
		nopLogger{},
		opts...,
	)
	return h
}

// seedRFQ stores an RFQ directly in the given state with one priced SKU
func (h *harness) seedRFQ(t *testing.T, state domainwf.State) *entity.RFQ {
	t.Helper()
	ctx := context.Background()

	rfq := &entity.RFQ{
		Name:             "Bracket",
		ClientRef:        "C-100",
		AccountManagerID: h.manager.ID,
		StateID:          state.ID(),
		Active:           true,
		CreatedBy:        h.manager.ID,
	}
	require.NoError(t, h.rfqs.Create(ctx, rfq))

	yield, overhead := 80.0, 10.0
	require.NoError(t, h.skus.Create(ctx, &entity.SKU{
		RFQID: rfq.ID, Code: "SKU-1", Quantity: 500,
		CostInputs: entity.CostInputs{
			BOMCost: 100, YieldPercent: &yield, ScrapCost: 5, ConversionCost: 20,
			FactoryOverheadPerc: &overhead, MarginPerc: 20, FreightCost: 10, InsuranceCost: 2,
		},
	}))
	return rfq
}

func (h *harness) assign(t *testing.T, rfq *entity.RFQ, u *entity.User, role domainwf.Role) {
	t.Helper()
	require.NoError(t, h.assigns.Create(context.Background(), &entity.Assignment{
		RFQID: rfq.ID, AssignedToUser: u.ID, AssignedToRole: role.String(),
		AssignedByUser: h.manager.ID, AssignedByRole: domainwf.RoleAccountManager.String(),
		PlantID: u.PlantID, Status: entity.AssignmentStatusActive,
	}))
}

func (h *harness) reload(t *testing.T, id int64) *entity.RFQ {
	t.Helper()
	rfq, err := h.rfqs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, rfq)
	return rfq
}

func (h *harness) auditTrail(t *testing.T, id int64) []*entity.AuditEntry {
	t.Helper()
	entries, err := h.audit.ListByRFQ(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func as(u *entity.User, rfqID int64, comment string, target *domainwf.TargetSelection) domainwf.Command {
	return domainwf.Command{
		RFQID:        rfqID,
		ActingUserID: u.ID,
		ActingRole:   domainwf.Role(u.Role),
		Comment:      comment,
		Target:       target,
	}
}

func assignees(role domainwf.Role, users ...*entity.User) []domainwf.Assignee {
	out := make([]domainwf.Assignee, 0, len(users))
	for _, u := range users {
		out = append(out, domainwf.Assignee{UserID: u.ID, Role: role})
	}
	return out
}

// Tests

func TestEngine_ApproveAssignsEachSelectedPlant(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)

	result, err := h.engine.Approve(context.Background(), as(h.manager, rfq.ID, "ok",
		&domainwf.TargetSelection{PlantIDs: []int64{h.plantA.ID, h.plantB.ID}}))
	require.NoError(t, err)

	assert.Equal(t, domainwf.StateSubmitted, result.PreviousState)
	assert.Equal(t, domainwf.StateApproved, result.NewState)
	assert.Len(t, result.AssignmentIDs, 2)
	assert.Len(t, result.Notifications, 2)
	assert.NoError(t, result.NotificationError())
	assert.Equal(t, 2, h.notifier.count())

	edges, err := h.assigns.ListByRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	plants := map[int64]int64{}
	for _, e := range edges {
		assert.Equal(t, domainwf.RolePlantHead.String(), e.AssignedToRole)
		assert.Equal(t, h.manager.ID, e.AssignedByUser)
		assert.Equal(t, "ok", e.Comment)
		require.NotNil(t, e.PlantID)
		plants[*e.PlantID] = e.AssignedToUser
	}
	assert.Equal(t, h.headA.ID, plants[h.plantA.ID])
	assert.Equal(t, h.headB.ID, plants[h.plantB.ID])

	notes, err := h.notes.ListByRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	for _, n := range notes {
		assert.Equal(t, entity.NotificationStatusSent, n.Status)
		assert.Equal(t, result.AuditEntryID, n.AuditEntryID)
		assert.Contains(t, n.Subject, "Bracket")
		assert.Contains(t, n.Body, "ok")
	}

	trail := h.auditTrail(t, rfq.ID)
	require.Len(t, trail, 1)
	assert.Equal(t, domainwf.StateApproved.ID(), trail[0].StateID)
	assert.Equal(t, "ok", trail[0].Comment)
	assert.Contains(t, h.dispatcher.types(), event.TypeRFQTransitioned)
}

func TestEngine_ApproveWithoutPlantsIsValidationError(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)

	_, err := h.engine.Approve(context.Background(), as(h.manager, rfq.ID, "ok", nil))
	assert.ErrorIs(t, err, domainwf.ErrValidation)
	assert.Equal(t, domainwf.StateSubmitted.ID(), h.reload(t, rfq.ID).StateID)
}

func TestEngine_ApproveDefaultsToRequestedPlants(t *testing.T) {
	h := newHarness(t, harnessOption{})
	ctx := context.Background()
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)
	require.NoError(t, h.rfqs.AddPlants(ctx, rfq.ID, []int64{h.plantA.ID, h.plantB.ID}))

	result, err := h.engine.Approve(ctx, as(h.manager, rfq.ID, "ok", nil))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateApproved, result.NewState)
	assert.Len(t, result.AssignmentIDs, 2)
	assert.ElementsMatch(t, []string{h.headA.Email, h.headB.Email}, h.notifier.sent)
}

func TestEngine_ApproveSelectionOverridesRequestedPlants(t *testing.T) {
	h := newHarness(t, harnessOption{})
	ctx := context.Background()
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)
	require.NoError(t, h.rfqs.AddPlants(ctx, rfq.ID, []int64{h.plantA.ID, h.plantB.ID}))

	result, err := h.engine.Approve(ctx, as(h.manager, rfq.ID, "ok",
		&domainwf.TargetSelection{PlantIDs: []int64{h.plantB.ID}}))
	require.NoError(t, err)
	assert.Len(t, result.AssignmentIDs, 1)
	assert.Equal(t, []string{h.headB.Email}, h.notifier.sent)
}

func TestEngine_PlantRejectNotifiesAccountManager(t *testing.T) {
	h := newHarness(t, harnessOption{})
	ctx := context.Background()
	rfq := h.seedRFQ(t, domainwf.StateApproved)
	h.assign(t, rfq, h.headA, domainwf.RolePlantHead)

	_, err := h.engine.PlantReject(ctx, as(h.headA, rfq.ID, "  ", nil))
	assert.ErrorIs(t, err, domainwf.ErrValidation)
	assert.Empty(t, h.auditTrail(t, rfq.ID))

	result, err := h.engine.PlantReject(ctx, as(h.headA, rfq.ID, "no capacity this quarter", nil))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateApproved, result.PreviousState)
	assert.Equal(t, domainwf.StateRejectedByPlant, result.NewState)
	assert.Empty(t, result.AssignmentIDs)

	require.Len(t, result.Notifications, 1)
	assert.Equal(t, h.manager.Email, result.Notifications[0].Email)
	assert.True(t, result.Notifications[0].Delivered)
	assert.Equal(t, []string{h.manager.Email}, h.notifier.sent)

	assert.Equal(t, domainwf.StateRejectedByPlant.ID(), h.reload(t, rfq.ID).StateID)
	trail := h.auditTrail(t, rfq.ID)
	require.Len(t, trail, 1)
	assert.Equal(t, domainwf.StateRejectedByPlant.ID(), trail[0].StateID)
	assert.Equal(t, "no capacity this quarter", trail[0].Comment)

	_, err = h.engine.Approve(ctx, as(h.manager, rfq.ID, "again",
		&domainwf.TargetSelection{PlantIDs: []int64{h.plantB.ID}}))
	assert.ErrorIs(t, err, domainwf.ErrPreconditionFailed)

	_, err = h.engine.AssignEngineers(ctx, as(h.headA, rfq.ID, "",
		&domainwf.TargetSelection{Assignees: assignees(domainwf.RoleProcessEngineer, h.pe)}))
	assert.ErrorIs(t, err, domainwf.ErrPreconditionFailed)
	assert.Len(t, h.auditTrail(t, rfq.ID), 1)
}

func TestEngine_WrongRoleLeavesRFQUntouched(t *testing.T) {
	tests := []struct {
		name    string
		state   domainwf.State
		trigger domainwf.Trigger
		actor   func(h *harness) *entity.User
	}{
		{"plant head cannot approve", domainwf.StateSubmitted, domainwf.TriggerApprove, func(h *harness) *entity.User { return h.headA }},
		{"engineer cannot reject", domainwf.StateSubmitted, domainwf.TriggerReject, func(h *harness) *entity.User { return h.npd }},
		{"account manager cannot assign engineers", domainwf.StateApproved, domainwf.TriggerAssignEngineers, func(h *harness) *entity.User { return h.manager }},
		{"commercial team cannot send to client", domainwf.StateSentToAccountMgrReview, domainwf.TriggerSendToClient, func(h *harness) *entity.User { return h.commercial }},
		{"vendor engineer cannot return an NPD review", domainwf.StateReviewNPD, domainwf.TriggerReturnReview, func(h *harness) *entity.User { return h.vde }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOption{})
			rfq := h.seedRFQ(t, tt.state)

			_, err := h.engine.Fire(context.Background(), tt.trigger, as(tt.actor(h), rfq.ID, "comment",
				&domainwf.TargetSelection{PlantIDs: []int64{h.plantA.ID}}))
			require.Error(t, err)
			assert.ErrorIs(t, err, domainwf.ErrPreconditionFailed)
			assert.False(t, domainwf.IsRetryable(err))

			var terr *domainwf.TransitionError
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tt.trigger, terr.Trigger)

			after := h.reload(t, rfq.ID)
			assert.Equal(t, rfq.StateID, after.StateID)
			assert.Equal(t, rfq.Active, after.Active)
			assert.Equal(t, rfq.RowVersion, after.RowVersion)
			assert.Empty(t, h.auditTrail(t, rfq.ID))
		})
	}
}

func TestEngine_WrongStateIsPreconditionFailure(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateApproved)

	_, err := h.engine.Reject(context.Background(), as(h.manager, rfq.ID, "too late", nil))
	assert.ErrorIs(t, err, domainwf.ErrPreconditionFailed)

	closed := h.seedRFQ(t, domainwf.StateClosed)
	_, err = h.engine.Pause(context.Background(), as(h.manager, closed.ID, "hold", nil))
	require.NoError(t, err, "pause keeps state and is legal from any state")

	_, err = h.engine.Fire(context.Background(), domainwf.TriggerSendToClient, as(h.manager, closed.ID, "", nil))
	assert.ErrorIs(t, err, domainwf.ErrInactiveResource)
}

func TestEngine_ValidationErrors(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)
	ctx := context.Background()

	_, err := h.engine.Reject(ctx, as(h.manager, rfq.ID, "   ", nil))
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	_, err = h.engine.Fire(ctx, domainwf.Trigger("launch"), as(h.manager, rfq.ID, "", nil))
	assert.ErrorIs(t, err, domainwf.ErrValidation)
	assert.ErrorIs(t, err, domainwf.ErrUnknownTrigger)

	_, err = h.engine.Reject(ctx, domainwf.Command{RFQID: rfq.ID, ActingUserID: h.manager.ID, ActingRole: "ceo", Comment: "x"})
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	_, err = h.engine.Reject(ctx, as(h.manager, 9999, "x", nil))
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	assert.Empty(t, h.auditTrail(t, rfq.ID))
}

func TestEngine_InactiveRFQRejectsEveryTransition(t *testing.T) {
	tests := []struct {
		name     string
		state    domainwf.State
		attempts func(h *harness) map[domainwf.Trigger]*entity.User
	}{
		{
			name:  "submitted",
			state: domainwf.StateSubmitted,
			attempts: func(h *harness) map[domainwf.Trigger]*entity.User {
				return map[domainwf.Trigger]*entity.User{
					domainwf.TriggerApprove:         h.manager,
					domainwf.TriggerReject:          h.manager,
					domainwf.TriggerPause:           h.manager,
					domainwf.TriggerAssignEngineers: h.headA,
					domainwf.TriggerSendToClient:    h.commercial,
				}
			},
		},
		{
			name:  "sent to process engineer",
			state: domainwf.StateSentToPE,
			attempts: func(h *harness) map[domainwf.Trigger]*entity.User {
				return map[domainwf.Trigger]*entity.User{
					domainwf.TriggerSendToPlantReview: h.pe,
					domainwf.TriggerPause:             h.headA,
				}
			},
		},
		{
			name:  "closed",
			state: domainwf.StateClosed,
			attempts: func(h *harness) map[domainwf.Trigger]*entity.User {
				return map[domainwf.Trigger]*entity.User{
					domainwf.TriggerSendToClient:    h.manager,
					domainwf.TriggerRequestRevision: h.manager,
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOption{})
			rfq := h.seedRFQ(t, tt.state)
			h.assign(t, rfq, h.headA, domainwf.RolePlantHead)
			h.assign(t, rfq, h.pe, domainwf.RoleProcessEngineer)
			ctx := context.Background()

			paused, err := h.engine.Pause(ctx, as(h.manager, rfq.ID, "waiting on drawings", nil))
			require.NoError(t, err)
			assert.False(t, paused.Active)
			assert.Equal(t, tt.state, paused.NewState)

			trail := h.auditTrail(t, rfq.ID)
			require.Len(t, trail, 1)
			assert.Equal(t, domainwf.StatePaused.ID(), trail[0].StateID)

			for trigger, actor := range tt.attempts(h) {
				_, err := h.engine.Fire(ctx, trigger, as(actor, rfq.ID, "comment", &domainwf.TargetSelection{
					PlantIDs:      []int64{h.plantA.ID},
					RevisionRoute: domainwf.RouteViaPlant,
				}))
				assert.ErrorIs(t, err, domainwf.ErrInactiveResource, "trigger %s", trigger)
			}
			assert.Len(t, h.auditTrail(t, rfq.ID), 1)
			assert.Equal(t, tt.state.ID(), h.reload(t, rfq.ID).StateID)

			resumed, err := h.engine.Resume(ctx, as(h.headA, rfq.ID, "", nil))
			require.NoError(t, err)
			assert.True(t, resumed.Active)

			trail = h.auditTrail(t, rfq.ID)
			require.Len(t, trail, 2)
			assert.Equal(t, tt.state.ID(), trail[1].StateID)

			_, err = h.engine.Resume(ctx, as(h.manager, rfq.ID, "", nil))
			assert.ErrorIs(t, err, domainwf.ErrPreconditionFailed)

			_, err = h.engine.Pause(ctx, as(h.manager, rfq.ID, "", nil))
			assert.ErrorIs(t, err, domainwf.ErrValidation, "pause requires a comment")
		})
	}
}

func TestEngine_RecalculationFailureRollsBack(t *testing.T) {
	calc := &failingCalculator{err: errors.New("cost sheet locked")}
	h := newHarness(t, harnessOption{calculator: calc})
	rfq := h.seedRFQ(t, domainwf.StateSentToPE)
	h.assign(t, rfq, h.headA, domainwf.RolePlantHead)

	_, err := h.engine.SendToPlantReview(context.Background(), as(h.pe, rfq.ID, "costed", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, domainwf.ErrDependencyFailure)
	assert.Equal(t, 1, calc.calls)

	assert.Equal(t, domainwf.StateSentToPE.ID(), h.reload(t, rfq.ID).StateID)
	assert.Empty(t, h.auditTrail(t, rfq.ID))
	assert.Equal(t, 0, h.notifier.count())

	notes, err := h.notes.ListByRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestEngine_RecalculationTimeout(t *testing.T) {
	calc := &failingCalculator{block: true}
	h := newHarness(t, harnessOption{
		calculator: calc,
		engineOpts: []EngineOption{WithRecalcTimeout(20 * time.Millisecond)},
	})
	rfq := h.seedRFQ(t, domainwf.StateSentToPE)

	_, err := h.engine.SendToPlantReview(context.Background(), as(h.pe, rfq.ID, "", nil))
	assert.ErrorIs(t, err, domainwf.ErrTimeout)
	assert.ErrorIs(t, err, domainwf.ErrDependencyFailure)
	assert.Equal(t, domainwf.StateSentToPE.ID(), h.reload(t, rfq.ID).StateID)
}

func TestEngine_SendToPlantReviewRecalculatesBeforeCommit(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateSentToPE)
	h.assign(t, rfq, h.headA, domainwf.RolePlantHead)

	result, err := h.engine.SendToPlantReview(context.Background(), as(h.pe, rfq.ID, "costed", nil))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateReviewByPlant, result.NewState)

	require.Len(t, result.Costs, 1)
	assert.Equal(t, 150.0, result.Costs[0].SubTotalCost)
	assert.Equal(t, 15.0, result.Costs[0].FactoryOverhead)
	assert.Equal(t, 165.0, result.Costs[0].TotalFactoryCost)
	assert.Equal(t, 198.0, result.Costs[0].FOBValue)
	assert.Equal(t, 210.0, result.Costs[0].CIFValue)

	skus, err := h.skus.ListByRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, 210.0, skus[0].CIFValue)

	require.Len(t, result.Notifications, 1)
	assert.Equal(t, h.headA.Email, result.Notifications[0].Email)
	assert.Equal(t, domainwf.TemplateReadyForPlantReview, result.Notifications[0].Template)
}

func TestEngine_AssignEngineersPicksFirstSelectedRole(t *testing.T) {
	tests := []struct {
		name      string
		selection func(h *harness) []domainwf.Assignee
		wantState domainwf.State
		wantEdges int
	}{
		{
			name: "process engineer only",
			selection: func(h *harness) []domainwf.Assignee {
				return assignees(domainwf.RoleProcessEngineer, h.pe)
			},
			wantState: domainwf.StateSentToPE,
			wantEdges: 1,
		},
		{
			name: "vendor and process engineers",
			selection: func(h *harness) []domainwf.Assignee {
				return append(assignees(domainwf.RoleProcessEngineer, h.pe), assignees(domainwf.RoleVendorEngineer, h.vde)...)
			},
			wantState: domainwf.StateSentToVDE,
			wantEdges: 2,
		},
		{
			name: "all three in parallel",
			selection: func(h *harness) []domainwf.Assignee {
				out := assignees(domainwf.RoleNPDEngineer, h.npd)
				out = append(out, assignees(domainwf.RoleVendorEngineer, h.vde)...)
				return append(out, assignees(domainwf.RoleProcessEngineer, h.pe, h.peOther)...)
			},
			wantState: domainwf.StateSentToNPD,
			wantEdges: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOption{})
			rfq := h.seedRFQ(t, domainwf.StateApproved)
			h.assign(t, rfq, h.headA, domainwf.RolePlantHead)

			result, err := h.engine.AssignEngineers(context.Background(), as(h.headA, rfq.ID, "please cost",
				&domainwf.TargetSelection{Assignees: tt.selection(h)}))
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, result.NewState)
			assert.Len(t, result.AssignmentIDs, tt.wantEdges)
			assert.Len(t, result.Notifications, tt.wantEdges)
		})
	}
}

func TestEngine_AssignEngineersRejectsIneligibleUser(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateApproved)
	h.assign(t, rfq, h.headA, domainwf.RolePlantHead)

	// The commercial user is selected as an NPD engineer
	_, err := h.engine.AssignEngineers(context.Background(), as(h.headA, rfq.ID, "",
		&domainwf.TargetSelection{Assignees: assignees(domainwf.RoleNPDEngineer, h.commercial)}))
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	edges, err := h.assigns.ListByRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestEngine_ParallelFanOutRequiresAssignment(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateSentToNPD)
	h.assign(t, rfq, h.headA, domainwf.RolePlantHead)
	h.assign(t, rfq, h.pe, domainwf.RoleProcessEngineer)

	_, err := h.engine.SendToPlantReview(context.Background(), as(h.peOther, rfq.ID, "", nil))
	assert.ErrorIs(t, err, domainwf.ErrPreconditionFailed)

	result, err := h.engine.SendToPlantReview(context.Background(), as(h.pe, rfq.ID, "done early", nil))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateReviewByPlant, result.NewState)
}

func TestEngine_NotificationFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, harnessOption{})
	h.notifier.failFor[h.headB.Email] = true
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)

	result, err := h.engine.Approve(context.Background(), as(h.manager, rfq.ID, "ok",
		&domainwf.TargetSelection{PlantIDs: []int64{h.plantA.ID, h.plantB.ID}}))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateApproved, result.NewState)
	assert.ErrorIs(t, result.NotificationError(), domainwf.ErrNotificationFailure)
	assert.NotEmpty(t, result.Warnings)

	delivered := 0
	for _, n := range result.Notifications {
		if n.Delivered {
			delivered++
			continue
		}
		assert.Equal(t, h.headB.Email, n.Email)
		assert.Contains(t, n.Error, "mailbox unavailable")

		stored, err := h.notes.GetByID(context.Background(), n.NotificationID)
		require.NoError(t, err)
		assert.Equal(t, entity.NotificationStatusFailed, stored.Status)
		assert.Equal(t, 1, stored.Attempts)
	}
	assert.Equal(t, 1, delivered)
	assert.Equal(t, domainwf.StateApproved.ID(), h.reload(t, rfq.ID).StateID)
	assert.Contains(t, h.dispatcher.types(), event.TypeNotificationFailed)
}

func TestEngine_RequestRevisionCreatesNextVersion(t *testing.T) {
	h := newHarness(t, harnessOption{})
	ctx := context.Background()
	rfq := h.seedRFQ(t, domainwf.StateSentToClient)

	parentID := rfq.ID
	first := &entity.RFQ{Name: rfq.Name, AccountManagerID: rfq.AccountManagerID, StateID: rfq.StateID,
		Active: true, VersionNo: 1, ParentRFQID: &parentID, CreatedBy: h.manager.ID}
	require.NoError(t, h.rfqs.CreateRevision(ctx, first))

	result, err := h.engine.RequestRevision(ctx, as(h.manager, rfq.ID, "client wants a cheaper finish",
		&domainwf.TargetSelection{RevisionRoute: domainwf.RouteViaCommercial}))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateRevisionByCommercial, result.NewState)
	assert.Equal(t, 2, result.RevisionVersionNo)

	revision := h.reload(t, result.RevisionID)
	require.NotNil(t, revision.ParentRFQID)
	assert.Equal(t, rfq.ID, *revision.ParentRFQID)
	assert.Equal(t, 2, revision.VersionNo)
	assert.Equal(t, domainwf.StateSentToClient.ID(), revision.StateID)
	assert.False(t, revision.Active, "snapshots are never active")

	original := h.reload(t, rfq.ID)
	assert.Equal(t, entity.OriginalVersionNo, original.VersionNo)
	assert.Equal(t, domainwf.StateRevisionByCommercial.ID(), original.StateID)

	copied, err := h.skus.ListByRFQ(ctx, revision.ID)
	require.NoError(t, err)
	require.Len(t, copied, 1)
	assert.Equal(t, "SKU-1", copied[0].Code)
	require.NotNil(t, copied[0].FactoryOverheadPerc)
	assert.Equal(t, 10.0, *copied[0].FactoryOverheadPerc)

	revs, err := h.rfqs.ListRevisions(ctx, rfq.ID)
	require.NoError(t, err)
	assert.Len(t, revs, 2)
	assert.Contains(t, h.dispatcher.types(), event.TypeRevisionCreated)
}

func TestEngine_RequestRevisionRoute(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateSentToClient)
	ctx := context.Background()

	_, err := h.engine.RequestRevision(ctx, as(h.manager, rfq.ID, "change",
		&domainwf.TargetSelection{RevisionRoute: "legal"}))
	assert.ErrorIs(t, err, domainwf.ErrGuardFailed)

	result, err := h.engine.RequestRevision(ctx, as(h.manager, rfq.ID, "change",
		&domainwf.TargetSelection{RevisionRoute: domainwf.RouteViaPlant}))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateRevisionByPlant, result.NewState)
	assert.Equal(t, 1, result.RevisionVersionNo)
}

func TestEngine_FireOnRevisionActsOnOriginal(t *testing.T) {
	h := newHarness(t, harnessOption{})
	ctx := context.Background()
	rfq := h.seedRFQ(t, domainwf.StateSentToClient)

	revised, err := h.engine.RequestRevision(ctx, as(h.manager, rfq.ID, "new volumes",
		&domainwf.TargetSelection{RevisionRoute: domainwf.RouteViaCommercial}))
	require.NoError(t, err)

	// No selection: the default commercial manager is assigned
	result, err := h.engine.SendToCommercialManager(ctx, as(h.commercial, revised.RevisionID, "repriced", nil))
	require.NoError(t, err)
	assert.Equal(t, rfq.ID, result.RFQID)
	assert.Equal(t, domainwf.StateSentToCommercialMgr, result.NewState)
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, h.commercialMgr.Email, result.Notifications[0].Email)

	snapshot := h.reload(t, revised.RevisionID)
	assert.Equal(t, domainwf.StateSentToClient.ID(), snapshot.StateID)
	assert.Empty(t, h.auditTrail(t, revised.RevisionID))

	state, err := h.engine.GetCurrentState(ctx, revised.RevisionID)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateSentToCommercialMgr, state)
}

func TestEngine_CloseRecordsSKUSelection(t *testing.T) {
	h := newHarness(t, harnessOption{})
	ctx := context.Background()
	rfq := h.seedRFQ(t, domainwf.StateSentToClient)

	second := &entity.SKU{RFQID: rfq.ID, Code: "SKU-2"}
	require.NoError(t, h.skus.Create(ctx, second))
	skus, err := h.skus.ListByRFQ(ctx, rfq.ID)
	require.NoError(t, err)
	first := skus[0]

	_, err = h.engine.Close(ctx, as(h.manager, rfq.ID, "won", nil))
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	_, err = h.engine.Close(ctx, as(h.manager, rfq.ID, "won", &domainwf.TargetSelection{
		SKUSelections: []domainwf.SKUSelection{{SKUID: 99999, Selected: true}},
	}))
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	result, err := h.engine.Close(ctx, as(h.manager, rfq.ID, "won", &domainwf.TargetSelection{
		SKUSelections: []domainwf.SKUSelection{{SKUID: first.ID, Selected: true}},
	}))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateClosed, result.NewState)

	got, err := h.skus.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClientSelected)
	assert.True(t, *got.ClientSelected)

	got, err = h.skus.GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClientSelected)
	assert.False(t, *got.ClientSelected)

	assert.Contains(t, h.dispatcher.types(), event.TypeRFQClosed)

	_, err = h.engine.RequestRevision(ctx, as(h.manager, rfq.ID, "reopen",
		&domainwf.TargetSelection{RevisionRoute: domainwf.RouteViaPlant}))
	assert.ErrorIs(t, err, domainwf.ErrPreconditionFailed, "closed is terminal")
}

func TestEngine_StaleReadYieldsConflict(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)

	var competitorErr error
	h.hooked.hook = func() {
		_, competitorErr = h.engine.Reject(context.Background(), as(h.manager, rfq.ID, "duplicate request", nil))
	}

	_, err := h.engine.Approve(context.Background(), as(h.manager, rfq.ID, "ok",
		&domainwf.TargetSelection{PlantIDs: []int64{h.plantA.ID}}))
	require.NoError(t, competitorErr)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainwf.ErrConcurrencyConflict)
	assert.True(t, domainwf.IsRetryable(err))

	assert.Equal(t, domainwf.StateRejected.ID(), h.reload(t, rfq.ID).StateID)
	trail := h.auditTrail(t, rfq.ID)
	require.Len(t, trail, 1)
	assert.Equal(t, "reject", trail[0].Trigger)

	edges, err := h.assigns.ListByRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestEngine_ConflictRetryRereadsState(t *testing.T) {
	h := newHarness(t, harnessOption{engineOpts: []EngineOption{WithConflictRetries(1)}})
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)

	h.hooked.hook = func() {
		_, _ = h.engine.Reject(context.Background(), as(h.manager, rfq.ID, "duplicate request", nil))
	}

	// The retry sees the committed rejection
	_, err := h.engine.Approve(context.Background(), as(h.manager, rfq.ID, "ok",
		&domainwf.TargetSelection{PlantIDs: []int64{h.plantA.ID}}))
	assert.ErrorIs(t, err, domainwf.ErrPreconditionFailed)
	assert.Len(t, h.auditTrail(t, rfq.ID), 1)
}

func TestEngine_ConcurrentApproveConflicts(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)

	// A second approval commits between this call's read and its write
	var competitorErr error
	h.hooked.hook = func() {
		_, competitorErr = h.engine.Approve(context.Background(), as(h.manager, rfq.ID, "plant B only",
			&domainwf.TargetSelection{PlantIDs: []int64{h.plantB.ID}}))
	}

	_, err := h.engine.Approve(context.Background(), as(h.manager, rfq.ID, "plant A only",
		&domainwf.TargetSelection{PlantIDs: []int64{h.plantA.ID}}))
	require.NoError(t, competitorErr)
	assert.ErrorIs(t, err, domainwf.ErrConcurrencyConflict)
	assert.NotErrorIs(t, err, domainwf.ErrPreconditionFailed)

	trail := h.auditTrail(t, rfq.ID)
	require.Len(t, trail, 1)
	assert.Equal(t, "plant B only", trail[0].Comment)

	edges, err := h.assigns.ListByRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.NotNil(t, edges[0].PlantID)
	assert.Equal(t, h.plantB.ID, *edges[0].PlantID)
}

// Two identical approvals race with no ordering between them. The loser
// either conflicts or finds the RFQ already approved, depending on when it
// read; only the single committed outcome is checked here.
func TestEngine_DuplicateApproveOneWins(t *testing.T) {
	h := newHarness(t, harnessOption{})
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.engine.Approve(context.Background(), as(h.manager, rfq.ID, "ok",
				&domainwf.TargetSelection{PlantIDs: []int64{h.plantA.ID}}))
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t,
			errors.Is(err, domainwf.ErrConcurrencyConflict) || errors.Is(err, domainwf.ErrPreconditionFailed),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)
	assert.Len(t, h.auditTrail(t, rfq.ID), 1)

	edges, err := h.assigns.ListByRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestEngine_PermittedTriggers(t *testing.T) {
	h := newHarness(t, harnessOption{})
	ctx := context.Background()
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)

	triggers, err := h.engine.PermittedTriggers(ctx, rfq.ID, domainwf.RoleAccountManager)
	require.NoError(t, err)
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerApprove, domainwf.TriggerPause, domainwf.TriggerReject}, triggers)

	triggers, err = h.engine.PermittedTriggers(ctx, rfq.ID, domainwf.RoleNPDEngineer)
	require.NoError(t, err)
	assert.Empty(t, triggers)

	_, err = h.engine.Pause(ctx, as(h.manager, rfq.ID, "hold", nil))
	require.NoError(t, err)

	triggers, err = h.engine.PermittedTriggers(ctx, rfq.ID, domainwf.RoleAccountManager)
	require.NoError(t, err)
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerResume}, triggers)

	_, err = h.engine.PermittedTriggers(ctx, rfq.ID, "ceo")
	assert.ErrorIs(t, err, domainwf.ErrValidation)
}

// Walks the whole lifecycle and checks after every step that the last
// audit entry carries the RFQ's current state
func TestEngine_FullLifecycleAuditReproducesState(t *testing.T) {
	h := newHarness(t, harnessOption{})
	ctx := context.Background()
	rfq := h.seedRFQ(t, domainwf.StateSubmitted)

	steps := []struct {
		trigger domainwf.Trigger
		actor   *entity.User
		comment string
		target  *domainwf.TargetSelection
		want    domainwf.State
	}{
		{domainwf.TriggerApprove, h.manager, "ok", &domainwf.TargetSelection{PlantIDs: []int64{h.plantA.ID}}, domainwf.StateApproved},
		{domainwf.TriggerAssignEngineers, h.headA, "", &domainwf.TargetSelection{Assignees: assignees(domainwf.RoleNPDEngineer, h.npd)}, domainwf.StateSentToNPD},
		{domainwf.TriggerAssignVendorEngineer, h.npd, "", &domainwf.TargetSelection{Assignees: assignees(domainwf.RoleVendorEngineer, h.vde)}, domainwf.StateSentToVDE},
		{domainwf.TriggerAssignProcessEngineer, h.vde, "", &domainwf.TargetSelection{Assignees: assignees(domainwf.RoleProcessEngineer, h.pe)}, domainwf.StateSentToPE},
		{domainwf.TriggerSendToPlantReview, h.pe, "costed", nil, domainwf.StateReviewByPlant},
		{domainwf.TriggerRequestEngineerReview, h.headA, "check scrap", &domainwf.TargetSelection{ReviewRole: domainwf.RoleProcessEngineer}, domainwf.StateReviewPE},
		{domainwf.TriggerReturnReview, h.pe, "fixed", nil, domainwf.StateReviewByPlant},
		{domainwf.TriggerSendToCommercial, h.headA, "", &domainwf.TargetSelection{Assignees: assignees(domainwf.RoleCommercialTeam, h.commercial)}, domainwf.StateSentToCommercial},
		{domainwf.TriggerSendToCommercialManager, h.commercial, "", nil, domainwf.StateSentToCommercialMgr},
		{domainwf.TriggerManagerApprove, h.commercialMgr, "approved", nil, domainwf.StateSentToAccountMgrReview},
		{domainwf.TriggerSendToClient, h.manager, "", nil, domainwf.StateSentToClient},
		{domainwf.TriggerRequestRevision, h.manager, "volumes changed", &domainwf.TargetSelection{RevisionRoute: domainwf.RouteViaPlant}, domainwf.StateRevisionByPlant},
		{domainwf.TriggerSendToCommercial, h.headA, "", &domainwf.TargetSelection{Assignees: assignees(domainwf.RoleCommercialTeam, h.commercial)}, domainwf.StateSentToCommercialRevision},
		{domainwf.TriggerSendToAccountManager, h.commercial, "", nil, domainwf.StateSentToAccountMgrReview},
		{domainwf.TriggerSendToClient, h.manager, "", nil, domainwf.StateSentToClient},
	}

	for i, step := range steps {
		result, err := h.engine.Fire(ctx, step.trigger, as(step.actor, rfq.ID, step.comment, step.target))
		require.NoError(t, err, "step %d: %s", i, step.trigger)
		assert.Equal(t, step.want, result.NewState, "step %d: %s", i, step.trigger)
		assert.Empty(t, result.Warnings, "step %d: %s", i, step.trigger)

		trail := h.auditTrail(t, rfq.ID)
		require.Len(t, trail, i+1)
		assert.Equal(t, h.reload(t, rfq.ID).StateID, trail[len(trail)-1].StateID)
	}

	skus, err := h.skus.ListByRFQ(ctx, rfq.ID)
	require.NoError(t, err)
	result, err := h.engine.Close(ctx, as(h.manager, rfq.ID, "won", &domainwf.TargetSelection{
		SKUSelections: []domainwf.SKUSelection{{SKUID: skus[0].ID, Selected: true}},
	}))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateClosed, result.NewState)

	trail := h.auditTrail(t, rfq.ID)
	assert.Equal(t, domainwf.StateClosed.ID(), trail[len(trail)-1].StateID)
}
