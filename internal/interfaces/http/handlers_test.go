package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/rfq-workflow/internal/application/service"
	"github.com/garyjia/rfq-workflow/internal/application/workflow"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

type testLogger struct{}

func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

// fakeEngine overrides the calls the handlers make; anything else panics
type fakeEngine struct {
	workflow.WorkflowEngine

	fired     []domainwf.Command
	trigger   domainwf.Trigger
	fireErr   error
	state     domainwf.State
	permitted []domainwf.Trigger
}

func (e *fakeEngine) Fire(ctx context.Context, trigger domainwf.Trigger, cmd domainwf.Command) (*workflow.TransitionResult, error) {
	e.trigger = trigger
	e.fired = append(e.fired, cmd)
	if e.fireErr != nil {
		return nil, e.fireErr
	}
	return &workflow.TransitionResult{
		RFQID:         cmd.RFQID,
		Trigger:       trigger,
		PreviousState: domainwf.StateSubmitted,
		NewState:      domainwf.StateApproved,
		Active:        true,
		AuditEntryID:  7,
	}, nil
}

func (e *fakeEngine) PermittedTriggers(ctx context.Context, rfqID int64, role domainwf.Role) ([]domainwf.Trigger, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", domainwf.ErrValidation, role)
	}
	return e.permitted, nil
}

func (e *fakeEngine) GetCurrentState(ctx context.Context, rfqID int64) (domainwf.State, error) {
	return e.state, nil
}

type fakeRFQService struct {
	service.RFQService

	created []service.CreateRFQRequest
	getErr  error
	updated map[int64]entity.CostInputs
}

func (s *fakeRFQService) CreateRFQ(ctx context.Context, req service.CreateRFQRequest) (*service.RFQDetail, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domainwf.ErrValidation)
	}
	s.created = append(s.created, req)
	return &service.RFQDetail{
		RFQ:       &entity.RFQ{ID: 1, Name: req.Name, StateID: domainwf.StateSubmitted.ID(), Active: true},
		StateName: "Submitted",
	}, nil
}

func (s *fakeRFQService) GetRFQ(ctx context.Context, id int64) (*service.RFQDetail, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &service.RFQDetail{RFQ: &entity.RFQ{ID: id, Name: "Gearbox"}, StateName: "Submitted"}, nil
}

func (s *fakeRFQService) ListRFQs(ctx context.Context, limit, offset int) ([]*entity.RFQ, error) {
	return nil, nil
}

func (s *fakeRFQService) UpdateSKUCostInputs(ctx context.Context, skuID int64, inputs entity.CostInputs) (*entity.CostFigures, error) {
	if s.updated == nil {
		s.updated = make(map[int64]entity.CostInputs)
	}
	s.updated[skuID] = inputs
	return &entity.CostFigures{SKUID: skuID, CIFValue: 210}, nil
}

type fakeQuotations struct {
	exported []int64
	files    map[string][]byte
	err      error
}

func (q *fakeQuotations) Export(ctx context.Context, rfqID int64) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.exported = append(q.exported, rfqID)
	p := fmt.Sprintf("rfq-%d/quotation-v0.xlsx", rfqID)
	q.files[p] = []byte("xlsx-bytes")
	return p, nil
}

func (q *fakeQuotations) Read(ctx context.Context, path string) ([]byte, error) {
	content, ok := q.files[path]
	if !ok {
		return nil, domainwf.ErrNotFound
	}
	return content, nil
}

type handlerHarness struct {
	server     *Server
	engine     *fakeEngine
	rfqs       *fakeRFQService
	quotations *fakeQuotations
}

func newHarness(t *testing.T) *handlerHarness {
	t.Helper()
	h := &handlerHarness{
		engine:     &fakeEngine{state: domainwf.StateSubmitted},
		rfqs:       &fakeRFQService{},
		quotations: &fakeQuotations{files: make(map[string][]byte)},
	}
	h.server = NewServer(DefaultServerConfig(), Services{
		RFQs:       h.rfqs,
		Engine:     h.engine,
		Quotations: h.quotations,
		Catalog:    domainwf.DefaultCatalog(),
	}, testLogger{})
	return h
}

func (h *handlerHarness) do(t *testing.T, method, target string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.server.Router().ServeHTTP(w, req)

	var resp Response
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func actor(userID int64, role domainwf.Role) map[string]string {
	return map[string]string{
		HeaderUserID: fmt.Sprint(userID),
		HeaderRole:   role.String(),
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: bad", domainwf.ErrValidation), http.StatusBadRequest, CodeValidation},
		{"guard", fmt.Errorf("%w: %w", domainwf.ErrValidation, domainwf.ErrGuardFailed), http.StatusBadRequest, CodeValidation},
		{"not found", domainwf.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"conflict", domainwf.ErrConcurrencyConflict, http.StatusConflict, CodeConflict},
		{"precondition", domainwf.ErrPreconditionFailed, http.StatusPreconditionFailed, CodePrecondition},
		{"inactive", domainwf.ErrInactiveResource, http.StatusLocked, CodeInactive},
		{"timeout wins over dependency", fmt.Errorf("%w: %w", domainwf.ErrDependencyFailure, domainwf.ErrTimeout), http.StatusGatewayTimeout, CodeTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout},
		{"dependency", domainwf.ErrDependencyFailure, http.StatusBadGateway, CodeDependency},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t)
	w, resp := h.do(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestListStates(t *testing.T) {
	h := newHarness(t)
	w, resp := h.do(t, http.MethodGet, "/api/states", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	states, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, states, len(domainwf.KnownStates()))
}

func TestFireTransition(t *testing.T) {
	h := newHarness(t)
	body := TransitionRequest{
		Comment: "looks good",
		Target:  &domainwf.TargetSelection{PlantIDs: []int64{1, 2}},
	}

	w, resp := h.do(t, http.MethodPost, "/api/rfqs/42/transitions/approve", body, actor(3, domainwf.RoleAccountManager))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, domainwf.TriggerApprove, h.engine.trigger)
	require.Len(t, h.engine.fired, 1)

	cmd := h.engine.fired[0]
	assert.Equal(t, int64(42), cmd.RFQID)
	assert.Equal(t, int64(3), cmd.ActingUserID)
	assert.Equal(t, domainwf.RoleAccountManager, cmd.ActingRole)
	assert.Equal(t, "looks good", cmd.Comment)
	require.NotNil(t, cmd.Target)
	assert.Equal(t, []int64{1, 2}, cmd.Target.PlantIDs)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Approved - Assigned to Plant", data["new_state_name"])
	assert.Equal(t, float64(7), data["audit_entry_id"])
}

func TestFireTransition_EmptyBodyAllowed(t *testing.T) {
	h := newHarness(t)
	w, _ := h.do(t, http.MethodPost, "/api/rfqs/42/transitions/pause", nil, actor(3, domainwf.RoleAdmin))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, h.engine.fired, 1)
	assert.Nil(t, h.engine.fired[0].Target)
}

func TestFireTransition_RequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers map[string]string
	}{
		{"bad rfq id", "/api/rfqs/abc/transitions/approve", actor(3, domainwf.RoleAccountManager)},
		{"missing user", "/api/rfqs/1/transitions/approve", map[string]string{HeaderRole: "account_manager"}},
		{"missing role", "/api/rfqs/1/transitions/approve", map[string]string{HeaderUserID: "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			w, resp := h.do(t, http.MethodPost, tt.target, nil, tt.headers)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, CodeValidation, resp.Code)
			assert.Empty(t, h.engine.fired)
		})
	}
}

func TestFireTransition_EngineErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"wrong role", fmt.Errorf("%w: role plant_head may not approve", domainwf.ErrPreconditionFailed), http.StatusPreconditionFailed},
		{"inactive", domainwf.ErrInactiveResource, http.StatusLocked},
		{"lost race", domainwf.ErrConcurrencyConflict, http.StatusConflict},
		{"missing rfq", domainwf.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.engine.fireErr = tt.err

			w, resp := h.do(t, http.MethodPost, "/api/rfqs/1/transitions/approve", nil, actor(3, domainwf.RolePlantHead))

			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestPermittedTransitions(t *testing.T) {
	h := newHarness(t)
	h.engine.permitted = []domainwf.Trigger{domainwf.TriggerApprove, domainwf.TriggerReject}

	w, resp := h.do(t, http.MethodGet, "/api/rfqs/5/transitions?role=account_manager", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Submitted", data["state_name"])
	assert.Equal(t, []interface{}{"approve", "reject"}, data["triggers"])

	w, _ = h.do(t, http.MethodGet, "/api/rfqs/5/transitions?role=janitor", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAndGetRFQ(t *testing.T) {
	h := newHarness(t)

	w, resp := h.do(t, http.MethodPost, "/api/rfqs", service.CreateRFQRequest{Name: "Gearbox", AccountManagerID: 3}, map[string]string{HeaderUserID: "9"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	require.Len(t, h.rfqs.created, 1)
	assert.Equal(t, int64(9), h.rfqs.created[0].RequestedBy, "requester defaults to the caller")

	w, resp = h.do(t, http.MethodPost, "/api/rfqs", service.CreateRFQRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidation, resp.Code)

	w, _ = h.do(t, http.MethodGet, "/api/rfqs/1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	h.rfqs.getErr = fmt.Errorf("%w: rfq 99", domainwf.ErrNotFound)
	w, resp = h.do(t, http.MethodGet, "/api/rfqs/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, resp.Code)
}

func TestListRFQs_EmptyIsArray(t *testing.T) {
	h := newHarness(t)
	w, resp := h.do(t, http.MethodGet, "/api/rfqs?limit=500", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, resp.Data)
}

func TestUpdateSKUCosts(t *testing.T) {
	h := newHarness(t)
	inputs := entity.CostInputs{BOMCost: 100, ConversionCost: 20, MarginPerc: 20}

	w, resp := h.do(t, http.MethodPut, "/api/skus/11/costs", inputs, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, inputs, h.rfqs.updated[11])
	assert.Equal(t, float64(210), resp.Data.(map[string]interface{})["cif_value"])

	w, _ = h.do(t, http.MethodPut, "/api/skus/zero/costs", inputs, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuotationEndpoints(t *testing.T) {
	h := newHarness(t)

	w, resp := h.do(t, http.MethodPost, "/api/rfqs/4/quotation", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "rfq-4/quotation-v0.xlsx", resp.Data.(map[string]interface{})["path"])

	w, _ = h.do(t, http.MethodGet, "/api/rfqs/4/quotation", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xlsx-bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "quotation-v0.xlsx")
	assert.Equal(t, []int64{4, 4}, h.quotations.exported)

	h.quotations.err = fmt.Errorf("%w: rfq 8", domainwf.ErrNotFound)
	w, _ = h.do(t, http.MethodGet, "/api/rfqs/8/quotation", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
