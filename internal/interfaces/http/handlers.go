package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/rfq-workflow/internal/application/service"
	"github.com/garyjia/rfq-workflow/internal/application/workflow"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// Identity headers. Authentication happens upstream; the gateway forwards
// the caller's user and role.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// StateResponse is one entry of the states lookup table
type StateResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Terminal bool   `json:"terminal"`
}

// TransitionRequest is the body of a transition call
type TransitionRequest struct {
	Comment string                    `json:"comment"`
	Target  *domainwf.TargetSelection `json:"target,omitempty"`
}

// TransitionResponse wraps the engine result with readable state names
type TransitionResponse struct {
	*workflow.TransitionResult
	PreviousStateName string `json:"previous_state_name"`
	NewStateName      string `json:"new_state_name"`
}

// PermittedResponse lists what a role may fire on an RFQ
type PermittedResponse struct {
	RFQID     int64              `json:"rfq_id"`
	Role      domainwf.Role      `json:"role"`
	State     int64              `json:"state"`
	StateName string             `json:"state_name"`
	Triggers  []domainwf.Trigger `json:"triggers"`
}

// QuotationResponse describes a rendered quotation
type QuotationResponse struct {
	RFQID int64  `json:"rfq_id"`
	Path  string `json:"path"`
}

// ListRFQsRequest represents query parameters for listing RFQs
type ListRFQsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ListStates handles GET /api/states
func (h *Handlers) ListStates(c *gin.Context) {
	infos := h.services.Catalog.States()
	states := make([]StateResponse, 0, len(infos))
	for _, info := range infos {
		states = append(states, StateResponse{
			ID:       info.ID.ID(),
			Name:     info.Name,
			Terminal: info.Terminal,
		})
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    states,
	})
}

// CreateRFQ handles POST /api/rfqs
func (h *Handlers) CreateRFQ(c *gin.Context) {
	var req service.CreateRFQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid create request", "error", err)
		badRequest(c, "invalid request body")
		return
	}
	if req.RequestedBy == 0 {
		if userID, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64); err == nil {
			req.RequestedBy = userID
		}
	}

	detail, err := h.services.RFQs.CreateRFQ(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "Create RFQ", err)
		return
	}

	h.logger.Info("RFQ created", "rfq_id", detail.RFQ.ID, "skus", len(detail.SKUs))
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    detail,
	})
}

// ListRFQs handles GET /api/rfqs
func (h *Handlers) ListRFQs(c *gin.Context) {
	var req ListRFQsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		badRequest(c, "invalid query parameters")
		return
	}

	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	rfqs, err := h.services.RFQs.ListRFQs(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.writeError(c, "List RFQs", err)
		return
	}
	if rfqs == nil {
		rfqs = []*entity.RFQ{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    rfqs,
	})
}

// GetRFQ handles GET /api/rfqs/:id
func (h *Handlers) GetRFQ(c *gin.Context) {
	id, ok := h.rfqID(c)
	if !ok {
		return
	}

	detail, err := h.services.RFQs.GetRFQ(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Get RFQ", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    detail,
	})
}

// GetAuditTrail handles GET /api/rfqs/:id/audit
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	id, ok := h.rfqID(c)
	if !ok {
		return
	}

	entries, err := h.services.RFQs.GetAuditTrail(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Get audit trail", err)
		return
	}
	if entries == nil {
		entries = []*entity.AuditEntry{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    entries,
	})
}

// GetAssignments handles GET /api/rfqs/:id/assignments
func (h *Handlers) GetAssignments(c *gin.Context) {
	id, ok := h.rfqID(c)
	if !ok {
		return
	}

	assignments, err := h.services.RFQs.GetAssignments(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Get assignments", err)
		return
	}
	if assignments == nil {
		assignments = []*entity.Assignment{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    assignments,
	})
}

// ListRevisions handles GET /api/rfqs/:id/revisions
func (h *Handlers) ListRevisions(c *gin.Context) {
	id, ok := h.rfqID(c)
	if !ok {
		return
	}

	revisions, err := h.services.RFQs.ListRevisions(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "List revisions", err)
		return
	}
	if revisions == nil {
		revisions = []*entity.RFQ{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    revisions,
	})
}

// ListNotifications handles GET /api/rfqs/:id/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	id, ok := h.rfqID(c)
	if !ok {
		return
	}

	notifications, err := h.services.Notifications.ListByRFQ(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "List notifications", err)
		return
	}
	if notifications == nil {
		notifications = []*entity.Notification{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    notifications,
	})
}

// PermittedTransitions handles GET /api/rfqs/:id/transitions?role=
func (h *Handlers) PermittedTransitions(c *gin.Context) {
	id, ok := h.rfqID(c)
	if !ok {
		return
	}

	role := domainwf.Role(c.Query("role"))
	if role == "" {
		role = domainwf.Role(c.GetHeader(HeaderRole))
	}

	ctx := c.Request.Context()
	triggers, err := h.services.Engine.PermittedTriggers(ctx, id, role)
	if err != nil {
		h.writeError(c, "Permitted transitions", err)
		return
	}
	state, err := h.services.Engine.GetCurrentState(ctx, id)
	if err != nil {
		h.writeError(c, "Permitted transitions", err)
		return
	}
	if triggers == nil {
		triggers = []domainwf.Trigger{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: PermittedResponse{
			RFQID:     id,
			Role:      role,
			State:     state.ID(),
			StateName: h.services.Catalog.Describe(state),
			Triggers:  triggers,
		},
	})
}

// FireTransition handles POST /api/rfqs/:id/transitions/:trigger
func (h *Handlers) FireTransition(c *gin.Context) {
	id, ok := h.rfqID(c)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
	if err != nil || userID <= 0 {
		badRequest(c, "missing or invalid "+HeaderUserID+" header")
		return
	}
	role := domainwf.Role(c.GetHeader(HeaderRole))
	if role == "" {
		badRequest(c, "missing "+HeaderRole+" header")
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error("Invalid transition body", "error", err)
		badRequest(c, "invalid request body")
		return
	}

	trigger := domainwf.Trigger(c.Param("trigger"))
	cmd := domainwf.Command{
		RFQID:        id,
		ActingUserID: userID,
		ActingRole:   role,
		Comment:      req.Comment,
		Target:       req.Target,
	}

	h.logger.Info("Firing transition", "rfq_id", id, "trigger", trigger, "user_id", userID, "role", role)

	result, err := h.services.Engine.Fire(c.Request.Context(), trigger, cmd)
	if err != nil {
		h.writeError(c, "Transition "+trigger.String(), err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: TransitionResponse{
			TransitionResult:  result,
			PreviousStateName: h.services.Catalog.Describe(result.PreviousState),
			NewStateName:      h.services.Catalog.Describe(result.NewState),
		},
	})
}

// ExportQuotation handles POST /api/rfqs/:id/quotation
func (h *Handlers) ExportQuotation(c *gin.Context) {
	id, ok := h.rfqID(c)
	if !ok {
		return
	}

	filePath, err := h.services.Quotations.Export(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Export quotation", err)
		return
	}

	h.logger.Info("Quotation exported", "rfq_id", id, "path", filePath)
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    QuotationResponse{RFQID: id, Path: filePath},
	})
}

// DownloadQuotation handles GET /api/rfqs/:id/quotation. A fresh document
// is rendered on every call.
func (h *Handlers) DownloadQuotation(c *gin.Context) {
	id, ok := h.rfqID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	filePath, err := h.services.Quotations.Export(ctx, id)
	if err != nil {
		h.writeError(c, "Export quotation", err)
		return
	}
	content, err := h.services.Quotations.Read(ctx, filePath)
	if err != nil {
		h.writeError(c, "Read quotation", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(filePath)))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", content)
}

// UpdateSKUCosts handles PUT /api/skus/:id/costs
func (h *Handlers) UpdateSKUCosts(c *gin.Context) {
	idStr := c.Param("id")
	skuID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || skuID <= 0 {
		h.logger.Error("Invalid SKU ID", "id", idStr)
		badRequest(c, "invalid SKU ID")
		return
	}

	var inputs entity.CostInputs
	if err := c.ShouldBindJSON(&inputs); err != nil {
		h.logger.Error("Invalid cost inputs", "error", err)
		badRequest(c, "invalid request body")
		return
	}

	figures, err := h.services.RFQs.UpdateSKUCostInputs(c.Request.Context(), skuID, inputs)
	if err != nil {
		h.writeError(c, "Update SKU costs", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    figures,
	})
}

// rfqID parses the :id path parameter and writes a 400 when it is malformed
func (h *Handlers) rfqID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Error("Invalid RFQ ID", "id", idStr)
		badRequest(c, "invalid RFQ ID")
		return 0, false
	}
	return id, true
}
