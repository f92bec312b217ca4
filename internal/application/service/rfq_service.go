package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SKUInput describes a SKU submitted with a new RFQ
type SKUInput struct {
	Code        string            `json:"code"`
	Description string            `json:"description"`
	Quantity    int64             `json:"quantity"`
	Costs       entity.CostInputs `json:"costs"`
}

// CreateRFQRequest is a requester's new quotation request
type CreateRFQRequest struct {
	Name             string     `json:"name"`
	ClientRef        string     `json:"client_ref"`
	AccountManagerID int64      `json:"account_manager_id"`
	RequestedBy      int64      `json:"requested_by"`
	PlantIDs         []int64    `json:"plant_ids,omitempty"`
	SKUs             []SKUInput `json:"skus"`
}

// RFQDetail is an RFQ with its SKUs, requested plants and state description
type RFQDetail struct {
	RFQ       *entity.RFQ   `json:"rfq"`
	StateName string        `json:"state_name"`
	PlantIDs  []int64       `json:"plant_ids"`
	SKUs      []*entity.SKU `json:"skus"`
}

// RFQService covers RFQ submission and the read side of the workflow
type RFQService interface {
	CreateRFQ(ctx context.Context, req CreateRFQRequest) (*RFQDetail, error)
	GetRFQ(ctx context.Context, id int64) (*RFQDetail, error)
	ListRFQs(ctx context.Context, limit, offset int) ([]*entity.RFQ, error)
	GetAuditTrail(ctx context.Context, id int64) ([]*entity.AuditEntry, error)
	GetAssignments(ctx context.Context, id int64) ([]*entity.Assignment, error)
	ListRevisions(ctx context.Context, id int64) ([]*entity.RFQ, error)
	UpdateSKUCostInputs(ctx context.Context, skuID int64, inputs entity.CostInputs) (*entity.CostFigures, error)
}

type rfqServiceImpl struct {
	rfqRepo        port.RFQRepository
	skuRepo        port.SKURepository
	auditRepo      port.AuditRepository
	assignmentRepo port.AssignmentRepository
	userRepo       port.UserRepository
	calculator     port.CostCalculator
	txManager      port.TransactionManager
	catalog        *domainwf.Catalog
	logger         Logger
}

// NewRFQService creates a new RFQService
func NewRFQService(
	rfqRepo port.RFQRepository,
	skuRepo port.SKURepository,
	auditRepo port.AuditRepository,
	assignmentRepo port.AssignmentRepository,
	userRepo port.UserRepository,
	calculator port.CostCalculator,
	txManager port.TransactionManager,
	catalog *domainwf.Catalog,
	logger Logger,
) RFQService {
	return &rfqServiceImpl{
		rfqRepo:        rfqRepo,
		skuRepo:        skuRepo,
		auditRepo:      auditRepo,
		assignmentRepo: assignmentRepo,
		userRepo:       userRepo,
		calculator:     calculator,
		txManager:      txManager,
		catalog:        catalog,
		logger:         logger,
	}
}

// CreateRFQ stores a submitted RFQ, its SKUs and the first audit entry together
func (s *rfqServiceImpl) CreateRFQ(ctx context.Context, req CreateRFQRequest) (*RFQDetail, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", domainwf.ErrValidation)
	}
	for i, sku := range req.SKUs {
		if strings.TrimSpace(sku.Code) == "" {
			return nil, fmt.Errorf("%w: sku %d has no code", domainwf.ErrValidation, i)
		}
	}
	plantIDs, err := uniquePlantIDs(req.PlantIDs)
	if err != nil {
		return nil, err
	}

	manager, err := s.userRepo.GetByID(ctx, req.AccountManagerID)
	if err != nil {
		return nil, fmt.Errorf("%w: load account manager: %w", domainwf.ErrDependencyFailure, err)
	}
	if manager == nil || !manager.Active ||
		(manager.Role != domainwf.RoleAccountManager.String() && manager.Role != domainwf.RoleAdmin.String()) {
		return nil, fmt.Errorf("%w: user %d is not an active account manager", domainwf.ErrValidation, req.AccountManagerID)
	}

	requestedBy := req.RequestedBy
	if requestedBy == 0 {
		requestedBy = req.AccountManagerID
	}

	rfq := &entity.RFQ{
		Name:             req.Name,
		ClientRef:        req.ClientRef,
		AccountManagerID: req.AccountManagerID,
		StateID:          domainwf.StateSubmitted.ID(),
		Active:           true,
		VersionNo:        entity.OriginalVersionNo,
		CreatedBy:        requestedBy,
	}
	var skus []*entity.SKU

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.rfqRepo.Create(txCtx, rfq); err != nil {
			return err
		}
		if len(plantIDs) > 0 {
			if err := s.rfqRepo.AddPlants(txCtx, rfq.ID, plantIDs); err != nil {
				return err
			}
		}

		for _, in := range req.SKUs {
			sku := &entity.SKU{
				RFQID:       rfq.ID,
				Code:        in.Code,
				Description: in.Description,
				Quantity:    in.Quantity,
				CostInputs:  in.Costs,
			}
			if err := s.skuRepo.Create(txCtx, sku); err != nil {
				return err
			}
		}

		if _, err := s.calculator.RecalculateCosts(txCtx, rfq.ID, nil, domainwf.RecalcAuto); err != nil {
			return err
		}

		var err error
		if skus, err = s.skuRepo.ListByRFQ(txCtx, rfq.ID); err != nil {
			return err
		}

		return s.auditRepo.Create(txCtx, &entity.AuditEntry{
			RFQID:   rfq.ID,
			UserID:  requestedBy,
			StateID: rfq.StateID,
			Trigger: "submit",
			Comment: "RFQ submitted",
		})
	})
	if err != nil {
		s.logger.Error("Failed to create rfq", "name", req.Name, "error", err)
		if errors.Is(err, domainwf.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: create rfq: %w", domainwf.ErrDependencyFailure, err)
	}

	s.logger.Info("RFQ submitted", "rfq_id", rfq.ID, "skus", len(skus), "plants", len(plantIDs))
	return &RFQDetail{
		RFQ:       rfq,
		StateName: s.catalog.Describe(domainwf.StateSubmitted),
		PlantIDs:  plantIDs,
		SKUs:      skus,
	}, nil
}

// uniquePlantIDs drops repeats and rejects non-positive ids
func uniquePlantIDs(ids []int64) ([]int64, error) {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("%w: invalid plant id %d", domainwf.ErrValidation, id)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// GetRFQ returns an RFQ with its SKUs
func (s *rfqServiceImpl) GetRFQ(ctx context.Context, id int64) (*RFQDetail, error) {
	rfq, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	skus, err := s.skuRepo.ListByRFQ(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list skus: %w", err)
	}

	plantIDs, err := s.rfqRepo.ListPlants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	if plantIDs == nil {
		plantIDs = []int64{}
	}

	return &RFQDetail{
		RFQ:       rfq,
		StateName: s.catalog.Describe(domainwf.State(rfq.StateID)),
		PlantIDs:  plantIDs,
		SKUs:      skus,
	}, nil
}

// ListRFQs returns original RFQs, newest first
func (s *rfqServiceImpl) ListRFQs(ctx context.Context, limit, offset int) ([]*entity.RFQ, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.rfqRepo.List(ctx, limit, offset)
}

// GetAuditTrail returns the audit entries of an RFQ in commit order
func (s *rfqServiceImpl) GetAuditTrail(ctx context.Context, id int64) ([]*entity.AuditEntry, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.auditRepo.ListByRFQ(ctx, id)
}

// GetAssignments returns the assignment edges of an RFQ
func (s *rfqServiceImpl) GetAssignments(ctx context.Context, id int64) ([]*entity.Assignment, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.assignmentRepo.ListByRFQ(ctx, id)
}

// ListRevisions returns the revision snapshots of an RFQ. A revision id
// resolves to its original first.
func (s *rfqServiceImpl) ListRevisions(ctx context.Context, id int64) ([]*entity.RFQ, error) {
	rfq, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rfq.IsRevision() {
		id = *rfq.ParentRFQID
	}
	return s.rfqRepo.ListRevisions(ctx, id)
}

// UpdateSKUCostInputs edits a SKU's raw inputs and recalculates it in the
// same transaction. The RFQ's row version is bumped so a concurrent
// transition sees the edit as a conflict.
func (s *rfqServiceImpl) UpdateSKUCostInputs(ctx context.Context, skuID int64, inputs entity.CostInputs) (*entity.CostFigures, error) {
	var figures *entity.CostFigures

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		sku, err := s.skuRepo.GetByID(txCtx, skuID)
		if err != nil {
			return err
		}
		if sku == nil {
			return fmt.Errorf("%w: sku %d", domainwf.ErrNotFound, skuID)
		}

		rfq, err := s.load(txCtx, sku.RFQID)
		if err != nil {
			return err
		}
		switch {
		case rfq.IsRevision():
			return fmt.Errorf("%w: revision %d is a read-only snapshot", domainwf.ErrPreconditionFailed, rfq.ID)
		case !rfq.Active:
			return fmt.Errorf("%w: rfq %d", domainwf.ErrInactiveResource, rfq.ID)
		case domainwf.State(rfq.StateID).IsTerminal():
			return fmt.Errorf("%w: rfq %d is %s", domainwf.ErrPreconditionFailed, rfq.ID, domainwf.State(rfq.StateID))
		}

		if err := s.rfqRepo.Touch(txCtx, rfq.ID, rfq.RowVersion); err != nil {
			return err
		}
		if err := s.skuRepo.UpdateCostInputs(txCtx, skuID, inputs); err != nil {
			return err
		}

		result, err := s.calculator.RecalculateCosts(txCtx, rfq.ID, &skuID, domainwf.RecalcAuto)
		if err != nil {
			return fmt.Errorf("%w: recalculate costs: %w", domainwf.ErrDependencyFailure, err)
		}
		if len(result) == 1 {
			figures = &result[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("SKU cost inputs updated", "sku_id", skuID)
	return figures, nil
}

func (s *rfqServiceImpl) load(ctx context.Context, id int64) (*entity.RFQ, error) {
	rfq, err := s.rfqRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load rfq %d: %w", domainwf.ErrDependencyFailure, id, err)
	}
	if rfq == nil {
		return nil, fmt.Errorf("%w: rfq %d", domainwf.ErrNotFound, id)
	}
	return rfq, nil
}
