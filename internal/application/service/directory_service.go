package service

import (
	"context"
	"fmt"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// DirectoryService resolves who should act on an RFQ
type DirectoryService struct {
	rfqRepo        port.RFQRepository
	assignmentRepo port.AssignmentRepository
	userRepo       port.UserRepository
	plantRepo      port.PlantRepository
	logger         Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(
	rfqRepo port.RFQRepository,
	assignmentRepo port.AssignmentRepository,
	userRepo port.UserRepository,
	plantRepo port.PlantRepository,
	logger Logger,
) *DirectoryService {
	return &DirectoryService{
		rfqRepo:        rfqRepo,
		assignmentRepo: assignmentRepo,
		userRepo:       userRepo,
		plantRepo:      plantRepo,
		logger:         logger,
	}
}

// ResolveAssignees implements port.AssigneeResolver
func (s *DirectoryService) ResolveAssignees(ctx context.Context, role domainwf.Role, rfqID int64, hint *port.AssigneeHint) ([]*entity.User, error) {
	switch {
	case hint != nil && len(hint.UserIDs) > 0:
		return s.resolveSelected(ctx, role, rfqID, hint.UserIDs)
	case hint != nil && len(hint.PlantIDs) > 0:
		return s.resolvePlantHeads(ctx, role, hint.PlantIDs)
	default:
		u, err := s.userRepo.GetDefault(ctx, role.String())
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("%w: no default %s configured", domainwf.ErrValidation, role)
		}
		return []*entity.User{u}, nil
	}
}

func (s *DirectoryService) resolveSelected(ctx context.Context, role domainwf.Role, rfqID int64, userIDs []int64) ([]*entity.User, error) {
	var plants map[int64]bool
	if role.IsEngineer() {
		var err error
		if plants, err = s.assignedPlants(ctx, rfqID); err != nil {
			return nil, err
		}
	}

	seen := make(map[int64]bool, len(userIDs))
	users := make([]*entity.User, 0, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		u, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil || !u.Active {
			return nil, fmt.Errorf("%w: user %d is not an active user", domainwf.ErrValidation, id)
		}
		if u.Role != role.String() {
			return nil, fmt.Errorf("%w: user %d is %s, not %s", domainwf.ErrValidation, id, u.Role, role)
		}
		// Engineers bound to a plant may only work RFQs assigned to that plant
		if len(plants) > 0 && u.PlantID != nil && !plants[*u.PlantID] {
			return nil, fmt.Errorf("%w: user %d belongs to a plant not assigned to rfq %d", domainwf.ErrValidation, id, rfqID)
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *DirectoryService) resolvePlantHeads(ctx context.Context, role domainwf.Role, plantIDs []int64) ([]*entity.User, error) {
	if role != domainwf.RolePlantHead {
		return nil, fmt.Errorf("%w: plants select plant heads, not %s", domainwf.ErrValidation, role)
	}

	seen := make(map[int64]bool)
	var users []*entity.User
	for _, plantID := range plantIDs {
		plant, err := s.plantRepo.GetByID(ctx, plantID)
		if err != nil {
			return nil, err
		}
		if plant == nil {
			return nil, fmt.Errorf("%w: plant %d not found", domainwf.ErrValidation, plantID)
		}

		heads, err := s.userRepo.ListByPlantAndRole(ctx, plantID, domainwf.RolePlantHead.String())
		if err != nil {
			return nil, err
		}
		if len(heads) == 0 {
			return nil, fmt.Errorf("%w: plant %s has no plant head", domainwf.ErrValidation, plant.Code)
		}
		for _, h := range heads {
			if !seen[h.ID] {
				seen[h.ID] = true
				users = append(users, h)
			}
		}
	}
	return users, nil
}

// assignedPlants returns the plants whose heads were assigned to the RFQ
func (s *DirectoryService) assignedPlants(ctx context.Context, rfqID int64) (map[int64]bool, error) {
	edges, err := s.assignmentRepo.ListByRFQAndRole(ctx, rfqID, domainwf.RolePlantHead.String())
	if err != nil {
		return nil, err
	}
	plants := make(map[int64]bool, len(edges))
	for _, e := range edges {
		if e.PlantID != nil {
			plants[*e.PlantID] = true
		}
	}
	return plants, nil
}

// AssignedUsers implements port.AssigneeResolver
func (s *DirectoryService) AssignedUsers(ctx context.Context, rfqID int64, role domainwf.Role) ([]*entity.User, error) {
	edges, err := s.assignmentRepo.ListByRFQAndRole(ctx, rfqID, role.String())
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(edges))
	var users []*entity.User
	for _, e := range edges {
		if seen[e.AssignedToUser] {
			continue
		}
		seen[e.AssignedToUser] = true

		u, err := s.userRepo.GetByID(ctx, e.AssignedToUser)
		if err != nil {
			return nil, err
		}
		if u == nil {
			s.logger.Error("Assigned user missing from directory", "rfq_id", rfqID, "user_id", e.AssignedToUser)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// AccountManager implements port.AssigneeResolver
func (s *DirectoryService) AccountManager(ctx context.Context, rfqID int64) (*entity.User, error) {
	rfq, err := s.rfqRepo.GetByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq == nil {
		return nil, fmt.Errorf("%w: rfq %d", domainwf.ErrNotFound, rfqID)
	}

	u, err := s.userRepo.GetByID(ctx, rfq.AccountManagerID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: account manager %d of rfq %d", domainwf.ErrNotFound, rfq.AccountManagerID, rfqID)
	}
	return u, nil
}

// Verify interface compliance
var _ port.AssigneeResolver = (*DirectoryService)(nil)
