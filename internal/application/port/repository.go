package port

import (
	"context"
	"time"

	"github.com/garyjia/rfq-workflow/internal/domain/entity"
)

// RFQRepository defines persistence operations for RFQ rows.
// Get methods return nil, nil when the row does not exist.
type RFQRepository interface {
	Create(ctx context.Context, rfq *entity.RFQ) error
	GetByID(ctx context.Context, id int64) (*entity.RFQ, error)
	List(ctx context.Context, limit, offset int) ([]*entity.RFQ, error)

	// CompareAndSetState moves the RFQ to stateID only if its row version
	// still equals expectedRowVersion, and bumps the row version.
	// Returns ErrConcurrencyConflict otherwise.
	CompareAndSetState(ctx context.Context, id, expectedRowVersion, stateID int64) error

	// CompareAndSetActive flips the active flag under the same check
	CompareAndSetActive(ctx context.Context, id, expectedRowVersion int64, active bool) error

	// Touch bumps the row version under the same check without other changes
	Touch(ctx context.Context, id, expectedRowVersion int64) error

	// CreateRevision inserts a snapshot row. A duplicate (parent, version)
	// pair yields ErrConcurrencyConflict.
	CreateRevision(ctx context.Context, revision *entity.RFQ) error
	MaxVersionNo(ctx context.Context, parentID int64) (int, error)
	ListRevisions(ctx context.Context, parentID int64) ([]*entity.RFQ, error)

	// AddPlants records the plants a requester asked to quote from
	AddPlants(ctx context.Context, rfqID int64, plantIDs []int64) error
	ListPlants(ctx context.Context, rfqID int64) ([]int64, error)
}

// SKURepository defines persistence operations for SKUs and their cost figures
type SKURepository interface {
	Create(ctx context.Context, sku *entity.SKU) error
	GetByID(ctx context.Context, id int64) (*entity.SKU, error)
	ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.SKU, error)
	UpdateCostInputs(ctx context.Context, id int64, inputs entity.CostInputs) error
	UpdateCostFigures(ctx context.Context, figures entity.CostFigures) error
	SetClientSelected(ctx context.Context, id int64, selected bool) error
}

// AssignmentRepository defines persistence operations for assignment edges.
// Edges are append-only.
type AssignmentRepository interface {
	Create(ctx context.Context, a *entity.Assignment) error
	ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.Assignment, error)
	ListByRFQAndRole(ctx context.Context, rfqID int64, role string) ([]*entity.Assignment, error)
	Exists(ctx context.Context, rfqID, userID int64, role string) (bool, error)
}

// AuditRepository defines persistence operations for the audit trail
type AuditRepository interface {
	Create(ctx context.Context, entry *entity.AuditEntry) error
	ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.AuditEntry, error)
}

// NotificationRepository defines persistence operations for notification records
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)
	ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.Notification, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error

	// ListRetryable returns FAILED rows, and PENDING rows older than
	// pendingBefore, that have fewer than maxAttempts attempts
	ListRetryable(ctx context.Context, maxAttempts int, pendingBefore time.Time, limit int) ([]*entity.Notification, error)
}

// TemplateRepository defines read access to email templates
type TemplateRepository interface {
	GetByTag(ctx context.Context, tag string) (*entity.EmailTemplate, error)
}

// UserRepository defines read access to the user directory
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	ListByRole(ctx context.Context, role string) ([]*entity.User, error)
	ListByPlantAndRole(ctx context.Context, plantID int64, role string) ([]*entity.User, error)
	GetDefault(ctx context.Context, role string) (*entity.User, error)
}

// PlantRepository defines read access to plants
type PlantRepository interface {
	Create(ctx context.Context, p *entity.Plant) error
	GetByID(ctx context.Context, id int64) (*entity.Plant, error)
	List(ctx context.Context) ([]*entity.Plant, error)
}

// StateRepository reads the states lookup table
type StateRepository interface {
	List(ctx context.Context) ([]*entity.StateDefinition, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
