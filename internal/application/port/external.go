package port

import (
	"context"

	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// CostCalculator recomputes derived cost figures from stored raw inputs.
// A nil skuID recalculates every SKU of the RFQ. Idempotent.
type CostCalculator interface {
	RecalculateCosts(ctx context.Context, rfqID int64, skuID *int64, mode domainwf.RecalcMode) ([]entity.CostFigures, error)
}

// AssigneeHint narrows directory resolution to an explicit selection
type AssigneeHint struct {
	UserIDs  []int64
	PlantIDs []int64
}

// AssigneeResolver is the assignment directory
type AssigneeResolver interface {
	// ResolveAssignees returns the users that should act as role on the RFQ.
	// Selected users are validated as eligible; with no hint the directory
	// default for the role is returned.
	ResolveAssignees(ctx context.Context, role domainwf.Role, rfqID int64, hint *AssigneeHint) ([]*entity.User, error)

	// AssignedUsers returns the users holding an assignment edge for role on the RFQ
	AssignedUsers(ctx context.Context, rfqID int64, role domainwf.Role) ([]*entity.User, error)

	// AccountManager returns the account manager who owns the RFQ
	AccountManager(ctx context.Context, rfqID int64) (*entity.User, error)
}

// Notifier delivers a rendered message
type Notifier interface {
	Notify(ctx context.Context, toEmail, subject, body string) error
}

// TemplateLoader loads email templates by tag
type TemplateLoader interface {
	LoadEmailTemplate(ctx context.Context, tag string) (*entity.EmailTemplate, error)
}
