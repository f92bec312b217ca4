package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// WorkflowEngine drives RFQs through the approval and assignment workflow.
// Every transition is atomic: the state change, audit entry, assignment
// edges, cost figures, revision snapshot and pending notification records
// commit together or not at all. Delivery happens after commit.
type WorkflowEngine interface {
	// Fire executes any transition by trigger
	Fire(ctx context.Context, trigger domainwf.Trigger, cmd domainwf.Command) (*TransitionResult, error)

	Approve(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	Reject(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	AssignEngineers(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	PlantReject(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	AssignVendorEngineer(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	AssignProcessEngineer(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	SendToPlantReview(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	RequestEngineerReview(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	ReturnReview(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	SendToCommercial(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	SendToCommercialManager(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	SendToAccountManager(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	CommercialManagerApprove(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	SendToClient(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	Close(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	RequestRevision(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	Pause(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)
	Resume(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error)

	// PermittedTriggers lists what the role may fire on the RFQ right now.
	// Guards and assignment checks are not evaluated.
	PermittedTriggers(ctx context.Context, rfqID int64, role domainwf.Role) ([]domainwf.Trigger, error)

	// GetCurrentState returns the state of the RFQ a request would act on
	GetCurrentState(ctx context.Context, rfqID int64) (domainwf.State, error)
}

// NotificationResult is the delivery outcome for one recipient
type NotificationResult struct {
	NotificationID  int64  `json:"notification_id"`
	RecipientUserID int64  `json:"recipient_user_id"`
	Email           string `json:"email"`
	Template        string `json:"template"`
	Delivered       bool   `json:"delivered"`
	Error           string `json:"error,omitempty"`
}

// TransitionResult describes a committed transition
type TransitionResult struct {
	RFQID         int64            `json:"rfq_id"`
	Trigger       domainwf.Trigger `json:"trigger"`
	PreviousState domainwf.State   `json:"previous_state"`
	NewState      domainwf.State   `json:"new_state"`
	Active        bool             `json:"active"`
	AuditEntryID  int64            `json:"audit_entry_id"`
	AssignmentIDs []int64          `json:"assignment_ids,omitempty"`

	Notifications []NotificationResult `json:"notifications,omitempty"`

	RevisionID        int64 `json:"revision_id,omitempty"`
	RevisionVersionNo int   `json:"revision_version_no,omitempty"`

	Costs []entity.CostFigures `json:"costs,omitempty"`

	// Warnings are non-fatal problems, such as a recipient that could not be resolved
	Warnings []string `json:"warnings,omitempty"`
}

// NotificationError returns an ErrNotificationFailure wrap when any
// delivery failed. The transition itself stays committed.
func (r *TransitionResult) NotificationError() error {
	failed := 0
	for _, n := range r.Notifications {
		if !n.Delivered {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d notifications not delivered",
		domainwf.ErrNotificationFailure, failed, len(r.Notifications))
}
