package workflow

import (
	"context"

	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// Approve assigns the RFQ to the plant heads of the selected plants
func (e *engineImpl) Approve(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerApprove, cmd)
}

// Reject closes a submitted RFQ with a comment
func (e *engineImpl) Reject(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerReject, cmd)
}

// AssignEngineers fans the RFQ out to the selected NPD, vendor and process engineers
func (e *engineImpl) AssignEngineers(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerAssignEngineers, cmd)
}

func (e *engineImpl) PlantReject(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerPlantReject, cmd)
}

func (e *engineImpl) AssignVendorEngineer(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerAssignVendorEngineer, cmd)
}

func (e *engineImpl) AssignProcessEngineer(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerAssignProcessEngineer, cmd)
}

func (e *engineImpl) SendToPlantReview(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerSendToPlantReview, cmd)
}

// RequestEngineerReview sends the RFQ back to the engineer role named by the target's review role
func (e *engineImpl) RequestEngineerReview(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerRequestEngineerReview, cmd)
}

func (e *engineImpl) ReturnReview(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerReturnReview, cmd)
}

func (e *engineImpl) SendToCommercial(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerSendToCommercial, cmd)
}

func (e *engineImpl) SendToCommercialManager(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerSendToCommercialManager, cmd)
}

func (e *engineImpl) SendToAccountManager(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerSendToAccountManager, cmd)
}

func (e *engineImpl) CommercialManagerApprove(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerManagerApprove, cmd)
}

func (e *engineImpl) SendToClient(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerSendToClient, cmd)
}

// Close records the client's SKU selection and closes the RFQ
func (e *engineImpl) Close(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerClose, cmd)
}

// RequestRevision snapshots the RFQ as the next version and routes the
// original back through plant or commercial review
func (e *engineImpl) RequestRevision(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerRequestRevision, cmd)
}

func (e *engineImpl) Pause(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerPause, cmd)
}

func (e *engineImpl) Resume(ctx context.Context, cmd domainwf.Command) (*TransitionResult, error) {
	return e.Fire(ctx, domainwf.TriggerResume, cmd)
}
