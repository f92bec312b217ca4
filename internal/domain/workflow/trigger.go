package workflow

// Trigger names a business transition
type Trigger string

const (
	TriggerApprove                 Trigger = "approve"
	TriggerReject                  Trigger = "reject"
	TriggerAssignEngineers         Trigger = "assign_engineers"
	TriggerPlantReject             Trigger = "plant_reject"
	TriggerAssignVendorEngineer    Trigger = "assign_vendor_engineer"
	TriggerAssignProcessEngineer   Trigger = "assign_process_engineer"
	TriggerSendToPlantReview       Trigger = "send_to_plant_review"
	TriggerRequestEngineerReview   Trigger = "request_engineer_review"
	TriggerReturnReview            Trigger = "return_review"
	TriggerSendToCommercial        Trigger = "send_to_commercial"
	TriggerSendToCommercialManager Trigger = "send_to_commercial_manager"
	TriggerSendToAccountManager    Trigger = "send_to_account_manager"
	TriggerManagerApprove          Trigger = "commercial_manager_approve"
	TriggerSendToClient            Trigger = "send_to_client"
	TriggerClose                   Trigger = "close"
	TriggerRequestRevision         Trigger = "request_revision"
	TriggerPause                   Trigger = "pause"
	TriggerResume                  Trigger = "resume"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
