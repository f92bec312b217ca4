package workflow

// Effect is a side effect attached to a transition rule. Recording the
// comment and the resulting state happens for every transition; effects
// are applied on top of that, in declaration order.
type Effect interface {
	effect()
}

// AssigneeSource says where CreateAssignment finds its users
type AssigneeSource int

const (
	// FromSelection uses the explicitly selected assignees
	FromSelection AssigneeSource = iota
	// FromPlantSelection uses the plant heads of the selected plants
	FromPlantSelection
	// FromSelectionOrDefault falls back to the directory default for the role
	FromSelectionOrDefault
)

// RecalcMode controls how derived cost figures are recomputed
type RecalcMode int

const (
	// RecalcAuto recomputes every derived figure
	RecalcAuto RecalcMode = iota
	// RecalcOverheadIfPresent recomputes factory overhead only for SKUs that carry an overhead percentage
	RecalcOverheadIfPresent
)

func (m RecalcMode) String() string {
	if m == RecalcOverheadIfPresent {
		return "overhead_if_present"
	}
	return "auto"
}

// Recipients names how notification recipients are resolved
type Recipients int

const (
	// NewAssignees notifies every user assigned by this transition
	NewAssignees Recipients = iota
	// AccountManager notifies the RFQ's account manager
	AccountManager
	// AssignedPlantHeads notifies the plant heads assigned to the RFQ
	AssignedPlantHeads
	// AssignedReviewRole notifies the users assigned to the selected review role
	AssignedReviewRole
)

// CreateAssignment appends one assignment edge per resolved user
type CreateAssignment struct {
	Roles  []Role
	Source AssigneeSource
}

// RecalculateCosts refreshes the RFQ's derived cost figures before commit
type RecalculateCosts struct {
	Mode RecalcMode
}

// Notify sends a templated message to the resolved recipients after commit
type Notify struct {
	Recipients Recipients
	Template   string
}

// CreateRevision snapshots the RFQ and its SKUs as the next version
type CreateRevision struct{}

// RecordSKUSelection stores the client's per-SKU choice
type RecordSKUSelection struct{}

// SetActive flips the active flag without changing state. AuditState, when
// non-zero, is written to the audit entry instead of the current state.
type SetActive struct {
	Active     bool
	AuditState State
}

func (CreateAssignment) effect()   {}
func (RecalculateCosts) effect()   {}
func (Notify) effect()             {}
func (CreateRevision) effect()     {}
func (RecordSKUSelection) effect() {}
func (SetActive) effect()          {}

// Template tags used by Notify effects
const (
	TemplateAssigned            = "rfq_assigned"
	TemplatePlantRejected       = "rfq_rejected_by_plant"
	TemplateReadyForPlantReview = "rfq_ready_for_plant_review"
	TemplateReviewRequested     = "rfq_review_requested"
	TemplateAccountMgrReview    = "rfq_account_manager_review"
)
