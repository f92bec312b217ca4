package workflow

import (
	"context"

	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

var (
	accountManagers = []domainwf.Role{domainwf.RoleAccountManager, domainwf.RoleAdmin}
	plantHeads      = []domainwf.Role{domainwf.RolePlantHead}
	commercialTeam  = []domainwf.Role{domainwf.RoleCommercialTeam}
)

func notify(recipients domainwf.Recipients, template string) domainwf.Notify {
	return domainwf.Notify{Recipients: recipients, Template: template}
}

func selectsRole(role domainwf.Role) domainwf.GuardFunc {
	return func(_ context.Context, cmd domainwf.Command) bool {
		return cmd.Selection().SelectsRole(role)
	}
}

func reviewRole(role domainwf.Role) domainwf.GuardFunc {
	return func(_ context.Context, cmd domainwf.Command) bool {
		return cmd.Selection().ReviewRole == role
	}
}

func revisionRoute(route domainwf.RevisionRoute) domainwf.GuardFunc {
	return func(_ context.Context, cmd domainwf.Command) bool {
		return cmd.Selection().RevisionRoute == route
	}
}

// NewRFQTable builds the transition table of the RFQ lifecycle
func NewRFQTable() *domainwf.Table {
	b := domainwf.NewBuilder()

	b.Define(domainwf.Rule{
		Trigger:        domainwf.TriggerApprove,
		Name:           "Approve and assign to plants",
		Roles:          accountManagers,
		RequiresTarget: true,
		Effects: []domainwf.Effect{
			domainwf.CreateAssignment{Roles: plantHeads, Source: domainwf.FromPlantSelection},
			notify(domainwf.NewAssignees, domainwf.TemplateAssigned),
		},
	}).Define(domainwf.Rule{
		Trigger:         domainwf.TriggerReject,
		Name:            "Reject",
		Roles:           accountManagers,
		RequiresComment: true,
	}).Define(domainwf.Rule{
		Trigger:        domainwf.TriggerAssignEngineers,
		Name:           "Assign engineers",
		Roles:          plantHeads,
		RequiresTarget: true,
		Effects: []domainwf.Effect{
			domainwf.CreateAssignment{Roles: domainwf.EngineerRoles, Source: domainwf.FromSelection},
			notify(domainwf.NewAssignees, domainwf.TemplateAssigned),
		},
	}).Define(domainwf.Rule{
		Trigger:         domainwf.TriggerPlantReject,
		Name:            "Plant rejects",
		Roles:           plantHeads,
		RequiresComment: true,
		Effects: []domainwf.Effect{
			notify(domainwf.AccountManager, domainwf.TemplatePlantRejected),
		},
	}).Define(domainwf.Rule{
		Trigger:        domainwf.TriggerAssignVendorEngineer,
		Name:           "Assign vendor development engineer",
		Roles:          []domainwf.Role{domainwf.RoleNPDEngineer},
		RequiresTarget: true,
		Effects: []domainwf.Effect{
			domainwf.CreateAssignment{Roles: []domainwf.Role{domainwf.RoleVendorEngineer}, Source: domainwf.FromSelection},
			notify(domainwf.NewAssignees, domainwf.TemplateAssigned),
		},
	}).Define(domainwf.Rule{
		Trigger:        domainwf.TriggerAssignProcessEngineer,
		Name:           "Assign process engineer",
		Roles:          []domainwf.Role{domainwf.RoleVendorEngineer},
		RequiresTarget: true,
		Effects: []domainwf.Effect{
			domainwf.CreateAssignment{Roles: []domainwf.Role{domainwf.RoleProcessEngineer}, Source: domainwf.FromSelection},
			domainwf.RecalculateCosts{Mode: domainwf.RecalcAuto},
			notify(domainwf.NewAssignees, domainwf.TemplateAssigned),
		},
	}).Define(domainwf.Rule{
		Trigger: domainwf.TriggerSendToPlantReview,
		Name:    "Send to plant head for review",
		Roles:   []domainwf.Role{domainwf.RoleProcessEngineer},
		Effects: []domainwf.Effect{
			domainwf.RecalculateCosts{Mode: domainwf.RecalcOverheadIfPresent},
			notify(domainwf.AssignedPlantHeads, domainwf.TemplateReadyForPlantReview),
		},
	}).Define(domainwf.Rule{
		Trigger:        domainwf.TriggerRequestEngineerReview,
		Name:           "Request engineer review",
		Roles:          plantHeads,
		RequiresTarget: true,
		Effects: []domainwf.Effect{
			notify(domainwf.AssignedReviewRole, domainwf.TemplateReviewRequested),
		},
	}).Define(domainwf.Rule{
		Trigger: domainwf.TriggerReturnReview,
		Name:    "Return review to plant head",
		Roles:   domainwf.EngineerRoles,
		Effects: []domainwf.Effect{
			domainwf.RecalculateCosts{Mode: domainwf.RecalcOverheadIfPresent},
			notify(domainwf.AssignedPlantHeads, domainwf.TemplateReadyForPlantReview),
		},
	}).Define(domainwf.Rule{
		Trigger:        domainwf.TriggerSendToCommercial,
		Name:           "Send to commercial team",
		Roles:          plantHeads,
		RequiresTarget: true,
		Effects: []domainwf.Effect{
			domainwf.CreateAssignment{Roles: commercialTeam, Source: domainwf.FromSelection},
			notify(domainwf.NewAssignees, domainwf.TemplateAssigned),
		},
	}).Define(domainwf.Rule{
		Trigger: domainwf.TriggerSendToCommercialManager,
		Name:    "Send to commercial manager",
		Roles:   commercialTeam,
		Effects: []domainwf.Effect{
			domainwf.CreateAssignment{
				Roles:  []domainwf.Role{domainwf.RoleCommercialManager},
				Source: domainwf.FromSelectionOrDefault,
			},
			notify(domainwf.NewAssignees, domainwf.TemplateAssigned),
		},
	}).Define(domainwf.Rule{
		Trigger: domainwf.TriggerSendToAccountManager,
		Name:    "Send back to account manager",
		Roles:   commercialTeam,
		Effects: []domainwf.Effect{
			notify(domainwf.AccountManager, domainwf.TemplateAccountMgrReview),
		},
	}).Define(domainwf.Rule{
		Trigger: domainwf.TriggerManagerApprove,
		Name:    "Commercial manager approves",
		Roles:   []domainwf.Role{domainwf.RoleCommercialManager},
		Effects: []domainwf.Effect{
			notify(domainwf.AccountManager, domainwf.TemplateAccountMgrReview),
		},
	}).Define(domainwf.Rule{
		Trigger: domainwf.TriggerSendToClient,
		Name:    "Send to client",
		Roles:   accountManagers,
	}).Define(domainwf.Rule{
		Trigger: domainwf.TriggerClose,
		Name:    "Close",
		Roles:   accountManagers,
		Effects: []domainwf.Effect{
			domainwf.RecordSKUSelection{},
		},
	}).Define(domainwf.Rule{
		Trigger:         domainwf.TriggerRequestRevision,
		Name:            "Request revision",
		Roles:           accountManagers,
		RequiresComment: true,
		RequiresTarget:  true,
		Effects: []domainwf.Effect{
			domainwf.CreateRevision{},
		},
	}).Define(domainwf.Rule{
		Trigger:         domainwf.TriggerPause,
		Name:            "Pause",
		Roles:           append(append([]domainwf.Role{}, accountManagers...), domainwf.RolePlantHead),
		RequiresComment: true,
		KeepsState:      true,
		Effects: []domainwf.Effect{
			domainwf.SetActive{Active: false, AuditState: domainwf.StatePaused},
		},
	}).Define(domainwf.Rule{
		Trigger:    domainwf.TriggerResume,
		Name:       "Resume",
		Roles:      append(append([]domainwf.Role{}, accountManagers...), domainwf.RolePlantHead),
		KeepsState: true,
		Effects: []domainwf.Effect{
			domainwf.SetActive{Active: true},
		},
	})

	// Submitted
	b.Configure(domainwf.StateSubmitted).
		Permit(domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// Approved: the first selected engineer role decides the state
	b.Configure(domainwf.StateApproved).
		PermitIf(domainwf.TriggerAssignEngineers, domainwf.StateSentToNPD, selectsRole(domainwf.RoleNPDEngineer)).
		PermitIf(domainwf.TriggerAssignEngineers, domainwf.StateSentToVDE, selectsRole(domainwf.RoleVendorEngineer)).
		PermitIf(domainwf.TriggerAssignEngineers, domainwf.StateSentToPE, selectsRole(domainwf.RoleProcessEngineer)).
		Permit(domainwf.TriggerPlantReject, domainwf.StateRejectedByPlant)

	// Engineering fan-out. Parallel assignees act from an earlier state
	// only when they hold an edge for their role.
	b.Configure(domainwf.StateSentToNPD).
		Permit(domainwf.TriggerAssignVendorEngineer, domainwf.StateSentToVDE).
		PermitAssigned(domainwf.TriggerAssignProcessEngineer, domainwf.StateSentToPE).
		PermitAssigned(domainwf.TriggerSendToPlantReview, domainwf.StateReviewByPlant)

	b.Configure(domainwf.StateSentToVDE).
		Permit(domainwf.TriggerAssignProcessEngineer, domainwf.StateSentToPE).
		PermitAssigned(domainwf.TriggerSendToPlantReview, domainwf.StateReviewByPlant)

	b.Configure(domainwf.StateSentToPE).
		Permit(domainwf.TriggerSendToPlantReview, domainwf.StateReviewByPlant)

	// Plant review loop
	b.Configure(domainwf.StateReviewByPlant).
		PermitIf(domainwf.TriggerRequestEngineerReview, domainwf.StateReviewNPD, reviewRole(domainwf.RoleNPDEngineer)).
		PermitIf(domainwf.TriggerRequestEngineerReview, domainwf.StateReviewVDE, reviewRole(domainwf.RoleVendorEngineer)).
		PermitIf(domainwf.TriggerRequestEngineerReview, domainwf.StateReviewPE, reviewRole(domainwf.RoleProcessEngineer)).
		Permit(domainwf.TriggerSendToCommercial, domainwf.StateSentToCommercial)

	b.Configure(domainwf.StateReviewNPD).
		PermitFor(domainwf.TriggerReturnReview, domainwf.StateReviewByPlant, domainwf.RoleNPDEngineer)
	b.Configure(domainwf.StateReviewVDE).
		PermitFor(domainwf.TriggerReturnReview, domainwf.StateReviewByPlant, domainwf.RoleVendorEngineer)
	b.Configure(domainwf.StateReviewPE).
		PermitFor(domainwf.TriggerReturnReview, domainwf.StateReviewByPlant, domainwf.RoleProcessEngineer)

	// Commercial
	for _, s := range []domainwf.State{
		domainwf.StateSentToCommercial,
		domainwf.StateSentToCommercialRevision,
		domainwf.StateRevisionByCommercial,
	} {
		b.Configure(s).
			Permit(domainwf.TriggerSendToCommercialManager, domainwf.StateSentToCommercialMgr).
			Permit(domainwf.TriggerSendToAccountManager, domainwf.StateSentToAccountMgrReview)
	}

	b.Configure(domainwf.StateSentToCommercialMgr).
		Permit(domainwf.TriggerManagerApprove, domainwf.StateSentToAccountMgrReview)

	// Client
	b.Configure(domainwf.StateSentToAccountMgrReview).
		Permit(domainwf.TriggerSendToClient, domainwf.StateSentToClient)

	b.Configure(domainwf.StateSentToClient).
		Permit(domainwf.TriggerClose, domainwf.StateClosed).
		PermitIf(domainwf.TriggerRequestRevision, domainwf.StateRevisionByPlant, revisionRoute(domainwf.RouteViaPlant)).
		PermitIf(domainwf.TriggerRequestRevision, domainwf.StateRevisionByCommercial, revisionRoute(domainwf.RouteViaCommercial))

	// Revision re-review
	b.Configure(domainwf.StateRevisionByPlant).
		Permit(domainwf.TriggerSendToCommercial, domainwf.StateSentToCommercialRevision)

	// Rejected, RejectedByPlant and Closed are terminal

	return b.Build()
}
