package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/application/service"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// plannedAssignment is a resolved assignee waiting for its effect to run
type plannedAssignment struct {
	effect int
	user   *entity.User
	role   domainwf.Role
}

// transition is one attempt at applying a resolved rule. It lives for the
// duration of a single transaction.
type transition struct {
	e       *engineImpl
	ctx     context.Context
	trigger domainwf.Trigger
	cmd     domainwf.Command
	rfq     *entity.RFQ
	res     domainwf.Resolution

	auditState domainwf.State
	planned    []plannedAssignment
	assignees  []*entity.User
	notifies   []domainwf.Notify
	pending    []*entity.Notification

	result *TransitionResult
}

func newTransition(
	ctx context.Context,
	e *engineImpl,
	trigger domainwf.Trigger,
	cmd domainwf.Command,
	rfq *entity.RFQ,
	res domainwf.Resolution,
) *transition {
	return &transition{
		e:          e,
		ctx:        ctx,
		trigger:    trigger,
		cmd:        cmd,
		rfq:        rfq,
		res:        res,
		auditState: res.To,
		result: &TransitionResult{
			RFQID:         rfq.ID,
			Trigger:       trigger,
			PreviousState: res.From,
			NewState:      res.To,
			Active:        rfq.Active,
		},
	}
}

// apply writes the state change, the audit entry and the rule's effects.
// Assignees are resolved before anything is written.
func (t *transition) apply() error {
	if err := t.planAssignments(); err != nil {
		return err
	}
	if err := t.writeState(); err != nil {
		return err
	}
	if err := t.writeAudit(); err != nil {
		return err
	}

	for i, eff := range t.res.Rule.Effects {
		var err error
		switch eff := eff.(type) {
		case domainwf.CreateAssignment:
			err = t.createAssignments(i)
		case domainwf.RecalculateCosts:
			err = t.recalculate(eff.Mode)
		case domainwf.CreateRevision:
			err = t.createRevision()
		case domainwf.RecordSKUSelection:
			err = t.recordSKUSelection()
		case domainwf.Notify:
			t.notifies = append(t.notifies, eff)
		case domainwf.SetActive:
			// written together with the state
		}
		if err != nil {
			return err
		}
	}

	t.prepareNotifications()
	return nil
}

func (t *transition) planAssignments() error {
	sel := t.cmd.Selection()

	for i, eff := range t.res.Rule.Effects {
		ca, ok := eff.(domainwf.CreateAssignment)
		if !ok {
			continue
		}

		found := 0
		for _, role := range ca.Roles {
			hint, skip, err := assigneeHint(ca.Source, role, sel)
			if err != nil {
				return err
			}
			if skip {
				continue
			}

			users, err := t.e.resolver.ResolveAssignees(t.ctx, role, t.rfq.ID, hint)
			if err != nil {
				return err
			}
			for _, u := range users {
				t.planned = append(t.planned, plannedAssignment{effect: i, user: u, role: role})
			}
			found += len(users)
		}

		if found == 0 {
			return fmt.Errorf("%w: %s selects no %v", domainwf.ErrValidation, t.trigger, ca.Roles)
		}
	}
	return nil
}

// assigneeHint turns the caller's selection into a directory hint. skip
// means the role was not selected and is left out.
func assigneeHint(source domainwf.AssigneeSource, role domainwf.Role, sel domainwf.TargetSelection) (hint *port.AssigneeHint, skip bool, err error) {
	var ids []int64
	for _, a := range sel.AssigneesFor(role) {
		ids = append(ids, a.UserID)
	}

	switch source {
	case domainwf.FromPlantSelection:
		if len(sel.PlantIDs) == 0 {
			return nil, false, fmt.Errorf("%w: no plants selected", domainwf.ErrValidation)
		}
		return &port.AssigneeHint{PlantIDs: sel.PlantIDs}, false, nil
	case domainwf.FromSelectionOrDefault:
		if len(ids) == 0 {
			return nil, false, nil
		}
		return &port.AssigneeHint{UserIDs: ids}, false, nil
	default:
		if len(ids) == 0 {
			return nil, true, nil
		}
		return &port.AssigneeHint{UserIDs: ids}, false, nil
	}
}

func (t *transition) writeState() error {
	for _, eff := range t.res.Rule.Effects {
		sa, ok := eff.(domainwf.SetActive)
		if !ok {
			continue
		}
		if t.rfq.Active == sa.Active {
			return fmt.Errorf("%w: rfq %d active is already %t", domainwf.ErrPreconditionFailed, t.rfq.ID, sa.Active)
		}
		if err := t.e.repos.RFQs.CompareAndSetActive(t.ctx, t.rfq.ID, t.rfq.RowVersion, sa.Active); err != nil {
			return err
		}
		t.result.Active = sa.Active
		if sa.AuditState != 0 {
			t.auditState = sa.AuditState
		}
		return nil
	}

	return t.e.repos.RFQs.CompareAndSetState(t.ctx, t.rfq.ID, t.rfq.RowVersion, t.res.To.ID())
}

func (t *transition) writeAudit() error {
	entry := &entity.AuditEntry{
		RFQID:   t.rfq.ID,
		UserID:  t.cmd.ActingUserID,
		StateID: t.auditState.ID(),
		Trigger: t.trigger.String(),
		Comment: t.cmd.Comment,
	}
	if err := t.e.repos.Audit.Create(t.ctx, entry); err != nil {
		return err
	}
	t.result.AuditEntryID = entry.ID
	return nil
}

func (t *transition) createAssignments(effect int) error {
	for _, p := range t.planned {
		if p.effect != effect {
			continue
		}

		a := &entity.Assignment{
			RFQID:          t.rfq.ID,
			AssignedToUser: p.user.ID,
			AssignedToRole: p.role.String(),
			AssignedByUser: t.cmd.ActingUserID,
			AssignedByRole: t.cmd.ActingRole.String(),
			PlantID:        p.user.PlantID,
			Comment:        t.cmd.Comment,
			Status:         entity.AssignmentStatusActive,
		}
		if err := t.e.repos.Assignments.Create(t.ctx, a); err != nil {
			return err
		}

		t.result.AssignmentIDs = append(t.result.AssignmentIDs, a.ID)
		t.assignees = append(t.assignees, p.user)
	}
	return nil
}

func (t *transition) recalculate(mode domainwf.RecalcMode) error {
	ctx, cancel := context.WithTimeout(t.ctx, t.e.recalcTimeout)
	defer cancel()

	figures, err := t.e.calculator.RecalculateCosts(ctx, t.rfq.ID, nil, mode)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w: cost recalculation: %w", domainwf.ErrDependencyFailure, domainwf.ErrTimeout, err)
		}
		return fmt.Errorf("%w: cost recalculation: %w", domainwf.ErrDependencyFailure, err)
	}

	t.result.Costs = figures
	return nil
}

// createRevision snapshots the RFQ as it was shown to the client, together
// with a deep copy of its SKUs, as the next version of its lineage
func (t *transition) createRevision() error {
	maxVersion, err := t.e.repos.RFQs.MaxVersionNo(t.ctx, t.rfq.ID)
	if err != nil {
		return err
	}

	parentID := t.rfq.ID
	revision := &entity.RFQ{
		Name:             t.rfq.Name,
		ClientRef:        t.rfq.ClientRef,
		AccountManagerID: t.rfq.AccountManagerID,
		StateID:          t.res.From.ID(),
		Active:           false,
		VersionNo:        maxVersion + 1,
		ParentRFQID:      &parentID,
		CreatedBy:        t.cmd.ActingUserID,
	}
	if err := t.e.repos.RFQs.CreateRevision(t.ctx, revision); err != nil {
		return err
	}

	skus, err := t.e.repos.SKUs.ListByRFQ(t.ctx, t.rfq.ID)
	if err != nil {
		return err
	}
	for _, sku := range skus {
		if err := t.e.repos.SKUs.Create(t.ctx, copySKU(sku, revision.ID)); err != nil {
			return err
		}
	}

	t.result.RevisionID = revision.ID
	t.result.RevisionVersionNo = revision.VersionNo
	return nil
}

func copySKU(src *entity.SKU, rfqID int64) *entity.SKU {
	dst := *src
	dst.ID = 0
	dst.RFQID = rfqID
	dst.YieldPercent = copyFloat(src.YieldPercent)
	dst.FactoryOverheadPerc = copyFloat(src.FactoryOverheadPerc)
	if src.ClientSelected != nil {
		v := *src.ClientSelected
		dst.ClientSelected = &v
	}
	return &dst
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// recordSKUSelection stores the client's choice for every SKU. SKUs left
// out of the selection are recorded as not selected.
func (t *transition) recordSKUSelection() error {
	skus, err := t.e.repos.SKUs.ListByRFQ(t.ctx, t.rfq.ID)
	if err != nil {
		return err
	}

	selections := t.cmd.Selection().SKUSelections
	if len(skus) > 0 && len(selections) == 0 {
		return fmt.Errorf("%w: %s requires the client's SKU selection", domainwf.ErrValidation, t.trigger)
	}

	owned := make(map[int64]bool, len(skus))
	for _, sku := range skus {
		owned[sku.ID] = true
	}
	chosen := make(map[int64]bool, len(selections))
	for _, s := range selections {
		if !owned[s.SKUID] {
			return fmt.Errorf("%w: sku %d does not belong to rfq %d", domainwf.ErrValidation, s.SKUID, t.rfq.ID)
		}
		chosen[s.SKUID] = s.Selected
	}

	for _, sku := range skus {
		if err := t.e.repos.SKUs.SetClientSelected(t.ctx, sku.ID, chosen[sku.ID]); err != nil {
			return err
		}
	}
	return nil
}

// prepareNotifications records a PENDING notification per recipient.
// Recipient and template problems become warnings, never errors.
func (t *transition) prepareNotifications() {
	vars := map[string]string{
		"state":      t.e.catalog.Describe(t.res.To),
		"actor_role": t.cmd.ActingRole.String(),
		"comment":    t.cmd.Comment,
		"transition": t.res.Rule.Name,
	}

	for _, n := range t.notifies {
		recipients, err := t.recipients(n.Recipients)
		if err != nil {
			t.warn("no recipients for %s: %v", n.Template, err)
			continue
		}

		seen := make(map[int64]bool, len(recipients))
		for _, u := range recipients {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true

			record, err := t.e.notifications.Prepare(t.ctx, service.Message{
				RFQ:          t.rfq,
				AuditEntryID: t.result.AuditEntryID,
				Recipient:    u,
				Template:     n.Template,
				Vars:         vars,
			})
			if err != nil {
				t.warn("notification %s for user %d not prepared: %v", n.Template, u.ID, err)
				continue
			}
			t.pending = append(t.pending, record)
		}
	}
}

func (t *transition) recipients(r domainwf.Recipients) ([]*entity.User, error) {
	switch r {
	case domainwf.NewAssignees:
		return t.assignees, nil
	case domainwf.AccountManager:
		u, err := t.e.resolver.AccountManager(t.ctx, t.rfq.ID)
		if err != nil {
			return nil, err
		}
		return []*entity.User{u}, nil
	case domainwf.AssignedPlantHeads:
		return t.e.resolver.AssignedUsers(t.ctx, t.rfq.ID, domainwf.RolePlantHead)
	case domainwf.AssignedReviewRole:
		return t.e.resolver.AssignedUsers(t.ctx, t.rfq.ID, t.cmd.Selection().ReviewRole)
	default:
		return nil, fmt.Errorf("unknown recipient set %d", r)
	}
}

func (t *transition) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	t.result.Warnings = append(t.result.Warnings, msg)
	t.e.logger.Info("Transition warning", "trigger", t.trigger, "rfq_id", t.rfq.ID, "warning", msg)
}
