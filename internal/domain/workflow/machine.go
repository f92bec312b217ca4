package workflow

import (
	"context"
	"fmt"
	"sort"
)

// Resolution is the outcome of checking a command against the table
type Resolution struct {
	Rule Rule
	From State
	To   State

	// RequiresAssignment means the acting user must hold an assignment
	// edge for their role on the RFQ
	RequiresAssignment bool
}

// Table is an immutable transition table. It holds no per-RFQ state and is
// safe for concurrent use.
type Table struct {
	rules          map[Trigger]Rule
	configurations map[State]map[Trigger][]edge
}

// Rule returns the rule for a trigger
func (t *Table) Rule(trigger Trigger) (Rule, bool) {
	rule, ok := t.rules[trigger]
	return rule, ok
}

// Triggers returns all triggers that have a rule, sorted
func (t *Table) Triggers() []Trigger {
	triggers := make([]Trigger, 0, len(t.rules))
	for trigger := range t.rules {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// Sources returns the states the trigger may be fired from
func (t *Table) Sources(trigger Trigger) []State {
	var states []State
	for state, edges := range t.configurations {
		if len(edges[trigger]) > 0 {
			states = append(states, state)
		}
	}
	sortStates(states)
	return states
}

// Targets returns the states the trigger may lead to from the given state
func (t *Table) Targets(from State, trigger Trigger) []State {
	var states []State
	for _, e := range t.configurations[from][trigger] {
		states = append(states, e.toState)
	}
	return states
}

// Permitted returns the triggers the role may fire from the state, sorted.
// Guards and assignment requirements are not evaluated.
func (t *Table) Permitted(from State, role Role) []Trigger {
	var triggers []Trigger
	for trigger, rule := range t.rules {
		if !rule.Allows(role) {
			continue
		}
		if rule.KeepsState {
			triggers = append(triggers, trigger)
			continue
		}
		for _, e := range t.configurations[from][trigger] {
			if edgeAllows(e, role) {
				triggers = append(triggers, trigger)
				break
			}
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// Resolve checks a command against the table and picks the target state.
// Wrong state or role yields ErrPreconditionFailed; a missing comment or
// target, or a selection no guard accepts, yields ErrValidation.
func (t *Table) Resolve(ctx context.Context, from State, trigger Trigger, cmd Command) (Resolution, error) {
	rule, ok := t.rules[trigger]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %w: %s", ErrValidation, ErrUnknownTrigger, trigger)
	}

	if rule.KeepsState {
		if !rule.Allows(cmd.ActingRole) {
			return Resolution{}, fmt.Errorf("%w: role %s cannot %s", ErrPreconditionFailed, cmd.ActingRole, trigger)
		}
		if err := checkRequirements(rule, cmd); err != nil {
			return Resolution{}, err
		}
		return Resolution{Rule: rule, From: from, To: from}, nil
	}

	if from.IsTerminal() {
		return Resolution{}, fmt.Errorf("%w: %s is terminal", ErrPreconditionFailed, from)
	}

	edges := t.configurations[from][trigger]
	if len(edges) == 0 {
		return Resolution{}, fmt.Errorf("%w: cannot fire %s from state %s", ErrPreconditionFailed, trigger, from)
	}

	if !rule.Allows(cmd.ActingRole) {
		return Resolution{}, fmt.Errorf("%w: role %s cannot fire %s", ErrPreconditionFailed, cmd.ActingRole, trigger)
	}

	var candidates []edge
	for _, e := range edges {
		if edgeAllows(e, cmd.ActingRole) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return Resolution{}, fmt.Errorf("%w: role %s cannot fire %s from state %s", ErrPreconditionFailed, cmd.ActingRole, trigger, from)
	}

	if err := checkRequirements(rule, cmd); err != nil {
		return Resolution{}, err
	}

	// First matching edge wins
	for _, e := range candidates {
		if e.guard == nil || e.guard(ctx, cmd) {
			return Resolution{
				Rule:               rule,
				From:               from,
				To:                 e.toState,
				RequiresAssignment: e.requireAssignment,
			}, nil
		}
	}

	return Resolution{}, fmt.Errorf("%w: %w: %s from state %s", ErrValidation, ErrGuardFailed, trigger, from)
}

func checkRequirements(rule Rule, cmd Command) error {
	if rule.RequiresComment && !cmd.HasComment() {
		return fmt.Errorf("%w: %s requires a comment", ErrValidation, rule.Trigger)
	}
	if rule.RequiresTarget && (cmd.Target == nil || cmd.Target.IsEmpty()) {
		return fmt.Errorf("%w: %s requires a target selection", ErrValidation, rule.Trigger)
	}
	return nil
}

func edgeAllows(e edge, role Role) bool {
	if len(e.roles) == 0 {
		return true
	}
	for _, r := range e.roles {
		if r == role {
			return true
		}
	}
	return false
}
