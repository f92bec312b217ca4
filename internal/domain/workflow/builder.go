package workflow

import (
	"context"
	"fmt"
)

// GuardFunc evaluates whether a guarded transition applies to the request
type GuardFunc func(ctx context.Context, cmd Command) bool

// TableBuilder builds a transition table
type TableBuilder interface {
	// Define registers the rule for a trigger
	Define(rule Rule) TableBuilder

	// Configure returns a state configuration for the given source state
	Configure(state State) StateConfiguration

	// Build creates an immutable transition table
	Build() *Table
}

// StateConfiguration configures transitions leaving a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration

	// PermitFor narrows which of the rule's roles may take this edge
	PermitFor(trigger Trigger, toState State, roles ...Role) StateConfiguration

	// PermitAssigned allows the edge only to users holding an assignment for their role on the RFQ
	PermitAssigned(trigger Trigger, toState State) StateConfiguration
}

// edge is one configured transition out of a state
type edge struct {
	toState           State
	guard             GuardFunc
	roles             []Role
	requireAssignment bool
}

// stateConfig implements StateConfiguration
type stateConfig struct {
	fromState State
	edges     map[Trigger][]edge
}

// tableBuilder implements TableBuilder
type tableBuilder struct {
	rules          map[Trigger]Rule
	configurations map[State]*stateConfig
}

// NewBuilder creates a new transition table builder
func NewBuilder() TableBuilder {
	return &tableBuilder{
		rules:          make(map[Trigger]Rule),
		configurations: make(map[State]*stateConfig),
	}
}

// Define registers the rule for a trigger
func (b *tableBuilder) Define(rule Rule) TableBuilder {
	if rule.Trigger == "" {
		panic("rule without trigger")
	}
	if len(rule.Roles) == 0 {
		panic(fmt.Sprintf("rule %s allows no roles", rule.Trigger))
	}
	b.rules[rule.Trigger] = rule
	return b
}

// Configure returns a state configuration for the given state
func (b *tableBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if state.IsTerminal() {
		panic(fmt.Sprintf("terminal state cannot have transitions: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState: state,
			edges:     make(map[Trigger][]edge),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates an immutable transition table
func (b *tableBuilder) Build() *Table {
	rules := make(map[Trigger]Rule, len(b.rules))
	for trigger, rule := range b.rules {
		rules[trigger] = rule
	}

	configs := make(map[State]map[Trigger][]edge, len(b.configurations))
	for state, config := range b.configurations {
		edges := make(map[Trigger][]edge, len(config.edges))
		for trigger, list := range config.edges {
			rule, ok := rules[trigger]
			if !ok {
				panic(fmt.Sprintf("trigger %s permitted from %s has no rule", trigger, state))
			}
			if rule.KeepsState {
				panic(fmt.Sprintf("trigger %s keeps state and cannot be configured per state", trigger))
			}
			edges[trigger] = append([]edge{}, list...)
		}
		configs[state] = edges
	}

	return &Table{rules: rules, configurations: configs}
}

func (c *stateConfig) add(trigger Trigger, e edge) StateConfiguration {
	if !e.toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", e.toState))
	}
	c.edges[trigger] = append(c.edges[trigger], e)
	return c
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.add(trigger, edge{toState: toState})
}

// PermitIf allows a trigger to transition to the target state if the guard passes
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	return c.add(trigger, edge{toState: toState, guard: guard})
}

// PermitFor narrows which of the rule's roles may take this edge
func (c *stateConfig) PermitFor(trigger Trigger, toState State, roles ...Role) StateConfiguration {
	return c.add(trigger, edge{toState: toState, roles: roles})
}

// PermitAssigned allows the edge only to users assigned on the RFQ
func (c *stateConfig) PermitAssigned(trigger Trigger, toState State) StateConfiguration {
	return c.add(trigger, edge{toState: toState, requireAssignment: true})
}
