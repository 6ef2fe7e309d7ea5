package workflow

import (
	"context"
	"fmt"
)

// GuardFunc validates the input of a transition and names the offending field on failure
type GuardFunc func(ctx context.Context, in *Input) error

// ConditionFunc selects between several targets of the same action
type ConditionFunc func(ctx context.Context, in *Input) bool

// TableBuilder builds a configured transition table
type TableBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// ConfigureInitial returns the configuration for actions that create a request
	ConfigureInitial() StateConfiguration

	// Build creates an immutable table from the configuration
	Build() Table
}

// StateConfiguration configures the rows leaving a specific state
type StateConfiguration interface {
	// Permit allows an action to move to the target state
	Permit(action Action, toState State, req Requirement, guards ...GuardFunc) StateConfiguration

	// PermitIf allows an action to move to the target state when the condition holds.
	// Targets are tried in registration order.
	PermitIf(action Action, toState State, cond ConditionFunc, req Requirement, guards ...GuardFunc) StateConfiguration

	// PermitReentry allows an action that keeps the current state
	PermitReentry(action Action, req Requirement, guards ...GuardFunc) StateConfiguration
}

// transition represents one candidate target of a row
type transition struct {
	toState   State
	condition ConditionFunc
	guards    []GuardFunc
}

// stateConfig implements StateConfiguration
type stateConfig struct {
	fromState State
	rules     map[Action]*Rule
}

// tableBuilder implements TableBuilder
type tableBuilder struct {
	configurations map[State]*stateConfig
}

// NewBuilder creates a new transition table builder
func NewBuilder() TableBuilder {
	return &tableBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *tableBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	return b.configure(state)
}

// ConfigureInitial returns the configuration of the pre-creation position
func (b *tableBuilder) ConfigureInitial() StateConfiguration {
	return b.configure(StateNone)
}

func (b *tableBuilder) configure(state State) *stateConfig {
	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState: state,
			rules:     make(map[Action]*Rule),
		}
		b.configurations[state] = config
	}
	return config
}

// Build creates an immutable table
func (b *tableBuilder) Build() Table {
	// Deep copy configurations so later builder calls cannot leak into the table
	rows := make(map[State]map[Action]*Rule, len(b.configurations))
	for state, config := range b.configurations {
		byAction := make(map[Action]*Rule, len(config.rules))
		for action, rule := range config.rules {
			byAction[action] = &Rule{
				From:        rule.From,
				Action:      rule.Action,
				Requirement: rule.Requirement,
				targets:     append([]transition{}, rule.targets...),
			}
		}
		rows[state] = byAction
	}

	return &table{rows: rows}
}

// Permit allows an action to move to the target state
func (c *stateConfig) Permit(action Action, toState State, req Requirement, guards ...GuardFunc) StateConfiguration {
	return c.PermitIf(action, toState, nil, req, guards...)
}

// PermitIf allows an action to move to the target state when the condition holds
func (c *stateConfig) PermitIf(action Action, toState State, cond ConditionFunc, req Requirement, guards ...GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	rule, exists := c.rules[action]
	if !exists {
		rule = &Rule{From: c.fromState, Action: action, Requirement: req}
		c.rules[action] = rule
	} else if rule.Requirement != req {
		panic(fmt.Sprintf("conflicting requirements for %s from %q", action, c.fromState))
	}

	rule.targets = append(rule.targets, transition{
		toState:   toState,
		condition: cond,
		guards:    append([]GuardFunc{}, guards...),
	})

	return c
}

// PermitReentry allows an action that keeps the current state
func (c *stateConfig) PermitReentry(action Action, req Requirement, guards ...GuardFunc) StateConfiguration {
	return c.Permit(action, c.fromState, req, guards...)
}
