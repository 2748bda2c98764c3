// SPDX-License-Identifier: BSD-3-Clause

package state

import (
	"fmt"
	"time"
)

// NewStateMachine creates a basic state machine with the provided configuration.
func NewStateMachine(opts...Option) (*FSM, error) {
	config := NewConfig(opts...)
	return New(config)
}

// Fan lifecycle states and triggers, as viewed by the controller. TESTING has two distinct completion triggers rather than one,
// because the Config/Transition model here is (from, to, trigger) rather
// than parameterised, and the controller must route a finished test back
// to whichever state the fan was in before testing started.
const (
	FanStateDisabled = "DISABLED"
	FanStateEnabled = "ENABLED"
	FanStateTesting = "TESTING"

	FanTriggerEnable = "enable"
	FanTriggerDisable = "disable"
	FanTriggerTest = "test"
	FanTriggerTestDoneToEnabled = "test_done_to_enabled"
	FanTriggerTestDoneToDisabled = "test_done_to_disabled"
)

// NewFanStateMachine builds the per-fan DISABLED/ENABLED/TESTING machine
//: enable/disable toggle between DISABLED and ENABLED;
// test fires from either state into TESTING; the controller fires one of
// the two test-done triggers depending on which state it entered the test
// from, since characterisation must leave the fan exactly where it found
// it.
func NewFanStateMachine(name string, opts...Option) (*FSM, error) {
	baseOpts := []Option{
		WithName(name),
		WithDescription(fmt.Sprintf("fan control state for %s", name)),
		WithInitialState(FanStateDisabled),
		WithStates(FanStateDisabled, FanStateEnabled, FanStateTesting),
		WithTransition(FanStateDisabled, FanStateEnabled, FanTriggerEnable),
		WithTransition(FanStateEnabled, FanStateDisabled, FanTriggerDisable),
		WithTransition(FanStateDisabled, FanStateTesting, FanTriggerTest),
		WithTransition(FanStateEnabled, FanStateTesting, FanTriggerTest),
		WithTransition(FanStateTesting, FanStateEnabled, FanTriggerTestDoneToEnabled),
		WithTransition(FanStateTesting, FanStateDisabled, FanTriggerTestDoneToDisabled),
		WithStateTimeout(5 * time.Minute), // characterisation can run long
	}

	allOpts := append(baseOpts, opts...)
	return NewStateMachine(allOpts...)
}

// FanStateBuilder provides a fluent interface for wiring a fan's
// persistence/broadcast callbacks onto its state machine.
type FanStateBuilder struct {
	name string
	opts []Option
	onEnable ActionFunc
	onDisable ActionFunc
	onTestEnter ActionFunc
	canEnable GuardFunc
}

// NewFanStateBuilder creates a new fan state machine builder for the fan
// identified by name (its UID string).
func NewFanStateBuilder(name string) *FanStateBuilder {
	return &FanStateBuilder{name: name, opts: []Option{}}
}

// WithEnableAction sets the action fired on DISABLED->ENABLED (spawning the
// control-loop task).
func (b *FanStateBuilder) WithEnableAction(action ActionFunc) *FanStateBuilder {
	b.onEnable = action
	return b
}

// WithDisableAction sets the action fired on ENABLED->DISABLED (stopping
// the task and calling disable_control).
func (b *FanStateBuilder) WithDisableAction(action ActionFunc) *FanStateBuilder {
	b.onDisable = action
	return b
}

// WithTestEnterAction sets the action fired on entering TESTING (spawning
// the characterisation task).
func (b *FanStateBuilder) WithTestEnterAction(action ActionFunc) *FanStateBuilder {
	b.onTestEnter = action
	return b
}

// WithEnableGuard sets a guard condition for the enable transition (e.g.
// refusing to enable a fan whose backend failed Valid()).
func (b *FanStateBuilder) WithEnableGuard(guard GuardFunc) *FanStateBuilder {
	b.canEnable = guard
	return b
}

// WithPersistence adds a persistence callback to the state machine.
func (b *FanStateBuilder) WithPersistence(callback PersistenceCallback) *FanStateBuilder {
	b.opts = append(b.opts, WithPersistence(callback))
	return b
}

// WithBroadcast adds a status-observer broadcast callback to the state
// machine.
func (b *FanStateBuilder) WithBroadcast(callback BroadcastCallback) *FanStateBuilder {
	b.opts = append(b.opts, WithBroadcast(callback))
	return b
}

// Build creates the configured fan state machine.
func (b *FanStateBuilder) Build() (*FSM, error) {
	opts := []Option{
		WithName(b.name),
		WithDescription(fmt.Sprintf("fan control state for %s", b.name)),
		WithInitialState(FanStateDisabled),
		WithStates(FanStateDisabled, FanStateEnabled, FanStateTesting),
	}

	if b.canEnable != nil && b.onEnable != nil {
		opts = append(opts, WithCompleteTransition(FanStateDisabled, FanStateEnabled, FanTriggerEnable, b.canEnable, b.onEnable))
	} else if b.canEnable != nil {
		opts = append(opts, WithGuardedTransition(FanStateDisabled, FanStateEnabled, FanTriggerEnable, b.canEnable))
	} else if b.onEnable != nil {
		opts = append(opts, WithActionTransition(FanStateDisabled, FanStateEnabled, FanTriggerEnable, b.onEnable))
	} else {
		opts = append(opts, WithTransition(FanStateDisabled, FanStateEnabled, FanTriggerEnable))
	}

	if b.onDisable != nil {
		opts = append(opts, WithActionTransition(FanStateEnabled, FanStateDisabled, FanTriggerDisable, b.onDisable))
	} else {
		opts = append(opts, WithTransition(FanStateEnabled, FanStateDisabled, FanTriggerDisable))
	}

	if b.onTestEnter != nil {
		opts = append(opts, WithActionTransition(FanStateDisabled, FanStateTesting, FanTriggerTest, b.onTestEnter))
		opts = append(opts, WithActionTransition(FanStateEnabled, FanStateTesting, FanTriggerTest, b.onTestEnter))
	} else {
		opts = append(opts, WithTransition(FanStateDisabled, FanStateTesting, FanTriggerTest))
		opts = append(opts, WithTransition(FanStateEnabled, FanStateTesting, FanTriggerTest))
	}

	opts = append(opts, WithTransition(FanStateTesting, FanStateEnabled, FanTriggerTestDoneToEnabled))
	opts = append(opts, WithTransition(FanStateTesting, FanStateDisabled, FanTriggerTestDoneToDisabled))
	opts = append(opts, WithStateTimeout(5*time.Minute))

	opts = append(opts, b.opts...)

	return NewStateMachine(opts...)
}
