// SPDX-License-Identifier: BSD-3-Clause

// Package state provides a finite state machine implementation used to
// track each fan's controller-viewed lifecycle (DISABLED/ENABLED/TESTING),
// with persistence, tracing, and concurrent access support.
//
// # Overview
//
// This package implements finite state machines (FSMs) with the following key features:
//   - Thread-safe operations with read-write mutexes
//   - State persistence with configurable callbacks
//   - Distributed tracing via OpenTelemetry
//   - Configurable timeouts for state transitions
//   - Guard conditions and transition actions
//   - State entry/exit actions
//   - Broadcast notifications for state changes
//   - DOT graph generation for visualization
//   - Multi-state machine management
//
// # Core Concepts
//
// State Machine: A computational model consisting of a finite number of states, transitions between
// those states, and actions. At any given time, the machine is in exactly one state.
//
// State: A distinct condition or situation in which the state machine can exist.
//
// Transition: A change from one state to another, triggered by an event (trigger). Transitions can
// have guard conditions that must be satisfied and actions that are executed during the transition.
//
// Trigger: An event or signal that can cause a state transition. Triggers are only valid for specific
// states and their associated transitions.
//
// Guard: A boolean condition that must be true for a transition to occur.
//
// Action: Code that is executed during a transition, or on entering/exiting any state.
//
// # Basic Usage
//
// Creating a fan state machine:
//
//	sm, err := NewFanStateMachine("hwmon0/pwm1")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sm.SetPersistenceCallback(func(ctx context.Context, machineName, state string) error {
//		return saveStateToStorage(ctx, machineName, state)
//	})
//
//	ctx := context.Background()
//	if err := sm.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	if err := sm.Fire(ctx, FanTriggerEnable); err != nil {
//		log.Printf("transition failed: %v", err)
//	}
//
// Building one with callbacks wired via the fluent builder:
//
//	sm, err := NewFanStateBuilder("hwmon0/pwm1").
//		WithEnableAction(func(from, to, trigger string) error { return startControlLoop() }).
//		WithDisableAction(func(from, to, trigger string) error { return stopControlLoop() }).
//		WithBroadcast(func(ctx context.Context, name, prev, curr, trig string) error {
//			return notifyStatusObservers(name, curr)
//		}).
//		Build()
//
// # State Persistence
//
// The package supports state persistence through configurable callbacks. The current state
// is persisted whenever it changes:
//
//	sm.SetPersistenceCallback(func(ctx context.Context, machineName, state string) error {
//		return saveStateToStorage(ctx, machineName, state)
//	})
//
// Note: Persistence callbacks must be set before starting the state machine.
//
// # State Change Notifications
//
// Applications can receive notifications when state changes occur:
//
//	sm.SetBroadcastCallback(func(ctx context.Context, machineName, previousState, currentState, trigger string) error {
//		return notifyStateChange(machineName, previousState, currentState, trigger)
//	})
//
// Note: Broadcast callbacks must be set before starting the state machine.
//
// # Multi-State Machine Management
//
// The Manager type allows managing multiple state machines, one per fan:
//
//	manager := NewManager()
//	manager.AddStateMachine(fan1SM)
//	manager.AddStateMachine(fan2SM)
//
//	sm, err := manager.GetStateMachine("hwmon0/pwm1")
//	if err != nil {
//		log.Printf("state machine not found: %v", err)
//	}
//
// # Observability
//
// Every FSM starts its own OpenTelemetry tracer ("state") and records a span per Fire call,
// with the previous/new state and trigger as span attributes.
//
// # Thread Safety
//
// All state machine operations are thread-safe. Multiple goroutines can safely:
//   - Query the current state
//   - Check if triggers can be fired
//   - Trigger state transitions
//   - Access state machine metadata
//
// The implementation uses read-write mutexes to allow concurrent reads while ensuring
// exclusive access for state modifications.
//
// # Error Handling
//
// The package defines specific error types for different failure scenarios:
//   - Configuration errors (ErrInvalidConfig)
//   - State/transition errors (ErrInvalidState, ErrInvalidTransition, ErrInvalidTrigger)
//   - Timeout errors (ErrTransitionTimeout)
//   - Guard/action failures (ErrTransitionGuardFailed, ErrTransitionActionFailed)
//   - Persistence errors (ErrPersistenceFailed)
//   - Lifecycle errors (ErrStateMachineNotStarted, ErrStateMachineAlreadyStarted, ErrStateMachineStopped)
package state
