// SPDX-License-Identifier: BSD-3-Clause

package controller

import "errors"

var (
	// ErrUnknownFan indicates an operation referenced a fan label absent
	// from the current Devices set.
	ErrUnknownFan = errors.New("unknown fan label")
	// ErrUnknownSensor indicates a fan's sensor_label did not resolve.
	ErrUnknownSensor = errors.New("unknown sensor label")
	// ErrBindFailed indicates a configured fan or sensor could not be
	// bound to a live backend.
	ErrBindFailed = errors.New("device bind failed")
	// ErrNotRunning indicates an operation was attempted while the
	// controller is not in the running state.
	ErrNotRunning = errors.New("controller not running")
	// ErrAlreadyRunning indicates Start was called on an already-running
	// controller.
	ErrAlreadyRunning = errors.New("controller already running")
	// ErrTestInProgress indicates Test was called for a fan already being
	// characterised.
	ErrTestInProgress = errors.New("test already in progress for this fan")
	// ErrNvNotInitialised indicates an NVIDIA operation was attempted
	// before NvInit ran successfully.
	ErrNvNotInitialised = errors.New("nvidia backend not initialised")
)
