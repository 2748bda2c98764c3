// SPDX-License-Identifier: BSD-3-Clause

package fan

import "errors"

var (
	// ErrInvalidPoint indicates a curve point failed validation (out of range, or neither rpm nor pwm set).
	ErrInvalidPoint = errors.New("invalid curve point")
	// ErrUnknownSensor indicates a fan referenced a sensor label absent from the device set.
	ErrUnknownSensor = errors.New("unknown sensor label")
	// ErrUntested indicates an operation required a tested rpm_to_pwm curve that is not present.
	ErrUntested = errors.New("fan is untested")
	// ErrBackendUnavailable indicates a backend could not establish its hardware identity.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrReadFailure indicates a hardware read failed.
	ErrReadFailure = errors.New("hardware read failed")
	// ErrWriteFailure indicates a hardware write failed.
	ErrWriteFailure = errors.New("hardware write failed")
	// ErrControlLoss indicates set_pwm failed and recover_control could not re-establish manual control.
	ErrControlLoss = errors.New("lost manual control of fan")
	// ErrCharacterisationFailed indicates the test protocol aborted before producing a usable curve.
	ErrCharacterisationFailed = errors.New("characterisation test failed")
	// ErrAlreadyRunning indicates a task is already active for this fan (test or control).
	ErrAlreadyRunning = errors.New("fan task already running")
	// ErrNotFound indicates an operation referenced a fan or sensor label that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOperationTimeout indicates a cancellable hardware operation exceeded its context deadline.
	ErrOperationTimeout = errors.New("operation timed out")
)
