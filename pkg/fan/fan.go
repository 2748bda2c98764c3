// SPDX-License-Identifier: BSD-3-Clause

package fan

import "context"

// Status is the controller-viewed lifecycle state of a Fan.
type Status int

const (
	// StatusDisabled means no task currently owns this fan.
	StatusDisabled Status = iota
	// StatusEnabled means a control-loop task is running.
	StatusEnabled
	// StatusTesting means a characterisation-test task is running.
	StatusTesting
)

// String renders the status for logs and RPC responses.
func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "DISABLED"
	case StatusEnabled:
		return "ENABLED"
	case StatusTesting:
		return "TESTING"
	default:
		return "UNKNOWN"
	}
}

// Fan is the backend-agnostic contract every fan implementation satisfies.
// Concrete backends live in pkg/fan/sysfs, pkg/fan/dellsmm
// and pkg/fan/nvidia; FanDell composes a Sysfs fan rather than subclassing
// it, to avoid a deep inheritance chain across backends.
type Fan interface {
	// Label is the stable identifier this fan is known by.
	Label() string
	// UID is the backend-specific hardware identity.
	UID() UID
	// Valid reports whether the backend's paths/handles resolve.
	Valid() bool

	// EnableControl switches the backend into manual PWM mode.
	EnableControl(ctx context.Context) error
	// DisableControl restores the driver's prior control flag.
	DisableControl(ctx context.Context) error

	// SetPWM writes a raw PWM value, clamped to [0,255] by the caller.
	// On failure the caller should invoke RecoverControl.
	SetPWM(ctx context.Context, pwm int) error
	// GetPWM reads the current raw PWM value.
	GetPWM(ctx context.Context) (int, error)
	// GetRPM reads the current tachometer RPM.
	GetRPM(ctx context.Context) (int, error)

	// RecoverControl re-issues EnableControl, used after a failed SetPWM.
	RecoverControl(ctx context.Context) error
}

// Smoothing holds the per-fan glide/top-stickiness state machine described
// in steps 5-6.
type Smoothing struct {
	JustStarted bool
	RemIntervals int
	TargetedRPM int
	CurrentRPM int
	TopStickinessRemIntervals int
}

// NewSmoothing returns a fresh Smoothing state for a fan that has not yet
// produced a first target.
func NewSmoothing() *Smoothing {
	return &Smoothing{JustStarted: true}
}
