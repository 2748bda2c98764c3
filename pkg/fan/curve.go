// SPDX-License-Identifier: BSD-3-Clause

package fan

import (
	"context"
	"fmt"
	"time"
)

// stabilisedThreshold is the fraction of the previous target beyond which a
// new target restarts the glide instead of continuing toward the old one.
const stabilisedThreshold = 0.10

// recoverAttempts and recoverDelay implement the control-loss recovery
// policy of: "Re-issue enable_control up to 3 times (wait ~100ms
// between)."
const (
	recoverAttempts = 3
	recoverDelay = 100 * time.Millisecond
)

// ControlledFan binds a Fan backend to its Sensor and curves, and runs the
// per-interval update algorithm of. One ControlledFan is owned
// by exactly one control-loop task at a time.
type ControlledFan struct {
	Label string
	Backend Fan
	Sensor *AveragingSensor

	TempToRPM *Curve
	RPMToPWM *Curve
	StartPWM int
	Interval time.Duration

	SmoothingIntervals int
	TopStickinessIntervals int

	smoothing *Smoothing
}

// NewControlledFan constructs a ControlledFan with fresh smoothing state.
func NewControlledFan(label string, backend Fan, sensor *AveragingSensor, tempToRPM, rpmToPWM *Curve, startPWM int, interval time.Duration, smoothingIntervals, topStickinessIntervals int) *ControlledFan {
	return &ControlledFan{
		Label: label,
		Backend: backend,
		Sensor: sensor,
		TempToRPM: tempToRPM,
		RPMToPWM: rpmToPWM,
		StartPWM: startPWM,
		Interval: interval,
		SmoothingIntervals: smoothingIntervals,
		TopStickinessIntervals: topStickinessIntervals,
		smoothing: NewSmoothing(),
	}
}

// Tested reports whether this fan has a usable rpm_to_pwm curve.
func (c *ControlledFan) Tested() bool {
	return c.RPMToPWM.Len() > 0
}

// Update runs one iteration of the algorithm: resolve target
// RPM, resolve raw PWM, apply start-up kick, smoothing and top-stickiness,
// clamp, and write. It returns the PWM value written.
func (c *ControlledFan) Update(ctx context.Context) (int, error) {
	temp := c.Sensor.GetAverageTemp(ctx)

	targetRPM, ok := c.TempToRPM.Floor(temp)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no temp_to_rpm entries", ErrInvalidPoint, c.Label)
	}

	pwmRaw := c.resolvePWM(targetRPM)

	if currentRPM, err := c.Backend.GetRPM(ctx); err == nil && targetRPM > 0 && currentRPM == 0 {
		pwmRaw = c.StartPWM
	}

	pwmRaw = c.applySmoothingAndStickiness(targetRPM, pwmRaw)
	pwmRaw = clampPWM(pwmRaw)

	if err := c.writePWM(ctx, pwmRaw); err != nil {
		return pwmRaw, err
	}
	return pwmRaw, nil
}

// resolvePWM implements step 3: find_closest_pwm. An untested
// fan whose curve already contains raw PWMs (loaded identity-mapped, see
// fan/devices.go) uses them directly via the same Floor lookup.
func (c *ControlledFan) resolvePWM(targetRPM int) int {
	if pwm, ok := c.RPMToPWM.Floor(targetRPM); ok {
		return pwm
	}
	return targetRPM
}

// applySmoothingAndStickiness implements steps 5-6.
func (c *ControlledFan) applySmoothingAndStickiness(targetRPM, pwmRaw int) int {
	s := c.smoothing

	topRPM, hasTop := c.TempToRPM.MaxValue()
	atTop := hasTop && targetRPM >= topRPM

	restart := s.JustStarted || outsideThreshold(targetRPM, s.TargetedRPM)
	if restart {
		s.JustStarted = false
		s.RemIntervals = max(c.SmoothingIntervals, 1)
		s.TargetedRPM = targetRPM
		s.CurrentRPM = targetRPM
		if atTop {
			s.TopStickinessRemIntervals = c.TopStickinessIntervals
		}
	} else if s.RemIntervals > 1 {
		step := (targetRPM - s.CurrentRPM) / s.RemIntervals
		s.CurrentRPM += step
		s.RemIntervals--
	} else {
		s.CurrentRPM = targetRPM
		s.RemIntervals = 1
	}

	if atTop && s.TopStickinessRemIntervals > 0 {
		s.TopStickinessRemIntervals--
	} else if !atTop && s.TopStickinessRemIntervals > 0 {
		s.TopStickinessRemIntervals--
		return c.resolvePWM(topRPM)
	}

	if s.CurrentRPM == targetRPM {
		return pwmRaw
	}
	if pwm, ok := c.RPMToPWM.Floor(s.CurrentRPM); ok {
		return pwm
	}
	return pwmRaw
}

// writePWM applies control-loss recovery per: if SetPWM fails,
// re-issue EnableControl up to recoverAttempts times before giving up and
// leaving the fan to the driver.
func (c *ControlledFan) writePWM(ctx context.Context, pwm int) error {
	err := c.Backend.SetPWM(ctx, pwm)
	if err == nil {
		return nil
	}

	for attempt := 0; attempt < recoverAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(recoverDelay):
		}
		if rerr := c.Backend.RecoverControl(ctx); rerr == nil {
			if err = c.Backend.SetPWM(ctx, pwm); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrControlLoss, c.Label, err)
}

func outsideThreshold(target, previous int) bool {
	if previous == 0 {
		return target != 0
	}
	delta := target - previous
	if delta < 0 {
		delta = -delta
	}
	return float64(delta) > stabilisedThreshold*float64(previous)
}

func clampPWM(pwm int) int {
	if pwm < 0 {
		return 0
	}
	if pwm > 255 {
		return 255
	}
	return pwm
}
