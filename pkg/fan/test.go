// SPDX-License-Identifier: BSD-3-Clause

package fan

import (
	"context"
	"fmt"
	"time"
)

// Characterisation is the result of running the fan test protocol: a
// measured rpm_to_pwm curve, a start_pwm, and the interval the fan should
// subsequently be driven at.
type Characterisation struct {
	RPMToPWM map[int]int
	StartPWM int
	Interval time.Duration
}

// testDecrement is the small PWM step used while sweeping for pwm_max and
// (pwm_min, rpm_min).
const testDecrement = 5

// startPWMIncrement is the step used while searching for the PWM at which
// the fan first spins up from stopped.
const startPWMIncrement = 5

// startPWMSafetyMargin is added to the discovered spin-up PWM.
const startPWMSafetyMargin = 10

// rpmMaxTolerance is the fraction of rpm_max that RPM must stay within
// while lowering PWM to find pwm_max.
const rpmMaxTolerance = 0.005

// safetyTimeout bounds how long the protocol waits for RPM to stabilise at
// any one step, in case a fan never reaches a steady state.
const safetyTimeout = 30 * time.Second

// stabilisationPoll is how often RPM is resampled while waiting to
// stabilise.
const stabilisationPoll = 250 * time.Millisecond

// ProgressFunc receives percent-complete updates during a test run.
type ProgressFunc func(percent int)

// Characterise runs the full characterisation protocol against backend. On
// every return it writes back the PWM read before the run (when that value
// was positive) and then hands control back to the driver (step 8). It is
// idempotent: calling it again overwrites any previous characterisation.
func Characterise(ctx context.Context, backend Fan, progress ProgressFunc) (Characterisation, error) {
	if progress == nil {
		progress = func(int) {}
	}

	priorPWM, _ := backend.GetPWM(ctx)

	if err := backend.EnableControl(ctx); err != nil {
		return Characterisation{}, fmt.Errorf("%w: enable_control: %w", ErrCharacterisationFailed, err)
	}
	defer func() {
		if priorPWM > 0 {
			_ = backend.SetPWM(ctx, priorPWM)
		}
		_ = backend.DisableControl(ctx)
	}()

	progress(5)
	if err := backend.SetPWM(ctx, 255); err != nil {
		return Characterisation{}, fmt.Errorf("%w: write pwm_max: %w", ErrCharacterisationFailed, err)
	}
	if err := waitStabilised(ctx, backend); err != nil {
		return Characterisation{}, err
	}

	progress(20)
	rpmMax, err := backend.GetRPM(ctx)
	if err != nil || rpmMax <= 0 {
		return Characterisation{}, fmt.Errorf("%w: rpm_read_accuracy", ErrCharacterisationFailed)
	}

	progress(30)
	spinDownStart := time.Now()
	_ = backend.SetPWM(ctx, 0)
	if err := waitForRPM(ctx, backend, func(r int) bool { return r == 0 }); err != nil {
		return Characterisation{}, err
	}
	spinDownTime := time.Since(spinDownStart)

	progress(40)
	spinUpStart := time.Now()
	_ = backend.SetPWM(ctx, 255)
	if err := waitForRPM(ctx, backend, func(r int) bool { return r >= rpmMax }); err != nil {
		return Characterisation{}, err
	}
	spinUpTime := time.Since(spinUpStart)

	maxSpeedChangeTime := spinDownTime
	if spinUpTime > maxSpeedChangeTime {
		maxSpeedChangeTime = spinUpTime
	}
	_ = maxSpeedChangeTime // returned as the characterised Interval; waitStabilised and waitForRPM do not use it (they poll every stabilisationPoll up to safetyTimeout)

	progress(55)
	pwmMax, err := findPWMMax(ctx, backend, rpmMax)
	if err != nil {
		return Characterisation{}, err
	}

	progress(65)
	startPWM, err := findStartPWM(ctx, backend)
	if err != nil {
		return Characterisation{}, err
	}

	progress(80)
	pwmMin, rpmMin, err := findPWMMinRPMMin(ctx, backend, startPWM)
	if err != nil {
		return Characterisation{}, err
	}

	progress(95)
	curve := buildRPMToPWM(pwmMin, rpmMin, pwmMax, rpmMax)

	progress(100)
	return Characterisation{
		RPMToPWM: curve,
		StartPWM: clampPWM(startPWM),
		Interval: maxSpeedChangeTime,
	}, nil
}

// waitStabilised waits until two successive RPM reads differ by less than a
// small epsilon, or safetyTimeout elapses.
func waitStabilised(ctx context.Context, backend Fan) error {
	deadline := time.Now().Add(safetyTimeout)
	last := -1
	for time.Now().Before(deadline) {
		rpm, err := backend.GetRPM(ctx)
		if err == nil {
			if last >= 0 && abs(rpm-last) < 10 {
				return nil
			}
			last = rpm
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stabilisationPoll):
		}
	}
	return fmt.Errorf("%w: stabilisation timeout", ErrCharacterisationFailed)
}

// waitForRPM waits until cond(currentRPM) holds or safetyTimeout elapses.
func waitForRPM(ctx context.Context, backend Fan, cond func(int) bool) error {
	deadline := time.Now().Add(safetyTimeout)
	for time.Now().Before(deadline) {
		if rpm, err := backend.GetRPM(ctx); err == nil && cond(rpm) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stabilisationPoll):
		}
	}
	return fmt.Errorf("%w: rpm wait timeout", ErrCharacterisationFailed)
}

// findPWMMax lowers PWM in small decrements while RPM stays within
// rpmMaxTolerance of rpmMax.
func findPWMMax(ctx context.Context, backend Fan, rpmMax int) (int, error) {
	pwm := 255
	tolerance := float64(rpmMax) * rpmMaxTolerance
	for pwm-testDecrement >= 0 {
		candidate := pwm - testDecrement
		if err := backend.SetPWM(ctx, candidate); err != nil {
			return 0, fmt.Errorf("%w: find pwm_max: %w", ErrCharacterisationFailed, err)
		}
		if err := waitStabilised(ctx, backend); err != nil {
			return pwm, nil
		}
		rpm, err := backend.GetRPM(ctx)
		if err != nil || float64(abs(rpm-rpmMax)) > tolerance {
			return pwm, nil
		}
		pwm = candidate
	}
	return pwm, nil
}

// findStartPWM stops the fan, then raises PWM in increments until RPM > 0,
// adding a safety margin.
func findStartPWM(ctx context.Context, backend Fan) (int, error) {
	if err := backend.SetPWM(ctx, 0); err != nil {
		return 0, fmt.Errorf("%w: find start_pwm: %w", ErrCharacterisationFailed, err)
	}
	if err := waitForRPM(ctx, backend, func(r int) bool { return r == 0 }); err != nil {
		return 0, err
	}

	for pwm := startPWMIncrement; pwm <= 255; pwm += startPWMIncrement {
		if err := backend.SetPWM(ctx, pwm); err != nil {
			return 0, fmt.Errorf("%w: find start_pwm: %w", ErrCharacterisationFailed, err)
		}
		if err := waitStabilised(ctx, backend); err != nil {
			continue
		}
		if rpm, err := backend.GetRPM(ctx); err == nil && rpm > 0 {
			return clampPWM(pwm + startPWMSafetyMargin), nil
		}
	}
	return clampPWM(255), nil
}

// findPWMMinRPMMin lowers PWM from startPWM while RPM keeps decreasing,
// stopping when RPM reads 0 or begins to increase.
func findPWMMinRPMMin(ctx context.Context, backend Fan, startPWM int) (pwmMin, rpmMin int, err error) {
	if err := backend.SetPWM(ctx, startPWM); err != nil {
		return 0, 0, fmt.Errorf("%w: find pwm_min: %w", ErrCharacterisationFailed, err)
	}
	if err := waitStabilised(ctx, backend); err != nil {
		return 0, 0, err
	}
	lastRPM, err := backend.GetRPM(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: find pwm_min: %w", ErrCharacterisationFailed, err)
	}
	pwm := startPWM
	for pwm-testDecrement >= 0 {
		candidate := pwm - testDecrement
		if err := backend.SetPWM(ctx, candidate); err != nil {
			return pwm, lastRPM, nil
		}
		if err := waitStabilised(ctx, backend); err != nil {
			return pwm, lastRPM, nil
		}
		rpm, err := backend.GetRPM(ctx)
		if err != nil || rpm == 0 || rpm >= lastRPM {
			return pwm, lastRPM, nil
		}
		pwm, lastRPM = candidate, rpm
	}
	return pwm, lastRPM, nil
}

// buildRPMToPWM reconstructs the rpm_to_pwm curve from the two measured
// endpoints with a linear slope.
func buildRPMToPWM(pwmMin, rpmMin, pwmMax, rpmMax int) map[int]int {
	curve := map[int]int{rpmMin: pwmMin, rpmMax: pwmMax}
	if pwmMax == pwmMin {
		return curve
	}
	slope := float64(rpmMax-rpmMin) / float64(pwmMax-pwmMin)
	const steps = 8
	for i := 1; i < steps; i++ {
		pwm := pwmMin + (pwmMax-pwmMin)*i/steps
		rpm := rpmMin + int(float64(pwm-pwmMin)*slope)
		curve[rpm] = pwm
	}
	return curve
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
