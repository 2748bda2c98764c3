// SPDX-License-Identifier: BSD-3-Clause

package controller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"cirello.io/oversight/v2"

	"github.com/fancond/fancond/pkg/fan"
	"github.com/fancond/fancond/pkg/fan/nvidia"
	"github.com/fancond/fancond/pkg/fan/sysfs"
	"github.com/fancond/fancond/pkg/state"
)

// fanChildProcess returns the oversight.ChildProcess for one configured
// fan: a ticker loop that drives the fan's ControlledFan whenever its state
// machine reports ENABLED, and otherwise idles. See the package doc for
// why this single long-lived child replaces spawning a child per enable.
func (c *Controller) fanChildProcess(label string) oversight.ChildProcess {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("fan %s panicked: %v", label, r)
			}
		}()

		c.mu.RLock()
		t := c.tasks[label]
		c.mu.RUnlock()

		interval := c.cfg.UpdateInterval
		if t != nil && t.controlled != nil && t.controlled.Interval > 0 {
			interval = t.controlled.Interval
		}
		if interval <= 0 {
			interval = DefaultConfig().UpdateInterval
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				c.tickFan(ctx, label)
			}
		}
	}
}

// tickFan runs one update for label if its state machine currently reports
// ENABLED. DISABLED fans idle; TESTING fans are driven by the ad-hoc
// goroutine Test spawns, which exclusively owns the backend for the
// duration.
func (c *Controller) tickFan(ctx context.Context, label string) {
	c.mu.RLock()
	t, ok := c.tasks[label]
	c.mu.RUnlock()
	if !ok {
		return
	}

	if t.sm.CurrentState() != state.FanStateEnabled || t.controlled == nil {
		return
	}

	if _, err := t.controlled.Update(ctx); err != nil {
		c.log.WarnContext(ctx, "fan update failed", "fan", label, "error", err)
	}
}

// Enable implements enable(label). Firing enable from ENABLED (or TESTING)
// is not a permitted FSM trigger; treated as a no-op rather than an error,
// so calling enable(label) twice is equivalent to calling it once.
func (c *Controller) Enable(ctx context.Context, label string) error {
	if err := c.fireLocked(ctx, label, state.FanTriggerEnable); err != nil && !errors.Is(err, state.ErrInvalidTrigger) {
		return err
	}
	c.setEnabledFlag(label, true)
	return nil
}

// Disable implements disable(label). Firing disable from DISABLED (or
// TESTING) is not a permitted FSM trigger; treated as a no-op rather than
// an error, so disable(label) on an already-disabled fan is a no-op.
func (c *Controller) Disable(ctx context.Context, label string) error {
	if err := c.fireLocked(ctx, label, state.FanTriggerDisable); err != nil && !errors.Is(err, state.ErrInvalidTrigger) {
		return err
	}
	c.setEnabledFlag(label, false)
	return nil
}

// EnableAll implements enable_all(); fans already enabled are
// skipped rather than treated as an error.
func (c *Controller) EnableAll(ctx context.Context) error {
	return c.forEachFan(func(label string) error { return c.Enable(ctx, label) })
}

// DisableAll implements disable_all().
func (c *Controller) DisableAll(ctx context.Context) error {
	return c.forEachFan(func(label string) error { return c.Disable(ctx, label) })
}

func (c *Controller) forEachFan(op func(label string) error) error {
	c.mu.RLock()
	labels := make([]string, 0, len(c.tasks))
	for l := range c.tasks {
		labels = append(labels, l)
	}
	c.mu.RUnlock()

	var errs []error
	for _, l := range labels {
		if err := op(l); err != nil && !errors.Is(err, state.ErrInvalidTrigger) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) setEnabledFlag(label string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fc, ok := c.devices.Fans[label]; ok {
		fc.Enabled = enabled
		c.devices.Fans[label] = fc
	}
}

// Test implements test(label, forced, cb): runs the
// characterisation protocol, persists the result, and restores the fan to
// whichever state it was in before the test.
func (c *Controller) Test(ctx context.Context, label string, forced bool, progress fan.ProgressFunc) error {
	c.mu.RLock()
	t, ok := c.tasks[label]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFan, label)
	}
	if t.controlled == nil {
		return fmt.Errorf("%w: %s: %w", ErrBindFailed, label, t.bindErr)
	}

	if t.controlled.Tested() && !forced {
		if progress != nil {
			progress(100)
		}
		return nil
	}

	priorState := t.sm.CurrentState()
	if err := t.sm.Fire(ctx, state.FanTriggerTest); err != nil {
		if priorState == state.FanStateTesting {
			return ErrTestInProgress
		}
		return err
	}
	c.statusObs.Invoke(ctx, label, fan.StatusTesting)

	result, testErr := fan.Characterise(ctx, t.controlled.Backend, progress)

	doneTrigger := state.FanTriggerTestDoneToDisabled
	if priorState == state.FanStateEnabled {
		doneTrigger = state.FanTriggerTestDoneToEnabled
	}
	if err := t.sm.Fire(ctx, doneTrigger); err != nil {
		c.log.ErrorContext(ctx, "failed to leave TESTING state", "fan", label, "error", err)
	}
	c.statusObs.Invoke(ctx, label, statusFromState(t.sm.CurrentState()))

	if testErr != nil {
		return fmt.Errorf("test %s: %w", label, testErr)
	}

	c.mu.Lock()
	fc := c.devices.Fans[label]
	fc.RPMToPWM = result.RPMToPWM
	fc.StartPWM = result.StartPWM
	fc.Interval = result.Interval
	c.devices.Fans[label] = fc
	dto := c.devices.ToDTO()
	c.mu.Unlock()

	t.controlled.RPMToPWM = fan.NewCurve(result.RPMToPWM)
	t.controlled.StartPWM = result.StartPWM
	t.controlled.Interval = result.Interval

	if err := c.persist.SaveDevices(ctx, dto); err != nil {
		c.log.ErrorContext(ctx, "failed to persist characterisation", "fan", label, "error", err)
	}
	c.deviceObs.Invoke(ctx, dto)
	return nil
}

// Reload implements reload(): stop all tasks, re-read devices
// from the persister, and rebuild the tree, re-enabling whatever was
// enabled in the reloaded configuration.
func (c *Controller) Reload(ctx context.Context) error {
	dto, err := c.persist.LoadDevices(ctx)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	devices, err := fan.FromDTO(dto)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	c.mu.Lock()
	c.devices = devices
	c.mu.Unlock()

	if err := c.rebuildTree(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	c.deviceObs.Invoke(ctx, devices.ToDTO())
	return nil
}

// SetDevices implements set_devices(msg): replace Devices,
// persist, and reconcile enable states via a full tree rebuild.
func (c *Controller) SetDevices(ctx context.Context, dto fan.DevicesDTO) error {
	devices, err := fan.FromDTO(dto)
	if err != nil {
		return fmt.Errorf("set_devices: %w", err)
	}

	c.mu.Lock()
	c.devices = devices
	c.mu.Unlock()

	if err := c.persist.SaveDevices(ctx, dto); err != nil {
		return fmt.Errorf("set_devices: persist: %w", err)
	}
	if err := c.rebuildTree(ctx); err != nil {
		return fmt.Errorf("set_devices: %w", err)
	}
	c.deviceObs.Invoke(ctx, dto)
	return nil
}

// GetDevices implements GetDevices.
func (c *Controller) GetDevices() fan.DevicesDTO {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devices.ToDTO()
}

// GetEnumeratedDevices implements GetEnumeratedDevices: a fresh
// hardware scan, not the loaded configuration.
func (c *Controller) GetEnumeratedDevices(ctx context.Context) (fan.DevicesDTO, error) {
	dfans, dsensors, err := sysfs.Discover(ctx, c.hwmonRoot)
	if err != nil {
		return fan.DevicesDTO{}, fmt.Errorf("get_enumerated_devices: %w", err)
	}

	var dto fan.DevicesDTO
	for _, f := range dfans {
		dto.Fans = append(dto.Fans, fan.FanDTO{
				Label: f.Label,
				Backend: fan.BackendSysfs.String(),
				Chip: f.Chip,
				Leaf: filepath.Base(f.Base),
			})
	}
	for _, s := range dsensors {
		dto.Sensors = append(dto.Sensors, fan.SensorDTO{
				Label: s.Label,
				Backend: fan.BackendSysfs.String(),
				Chip: s.Chip,
				Leaf: filepath.Base(s.Base),
			})
	}

	c.mu.RLock()
	nvAvailable := c.nvErr == nil
	c.mu.RUnlock()
	if nvAvailable {
		if gpus, err := nvidia.Enumerate(); err == nil {
			for _, g := range gpus {
				if g.CoolerID < 0 {
					continue
				}
				dto.Fans = append(dto.Fans, fan.FanDTO{
						Label: fmt.Sprintf("gpu%d/cooler%d", g.Index, g.CoolerID),
						Backend: fan.BackendNvidia.String(),
						Chip: fmt.Sprintf("gpu%d", g.Index),
						Leaf: fmt.Sprintf("cooler%d", g.CoolerID),
					})
				dto.Sensors = append(dto.Sensors, fan.SensorDTO{
						Label: fmt.Sprintf("gpu%d/temp", g.Index),
						Backend: fan.BackendNvidia.String(),
						Chip: "nvml",
						Leaf: fmt.Sprintf("gpu%d", g.Index),
					})
			}
		}
	}

	return dto, nil
}

// FanStatus is the FanStatus tuple returned by GetFanStatus.
type FanStatus struct {
	Label string
	Status fan.Status
	RPM int
	PWM int
}

// Status implements status(label).
func (c *Controller) Status(label string) (fan.Status, error) {
	c.mu.RLock()
	t, ok := c.tasks[label]
	c.mu.RUnlock()
	if !ok {
		return fan.StatusDisabled, fmt.Errorf("%w: %s", ErrUnknownFan, label)
	}
	return statusFromState(t.sm.CurrentState()), nil
}

// GetFanStatus implements GetFanStatus(label).
func (c *Controller) GetFanStatus(ctx context.Context, label string) (FanStatus, error) {
	c.mu.RLock()
	t, ok := c.tasks[label]
	c.mu.RUnlock()
	if !ok {
		return FanStatus{}, fmt.Errorf("%w: %s", ErrUnknownFan, label)
	}

	st := FanStatus{Label: label, Status: statusFromState(t.sm.CurrentState())}
	if t.controlled != nil {
		st.RPM, _ = t.controlled.Backend.GetRPM(ctx)
		st.PWM, _ = t.controlled.Backend.GetPWM(ctx)
	}
	return st, nil
}
