// SPDX-License-Identifier: BSD-3-Clause

package sysfs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fancond/fancond/pkg/fan"
)

// manualFlag is the pwmN_enable value meaning "manual control" on virtually
// every hwmon driver.
const manualFlag = 1

// defaultDriverFlag is restored to pwmN_enable on disable when no prior
// value was observed.
const defaultDriverFlag = 2

// Fan implements fan.Fan over hwmon pwm*/fan* attributes.
type Fan struct {
	label string
	chip string
	pwmBase string // e.g. /sys/class/hwmon/hwmon0/pwm1
	rpmPath string // e.g..../fan1_input
	faultPath string
	priorFlag int
	haveFlag bool
}

// NewFan builds a Fan rooted at pwmBase (without suffix), paired with the
// tachometer at rpmPath.
func NewFan(label, chip, pwmBase, rpmPath string) *Fan {
	return &Fan{label: label, chip: chip, pwmBase: pwmBase, rpmPath: rpmPath, faultPath: replaceSuffix(rpmPath, "_input", "_fault")}
}

func replaceSuffix(path, suffix, newSuffix string) string {
	if len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix {
		return path[:len(path)-len(suffix)] + newSuffix
	}
	return path + newSuffix
}

// Label implements fan.Fan.
func (f *Fan) Label() string { return f.label }

// UID implements fan.Fan.
func (f *Fan) UID() fan.UID {
	return fan.UID{Backend: fan.BackendSysfs, Chip: f.chip, Leaf: filepath.Base(f.pwmBase)}
}

// Valid implements fan.Fan.
func (f *Fan) Valid() bool { return fileExists(f.pwmBase) }

// Faulted reports whether the fanN_fault attribute, if present, is set.
func (f *Fan) Faulted(ctx context.Context) bool {
	if !fileExists(f.faultPath) {
		return false
	}
	v, err := readInt(ctx, f.faultPath)
	return err == nil && v > 0
}

// EnableControl implements fan.Fan: writes the manual-control flag to
// pwmN_enable, remembering the driver's prior value for DisableControl.
func (f *Fan) EnableControl(ctx context.Context) error {
	enablePath := f.pwmBase + "_enable"
	if fileExists(enablePath) && !f.haveFlag {
		if v, err := readInt(ctx, enablePath); err == nil {
			f.priorFlag = v
			f.haveFlag = true
		}
	}
	if !fileExists(enablePath) {
		return nil
	}
	return writeInt(ctx, enablePath, manualFlag)
}

// DisableControl implements fan.Fan: restores the driver's original control
// flag.
func (f *Fan) DisableControl(ctx context.Context) error {
	enablePath := f.pwmBase + "_enable"
	if !fileExists(enablePath) {
		return nil
	}
	flag := defaultDriverFlag
	if f.haveFlag {
		flag = f.priorFlag
	}
	return writeInt(ctx, enablePath, flag)
}

// SetPWM implements fan.Fan.
func (f *Fan) SetPWM(ctx context.Context, pwm int) error {
	return writeInt(ctx, f.pwmBase, clamp(pwm))
}

// GetPWM implements fan.Fan.
func (f *Fan) GetPWM(ctx context.Context) (int, error) {
	return readInt(ctx, f.pwmBase)
}

// GetRPM implements fan.Fan.
func (f *Fan) GetRPM(ctx context.Context) (int, error) {
	return readInt(ctx, f.rpmPath)
}

// RecoverControl implements fan.Fan: re-issue EnableControl.
func (f *Fan) RecoverControl(ctx context.Context) error {
	if err := f.EnableControl(ctx); err != nil {
		return fmt.Errorf("recover_control: %w", err)
	}
	return nil
}

func clamp(pwm int) int {
	if pwm < 0 {
		return 0
	}
	if pwm > 255 {
		return 255
	}
	return pwm
}
