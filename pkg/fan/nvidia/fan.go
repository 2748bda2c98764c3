// SPDX-License-Identifier: BSD-3-Clause

package nvidia

import (
	"context"
	"fmt"

	"github.com/fancond/fancond/pkg/fan"
)

// Fan drives one GPU's cooler target through NV-CONTROL. PWM is stored in the library's usual 0..255 range and
// translated to/from the cooler's native 0..100 percentage.
type Fan struct {
	label string
	gpuID int
	coolerID int
}

// NewFan builds a Fan for the given GPU and cooler target IDs.
func NewFan(label string, gpuID, coolerID int) (*Fan, error) {
	if coolerID < 0 {
		return nil, ErrNoCooler
	}
	return &Fan{label: label, gpuID: gpuID, coolerID: coolerID}, nil
}

// Label implements fan.Fan.
func (f *Fan) Label() string { return f.label }

// UID implements fan.Fan.
func (f *Fan) UID() fan.UID {
	return fan.UID{Backend: fan.BackendNvidia, Chip: fmt.Sprintf("gpu%d", f.gpuID), Leaf: fmt.Sprintf("cooler%d", f.coolerID)}
}

// Valid implements fan.Fan.
func (f *Fan) Valid() bool {
	_, err := getCoolerAttr(f.coolerID, attrThermalCoolerCurrent)
	return err == nil
}

// EnableControl implements fan.Fan: sets NV_CTRL_GPU_COOLER_MANUAL_CONTROL.
func (f *Fan) EnableControl(ctx context.Context) error {
	return setGPUAttr(f.gpuID, attrGPUCoolerManualControl, 1)
}

// DisableControl implements fan.Fan.
func (f *Fan) DisableControl(ctx context.Context) error {
	return setGPUAttr(f.gpuID, attrGPUCoolerManualControl, 0)
}

// SetPWM implements fan.Fan: translates 0..255 to the cooler's 0..100 level.
func (f *Fan) SetPWM(ctx context.Context, pwm int) error {
	return setCoolerLevel(f.coolerID, pwmToPercent(clamp(pwm)))
}

// GetPWM implements fan.Fan.
func (f *Fan) GetPWM(ctx context.Context) (int, error) {
	percent, err := getCoolerAttr(f.coolerID, attrThermalCoolerCurrent)
	if err != nil {
		return 0, err
	}
	return percentToPWM(percent), nil
}

// GetRPM implements fan.Fan: NV-CONTROL coolers report a level, not a
// tachometer reading, so RPM is approximated from the same percentage.
func (f *Fan) GetRPM(ctx context.Context) (int, error) {
	percent, err := getCoolerAttr(f.coolerID, attrThermalCoolerCurrent)
	if err != nil {
		return 0, err
	}
	return percent * 100, nil
}

// RecoverControl implements fan.Fan.
func (f *Fan) RecoverControl(ctx context.Context) error {
	return f.EnableControl(ctx)
}

func pwmToPercent(pwm int) int { return (pwm * 100) / 255 }

func percentToPWM(percent int) int { return (percent * 255) / 100 }

func clamp(pwm int) int {
	if pwm < 0 {
		return 0
	}
	if pwm > 255 {
		return 255
	}
	return pwm
}

var _ fan.Fan = (*Fan)(nil)
