// SPDX-License-Identifier: BSD-3-Clause

package dellsmm

import (
	"context"
	"fmt"
	"time"

	"github.com/fancond/fancond/pkg/fan"
	"github.com/fancond/fancond/pkg/fan/sysfs"
)

// probeSettleDelay is how long a candidate control flag is given to move
// the tachometer before its resulting RPM is sampled.
const probeSettleDelay = 300 * time.Millisecond

// Fan is FanSysfs plus Dell SMM enable/disable. PWM/RPM I/O still goes
// through the embedded hwmon Fan; only enable_control/disable_control route
// through SMM.
type Fan struct {
	*sysfs.Fan
	fanIndex int
	flag controlFlag
	haveFlag bool
}

// NewFan wraps an hwmon Fan with Dell SMM control-flag election. fanIndex is
// the BIOS's 0-based fan index, not the hwmon pwm number.
func NewFan(hwmon *sysfs.Fan, fanIndex int) (*Fan, error) {
	if err := Available(); err != nil {
		return nil, err
	}
	if _, err := readFan(fanIndex); err != nil {
		return nil, fmt.Errorf("new_fan: %w", err)
	}
	return &Fan{Fan: hwmon, fanIndex: fanIndex}, nil
}

// EnableControl probes manual-control-{1,2,3} for whichever produces the
// largest RPM delta between PWM 0 and PWM 255, then elects it. The
// election result is cached across calls.
func (f *Fan) EnableControl(ctx context.Context) error {
	if err := f.Fan.EnableControl(ctx); err != nil {
		return err
	}
	if !f.haveFlag {
		flag, err := f.electFlag(ctx)
		if err != nil {
			return fmt.Errorf("enable_control: %w", err)
		}
		f.flag = flag
		f.haveFlag = true
	}
	_, err := call(f.flag.manualCmd(), registers{EBX: uint32(f.fanIndex)})
	if err != nil {
		return fmt.Errorf("enable_control: %w", err)
	}
	return nil
}

// DisableControl hands the fan back to BIOS automatic control via the
// elected flag, defaulting to flag 2 if election never ran.
func (f *Fan) DisableControl(ctx context.Context) error {
	flag := f.flag
	if !f.haveFlag {
		flag = controlFlag2
	}
	if err := restoreAuto(flag, f.fanIndex); err != nil {
		return fmt.Errorf("disable_control: %w", err)
	}
	return f.Fan.DisableControl(ctx)
}

// electFlag tries each manual-control command, measuring the RPM delta it
// induces between PWM 0 and PWM 255, and keeps the largest. Among equal
// non-zero deltas the flag probed first wins. When no flag changes the RPM
// or every probe fails, the result is controlFlag2.
func (f *Fan) electFlag(ctx context.Context) (controlFlag, error) {
	best := controlFlag2
	bestDelta := -1

	for _, flag := range []controlFlag{controlFlag1, controlFlag2, controlFlag3} {
		delta, err := f.probeDelta(ctx, flag)
		if err != nil {
			continue
		}
		if delta > bestDelta {
			bestDelta = delta
			best = flag
		}
	}
	if bestDelta <= 0 {
		return controlFlag2, nil
	}
	return best, nil
}

func (f *Fan) probeDelta(ctx context.Context, flag controlFlag) (int, error) {
	if _, err := call(flag.manualCmd(), registers{EBX: uint32(f.fanIndex)}); err != nil {
		return 0, err
	}
	defer restoreAuto(flag, f.fanIndex) //nolint:errcheck

	if err := f.Fan.SetPWM(ctx, 0); err != nil {
		return 0, err
	}
	time.Sleep(probeSettleDelay)
	low, err := f.Fan.GetRPM(ctx)
	if err != nil {
		return 0, err
	}

	if err := f.Fan.SetPWM(ctx, 255); err != nil {
		return 0, err
	}
	time.Sleep(probeSettleDelay)
	high, err := f.Fan.GetRPM(ctx)
	if err != nil {
		return 0, err
	}

	delta := high - low
	if delta < 0 {
		delta = -delta
	}
	return delta, nil
}

// RecoverControl re-issues EnableControl, re-applying the SMM flag.
func (f *Fan) RecoverControl(ctx context.Context) error {
	return f.EnableControl(ctx)
}

var _ fan.Fan = (*Fan)(nil)
