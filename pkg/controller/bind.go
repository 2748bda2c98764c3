// SPDX-License-Identifier: BSD-3-Clause

package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/fancond/fancond/pkg/fan"
	"github.com/fancond/fancond/pkg/fan/dellsmm"
	"github.com/fancond/fancond/pkg/fan/nvidia"
	"github.com/fancond/fancond/pkg/fan/sysfs"
)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

func trailingInt(s string) (int, bool) {
	m := trailingDigits.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

// hwmonIndex is a live snapshot of everything sysfs.Discover found,
// indexed by UID.Leaf (the base name of each device's sysfs path, e.g.
// "pwm1") so bindFan/bindSensor can resolve a configured UID to its live
// path without re-walking the tree per device. When two chips expose the
// same leaf, the one discovered last is the one indexed.
type hwmonIndex struct {
	fans map[string]sysfs.DiscoveredFan
	sensors map[string]sysfs.Discovered
}

func buildHwmonIndex(ctx context.Context, hwmonRoot string) (*hwmonIndex, error) {
	fans, sensors, err := sysfs.Discover(ctx, hwmonRoot)
	if err != nil {
		return nil, fmt.Errorf("build hwmon index: %w", err)
	}
	idx := &hwmonIndex{fans: map[string]sysfs.DiscoveredFan{}, sensors: map[string]sysfs.Discovered{}}
	for _, f := range fans {
		idx.fans[filepath.Base(f.Base)] = f
	}
	for _, s := range sensors {
		idx.sensors[filepath.Base(s.Base)] = s
	}
	return idx, nil
}

// bindFan resolves one FanConfig to a live fan.Fan backend.
// A sysfs or dell fan is looked up by its UID.Leaf, the same leaf
// GetEnumeratedDevices and the sysfs backend report; nvidia fans carry their GPU/cooler indices
// directly in their UID instead of a hwmon path.
func bindFan(ctx context.Context, fc fan.FanConfig, idx *hwmonIndex) (fan.Fan, error) {
	switch fc.UID.Backend {
	case fan.BackendSysfs:
		d, ok := idx.fans[fc.UID.Leaf]
		if !ok {
			return nil, fmt.Errorf("%w: sysfs fan %s not present on this host", ErrBindFailed, fc.Label)
		}
		return sysfs.NewFan(fc.Label, d.Chip, d.Base, d.RPMPath), nil

	case fan.BackendDell:
		d, ok := idx.fans[fc.UID.Leaf]
		if !ok {
			return nil, fmt.Errorf("%w: dell fan %s not present on this host", ErrBindFailed, fc.Label)
		}
		hwmonFan := sysfs.NewFan(fc.Label, d.Chip, d.Base, d.RPMPath)
		fanIndex, ok := trailingInt(d.Index)
		if !ok {
			fanIndex = 0
		} else {
			fanIndex--
		}
		df, err := dellsmm.NewFan(hwmonFan, fanIndex)
		if err != nil {
			return nil, fmt.Errorf("%w: dell fan %s: %w", ErrBindFailed, fc.Label, err)
		}
		return df, nil

	case fan.BackendNvidia:
		gpuID, _ := trailingInt(fc.UID.Chip)
		coolerID, _ := trailingInt(fc.UID.Leaf)
		nf, err := nvidia.NewFan(fc.Label, gpuID, coolerID)
		if err != nil {
			return nil, fmt.Errorf("%w: nvidia fan %s: %w", ErrBindFailed, fc.Label, err)
		}
		return nf, nil

	default:
		return nil, fmt.Errorf("%w: fan %s has unknown backend", ErrBindFailed, fc.Label)
	}
}

// bindSensor resolves one SensorConfig to a live fan.Sensor backend.
func bindSensor(ctx context.Context, sc fan.SensorConfig, idx *hwmonIndex) (fan.Sensor, error) {
	switch sc.UID.Backend {
	case fan.BackendSysfs, fan.BackendDell:
		d, ok := idx.sensors[sc.UID.Leaf]
		if !ok {
			return nil, fmt.Errorf("%w: sensor %s not present on this host", ErrBindFailed, sc.Label)
		}
		s, err := sysfs.NewSensor(ctx, sc.Label, d.Chip, d.Base)
		if err != nil {
			return nil, fmt.Errorf("%w: sensor %s: %w", ErrBindFailed, sc.Label, err)
		}
		return s, nil

	case fan.BackendNvidia:
		index, _ := trailingInt(sc.UID.Leaf)
		s, err := nvidia.NewSensor(sc.Label, index)
		if err != nil {
			return nil, fmt.Errorf("%w: nvidia sensor %s: %w", ErrBindFailed, sc.Label, err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: sensor %s has unknown backend", ErrBindFailed, sc.Label)
	}
}
