// SPDX-License-Identifier: BSD-3-Clause

package sysfs

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
)

var (
	pwmPattern = regexp.MustCompile(`^pwm(\d+)$`)
	fanPattern = regexp.MustCompile(`^fan(\d+)_input$`)
	tempPattern = regexp.MustCompile(`^temp(\d+)_input$`)
)

// Discovered is one enumerated hwmon fan or sensor, prior to being bound
// into a fan.Fan/fan.Sensor (enumerated devices carry empty curves, per
// "Lifecycle").
type Discovered struct {
	Label string // synthetic label, e.g. "hwmon0/pwm1"
	Chip string
	Base string // pwm or temp base path, without suffix
	Index string
}

// DiscoveredFan pairs a pwm base with its matching tachometer, when one
// exists at the same index.
type DiscoveredFan struct {
	Discovered
	RPMPath string
}

// Discover scans hwmonPath for fan (pwmN + fanN_input) and sensor
// (tempN_input) attributes. Enumerated devices carry empty curves; it is
// up to the caller to bind them to real control curves before use.
func Discover(ctx context.Context, hwmonPath string) (fans []DiscoveredFan, sensors []Discovered, err error) {
	devices, err := listDevices(hwmonPath)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	for _, dev := range devices {
		chip, _ := readString(ctx, filepath.Join(dev, "name"))
		if chip == "" {
			chip = filepath.Base(dev)
		}

		entries, derr := listAttributeNames(dev)
		if derr != nil {
			continue
		}

		rpmByIndex := map[string]string{}
		for _, name := range entries {
			if m := fanPattern.FindStringSubmatch(name); m != nil {
				rpmByIndex[m[1]] = filepath.Join(dev, name)
			}
		}

		for _, name := range entries {
			if m := pwmPattern.FindStringSubmatch(name); m != nil {
				idx := m[1]
				base := filepath.Join(dev, name)
				df := DiscoveredFan{Discovered: Discovered{
						Label: fmt.Sprintf("%s/pwm%s", filepath.Base(dev), idx),
						Chip: chip, Base: base, Index: idx,
					}}
				if rpm, ok := rpmByIndex[idx]; ok {
					df.RPMPath = rpm
				} else {
					df.RPMPath = filepath.Join(dev, "fan"+idx+"_input")
				}
				fans = append(fans, df)
			}
			if m := tempPattern.FindStringSubmatch(name); m != nil {
				idx := m[1]
				base := filepath.Join(dev, "temp"+idx)
				sensors = append(sensors, Discovered{
						Label: fmt.Sprintf("%s/temp%s", filepath.Base(dev), idx),
						Chip: chip, Base: base, Index: idx,
					})
			}
		}
	}
	return fans, sensors, nil
}
