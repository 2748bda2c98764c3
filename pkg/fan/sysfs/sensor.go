// SPDX-License-Identifier: BSD-3-Clause

package sysfs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fancond/fancond/pkg/fan"
)

// Sensor implements fan.Sensor over hwmon temp* attributes.
type Sensor struct {
	label string
	base string // e.g. /sys/class/hwmon/hwmon0/temp1
	chip string
}

// NewSensor builds a Sensor rooted at base (without the _input suffix). If
// an _enable attribute exists and currently reads <= 0, it is turned on.
// If _fault reads > 0 the sensor is left to the caller to mark ignored via
// fan.AveragingSensor.Ignore.
func NewSensor(ctx context.Context, label, chip, base string) (*Sensor, error) {
	s := &Sensor{label: label, base: base, chip: chip}
	if !fileExists(base + "_input") {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, base+"_input")
	}
	if fileExists(base + "_enable") {
		if v, err := readInt(ctx, base+"_enable"); err == nil && v <= 0 {
			_ = writeInt(ctx, base+"_enable", 1)
		}
	}
	return s, nil
}

// Label implements fan.Sensor.
func (s *Sensor) Label() string { return s.label }

// UID implements fan.Sensor.
func (s *Sensor) UID() fan.UID {
	return fan.UID{Backend: fan.BackendSysfs, Chip: s.chip, Leaf: filepath.Base(s.base)}
}

// Valid implements fan.Sensor.
func (s *Sensor) Valid() bool { return fileExists(s.base + "_input") }

// Faulted reports whether the _fault attribute, if present, is set.
func (s *Sensor) Faulted(ctx context.Context) bool {
	if !fileExists(s.base + "_fault") {
		return false
	}
	v, err := readInt(ctx, s.base+"_fault")
	return err == nil && v > 0
}

// Read implements fan.Sensor: one-shot read of the millidegree-C value.
func (s *Sensor) Read(ctx context.Context) (int, bool) {
	milli, err := readInt(ctx, s.base+"_input")
	if err != nil {
		return 0, false
	}
	return milli / 1000, true
}

// MinTemp implements fan.Sensor.
func (s *Sensor) MinTemp() (int, bool) {
	return s.optionalMilliAttr("_min")
}

// MaxTemp implements fan.Sensor.
func (s *Sensor) MaxTemp() (int, bool) {
	return s.optionalMilliAttr("_max")
}

func (s *Sensor) optionalMilliAttr(suffix string) (int, bool) {
	path := s.base + suffix
	if !fileExists(path) {
		return 0, false
	}
	v, err := readInt(context.Background(), path)
	if err != nil {
		return 0, false
	}
	return v / 1000, true
}
