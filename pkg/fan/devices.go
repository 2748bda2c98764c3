// SPDX-License-Identifier: BSD-3-Clause

package fan

import (
	"fmt"
	"time"
)

// FanConfig is the loaded, not-yet-bound configuration for one fan: its
// points, backend identity and timing. Loading a FanConfig into a Curve
// pair drops RPM-denominated points on an untested fan (no measured
// rpm_to_pwm) with a warning; PWM-only points are mapped into both curves
// as an identity entry so resolvePWM can use them directly.
type FanConfig struct {
	Label string
	UID UID
	SensorLabel string
	Points []Point
	RPMToPWM map[int]int // populated by a prior characterisation test
	StartPWM int
	Interval time.Duration
	DriverFlag int // Dell-only: elected manual-control flag
	Enabled bool
}

// LoadResult is the outcome of converting a FanConfig into bound curves.
type LoadResult struct {
	TempToRPM *Curve
	RPMToPWM *Curve
	Dropped []string // human-readable descriptions of points dropped, for a warning log
}

// Load converts raw configured Points plus any prior test results into the
// two curves the control loop consumes. The fan counts as tested when
// fc.RPMToPWM is non-empty.
func (fc FanConfig) Load() LoadResult {
	tested := len(fc.RPMToPWM) > 0

	tempToRPM := map[int]int{}
	rpmToPWM := map[int]int{}
	for k, v := range fc.RPMToPWM {
		rpmToPWM[k] = v
	}

	var dropped []string
	for _, p := range fc.Points {
		if err := p.Validate(); err != nil {
			dropped = append(dropped, fmt.Sprintf("temp=%d: %v", p.Temp, err))
			continue
		}

		switch {
		case p.RPM != nil:
			if !tested {
				dropped = append(dropped, fmt.Sprintf("temp=%d rpm=%d: rpm-denominated point on untested fan", p.Temp, *p.RPM))
				continue
			}
			tempToRPM[p.Temp] = *p.RPM
		case p.PWM != nil:
			// PWM-only point: map identity-wise so the untested-fan path in
			// ControlledFan.resolvePWM returns the configured PWM unchanged.
			tempToRPM[p.Temp] = *p.PWM
			rpmToPWM[*p.PWM] = *p.PWM
		}
	}

	return LoadResult{
		TempToRPM: NewCurve(tempToRPM),
		RPMToPWM: NewCurve(rpmToPWM),
		Dropped: dropped,
	}
}

// SensorConfig is the loaded configuration for one sensor.
type SensorConfig struct {
	Label string
	UID UID
	AveragingIntervals int
}

// Devices is the Controller's top-level container: a set of fans and
// sensors keyed by label. Labels are unique within each map.
type Devices struct {
	Fans map[string]FanConfig
	Sensors map[string]SensorConfig
}

// NewDevices returns an empty Devices set.
func NewDevices() *Devices {
	return &Devices{Fans: map[string]FanConfig{}, Sensors: map[string]SensorConfig{}}
}

// Validate checks invariant 1: every fan's sensor label resolves
// within the same Devices set.
func (d *Devices) Validate() error {
	for label, fc := range d.Fans {
		if _, ok := d.Sensors[fc.SensorLabel]; !ok {
			return fmt.Errorf("%w: fan %q references sensor %q", ErrUnknownSensor, label, fc.SensorLabel)
		}
	}
	return nil
}

// DevicesDTO is the JSON wire format used both for on-disk persistence and
// as the RPC payload for GetDevices/SetDevices/SubscribeDevices. There is
// no generated protobuf schema for fan devices, so this hand-written JSON
// DTO carries the wire format directly.
type DevicesDTO struct {
	Fans []FanDTO `json:"fans"`
	Sensors []SensorDTO `json:"sensors"`
}

// FanDTO is the wire representation of one FanConfig.
type FanDTO struct {
	Label string `json:"label"`
	Backend string `json:"backend"`
	Chip string `json:"chip"`
	Leaf string `json:"leaf"`
	SensorLabel string `json:"sensor_label"`
	Points []PointDTO `json:"points"`
	RPMToPWM map[int]int `json:"rpm_to_pwm,omitempty"`
	StartPWM int `json:"start_pwm"`
	IntervalMS int64 `json:"interval_ms"`
	DriverFlag int `json:"driver_flag,omitempty"`
	Enabled bool `json:"enabled"`
}

// PointDTO is the wire representation of a Point; exactly one of RPM/PWM
// is expected to be non-nil, mirroring Point's own invariant.
type PointDTO struct {
	Temp int `json:"temp"`
	RPM *int `json:"rpm,omitempty"`
	PWM *int `json:"pwm,omitempty"`
}

// SensorDTO is the wire representation of one SensorConfig.
type SensorDTO struct {
	Label string `json:"label"`
	Backend string `json:"backend"`
	Chip string `json:"chip"`
	Leaf string `json:"leaf"`
	AveragingIntervals int `json:"averaging_intervals"`
}

// ToDTO snapshots Devices into its wire representation.
func (d *Devices) ToDTO() DevicesDTO {
	dto := DevicesDTO{
		Fans: make([]FanDTO, 0, len(d.Fans)),
		Sensors: make([]SensorDTO, 0, len(d.Sensors)),
	}
	for _, fc := range d.Fans {
		fdto := FanDTO{
			Label: fc.Label,
			Backend: fc.UID.Backend.String(),
			Chip: fc.UID.Chip,
			Leaf: fc.UID.Leaf,
			SensorLabel: fc.SensorLabel,
			StartPWM: fc.StartPWM,
			IntervalMS: fc.Interval.Milliseconds(),
			DriverFlag: fc.DriverFlag,
			Enabled: fc.Enabled,
			RPMToPWM: fc.RPMToPWM,
		}
		for _, p := range fc.Points {
			fdto.Points = append(fdto.Points, PointDTO{Temp: p.Temp, RPM: p.RPM, PWM: p.PWM})
		}
		dto.Fans = append(dto.Fans, fdto)
	}
	for _, sc := range d.Sensors {
		dto.Sensors = append(dto.Sensors, SensorDTO{
				Label: sc.Label,
				Backend: sc.UID.Backend.String(),
				Chip: sc.UID.Chip,
				Leaf: sc.UID.Leaf,
				AveragingIntervals: sc.AveragingIntervals,
			})
	}
	return dto
}

// FromDTO reconstructs a Devices set from its wire representation.
func FromDTO(dto DevicesDTO) (*Devices, error) {
	d := NewDevices()
	for _, sdto := range dto.Sensors {
		d.Sensors[sdto.Label] = SensorConfig{
			Label: sdto.Label,
			UID: UID{Backend: parseBackend(sdto.Backend), Chip: sdto.Chip, Leaf: sdto.Leaf},
			AveragingIntervals: sdto.AveragingIntervals,
		}
	}
	for _, fdto := range dto.Fans {
		points := make([]Point, 0, len(fdto.Points))
		for _, pdto := range fdto.Points {
			points = append(points, Point{Temp: pdto.Temp, RPM: pdto.RPM, PWM: pdto.PWM})
		}
		d.Fans[fdto.Label] = FanConfig{
			Label: fdto.Label,
			UID: UID{Backend: parseBackend(fdto.Backend), Chip: fdto.Chip, Leaf: fdto.Leaf},
			SensorLabel: fdto.SensorLabel,
			Points: points,
			RPMToPWM: fdto.RPMToPWM,
			StartPWM: fdto.StartPWM,
			Interval: time.Duration(fdto.IntervalMS) * time.Millisecond,
			DriverFlag: fdto.DriverFlag,
			Enabled: fdto.Enabled,
		}
	}
	return d, d.Validate()
}

func parseBackend(s string) Backend {
	switch s {
	case "dell":
		return BackendDell
	case "nvidia":
		return BackendNvidia
	default:
		return BackendSysfs
	}
}
