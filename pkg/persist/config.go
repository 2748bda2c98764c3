// SPDX-License-Identifier: BSD-3-Clause

// Package persist implements controller.Persister on top of an ini.v1
// config file, mirroring original_source/src/Config.cpp's two-part shape:
// one global `[controller]` section for the tunables of
// GetControllerConfig/SetControllerConfig, plus one
// `[fan "<label>"]`/`[sensor "<label>"]` section per configured device.
// A point list or measured
// rpm_to_pwm curve has no natural ini scalar representation, so those two
// fields are stored as JSON blobs within their section, the same
// JSON-over-a-plain-transport choice fan.DevicesDTO already makes for the
// RPC wire format.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/ini.v1"

	"github.com/fancond/fancond/pkg/controller"
	"github.com/fancond/fancond/pkg/fan"
	"github.com/fancond/fancond/pkg/file"
)

const (
	sectionController = "controller"
	filePerm = 0o644
)

func fanSection(label string) string { return fmt.Sprintf("fan %q", label) }
func sensorSection(label string) string { return fmt.Sprintf("sensor %q", label) }

// Store is a file-backed controller.Persister and controller.Config store.
// One Store instance must not be used concurrently by callers holding their
// own lock expectations; Store serialises its own reads/writes.
type Store struct {
	path string
	mu sync.Mutex
}

// NewStore returns a Store backed by the ini file at path. The file need
// not exist yet; LoadDevices returns an empty DTO and LoadConfig returns
// controller.DefaultConfig() when it does not, matching the original's "missing config file defaults to an
// unconfigured controller" behaviour.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) load() (*ini.File, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true, AllowShadows: false}, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ini.Empty(), nil
		}
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return f, nil
}

func (s *Store) save(f *ini.File) error {
	data, err := iniToBytes(f)
	if err != nil {
		return fmt.Errorf("render %s: %w", s.path, err)
	}
	tmp := s.path + ".new"
	_ = os.Remove(tmp)
	if err := file.AtomicCreateFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func iniToBytes(f *ini.File) ([]byte, error) {
	var w writerBuf
	if _, err := f.WriteTo(&w); err != nil {
		return nil, err
	}
	return w.b, nil
}

// writerBuf is a minimal io.Writer sink; avoids pulling in bytes.Buffer just
// to satisfy ini.File.WriteTo's io.Writer parameter.
type writerBuf struct{ b []byte }

func (w *writerBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// LoadConfig implements the controller-wide tunables half of persistence.
func (s *Store) LoadConfig(ctx context.Context) (controller.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return controller.Config{}, err
	}
	if !f.HasSection(sectionController) {
		return controller.DefaultConfig(), nil
	}

	sec := f.Section(sectionController)
	def := controller.DefaultConfig()
	return controller.Config{
		UpdateInterval: time.Duration(sec.Key("update_interval_ms").MustInt64(def.UpdateInterval.Milliseconds())) * time.Millisecond,
		SmoothingIntervals: sec.Key("smoothing_intervals").MustInt(def.SmoothingIntervals),
		TopStickinessIntervals: sec.Key("top_stickiness_intervals").MustInt(def.TopStickinessIntervals),
		MaxThreads: sec.Key("max_threads").MustInt(def.MaxThreads),
		Dynamic: sec.Key("dynamic").MustBool(def.Dynamic),
	}, nil
}

// SaveConfig persists cfg into the `[controller]` section, leaving any
// `[fan...]`/`[sensor...]` sections already in the file untouched.
func (s *Store) SaveConfig(ctx context.Context, cfg controller.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}

	sec, err := f.NewSection(sectionController)
	if err != nil {
		return fmt.Errorf("section %s: %w", sectionController, err)
	}
	setInt64(sec, "update_interval_ms", cfg.UpdateInterval.Milliseconds())
	setInt(sec, "smoothing_intervals", cfg.SmoothingIntervals)
	setInt(sec, "top_stickiness_intervals", cfg.TopStickinessIntervals)
	setInt(sec, "max_threads", cfg.MaxThreads)
	setBool(sec, "dynamic", cfg.Dynamic)

	return s.save(f)
}

// LoadDevices implements controller.Persister: reconstructs a
// fan.DevicesDTO from every `[fan...]`/`[sensor...]` section present.
func (s *Store) LoadDevices(ctx context.Context) (fan.DevicesDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return fan.DevicesDTO{}, err
	}

	var dto fan.DevicesDTO
	for _, sec := range f.Sections() {
		label, kind, ok := parseDeviceSection(sec.Name())
		if !ok {
			continue
		}
		switch kind {
		case "fan":
			fdto, err := fanDTOFromSection(label, sec)
			if err != nil {
				return fan.DevicesDTO{}, fmt.Errorf("section %s: %w", sec.Name(), err)
			}
			dto.Fans = append(dto.Fans, fdto)
		case "sensor":
			dto.Sensors = append(dto.Sensors, fan.SensorDTO{
					Label: label,
					Backend: sec.Key("backend").String(),
					Chip: sec.Key("chip").String(),
					Leaf: sec.Key("leaf").String(),
					AveragingIntervals: sec.Key("averaging_intervals").MustInt(1),
				})
		}
	}
	return dto, nil
}

// SaveDevices implements controller.Persister: replaces every
// `[fan...]`/`[sensor...]` section with dto's contents, leaving
// `[controller]` untouched.
func (s *Store) SaveDevices(ctx context.Context, dto fan.DevicesDTO) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}

	for _, name := range f.SectionStrings() {
		if _, _, ok := parseDeviceSection(name); ok {
			f.DeleteSection(name)
		}
	}

	for _, fdto := range dto.Fans {
		sec, err := f.NewSection(fanSection(fdto.Label))
		if err != nil {
			return fmt.Errorf("section fan %s: %w", fdto.Label, err)
		}
		if err := fanSectionFromDTO(sec, fdto); err != nil {
			return fmt.Errorf("section fan %s: %w", fdto.Label, err)
		}
	}
	for _, sdto := range dto.Sensors {
		sec, err := f.NewSection(sensorSection(sdto.Label))
		if err != nil {
			return fmt.Errorf("section sensor %s: %w", sdto.Label, err)
		}
		sec.Key("backend").SetValue(sdto.Backend)
		sec.Key("chip").SetValue(sdto.Chip)
		sec.Key("leaf").SetValue(sdto.Leaf)
		setInt(sec, "averaging_intervals", sdto.AveragingIntervals)
	}

	return s.save(f)
}

func fanDTOFromSection(label string, sec *ini.Section) (fan.FanDTO, error) {
	fdto := fan.FanDTO{
		Label: label,
		Backend: sec.Key("backend").String(),
		Chip: sec.Key("chip").String(),
		Leaf: sec.Key("leaf").String(),
		SensorLabel: sec.Key("sensor_label").String(),
		StartPWM: sec.Key("start_pwm").MustInt(0),
		IntervalMS: sec.Key("interval_ms").MustInt64(0),
		DriverFlag: sec.Key("driver_flag").MustInt(0),
		Enabled: sec.Key("enabled").MustBool(false),
	}

	if raw := sec.Key("points_json").String(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fdto.Points); err != nil {
			return fan.FanDTO{}, fmt.Errorf("points_json: %w", err)
		}
	}
	if raw := sec.Key("rpm_to_pwm_json").String(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fdto.RPMToPWM); err != nil {
			return fan.FanDTO{}, fmt.Errorf("rpm_to_pwm_json: %w", err)
		}
	}
	return fdto, nil
}

func fanSectionFromDTO(sec *ini.Section, fdto fan.FanDTO) error {
	sec.Key("backend").SetValue(fdto.Backend)
	sec.Key("chip").SetValue(fdto.Chip)
	sec.Key("leaf").SetValue(fdto.Leaf)
	sec.Key("sensor_label").SetValue(fdto.SensorLabel)
	setInt(sec, "start_pwm", fdto.StartPWM)
	setInt64(sec, "interval_ms", fdto.IntervalMS)
	setInt(sec, "driver_flag", fdto.DriverFlag)
	setBool(sec, "enabled", fdto.Enabled)

	if len(fdto.Points) > 0 {
		raw, err := json.Marshal(fdto.Points)
		if err != nil {
			return fmt.Errorf("marshal points: %w", err)
		}
		sec.Key("points_json").SetValue(string(raw))
	}
	if len(fdto.RPMToPWM) > 0 {
		raw, err := json.Marshal(fdto.RPMToPWM)
		if err != nil {
			return fmt.Errorf("marshal rpm_to_pwm: %w", err)
		}
		sec.Key("rpm_to_pwm_json").SetValue(string(raw))
	}
	return nil
}

// parseDeviceSection recognises `fan "label"` / `sensor "label"` section
// names and extracts the subsection label ini.v1 exposes via
// Section.Name() verbatim (it does not unquote the subsection itself).
func parseDeviceSection(name string) (label, kind string, ok bool) {
	const prefixFan = `fan "`
	const prefixSensor = `sensor "`
	switch {
	case len(name) > len(prefixFan) && name[:len(prefixFan)] == prefixFan:
		return trimQuote(name[len(prefixFan):]), "fan", true
	case len(name) > len(prefixSensor) && name[:len(prefixSensor)] == prefixSensor:
		return trimQuote(name[len(prefixSensor):]), "sensor", true
	default:
		return "", "", false
	}
}

func trimQuote(s string) string {
	if len(s) > 0 && s[len(s)-1] == '"' {
		return s[:len(s)-1]
	}
	return s
}

func setInt(sec *ini.Section, key string, v int) { sec.Key(key).SetValue(fmt.Sprintf("%d", v)) }
func setInt64(sec *ini.Section, key string, v int64) { sec.Key(key).SetValue(fmt.Sprintf("%d", v)) }
func setBool(sec *ini.Section, key string, v bool) { sec.Key(key).SetValue(fmt.Sprintf("%t", v)) }
