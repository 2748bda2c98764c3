// SPDX-License-Identifier: BSD-3-Clause

package persist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fancond/fancond/pkg/controller"
	"github.com/fancond/fancond/pkg/fan"
)

func TestStoreLoadConfigMissingFileReturnsDefault(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.ini"))

	cfg, err := s.LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, controller.DefaultConfig(), cfg)
}

func TestStoreSaveAndLoadConfigRoundTrips(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "fancond.ini"))

	cfg := controller.Config{
		UpdateInterval:         7 * time.Second,
		SmoothingIntervals:     9,
		TopStickinessIntervals: 4,
		MaxThreads:             2,
		Dynamic:                false,
	}
	require.NoError(t, s.SaveConfig(context.Background(), cfg))

	got, err := s.LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestStoreSaveAndLoadDevicesRoundTrips(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "fancond.ini"))

	rpm := 1200
	pwm := 128
	dto := fan.DevicesDTO{
		Sensors: []fan.SensorDTO{
			{Label: "cpu", Backend: "sysfs", Chip: "hwmon0", Leaf: "temp1_input", AveragingIntervals: 3},
		},
		Fans: []fan.FanDTO{
			{
				Label:       "cpu_fan",
				Backend:     "sysfs",
				Chip:        "hwmon0",
				Leaf:        "pwm1",
				SensorLabel: "cpu",
				Points: []fan.PointDTO{
					{Temp: 40, PWM: &pwm},
					{Temp: 60, RPM: &rpm},
				},
				RPMToPWM:   map[int]int{1200: 150},
				StartPWM:   90,
				IntervalMS: 500,
				Enabled:    true,
			},
		},
	}

	require.NoError(t, s.SaveDevices(context.Background(), dto))

	got, err := s.LoadDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Fans, 1)
	require.Len(t, got.Sensors, 1)

	assert.Equal(t, "cpu_fan", got.Fans[0].Label)
	assert.Equal(t, "cpu", got.Fans[0].SensorLabel)
	assert.Equal(t, 90, got.Fans[0].StartPWM)
	assert.True(t, got.Fans[0].Enabled)
	assert.Equal(t, map[int]int{1200: 150}, got.Fans[0].RPMToPWM)
	require.Len(t, got.Fans[0].Points, 2)

	assert.Equal(t, "cpu", got.Sensors[0].Label)
	assert.Equal(t, 3, got.Sensors[0].AveragingIntervals)
}

func TestStoreSaveDevicesLeavesControllerSectionUntouched(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "fancond.ini"))

	cfg := controller.DefaultConfig()
	cfg.SmoothingIntervals = 11
	require.NoError(t, s.SaveConfig(context.Background(), cfg))

	require.NoError(t, s.SaveDevices(context.Background(), fan.DevicesDTO{
		Fans: []fan.FanDTO{{Label: "f1", SensorLabel: "s1"}},
	}))

	got, err := s.LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, got.SmoothingIntervals)
}

func TestParseDeviceSection(t *testing.T) {
	label, kind, ok := parseDeviceSection(`fan "cpu_fan"`)
	require.True(t, ok)
	assert.Equal(t, "cpu_fan", label)
	assert.Equal(t, "fan", kind)

	label, kind, ok = parseDeviceSection(`sensor "cpu"`)
	require.True(t, ok)
	assert.Equal(t, "cpu", label)
	assert.Equal(t, "sensor", kind)

	_, _, ok = parseDeviceSection("controller")
	assert.False(t, ok)

	_, _, ok = parseDeviceSection("DEFAULT")
	assert.False(t, ok)
}
