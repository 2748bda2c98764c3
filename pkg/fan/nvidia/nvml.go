// SPDX-License-Identifier: BSD-3-Clause

package nvidia

import (
	"context"
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/fancond/fancond/pkg/fan"
)

var (
	nvmlOnce sync.Once
	nvmlErr error
)

func ensureNVML() error {
	nvmlOnce.Do(func() {
			if ret := nvml.Init(); ret != nvml.SUCCESS {
				nvmlErr = fmt.Errorf("%w: nvmlInit: %s", ErrUnsupported, nvml.ErrorString(ret))
			}
		})
	return nvmlErr
}

// GPU identifies one enumerated NVIDIA GPU, paired with its cooler and sensor
// targets once discovered.
type GPU struct {
	Index int
	UUID string
	Name string
	CoolerID int // -1 if no matching cooler target was found
}

// Enumerate lists GPUs visible to NVML and pairs each with a cooler target
// by positional index, the same best-effort pairing the original's
// NvidiaDevices enumeration performs when no richer target-id mapping is
// exposed by the driver.
func Enumerate() ([]GPU, error) {
	if err := ensureNVML(); err != nil {
		return nil, err
	}
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("%w: nvmlDeviceGetCount: %s", ErrAttributeFailed, nvml.ErrorString(ret))
	}

	coolers, _ := coolerCount()

	gpus := make([]GPU, 0, count)
	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		uuid, _ := dev.GetUUID()
		name, _ := dev.GetName()
		coolerID := -1
		if i < coolers {
			coolerID = i
		}
		gpus = append(gpus, GPU{Index: i, UUID: uuid, Name: name, CoolerID: coolerID})
	}
	return gpus, nil
}

// Sensor reads a GPU's core temperature through NVML.
type Sensor struct {
	label string
	index int
}

// NewSensor builds a Sensor for GPU index.
func NewSensor(label string, index int) (*Sensor, error) {
	if err := ensureNVML(); err != nil {
		return nil, err
	}
	return &Sensor{label: label, index: index}, nil
}

// Label implements fan.Sensor.
func (s *Sensor) Label() string { return s.label }

// UID implements fan.Sensor.
func (s *Sensor) UID() fan.UID {
	return fan.UID{Backend: fan.BackendNvidia, Chip: "nvml", Leaf: fmt.Sprintf("gpu%d", s.index)}
}

// Valid implements fan.Sensor.
func (s *Sensor) Valid() bool {
	_, ret := nvml.DeviceGetHandleByIndex(s.index)
	return ret == nvml.SUCCESS
}

// Read implements fan.Sensor: GPU core temperature in whole degrees C.
func (s *Sensor) Read(ctx context.Context) (int, bool) {
	dev, ret := nvml.DeviceGetHandleByIndex(s.index)
	if ret != nvml.SUCCESS {
		return 0, false
	}
	temp, ret := dev.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return 0, false
	}
	return int(temp), true
}

// MinTemp implements fan.Sensor: NVML exposes no configured minimum.
func (s *Sensor) MinTemp() (int, bool) { return 0, false }

// MaxTemp implements fan.Sensor: the GPU's shutdown threshold, when NVML
// reports one.
func (s *Sensor) MaxTemp() (int, bool) {
	dev, ret := nvml.DeviceGetHandleByIndex(s.index)
	if ret != nvml.SUCCESS {
		return 0, false
	}
	limit, ret := dev.GetTemperatureThreshold(nvml.TEMPERATURE_THRESHOLD_SHUTDOWN)
	if ret != nvml.SUCCESS {
		return 0, false
	}
	return int(limit), true
}
