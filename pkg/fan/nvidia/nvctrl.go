// SPDX-License-Identifier: BSD-3-Clause

// Package nvidia implements the FanNvidia fan backend and its paired
// NVIDIA GPU temperature sensor. Fan control rides the NV-CONTROL X11
// extension (the GPU cooler target, manual mode, 0..100 level); temperature
// reads go through NVML (github.com/NVIDIA/go-nvml) since it works
// headless, without an X server.
//
// Neither library is cgo-linked: NV-CONTROL is reached by dynamically
// loading libX11.so.6/libXNVCtrl.so.1 with github.com/ebitengine/purego to
// dlopen the C ABI without cgo. If either library is absent the backend
// reports ErrUnsupported rather than failing outright.
package nvidia

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
)

// NV-CONTROL target types (NVCtrlLib.h).
const (
	targetTypeGPU = 1
	targetTypeCooler = 5
)

// NV-CONTROL attributes (NVCtrlLib.h) used by the cooler control path.
const (
	attrGPUCoolerManualControl = 319
	attrThermalCoolerLevel = 100
	attrThermalCoolerCurrent = 124
)

type nvctrlBinding struct {
	xOpenDisplay func(name string) uintptr
	queryExtension func(dpy uintptr, eventBase, errorBase *int32) int32
	queryTargetCount func(dpy uintptr, targetType int32, count *int32) int32
	queryAttribute func(dpy uintptr, targetType, targetID int32, displayMask uint32, attribute uint32, value *int32) int32
	setAttribute func(dpy uintptr, targetType, targetID int32, displayMask uint32, attribute uint32, value int32) int32
}

var (
	ctrlOnce sync.Once
	ctrlErr error
	ctrlDisplay uintptr
	ctrlBind nvctrlBinding
	ctrlMu sync.Mutex
)

func ensureNVCtrl() error {
	ctrlOnce.Do(func() {
			x11, err := purego.Dlopen("libX11.so.6", purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err != nil {
				ctrlErr = fmt.Errorf("%w: %w", ErrUnsupported, err)
				return
			}
			nvctrl, err := purego.Dlopen("libXNVCtrl.so.1", purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err != nil {
				ctrlErr = fmt.Errorf("%w: %w", ErrUnsupported, err)
				return
			}

			purego.RegisterLibFunc(&ctrlBind.xOpenDisplay, x11, "XOpenDisplay")
			purego.RegisterLibFunc(&ctrlBind.queryExtension, nvctrl, "XNVCTRLQueryExtension")
			purego.RegisterLibFunc(&ctrlBind.queryTargetCount, nvctrl, "XNVCTRLQueryTargetCount")
			purego.RegisterLibFunc(&ctrlBind.queryAttribute, nvctrl, "XNVCTRLQueryTargetAttribute")
			purego.RegisterLibFunc(&ctrlBind.setAttribute, nvctrl, "XNVCTRLSetTargetAttribute")

			dpy := ctrlBind.xOpenDisplay("")
			if dpy == 0 {
				ctrlErr = fmt.Errorf("%w: no X11 display", ErrUnsupported)
				return
			}
			var eventBase, errorBase int32
			if ctrlBind.queryExtension(dpy, &eventBase, &errorBase) == 0 {
				ctrlErr = fmt.Errorf("%w: XNVCTRL extension missing", ErrUnsupported)
				return
			}
			ctrlDisplay = dpy
		})
	return ctrlErr
}

// coolerCount returns the number of cooler targets the X server exposes.
func coolerCount() (int, error) {
	if err := ensureNVCtrl(); err != nil {
		return 0, err
	}
	ctrlMu.Lock()
	defer ctrlMu.Unlock()
	var count int32
	if ctrlBind.queryTargetCount(ctrlDisplay, targetTypeCooler, &count) == 0 {
		return 0, ErrAttributeFailed
	}
	return int(count), nil
}

func getCoolerAttr(coolerID int, attr uint32) (int, error) {
	if err := ensureNVCtrl(); err != nil {
		return 0, err
	}
	ctrlMu.Lock()
	defer ctrlMu.Unlock()
	var value int32
	if ctrlBind.queryAttribute(ctrlDisplay, targetTypeCooler, int32(coolerID), 0, attr, &value) == 0 {
		return 0, fmt.Errorf("%w: attr %d on cooler %d", ErrAttributeFailed, attr, coolerID)
	}
	return int(value), nil
}

func setGPUAttr(gpuID int, attr uint32, value int) error {
	if err := ensureNVCtrl(); err != nil {
		return err
	}
	ctrlMu.Lock()
	defer ctrlMu.Unlock()
	ctrlBind.setAttribute(ctrlDisplay, targetTypeGPU, int32(gpuID), 0, attr, int32(value))
	return nil
}

func setCoolerLevel(coolerID, level int) error {
	if err := ensureNVCtrl(); err != nil {
		return err
	}
	ctrlMu.Lock()
	defer ctrlMu.Unlock()
	ctrlBind.setAttribute(ctrlDisplay, targetTypeCooler, int32(coolerID), 0, attrThermalCoolerLevel, int32(level))
	return nil
}
