// SPDX-License-Identifier: BSD-3-Clause

package nvidia

import "errors"

var (
	// ErrUnsupported indicates neither NVML nor libXNVCtrl could be loaded
	// on this machine, so the NVIDIA backend reports unavailable rather
	// than failing.
	ErrUnsupported = errors.New("nvidia: backend unsupported")
	ErrNoCooler = errors.New("nvidia: gpu has no cooler target")
	ErrAttributeFailed = errors.New("nvidia: NV-CONTROL attribute call failed")
)
