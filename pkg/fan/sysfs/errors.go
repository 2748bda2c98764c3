// SPDX-License-Identifier: BSD-3-Clause

package sysfs

import "errors"

var (
	// ErrFileNotFound indicates a sysfs attribute file does not exist.
	ErrFileNotFound = errors.New("sysfs file not found")
	// ErrPermissionDenied indicates a sysfs attribute file could not be accessed.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidValue indicates a sysfs attribute file did not contain a parseable value.
	ErrInvalidValue = errors.New("invalid sysfs value")
	// ErrDeviceNotFound indicates no hwmon device matched a requested name.
	ErrDeviceNotFound = errors.New("hwmon device not found")
	// ErrOperationTimeout indicates a cancellable sysfs I/O call exceeded its context deadline.
	ErrOperationTimeout = errors.New("sysfs operation timed out")
	// ErrFaulted indicates a _fault attribute reported a hardware fault.
	ErrFaulted = errors.New("hardware reports fault")
)
