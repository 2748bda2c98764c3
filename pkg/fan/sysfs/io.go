// SPDX-License-Identifier: BSD-3-Clause

// Package sysfs implements the generic Linux hwmon fan and sensor backend.
// It is a direct generalisation of pkg/hwmon: the same context-cancellable
// goroutine+channel I/O pattern and sentinel-error mapping, adapted to the
// fan.Sensor/fan.Fan interfaces and to hwmon's fan/pwm/temp attribute
// families.
package sysfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DefaultHwmonPath is the standard sysfs location for hwmon devices.
const DefaultHwmonPath = "/sys/class/hwmon"

// transientRetries is the number of times a failed sysfs read/write is
// retried with no back-off before the error is surfaced.
const transientRetries = 4

// readInt reads an integer attribute, retrying transient failures.
func readInt(ctx context.Context, path string) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= transientRetries; attempt++ {
		v, err := readIntOnce(ctx, path)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if errors.Is(err, ErrOperationTimeout) {
			return 0, err
		}
	}
	return 0, lastErr
}

func readIntOnce(ctx context.Context, path string) (int, error) {
	done := make(chan struct {
			v int
			err error
		}, 1)
	go func() {
		data, err := os.ReadFile(path)
		if err != nil {
			done <- struct {
				v int
				err error
			}{0, mapFileError(err, path)}
			return
		}
		v, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			done <- struct {
				v int
				err error
			}{0, fmt.Errorf("%w: %s: %w", ErrInvalidValue, path, err)}
			return
		}
		done <- struct {
			v int
			err error
		}{v, nil}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %w", ErrOperationTimeout, ctx.Err())
	}
}

// writeInt writes an integer attribute, retrying transient failures.
func writeInt(ctx context.Context, path string, value int) error {
	var lastErr error
	for attempt := 0; attempt <= transientRetries; attempt++ {
		err := writeIntOnce(ctx, path, value)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrOperationTimeout) {
			return err
		}
	}
	return lastErr
}

func writeIntOnce(ctx context.Context, path string, value int) error {
	done := make(chan error, 1)
	go func() {
		done <- mapFileError(os.WriteFile(path, []byte(strconv.Itoa(value)), 0o600), path)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrOperationTimeout, ctx.Err())
	}
}

func readString(ctx context.Context, path string) (string, error) {
	done := make(chan struct {
			v string
			err error
		}, 1)
	go func() {
		data, err := os.ReadFile(path)
		done <- struct {
			v string
			err error
		}{strings.TrimSpace(string(data)), mapFileError(err, path)}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrOperationTimeout, ctx.Err())
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// listDevices returns all hwmon device directories under hwmonPath.
func listDevices(hwmonPath string) ([]string, error) {
	entries, err := os.ReadDir(hwmonPath)
	if err != nil {
		return nil, mapFileError(err, hwmonPath)
	}
	pattern := regexp.MustCompile(`^hwmon\d+$`)
	var devices []string
	for _, e := range entries {
		if !pattern.MatchString(e.Name()) {
			continue
		}
		path := filepath.Join(hwmonPath, e.Name())
		if st, err := os.Stat(path); err == nil && st.IsDir() {
			devices = append(devices, path)
		}
	}
	return devices, nil
}

func mapFileError(err error, path string) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if os.IsPermission(err) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	}
	var pe *os.PathError
	if errors.As(err, &pe) {
		var errno syscall.Errno
		if errors.As(pe.Err, &errno) && errno == syscall.EINVAL {
			return fmt.Errorf("%w: %s: %w", ErrInvalidValue, path, err)
		}
	}
	return fmt.Errorf("%s: %w", path, err)
}

// listAttributeNames returns the plain file names (not directories) inside
// a hwmon device directory.
func listAttributeNames(dev string) ([]string, error) {
	entries, err := os.ReadDir(dev)
	if err != nil {
		return nil, mapFileError(err, dev)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// waitForDevice polls until a device with the given name file appears.
func waitForDevice(ctx context.Context, hwmonPath, name string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if devices, err := listDevices(hwmonPath); err == nil {
			for _, d := range devices {
				if n, err := readString(ctx, filepath.Join(d, "name")); err == nil && n == name {
					return d, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: device %q", ErrDeviceNotFound, name)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
