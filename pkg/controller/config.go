// SPDX-License-Identifier: BSD-3-Clause

package controller

import "time"

// Config holds the controller-wide tunables exposed through
// GetControllerConfig/SetControllerConfig, mirroring the `[controller]`
// section of the on-disk config file.
type Config struct {
	// UpdateInterval is the default per-fan update period, used when a
	// FanConfig.Interval is zero.
	UpdateInterval time.Duration
	// SmoothingIntervals is the glide length applied in
	// ControlledFan.applySmoothingAndStickiness.
	SmoothingIntervals int
	// TopStickinessIntervals is the hold time at the top of a curve
	// before the target is allowed to drop back down.
	TopStickinessIntervals int
	// MaxThreads and Dynamic mirror the original's thread-pool sizing
	// knobs; goroutines make the pool size moot here, so these are
	// carried only for config-file/RPC round-tripping, not consulted by
	// the task scheduler.
	MaxThreads int
	Dynamic bool
}

// DefaultConfig returns the tunables used when none are configured.
func DefaultConfig() Config {
	return Config{
		UpdateInterval: 2 * time.Second,
		SmoothingIntervals: 5,
		TopStickinessIntervals: 3,
		MaxThreads: 0,
		Dynamic: true,
	}
}
