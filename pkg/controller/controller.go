// SPDX-License-Identifier: BSD-3-Clause

// Package controller owns a Devices set, runs one task per fan, and
// exposes the enable/disable/test/reload/set_devices operations the RPC
// surface (service/fancond) calls into.
//
// It uses a ticker-driven control loop per fan and cirello.io/oversight/v2
// for supervised child processes, one per configured fan. Unlike a
// supervision tree with a fixed set of children, one child is added per
// *configured* fan (not per *enabled* fan): the oversight tree adds
// children once at construction and restarts them on crash, with no
// supported call for adding or removing a child from a running tree.
// Each fan's child therefore runs for the controller's lifetime and reads
// the fan's state machine every tick to decide whether to drive PWM,
// characterise, or idle; enable/disable/test only flip that state, they
// never touch the tree. A full reload or set_devices tears the whole tree
// down and rebuilds it, which stops every fan's control loop as part of
// that operation.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cirello.io/oversight/v2"

	"github.com/fancond/fancond/pkg/fan"
	"github.com/fancond/fancond/pkg/fan/nvidia"
	"github.com/fancond/fancond/pkg/fan/sysfs"
	"github.com/fancond/fancond/pkg/state"
)

// Persister is the on-disk persistence contract the controller depends on;
// pkg/persist implements it. Declared here, not imported from there, to
// keep pkg/controller free of a dependency on the ini.v1-backed file
// format.
type Persister interface {
	SaveDevices(ctx context.Context, dto fan.DevicesDTO) error
	LoadDevices(ctx context.Context) (fan.DevicesDTO, error)
}

// fanTask is everything the controller tracks for one configured fan,
// whether or not it is currently enabled.
type fanTask struct {
	sm *state.FSM
	controlled *fan.ControlledFan // nil until first successful bind
	bindErr error
}

// Controller owns Devices and the supervised per-fan tasks that drive them.
type Controller struct {
	log *slog.Logger
	hwmonRoot string
	persist Persister

	mu sync.RWMutex
	cfg Config
	devices *fan.Devices
	tasks map[string]*fanTask

	deviceObs *deviceObservers
	statusObs *statusObservers

	tree *oversight.Tree
	treeCancel context.CancelFunc
	treeDone chan struct{}
	running bool

	nvOnce sync.Once
	nvErr error
}

// New constructs a Controller. Start must be called before any fan task
// runs.
func New(hwmonRoot string, persist Persister, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		log: logger,
		hwmonRoot: hwmonRoot,
		persist: persist,
		cfg: DefaultConfig(),
		devices: fan.NewDevices(),
		tasks: map[string]*fanTask{},
		deviceObs: newDeviceObservers(),
		statusObs: newStatusObservers(),
	}
}

// Start loads devices (from the persister if devices is nil), builds the
// supervision tree with one child per configured fan, and enables every
// fan whose FanConfig.Enabled is set.
func (c *Controller) Start(ctx context.Context, devices *fan.Devices) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	if devices == nil {
		dto, err := c.persist.LoadDevices(ctx)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("controller start: load devices: %w", err)
		}
		devices, err = fan.FromDTO(dto)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("controller start: %w", err)
		}
	}
	c.devices = devices
	c.mu.Unlock()

	return c.rebuildTree(ctx)
}

// rebuildTree tears down any running tree, then constructs a fresh one
// from the current Devices snapshot and starts it in the background.
// Callers must not hold c.mu.
func (c *Controller) rebuildTree(ctx context.Context) error {
	c.stopTree()

	c.mu.Lock()
	defer c.mu.Unlock()

	oldTasks := c.tasks

	idx, err := buildHwmonIndex(ctx, c.hwmonRoot)
	if err != nil {
		c.log.WarnContext(ctx, "hwmon discovery failed, continuing with no sysfs/dell devices", "error", err)
		idx = &hwmonIndex{fans: map[string]sysfs.DiscoveredFan{}, sensors: map[string]sysfs.Discovered{}}
	}

	tree := oversight.New(
		oversight.NeverHalt(),
		oversight.DefaultRestartStrategy(),
		oversight.WithLogger(func(args...any) {
				c.log.Debug("oversight", "msg", fmt.Sprint(args...))
			}),
	)

	tasks := map[string]*fanTask{}
	for label, fc := range c.devices.Fans {
		label := label
		t := &fanTask{}
		tasks[label] = t

		sm, err := state.NewFanStateBuilder(label).
			WithDisableAction(func(from, to, trigger string) error {
				if t.controlled == nil {
					return nil
				}
				if err := t.controlled.Backend.DisableControl(context.Background()); err != nil {
					c.log.WarnContext(ctx, "disable_control failed", "fan", label, "error", err)
				}
				return nil
			}).
			Build()
		if err != nil {
			return fmt.Errorf("controller start: fan %s: %w", label, err)
		}
		if err := sm.Start(ctx); err != nil {
			return fmt.Errorf("controller start: fan %s: %w", label, err)
		}
		t.sm = sm

		controlled, bindErr := c.bindFanLocked(ctx, fc, idx)
		t.controlled = controlled
		t.bindErr = bindErr
		if bindErr != nil {
			c.log.WarnContext(ctx, "fan bind failed, task will idle", "fan", label, "error", bindErr)
		}

		if err := tree.Add(
			c.fanChildProcess(label),
			oversight.Transient(),
			oversight.Timeout(10*time.Second),
			label,
		); err != nil {
			return fmt.Errorf("controller start: add fan %s to tree: %w", label, err)
		}
	}

	// Fans present in the outgoing task set but absent from the new Devices
	// had their hwmon/Dell/NVIDIA backend bound under the old configuration;
	// hand each one back to the driver before the old binding is discarded.
	for label, t := range oldTasks {
		if _, kept := c.devices.Fans[label]; kept {
			continue
		}
		if t.controlled == nil {
			continue
		}
		if err := t.controlled.Backend.DisableControl(ctx); err != nil {
			c.log.WarnContext(ctx, "disable_control failed for removed fan", "fan", label, "error", err)
		}
	}

	treeCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.tasks = tasks
	c.tree = tree
	c.treeCancel = cancel
	c.treeDone = done
	c.running = true

	go func() {
		defer close(done)
		if err := tree.Start(treeCtx); err != nil {
			c.log.ErrorContext(treeCtx, "supervision tree exited", "error", err)
		}
	}()

	// fireLocked takes c.mu itself, which this function already holds; fire
	// directly against the freshly built tasks map instead of going through
	// it.
	for label, fc := range c.devices.Fans {
		if !fc.Enabled {
			continue
		}
		t := tasks[label]
		if err := t.sm.Fire(ctx, state.FanTriggerEnable); err != nil {
			c.log.WarnContext(ctx, "failed to re-enable fan on (re)start", "fan", label, "error", err)
			continue
		}
		c.statusObs.Invoke(ctx, label, statusFromState(t.sm.CurrentState()))
	}

	return nil
}

func (c *Controller) stopTree() {
	c.mu.Lock()
	cancel := c.treeCancel
	done := c.treeDone
	running := c.running
	c.running = false
	c.mu.Unlock()

	if !running {
		return
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.mu.RLock()
	tasks := c.tasks
	c.mu.RUnlock()
	for _, t := range tasks {
		_ = t.sm.Stop(context.Background())
	}
}

// Stop halts every fan task and disables hardware control, without
// discarding the loaded Devices set (used on process shutdown).
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.RLock()
	tasks := c.tasks
	c.mu.RUnlock()

	for label, t := range tasks {
		if t.controlled != nil {
			if err := t.controlled.Backend.DisableControl(ctx); err != nil {
				c.log.WarnContext(ctx, "disable_control failed during shutdown", "fan", label, "error", err)
			}
		}
	}
	c.stopTree()
	return nil
}

func (c *Controller) bindFanLocked(ctx context.Context, fc fan.FanConfig, idx *hwmonIndex) (*fan.ControlledFan, error) {
	sc, ok := c.devices.Sensors[fc.SensorLabel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSensor, fc.SensorLabel)
	}

	backend, err := bindFan(ctx, fc, idx)
	if err != nil {
		return nil, err
	}
	sensorBackend, err := bindSensor(ctx, sc, idx)
	if err != nil {
		return nil, err
	}

	loaded := fc.Load()
	for _, reason := range loaded.Dropped {
		c.log.WarnContext(ctx, "dropped curve point", "fan", fc.Label, "reason", reason)
	}

	interval := fc.Interval
	if interval <= 0 {
		interval = c.cfg.UpdateInterval
	}

	avgSensor := fan.NewAveragingSensor(sensorBackend, sc.AveragingIntervals)
	return fan.NewControlledFan(
		fc.Label, backend, avgSensor,
		loaded.TempToRPM, loaded.RPMToPWM, fc.StartPWM, interval,
		c.cfg.SmoothingIntervals, c.cfg.TopStickinessIntervals,
	), nil
}

// fireLocked fires a state trigger and broadcasts the resulting status. It
// may be called with c.mu unlocked by the caller (it takes its own lock
// only around the map read).
func (c *Controller) fireLocked(ctx context.Context, label, trigger string) error {
	c.mu.RLock()
	t, ok := c.tasks[label]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFan, label)
	}

	if err := t.sm.Fire(ctx, trigger); err != nil {
		return err
	}
	c.statusObs.Invoke(ctx, label, statusFromState(t.sm.CurrentState()))
	return nil
}

func statusFromState(s string) fan.Status {
	switch s {
	case state.FanStateEnabled:
		return fan.StatusEnabled
	case state.FanStateTesting:
		return fan.StatusTesting
	default:
		return fan.StatusDisabled
	}
}

// NvInit lazily initialises the NVIDIA library wrapper. It is safe to call repeatedly; only the first call probes the
// library.
func (c *Controller) NvInit(ctx context.Context) error {
	c.nvOnce.Do(func() {
			if _, err := nvidia.Enumerate(); err != nil {
				c.nvErr = fmt.Errorf("%w: %w", ErrNvNotInitialised, err)
				c.log.WarnContext(ctx, "nvidia backend unavailable", "error", err)
			}
		})
	return c.nvErr
}

// GetConfig returns the current controller-wide tunables.
func (c *Controller) GetConfig() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetConfig replaces the controller-wide tunables. It takes effect for new
// task bindings; existing running tasks keep their already-loaded curves
// and interval until the next reload.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// AddDeviceObserver registers a device-change subscriber and returns a
// handle for RemoveDeviceObserver.
func (c *Controller) AddDeviceObserver(fn DeviceObserverFunc) int {
	return c.deviceObs.Add(fn)
}

// RemoveDeviceObserver unregisters a device-change subscriber.
func (c *Controller) RemoveDeviceObserver(id int) {
	c.deviceObs.Remove(id)
}

// AddStatusObserver registers a status-change subscriber and returns a
// handle for RemoveStatusObserver.
func (c *Controller) AddStatusObserver(fn StatusObserverFunc) int {
	return c.statusObs.Add(fn)
}

// RemoveStatusObserver unregisters a status-change subscriber.
func (c *Controller) RemoveStatusObserver(id int) {
	c.statusObs.Remove(id)
}
