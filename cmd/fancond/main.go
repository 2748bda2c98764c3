// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"flag"
	"runtime/debug"
	"time"

	"cirello.io/oversight/v2"
	"github.com/arunsworld/nursery"

	"github.com/fancond/fancond/pkg/log"
	"github.com/fancond/fancond/pkg/mount"
	"github.com/fancond/fancond/pkg/process"
	"github.com/fancond/fancond/service/fancond"
	"github.com/fancond/fancond/service/ipc"
)

func main() {
	// Fan-control hosts range from small SBCs to full servers; keep the
	// daemon's own footprint modest regardless.
	debug.SetMemoryLimit(128 * 1024 * 1024)

	hwmonPath := flag.String("hwmon-path", fancond.DefaultHwmonPath, "sysfs hwmon root to scan for fans and sensors")
	configPath := flag.String("config-path", fancond.DefaultConfigPath, "on-disk ini file for persisted devices and controller config")
	timeout := flag.Duration("start-timeout", 10*time.Second, "per-child startup timeout for the supervision tree")
	flag.Parse()

	ctx := context.Background()
	l := log.GetGlobalLogger()

	l.InfoContext(ctx, "checking filesystem mounts")
	if err := mount.SetupMounts(); err != nil {
		l.WarnContext(ctx, "failed to setup mounts correctly, continuing anyway", "error", err)
	}

	ipcService := ipc.New(ipc.WithName("fancond-ipc"))
	fanService := fancond.New(
		fancond.WithHwmonPath(*hwmonPath),
		fancond.WithConfigPath(*configPath),
	)

	tree := oversight.New(
		oversight.NeverHalt(),
		oversight.DefaultRestartStrategy(),
		oversight.WithLogger(log.NewOversightLogger(l)),
	)

	if err := tree.Add(
		process.New(ipcService, nil),
		oversight.Transient(),
		oversight.Timeout(*timeout),
		ipcService.Name(),
	); err != nil {
		l.ErrorContext(ctx, "failed to add ipc service to supervision tree", "error", err)
		panic(err)
	}
	if err := tree.Add(
		process.New(fanService, ipcService.GetConnProvider()),
		oversight.Transient(),
		oversight.Timeout(*timeout),
		fanService.Name(),
	); err != nil {
		l.ErrorContext(ctx, "failed to add fan control service to supervision tree", "error", err)
		panic(err)
	}

	supervise := func(ctx context.Context, c chan error) {
		c <- tree.Start(ctx)
	}

	l.InfoContext(ctx, "starting fan control daemon", "hwmon_path", *hwmonPath, "config_path", *configPath)
	if err := nursery.RunConcurrentlyWithContext(ctx, supervise); err != nil {
		l.ErrorContext(ctx, "fan control daemon exited with error", "error", err)
		panic(err)
	}
}
