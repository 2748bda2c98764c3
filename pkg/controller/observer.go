// SPDX-License-Identifier: BSD-3-Clause

package controller

import (
	"context"
	"sync"

	"github.com/fancond/fancond/pkg/fan"
)

// removableMutex lets many invokers hold a non-negative share of a shared
// counter while a remover holds the whole thing negative. Invokers wait
// while the counter is negative; removers wait while it is positive. An
// observer can therefore never be invoked after its removal has begun. No
// third-party mutual-exclusion primitive expresses this asymmetric
// share/exclude shape, so it is built directly on sync.Cond.
type removableMutex struct {
	mu sync.Mutex
	cond *sync.Cond
	counter int
}

func newRemovableMutex() *removableMutex {
	m := &removableMutex{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *removableMutex) lockInvoke() {
	m.mu.Lock()
	for m.counter < 0 {
		m.cond.Wait()
	}
	m.counter++
	m.mu.Unlock()
}

func (m *removableMutex) unlockInvoke() {
	m.mu.Lock()
	m.counter--
	if m.counter == 0 {
		m.cond.Broadcast()
	}
	m.mu.Unlock()
}

func (m *removableMutex) lockRemove() {
	m.mu.Lock()
	for m.counter > 0 {
		m.cond.Wait()
	}
	m.counter--
	m.mu.Unlock()
}

func (m *removableMutex) unlockRemove() {
	m.mu.Lock()
	m.counter++
	if m.counter == 0 {
		m.cond.Broadcast()
	}
	m.mu.Unlock()
}

// DeviceObserverFunc receives a snapshot of Devices whenever set_devices or
// reload succeeds.
type DeviceObserverFunc func(ctx context.Context, devices fan.DevicesDTO)

// StatusObserverFunc receives a fan's new status on every transition.
type StatusObserverFunc func(ctx context.Context, label string, status fan.Status)

// deviceObservers is the registered set of device-change subscribers.
type deviceObservers struct {
	rm *removableMutex
	mu sync.Mutex
	fns map[int]DeviceObserverFunc
	next int
}

func newDeviceObservers() *deviceObservers {
	return &deviceObservers{rm: newRemovableMutex(), fns: map[int]DeviceObserverFunc{}}
}

// Add registers an observer and returns its removal handle.
func (d *deviceObservers) Add(fn DeviceObserverFunc) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
	d.fns[id] = fn
	return id
}

// Remove unregisters an observer. It does not return until any invocation
// already in flight has completed, and guarantees the observer is not
// called again afterwards.
func (d *deviceObservers) Remove(id int) {
	d.rm.lockRemove()
	defer d.rm.unlockRemove()
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fns, id)
}

// Invoke calls every registered observer with the given snapshot.
func (d *deviceObservers) Invoke(ctx context.Context, devices fan.DevicesDTO) {
	d.rm.lockInvoke()
	defer d.rm.unlockInvoke()

	d.mu.Lock()
	snapshot := make([]DeviceObserverFunc, 0, len(d.fns))
	for _, fn := range d.fns {
		snapshot = append(snapshot, fn)
	}
	d.mu.Unlock()

	for _, fn := range snapshot {
		fn(ctx, devices)
	}
}

// statusObservers is the registered set of status-change subscribers.
type statusObservers struct {
	rm *removableMutex
	mu sync.Mutex
	fns map[int]StatusObserverFunc
	next int
}

func newStatusObservers() *statusObservers {
	return &statusObservers{rm: newRemovableMutex(), fns: map[int]StatusObserverFunc{}}
}

// Add registers an observer and returns its removal handle.
func (s *statusObservers) Add(fn StatusObserverFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.fns[id] = fn
	return id
}

// Remove unregisters an observer, as deviceObservers.Remove.
func (s *statusObservers) Remove(id int) {
	s.rm.lockRemove()
	defer s.rm.unlockRemove()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fns, id)
}

// Invoke calls every registered observer with the fan's new status.
func (s *statusObservers) Invoke(ctx context.Context, label string, st fan.Status) {
	s.rm.lockInvoke()
	defer s.rm.unlockInvoke()

	s.mu.Lock()
	snapshot := make([]StatusObserverFunc, 0, len(s.fns))
	for _, fn := range s.fns {
		snapshot = append(snapshot, fn)
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn(ctx, label, st)
	}
}
