// SPDX-License-Identifier: BSD-3-Clause

package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fancond/fancond/pkg/fan"
)

func TestDeviceObserversInvokeAndRemove(t *testing.T) {
	obs := newDeviceObservers()

	var mu sync.Mutex
	var calls int
	id := obs.Add(func(ctx context.Context, devices fan.DevicesDTO) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	obs.Invoke(context.Background(), fan.DevicesDTO{})
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	obs.Remove(id)
	obs.Invoke(context.Background(), fan.DevicesDTO{})
	mu.Lock()
	assert.Equal(t, 1, calls, "observer must not be invoked after removal")
	mu.Unlock()
}

func TestStatusObserversInvokeAndRemove(t *testing.T) {
	obs := newStatusObservers()

	received := make(chan fan.Status, 1)
	id := obs.Add(func(ctx context.Context, label string, status fan.Status) {
		received <- status
	})

	obs.Invoke(context.Background(), "fan1", fan.StatusEnabled)
	select {
	case st := <-received:
		assert.Equal(t, fan.StatusEnabled, st)
	case <-time.After(time.Second):
		t.Fatal("observer was not invoked")
	}

	obs.Remove(id)
	obs.Invoke(context.Background(), "fan1", fan.StatusDisabled)
	select {
	case <-received:
		t.Fatal("observer invoked after removal")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestRemovableMutexBlocksRemoveDuringInvoke verifies that lockRemove waits
// for an in-flight invocation to finish before it can proceed.
func TestRemovableMutexBlocksRemoveDuringInvoke(t *testing.T) {
	m := newRemovableMutex()

	m.lockInvoke()

	removeDone := make(chan struct{})
	go func() {
		m.lockRemove()
		close(removeDone)
		m.unlockRemove()
	}()

	select {
	case <-removeDone:
		t.Fatal("lockRemove returned while an invocation was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	m.unlockInvoke()

	select {
	case <-removeDone:
	case <-time.After(time.Second):
		t.Fatal("lockRemove never returned after the invocation finished")
	}
}

func TestRemovableMutexAllowsConcurrentInvokes(t *testing.T) {
	m := newRemovableMutex()

	m.lockInvoke()

	second := make(chan struct{})
	go func() {
		m.lockInvoke()
		close(second)
		m.unlockInvoke()
	}()

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("a second invoke should not block behind a concurrent invoke")
	}

	m.unlockInvoke()
	require.Equal(t, 0, m.counter)
}
