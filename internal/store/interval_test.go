package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalUpdaterRunsImmediatelyAndOnTrigger(t *testing.T) {
	var calls atomic.Int32
	u := NewIntervalUpdater("test", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		u.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return calls.Load() == 1 })

	u.Update()
	waitFor(t, func() bool { return calls.Load() == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected Run to return after cancel")
	}
}

func TestIntervalUpdaterTicks(t *testing.T) {
	var calls atomic.Int32
	u := NewIntervalUpdater("test", 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("keeps going")
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go u.Run(ctx)

	waitFor(t, func() bool { return calls.Load() >= 3 })
}

func TestIntervalUpdaterUpdateDoesNotBlock(t *testing.T) {
	u := NewIntervalUpdater("test", time.Hour, func(context.Context) error { return nil }, nil)

	// nothing is running, so only one trigger fits
	u.Update()
	u.Update()
	u.Update()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
