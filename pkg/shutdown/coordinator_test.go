// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type mockStopper struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (m *mockStopper) Shutdown(ctx context.Context) error {
	m.calls.Add(1)
	select {
	case <-time.After(m.delay):
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoordinator_StopsAllConcurrently(t *testing.T) {
	c := New(5*time.Second, quietLogger())
	stoppers := []*mockStopper{{delay: 200 * time.Millisecond}, {delay: 200 * time.Millisecond}, {delay: 200 * time.Millisecond}}
	for _, s := range stoppers {
		c.Register(s)
	}

	start := time.Now()
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Shutdown took %v; stoppers were not run concurrently", elapsed)
	}
	for i, s := range stoppers {
		if got := s.calls.Load(); got != 1 {
			t.Errorf("stopper %d called %d times, want 1", i, got)
		}
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Shutdown")
	}
}

func TestCoordinator_ShutdownIsIdempotent(t *testing.T) {
	c := New(time.Second, quietLogger())
	s := &mockStopper{}
	c.Register(s)

	c.Shutdown() //nolint:errcheck
	c.Shutdown() //nolint:errcheck
	if got := s.calls.Load(); got != 1 {
		t.Errorf("stopper called %d times, want 1", got)
	}
}

func TestCoordinator_ReportsErrors(t *testing.T) {
	c := New(time.Second, quietLogger())
	fail := errors.New("listener stuck")
	c.Register(&mockStopper{})
	c.Register(&mockStopper{err: fail})

	if err := c.Shutdown(); !errors.Is(err, fail) {
		t.Errorf("Shutdown() error = %v, want %v", err, fail)
	}
}

func TestCoordinator_Timeout(t *testing.T) {
	c := New(100*time.Millisecond, quietLogger())
	c.Register(&mockStopper{delay: time.Hour})

	start := time.Now()
	if err := c.Shutdown(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown took %v past its timeout", elapsed)
	}
}

func TestCoordinator_LateRegistrationIsStopped(t *testing.T) {
	c := New(time.Second, quietLogger())
	c.Shutdown() //nolint:errcheck

	late := &mockStopper{}
	c.Register(late)
	if got := late.calls.Load(); got != 1 {
		t.Errorf("late stopper called %d times, want 1", got)
	}
}

func TestCoordinator_WatchSignal(t *testing.T) {
	c := New(time.Second, quietLogger())
	s := &mockStopper{}
	c.Register(s)

	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM
	if err := c.watch(context.Background(), sig); err != nil {
		t.Fatalf("watch() error = %v", err)
	}
	if got := s.calls.Load(); got != 1 {
		t.Errorf("stopper called %d times, want 1", got)
	}
}

func TestCoordinator_WatchContext(t *testing.T) {
	c := New(time.Second, quietLogger())
	s := &mockStopper{}
	c.Register(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
	if got := s.calls.Load(); got != 1 {
		t.Errorf("stopper called %d times, want 1", got)
	}
}

func TestCoordinator_WatchReturnsAfterExternalShutdown(t *testing.T) {
	c := New(time.Second, quietLogger())

	done := make(chan error, 1)
	go func() {
		done <- c.watch(context.Background(), make(chan os.Signal))
	}()
	c.Shutdown() //nolint:errcheck

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after Shutdown")
	}
}
