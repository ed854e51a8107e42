// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package shutdown coordinates process termination across every listener.
//
// On SIGINT or SIGTERM the Coordinator stops all registered listeners at
// once. Each listener stops accepting, lets a reply write already in progress
// finish and releases its socket. Listeners that register after shutdown has
// started are stopped as soon as they register, so the Coordinator never
// waits for listeners that are still starting.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Stopper is anything that can be shut down gracefully within a deadline.
type Stopper interface {
	Shutdown(ctx context.Context) error
}

// Coordinator stops every registered Stopper on termination.
type Coordinator struct {
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	stoppers []Stopper
	started  bool
	once     sync.Once
	done     chan struct{}
	err      error
}

// New returns a Coordinator that gives listeners timeout to drain.
func New(timeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds s to the set stopped on shutdown. If shutdown has already
// started, s is stopped right away.
func (c *Coordinator) Register(s Stopper) {
	c.mu.Lock()
	if !c.started {
		c.stoppers = append(c.stoppers, s)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		c.logger.Warn("late listener shutdown incomplete", slog.String("error", err.Error()))
	}
}

// Shutdown stops every registered Stopper concurrently and waits for them,
// bounded by the coordinator timeout. It is safe to call more than once;
// later calls wait for the first to finish and return its result.
func (c *Coordinator) Shutdown() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.started = true
		stoppers := c.stoppers
		c.mu.Unlock()

		c.logger.Info("shutting down", slog.Int("listeners", len(stoppers)))
		start := time.Now()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		var g errgroup.Group
		for _, s := range stoppers {
			g.Go(func() error {
				return s.Shutdown(ctx)
			})
		}
		c.err = g.Wait()

		if c.err != nil {
			c.logger.Warn("shutdown completed with errors",
				slog.Duration("elapsed", time.Since(start)),
				slog.String("error", c.err.Error()))
		} else {
			c.logger.Info("shutdown complete", slog.Duration("elapsed", time.Since(start)))
		}
		close(c.done)
	})
	<-c.done
	return c.err
}

// Done is closed once shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Watch blocks until SIGINT, SIGTERM or cancellation of ctx, then shuts
// everything down.
func (c *Coordinator) Watch(ctx context.Context) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	return c.watch(ctx, sig)
}

func (c *Coordinator) watch(ctx context.Context, sig <-chan os.Signal) error {
	select {
	case s := <-sig:
		c.logger.Info("received shutdown signal", slog.String("signal", s.String()))
	case <-ctx.Done():
		c.logger.Info("context cancelled")
	case <-c.done:
		return c.err
	}
	return c.Shutdown()
}
