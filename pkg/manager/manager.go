// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package manager runs one TCP listener per configured decoy protocol.
package manager

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/honeycomb/pkg/audit"
	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/absmach/honeycomb/pkg/handler"
	"github.com/absmach/honeycomb/pkg/metrics"
	"github.com/absmach/honeycomb/pkg/ratelimit"
	"github.com/absmach/honeycomb/pkg/server/tcp"
	"github.com/absmach/honeycomb/pkg/shutdown"
	"golang.org/x/sync/errgroup"
)

// Binding pairs a decoy handler with the address it listens on.
type Binding struct {
	Protocol handler.Protocol
	Address  string
	Handler  handler.Handler
}

// Registrar receives every listener that bound successfully.
type Registrar interface {
	Register(s shutdown.Stopper)
}

// Config holds settings shared by every listener.
type Config struct {
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Audit           audit.Sink
	Metrics         *metrics.Metrics
	Limiter         *ratelimit.Limiter
	Logger          *slog.Logger
}

// Manager owns the listeners of all bindings.
type Manager struct {
	config    Config
	bindings  []Binding
	registrar Registrar

	mu      sync.Mutex
	servers map[handler.Protocol]*tcp.Server
	ready   chan struct{}
}

// New returns a manager for bindings. Bound listeners are handed to r, which
// may be nil.
func New(cfg Config, bindings []Binding, r Registrar) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Discard
	}
	return &Manager{
		config:    cfg,
		bindings:  bindings,
		registrar: r,
		servers:   make(map[handler.Protocol]*tcp.Server),
		ready:     make(chan struct{}),
	}
}

// Run binds every listener independently and serves until all of them have
// stopped. A listener that cannot bind is logged, audited and skipped; it
// never prevents the others from starting. Run returns ErrNoListeners if
// none could bind.
func (m *Manager) Run(ctx context.Context) error {
	// No derived context: one listener failing must not cancel the others.
	var g errgroup.Group
	var bindWG sync.WaitGroup

	for _, b := range m.bindings {
		srv := tcp.New(tcp.Config{
			Protocol:        b.Protocol,
			Address:         b.Address,
			IdleTimeout:     m.config.IdleTimeout,
			ShutdownTimeout: m.config.ShutdownTimeout,
			Audit:           m.config.Audit,
			Metrics:         m.config.Metrics,
			Limiter:         m.config.Limiter,
			Logger:          m.config.Logger,
		}, b.Handler)

		bindWG.Add(1)
		g.Go(func() error {
			err := srv.Bind()
			if err != nil {
				bindWG.Done()
				m.bindFailed(b, err)
				return nil
			}

			m.mu.Lock()
			m.servers[b.Protocol] = srv
			m.mu.Unlock()
			if m.registrar != nil {
				m.registrar.Register(srv)
			}
			bindWG.Done()

			return srv.Serve(ctx)
		})
	}

	go func() {
		bindWG.Wait()
		close(m.ready)
	}()

	err := g.Wait()
	<-m.ready
	if len(m.Addrs()) == 0 {
		return errors.ErrNoListeners
	}
	return err
}

// Ready is closed once every binding has either bound or failed.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Addrs returns the bound address of every listener that started.
func (m *Manager) Addrs() map[handler.Protocol]net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()

	addrs := make(map[handler.Protocol]net.Addr, len(m.servers))
	for p, srv := range m.servers {
		if a := srv.Addr(); a != nil {
			addrs[p] = a
		}
	}
	return addrs
}

func (m *Manager) bindFailed(b Binding, err error) {
	m.config.Logger.Error("listener failed to bind",
		slog.String("protocol", b.Protocol.String()),
		slog.String("address", b.Address),
		slog.String("error", err.Error()))
	m.config.Metrics.BindFailed(b.Protocol.String())
	m.config.Audit.Log(audit.Record{
		Protocol: b.Protocol.String(),
		Kind:     audit.KindError,
		Payload:  err.Error(),
	})
}
