// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/honeycomb/pkg/audit"
	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/absmach/honeycomb/pkg/handler"
	"github.com/absmach/honeycomb/pkg/metrics"
	"github.com/absmach/honeycomb/pkg/ratelimit"
	"github.com/google/uuid"
)

const maxAcceptDelay = time.Second

// Config holds the TCP server configuration.
type Config struct {
	// Protocol is the decoy served on this listener
	Protocol handler.Protocol

	// Address is the listen address (host:port)
	Address string

	// IdleTimeout bounds every single read and write on a connection.
	// Zero disables the deadline.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds the drain triggered by cancelling the Serve
	// context. Explicit Shutdown calls use their own context instead.
	ShutdownTimeout time.Duration

	// Audit receives the connect and error records of every connection
	Audit audit.Sink

	// Metrics is optional
	Metrics *metrics.Metrics

	// Limiter is optional; nil admits every connection
	Limiter *ratelimit.Limiter

	// Logger for server events
	Logger *slog.Logger
}

// Server owns one listening socket and serves every accepted connection
// with the configured decoy handler in its own goroutine.
type Server struct {
	config  Config
	handler handler.Handler

	mu       sync.Mutex
	listener net.Listener
	conns    map[*trackedConn]struct{}
	closing  bool
	wg       sync.WaitGroup
	drained  chan struct{}
}

// New creates a new TCP server with the given configuration and handler.
func New(cfg Config, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Discard
	}

	return &Server{
		config:  cfg,
		handler: h,
		conns:   make(map[*trackedConn]struct{}),
		drained: make(chan struct{}),
	}
}

// Protocol returns the decoy protocol of the server.
func (s *Server) Protocol() handler.Protocol {
	return s.config.Protocol
}

// Bind claims the listen address. The error, if any, is a *errors.BindError.
func (s *Server) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proto := s.config.Protocol.String()
	if s.closing {
		return &errors.BindError{Protocol: proto, Address: s.config.Address, Err: errors.ErrServerClosed}
	}
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return &errors.BindError{Protocol: proto, Address: s.config.Address, Err: err}
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds and serves until ctx is cancelled or Shutdown is
// called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Bind(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop on the bound listener. It returns nil once the
// server has been shut down and every connection has drained. Cancelling
// ctx starts a shutdown bounded by Config.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("%s listener on %s is not bound", s.config.Protocol, s.config.Address)
	}

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil {
			s.config.Logger.Warn("listener shutdown incomplete",
				slog.String("protocol", s.config.Protocol.String()),
				slog.String("error", err.Error()))
		}
	})
	defer stop()

	s.config.Logger.Info("listener started",
		slog.String("protocol", s.config.Protocol.String()),
		slog.String("address", ln.Addr().String()))

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				<-s.drained
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			delay = backoff(delay)
			s.config.Logger.Warn("failed to accept connection",
				slog.String("protocol", s.config.Protocol.String()),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay))
			time.Sleep(delay)
			continue
		}
		delay = 0

		tc := newTrackedConn(conn, s.config.IdleTimeout)
		if !s.track(tc) {
			conn.Close()
			continue
		}
		go s.serveConn(ctx, tc)
	}
}

// Shutdown stops accepting, closes every open connection once any reply
// write in progress on it has finished, and waits for the handlers to
// return. If ctx expires first the remaining connections are closed
// forcibly and ErrShutdownTimeout is returned. Shutdown is idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	first := !s.closing
	s.closing = true
	ln := s.listener
	conns := make([]*trackedConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if first {
		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.config.Logger.Error("error closing listener",
					slog.String("protocol", s.config.Protocol.String()),
					slog.String("error", err.Error()))
			}
		}
		for _, c := range conns {
			go c.closeAfterWrite()
		}
		go func() {
			s.wg.Wait()
			close(s.drained)
		}()
	}

	select {
	case <-s.drained:
		if first {
			s.config.Logger.Info("listener stopped",
				slog.String("protocol", s.config.Protocol.String()),
				slog.Int("closed_connections", len(conns)))
		}
		return nil
	case <-ctx.Done():
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure",
			slog.String("protocol", s.config.Protocol.String()))
		for _, c := range conns {
			c.forceClose()
		}
		return errors.ErrShutdownTimeout
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// track registers c unless shutdown has started. The WaitGroup is only
// incremented under mu while not closing, so Shutdown's Wait never races
// with Add.
func (s *Server) track(c *trackedConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *trackedConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// serveConn runs the decoy handler on one connection and records how it
// ended.
func (s *Server) serveConn(ctx context.Context, c *trackedConn) {
	defer s.untrack(c)
	defer c.Close()

	proto := s.config.Protocol
	hctx := &handler.Context{
		SessionID:  uuid.NewString(),
		RemoteAddr: c.RemoteAddr().String(),
		Protocol:   proto,
		OpenedAt:   time.Now(),
		Audit:      s.config.Audit,
	}

	if s.config.Limiter != nil && !s.config.Limiter.Allow(hctx.RemoteAddr) {
		s.config.Metrics.Limited(proto.String())
		hctx.Failed(fmt.Errorf("%w for %s", errors.ErrRateLimited, hctx.RemoteAddr))
		return
	}

	hctx.Connected()
	err := s.config.Metrics.ObserveConnection(proto.String(), func() error {
		err := s.handler.Handle(ctx, c, hctx)
		if err != nil && c.closedByServer() {
			return nil
		}
		return err
	})
	if err != nil {
		hctx.Failed(err)
		s.config.Logger.Debug("connection handler error",
			slog.String("protocol", proto.String()),
			slog.String("session", hctx.SessionID),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("error", err.Error()))
	}
}

func backoff(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}
	delay *= 2
	if delay > maxAcceptDelay {
		return maxAcceptDelay
	}
	return delay
}
