// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs the honeycomb decoy service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/absmach/honeycomb"
	"github.com/absmach/honeycomb/pkg/audit"
	"github.com/absmach/honeycomb/pkg/decoy/ftp"
	httpdecoy "github.com/absmach/honeycomb/pkg/decoy/http"
	"github.com/absmach/honeycomb/pkg/decoy/mqtt"
	"github.com/absmach/honeycomb/pkg/decoy/ssh"
	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/absmach/honeycomb/pkg/handler"
	"github.com/absmach/honeycomb/pkg/health"
	"github.com/absmach/honeycomb/pkg/manager"
	"github.com/absmach/honeycomb/pkg/metrics"
	"github.com/absmach/honeycomb/pkg/ratelimit"
	"github.com/absmach/honeycomb/pkg/shutdown"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env file is optional
	envErr := godotenv.Load()

	cfg, err := honeycomb.NewConfig(env.Options{Prefix: honeycomb.EnvPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error(fmt.Sprintf("honeycomb service terminated with error: %s", err))
		os.Exit(1)
	}
	logger.Info("honeycomb service stopped")
}

func run(cfg honeycomb.Config, logger *slog.Logger) error {
	auditLog, err := audit.Open(audit.Config{
		Path:     cfg.LogPath,
		MaxBytes: cfg.LogMaxBytes,
		Backups:  cfg.LogBackupCount,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := auditLog.Close(); err != nil {
			logger.Error("failed to close audit log", slog.String("error", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("honeycomb", reg)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitCapacity > 0 {
		limiter = ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, 0)
	}

	coord := shutdown.New(cfg.ShutdownTimeout, logger)
	mgr := manager.New(manager.Config{
		IdleTimeout:     cfg.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Audit:           m.InstrumentSink(auditLog),
		Metrics:         m,
		Limiter:         limiter,
		Logger:          logger,
	}, bindings(cfg), coord)

	logger.Info("Starting honeycomb",
		slog.String("host", cfg.Host),
		slog.Int("ftp_port", cfg.FTPPort),
		slog.Int("mqtt_port", cfg.MQTTPort),
		slog.Int("ssh_port", cfg.SSHPort),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("audit_log", cfg.LogPath))

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return mgr.Run(ctx)
	})

	g.Go(func() error {
		return coord.Watch(ctx)
	})

	if cfg.OpsEnabled {
		checker := health.NewChecker(5 * time.Second)
		checker.RegisterCritical("listeners", func(context.Context) error {
			if len(mgr.Addrs()) == 0 {
				return errors.ErrNoListeners
			}
			return nil
		})
		checker.Register("audit", func(context.Context) error {
			return auditLog.Err()
		})

		srv := opsServer(cfg.OpsAddress, reg, checker)
		coord.Register(srv)
		g.Go(func() error {
			logger.Info("Starting ops server", slog.String("address", cfg.OpsAddress))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				// The decoys keep running without the ops endpoint.
				logger.Error("ops server error", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	return g.Wait()
}

// bindings returns one binding per enabled decoy.
func bindings(cfg honeycomb.Config) []manager.Binding {
	all := []struct {
		protocol handler.Protocol
		port     int
		handler  handler.Handler
	}{
		{handler.FTP, cfg.FTPPort, &ftp.Handler{}},
		{handler.MQTT, cfg.MQTTPort, &mqtt.Handler{}},
		{handler.SSH, cfg.SSHPort, &ssh.Handler{}},
		{handler.HTTP, cfg.HTTPPort, httpdecoy.New(cfg.Firmware, cfg.MaxBodyBytes)},
	}

	var bs []manager.Binding
	for _, b := range all {
		if b.port == 0 {
			continue
		}
		bs = append(bs, manager.Binding{
			Protocol: b.protocol,
			Address:  cfg.Address(b.port),
			Handler:  b.handler,
		})
	}
	return bs
}

// opsServer serves metrics and health endpoints.
func opsServer(addr string, reg *prometheus.Registry, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", checker.HTTPHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(h)
}
