// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for honeycomb.
package metrics

import (
	"time"

	"github.com/absmach/honeycomb/pkg/audit"
	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for honeycomb. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Connection metrics
	ActiveConnections  *prometheus.GaugeVec
	ConnectionsTotal   *prometheus.CounterVec
	ConnectionErrors   *prometheus.CounterVec
	ConnectionDuration *prometheus.HistogramVec

	// Audit metrics
	AuditRecords *prometheus.CounterVec

	// Listener metrics
	BindFailures *prometheus.CounterVec
	RateLimited  *prometheus.CounterVec
}

// New creates a new Metrics instance registered with reg. A nil reg uses
// the default Prometheus registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "honeycomb"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently open decoy connections",
			},
			[]string{"protocol"},
		),
		ConnectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of decoy connections served",
			},
			[]string{"protocol", "status"},
		),
		ConnectionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_errors_total",
				Help:      "Total number of handler-level errors",
			},
			[]string{"protocol", "kind"},
		),
		ConnectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Connection duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"protocol"},
		),
		AuditRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_records_total",
				Help:      "Total number of audit records emitted",
			},
			[]string{"protocol", "kind"},
		),
		BindFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bind_failures_total",
				Help:      "Total number of listeners that could not bind",
			},
			[]string{"protocol"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_connections_total",
				Help:      "Total number of connections refused by the rate limiter",
			},
			[]string{"protocol"},
		),
	}
}

// ObserveConnection tracks a connection lifecycle. f returns the error the
// connection ended with, or nil.
func (m *Metrics) ObserveConnection(protocol string, f func() error) error {
	if m == nil {
		return f()
	}

	m.ActiveConnections.WithLabelValues(protocol).Inc()
	defer m.ActiveConnections.WithLabelValues(protocol).Dec()

	start := time.Now()
	defer func() {
		m.ConnectionDuration.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
	}()

	err := f()
	status := "success"
	if err != nil {
		status = "error"
		m.ConnectionErrors.WithLabelValues(protocol, errors.KindOf(err).String()).Inc()
	}
	m.ConnectionsTotal.WithLabelValues(protocol, status).Inc()

	return err
}

// BindFailed counts a listener that could not claim its address.
func (m *Metrics) BindFailed(protocol string) {
	if m == nil {
		return
	}
	m.BindFailures.WithLabelValues(protocol).Inc()
}

// Limited counts a connection refused by the rate limiter.
func (m *Metrics) Limited(protocol string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(protocol).Inc()
}

// InstrumentSink returns a sink that counts every record before passing it
// to next.
func (m *Metrics) InstrumentSink(next audit.Sink) audit.Sink {
	if m == nil {
		return next
	}
	return &instrumentedSink{next: next, records: m.AuditRecords}
}

type instrumentedSink struct {
	next    audit.Sink
	records *prometheus.CounterVec
}

func (s *instrumentedSink) Log(rec audit.Record) {
	s.records.WithLabelValues(rec.Protocol, string(rec.Kind)).Inc()
	s.next.Log(rec)
}
