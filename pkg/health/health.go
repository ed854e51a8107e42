// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package health provides health check, liveness and readiness endpoints
// for the ops listener.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents the last result of a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Critical    bool          `json:"critical"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) error

type registration struct {
	name     string
	check    CheckFunc
	critical bool
}

// Checker runs registered checks and caches their results for a TTL.
type Checker struct {
	mu     sync.Mutex
	checks []registration
	cache  map[string]Check
	ttl    time.Duration
	now    func() time.Time
}

// NewChecker creates a new health checker.
func NewChecker(cacheTTL time.Duration) *Checker {
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Second
	}
	return &Checker{
		cache: make(map[string]Check),
		ttl:   cacheTTL,
		now:   time.Now,
	}
}

// Register adds a check whose failure degrades the service.
func (c *Checker) Register(name string, check CheckFunc) {
	c.register(registration{name: name, check: check})
}

// RegisterCritical adds a check whose failure makes the service unhealthy.
func (c *Checker) RegisterCritical(name string, check CheckFunc) {
	c.register(registration{name: name, check: check, critical: true})
}

func (c *Checker) register(r registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.checks {
		if c.checks[i].name == r.name {
			c.checks[i] = r
			delete(c.cache, r.name)
			return
		}
	}
	c.checks = append(c.checks, r)
}

// Health returns the overall status and the result of every check in
// registration order.
func (c *Checker) Health(ctx context.Context) (Status, []Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	overall := StatusHealthy
	checks := make([]Check, 0, len(c.checks))

	for _, r := range c.checks {
		check, ok := c.cache[r.name]
		if !ok || c.now().Sub(check.LastChecked) >= c.ttl {
			start := c.now()
			err := r.check(ctx)
			check = Check{
				Name:        r.name,
				Status:      StatusHealthy,
				Critical:    r.critical,
				LastChecked: c.now(),
				Duration:    c.now().Sub(start),
			}
			if err != nil {
				check.Status = StatusUnhealthy
				check.Message = err.Error()
			}
			c.cache[r.name] = check
		}

		if check.Status != StatusHealthy {
			switch {
			case check.Critical:
				overall = StatusUnhealthy
			case overall == StatusHealthy:
				overall = StatusDegraded
			}
		}
		checks = append(checks, check)
	}

	return overall, checks
}

type response struct {
	Status Status  `json:"status"`
	Checks []Check `json:"checks,omitempty"`
}

// HTTPHandler returns an HTTP handler for health checks. It answers 503
// only when a critical check fails.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return c.handler(func(s Status) bool { return s == StatusUnhealthy })
}

// ReadinessHandler returns a readiness check handler. It answers 503
// whenever any check fails.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return c.handler(func(s Status) bool { return s != StatusHealthy })
}

func (c *Checker) handler(unavailable func(Status) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status, checks := c.Health(ctx)

		code := http.StatusOK
		if unavailable(status) {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response{Status: status, Checks: checks})
	}
}

// LivenessHandler returns a simple liveness check.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
