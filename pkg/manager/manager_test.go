// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/absmach/honeycomb/pkg/audit"
	"github.com/absmach/honeycomb/pkg/decoy/ftp"
	httpdecoy "github.com/absmach/honeycomb/pkg/decoy/http"
	"github.com/absmach/honeycomb/pkg/decoy/mqtt"
	"github.com/absmach/honeycomb/pkg/decoy/ssh"
	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/absmach/honeycomb/pkg/handler"
	"github.com/absmach/honeycomb/pkg/metrics"
	"github.com/absmach/honeycomb/pkg/shutdown"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *mockSink) Log(rec audit.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *mockSink) failures() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for _, r := range m.records {
		if r.Kind == audit.KindError {
			out = append(out, r)
		}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allBindings() []Binding {
	return []Binding{
		{Protocol: handler.FTP, Address: "127.0.0.1:0", Handler: &ftp.Handler{}},
		{Protocol: handler.MQTT, Address: "127.0.0.1:0", Handler: &mqtt.Handler{}},
		{Protocol: handler.SSH, Address: "127.0.0.1:0", Handler: &ssh.Handler{}},
		{Protocol: handler.HTTP, Address: "127.0.0.1:0", Handler: httpdecoy.New("", 0)},
	}
}

func waitReady(t *testing.T, m *Manager) {
	t.Helper()
	select {
	case <-m.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("manager not ready")
	}
}

func TestManager_BindFailureIsIsolated(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()

	bindings := allBindings()
	bindings[2].Address = occupied.Addr().String() // SSH port already in use

	sink := &mockSink{}
	met := metrics.New("test", prometheus.NewRegistry())
	coord := shutdown.New(5*time.Second, quietLogger())
	m := New(Config{Audit: sink, Metrics: met, Logger: quietLogger()}, bindings, coord)

	runErr := make(chan error, 1)
	go func() {
		runErr <- m.Run(context.Background())
	}()
	waitReady(t, m)

	addrs := m.Addrs()
	if len(addrs) != 3 {
		t.Fatalf("bound %d listeners, want 3: %v", len(addrs), addrs)
	}
	if _, ok := addrs[handler.SSH]; ok {
		t.Error("SSH must not be bound")
	}

	errs := sink.failures()
	if len(errs) != 1 || errs[0].Protocol != "SSH" || !strings.Contains(errs[0].Payload, "bind") {
		t.Errorf("bind failure records = %+v", errs)
	}
	if got := testutil.ToFloat64(met.BindFailures.WithLabelValues("SSH")); got != 1 {
		t.Errorf("bind failures metric = %v, want 1", got)
	}

	// The other decoys answer normally.
	conn, err := net.DialTimeout("tcp", addrs[handler.FTP].String(), time.Second)
	if err != nil {
		t.Fatalf("dial FTP: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	if line, err := bufio.NewReader(conn).ReadString('\n'); err != nil || line != ftp.Banner {
		t.Errorf("FTP banner = %q, %v", line, err)
	}

	if err := coord.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}

	for p, a := range addrs {
		if c, err := net.DialTimeout("tcp", a.String(), 500*time.Millisecond); err == nil {
			c.Close()
			t.Errorf("%s still accepting after shutdown", p)
		}
	}
}

func TestManager_NoListeners(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()

	m := New(Config{Logger: quietLogger()}, []Binding{
		{Protocol: handler.HTTP, Address: occupied.Addr().String(), Handler: httpdecoy.New("", 0)},
	}, nil)

	if err := m.Run(context.Background()); !errors.Is(err, errors.ErrNoListeners) {
		t.Errorf("Run() error = %v, want ErrNoListeners", err)
	}
}

func TestManager_ContextCancellation(t *testing.T) {
	m := New(Config{Logger: quietLogger(), ShutdownTimeout: time.Second}, allBindings(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- m.Run(ctx)
	}()
	waitReady(t, m)
	if got := len(m.Addrs()); got != 4 {
		t.Fatalf("bound %d listeners, want 4", got)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestManager_LateBindAfterShutdown(t *testing.T) {
	coord := shutdown.New(time.Second, quietLogger())
	coord.Shutdown() //nolint:errcheck

	m := New(Config{Logger: quietLogger()}, allBindings()[:1], coord)
	done := make(chan error, 1)
	go func() {
		done <- m.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener registered after shutdown kept running")
	}
}
