// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/absmach/honeycomb/pkg/audit"
)

type mockSink struct {
	records []audit.Record
}

func (m *mockSink) Log(rec audit.Record) {
	m.records = append(m.records, rec)
}

func TestProtocol_String(t *testing.T) {
	tests := []struct {
		p    Protocol
		want string
	}{
		{FTP, "FTP"},
		{MQTT, "MQTT"},
		{SSH, "SSH"},
		{HTTP, "HTTP"},
		{Protocol(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Protocol(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestContext_EmitsRecords(t *testing.T) {
	sink := &mockSink{}
	hctx := &Context{
		SessionID:  "abc",
		RemoteAddr: "192.0.2.10:40000",
		Protocol:   SSH,
		Audit:      sink,
	}

	hctx.Connected()
	hctx.Command("SSH-2.0-libssh_0.9.6")
	hctx.Failed(errors.New("read: connection reset"))

	if len(sink.records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(sink.records))
	}

	wantKinds := []audit.Kind{audit.KindConnect, audit.KindCommand, audit.KindError}
	for i, rec := range sink.records {
		if rec.Kind != wantKinds[i] {
			t.Errorf("record %d kind = %q, want %q", i, rec.Kind, wantKinds[i])
		}
		if rec.Protocol != "SSH" || rec.SessionID != "abc" || rec.RemoteAddr != "192.0.2.10:40000" {
			t.Errorf("record %d carries wrong metadata: %+v", i, rec)
		}
	}
	if sink.records[0].Payload != "connection from 192.0.2.10:40000" {
		t.Errorf("unexpected connect payload %q", sink.records[0].Payload)
	}
	if sink.records[2].Payload != "read: connection reset" {
		t.Errorf("unexpected error payload %q", sink.records[2].Payload)
	}
}

func TestContext_NilSink(t *testing.T) {
	hctx := &Context{Protocol: FTP}
	// Should not panic.
	hctx.Connected()
	hctx.Command("QUIT")
}

func TestHandlerFunc(t *testing.T) {
	called := false
	h := HandlerFunc(func(ctx context.Context, conn net.Conn, hctx *Context) error {
		called = true
		return nil
	})

	if err := h.Handle(context.Background(), nil, &Context{}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !called {
		t.Error("expected wrapped function to be called")
	}
}
