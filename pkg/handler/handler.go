// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"net"
	"time"

	"github.com/absmach/honeycomb/pkg/audit"
)

// Protocol is the kind of decoy a connection was accepted on. It never
// changes for the lifetime of a connection.
type Protocol int

const (
	FTP Protocol = iota
	MQTT
	SSH
	HTTP
)

// String returns the protocol tag used in audit records.
func (p Protocol) String() string {
	switch p {
	case FTP:
		return "FTP"
	case MQTT:
		return "MQTT"
	case SSH:
		return "SSH"
	case HTTP:
		return "HTTP"
	default:
		return "UNKNOWN"
	}
}

// Context contains the metadata of one accepted connection and the shared
// audit sink. It is owned by the goroutine serving the connection.
type Context struct {
	// SessionID is a unique identifier for this connection
	SessionID string

	// RemoteAddr is the peer's network address
	RemoteAddr string

	// Protocol of the listener that accepted the connection
	Protocol Protocol

	// OpenedAt is the accept time
	OpenedAt time.Time

	// Audit is the sink shared by every connection of every protocol
	Audit audit.Sink
}

// Connected records the connect event.
func (c *Context) Connected() {
	c.emit(audit.KindConnect, "connection from "+c.RemoteAddr)
}

// Command records one inbound command, line or buffer.
func (c *Context) Command(payload string) {
	c.emit(audit.KindCommand, payload)
}

// Failed records a handler-level error.
func (c *Context) Failed(err error) {
	c.emit(audit.KindError, err.Error())
}

func (c *Context) emit(kind audit.Kind, payload string) {
	if c.Audit == nil {
		return
	}
	c.Audit.Log(audit.Record{
		Protocol:   c.Protocol.String(),
		RemoteAddr: c.RemoteAddr,
		SessionID:  c.SessionID,
		Kind:       kind,
		Payload:    payload,
	})
}

// Handler runs the session state machine of one decoy protocol on one
// connection.
//
// Handle must:
//   - issue each reply as a single conn.Write, so shutdown never cuts a
//     reply in half;
//   - never read the next command before the previous reply is written;
//   - record inbound data through hctx.Command;
//   - return nil on a clean close by the peer and an error otherwise;
//     the caller records the error, the handler must not.
//
// The caller closes conn after Handle returns.
type Handler interface {
	Handle(ctx context.Context, conn net.Conn, hctx *Context) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn net.Conn, hctx *Context) error

var _ Handler = HandlerFunc(nil)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, conn net.Conn, hctx *Context) error {
	return f(ctx, conn, hctx)
}
