// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the error taxonomy shared by the honeycomb decoys.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Common error types
var (
	// ErrServerClosed is returned by a listener that is asked to bind after
	// its shutdown has started.
	ErrServerClosed = errors.New("server closed")

	// ErrShutdownTimeout is returned when in-flight connections did not
	// drain before the shutdown deadline.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

	// ErrNoListeners is returned when every configured listener failed to bind.
	ErrNoListeners = errors.New("no listener could be started")

	// ErrRateLimited indicates a source exceeded its connection budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Kind classifies an error into the decoy failure taxonomy.
type Kind int

const (
	// KindUnknown is any error that carries no taxonomy information.
	KindUnknown Kind = iota
	// KindBind is a listener that cannot claim its port.
	KindBind
	// KindConnection is a peer reset, timeout or other socket failure.
	KindConnection
	// KindProtocolDecode is unparseable or short protocol framing.
	KindProtocolDecode
	// KindLogSink is a failure to write or rotate the audit log.
	KindLogSink
	// KindRateLimited is a connection refused by the accept rate limiter.
	KindRateLimited
)

// String returns the metric/log label of the kind.
func (k Kind) String() string {
	switch k {
	case KindBind:
		return "bind"
	case KindConnection:
		return "connection"
	case KindProtocolDecode:
		return "protocol_decode"
	case KindLogSink:
		return "log_sink"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// BindError is returned when a listener cannot claim its address. It is
// fatal for that listener only.
type BindError struct {
	Protocol string
	Address  string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s bind %s: %v", e.Protocol, e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ConnectionError wraps a socket failure of a single connection.
type ConnectionError struct {
	Op         string // "read" or "write"
	Protocol   string
	RemoteAddr string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Protocol, e.Op, e.RemoteAddr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolDecodeError reports framing the decoy could not make sense of.
// The offending input is still recorded; the connection is treated as a no-op.
type ProtocolDecodeError struct {
	Protocol string
	Reason   string
	Err      error
}

func (e *ProtocolDecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s decode: %s", e.Protocol, e.Reason)
	}
	return fmt.Sprintf("%s decode: %s: %v", e.Protocol, e.Reason, e.Err)
}

func (e *ProtocolDecodeError) Unwrap() error { return e.Err }

// LogSinkError reports a failed audit write or rotation.
type LogSinkError struct {
	Op   string // "open", "write", "rotate"
	Path string
	Err  error
}

func (e *LogSinkError) Error() string {
	return fmt.Sprintf("audit %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LogSinkError) Unwrap() error { return e.Err }

// Read wraps a read failure. A clean EOF is not an error and yields nil.
func Read(protocol, remote string, err error) error {
	return wrapIO("read", protocol, remote, err)
}

// Write wraps a write failure.
func Write(protocol, remote string, err error) error {
	return wrapIO("write", protocol, remote, err)
}

func wrapIO(op, protocol, remote string, err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &ConnectionError{Op: op, Protocol: protocol, RemoteAddr: remote, Err: err}
}

// KindOf returns the taxonomy kind of err.
func KindOf(err error) Kind {
	var (
		be *BindError
		ce *ConnectionError
		pe *ProtocolDecodeError
		le *LogSinkError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.As(err, &be):
		return KindBind
	case errors.As(err, &pe):
		return KindProtocolDecode
	case errors.As(err, &le):
		return KindLogSink
	case errors.As(err, &ce):
		return KindConnection
	default:
		return KindUnknown
	}
}

// IsClosed reports whether err means the peer or the local side closed the
// socket, as opposed to a genuine failure.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// As is [errors.As].
func As(err error, target any) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
