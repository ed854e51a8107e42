// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the per-port TCP listener that serves one decoy
// protocol.
//
// # Connection Flow
//
//  1. Bind claims the address; a failure is a *errors.BindError
//  2. Serve accepts connections until shutdown
//  3. Each connection gets its own goroutine, session ID and
//     handler.Context
//  4. The optional rate limiter may refuse the connection; the refusal is
//     audited and the socket closed
//  5. The connect event is audited and the decoy handler runs
//  6. A handler error is audited unless it was caused by shutdown
//  7. The connection is closed
//
// # Graceful Shutdown
//
// Shutdown closes the listening socket first, so no new connection is
// accepted. Each open connection is then closed as soon as no reply write
// is in progress on it: writes and the shutdown close share a lock, so a
// reply that has started is delivered in full. Shutdown returns when every
// handler has returned, or with errors.ErrShutdownTimeout once its context
// expires, after forcing the remaining sockets closed.
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	err := srv.Shutdown(ctx)
//
// # Idle Deadline
//
// When Config.IdleTimeout is set, every read and write on a connection is
// bounded by it, so a peer that stops talking cannot pin a goroutine.
package tcp
