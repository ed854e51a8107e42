// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler defines the contract between the TCP listeners and the
// protocol decoys.
//
// A listener accepts a connection, builds a Context (session id, remote
// address, protocol, accept time and the shared audit sink), records the
// connect event and calls Handler.Handle in a goroutine of its own. The
// handler owns the session state; nothing it holds is shared with other
// connections except the audit sink.
//
//	hctx := &handler.Context{
//		SessionID:  uuid.NewString(),
//		RemoteAddr: conn.RemoteAddr().String(),
//		Protocol:   handler.FTP,
//		OpenedAt:   time.Now(),
//		Audit:      sink,
//	}
//	hctx.Connected()
//	err := h.Handle(ctx, conn, hctx)
package handler
