// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package audit implements the shared audit trail of every decoy.
//
// # Records
//
// One record is emitted per accepted connection (connect), per inbound
// command, line or buffer (command), and per handler-level failure (error).
// Each record carries the protocol tag, the remote address, the session id
// of the connection and a free-text payload:
//
//	time=2026-10-14T09:12:01.512Z level=INFO msg=command seq=42 protocol=FTP remote=203.0.113.7:51022 session=8c1f... payload="USER root"
//
// # Ordering
//
// All decoys share one Logger. The Logger takes its lock before stamping the
// time and sequence number and releases it after the line is written, so
// lines never interleave and the file order equals the emission order.
//
// # Rotation
//
// RotatingFile rolls the active file over to path.1 once the next record
// would exceed MaxBytes, shifting older backups up and discarding anything
// beyond Backups:
//
//	honeycomb_multi.log      active
//	honeycomb_multi.log.1    newest backup
//	honeycomb_multi.log.N    oldest backup
//
// # Failures
//
// A failing sink never propagates to a handler. The first failure is written
// to the operational logger, the latest is available through Logger.Err for
// health checks.
package audit
