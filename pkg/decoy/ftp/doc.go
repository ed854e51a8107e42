// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ftp implements the FTP-like decoy.
//
// # State Machine
//
//	GREETING ──banner──▶ AWAIT_COMMAND ──QUIT──▶ CLOSED
//	                        │    ▲
//	                        └────┘ USER / PASS / other
//
// Stages only move forward. Every line read in AWAIT_COMMAND is classified
// by ParseCommand and answered from the transition table:
//
//	USER*   331 Username OK, need password
//	PASS*   530 Login incorrect
//	QUIT    221 Goodbye.   (then the connection closes)
//	other   502 Command not implemented
//
// USER and PASS are case-insensitive prefix matches with no separator
// required, so "PASSWORD123" counts as PASS. QUIT must be the whole line.
//
// # Termination
//
// A clean close by the peer ends the session with a nil error. Socket
// failures are returned to the listener, which records them; nothing is
// ever sent to the peer about them.
package ftp
