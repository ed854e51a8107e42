// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package http implements the HTTP-like decoy.
//
// Each connection carries exactly one request and one response; the
// response always sets "Connection: close".
//
// # Routing
//
// GET requests are dispatched on the exact path, ignoring any query string:
//
//	/login   static HTML login form (text/html)
//	/status  {"status":"ok"} (application/json)
//	other    admin panel page advertising a firmware version (text/html)
//
// POST requests to any path have their body read, bounded by the configured
// limit, recorded together with the path and answered with 200 "OK". The
// content of the body never changes the reply. Every other method is
// answered with 501.
//
// Nothing besides the audit record of the request is logged.
package http
