// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server is a local development backend for the Veda chat widget.
//
// It answers from a small keyword knowledge base and speaks the same wire
// protocol as the production service, so the client, REPL and TUI can be
// exercised without network access.
//
// # Endpoints
//
//   - GET  /health   - Service status and database connectivity
//   - GET  /stats    - Request counters
//   - POST /chat     - NDJSON stream, or a single JSON reply when the client
//     sends Accept: application/json or ?stream=false
//   - POST /feedback - Store a feedback submission
//   - POST /ticket   - Open a support ticket
//
// # Middleware
//
// Request ids, real client IP, zap request logging, panic recovery, CORS
// allowlist, a 1MB body cap and a per-IP token bucket on the POST routes.
//
// # Usage
//
//	srv := server.New(server.Config{Addr: ":5002", StreamDelay: 40 * time.Millisecond}).
//		WithLogger(log).
//		WithRecords(records)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
