// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for veda.
//
// Every command except the widget works without a full terminal, so veda
// can be scripted. All of them accept --json and print one JSONResponse.
//
// # Key Types
//
//   - Command: enumeration of the available commands
//   - Args: parsed global and command-specific flags
//   - Env: configuration, logger and lazily opened stores shared by handlers
//   - LineReader: line input for the chat REPL, backed by liner
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	if err != nil {
//	    cli.DisplayError(os.Stderr, err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//	env := cli.NewEnv(cfg, logger)
//	defer env.Close()
//	err = cli.Run(ctx, cmd, args, env)
//
// # Commands Overview
//
//   - tui (default): floating chat widget
//   - chat: line-based REPL sharing the widget's session
//   - ask: one question, answer on stdout
//   - history: list, show, search, export or clear saved conversations
//   - session: show or reset the backend session id
//   - health, feedback, ticket: backend utility endpoints
//   - serve: local development backend
//   - config: show, get or set configuration values
//   - version, help
//
// # Exit Codes
//
// See errors.go. Validation problems exit 2, config problems 3, an
// unreachable backend 5, a missing entry 7 and a timeout 8.
package cli
