// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve_cmd.go - Local development backend.
//
// Command: serve
// Short:   Run a stand-in chat backend for local development
// Aliases: server
//
// Examples:
//   veda serve
//   veda serve --addr 127.0.0.1:5002
//   VEDA_LOG_LEVEL=debug veda serve
//
// Flags:
//   --addr HOST:PORT    Listen address (default from [server] addr)
//
// The backend answers /chat with canned knowledge base replies, streamed as
// NDJSON or returned as one JSON object. Messages, feedback and tickets are
// written to SQLite when [server] sqlite_path is set. Ctrl+C or SIGTERM shuts
// it down gracefully.

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/veda/internal/kv"
	"github.com/jeranaias/veda/internal/server"
)

const shutdownTimeout = 5 * time.Second

// RunServe handles the "serve" command.
func RunServe(ctx context.Context, env *Env, args Args) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", env.Config.Server.Addr)
	if err != nil {
		return NewCommandError("serve", "listen", env.Config.Server.Addr, err)
	}
	return serveOn(ctx, env, ln)
}

// serveOn runs the backend on ln until ctx is done.
func serveOn(ctx context.Context, env *Env, ln net.Listener) error {
	cfg := env.Config.Server
	srv := server.New(server.Config{
		Addr:           cfg.Addr,
		Version:        Version,
		StreamDelay:    time.Duration(cfg.StreamDelayMs) * time.Millisecond,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AllowedOrigins: cfg.AllowedOrigins,
	}).WithLogger(env.Log)

	if cfg.SQLitePath != "" {
		records, err := server.OpenRecords(cfg.SQLitePath)
		if err != nil {
			ln.Close()
			return NewCommandError("serve", "open", cfg.SQLitePath, err)
		}
		defer records.Close()
		srv.WithRecords(records)
	}

	if cfg.SessionBackend == kv.BackendRedis {
		redis, err := kv.NewRedis(kv.RedisOptions{
			Addr:     env.Config.Storage.RedisAddr,
			Password: env.Config.Storage.RedisPassword,
			DB:       env.Config.Storage.RedisDB,
		})
		if err != nil {
			ln.Close()
			return NewCommandError("serve", "connect", "redis session store", err)
		}
		defer redis.Close()
		srv.WithSessions(server.NewSessionRegistry(kv.Namespace(redis, "veda-backend")))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	fmt.Fprintf(env.Err, "%s %s\n", SuccessStyle.Render("Veda dev backend listening on"), "http://"+ln.Addr().String())
	fmt.Fprintln(env.Err, DimStyle.Render("Press Ctrl+C to stop."))

	select {
	case err := <-errCh:
		if err != nil {
			return NewCommandError("serve", "run", ln.Addr().String(), err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		env.Log.Warn("shutdown failed", zap.Error(err))
	}
	return <-errCh
}
