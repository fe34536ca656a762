// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// env.go - Shared collaborators for command handlers.

package cli

import (
	"context"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	vchat "github.com/jeranaias/veda/internal/chat"
	"github.com/jeranaias/veda/internal/chatapi"
	"github.com/jeranaias/veda/internal/config"
	"github.com/jeranaias/veda/internal/history"
	"github.com/jeranaias/veda/internal/kv"
	"github.com/jeranaias/veda/internal/stream"
)

// Env carries the configuration, logger and lazily opened stores that
// command handlers share.
type Env struct {
	Config *config.Config
	Log    *zap.Logger
	Out    io.Writer
	Err    io.Writer

	store   kv.Store
	history *history.Store
	client  *chatapi.Client
}

// NewEnv creates an Env writing to stdout and stderr.
func NewEnv(cfg *config.Config, log *zap.Logger) *Env {
	if log == nil {
		log = zap.NewNop()
	}
	return &Env{Config: cfg, Log: log, Out: os.Stdout, Err: os.Stderr}
}

// Store opens the configured key/value store on first use.
func (e *Env) Store() (kv.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	store, err := kv.Open(e.Config.KVOptions())
	if err != nil {
		return nil, NewCommandError("storage", "open", e.Config.Storage.Backend+" store", err)
	}
	e.store = store
	return store, nil
}

// History returns the chat history store.
func (e *Env) History() (*history.Store, error) {
	if e.history != nil {
		return e.history, nil
	}
	store, err := e.Store()
	if err != nil {
		return nil, err
	}
	e.history = history.NewStore(store)
	e.history.MaxEntries = e.Config.History.MaxSessions
	return e.history, nil
}

// Client returns the backend client.
func (e *Env) Client() *chatapi.Client {
	if e.client == nil {
		e.client = chatapi.NewClientWithConfig(&chatapi.ClientConfig{
			BaseURL: e.Config.Backend.URL,
			Timeout: e.Config.Timeout(),
			UserID:  e.Config.Backend.UserID,
			Logger:  e.Log,
		})
	}
	return e.client
}

// Transport returns the streaming client, or its legacy adapter when the
// backend is configured as non-streaming.
func (e *Env) Transport() vchat.Transport {
	if e.Config.Backend.Legacy {
		return chatapi.Legacy{Client: e.Client()}
	}
	return e.Client()
}

// Close releases the store.
func (e *Env) Close() error {
	if e.store == nil {
		return nil
	}
	return kv.Close(e.store)
}

// =============================================================================
// TRANSPORT RECORDING
// =============================================================================

// recordingTransport remembers the error of the latest exchange. The chat
// session turns failures into reply text, and commands still need the cause
// for their exit status.
type recordingTransport struct {
	vchat.Transport

	mu  sync.Mutex
	err error
}

func (t *recordingTransport) Stream(ctx context.Context, req chatapi.ChatRequest, fn func(stream.Event)) error {
	err := t.Transport.Stream(ctx, req, fn)
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	return err
}

// Err returns the error of the latest exchange.
func (t *recordingTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
