// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides the small key/value persistence layer that stands in
// for browser local storage: the chat session id and the chat history list
// live here.
//
// Backends:
//   - Memory: in-process, for tests and throwaway sessions (go-cache)
//   - File:   a single JSON document on disk, watchable across processes
//   - SQLite: a kv table in a local database file
//   - Redis:  shared storage, also used by the dev backend for sessions
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is a synchronous string key/value store. Writes are last-write-wins.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// Closer is implemented by backends that hold a file, database or network
// handle.
type Closer interface {
	Close() error
}

// Watcher is implemented by backends that can report writes made by other
// processes.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// AsWatcher returns the Watcher behind s, looking through namespaces.
func AsWatcher(s Store) (Watcher, bool) {
	if n, ok := s.(*namespaced); ok {
		s = n.store
	}
	w, ok := s.(Watcher)
	return w, ok
}

// =============================================================================
// NAMESPACE
// =============================================================================

type namespaced struct {
	prefix string
	store  Store
}

// Namespace returns a Store that prefixes every key with ns and a colon.
// An empty ns returns store unchanged.
func Namespace(store Store, ns string) Store {
	ns = strings.TrimSuffix(ns, ":")
	if ns == "" {
		return store
	}
	return &namespaced{prefix: ns + ":", store: store}
}

func (n *namespaced) Get(key string) (string, error) { return n.store.Get(n.prefix + key) }
func (n *namespaced) Set(key, value string) error    { return n.store.Set(n.prefix+key, value) }
func (n *namespaced) Remove(key string) error        { return n.store.Remove(n.prefix + key) }

// Close closes the wrapped store when it holds resources.
func (n *namespaced) Close() error {
	return Close(n.store)
}

// Close releases s if it implements Closer.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

// =============================================================================
// FACTORY
// =============================================================================

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend       string
	Path          string // file backend
	SQLitePath    string // sqlite backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Namespace     string
}

// Open builds the configured backend wrapped in its namespace.
func Open(opts Options) (Store, error) {
	var (
		store Store
		err   error
	)

	switch opts.Backend {
	case BackendMemory:
		store = NewMemory()
	case BackendFile, "":
		store, err = OpenFile(opts.Path)
	case BackendSQLite:
		store, err = OpenSQLite(opts.SQLitePath)
	case BackendRedis:
		store, err = NewRedis(RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	return Namespace(store, opts.Namespace), nil
}
