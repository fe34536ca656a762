// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/veda/internal/util"
)

// File stores all keys in one JSON object on disk. Every Set or Remove
// re-reads the file, applies its one change and rewrites the file atomically,
// so two veda processes sharing the file (the widget and the REPL, say) keep
// each other's keys.
type File struct {
	path string

	mu          sync.RWMutex
	data        map[string]string
	lastWritten []byte
}

// DefaultFilePath returns ~/.veda/state.json.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".veda", "state.json"), nil
}

// OpenFile loads path, creating nothing until the first write. An empty path
// selects DefaultFilePath.
func OpenFile(path string) (*File, error) {
	if path == "" {
		p, err := DefaultFilePath()
		if err != nil {
			return nil, fmt.Errorf("kv: resolve state file: %w", err)
		}
		path = p
	}

	f := &File{path: path, data: make(map[string]string)}
	if _, err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the backing file.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.reloadLocked(); err != nil {
		return err
	}
	prev, had := f.data[key]
	f.data[key] = value
	if err := f.flushLocked(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.reloadLocked(); err != nil {
		return err
	}
	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.flushLocked(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

func (f *File) flushLocked() error {
	data, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("kv: encode state: %w", err)
	}
	if err := util.AtomicWriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("kv: write state: %w", err)
	}
	f.lastWritten = data
	return nil
}

// reload re-reads the file and reports whether its contents differ from what
// this process last wrote.
func (f *File) reload() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloadLocked()
}

// reloadLocked is reload with f.mu held.
func (f *File) reloadLocked() (bool, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("kv: read state: %w", err)
	}

	if bytes.Equal(raw, f.lastWritten) {
		return false, nil
	}

	data := make(map[string]string)
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return false, fmt.Errorf("kv: decode state: %w", err)
		}
	}
	f.data = data
	f.lastWritten = raw
	return true, nil
}

// =============================================================================
// WATCH
// =============================================================================

// Watch calls onChange whenever another process rewrites the file. It blocks
// until ctx is cancelled. Writes made through this File do not trigger
// onChange.
func (f *File) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("kv: create watcher: %w", err)
	}
	defer watcher.Close()

	// Atomic writes replace the inode, so watch the directory, not the file.
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("kv: create state dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("kv: watch %s: %w", dir, err)
	}

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			changed, err := f.reload()
			if err != nil {
				// Half-written by a non-atomic writer; the next event retries.
				continue
			}
			if changed && onChange != nil {
				onChange()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("kv: watcher: %w", err)
		}
	}
}
