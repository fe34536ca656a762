// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/veda/internal/kv"
)

// SessionInfo is what the registry keeps per chat session.
type SessionInfo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Turns        int       `json:"turns"`
}

// SessionRegistry tracks live chat sessions in a kv store, so several dev
// backend processes can share them through redis.
type SessionRegistry struct {
	store kv.Store
	now   func() time.Time
	mu    sync.Mutex
}

// NewSessionRegistry wraps store. A nil store selects an in-memory one.
func NewSessionRegistry(store kv.Store) *SessionRegistry {
	if store == nil {
		store = kv.NewMemory()
	}
	return &SessionRegistry{
		store: kv.Namespace(store, "session"),
		now:   time.Now,
	}
}

// Touch records activity on a session, creating it on first use.
func (r *SessionRegistry) Touch(sessionID, userID string) (SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	info, err := r.get(sessionID)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		info = SessionInfo{ID: sessionID, CreatedAt: now}
	case err != nil:
		return SessionInfo{}, err
	}

	if userID != "" {
		info.UserID = userID
	}
	info.LastActiveAt = now
	info.Turns++

	data, err := json.Marshal(info)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("encode session: %w", err)
	}
	if err := r.store.Set(sessionID, string(data)); err != nil {
		return SessionInfo{}, fmt.Errorf("store session: %w", err)
	}
	return info, nil
}

// Get returns the stored session or kv.ErrNotFound.
func (r *SessionRegistry) Get(sessionID string) (SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(sessionID)
}

func (r *SessionRegistry) get(sessionID string) (SessionInfo, error) {
	raw, err := r.store.Get(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	var info SessionInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return SessionInfo{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return info, nil
}
