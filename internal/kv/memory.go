// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"github.com/patrickmn/go-cache"
)

// Memory keeps values in process memory. Nothing survives a restart.
type Memory struct {
	c *cache.Cache
}

// NewMemory returns an empty in-memory store. Entries never expire.
func NewMemory() *Memory {
	return &Memory{c: cache.New(cache.NoExpiration, 0)}
}

func (m *Memory) Get(key string) (string, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	return v.(string), nil
}

func (m *Memory) Set(key, value string) error {
	m.c.Set(key, value, cache.NoExpiration)
	return nil
}

func (m *Memory) Remove(key string) error {
	m.c.Delete(key)
	return nil
}

// Len reports the number of stored keys.
func (m *Memory) Len() int {
	return m.c.ItemCount()
}
