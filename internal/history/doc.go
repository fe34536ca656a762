// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps the list of past conversations.
//
// The list lives under a single key of a kv.Store as a JSON array, newest
// first, capped at MaxEntries. Each entry keeps the backend session id so a
// reopened chat continues where it left off.
package history
