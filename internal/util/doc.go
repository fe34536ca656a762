// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the storage and display code.
//
//   - AtomicWriteFile: crash-safe file replacement used by the file-backed
//     key/value store
//   - TruncateWidth, Flatten: terminal-width aware preview text for the
//     chat history list and the widget
package util
