// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved conversations to files people can share.
//
// # Key Types
//
//   - Exporter: renders one history.Entry in a format
//   - Options: output directory and what to include
//
// # Supported Formats
//
//   - markdown: readable transcript with YAML frontmatter
//   - json: the entry as stored, for re-import or scripts
//   - html: self-contained page with embedded CSS
//
// # Usage
//
//	exp, err := export.New("markdown", nil)
//	path, err := export.ExportToFile(entry, exp, &export.Options{OutputDir: "."})
package export
