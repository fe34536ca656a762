// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/veda/internal/history"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports the entry exactly as stored, wrapped with the export
// time. Metadata and timestamp options do not apply.
type JSONExporter struct {
	options *Options
}

// jsonDocument is the exported file.
type jsonDocument struct {
	Generator string        `json:"generator"`
	Exported  time.Time     `json:"exported"`
	Entry     history.Entry `json:"conversation"`
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(entry history.Entry) ([]byte, error) {
	if err := validate(entry); err != nil {
		return nil, err
	}
	return json.MarshalIndent(jsonDocument{
		Generator: "veda",
		Exported:  e.options.now().UTC(),
		Entry:     entry,
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
