// json_output.go - JSON output for scripted use of veda commands.
//
// Every command honours --json by printing one JSONResponse on stdout.
// Human-readable progress goes to stderr in that mode.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the envelope every command prints in JSON mode.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the ISO8601 timestamp when the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response to w, indented.
func (r *JSONResponse) Print(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// AskData is the result of "ask".
type AskData struct {
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	Recommendations []string `json:"recommendations,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
	DurationMs      int64    `json:"duration_ms"`
}

// HistoryEntryData summarises one saved conversation.
type HistoryEntryData struct {
	Index     int       `json:"index"`
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Preview   string    `json:"preview"`
	SessionID string    `json:"session_id,omitempty"`
	Messages  int       `json:"messages"`
}

// SessionData is the result of "session show" and "session reset".
type SessionData struct {
	SessionID string `json:"session_id"`
	Store     string `json:"store"`
}

// HealthData is the result of "health".
type HealthData struct {
	URL         string `json:"url"`
	Status      string `json:"status"`
	Service     string `json:"service,omitempty"`
	Version     string `json:"version,omitempty"`
	DBConnected bool   `json:"db_connected"`
	LatencyMs   int64  `json:"latency_ms"`
}

// SubmitData is the result of "feedback" and "ticket".
type SubmitData struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	TicketID string `json:"ticket_id,omitempty"`
}

// VersionData is the result of "version".
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}
