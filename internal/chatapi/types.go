// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import "encoding/json"

// =============================================================================
// CHAT
// =============================================================================

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string
	// SessionID is sent as null until the backend has issued one.
	SessionID  string
	Regenerate bool
	UserID     string
}

type chatRequestWire struct {
	Message    string  `json:"message"`
	SessionID  *string `json:"sessionId"`
	Regenerate bool    `json:"regenerate,omitempty"`
	UserID     string  `json:"user_id,omitempty"`
}

// MarshalJSON encodes an empty SessionID as null.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	w := chatRequestWire{
		Message:    r.Message,
		Regenerate: r.Regenerate,
		UserID:     r.UserID,
	}
	if r.SessionID != "" {
		sid := r.SessionID
		w.SessionID = &sid
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts both null and string session ids.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var w chatRequestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Message = w.Message
	r.Regenerate = w.Regenerate
	r.UserID = w.UserID
	r.SessionID = ""
	if w.SessionID != nil {
		r.SessionID = *w.SessionID
	}
	return nil
}

// LegacyResponse is the single JSON body returned by non-streaming backends.
type LegacyResponse struct {
	Response        string         `json:"response"`
	Recommendations []string       `json:"recommendations,omitempty"`
	SessionID       string         `json:"sessionId,omitempty"`
	Meta            map[string]any `json:"meta,omitempty"`
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	DBConnected bool   `json:"db_connected"`
}

// OK reports whether the backend declared itself healthy.
func (h HealthStatus) OK() bool {
	return h.Status == "ok"
}

// =============================================================================
// FEEDBACK AND TICKETS
// =============================================================================

// Default values filled in by the client when left empty.
const (
	DefaultFeedbackCategory = "General"
	DefaultTicketPriority   = "Medium"
)

// Ticket categories and priorities accepted by the backend.
var (
	TicketCategories = []string{"Technical", "Billing", "Feature"}
	TicketPriorities = []string{"Low", "Medium", "High", "Urgent"}
)

// FeedbackRequest is the body of POST /feedback.
type FeedbackRequest struct {
	UserID   string `json:"user_id,omitempty"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// TicketRequest is the body of POST /ticket.
type TicketRequest struct {
	UserID      string `json:"user_id,omitempty"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// SubmitResult is the reply to feedback and ticket submissions.
type SubmitResult struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	TicketID string `json:"ticket_id,omitempty"`
}
