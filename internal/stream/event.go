// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

// EventType identifies the kind of a decoded stream record.
type EventType string

const (
	EventContent         EventType = "content"
	EventRecommendations EventType = "recommendations"
	EventMeta            EventType = "meta"
)

// Event is one decoded line of a chat response stream. Only the fields of
// its Type are populated.
//
//	{"type":"content","chunk":"Hel"}
//	{"type":"recommendations","data":["Pro plan","Enterprise"]}
//	{"type":"meta","sessionId":"s1"}
type Event struct {
	Type      EventType `json:"type"`
	Chunk     string    `json:"chunk,omitempty"`
	Data      []string  `json:"data,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

// Content builds a content event.
func Content(chunk string) Event {
	return Event{Type: EventContent, Chunk: chunk}
}

// Recommendations builds a recommendations event.
func Recommendations(data []string) Event {
	return Event{Type: EventRecommendations, Data: data}
}

// Meta builds a meta event carrying a session id.
func Meta(sessionID string) Event {
	return Event{Type: EventMeta, SessionID: sessionID}
}
