// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
)

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the single source of truth for the message list, the typing
// indicator and the backend session id.
//
// All mutations are keyed by message id, never by position. Calling any of
// them with an id that no longer exists (for example after Regenerate removed
// the message) is a no-op that returns false.
//
// The Conversation is safe for concurrent use. Readers get copies.
type Conversation struct {
	mu        sync.RWMutex
	messages  []Message
	sessionID string
	typing    bool

	changes chan struct{}
}

// NewConversation creates a conversation seeded with the given messages,
// usually a single Greeting.
func NewConversation(seed ...Message) *Conversation {
	c := &Conversation{changes: make(chan struct{}, 1)}
	for _, m := range seed {
		c.messages = append(c.messages, m.Clone())
	}
	return c
}

// Changes delivers a signal after mutations. Signals coalesce: a reader that
// falls behind sees one pending signal, not one per mutation.
func (c *Conversation) Changes() <-chan struct{} {
	return c.changes
}

func (c *Conversation) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// indexOf returns the position of id or -1. Caller holds the lock.
func (c *Conversation) indexOf(id string) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AppendUserMessage appends a new user message and returns it.
func (c *Conversation) AppendUserMessage(text string) Message {
	msg := NewUserMessage(text)

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	c.notify()
	return msg.Clone()
}

// AppendAssistantMessage appends a complete assistant message, such as the
// fallback or connectivity notice, and returns it. An empty id is replaced
// with a fresh one.
func (c *Conversation) AppendAssistantMessage(id, content string) Message {
	msg := NewAssistantMessage(id, content)

	c.mu.Lock()
	if i := c.indexOf(msg.ID); i >= 0 {
		c.messages[i].Content = content
		msg = c.messages[i]
	} else {
		c.messages = append(c.messages, msg)
	}
	c.mu.Unlock()

	c.notify()
	return msg.Clone()
}

// OpenAssistantMessage appends the streaming assistant message under its
// pre-allocated id. Opening an id that already exists replaces its content.
func (c *Conversation) OpenAssistantMessage(id, content string) {
	c.AppendAssistantMessage(id, content)
}

// UpdateAssistantContent replaces the content of assistant message id with the
// full accumulated text.
func (c *Conversation) UpdateAssistantContent(id, content string) bool {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 || c.messages[i].Role != RoleAssistant {
		c.mu.Unlock()
		return false
	}
	c.messages[i].Content = content
	c.mu.Unlock()

	c.notify()
	return true
}

// SetRecommendations replaces the recommendations of assistant message id.
func (c *Conversation) SetRecommendations(id string, recs []string) bool {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 || c.messages[i].Role != RoleAssistant {
		c.mu.Unlock()
		return false
	}
	c.messages[i].Recommendations = append([]string(nil), recs...)
	c.mu.Unlock()

	c.notify()
	return true
}

// SetFeedback records the user's rating of assistant message id.
// FeedbackNone clears it.
func (c *Conversation) SetFeedback(id string, kind Feedback) bool {
	if !kind.Valid() {
		return false
	}

	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 || c.messages[i].Role != RoleAssistant {
		c.mu.Unlock()
		return false
	}
	c.messages[i].Feedback = kind
	c.mu.Unlock()

	c.notify()
	return true
}

// RemoveMessage deletes message id, preserving the order of the rest.
func (c *Conversation) RemoveMessage(id string) bool {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.messages = append(c.messages[:i:i], c.messages[i+1:]...)
	c.mu.Unlock()

	c.notify()
	return true
}

// SetSessionID records the backend session id. An empty id clears it.
func (c *Conversation) SetSessionID(id string) {
	c.mu.Lock()
	changed := c.sessionID != id
	c.sessionID = id
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// SetTyping sets the typing indicator.
func (c *Conversation) SetTyping(typing bool) {
	c.mu.Lock()
	changed := c.typing != typing
	c.typing = typing
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// Replace swaps in a whole message list, as when reopening a saved chat or
// starting a new one. The typing indicator is cleared.
func (c *Conversation) Replace(messages []Message, sessionID string) {
	copied := make([]Message, 0, len(messages))
	for _, m := range messages {
		copied = append(copied, m.Clone())
	}

	c.mu.Lock()
	c.messages = copied
	c.sessionID = sessionID
	c.typing = false
	c.mu.Unlock()

	c.notify()
}

// Reset starts over with a single greeting and no session.
func (c *Conversation) Reset(greeting Message) {
	c.Replace([]Message{greeting}, "")
}

// =============================================================================
// QUERIES
// =============================================================================

// Messages returns a deep copy of the message list in display order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Find returns a copy of message id.
func (c *Conversation) Find(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(id); i >= 0 {
		return c.messages[i].Clone(), true
	}
	return Message{}, false
}

// PrecedingUserMessage returns the nearest user message before assistant
// message id. It reports false unless id names an assistant message with a
// user message somewhere before it.
func (c *Conversation) PrecedingUserMessage(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.indexOf(id)
	if i < 0 || c.messages[i].Role != RoleAssistant {
		return Message{}, false
	}
	for j := i - 1; j >= 0; j-- {
		if c.messages[j].Role == RoleUser {
			return c.messages[j].Clone(), true
		}
	}
	return Message{}, false
}

// LastAssistantMessage returns the most recent assistant message.
func (c *Conversation) LastAssistantMessage() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i].Clone(), true
		}
	}
	return Message{}, false
}

// HasUserMessages reports whether the user has said anything yet.
func (c *Conversation) HasUserMessages() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

// SessionID returns the backend session id, or "" before the first reply.
func (c *Conversation) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Typing reports whether the typing indicator is on.
func (c *Conversation) Typing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typing
}
