// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/veda/internal/history"
)

// =============================================================================
// CHANGE SIGNALS
// =============================================================================

// ConversationChangedMsg is sent when the conversation store changed.
type ConversationChangedMsg struct{}

// VoiceChangedMsg is sent when the transcript reconciler changed.
type VoiceChangedMsg struct{}

// SessionFileChangedMsg is sent when another process rewrote the shared
// state file, which may carry a new chat session id.
type SessionFileChangedMsg struct{}

// waitFor turns a coalescing signal channel into a command that yields msg
// once per signal. A closed channel ends the loop.
func waitFor(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return msg
	}
}

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================

// ReplyDoneMsg is sent when a Send or Regenerate returned.
type ReplyDoneMsg struct {
	Seq int
	Err error
}

// =============================================================================
// WIDGET
// =============================================================================

// RotateMsg advances the floating message on the closed trigger.
type RotateMsg struct {
	Time time.Time
}

// CopyDoneMsg reports the outcome of copying an answer.
type CopyDoneMsg struct {
	Err error
}

// NoticeMsg shows a transient line under the input.
type NoticeMsg struct {
	Text  string
	Error bool
}

// NoticeExpiredMsg clears a notice unless a newer one replaced it.
type NoticeExpiredMsg struct {
	Seq int
}

// HistoryLoadedMsg carries the saved conversations for the history view.
type HistoryLoadedMsg struct {
	Entries []history.Entry
	Err     error
}
