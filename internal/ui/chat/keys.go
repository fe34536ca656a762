// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings of the widget.
type KeyMap struct {
	Open       key.Binding
	Submit     key.Binding
	Recommend  key.Binding
	Regenerate key.Binding
	Copy       key.Binding
	Like       key.Binding
	Dislike    key.Binding
	NewChat    key.Binding
	History    key.Binding
	Voice      key.Binding
	Escape     key.Binding
	Quit       key.Binding

	// Scrolling
	PageUp   key.Binding
	PageDown key.Binding

	// History view
	Up     key.Binding
	Down   key.Binding
	Delete key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Open: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "open chat"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Recommend: key.NewBinding(
			key.WithKeys("alt+1", "alt+2", "alt+3", "alt+4", "alt+5", "alt+6", "alt+7", "alt+8", "alt+9"),
			key.WithHelp("alt+1-9", "ask suggestion"),
		),
		Regenerate: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("C-r", "regenerate"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("C-y", "copy answer"),
		),
		Like: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "like"),
		),
		Dislike: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("C-d", "dislike"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new chat"),
		),
		History: key.NewBinding(
			key.WithKeys("ctrl+h"),
			key.WithHelp("C-h", "history"),
		),
		Voice: key.NewBinding(
			key.WithKeys("ctrl+v"),
			key.WithHelp("C-v", "voice"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "stop / close"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "previous"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "next"),
		),
		Delete: key.NewBinding(
			key.WithKeys("x", "delete"),
			key.WithHelp("x", "delete"),
		),
	}
}

// =============================================================================
// KEY BINDING HELPERS
// =============================================================================

// ShortHelp returns the bindings shown under the chat window.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Regenerate, k.Copy, k.Like, k.Dislike, k.NewChat, k.History, k.Voice, k.Escape}
}

// FullHelp returns the bindings grouped for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Recommend, k.Regenerate, k.Copy},
		{k.Like, k.Dislike, k.NewChat, k.History},
		{k.Voice, k.Escape, k.Quit, k.PageUp, k.PageDown},
	}
}

// HistoryHelp returns the bindings shown in the history view.
func (k KeyMap) HistoryHelp() []key.Binding {
	return []key.Binding{
		k.Up,
		k.Down,
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "reopen")),
		k.Delete,
		key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	}
}

// recommendationIndex maps alt+1..alt+9 to 0..8, or -1.
func recommendationIndex(s string) int {
	if len(s) == len("alt+1") && s[:4] == "alt+" && s[4] >= '1' && s[4] <= '9' {
		return int(s[4] - '1')
	}
	return -1
}
