// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat is the Veda widget as a Bubble Tea program.

The widget has three faces. Closed, it shows a trigger in the bottom right
corner with a rotating floating message. Open, it shows the conversation,
the typing indicator, the input line and the shortcut bar. The history face
lists saved conversations and reopens one on enter.

# Data flow

The Model does not own conversation state. It renders a *model.Conversation
and a *voice.Reconciler and re-renders whenever either signals a change:

	conv.Changes()  -> ConversationChangedMsg -> refresh viewport
	voice.Changes() -> VoiceChangedMsg        -> copy transcript into input

Sends run as commands under a cancellable context. esc cancels every request
the widget started; the partial reply stays in the conversation.

# Usage

	sess := vchat.NewSession(client, conv, store, vchat.WithHistory(hist))
	m := chat.New(chat.Options{Session: sess, History: hist, Markdown: true})
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
*/
package chat
