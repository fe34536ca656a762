// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	vchat "github.com/jeranaias/veda/internal/chat"
	"github.com/jeranaias/veda/internal/model"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		switch m.mode {
		case ModeClosed:
			return m.handleClosedKey(msg)
		case ModeHistory:
			return m.handleHistoryKey(msg)
		default:
			return m.handleChatKey(msg)
		}

	case ConversationChangedMsg:
		m.refresh()
		cmds := []tea.Cmd{waitFor(m.conv.Changes(), ConversationChangedMsg{})}
		if m.conv.Typing() {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case VoiceChangedMsg:
		state := m.voice.State()
		// Once dictation ends the input is plain text. The first signal after
		// the end still carries the frozen value, so apply that one too.
		if state.Listening || m.dictating {
			m.input.SetValue(state.Value)
			m.input.CursorEnd()
		}
		m.dictating = state.Listening
		if state.Notice != "" {
			m.notice, m.noticeError = state.Notice, true
		}
		return m, waitFor(m.voice.Changes(), VoiceChangedMsg{})

	case SessionFileChangedMsg:
		before := m.session.SessionID()
		m.session.Reload()
		if after := m.session.SessionID(); after != before {
			m.log.Debug("session id changed by another process", zap.String("session", after))
		}
		return m, waitFor(m.sessionFile, SessionFileChangedMsg{})

	case ReplyDoneMsg:
		delete(m.inflight, msg.Seq)
		if errors.Is(msg.Err, vchat.ErrBusy) {
			return m.withNotice("Veda is still answering. Press esc to stop.", true)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.conv.Typing() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case RotateMsg:
		// Rotation pauses while the window is open.
		if m.mode == ModeClosed {
			m.floatIdx = (m.floatIdx + 1) % len(FloatingMessages)
		}
		return m, m.rotateCmd()

	case CopyDoneMsg:
		if msg.Err != nil {
			return m.withNotice("Could not copy: "+msg.Err.Error(), true)
		}
		return m.withNotice("Answer copied to clipboard", false)

	case NoticeMsg:
		return m.withNotice(msg.Text, msg.Error)

	case NoticeExpiredMsg:
		if msg.Seq == m.noticeSeq {
			m.notice, m.noticeError = "", false
			m.voice.ClearNotice()
		}
		return m, nil

	case HistoryLoadedMsg:
		if msg.Err != nil {
			m.mode = ModeChat
			return m.withNotice("Could not load history: "+msg.Err.Error(), true)
		}
		m.entries = msg.Entries
		if m.selected >= len(m.entries) {
			m.selected = max(len(m.entries)-1, 0)
		}
		return m, nil
	}

	return m, nil
}

// =============================================================================
// RESIZE
// =============================================================================

// Fixed rows around the message viewport: header, typing line, input
// (border + line), notice, help.
const chromeHeight = 6

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = msg.Width, msg.Height
	m.theme.SetSize(m.width, m.height)

	m.viewport.Width = max(m.width, 1)
	m.viewport.Height = max(m.height-chromeHeight, 1)
	m.input.Width = max(m.width-6, 10)
	m.help.Width = m.width
	m.ready = true

	m.refresh()
	return m, nil
}

// =============================================================================
// KEYS: CLOSED
// =============================================================================

func (m Model) handleClosedKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit), msg.String() == "q", key.Matches(msg, m.keys.Escape):
		return m.quit()
	case key.Matches(msg, m.keys.Open):
		m.mode = ModeChat
		m.input.Focus()
		m.refresh()
		return m, textinput.Blink
	}
	return m, nil
}

// =============================================================================
// KEYS: CHAT
// =============================================================================

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if i := recommendationIndex(msg.String()); i >= 0 {
		return m.sendRecommendation(i)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Escape):
		switch {
		case m.Busy():
			m.cancelAll()
			return m.withNotice("Stopped", false)
		case m.voice.Listening():
			m.voice.Stop()
			return m, nil
		default:
			m.mode = ModeClosed
			m.input.Blur()
			return m, nil
		}

	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.dictating = false
		if m.voice.Listening() {
			m.voice.Stop()
		}
		if m.session.Busy() {
			return m.withNotice("Veda is still answering. Press esc to stop.", true)
		}
		m.input.Reset()
		return m.startRequest(func(ctx context.Context) error {
			return m.session.Send(ctx, text)
		})

	case key.Matches(msg, m.keys.Regenerate):
		last, ok := m.conv.LastAssistantMessage()
		if !ok {
			return m, nil
		}
		if _, ok := m.conv.PrecedingUserMessage(last.ID); !ok {
			return m.withNotice("Nothing to regenerate yet", false)
		}
		return m.startRequest(func(ctx context.Context) error {
			m.session.Regenerate(ctx, last.ID)
			return nil
		})

	case key.Matches(msg, m.keys.Copy):
		last, ok := m.conv.LastAssistantMessage()
		if !ok || last.Content == "" {
			return m, nil
		}
		write, text := m.clipboard, last.Content
		return m, func() tea.Msg {
			return CopyDoneMsg{Err: write(text)}
		}

	case key.Matches(msg, m.keys.Like):
		return m.rateLast(model.FeedbackLike)

	case key.Matches(msg, m.keys.Dislike):
		return m.rateLast(model.FeedbackDislike)

	case key.Matches(msg, m.keys.NewChat):
		m.cancelAll()
		m.dictating = false
		if m.voice.Listening() {
			m.voice.Stop()
		}
		m.input.Reset()
		if err := m.session.NewChat(); err != nil {
			return m.withNotice("Could not start a new chat: "+err.Error(), true)
		}
		return m.withNotice("Started a new conversation", false)

	case key.Matches(msg, m.keys.History):
		return m.openHistory()

	case key.Matches(msg, m.keys.Voice):
		if err := m.voice.Toggle(m.input.Value()); err != nil {
			m.log.Debug("voice toggle", zap.Error(err))
		}
		if m.voice.Listening() {
			m.dictating = true
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sendRecommendation sends the i-th recommendation of the latest assistant
// message.
func (m Model) sendRecommendation(i int) (tea.Model, tea.Cmd) {
	last, ok := m.conv.LastAssistantMessage()
	if !ok || i >= len(last.Recommendations) {
		return m, nil
	}
	if m.session.Busy() {
		return m.withNotice("Veda is still answering. Press esc to stop.", true)
	}
	text := last.Recommendations[i]
	return m.startRequest(func(ctx context.Context) error {
		return m.session.Send(ctx, text)
	})
}

func (m Model) rateLast(kind model.Feedback) (tea.Model, tea.Cmd) {
	last, ok := m.conv.LastAssistantMessage()
	if !ok {
		return m, nil
	}
	m.session.ToggleFeedback(last.ID, kind)
	return m, nil
}

// startRequest runs fn in a command under a cancellable context.
func (m Model) startRequest(fn func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	m.seq++
	seq := m.seq
	ctx, cancel := context.WithCancel(m.ctx)
	m.inflight[seq] = cancel

	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		defer cancel()
		return ReplyDoneMsg{Seq: seq, Err: fn(ctx)}
	})
}

func (m Model) cancelAll() {
	for _, cancel := range m.inflight {
		cancel()
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.cancelAll()
	if m.voice.Listening() {
		m.voice.Stop()
	}
	m.quitting = true
	return m, tea.Quit
}

// =============================================================================
// KEYS: HISTORY
// =============================================================================

func (m Model) openHistory() (tea.Model, tea.Cmd) {
	if m.history == nil {
		return m.withNotice("History is not available", true)
	}
	m.mode = ModeHistory
	m.selected = 0
	m.input.Blur()
	return m, m.loadHistory()
}

func (m Model) loadHistory() tea.Cmd {
	store := m.history
	return func() tea.Msg {
		entries, err := store.List()
		return HistoryLoadedMsg{Entries: entries, Err: err}
	}
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.History):
		m.mode = ModeChat
		m.input.Focus()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.entries)-1 {
			m.selected++
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if len(m.entries) == 0 {
			return m, nil
		}
		if err := m.history.Delete(m.entries[m.selected].ID); err != nil {
			return m.withNotice("Could not delete: "+err.Error(), true)
		}
		return m, m.loadHistory()

	case msg.Type == tea.KeyEnter:
		if len(m.entries) == 0 {
			return m, nil
		}
		entry := m.entries[m.selected]

		m.cancelAll()
		if m.conv.HasUserMessages() {
			if err := m.history.Save(m.conv.SessionID(), m.conv.Messages()); err != nil {
				m.log.Warn("failed to save chat history", zap.Error(err))
			}
		}
		if err := m.session.Restore(entry.SessionID, entry.Messages); err != nil {
			return m.withNotice("Could not reopen: "+err.Error(), true)
		}

		m.mode = ModeChat
		m.input.Focus()
		m.refresh()
		m.viewport.GotoBottom()
		return m.withNotice("Reopened conversation from "+entry.Date.Local().Format("Jan 2 15:04"), false)
	}
	return m, nil
}

// =============================================================================
// NOTICES
// =============================================================================

// withNotice shows text and schedules its removal.
func (m Model) withNotice(text string, isError bool) (tea.Model, tea.Cmd) {
	m.noticeSeq++
	seq := m.noticeSeq
	m.notice, m.noticeError = text, isError
	return m, tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return NoticeExpiredMsg{Seq: seq}
	})
}
