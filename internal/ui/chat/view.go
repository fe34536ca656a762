// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/veda/internal/model"
	"github.com/jeranaias/veda/internal/ui/styles"
	"github.com/jeranaias/veda/internal/util"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// markdownCache renders assistant replies with glamour and remembers the
// output per message so a streaming reply does not re-render its siblings.
type markdownCache struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
	entries  map[string]cachedRender
}

type cachedRender struct {
	content string
	out     string
}

func newMarkdownCache(dark bool) *markdownCache {
	style := "light"
	if dark {
		style = "dark"
	}
	return &markdownCache{style: style, entries: make(map[string]cachedRender)}
}

// render returns content rendered at width, or content itself when glamour
// fails.
func (c *markdownCache) render(id, content string, width int) string {
	if width != c.width || c.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(c.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		c.renderer, c.width = r, width
		clear(c.entries)
	}

	if e, ok := c.entries[id]; ok && e.content == content {
		return e.out
	}
	out, err := c.renderer.Render(content)
	if err != nil {
		return content
	}
	out = strings.Trim(out, "\n")
	c.entries[id] = cachedRender{content: content, out: out}
	return out
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the widget.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	switch m.mode {
	case ModeClosed:
		return m.renderClosed()
	case ModeHistory:
		return m.renderHistory()
	default:
		return m.renderChat()
	}
}

// renderClosed draws the trigger with its floating message in the bottom
// right corner.
func (m Model) renderClosed() string {
	bubble := m.theme.FloatingBubble.Render(m.FloatingMessage())
	trigger := m.theme.Trigger.Render("Veda  [enter]")
	block := lipgloss.JoinVertical(lipgloss.Right, bubble, trigger)

	if m.width == 0 || m.height == 0 {
		return block
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Right, lipgloss.Bottom, block)
}

func (m Model) renderChat() string {
	parts := []string{
		m.renderHeader("Veda", "AI Sales Assistant"),
		m.viewport.View(),
		m.renderTyping(),
		m.renderInput(),
		m.renderNotice(),
		m.help.ShortHelpView(m.keys.ShortHelp()),
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader(title, subtitle string) string {
	left := m.theme.HeaderTitle.Render(title) + "  " + m.theme.HeaderSubtitle.Render(subtitle)
	if id := m.session.SessionID(); id != "" && m.theme.GetLayoutMode() != styles.LayoutNarrow {
		left += m.theme.HeaderSubtitle.Render("  session " + util.TruncateWidth(id, 8))
	}
	return m.theme.Header.Width(max(m.width, 1)).Render(left)
}

func (m Model) renderTyping() string {
	if !m.conv.Typing() {
		return ""
	}
	return m.theme.Typing.Render(m.spinner.View() + " Veda is typing...")
}

func (m Model) renderInput() string {
	line := m.input.View()
	if m.voice.Listening() {
		line = m.theme.Listening.Render(styles.StatusIndicators.Listening+" Listening ") + line
	}
	return m.theme.InputContainer.Width(max(m.width, 1)).Render(line)
}

func (m Model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	if m.noticeError {
		return styles.RenderWarning(m.notice)
	}
	return m.theme.Notice.Render(m.notice)
}

// =============================================================================
// MESSAGES
// =============================================================================

// refresh rebuilds the viewport content, following the bottom when the user
// had not scrolled away from it.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom() || m.viewport.TotalLineCount() <= m.viewport.Height
	m.viewport.SetContent(m.renderMessages())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderMessages() string {
	messages := m.conv.Messages()
	lastAssistant := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleAssistant {
			lastAssistant = i
			break
		}
	}

	width := m.theme.BubbleWidth()
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, width, i == lastAssistant))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message, width int, latest bool) string {
	stamp := m.theme.Timestamp.Render(msg.Role.DisplayName() + " " + msg.Timestamp.Local().Format("15:04"))

	if msg.Role == model.RoleUser {
		bubble := m.theme.UserBubble.Width(width).Render(msg.Content)
		block := lipgloss.JoinVertical(lipgloss.Right, stamp, bubble)
		return lipgloss.PlaceHorizontal(max(m.width, lipgloss.Width(block)), lipgloss.Right, block)
	}

	body := msg.Content
	if m.md != nil {
		// Bubble border and padding take four columns.
		body = m.md.render(msg.ID, msg.Content, max(width-4, 10))
	}
	lines := []string{stamp, m.theme.AssistantBubble.Width(width).Render(body)}

	if fb := m.renderFeedback(msg.Feedback); fb != "" {
		lines = append(lines, fb)
	}
	if latest && len(msg.Recommendations) > 0 {
		lines = append(lines, m.renderChips(msg.Recommendations))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderFeedback(f model.Feedback) string {
	switch f {
	case model.FeedbackLike:
		return m.theme.FeedbackLiked.Render("+ helpful")
	case model.FeedbackDislike:
		return m.theme.FeedbackDislike.Render("- not helpful")
	}
	return ""
}

// renderChips lays recommendations out left to right, wrapping at the
// terminal width.
func (m Model) renderChips(recs []string) string {
	var (
		rows []string
		row  []string
		used int
	)
	for i, rec := range recs {
		label := rec
		if i < 9 {
			label = m.theme.ChipIndex.Render(fmt.Sprintf("%d ", i+1)) + rec
		}
		chip := m.theme.Chip.Render(label)
		w := lipgloss.Width(chip)
		if used > 0 && used+w > m.width {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row, used = nil, 0
		}
		row = append(row, chip)
		used += w
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// =============================================================================
// HISTORY
// =============================================================================

func (m Model) renderHistory() string {
	var body string
	if len(m.entries) == 0 {
		body = m.theme.Empty.Render("No saved conversations yet.")
	} else {
		rows := make([]string, 0, len(m.entries))
		for i, e := range m.entries {
			meta := m.theme.HistoryMeta.Render(fmt.Sprintf("  %s, %d messages",
				e.Date.Local().Format("Jan 2 15:04"), len(e.Messages)))
			style := m.theme.HistoryItem
			if i == m.selected {
				style = m.theme.HistoryItemSelected
			}
			rows = append(rows, style.Render(e.Preview)+meta)
		}
		body = strings.Join(rows, "\n")
	}

	help := m.help.ShortHelpView(m.keys.HistoryHelp())
	parts := []string{
		m.renderHeader("Chat history", fmt.Sprintf("%d saved", len(m.entries))),
		body,
		m.renderNotice(),
		help,
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
