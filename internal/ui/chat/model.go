// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	vchat "github.com/jeranaias/veda/internal/chat"
	"github.com/jeranaias/veda/internal/history"
	"github.com/jeranaias/veda/internal/model"
	"github.com/jeranaias/veda/internal/ui/styles"
	"github.com/jeranaias/veda/internal/voice"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// FloatingMessages rotate above the closed trigger.
var FloatingMessages = []string{
	"Hi there! I'm Veda, your assistant",
	"Need help navigating the dashboard?",
	"Have a question? Ask me anything!",
	"I can help you analyze your leads!",
}

// DefaultRotateEvery is how long each floating message stays up.
const DefaultRotateEvery = 15 * time.Second

// noticeTTL is how long a transient notice stays visible.
const noticeTTL = 4 * time.Second

// Mode is which face of the widget is showing.
type Mode int

const (
	ModeClosed Mode = iota
	ModeChat
	ModeHistory
)

func (m Mode) String() string {
	switch m {
	case ModeClosed:
		return "closed"
	case ModeChat:
		return "chat"
	case ModeHistory:
		return "history"
	default:
		return "unknown"
	}
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options wires the widget to its collaborators. Session is required.
type Options struct {
	Session *vchat.Session
	History *history.Store
	Voice   *voice.Reconciler
	Theme   *styles.Theme
	Logger  *zap.Logger

	// Markdown renders assistant replies with glamour.
	Markdown bool

	// RotateEvery overrides DefaultRotateEvery.
	RotateEvery time.Duration

	// StartOpen skips the closed trigger.
	StartOpen bool

	// WatchSession, when set, blocks watching the shared state file and
	// calls onChange whenever another process rewrites it.
	WatchSession func(ctx context.Context, onChange func()) error

	// Clipboard overrides the system clipboard writer.
	Clipboard func(string) error

	// Context bounds every request the widget starts.
	Context context.Context
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat widget.
type Model struct {
	session *vchat.Session
	conv    *model.Conversation
	history *history.Store
	voice   *voice.Reconciler
	theme   *styles.Theme
	log     *zap.Logger
	keys    KeyMap

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	md       *markdownCache

	mode        Mode
	width       int
	height      int
	ready       bool
	floatIdx    int
	rotateEvery time.Duration

	// In-flight requests by sequence number.
	inflight map[int]context.CancelFunc
	seq      int

	notice      string
	noticeError bool
	noticeSeq   int

	entries  []history.Entry
	selected int

	// dictating is set while the input mirrors the voice reconciler.
	dictating bool

	ctx         context.Context
	watch       func(ctx context.Context, onChange func()) error
	sessionFile chan struct{}
	clipboard   func(string) error
	quitting    bool
}

// New creates the widget model.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	rec := opts.Voice
	if rec == nil {
		rec = voice.NewReconciler(nil)
	}
	clip := opts.Clipboard
	if clip == nil {
		clip = clipboard.WriteAll
	}
	rotate := opts.RotateEvery
	if rotate <= 0 {
		rotate = DefaultRotateEvery
	}

	input := textinput.New()
	input.Placeholder = "Type your message..."
	input.Prompt = "> "
	input.PromptStyle = theme.InputPrompt
	input.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = theme.Typing

	h := help.New()
	h.Styles.ShortKey = theme.ShortcutKey
	h.Styles.ShortDesc = theme.ShortcutDesc
	h.Styles.FullKey = theme.ShortcutKey
	h.Styles.FullDesc = theme.ShortcutDesc

	m := Model{
		session:     opts.Session,
		conv:        opts.Session.Conversation(),
		history:     opts.History,
		voice:       rec,
		theme:       theme,
		log:         log.Named("tui"),
		keys:        DefaultKeyMap(),
		input:       input,
		viewport:    viewport.New(80, 20),
		spinner:     sp,
		help:        h,
		mode:        ModeClosed,
		rotateEvery: rotate,
		inflight:    make(map[int]context.CancelFunc),
		ctx:         ctx,
		watch:       opts.WatchSession,
		clipboard:   clip,
	}
	if opts.Markdown {
		m.md = newMarkdownCache(theme.IsDark)
	}
	if m.watch != nil {
		m.sessionFile = make(chan struct{}, 1)
	}
	if opts.StartOpen {
		m.mode = ModeChat
		m.input.Focus()
	}
	return m
}

// Mode returns the face currently showing.
func (m Model) Mode() Mode {
	return m.mode
}

// Notice returns the transient notice line.
func (m Model) Notice() string {
	return m.notice
}

// FloatingMessage returns the message currently shown over the trigger.
func (m Model) FloatingMessage() string {
	return FloatingMessages[m.floatIdx%len(FloatingMessages)]
}

// InputValue returns the text in the input line.
func (m Model) InputValue() string {
	return m.input.Value()
}

// Busy reports whether any request started by the widget is still running.
func (m Model) Busy() bool {
	return len(m.inflight) > 0
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the change listeners, the rotation timer and the session file
// watcher.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		waitFor(m.conv.Changes(), ConversationChangedMsg{}),
		waitFor(m.voice.Changes(), VoiceChangedMsg{}),
		m.rotateCmd(),
	}

	if m.watch != nil {
		watch, ch, ctx, log := m.watch, m.sessionFile, m.ctx, m.log
		cmds = append(cmds, func() tea.Msg {
			go func() {
				err := watch(ctx, func() {
					select {
					case ch <- struct{}{}:
					default:
					}
				})
				if err != nil && ctx.Err() == nil {
					log.Warn("session file watch stopped", zap.Error(err))
				}
			}()
			return nil
		}, waitFor(ch, SessionFileChangedMsg{}))
	}

	return tea.Batch(cmds...)
}

func (m Model) rotateCmd() tea.Cmd {
	return tea.Tick(m.rotateEvery, func(t time.Time) tea.Msg {
		return RotateMsg{Time: t}
	})
}
