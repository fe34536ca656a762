// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Chat widget launcher.
//
// Command: tui (default)
// Short:   Open the floating chat widget
//
// Examples:
//   veda
//   veda --legacy tui
//   VEDA_VOICE_URL=ws://localhost:2700 veda
//
// The widget needs a terminal on stdin and stdout. Over a pipe use "chat"
// or "ask" instead.

package cli

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	vchat "github.com/jeranaias/veda/internal/chat"
	"github.com/jeranaias/veda/internal/kv"
	"github.com/jeranaias/veda/internal/model"
	uichat "github.com/jeranaias/veda/internal/ui/chat"
	"github.com/jeranaias/veda/internal/voice"
)

// RunTUI handles the "tui" command.
func RunTUI(ctx context.Context, env *Env, args Args) error {
	if err := RequireTerminal("open the chat widget", "use `veda chat` or `veda ask`"); err != nil {
		return err
	}

	store, err := env.Store()
	if err != nil {
		return err
	}
	hist, err := env.History()
	if err != nil {
		return err
	}

	conv := model.NewConversation(model.Greeting(time.Now()))
	sess := vchat.NewSession(env.Transport(), conv, store,
		vchat.WithLogger(env.Log),
		vchat.WithHistory(hist))

	opts := uichat.Options{
		Session:     sess,
		History:     hist,
		Voice:       newVoice(env),
		Logger:      env.Log,
		Markdown:    env.Config.UI.Markdown,
		RotateEvery: time.Duration(env.Config.UI.TriggerIntervalSecs) * time.Second,
		StartOpen:   env.Config.UI.StartOpen,
		Context:     ctx,
	}
	if w, ok := kv.AsWatcher(store); ok {
		opts.WatchSession = w.Watch
	}

	p := tea.NewProgram(uichat.New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return NewCommandError("tui", "run", "chat widget", err)
	}
	return nil
}

// newVoice builds the dictation reconciler. Without voice.enabled the
// recognizer is unsupported and the mic button reports so.
func newVoice(env *Env) *voice.Reconciler {
	cfg := env.Config
	var rec voice.Recognizer = voice.Unsupported{}
	if cfg.Voice.Enabled {
		rec = voice.NewWSRecognizer(voice.WSConfig{
			URL:      cfg.Voice.URL,
			Source:   voice.CommandSource(cfg.AudioCommand()),
			Language: cfg.Voice.Language,
			Logger:   env.Log,
		})
	}
	return voice.NewReconciler(rec,
		voice.WithSilenceTimeout(cfg.SilenceTimeout()),
		voice.WithConfidenceFloor(cfg.Voice.ConfidenceFloor),
		voice.WithLogger(env.Log))
}
