// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package voice turns speech recognition results into editable input text.
//
// A Recognizer is the speech engine. The Reconciler sits between it and the
// input line: it merges final results into a stable prefix, shows interim
// hypotheses after it and stops listening after a stretch of silence.
package voice

import "errors"

// =============================================================================
// RECOGNIZER
// =============================================================================

// Slot is one recognition hypothesis.
type Slot struct {
	Transcript string  `json:"transcript"`
	Final      bool    `json:"isFinal"`
	Confidence float64 `json:"confidence"`
}

// Result carries the slots that are new since the previous result.
type Result struct {
	Slots []Slot `json:"results"`
}

// Handlers receive recognizer callbacks. They may be called from any
// goroutine. OnEnd is called exactly once per Start, after any OnError.
type Handlers struct {
	OnResult func(Result)
	OnError  func(kind string)
	OnEnd    func()
}

// Recognizer is a speech recognition engine.
type Recognizer interface {
	// Supported reports whether the engine can run at all.
	Supported() bool
	// Start begins a recognition session.
	Start(h Handlers) error
	// Stop ends the current session. OnEnd follows.
	Stop()
}

// Error kinds reported through Handlers.OnError.
const (
	ErrKindNotAllowed = "not-allowed"
	ErrKindNetwork    = "network"
	ErrKindNoSpeech   = "no-speech"
	ErrKindAborted    = "aborted"
)

// ErrUnsupported is returned by Start when no engine is available.
var ErrUnsupported = errors.New("voice: speech recognition is not available")

// Unsupported is a Recognizer for builds or configs without speech input.
type Unsupported struct{}

func (Unsupported) Supported() bool      { return false }
func (Unsupported) Start(Handlers) error { return ErrUnsupported }
func (Unsupported) Stop()                {}
