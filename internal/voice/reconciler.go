// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// ConfidenceFloor is the minimum confidence for a final slot to be kept.
	ConfidenceFloor = 0.3

	// SilenceTimeout stops listening when no text has been heard for this long.
	SilenceTimeout = 5 * time.Second
)

// User-facing notices.
const (
	NoticeUnsupported = "Voice input is not supported"
	NoticeNotAllowed  = "Microphone access was denied. Check your audio permissions."
	NoticeNetwork     = "Voice input needs a connection to the speech service."
	NoticeGeneric     = "Voice input stopped unexpectedly."
)

// NoticeFor maps a recognizer error kind to a notice. Benign kinds map to "".
func NoticeFor(kind string) string {
	switch kind {
	case ErrKindNotAllowed:
		return NoticeNotAllowed
	case ErrKindNetwork:
		return NoticeNetwork
	case ErrKindNoSpeech, ErrKindAborted:
		return ""
	default:
		return NoticeGeneric
	}
}

// =============================================================================
// CLOCK
// =============================================================================

// Timer is the part of *time.Timer the reconciler uses.
type Timer interface {
	Stop() bool
}

// Clock schedules the silence timer.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// =============================================================================
// RECONCILER
// =============================================================================

// State is a snapshot of the input buffer.
type State struct {
	Value     string
	Listening bool
	Notice    string
}

// Reconciler merges recognition results into the input text.
type Reconciler struct {
	rec     Recognizer
	clock   Clock
	silence time.Duration
	floor   float64
	log     *zap.Logger

	mu        sync.Mutex
	listening bool
	base      string
	interim   string
	value     string
	notice    string
	timer     Timer
	session   uint64

	changes chan struct{}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// WithSilenceTimeout overrides SilenceTimeout.
func WithSilenceTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.silence = d
		}
	}
}

// WithConfidenceFloor overrides ConfidenceFloor.
func WithConfidenceFloor(f float64) Option {
	return func(r *Reconciler) {
		if f > 0 && f <= 1 {
			r.floor = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// NewReconciler creates a reconciler over rec. A nil rec behaves as
// Unsupported.
func NewReconciler(rec Recognizer, opts ...Option) *Reconciler {
	if rec == nil {
		rec = Unsupported{}
	}
	r := &Reconciler{
		rec:     rec,
		clock:   realClock{},
		silence: SilenceTimeout,
		floor:   ConfidenceFloor,
		log:     zap.NewNop(),
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("voice")
	return r
}

// Supported reports whether the engine can run.
func (r *Reconciler) Supported() bool {
	return r.rec.Supported()
}

// Changes signals after every state change. Signals are coalesced.
func (r *Reconciler) Changes() <-chan struct{} {
	return r.changes
}

func (r *Reconciler) notify() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

// State returns the current buffer state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{Value: r.value, Listening: r.listening, Notice: r.notice}
}

// Listening reports whether a session is active.
func (r *Reconciler) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

// ClearNotice dismisses the current notice.
func (r *Reconciler) ClearNotice() {
	r.mu.Lock()
	changed := r.notice != ""
	r.notice = ""
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

// Toggle starts listening with input as the base text, or stops the active
// session.
func (r *Reconciler) Toggle(input string) error {
	if r.Listening() {
		r.Stop()
		return nil
	}
	return r.Start(input)
}

// Start snapshots input as the base text and begins a recognition session.
func (r *Reconciler) Start(input string) error {
	if !r.rec.Supported() {
		r.setNotice(NoticeUnsupported)
		return ErrUnsupported
	}

	r.mu.Lock()
	if r.listening {
		r.mu.Unlock()
		return nil
	}
	r.session++
	id := r.session
	r.listening = true
	r.base = input
	r.interim = ""
	r.value = input
	r.notice = ""
	r.armLocked(id)
	r.mu.Unlock()

	err := r.rec.Start(Handlers{
		OnResult: func(res Result) { r.handleResult(id, res) },
		OnError:  func(kind string) { r.handleError(id, kind) },
		OnEnd:    func() { r.finish(id, "engine") },
	})
	if err != nil {
		r.log.Warn("failed to start recognition", zap.Error(err))
		r.mu.Lock()
		if r.session == id {
			r.endLocked()
			r.notice = NoticeGeneric
		}
		r.mu.Unlock()
		r.notify()
		return err
	}

	r.log.Debug("listening", zap.Uint64("session", id))
	r.notify()
	return nil
}

// Stop ends the active session. The displayed value becomes plain input.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	active := r.listening
	id := r.session
	r.mu.Unlock()
	if !active {
		return
	}
	r.rec.Stop()
	r.finish(id, "manual")
}

// =============================================================================
// EVENT HANDLING
// =============================================================================

func (r *Reconciler) handleResult(id uint64, res Result) {
	var finals, interims []string
	heard := false

	for _, slot := range res.Slots {
		text := normalize(slot.Transcript)
		if text != "" {
			heard = true
		}
		if !slot.Final {
			interims = append(interims, text)
			continue
		}
		if slot.Confidence < r.floor {
			r.log.Debug("dropping low-confidence result",
				zap.String("text", text),
				zap.Float64("confidence", slot.Confidence))
			continue
		}
		finals = append(finals, text)
	}

	r.mu.Lock()
	if r.session != id || !r.listening {
		r.mu.Unlock()
		return
	}
	if finalized := joinAll(finals); finalized != "" {
		r.base = joinSpaced(r.base, finalized)
	}
	r.interim = joinAll(interims)
	r.value = joinSpaced(r.base, r.interim)
	if heard {
		r.armLocked(id)
	}
	r.mu.Unlock()

	r.notify()
}

func (r *Reconciler) handleError(id uint64, kind string) {
	notice := NoticeFor(kind)
	if notice == "" {
		r.log.Debug("recognition ended", zap.String("kind", kind))
	} else {
		r.log.Warn("recognition error", zap.String("kind", kind))
	}

	r.mu.Lock()
	if r.session != id {
		r.mu.Unlock()
		return
	}
	r.endLocked()
	if notice != "" {
		r.notice = notice
	}
	r.mu.Unlock()

	r.notify()
}

// finish freezes the displayed value for session id.
func (r *Reconciler) finish(id uint64, reason string) {
	r.mu.Lock()
	if r.session != id || !r.listening {
		r.mu.Unlock()
		return
	}
	r.endLocked()
	r.mu.Unlock()

	r.log.Debug("stopped listening", zap.String("reason", reason))
	r.notify()
}

func (r *Reconciler) onSilence(id uint64) {
	r.mu.Lock()
	active := r.session == id && r.listening
	r.mu.Unlock()
	if !active {
		return
	}
	r.rec.Stop()
	r.finish(id, "silence")
}

// armLocked (re)starts the silence timer. r.mu must be held.
func (r *Reconciler) armLocked(id uint64) {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = r.clock.AfterFunc(r.silence, func() { r.onSilence(id) })
}

// endLocked leaves the listening state. r.mu must be held.
func (r *Reconciler) endLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.listening = false
	r.interim = ""
}

func (r *Reconciler) setNotice(notice string) {
	r.mu.Lock()
	r.notice = notice
	r.mu.Unlock()
	r.notify()
}

// =============================================================================
// TEXT HELPERS
// =============================================================================

// joinSpaced joins a and b with a single space when both are non-empty.
func joinSpaced(a, b string) string {
	if b == "" {
		return a
	}
	a = strings.TrimRightFunc(a, unicode.IsSpace)
	if a == "" {
		return b
	}
	return a + " " + b
}

func joinAll(parts []string) string {
	out := ""
	for _, p := range parts {
		out = joinSpaced(out, p)
	}
	return out
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
