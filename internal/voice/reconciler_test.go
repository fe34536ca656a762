// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecognizer records calls and lets the test drive callbacks.
type fakeRecognizer struct {
	supported bool
	startErr  error

	mu     sync.Mutex
	h      Handlers
	starts int
	stops  int
}

func (f *fakeRecognizer) Supported() bool { return f.supported }

func (f *fakeRecognizer) Start(h Handlers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.h = h
	f.starts++
	return nil
}

func (f *fakeRecognizer) Stop() {
	f.mu.Lock()
	f.stops++
	h := f.h
	f.mu.Unlock()
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

func (f *fakeRecognizer) handlers() Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func (f *fakeRecognizer) result(slots ...Slot) {
	f.handlers().OnResult(Result{Slots: slots})
}

// fakeClock fires timers only when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && t.at <= c.now {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func interim(text string) Slot { return Slot{Transcript: text} }

func final(text string, confidence float64) Slot {
	return Slot{Transcript: text, Final: true, Confidence: confidence}
}

func newTestReconciler(t *testing.T) (*Reconciler, *fakeRecognizer, *fakeClock) {
	t.Helper()
	rec := &fakeRecognizer{supported: true}
	clock := &fakeClock{}
	return NewReconciler(rec, WithClock(clock)), rec, clock
}

// =============================================================================
// MERGING
// =============================================================================

func TestReconcileInterimThenFinal(t *testing.T) {
	r, rec, _ := newTestReconciler(t)
	require.NoError(t, r.Start("Hello "))

	rec.result(interim("wor"))
	assert.Equal(t, "Hello wor", r.State().Value)

	rec.result(final("world", 0.9))
	assert.Equal(t, "Hello world", r.State().Value)

	rec.result(interim(""))
	assert.Equal(t, "Hello world", r.State().Value)

	r.Stop()
	st := r.State()
	assert.False(t, st.Listening)
	assert.Equal(t, "Hello world", st.Value)

	// The next session starts from the merged text.
	require.NoError(t, r.Start(st.Value))
	rec.result(interim("again"))
	assert.Equal(t, "Hello world again", r.State().Value)
}

func TestReconcileLowConfidenceDropped(t *testing.T) {
	r, rec, _ := newTestReconciler(t)
	require.NoError(t, r.Start("Hi"))

	rec.result(final("noise", 0.2))
	assert.Equal(t, "Hi", r.State().Value)

	rec.result(final("there", ConfidenceFloor))
	assert.Equal(t, "Hi there", r.State().Value)
}

func TestConfidenceFloorOverride(t *testing.T) {
	rec := &fakeRecognizer{supported: true}
	r := NewReconciler(rec, WithClock(&fakeClock{}), WithConfidenceFloor(0.8))
	require.NoError(t, r.Start("Hi"))

	rec.result(final("maybe", 0.5))
	assert.Equal(t, "Hi", r.State().Value)

	rec.result(final("there", 0.85))
	assert.Equal(t, "Hi there", r.State().Value)
}

func TestReconcileInterimReplacedNotAppended(t *testing.T) {
	r, rec, _ := newTestReconciler(t)
	require.NoError(t, r.Start(""))

	rec.result(interim("con"))
	rec.result(interim("connect"))
	rec.result(interim("connect my"))
	assert.Equal(t, "connect my", r.State().Value)
}

func TestReconcileMultipleSlots(t *testing.T) {
	r, rec, _ := newTestReconciler(t)
	require.NoError(t, r.Start("a"))

	rec.result(final("b", 0.8), final("c", 0.9), interim("d"), interim("e"))
	assert.Equal(t, "a b c d e", r.State().Value)

	rec.result(interim("f"))
	assert.Equal(t, "a b c f", r.State().Value)
}

func TestReconcileNormalizesTranscripts(t *testing.T) {
	r, rec, _ := newTestReconciler(t)
	require.NoError(t, r.Start(""))

	// "e" + combining acute composes to a single rune.
	rec.result(final("  café ", 0.9))
	assert.Equal(t, "café", r.State().Value)
}

func TestJoinSpaced(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"", "", ""},
		{"a", "", "a"},
		{"a ", "", "a "},
		{"", "b", "b"},
		{"a", "b", "a b"},
		{"a  ", "b", "a b"},
		{"   ", "b", "b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinSpaced(tt.a, tt.b), "joinSpaced(%q, %q)", tt.a, tt.b)
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestResultsAfterEndIgnored(t *testing.T) {
	r, rec, _ := newTestReconciler(t)
	require.NoError(t, r.Start("x"))
	h := rec.handlers()

	r.Stop()
	h.OnResult(Result{Slots: []Slot{final("late", 0.9)}})

	assert.Equal(t, "x", r.State().Value)
	assert.False(t, r.Listening())
}

func TestEngineEndFreezesInterim(t *testing.T) {
	r, rec, _ := newTestReconciler(t)
	require.NoError(t, r.Start(""))
	rec.result(interim("half said"))

	rec.handlers().OnEnd()

	st := r.State()
	assert.False(t, st.Listening)
	assert.Equal(t, "half said", st.Value)
}

func TestToggle(t *testing.T) {
	r, rec, _ := newTestReconciler(t)

	require.NoError(t, r.Toggle("text"))
	assert.True(t, r.Listening())

	require.NoError(t, r.Toggle("ignored"))
	assert.False(t, r.Listening())
	assert.Equal(t, 1, rec.stops)
}

func TestStartWhileListeningIsNoop(t *testing.T) {
	r, rec, _ := newTestReconciler(t)
	require.NoError(t, r.Start("one"))
	require.NoError(t, r.Start("two"))

	assert.Equal(t, 1, rec.starts)
	assert.Equal(t, "one", r.State().Value)
}

func TestUnsupportedRecognizer(t *testing.T) {
	r := NewReconciler(nil)

	err := r.Toggle("hello")
	assert.ErrorIs(t, err, ErrUnsupported)

	st := r.State()
	assert.False(t, st.Listening)
	assert.Equal(t, NoticeUnsupported, st.Notice)

	r.ClearNotice()
	assert.Empty(t, r.State().Notice)
}

func TestStartFailure(t *testing.T) {
	rec := &fakeRecognizer{supported: true, startErr: errors.New("no device")}
	r := NewReconciler(rec, WithClock(&fakeClock{}))

	assert.Error(t, r.Start("x"))
	st := r.State()
	assert.False(t, st.Listening)
	assert.Equal(t, NoticeGeneric, st.Notice)
}

// =============================================================================
// SILENCE TIMER
// =============================================================================

func TestSilenceStopsRecognition(t *testing.T) {
	r, rec, clock := newTestReconciler(t)
	require.NoError(t, r.Start(""))

	clock.Advance(4 * time.Second)
	rec.result(interim("still talking"))
	clock.Advance(4 * time.Second)
	assert.True(t, r.Listening(), "timer should reset on heard text")

	clock.Advance(time.Second + time.Millisecond)
	assert.False(t, r.Listening())
	assert.Equal(t, 1, rec.stops)
	assert.Empty(t, r.State().Notice, "silence is not an error")
	assert.Equal(t, "still talking", r.State().Value)
}

func TestSilenceNotResetByEmptyResult(t *testing.T) {
	r, rec, clock := newTestReconciler(t)
	require.NoError(t, r.Start(""))

	clock.Advance(3 * time.Second)
	rec.result(interim("  "))
	clock.Advance(2 * time.Second)

	assert.False(t, r.Listening())
}

func TestSilenceFromOldSessionIgnored(t *testing.T) {
	r, _, clock := newTestReconciler(t)
	require.NoError(t, r.Start(""))
	r.Stop()
	require.NoError(t, r.Start(""))

	clock.Advance(SilenceTimeout - time.Millisecond)
	assert.True(t, r.Listening())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		kind   string
		notice string
	}{
		{ErrKindNotAllowed, NoticeNotAllowed},
		{ErrKindNetwork, NoticeNetwork},
		{ErrKindNoSpeech, ""},
		{ErrKindAborted, ""},
		{"audio-capture", NoticeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			r, rec, _ := newTestReconciler(t)
			require.NoError(t, r.Start("keep"))

			rec.handlers().OnError(tt.kind)

			st := r.State()
			assert.False(t, st.Listening)
			assert.Equal(t, tt.notice, st.Notice)
			assert.Equal(t, "keep", st.Value)
		})
	}
}

func TestChangesSignalled(t *testing.T) {
	r, rec, _ := newTestReconciler(t)
	require.NoError(t, r.Start(""))
	<-r.Changes()

	rec.result(interim("x"))
	select {
	case <-r.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signal after result")
	}
}
