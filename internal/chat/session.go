// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives one conversation against the chat backend: it sends
// user messages, folds the response stream into the conversation and keeps
// the backend session id persisted.
//
// Nothing on the chat path returns transport failures to the caller. A failed
// or empty reply becomes an assistant message.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/veda/internal/chatapi"
	"github.com/jeranaias/veda/internal/kv"
	"github.com/jeranaias/veda/internal/model"
	"github.com/jeranaias/veda/internal/stream"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// SessionKey is the key/value entry holding the backend session id.
const SessionKey = "chatSessionId"

// Messages substituted for a missing or failed reply.
const (
	FallbackReply     = "I'm having trouble retrieving an answer right now."
	ConnectivityReply = "I'm sorry, I can't connect to the server."
)

// ErrBusy is returned by Send while a previous send is still in flight.
var ErrBusy = errors.New("chat: a reply is still in progress")

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport performs one request/response exchange, calling fn for every
// event in arrival order. *chatapi.Client and chatapi.Legacy satisfy it.
type Transport interface {
	Stream(ctx context.Context, req chatapi.ChatRequest, fn func(stream.Event)) error
}

// =============================================================================
// SESSION
// =============================================================================

// Session binds a Conversation to a Transport and a persistent Store.
type Session struct {
	conv      *model.Conversation
	transport Transport
	store     kv.Store
	history   Recorder
	log       *zap.Logger
	now       func() time.Time
	onEvent   func(id string, ev stream.Event)

	inflight atomic.Int32

	// mu orders exchange writes against NewChat and Restore, and guards the
	// stored session id. gen counts those conversation switches; an exchange
	// started under an older gen no longer touches the conversation.
	mu  sync.Mutex
	gen uint64
}

// Recorder saves the outgoing conversation when a new chat starts.
// *history.Store satisfies it.
type Recorder interface {
	Save(sessionID string, messages []model.Message) error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHistory records the outgoing conversation on NewChat.
func WithHistory(r Recorder) Option {
	return func(s *Session) { s.history = r }
}

// WithClock overrides time.Now, used for the greeting.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithEventHook calls fn after each stream event has been applied to the
// conversation. id is the assistant message the event belongs to. The REPL
// uses it to print text as it arrives.
func WithEventHook(fn func(id string, ev stream.Event)) Option {
	return func(s *Session) { s.onEvent = fn }
}

// NewSession creates a session over conv. The persisted session id, if any,
// is loaded from store into conv.
func NewSession(t Transport, conv *model.Conversation, store kv.Store, opts ...Option) *Session {
	s := &Session{
		conv:      conv,
		transport: t,
		store:     store,
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("chat")
	s.Reload()
	return s
}

// Conversation returns the underlying conversation.
func (s *Session) Conversation() *model.Conversation {
	return s.conv
}

// SessionID returns the current backend session id.
func (s *Session) SessionID() string {
	return s.conv.SessionID()
}

// Busy reports whether a reply is in flight.
func (s *Session) Busy() bool {
	return s.inflight.Load() > 0
}

// Reload re-reads the persisted session id, picking up a value written by
// another process sharing the store.
func (s *Session) Reload() {
	if s.store == nil {
		return
	}
	id, err := s.store.Get(SessionKey)
	switch {
	case err == nil:
		s.conv.SetSessionID(id)
	case errors.Is(err, kv.ErrNotFound):
	default:
		s.log.Warn("failed to load session id", zap.Error(err))
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send appends text as a user message and streams the assistant's reply into
// the conversation. It blocks until the reply is complete or ctx is
// cancelled.
//
// Whitespace-only text is ignored. The only error returned is ErrBusy, when
// another Send has not finished.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !s.inflight.CompareAndSwap(0, 1) {
		return ErrBusy
	}
	defer s.inflight.Add(-1)

	s.conv.AppendUserMessage(text)
	s.exchange(ctx, text, false)
	return nil
}

// Regenerate replaces assistant message id with a fresh reply to the user
// message before it. The user message is not repeated. It is a no-op when id
// has no preceding user message, and it is allowed while another reply is
// streaming.
func (s *Session) Regenerate(ctx context.Context, id string) {
	user, ok := s.conv.PrecedingUserMessage(id)
	if !ok {
		s.log.Debug("regenerate ignored", zap.String("message_id", id))
		return
	}

	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	s.conv.RemoveMessage(id)
	s.exchange(ctx, user.Content, true)
}

// exchange runs one request and applies its events under a pre-allocated
// assistant message id.
func (s *Session) exchange(ctx context.Context, text string, regenerate bool) {
	id := model.NewID()
	s.mu.Lock()
	gen := s.gen
	s.conv.SetTyping(true)
	s.mu.Unlock()

	var (
		total   strings.Builder
		opened  bool
		pending []string
		hasRecs bool
	)

	apply := func(ev stream.Event) {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		switch ev.Type {
		case stream.EventContent:
			total.WriteString(ev.Chunk)
			if !opened {
				opened = true
				s.conv.SetTyping(false)
				s.conv.OpenAssistantMessage(id, total.String())
				if hasRecs {
					s.conv.SetRecommendations(id, pending)
				}
			} else {
				s.conv.UpdateAssistantContent(id, total.String())
			}

		case stream.EventRecommendations:
			if opened {
				s.conv.SetRecommendations(id, ev.Data)
			} else {
				// Held until the message exists.
				pending, hasRecs = ev.Data, true
			}

		case stream.EventMeta:
			if ev.SessionID != "" {
				s.setSessionIDLocked(ev.SessionID)
			}

		default:
			s.log.Debug("ignoring stream event", zap.String("type", string(ev.Type)))
		}
		s.mu.Unlock()

		if s.onEvent != nil {
			s.onEvent(id, ev)
		}
	}

	start := time.Now()
	err := s.transport.Stream(ctx, chatapi.ChatRequest{
		Message:    text,
		SessionID:  s.conv.SessionID(),
		Regenerate: regenerate,
	}, apply)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.log.Debug("dropping reply for a replaced conversation", zap.String("message_id", id))
		return
	}
	s.conv.SetTyping(false)

	switch {
	case err != nil && chatapi.IsCanceled(err):
		// Partial text stays; nothing is appended.
		s.log.Info("reply cancelled", zap.String("message_id", id), zap.Bool("opened", opened))

	case err != nil && chatapi.IsStatus(err) && !opened:
		s.log.Warn("backend rejected chat request", zap.Error(err))
		s.conv.AppendAssistantMessage(id, FallbackReply)

	case err != nil:
		s.log.Warn("chat transport failed", zap.Error(err), zap.Bool("opened", opened))
		s.conv.AppendAssistantMessage(model.NewID(), ConnectivityReply)

	case !opened:
		s.log.Info("reply had no content", zap.String("message_id", id))
		s.conv.AppendAssistantMessage(id, FallbackReply)

	default:
		s.log.Debug("reply complete",
			zap.String("message_id", id),
			zap.Int("chars", total.Len()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// setSessionIDLocked records and persists a backend-issued session id. The
// write is synchronous so the next request, or a restart, sees it. s.mu must
// be held.
func (s *Session) setSessionIDLocked(id string) {
	s.conv.SetSessionID(id)
	if s.store == nil {
		return
	}
	if err := s.store.Set(SessionKey, id); err != nil {
		s.log.Error("failed to persist session id", zap.Error(err))
	}
}

// =============================================================================
// USER ACTIONS
// =============================================================================

// SetFeedback rates assistant message id.
func (s *Session) SetFeedback(id string, kind model.Feedback) bool {
	return s.conv.SetFeedback(id, kind)
}

// ToggleFeedback sets kind on id, or clears it when it is already set.
func (s *Session) ToggleFeedback(id string, kind model.Feedback) bool {
	msg, ok := s.conv.Find(id)
	if !ok {
		return false
	}
	if msg.Feedback == kind {
		kind = model.FeedbackNone
	}
	return s.conv.SetFeedback(id, kind)
}

// NewChat saves the current conversation to history (when it has any user
// messages), forgets the backend session id and starts over with a greeting.
func (s *Session) NewChat() error {
	if s.history != nil && s.conv.HasUserMessages() {
		if err := s.history.Save(s.conv.SessionID(), s.conv.Messages()); err != nil {
			s.log.Warn("failed to save chat history", zap.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.store != nil {
		if err := s.store.Remove(SessionKey); err != nil {
			return err
		}
	}

	s.conv.Reset(model.Greeting(s.now()))
	return nil
}

// Restore replaces the conversation with a saved one and resumes its backend
// session.
func (s *Session) Restore(sessionID string, messages []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.store != nil {
		var err error
		if sessionID != "" {
			err = s.store.Set(SessionKey, sessionID)
		} else {
			err = s.store.Remove(SessionKey)
		}
		if err != nil {
			return err
		}
	}
	s.conv.Replace(messages, sessionID)
	return nil
}
