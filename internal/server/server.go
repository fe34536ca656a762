// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/veda/internal/chatapi"
	"github.com/jeranaias/veda/internal/stream"
)

// ServiceName is reported by GET /health.
const ServiceName = "veda-backend"

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats tracks server usage statistics.
type ServerStats struct {
	chats     atomic.Int64
	streamed  atomic.Int64
	legacy    atomic.Int64
	aborted   atomic.Int64
	feedback  atomic.Int64
	tickets   atomic.Int64
	startTime time.Time
}

// StatsSnapshot is a point-in-time copy of ServerStats, served by GET /stats.
type StatsSnapshot struct {
	Chats          int64     `json:"chats"`
	StreamedChats  int64     `json:"streamed_chats"`
	LegacyChats    int64     `json:"legacy_chats"`
	AbortedStreams int64     `json:"aborted_streams"`
	Feedback       int64     `json:"feedback"`
	Tickets        int64     `json:"tickets"`
	StartTime      time.Time `json:"start_time"`
	UptimeSecs     float64   `json:"uptime_secs"`
}

// NewServerStats creates a new ServerStats instance.
func NewServerStats() *ServerStats {
	return &ServerStats{startTime: time.Now()}
}

// Snapshot returns a copy of the current counters.
func (s *ServerStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Chats:          s.chats.Load(),
		StreamedChats:  s.streamed.Load(),
		LegacyChats:    s.legacy.Load(),
		AbortedStreams: s.aborted.Load(),
		Feedback:       s.feedback.Load(),
		Tickets:        s.tickets.Load(),
		StartTime:      s.startTime,
		UptimeSecs:     s.Uptime().Seconds(),
	}
}

// Uptime returns the server uptime duration.
func (s *ServerStats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Config holds the listener and behaviour settings of the dev backend.
type Config struct {
	Addr           string
	Version        string
	StreamDelay    time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server is the local stand-in for the Veda chat backend.
type Server struct {
	cfg      Config
	kb       KnowledgeBase
	records  Records
	sessions *SessionRegistry
	stats    *ServerStats
	limiter  *RateLimiter
	log      *zap.Logger
	now      func() time.Time
	regens   atomic.Int64

	server *http.Server
	mu     sync.RWMutex
}

// New creates a Server. Missing Config fields fall back to defaults.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":5002"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Server{
		cfg:      cfg,
		kb:       DefaultKnowledgeBase(),
		sessions: NewSessionRegistry(nil),
		stats:    NewServerStats(),
		limiter:  NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		log:      zap.NewNop(),
		now:      time.Now,
	}
}

// WithRecords sets the record store.
func (s *Server) WithRecords(r Records) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = r
	return s
}

// WithSessions sets the session registry.
func (s *Server) WithSessions(reg *SessionRegistry) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = reg
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(log *zap.Logger) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = log.Named("server")
	return s
}

// WithKnowledgeBase replaces the canned answers.
func (s *Server) WithKnowledgeBase(kb KnowledgeBase) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kb = kb
	return s
}

// Stats returns the live counters.
func (s *Server) Stats() *ServerStats {
	return s.stats
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// ============================================================================
// ROUTES
// ============================================================================

// Handler builds the router with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware())
	r.Use(CORSMiddleware(DefaultCORSConfig(s.cfg.AllowedOrigins)))
	r.Use(MaxBodyMiddleware(s.cfg.MaxBodyBytes))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.limiter, s.log))
		r.Post("/chat", s.handleChat)
		r.Post("/feedback", s.handleFeedback)
		r.Post("/ticket", s.handleTicket)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// ============================================================================
// CHAT
// ============================================================================

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := s.now()

	var req chatapi.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.RLock()
	kb := s.kb
	s.mu.RUnlock()

	answer := kb.Lookup(req.Message)
	text := answer.Text
	if req.Regenerate {
		text = Rephrase(text, int(s.regens.Add(1)-1))
	}

	s.stats.chats.Add(1)
	s.touchSession(r.Context(), sessionID, req.UserID)
	s.record(r.Context(), StoredMessage{SessionID: sessionID, Role: "user", Content: req.Message})

	s.log.Debug("chat",
		zap.String("session", sessionID),
		zap.String("topic", answer.Topic),
		zap.Bool("regenerate", req.Regenerate),
	)

	if wantsJSON(r) {
		latency := float64(s.now().Sub(start).Microseconds()) / 1000
		meta := map[string]any{"source": "fastapi-knowledge-base", "latency_ms": latency}
		s.stats.legacy.Add(1)
		writeJSON(w, http.StatusOK, chatapi.LegacyResponse{
			Response:        text,
			Recommendations: answer.Recommendations,
			SessionID:       sessionID,
			Meta:            meta,
		})
		s.recordReply(r.Context(), sessionID, text, answer.Recommendations, start)
		return
	}

	s.stats.streamed.Add(1)
	if err := s.streamReply(r.Context(), w, text, answer.Recommendations, sessionID); err != nil {
		s.stats.aborted.Add(1)
		s.log.Info("stream aborted", zap.String("session", sessionID), zap.Error(err))
		return
	}
	s.recordReply(r.Context(), sessionID, text, answer.Recommendations, start)
}

// streamReply writes the answer as NDJSON: word-sized content chunks, then
// the recommendations, then the session id.
func (s *Server) streamReply(ctx context.Context, w http.ResponseWriter, text string, recs []string, sessionID string) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	send := func(ev stream.Event) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	var timer *time.Timer
	if s.cfg.StreamDelay > 0 {
		timer = time.NewTimer(s.cfg.StreamDelay)
		defer timer.Stop()
	}

	for i, chunk := range SplitWords(text) {
		if i > 0 && timer != nil {
			timer.Reset(s.cfg.StreamDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := send(stream.Content(chunk)); err != nil {
			return err
		}
	}

	if err := send(stream.Recommendations(recs)); err != nil {
		return err
	}
	return send(stream.Meta(sessionID))
}

func (s *Server) touchSession(ctx context.Context, sessionID, userID string) {
	s.mu.RLock()
	reg, records := s.sessions, s.records
	s.mu.RUnlock()

	if reg != nil {
		if _, err := reg.Touch(sessionID, userID); err != nil {
			s.log.Warn("session registry", zap.String("session", sessionID), zap.Error(err))
		}
	}
	if records != nil {
		if err := records.UpsertSession(ctx, sessionID, userID); err != nil {
			s.log.Warn("record session", zap.String("session", sessionID), zap.Error(err))
		}
	}
}

func (s *Server) recordReply(ctx context.Context, sessionID, text string, recs []string, start time.Time) {
	latency := float64(s.now().Sub(start).Microseconds()) / 1000
	s.record(ctx, StoredMessage{
		SessionID:       sessionID,
		Role:            "assistant",
		Content:         text,
		Recommendations: recs,
		Meta:            map[string]any{"latency_ms": latency, "source": "veda-dev-kb"},
	})
}

// record stores a transcript row. Failures are logged; the reply is not
// affected.
func (s *Server) record(ctx context.Context, m StoredMessage) {
	s.mu.RLock()
	records := s.records
	s.mu.RUnlock()
	if records == nil {
		return
	}
	if err := records.AddMessage(context.WithoutCancel(ctx), m); err != nil {
		s.log.Warn("record message", zap.String("session", m.SessionID), zap.String("role", m.Role), zap.Error(err))
	}
}

// wantsJSON reports whether the client asked for the single JSON reply.
func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "false" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "ndjson")
}

// ============================================================================
// FEEDBACK AND TICKETS
// ============================================================================

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req chatapi.FeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Category == "" {
		req.Category = chatapi.DefaultFeedbackCategory
	}
	if msg := checkBody(feedbackBody{Message: req.Message, Category: req.Category}); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.RLock()
	records := s.records
	s.mu.RUnlock()

	if records != nil {
		err := records.AddFeedback(r.Context(), Feedback{UserID: req.UserID, Message: req.Message, Category: req.Category})
		if err != nil {
			s.log.Error("store feedback", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to store feedback")
			return
		}
	}

	s.stats.feedback.Add(1)
	s.log.Info("feedback received", zap.String("category", req.Category))
	writeJSON(w, http.StatusOK, chatapi.SubmitResult{
		Status:  "success",
		Message: "Feedback submitted successfully",
	})
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	var req chatapi.TicketRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Priority == "" {
		req.Priority = chatapi.DefaultTicketPriority
	}
	req.Subject = strings.TrimSpace(req.Subject)
	req.Description = strings.TrimSpace(req.Description)
	if msg := checkBody(ticketBody{
		Category:    req.Category,
		Priority:    req.Priority,
		Subject:     req.Subject,
		Description: req.Description,
	}); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.RLock()
	records := s.records
	s.mu.RUnlock()

	ticketID := uuid.NewString()
	if records != nil {
		id, err := records.AddTicket(r.Context(), Ticket{
			UserID:      req.UserID,
			Category:    req.Category,
			Priority:    req.Priority,
			Subject:     req.Subject,
			Description: req.Description,
		})
		if err != nil {
			s.log.Error("store ticket", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to create ticket: "+err.Error())
			return
		}
		ticketID = id
	}

	s.stats.tickets.Add(1)
	s.log.Info("ticket created", zap.String("ticket_id", ticketID), zap.String("category", req.Category))
	writeJSON(w, http.StatusOK, chatapi.SubmitResult{
		Status:   "success",
		Message:  "Ticket created successfully",
		TicketID: ticketID,
	})
}

// ============================================================================
// HEALTH AND STATS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	records := s.records
	s.mu.RUnlock()

	connected := false
	if records != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		connected = records.Ping(ctx) == nil
		cancel()
	}

	writeJSON(w, http.StatusOK, chatapi.HealthStatus{
		Status:      "ok",
		Service:     ServiceName,
		Version:     s.cfg.Version,
		DBConnected: connected,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("server start", zap.String("addr", ln.Addr().String()), zap.String("version", s.cfg.Version))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}

	snap := s.stats.Snapshot()
	s.log.Info("server shutdown",
		zap.Int64("chats", snap.Chats),
		zap.Int64("feedback", snap.Feedback),
		zap.Int64("tickets", snap.Tickets),
	)
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// decodeBody decodes a JSON request body, writing the error reply itself
// when that fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the backend's error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, chatapi.SubmitResult{Status: "error", Message: message})
}
