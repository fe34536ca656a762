// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatapi provides the HTTP client for the Veda chat backend.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/veda/internal/stream"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the chat backend client.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int // set for ErrTypeStatus
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinels by type, so errors.Is(err, ErrTimeout) holds for
// any timeout whatever its message.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok || !isSentinel(t) {
		return false
	}
	return e.Type == t.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeStatus
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrUnreachable = &ClientError{Type: ErrTypeConnection, Message: "chat backend is unreachable"}
	ErrTimeout     = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrCanceled    = &ClientError{Type: ErrTypeCanceled, Message: "request canceled"}
)

func isSentinel(e *ClientError) bool {
	return e == ErrUnreachable || e == ErrTimeout || e == ErrCanceled
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is where the dev backend listens.
// Uses explicit IPv4 address instead of localhost to avoid IPv6 resolution issues on Windows
const DefaultBaseURL = "http://127.0.0.1:5002"

// ClientConfig holds configuration options for the chat client.
type ClientConfig struct {
	// BaseURL is the backend base URL (default: http://127.0.0.1:5002)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// StreamTimeout bounds the wait for response headers on streaming
	// requests. The body itself is bounded only by the caller's context.
	// (default: 15s)
	StreamTimeout time.Duration

	// UserID is attached to chat, feedback and ticket requests when set.
	UserID string

	// Logger receives transport diagnostics (default: no-op)
	Logger *zap.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:       DefaultBaseURL,
		Timeout:       30 * time.Second,
		StreamTimeout: 15 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the chat backend.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := chatapi.NewClient()
//	err := client.Stream(ctx, chatapi.ChatRequest{Message: "pricing"}, func(ev stream.Event) {
//	    fmt.Print(ev.Chunk)
//	})
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	log          *zap.Logger
}

// NewClient creates a new client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = 15 * time.Second
	}
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.StreamTimeout

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		// No overall timeout: a streamed answer may legitimately take long.
		streamClient: &http.Client{Transport: transport},
		log:          log.Named("chatapi"),
	}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Stream sends a chat request and calls fn for each decoded event, in arrival
// order, until the backend closes the response. Malformed lines are skipped.
//
// The returned error is a *ClientError. A cancelled ctx yields ErrCanceled.
func (c *Client) Stream(ctx context.Context, req ChatRequest, fn func(stream.Event)) error {
	if req.UserID == "" {
		req.UserID = c.config.UserID
	}

	body, err := json.Marshal(req)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	start := time.Now()
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return &ClientError{
			Type:       ErrTypeStatus,
			Message:    "stream request failed: " + resp.Status,
			StatusCode: resp.StatusCode,
		}
	}

	dec := stream.NewDecoder(resp.Body, stream.WithLogger(c.log))
	events := 0
	err = dec.Process(ctx, func(ev stream.Event) {
		events++
		fn(ev)
	})

	c.log.Debug("stream finished",
		zap.Int("events", events),
		zap.Int("dropped", dec.Dropped()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	if err != nil {
		if ctx.Err() != nil {
			return c.transportError(ctx, err)
		}
		return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
	}
	return nil
}

// =============================================================================
// LEGACY CHAT
// =============================================================================

// Chat sends a chat request to a backend that answers with a single JSON
// document instead of a stream.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*LegacyResponse, error) {
	if req.UserID == "" {
		req.UserID = c.config.UserID
	}

	var result LegacyResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Legacy adapts a non-streaming backend to the streaming contract. Each
// reply is replayed as content, recommendations and meta events so callers
// share one code path.
type Legacy struct {
	Client *Client
}

// Stream performs a legacy Chat and replays the reply as events.
func (l Legacy) Stream(ctx context.Context, req ChatRequest, fn func(stream.Event)) error {
	resp, err := l.Client.Chat(ctx, req)
	if err != nil {
		return err
	}
	if resp.Response != "" {
		fn(stream.Content(resp.Response))
	}
	if len(resp.Recommendations) > 0 {
		fn(stream.Recommendations(resp.Recommendations))
	}
	if resp.SessionID != "" {
		fn(stream.Meta(resp.SessionID))
	}
	return nil
}

// =============================================================================
// HEALTH, FEEDBACK, TICKETS
// =============================================================================

// Health queries GET /health.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SubmitFeedback posts free-form product feedback. An empty category is sent
// as "General".
func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*SubmitResult, error) {
	if req.Category == "" {
		req.Category = DefaultFeedbackCategory
	}
	if req.UserID == "" {
		req.UserID = c.config.UserID
	}
	return c.submit(ctx, "/feedback", req)
}

// SubmitTicket opens a support ticket. An empty priority is sent as "Medium".
// The backend's ticket id is in the result.
func (c *Client) SubmitTicket(ctx context.Context, req TicketRequest) (*SubmitResult, error) {
	if req.Priority == "" {
		req.Priority = DefaultTicketPriority
	}
	if req.UserID == "" {
		req.UserID = c.config.UserID
	}
	return c.submit(ctx, "/ticket", req)
}

func (c *Client) submit(ctx context.Context, path string, body any) (*SubmitResult, error) {
	var result SubmitResult
	err := c.doJSON(ctx, http.MethodPost, path, body, &result)

	// Validation failures come back as 400 with a readable message.
	var clientErr *ClientError
	if errors.As(err, &clientErr) && clientErr.Type == ErrTypeStatus && result.Message != "" {
		return nil, &ClientError{Type: ErrTypeStatus, Message: result.Message, StatusCode: clientErr.StatusCode}
	}
	if err != nil {
		return nil, err
	}
	if result.Status == "error" {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: result.Message}
	}
	return &result, nil
}

// doJSON sends body (if any) and decodes the response into out. On a non-200
// status it still tries to decode out so callers can read error messages.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	decodeErr := json.NewDecoder(resp.Body).Decode(out)

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:       ErrTypeStatus,
			Message:    method + " " + path + " failed: " + resp.Status,
			StatusCode: resp.StatusCode,
		}
	}
	if decodeErr != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: decodeErr}
	}
	return nil
}

// transportError classifies a failed round trip.
func (c *Client) transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return &ClientError{Type: ErrTypeCanceled, Message: ErrCanceled.Message, Cause: err}
	case errors.Is(err, context.DeadlineExceeded), isNetTimeout(err):
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	default:
		return &ClientError{Type: ErrTypeConnection, Message: ErrUnreachable.Message, Cause: err}
	}
}

func isNetTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func drain(r io.Reader) {
	io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}

// =============================================================================
// ERROR PREDICATES
// =============================================================================

// IsUnreachable reports whether err means the backend could not be reached.
func IsUnreachable(err error) bool {
	return hasType(err, ErrTypeConnection)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return hasType(err, ErrTypeTimeout)
}

// IsCanceled reports whether err came from a cancelled context.
func IsCanceled(err error) bool {
	return hasType(err, ErrTypeCanceled) || errors.Is(err, context.Canceled)
}

// IsStatus reports whether the backend answered with a non-200 status.
func IsStatus(err error) bool {
	return hasType(err, ErrTypeStatus)
}

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}
