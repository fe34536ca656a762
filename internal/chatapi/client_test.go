// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/veda/internal/stream"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(&ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}), srv
}

// =============================================================================
// REQUEST ENCODING
// =============================================================================

func TestChatRequestEncodesNullSession(t *testing.T) {
	data, err := json.Marshal(ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi","sessionId":null}`, string(data))

	data, err = json.Marshal(ChatRequest{Message: "hi", SessionID: "abc123", Regenerate: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi","sessionId":"abc123","regenerate":true}`, string(data))
}

func TestChatRequestDecodesNullSession(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"message":"hi","sessionId":null}`), &req))
	assert.Equal(t, "", req.SessionID)

	require.NoError(t, json.Unmarshal([]byte(`{"message":"hi","sessionId":"s1","regenerate":true}`), &req))
	assert.Equal(t, "s1", req.SessionID)
	assert.True(t, req.Regenerate)
}

// =============================================================================
// STREAMING
// =============================================================================

func TestStreamDeliversEventsInOrder(t *testing.T) {
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/x-ndjson", r.Header.Get("Accept"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		flusher := w.(http.Flusher)
		io.WriteString(w, `{"type":"content","chunk":"Hel"}`+"\n")
		flusher.Flush()
		io.WriteString(w, `{"type":"content","chunk":"lo"}`+"\n")
		io.WriteString(w, `{"type":"meta","sessionId":"abc123"}`+"\n")
	})

	var events []stream.Event
	err := client.Stream(context.Background(), ChatRequest{Message: "hi", SessionID: "s0"}, func(ev stream.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, "Hel", events[0].Chunk)
	assert.Equal(t, "lo", events[1].Chunk)
	assert.Equal(t, "abc123", events[2].SessionID)
	assert.Equal(t, "hi", gotBody["message"])
	assert.Equal(t, "s0", gotBody["sessionId"])
}

func TestStreamStatusError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := client.Stream(context.Background(), ChatRequest{Message: "hi"}, func(stream.Event) {})

	require.Error(t, err)
	assert.True(t, IsStatus(err))
	var ce *ClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusInternalServerError, ce.StatusCode)
}

func TestStreamUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: url})
	err := client.Stream(context.Background(), ChatRequest{Message: "hi"}, func(stream.Event) {})

	require.Error(t, err)
	assert.True(t, IsUnreachable(err), "got %v", err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestStreamCanceledMidBody(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"type":"content","chunk":"partial"}`+"\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	err := client.Stream(ctx, ChatRequest{Message: "hi"}, func(ev stream.Event) {
		got = append(got, ev.Chunk)
		cancel()
	})

	require.Error(t, err)
	assert.True(t, IsCanceled(err), "got %v", err)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, []string{"partial"}, got)
}

// =============================================================================
// LEGACY
// =============================================================================

func TestLegacyReplaysReplyAsEvents(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		json.NewEncoder(w).Encode(LegacyResponse{
			Response:        "We offer...",
			Recommendations: []string{"Pro plan", "Enterprise"},
			SessionID:       "s1",
			Meta:            map[string]any{"source": "kb"},
		})
	})

	var events []stream.Event
	err := Legacy{Client: client}.Stream(context.Background(), ChatRequest{Message: "pricing"}, func(ev stream.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, stream.Content("We offer..."), events[0])
	assert.Equal(t, stream.EventRecommendations, events[1].Type)
	assert.Equal(t, stream.Meta("s1"), events[2])
}

func TestLegacyEmptyReplyEmitsNothing(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":""}`)
	})

	n := 0
	err := Legacy{Client: client}.Stream(context.Background(), ChatRequest{Message: "x"}, func(stream.Event) { n++ })
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// HEALTH, FEEDBACK, TICKETS
// =============================================================================

func TestHealth(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		io.WriteString(w, `{"status":"ok","service":"veda-backend","version":"1.0.0","db_connected":true}`)
	})

	status, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK())
	assert.True(t, status.DBConnected)
}

func TestSubmitFeedbackDefaultsCategory(t *testing.T) {
	var got FeedbackRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feedback", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"status":"success","message":"Feedback submitted successfully"}`)
	})

	res, err := client.SubmitFeedback(context.Background(), FeedbackRequest{Message: "love it"})
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "General", got.Category)
}

func TestSubmitTicketDefaultsPriority(t *testing.T) {
	var got TicketRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"status":"success","message":"Ticket created successfully","ticket_id":"t-1"}`)
	})

	res, err := client.SubmitTicket(context.Background(), TicketRequest{
		Category:    "Billing",
		Subject:     "Invoice",
		Description: "Charged twice",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", res.TicketID)
	assert.Equal(t, "Medium", got.Priority)
}

func TestSubmitSurfacesValidationMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"status":"error","message":"subject is required"}`)
	})

	_, err := client.SubmitTicket(context.Background(), TicketRequest{Category: "Billing"})
	require.Error(t, err)
	assert.True(t, IsStatus(err))
	assert.True(t, strings.Contains(err.Error(), "subject is required"), err.Error())
}

func TestSubmitErrorStatusInBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"error","message":"Failed to store feedback"}`)
	})

	_, err := client.SubmitFeedback(context.Background(), FeedbackRequest{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to store feedback")
}
