// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/jeranaias/veda/internal/chatapi"
	"github.com/jeranaias/veda/internal/stream"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s := New(cfg).WithLogger(zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body any, accept string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readEvents(t *testing.T, resp *http.Response) []stream.Event {
	t.Helper()
	var events []stream.Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var ev stream.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

// ============================================================================
// KNOWLEDGE BASE TESTS
// ============================================================================

func TestKnowledgeBase_Lookup(t *testing.T) {
	kb := DefaultKnowledgeBase()

	tests := []struct {
		message string
		topic   string
		first   string
	}{
		{"What is the PRICE?", "pricing", "View Pricing Plans"},
		{"Which features are there", "features", "Explore Features"},
		{"I found a bug", "support", "Submit Ticket"},
		{"tell me about leadq", "about", "About Us"},
		{"Connect my CRM", "integration", "Integration Setup"},
		// pricing is checked before features even though both match
		{"what features come with each plan", "pricing", "View Pricing Plans"},
		{"hello", TopicGreeting, "Show Pricing"},
		{"xyz", TopicFallback, "Pricing"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := kb.Lookup(tt.message)
			if got.Topic != tt.topic {
				t.Errorf("Lookup(%q).Topic = %q, want %q", tt.message, got.Topic, tt.topic)
			}
			if len(got.Recommendations) == 0 || got.Recommendations[0] != tt.first {
				t.Errorf("Lookup(%q).Recommendations = %v, want first %q", tt.message, got.Recommendations, tt.first)
			}
		})
	}
}

func TestKnowledgeBase_LookupDoesNotShareLinks(t *testing.T) {
	kb := DefaultKnowledgeBase()
	a := kb.Lookup("price")
	a.Recommendations[0] = "changed"

	if b := kb.Lookup("price"); b.Recommendations[0] != "View Pricing Plans" {
		t.Errorf("mutating one answer leaked into the knowledge base: %v", b.Recommendations)
	}
}

func TestSplitWords(t *testing.T) {
	tests := []string{
		"",
		"one",
		"two words",
		"LeadQ offers three pricing tiers:\n- **Starter**: $29/mo",
		"trailing space ",
		"  leading",
	}
	for _, text := range tests {
		chunks := SplitWords(text)
		if got := strings.Join(chunks, ""); got != text {
			t.Errorf("SplitWords(%q) rejoined = %q", text, got)
		}
	}

	if got := SplitWords("a b c"); len(got) != 3 || got[0] != "a " || got[2] != "c" {
		t.Errorf("SplitWords(\"a b c\") = %q", got)
	}
}

func TestRephrase(t *testing.T) {
	a := Rephrase("answer", 0)
	b := Rephrase("answer", 1)
	if !strings.HasSuffix(a, "answer") || !strings.HasSuffix(b, "answer") {
		t.Fatalf("Rephrase dropped the answer: %q, %q", a, b)
	}
	if a == b {
		t.Errorf("consecutive lead-ins should differ, both %q", a)
	}
	if Rephrase("x", len(rephraseLeadIns)) != Rephrase("x", 0) {
		t.Error("lead-ins should rotate")
	}
}

// ============================================================================
// CHAT TESTS
// ============================================================================

func TestHandleChat_Streams(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postJSON(t, ts.URL+"/chat", map[string]any{"message": "What is the price?", "sessionId": nil}, "application/x-ndjson")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := readEvents(t, resp)
	if len(events) < 3 {
		t.Fatalf("got %d events, want content, recommendations and meta", len(events))
	}

	var text strings.Builder
	for _, ev := range events[:len(events)-2] {
		if ev.Type != stream.EventContent {
			t.Fatalf("unexpected %s before the trailer", ev.Type)
		}
		text.WriteString(ev.Chunk)
	}
	if want := DefaultKnowledgeBase()[0].Answer; text.String() != want {
		t.Errorf("content = %q, want %q", text.String(), want)
	}

	recs := events[len(events)-2]
	if recs.Type != stream.EventRecommendations || len(recs.Data) != 2 {
		t.Errorf("recommendations event = %+v", recs)
	}
	meta := events[len(events)-1]
	if meta.Type != stream.EventMeta || meta.SessionID == "" {
		t.Errorf("meta event = %+v", meta)
	}
}

func TestHandleChat_KeepsSessionID(t *testing.T) {
	s, ts := newTestServer(t, Config{})

	resp := postJSON(t, ts.URL+"/chat", chatapi.ChatRequest{Message: "hi", SessionID: "s-42", UserID: "u1"}, "")
	events := readEvents(t, resp)
	if last := events[len(events)-1]; last.SessionID != "s-42" {
		t.Errorf("meta sessionId = %q, want s-42", last.SessionID)
	}

	info, err := s.sessions.Get("s-42")
	if err != nil {
		t.Fatalf("session not registered: %v", err)
	}
	if info.UserID != "u1" || info.Turns != 1 {
		t.Errorf("session info = %+v", info)
	}
}

func TestHandleChat_Legacy(t *testing.T) {
	for name, target := range map[string]struct{ path, accept string }{
		"accept header": {"/chat", "application/json"},
		"query":         {"/chat?stream=false", ""},
	} {
		t.Run(name, func(t *testing.T) {
			_, ts := newTestServer(t, Config{})
			resp := postJSON(t, ts.URL+target.path, chatapi.ChatRequest{Message: "salesforce"}, target.accept)

			var body chatapi.LegacyResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !strings.Contains(body.Response, "Salesforce, HubSpot, Zoho, and Pipedrive") {
				t.Errorf("response = %q", body.Response)
			}
			if body.SessionID == "" {
				t.Error("sessionId should be generated")
			}
			if body.Meta["source"] != "fastapi-knowledge-base" {
				t.Errorf("meta = %v", body.Meta)
			}
			if _, ok := body.Meta["latency_ms"]; !ok {
				t.Error("meta.latency_ms missing")
			}
		})
	}
}

func TestWithKnowledgeBase(t *testing.T) {
	s, ts := newTestServer(t, Config{})
	s.WithKnowledgeBase(KnowledgeBase{{
		Name:     "onboarding",
		Keywords: []string{"onboard"},
		Answer:   "Open Settings and follow the setup checklist.",
		Links:    []string{"Open Settings"},
	}})

	resp := postJSON(t, ts.URL+"/chat?stream=false", chatapi.ChatRequest{Message: "How do I onboard my team?"}, "")
	var body chatapi.LegacyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Response != "Open Settings and follow the setup checklist." {
		t.Errorf("response = %q", body.Response)
	}
	if len(body.Recommendations) != 1 || body.Recommendations[0] != "Open Settings" {
		t.Errorf("recommendations = %v", body.Recommendations)
	}
}

func TestHandleChat_Regenerate(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postJSON(t, ts.URL+"/chat?stream=false", chatapi.ChatRequest{Message: "price", Regenerate: true}, "")
	var body chatapi.LegacyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	answer := DefaultKnowledgeBase()[0].Answer
	if body.Response == answer || !strings.HasSuffix(body.Response, answer) {
		t.Errorf("regenerated response = %q, want a lead-in before the answer", body.Response)
	}
}

func TestHandleChat_Validation(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postJSON(t, ts.URL+"/chat", map[string]any{"message": "  "}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank message status = %d, want 400", resp.StatusCode)
	}

	raw, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Body.Close()
	var body chatapi.SubmitResult
	_ = json.NewDecoder(raw.Body).Decode(&body)
	if raw.StatusCode != http.StatusBadRequest || body.Status != "error" {
		t.Errorf("malformed body: status %d, body %+v", raw.StatusCode, body)
	}
}

func TestHandleChat_BodyLimit(t *testing.T) {
	_, ts := newTestServer(t, Config{MaxBodyBytes: 64})

	resp := postJSON(t, ts.URL+"/chat", chatapi.ChatRequest{Message: strings.Repeat("x", 200)}, "")
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestHandleChat_StopsWhenClientLeaves(t *testing.T) {
	s, ts := newTestServer(t, Config{StreamDelay: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := chatapi.NewClientWithConfig(&chatapi.ClientConfig{BaseURL: ts.URL})
	err := client.Stream(ctx, chatapi.ChatRequest{Message: "features"}, func(ev stream.Event) {
		cancel()
	})
	if !chatapi.IsCanceled(err) {
		t.Fatalf("Stream error = %v, want canceled", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Stats().Snapshot().AbortedStreams == 0 {
		if time.Now().After(deadline) {
			t.Fatal("server kept streaming after the client went away")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientAgainstServer(t *testing.T) {
	_, ts := newTestServer(t, Config{StreamDelay: time.Millisecond})
	client := chatapi.NewClientWithConfig(&chatapi.ClientConfig{BaseURL: ts.URL})

	var text strings.Builder
	var session string
	err := client.Stream(context.Background(), chatapi.ChatRequest{Message: "Who are you?"}, func(ev stream.Event) {
		switch ev.Type {
		case stream.EventContent:
			text.WriteString(ev.Chunk)
		case stream.EventMeta:
			session = ev.SessionID
		}
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !strings.HasPrefix(text.String(), "I am **Veda**") {
		t.Errorf("streamed text = %q", text.String())
	}
	if session == "" {
		t.Error("no session id streamed")
	}

	legacy, err := client.Chat(context.Background(), chatapi.ChatRequest{Message: "Who are you?", SessionID: session})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if legacy.Response != text.String() || legacy.SessionID != session {
		t.Errorf("legacy reply %+v does not match streamed one", legacy)
	}
}

// ============================================================================
// FEEDBACK AND TICKET TESTS
// ============================================================================

func TestHandleFeedback(t *testing.T) {
	s, ts := newTestServer(t, Config{})
	recs := openTestRecords(t)
	s.WithRecords(recs)

	resp := postJSON(t, ts.URL+"/feedback", chatapi.FeedbackRequest{Message: "Great bot"}, "")
	var body chatapi.SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "success" || body.Message != "Feedback submitted successfully" {
		t.Errorf("got %d %+v", resp.StatusCode, body)
	}

	if n, _ := recs.Count(context.Background(), "feedback_submissions"); n != 1 {
		t.Errorf("stored feedback rows = %d, want 1", n)
	}

	bad := postJSON(t, ts.URL+"/feedback", chatapi.FeedbackRequest{}, "")
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("empty feedback status = %d, want 400", bad.StatusCode)
	}
}

func TestHandleFeedback_StoreFailure(t *testing.T) {
	s, ts := newTestServer(t, Config{})
	s.WithRecords(failingRecords{})

	resp := postJSON(t, ts.URL+"/feedback", chatapi.FeedbackRequest{Message: "x"}, "")
	var body chatapi.SubmitResult
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusInternalServerError || body.Message != "Failed to store feedback" {
		t.Errorf("got %d %+v", resp.StatusCode, body)
	}
}

func TestHandleTicket(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postJSON(t, ts.URL+"/ticket", chatapi.TicketRequest{
		Category:    "Technical",
		Subject:     "Cannot log in",
		Description: "The login page spins forever.",
	}, "")
	var body chatapi.SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "success" || body.Message != "Ticket created successfully" || body.TicketID == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleTicket_Validation(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	valid := chatapi.TicketRequest{Category: "Billing", Subject: "s", Description: "d"}
	tests := []struct {
		name   string
		mutate func(*chatapi.TicketRequest)
		want   string
	}{
		{"no subject", func(r *chatapi.TicketRequest) { r.Subject = " " }, "subject is required"},
		{"no description", func(r *chatapi.TicketRequest) { r.Description = "" }, "description is required"},
		{"bad category", func(r *chatapi.TicketRequest) { r.Category = "Other" }, "category must be one of"},
		{"bad priority", func(r *chatapi.TicketRequest) { r.Priority = "Whenever" }, "priority must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			resp := postJSON(t, ts.URL+"/ticket", req, "")

			var body chatapi.SubmitResult
			_ = json.NewDecoder(resp.Body).Decode(&body)
			if resp.StatusCode != http.StatusBadRequest || body.Status != "error" {
				t.Errorf("got %d %+v", resp.StatusCode, body)
			}
			if !strings.HasPrefix(body.Message, tt.want) {
				t.Errorf("message = %q, want prefix %q", body.Message, tt.want)
			}
		})
	}
}

func TestCheckBody(t *testing.T) {
	tests := []struct {
		name string
		body any
		want string
	}{
		{"valid feedback", feedbackBody{Message: "hi", Category: "General"}, ""},
		{"empty feedback", feedbackBody{Category: "General"}, "message is required"},
		{"long subject", ticketBody{Category: "Billing", Priority: "Low", Subject: strings.Repeat("s", 201), Description: "d"},
			"subject must be at most 200 characters"},
		{"category list", ticketBody{Category: "Other", Priority: "Low", Subject: "s", Description: "d"},
			"category must be one of Technical, Billing, Feature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkBody(tt.body); got != tt.want {
				t.Errorf("checkBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

// The oneof tags must accept exactly what the client offers.
func TestTicketRulesMatchClient(t *testing.T) {
	for _, c := range chatapi.TicketCategories {
		for _, p := range chatapi.TicketPriorities {
			if msg := checkBody(ticketBody{Category: c, Priority: p, Subject: "s", Description: "d"}); msg != "" {
				t.Errorf("category %q priority %q rejected: %s", c, p, msg)
			}
		}
	}
}

// ============================================================================
// HEALTH AND MIDDLEWARE TESTS
// ============================================================================

func TestHandleHealth(t *testing.T) {
	s, ts := newTestServer(t, Config{Version: "1.2.3"})

	check := func(wantDB bool) {
		t.Helper()
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var h chatapi.HealthStatus
		if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
			t.Fatal(err)
		}
		want := chatapi.HealthStatus{Status: "ok", Service: ServiceName, Version: "1.2.3", DBConnected: wantDB}
		if h != want {
			t.Errorf("health = %+v, want %+v", h, want)
		}
	}

	check(false)
	s.WithRecords(openTestRecords(t))
	check(true)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, Config{AllowedOrigins: []string{"http://localhost:3000"}})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin got Allow-Origin %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	_, ts := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := postJSON(t, ts.URL+"/chat?stream=false", chatapi.ChatRequest{Message: "hi"}, "")
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}

	// health is outside the limited group
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d while limited", resp.StatusCode)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if !rl.Allow("10.0.0.1") || rl.Allow("10.0.0.1") {
		t.Error("second request from one IP should be refused")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other IPs have their own bucket")
	}
	if rl.Clients() != 2 {
		t.Errorf("Clients() = %d, want 2", rl.Clients())
	}

	unlimited := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !unlimited.Allow("x") {
			t.Fatal("rps 0 should not limit")
		}
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body chatapi.SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound || body.Status != "error" {
		t.Errorf("got %d %+v", resp.StatusCode, body)
	}
}

func TestStats(t *testing.T) {
	s, ts := newTestServer(t, Config{})
	postJSON(t, ts.URL+"/chat?stream=false", chatapi.ChatRequest{Message: "hi"}, "")
	resp := postJSON(t, ts.URL+"/chat", chatapi.ChatRequest{Message: "hi"}, "")
	readEvents(t, resp)

	snap := s.Stats().Snapshot()
	if snap.Chats != 2 || snap.LegacyChats != 1 || snap.StreamedChats != 1 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestServeAndShutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	// Shutdown may race Start's listener setup; retry until the server is up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.RLock()
		up := s.server != nil
		s.mu.RUnlock()
		if up || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Start returned %v after shutdown", err)
	}
}

// failingRecords rejects every write.
type failingRecords struct{}

var errStore = errors.New("disk full")

func (failingRecords) UpsertSession(context.Context, string, string) error { return errStore }
func (failingRecords) AddMessage(context.Context, StoredMessage) error     { return errStore }
func (failingRecords) AddFeedback(context.Context, Feedback) error         { return errStore }
func (failingRecords) AddTicket(context.Context, Ticket) (string, error)   { return "", errStore }
func (failingRecords) Ping(context.Context) error                          { return errStore }
