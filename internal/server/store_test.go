// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/veda/internal/kv"
)

func openTestRecords(t *testing.T) *SQLiteRecords {
	t.Helper()
	recs, err := OpenRecords(":memory:")
	if err != nil {
		t.Fatalf("OpenRecords: %v", err)
	}
	t.Cleanup(func() { recs.Close() })
	return recs
}

func TestRecords_Transcript(t *testing.T) {
	recs := openTestRecords(t)
	ctx := context.Background()

	if err := recs.UpsertSession(ctx, "s1", "u1"); err != nil {
		t.Fatal(err)
	}
	if err := recs.UpsertSession(ctx, "s1", ""); err != nil {
		t.Fatal(err)
	}
	if n, _ := recs.Count(ctx, "chat_sessions"); n != 1 {
		t.Errorf("sessions = %d, want 1 after upsert", n)
	}

	msgs := []StoredMessage{
		{SessionID: "s1", Role: "user", Content: "price?"},
		{SessionID: "s1", Role: "assistant", Content: "tiers", Recommendations: []string{"A", "B"}, Meta: map[string]any{"source": "kb"}},
		{SessionID: "s2", Role: "user", Content: "other"},
	}
	for _, m := range msgs {
		if err := recs.AddMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := recs.Messages(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Role != "user" || got[1].Content != "tiers" {
		t.Errorf("messages out of order: %+v", got)
	}
	if len(got[1].Recommendations) != 2 || got[1].Meta["source"] != "kb" {
		t.Errorf("assistant row lost its extras: %+v", got[1])
	}
	if got[0].Recommendations != nil {
		t.Errorf("user row should have no recommendations, got %v", got[0].Recommendations)
	}
}

func TestRecords_FeedbackAndTickets(t *testing.T) {
	recs := openTestRecords(t)
	ctx := context.Background()

	if err := recs.AddFeedback(ctx, Feedback{Message: "nice", Category: "General"}); err != nil {
		t.Fatal(err)
	}
	id1, err := recs.AddTicket(ctx, Ticket{Category: "Billing", Priority: "High", Subject: "s", Description: "d"})
	if err != nil {
		t.Fatal(err)
	}
	id2, _ := recs.AddTicket(ctx, Ticket{Category: "Billing", Priority: "High", Subject: "s", Description: "d"})
	if id1 == "" || id1 == id2 {
		t.Errorf("ticket ids %q, %q should be unique", id1, id2)
	}
	if n, _ := recs.Count(ctx, "support_tickets"); n != 2 {
		t.Errorf("tickets = %d, want 2", n)
	}
	if _, err := recs.Count(ctx, "sqlite_master; DROP TABLE x"); err == nil {
		t.Error("Count should reject unknown tables")
	}
}

func TestRecords_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.db")
	recs, err := OpenRecords(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := recs.AddFeedback(context.Background(), Feedback{Message: "m", Category: "General"}); err != nil {
		t.Fatal(err)
	}
	recs.Close()

	reopened, err := OpenRecords(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if n, _ := reopened.Count(context.Background(), "feedback_submissions"); n != 1 {
		t.Errorf("feedback rows after reopen = %d, want 1", n)
	}

	if _, err := OpenRecords(""); err == nil {
		t.Error("empty path should be rejected")
	}
}

func TestSessionRegistry(t *testing.T) {
	store := kv.NewMemory()
	reg := NewSessionRegistry(store)

	t0 := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	now := t0
	reg.now = func() time.Time { return now }

	if _, err := reg.Get("s1"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Get unknown = %v, want ErrNotFound", err)
	}

	if _, err := reg.Touch("s1", "u1"); err != nil {
		t.Fatal(err)
	}
	now = t0.Add(time.Minute)
	info, err := reg.Touch("s1", "")
	if err != nil {
		t.Fatal(err)
	}

	if info.UserID != "u1" {
		t.Errorf("UserID = %q, a later anonymous touch should keep it", info.UserID)
	}
	if !info.CreatedAt.Equal(t0) || !info.LastActiveAt.Equal(now) {
		t.Errorf("timestamps = %v / %v", info.CreatedAt, info.LastActiveAt)
	}
	if info.Turns != 2 {
		t.Errorf("Turns = %d, want 2", info.Turns)
	}

	// Entries are namespaced in the shared store.
	if _, err := store.Get("session:s1"); err != nil {
		t.Errorf("raw key missing: %v", err)
	}
}
