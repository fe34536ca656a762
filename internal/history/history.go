// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/veda/internal/kv"
	"github.com/jeranaias/veda/internal/model"
	"github.com/jeranaias/veda/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// Key is the kv entry holding the history list.
	Key = "chatHistory"

	// MaxEntries bounds the list; the oldest entries fall off.
	MaxEntries = 10

	// PreviewWidth is the preview length in terminal cells.
	PreviewWidth = 60

	untitled = "New conversation"
)

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one saved conversation.
type Entry struct {
	ID        string          `json:"id"`
	Date      time.Time       `json:"date"`
	Preview   string          `json:"preview"`
	SessionID string          `json:"sessionId,omitempty"`
	Messages  []model.Message `json:"messages"`
}

// UserMessages counts the user turns in the entry.
func (e Entry) UserMessages() int {
	n := 0
	for _, m := range e.Messages {
		if m.Role == model.RoleUser {
			n++
		}
	}
	return n
}

// =============================================================================
// STORE
// =============================================================================

// Store reads and writes the history list.
type Store struct {
	kv  kv.Store
	now func() time.Time

	// MaxEntries limits stored conversations. Zero means MaxEntries.
	MaxEntries int

	mu sync.Mutex
}

// NewStore creates a history store over kvs.
func NewStore(kvs kv.Store) *Store {
	return &Store{kv: kvs, now: time.Now, MaxEntries: MaxEntries}
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save records a conversation. Conversations without a user message are
// skipped. An entry for the same conversation is replaced and moved to the
// front. Two saves are the same conversation when they share a non-empty
// session id or the same opening message, which survives a reopen from
// history even when the backend never issued a session.
func (s *Store) Save(sessionID string, messages []model.Message) error {
	_, err := s.SaveEntry(sessionID, messages)
	return err
}

// SaveEntry is Save returning the stored entry. The entry is zero when
// nothing was saved.
func (s *Store) SaveEntry(sessionID string, messages []model.Message) (Entry, error) {
	preview, ok := buildPreview(messages)
	if !ok {
		return Entry{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Date:      s.now().UTC(),
		Preview:   preview,
		SessionID: sessionID,
		Messages:  cloneMessages(messages),
	}

	opening := messages[0].ID
	kept := entries[:0]
	for _, e := range entries {
		sameSession := sessionID != "" && e.SessionID == sessionID
		sameStart := opening != "" && len(e.Messages) > 0 && e.Messages[0].ID == opening
		if sameSession || sameStart {
			if entry.ID == "" || sameSession {
				entry.ID = e.ID
			}
			continue
		}
		kept = append(kept, e)
	}
	if entry.ID == "" {
		entry.ID = model.NewID()
	}

	entries = append([]Entry{entry}, kept...)
	if limit := s.limit(); len(entries) > limit {
		entries = entries[:limit]
	}

	return entry, s.store(entries)
}

// buildPreview returns the first user message flattened to one line and
// truncated to PreviewWidth cells.
func buildPreview(messages []model.Message) (string, bool) {
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		text := util.Flatten(m.Content)
		if text == "" {
			return untitled, true
		}
		return util.TruncateWidth(text, PreviewWidth), true
	}
	return "", false
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// List returns all entries, newest first.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (Entry, error) {
	entries, err := s.List()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

// GetByIndex returns an entry by position (0 = most recent).
func (s *Store) GetByIndex(index int) (Entry, error) {
	entries, err := s.List()
	if err != nil {
		return Entry{}, err
	}
	if index < 0 || index >= len(entries) {
		return Entry{}, ErrEntryNotFound
	}
	return entries[index], nil
}

// Search returns entries whose preview or messages contain query,
// case-insensitively.
func (s *Store) Search(query string) ([]Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return entries, nil
	}

	var results []Entry
	for _, e := range entries {
		if matches(e, query) {
			results = append(results, e)
		}
	}
	return results, nil
}

func matches(e Entry, query string) bool {
	if strings.Contains(strings.ToLower(e.Preview), query) {
		return true
	}
	for _, m := range e.Messages {
		if strings.Contains(strings.ToLower(m.Content), query) {
			return true
		}
	}
	return false
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes an entry by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	for i, e := range entries {
		if e.ID == id {
			return s.store(append(entries[:i], entries[i+1:]...))
		}
	}
	return ErrEntryNotFound
}

// Clear removes all entries.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Remove(Key)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (s *Store) limit() int {
	if s.MaxEntries <= 0 {
		return MaxEntries
	}
	return s.MaxEntries
}

func (s *Store) load() ([]Entry, error) {
	raw, err := s.kv.Get(Key)
	if errors.Is(err, kv.ErrNotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, &HistoryError{Message: "history is corrupt", Cause: err}
	}
	return entries, nil
}

func (s *Store) store(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.kv.Set(Key, string(data))
}

func cloneMessages(messages []model.Message) []model.Message {
	out := make([]model.Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrEntryNotFound is returned when a history entry doesn't exist.
// Use errors.Is(err, ErrEntryNotFound) to check for this error.
var ErrEntryNotFound = &HistoryError{Message: "history entry not found"}

// HistoryError represents a history-related error.
type HistoryError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *HistoryError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *HistoryError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is support for comparing history errors.
func (e *HistoryError) Is(target error) bool {
	t, ok := target.(*HistoryError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
