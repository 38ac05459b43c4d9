// Package history keeps the bounded per-(user, host) record of submitted
// commands. It is a thin layer over the durable key/value store: each
// (user, host) pair maps to one key holding an ordered JSON list of entries.
//
// History is best-effort by contract: callers log append failures and move
// on, so a broken backing store never blocks command execution.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hostdeck/hostdeck/internal/database"
)

// Defaults for the per-key entry cap and time-to-live.
const (
	DefaultLimit = 100
	DefaultTTL   = 24 * time.Hour
)

// Entry is one recorded command submission.
type Entry struct {
	Command     string    `json:"command"`
	SubmittedAt time.Time `json:"timestamp"`
}

// HistoryError wraps a backing-store failure. It is logged by callers and
// never treated as fatal to the session.
type HistoryError struct {
	Op  string
	Key string
	Err error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *HistoryError) Unwrap() error { return e.Err }

// Store records command history per (user, host) pair, capped in size and
// bounded in age.
type Store struct {
	kv    database.KV
	limit int
	ttl   time.Duration

	// The backing store has no atomic read-modify-write, so appends to the
	// same key are serialized here.
	mu sync.Mutex
}

// NewStore creates a history store over the given key/value backing.
// Non-positive limit or ttl fall back to the defaults.
func NewStore(kv database.KV, limit int, ttl time.Duration) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, limit: limit, ttl: ttl}
}

func key(userID, hostID string) string {
	return fmt.Sprintf("history:%s:%s", userID, hostID)
}

// Append records a command with the current timestamp, trims the collection
// to the cap (dropping oldest), and refreshes the TTL on the whole key.
func (s *Store) Append(userID, hostID, command string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(userID, hostID)
	entries, err := s.load(k)
	if err != nil {
		return err
	}

	entries = append(entries, Entry{Command: command, SubmittedAt: time.Now().UTC()})
	if len(entries) > s.limit {
		entries = entries[len(entries)-s.limit:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return &HistoryError{Op: "append", Key: k, Err: err}
	}
	if err := s.kv.Set(k, data, s.ttl); err != nil {
		return &HistoryError{Op: "append", Key: k, Err: err}
	}
	return nil
}

// List returns the recorded entries oldest first. An expired or unknown key
// yields an empty slice, not an error.
func (s *Store) List(userID, hostID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(key(userID, hostID))
}

// Last returns the most recently appended entry, or false if none exists.
// Backs the "retry last command" feature.
func (s *Store) Last(userID, hostID string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(key(userID, hostID))
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[len(entries)-1], true, nil
}

// Clear removes the whole per-key collection immediately.
func (s *Store) Clear(userID, hostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(userID, hostID)
	if err := s.kv.Delete(k); err != nil {
		return &HistoryError{Op: "clear", Key: k, Err: err}
	}
	return nil
}

func (s *Store) load(k string) ([]Entry, error) {
	data, ok, err := s.kv.Get(k)
	if err != nil {
		return nil, &HistoryError{Op: "load", Key: k, Err: err}
	}
	if !ok {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &HistoryError{Op: "load", Key: k, Err: err}
	}
	return entries, nil
}
