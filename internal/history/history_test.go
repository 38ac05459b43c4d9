package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hostdeck/hostdeck/internal/database"
)

// memKV is an in-memory fake with TTL tracking, enough to observe which TTL
// the store passes down.
type memKV struct {
	mu      sync.Mutex
	m       map[string][]byte
	lastTTL time.Duration
	setErr  error
}

func newMemKV() *memKV { return &memKV{m: make(map[string][]byte)} }

func (kv *memKV) Get(key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	return v, ok, nil
}

func (kv *memKV) Set(key string, value []byte, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.setErr != nil {
		return kv.setErr
	}
	kv.m[key] = value
	kv.lastTTL = ttl
	return nil
}

func (kv *memKV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.m, key)
	return nil
}

func TestAppendAndListOrder(t *testing.T) {
	s := NewStore(newMemKV(), 0, 0)

	for _, cmd := range []string{"uptime", "df -h", "free -m"} {
		if err := s.Append("alice", "web-01", cmd); err != nil {
			t.Fatalf("Append(%q) failed: %v", cmd, err)
		}
	}

	entries, err := s.List("alice", "web-01")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entry count = %d, want 3", len(entries))
	}
	// Oldest first.
	want := []string{"uptime", "df -h", "free -m"}
	for i, e := range entries {
		if e.Command != want[i] {
			t.Errorf("entries[%d].Command = %q, want %q", i, e.Command, want[i])
		}
		if e.SubmittedAt.IsZero() {
			t.Errorf("entries[%d] has zero timestamp", i)
		}
	}
}

func TestAppendTrimsToLimit(t *testing.T) {
	s := NewStore(newMemKV(), 5, 0)

	for i := 0; i < 8; i++ {
		if err := s.Append("alice", "web-01", fmt.Sprintf("cmd-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.List("alice", "web-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("entry count = %d, want 5", len(entries))
	}
	// The oldest three fell off.
	if entries[0].Command != "cmd-3" || entries[4].Command != "cmd-7" {
		t.Errorf("retained range = %q..%q, want cmd-3..cmd-7", entries[0].Command, entries[4].Command)
	}
}

func TestListUnknownKeyEmpty(t *testing.T) {
	s := NewStore(newMemKV(), 0, 0)
	entries, err := s.List("nobody", "nowhere")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entry count = %d, want 0", len(entries))
	}
}

func TestKeysIsolatedByUserAndHost(t *testing.T) {
	s := NewStore(newMemKV(), 0, 0)
	if err := s.Append("alice", "web-01", "whoami"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("bob", "web-01", "id"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("alice", "db-01", "psql"); err != nil {
		t.Fatal(err)
	}

	entries, _ := s.List("alice", "web-01")
	if len(entries) != 1 || entries[0].Command != "whoami" {
		t.Errorf("alice@web-01 history = %+v, want only whoami", entries)
	}
	entries, _ = s.List("bob", "web-01")
	if len(entries) != 1 || entries[0].Command != "id" {
		t.Errorf("bob@web-01 history = %+v, want only id", entries)
	}
}

func TestLast(t *testing.T) {
	s := NewStore(newMemKV(), 0, 0)

	if _, ok, err := s.Last("alice", "web-01"); ok || err != nil {
		t.Fatalf("Last on empty history = %v, %v, want false, nil", ok, err)
	}

	s.Append("alice", "web-01", "first")
	s.Append("alice", "web-01", "second")

	entry, ok, err := s.Last("alice", "web-01")
	if err != nil || !ok {
		t.Fatalf("Last = %v, %v", ok, err)
	}
	if entry.Command != "second" {
		t.Errorf("Last command = %q, want %q", entry.Command, "second")
	}
}

func TestClear(t *testing.T) {
	s := NewStore(newMemKV(), 0, 0)
	s.Append("alice", "web-01", "ls")
	if err := s.Clear("alice", "web-01"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	entries, _ := s.List("alice", "web-01")
	if len(entries) != 0 {
		t.Errorf("entry count after Clear = %d, want 0", len(entries))
	}
}

func TestAppendRefreshesTTL(t *testing.T) {
	kv := newMemKV()
	s := NewStore(kv, 0, time.Hour)

	s.Append("alice", "web-01", "one")
	if kv.lastTTL != time.Hour {
		t.Errorf("TTL passed to store = %v, want %v", kv.lastTTL, time.Hour)
	}
	// Every append re-sets the whole key with a fresh TTL.
	kv.lastTTL = 0
	s.Append("alice", "web-01", "two")
	if kv.lastTTL != time.Hour {
		t.Errorf("TTL on second append = %v, want %v", kv.lastTTL, time.Hour)
	}
}

func TestAppendStoreError(t *testing.T) {
	kv := newMemKV()
	kv.setErr = errors.New("disk full")
	s := NewStore(kv, 0, 0)

	err := s.Append("alice", "web-01", "ls")
	var he *HistoryError
	if !errors.As(err, &he) {
		t.Fatalf("error type = %T, want *HistoryError", err)
	}
	if !errors.Is(err, kv.setErr) {
		t.Errorf("error does not wrap store error: %v", err)
	}
}

func TestExpiryOverSqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&database.KVEntry{}); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	s := NewStore(database.NewStore(db), 0, 30*time.Millisecond)
	if err := s.Append("alice", "web-01", "uptime"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	entries, err := s.List("alice", "web-01")
	if err != nil || len(entries) != 1 {
		t.Fatalf("List before expiry = %v, %v", entries, err)
	}

	time.Sleep(60 * time.Millisecond)

	// An aged-out key reads as empty history, not an error.
	entries, err = s.List("alice", "web-01")
	if err != nil {
		t.Fatalf("List after expiry failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entry count after expiry = %d, want 0", len(entries))
	}
}
