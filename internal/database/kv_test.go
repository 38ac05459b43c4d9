package database

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return NewStore(db)
}

func TestSetGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set("k1", []byte("v1"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := s.Get("k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Get: key not found")
	}
	if string(v) != "v1" {
		t.Errorf("value = %q, want %q", v, "v1")
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get("nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Get reported a missing key as present")
	}
}

func TestSetOverwrites(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("k", []byte("old"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", []byte("new"), 0); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if string(v) != "new" {
		t.Errorf("value = %q, want %q", v, "new")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("key still present after Delete")
	}
	// Deleting a missing key is not an error.
	if err := s.Delete("k"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestExpiredReadsAsAbsent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get("k"); !ok {
		t.Fatal("key absent before expiry")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok, _ := s.Get("k"); ok {
		t.Error("expired key still readable")
	}
}

func TestTTLRefreshOnSet(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("k", []byte("v"), 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	// Re-setting pushes the expiry forward.
	if err := s.Set("k", []byte("v2"), time.Minute); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := s.Get("k"); !ok {
		t.Error("key expired despite TTL refresh")
	}
}

func TestPruneExpired(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("stale", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("fresh", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("forever", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	n, err := s.PruneExpired()
	if err != nil {
		t.Fatalf("PruneExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, ok, _ := s.Get("fresh"); !ok {
		t.Error("fresh key was pruned")
	}
	if _, ok, _ := s.Get("forever"); !ok {
		t.Error("non-expiring key was pruned")
	}
}
