package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntry is one row of the key/value store. A zero ExpiresAt means the
// entry never expires.
type KVEntry struct {
	Key       string    `gorm:"primaryKey"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// KV is the key/value interface consumed by the history store. Satisfied by
// Store in production and by fakes in tests.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
}

// Store implements KV on top of a gorm connection.
type Store struct {
	db *gorm.DB
}

// NewStore wraps the given gorm connection. Pass database.DB for the
// process-wide store, or an in-memory sqlite connection in tests.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the value for key. Expired keys read as absent; the stale row
// is removed lazily so PruneExpired is a tidy-up, not a correctness
// requirement.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var entry KVEntry
	err := s.db.First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		s.db.Delete(&KVEntry{}, "key = ?", key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Set stores the value under key, replacing any existing entry. A positive
// ttl sets the expiry relative to now; zero means no expiry.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	entry := KVEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if err := s.db.Delete(&KVEntry{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// PruneExpired removes all rows whose expiry has passed and returns the
// number deleted. Driven by the scheduled maintenance job.
func (s *Store) PruneExpired() (int64, error) {
	res := s.db.Where("expires_at > ? AND expires_at < ?", time.Time{}, time.Now()).Delete(&KVEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
