// Package cache stores processed enrollment batches keyed by year and mode.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ohenr/internal/models"
	"ohenr/pkg/metadata"
)

// ErrEmptyKey is returned when a store is asked for a blank key.
var ErrEmptyKey = errors.New("cache key is empty")

// Modes of a cached batch.
const (
	ModeWide = "wide"
	ModeTidy = "tidy"
)

// Store is a key/value blob cache. A Get miss is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, blob []byte, storedAt time.Time) error
}

// Key builds the cache key of a batch. Any change to the pattern table or
// to the subgroup and grade vocabularies produces a new key.
func Key(endYear int, mode string, tableVersion int) string {
	return fmt.Sprintf("enr/%d/%s/t%d/v%d", endYear, mode, tableVersion, models.VocabularyVersion)
}

func envelopeVersion() string {
	return fmt.Sprintf("v%d", models.VocabularyVersion)
}

type memoryEntry struct {
	blob []byte
	meta metadata.Metadata
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an in-memory store. A zero ttl keeps entries forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the blob stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || entry.meta.Expired(m.ttl, m.now()) {
		return nil, false, nil
	}

	if err := metadata.Verify(entry.blob, entry.meta); err != nil {
		return nil, false, nil
	}

	return append([]byte(nil), entry.blob...), true, nil
}

// Put stores a copy of blob under key.
func (m *Memory) Put(_ context.Context, key string, blob []byte, storedAt time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}

	owned := append([]byte(nil), blob...)

	m.mu.Lock()
	m.entries[key] = memoryEntry{
		blob: owned,
		meta: metadata.Sign(owned, envelopeVersion(), true, storedAt),
	}
	m.mu.Unlock()

	return nil
}

// Len returns the number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}
