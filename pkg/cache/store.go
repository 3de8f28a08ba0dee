package cache

import (
	"context"
	"errors"
	"maps"
	"sync"
)

var (
	// ErrNilStore is returned when a store is used without a backend.
	ErrNilStore = errors.New("cache store backend is nil")
)

// Store persists lookup results between runs.
type Store interface {
	// Load returns every cached entry. A store with nothing saved yet
	// returns an empty map and no error.
	Load(ctx context.Context) (map[string]string, error)

	// Save persists entries. Existing entries not present in the map are kept.
	Save(ctx context.Context, entries map[string]string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string

	loads int
	saves int
}

// NewMemoryStore creates a MemoryStore seeded with entries.
func NewMemoryStore(entries map[string]string) *MemoryStore {
	s := &MemoryStore{entries: make(map[string]string, len(entries))}
	maps.Copy(s.entries, entries)
	return s
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loads++
	out := maps.Clone(s.entries)
	if out == nil {
		out = make(map[string]string)
	}
	CacheEntries.WithLabelValues("memory").Set(float64(len(out)))
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	maps.Copy(s.entries, entries)
	CacheEntries.WithLabelValues("memory").Set(float64(len(s.entries)))
	return nil
}

// Counts returns how many times Load and Save were called.
func (s *MemoryStore) Counts() (loads, saves int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads, s.saves
}

// Entries returns a copy of the stored entries.
func (s *MemoryStore) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.entries)
}
