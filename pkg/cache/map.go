package cache

import (
	"maps"
	"sync"
)

// Map is the working copy of the cache for one run. It is safe for
// concurrent use by many resolvers.
type Map struct {
	mu      sync.RWMutex
	entries map[string]string
	added   int
}

// NewMap creates a Map owning a copy of entries.
func NewMap(entries map[string]string) *Map {
	m := &Map{entries: make(map[string]string, len(entries))}
	maps.Copy(m.entries, entries)
	return m
}

// Get returns the cached result for number.
func (m *Map) Get(number string) (string, bool) {
	if m == nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[number]
	return v, ok
}

// SetIfAbsent stores result for number unless an entry already exists.
// It reports whether the value was stored.
func (m *Map) SetIfAbsent(number, result string) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[number]; exists {
		return false
	}
	m.entries[number] = result
	m.added++
	return true
}

// Len returns the number of entries.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Added returns how many entries were stored since the Map was created.
func (m *Map) Added() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.added
}

// Snapshot returns a copy of all entries.
func (m *Map) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.entries)
}
