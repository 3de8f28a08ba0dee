package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the cache as a JSON object in a single file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store. A missing file loads as an empty cache.
func (s *FileStore) Load(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read()
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	entries := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			CacheErrors.WithLabelValues("load").Inc()
			return nil, fmt.Errorf("decode cache file %s: %w", s.path, err)
		}
	}

	CacheEntries.WithLabelValues("file").Set(float64(len(entries)))
	return entries, nil
}

// Save implements Store. Entries are merged with what is on disk and the
// file is replaced atomically.
func (s *FileStore) Save(_ context.Context, entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := s.read()
	if err != nil {
		return err
	}
	maps.Copy(merged, entries)

	data, err := json.Marshal(merged)
	if err != nil {
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("encode cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".lrn-cache-*.json")
	if err != nil {
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("replace cache file: %w", err)
	}

	CacheEntries.WithLabelValues("file").Set(float64(len(merged)))
	return nil
}
