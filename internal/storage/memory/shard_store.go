// Package memory keeps shards and the missing-period log in memory for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

// ShardStore stores shard artifacts in-memory and returns pseudo URIs.
type ShardStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	checks int
}

// NewShardStore creates a new in-memory shard store.
func NewShardStore() *ShardStore {
	return &ShardStore{data: make(map[string][]byte)}
}

// Exists reports whether name has been created.
func (s *ShardStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	_, ok := s.data[name]
	return ok, nil
}

// Create persists the content once and returns a URI.
func (s *ShardStore) Create(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[name]; ok {
		return "", fmt.Errorf("%s: %w", name, quake.ErrShardExists)
	}
	s.data[name] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", name), nil
}

// List returns all shard names in lexical order.
func (s *ShardStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Open returns a reader over a stored shard.
func (s *ShardStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, quake.ErrShardNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Get returns a copy of the stored bytes.
func (s *ShardStore) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Checks returns how many existence checks have been served.
func (s *ShardStore) Checks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checks
}

// MissingLog records appended periods in order.
type MissingLog struct {
	mu      sync.Mutex
	periods []quake.Period
}

// NewMissingLog creates an empty in-memory missing log.
func NewMissingLog() *MissingLog {
	return &MissingLog{}
}

// Append records period.
func (l *MissingLog) Append(_ context.Context, period quake.Period) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.periods = append(l.periods, period)
	return nil
}

// Lines renders the log the way the file-backed log would.
func (l *MissingLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines := make([]string, 0, len(l.periods))
	for _, p := range l.periods {
		lines = append(lines, p.LogName())
	}
	return lines
}
