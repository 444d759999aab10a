package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

const backendMemory = "memory"

// MemoryStorage keeps generations in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]*memoryCache
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		caches: make(map[string]*memoryCache),
	}
}

// Open returns the named generation, creating it if absent.
func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caches[name]
	if !ok {
		c = &memoryCache{name: name, entries: make(map[string]*Entry)}
		s.caches[name] = c
	}
	return c, nil
}

// Has reports whether the named generation exists.
func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.caches[name]
	return ok, nil
}

// Keys lists all generation names in sorted order.
func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a generation. Handles opened earlier keep working on the
// detached generation.
func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.caches[name]; !ok {
		return false, nil
	}
	delete(s.caches, name)
	return true, nil
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(context.Context) error {
	return nil
}

type memoryCache struct {
	name    string
	mu      sync.RWMutex
	entries map[string]*Entry
}

func (c *memoryCache) Name() string {
	return c.name
}

func (c *memoryCache) Match(_ context.Context, key Key) (*Entry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key.String()]
	c.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(backendMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(backendMemory).Inc()
	return entry.Clone(), nil
}

func (c *memoryCache) Put(_ context.Context, key Key, entry *Entry) error {
	if err := validateRecord(key, entry); err != nil {
		CacheErrors.WithLabelValues(backendMemory, "put").Inc()
		return err
	}

	c.mu.Lock()
	c.entries[key.String()] = entry.Clone()
	c.mu.Unlock()

	EntriesWritten.WithLabelValues(backendMemory).Inc()
	return nil
}

func (c *memoryCache) PutAll(_ context.Context, records []Record) error {
	staged := make(map[string]*Entry, len(records))
	for i, rec := range records {
		if err := validateRecord(rec.Key, rec.Entry); err != nil {
			CacheErrors.WithLabelValues(backendMemory, "put").Inc()
			return fmt.Errorf("record %d (%s): %w", i, rec.Key, err)
		}
		staged[rec.Key.String()] = rec.Entry.Clone()
	}

	c.mu.Lock()
	for field, entry := range staged {
		c.entries[field] = entry
	}
	c.mu.Unlock()

	EntriesWritten.WithLabelValues(backendMemory).Add(float64(len(staged)))
	return nil
}

func (c *memoryCache) Len(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}
