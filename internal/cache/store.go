package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Common cache errors.
var (
	ErrCacheNotFound   = errors.New("cache entry not found")
	ErrCacheExpired    = errors.New("cache entry expired")
	ErrInvalidCacheKey = errors.New("cache key cannot be empty")
)

// Store is a TTL cache of V values. It is safe for concurrent use.
type Store[V any] struct {
	ttl time.Duration
	now func() time.Time

	// mu protects entries.
	mu      sync.RWMutex
	entries map[string]*Entry[V]
}

// New returns an empty store whose entries live for ttl.
func New[V any](ttl time.Duration) (*Store[V], error) {
	if err := ValidateTTL(ttl); err != nil {
		return nil, err
	}
	return &Store[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*Entry[V]),
	}, nil
}

// Get returns the value stored under key.
// Returns ErrCacheNotFound if the entry doesn't exist and ErrCacheExpired if
// it has expired; expired entries are dropped.
func (s *Store[V]) Get(key string) (V, error) {
	entry, err := s.Lookup(key)
	if err != nil {
		var zero V
		return zero, err
	}
	return entry.Value, nil
}

// Lookup is Get returning a copy of the whole entry.
func (s *Store[V]) Lookup(key string) (Entry[V], error) {
	if key == "" {
		return Entry[V]{}, ErrInvalidCacheKey
	}

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return Entry[V]{}, ErrCacheNotFound
	}

	if entry.IsExpired(s.now()) {
		s.mu.Lock()
		// Only drop the entry we saw; a concurrent Set may have replaced it.
		if s.entries[key] == entry {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return Entry[V]{}, ErrCacheExpired
	}
	return *entry, nil
}

// Now returns the store's current time, the reference for entry ages.
func (s *Store[V]) Now() time.Time { return s.now() }

// Set stores value under key, replacing any existing entry.
func (s *Store[V]) Set(key string, value V) error {
	if key == "" {
		return ErrInvalidCacheKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = newEntry(key, value, s.now(), s.ttl)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store[V]) Delete(key string) error {
	if key == "" {
		return ErrInvalidCacheKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Clear removes every entry.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
}

// CleanupExpired drops expired entries and returns how many were removed.
func (s *Store[V]) CleanupExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.IsExpired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including expired ones not yet dropped.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// TTL returns the lifetime given to new entries.
func (s *Store[V]) TTL() time.Duration {
	return s.ttl
}

// String describes the store for logs.
func (s *Store[V]) String() string {
	return fmt.Sprintf("cache(ttl=%s, entries=%d)", FormatDuration(s.ttl), s.Len())
}
