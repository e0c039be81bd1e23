package cache

import "time"

// Entry is a single cached value with TTL metadata.
type Entry[V any] struct {
	// Key is the cache key (typically a SHA256 digest of the inputs).
	Key string

	// Value is the cached value.
	Value V

	// CreatedAt is when the entry was stored.
	CreatedAt time.Time

	// ExpiresAt is when the entry stops being served.
	ExpiresAt time.Time
}

func newEntry[V any](key string, value V, now time.Time, ttl time.Duration) *Entry[V] {
	return &Entry[V]{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the entry has expired at now.
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Age returns the time since the entry was created.
func (e *Entry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// TimeUntilExpiration returns the remaining lifetime, or 0 if already expired.
func (e *Entry[V]) TimeUntilExpiration(now time.Time) time.Duration {
	remaining := e.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
