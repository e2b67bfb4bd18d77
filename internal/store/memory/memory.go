// Package memory provides an in-process Store for single-instance deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"authplug/internal/store"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// DefaultCleanupInterval is how often expired entries are swept
const DefaultCleanupInterval = 5 * time.Minute

// Store keeps values in a map guarded by a mutex
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
}

// Option configures a Store
type Option func(*Store)

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// New creates an empty memory store and starts the background cleanup
// goroutine. Close stops it.
func New(opts ...Option) *Store {
	s := &Store{
		entries:         make(map[string]entry),
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Close stops the cleanup goroutine and waits for it to finish.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	<-s.cleanupDone
	return nil
}

func (s *Store) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired removes every expired entry and returns how many were dropped.
func (s *Store) cleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Get returns the value for key
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, store.ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value under key
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Delete removes key
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet swept
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
