// Package idempotency replays the first response to a request carrying an
// Idempotency-Key header.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInProgress is returned by Load while the first request holding a key
// has not finished.
var ErrInProgress = errors.New("idempotency: request in progress")

// Record is a captured response.
type Record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Store persists reservations and captured responses.
type Store interface {
	// Reserve claims key for ttl. It reports false when the key is already
	// claimed or completed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Load returns the completed record, nil when the key is unknown, or
	// ErrInProgress while it is reserved.
	Load(ctx context.Context, key string) (*Record, error)
	Save(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type memoryEntry struct {
	record  *Record
	expires time.Time
}

// MemoryStore keeps records in process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if s.now().After(e.expires) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{expires: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return nil, nil
	}
	if e.record == nil {
		return nil, ErrInProgress
	}
	rec := *e.record
	rec.Body = append([]byte(nil), e.record.Body...)
	return &rec, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Body = append([]byte(nil), rec.Body...)
	s.entries[key] = memoryEntry{record: &rec, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
