package session

import (
	"context"
	"sync"
	"time"
)

// Store keeps per-session key/value data.
type Store interface {
	Get(ctx context.Context, sid, key string) ([]byte, bool, error)
	Set(ctx context.Context, sid, key string, value []byte) error
	// Pop returns the value and removes it in one step.
	Pop(ctx context.Context, sid, key string) ([]byte, bool, error)
	Destroy(ctx context.Context, sid string) error
}

type memoryEntry struct {
	values  map[string][]byte
	expires time.Time
}

// MemoryStore is an in-process Store. Sessions expire ttl after they were
// last read or written.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, sid, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(sid)
	if !ok {
		return nil, false, nil
	}
	v, ok := e.values[key]
	return v, ok, nil
}

// live returns the unexpired entry for sid and slides its expiry forward.
// Callers hold the write lock.
func (s *MemoryStore) live(sid string) (*memoryEntry, bool) {
	e, ok := s.sessions[sid]
	now := s.now()
	if !ok || now.After(e.expires) {
		return nil, false
	}
	e.expires = now.Add(s.ttl)
	return e, true
}

func (s *MemoryStore) Set(_ context.Context, sid, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sid]
	if !ok || s.now().After(e.expires) {
		e = &memoryEntry{values: make(map[string][]byte)}
		s.sessions[sid] = e
	}
	e.values[key] = value
	e.expires = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Pop(_ context.Context, sid, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(sid)
	if !ok {
		return nil, false, nil
	}
	v, ok := e.values[key]
	delete(e.values, key)
	return v, ok, nil
}

func (s *MemoryStore) Destroy(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.now()
	for sid, e := range s.sessions {
		if now.After(e.expires) {
			delete(s.sessions, sid)
			n++
		}
	}
	return n
}
