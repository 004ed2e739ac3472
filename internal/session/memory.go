package session

import (
	"sync"
	"time"
)

// MemoryStore keeps entries for the life of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Entry)}
}

// Get returns the entry for key unless it is missing or expired.
func (s *MemoryStore) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok || v.Expired(time.Now()) {
		return Entry{}, false
	}
	return v, true
}

func (s *MemoryStore) Set(key string, value Entry) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}
