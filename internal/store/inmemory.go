package store

import (
	"context"
	"sync"
)

// InMemoryStore keeps session records in process memory. Default when no
// DATABASE_URL is configured; summaries are lost on restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]SessionRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]SessionRecord)}
}

func (s *InMemoryStore) SaveSession(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.SessionID]; exists {
		return nil
	}
	s.records[record.SessionID] = record
	return nil
}

// Get retrieves a stored record; used by tests.
func (s *InMemoryStore) Get(sessionID string) (SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[sessionID]
	return r, ok
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *InMemoryStore) Close() error {
	return nil
}
