package session

import (
	"context"
	"sync"
)

// MemoryDismissalStore is an in-process DismissalStore for tests.
type MemoryDismissalStore struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

// NewMemoryDismissalStore constructs an empty store.
func NewMemoryDismissalStore() *MemoryDismissalStore {
	return &MemoryDismissalStore{sets: make(map[string]map[string]struct{})}
}

// Dismiss adds the request id to the session's set.
func (s *MemoryDismissalStore) Dismiss(ctx context.Context, sessionKey, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets[sessionKey] == nil {
		s.sets[sessionKey] = make(map[string]struct{})
	}
	s.sets[sessionKey][requestID] = struct{}{}
	return nil
}

// Reopen removes the request id from the session's set.
func (s *MemoryDismissalStore) Reopen(ctx context.Context, sessionKey, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets[sessionKey], requestID)
	return nil
}

// IsDismissed reports membership.
func (s *MemoryDismissalStore) IsDismissed(ctx context.Context, sessionKey, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[sessionKey][requestID]
	return ok, nil
}

// Dismissed returns a copy of the session's set.
func (s *MemoryDismissalStore) Dismissed(ctx context.Context, sessionKey string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(s.sets[sessionKey]))
	for id := range s.sets[sessionKey] {
		set[id] = struct{}{}
	}
	return set, nil
}
