package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Contents are lost when
// the process exits.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]byte),
	}
}

// Persist stores a copy of the snapshot under the session ID.
func (s *MemoryStore) Persist(ctx context.Context, sessionID string, snapshot []byte) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Callers reuse their encode buffers, so the stored bytes must not
	// alias them.
	stored := make([]byte, len(snapshot))
	copy(stored, snapshot)
	s.snapshots[sessionID] = stored
	return nil
}

// Retrieve returns a copy of the stored snapshot.
func (s *MemoryStore) Retrieve(ctx context.Context, sessionID string) ([]byte, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.snapshots[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	snapshot := make([]byte, len(stored))
	copy(snapshot, stored)
	return snapshot, nil
}

// Delete removes the stored snapshot.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.snapshots, sessionID)
	return nil
}

// Exists reports whether a snapshot is stored for the session.
func (s *MemoryStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	if err := validateSessionID(sessionID); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.snapshots[sessionID]
	return ok, nil
}

// List returns all stored session IDs in lexical order.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
