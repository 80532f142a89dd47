package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// snapshotExt is the extension given to snapshot files on disk.
const snapshotExt = ".qts"

// FileStore keeps one snapshot file per session under a root directory.
type FileStore struct {
	mu   sync.RWMutex
	root string
}

// NewFileStore creates a store rooted at the given directory. The
// directory is created on the first Persist.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Persist writes the snapshot file, replacing any previous one.
func (s *FileStore) Persist(ctx context.Context, sessionID string, snapshot []byte) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", s.root, err)
	}

	path := s.snapshotPath(sessionID)
	if err := os.WriteFile(path, snapshot, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

// Retrieve reads the snapshot file for the session.
func (s *FileStore) Retrieve(ctx context.Context, sessionID string) ([]byte, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.snapshotPath(sessionID)
	snapshot, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	return snapshot, nil
}

// Delete removes the snapshot file for the session.
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.snapshotPath(sessionID)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to delete snapshot %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a snapshot file is present for the session.
func (s *FileStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	if err := validateSessionID(sessionID); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.snapshotPath(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat snapshot for %s: %w", sessionID, err)
	}
	return true, nil
}

// List returns the session IDs of all snapshot files, in lexical order.
// IDs that needed sanitizing are reported in their on-disk form.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(s.root); errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}

	pattern := filepath.Join(s.root, "*"+snapshotExt)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	ids := make([]string, 0, len(files))
	for _, path := range files {
		ids = append(ids, strings.TrimSuffix(filepath.Base(path), snapshotExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) snapshotPath(sessionID string) string {
	return filepath.Join(s.root, sanitizeFilename(sessionID)+snapshotExt)
}
