package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned when the requested session identifier
// has no persisted snapshot.
var ErrSessionNotFound = errors.New("session not found")

// Store persists session snapshots keyed by session identifier.
type Store interface {
	// Persist writes the snapshot for the given session, replacing any
	// previous one.
	Persist(ctx context.Context, sessionID string, snapshot []byte) error

	// Retrieve returns the stored snapshot, or ErrSessionNotFound.
	Retrieve(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes the stored snapshot, or returns ErrSessionNotFound
	// when there is none.
	Delete(ctx context.Context, sessionID string) error

	// Exists reports whether a snapshot is stored for the session.
	Exists(ctx context.Context, sessionID string) (bool, error)

	// List returns the identifiers of all stored sessions.
	List(ctx context.Context) ([]string, error)
}

// validateSessionID rejects identifiers that no backend can key on.
func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	return nil
}

// sanitizeFilename maps a session identifier onto a name that is safe
// for filesystem operations. Letters, digits, hyphens and underscores
// pass through unchanged, so the UUIDs issued by the delivery service
// keep their readable form on disk.
func sanitizeFilename(sessionID string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, sessionID)

	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unnamed"
	}
	return sanitized
}
