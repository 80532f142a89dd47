// Package logging provides structured logging for the delivery service
// and its command line tools.
//
// It is a thin facade over Go's slog package. Every entry carries a
// subsystem identifier so the serve, library, storage and session layers
// can be told apart in one stream:
//
//	logging.Initialize(logging.LevelInfo, os.Stderr)
//	logging.Info("Library", "loaded %d assessments from %s", n, path)
//	logging.Error("Storage", err, "persisting session %s", id)
//
// When the server speaks the stdio transport, stdout belongs to the
// protocol; callers must initialize with stderr (or a file) as output.
package logging
