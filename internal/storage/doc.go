// Package storage persists encoded session snapshots between delivery
// service restarts.
//
// A Store maps a session identifier to the opaque byte stream produced
// by the snapshot codec. Three backends are provided: an in-memory map
// for tests and ephemeral deployments, a directory of flat files, and
// a SQLite database. All backends serialize access per store instance
// and tolerate concurrent use from multiple goroutines.
package storage
