// Package snapshot implements the versioned binary codec that
// persists a running test session and restores it later, on the same
// node or another one. The stream stores component references as
// document-order indexes into the assessment test, so decoding needs
// the identical test model the snapshot was taken against.
package snapshot
