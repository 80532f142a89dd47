// Package session drives one candidate through an assessment test.
//
// A TestSession owns the mutable runtime of one delivery: the route
// cursor, one ItemSession per visited item occurrence, the duration
// ledger for the test and its parts and sections, the pending
// response queue of simultaneous-submission parts, and the global
// outcome variables. The assessment model itself stays read-only and
// is shared between sessions.
//
// The driver is single-goroutine by contract. Callers serialize
// access per session and feed wall-clock observations through SetTime
// before each operation; the engine never reads the clock itself.
//
// Faults form a closed taxonomy of codes (see Code). Item session
// faults are mapped to the closest driver code at the boundary and
// keep the original error as the cause.
package session
