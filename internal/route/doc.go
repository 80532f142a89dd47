// Package route materializes an assessment test into the flat,
// ordered sequence of item occurrences a candidate can visit.
//
// Build walks the test tree in document order, applies section
// selection, and produces one Item per occurrence of each item
// reference, enriched with the effective rules gathered from its
// section chain: preconditions of a section gate its first Item,
// branch rules of a section fire from its last Item, and the nearest
// itemSessionControl wins.
//
// A Route is immutable after Build; only its cursor moves. The cursor
// ranges over [0, Count()], where Count() means the route is
// exhausted.
package route
