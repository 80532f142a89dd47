// Package qti provides the QTI value system shared by the whole engine:
// base types, cardinalities, scalar and container values, ISO-8601
// durations, and variable identifier parsing.
//
// # Values
//
// A runtime value implements the Value interface. Scalars (Identifier,
// Boolean, Integer, Float, String, Point, Pair, DirectedPair, Duration,
// File, URI) carry single cardinality. Container holds multiple or
// ordered cardinality sequences of one base type; Record maps field
// names to scalars of arbitrary base types.
//
// NULL is represented by a nil Value. Under QTI semantics an empty
// container, an empty record, and an empty string also count as NULL;
// use IsNull to test for either form.
//
// # Identifiers
//
// Variable identifiers address variables across scopes:
//
//	SCORE        a variable in the current (global) scope
//	Q01.SCORE    a variable of item Q01
//	Q01.2.SCORE  a variable of the second occurrence of item Q01
//
// ParseVariableID splits an identifier into its parts and validates the
// QTI identifier lexical form.
package qti
