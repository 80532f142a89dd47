// Package model holds the static description of an assessment test:
// the tree of test parts, sections, and item references together with
// their variable declarations, control attributes, time limits, and
// processing rules.
//
// The tree is read-only at runtime. Sessions hold non-owning references
// into it and never mutate it, so one loaded test can safely back many
// concurrent sessions.
//
// # Documents
//
// Tests are authored as YAML documents that mirror the tree one to one.
// A minimal document looks like this:
//
//	identifier: demo
//	title: Demo test
//	outcomeDeclarations:
//	  - identifier: SCORE
//	    cardinality: single
//	    baseType: float
//	    defaultValue: ["0"]
//	testParts:
//	  - identifier: P1
//	    navigationMode: linear
//	    submissionMode: individual
//	    sections:
//	      - identifier: S1
//	        parts:
//	          - item:
//	              identifier: Q1
//	              responseDeclarations:
//	                - identifier: RESPONSE
//	                  cardinality: single
//	                  baseType: identifier
//	                  correctResponse: ["choiceA"]
//	              outcomeDeclarations:
//	                - identifier: SCORE
//	                  cardinality: single
//	                  baseType: float
//	                  defaultValue: ["0"]
//	              responseProcessing:
//	                template: match_correct
//
// Load reads and validates such a document; Parse does the same from a
// byte slice.
//
// # Seeker
//
// The Seeker indexes the components of one tree by class name in
// document order. The snapshot codec uses it to refer to model elements
// by a compact (class, index) pair instead of by identifier.
package model
