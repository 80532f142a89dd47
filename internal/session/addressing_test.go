package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor/pkg/qti"
)

const occurrenceDoc = `
identifier: OCC01
title: Occurrence addressing fixture
outcomeDeclarations:
  - identifier: TOTAL
    cardinality: single
    baseType: float
    defaultValue: 0.0
testParts:
  - identifier: P1
    navigationMode: linear
    submissionMode: individual
    sections:
      - identifier: S1
        selection:
          select: 2
          withReplacement: true
        parts:
          - item:
              identifier: Q01
              href: items/q01.yaml
              itemSessionControl:
                maxAttempts: 0
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
                  correctResponse: choice_a
              outcomeDeclarations:
                - identifier: SCORE
                  cardinality: single
                  baseType: float
                  defaultValue: 0.0
              responseProcessing:
                template: match_correct
`

func TestGetGlobalScope(t *testing.T) {
	s := startSession(t, linearDoc, nil)

	v, err := s.Get("TOTAL")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(0), v)

	v, err = s.Get("NOPE")
	require.NoError(t, err)
	assert.Nil(t, v, "unknown globals read as null")

	_, err = s.Get("..")
	assert.True(t, IsCode(err, CodeOutOfRange))
}

func TestGetItemBuiltins(t *testing.T) {
	s := startSession(t, linearDoc, nil)
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_a"), false))

	v, err := s.Get("Q01.numAttempts")
	require.NoError(t, err)
	assert.Equal(t, qti.Integer(1), v)

	v, err = s.Get("Q01.completionStatus")
	require.NoError(t, err)
	assert.Equal(t, qti.Identifier(CompletionCompleted), v)

	v, err = s.Get("Q01.RESPONSE")
	require.NoError(t, err)
	assert.Equal(t, qti.Identifier("choice_a"), v)

	v, err = s.Get("Q01.UNDECLARED")
	require.NoError(t, err)
	assert.Nil(t, v, "unknown item variables read as null")
}

func TestGetIndividualUnresolvedOccurrence(t *testing.T) {
	s := startSession(t, linearDoc, nil)

	// No attempt has been committed: without an explicit sequence the
	// reference stays unresolved in individual submission.
	v, err := s.Get("Q01.RESPONSE")
	require.NoError(t, err)
	assert.Nil(t, v)

	// An explicit sequence addresses the occurrence directly.
	v, err = s.Get("Q01.1.numAttempts")
	require.NoError(t, err)
	assert.Equal(t, qti.Integer(0), v)
}

func TestGetOccurrenceSequence(t *testing.T) {
	s := startSession(t, occurrenceDoc, nil)
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_a"), false))
	require.NoError(t, s.MoveNext())
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_b"), false))

	// The bare name follows the most recent committed occurrence.
	v, err := s.Get("Q01.RESPONSE")
	require.NoError(t, err)
	assert.Equal(t, qti.Identifier("choice_b"), v)

	// Sequences are 1-based.
	v, err = s.Get("Q01.1.RESPONSE")
	require.NoError(t, err)
	assert.Equal(t, qti.Identifier("choice_a"), v)

	v, err = s.Get("Q01.2.SCORE")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(0), v)

	// A sequence beyond the route reads as null.
	v, err = s.Get("Q01.3.RESPONSE")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSetVariables(t *testing.T) {
	s := startSession(t, occurrenceDoc, nil)

	require.NoError(t, s.Set("TOTAL", qti.Float(5)))
	v, _ := s.Get("TOTAL")
	assert.Equal(t, qti.Float(5), v)

	err := s.Set("TOTAL", qti.Identifier("oops"))
	assert.True(t, IsCode(err, CodeOutOfRange))

	err = s.Set("NOPE", qti.Float(1))
	assert.True(t, IsCode(err, CodeUnknownVariable))

	require.NoError(t, s.Set("Q01.1.SCORE", qti.Float(2)))
	v, err = s.Get("Q01.1.SCORE")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(2), v)

	// Built-ins are not writable.
	err = s.Set("Q01.1.numAttempts", qti.Integer(3))
	assert.True(t, IsCode(err, CodeUnknownVariable))

	err = s.Set("Q09.1.SCORE", qti.Float(1))
	assert.True(t, IsCode(err, CodeUnknownVariable))
}

func TestUnsetVariables(t *testing.T) {
	s := startSession(t, occurrenceDoc, nil)
	require.NoError(t, s.Set("TOTAL", qti.Float(5)))

	require.NoError(t, s.Unset("TOTAL"))
	v, err := s.Get("TOTAL")
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.True(t, IsCode(s.Unset("NOPE"), CodeUnknownVariable))
	assert.True(t, IsCode(s.Unset("Q01.SCORE"), CodeOutOfScope))
}

func TestSimultaneousOccurrenceFallback(t *testing.T) {
	s := startSession(t, nonlinearDoc, nil)

	// Before any committed update, simultaneous submission falls back
	// to the first occurrence instead of staying unresolved.
	v, err := s.Get("Q01.numAttempts")
	require.NoError(t, err)
	assert.Equal(t, qti.Integer(0), v)
}
