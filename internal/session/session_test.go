package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor/internal/expr"
	"proctor/internal/model"
	"proctor/internal/route"
	"proctor/pkg/qti"
)

const linearDoc = `
identifier: LIN01
title: Linear individual fixture
outcomeDeclarations:
  - identifier: TOTAL
    cardinality: single
    baseType: float
    defaultValue: 0.0
outcomeProcessing:
  - setOutcomeValue:
      identifier: TOTAL
      expression:
        sum:
          - {variable: Q01.SCORE}
          - {variable: Q02.SCORE}
testParts:
  - identifier: P1
    navigationMode: linear
    submissionMode: individual
    sections:
      - identifier: S1
        parts:
          - item:
              identifier: Q01
              href: items/q01.yaml
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
          - item:
              identifier: Q02
              href: items/q02.yaml
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
                  correctResponse: choice_b
              outcomeDeclarations:
                - identifier: SCORE
                  cardinality: single
                  baseType: float
                  defaultValue: 0.0
              responseProcessing:
                template: match_correct
`

func buildSession(t *testing.T, doc string, opts *Options) *TestSession {
	t.Helper()
	test, err := model.Parse([]byte(doc))
	require.NoError(t, err)
	r, err := route.Build(test)
	require.NoError(t, err)
	return New(test, r, expr.NewEvaluator(), opts)
}

func startSession(t *testing.T, doc string, opts *Options) *TestSession {
	t.Helper()
	s := buildSession(t, doc, opts)
	require.NoError(t, s.Begin())
	return s
}

func identifierResponse(v string) map[string]qti.Value {
	return map[string]qti.Value{"RESPONSE": qti.Identifier(v)}
}

func TestBeginTestSession(t *testing.T) {
	s := buildSession(t, linearDoc, nil)
	assert.Equal(t, TestInitial, s.State())

	require.NoError(t, s.Begin())
	assert.Equal(t, TestInteracting, s.State())
	assert.Equal(t, []string{"P1"}, s.VisitedTestParts())

	// A non-adaptive test materializes every item session up front.
	assert.Equal(t, 2, s.Sessions().Len())
	for _, item := range s.Sessions().All() {
		assert.Equal(t, ItemInitial, item.State())
	}

	for _, scope := range []string{"LIN01", "P1", "S1"} {
		assert.True(t, s.Durations().Has(scope), "scope %s", scope)
	}

	err := s.Begin()
	assert.True(t, IsCode(err, CodeStateViolation))
}

func TestLinearIndividualFlow(t *testing.T) {
	s := startSession(t, linearDoc, nil)

	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_a"), false))

	total, err := s.Get("TOTAL")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(1), total)
	assert.Equal(t, map[string]int{"Q01": 0}, s.LastOccurrenceUpdate())

	item, ok := s.Sessions().Get(s.Route().Items()[0].ItemRef, 0)
	require.True(t, ok)
	assert.Equal(t, ItemClosed, item.State(), "default control allows one attempt")
	assert.Equal(t, CompletionCompleted, item.CompletionStatus())

	require.NoError(t, s.MoveNext())
	assert.Equal(t, 1, s.Route().Position())

	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_c"), false))
	total, err = s.Get("TOTAL")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(1), total, "a wrong response scores zero")

	// Advancing past the last item closes the session.
	require.NoError(t, s.MoveNext())
	assert.Equal(t, TestClosed, s.State())
	assert.True(t, s.Route().Ended())

	assert.True(t, IsCode(s.End(), CodeStateViolation))
	assert.True(t, IsCode(s.MoveNext(), CodeStateViolation))
	assert.True(t, IsCode(s.BeginAttempt(false), CodeStateViolation))
}

func TestEndTestSessionClosesItems(t *testing.T) {
	s := startSession(t, linearDoc, nil)
	require.NoError(t, s.BeginAttempt(false))

	require.NoError(t, s.End())
	assert.Equal(t, TestClosed, s.State())
	for _, item := range s.Sessions().All() {
		assert.Equal(t, ItemClosed, item.State())
	}

	// The abandoned attempt is incomplete, the untouched item stays
	// not attempted.
	first := s.Sessions().All()[0]
	second := s.Sessions().All()[1]
	assert.Equal(t, CompletionIncomplete, first.CompletionStatus())
	assert.Equal(t, CompletionNotAttempted, second.CompletionStatus())
}

func TestSuspendResume(t *testing.T) {
	s := startSession(t, linearDoc, nil)
	require.NoError(t, s.BeginAttempt(false))

	require.NoError(t, s.Suspend())
	assert.Equal(t, TestSuspended, s.State())
	item := s.CurrentItemSession()
	assert.Equal(t, ItemSuspended, item.State())
	assert.True(t, item.Attempting())

	// Suspending twice is a no-op.
	require.NoError(t, s.Suspend())
	assert.Equal(t, TestSuspended, s.State())

	assert.True(t, IsCode(s.MoveNext(), CodeStateViolation))
	assert.True(t, IsCode(s.EndAttempt(identifierResponse("choice_a"), false), CodeStateViolation))

	require.NoError(t, s.Resume())
	assert.Equal(t, TestInteracting, s.State())
	assert.Equal(t, ItemInteracting, item.State(), "the open attempt resumes with the session")

	require.NoError(t, s.EndAttempt(identifierResponse("choice_a"), false))

	assert.True(t, IsCode(s.Resume(), CodeStateViolation))
}

func TestSuspendedSessionCanEnd(t *testing.T) {
	s := startSession(t, linearDoc, nil)
	require.NoError(t, s.Suspend())
	require.NoError(t, s.End())
	assert.Equal(t, TestClosed, s.State())
}

func TestOutcomeProcessingExitTest(t *testing.T) {
	doc := `
identifier: EXIT01
title: Exit test fixture
outcomeDeclarations:
  - identifier: TOTAL
    cardinality: single
    baseType: float
outcomeProcessing:
  - setOutcomeValue:
      identifier: TOTAL
      expression:
        baseValue: {type: float, value: 1.0}
  - exitTest: true
  - setOutcomeValue:
      identifier: TOTAL
      expression:
        baseValue: {type: float, value: 99.0}
testParts:
  - identifier: P1
    navigationMode: linear
    submissionMode: individual
    sections:
      - identifier: S1
        parts:
          - item:
              identifier: Q01
              href: items/q01.yaml
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
`
	s := startSession(t, doc, nil)
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("anything"), false))

	total, err := s.Get("TOTAL")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(1), total, "exitTest stops the remaining rules")
	assert.Equal(t, TestInteracting, s.State(), "exitTest does not close the session")
}

func TestAdaptivePartMaterializesOneItem(t *testing.T) {
	doc := `
identifier: ADP01
title: Adaptive part fixture
outcomeDeclarations:
  - identifier: TOTAL
    cardinality: single
    baseType: float
testParts:
  - identifier: P1
    navigationMode: linear
    submissionMode: individual
    sections:
      - identifier: S1
        parts:
          - item:
              identifier: Q01
              href: items/q01.yaml
              branchRules:
                - target: Q03
                  expression:
                    baseValue: {type: boolean, value: false}
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
          - item:
              identifier: Q02
              href: items/q02.yaml
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
          - item:
              identifier: Q03
              href: items/q03.yaml
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
`
	s := startSession(t, doc, nil)
	assert.True(t, s.TestPartAdaptive("P1"))
	assert.Equal(t, 1, s.Sessions().Len(), "an adaptive part materializes item by item")

	require.NoError(t, s.MoveNext())
	assert.Equal(t, 2, s.Sessions().Len())
}

func TestInitializeAllItemsFlag(t *testing.T) {
	doc := `
identifier: ADP02
title: Adaptive part, eager initialization
outcomeDeclarations:
  - identifier: TOTAL
    cardinality: single
    baseType: float
testParts:
  - identifier: P1
    navigationMode: linear
    submissionMode: individual
    sections:
      - identifier: S1
        parts:
          - item:
              identifier: Q01
              href: items/q01.yaml
              preConditions:
                - expression:
                    baseValue: {type: boolean, value: true}
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
          - item:
              identifier: Q02
              href: items/q02.yaml
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
`
	s := startSession(t, doc, &Options{Config: InitializeAllItems})
	assert.Equal(t, 2, s.Sessions().Len())
}

func TestSessionEvents(t *testing.T) {
	var ops []string
	s := startSession(t, linearDoc, &Options{ID: "sess-1", OnEvent: func(ev Event) {
		assert.Equal(t, "sess-1", ev.Session)
		ops = append(ops, ev.Op)
	}})
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_a"), false))
	require.NoError(t, s.MoveNext())
	assert.Equal(t, []string{"beginTestSession", "beginAttempt", "endAttempt", "moveNext"}, ops)
}

func TestConfigHas(t *testing.T) {
	cfg := ForceBranching | PathTracking
	assert.True(t, cfg.Has(ForceBranching))
	assert.True(t, cfg.Has(PathTracking))
	assert.False(t, cfg.Has(ForcePreconditions))
	assert.False(t, cfg.Has(AlwaysAllowJumps))
}
