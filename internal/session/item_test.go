package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor/internal/expr"
	"proctor/internal/model"
	"proctor/pkg/qti"
)

const itemDoc = `
identifier: ITEM01
title: Item session fixture
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
              itemSessionControl:
                maxAttempts: 2
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

func newItemFixture(t *testing.T) *ItemSession {
	t.Helper()
	test, err := model.Parse([]byte(itemDoc))
	require.NoError(t, err)
	ref := test.TestParts[0].Sections[0].ItemRefs()[0]
	return NewItemSession(ref, 0, model.NavigationLinear, model.SubmissionIndividual,
		ref.ItemSessionControl, ref.TimeLimits, expr.NewEvaluator())
}

func TestItemSessionLifecycle(t *testing.T) {
	item := newItemFixture(t)
	assert.Equal(t, ItemNotSelected, item.State())
	assert.Equal(t, CompletionNotAttempted, item.CompletionStatus())
	assert.Equal(t, "Q01.0", item.String())

	require.NoError(t, item.Begin())
	assert.Equal(t, ItemInitial, item.State())
	score, _ := item.Vars().Get("SCORE")
	assert.Equal(t, qti.Float(0), score)

	assert.ErrorContains(t, item.Begin(), "already begun")

	require.NoError(t, item.BeginAttempt())
	assert.Equal(t, ItemInteracting, item.State())
	assert.True(t, item.Attempting())
	assert.Equal(t, CompletionUnknown, item.CompletionStatus())

	assert.True(t, IsItemCode(item.BeginAttempt(), ItemStateViolation))

	err := item.EndAttempt(map[string]qti.Value{"RESPONSE": qti.Identifier("choice_a")}, true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, item.NumAttempts())
	assert.False(t, item.Attempting())
	assert.Equal(t, CompletionCompleted, item.CompletionStatus())
	assert.Equal(t, ItemSuspended, item.State())
	score, _ = item.Vars().Get("SCORE")
	assert.Equal(t, qti.Float(1), score)

	// Second attempt exhausts maxAttempts and closes the session.
	require.NoError(t, item.BeginAttempt())
	err = item.EndAttempt(map[string]qti.Value{"RESPONSE": qti.Identifier("choice_b")}, true, false)
	require.NoError(t, err)
	assert.Equal(t, ItemClosed, item.State())
	score, _ = item.Vars().Get("SCORE")
	assert.Equal(t, qti.Float(0), score)

	assert.True(t, IsItemCode(item.BeginAttempt(), ItemAttemptsOverflow))
}

func TestItemSessionCandidateSuspend(t *testing.T) {
	item := newItemFixture(t)
	require.NoError(t, item.Begin())
	require.NoError(t, item.BeginAttempt())

	require.NoError(t, item.EndCandidateSession())
	assert.Equal(t, ItemSuspended, item.State())
	assert.True(t, item.Attempting())

	require.NoError(t, item.BeginCandidateSession())
	assert.Equal(t, ItemInteracting, item.State())

	assert.True(t, IsItemCode(item.BeginCandidateSession(), ItemStateViolation))
}

func TestItemSessionResponseValidation(t *testing.T) {
	item := newItemFixture(t)
	require.NoError(t, item.Begin())
	require.NoError(t, item.BeginAttempt())

	err := item.EndAttempt(map[string]qti.Value{"BOGUS": qti.Identifier("x")}, true, false)
	assert.True(t, IsItemCode(err, ItemInvalidResponse))

	err = item.EndAttempt(map[string]qti.Value{"RESPONSE": qti.Integer(3)}, true, false)
	assert.True(t, IsItemCode(err, ItemInvalidResponse))

	// A failed commit leaves the attempt open.
	assert.True(t, item.Attempting())
	assert.Equal(t, 0, item.NumAttempts())

	require.NoError(t, item.EndAttempt(map[string]qti.Value{"RESPONSE": qti.Identifier("choice_c")}, true, false))
	assert.Equal(t, 1, item.NumAttempts())
}

func TestItemSessionSkippingForbidden(t *testing.T) {
	item := newItemFixture(t)
	item.Control().AllowSkipping = false
	require.NoError(t, item.Begin())
	require.NoError(t, item.BeginAttempt())

	err := item.EndAttempt(nil, true, false)
	assert.True(t, IsItemCode(err, ItemSkippingForbidden))

	err = item.EndAttempt(map[string]qti.Value{"RESPONSE": nil}, true, false)
	assert.True(t, IsItemCode(err, ItemSkippingForbidden))

	require.NoError(t, item.EndAttempt(map[string]qti.Value{"RESPONSE": qti.Identifier("choice_a")}, true, false))
}

func TestItemSessionSuppressedProcessing(t *testing.T) {
	item := newItemFixture(t)
	require.NoError(t, item.Begin())
	require.NoError(t, item.BeginAttempt())

	require.NoError(t, item.EndAttempt(map[string]qti.Value{"RESPONSE": qti.Identifier("choice_a")}, false, false))
	assert.Equal(t, CompletionCompleted, item.CompletionStatus())
	score, _ := item.Vars().Get("SCORE")
	assert.Equal(t, qti.Float(0), score, "suppressed processing keeps the default")
}

func TestItemSessionDeferredAttempt(t *testing.T) {
	item := newItemFixture(t)
	require.NoError(t, item.Begin())
	require.NoError(t, item.BeginAttempt())
	require.NoError(t, item.EndCandidateSession())

	require.NoError(t, item.endDeferredAttempt(map[string]qti.Value{"RESPONSE": qti.Identifier("choice_a")}))
	assert.Equal(t, ItemClosed, item.State())
	assert.Equal(t, 1, item.NumAttempts())
	assert.Equal(t, CompletionCompleted, item.CompletionStatus())
	score, _ := item.Vars().Get("SCORE")
	assert.Equal(t, qti.Float(1), score)
}

func TestItemSessionTime(t *testing.T) {
	item := newItemFixture(t)
	require.NoError(t, item.Begin())

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	item.setTimeReference(t0)
	require.NoError(t, item.BeginAttempt())

	item.SetTime(t0.Add(30 * time.Second))
	assert.Equal(t, qti.DurationOf(30*time.Second), item.Duration())

	// Suspended sessions do not accumulate time.
	require.NoError(t, item.EndCandidateSession())
	item.SetTime(t0.Add(90 * time.Second))
	assert.Equal(t, qti.DurationOf(30*time.Second), item.Duration())

	require.NoError(t, item.BeginCandidateSession())
	item.SetTime(t0.Add(100 * time.Second))
	assert.Equal(t, qti.DurationOf(40*time.Second), item.Duration())
}

func TestItemSessionMaxTimeCloses(t *testing.T) {
	test, err := model.Parse([]byte(itemDoc))
	require.NoError(t, err)
	ref := test.TestParts[0].Sections[0].ItemRefs()[0]
	max := qti.DurationOf(time.Minute)
	limits := &model.TimeLimits{MaxTime: &max}
	item := NewItemSession(ref, 0, model.NavigationLinear, model.SubmissionIndividual,
		ref.ItemSessionControl, limits, expr.NewEvaluator())
	require.NoError(t, item.Begin())

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	item.setTimeReference(t0)
	require.NoError(t, item.BeginAttempt())

	item.SetTime(t0.Add(2 * time.Minute))
	assert.Equal(t, max, item.Duration(), "duration clamps to the maximum")
	assert.Equal(t, ItemClosed, item.State())
	assert.Equal(t, CompletionIncomplete, item.CompletionStatus())
}

func TestItemSessionMinTime(t *testing.T) {
	test, err := model.Parse([]byte(itemDoc))
	require.NoError(t, err)
	ref := test.TestParts[0].Sections[0].ItemRefs()[0]
	min := qti.DurationOf(time.Minute)
	limits := &model.TimeLimits{MinTime: &min}
	item := NewItemSession(ref, 0, model.NavigationLinear, model.SubmissionIndividual,
		ref.ItemSessionControl, limits, expr.NewEvaluator())
	require.NoError(t, item.Begin())
	require.NoError(t, item.BeginAttempt())

	err = item.EndAttempt(map[string]qti.Value{"RESPONSE": qti.Identifier("choice_a")}, true, false)
	assert.True(t, IsItemCode(err, ItemDurationUnderflow))

	// Nonlinear navigation does not enforce the minimum.
	nonlinear := NewItemSession(ref, 1, model.NavigationNonLinear, model.SubmissionIndividual,
		ref.ItemSessionControl, limits, expr.NewEvaluator())
	require.NoError(t, nonlinear.Begin())
	require.NoError(t, nonlinear.BeginAttempt())
	require.NoError(t, nonlinear.EndAttempt(map[string]qti.Value{"RESPONSE": qti.Identifier("choice_a")}, true, false))
}

func TestItemSessionEndAbandonsAttempt(t *testing.T) {
	item := newItemFixture(t)
	require.NoError(t, item.Begin())
	require.NoError(t, item.BeginAttempt())

	item.End()
	assert.Equal(t, ItemClosed, item.State())
	assert.Equal(t, CompletionIncomplete, item.CompletionStatus())

	item.End()
	assert.Equal(t, ItemClosed, item.State())
}

func TestItemSessionSimultaneousSingleAttempt(t *testing.T) {
	test, err := model.Parse([]byte(itemDoc))
	require.NoError(t, err)
	ref := test.TestParts[0].Sections[0].ItemRefs()[0]
	item := NewItemSession(ref, 0, model.NavigationNonLinear, model.SubmissionSimultaneous,
		ref.ItemSessionControl, nil, expr.NewEvaluator())
	require.NoError(t, item.Begin())
	require.NoError(t, item.BeginAttempt())
	require.NoError(t, item.EndAttempt(map[string]qti.Value{"RESPONSE": qti.Identifier("choice_a")}, true, false))

	// maxAttempts is 2, but simultaneous submission caps attempts at 1.
	assert.Equal(t, ItemClosed, item.State())
	assert.True(t, IsItemCode(item.BeginAttempt(), ItemAttemptsOverflow))
}
