package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor/internal/session"
	"proctor/internal/storage"
)

const timedAssessmentDoc = `
identifier: TIMED01
title: Timed fixture
timeLimits:
  maxTime: PT1M
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
`

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestService(t *testing.T) (*Service, *fakeClock, storage.Store) {
	t.Helper()
	lib := newTestLibrary(t, map[string]string{
		"algebra.yaml": algebraDoc,
		"history.yaml": historyDoc,
		"timed.yaml":   timedAssessmentDoc,
	})
	store := storage.NewMemoryStore()
	svc := NewService(lib, store, NewBroadcaster())
	clock := &fakeClock{current: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc.now = clock.Now
	return svc, clock, store
}

func answer(v string) map[string]interface{} {
	return map[string]interface{}{"RESPONSE": v}
}

func TestServiceCreate(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "ALG01", view.Test)
	assert.Equal(t, "interacting", view.State)
	assert.Equal(t, 0, view.Position)
	assert.Equal(t, 2, view.Count)
	assert.Equal(t, "Q01.0", view.Item)

	ok, err := store.Exists(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, ok, "a fresh snapshot lands in the store right away")
}

func TestServiceCreateUnknownAssessment(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "NOPE", 0)
	assert.ErrorIs(t, err, ErrUnknownAssessment)
}

func TestServiceUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.State(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownSession)
	_, err = svc.MoveNext(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownSession)
	_, err = svc.Resume(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.ErrorIs(t, svc.Delete(ctx, "ghost"), ErrUnknownSession)
}

func TestServiceAttemptFlow(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	id := created.ID

	view, err := svc.BeginAttempt(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, "interacting", view.ItemState)
	assert.Equal(t, 1, view.Attempts)

	view, err = svc.EndAttempt(ctx, id, answer("choice_a"), false)
	require.NoError(t, err)
	assert.Equal(t, "closed", view.ItemState, "default control allows one attempt")
	assert.Equal(t, float64(1), view.Outcomes["TOTAL"])

	view, err = svc.MoveNext(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Position)
	assert.Equal(t, "Q02.0", view.Item)

	_, err = svc.BeginAttempt(ctx, id, false)
	require.NoError(t, err)
	view, err = svc.EndAttempt(ctx, id, answer("choice_b"), false)
	require.NoError(t, err)
	assert.Equal(t, float64(2), view.Outcomes["TOTAL"])

	// Advancing past the last item closes the session.
	view, err = svc.MoveNext(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "closed", view.State)

	_, err = svc.MoveNext(ctx, id)
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestServiceEndAttemptRejectsUndeclared(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)

	_, err = svc.BeginAttempt(ctx, created.ID, false)
	require.NoError(t, err)

	_, err = svc.EndAttempt(ctx, created.ID, map[string]interface{}{"BOGUS": "x"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no response")
}

func TestServiceSuspendResume(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	id := created.ID

	_, err = svc.BeginAttempt(ctx, id, false)
	require.NoError(t, err)

	view, err := svc.Suspend(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "suspended", view.State)

	// A suspended session refuses operations until resumed.
	_, err = svc.MoveNext(ctx, id)
	assert.ErrorIs(t, err, ErrSessionSuspended)
	_, err = svc.Suspend(ctx, id)
	assert.ErrorIs(t, err, ErrSessionSuspended)

	// State still reads from the store.
	view, err = svc.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "suspended", view.State)
	assert.Equal(t, "Q01.0", view.Item)

	view, err = svc.Resume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "interacting", view.State)
	assert.Equal(t, "interacting", view.ItemState, "the open attempt resumes with the session")
	assert.Equal(t, 1, view.Attempts)

	_, err = svc.Resume(ctx, id)
	assert.ErrorIs(t, err, ErrSessionLive)

	view, err = svc.EndAttempt(ctx, id, answer("choice_a"), false)
	require.NoError(t, err)
	assert.Equal(t, float64(1), view.Outcomes["TOTAL"])
}

func TestServiceResumeAfterRestart(t *testing.T) {
	svc, clock, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	id := created.ID
	_, err = svc.BeginAttempt(ctx, id, false)
	require.NoError(t, err)

	// A second service over the same store stands in for a restarted
	// process: the snapshot was written mid-interaction, never
	// suspended.
	svc2 := NewService(svc.library, store, NewBroadcaster())
	svc2.now = clock.Now

	view, err := svc2.Resume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "interacting", view.State)
	assert.Equal(t, "interacting", view.ItemState)
	assert.Equal(t, 1, view.Attempts)

	view, err = svc2.EndAttempt(ctx, id, answer("choice_a"), false)
	require.NoError(t, err)
	assert.Equal(t, float64(1), view.Outcomes["TOTAL"])
}

func TestServiceEnd(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	id := created.ID

	view, err := svc.End(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "closed", view.State)

	_, err = svc.End(ctx, id)
	assert.ErrorIs(t, err, ErrSessionEnded)
	_, err = svc.Resume(ctx, id)
	assert.ErrorIs(t, err, ErrSessionEnded)

	// The final snapshot remains readable.
	view, err = svc.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "closed", view.State)
}

func TestServiceEndSuspended(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	id := created.ID

	_, err = svc.Suspend(ctx, id)
	require.NoError(t, err)

	// Ending travels through the store without a resume.
	view, err := svc.End(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "closed", view.State)
}

func TestServiceList(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	b, err := svc.Create(ctx, "HIST01", 0)
	require.NoError(t, err)
	c, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)

	_, err = svc.Suspend(ctx, b.ID)
	require.NoError(t, err)
	_, err = svc.End(ctx, c.ID)
	require.NoError(t, err)

	summaries, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	byID := make(map[string]*SessionSummary, len(summaries))
	for _, s := range summaries {
		byID[s.ID] = s
	}

	require.Contains(t, byID, a.ID)
	assert.Equal(t, "live", byID[a.ID].Status)
	assert.Equal(t, "interacting", byID[a.ID].State)
	assert.Equal(t, "ALG01", byID[a.ID].Test)

	require.Contains(t, byID, b.ID)
	assert.Equal(t, "suspended", byID[b.ID].Status)
	assert.Equal(t, "suspended", byID[b.ID].State)
	assert.Equal(t, "HIST01", byID[b.ID].Test)

	require.Contains(t, byID, c.ID)
	assert.Equal(t, "ended", byID[c.ID].Status)
	assert.Equal(t, "closed", byID[c.ID].State)
}

func TestServiceDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	live, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	suspended, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	_, err = svc.Suspend(ctx, suspended.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, live.ID))
	require.NoError(t, svc.Delete(ctx, suspended.ID))

	_, err = svc.State(ctx, live.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)

	summaries, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestServiceDurations(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	id := created.ID

	_, err = svc.BeginAttempt(ctx, id, false)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	view, err := svc.EndAttempt(ctx, id, answer("choice_a"), false)
	require.NoError(t, err)

	assert.Equal(t, "PT30S", view.Durations["ALG01"])
	assert.Equal(t, "PT30S", view.Durations["P1"])
	assert.Equal(t, "PT30S", view.Durations["S1"])
}

func TestServiceSuspendedGapIsNotCredited(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	id := created.ID

	clock.Advance(10 * time.Second)
	_, err = svc.Suspend(ctx, id)
	require.NoError(t, err)

	// An hour passes while the candidate is away.
	clock.Advance(time.Hour)
	_, err = svc.Resume(ctx, id)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	view, err := svc.MoveNext(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "PT15S", view.Durations["ALG01"])
}

func TestServiceTestClockExpiry(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "TIMED01", 0)
	require.NoError(t, err)
	id := created.ID

	clock.Advance(2 * time.Minute)

	// The clock observation closes the session before the move runs.
	_, err = svc.MoveNext(ctx, id)
	require.Error(t, err)
	assert.True(t, session.IsCode(err, session.CodeStateViolation))

	view, err := svc.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "closed", view.State)
	assert.Equal(t, "PT1M", view.Durations["TIMED01"], "the scope clamps at its limit")

	summaries, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "ended", summaries[0].Status)
}

func TestServiceJump(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "HIST01", 0)
	require.NoError(t, err)
	id := created.ID

	view, err := svc.Jump(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Position)
	assert.Equal(t, "Q03.0", view.Item)

	_, err = svc.Jump(ctx, id, 9)
	require.Error(t, err)
	assert.True(t, session.IsCode(err, session.CodeForbiddenJump))

	view, err = svc.MoveBack(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Position)
}

func TestServiceJumpInLinearPart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	plain, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	_, err = svc.Jump(ctx, plain.ID, 1)
	assert.True(t, session.IsCode(err, session.CodeNavigationModeViolation))

	forced, err := svc.Create(ctx, "ALG01", session.AlwaysAllowJumps)
	require.NoError(t, err)
	view, err := svc.Jump(ctx, forced.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Position)
}

func TestServiceSectionNextEndsSingleSectionRun(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)

	view, err := svc.NextSection(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "closed", view.State, "skipping the only section exhausts the route")
}

func TestServiceTestPartNextEndsSinglePartRun(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)

	view, err := svc.NextTestPart(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "closed", view.State)
}

func TestServiceEmitsEvents(t *testing.T) {
	lib := newTestLibrary(t, map[string]string{"algebra.yaml": algebraDoc})
	events := NewBroadcaster()
	svc := NewService(lib, storage.NewMemoryStore(), events)
	clock := &fakeClock{current: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc.now = clock.Now
	ctx := context.Background()

	ch, cancelSub := events.Subscribe(16)
	defer cancelSub()

	created, err := svc.Create(ctx, "ALG01", 0)
	require.NoError(t, err)
	id := created.ID
	_, err = svc.BeginAttempt(ctx, id, false)
	require.NoError(t, err)
	_, err = svc.EndAttempt(ctx, id, answer("choice_a"), false)
	require.NoError(t, err)
	_, err = svc.MoveNext(ctx, id)
	require.NoError(t, err)

	want := []string{"beginTestSession", "beginAttempt", "endAttempt", "moveNext"}
	var ops []string
	for len(ops) < len(want) {
		select {
		case ev := <-ch:
			assert.Equal(t, id, ev.Session)
			ops = append(ops, ev.Op)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for events, got %v", ops)
		}
	}
	assert.Equal(t, want, ops)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := []byte("QTS\x01rest of the stream")
	testID, snap, err := decodeEnvelope(encodeEnvelope("ALG01", payload))
	require.NoError(t, err)
	assert.Equal(t, "ALG01", testID)
	assert.Equal(t, payload, snap)

	_, _, err = decodeEnvelope(nil)
	assert.Error(t, err)
	_, _, err = decodeEnvelope([]byte{0xFF})
	assert.Error(t, err)

	// A length prefix pointing past the data is malformed, not a panic.
	_, _, err = decodeEnvelope([]byte{0x20, 'A'})
	assert.Error(t, err)
}
