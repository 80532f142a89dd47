package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor/internal/expr"
	"proctor/internal/model"
	"proctor/internal/route"
	"proctor/internal/session"
	"proctor/pkg/qti"
)

// codecDoc exercises the features the stream has to carry: a nested
// section chain, a branch rule, a precondition, a container response,
// and a second test part with simultaneous submission.
const codecDoc = `
identifier: SNAP01
title: Snapshot fixture
outcomeDeclarations:
  - identifier: TOTAL
    cardinality: single
    baseType: float
    defaultValue: 0.0
  - identifier: GRADE
    cardinality: single
    baseType: identifier
outcomeProcessing:
  - setOutcomeValue:
      identifier: TOTAL
      expression:
        sum:
          - {variable: Q01.SCORE}
          - {variable: Q02.SCORE}
          - {variable: Q03.SCORE}
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
                    match:
                      - {variable: Q01.RESPONSE}
                      - baseValue: {type: identifier, value: skip}
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
          - section:
              identifier: S1A
              parts:
                - item:
                    identifier: Q02
                    href: items/q02.yaml
                    responseDeclarations:
                      - identifier: RESPONSE
                        cardinality: multiple
                        baseType: identifier
                        correctResponse:
                          - choice_a
                          - choice_b
                    outcomeDeclarations:
                      - identifier: SCORE
                        cardinality: single
                        baseType: float
                        defaultValue: 0.0
                    responseProcessing:
                      template: match_correct
          - item:
              identifier: Q03
              href: items/q03.yaml
              preConditions:
                - expression:
                    match:
                      - {variable: Q01.SCORE}
                      - baseValue: {type: float, value: 1.0}
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
                  correctResponse: choice_c
              outcomeDeclarations:
                - identifier: SCORE
                  cardinality: single
                  baseType: float
                  defaultValue: 0.0
              responseProcessing:
                template: match_correct
  - identifier: P2
    navigationMode: nonlinear
    submissionMode: simultaneous
    sections:
      - identifier: S2
        parts:
          - item:
              identifier: Q04
              href: items/q04.yaml
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
                  correctResponse: choice_d
              outcomeDeclarations:
                - identifier: SCORE
                  cardinality: single
                  baseType: float
                  defaultValue: 0.0
              responseProcessing:
                template: match_correct
          - item:
              identifier: Q05
              href: items/q05.yaml
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
                  correctResponse: choice_e
              outcomeDeclarations:
                - identifier: SCORE
                  cardinality: single
                  baseType: float
                  defaultValue: 0.0
              responseProcessing:
                template: match_correct
`

var clock = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func parseTest(t *testing.T, doc string) *model.AssessmentTest {
	t.Helper()
	test, err := model.Parse([]byte(doc))
	require.NoError(t, err)
	return test
}

func startSession(t *testing.T, test *model.AssessmentTest, opts *session.Options) *session.TestSession {
	t.Helper()
	r, err := route.Build(test)
	require.NoError(t, err)
	s := session.New(test, r, expr.NewEvaluator(), opts)
	require.NoError(t, s.Begin())
	return s
}

func reopen(t *testing.T, s *session.TestSession, test *model.AssessmentTest, opts *session.Options) *session.TestSession {
	t.Helper()
	data, err := Encode(s)
	require.NoError(t, err)
	restored, err := Decode(data, test, expr.NewEvaluator(), opts)
	require.NoError(t, err)
	return restored
}

func identifierResponse(v string) map[string]qti.Value {
	return map[string]qti.Value{"RESPONSE": qti.Identifier(v)}
}

// assertSameSession compares the observable state two sessions expose.
func assertSameSession(t *testing.T, want, got *session.TestSession) {
	t.Helper()
	assert.Equal(t, want.State(), got.State())
	assert.Equal(t, want.Config(), got.Config())
	assert.Equal(t, want.Route().Position(), got.Route().Position())
	require.Equal(t, want.Route().Count(), got.Route().Count())

	for i, wit := range want.Route().Items() {
		git, err := got.Route().At(i)
		require.NoError(t, err)
		assert.Equal(t, wit.String(), git.String(), "route item %d", i)
		assert.Same(t, wit.ItemRef, git.ItemRef, "route item %d ref", i)
		assert.Same(t, wit.TestPart, git.TestPart, "route item %d part", i)
		assert.Equal(t, wit.Sections, git.Sections, "route item %d sections", i)
		assert.Equal(t, wit.BranchRules, git.BranchRules, "route item %d branches", i)
		assert.Equal(t, wit.PreConditions, git.PreConditions, "route item %d preconditions", i)
		assert.Equal(t, wit.Control, git.Control, "route item %d control", i)
	}

	require.Equal(t, want.Sessions().Len(), got.Sessions().Len())
	for _, wis := range want.Sessions().All() {
		gis, ok := got.Sessions().Get(wis.Ref(), wis.Occurrence())
		require.True(t, ok, "item session %s missing after decode", wis)
		assert.Equal(t, wis.State(), gis.State(), "%s state", wis)
		assert.Equal(t, wis.NumAttempts(), gis.NumAttempts(), "%s attempts", wis)
		assert.Equal(t, wis.Duration(), gis.Duration(), "%s duration", wis)
		assert.Equal(t, wis.CompletionStatus(), gis.CompletionStatus(), "%s completion", wis)
		assert.Equal(t, wis.Attempting(), gis.Attempting(), "%s attempting", wis)
		decls := wis.Ref().ResponseDeclarations
		decls = append(append([]*model.VariableDeclaration(nil), decls...), wis.Ref().OutcomeDeclarations...)
		for _, decl := range decls {
			wv, _ := wis.Vars().Get(decl.Identifier)
			gv, _ := gis.Vars().Get(decl.Identifier)
			assert.Equal(t, wv, gv, "%s.%s", wis, decl.Identifier)
		}
	}

	for _, decl := range want.Test().OutcomeDeclarations {
		wv, _ := want.Outcomes().Get(decl.Identifier)
		gv, _ := got.Outcomes().Get(decl.Identifier)
		assert.Equal(t, wv, gv, "outcome %s", decl.Identifier)
	}

	require.Equal(t, want.Durations().Identifiers(), got.Durations().Identifiers())
	for _, name := range want.Durations().Identifiers() {
		assert.Equal(t, want.Durations().Get(name), got.Durations().Get(name), "duration %s", name)
	}

	assert.Equal(t, want.LastOccurrenceUpdate(), got.LastOccurrenceUpdate())
	assert.Equal(t, want.VisitedTestParts(), got.VisitedTestParts())
	assert.Equal(t, want.Path(), got.Path())

	require.Equal(t, want.Pending().Len(), got.Pending().Len())
	for i, wpr := range want.Pending().All() {
		gpr := got.Pending().All()[i]
		assert.Same(t, wpr.Ref, gpr.Ref, "pending %d ref", i)
		assert.Equal(t, wpr.Occurrence, gpr.Occurrence, "pending %d occurrence", i)
		assert.Equal(t, wpr.Responses, gpr.Responses, "pending %d responses", i)
	}
}

func TestSnapshotRoundTripFresh(t *testing.T) {
	test := parseTest(t, codecDoc)
	s := startSession(t, test, &session.Options{ID: "fresh"})

	restored := reopen(t, s, test, &session.Options{ID: "fresh"})
	assertSameSession(t, s, restored)

	current, err := restored.CurrentItem()
	require.NoError(t, err)
	assert.Equal(t, "Q01.0", current.String())
}

func TestSnapshotRoundTripMidSession(t *testing.T) {
	test := parseTest(t, codecDoc)
	s := startSession(t, test, nil)
	require.NoError(t, s.SetTime(clock))

	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.SetTime(clock.Add(30*time.Second)))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_a"), false))
	require.NoError(t, s.MoveNext())

	multiple, err := qti.MultipleOf(qti.BaseTypeIdentifier,
		qti.Identifier("choice_a"), qti.Identifier("choice_b"))
	require.NoError(t, err)
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(map[string]qti.Value{"RESPONSE": multiple}, false))
	require.NoError(t, s.MoveNext())

	// Leave an attempt open on Q03 so the stream has to carry it.
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.SetTime(clock.Add(45*time.Second)))

	restored := reopen(t, s, test, nil)
	assertSameSession(t, s, restored)

	current, err := restored.CurrentItem()
	require.NoError(t, err)
	assert.Equal(t, "Q03.0", current.String())

	// The restored session keeps running: the open attempt accepts
	// its commit and outcome processing folds the score in.
	require.NoError(t, restored.EndAttempt(identifierResponse("choice_c"), false))
	total, err := restored.Get("TOTAL")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(3), total)
}

func TestSnapshotDoesNotCarryTimeReference(t *testing.T) {
	test := parseTest(t, codecDoc)
	s := startSession(t, test, nil)
	require.NoError(t, s.SetTime(clock))
	require.NoError(t, s.SetTime(clock.Add(20*time.Second)))
	require.Equal(t, qti.DurationOf(20*time.Second), s.Durations().Get("SNAP01"))

	restored := reopen(t, s, test, nil)
	_, anchored := restored.TimeReference()
	assert.False(t, anchored)

	// The first observation after a restore only re-anchors; no time
	// is credited for the gap spent off line.
	require.NoError(t, restored.SetTime(clock.Add(10*time.Minute)))
	assert.Equal(t, qti.DurationOf(20*time.Second), restored.Durations().Get("SNAP01"))

	require.NoError(t, restored.SetTime(clock.Add(10*time.Minute+5*time.Second)))
	assert.Equal(t, qti.DurationOf(25*time.Second), restored.Durations().Get("SNAP01"))
}

func TestSnapshotCarriesSuspendedState(t *testing.T) {
	test := parseTest(t, codecDoc)
	s := startSession(t, test, nil)
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.Suspend())

	restored := reopen(t, s, test, nil)
	assert.Equal(t, session.TestSuspended, restored.State())

	require.NoError(t, restored.Resume())
	require.NoError(t, restored.EndAttempt(identifierResponse("choice_a"), false))
	total, err := restored.Get("TOTAL")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(1), total)
}

func TestSnapshotCarriesPendingResponses(t *testing.T) {
	test := parseTest(t, codecDoc)
	s := startSession(t, test, nil)

	// Walk P1 without answers. The second move already lands on Q04:
	// Q03's precondition fails while Q01 goes unanswered.
	require.NoError(t, s.MoveNext())
	require.NoError(t, s.MoveNext())
	current, err := s.CurrentItem()
	require.NoError(t, err)
	require.Equal(t, "Q04.0", current.String())

	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_d"), false))
	require.NoError(t, s.MoveNext())
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_e"), false))
	require.Equal(t, 2, s.Pending().Len())

	restored := reopen(t, s, test, nil)
	assertSameSession(t, s, restored)

	// Leaving the part flushes the queued commits through response
	// and outcome processing.
	require.NoError(t, restored.MoveNext())
	assert.Equal(t, session.TestClosed, restored.State())
	assert.Equal(t, 0, restored.Pending().Len())
	q04, err := restored.Get("Q04.SCORE")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(1), q04)
	q05, err := restored.Get("Q05.SCORE")
	require.NoError(t, err)
	assert.Equal(t, qti.Float(1), q05)
}

func TestSnapshotCarriesPathAndConfig(t *testing.T) {
	test := parseTest(t, codecDoc)
	opts := &session.Options{Config: session.PathTracking | session.AlwaysAllowJumps |
		session.InitializeAllItems}
	s := startSession(t, test, opts)
	require.NoError(t, s.JumpTo(2))
	require.NoError(t, s.JumpTo(4))
	require.Equal(t, []int{0, 2}, s.Path())

	// The decoder takes flags from the stream, not from the caller.
	restored := reopen(t, s, test, nil)
	assert.Equal(t, opts.Config, restored.Config())
	assert.Equal(t, []int{0, 2}, restored.Path())

	require.NoError(t, restored.MoveBack())
	pos := restored.Route().Position()
	assert.Equal(t, 2, pos, "move back follows the recorded path")
	assert.Equal(t, []int{0}, restored.Path())
}

func TestSnapshotOccurrences(t *testing.T) {
	doc := `
identifier: OCC02
title: Occurrence snapshot fixture
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
	test := parseTest(t, doc)
	s := startSession(t, test, nil)
	require.NoError(t, s.BeginAttempt(false))
	require.NoError(t, s.EndAttempt(identifierResponse("choice_a"), false))

	restored := reopen(t, s, test, nil)
	assertSameSession(t, s, restored)

	first, ok := restored.Sessions().Get(test.ItemRefs()[0], 0)
	require.True(t, ok)
	assert.Equal(t, 1, first.NumAttempts())
	second, ok := restored.Sessions().Get(test.ItemRefs()[0], 1)
	require.True(t, ok)
	assert.Equal(t, 0, second.NumAttempts())
	assert.Equal(t, map[string]int{"Q01": 0}, restored.LastOccurrenceUpdate())
}

func TestSnapshotRouteTooLong(t *testing.T) {
	doc := `
identifier: BIG01
title: Oversized route fixture
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
        selection:
          select: 300
          withReplacement: true
        parts:
          - item:
              identifier: Q01
              href: items/q01.yaml
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
`
	test := parseTest(t, doc)
	r, err := route.Build(test)
	require.NoError(t, err)
	require.Equal(t, 300, r.Count())
	s := session.New(test, r, expr.NewEvaluator(), nil)

	_, err = Encode(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestSnapshotRejectsBadStreams(t *testing.T) {
	test := parseTest(t, codecDoc)
	s := startSession(t, test, nil)
	data, err := Encode(s)
	require.NoError(t, err)

	mutate := func(i int, b byte) []byte {
		out := append([]byte(nil), data...)
		out[i] = b
		return out
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrMalformed},
		{"bad magic", mutate(0, 'X'), ErrMalformed},
		{"future version", mutate(3, 99), ErrVersion},
		{"bad test state", mutate(4, 77), ErrMalformed},
		{"truncated", data[:len(data)-3], ErrMalformed},
		{"trailing bytes", append(append([]byte(nil), data...), 0), ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, test, expr.NewEvaluator(), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestPeekState(t *testing.T) {
	test := parseTest(t, codecDoc)
	s := startSession(t, test, nil)

	data, err := Encode(s)
	require.NoError(t, err)
	state, err := PeekState(data)
	require.NoError(t, err)
	assert.Equal(t, session.TestInteracting, state)

	require.NoError(t, s.Suspend())
	data, err = Encode(s)
	require.NoError(t, err)
	state, err = PeekState(data)
	require.NoError(t, err)
	assert.Equal(t, session.TestSuspended, state)

	_, err = PeekState(data[:2])
	assert.True(t, errors.Is(err, ErrMalformed))
	bad := append([]byte(nil), data...)
	bad[4] = 77
	_, err = PeekState(bad)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestSnapshotRejectsWrongModel(t *testing.T) {
	test := parseTest(t, codecDoc)
	s := startSession(t, test, nil)
	data, err := Encode(s)
	require.NoError(t, err)

	// A model with fewer components cannot satisfy the indexes the
	// stream refers to.
	other := parseTest(t, `
identifier: OTHER01
title: Unrelated fixture
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
              responseDeclarations:
                - identifier: RESPONSE
                  cardinality: single
                  baseType: identifier
`)
	_, err = Decode(data, other, expr.NewEvaluator(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestValueCodec(t *testing.T) {
	single := func(bt qti.BaseType) *model.VariableDeclaration {
		return &model.VariableDeclaration{Identifier: "V", Cardinality: qti.CardinalitySingle, BaseType: bt}
	}
	multiple, err := qti.MultipleOf(qti.BaseTypeIdentifier, qti.Identifier("a"), qti.Identifier("b"))
	require.NoError(t, err)
	ordered, err := qti.OrderedOf(qti.BaseTypeInteger, qti.Integer(3), qti.Integer(-1), qti.Integer(3))
	require.NoError(t, err)
	record := qti.NewRecord()
	require.NoError(t, record.Set("rate", qti.Float(0.5)))
	require.NoError(t, record.Set("label", qti.String("pass")))

	tests := []struct {
		name  string
		decl  *model.VariableDeclaration
		value qti.Value
	}{
		{"null", single(qti.BaseTypeIdentifier), nil},
		{"identifier", single(qti.BaseTypeIdentifier), qti.Identifier("choice_a")},
		{"negative integer", single(qti.BaseTypeInteger), qti.Integer(-42)},
		{"float", single(qti.BaseTypeFloat), qti.Float(0.1)},
		{"point", single(qti.BaseTypePoint), qti.Point{X: 3, Y: -7}},
		{"pair", single(qti.BaseTypePair), qti.Pair{First: "a", Second: "b"}},
		{"duration", single(qti.BaseTypeDuration), qti.DurationOf(90*time.Second + 123456789*time.Nanosecond)},
		{"file", single(qti.BaseTypeFile), qti.File{Name: "essay.txt", MIME: "text/plain", Data: []byte{1, 2, 3}}},
		{"multiple", &model.VariableDeclaration{Identifier: "V", Cardinality: qti.CardinalityMultiple, BaseType: qti.BaseTypeIdentifier}, multiple},
		{"ordered", &model.VariableDeclaration{Identifier: "V", Cardinality: qti.CardinalityOrdered, BaseType: qti.BaseTypeInteger}, ordered},
		{"record", &model.VariableDeclaration{Identifier: "V", Cardinality: qti.CardinalityRecord}, record},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &writer{}
			require.NoError(t, encodeValue(w, tt.decl, tt.value))
			r := &reader{data: w.buf.Bytes()}
			got, err := decodeValue(r, tt.decl)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
			assert.Zero(t, r.remaining(), "value should consume its exact payload")
		})
	}
}
