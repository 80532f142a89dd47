package session

import (
	"fmt"
	"time"

	"proctor/internal/expr"
	"proctor/internal/model"
	"proctor/pkg/qti"
)

// ItemSession tracks one candidate's interaction with one item
// occurrence: its declared variables, attempt count, accumulated
// duration, and completion status.
//
// Variables exist from construction on so a session can be rebuilt
// from a snapshot; Begin applies the declared defaults and opens the
// lifecycle.
type ItemSession struct {
	ref        *model.AssessmentItemRef
	occurrence int
	navigation model.NavigationMode
	submission model.SubmissionMode
	control    *model.ItemSessionControl
	limits     *model.TimeLimits
	engine     expr.Engine

	state       ItemState
	vars        *Variables
	numAttempts int
	duration    qti.Duration
	completion  string
	attempting  bool
	timeRef     time.Time
	hasTimeRef  bool
}

// NewItemSession builds a session for one occurrence of ref. A nil
// control means the QTI defaults.
func NewItemSession(ref *model.AssessmentItemRef, occurrence int, navigation model.NavigationMode,
	submission model.SubmissionMode, control *model.ItemSessionControl, limits *model.TimeLimits,
	engine expr.Engine) *ItemSession {
	if control == nil {
		control = model.DefaultItemSessionControl()
	}
	vars := NewVariables()
	for _, decl := range ref.ResponseDeclarations {
		vars.Declare(decl, VarResponse)
	}
	for _, decl := range ref.OutcomeDeclarations {
		vars.Declare(decl, VarOutcome)
	}
	for _, decl := range ref.TemplateDeclarations {
		vars.Declare(decl, VarTemplate)
	}
	return &ItemSession{
		ref:        ref,
		occurrence: occurrence,
		navigation: navigation,
		submission: submission,
		control:    control,
		limits:     limits,
		engine:     engine,
		state:      ItemNotSelected,
		vars:       vars,
		completion: CompletionNotAttempted,
	}
}

// String returns the "<itemRef>.<occurrence>" label of the session.
func (s *ItemSession) String() string {
	return fmt.Sprintf("%s.%d", s.ref.Identifier, s.occurrence)
}

func (s *ItemSession) Ref() *model.AssessmentItemRef      { return s.ref }
func (s *ItemSession) Occurrence() int                    { return s.occurrence }
func (s *ItemSession) State() ItemState                   { return s.state }
func (s *ItemSession) NumAttempts() int                   { return s.numAttempts }
func (s *ItemSession) Duration() qti.Duration             { return s.duration }
func (s *ItemSession) CompletionStatus() string           { return s.completion }
func (s *ItemSession) Attempting() bool                   { return s.attempting }
func (s *ItemSession) Vars() *Variables                   { return s.vars }
func (s *ItemSession) Control() *model.ItemSessionControl { return s.control }
func (s *ItemSession) Limits() *model.TimeLimits          { return s.limits }

// Begin initializes the declared variables with their defaults and
// moves the session from NotSelected to Initial.
func (s *ItemSession) Begin() error {
	if s.state != ItemNotSelected {
		return newItemError(ItemStateViolation, s.String(), "session already begun")
	}
	s.vars.ApplyDefaults()
	s.numAttempts = 0
	s.duration = 0
	s.completion = CompletionNotAttempted
	s.state = ItemInitial
	return nil
}

// maxAttempts returns the attempt ceiling in force, zero meaning
// unlimited. Simultaneous submission caps the session at one attempt.
func (s *ItemSession) maxAttempts() int {
	if s.submission == model.SubmissionSimultaneous {
		return 1
	}
	return s.control.MaxAttempts
}

// BeginAttempt opens a new attempt. The session must be Initial or
// Suspended with no attempt pending, inside its time limits, and
// below its attempt ceiling.
func (s *ItemSession) BeginAttempt() error {
	if s.attempting {
		return newItemError(ItemStateViolation, s.String(), "an attempt is already open")
	}
	if s.limits.HasMaxTime() && s.duration >= *s.limits.MaxTime {
		return newItemError(ItemDurationOverflow, s.String(),
			"maximum time of %s reached", s.limits.MaxTime.ISO())
	}
	if max := s.maxAttempts(); max > 0 && s.numAttempts >= max {
		return newItemError(ItemAttemptsOverflow, s.String(), "all %d attempts used", max)
	}
	if s.state != ItemInitial && s.state != ItemSuspended {
		return newItemError(ItemStateViolation, s.String(), "cannot begin an attempt while %s", s.state)
	}
	s.completion = CompletionUnknown
	s.attempting = true
	s.state = ItemInteracting
	return nil
}

// BeginCandidateSession resumes interaction on a suspended attempt
// without opening a new one.
func (s *ItemSession) BeginCandidateSession() error {
	if s.state != ItemSuspended || !s.attempting {
		return newItemError(ItemStateViolation, s.String(), "no suspended attempt to resume")
	}
	s.state = ItemInteracting
	return nil
}

// EndCandidateSession suspends interaction while keeping the attempt
// open, as simultaneous submission requires.
func (s *ItemSession) EndCandidateSession() error {
	if s.state != ItemInteracting {
		return newItemError(ItemStateViolation, s.String(), "cannot leave candidate session while %s", s.state)
	}
	s.state = ItemSuspended
	return nil
}

// Suspend parks an interacting session. A session showing modal
// feedback keeps that state; anything else is left alone.
func (s *ItemSession) Suspend() {
	if s.state == ItemInteracting {
		s.state = ItemSuspended
	}
}

// EndAttempt commits responses and closes the open attempt: responses
// are copied into the response variables, numAttempts increments,
// response processing runs unless suppressed, and the session moves
// to Suspended or Closed depending on the attempts left.
func (s *ItemSession) EndAttempt(responses map[string]qti.Value, processResponses, allowLateSubmission bool) error {
	if !s.attempting || (s.state != ItemInteracting && s.state != ItemSuspended) {
		return newItemError(ItemStateViolation, s.String(), "no open attempt to end")
	}
	if err := s.checkDurations(allowLateSubmission); err != nil {
		return err
	}
	if !s.control.AllowSkipping && allNull(responses) {
		return newItemError(ItemSkippingForbidden, s.String(), "a response is required")
	}
	if err := s.copyResponses(responses); err != nil {
		return err
	}
	s.numAttempts++
	if processResponses {
		if err := s.processResponses(); err != nil {
			return err
		}
	}
	s.completion = CompletionCompleted
	s.attempting = false
	if max := s.maxAttempts(); max > 0 && s.numAttempts >= max {
		s.state = ItemClosed
	} else {
		s.state = ItemSuspended
	}
	return nil
}

// endDeferredAttempt commits one pending response set during deferred
// submission at the end of a simultaneous test part. Time and
// skipping checks were the concern of the original commit; the part
// is over, so the session always closes.
func (s *ItemSession) endDeferredAttempt(responses map[string]qti.Value) error {
	if err := s.copyResponses(responses); err != nil {
		return err
	}
	s.numAttempts++
	if err := s.processResponses(); err != nil {
		return err
	}
	s.completion = CompletionCompleted
	s.attempting = false
	s.state = ItemClosed
	return nil
}

// CheckResponses validates a response set against the declarations
// without writing anything. Simultaneous submission uses it to reject
// bad responses at queue time instead of at the end of the part.
func (s *ItemSession) CheckResponses(responses map[string]qti.Value) error {
	for name, value := range responses {
		decl := s.ref.ResponseDeclaration(name)
		if decl == nil {
			return newItemError(ItemInvalidResponse, s.String(), "%q is not a declared response", name)
		}
		if qti.IsNull(value) {
			continue
		}
		if value.Cardinality() != decl.Cardinality {
			return newItemError(ItemInvalidResponse, s.String(),
				"response %q wants %s cardinality, got %s", name, decl.Cardinality, value.Cardinality())
		}
		if value.BaseType() != decl.BaseType {
			return newItemError(ItemInvalidResponse, s.String(),
				"response %q wants base type %s, got %s", name, decl.BaseType, value.BaseType())
		}
	}
	return nil
}

// copyResponses validates all responses before writing any, so a
// failed call leaves the variables as they were.
func (s *ItemSession) copyResponses(responses map[string]qti.Value) error {
	if err := s.CheckResponses(responses); err != nil {
		return err
	}
	for name, value := range responses {
		if err := s.vars.Set(name, value); err != nil {
			return newItemError(ItemInvalidResponse, s.String(), "%v", err)
		}
	}
	return nil
}

// processResponses resets the item outcomes to their defaults and
// runs the response processing rules.
func (s *ItemSession) processResponses() error {
	if s.ref.ResponseProcessing == nil {
		return nil
	}
	s.vars.ResetOutcomes()
	scope := itemScope{s}
	assign := func(id string, v qti.Value) error {
		target := s.vars.Variable(id)
		if target == nil || target.Kind != VarOutcome {
			return fmt.Errorf("setOutcomeValue targets undeclared outcome %q", id)
		}
		return s.vars.Set(id, v)
	}
	_, err := runRules(s.engine, s.ref.ResponseProcessing.Rules, scope, assign)
	if err != nil {
		return fmt.Errorf("response processing for %s: %w", s, err)
	}
	return nil
}

// checkDurations enforces the item time limits at attempt end.
// Minimum time binds only in linear navigation; the maximum yields to
// late submission when the limits or the caller allow it.
func (s *ItemSession) checkDurations(allowLateSubmission bool) error {
	if s.limits.HasMinTime() && s.navigation == model.NavigationLinear && s.duration < *s.limits.MinTime {
		return newItemError(ItemDurationUnderflow, s.String(),
			"minimum time of %s not reached", s.limits.MinTime.ISO())
	}
	late := allowLateSubmission || (s.limits != nil && s.limits.AllowLateSubmission)
	if s.limits.HasMaxTime() && !late && s.duration >= *s.limits.MaxTime {
		return newItemError(ItemDurationOverflow, s.String(),
			"maximum time of %s reached", s.limits.MaxTime.ISO())
	}
	return nil
}

// End closes the session. An open attempt is abandoned and leaves the
// completion status incomplete. Ending a closed session is a no-op.
func (s *ItemSession) End() {
	if s.state == ItemClosed {
		return
	}
	if s.attempting {
		s.completion = CompletionIncomplete
		s.attempting = false
	}
	s.state = ItemClosed
}

// SetTime records a wall-clock observation. While the session is
// interacting, the time since the previous observation is credited to
// the duration; reaching the maximum time closes the session.
func (s *ItemSession) SetTime(t time.Time) {
	t = t.UTC()
	if s.state == ItemInteracting && s.hasTimeRef {
		delta := t.Sub(s.timeRef)
		if delta < 0 {
			delta = -delta
		}
		s.duration += qti.Duration(delta)
		if s.limits.HasMaxTime() && s.duration >= *s.limits.MaxTime {
			s.duration = *s.limits.MaxTime
			s.completion = CompletionIncomplete
			s.attempting = false
			s.state = ItemClosed
		}
	}
	s.timeRef = t
	s.hasTimeRef = true
}

// setTimeReference anchors the observation chain without crediting
// time, used when a session is initialized mid-test.
func (s *ItemSession) setTimeReference(t time.Time) {
	s.timeRef = t.UTC()
	s.hasTimeRef = true
}

// RestoreRuntime overwrites the lifecycle fields when a session is
// rebuilt from a snapshot. Variable values are restored separately
// through Vars.
func (s *ItemSession) RestoreRuntime(state ItemState, numAttempts int, duration qti.Duration, completion string, attempting bool) {
	s.state = state
	s.numAttempts = numAttempts
	s.duration = duration
	s.completion = completion
	s.attempting = attempting
}

// allNull reports whether a response set carries no usable value.
func allNull(responses map[string]qti.Value) bool {
	for _, v := range responses {
		if !qti.IsNull(v) {
			return false
		}
	}
	return true
}

// itemScope resolves identifiers against one item session for
// response processing.
type itemScope struct {
	s *ItemSession
}

func (sc itemScope) Lookup(identifier string) (qti.Value, error) {
	switch identifier {
	case "numAttempts":
		return qti.Integer(sc.s.numAttempts), nil
	case "duration":
		return sc.s.duration, nil
	case "completionStatus":
		return qti.Identifier(sc.s.completion), nil
	}
	v, _ := sc.s.vars.Get(identifier)
	return v, nil
}

func (sc itemScope) CorrectResponse(identifier string) (qti.Value, error) {
	decl := sc.s.ref.ResponseDeclaration(identifier)
	if decl == nil {
		return nil, nil
	}
	return decl.Correct, nil
}
