package session

import (
	"fmt"
	"time"

	"proctor/internal/expr"
	"proctor/internal/model"
	"proctor/internal/route"
)

// Event describes one observable change of a running session.
type Event struct {
	Session  string
	Op       string
	State    TestState
	Position int
	Item     string
}

// SessionFactory builds item sessions, letting integrators substitute
// their own construction.
type SessionFactory func(ref *model.AssessmentItemRef, occurrence int, navigation model.NavigationMode,
	submission model.SubmissionMode, control *model.ItemSessionControl, limits *model.TimeLimits,
	engine expr.Engine) *ItemSession

// Options tunes a new test session. The zero value is a plain
// delivery with no flags set.
type Options struct {
	// ID labels the session in events and results.
	ID string
	// Config is the behavior flag bitset.
	Config Config
	// Factory overrides item session construction. Nil means
	// NewItemSession.
	Factory SessionFactory
	// Submitter receives results; nil disables submission.
	Submitter ResultSubmitter
	// Policy says when test results are submitted.
	Policy ResultsPolicy
	// OnEvent observes state transitions; nil disables events.
	OnEvent func(Event)
}

// TestSession drives one candidate through a route. It is not safe
// for concurrent use; callers serialize access per session.
type TestSession struct {
	id      string
	test    *model.AssessmentTest
	route   *route.Route
	engine  expr.Engine
	config  Config
	factory SessionFactory
	submit  ResultSubmitter
	policy  ResultsPolicy
	onEvent func(Event)

	state      TestState
	vars       *Variables
	store      *ItemSessionStore
	durations  *DurationStore
	pending    *PendingResponseStore
	lastUpdate map[string]int
	visited    []string
	path       []int
	adaptive   map[string]bool
	timeRef    time.Time
	hasTimeRef bool

	// dismissed records that the candidate acknowledged the modal
	// feedback shown at the current position, so the gate stays quiet
	// until the cursor moves or the outcomes change.
	dismissed bool
}

// New builds a session over a test and its route. opts may be nil.
func New(test *model.AssessmentTest, r *route.Route, engine expr.Engine, opts *Options) *TestSession {
	if opts == nil {
		opts = &Options{}
	}
	factory := opts.Factory
	if factory == nil {
		factory = NewItemSession
	}
	s := &TestSession{
		id:         opts.ID,
		test:       test,
		route:      r,
		engine:     engine,
		config:     opts.Config,
		factory:    factory,
		submit:     opts.Submitter,
		policy:     opts.Policy,
		onEvent:    opts.OnEvent,
		state:      TestInitial,
		vars:       NewVariables(),
		store:      NewItemSessionStore(),
		durations:  NewDurationStore(),
		pending:    NewPendingResponseStore(),
		lastUpdate: make(map[string]int),
		adaptive:   adaptivityOf(r),
	}
	for _, decl := range test.OutcomeDeclarations {
		s.vars.Declare(decl, VarOutcome)
	}
	return s
}

// adaptivityOf records, per test part, whether any of its route items
// carries effective preconditions or branch rules. Such parts deliver
// their items one at a time.
func adaptivityOf(r *route.Route) map[string]bool {
	m := make(map[string]bool)
	for _, it := range r.Items() {
		id := it.TestPart.Identifier
		if len(it.PreConditions) > 0 || len(it.BranchRules) > 0 {
			m[id] = true
		} else if _, ok := m[id]; !ok {
			m[id] = false
		}
	}
	return m
}

// ID returns the session identifier given at construction.
func (s *TestSession) ID() string { return s.id }

// Test returns the assessment document the session runs.
func (s *TestSession) Test() *model.AssessmentTest { return s.test }

// Route returns the session's route. Callers must not move its
// cursor.
func (s *TestSession) Route() *route.Route { return s.route }

// State returns the session state.
func (s *TestSession) State() TestState { return s.state }

// Config returns the behavior flags the session runs with.
func (s *TestSession) Config() Config { return s.config }

// Outcomes returns the global outcome variables.
func (s *TestSession) Outcomes() *Variables { return s.vars }

// Sessions returns the item session store.
func (s *TestSession) Sessions() *ItemSessionStore { return s.store }

// Durations returns the per-scope duration store.
func (s *TestSession) Durations() *DurationStore { return s.durations }

// Pending returns the queued responses of the current simultaneous
// part.
func (s *TestSession) Pending() *PendingResponseStore { return s.pending }

// Path returns the visited positions recorded under path tracking,
// oldest first.
func (s *TestSession) Path() []int { return s.path }

// VisitedTestParts returns the test part identifiers in first-visit
// order.
func (s *TestSession) VisitedTestParts() []string { return s.visited }

// LastOccurrenceUpdate returns, per item reference identifier, the
// occurrence whose variables were committed most recently.
func (s *TestSession) LastOccurrenceUpdate() map[string]int { return s.lastUpdate }

// TestPartAdaptive reports whether the named part delivers its items
// one at a time because preconditions or branch rules apply to them.
func (s *TestSession) TestPartAdaptive(identifier string) bool {
	return s.adaptive[identifier]
}

// CurrentItem returns the route item under the cursor, or an error
// when the route is ended.
func (s *TestSession) CurrentItem() (*route.Item, error) {
	it, err := s.route.Current()
	if err != nil {
		return nil, newError(CodeOutOfRange, "no current route item")
	}
	return it, nil
}

// CurrentItemSession returns the item session under the cursor, nil
// when the route is ended or the session is not yet materialized.
func (s *TestSession) CurrentItemSession() *ItemSession {
	it, err := s.route.Current()
	if err != nil {
		return nil
	}
	item, _ := s.store.Get(it.ItemRef, it.Occurrence)
	return item
}

// Begin starts the session: scope durations are zero-initialized,
// the eligible item sessions are materialized, and the first test
// part is marked visited.
func (s *TestSession) Begin() error {
	if s.state != TestInitial {
		return newError(CodeStateViolation, "session already begun")
	}
	s.initializeDurations()
	if err := s.selectEligibleItems(); err != nil {
		return err
	}
	s.state = TestInteracting
	s.markTestPartVisited()
	s.emit("beginTestSession")
	return nil
}

// initializeDurations creates a zero entry for the test and for every
// part and section the route touches, so reads never miss.
func (s *TestSession) initializeDurations() {
	s.durations.Set(s.test.Identifier, 0)
	for _, it := range s.route.Items() {
		s.durations.Set(it.TestPart.Identifier, 0)
		for _, sec := range it.Sections {
			s.durations.Set(sec.Identifier, 0)
		}
	}
}

// End closes the session: pending responses flush, open item sessions
// close, and test results are submitted. Ending twice is a state
// violation.
func (s *TestSession) End() error {
	if err := s.endSession(); err != nil {
		return err
	}
	s.emit("endTestSession")
	return nil
}

func (s *TestSession) endSession() error {
	switch s.state {
	case TestClosed:
		return newError(CodeStateViolation, "session already closed")
	case TestInitial:
		return newError(CodeStateViolation, "session not begun")
	}
	if err := s.deferredResponseSubmission(); err != nil {
		return err
	}
	for _, item := range s.store.All() {
		item.End()
	}
	s.state = TestClosed
	if s.submit != nil && s.policy == ResultsAtEnd {
		if err := s.submit.SubmitTestResults(s); err != nil {
			return wrapError(CodeResultSubmission, err, "submitting test results for %s", s.test.Identifier)
		}
	}
	return nil
}

// Suspend parks the session. The current item session suspends with
// it; suspending twice is a no-op.
func (s *TestSession) Suspend() error {
	switch s.state {
	case TestSuspended:
		return nil
	case TestInteracting, TestModalFeedback:
		s.suspendCurrentItem()
		s.state = TestSuspended
		s.emit("suspend")
		return nil
	}
	return newError(CodeStateViolation, "cannot suspend a session in state %s", s.state)
}

// Resume reopens a suspended session. An attempt left open on the
// current item resumes with it; a modal feedback that was showing
// fires again on the next move.
func (s *TestSession) Resume() error {
	if s.state != TestSuspended {
		return newError(CodeStateViolation, "cannot resume a session in state %s", s.state)
	}
	s.state = TestInteracting
	s.interactWithItemSession()
	s.emit("resume")
	return nil
}

// suspendCurrentItem parks the item session under the cursor, if any.
func (s *TestSession) suspendCurrentItem() {
	if item := s.CurrentItemSession(); item != nil {
		item.Suspend()
	}
}

// interactWithItemSession hands the item under the cursor back to the
// candidate when an attempt was left open on it.
func (s *TestSession) interactWithItemSession() {
	item := s.CurrentItemSession()
	if item != nil && item.State() == ItemSuspended && item.Attempting() {
		_ = item.BeginCandidateSession()
	}
}

// markTestPartVisited appends the current part to the visit order the
// first time the cursor enters it.
func (s *TestSession) markTestPartVisited() {
	it, err := s.route.Current()
	if err != nil {
		return
	}
	if !s.visitedPart(it.TestPart.Identifier) {
		s.visited = append(s.visited, it.TestPart.Identifier)
	}
}

func (s *TestSession) visitedPart(identifier string) bool {
	for _, id := range s.visited {
		if id == identifier {
			return true
		}
	}
	return false
}

// selectEligibleItems materializes the item sessions the candidate
// may reach: everything up front for a non-adaptive test, one part at
// a time otherwise, and one item at a time inside an adaptive part.
func (s *TestSession) selectEligibleItems() error {
	items := s.route.Items()
	switch {
	case s.config.Has(InitializeAllItems):
		return s.initializeItems(items)
	case !s.testAdaptive() && !s.visitedPart(items[0].TestPart.Identifier):
		return s.initializeItems(items)
	}
	it, err := s.route.Current()
	if err != nil {
		return nil
	}
	switch {
	case s.adaptive[it.TestPart.Identifier]:
		return s.initializeItems([]*route.Item{it})
	case !s.visitedPart(it.TestPart.Identifier):
		return s.initializeItems(s.route.ItemsByTestPart(it.TestPart.Identifier))
	}
	return nil
}

func (s *TestSession) testAdaptive() bool {
	for _, adaptive := range s.adaptive {
		if adaptive {
			return true
		}
	}
	return false
}

// initializeItems creates and begins the sessions missing from the
// store, anchored to the session's time reference.
func (s *TestSession) initializeItems(items []*route.Item) error {
	for _, it := range items {
		if s.store.Has(it.ItemRef, it.Occurrence) {
			continue
		}
		item := s.factory(it.ItemRef, it.Occurrence, it.TestPart.NavigationMode,
			it.TestPart.SubmissionMode, it.Control, it.TimeLimits, s.engine)
		if s.hasTimeRef {
			item.setTimeReference(s.timeRef)
		}
		if err := item.Begin(); err != nil {
			return mapItemError(err, fmt.Sprintf("initializing item session %s", it))
		}
		if err := s.store.Add(item); err != nil {
			return newError(CodeLogicError, "%v", err)
		}
	}
	return nil
}

// evalCondition reduces a rule expression to the two-valued form,
// treating null as false.
func (s *TestSession) evalCondition(e *model.Expression) (bool, error) {
	v, err := s.engine.Evaluate(e, testScope{s})
	if err != nil {
		return false, err
	}
	return expr.AsCondition(v)
}

func (s *TestSession) emit(op string) {
	if s.onEvent == nil {
		return
	}
	ev := Event{Session: s.id, Op: op, State: s.state, Position: s.route.Position()}
	if it, err := s.route.Current(); err == nil {
		ev.Item = it.String()
	}
	s.onEvent(ev)
}
