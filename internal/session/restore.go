package session

import (
	"fmt"

	"proctor/internal/expr"
	"proctor/internal/model"
	"proctor/internal/route"
	"proctor/pkg/qti"
)

// SessionSnapshot is the persistence projection of a test session:
// everything that must survive a save/restore cycle and nothing that
// can be rebuilt from the assessment model. The time reference is
// deliberately absent; a restored session re-anchors on its first
// SetTime observation.
type SessionSnapshot struct {
	State    TestState
	Position int
	// Items runs parallel to the route. A nil entry marks an
	// occurrence whose item session was never materialized.
	Items []*ItemSnapshot
	// Outcomes holds the test outcome values in declaration order.
	Outcomes             []qti.Value
	Durations            map[string]qti.Duration
	LastOccurrenceUpdate map[string]int
	VisitedTestParts     []string
	Path                 []int
	Pending              []*PendingResponses
	Config               Config
}

// ItemSnapshot carries one item session's runtime state together with
// its response and outcome values by name.
type ItemSnapshot struct {
	State       ItemState
	NumAttempts int
	Duration    qti.Duration
	Completion  string
	Attempting  bool
	Variables   map[string]qti.Value
}

// Snapshot captures the session state for persistence.
func (s *TestSession) Snapshot() *SessionSnapshot {
	snap := &SessionSnapshot{
		State:                s.state,
		Position:             s.route.Position(),
		Items:                make([]*ItemSnapshot, s.route.Count()),
		Outcomes:             make([]qti.Value, 0, len(s.test.OutcomeDeclarations)),
		Durations:            make(map[string]qti.Duration, s.durations.Len()),
		LastOccurrenceUpdate: make(map[string]int, len(s.lastUpdate)),
		VisitedTestParts:     append([]string(nil), s.visited...),
		Path:                 append([]int(nil), s.path...),
		Config:               s.config,
	}
	for i, it := range s.route.Items() {
		item, ok := s.store.Get(it.ItemRef, it.Occurrence)
		if !ok {
			continue
		}
		snap.Items[i] = snapshotItem(item)
	}
	for _, decl := range s.test.OutcomeDeclarations {
		v, _ := s.vars.Get(decl.Identifier)
		snap.Outcomes = append(snap.Outcomes, v)
	}
	for _, name := range s.durations.Identifiers() {
		snap.Durations[name] = s.durations.Get(name)
	}
	for ref, occ := range s.lastUpdate {
		snap.LastOccurrenceUpdate[ref] = occ
	}
	for _, pr := range s.pending.All() {
		responses := make(map[string]qti.Value, len(pr.Responses))
		for name, v := range pr.Responses {
			responses[name] = v
		}
		snap.Pending = append(snap.Pending, &PendingResponses{
			Ref:        pr.Ref,
			Occurrence: pr.Occurrence,
			Responses:  responses,
		})
	}
	return snap
}

func snapshotItem(item *ItemSession) *ItemSnapshot {
	ref := item.Ref()
	rec := &ItemSnapshot{
		State:       item.State(),
		NumAttempts: item.NumAttempts(),
		Duration:    item.Duration(),
		Completion:  item.CompletionStatus(),
		Attempting:  item.Attempting(),
		Variables:   make(map[string]qti.Value, len(ref.ResponseDeclarations)+len(ref.OutcomeDeclarations)),
	}
	for _, decl := range ref.ResponseDeclarations {
		v, _ := item.Vars().Get(decl.Identifier)
		rec.Variables[decl.Identifier] = v
	}
	for _, decl := range ref.OutcomeDeclarations {
		v, _ := item.Vars().Get(decl.Identifier)
		rec.Variables[decl.Identifier] = v
	}
	return rec
}

// Restore rebuilds a session from an earlier snapshot. The route must
// be the one the snapshot was taken against, usually reconstructed by
// the snapshot codec. Factory, submitter, and event sink come from
// opts; flags come from the snapshot.
func Restore(test *model.AssessmentTest, r *route.Route, engine expr.Engine, opts *Options, snap *SessionSnapshot) (*TestSession, error) {
	if len(snap.Items) != r.Count() {
		return nil, newError(CodeLogicError,
			"snapshot has %d item records for a route of %d", len(snap.Items), r.Count())
	}
	if got, want := len(snap.Outcomes), len(test.OutcomeDeclarations); got != want {
		return nil, newError(CodeLogicError,
			"snapshot has %d outcome values, test declares %d", got, want)
	}
	s := New(test, r, engine, opts)
	s.config = snap.Config
	s.state = snap.State
	if err := r.SetPosition(snap.Position); err != nil {
		return nil, wrapError(CodeOutOfRange, err, "restoring the route cursor")
	}
	for i, it := range r.Items() {
		rec := snap.Items[i]
		if rec == nil || rec.State == ItemNotSelected {
			continue
		}
		if err := s.restoreItem(it, rec); err != nil {
			return nil, err
		}
	}
	for i, decl := range test.OutcomeDeclarations {
		if err := s.vars.Set(decl.Identifier, snap.Outcomes[i]); err != nil {
			return nil, newError(CodeLogicError, "restoring outcome %s: %v", decl.Identifier, err)
		}
	}
	for name, d := range snap.Durations {
		s.durations.Set(name, d)
	}
	for ref, occ := range snap.LastOccurrenceUpdate {
		s.lastUpdate[ref] = occ
	}
	s.visited = append([]string(nil), snap.VisitedTestParts...)
	s.path = append([]int(nil), snap.Path...)
	for _, pr := range snap.Pending {
		s.pending.Add(pr)
	}
	return s, nil
}

func (s *TestSession) restoreItem(it *route.Item, rec *ItemSnapshot) error {
	item := s.factory(it.ItemRef, it.Occurrence, it.TestPart.NavigationMode,
		it.TestPart.SubmissionMode, it.Control, it.TimeLimits, s.engine)
	if err := item.Begin(); err != nil {
		return mapItemError(err, fmt.Sprintf("restoring item session %s", it))
	}
	item.RestoreRuntime(rec.State, rec.NumAttempts, rec.Duration, rec.Completion, rec.Attempting)
	for name, v := range rec.Variables {
		if err := item.Vars().Set(name, v); err != nil {
			return newError(CodeLogicError, "restoring %s.%s: %v", it, name, err)
		}
	}
	if err := s.store.Add(item); err != nil {
		return newError(CodeLogicError, "%v", err)
	}
	return nil
}
