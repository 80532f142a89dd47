package session

import (
	"errors"
	"fmt"

	"proctor/internal/model"
	"proctor/pkg/qti"
)

// BeginAttempt opens an attempt on the current item. Test, part, and
// section time limits are checked first unless allowLateSubmission;
// template defaults apply before the first attempt of an item in a
// linear part.
func (s *TestSession) BeginAttempt(allowLateSubmission bool) error {
	if s.state != TestInteracting {
		return newError(CodeStateViolation, "cannot begin an attempt in state %s", s.state)
	}
	it, err := s.route.Current()
	if err != nil {
		return newError(CodeStateViolation, "no current item")
	}
	if !allowLateSubmission {
		if err := s.CheckTimeLimits(false, false); err != nil {
			return err
		}
	}
	item := s.CurrentItemSession()
	if item == nil {
		return newError(CodeLogicError, "item session %s not materialized", it)
	}
	if it.TestPart.NavigationMode == model.NavigationLinear && item.NumAttempts() == 0 {
		if err := s.applyTemplateDefaults(item); err != nil {
			return err
		}
	}
	if item.State() == ItemSuspended && item.Attempting() {
		if err := item.BeginCandidateSession(); err != nil {
			return mapItemError(err, fmt.Sprintf("resuming the attempt on %s", item))
		}
	} else if err := item.BeginAttempt(); err != nil {
		return mapItemError(err, fmt.Sprintf("beginning an attempt on %s", item))
	}
	s.emit("beginAttempt")
	return nil
}

// applyTemplateDefaults evaluates the reference's template defaults
// in the test scope and writes them into the session's template
// variables.
func (s *TestSession) applyTemplateDefaults(item *ItemSession) error {
	for _, td := range item.Ref().TemplateDefaults {
		v, err := s.engine.Evaluate(td.Expression, testScope{s})
		if err != nil {
			return wrapError(CodeLogicError, err, "template default %s for %s", td.TemplateIdentifier, item)
		}
		if err := item.Vars().Set(td.TemplateIdentifier, v); err != nil {
			return newError(CodeOutOfRange, "template default %s for %s: %v", td.TemplateIdentifier, item, err)
		}
	}
	return nil
}

// EndAttempt commits responses for the current item. Individual
// submission processes them immediately and replays outcome
// processing; simultaneous submission queues them until the part
// ends.
func (s *TestSession) EndAttempt(responses map[string]qti.Value, allowLateSubmission bool) error {
	if s.state != TestInteracting {
		return newError(CodeStateViolation, "cannot end an attempt in state %s", s.state)
	}
	it, err := s.route.Current()
	if err != nil {
		return newError(CodeStateViolation, "no current item")
	}
	if !allowLateSubmission {
		if err := s.CheckTimeLimits(true, false); err != nil {
			return err
		}
	}
	item := s.CurrentItemSession()
	if item == nil {
		return newError(CodeLogicError, "item session %s not materialized", it)
	}
	if it.TestPart.SubmissionMode == model.SubmissionSimultaneous {
		if err := item.CheckResponses(responses); err != nil {
			return mapItemError(err, fmt.Sprintf("queueing responses for %s", item))
		}
		if err := item.EndCandidateSession(); err != nil {
			return mapItemError(err, fmt.Sprintf("ending the attempt on %s", item))
		}
		s.pending.Add(&PendingResponses{Ref: it.ItemRef, Occurrence: it.Occurrence, Responses: responses})
		s.emit("endAttempt")
		return nil
	}
	if err := item.EndAttempt(responses, true, allowLateSubmission); err != nil {
		var itemErr *ItemError
		if errors.As(err, &itemErr) {
			return mapItemError(err, fmt.Sprintf("ending the attempt on %s", item))
		}
		return wrapError(CodeResponseProcessing, err, "ending the attempt on %s", item)
	}
	s.lastUpdate[it.ItemRef.Identifier] = it.Occurrence
	if s.submit != nil {
		if err := s.submit.SubmitItemResults(item); err != nil {
			return wrapError(CodeResultSubmission, err, "submitting item results for %s", item)
		}
	}
	if err := s.outcomeProcessing(); err != nil {
		return err
	}
	s.emit("endAttempt")
	return nil
}

// deferredResponseSubmission replays every pending response set in
// arrival order, submits the item results, runs outcome processing
// once, and clears the queue. A failing entry aborts the run with
// the queue intact.
func (s *TestSession) deferredResponseSubmission() error {
	if s.pending.Len() == 0 {
		return nil
	}
	for _, pr := range s.pending.All() {
		item, ok := s.store.Get(pr.Ref, pr.Occurrence)
		if !ok {
			return newError(CodeLogicError, "pending responses for missing session %s.%d", pr.Ref.Identifier, pr.Occurrence)
		}
		if err := item.endDeferredAttempt(pr.Responses); err != nil {
			var itemErr *ItemError
			if errors.As(err, &itemErr) {
				return mapItemError(err, fmt.Sprintf("submitting deferred responses for %s", item))
			}
			return wrapError(CodeResponseProcessing, err, "submitting deferred responses for %s", item)
		}
		s.lastUpdate[pr.Ref.Identifier] = pr.Occurrence
		if s.submit != nil {
			if err := s.submit.SubmitItemResults(item); err != nil {
				return wrapError(CodeResultSubmission, err, "submitting item results for %s", item)
			}
		}
	}
	s.pending.Clear()
	return s.outcomeProcessing()
}
