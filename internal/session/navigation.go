package session

import (
	"proctor/internal/model"
	"proctor/internal/route"
	"proctor/pkg/qti"
)

// MoveNext advances to the next eligible route item, following branch
// rules and skipping items whose preconditions fail. A modal feedback
// due at the current position fires instead of moving; in modal
// feedback state the call dismisses the feedback and stays put.
func (s *TestSession) MoveNext() error {
	if s.state != TestInteracting && s.state != TestModalFeedback {
		return newError(CodeStateViolation, "cannot move next in state %s", s.state)
	}
	s.suspendCurrentItem()
	if s.state == TestModalFeedback {
		s.state = TestInteracting
		s.dismissed = true
		s.emit("moveNext")
		return nil
	}
	if !s.dismissed && len(s.ActiveFeedbacks()) > 0 {
		s.state = TestModalFeedback
		s.emit("moveNext")
		return nil
	}
	origin := s.route.Position()
	pathLen := len(s.path)
	if s.config.Has(PathTracking) {
		s.path = append(s.path, origin)
	}
	if err := s.nextRouteItem(false); err != nil {
		_ = s.route.SetPosition(origin)
		s.path = s.path[:pathLen]
		s.interactWithItemSession()
		return err
	}
	s.dismissed = false
	if s.state == TestInteracting {
		s.interactWithItemSession()
		s.markTestPartVisited()
	}
	s.emit("moveNext")
	return nil
}

// nextRouteItem advances the cursor to the next route item passing
// its preconditions. Branch rules on the departed item are honored
// once; pending responses flush when a simultaneous part is left
// behind; an exhausted route ends the session.
func (s *TestSession) nextRouteItem(ignoreBranching bool) error {
	if s.route.IsLastOfTestPart() {
		if it, err := s.route.Current(); err == nil && it.TestPart.SubmissionMode == model.SubmissionSimultaneous {
			if err := s.deferredResponseSubmission(); err != nil {
				return err
			}
		}
	}
	for {
		it, err := s.route.Current()
		if err != nil {
			return newError(CodeLogicError, "no current route item")
		}
		from := it.TestPart
		branched := false
		if !ignoreBranching && len(it.BranchRules) > 0 && s.branchRulesApply(it) {
			target, matched, err := s.matchBranchRule(it)
			if err != nil {
				return err
			}
			if matched {
				switch target {
				case model.BranchExitTest:
					_ = s.route.SetPosition(s.route.Count())
				case model.BranchExitTestPart:
					s.skipPastTestPart(it.TestPart)
				case model.BranchExitSection:
					s.skipPastSection(it.Section())
				default:
					if err := s.route.Branch(target); err != nil {
						return wrapError(CodeForbiddenJump, err, "branching to %q", target)
					}
				}
				branched = true
			}
		}
		if !branched {
			if err := s.route.Next(); err != nil {
				return wrapError(CodeForbiddenJump, err, "advancing the route")
			}
		}
		if cur, err := s.route.Current(); err == nil && cur.TestPart != from &&
			from.SubmissionMode == model.SubmissionSimultaneous {
			if err := s.deferredResponseSubmission(); err != nil {
				return err
			}
		}
		if s.route.Ended() {
			break
		}
		passed, err := s.preconditionsPass(from)
		if err != nil {
			return err
		}
		if passed {
			break
		}
		ignoreBranching = true
	}
	if s.route.Ended() {
		if s.state == TestInteracting {
			return s.endSession()
		}
		return nil
	}
	return s.selectEligibleItems()
}

// branchRulesApply reports whether branch rules bind on the departed
// item: always in linear parts, only under ForceBranching otherwise.
func (s *TestSession) branchRulesApply(it *route.Item) bool {
	return it.TestPart.NavigationMode == model.NavigationLinear || s.config.Has(ForceBranching)
}

// matchBranchRule evaluates the item's branch rules in order and
// returns the first matching target.
func (s *TestSession) matchBranchRule(it *route.Item) (string, bool, error) {
	for _, rule := range it.BranchRules {
		ok, err := s.evalCondition(rule.Expression)
		if err != nil {
			return "", false, wrapError(CodeLogicError, err, "branch rule on %s", it)
		}
		if ok {
			return rule.Target, true, nil
		}
	}
	return "", false, nil
}

// preconditionsPass evaluates the preconditions guarding the current
// route item. Linear parts (and ForcePreconditions) use the item's
// effective rules; a nonlinear part gates entry with its own rules
// only when the cursor crosses into it.
func (s *TestSession) preconditionsPass(from *model.TestPart) (bool, error) {
	it, err := s.route.Current()
	if err != nil {
		return false, newError(CodeLogicError, "no current route item")
	}
	var rules []*model.PreCondition
	switch {
	case it.TestPart.NavigationMode == model.NavigationLinear || s.config.Has(ForcePreconditions):
		rules = it.PreConditions
	case it.TestPart != from:
		rules = it.TestPart.PreConditions
	}
	for _, rule := range rules {
		ok, err := s.evalCondition(rule.Expression)
		if err != nil {
			return false, wrapError(CodeLogicError, err, "precondition on %s", it)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// skipPastTestPart moves the cursor just past the last route item of
// part.
func (s *TestSession) skipPastTestPart(part *model.TestPart) {
	items := s.route.Items()
	pos := s.route.Position()
	for pos < len(items) && items[pos].TestPart == part {
		pos++
	}
	_ = s.route.SetPosition(pos)
}

// skipPastSection moves the cursor just past the contiguous run of
// route items enclosed by section.
func (s *TestSession) skipPastSection(section *model.AssessmentSection) {
	if section == nil {
		return
	}
	items := s.route.Items()
	pos := s.route.Position()
	for pos < len(items) && enclosedBy(items[pos], section) {
		pos++
	}
	_ = s.route.SetPosition(pos)
}

func enclosedBy(it *route.Item, section *model.AssessmentSection) bool {
	for _, sec := range it.Sections {
		if sec == section {
			return true
		}
	}
	return false
}

// MoveBack returns to the previously visited position: the recorded
// path when path tracking is on, otherwise the previous route item.
// Linear parts refuse to move backward.
func (s *TestSession) MoveBack() error {
	if s.state != TestInteracting {
		return newError(CodeStateViolation, "cannot move back in state %s", s.state)
	}
	if s.config.Has(PathTracking) && len(s.path) > 0 {
		target := s.path[len(s.path)-1]
		if err := s.jumpCursor(target); err != nil {
			return err
		}
		s.path = s.path[:len(s.path)-1]
		s.emit("moveBack")
		return nil
	}
	it, err := s.route.Current()
	if err != nil {
		return newError(CodeStateViolation, "no current item")
	}
	if s.route.Position() == 0 {
		return newError(CodeStateViolation, "no previous route item")
	}
	if it.TestPart.NavigationMode == model.NavigationLinear && !s.config.Has(AlwaysAllowJumps) {
		return newError(CodeNavigationModeViolation, "part %s forbids moving back", it.TestPart.Identifier)
	}
	s.suspendCurrentItem()
	if err := s.route.Previous(); err != nil {
		return wrapError(CodeStateViolation, err, "moving back")
	}
	if err := s.selectEligibleItems(); err != nil {
		return err
	}
	s.dismissed = false
	s.interactWithItemSession()
	s.markTestPartVisited()
	s.emit("moveBack")
	return nil
}

// JumpTo moves the cursor straight to a route position. Jumps need
// nonlinear navigation unless AlwaysAllowJumps is set. Under path
// tracking a jump onto a recorded position rewinds the path to before
// it; any other jump pushes the origin.
func (s *TestSession) JumpTo(position int) error {
	if s.state != TestInteracting {
		return newError(CodeStateViolation, "cannot jump in state %s", s.state)
	}
	it, err := s.route.Current()
	if err != nil {
		return newError(CodeStateViolation, "no current item")
	}
	if it.TestPart.NavigationMode != model.NavigationNonLinear && !s.config.Has(AlwaysAllowJumps) {
		return newError(CodeNavigationModeViolation, "part %s forbids jumps", it.TestPart.Identifier)
	}
	origin := s.route.Position()
	if err := s.jumpCursor(position); err != nil {
		return err
	}
	if s.config.Has(PathTracking) {
		if i := indexOfPosition(s.path, position); i >= 0 {
			s.path = s.path[:i]
		} else {
			s.path = append(s.path, origin)
		}
	}
	s.emit("jumpTo")
	return nil
}

// jumpCursor performs the cursor move shared by JumpTo and the
// path-tracked MoveBack, restoring the origin on failure.
func (s *TestSession) jumpCursor(position int) error {
	if position < 0 || position >= s.route.Count() {
		return newError(CodeForbiddenJump, "position %d is outside the route", position)
	}
	origin := s.route.Position()
	s.suspendCurrentItem()
	_ = s.route.SetPosition(position)
	if err := s.selectEligibleItems(); err != nil {
		_ = s.route.SetPosition(origin)
		s.interactWithItemSession()
		return err
	}
	s.dismissed = false
	s.interactWithItemSession()
	s.markTestPartVisited()
	return nil
}

func indexOfPosition(path []int, position int) int {
	for i, p := range path {
		if p == position {
			return i
		}
	}
	return -1
}

// MoveNextTestPart leaves the current test part, flushing pending
// responses of a simultaneous part first, and lands on the next
// part's first eligible item. The session ends when no item remains.
func (s *TestSession) MoveNextTestPart() error {
	if s.state != TestInteracting {
		return newError(CodeStateViolation, "cannot leave the test part in state %s", s.state)
	}
	it, err := s.route.Current()
	if err != nil {
		return newError(CodeStateViolation, "no current item")
	}
	s.suspendCurrentItem()
	if it.TestPart.SubmissionMode == model.SubmissionSimultaneous {
		if err := s.deferredResponseSubmission(); err != nil {
			return err
		}
	}
	origin := s.route.Position()
	s.skipPastTestPart(it.TestPart)
	if err := s.landAfterSkip(origin); err != nil {
		return err
	}
	s.emit("moveNextTestPart")
	return nil
}

// MoveNextAssessmentSection leaves the current item's innermost
// section. Pending responses flush when the skip also leaves a
// simultaneous part.
func (s *TestSession) MoveNextAssessmentSection() error {
	if s.state != TestInteracting {
		return newError(CodeStateViolation, "cannot leave the section in state %s", s.state)
	}
	it, err := s.route.Current()
	if err != nil {
		return newError(CodeStateViolation, "no current item")
	}
	s.suspendCurrentItem()
	origin := s.route.Position()
	s.skipPastSection(it.Section())
	leavesPart := s.route.Ended()
	if cur, err := s.route.Current(); err == nil {
		leavesPart = cur.TestPart != it.TestPart
	}
	if leavesPart && !s.route.Ended() && it.TestPart.SubmissionMode == model.SubmissionSimultaneous {
		if err := s.deferredResponseSubmission(); err != nil {
			_ = s.route.SetPosition(origin)
			s.interactWithItemSession()
			return err
		}
	}
	if err := s.landAfterSkip(origin); err != nil {
		return err
	}
	s.emit("moveNextAssessmentSection")
	return nil
}

// landAfterSkip finishes a forced move: an exhausted route ends the
// session, anything else materializes and resumes the landing item.
// The origin cursor is restored on failure.
func (s *TestSession) landAfterSkip(origin int) error {
	if s.route.Ended() {
		if s.state == TestInteracting {
			return s.endSession()
		}
		return nil
	}
	if err := s.selectEligibleItems(); err != nil {
		_ = s.route.SetPosition(origin)
		s.interactWithItemSession()
		return err
	}
	s.dismissed = false
	s.interactWithItemSession()
	s.markTestPartVisited()
	return nil
}

// ActiveFeedbacks returns the test and current-part feedbacks whose
// outcome condition holds right now. Feedbacks shown at the end of
// their scope only count when the cursor stands on the scope's last
// item.
func (s *TestSession) ActiveFeedbacks() []*model.TestFeedback {
	it, err := s.route.Current()
	if err != nil {
		return nil
	}
	var active []*model.TestFeedback
	for _, fb := range s.test.TestFeedbacks {
		if fb.Access == model.AccessAtEnd && !s.route.IsLast() {
			continue
		}
		if s.feedbackFires(fb) {
			active = append(active, fb)
		}
	}
	for _, fb := range it.TestPart.TestFeedbacks {
		if fb.Access == model.AccessAtEnd && !s.route.IsLastOfTestPart() {
			continue
		}
		if s.feedbackFires(fb) {
			active = append(active, fb)
		}
	}
	return active
}

// feedbackFires checks the outcome binding of one feedback: single
// outcomes match by equality, containers by membership, and showHide
// flips the result. A null outcome never matches.
func (s *TestSession) feedbackFires(fb *model.TestFeedback) bool {
	v, _ := s.vars.Get(fb.OutcomeIdentifier)
	matches := false
	if !qti.IsNull(v) {
		want := qti.Identifier(fb.Identifier)
		if container, ok := v.(*qti.Container); ok {
			matches = container.Contains(want)
		} else {
			matches = v.Equal(want)
		}
	}
	if fb.ShowHide == model.Hide {
		return !matches
	}
	return matches
}
