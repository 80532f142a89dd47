package session

import (
	"time"

	"proctor/internal/model"
	"proctor/internal/route"
	"proctor/pkg/qti"
)

// SetTime feeds a wall-clock observation to the session. While the
// session interacts, the elapsed time since the previous observation
// is credited to the test, the current part, and its section chain;
// every live item session sees the observation and credits itself.
// A scope that exhausts its maximum time closes.
func (s *TestSession) SetTime(t time.Time) error {
	t = t.UTC()
	crediting := s.state == TestInteracting && s.hasTimeRef
	if crediting {
		delta := t.Sub(s.timeRef)
		if delta < 0 {
			delta = -delta
		}
		d := qti.Duration(delta)
		s.durations.Add(s.test.Identifier, d)
		if it, err := s.route.Current(); err == nil {
			s.durations.Add(it.TestPart.Identifier, d)
			for _, sec := range it.Sections {
				s.durations.Add(sec.Identifier, d)
			}
		}
	}
	for _, item := range s.store.All() {
		item.SetTime(t)
	}
	s.timeRef = t
	s.hasTimeRef = true
	if crediting {
		return s.enforceMaxTimes()
	}
	return nil
}

// TimeReference returns the last observation fed to SetTime and
// whether one exists.
func (s *TestSession) TimeReference() (time.Time, bool) {
	return s.timeRef, s.hasTimeRef
}

// enforceMaxTimes clamps every credited scope to its maximum and
// closes scopes with no time left. Sections close their items, the
// current part closes its items, and the test scope ends the whole
// session.
func (s *TestSession) enforceMaxTimes() error {
	it, err := s.route.Current()
	if err != nil {
		return nil
	}
	for _, sec := range it.Sections {
		if sec.TimeLimits.HasMaxTime() && s.durations.Get(sec.Identifier) >= *sec.TimeLimits.MaxTime {
			s.durations.Set(sec.Identifier, *sec.TimeLimits.MaxTime)
			s.closeScopeItems(s.route.ItemsBySection(sec.Identifier))
		}
	}
	part := it.TestPart
	if part.TimeLimits.HasMaxTime() && s.durations.Get(part.Identifier) >= *part.TimeLimits.MaxTime {
		s.durations.Set(part.Identifier, *part.TimeLimits.MaxTime)
		s.closeScopeItems(s.route.ItemsByTestPart(part.Identifier))
	}
	if s.test.TimeLimits.HasMaxTime() && s.durations.Get(s.test.Identifier) >= *s.test.TimeLimits.MaxTime {
		s.durations.Set(s.test.Identifier, *s.test.TimeLimits.MaxTime)
		if s.state != TestClosed {
			return s.endSession()
		}
	}
	return nil
}

// closeScopeItems ends every materialized session among items.
func (s *TestSession) closeScopeItems(items []*route.Item) {
	for _, it := range items {
		if item, ok := s.store.Get(it.ItemRef, it.Occurrence); ok {
			item.End()
		}
	}
}

// CheckTimeLimits verifies the test, part, and section constraints in
// force at the cursor, innermost last. Minimum times bind only at the
// end of an attempt in a linear part; includeItem extends the check
// to the current item's own limits.
func (s *TestSession) CheckTimeLimits(includeMinTime, includeItem bool) error {
	it, err := s.route.Current()
	if err != nil {
		return nil
	}
	linear := it.TestPart.NavigationMode == model.NavigationLinear
	minTime := includeMinTime && linear
	if err := s.checkScope(s.test.TimeLimits, s.test.Identifier, minTime,
		CodeTestDurationOverflow, CodeTestDurationUnderflow); err != nil {
		return err
	}
	if err := s.checkScope(it.TestPart.TimeLimits, it.TestPart.Identifier, minTime,
		CodeTestPartDurationOverflow, CodeTestPartDurationUnderflow); err != nil {
		return err
	}
	for _, sec := range it.Sections {
		if err := s.checkScope(sec.TimeLimits, sec.Identifier, minTime,
			CodeSectionDurationOverflow, CodeSectionDurationUnderflow); err != nil {
			return err
		}
	}
	if includeItem {
		if item := s.CurrentItemSession(); item != nil && item.Limits() != nil {
			limits := item.Limits()
			elapsed := item.Duration()
			if minTime && limits.HasMinTime() && elapsed < *limits.MinTime {
				return newError(CodeItemDurationUnderflow,
					"%s: minimum time of %s not reached", it, limits.MinTime.ISO())
			}
			if limits.HasMaxTime() && !limits.AllowLateSubmission && elapsed >= *limits.MaxTime {
				return newError(CodeItemDurationOverflow,
					"%s: maximum time of %s reached", it, limits.MaxTime.ISO())
			}
		}
	}
	return nil
}

func (s *TestSession) checkScope(limits *model.TimeLimits, identifier string, includeMinTime bool,
	overflow, underflow Code) error {
	if limits == nil {
		return nil
	}
	elapsed := s.durations.Get(identifier)
	if includeMinTime && limits.HasMinTime() && elapsed < *limits.MinTime {
		return newError(underflow, "%s: minimum time of %s not reached", identifier, limits.MinTime.ISO())
	}
	if limits.HasMaxTime() && !limits.AllowLateSubmission && elapsed >= *limits.MaxTime {
		return newError(overflow, "%s: maximum time of %s reached", identifier, limits.MaxTime.ISO())
	}
	return nil
}
