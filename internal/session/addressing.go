package session

import (
	"proctor/internal/model"
	"proctor/pkg/qti"
)

// Get resolves a variable identifier. A bare name reads the global
// scope, with "duration" meaning the accumulated test duration. An
// item-prefixed name reads the addressed item session; a part or
// section prefix combined with "duration" reads that scope's
// duration. Unknown or unresolved targets read as null.
func (s *TestSession) Get(identifier string) (qti.Value, error) {
	vid, err := qti.ParseVariableID(identifier)
	if err != nil {
		return nil, wrapError(CodeOutOfRange, err, "reading %q", identifier)
	}
	if !vid.Prefixed() {
		if vid.Name == "duration" {
			return s.durations.Get(s.test.Identifier), nil
		}
		v, _ := s.vars.Get(vid.Name)
		return v, nil
	}
	if ref, part := s.findRoutedItemRef(vid.Prefix); ref != nil {
		occurrence, ok := s.resolveOccurrence(ref, part, vid)
		if !ok {
			return nil, nil
		}
		item, found := s.store.Get(ref, occurrence)
		if !found {
			return nil, nil
		}
		return itemScope{item}.Lookup(vid.Name)
	}
	if vid.Name == "duration" && s.isDurationScope(vid.Prefix) {
		return s.durations.Get(vid.Prefix), nil
	}
	return nil, nil
}

// Set writes a value to a declared variable: a bare name writes the
// global scope, an item-prefixed name writes the addressed item
// session. Targets that do not resolve to a declared variable fail
// with UnknownVariable; the built-in variables are read-only.
func (s *TestSession) Set(identifier string, value qti.Value) error {
	vid, err := qti.ParseVariableID(identifier)
	if err != nil {
		return wrapError(CodeOutOfRange, err, "writing %q", identifier)
	}
	if !vid.Prefixed() {
		if !s.vars.Has(vid.Name) {
			return newError(CodeUnknownVariable, "%q is not a declared test variable", vid.Name)
		}
		if err := s.vars.Set(vid.Name, value); err != nil {
			return newError(CodeOutOfRange, "%v", err)
		}
		return nil
	}
	ref, part := s.findRoutedItemRef(vid.Prefix)
	if ref == nil {
		return newError(CodeUnknownVariable, "%q does not address an item", identifier)
	}
	occurrence, ok := s.resolveOccurrence(ref, part, vid)
	if !ok {
		return newError(CodeUnknownVariable, "%q does not address an updated occurrence", identifier)
	}
	item, found := s.store.Get(ref, occurrence)
	if !found {
		return newError(CodeUnknownVariable, "no item session for %s.%d", ref.Identifier, occurrence)
	}
	if !item.Vars().Has(vid.Name) {
		return newError(CodeUnknownVariable, "%q is not declared by item %s", vid.Name, ref.Identifier)
	}
	if err := item.Vars().Set(vid.Name, value); err != nil {
		return newError(CodeOutOfRange, "%v", err)
	}
	return nil
}

// Unset clears a global variable's value, keeping the declaration.
// Item-scoped identifiers are out of scope here.
func (s *TestSession) Unset(identifier string) error {
	vid, err := qti.ParseVariableID(identifier)
	if err != nil {
		return wrapError(CodeOutOfRange, err, "clearing %q", identifier)
	}
	if vid.Prefixed() {
		return newError(CodeOutOfScope, "cannot clear %q outside the global scope", identifier)
	}
	if !s.vars.Has(vid.Name) {
		return newError(CodeUnknownVariable, "%q is not a declared test variable", vid.Name)
	}
	return s.vars.Unset(vid.Name)
}

// findRoutedItemRef scans the route for the item reference with the
// given identifier and the part delivering it.
func (s *TestSession) findRoutedItemRef(identifier string) (*model.AssessmentItemRef, *model.TestPart) {
	for _, it := range s.route.Items() {
		if it.ItemRef.Identifier == identifier {
			return it.ItemRef, it.TestPart
		}
	}
	return nil, nil
}

// resolveOccurrence picks the occurrence an identifier addresses: the
// explicit 1-based sequence when present, otherwise the last updated
// occurrence. With individual submission an absent update entry
// leaves the reference unresolved; with simultaneous submission it
// falls back to the first occurrence.
func (s *TestSession) resolveOccurrence(ref *model.AssessmentItemRef, part *model.TestPart, vid qti.VariableID) (int, bool) {
	if vid.HasSequence() {
		return vid.Sequence - 1, true
	}
	if last, ok := s.lastUpdate[ref.Identifier]; ok {
		return last, true
	}
	if part.SubmissionMode == model.SubmissionIndividual {
		return 0, false
	}
	return 0, true
}

// isDurationScope reports whether the identifier names a test part or
// a section on the route.
func (s *TestSession) isDurationScope(identifier string) bool {
	for _, it := range s.route.Items() {
		if it.TestPart.Identifier == identifier || it.InSection(identifier) {
			return true
		}
	}
	return false
}

// testScope resolves identifiers for branch rules, preconditions,
// template defaults, and outcome processing, delegating to the
// session's addressing rules.
type testScope struct {
	s *TestSession
}

func (sc testScope) Lookup(identifier string) (qti.Value, error) {
	return sc.s.Get(identifier)
}

func (sc testScope) CorrectResponse(identifier string) (qti.Value, error) {
	vid, err := qti.ParseVariableID(identifier)
	if err != nil {
		return nil, wrapError(CodeOutOfRange, err, "reading the correct response of %q", identifier)
	}
	if !vid.Prefixed() {
		return nil, nil
	}
	ref, _ := sc.s.findRoutedItemRef(vid.Prefix)
	if ref == nil {
		return nil, nil
	}
	decl := ref.ResponseDeclaration(vid.Name)
	if decl == nil {
		return nil, nil
	}
	return decl.Correct, nil
}
