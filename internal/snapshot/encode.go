package snapshot

import (
	"fmt"
	"sort"

	"proctor/internal/model"
	"proctor/internal/route"
	"proctor/internal/session"
	"proctor/pkg/qti"
)

const (
	streamMagic   = "QTS"
	streamVersion = 1
)

// maxRouteItems is the largest route the one-byte count field can
// describe.
const maxRouteItems = 255

// Encode serializes a test session into the versioned binary stream.
func Encode(s *session.TestSession) ([]byte, error) {
	test := s.Test()
	seeker := model.NewSeeker(test)
	snap := s.Snapshot()
	r := s.Route()
	if r.Count() > maxRouteItems {
		return nil, fmt.Errorf("route of %d items exceeds the %d the stream can describe",
			r.Count(), maxRouteItems)
	}

	w := &writer{}
	w.buf.WriteString(streamMagic)
	w.u8(streamVersion)
	w.u8(uint8(snap.State))
	w.u8(uint8(snap.Position))
	w.u8(uint8(r.Count()))
	for i, it := range r.Items() {
		if err := encodeRouteItem(w, seeker, it); err != nil {
			return nil, fmt.Errorf("route item %d: %w", i, err)
		}
		if err := encodeItemRecord(w, seeker, it.ItemRef, snap.Items[i]); err != nil {
			return nil, fmt.Errorf("item session %s: %w", it, err)
		}
	}
	for i, decl := range test.OutcomeDeclarations {
		if err := encodeValue(w, decl, snap.Outcomes[i]); err != nil {
			return nil, fmt.Errorf("outcome %s: %w", decl.Identifier, err)
		}
	}
	if err := encodeExtensions(w, seeker, snap); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// encodeRouteItem writes the occurrence's location in the test tree and
// its effective rules, all as document-order indexes.
func encodeRouteItem(w *writer, seeker *model.Seeker, it *route.Item) error {
	if err := writeIndexOf(w, seeker, it.TestPart); err != nil {
		return err
	}
	w.count(len(it.Sections))
	for _, sec := range it.Sections {
		if err := writeIndexOf(w, seeker, sec); err != nil {
			return err
		}
	}
	if err := writeIndexOf(w, seeker, it.ItemRef); err != nil {
		return err
	}
	w.count(it.Occurrence)
	w.count(len(it.BranchRules))
	for _, rule := range it.BranchRules {
		if err := writeIndexOf(w, seeker, rule); err != nil {
			return err
		}
	}
	w.count(len(it.PreConditions))
	for _, rule := range it.PreConditions {
		if err := writeIndexOf(w, seeker, rule); err != nil {
			return err
		}
	}
	return nil
}

// encodeItemRecord writes one item session's runtime state. An
// occurrence that was never materialized still gets a record, marked
// not-selected, so the stream shape stays uniform.
func encodeItemRecord(w *writer, seeker *model.Seeker, ref *model.AssessmentItemRef, rec *session.ItemSnapshot) error {
	if rec == nil {
		rec = &session.ItemSnapshot{
			State:      session.ItemNotSelected,
			Completion: session.CompletionNotAttempted,
		}
	}
	w.u8(uint8(rec.State))
	w.count(rec.NumAttempts)
	w.str(rec.Duration.ISO())
	w.str(rec.Completion)
	if err := encodeDeclaredValues(w, seeker, ref.ResponseDeclarations, rec.Variables); err != nil {
		return err
	}
	return encodeDeclaredValues(w, seeker, ref.OutcomeDeclarations, rec.Variables)
}

func encodeDeclaredValues(w *writer, seeker *model.Seeker, decls []*model.VariableDeclaration, values map[string]qti.Value) error {
	w.count(len(decls))
	for _, decl := range decls {
		if err := writeIndexOf(w, seeker, decl); err != nil {
			return err
		}
		if err := encodeValue(w, decl, values[decl.Identifier]); err != nil {
			return err
		}
	}
	return nil
}

// encodeExtensions writes the trailing sections that carry runtime
// state outside the per-item records: accumulated durations, last
// occurrence updates, visited test parts, the navigation path, pending
// response sets, the behavior flags, and which sessions hold an open
// attempt.
func encodeExtensions(w *writer, seeker *model.Seeker, snap *session.SessionSnapshot) error {
	names := make([]string, 0, len(snap.Durations))
	for name := range snap.Durations {
		names = append(names, name)
	}
	sort.Strings(names)
	w.count(len(names))
	for _, name := range names {
		w.str(name)
		w.str(snap.Durations[name].ISO())
	}

	refIndex, partIndex := identifierIndexes(seeker)
	updates := make([]string, 0, len(snap.LastOccurrenceUpdate))
	for name := range snap.LastOccurrenceUpdate {
		updates = append(updates, name)
	}
	sort.Slice(updates, func(i, j int) bool { return refIndex[updates[i]] < refIndex[updates[j]] })
	w.count(len(updates))
	for _, name := range updates {
		idx, ok := refIndex[name]
		if !ok {
			return fmt.Errorf("last update names unknown item ref %q", name)
		}
		w.count(idx)
		w.count(snap.LastOccurrenceUpdate[name])
	}

	w.count(len(snap.VisitedTestParts))
	for _, name := range snap.VisitedTestParts {
		idx, ok := partIndex[name]
		if !ok {
			return fmt.Errorf("visited list names unknown test part %q", name)
		}
		w.count(idx)
	}

	w.count(len(snap.Path))
	for _, pos := range snap.Path {
		w.count(pos)
	}

	w.count(len(snap.Pending))
	for _, pr := range snap.Pending {
		if err := encodePending(w, seeker, pr); err != nil {
			return err
		}
	}

	w.u8(uint8(snap.Config))

	attempting := make([]int, 0)
	for i, rec := range snap.Items {
		if rec != nil && rec.Attempting {
			attempting = append(attempting, i)
		}
	}
	w.count(len(attempting))
	for _, i := range attempting {
		w.count(i)
	}
	return nil
}

func encodePending(w *writer, seeker *model.Seeker, pr *session.PendingResponses) error {
	if err := writeIndexOf(w, seeker, pr.Ref); err != nil {
		return err
	}
	w.count(pr.Occurrence)
	names := make([]string, 0, len(pr.Responses))
	for name := range pr.Responses {
		names = append(names, name)
	}
	sort.Strings(names)
	w.count(len(names))
	for _, name := range names {
		decl := pr.Ref.ResponseDeclaration(name)
		if decl == nil {
			return fmt.Errorf("pending set for %s.%d names undeclared response %q",
				pr.Ref.Identifier, pr.Occurrence, name)
		}
		w.str(name)
		if err := encodeValue(w, decl, pr.Responses[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeIndexOf(w *writer, seeker *model.Seeker, component interface{}) error {
	i, err := seeker.IndexOf(component)
	if err != nil {
		return err
	}
	w.count(i)
	return nil
}

// identifierIndexes maps item ref and test part identifiers to their
// document-order indexes.
func identifierIndexes(seeker *model.Seeker) (refs map[string]int, parts map[string]int) {
	refs = make(map[string]int, seeker.Count(model.ClassAssessmentItemRef))
	for i := 0; i < seeker.Count(model.ClassAssessmentItemRef); i++ {
		c, err := seeker.ComponentByIndex(model.ClassAssessmentItemRef, i)
		if err != nil {
			continue
		}
		refs[c.(*model.AssessmentItemRef).Identifier] = i
	}
	parts = make(map[string]int, seeker.Count(model.ClassTestPart))
	for i := 0; i < seeker.Count(model.ClassTestPart); i++ {
		c, err := seeker.ComponentByIndex(model.ClassTestPart, i)
		if err != nil {
			continue
		}
		parts[c.(*model.TestPart).Identifier] = i
	}
	return refs, parts
}
