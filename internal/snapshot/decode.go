package snapshot

import (
	"bytes"
	"fmt"
	"math"

	"proctor/internal/expr"
	"proctor/internal/model"
	"proctor/internal/route"
	"proctor/internal/session"
	"proctor/pkg/qti"
)

// Decode rebuilds a session from its encoded form. The test must be
// the identical model the snapshot was encoded against; factory,
// submitter, and event sink come from opts, the behavior flags from
// the stream.
func Decode(data []byte, test *model.AssessmentTest, engine expr.Engine, opts *session.Options) (*session.TestSession, error) {
	r := &reader{data: data}
	header, err := r.take(len(streamMagic))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(header, []byte(streamMagic)) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformed, header)
	}
	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if version != streamVersion {
		return nil, fmt.Errorf("%w: got %d, this codec reads %d", ErrVersion, version, streamVersion)
	}

	stateByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	if stateByte < uint8(session.TestInitial) || stateByte > uint8(session.TestClosed) {
		return nil, fmt.Errorf("%w: test state %d", ErrMalformed, stateByte)
	}
	position, err := r.u8()
	if err != nil {
		return nil, err
	}
	count, err := r.u8()
	if err != nil {
		return nil, err
	}
	if int(position) > int(count) {
		return nil, fmt.Errorf("%w: position %d past route of %d", ErrMalformed, position, count)
	}

	seeker := model.NewSeeker(test)
	items := make([]*route.Item, count)
	recs := make([]*session.ItemSnapshot, count)
	for i := range items {
		it, err := decodeRouteItem(r, seeker)
		if err != nil {
			return nil, fmt.Errorf("route item %d: %w", i, err)
		}
		items[i] = it
		rec, err := decodeItemRecord(r, seeker, it.ItemRef)
		if err != nil {
			return nil, fmt.Errorf("item session %s: %w", it, err)
		}
		recs[i] = rec
	}

	outcomes := make([]qti.Value, 0, len(test.OutcomeDeclarations))
	for _, decl := range test.OutcomeDeclarations {
		v, err := decodeValue(r, decl)
		if err != nil {
			return nil, fmt.Errorf("outcome %s: %w", decl.Identifier, err)
		}
		outcomes = append(outcomes, v)
	}

	snap := &session.SessionSnapshot{
		State:                session.TestState(stateByte),
		Position:             int(position),
		Items:                recs,
		Outcomes:             outcomes,
		Durations:            make(map[string]qti.Duration),
		LastOccurrenceUpdate: make(map[string]int),
	}
	if err := decodeExtensions(r, seeker, snap); err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.remaining())
	}
	return session.Restore(test, route.New(items), engine, opts, snap)
}

// PeekState reads the test state from a snapshot header without
// decoding the rest of the stream. Listings use it to report stored
// sessions cheaply.
func PeekState(data []byte) (session.TestState, error) {
	r := &reader{data: data}
	header, err := r.take(len(streamMagic))
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(header, []byte(streamMagic)) {
		return 0, fmt.Errorf("%w: bad magic %q", ErrMalformed, header)
	}
	version, err := r.u8()
	if err != nil {
		return 0, err
	}
	if version != streamVersion {
		return 0, fmt.Errorf("%w: got %d, this codec reads %d", ErrVersion, version, streamVersion)
	}
	stateByte, err := r.u8()
	if err != nil {
		return 0, err
	}
	if stateByte < uint8(session.TestInitial) || stateByte > uint8(session.TestClosed) {
		return 0, fmt.Errorf("%w: test state %d", ErrMalformed, stateByte)
	}
	return session.TestState(stateByte), nil
}

// index reads a varint used as a document-order index, an occurrence
// number, or a route position.
func (r *reader) index() (int, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: index %d out of range", ErrMalformed, v)
	}
	return int(v), nil
}

func componentAt(seeker *model.Seeker, class string, i int) (interface{}, error) {
	c, err := seeker.ComponentByIndex(class, i)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c, nil
}

func decodeRouteItem(r *reader, seeker *model.Seeker) (*route.Item, error) {
	partIdx, err := r.index()
	if err != nil {
		return nil, err
	}
	c, err := componentAt(seeker, model.ClassTestPart, partIdx)
	if err != nil {
		return nil, err
	}
	part := c.(*model.TestPart)

	chainLen, err := r.count()
	if err != nil {
		return nil, err
	}
	sections := make([]*model.AssessmentSection, chainLen)
	for i := range sections {
		idx, err := r.index()
		if err != nil {
			return nil, err
		}
		c, err := componentAt(seeker, model.ClassAssessmentSection, idx)
		if err != nil {
			return nil, err
		}
		sections[i] = c.(*model.AssessmentSection)
	}

	refIdx, err := r.index()
	if err != nil {
		return nil, err
	}
	c, err = componentAt(seeker, model.ClassAssessmentItemRef, refIdx)
	if err != nil {
		return nil, err
	}
	ref := c.(*model.AssessmentItemRef)

	occurrence, err := r.index()
	if err != nil {
		return nil, err
	}
	branches, err := decodeBranchRules(r, seeker)
	if err != nil {
		return nil, err
	}
	preconditions, err := decodePreConditions(r, seeker)
	if err != nil {
		return nil, err
	}

	return &route.Item{
		ItemRef:       ref,
		Occurrence:    occurrence,
		TestPart:      part,
		Sections:      sections,
		PreConditions: preconditions,
		BranchRules:   branches,
		Control:       route.EffectiveControl(ref, sections, part),
		TimeLimits:    ref.TimeLimits,
	}, nil
}

func decodeBranchRules(r *reader, seeker *model.Seeker) ([]*model.BranchRule, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	rules := make([]*model.BranchRule, n)
	for i := range rules {
		idx, err := r.index()
		if err != nil {
			return nil, err
		}
		c, err := componentAt(seeker, model.ClassBranchRule, idx)
		if err != nil {
			return nil, err
		}
		rules[i] = c.(*model.BranchRule)
	}
	return rules, nil
}

func decodePreConditions(r *reader, seeker *model.Seeker) ([]*model.PreCondition, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	rules := make([]*model.PreCondition, n)
	for i := range rules {
		idx, err := r.index()
		if err != nil {
			return nil, err
		}
		c, err := componentAt(seeker, model.ClassPreCondition, idx)
		if err != nil {
			return nil, err
		}
		rules[i] = c.(*model.PreCondition)
	}
	return rules, nil
}

func decodeItemRecord(r *reader, seeker *model.Seeker, ref *model.AssessmentItemRef) (*session.ItemSnapshot, error) {
	stateByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	if stateByte < uint8(session.ItemNotSelected) || stateByte > uint8(session.ItemModalFeedback) {
		return nil, fmt.Errorf("%w: item state %d", ErrMalformed, stateByte)
	}
	numAttempts, err := r.index()
	if err != nil {
		return nil, err
	}
	iso, err := r.str()
	if err != nil {
		return nil, err
	}
	duration, err := qti.ParseISODuration(iso)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	completion, err := r.str()
	if err != nil {
		return nil, err
	}
	rec := &session.ItemSnapshot{
		State:       session.ItemState(stateByte),
		NumAttempts: numAttempts,
		Duration:    duration,
		Completion:  completion,
		Variables:   make(map[string]qti.Value),
	}
	if err := decodeDeclaredValues(r, seeker, model.ClassResponseDeclaration, ref, rec.Variables); err != nil {
		return nil, err
	}
	if err := decodeDeclaredValues(r, seeker, model.ClassOutcomeDeclaration, ref, rec.Variables); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeDeclaredValues(r *reader, seeker *model.Seeker, class string, ref *model.AssessmentItemRef, into map[string]qti.Value) error {
	n, err := r.count()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		idx, err := r.index()
		if err != nil {
			return err
		}
		c, err := componentAt(seeker, class, idx)
		if err != nil {
			return err
		}
		decl := c.(*model.VariableDeclaration)
		if ref.Declaration(decl.Identifier) != decl {
			return fmt.Errorf("%w: %s %d is not declared by item %s",
				ErrMalformed, class, idx, ref.Identifier)
		}
		v, err := decodeValue(r, decl)
		if err != nil {
			return fmt.Errorf("variable %s: %w", decl.Identifier, err)
		}
		into[decl.Identifier] = v
	}
	return nil
}

func decodeExtensions(r *reader, seeker *model.Seeker, snap *session.SessionSnapshot) error {
	n, err := r.count()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		name, err := r.str()
		if err != nil {
			return err
		}
		iso, err := r.str()
		if err != nil {
			return err
		}
		d, err := qti.ParseISODuration(iso)
		if err != nil {
			return fmt.Errorf("%w: duration %s: %v", ErrMalformed, name, err)
		}
		snap.Durations[name] = d
	}

	if n, err = r.count(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		idx, err := r.index()
		if err != nil {
			return err
		}
		c, err := componentAt(seeker, model.ClassAssessmentItemRef, idx)
		if err != nil {
			return err
		}
		occurrence, err := r.index()
		if err != nil {
			return err
		}
		snap.LastOccurrenceUpdate[c.(*model.AssessmentItemRef).Identifier] = occurrence
	}

	if n, err = r.count(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		idx, err := r.index()
		if err != nil {
			return err
		}
		c, err := componentAt(seeker, model.ClassTestPart, idx)
		if err != nil {
			return err
		}
		snap.VisitedTestParts = append(snap.VisitedTestParts, c.(*model.TestPart).Identifier)
	}

	if n, err = r.count(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		pos, err := r.index()
		if err != nil {
			return err
		}
		snap.Path = append(snap.Path, pos)
	}

	if n, err = r.count(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		pr, err := decodePending(r, seeker)
		if err != nil {
			return err
		}
		snap.Pending = append(snap.Pending, pr)
	}

	flags, err := r.u8()
	if err != nil {
		return err
	}
	snap.Config = session.Config(flags)

	if n, err = r.count(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		idx, err := r.index()
		if err != nil {
			return err
		}
		if idx >= len(snap.Items) || snap.Items[idx] == nil || snap.Items[idx].State == session.ItemNotSelected {
			return fmt.Errorf("%w: open attempt on absent item session %d", ErrMalformed, idx)
		}
		snap.Items[idx].Attempting = true
	}
	return nil
}

func decodePending(r *reader, seeker *model.Seeker) (*session.PendingResponses, error) {
	idx, err := r.index()
	if err != nil {
		return nil, err
	}
	c, err := componentAt(seeker, model.ClassAssessmentItemRef, idx)
	if err != nil {
		return nil, err
	}
	ref := c.(*model.AssessmentItemRef)
	occurrence, err := r.index()
	if err != nil {
		return nil, err
	}
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	responses := make(map[string]qti.Value, n)
	for i := 0; i < n; i++ {
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		decl := ref.ResponseDeclaration(name)
		if decl == nil {
			return nil, fmt.Errorf("%w: pending set for %s.%d names undeclared response %q",
				ErrMalformed, ref.Identifier, occurrence, name)
		}
		v, err := decodeValue(r, decl)
		if err != nil {
			return nil, err
		}
		responses[name] = v
	}
	return &session.PendingResponses{Ref: ref, Occurrence: occurrence, Responses: responses}, nil
}
