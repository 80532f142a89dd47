package route

import (
	"fmt"

	"proctor/internal/model"
)

// Build materializes the route of a test: every selected item
// occurrence in document order.
func Build(test *model.AssessmentTest) (*Route, error) {
	b := &builder{occurrences: make(map[string]int)}
	for _, part := range test.TestParts {
		start := len(b.items)
		for _, section := range part.Sections {
			b.section(part, nil, section)
		}
		b.attach(start, part.PreConditions, part.BranchRules)
	}
	if len(b.items) == 0 {
		return nil, fmt.Errorf("test %s yields an empty route", test.Identifier)
	}
	return &Route{items: b.items}, nil
}

type builder struct {
	items       []*Item
	occurrences map[string]int
}

func (b *builder) section(part *model.TestPart, chain []*model.AssessmentSection, s *model.AssessmentSection) {
	chain = append(chain, s)
	start := len(b.items)
	for _, child := range selectedParts(s) {
		switch c := child.(type) {
		case *model.AssessmentSection:
			b.section(part, chain, c)
		case *model.AssessmentItemRef:
			b.itemRef(part, chain, c)
		}
	}
	b.attach(start, s.PreConditions, s.BranchRules)
}

func (b *builder) itemRef(part *model.TestPart, chain []*model.AssessmentSection, ref *model.AssessmentItemRef) {
	occurrence := b.occurrences[ref.Identifier]
	b.occurrences[ref.Identifier] = occurrence + 1

	sections := make([]*model.AssessmentSection, len(chain))
	copy(sections, chain)

	b.items = append(b.items, &Item{
		ItemRef:       ref,
		Occurrence:    occurrence,
		TestPart:      part,
		Sections:      sections,
		PreConditions: append([]*model.PreCondition(nil), ref.PreConditions...),
		BranchRules:   append([]*model.BranchRule(nil), ref.BranchRules...),
		Control:       EffectiveControl(ref, chain, part),
		TimeLimits:    ref.TimeLimits,
	})
}

// attach adds container-level rules to the items built for the
// container: preconditions gate its first item, branch rules fire
// from its last.
func (b *builder) attach(start int, pre []*model.PreCondition, branch []*model.BranchRule) {
	if start >= len(b.items) {
		return
	}
	if len(pre) > 0 {
		first := b.items[start]
		first.PreConditions = append(append([]*model.PreCondition(nil), pre...), first.PreConditions...)
	}
	if len(branch) > 0 {
		last := b.items[len(b.items)-1]
		last.BranchRules = append(last.BranchRules, branch...)
	}
}

// selectedParts applies section selection: the first N children, with
// round-robin repetition when selecting with replacement.
func selectedParts(s *model.AssessmentSection) []model.SectionPart {
	if s.Selection == nil || len(s.Parts) == 0 {
		return s.Parts
	}
	n := s.Selection.Select
	if s.Selection.WithReplacement {
		out := make([]model.SectionPart, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, s.Parts[i%len(s.Parts)])
		}
		return out
	}
	if n > len(s.Parts) {
		n = len(s.Parts)
	}
	return s.Parts[:n]
}

// EffectiveControl resolves the nearest itemSessionControl: the item
// reference's own, then the innermost section's, then the test
// part's, then the attribute defaults.
func EffectiveControl(ref *model.AssessmentItemRef, chain []*model.AssessmentSection, part *model.TestPart) *model.ItemSessionControl {
	if ref.ItemSessionControl != nil {
		return ref.ItemSessionControl
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].ItemSessionControl != nil {
			return chain[i].ItemSessionControl
		}
	}
	if part.ItemSessionControl != nil {
		return part.ItemSessionControl
	}
	return model.DefaultItemSessionControl()
}
