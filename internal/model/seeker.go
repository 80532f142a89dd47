package model

import "fmt"

// Component class names used by the Seeker.
const (
	ClassTestPart            = "testPart"
	ClassAssessmentSection   = "assessmentSection"
	ClassAssessmentItemRef   = "assessmentItemRef"
	ClassOutcomeDeclaration  = "outcomeDeclaration"
	ClassResponseDeclaration = "responseDeclaration"
	ClassBranchRule          = "branchRule"
	ClassPreCondition        = "preCondition"
)

// Seeker indexes the components of one assessment test by class name in
// document order, so a component can be referred to by (class, index)
// instead of by identifier. Built once per test and read-only after.
type Seeker struct {
	byClass map[string][]interface{}
	indexes map[interface{}]int
}

// NewSeeker walks the test tree and indexes every component of the
// classes listed above.
func NewSeeker(test *AssessmentTest) *Seeker {
	s := &Seeker{
		byClass: make(map[string][]interface{}),
		indexes: make(map[interface{}]int),
	}
	for _, decl := range test.OutcomeDeclarations {
		s.add(ClassOutcomeDeclaration, decl)
	}
	for _, part := range test.TestParts {
		s.add(ClassTestPart, part)
		s.addRules(part.PreConditions, part.BranchRules)
		for _, section := range part.Sections {
			s.addSection(section)
		}
	}
	return s
}

func (s *Seeker) addSection(section *AssessmentSection) {
	s.add(ClassAssessmentSection, section)
	s.addRules(section.PreConditions, section.BranchRules)
	for _, part := range section.Parts {
		switch p := part.(type) {
		case *AssessmentSection:
			s.addSection(p)
		case *AssessmentItemRef:
			s.addItemRef(p)
		}
	}
}

func (s *Seeker) addItemRef(ref *AssessmentItemRef) {
	s.add(ClassAssessmentItemRef, ref)
	s.addRules(ref.PreConditions, ref.BranchRules)
	for _, decl := range ref.ResponseDeclarations {
		s.add(ClassResponseDeclaration, decl)
	}
	for _, decl := range ref.OutcomeDeclarations {
		s.add(ClassOutcomeDeclaration, decl)
	}
}

func (s *Seeker) addRules(pre []*PreCondition, branch []*BranchRule) {
	for _, p := range pre {
		s.add(ClassPreCondition, p)
	}
	for _, b := range branch {
		s.add(ClassBranchRule, b)
	}
}

func (s *Seeker) add(class string, component interface{}) {
	s.indexes[component] = len(s.byClass[class])
	s.byClass[class] = append(s.byClass[class], component)
}

// Count returns how many components of the class were indexed.
func (s *Seeker) Count(class string) int {
	return len(s.byClass[class])
}

// ComponentByIndex returns the i-th component of the class in document
// order.
func (s *Seeker) ComponentByIndex(class string, i int) (interface{}, error) {
	components, ok := s.byClass[class]
	if !ok {
		return nil, fmt.Errorf("unknown component class %q", class)
	}
	if i < 0 || i >= len(components) {
		return nil, fmt.Errorf("%s index %d out of range [0, %d)", class, i, len(components))
	}
	return components[i], nil
}

// IndexOf returns the document-order index of a component previously
// indexed by NewSeeker.
func (s *Seeker) IndexOf(component interface{}) (int, error) {
	i, ok := s.indexes[component]
	if !ok {
		return 0, fmt.Errorf("component %T not indexed", component)
	}
	return i, nil
}
