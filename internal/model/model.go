package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// NavigationMode controls how the candidate moves between the items of
// a test part. The numeric values are stable: the snapshot codec writes
// them as-is.
type NavigationMode uint8

const (
	NavigationLinear NavigationMode = iota
	NavigationNonLinear
)

func (m NavigationMode) String() string {
	switch m {
	case NavigationLinear:
		return "linear"
	case NavigationNonLinear:
		return "nonlinear"
	}
	return fmt.Sprintf("navigationMode(%d)", uint8(m))
}

// ParseNavigationMode converts the textual form used in documents.
func ParseNavigationMode(s string) (NavigationMode, error) {
	switch s {
	case "linear":
		return NavigationLinear, nil
	case "nonlinear":
		return NavigationNonLinear, nil
	}
	return 0, fmt.Errorf("unknown navigation mode %q", s)
}

func (m *NavigationMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseNavigationMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// SubmissionMode controls when response processing runs: after every
// attempt or batched at the end of the test part.
type SubmissionMode uint8

const (
	SubmissionIndividual SubmissionMode = iota
	SubmissionSimultaneous
)

func (m SubmissionMode) String() string {
	switch m {
	case SubmissionIndividual:
		return "individual"
	case SubmissionSimultaneous:
		return "simultaneous"
	}
	return fmt.Sprintf("submissionMode(%d)", uint8(m))
}

// ParseSubmissionMode converts the textual form used in documents.
func ParseSubmissionMode(s string) (SubmissionMode, error) {
	switch s {
	case "individual":
		return SubmissionIndividual, nil
	case "simultaneous":
		return SubmissionSimultaneous, nil
	}
	return 0, fmt.Errorf("unknown submission mode %q", s)
}

func (m *SubmissionMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseSubmissionMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// TestFeedbackAccess says when a test feedback may be shown.
type TestFeedbackAccess uint8

const (
	AccessDuring TestFeedbackAccess = iota
	AccessAtEnd
)

func (a TestFeedbackAccess) String() string {
	switch a {
	case AccessDuring:
		return "during"
	case AccessAtEnd:
		return "atEnd"
	}
	return fmt.Sprintf("access(%d)", uint8(a))
}

func (a *TestFeedbackAccess) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "during":
		*a = AccessDuring
	case "atEnd":
		*a = AccessAtEnd
	default:
		return fmt.Errorf("unknown feedback access %q", s)
	}
	return nil
}

// ShowHide inverts the firing condition of a feedback: Show fires on a
// match, Hide fires on a miss.
type ShowHide uint8

const (
	Show ShowHide = iota
	Hide
)

func (s ShowHide) String() string {
	switch s {
	case Show:
		return "show"
	case Hide:
		return "hide"
	}
	return fmt.Sprintf("showHide(%d)", uint8(s))
}

func (s *ShowHide) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch raw {
	case "show":
		*s = Show
	case "hide":
		*s = Hide
	default:
		return fmt.Errorf("unknown showHide %q", raw)
	}
	return nil
}

// AssessmentTest is the root of a loaded assessment document.
type AssessmentTest struct {
	Identifier          string                 `yaml:"identifier"`
	Title               string                 `yaml:"title"`
	OutcomeDeclarations []*VariableDeclaration `yaml:"outcomeDeclarations"`
	TimeLimits          *TimeLimits            `yaml:"timeLimits"`
	OutcomeProcessing   []*OutcomeRule         `yaml:"outcomeProcessing"`
	TestFeedbacks       []*TestFeedback        `yaml:"testFeedbacks"`
	TestParts           []*TestPart            `yaml:"testParts"`
}

// OutcomeDeclaration returns the test-level outcome declaration with
// the given identifier, or nil.
func (t *AssessmentTest) OutcomeDeclaration(identifier string) *VariableDeclaration {
	for _, decl := range t.OutcomeDeclarations {
		if decl.Identifier == identifier {
			return decl
		}
	}
	return nil
}

// ItemRefs returns every item reference in the test in document order,
// ignoring selection.
func (t *AssessmentTest) ItemRefs() []*AssessmentItemRef {
	var refs []*AssessmentItemRef
	for _, part := range t.TestParts {
		for _, section := range part.Sections {
			refs = append(refs, section.ItemRefs()...)
		}
	}
	return refs
}

// TestPart returns the test part with the given identifier, or nil.
func (t *AssessmentTest) TestPart(identifier string) *TestPart {
	for _, part := range t.TestParts {
		if part.Identifier == identifier {
			return part
		}
	}
	return nil
}

// TestPart groups sections sharing one navigation and submission mode.
type TestPart struct {
	Identifier         string               `yaml:"identifier"`
	NavigationMode     NavigationMode       `yaml:"navigationMode"`
	SubmissionMode     SubmissionMode       `yaml:"submissionMode"`
	PreConditions      []*PreCondition      `yaml:"preConditions"`
	BranchRules        []*BranchRule        `yaml:"branchRules"`
	ItemSessionControl *ItemSessionControl  `yaml:"itemSessionControl"`
	TimeLimits         *TimeLimits          `yaml:"timeLimits"`
	TestFeedbacks      []*TestFeedback      `yaml:"testFeedbacks"`
	Sections           []*AssessmentSection `yaml:"sections"`
}

// AssessmentSection is a grouping inside a test part. Its ordered
// Parts mix nested sections and item references.
type AssessmentSection struct {
	Identifier         string
	Title              string
	Visible            bool
	Required           bool
	Fixed              bool
	PreConditions      []*PreCondition
	BranchRules        []*BranchRule
	ItemSessionControl *ItemSessionControl
	TimeLimits         *TimeLimits
	Selection          *Selection
	Ordering           *Ordering
	Parts              []SectionPart
}

// SectionPart is one ordered child of a section: either a nested
// *AssessmentSection or an *AssessmentItemRef.
type SectionPart interface {
	PartID() string
}

// PartID implements SectionPart.
func (s *AssessmentSection) PartID() string { return s.Identifier }

func (s *AssessmentSection) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Identifier         string              `yaml:"identifier"`
		Title              string              `yaml:"title"`
		Visible            *bool               `yaml:"visible"`
		Required           bool                `yaml:"required"`
		Fixed              bool                `yaml:"fixed"`
		PreConditions      []*PreCondition     `yaml:"preConditions"`
		BranchRules        []*BranchRule       `yaml:"branchRules"`
		ItemSessionControl *ItemSessionControl `yaml:"itemSessionControl"`
		TimeLimits         *TimeLimits         `yaml:"timeLimits"`
		Selection          *Selection          `yaml:"selection"`
		Ordering           *Ordering           `yaml:"ordering"`
		Parts              []yaml.Node         `yaml:"parts"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	s.Identifier = raw.Identifier
	s.Title = raw.Title
	s.Visible = raw.Visible == nil || *raw.Visible
	s.Required = raw.Required
	s.Fixed = raw.Fixed
	s.PreConditions = raw.PreConditions
	s.BranchRules = raw.BranchRules
	s.ItemSessionControl = raw.ItemSessionControl
	s.TimeLimits = raw.TimeLimits
	s.Selection = raw.Selection
	s.Ordering = raw.Ordering

	for i := range raw.Parts {
		part, err := decodeSectionPart(&raw.Parts[i])
		if err != nil {
			return fmt.Errorf("section %q part %d: %w", s.Identifier, i, err)
		}
		s.Parts = append(s.Parts, part)
	}
	return nil
}

func decodeSectionPart(node *yaml.Node) (SectionPart, error) {
	var probe struct {
		Section yaml.Node `yaml:"section"`
		Item    yaml.Node `yaml:"item"`
	}
	if err := node.Decode(&probe); err != nil {
		return nil, err
	}
	switch {
	case !probe.Section.IsZero() && probe.Item.IsZero():
		section := new(AssessmentSection)
		if err := probe.Section.Decode(section); err != nil {
			return nil, err
		}
		return section, nil
	case !probe.Item.IsZero() && probe.Section.IsZero():
		item := new(AssessmentItemRef)
		if err := probe.Item.Decode(item); err != nil {
			return nil, err
		}
		return item, nil
	default:
		return nil, fmt.Errorf("want exactly one of \"section\" or \"item\"")
	}
}

// ItemRefs returns the section's direct and nested item references in
// document order, ignoring selection.
func (s *AssessmentSection) ItemRefs() []*AssessmentItemRef {
	var refs []*AssessmentItemRef
	for _, part := range s.Parts {
		switch p := part.(type) {
		case *AssessmentItemRef:
			refs = append(refs, p)
		case *AssessmentSection:
			refs = append(refs, p.ItemRefs()...)
		}
	}
	return refs
}

// AssessmentItemRef points at one item and carries everything the
// engine needs to run it. Because item documents are not parsed here,
// the declarations, template defaults, and response processing of the
// item are inlined on the reference.
type AssessmentItemRef struct {
	Identifier           string                 `yaml:"identifier"`
	Href                 string                 `yaml:"href"`
	Categories           []string               `yaml:"categories"`
	Required             bool                   `yaml:"required"`
	Fixed                bool                   `yaml:"fixed"`
	PreConditions        []*PreCondition        `yaml:"preConditions"`
	BranchRules          []*BranchRule          `yaml:"branchRules"`
	ItemSessionControl   *ItemSessionControl    `yaml:"itemSessionControl"`
	TimeLimits           *TimeLimits            `yaml:"timeLimits"`
	TemplateDefaults     []*TemplateDefault     `yaml:"templateDefaults"`
	ResponseDeclarations []*VariableDeclaration `yaml:"responseDeclarations"`
	OutcomeDeclarations  []*VariableDeclaration `yaml:"outcomeDeclarations"`
	TemplateDeclarations []*VariableDeclaration `yaml:"templateDeclarations"`
	ResponseProcessing   *ResponseProcessing    `yaml:"responseProcessing"`
}

// PartID implements SectionPart.
func (r *AssessmentItemRef) PartID() string { return r.Identifier }

// ResponseDeclaration returns the response declaration with the given
// identifier, or nil.
func (r *AssessmentItemRef) ResponseDeclaration(identifier string) *VariableDeclaration {
	for _, decl := range r.ResponseDeclarations {
		if decl.Identifier == identifier {
			return decl
		}
	}
	return nil
}

// OutcomeDeclaration returns the outcome declaration with the given
// identifier, or nil.
func (r *AssessmentItemRef) OutcomeDeclaration(identifier string) *VariableDeclaration {
	for _, decl := range r.OutcomeDeclarations {
		if decl.Identifier == identifier {
			return decl
		}
	}
	return nil
}

// Declaration returns any declaration of the item with the given
// identifier, searching responses, outcomes, then templates.
func (r *AssessmentItemRef) Declaration(identifier string) *VariableDeclaration {
	if decl := r.ResponseDeclaration(identifier); decl != nil {
		return decl
	}
	if decl := r.OutcomeDeclaration(identifier); decl != nil {
		return decl
	}
	for _, decl := range r.TemplateDeclarations {
		if decl.Identifier == identifier {
			return decl
		}
	}
	return nil
}

// TestFeedback binds feedback content to an outcome variable of the
// test or of a test part.
type TestFeedback struct {
	Identifier        string             `yaml:"identifier"`
	OutcomeIdentifier string             `yaml:"outcomeIdentifier"`
	Access            TestFeedbackAccess `yaml:"access"`
	ShowHide          ShowHide           `yaml:"showHide"`
	Title             string             `yaml:"title"`
}
