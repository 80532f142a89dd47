package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"proctor/pkg/qti"
)

// Variable names the engine declares itself. Documents must not
// redeclare them.
var reservedVariables = map[string]bool{
	"duration":         true,
	"numAttempts":      true,
	"completionStatus": true,
}

// Load reads and parses one assessment document from disk.
func Load(path string) (*AssessmentTest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading assessment document: %w", err)
	}
	test, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return test, nil
}

// Parse decodes an assessment document, expands response processing
// templates, and validates the tree.
func Parse(data []byte) (*AssessmentTest, error) {
	var test AssessmentTest
	if err := yaml.Unmarshal(data, &test); err != nil {
		return nil, err
	}
	if err := validate(&test); err != nil {
		return nil, err
	}
	return &test, nil
}

func validate(t *AssessmentTest) error {
	if !qti.IsValidIdentifier(t.Identifier) {
		return fmt.Errorf("test identifier %q is malformed", t.Identifier)
	}
	if len(t.TestParts) == 0 {
		return fmt.Errorf("test %s wants at least one testPart", t.Identifier)
	}
	if err := validateDeclarations(t.OutcomeDeclarations, "test "+t.Identifier); err != nil {
		return err
	}
	for _, fb := range t.TestFeedbacks {
		if err := validateFeedback(t, fb); err != nil {
			return err
		}
	}

	v := &validator{owners: make(map[string]string)}
	for _, part := range t.TestParts {
		if err := v.claim(part.Identifier, "testPart"); err != nil {
			return err
		}
		if len(part.Sections) == 0 {
			return fmt.Errorf("testPart %s wants at least one section", part.Identifier)
		}
		for _, fb := range part.TestFeedbacks {
			if err := validateFeedback(t, fb); err != nil {
				return err
			}
		}
		for _, section := range part.Sections {
			if err := v.section(section); err != nil {
				return err
			}
		}
	}
	return v.checkBranchTargets(t)
}

type validator struct {
	owners   map[string]string
	branches []*BranchRule
}

func (v *validator) claim(identifier, class string) error {
	if !qti.IsValidIdentifier(identifier) {
		return fmt.Errorf("%s identifier %q is malformed", class, identifier)
	}
	if prev, dup := v.owners[identifier]; dup {
		return fmt.Errorf("identifier %q used by both a %s and a %s", identifier, prev, class)
	}
	v.owners[identifier] = class
	return nil
}

func (v *validator) section(s *AssessmentSection) error {
	if err := v.claim(s.Identifier, "section"); err != nil {
		return err
	}
	if s.Selection != nil {
		if s.Selection.Select <= 0 {
			return fmt.Errorf("section %s: selection wants a positive select", s.Identifier)
		}
		if !s.Selection.WithReplacement && s.Selection.Select > len(s.Parts) {
			return fmt.Errorf("section %s: selection wants %d of %d parts",
				s.Identifier, s.Selection.Select, len(s.Parts))
		}
	}
	v.branches = append(v.branches, s.BranchRules...)
	for _, part := range s.Parts {
		switch p := part.(type) {
		case *AssessmentSection:
			if err := v.section(p); err != nil {
				return err
			}
		case *AssessmentItemRef:
			if err := v.itemRef(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *validator) itemRef(r *AssessmentItemRef) error {
	if err := v.claim(r.Identifier, "itemRef"); err != nil {
		return err
	}
	v.branches = append(v.branches, r.BranchRules...)

	owner := "item " + r.Identifier
	decls := make([]*VariableDeclaration, 0,
		len(r.ResponseDeclarations)+len(r.OutcomeDeclarations)+len(r.TemplateDeclarations))
	decls = append(decls, r.ResponseDeclarations...)
	decls = append(decls, r.OutcomeDeclarations...)
	decls = append(decls, r.TemplateDeclarations...)
	if err := validateDeclarations(decls, owner); err != nil {
		return err
	}
	for _, td := range r.TemplateDefaults {
		found := false
		for _, decl := range r.TemplateDeclarations {
			if decl.Identifier == td.TemplateIdentifier {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: templateDefault names undeclared %q", owner, td.TemplateIdentifier)
		}
		if td.Expression == nil {
			return fmt.Errorf("%s: templateDefault %s wants an expression", owner, td.TemplateIdentifier)
		}
	}
	if r.ResponseProcessing != nil {
		if err := r.ResponseProcessing.ExpandTemplate(); err != nil {
			return fmt.Errorf("%s: %w", owner, err)
		}
	}
	return nil
}

func (v *validator) checkBranchTargets(t *AssessmentTest) error {
	for _, part := range t.TestParts {
		v.branches = append(v.branches, part.BranchRules...)
	}
	for _, b := range v.branches {
		switch b.Target {
		case BranchExitTest, BranchExitTestPart, BranchExitSection:
			continue
		}
		if _, ok := v.owners[b.Target]; !ok {
			return fmt.Errorf("branchRule targets unknown identifier %q", b.Target)
		}
	}
	return nil
}

func validateDeclarations(decls []*VariableDeclaration, owner string) error {
	seen := make(map[string]bool, len(decls))
	for _, decl := range decls {
		if reservedVariables[decl.Identifier] {
			return fmt.Errorf("%s: variable %q is built in and cannot be declared", owner, decl.Identifier)
		}
		if seen[decl.Identifier] {
			return fmt.Errorf("%s: variable %q declared twice", owner, decl.Identifier)
		}
		seen[decl.Identifier] = true
	}
	return nil
}

func validateFeedback(t *AssessmentTest, fb *TestFeedback) error {
	if !qti.IsValidIdentifier(fb.Identifier) {
		return fmt.Errorf("testFeedback identifier %q is malformed", fb.Identifier)
	}
	if t.OutcomeDeclaration(fb.OutcomeIdentifier) == nil {
		return fmt.Errorf("testFeedback %s references undeclared outcome %q",
			fb.Identifier, fb.OutcomeIdentifier)
	}
	return nil
}
