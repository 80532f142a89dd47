package model

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"proctor/pkg/qti"
)

// Branch rule targets that leave the enclosing structure instead of
// naming a section or item.
const (
	BranchExitTest     = "EXIT_TEST"
	BranchExitTestPart = "EXIT_TESTPART"
	BranchExitSection  = "EXIT_SECTION"
)

// PreCondition gates entry to a test part, section, or item reference.
// The part is skipped when the expression evaluates to false or null.
type PreCondition struct {
	Expression *Expression
}

func (p *PreCondition) UnmarshalYAML(node *yaml.Node) error {
	return decodeRuleExpression(node, &p.Expression, "preCondition")
}

// BranchRule jumps to a later target when its expression evaluates to
// true. Target is a testPart, section, or itemRef identifier, or one
// of the EXIT_* specials.
type BranchRule struct {
	Target     string
	Expression *Expression
}

func (b *BranchRule) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Target     string    `yaml:"target"`
		Expression yaml.Node `yaml:"expression"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Target == "" {
		return fmt.Errorf("line %d: branchRule wants a target", node.Line)
	}
	b.Target = raw.Target
	return decodeRuleExpression(&raw.Expression, &b.Expression, "branchRule")
}

func decodeRuleExpression(node *yaml.Node, dst **Expression, what string) error {
	if node.IsZero() {
		return fmt.Errorf("%s wants an expression", what)
	}
	var probe struct {
		Expression yaml.Node `yaml:"expression"`
	}
	// Accept both the wrapped form {expression: {...}} and a bare
	// expression mapping.
	if err := node.Decode(&probe); err == nil && !probe.Expression.IsZero() {
		node = &probe.Expression
	}
	expr := new(Expression)
	if err := node.Decode(expr); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	*dst = expr
	return nil
}

// TemplateDefault overrides a template variable's default value when
// an item session is first initialized.
type TemplateDefault struct {
	TemplateIdentifier string      `yaml:"templateIdentifier"`
	Expression         *Expression `yaml:"expression"`
}

// SetOutcomeValue assigns the value of an expression to an outcome
// variable.
type SetOutcomeValue struct {
	Identifier string      `yaml:"identifier"`
	Expression *Expression `yaml:"expression"`
}

// ConditionalRules pairs a condition with the rules to run when it
// holds.
type ConditionalRules struct {
	Condition *Expression    `yaml:"condition"`
	Rules     []*OutcomeRule `yaml:"rules"`
}

// OutcomeRule is one step of outcome or response processing: either a
// setOutcomeValue, an exitTest, or an if/elseIf/else chain.
type OutcomeRule struct {
	Set      *SetOutcomeValue
	ExitTest bool
	If       *ConditionalRules
	ElseIf   []*ConditionalRules
	Else     []*OutcomeRule
}

func (r *OutcomeRule) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Set      *SetOutcomeValue    `yaml:"setOutcomeValue"`
		ExitTest yaml.Node           `yaml:"exitTest"`
		If       *ConditionalRules   `yaml:"if"`
		ElseIf   []*ConditionalRules `yaml:"elseIf"`
		Else     []*OutcomeRule      `yaml:"else"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch {
	case raw.Set != nil:
		if raw.If != nil || !raw.ExitTest.IsZero() {
			return fmt.Errorf("line %d: rule wants exactly one of setOutcomeValue, exitTest, if", node.Line)
		}
		if raw.Set.Identifier == "" || raw.Set.Expression == nil {
			return fmt.Errorf("line %d: setOutcomeValue wants identifier and expression", node.Line)
		}
		r.Set = raw.Set
	case !raw.ExitTest.IsZero():
		if raw.If != nil {
			return fmt.Errorf("line %d: rule wants exactly one of setOutcomeValue, exitTest, if", node.Line)
		}
		r.ExitTest = true
	case raw.If != nil:
		r.If = raw.If
		r.ElseIf = raw.ElseIf
		r.Else = raw.Else
	default:
		return fmt.Errorf("line %d: rule wants one of setOutcomeValue, exitTest, if", node.Line)
	}
	return nil
}

// ResponseProcessing holds an item's scoring rules, either named by
// template or written out.
type ResponseProcessing struct {
	Template string         `yaml:"template"`
	Rules    []*OutcomeRule `yaml:"rules"`
}

// Response processing templates accepted in the template field.
const (
	TemplateMatchCorrect = "match_correct"
)

// ExpandTemplate replaces a named template with its equivalent rules.
// match_correct sets SCORE to 1 when RESPONSE matches its correct
// value and to 0 otherwise.
func (rp *ResponseProcessing) ExpandTemplate() error {
	if rp.Template == "" {
		return nil
	}
	if len(rp.Rules) > 0 {
		return fmt.Errorf("responseProcessing wants template or rules, not both")
	}
	switch rp.Template {
	case TemplateMatchCorrect:
		rp.Rules = matchCorrectRules()
		return nil
	default:
		return fmt.Errorf("unknown response processing template %q", rp.Template)
	}
}

func matchCorrectRules() []*OutcomeRule {
	match := &Expression{
		Kind: ExprMatch,
		Operands: []*Expression{
			{Kind: ExprVariable, Identifier: "RESPONSE"},
			{Kind: ExprCorrect, Identifier: "RESPONSE"},
		},
	}
	score := func(n float64) []*OutcomeRule {
		return []*OutcomeRule{{
			Set: &SetOutcomeValue{
				Identifier: "SCORE",
				Expression: &Expression{
					Kind:     ExprBaseValue,
					BaseType: qti.BaseTypeFloat,
					Value:    qti.Float(n),
				},
			},
		}}
	}
	return []*OutcomeRule{{
		If:   &ConditionalRules{Condition: match, Rules: score(1)},
		Else: score(0),
	}}
}
