package session

import (
	"fmt"

	"proctor/internal/expr"
	"proctor/internal/model"
	"proctor/pkg/qti"
)

// ResultsPolicy says when test results go to the submitter.
type ResultsPolicy uint8

const (
	// ResultsAtEnd submits test results once, when the session ends.
	ResultsAtEnd ResultsPolicy = iota
	// ResultsOnOutcomeProcessing submits test results after every
	// outcome processing run.
	ResultsOnOutcomeProcessing
)

// ResultSubmitter receives committed results. Item results follow
// every processed attempt; test results follow the ResultsPolicy.
// A nil submitter disables submission entirely.
type ResultSubmitter interface {
	SubmitItemResults(item *ItemSession) error
	SubmitTestResults(s *TestSession) error
}

// outcomeProcessing resets the global outcomes to their defaults and
// replays the test's outcome processing rules, then submits test
// results when the policy asks for per-run submission.
func (s *TestSession) outcomeProcessing() error {
	s.vars.ResetOutcomes()
	if len(s.test.OutcomeProcessing) > 0 {
		assign := func(identifier string, value qti.Value) error {
			if !s.vars.Has(identifier) {
				return fmt.Errorf("setOutcomeValue targets undeclared outcome %q", identifier)
			}
			return s.vars.Set(identifier, value)
		}
		if _, err := runRules(s.engine, s.test.OutcomeProcessing, testScope{s}, assign); err != nil {
			return wrapError(CodeOutcomeProcessing, err, "outcome processing for test %s", s.test.Identifier)
		}
	}
	s.dismissed = false
	if s.submit != nil && s.policy == ResultsOnOutcomeProcessing {
		if err := s.submit.SubmitTestResults(s); err != nil {
			return wrapError(CodeResultSubmission, err, "submitting test results for %s", s.test.Identifier)
		}
	}
	return nil
}

// runRules executes one rule list against a scope, sending every
// setOutcomeValue through assign. The returned bool reports whether
// an exitTest rule stopped the run early.
func runRules(engine expr.Engine, rules []*model.OutcomeRule, scope expr.Scope, assign func(string, qti.Value) error) (bool, error) {
	for _, rule := range rules {
		exited, err := runRule(engine, rule, scope, assign)
		if err != nil {
			return false, err
		}
		if exited {
			return true, nil
		}
	}
	return false, nil
}

func runRule(engine expr.Engine, rule *model.OutcomeRule, scope expr.Scope, assign func(string, qti.Value) error) (bool, error) {
	switch {
	case rule.Set != nil:
		v, err := engine.Evaluate(rule.Set.Expression, scope)
		if err != nil {
			return false, fmt.Errorf("setOutcomeValue %s: %w", rule.Set.Identifier, err)
		}
		return false, assign(rule.Set.Identifier, v)
	case rule.ExitTest:
		return true, nil
	case rule.If != nil:
		ok, err := evalRuleCondition(engine, rule.If.Condition, scope)
		if err != nil {
			return false, err
		}
		if ok {
			return runRules(engine, rule.If.Rules, scope, assign)
		}
		for _, branch := range rule.ElseIf {
			ok, err := evalRuleCondition(engine, branch.Condition, scope)
			if err != nil {
				return false, err
			}
			if ok {
				return runRules(engine, branch.Rules, scope, assign)
			}
		}
		return runRules(engine, rule.Else, scope, assign)
	}
	return false, nil
}

func evalRuleCondition(engine expr.Engine, condition *model.Expression, scope expr.Scope) (bool, error) {
	v, err := engine.Evaluate(condition, scope)
	if err != nil {
		return false, fmt.Errorf("condition: %w", err)
	}
	return expr.AsCondition(v)
}
