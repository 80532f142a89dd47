// Package expr evaluates assessment expression trees.
//
// The package defines the Engine interface consumed by the session
// driver and one default implementation, Evaluator, covering the
// operator set used by branch rules, preconditions, response
// processing, and outcome processing: baseValue, variable, correct,
// null, isNull, not, and, or, match, equal, gt, gte, lt, lte, sum,
// and member.
//
// Values follow QTI null propagation: operators other than isNull
// return null when an operand is null, and the and/or operators apply
// three-valued logic. AsCondition converts an evaluation result into
// the two-valued form rule evaluation needs, where null counts as
// false.
package expr
