// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

// Filter is an entity-shaped where object: property names map to values,
// nested filters (embeddeds and relations) or operators.
type Filter map[string]any

// WhereType joins a clause to the clause before it.
type WhereType string

// Where clause joiners.
const (
	WhereAnd WhereType = "and"
	WhereOr  WhereType = "or"
)

// WhereClause is one entry of a where list.
type WhereClause struct {
	Type      WhereType
	Condition Condition
}

// Condition is one of RawCondition, ClauseList, OperatorCondition or
// NestedCondition.
type Condition interface {
	isCondition()
}

// RawCondition is a literal SQL fragment.
type RawCondition string

// ClauseList is an ordered list of clauses. An empty list renders as 1=1.
type ClauseList []*WhereClause

// OperatorCondition applies Operator to its parameters. The first parameter
// is the escaped column, the rest are parameter references or literals.
type OperatorCondition struct {
	Operator   Operator
	Parameters []string
}

// NestedCondition wraps another condition in NOT(...) or brackets.
type NestedCondition struct {
	Operator  Operator
	Condition Condition
}

func (RawCondition) isCondition()      {}
func (ClauseList) isCondition()        {}
func (OperatorCondition) isCondition() {}
func (NestedCondition) isCondition()   {}

// Brackets groups the conditions added by fn into one parenthesized
// condition, optionally negated.
type Brackets struct {
	fn     func(*WhereBuilder)
	negate bool
}

// NewBrackets returns a bracket group: (a AND b OR c).
func NewBrackets(fn func(*WhereBuilder)) *Brackets {
	return &Brackets{fn: fn}
}

// NewNotBrackets returns a negated bracket group: NOT((a AND b)).
func NewNotBrackets(fn func(*WhereBuilder)) *Brackets {
	return &Brackets{fn: fn, negate: true}
}

// ConditionFunc builds a raw where fragment with access to the builder,
// typically to embed a sub-query.
type ConditionFunc func(qb *QueryBuilder) (string, error)

func cloneClauses(list []*WhereClause) []*WhereClause {
	if list == nil {
		return nil
	}
	out := make([]*WhereClause, len(list))
	for i, c := range list {
		out[i] = &WhereClause{Type: c.Type, Condition: cloneCondition(c.Condition)}
	}
	return out
}

func cloneCondition(c Condition) Condition {
	switch cond := c.(type) {
	case ClauseList:
		return ClauseList(cloneClauses(cond))
	case OperatorCondition:
		return OperatorCondition{Operator: cond.Operator, Parameters: append([]string(nil), cond.Parameters...)}
	case NestedCondition:
		return NestedCondition{Operator: cond.Operator, Condition: cloneCondition(cond.Condition)}
	}
	return c
}
