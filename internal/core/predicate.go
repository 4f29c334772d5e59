// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/coregx/quarry/internal/metadata"
)

// getWhereCondition compiles a where input into a condition. Accepted
// inputs are a raw SQL string, *Brackets, ConditionFunc, a Filter or any
// string-keyed map, and slices of those maps (OR-ed together).
func (qb *QueryBuilder) getWhereCondition(where any) (Condition, error) {
	switch w := where.(type) {
	case string:
		if err := qb.db.validateFragment(w); err != nil {
			return nil, err
		}
		return RawCondition(w), nil
	case *Brackets:
		return qb.bracketsCondition(w)
	case ConditionFunc:
		return qb.funcCondition(w)
	case func(*QueryBuilder) (string, error):
		return qb.funcCondition(w)
	}

	wheres, err := filterList(where)
	if err != nil {
		return nil, err
	}
	if len(wheres) == 1 {
		return qb.filterCondition(wheres[0])
	}
	clauses := make(ClauseList, 0, len(wheres))
	for _, w := range wheres {
		cond, err := qb.filterCondition(w)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, &WhereClause{Type: WhereOr, Condition: cond})
	}
	return clauses, nil
}

func (qb *QueryBuilder) funcCondition(fn func(*QueryBuilder) (string, error)) (Condition, error) {
	sql, err := fn(qb)
	if err != nil {
		return nil, err
	}
	return RawCondition(sql), nil
}

// bracketsCondition runs the bracket callback against a scoped builder that
// shares this builder's aliases and parameters.
func (qb *QueryBuilder) bracketsCondition(b *Brackets) (Condition, error) {
	wb := qb.newWhereBuilder()
	b.fn(wb)
	qb.paramIndex = wb.paramIndex
	if wb.err != nil {
		return nil, wb.err
	}
	cond := NestedCondition{Operator: OpBrackets, Condition: ClauseList(wb.expr.Wheres)}
	if b.negate {
		return NestedCondition{Operator: OpNot, Condition: cond}, nil
	}
	return cond, nil
}

func filterList(where any) ([]map[string]any, error) {
	if m, ok := metadata.AsMap(where); ok {
		return []map[string]any{m}, nil
	}
	if where != nil {
		rv := reflect.ValueOf(where)
		if rv.Kind() == reflect.Slice {
			out := make([]map[string]any, rv.Len())
			for i := range out {
				m, ok := metadata.AsMap(rv.Index(i).Interface())
				if !ok {
					return nil, fmt.Errorf("%w: element %d is %T", ErrInvalidCondition, i, rv.Index(i).Interface())
				}
				out[i] = m
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidCondition, where)
}

// filterCondition compiles one filter object into an AND list with one
// clause per resolved column.
func (qb *QueryBuilder) filterCondition(where map[string]any) (ClauseList, error) {
	main := qb.expr.MainAlias
	if main == nil {
		return nil, ErrMissingMainAlias
	}

	clauses := ClauseList{}
	if !main.HasMetadata() {
		for _, key := range sortedKeys(where) {
			cond, err := qb.predicate(qb.keyPath(main, key), where[key])
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, &WhereClause{Type: WhereAnd, Condition: cond})
		}
		return clauses, nil
	}

	paths, err := propertyPaths(main.Metadata, where, "")
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		alias, root, columns, err := qb.findColumnsForPropertyPath(path)
		if err != nil {
			return nil, err
		}
		for _, column := range columns {
			contained := where
			for _, part := range root {
				next, ok := metadata.AsMap(contained[part])
				if !ok {
					contained = map[string]any{}
					break
				}
				contained = next
			}
			value, _ := column.GetEntityValue(contained)
			cond, err := qb.predicate(qb.columnPath(alias, column), value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, &WhereClause{Type: WhereAnd, Condition: cond})
		}
	}
	return clauses, nil
}

// propertyPaths expands a filter object into terminal property paths:
// embeddeds are descended, to-one relations stop at the relation when the
// join columns are given, full primary keys select the key columns, and
// to-many relations are rejected.
func propertyPaths(m *metadata.EntityMetadata, entity map[string]any, prefix string) ([]string, error) {
	var paths []string
	for _, key := range sortedKeys(entity) {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		nested, isMap := metadata.AsMap(entity[key])
		if !isMap {
			paths = append(paths, path)
			continue
		}

		if m.HasEmbeddedWithPropertyPath(path) {
			sub, err := propertyPaths(m, nested, path)
			if err != nil {
				return nil, err
			}
			paths = append(paths, sub...)
			continue
		}

		rel := m.FindRelationWithPropertyPath(path)
		if rel == nil {
			paths = append(paths, path)
			continue
		}
		if rel.Type == metadata.ManyToOne || rel.Type == metadata.OneToOne {
			if hasAllReferencedValues(rel.JoinColumns, nested) {
				paths = append(paths, path)
				continue
			}
		}
		if rel.IsToMany() {
			return nil, &RelationTraversalError{Path: path, Type: rel.Type}
		}
		if rel.Target.HasAllPrimaryKeys(nested) {
			for _, pk := range rel.Target.PrimaryColumns {
				paths = append(paths, path+"."+pk.PropertyPath())
			}
			continue
		}
		sub, err := propertyPaths(rel.Target, nested, "")
		if err != nil {
			return nil, err
		}
		for _, p := range sub {
			paths = append(paths, path+"."+p)
		}
	}
	return paths, nil
}

func hasAllReferencedValues(joinColumns []*metadata.ColumnMetadata, values map[string]any) bool {
	if len(joinColumns) == 0 {
		return false
	}
	for _, jc := range joinColumns {
		if jc.ReferencedColumn == nil {
			return false
		}
		v, ok := jc.ReferencedColumn.GetEntityValue(values)
		if !ok || v == nil {
			return false
		}
	}
	return true
}

// findColumnsForPropertyPath resolves a property path to the alias that
// holds it, the relation parts walked to reach that alias, and its columns.
func (qb *QueryBuilder) findColumnsForPropertyPath(path string) (*Alias, []string, []*metadata.ColumnMetadata, error) {
	alias := qb.expr.MainAlias
	var root []string
	parts := strings.Split(path, ".")

	for len(parts) > 1 {
		if !alias.HasMetadata() {
			break
		}
		part := parts[0]
		if alias.Metadata.HasEmbeddedWithPropertyPath(part) {
			parts = append([]string{part + "." + parts[1]}, parts[2:]...)
			continue
		}
		if alias.Metadata.HasRelationWithPropertyPath(part) {
			join := qb.expr.FindJoin(alias.Name, part)
			if join == nil || join.Alias == nil {
				full := part
				if len(root) > 0 {
					full = strings.Join(root, ".") + "." + part
				}
				return nil, nil, nil, fmt.Errorf("%w at %s", ErrMissingJoinAlias, full)
			}
			alias = join.Alias
			root = append(root, strings.Split(part, ".")...)
			parts = parts[1:]
			continue
		}
		break
	}

	aliasPath := strings.Join(parts, ".")
	if !alias.HasMetadata() {
		return nil, nil, nil, &PropertyNotFoundError{Path: path, Entity: alias.Name}
	}
	columns := alias.Metadata.FindColumnsWithPropertyPath(aliasPath)
	if len(columns) == 0 {
		return nil, nil, nil, &PropertyNotFoundError{Path: path, Entity: alias.Metadata.Name}
	}
	return alias, root, columns, nil
}

// predicate compiles the value found at aliasPath into a condition.
func (qb *QueryBuilder) predicate(aliasPath string, value any) (Condition, error) {
	op, ok := value.(*FindOperator)
	if !ok {
		if value == nil {
			return OperatorCondition{Operator: OpIsNull, Parameters: []string{aliasPath}}, nil
		}
		p, err := qb.createParameter(value)
		if err != nil {
			return nil, err
		}
		return OperatorCondition{Operator: OpEqual, Parameters: []string{aliasPath, p}}, nil
	}

	switch op.kind {
	case OpRaw:
		if len(op.params) > 0 {
			for _, key := range sortedKeys(op.params) {
				if err := qb.setParameter(key, op.params[key]); err != nil {
					return nil, err
				}
			}
		}
		if op.sql != nil {
			return OperatorCondition{Operator: OpRaw, Parameters: []string{op.sql(aliasPath)}}, nil
		}
		return OperatorCondition{Operator: OpEqual, Parameters: []string{aliasPath, fmt.Sprint(op.value)}}, nil

	case OpNot:
		if child := op.child(); child != nil {
			cond, err := qb.predicate(aliasPath, child)
			if err != nil {
				return nil, err
			}
			return NestedCondition{Operator: OpNot, Condition: cond}, nil
		}
		if op.value == nil {
			return NestedCondition{Operator: OpNot, Condition: OperatorCondition{Operator: OpIsNull, Parameters: []string{aliasPath}}}, nil
		}
		p, err := qb.createParameter(op.value)
		if err != nil {
			return nil, err
		}
		return OperatorCondition{Operator: OpNotEqual, Parameters: []string{aliasPath, p}}, nil

	case OpAnd, OpOr:
		operands := op.operands()
		params := make([]string, 0, len(operands))
		for _, operand := range operands {
			cond, err := qb.predicate(aliasPath, operand)
			if err != nil {
				return nil, err
			}
			sql, err := conditionSQL(qb.db.dialect, cond)
			if err != nil {
				return nil, err
			}
			params = append(params, sql)
		}
		return OperatorCondition{Operator: op.kind, Parameters: params}, nil

	case OpIsNull:
		return OperatorCondition{Operator: OpIsNull, Parameters: []string{aliasPath}}, nil

	case OpEqual:
		if op.value == nil {
			return OperatorCondition{Operator: OpIsNull, Parameters: []string{aliasPath}}, nil
		}
	}

	params := []string{aliasPath}
	values := []any{op.value}
	if op.multiple {
		values, _ = op.value.([]any)
	}
	for _, v := range values {
		p, err := qb.createParameter(v)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return OperatorCondition{Operator: op.kind, Parameters: params}, nil
}

// columnPath returns the escaped reference to column through alias.
func (qb *QueryBuilder) columnPath(alias *Alias, column *metadata.ColumnMetadata) string {
	name := qb.db.dialect.QuoteIdentifier(column.DatabaseName)
	if qb.expr.PropertyPrefixing && alias.Name != "" {
		return qb.db.dialect.QuoteIdentifier(alias.Name) + "." + name
	}
	return name
}

// keyPath returns the escaped reference to key on an alias without metadata.
func (qb *QueryBuilder) keyPath(alias *Alias, key string) string {
	name := qb.db.dialect.QuoteIdentifier(key)
	if qb.expr.PropertyPrefixing && alias.Name != "" {
		return qb.db.dialect.QuoteIdentifier(alias.Name) + "." + name
	}
	return name
}
