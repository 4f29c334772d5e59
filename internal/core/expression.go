// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"encoding/json"
	"reflect"
)

// Operator is the tag of a compiled where condition.
type Operator string

// Where operators. Every operator has a rendering rule; see renderOperator.
const (
	OpEqual            Operator = "equal"
	OpNotEqual         Operator = "notEqual"
	OpLessThan         Operator = "lessThan"
	OpLessThanOrEqual  Operator = "lessThanOrEqual"
	OpMoreThan         Operator = "moreThan"
	OpMoreThanOrEqual  Operator = "moreThanOrEqual"
	OpLike             Operator = "like"
	OpILike            Operator = "ilike"
	OpBetween          Operator = "between"
	OpIn               Operator = "in"
	OpAny              Operator = "any"
	OpIsNull           Operator = "isNull"
	OpArrayContains    Operator = "arrayContains"
	OpArrayContainedBy Operator = "arrayContainedBy"
	OpArrayOverlap     Operator = "arrayOverlap"
	OpJSONContains     Operator = "jsonContains"
	OpAnd              Operator = "and"
	OpOr               Operator = "or"
	OpNot              Operator = "not"
	OpBrackets         Operator = "brackets"
	OpRaw              Operator = "raw"
)

// FindOperator is a value wrapper placed in a Filter to select an operator
// other than equality.
//
// Example:
//
//	qb.Where(quarry.Filter{
//	    "age":    quarry.Between(18, 65),
//	    "status": quarry.In("active", "pending"),
//	    "name":   quarry.Not(quarry.ILike("%bot%")),
//	})
type FindOperator struct {
	kind     Operator
	value    any
	multiple bool
	sql      func(column string) string
	params   Params
}

// Type returns the operator tag.
func (o *FindOperator) Type() Operator {
	return o.kind
}

// Value returns the wrapped value.
func (o *FindOperator) Value() any {
	return o.value
}

// child returns the wrapped operator of Not, nil otherwise.
func (o *FindOperator) child() *FindOperator {
	if c, ok := o.value.(*FindOperator); ok {
		return c
	}
	return nil
}

// operands returns the operators combined by And/Or.
func (o *FindOperator) operands() []*FindOperator {
	ops, _ := o.value.([]*FindOperator)
	return ops
}

// Equal matches column = value.
func Equal(value any) *FindOperator {
	return &FindOperator{kind: OpEqual, value: value}
}

// Not negates value: column != value, or NOT(...) around another operator.
func Not(value any) *FindOperator {
	return &FindOperator{kind: OpNot, value: value}
}

// LessThan matches column < value.
func LessThan(value any) *FindOperator {
	return &FindOperator{kind: OpLessThan, value: value}
}

// LessThanOrEqual matches column <= value.
func LessThanOrEqual(value any) *FindOperator {
	return &FindOperator{kind: OpLessThanOrEqual, value: value}
}

// MoreThan matches column > value.
func MoreThan(value any) *FindOperator {
	return &FindOperator{kind: OpMoreThan, value: value}
}

// MoreThanOrEqual matches column >= value.
func MoreThanOrEqual(value any) *FindOperator {
	return &FindOperator{kind: OpMoreThanOrEqual, value: value}
}

// Like matches column LIKE pattern.
func Like(pattern any) *FindOperator {
	return &FindOperator{kind: OpLike, value: pattern}
}

// ILike matches case-insensitively. Dialects without ILIKE compare UPPER()s.
func ILike(pattern any) *FindOperator {
	return &FindOperator{kind: OpILike, value: pattern}
}

// Between matches column BETWEEN from AND to.
func Between(from, to any) *FindOperator {
	return &FindOperator{kind: OpBetween, value: []any{from, to}, multiple: true}
}

// In matches column IN (values...). A single slice argument is expanded.
// An empty value list never matches.
func In(values ...any) *FindOperator {
	if len(values) == 1 {
		if items, ok := sliceItems(values[0]); ok {
			values = items
		}
	}
	return &FindOperator{kind: OpIn, value: values, multiple: true}
}

// Any matches column = ANY(array).
func Any(array any) *FindOperator {
	return &FindOperator{kind: OpAny, value: array}
}

// IsNull matches column IS NULL.
func IsNull() *FindOperator {
	return &FindOperator{kind: OpIsNull}
}

// ArrayContains matches column @> array.
func ArrayContains(array any) *FindOperator {
	return &FindOperator{kind: OpArrayContains, value: array}
}

// ArrayContainedBy matches column <@ array.
func ArrayContainedBy(array any) *FindOperator {
	return &FindOperator{kind: OpArrayContainedBy, value: array}
}

// ArrayOverlap matches column && array.
func ArrayOverlap(array any) *FindOperator {
	return &FindOperator{kind: OpArrayOverlap, value: array}
}

// JSONContains matches column ::jsonb @> value. Non-string values are
// marshaled to JSON.
func JSONContains(value any) *FindOperator {
	if _, ok := value.(string); !ok {
		if b, err := json.Marshal(value); err == nil {
			value = string(b)
		}
	}
	return &FindOperator{kind: OpJSONContains, value: value}
}

// Raw inlines SQL. With a string, the condition is column = sql. With a
// func(column string) string, the returned SQL is used as the whole
// condition and params are registered on the builder.
//
// Example:
//
//	quarry.Raw(func(col string) string { return col + " > NOW() - :age" },
//	    quarry.Params{"age": "1 day"})
func Raw(sql any, params ...Params) *FindOperator {
	op := &FindOperator{kind: OpRaw}
	switch s := sql.(type) {
	case func(string) string:
		op.sql = s
	default:
		op.value = s
	}
	for _, p := range params {
		if op.params == nil {
			op.params = make(Params, len(p))
		}
		for k, v := range p {
			op.params[k] = v
		}
	}
	return op
}

// And requires every operator to match.
func And(ops ...*FindOperator) *FindOperator {
	return &FindOperator{kind: OpAnd, value: ops}
}

// Or requires at least one operator to match.
func Or(ops ...*FindOperator) *FindOperator {
	return &FindOperator{kind: OpOr, value: ops}
}

func sliceItems(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
