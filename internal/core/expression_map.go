// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"github.com/coregx/quarry/internal/metadata"
)

// QueryType is the kind of statement a builder renders.
type QueryType string

// Query types.
const (
	QueryTypeUnset      QueryType = ""
	QueryTypeSelect     QueryType = "select"
	QueryTypeInsert     QueryType = "insert"
	QueryTypeUpdate     QueryType = "update"
	QueryTypeDelete     QueryType = "delete"
	QueryTypeSoftDelete QueryType = "soft-delete"
	QueryTypeRestore    QueryType = "restore"
	QueryTypeRelation   QueryType = "relation"
)

// Order is an ORDER BY direction.
type Order string

// Sort directions.
const (
	Asc  Order = "ASC"
	Desc Order = "DESC"
)

// Nulls places NULLs first or last in ORDER BY.
type Nulls string

// Null orderings.
const (
	NullsFirst Nulls = "NULLS FIRST"
	NullsLast  Nulls = "NULLS LAST"
)

// SelectItem is one entry of the select list.
type SelectItem struct {
	Selection string
	AliasName string
}

// OrderByItem is one ORDER BY term.
type OrderByItem struct {
	Sort  string
	Order Order
	Nulls Nulls
}

// JoinAttribute describes one join.
type JoinAttribute struct {
	// Direction is LEFT or INNER.
	Direction string
	Alias     *Alias
	// Condition is an extra raw ON condition.
	Condition string
	// ParentAlias and Relation are set for relation joins such as "u.posts".
	ParentAlias string
	Relation    *metadata.RelationMetadata
	IsSelected  bool
}

// RelationPropertyPath returns the joined relation's property path.
func (j *JoinAttribute) RelationPropertyPath() string {
	if j.Relation == nil {
		return ""
	}
	return j.Relation.PropertyPath()
}

// JunctionAlias names the junction table alias of a many-to-many join.
func (j *JoinAttribute) JunctionAlias() string {
	return j.ParentAlias + "_" + j.Alias.Name
}

// CTEOptions configures a common table expression.
type CTEOptions struct {
	Recursive bool
	// ColumnNames is the optional explicit column list.
	ColumnNames []string
	// Materialized renders MATERIALIZED (true) or NOT MATERIALIZED (false)
	// on dialects that support the hint.
	Materialized *bool
}

// CommonTableExpression is a registered WITH entry. Exactly one of Builder
// and SQL is set.
type CommonTableExpression struct {
	Builder Builder
	SQL     string
	Alias   string
	Options CTEOptions
}

// OnConflict configures insert upserts.
type OnConflict struct {
	Ignore         bool
	Overwrite      []string
	ConflictTarget []string
}

// ExpressionMap is the complete state of one query under construction.
// Builders own their map exclusively; Clone deep-copies it.
type ExpressionMap struct {
	QueryType QueryType

	MainAlias *Alias
	Aliases   []*Alias

	Selects  []SelectItem
	Distinct bool
	Joins    []*JoinAttribute
	Wheres   []*WhereClause
	Havings  []*WhereClause
	GroupBys []string
	OrderBys []OrderByItem
	Limit    int
	Offset   int

	Parameters       Params
	NativeParameters Params

	CTEs    []*CommonTableExpression
	Comment string

	// TimeTravel is the AS OF SYSTEM TIME expression, "" when disabled.
	TimeTravel  string
	WithDeleted bool
	// SubQuery wraps the rendered statement in parentheses.
	SubQuery bool
	// PropertyPrefixing qualifies columns with their alias. Write
	// statements disable it.
	PropertyPrefixing bool

	// InsertColumns restricts the inserted properties.
	InsertColumns []string
	// ValuesSet holds insert rows or the single update set.
	ValuesSet    []map[string]any
	OnConflict   *OnConflict
	Returning    []string
	UpdateEntity bool

	RelationPropertyPath string
	RelationEntityIDs    []any
}

// NewExpressionMap returns an empty map with prefixing and entity updates enabled.
func NewExpressionMap() *ExpressionMap {
	return &ExpressionMap{
		Parameters:        make(Params),
		NativeParameters:  make(Params),
		PropertyPrefixing: true,
		UpdateEntity:      true,
	}
}

// SetMainAlias makes alias the statement's primary table.
func (e *ExpressionMap) SetMainAlias(alias *Alias) {
	e.MainAlias = alias
}

// FindJoin returns the relation join whose parent alias and relation path match.
func (e *ExpressionMap) FindJoin(parentAlias, relationPath string) *JoinAttribute {
	for _, j := range e.Joins {
		if j.ParentAlias == parentAlias && j.RelationPropertyPath() == relationPath {
			return j
		}
	}
	return nil
}

// Clone returns a deep copy. Aliases are copied and every reference to an
// alias (main alias, joins) points at the copy; nothing is shared with e.
// CTE bodies are cloned as builders.
func (e *ExpressionMap) Clone() *ExpressionMap {
	c := *e

	remap := make(map[*Alias]*Alias, len(e.Aliases))
	c.Aliases = make([]*Alias, len(e.Aliases))
	for i, a := range e.Aliases {
		cp := *a
		c.Aliases[i] = &cp
		remap[a] = &cp
	}
	lookup := func(a *Alias) *Alias {
		if a == nil {
			return nil
		}
		if cp, ok := remap[a]; ok {
			return cp
		}
		cp := *a
		return &cp
	}
	c.MainAlias = lookup(e.MainAlias)

	c.Joins = make([]*JoinAttribute, len(e.Joins))
	for i, j := range e.Joins {
		cp := *j
		cp.Alias = lookup(j.Alias)
		c.Joins[i] = &cp
	}

	c.Selects = append([]SelectItem(nil), e.Selects...)
	c.Wheres = cloneClauses(e.Wheres)
	c.Havings = cloneClauses(e.Havings)
	c.GroupBys = append([]string(nil), e.GroupBys...)
	c.OrderBys = append([]OrderByItem(nil), e.OrderBys...)
	c.Parameters = cloneParams(e.Parameters)
	c.NativeParameters = cloneParams(e.NativeParameters)

	c.CTEs = make([]*CommonTableExpression, len(e.CTEs))
	for i, cte := range e.CTEs {
		cp := *cte
		cp.Options.ColumnNames = append([]string(nil), cte.Options.ColumnNames...)
		if cte.Builder != nil {
			cp.Builder = cte.Builder.base().cloneAs()
		}
		c.CTEs[i] = &cp
	}

	c.InsertColumns = append([]string(nil), e.InsertColumns...)
	if e.ValuesSet != nil {
		c.ValuesSet = make([]map[string]any, len(e.ValuesSet))
		for i, v := range e.ValuesSet {
			c.ValuesSet[i] = cloneValues(v)
		}
	}
	if e.OnConflict != nil {
		oc := *e.OnConflict
		oc.Overwrite = append([]string(nil), e.OnConflict.Overwrite...)
		oc.ConflictTarget = append([]string(nil), e.OnConflict.ConflictTarget...)
		c.OnConflict = &oc
	}
	c.Returning = append([]string(nil), e.Returning...)
	c.RelationEntityIDs = append([]any(nil), e.RelationEntityIDs...)
	return &c
}

func cloneParams(p Params) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// cloneValues copies nested property maps so clones can be mutated freely.
func cloneValues(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		if nested, ok := val.(map[string]any); ok {
			out[k] = cloneValues(nested)
			continue
		}
		out[k] = val
	}
	return out
}
