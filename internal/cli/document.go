// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coregx/quarry"
)

// QueryDocument is a query described in YAML.
//
//	type: select
//	target: User
//	alias: u
//	select: [u.name]
//	where:
//	  - status: {$in: [active, vip]}
//	  - "u.name LIKE :prefix"
//	params: {prefix: "A%"}
type QueryDocument struct {
	Type    string `yaml:"type"`
	Comment string `yaml:"comment"`
	Target  string `yaml:"target"`
	Alias   string `yaml:"alias"`

	Select      []string         `yaml:"select"`
	SelectAs    []SelectDocument `yaml:"selectAs"`
	Distinct    bool             `yaml:"distinct"`
	Joins       []JoinDocument   `yaml:"joins"`
	GroupBy     []string         `yaml:"groupBy"`
	Having      string           `yaml:"having"`
	OrderBy     []OrderDocument  `yaml:"orderBy"`
	Limit       int              `yaml:"limit"`
	Offset      int              `yaml:"offset"`
	WithDeleted bool             `yaml:"withDeleted"`

	Where  []any          `yaml:"where"`
	IDs    []any          `yaml:"ids"`
	Params map[string]any `yaml:"params"`

	Columns    []string          `yaml:"columns"`
	Values     []map[string]any  `yaml:"values"`
	OnConflict *ConflictDocument `yaml:"onConflict"`
	Set        map[string]any    `yaml:"set"`
	Returning  []string          `yaml:"returning"`

	Relation *RelationDocument `yaml:"relation"`
}

// SelectDocument is a raw select expression with an alias.
type SelectDocument struct {
	Expr string `yaml:"expr"`
	As   string `yaml:"as"`
}

// JoinDocument is one join. Kind is left (default) or inner.
type JoinDocument struct {
	Kind      string         `yaml:"kind"`
	Target    string         `yaml:"target"`
	Alias     string         `yaml:"alias"`
	Condition string         `yaml:"condition"`
	Select    bool           `yaml:"select"`
	Params    map[string]any `yaml:"params"`
}

// OrderDocument is one ORDER BY term.
type OrderDocument struct {
	Sort  string `yaml:"sort"`
	Order string `yaml:"order"`
	Nulls string `yaml:"nulls"`
}

// ConflictDocument configures an upsert.
type ConflictDocument struct {
	Ignore    bool     `yaml:"ignore"`
	Overwrite []string `yaml:"overwrite"`
	Target    []string `yaml:"target"`
}

// RelationDocument changes the links of one relation.
type RelationDocument struct {
	Property string `yaml:"property"`
	Of       []any  `yaml:"of"`
	Set      any    `yaml:"set"`
	Add      []any  `yaml:"add"`
	Remove   []any  `yaml:"remove"`
}

// LoadQueryDocument reads a query document from path.
func LoadQueryDocument(path string) (*QueryDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc QueryDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &doc, nil
}

// Build turns the document into a builder on db.
func (d *QueryDocument) Build(db *quarry.DB) (quarry.Builder, error) {
	if d.Target == "" {
		return nil, errors.New("query document has no target")
	}
	qb := db.CreateQueryBuilder()
	if d.Comment != "" {
		qb.Comment(d.Comment)
	}

	var b quarry.Builder
	switch strings.ToLower(d.Type) {
	case "", "select":
		sb, err := d.buildSelect(qb)
		if err != nil {
			return nil, err
		}
		b = sb
	case "insert":
		ib, err := d.buildInsert(qb)
		if err != nil {
			return nil, err
		}
		b = ib
	case "update":
		set, err := toFilter(d.Set)
		if err != nil {
			return nil, err
		}
		ub := qb.Update(d.Target).Set(set)
		if len(d.Returning) > 0 {
			ub.Returning(d.Returning...)
		}
		b = ub
	case "delete":
		dq := qb.Delete().From(d.Target)
		if len(d.Returning) > 0 {
			dq.Returning(d.Returning...)
		}
		b = dq
	case "soft-delete", "restore":
		var sd *quarry.SoftDeleteQueryBuilder
		if strings.EqualFold(d.Type, "restore") {
			sd = qb.Restore()
		} else {
			sd = qb.SoftDelete()
		}
		sd.From(d.Target)
		if len(d.Returning) > 0 {
			sd.Returning(d.Returning...)
		}
		b = sd
	case "relation":
		return d.buildRelation(qb)
	default:
		return nil, fmt.Errorf("unknown query type %q", d.Type)
	}

	if err := d.applyWhere(qb); err != nil {
		return nil, err
	}
	if len(d.Params) > 0 {
		qb.SetParameters(d.Params)
	}
	return b, nil
}

func (d *QueryDocument) buildSelect(qb *quarry.QueryBuilder) (*quarry.SelectQueryBuilder, error) {
	alias := d.Alias
	if alias == "" {
		alias = strings.ToLower(d.Target[:1])
	}
	sb := qb.Select(d.Select...).From(d.Target, alias)
	for _, s := range d.SelectAs {
		sb.AddSelectAs(s.Expr, s.As)
	}
	if d.Distinct {
		sb.Distinct(true)
	}
	for _, j := range d.Joins {
		var params []quarry.Params
		if len(j.Params) > 0 {
			params = append(params, j.Params)
		}
		switch strings.ToLower(j.Kind) {
		case "", "left":
			if j.Select {
				sb.LeftJoinAndSelect(j.Target, j.Alias, j.Condition, params...)
			} else {
				sb.LeftJoin(j.Target, j.Alias, j.Condition, params...)
			}
		case "inner":
			if j.Select {
				sb.InnerJoinAndSelect(j.Target, j.Alias, j.Condition, params...)
			} else {
				sb.InnerJoin(j.Target, j.Alias, j.Condition, params...)
			}
		default:
			return nil, fmt.Errorf("unknown join kind %q", j.Kind)
		}
	}
	for i, g := range d.GroupBy {
		if i == 0 {
			sb.GroupBy(g)
		} else {
			sb.AddGroupBy(g)
		}
	}
	if d.Having != "" {
		sb.Having(d.Having)
	}
	for i, o := range d.OrderBy {
		order := quarry.Order(strings.ToUpper(o.Order))
		nulls := quarry.Nulls(strings.ToUpper(o.Nulls))
		if i == 0 {
			sb.OrderBy(o.Sort, order, nulls)
		} else {
			sb.AddOrderBy(o.Sort, order, nulls)
		}
	}
	if d.Limit > 0 {
		sb.Limit(d.Limit)
	}
	if d.Offset > 0 {
		sb.Offset(d.Offset)
	}
	if d.WithDeleted {
		sb.WithDeleted()
	}
	return sb, nil
}

func (d *QueryDocument) buildInsert(qb *quarry.QueryBuilder) (*quarry.InsertQueryBuilder, error) {
	rows := make([]quarry.Filter, len(d.Values))
	for i, v := range d.Values {
		f, err := toFilter(v)
		if err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		rows[i] = f
	}
	ib := qb.Insert().Into(d.Target, d.Columns...).Values(rows)
	if c := d.OnConflict; c != nil {
		if c.Ignore {
			ib.OrIgnore()
		} else {
			ib.OrUpdate(c.Overwrite, c.Target...)
		}
	}
	if len(d.Returning) > 0 {
		ib.Returning(d.Returning...)
	}
	return ib, nil
}

func (d *QueryDocument) buildRelation(qb *quarry.QueryBuilder) (quarry.Builder, error) {
	r := d.Relation
	if r == nil {
		return nil, errors.New("relation query needs a relation block")
	}
	rb := qb.Relation(d.Target, r.Property).Of(r.Of...)
	switch {
	case len(r.Add) > 0 && len(r.Remove) > 0:
		return nil, errors.New("relation query renders one statement: use add or remove")
	case len(r.Add) > 0:
		return rb.AddQuery(r.Add...)
	case len(r.Remove) > 0:
		return rb.RemoveQuery(r.Remove...)
	default:
		return rb.SetQuery(r.Set)
	}
}

func (d *QueryDocument) applyWhere(qb *quarry.QueryBuilder) error {
	for i, w := range d.Where {
		cond, err := toCondition(w)
		if err != nil {
			return fmt.Errorf("where[%d]: %w", i, err)
		}
		if i == 0 {
			qb.Where(cond)
		} else {
			qb.AndWhere(cond)
		}
	}
	if len(d.IDs) > 0 {
		if len(d.Where) > 0 {
			qb.AndWhereInIds(d.IDs...)
		} else {
			qb.WhereInIds(d.IDs...)
		}
	}
	return nil
}

func toCondition(v any) (any, error) {
	switch w := v.(type) {
	case string:
		return w, nil
	case map[string]any:
		return toFilter(w)
	case []any:
		list := make([]quarry.Filter, len(w))
		for i, item := range w {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("alternative %d is %T, want a mapping", i, item)
			}
			f, err := toFilter(m)
			if err != nil {
				return nil, err
			}
			list[i] = f
		}
		return list, nil
	}
	return nil, fmt.Errorf("unsupported condition %T", v)
}

// toFilter converts decoded YAML into a Filter. Mappings whose single key
// starts with $ become find operators.
func toFilter(m map[string]any) (quarry.Filter, error) {
	if m == nil {
		return nil, nil
	}
	f := make(quarry.Filter, len(m))
	for k, raw := range m {
		v, err := toValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		f[k] = v
	}
	return f, nil
}

func toValue(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	if len(m) == 1 {
		for k, arg := range m {
			if strings.HasPrefix(k, "$") {
				return toOperator(k, arg)
			}
		}
	}
	return toFilter(m)
}

func toOperator(name string, arg any) (*quarry.FindOperator, error) {
	list := func() ([]any, error) {
		l, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("%s expects a list", name)
		}
		return l, nil
	}

	switch name {
	case "$eq":
		return quarry.Equal(arg), nil
	case "$lt":
		return quarry.LessThan(arg), nil
	case "$lte":
		return quarry.LessThanOrEqual(arg), nil
	case "$gt":
		return quarry.MoreThan(arg), nil
	case "$gte":
		return quarry.MoreThanOrEqual(arg), nil
	case "$like":
		return quarry.Like(arg), nil
	case "$ilike":
		return quarry.ILike(arg), nil
	case "$isNull":
		return quarry.IsNull(), nil
	case "$raw":
		return quarry.Raw(arg), nil
	case "$any":
		return quarry.Any(arg), nil
	case "$in":
		l, err := list()
		if err != nil {
			return nil, err
		}
		return quarry.In(l...), nil
	case "$between":
		l, err := list()
		if err != nil {
			return nil, err
		}
		if len(l) != 2 {
			return nil, errors.New("$between expects two values")
		}
		return quarry.Between(l[0], l[1]), nil
	case "$not":
		inner, err := toValue(arg)
		if err != nil {
			return nil, err
		}
		return quarry.Not(inner), nil
	}
	return nil, fmt.Errorf("unknown operator %s", name)
}
