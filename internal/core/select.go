// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/metadata"
)

// defaultTimeTravel is the CockroachDB follower read expression.
const defaultTimeTravel = "follower_read_timestamp()"

// SelectQueryBuilder builds SELECT statements.
type SelectQueryBuilder struct {
	*QueryBuilder
}

// AddSelect appends selections: alias names select every column of the
// alias, property paths such as "u.name" select one column, and anything
// else is raw SQL.
func (sb *SelectQueryBuilder) AddSelect(selection ...string) *SelectQueryBuilder {
	for _, s := range selection {
		sb.expr.Selects = append(sb.expr.Selects, SelectItem{Selection: s})
	}
	return sb
}

// AddSelectAs appends a selection rendered as "selection AS alias".
func (sb *SelectQueryBuilder) AddSelectAs(selection, alias string) *SelectQueryBuilder {
	sb.expr.Selects = append(sb.expr.Selects, SelectItem{Selection: selection, AliasName: alias})
	return sb
}

// Distinct toggles SELECT DISTINCT.
func (sb *SelectQueryBuilder) Distinct(distinct bool) *SelectQueryBuilder {
	sb.expr.Distinct = distinct
	return sb
}

// From sets the main alias. target is an entity, a table name, a select
// builder or a func(*SelectQueryBuilder) *SelectQueryBuilder producing a
// sub-query. Calling From again adds another FROM source.
func (sb *SelectQueryBuilder) From(target any, alias string) *SelectQueryBuilder {
	if sb.err != nil {
		return sb
	}
	a, err := sb.createFromAlias(target, alias)
	if err != nil {
		sb.fail(err)
		return sb
	}
	if sb.expr.MainAlias == nil {
		sb.expr.SetMainAlias(a)
	}
	return sb
}

// ============================================================================
// Joins
// ============================================================================

// LeftJoin joins a relation ("u.posts"), an entity or a table. condition is
// an extra ON condition and may be empty.
//
// Example:
//
//	qb.Select("u").From("User", "u").
//	    LeftJoin("u.posts", "p", "p.status = :status", quarry.Params{"status": "published"})
func (sb *SelectQueryBuilder) LeftJoin(target any, alias, condition string, params ...Params) *SelectQueryBuilder {
	return sb.join("LEFT", target, alias, condition, false, params)
}

// InnerJoin joins like LeftJoin with INNER semantics.
func (sb *SelectQueryBuilder) InnerJoin(target any, alias, condition string, params ...Params) *SelectQueryBuilder {
	return sb.join("INNER", target, alias, condition, false, params)
}

// LeftJoinAndSelect joins and selects every column of the joined alias.
func (sb *SelectQueryBuilder) LeftJoinAndSelect(target any, alias, condition string, params ...Params) *SelectQueryBuilder {
	return sb.join("LEFT", target, alias, condition, true, params)
}

// InnerJoinAndSelect joins and selects every column of the joined alias.
func (sb *SelectQueryBuilder) InnerJoinAndSelect(target any, alias, condition string, params ...Params) *SelectQueryBuilder {
	return sb.join("INNER", target, alias, condition, true, params)
}

func (sb *SelectQueryBuilder) join(direction string, target any, aliasName, condition string, selected bool, params []Params) *SelectQueryBuilder {
	if sb.err != nil {
		return sb
	}
	for _, p := range params {
		sb.SetParameters(p)
	}
	if condition != "" {
		if err := sb.db.validateFragment(condition); err != nil {
			sb.fail(err)
			return sb
		}
	}

	ja := &JoinAttribute{Direction: direction, Condition: condition, IsSelected: selected}
	if parent, rel, ok := sb.findRelation(target); ok {
		alias, err := sb.expr.CreateAlias(AliasOptions{Type: AliasJoin, Name: aliasName, Metadata: rel.Target})
		if err != nil {
			sb.fail(err)
			return sb
		}
		ja.Alias, ja.ParentAlias, ja.Relation = alias, parent, rel
	} else {
		alias, err := sb.createAliasFor(AliasJoin, target, aliasName)
		if err != nil {
			sb.fail(err)
			return sb
		}
		ja.Alias = alias
	}
	sb.expr.Joins = append(sb.expr.Joins, ja)
	if selected {
		sb.AddSelect(ja.Alias.Name)
	}
	return sb
}

// findRelation resolves "alias.relationPath" against the registered aliases.
func (sb *SelectQueryBuilder) findRelation(target any) (string, *metadata.RelationMetadata, bool) {
	s, ok := target.(string)
	if !ok {
		return "", nil, false
	}
	parentName, path, found := strings.Cut(s, ".")
	if !found {
		return "", nil, false
	}
	parent, ok := sb.expr.FindAliasByName(parentName)
	if !ok || !parent.HasMetadata() {
		return "", nil, false
	}
	rel := parent.Metadata.FindRelationWithPropertyPath(path)
	if rel == nil {
		return "", nil, false
	}
	return parentName, rel, true
}

// ============================================================================
// Grouping, ordering, paging
// ============================================================================

// GroupBy replaces the GROUP BY list.
func (sb *SelectQueryBuilder) GroupBy(groupBy string) *SelectQueryBuilder {
	sb.expr.GroupBys = []string{groupBy}
	return sb
}

// AddGroupBy appends to the GROUP BY list.
func (sb *SelectQueryBuilder) AddGroupBy(groupBy string) *SelectQueryBuilder {
	sb.expr.GroupBys = append(sb.expr.GroupBys, groupBy)
	return sb
}

// Having replaces the HAVING conditions.
func (sb *SelectQueryBuilder) Having(having string, params ...Params) *SelectQueryBuilder {
	sb.expr.Havings = nil
	return sb.addHaving(WhereAnd, having, params)
}

// AndHaving adds a HAVING condition joined with AND.
func (sb *SelectQueryBuilder) AndHaving(having string, params ...Params) *SelectQueryBuilder {
	return sb.addHaving(WhereAnd, having, params)
}

// OrHaving adds a HAVING condition joined with OR.
func (sb *SelectQueryBuilder) OrHaving(having string, params ...Params) *SelectQueryBuilder {
	return sb.addHaving(WhereOr, having, params)
}

func (sb *SelectQueryBuilder) addHaving(t WhereType, having string, params []Params) *SelectQueryBuilder {
	if err := sb.db.validateFragment(having); err != nil {
		sb.fail(err)
		return sb
	}
	sb.expr.Havings = append(sb.expr.Havings, &WhereClause{Type: t, Condition: RawCondition(having)})
	for _, p := range params {
		sb.SetParameters(p)
	}
	return sb
}

// OrderBy replaces the ORDER BY list.
func (sb *SelectQueryBuilder) OrderBy(sort string, order Order, nulls ...Nulls) *SelectQueryBuilder {
	sb.expr.OrderBys = nil
	return sb.AddOrderBy(sort, order, nulls...)
}

// AddOrderBy appends an ORDER BY term.
func (sb *SelectQueryBuilder) AddOrderBy(sort string, order Order, nulls ...Nulls) *SelectQueryBuilder {
	if order == "" {
		order = Asc
	}
	item := OrderByItem{Sort: sort, Order: order}
	if len(nulls) > 0 {
		item.Nulls = nulls[0]
	}
	sb.expr.OrderBys = append(sb.expr.OrderBys, item)
	return sb
}

// Limit caps the number of rows. Zero removes the limit.
func (sb *SelectQueryBuilder) Limit(limit int) *SelectQueryBuilder {
	sb.expr.Limit = limit
	return sb
}

// Offset skips rows. Zero removes the offset.
func (sb *SelectQueryBuilder) Offset(offset int) *SelectQueryBuilder {
	sb.expr.Offset = offset
	return sb
}

// WithDeleted includes soft-deleted rows.
func (sb *SelectQueryBuilder) WithDeleted() *SelectQueryBuilder {
	sb.expr.WithDeleted = true
	return sb
}

// TimeTravelQuery reads historical data on dialects that support
// AS OF SYSTEM TIME. Without an argument follower reads are used.
func (sb *SelectQueryBuilder) TimeTravelQuery(expr ...string) *SelectQueryBuilder {
	sb.expr.TimeTravel = defaultTimeTravel
	if len(expr) > 0 {
		sb.expr.TimeTravel = expr[0]
	}
	return sb
}

// ============================================================================
// Chain-preserving wrappers
// ============================================================================

// Where replaces every where condition.
func (sb *SelectQueryBuilder) Where(where any, params ...Params) *SelectQueryBuilder {
	sb.QueryBuilder.Where(where, params...)
	return sb
}

// AndWhere adds a condition joined with AND.
func (sb *SelectQueryBuilder) AndWhere(where any, params ...Params) *SelectQueryBuilder {
	sb.QueryBuilder.AndWhere(where, params...)
	return sb
}

// OrWhere adds a condition joined with OR.
func (sb *SelectQueryBuilder) OrWhere(where any, params ...Params) *SelectQueryBuilder {
	sb.QueryBuilder.OrWhere(where, params...)
	return sb
}

// WhereInIds replaces every where condition with a primary key match.
func (sb *SelectQueryBuilder) WhereInIds(ids ...any) *SelectQueryBuilder {
	sb.QueryBuilder.WhereInIds(ids...)
	return sb
}

// AndWhereInIds adds a primary key match joined with AND.
func (sb *SelectQueryBuilder) AndWhereInIds(ids ...any) *SelectQueryBuilder {
	sb.QueryBuilder.AndWhereInIds(ids...)
	return sb
}

// OrWhereInIds adds a primary key match joined with OR.
func (sb *SelectQueryBuilder) OrWhereInIds(ids ...any) *SelectQueryBuilder {
	sb.QueryBuilder.OrWhereInIds(ids...)
	return sb
}

// SetParameter binds a named parameter.
func (sb *SelectQueryBuilder) SetParameter(key string, value any) *SelectQueryBuilder {
	sb.QueryBuilder.SetParameter(key, value)
	return sb
}

// SetParameters binds several named parameters.
func (sb *SelectQueryBuilder) SetParameters(params Params) *SelectQueryBuilder {
	sb.QueryBuilder.SetParameters(params)
	return sb
}

// SetNativeParameters binds driver parameters.
func (sb *SelectQueryBuilder) SetNativeParameters(params Params) *SelectQueryBuilder {
	sb.QueryBuilder.SetNativeParameters(params)
	return sb
}

// Comment prefixes the statement with a comment.
func (sb *SelectQueryBuilder) Comment(comment string) *SelectQueryBuilder {
	sb.QueryBuilder.Comment(comment)
	return sb
}

// AddCommonTableExpression registers a WITH entry.
func (sb *SelectQueryBuilder) AddCommonTableExpression(query any, alias string, opts ...CTEOptions) *SelectQueryBuilder {
	sb.QueryBuilder.AddCommonTableExpression(query, alias, opts...)
	return sb
}

// Clone returns an independent copy.
func (sb *SelectQueryBuilder) Clone() *SelectQueryBuilder {
	return &SelectQueryBuilder{QueryBuilder: sb.cloneAs()}
}

// ============================================================================
// Execution
// ============================================================================

// GetRawMany executes the query and returns every row.
func (sb *SelectQueryBuilder) GetRawMany(ctx context.Context) ([]map[string]any, error) {
	res, err := sb.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// GetRawOne executes the query and returns the first row, or ErrNoRows.
func (sb *SelectQueryBuilder) GetRawOne(ctx context.Context) (map[string]any, error) {
	rows, err := sb.GetRawMany(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

// GetCount counts the distinct main entities matched by the query. Order,
// limit and offset are ignored.
func (sb *SelectQueryBuilder) GetCount(ctx context.Context) (int64, error) {
	if sb.err != nil {
		return 0, sb.err
	}
	count := sb.Clone()
	count.runner = sb.runner
	count.expr.Selects = []SelectItem{{Selection: sb.countExpression(), AliasName: "cnt"}}
	count.expr.Distinct = false
	count.expr.OrderBys = nil
	count.expr.Limit, count.expr.Offset = 0, 0

	row, err := count.GetRawOne(ctx)
	if err != nil {
		return 0, err
	}
	return toInt64(row["cnt"])
}

func (sb *SelectQueryBuilder) countExpression() string {
	main := sb.expr.MainAlias
	if main == nil || !main.HasMetadata() || len(main.Metadata.PrimaryColumns) != 1 {
		return "COUNT(1)"
	}
	return "COUNT(DISTINCT(" + sb.columnPath(main, main.Metadata.PrimaryColumns[0]) + "))"
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil //nolint:gosec // row counts fit in int64
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unexpected count value %T", v)
}

// ============================================================================
// Rendering
// ============================================================================

func (rc *renderContext) selectStatement(b *QueryBuilder) (string, error) {
	e := b.expr
	if e.MainAlias == nil {
		return "", ErrMissingMainAlias
	}

	var sb strings.Builder
	sb.WriteString(rc.comment(b))
	cte, err := rc.cteExpression(b)
	if err != nil {
		return "", err
	}
	sb.WriteString(cte)

	sb.WriteString("SELECT ")
	if e.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(rc.selection(b))
	sb.WriteString(" FROM ")
	sb.WriteString(rc.froms(b))

	joins, err := rc.joins(b)
	if err != nil {
		return "", err
	}
	sb.WriteString(joins)

	where, err := rc.whereExpression(b)
	if err != nil {
		return "", err
	}
	sb.WriteString(where)

	if len(e.GroupBys) > 0 {
		sb.WriteString(" GROUP BY " + rc.replacePropertyNames(b, strings.Join(e.GroupBys, ", ")))
	}
	if len(e.Havings) > 0 {
		having, err := rc.clauses(b, e.Havings)
		if err != nil {
			return "", err
		}
		sb.WriteString(" HAVING " + having)
	}
	sb.WriteString(rc.orderBy(b))
	sb.WriteString(rc.limitOffset(b))
	return sb.String(), nil
}

// selection renders the select list. Alias names expand to every column of
// the alias, property paths to their column, and the rest is raw SQL.
func (rc *renderContext) selection(b *QueryBuilder) string {
	e := b.expr
	if len(e.Selects) == 0 {
		return "*"
	}

	consumed := make([]bool, len(e.Selects))
	var items []string
	for _, alias := range e.Aliases {
		if !alias.HasMetadata() {
			continue
		}
		whole := false
		for i, s := range e.Selects {
			if s.Selection == alias.Name {
				consumed[i], whole = true, true
			}
		}
		for _, c := range alias.Metadata.Columns {
			selected := whole
			for i, s := range e.Selects {
				if s.Selection == alias.Name+"."+c.PropertyPath() {
					consumed[i], selected = true, true
				}
			}
			if !selected {
				continue
			}
			items = append(items, rc.escape(alias.Name)+"."+rc.escape(c.DatabaseName)+
				" AS "+rc.escape(buildAlias(rc.dialect.Features().MaxAliasLength, alias.Name, c.DatabaseName)))
		}
	}

	for i, s := range e.Selects {
		if consumed[i] {
			continue
		}
		item := rc.replacePropertyNames(b, s.Selection)
		if s.AliasName != "" {
			item += " AS " + rc.escape(s.AliasName)
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return "*"
	}
	return strings.Join(items, ", ")
}

func (rc *renderContext) froms(b *QueryBuilder) string {
	var froms []string
	for _, alias := range b.expr.Aliases {
		if alias.Type != AliasFrom {
			continue
		}
		if alias.SubQuery != "" {
			froms = append(froms, alias.SubQuery+" "+rc.escape(alias.Name))
			continue
		}
		froms = append(froms, rc.tableName(alias.Table())+" "+rc.escape(alias.Name))
	}
	return strings.Join(froms, ", ")
}

// joins renders every join with a leading space.
func (rc *renderContext) joins(b *QueryBuilder) (string, error) {
	var sb strings.Builder
	for _, j := range b.expr.Joins {
		appended := ""
		if j.Condition != "" {
			appended = rc.replacePropertyNames(b, j.Condition)
		}
		dest := rc.escape(j.Alias.Name)

		if j.Relation == nil || j.ParentAlias == "" {
			source := j.Alias.SubQuery
			if source == "" {
				source = rc.tableName(j.Alias.Table())
			}
			sb.WriteString(" " + j.Direction + " JOIN " + source + " " + dest)
			if appended != "" {
				sb.WriteString(" ON " + appended)
			}
			continue
		}

		rel := j.Relation
		parent := rc.escape(j.ParentAlias)
		if appended != "" {
			appended = " AND (" + appended + ")"
		}
		table := rc.tableName(rel.Target.TablePath())

		switch {
		case rel.Type == metadata.ManyToOne || (rel.Type == metadata.OneToOne && rel.IsOwning()):
			conds := make([]string, len(rel.JoinColumns))
			for i, jc := range rel.JoinColumns {
				conds[i] = dest + "." + rc.escape(jc.ReferencedColumn.DatabaseName) + "=" + parent + "." + rc.escape(jc.DatabaseName)
			}
			sb.WriteString(" " + j.Direction + " JOIN " + table + " " + dest + " ON " + strings.Join(conds, " AND ") + appended)

		case rel.Type == metadata.OneToMany || rel.Type == metadata.OneToOne:
			inv := rel.InverseRelation
			if inv == nil || len(inv.JoinColumns) == 0 {
				return "", fmt.Errorf("%w: relation %s has no owning side", ErrRelationOperation, rel.PropertyPath())
			}
			conds := make([]string, len(inv.JoinColumns))
			for i, jc := range inv.JoinColumns {
				conds[i] = dest + "." + rc.escape(jc.DatabaseName) + "=" + parent + "." + rc.escape(jc.ReferencedColumn.DatabaseName)
			}
			sb.WriteString(" " + j.Direction + " JOIN " + table + " " + dest + " ON " + strings.Join(conds, " AND ") + appended)

		default:
			junction := rc.escape(j.JunctionAlias())
			owner := make([]string, len(rel.JunctionOwnerColumns))
			for i, c := range rel.JunctionOwnerColumns {
				owner[i] = junction + "." + rc.escape(c.DatabaseName) + "=" + parent + "." + rc.escape(c.ReferencedColumn.DatabaseName)
			}
			inverse := make([]string, len(rel.JunctionInverseColumns))
			for i, c := range rel.JunctionInverseColumns {
				inverse[i] = dest + "." + rc.escape(c.ReferencedColumn.DatabaseName) + "=" + junction + "." + rc.escape(c.DatabaseName)
			}
			sb.WriteString(" " + j.Direction + " JOIN " + rc.tableName(junctionPath(rel)) + " " + junction + " ON " + strings.Join(owner, " AND "))
			sb.WriteString(" " + j.Direction + " JOIN " + table + " " + dest + " ON " + strings.Join(inverse, " AND ") + appended)
		}
	}
	return sb.String(), nil
}

// junctionPath qualifies the junction table with the owner's schema.
func junctionPath(rel *metadata.RelationMetadata) string {
	if rel.Entity != nil && rel.Entity.Schema != "" {
		return rel.Entity.Schema + "." + rel.JunctionTable
	}
	return rel.JunctionTable
}

func (rc *renderContext) orderBy(b *QueryBuilder) string {
	if len(b.expr.OrderBys) == 0 {
		return ""
	}
	items := make([]string, len(b.expr.OrderBys))
	for i, o := range b.expr.OrderBys {
		item := rc.replacePropertyNames(b, o.Sort) + " " + string(o.Order)
		if o.Nulls != "" {
			item += " " + string(o.Nulls)
		}
		items[i] = item
	}
	return " ORDER BY " + strings.Join(items, ", ")
}

// limitOffset renders paging in the dialect's syntax.
func (rc *renderContext) limitOffset(b *QueryBuilder) string {
	limit, offset := b.expr.Limit, b.expr.Offset
	if limit <= 0 && offset <= 0 {
		return ""
	}
	l, o := strconv.Itoa(limit), strconv.Itoa(offset)
	f := rc.dialect.Features()

	if f.Paging == dialects.PagingOffsetFetch {
		prefix := ""
		mssql := rc.dialect.Type() == dialects.MSSQL
		if mssql && len(b.expr.OrderBys) == 0 {
			prefix = " ORDER BY (SELECT NULL)"
		}
		switch {
		case limit > 0 && offset > 0:
			return prefix + " OFFSET " + o + " ROWS FETCH NEXT " + l + " ROWS ONLY"
		case limit > 0 && mssql:
			return prefix + " OFFSET 0 ROWS FETCH NEXT " + l + " ROWS ONLY"
		case limit > 0:
			return prefix + " FETCH NEXT " + l + " ROWS ONLY"
		default:
			return prefix + " OFFSET " + o + " ROWS"
		}
	}

	switch {
	case limit > 0 && offset > 0:
		return " LIMIT " + l + " OFFSET " + o
	case limit > 0:
		return " LIMIT " + l
	case f.UnboundedLimit != "":
		return " LIMIT " + f.UnboundedLimit + " OFFSET " + o
	default:
		return " OFFSET " + o
	}
}
