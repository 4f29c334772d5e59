// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/metadata"
	"github.com/coregx/quarry/internal/runner"
)

// QueryRunner executes rendered statements. A runner passed to
// CreateQueryBuilder is borrowed and never released by the builder.
type QueryRunner interface {
	Query(ctx context.Context, sql string, params []any) (*runner.Result, error)
	Release() error
}

// Builder is implemented by every query builder.
type Builder interface {
	GetQuery() (string, error)
	GetParameters() Params
	base() *QueryBuilder
}

// QueryBuilder accumulates a query in its ExpressionMap. Select, Insert,
// Update, Delete, SoftDelete, Restore and Relation switch it to a typed
// builder that shares the same map.
//
// Builders are not safe for concurrent use. Use Clone to obtain an
// independent copy.
type QueryBuilder struct {
	db     *DB
	expr   *ExpressionMap
	parent *QueryBuilder
	runner QueryRunner

	paramIndex int
	err        error
}

func newQueryBuilder(db *DB, r QueryRunner) *QueryBuilder {
	return &QueryBuilder{db: db, expr: NewExpressionMap(), runner: r}
}

func (qb *QueryBuilder) base() *QueryBuilder { return qb }

// Err returns the first error recorded by the fluent chain.
func (qb *QueryBuilder) Err() error {
	return qb.err
}

// fail records err unless an earlier error is already recorded.
func (qb *QueryBuilder) fail(err error) {
	if err != nil && qb.err == nil {
		qb.err = err
	}
}

// ExpressionMap exposes the builder state for inspection.
func (qb *QueryBuilder) ExpressionMap() *ExpressionMap {
	return qb.expr
}

// Alias returns the main alias name.
func (qb *QueryBuilder) Alias() (string, error) {
	if qb.expr.MainAlias == nil {
		return "", ErrMissingMainAlias
	}
	return qb.expr.MainAlias.Name, nil
}

// ParentQueryBuilder returns the builder this one was spawned from, if any.
func (qb *QueryBuilder) ParentQueryBuilder() *QueryBuilder {
	return qb.parent
}

// SetQueryRunner makes Execute borrow r instead of creating a runner.
func (qb *QueryBuilder) SetQueryRunner(r QueryRunner) *QueryBuilder {
	qb.runner = r
	return qb
}

// ============================================================================
// Type transitions
// ============================================================================

// Select switches to a select query with the given selection. Selections may
// be alias names, property paths or raw SQL.
func (qb *QueryBuilder) Select(selection ...string) *SelectQueryBuilder {
	qb.expr.QueryType = QueryTypeSelect
	qb.expr.PropertyPrefixing = true
	sb := &SelectQueryBuilder{QueryBuilder: qb}
	if len(selection) > 0 {
		sb.expr.Selects = nil
		sb.AddSelect(selection...)
	}
	return sb
}

// Insert switches to an insert query.
func (qb *QueryBuilder) Insert() *InsertQueryBuilder {
	qb.expr.QueryType = QueryTypeInsert
	qb.expr.PropertyPrefixing = false
	return &InsertQueryBuilder{QueryBuilder: qb}
}

// Update switches to an update of target, an entity or table name. A nil
// target keeps the current main alias.
func (qb *QueryBuilder) Update(target any) *UpdateQueryBuilder {
	qb.expr.QueryType = QueryTypeUpdate
	qb.expr.PropertyPrefixing = false
	ub := &UpdateQueryBuilder{QueryBuilder: qb}
	if target != nil {
		ub.setMainTarget(target, "")
	}
	return ub
}

// Delete switches to a delete query.
func (qb *QueryBuilder) Delete() *DeleteQueryBuilder {
	qb.expr.QueryType = QueryTypeDelete
	qb.expr.PropertyPrefixing = false
	return &DeleteQueryBuilder{QueryBuilder: qb}
}

// SoftDelete switches to an update that sets the delete date column.
func (qb *QueryBuilder) SoftDelete() *SoftDeleteQueryBuilder {
	qb.expr.QueryType = QueryTypeSoftDelete
	qb.expr.PropertyPrefixing = false
	return &SoftDeleteQueryBuilder{QueryBuilder: qb}
}

// Restore switches to an update that clears the delete date column.
func (qb *QueryBuilder) Restore() *SoftDeleteQueryBuilder {
	qb.expr.QueryType = QueryTypeRestore
	qb.expr.PropertyPrefixing = false
	return &SoftDeleteQueryBuilder{QueryBuilder: qb}
}

// Relation switches to a relation builder for propertyPath of target.
func (qb *QueryBuilder) Relation(target any, propertyPath string) *RelationQueryBuilder {
	qb.expr.QueryType = QueryTypeRelation
	qb.expr.PropertyPrefixing = false
	rb := &RelationQueryBuilder{QueryBuilder: qb}
	rb.setMainTarget(target, "")
	qb.expr.RelationPropertyPath = propertyPath
	return rb
}

// specialize wraps qb in the typed builder of its query type.
func (qb *QueryBuilder) specialize() Builder {
	switch qb.expr.QueryType {
	case QueryTypeSelect:
		return &SelectQueryBuilder{QueryBuilder: qb}
	case QueryTypeInsert:
		return &InsertQueryBuilder{QueryBuilder: qb}
	case QueryTypeUpdate:
		return &UpdateQueryBuilder{QueryBuilder: qb}
	case QueryTypeDelete:
		return &DeleteQueryBuilder{QueryBuilder: qb}
	case QueryTypeSoftDelete, QueryTypeRestore:
		return &SoftDeleteQueryBuilder{QueryBuilder: qb}
	case QueryTypeRelation:
		return &RelationQueryBuilder{QueryBuilder: qb}
	}
	return qb
}

// ============================================================================
// Cloning and child builders
// ============================================================================

// cloneAs returns a copy with an independent expression map and no runner.
func (qb *QueryBuilder) cloneAs() *QueryBuilder {
	return &QueryBuilder{
		db:         qb.db,
		expr:       qb.expr.Clone(),
		parent:     qb.parent,
		paramIndex: qb.paramIndex,
		err:        qb.err,
	}
}

// Clone returns an independent copy of the same concrete builder type.
func (qb *QueryBuilder) Clone() Builder {
	return qb.cloneAs().specialize()
}

// SubQuery starts a select builder whose parameters are shared with qb and
// whose rendered SQL is wrapped in parentheses.
func (qb *QueryBuilder) SubQuery() *SelectQueryBuilder {
	child := newQueryBuilder(qb.db, qb.runner)
	child.parent = qb
	child.expr.SubQuery = true
	return child.Select()
}

// CreateQueryBuilder starts a new unrelated builder on the same connection
// and runner.
func (qb *QueryBuilder) CreateQueryBuilder() *QueryBuilder {
	return newQueryBuilder(qb.db, qb.runner)
}

// WhereBuilder is the scoped builder handed to Brackets callbacks. It shares
// the aliases, joins and parameters of the builder that owns the brackets.
type WhereBuilder struct {
	*QueryBuilder
}

func (qb *QueryBuilder) newWhereBuilder() *WhereBuilder {
	e := NewExpressionMap()
	e.QueryType = qb.expr.QueryType
	e.MainAlias = qb.expr.MainAlias
	e.Aliases = qb.expr.Aliases
	e.Joins = qb.expr.Joins
	e.Parameters = qb.expr.Parameters
	e.NativeParameters = qb.expr.NativeParameters
	e.PropertyPrefixing = qb.expr.PropertyPrefixing
	return &WhereBuilder{&QueryBuilder{
		db:         qb.db,
		expr:       e,
		parent:     qb,
		runner:     qb.runner,
		paramIndex: qb.paramIndex,
	}}
}

// Where replaces the bracket's conditions.
func (wb *WhereBuilder) Where(where any, params ...Params) *WhereBuilder {
	wb.QueryBuilder.Where(where, params...)
	return wb
}

// AndWhere adds a condition joined with AND.
func (wb *WhereBuilder) AndWhere(where any, params ...Params) *WhereBuilder {
	wb.QueryBuilder.AndWhere(where, params...)
	return wb
}

// OrWhere adds a condition joined with OR.
func (wb *WhereBuilder) OrWhere(where any, params ...Params) *WhereBuilder {
	wb.QueryBuilder.OrWhere(where, params...)
	return wb
}

// WhereInIds replaces the bracket's conditions with a primary key match.
func (wb *WhereBuilder) WhereInIds(ids ...any) *WhereBuilder {
	wb.QueryBuilder.WhereInIds(ids...)
	return wb
}

// ============================================================================
// Where
// ============================================================================

// Where replaces every where condition. See getWhereCondition for the
// accepted inputs.
//
// Example:
//
//	qb.Where("u.name = :name", quarry.Params{"name": "Ann"})
//	qb.Where(quarry.Filter{"status": "active", "age": quarry.MoreThan(18)})
//	qb.Where(quarry.NewBrackets(func(wb *quarry.WhereBuilder) {
//	    wb.Where("u.a = 1").OrWhere("u.b = 2")
//	}))
func (qb *QueryBuilder) Where(where any, params ...Params) *QueryBuilder {
	qb.expr.Wheres = nil
	qb.addWhere(WhereAnd, where, params)
	return qb
}

// AndWhere adds a condition joined with AND.
func (qb *QueryBuilder) AndWhere(where any, params ...Params) *QueryBuilder {
	qb.addWhere(WhereAnd, where, params)
	return qb
}

// OrWhere adds a condition joined with OR.
func (qb *QueryBuilder) OrWhere(where any, params ...Params) *QueryBuilder {
	qb.addWhere(WhereOr, where, params)
	return qb
}

func (qb *QueryBuilder) addWhere(t WhereType, where any, params []Params) {
	if qb.err != nil {
		return
	}
	cond, err := qb.getWhereCondition(where)
	if err != nil {
		qb.fail(err)
		return
	}
	qb.expr.Wheres = append(qb.expr.Wheres, &WhereClause{Type: t, Condition: cond})
	for _, p := range params {
		qb.SetParameters(p)
	}
}

// WhereInIds replaces every where condition with a match on the given
// primary key values. Composite keys are passed as property maps.
func (qb *QueryBuilder) WhereInIds(ids ...any) *QueryBuilder {
	qb.expr.Wheres = nil
	qb.addWhereInIds(WhereAnd, ids)
	return qb
}

// AndWhereInIds adds a primary key match joined with AND.
func (qb *QueryBuilder) AndWhereInIds(ids ...any) *QueryBuilder {
	qb.addWhereInIds(WhereAnd, ids)
	return qb
}

// OrWhereInIds adds a primary key match joined with OR.
func (qb *QueryBuilder) OrWhereInIds(ids ...any) *QueryBuilder {
	qb.addWhereInIds(WhereOr, ids)
	return qb
}

func (qb *QueryBuilder) addWhereInIds(t WhereType, ids []any) {
	if qb.err != nil {
		return
	}
	where, err := qb.whereInIds(ids)
	if err != nil {
		qb.fail(err)
		return
	}
	qb.addWhere(t, where, nil)
}

// whereInIds builds the condition matching ids. A single primary column uses
// IN; composite keys become an OR of bracketed conjunctions.
func (qb *QueryBuilder) whereInIds(ids []any) (any, error) {
	main := qb.expr.MainAlias
	if main == nil {
		return nil, ErrMissingMainAlias
	}
	if !main.HasMetadata() {
		return nil, fmt.Errorf("%w: WhereInIds needs entity metadata on alias %s", ErrPropertyNotFound, main.Name)
	}
	if len(ids) == 1 {
		if items, ok := sliceItems(ids[0]); ok {
			ids = items
		}
	}
	m := main.Metadata

	if !m.HasMultiplePrimaryKeys() && len(m.PrimaryColumns) == 1 {
		pk := m.PrimaryColumns[0]
		values := make([]any, 0, len(ids))
		for _, id := range ids {
			if idMap, ok := metadata.AsMap(id); ok {
				v, _ := pk.GetEntityValue(idMap)
				values = append(values, v)
				continue
			}
			values = append(values, id)
		}
		return pk.ValueMap(In(values...)), nil
	}

	idMaps := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		idMap, err := m.EnsureIDMap(id)
		if err != nil {
			return nil, err
		}
		idMaps = append(idMaps, idMap)
	}
	return NewBrackets(func(wb *WhereBuilder) {
		for _, idMap := range idMaps {
			wb.OrWhere(NewBrackets(func(inner *WhereBuilder) {
				inner.Where(idMap)
			}))
		}
	}), nil
}

// ============================================================================
// Shared clauses
// ============================================================================

// Comment prefixes the statement with /* comment */.
func (qb *QueryBuilder) Comment(comment string) *QueryBuilder {
	qb.expr.Comment = comment
	return qb
}

// AddCommonTableExpression registers a WITH entry. query is a Builder or
// literal SQL.
func (qb *QueryBuilder) AddCommonTableExpression(query any, alias string, opts ...CTEOptions) *QueryBuilder {
	cte := &CommonTableExpression{Alias: alias}
	if len(opts) > 0 {
		cte.Options = opts[0]
	}
	switch q := query.(type) {
	case string:
		cte.SQL = q
	case Builder:
		cte.Builder = q
	default:
		qb.fail(fmt.Errorf("common table expression %s: unsupported query %T", alias, query))
		return qb
	}
	qb.expr.CTEs = append(qb.expr.CTEs, cte)
	return qb
}

// setMainTarget resolves target and makes it the main alias.
func (qb *QueryBuilder) setMainTarget(target any, aliasName string) {
	if qb.err != nil {
		return
	}
	alias, err := qb.createFromAlias(target, aliasName)
	if err != nil {
		qb.fail(err)
		return
	}
	qb.expr.SetMainAlias(alias)
}

// createFromAlias registers a FROM alias for target.
func (qb *QueryBuilder) createFromAlias(target any, aliasName string) (*Alias, error) {
	return qb.createAliasFor(AliasFrom, target, aliasName)
}

// createAliasFor registers an alias for target: a select builder or a
// callback receiving a sub-query builder, an entity known to the metadata
// provider, a parenthesized SQL string, or a table name.
func (qb *QueryBuilder) createAliasFor(aliasType AliasType, target any, aliasName string) (*Alias, error) {
	opts := AliasOptions{Type: aliasType, Name: aliasName}

	switch t := target.(type) {
	case *SelectQueryBuilder:
		sub, err := qb.renderSubQuery(t.QueryBuilder)
		if err != nil {
			return nil, err
		}
		opts.SubQuery = sub
		return qb.expr.CreateAlias(opts)
	case func(*SelectQueryBuilder) *SelectQueryBuilder:
		sub, err := qb.renderSubQuery(t(qb.SubQuery()).QueryBuilder)
		if err != nil {
			return nil, err
		}
		opts.SubQuery = sub
		return qb.expr.CreateAlias(opts)
	case *metadata.EntityMetadata:
		opts.Metadata = t
		return qb.expr.CreateAlias(opts)
	}

	if p := qb.db.metadata; p != nil && p.HasMetadata(target) {
		m, err := p.GetMetadata(target)
		if err != nil {
			return nil, err
		}
		opts.Metadata = m
		return qb.expr.CreateAlias(opts)
	}

	name, ok := target.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %T", metadata.ErrEntityNotFound, target)
	}
	if strings.HasPrefix(name, "(") {
		opts.SubQuery = name
	} else {
		opts.TablePath = name
	}
	return qb.expr.CreateAlias(opts)
}

// renderSubQuery renders sub in parentheses and adopts its parameters.
func (qb *QueryBuilder) renderSubQuery(sub *QueryBuilder) (string, error) {
	rc := sub.newRenderContext(false)
	sql, err := rc.statement(sub, false)
	if err != nil {
		return "", err
	}
	for _, key := range sortedKeys(rc.params) {
		if err := qb.setParameter(key, rc.params[key]); err != nil {
			return "", err
		}
	}
	for key, value := range rc.native {
		qb.expr.NativeParameters[key] = value
	}
	return "(" + sql + ")", nil
}

// ============================================================================
// Output
// ============================================================================

// GetQuery renders the statement with :name parameter references.
func (qb *QueryBuilder) GetQuery() (string, error) {
	return qb.newRenderContext(false).statement(qb, true)
}

// GetQueryAndParameters renders the statement in the dialect's placeholder
// syntax and returns the positional values.
func (qb *QueryBuilder) GetQueryAndParameters() (string, []any, error) {
	return qb.render(false)
}

// GetSQL renders the statement in the dialect's placeholder syntax.
func (qb *QueryBuilder) GetSQL() (string, error) {
	sql, _, err := qb.render(false)
	return sql, err
}

func (qb *QueryBuilder) render(hydrate bool) (string, []any, error) {
	rc := qb.newRenderContext(hydrate)
	sql, err := rc.statement(qb, true)
	if err != nil {
		return "", nil, err
	}
	sql, args := dialects.EscapeQueryWithParameters(qb.db.dialect, sql, rc.params, rc.native)
	return sql, args, nil
}

// Execute renders and runs the statement. It uses the builder's runner when
// one was supplied and otherwise acquires a runner that is released before
// returning, whether the statement succeeded or not.
func (qb *QueryBuilder) Execute(ctx context.Context) (*runner.Result, error) {
	if qb.expr.QueryType == QueryTypeRelation {
		return nil, fmt.Errorf("%w: use Set, Add, Remove or AddAndRemove", ErrRelationOperation)
	}
	sql, args, err := qb.render(qb.expr.UpdateEntity)
	if err != nil {
		return nil, err
	}
	return qb.executeRaw(ctx, sql, args)
}

func (qb *QueryBuilder) executeRaw(ctx context.Context, sql string, args []any) (res *runner.Result, err error) {
	r := qb.runner
	if r == nil {
		owned, createErr := qb.db.CreateQueryRunner()
		if createErr != nil {
			return nil, createErr
		}
		defer func() {
			if releaseErr := owned.Release(); releaseErr != nil {
				qb.db.logger.Warn("query runner release failed", "error", releaseErr)
				if err == nil {
					err = releaseErr
				}
			}
		}()
		r = owned
	}
	return qb.db.run(ctx, r, qb.execInfo(), sql, args)
}
