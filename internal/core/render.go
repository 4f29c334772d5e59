// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/metadata"
)

// renderContext carries the state of one rendering pass. Builders are never
// mutated while rendering; parameters minted for insert values and update
// sets live in the context.
type renderContext struct {
	root       *QueryBuilder
	dialect    dialects.Dialect
	params     Params
	native     Params
	paramIndex int
	// hydrate adds the generated columns needed to refresh entities to
	// returning clauses.
	hydrate bool
}

func (qb *QueryBuilder) newRenderContext(hydrate bool) *renderContext {
	return &renderContext{
		root:       qb,
		dialect:    qb.db.dialect,
		params:     qb.buildParameters(),
		native:     cloneParams(qb.expr.NativeParameters),
		paramIndex: qb.paramIndex,
		hydrate:    hydrate,
	}
}

// statement renders b. When wrap is set, sub-query builders are wrapped in
// parentheses.
func (rc *renderContext) statement(b *QueryBuilder, wrap bool) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	var (
		sql string
		err error
	)
	switch b.expr.QueryType {
	case QueryTypeSelect:
		sql, err = rc.selectStatement(b)
	case QueryTypeInsert:
		sql, err = rc.insertStatement(b)
	case QueryTypeUpdate:
		sql, err = rc.updateStatement(b)
	case QueryTypeDelete:
		sql, err = rc.deleteStatement(b)
	case QueryTypeSoftDelete, QueryTypeRestore:
		sql, err = rc.softDeleteStatement(b)
	case QueryTypeRelation:
		return "", fmt.Errorf("%w: relation builders render through Set, Add and Remove", ErrRelationOperation)
	default:
		return "", fmt.Errorf("query type is not set; call Select, Insert, Update, Delete, SoftDelete or Restore")
	}
	if err != nil {
		return "", err
	}
	if wrap && b.expr.SubQuery {
		sql = "(" + sql + ")"
	}
	return strings.TrimSpace(sql), nil
}

func (rc *renderContext) escape(name string) string {
	return rc.dialect.QuoteIdentifier(name)
}

func (rc *renderContext) tableName(path string) string {
	return dialects.Escape(rc.dialect, path)
}

// hasParameter checks the rendered parameters and the root's ancestors.
func (rc *renderContext) hasParameter(key string) bool {
	if _, ok := rc.params[key]; ok {
		return true
	}
	return rc.root.parent != nil && rc.root.parent.HasParameter(key)
}

// createParameter mints a parameter that exists only in this rendering.
func (rc *renderContext) createParameter(value any) (string, error) {
	var name string
	for {
		name = parameterPrefix + strconv.Itoa(rc.paramIndex)
		rc.paramIndex++
		if !rc.hasParameter(name) {
			break
		}
	}
	if err := validateParameter(name, value); err != nil {
		return "", err
	}
	rc.params[name] = value
	return ":" + name, nil
}

// mergeParameters adds a nested builder's parameters; one name bound to
// two different values is an error.
func (rc *renderContext) mergeParameters(params Params) error {
	for _, key := range sortedKeys(params) {
		value := params[key]
		if existing, ok := rc.params[key]; ok && !sameValue(existing, value) {
			return fmt.Errorf("%w: %s", ErrParameterConflict, key)
		}
		rc.params[key] = value
	}
	return nil
}

func sameValue(a, b any) bool {
	defer func() { _ = recover() }()
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}

// comment renders a leading /* comment */.
func (rc *renderContext) comment(b *QueryBuilder) string {
	if b.expr.Comment == "" {
		return ""
	}
	return "/* " + strings.ReplaceAll(b.expr.Comment, "*/", "") + " */ "
}

// whereExpression renders the WHERE clause including the soft-delete and
// discriminator filters and the time travel clause that precedes WHERE.
func (rc *renderContext) whereExpression(b *QueryBuilder) (string, error) {
	e := b.expr
	var conditions []string

	where, err := rc.clauses(b, e.Wheres)
	if err != nil {
		return "", err
	}
	if where != "" && where != "1=1" {
		conditions = append(conditions, where)
	}

	if main := e.MainAlias; main != nil && main.HasMetadata() {
		m := main.Metadata
		if e.QueryType == QueryTypeSelect && !e.WithDeleted && m.DeleteDateColumn != nil {
			conditions = append(conditions, b.columnPath(main, m.DeleteDateColumn)+" IS NULL")
		}
		if m.DiscriminatorColumn != nil && m.Parent != nil {
			conditions = append(conditions, b.columnPath(main, m.DiscriminatorColumn)+" IN (:..."+discriminatorParameter+")")
		}
	}

	var sb strings.Builder
	if e.QueryType == QueryTypeSelect && e.TimeTravel != "" && rc.dialect.Features().TimeTravel {
		sb.WriteString(" AS OF SYSTEM TIME " + e.TimeTravel)
	}
	switch len(conditions) {
	case 0:
	case 1:
		sb.WriteString(" WHERE " + conditions[0])
	default:
		sb.WriteString(" WHERE ( " + strings.Join(conditions, " ) AND ( ") + " )")
	}
	return sb.String(), nil
}

// clauses renders a where list, prefixing every clause after the first
// with its AND/OR joiner.
func (rc *renderContext) clauses(b *QueryBuilder, list []*WhereClause) (string, error) {
	parts := make([]string, 0, len(list))
	for i, clause := range list {
		expr, err := rc.condition(b, clause.Condition, false)
		if err != nil {
			return "", err
		}
		if i > 0 {
			switch clause.Type {
			case WhereOr:
				expr = "OR " + expr
			default:
				expr = "AND " + expr
			}
		}
		parts = append(parts, expr)
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// condition renders one condition. Lists of one clause are unwrapped
// unless alwaysWrap is set.
func (rc *renderContext) condition(b *QueryBuilder, c Condition, alwaysWrap bool) (string, error) {
	switch cond := c.(type) {
	case RawCondition:
		if b == nil {
			return string(cond), nil
		}
		return rc.replacePropertyNames(b, string(cond)), nil
	case ClauseList:
		if len(cond) == 0 {
			return "1=1", nil
		}
		inner, err := rc.clauses(b, cond)
		if err != nil {
			return "", err
		}
		if len(cond) == 1 && !alwaysWrap {
			return inner, nil
		}
		return "(" + inner + ")", nil
	case OperatorCondition:
		return rc.operator(cond)
	case NestedCondition:
		switch cond.Operator {
		case OpNot:
			inner, err := rc.condition(b, cond.Condition, false)
			if err != nil {
				return "", err
			}
			return "NOT(" + inner + ")", nil
		case OpBrackets:
			return rc.condition(b, cond.Condition, true)
		}
		return "", fmt.Errorf("%w: %s", ErrUnknownOperator, cond.Operator)
	}
	return "", fmt.Errorf("%w: condition %T", ErrUnknownOperator, c)
}

var comparisons = map[Operator]string{
	OpEqual:            "=",
	OpNotEqual:         "!=",
	OpLessThan:         "<",
	OpLessThanOrEqual:  "<=",
	OpMoreThan:         ">",
	OpMoreThanOrEqual:  ">=",
	OpArrayContains:    "@>",
	OpArrayContainedBy: "<@",
	OpArrayOverlap:     "&&",
	OpJSONContains:     "::jsonb @>",
}

// operator renders an operator condition.
func (rc *renderContext) operator(c OperatorCondition) (string, error) {
	p := c.Parameters
	arg := func(i int) string {
		if i < len(p) {
			return p[i]
		}
		return ""
	}

	switch c.Operator {
	case OpEqual, OpNotEqual, OpLessThan, OpLessThanOrEqual, OpMoreThan, OpMoreThanOrEqual,
		OpArrayContains, OpArrayContainedBy, OpArrayOverlap:
		return arg(0) + " " + comparisons[c.Operator] + " " + arg(1), nil
	case OpJSONContains:
		return arg(0) + " " + comparisons[c.Operator] + " " + arg(1), nil
	case OpLike:
		return arg(0) + " LIKE " + arg(1), nil
	case OpILike:
		if rc.dialect.Features().NativeILike {
			return arg(0) + " ILIKE " + arg(1), nil
		}
		return "UPPER(" + arg(0) + ") LIKE UPPER(" + arg(1) + ")", nil
	case OpBetween:
		return arg(0) + " BETWEEN " + arg(1) + " AND " + arg(2), nil
	case OpIn:
		if len(p) <= 1 {
			return "0=1", nil
		}
		return arg(0) + " IN (" + strings.Join(p[1:], ", ") + ")", nil
	case OpAny:
		if rc.dialect.Features().AnyCast {
			return arg(0) + "::STRING = ANY(" + arg(1) + "::STRING[])", nil
		}
		return arg(0) + " = ANY(" + arg(1) + ")", nil
	case OpIsNull:
		return arg(0) + " IS NULL", nil
	case OpAnd:
		return "(" + strings.Join(p, " AND ") + ")", nil
	case OpOr:
		return "(" + strings.Join(p, " OR ") + ")", nil
	case OpRaw:
		return arg(0), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownOperator, c.Operator)
}

// conditionSQL renders a compiled operator condition outside a statement.
func conditionSQL(d dialects.Dialect, c Condition) (string, error) {
	rc := &renderContext{dialect: d}
	return rc.condition(nil, c, false)
}

// cteExpression renders the WITH prefix.
func (rc *renderContext) cteExpression(b *QueryBuilder) (string, error) {
	e := b.expr
	if len(e.CTEs) == 0 {
		return "", nil
	}
	caps := rc.dialect.Features().CTE
	if !caps.Enabled {
		return "", ErrCTEUnsupported
	}

	recursive := false
	parts := make([]string, 0, len(e.CTEs))
	for _, cte := range e.CTEs {
		body := cte.SQL
		if cte.Builder != nil {
			child := cte.Builder.base()
			if len(child.expr.CTEs) > 0 {
				return "", &CTEError{Alias: cte.Alias, Err: ErrNestedCTE}
			}
			if child.expr.QueryType != QueryTypeSelect && !caps.Writable {
				return "", &CTEError{Alias: cte.Alias, Err: ErrReadOnlyCTE}
			}
			if err := rc.mergeParameters(child.buildParameters()); err != nil {
				return "", &CTEError{Alias: cte.Alias, Err: err}
			}
			sql, err := rc.statement(child, false)
			if err != nil {
				return "", err
			}
			body = sql
		}

		header := rc.escape(cte.Alias)
		if len(cte.Options.ColumnNames) > 0 {
			if cte.Builder != nil {
				child := cte.Builder.base().expr
				if child.QueryType == QueryTypeSelect && len(child.Selects) > 0 && len(child.Selects) != len(cte.Options.ColumnNames) {
					return "", &CTEError{Alias: cte.Alias, Err: ErrCTEColumnCount}
				}
			}
			cols := make([]string, len(cte.Options.ColumnNames))
			for i, c := range cte.Options.ColumnNames {
				cols[i] = rc.escape(c)
			}
			header += "(" + strings.Join(cols, ", ") + ")"
		}

		materialized := ""
		if cte.Options.Materialized != nil && caps.MaterializedHint {
			if *cte.Options.Materialized {
				materialized = "MATERIALIZED "
			} else {
				materialized = "NOT MATERIALIZED "
			}
		}
		recursive = recursive || cte.Options.Recursive
		parts = append(parts, header+" AS "+materialized+"("+body+")")
	}

	prefix := "WITH "
	if recursive && caps.RequiresRecursiveHint {
		prefix += "RECURSIVE "
	}
	return prefix + strings.Join(parts, ", ") + " ", nil
}

// returningColumns resolves the requested returning entries. Entries that
// name a property become columns; anything else is kept as raw SQL.
func (rc *renderContext) returningColumns(b *QueryBuilder, extra []*metadata.ColumnMetadata) ([]*metadata.ColumnMetadata, []string) {
	var (
		columns []*metadata.ColumnMetadata
		raw     []string
	)
	main := b.expr.MainAlias
	for _, name := range b.expr.Returning {
		if main != nil && main.HasMetadata() {
			if cols := main.Metadata.FindColumnsWithPropertyPath(name); len(cols) > 0 {
				columns = appendColumns(columns, cols...)
				continue
			}
			if col := main.Metadata.FindColumnWithDatabaseName(name); col != nil {
				columns = appendColumns(columns, col)
				continue
			}
		}
		raw = append(raw, name)
	}
	if rc.hydrate && len(raw) == 0 {
		columns = appendColumns(columns, extra...)
	}
	return columns, raw
}

func appendColumns(list []*metadata.ColumnMetadata, cols ...*metadata.ColumnMetadata) []*metadata.ColumnMetadata {
	for _, c := range cols {
		found := false
		for _, existing := range list {
			if existing == c || existing.DatabaseName == c.DatabaseName {
				found = true
				break
			}
		}
		if !found {
			list = append(list, c)
		}
	}
	return list
}

// returningExpression renders the column list of a RETURNING, OUTPUT or
// THEN RETURN clause, "" when nothing is returned.
func (rc *renderContext) returningExpression(b *QueryBuilder, kind dialects.ReturningKind, extra []*metadata.ColumnMetadata) (string, error) {
	if len(b.expr.Returning) > 0 && !dialects.IsReturningSupported(rc.dialect, kind) {
		return "", fmt.Errorf("%w by %s for this statement", ErrReturningUnsupported, rc.dialect.Type())
	}
	if !dialects.IsReturningSupported(rc.dialect, kind) {
		return "", nil
	}

	columns, raw := rc.returningColumns(b, extra)
	if len(columns)+len(raw) == 0 {
		return "", nil
	}

	style := rc.dialect.Features().Returning
	names := make([]string, len(columns))
	for i, c := range columns {
		name := rc.escape(c.DatabaseName)
		if style == dialects.ReturningOutput {
			if kind == dialects.ReturningDelete {
				name = "DELETED." + name
			} else {
				name = "INSERTED." + name
			}
		}
		names[i] = name
	}
	entries := append(names, raw...)
	expr := strings.Join(entries, ", ")

	switch style {
	case dialects.ReturningInto:
		// one bind target per returned expression, raw ones included
		outs := make([]string, len(entries))
		for i := range entries {
			p, err := rc.createParameter(outParameter())
			if err != nil {
				return "", err
			}
			outs[i] = p
		}
		expr += " INTO " + strings.Join(outs, ", ")
	case dialects.ReturningOutput:
		if kind != dialects.ReturningDelete && hasTriggers(b) {
			expr += " INTO @OutputTable"
		}
	}
	return expr, nil
}

// outParameter is the bind target of an Oracle RETURNING ... INTO column.
func outParameter() sql.Out {
	return sql.Out{Dest: new(any)}
}

func hasTriggers(b *QueryBuilder) bool {
	main := b.expr.MainAlias
	return main != nil && main.HasMetadata() && main.Metadata.HasTriggers
}

// outputTableDeclaration wraps an OUTPUT ... INTO @OutputTable statement
// for tables with triggers.
func (rc *renderContext) outputTableDeclaration(b *QueryBuilder, sql string, extra []*metadata.ColumnMetadata) string {
	columns, _ := rc.returningColumns(b, extra)
	defs := make([]string, len(columns))
	for i, c := range columns {
		typ := c.Type
		if typ == "" {
			typ = "nvarchar(255)"
		}
		defs[i] = rc.escape(c.DatabaseName) + " " + typ
	}
	return "DECLARE @OutputTable TABLE (" + strings.Join(defs, ", ") + "); " + sql + "; SELECT * FROM @OutputTable"
}

// mainTableName returns the escaped table of the main alias.
func (rc *renderContext) mainTableName(b *QueryBuilder) (string, error) {
	main := b.expr.MainAlias
	if main == nil {
		return "", ErrMissingMainAlias
	}
	if main.SubQuery != "" {
		return main.SubQuery, nil
	}
	return rc.tableName(main.Table()), nil
}
