// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"strings"

	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/metadata"
)

// UpdateQueryBuilder builds UPDATE statements.
type UpdateQueryBuilder struct {
	*QueryBuilder
}

// Set replaces the values to write. Nested maps address embeddeds and
// relations; a func() string value is written as raw SQL.
//
// Example:
//
//	qb.Update("User").
//	    Set(quarry.Filter{"name": "Ann", "visits": func() string { return "visits + 1" }}).
//	    Where(quarry.Filter{"id": 1})
func (ub *UpdateQueryBuilder) Set(values any) *UpdateQueryBuilder {
	set, err := valueSet(values)
	if err != nil {
		ub.fail(err)
		return ub
	}
	ub.expr.ValuesSet = []map[string]any{set}
	return ub
}

// Returning adds a returning clause.
func (ub *UpdateQueryBuilder) Returning(columns ...string) *UpdateQueryBuilder {
	ub.expr.Returning = columns
	return ub
}

// UpdateEntity controls whether Execute returns the refreshed columns.
func (ub *UpdateQueryBuilder) UpdateEntity(enabled bool) *UpdateQueryBuilder {
	ub.expr.UpdateEntity = enabled
	return ub
}

// Where replaces every where condition.
func (ub *UpdateQueryBuilder) Where(where any, params ...Params) *UpdateQueryBuilder {
	ub.QueryBuilder.Where(where, params...)
	return ub
}

// AndWhere adds a condition joined with AND.
func (ub *UpdateQueryBuilder) AndWhere(where any, params ...Params) *UpdateQueryBuilder {
	ub.QueryBuilder.AndWhere(where, params...)
	return ub
}

// OrWhere adds a condition joined with OR.
func (ub *UpdateQueryBuilder) OrWhere(where any, params ...Params) *UpdateQueryBuilder {
	ub.QueryBuilder.OrWhere(where, params...)
	return ub
}

// WhereInIds replaces every where condition with a primary key match.
func (ub *UpdateQueryBuilder) WhereInIds(ids ...any) *UpdateQueryBuilder {
	ub.QueryBuilder.WhereInIds(ids...)
	return ub
}

// AndWhereInIds adds a primary key match joined with AND.
func (ub *UpdateQueryBuilder) AndWhereInIds(ids ...any) *UpdateQueryBuilder {
	ub.QueryBuilder.AndWhereInIds(ids...)
	return ub
}

// OrWhereInIds adds a primary key match joined with OR.
func (ub *UpdateQueryBuilder) OrWhereInIds(ids ...any) *UpdateQueryBuilder {
	ub.QueryBuilder.OrWhereInIds(ids...)
	return ub
}

// SetParameter binds a named parameter.
func (ub *UpdateQueryBuilder) SetParameter(key string, value any) *UpdateQueryBuilder {
	ub.QueryBuilder.SetParameter(key, value)
	return ub
}

// SetParameters binds several named parameters.
func (ub *UpdateQueryBuilder) SetParameters(params Params) *UpdateQueryBuilder {
	ub.QueryBuilder.SetParameters(params)
	return ub
}

// Comment prefixes the statement with a comment.
func (ub *UpdateQueryBuilder) Comment(comment string) *UpdateQueryBuilder {
	ub.QueryBuilder.Comment(comment)
	return ub
}

// AddCommonTableExpression registers a WITH entry.
func (ub *UpdateQueryBuilder) AddCommonTableExpression(query any, alias string, opts ...CTEOptions) *UpdateQueryBuilder {
	ub.QueryBuilder.AddCommonTableExpression(query, alias, opts...)
	return ub
}

// Clone returns an independent copy.
func (ub *UpdateQueryBuilder) Clone() *UpdateQueryBuilder {
	return &UpdateQueryBuilder{QueryBuilder: ub.cloneAs()}
}

// updateHydrationColumns are refreshed from the database after an update.
func updateHydrationColumns(b *QueryBuilder) []*metadata.ColumnMetadata {
	main := b.expr.MainAlias
	if main == nil || !main.HasMetadata() {
		return nil
	}
	var cols []*metadata.ColumnMetadata
	for _, c := range []*metadata.ColumnMetadata{main.Metadata.UpdateDateColumn, main.Metadata.VersionColumn} {
		if c != nil {
			cols = append(cols, c)
		}
	}
	return cols
}

// updatePaths expands an update set into property paths the same way where
// filters are expanded, without rejecting relations.
func updatePaths(m *metadata.EntityMetadata, set map[string]any, prefix string) []string {
	var paths []string
	for _, key := range sortedKeys(set) {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		nested, isMap := metadata.AsMap(set[key])
		if isMap && m.HasEmbeddedWithPropertyPath(path) {
			paths = append(paths, updatePaths(m, nested, path)...)
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// setExpression renders the SET list of an update.
func (rc *renderContext) setExpression(b *QueryBuilder) (string, error) {
	e := b.expr
	if len(e.ValuesSet) == 0 || len(e.ValuesSet[0]) == 0 {
		return "", ErrUpdateValuesMissing
	}
	set := e.ValuesSet[0]
	main := e.MainAlias
	nullLiteral := rc.dialect.Type() == dialects.Spanner || rc.dialect.Type() == dialects.SAP

	var assignments []string
	assign := func(column string, value any) error {
		switch {
		case value == nil && nullLiteral:
			column += " = NULL"
		default:
			if raw, ok := rawValue(value); ok {
				column += " = " + raw
				break
			}
			p, err := rc.createParameter(value)
			if err != nil {
				return err
			}
			column += " = " + p
		}
		assignments = append(assignments, column)
		return nil
	}

	if !main.HasMetadata() {
		for _, key := range sortedKeys(set) {
			if err := assign(rc.escape(key), set[key]); err != nil {
				return "", err
			}
		}
		return strings.Join(assignments, ", "), nil
	}

	m := main.Metadata
	var written []*metadata.ColumnMetadata
	for _, path := range updatePaths(m, set, "") {
		columns := m.FindColumnsWithPropertyPath(path)
		if len(columns) == 0 {
			return "", &PropertyNotFoundError{Path: path, Entity: m.Name}
		}
		for _, c := range columns {
			if containsColumn(written, c) {
				continue
			}
			value, _ := m.ValueOf(c, set)
			if err := assign(rc.escape(c.DatabaseName), value); err != nil {
				return "", err
			}
			written = append(written, c)
		}
	}
	if c := m.VersionColumn; c != nil && !containsColumn(written, c) {
		assignments = append(assignments, rc.escape(c.DatabaseName)+" = "+rc.escape(c.DatabaseName)+" + 1")
	}
	if c := m.UpdateDateColumn; c != nil && !containsColumn(written, c) {
		assignments = append(assignments, rc.escape(c.DatabaseName)+" = CURRENT_TIMESTAMP")
	}
	return strings.Join(assignments, ", "), nil
}

func containsColumn(list []*metadata.ColumnMetadata, c *metadata.ColumnMetadata) bool {
	for _, existing := range list {
		if existing == c || existing.DatabaseName == c.DatabaseName {
			return true
		}
	}
	return false
}

func (rc *renderContext) updateStatement(b *QueryBuilder) (string, error) {
	if b.expr.MainAlias == nil {
		return "", ErrMissingMainAlias
	}
	set, err := rc.setExpression(b)
	if err != nil {
		return "", err
	}
	return rc.writeUpdate(b, set, dialects.ReturningUpdate, updateHydrationColumns(b))
}

// writeUpdate assembles an UPDATE around a rendered SET list.
func (rc *renderContext) writeUpdate(b *QueryBuilder, set string, kind dialects.ReturningKind, extra []*metadata.ColumnMetadata) (string, error) {
	var sb strings.Builder
	sb.WriteString(rc.comment(b))
	cte, err := rc.cteExpression(b)
	if err != nil {
		return "", err
	}
	sb.WriteString(cte)

	table, err := rc.mainTableName(b)
	if err != nil {
		return "", err
	}
	where, err := rc.whereExpression(b)
	if err != nil {
		return "", err
	}
	returning, err := rc.returningExpression(b, kind, extra)
	if err != nil {
		return "", err
	}

	sb.WriteString("UPDATE " + table + " SET " + set)
	output := rc.dialect.Features().Returning == dialects.ReturningOutput
	if returning != "" && output {
		sb.WriteString(" OUTPUT " + returning)
	}
	sb.WriteString(where)
	if !output {
		rc.appendReturning(&sb, returning)
	}
	if returning != "" && output && hasTriggers(b) {
		return rc.outputTableDeclaration(b, sb.String(), extra), nil
	}
	return sb.String(), nil
}

// ============================================================================
// Soft delete and restore
// ============================================================================

// SoftDeleteQueryBuilder marks rows deleted, or restores them, through the
// entity's delete date column.
type SoftDeleteQueryBuilder struct {
	*QueryBuilder
}

// From sets the target entity.
func (sb *SoftDeleteQueryBuilder) From(target any) *SoftDeleteQueryBuilder {
	sb.setMainTarget(target, "")
	return sb
}

// Where replaces every where condition.
func (sb *SoftDeleteQueryBuilder) Where(where any, params ...Params) *SoftDeleteQueryBuilder {
	sb.QueryBuilder.Where(where, params...)
	return sb
}

// AndWhere adds a condition joined with AND.
func (sb *SoftDeleteQueryBuilder) AndWhere(where any, params ...Params) *SoftDeleteQueryBuilder {
	sb.QueryBuilder.AndWhere(where, params...)
	return sb
}

// OrWhere adds a condition joined with OR.
func (sb *SoftDeleteQueryBuilder) OrWhere(where any, params ...Params) *SoftDeleteQueryBuilder {
	sb.QueryBuilder.OrWhere(where, params...)
	return sb
}

// WhereInIds replaces every where condition with a primary key match.
func (sb *SoftDeleteQueryBuilder) WhereInIds(ids ...any) *SoftDeleteQueryBuilder {
	sb.QueryBuilder.WhereInIds(ids...)
	return sb
}

// Returning adds a returning clause.
func (sb *SoftDeleteQueryBuilder) Returning(columns ...string) *SoftDeleteQueryBuilder {
	sb.expr.Returning = columns
	return sb
}

// Clone returns an independent copy.
func (sb *SoftDeleteQueryBuilder) Clone() *SoftDeleteQueryBuilder {
	return &SoftDeleteQueryBuilder{QueryBuilder: sb.cloneAs()}
}

func (rc *renderContext) softDeleteStatement(b *QueryBuilder) (string, error) {
	main := b.expr.MainAlias
	if main == nil {
		return "", ErrMissingMainAlias
	}
	if !main.HasMetadata() || main.Metadata.DeleteDateColumn == nil {
		name := main.Name
		if main.HasMetadata() {
			name = main.Metadata.Name
		}
		return "", fmt.Errorf("%w: %s", ErrMissingDeleteDateColumn, name)
	}
	m := main.Metadata

	value := "CURRENT_TIMESTAMP"
	if b.expr.QueryType == QueryTypeRestore {
		value = "NULL"
	}
	assignments := []string{rc.escape(m.DeleteDateColumn.DatabaseName) + " = " + value}
	if c := m.VersionColumn; c != nil {
		assignments = append(assignments, rc.escape(c.DatabaseName)+" = "+rc.escape(c.DatabaseName)+" + 1")
	}
	if c := m.UpdateDateColumn; c != nil {
		assignments = append(assignments, rc.escape(c.DatabaseName)+" = CURRENT_TIMESTAMP")
	}
	return rc.writeUpdate(b, strings.Join(assignments, ", "), dialects.ReturningUpdate, updateHydrationColumns(b))
}

// ============================================================================
// Delete
// ============================================================================

// DeleteQueryBuilder builds DELETE statements.
type DeleteQueryBuilder struct {
	*QueryBuilder
}

// From sets the target entity or table.
func (dq *DeleteQueryBuilder) From(target any) *DeleteQueryBuilder {
	dq.setMainTarget(target, "")
	return dq
}

// Where replaces every where condition.
func (dq *DeleteQueryBuilder) Where(where any, params ...Params) *DeleteQueryBuilder {
	dq.QueryBuilder.Where(where, params...)
	return dq
}

// AndWhere adds a condition joined with AND.
func (dq *DeleteQueryBuilder) AndWhere(where any, params ...Params) *DeleteQueryBuilder {
	dq.QueryBuilder.AndWhere(where, params...)
	return dq
}

// OrWhere adds a condition joined with OR.
func (dq *DeleteQueryBuilder) OrWhere(where any, params ...Params) *DeleteQueryBuilder {
	dq.QueryBuilder.OrWhere(where, params...)
	return dq
}

// WhereInIds replaces every where condition with a primary key match.
func (dq *DeleteQueryBuilder) WhereInIds(ids ...any) *DeleteQueryBuilder {
	dq.QueryBuilder.WhereInIds(ids...)
	return dq
}

// SetParameter binds a named parameter.
func (dq *DeleteQueryBuilder) SetParameter(key string, value any) *DeleteQueryBuilder {
	dq.QueryBuilder.SetParameter(key, value)
	return dq
}

// Returning adds a returning clause.
func (dq *DeleteQueryBuilder) Returning(columns ...string) *DeleteQueryBuilder {
	dq.expr.Returning = columns
	return dq
}

// Comment prefixes the statement with a comment.
func (dq *DeleteQueryBuilder) Comment(comment string) *DeleteQueryBuilder {
	dq.QueryBuilder.Comment(comment)
	return dq
}

// Clone returns an independent copy.
func (dq *DeleteQueryBuilder) Clone() *DeleteQueryBuilder {
	return &DeleteQueryBuilder{QueryBuilder: dq.cloneAs()}
}

func (rc *renderContext) deleteStatement(b *QueryBuilder) (string, error) {
	table, err := rc.mainTableName(b)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(rc.comment(b))
	cte, err := rc.cteExpression(b)
	if err != nil {
		return "", err
	}
	sb.WriteString(cte)

	where, err := rc.whereExpression(b)
	if err != nil {
		return "", err
	}
	returning, err := rc.returningExpression(b, dialects.ReturningDelete, nil)
	if err != nil {
		return "", err
	}

	sb.WriteString("DELETE FROM " + table)
	output := rc.dialect.Features().Returning == dialects.ReturningOutput
	if returning != "" && output {
		sb.WriteString(" OUTPUT " + returning)
	}
	sb.WriteString(where)
	if !output {
		rc.appendReturning(&sb, returning)
	}
	return sb.String(), nil
}
