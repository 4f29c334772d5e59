// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/metadata"
)

// InsertQueryBuilder builds INSERT statements.
type InsertQueryBuilder struct {
	*QueryBuilder
}

// Into sets the target entity or table. When columns are given only those
// properties are inserted.
func (ib *InsertQueryBuilder) Into(target any, columns ...string) *InsertQueryBuilder {
	ib.setMainTarget(target, "")
	ib.expr.InsertColumns = columns
	return ib
}

// Values sets the rows to insert: a property map, a slice of maps, a tagged
// struct or a slice of structs.
//
// A func() string value is inserted as raw SQL:
//
//	ib.Values(quarry.Filter{"name": "Ann", "createdAt": func() string { return "NOW()" }})
func (ib *InsertQueryBuilder) Values(values any) *InsertQueryBuilder {
	sets, err := valueSets(values)
	if err != nil {
		ib.fail(err)
		return ib
	}
	ib.expr.ValuesSet = sets
	return ib
}

// OrIgnore skips rows that conflict with an existing row.
func (ib *InsertQueryBuilder) OrIgnore() *InsertQueryBuilder {
	ib.expr.OnConflict = &OnConflict{Ignore: true}
	return ib
}

// OrUpdate overwrites the given properties when a row conflicts on
// conflictTarget, which defaults to the primary key.
func (ib *InsertQueryBuilder) OrUpdate(overwrite []string, conflictTarget ...string) *InsertQueryBuilder {
	ib.expr.OnConflict = &OnConflict{Overwrite: overwrite, ConflictTarget: conflictTarget}
	return ib
}

// Returning adds a returning clause with the given properties, columns or
// raw expressions.
func (ib *InsertQueryBuilder) Returning(columns ...string) *InsertQueryBuilder {
	ib.expr.Returning = columns
	return ib
}

// UpdateEntity controls whether Execute returns generated columns.
func (ib *InsertQueryBuilder) UpdateEntity(enabled bool) *InsertQueryBuilder {
	ib.expr.UpdateEntity = enabled
	return ib
}

// Comment prefixes the statement with a comment.
func (ib *InsertQueryBuilder) Comment(comment string) *InsertQueryBuilder {
	ib.QueryBuilder.Comment(comment)
	return ib
}

// AddCommonTableExpression registers a WITH entry.
func (ib *InsertQueryBuilder) AddCommonTableExpression(query any, alias string, opts ...CTEOptions) *InsertQueryBuilder {
	ib.QueryBuilder.AddCommonTableExpression(query, alias, opts...)
	return ib
}

// SetParameter binds a named parameter.
func (ib *InsertQueryBuilder) SetParameter(key string, value any) *InsertQueryBuilder {
	ib.QueryBuilder.SetParameter(key, value)
	return ib
}

// Clone returns an independent copy.
func (ib *InsertQueryBuilder) Clone() *InsertQueryBuilder {
	return &InsertQueryBuilder{QueryBuilder: ib.cloneAs()}
}

// valueSets normalizes the accepted Values inputs to property maps.
func valueSets(values any) ([]map[string]any, error) {
	if m, ok := metadata.AsMap(values); ok {
		return []map[string]any{m}, nil
	}
	rv := reflect.ValueOf(values)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() && rv.Elem().Kind() == reflect.Slice {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice {
		sets := make([]map[string]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			set, err := valueSet(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("values[%d]: %w", i, err)
			}
			sets = append(sets, set)
		}
		return sets, nil
	}
	set, err := valueSet(values)
	if err != nil {
		return nil, err
	}
	return []map[string]any{set}, nil
}

func valueSet(v any) (map[string]any, error) {
	if m, ok := metadata.AsMap(v); ok {
		return m, nil
	}
	return metadata.ValuesFromStruct(v)
}

// rawValue reports whether v is a raw SQL producer.
func rawValue(v any) (string, bool) {
	if fn, ok := v.(func() string); ok {
		return fn(), true
	}
	return "", false
}

// insertColumns returns the columns written by an entity insert, one per
// physical column.
func (rc *renderContext) insertColumns(b *QueryBuilder) []*metadata.ColumnMetadata {
	m := b.expr.MainAlias.Metadata
	var out []*metadata.ColumnMetadata
	for _, c := range m.Columns {
		if len(b.expr.InsertColumns) > 0 {
			if !contains(b.expr.InsertColumns, c.PropertyPath()) {
				continue
			}
		} else if c.IsGenerated && !rc.generatesUUID(c) && !anyValue(m, c, b.expr.ValuesSet) {
			continue
		}
		out = appendColumns(out, c)
	}
	return out
}

func anyValue(m *metadata.EntityMetadata, c *metadata.ColumnMetadata, sets []map[string]any) bool {
	for _, set := range sets {
		if _, ok := m.ValueOf(c, set); ok {
			return true
		}
	}
	return false
}

// generatesUUID reports whether the client mints the value of c because the
// dialect has no server-side uuid default.
func (rc *renderContext) generatesUUID(c *metadata.ColumnMetadata) bool {
	if !c.IsGenerated || c.Type != "uuid" {
		return false
	}
	switch rc.dialect.Type() {
	case dialects.Postgres, dialects.CockroachDB, dialects.AuroraPostgres:
		return false
	}
	return true
}

// missingValue renders a column without a value.
func (rc *renderContext) missingValue() string {
	if rc.dialect.Features().DefaultInValues {
		return "DEFAULT"
	}
	return "NULL"
}

// entityValues renders one VALUES tuple for an entity insert.
func (rc *renderContext) entityValues(b *QueryBuilder, columns []*metadata.ColumnMetadata, set map[string]any) (string, error) {
	m := b.expr.MainAlias.Metadata
	parts := make([]string, len(columns))
	for i, c := range columns {
		value, ok := m.ValueOf(c, set)
		switch {
		case c.IsVersion && !ok:
			parts[i] = "1"
		case c.IsDiscriminator:
			p, err := rc.createParameter(m.DiscriminatorValue)
			if err != nil {
				return "", err
			}
			parts[i] = p
		case !ok && rc.generatesUUID(c):
			p, err := rc.createParameter(uuid.NewString())
			if err != nil {
				return "", err
			}
			parts[i] = p
		case !ok:
			parts[i] = rc.missingValue()
		case value == nil && rc.dialect.Type() == dialects.Spanner:
			parts[i] = "NULL"
		default:
			if raw, isRaw := rawValue(value); isRaw {
				parts[i] = raw
				continue
			}
			p, err := rc.createParameter(value)
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// tableValues renders one VALUES tuple for an insert into a bare table.
func (rc *renderContext) tableValues(columns []string, set map[string]any) (string, error) {
	parts := make([]string, len(columns))
	for i, c := range columns {
		value, ok := set[c]
		if !ok {
			parts[i] = rc.missingValue()
			continue
		}
		if raw, isRaw := rawValue(value); isRaw {
			parts[i] = raw
			continue
		}
		p, err := rc.createParameter(value)
		if err != nil {
			return "", err
		}
		parts[i] = p
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// insertHydrationColumns are refreshed from the database after an insert.
func insertHydrationColumns(b *QueryBuilder) []*metadata.ColumnMetadata {
	main := b.expr.MainAlias
	if main == nil || !main.HasMetadata() {
		return nil
	}
	m := main.Metadata
	var cols []*metadata.ColumnMetadata
	for _, c := range m.Columns {
		if c.IsPrimary || c.IsGenerated {
			cols = append(cols, c)
		}
	}
	for _, c := range []*metadata.ColumnMetadata{m.CreateDateColumn, m.UpdateDateColumn, m.VersionColumn} {
		if c != nil {
			cols = append(cols, c)
		}
	}
	return cols
}

func (rc *renderContext) insertStatement(b *QueryBuilder) (string, error) {
	e := b.expr
	main := e.MainAlias
	if main == nil {
		return "", ErrMissingMainAlias
	}
	f := rc.dialect.Features()
	kind := rc.dialect.Type()
	table := rc.tableName(main.Table())

	var (
		columnNames []string
		tuples      []string
	)
	if main.HasMetadata() {
		columns := rc.insertColumns(b)
		for _, c := range columns {
			columnNames = append(columnNames, rc.escape(c.DatabaseName))
		}
		for _, set := range e.ValuesSet {
			t, err := rc.entityValues(b, columns, set)
			if err != nil {
				return "", err
			}
			tuples = append(tuples, t)
		}
	} else {
		keys := e.InsertColumns
		if len(keys) == 0 {
			seen := map[string]any{}
			for _, set := range e.ValuesSet {
				for k := range set {
					seen[k] = true
				}
			}
			keys = sortedKeys(seen)
		}
		for _, k := range keys {
			columnNames = append(columnNames, rc.escape(k))
		}
		for _, set := range e.ValuesSet {
			t, err := rc.tableValues(keys, set)
			if err != nil {
				return "", err
			}
			tuples = append(tuples, t)
		}
	}
	// A tuple of an insert without columns carries no values.
	if len(columnNames) == 0 {
		tuples = nil
	}

	var sb strings.Builder
	sb.WriteString(rc.comment(b))
	cte, err := rc.cteExpression(b)
	if err != nil {
		return "", err
	}
	sb.WriteString(cte)

	columnList := ""
	if len(columnNames) > 0 {
		columnList = "(" + strings.Join(columnNames, ", ") + ")"
	}

	// Oracle inserts several rows with INSERT ALL and cannot return them.
	if kind == dialects.Oracle && len(tuples) > 1 {
		if len(e.Returning) > 0 {
			return "", fmt.Errorf("%w for multi-row inserts on %s", ErrReturningUnsupported, kind)
		}
		sb.WriteString("INSERT ALL")
		for _, t := range tuples {
			sb.WriteString(" INTO " + table + columnList + " VALUES " + t)
		}
		sb.WriteString(" SELECT 1 FROM DUAL")
		return sb.String(), nil
	}

	returning, err := rc.returningExpression(b, dialects.ReturningInsert, insertHydrationColumns(b))
	if err != nil {
		return "", err
	}

	upsert, ignore, err := rc.upsert(b)
	if err != nil {
		return "", err
	}

	sb.WriteString("INSERT ")
	if ignore {
		sb.WriteString("IGNORE ")
	}
	sb.WriteString("INTO " + table)
	switch {
	case columnList != "":
		sb.WriteString(columnList)
	case len(tuples) == 0 && (kind == dialects.MySQL || kind == dialects.MariaDB || kind == dialects.AuroraMySQL):
		sb.WriteString("()")
	}
	if returning != "" && f.Returning == dialects.ReturningOutput {
		sb.WriteString(" OUTPUT " + returning)
	}
	switch {
	case len(tuples) > 0:
		sb.WriteString(" VALUES " + strings.Join(tuples, ", "))
	case kind == dialects.MySQL || kind == dialects.MariaDB || kind == dialects.AuroraMySQL:
		sb.WriteString(" VALUES ()")
	default:
		sb.WriteString(" DEFAULT VALUES")
	}
	sb.WriteString(upsert)
	rc.appendReturning(&sb, returning)

	if returning != "" && f.Returning == dialects.ReturningOutput && hasTriggers(b) {
		return rc.outputTableDeclaration(b, sb.String(), insertHydrationColumns(b)), nil
	}
	return sb.String(), nil
}

// appendReturning writes a trailing RETURNING or THEN RETURN clause.
func (rc *renderContext) appendReturning(sb *strings.Builder, returning string) {
	if returning == "" {
		return
	}
	switch rc.dialect.Features().Returning {
	case dialects.ReturningClause, dialects.ReturningInto:
		sb.WriteString(" RETURNING " + returning)
	case dialects.ReturningThenReturn:
		sb.WriteString(" THEN RETURN " + returning)
	}
}

// upsert renders the conflict clause. ignore reports that the dialect
// expresses OrIgnore as INSERT IGNORE.
func (rc *renderContext) upsert(b *QueryBuilder) (clause string, ignore bool, err error) {
	oc := b.expr.OnConflict
	if oc == nil {
		return "", false, nil
	}
	f := rc.dialect.Features()
	if oc.Ignore && f.InsertIgnore {
		return "", true, nil
	}
	if !f.Upsert {
		return "", false, fmt.Errorf("%w by %s", ErrUpsertUnsupported, rc.dialect.Type())
	}

	target := rc.upsertColumns(b, oc.ConflictTarget)
	if oc.Ignore {
		return rc.dialect.UpsertSQL(rc.tableName(b.expr.MainAlias.Table()), target, nil), false, nil
	}
	if len(target) == 0 && b.expr.MainAlias.HasMetadata() {
		for _, pk := range b.expr.MainAlias.Metadata.PrimaryColumns {
			target = append(target, rc.escape(pk.DatabaseName))
		}
	}
	overwrite := rc.upsertColumns(b, oc.Overwrite)
	return rc.dialect.UpsertSQL(rc.tableName(b.expr.MainAlias.Table()), target, overwrite), false, nil
}

// upsertColumns resolves property paths to escaped column names.
func (rc *renderContext) upsertColumns(b *QueryBuilder, names []string) []string {
	out := make([]string, 0, len(names))
	main := b.expr.MainAlias
	for _, name := range names {
		column := name
		if main.HasMetadata() {
			if c := main.Metadata.FindColumnWithPropertyPath(name); c != nil {
				column = c.DatabaseName
			}
		}
		out = append(out, rc.escape(column))
	}
	return out
}
