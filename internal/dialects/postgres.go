// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dialects

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/lib/pq"
)

// PostgresDialect implements PostgreSQL-specific SQL dialect. The same
// implementation serves CockroachDB and Aurora PostgreSQL with a different
// type tag and capability set.
type PostgresDialect struct {
	kind Type
}

func init() {
	pg := &PostgresDialect{kind: Postgres}
	RegisterDialect("postgres", pg)
	RegisterDialect("postgresql", pg)
	RegisterDialect("pgx", pg)

	crdb := &PostgresDialect{kind: CockroachDB}
	RegisterDialect("cockroachdb", crdb)
	RegisterDialect("cockroach", crdb)

	RegisterDialect("aurora-postgres", &PostgresDialect{kind: AuroraPostgres})
}

// Type returns the dialect type tag.
func (d *PostgresDialect) Type() Type {
	if d.kind == "" {
		return Postgres
	}
	return d.kind
}

// QuoteIdentifier quotes a PostgreSQL identifier using double quotes.
func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns PostgreSQL placeholder format ($1, $2, etc.).
func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// Features reports PostgreSQL capabilities. CockroachDB adds time travel
// reads and typed ANY comparisons but has no MATERIALIZED hint.
func (d *PostgresDialect) Features() Features {
	f := Features{
		CTE: CTECapabilities{
			Enabled:               true,
			RequiresRecursiveHint: true,
			Writable:              true,
			MaterializedHint:      true,
		},
		Returning:         ReturningClause,
		ReturningKinds:    ReturningInsert | ReturningUpdate | ReturningDelete,
		NativeILike:       true,
		Paging:            PagingLimitOffset,
		MaxAliasLength:    63,
		DefaultInValues:   true,
		Upsert:            true,
		ArrayParameters:   true,
		ReusePlaceholders: true,
	}
	if d.Type() == CockroachDB {
		f.CTE.MaterializedHint = false
		f.TimeTravel = true
		f.AnyCast = true
	}
	return f
}

// UpsertSQL generates PostgreSQL UPSERT syntax using ON CONFLICT.
func (d *PostgresDialect) UpsertSQL(_ string, conflictColumns, updateCols []string) string {
	if updateCols == nil {
		// DO NOTHING case
		if len(conflictColumns) > 0 {
			return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflictColumns, ", "))
		}
		return " ON CONFLICT DO NOTHING"
	}

	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictColumns, ", "),
		buildUpdateSet(updateCols, "EXCLUDED.%s"),
	)
}

// BindValue wraps slices with pq.Array so they bind as a single array parameter.
func (d *PostgresDialect) BindValue(v any) any {
	if v == nil {
		return nil
	}
	if _, ok := v.([]byte); ok {
		return v
	}
	if reflect.TypeOf(v).Kind() == reflect.Slice {
		return pq.Array(v)
	}
	return v
}

// buildUpdateSet builds the SET clause of an upsert, formatting the source
// of every column with format.
func buildUpdateSet(cols []string, format string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col + " = " + fmt.Sprintf(format, col)
	}
	return strings.Join(parts, ", ")
}
