// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dialects

import (
	"fmt"
	"strings"
)

// SQLiteDialect implements SQLite-specific SQL dialect.
type SQLiteDialect struct {
	passthrough
}

func init() {
	RegisterDialect("sqlite", &SQLiteDialect{})
	RegisterDialect("sqlite3", &SQLiteDialect{})
}

// Type returns SQLite.
func (d *SQLiteDialect) Type() Type { return SQLite }

// QuoteIdentifier quotes a SQLite identifier using double quotes.
func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns SQLite placeholder format (always "?").
func (d *SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

// Features reports SQLite capabilities. SQLite has no DEFAULT keyword inside
// VALUES, so missing values render as NULL.
func (d *SQLiteDialect) Features() Features {
	return Features{
		CTE: CTECapabilities{
			Enabled:               true,
			RequiresRecursiveHint: true,
			MaterializedHint:      true,
		},
		Returning:      ReturningClause,
		ReturningKinds: ReturningInsert | ReturningUpdate | ReturningDelete,
		Paging:         PagingLimitOffset,
		UnboundedLimit: "-1",
		Upsert:         true,
	}
}

// UpsertSQL generates SQLite UPSERT syntax using ON CONFLICT.
func (d *SQLiteDialect) UpsertSQL(_ string, conflictColumns, updateCols []string) string {
	if updateCols == nil {
		if len(conflictColumns) > 0 {
			return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflictColumns, ", "))
		}
		return " ON CONFLICT DO NOTHING"
	}

	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictColumns, ", "),
		buildUpdateSet(updateCols, "excluded.%s"))
}
