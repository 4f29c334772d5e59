// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dialects

import (
	"fmt"
	"strings"
)

// MySQLDialect implements MySQL-specific SQL dialect. MariaDB and Aurora MySQL
// share it; MariaDB additionally supports RETURNING on INSERT and DELETE.
type MySQLDialect struct {
	passthrough
	kind Type
}

func init() {
	RegisterDialect("mysql", &MySQLDialect{kind: MySQL})
	RegisterDialect("mariadb", &MySQLDialect{kind: MariaDB})
	RegisterDialect("aurora-mysql", &MySQLDialect{kind: AuroraMySQL})
}

// Type returns the dialect type tag.
func (d *MySQLDialect) Type() Type {
	if d.kind == "" {
		return MySQL
	}
	return d.kind
}

// QuoteIdentifier quotes a MySQL identifier using backticks.
func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Placeholder returns MySQL placeholder format (always "?").
func (d *MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// Features reports MySQL capabilities.
func (d *MySQLDialect) Features() Features {
	f := Features{
		CTE: CTECapabilities{
			Enabled:               true,
			RequiresRecursiveHint: true,
		},
		Paging:          PagingLimitOffset,
		UnboundedLimit:  "18446744073709551615",
		MaxAliasLength:  63,
		DefaultInValues: true,
		Upsert:          true,
		InsertIgnore:    true,
	}
	if d.Type() == MariaDB {
		f.Returning = ReturningClause
		f.ReturningKinds = ReturningInsert | ReturningDelete
	}
	return f
}

// UpsertSQL generates MySQL UPSERT syntax using ON DUPLICATE KEY UPDATE.
// The ignore case is expressed with INSERT IGNORE instead, so it returns "".
func (d *MySQLDialect) UpsertSQL(_ string, _, updateCols []string) string {
	if updateCols == nil {
		return ""
	}
	return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s", buildUpdateSet(updateCols, "VALUES(%s)"))
}
