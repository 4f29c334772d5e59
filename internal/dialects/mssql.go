// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dialects

import (
	"fmt"
	"strings"
)

// MSSQLDialect implements Microsoft SQL Server dialect.
type MSSQLDialect struct {
	passthrough
}

func init() {
	RegisterDialect("mssql", &MSSQLDialect{})
	RegisterDialect("sqlserver", &MSSQLDialect{})
}

// Type returns MSSQL.
func (d *MSSQLDialect) Type() Type { return MSSQL }

// QuoteIdentifier quotes an identifier using square brackets.
func (d *MSSQLDialect) QuoteIdentifier(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

// Placeholder returns SQL Server placeholder format (@p1, @p2, etc.).
func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index)
}

// Features reports SQL Server capabilities. Written rows come back through
// OUTPUT INSERTED.x / DELETED.x.
func (d *MSSQLDialect) Features() Features {
	return Features{
		CTE: CTECapabilities{
			Enabled: true,
		},
		Returning:       ReturningOutput,
		ReturningKinds:  ReturningInsert | ReturningUpdate | ReturningDelete,
		Paging:          PagingOffsetFetch,
		MaxAliasLength:  128,
		DefaultInValues: true,
	}
}

// UpsertSQL returns "" because SQL Server needs MERGE for upserts.
func (d *MSSQLDialect) UpsertSQL(_ string, _, _ []string) string {
	return ""
}
