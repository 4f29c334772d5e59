// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dialects

import (
	"fmt"
	"strings"
)

// OracleDialect implements Oracle Database dialect.
type OracleDialect struct {
	passthrough
}

func init() {
	RegisterDialect("oracle", &OracleDialect{})
	RegisterDialect("godror", &OracleDialect{})
}

// Type returns Oracle.
func (d *OracleDialect) Type() Type { return Oracle }

// QuoteIdentifier quotes an Oracle identifier using double quotes.
func (d *OracleDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns Oracle placeholder format (:1, :2, etc.).
func (d *OracleDialect) Placeholder(index int) string {
	return fmt.Sprintf(":%d", index)
}

// Features reports Oracle capabilities.
func (d *OracleDialect) Features() Features {
	return Features{
		CTE: CTECapabilities{
			Enabled: true,
		},
		Returning:       ReturningInto,
		ReturningKinds:  ReturningInsert | ReturningUpdate | ReturningDelete,
		Paging:          PagingOffsetFetch,
		MaxAliasLength:  30,
		DefaultInValues: true,
	}
}

// UpsertSQL returns "" because Oracle needs MERGE for upserts.
func (d *OracleDialect) UpsertSQL(_ string, _, _ []string) string {
	return ""
}
