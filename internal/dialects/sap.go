// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dialects

import "strings"

// SAPDialect implements SAP HANA dialect.
type SAPDialect struct {
	passthrough
}

func init() {
	RegisterDialect("sap", &SAPDialect{})
	RegisterDialect("hana", &SAPDialect{})
}

// Type returns SAP.
func (d *SAPDialect) Type() Type { return SAP }

// QuoteIdentifier quotes a HANA identifier using double quotes.
func (d *SAPDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns "?".
func (d *SAPDialect) Placeholder(_ int) string {
	return "?"
}

// Features reports SAP HANA capabilities.
func (d *SAPDialect) Features() Features {
	return Features{
		CTE: CTECapabilities{
			Enabled: true,
		},
		Paging:          PagingLimitOffset,
		MaxAliasLength:  128,
		DefaultInValues: true,
	}
}

// UpsertSQL returns "" because HANA uses UPSERT ... WITH PRIMARY KEY.
func (d *SAPDialect) UpsertSQL(_ string, _, _ []string) string {
	return ""
}
