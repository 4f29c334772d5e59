// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dialects

import (
	"fmt"
	"strings"
)

// SpannerDialect implements Google Cloud Spanner (GoogleSQL) dialect.
type SpannerDialect struct {
	passthrough
}

func init() {
	RegisterDialect("spanner", &SpannerDialect{})
}

// Type returns Spanner.
func (d *SpannerDialect) Type() Type { return Spanner }

// QuoteIdentifier quotes a Spanner identifier using backticks.
func (d *SpannerDialect) QuoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "\\`") + "`"
}

// Placeholder returns Spanner named placeholders (@param0, @param1, etc.).
func (d *SpannerDialect) Placeholder(index int) string {
	return fmt.Sprintf("@param%d", index-1)
}

// Features reports Spanner capabilities.
func (d *SpannerDialect) Features() Features {
	return Features{
		CTE: CTECapabilities{
			Enabled: true,
		},
		Returning:      ReturningThenReturn,
		ReturningKinds: ReturningInsert | ReturningUpdate | ReturningDelete,
		Paging:         PagingLimitOffset,
		UnboundedLimit: "9223372036854775807",
		MaxAliasLength: 128,
	}
}

// UpsertSQL returns "" because Spanner uses INSERT OR UPDATE statements.
func (d *SpannerDialect) UpsertSQL(_ string, _, _ []string) string {
	return ""
}
