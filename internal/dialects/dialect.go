// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dialects provides database-specific SQL dialect implementations for
// PostgreSQL, CockroachDB, MySQL, MariaDB, SQLite, SQL Server, Oracle, Spanner
// and SAP HANA. A dialect handles identifier quoting, placeholders, capability
// flags consumed by the renderer, and UPSERT syntax.
package dialects

import (
	"fmt"
	"sort"
	"sync"
)

// Type identifies a SQL dialect family member.
type Type string

// Supported dialect types.
const (
	Postgres       Type = "postgres"
	CockroachDB    Type = "cockroachdb"
	AuroraPostgres Type = "aurora-postgres"
	MySQL          Type = "mysql"
	MariaDB        Type = "mariadb"
	AuroraMySQL    Type = "aurora-mysql"
	SQLite         Type = "sqlite"
	MSSQL          Type = "mssql"
	Oracle         Type = "oracle"
	Spanner        Type = "spanner"
	SAP            Type = "sap"
)

// ReturningKind is the statement kind a RETURNING-like clause is attached to.
type ReturningKind uint8

// Statement kinds that may carry a returning clause.
const (
	ReturningInsert ReturningKind = 1 << iota
	ReturningUpdate
	ReturningDelete
)

// ReturningStyle is the syntax a dialect uses to hand back written rows.
type ReturningStyle uint8

// Returning syntaxes.
const (
	// ReturningNone means the dialect cannot return written rows.
	ReturningNone ReturningStyle = iota
	// ReturningClause is a trailing RETURNING list (Postgres, SQLite, MariaDB).
	ReturningClause
	// ReturningOutput is SQL Server's OUTPUT INSERTED.x / DELETED.x.
	ReturningOutput
	// ReturningInto is Oracle's RETURNING x INTO :bindouts.
	ReturningInto
	// ReturningThenReturn is Spanner's THEN RETURN list.
	ReturningThenReturn
)

// PagingStyle is the syntax used for LIMIT/OFFSET.
type PagingStyle uint8

// Paging syntaxes.
const (
	// PagingLimitOffset renders LIMIT n OFFSET m.
	PagingLimitOffset PagingStyle = iota
	// PagingOffsetFetch renders OFFSET m ROWS FETCH NEXT n ROWS ONLY.
	PagingOffsetFetch
)

// CTECapabilities describes common-table-expression support.
type CTECapabilities struct {
	// Enabled reports whether WITH is supported at all.
	Enabled bool
	// RequiresRecursiveHint means recursive CTEs need the RECURSIVE keyword.
	RequiresRecursiveHint bool
	// Writable allows INSERT/UPDATE/DELETE bodies inside a CTE.
	Writable bool
	// MaterializedHint allows MATERIALIZED / NOT MATERIALIZED.
	MaterializedHint bool
}

// Features holds the capability flags the renderer branches on.
type Features struct {
	CTE               CTECapabilities
	Returning         ReturningStyle
	ReturningKinds    ReturningKind
	NativeILike       bool
	TimeTravel        bool
	AnyCast           bool
	Paging            PagingStyle
	UnboundedLimit    string
	MaxAliasLength    int
	DefaultInValues   bool
	Upsert            bool
	InsertIgnore      bool
	ArrayParameters   bool
	ReusePlaceholders bool
}

// Dialect defines database-specific behaviors.
type Dialect interface {
	Type() Type
	QuoteIdentifier(string) string
	Placeholder(int) string
	Features() Features
	UpsertSQL(table string, conflictColumns, updateColumns []string) string
	BindValue(any) any
}

// IsReturningSupported reports whether d can return rows for the given statement kind.
func IsReturningSupported(d Dialect, kind ReturningKind) bool {
	f := d.Features()
	return f.Returning != ReturningNone && f.ReturningKinds&kind != 0
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// RegisterDialect registers a database dialect by driver name.
func RegisterDialect(name string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[name] = d
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	mu.RLock()
	defer mu.RUnlock()
	if d, ok := dialects[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unsupported dialect: %s", name)
}

// GetDialect retrieves a registered dialect by driver name, panics if not found.
func GetDialect(name string) Dialect {
	d, err := Lookup(name)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// Names returns every registered name in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// passthrough is embedded by dialects that bind values unchanged.
type passthrough struct{}

// BindValue returns v unchanged.
func (passthrough) BindValue(v any) any { return v }
