// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runner executes rendered statements for query builders. A Runner
// pins one connection from a *sqlx.DB for its lifetime, keeps the statements
// it prepares on that connection and gives everything back on Release.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/coregx/quarry/internal/cache"
)

var (
	// ErrReleased is returned by a Runner used after Release.
	ErrReleased = errors.New("quarry: query runner already released")
	// ErrTransactionActive is returned when a transaction is started twice.
	ErrTransactionActive = errors.New("quarry: transaction already started")
	// ErrNoTransaction is returned by Commit and Rollback outside a transaction.
	ErrNoTransaction = errors.New("quarry: no transaction started")
)

// Result is the raw outcome of one statement.
type Result struct {
	// Records holds one column-name keyed map per returned row.
	Records []map[string]any
	// Affected is the driver's affected row count for statements that
	// return no rows, and the number of records otherwise.
	Affected int64
	// Out holds the values of sql.Out parameters, in parameter order.
	Out []any
}

// Runner runs statements on a single pinned connection. It is not safe for
// concurrent use.
type Runner struct {
	db    *sqlx.DB
	conn  *sqlx.Conn
	tx    *sqlx.Tx
	stmts *cache.Cache[*sqlx.Stmt]

	released bool
}

// New returns a runner over db that caches up to stmtCapacity prepared
// statements. The connection is acquired on first use.
func New(db *sqlx.DB, stmtCapacity int) *Runner {
	return &Runner{db: db, stmts: cache.New[*sqlx.Stmt](stmtCapacity)}
}

// IsReleased reports whether Release was called.
func (r *Runner) IsReleased() bool { return r.released }

// InTransaction reports whether a transaction is open.
func (r *Runner) InTransaction() bool { return r.tx != nil }

// Stats returns the statement cache counters.
func (r *Runner) Stats() cache.Stats { return r.stmts.Stats() }

func (r *Runner) connect(ctx context.Context) (*sqlx.Conn, error) {
	if r.released {
		return nil, ErrReleased
	}
	if r.conn == nil {
		conn, err := r.db.Connx(ctx)
		if err != nil {
			return nil, err
		}
		r.conn = conn
	}
	return r.conn, nil
}

// prepare returns a statement for query and whether the caller must close it.
// Statements prepared inside a transaction are bound to it and not cached.
func (r *Runner) prepare(ctx context.Context, query string) (*sqlx.Stmt, bool, error) {
	if r.tx != nil {
		stmt, err := r.tx.PreparexContext(ctx, query)
		return stmt, true, err
	}
	conn, err := r.connect(ctx)
	if err != nil {
		return nil, false, err
	}
	if stmt, ok := r.stmts.Get(query); ok {
		return stmt, false, nil
	}
	stmt, err := conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	// an evicted statement failing to close does not affect this one
	_ = r.stmts.Put(query, stmt)
	return stmt, false, nil
}

// Query runs query with positional params. Statements that return rows are
// read into Records; others report the affected row count.
func (r *Runner) Query(ctx context.Context, query string, params []any) (*Result, error) {
	if r.released {
		return nil, ErrReleased
	}
	stmt, owned, err := r.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	if owned {
		defer func() { _ = stmt.Close() }()
	}

	if !ReturnsRows(query) {
		res, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			return nil, err
		}
		affected, _ := res.RowsAffected()
		return &Result{Affected: affected, Out: outValues(params)}, nil
	}

	rows, err := stmt.QueryxContext(ctx, params...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []map[string]any
	for rows.Next() {
		rec := make(map[string]any)
		if err := rows.MapScan(rec); err != nil {
			return nil, err
		}
		normalize(rec)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &Result{Records: records, Affected: int64(len(records))}, nil
}

// StartTransaction begins a transaction on the pinned connection.
func (r *Runner) StartTransaction(ctx context.Context, opts *sql.TxOptions) error {
	if r.tx != nil {
		return ErrTransactionActive
	}
	conn, err := r.connect(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}
	r.tx = tx
	return nil
}

// Commit commits the open transaction.
func (r *Runner) Commit() error {
	if r.tx == nil {
		return ErrNoTransaction
	}
	err := r.tx.Commit()
	r.tx = nil
	return err
}

// Rollback aborts the open transaction.
func (r *Runner) Rollback() error {
	if r.tx == nil {
		return ErrNoTransaction
	}
	err := r.tx.Rollback()
	r.tx = nil
	return err
}

// Release rolls back an open transaction, closes cached statements and
// returns the connection to the pool. Further calls are no-ops.
func (r *Runner) Release() error {
	if r.released {
		return nil
	}
	r.released = true

	var errs []error
	if r.tx != nil {
		if err := r.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
		r.tx = nil
	}
	if err := r.stmts.Clear(); err != nil {
		errs = append(errs, err)
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		r.conn = nil
	}
	return errors.Join(errs...)
}

// ReturnsRows reports whether query produces a result set: reads, and
// writes carrying RETURNING, OUTPUT or THEN RETURN. RETURNING ... INTO
// binds out parameters instead. Literals, quoted identifiers and comments
// are ignored, and a WITH prefix is judged by the statement after its CTE
// list.
func ReturnsRows(query string) bool {
	upper := strings.TrimSpace(strings.ToUpper(maskLiterals(query)))
	if strings.HasPrefix(upper, "WITH") && !startsWithWord(upper, 4) {
		upper = topLevelStatement(upper[4:])
	}
	for _, prefix := range []string{"SELECT", "VALUES", "SHOW", "EXPLAIN", "PRAGMA", "DECLARE", "TABLE"} {
		if strings.HasPrefix(upper, prefix) && !startsWithWord(upper, len(prefix)) {
			return true
		}
	}
	if strings.Contains(upper, " RETURNING ") {
		return !strings.Contains(upper, " INTO :")
	}
	return strings.Contains(upper, " OUTPUT ") || strings.Contains(upper, " THEN RETURN ")
}

// maskLiterals blanks the contents of string literals, quoted identifiers
// and comments so keyword searches only see SQL structure.
func maskLiterals(query string) string {
	b := []byte(query)
	blank := func(from, to int) {
		for j := from; j < to && j < len(b); j++ {
			b[j] = ' '
		}
	}
	// closeAt returns the index of the closing token after from, or len(b).
	closeAt := func(from int, token string) int {
		if k := strings.Index(query[from:], token); k >= 0 {
			return from + k
		}
		return len(b)
	}
	for i := 0; i < len(b); i++ {
		switch c := b[i]; {
		case c == '\'' || c == '"' || c == '`':
			end := closeAt(i+1, string(c))
			blank(i+1, end)
			i = end
		case c == '[':
			end := closeAt(i+1, "]")
			blank(i+1, end)
			i = end
		case c == '-' && i+1 < len(b) && b[i+1] == '-':
			end := closeAt(i+2, "\n")
			blank(i, end)
			i = end
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			end := closeAt(i+2, "*/")
			blank(i, end+2)
			i = end + 1
		}
	}
	return string(b)
}

// topLevelStatement skips the CTE list of a WITH clause and returns the
// text from the first keyword outside every parenthesis.
func topLevelStatement(upper string) string {
	depth := 0
	for i := 0; i < len(upper); i++ {
		switch c := upper[i]; {
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && (i == 0 || !isWordByte(upper[i-1])):
			for _, verb := range []string{"SELECT", "VALUES", "INSERT", "UPDATE", "DELETE", "MERGE", "TABLE"} {
				if strings.HasPrefix(upper[i:], verb) && !startsWithWord(upper[i:], len(verb)) {
					return upper[i:]
				}
			}
		}
	}
	return ""
}

// startsWithWord reports whether the byte at n continues a word.
func startsWithWord(s string, n int) bool {
	return n < len(s) && isWordByte(s[n])
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func outValues(params []any) []any {
	var out []any
	for _, p := range params {
		if o, ok := p.(sql.Out); ok {
			out = append(out, derefOut(o.Dest))
		}
	}
	return out
}

func derefOut(dest any) any {
	if p, ok := dest.(*any); ok {
		return *p
	}
	return dest
}

// normalize turns driver byte slices into strings.
func normalize(rec map[string]any) {
	for k, v := range rec {
		if b, ok := v.([]byte); ok {
			rec[k] = string(b)
		}
	}
}
