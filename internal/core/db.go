// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package core implements quarry's query builders, their renderer and the
// connection that executes them.
package core

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coregx/quarry/internal/cache"
	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/logger"
	"github.com/coregx/quarry/internal/metadata"
	"github.com/coregx/quarry/internal/runner"
	"github.com/coregx/quarry/internal/security"
	"github.com/coregx/quarry/internal/tracer"
)

// DB is a connection: a dialect, an optional metadata provider, and, unless
// created with New, a *sqlx.DB that query runners draw connections from.
type DB struct {
	sqlx       *sqlx.DB
	driverName string
	dialect    dialects.Dialect
	metadata   metadata.Provider

	logger    logger.Logger
	sanitizer *logger.Sanitizer
	queries   *logger.QueryLogger
	tracer    tracer.Tracer
	validator *security.Validator
	auditor   *security.Auditor
	hook      QueryHook

	slowQuery    time.Duration
	stmtCapacity int
	maxOpen      int
	maxIdle      int
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for executed statements.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// WithSlogLogger logs executed statements to l.
func WithSlogLogger(l *slog.Logger) Option {
	return func(db *DB) { db.logger = logger.NewSlogAdapter(l) }
}

// WithSensitiveFields replaces the column names whose parameter values are
// masked in logs.
func WithSensitiveFields(fields ...string) Option {
	return func(db *DB) { db.sanitizer = logger.NewSanitizer(fields...) }
}

// WithTracer opens a span around every executed statement.
func WithTracer(t tracer.Tracer) Option {
	return func(db *DB) { db.tracer = t }
}

// WithMetadata sets the provider entity targets are resolved against.
func WithMetadata(p metadata.Provider) Option {
	return func(db *DB) { db.metadata = p }
}

// WithSlowQueryThreshold logs a warning for statements running longer than
// d. Zero disables it.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(db *DB) { db.slowQuery = d }
}

// WithStmtCacheCapacity bounds the prepared statements each query runner
// keeps open.
func WithStmtCacheCapacity(n int) Option {
	return func(db *DB) { db.stmtCapacity = n }
}

// WithRawFragmentValidation rejects raw where, having and join fragments
// matching v's rules. A nil v uses security.NewValidator().
func WithRawFragmentValidation(v *security.Validator) Option {
	return func(db *DB) {
		if v == nil {
			v = security.NewValidator()
		}
		db.validator = v
	}
}

// WithAuditor records executed statements with a.
func WithAuditor(a *security.Auditor) Option {
	return func(db *DB) { db.auditor = a }
}

// WithQueryHook calls h after every executed statement.
func WithQueryHook(h QueryHook) Option {
	return func(db *DB) { db.hook = h }
}

// WithMaxOpenConns sets the pool's maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(db *DB) { db.maxOpen = n }
}

// WithMaxIdleConns sets the pool's maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(db *DB) { db.maxIdle = n }
}

func newDB(dialectName string, opts []Option) (*DB, error) {
	d, err := dialects.Lookup(dialectName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, dialectName)
	}
	db := &DB{
		driverName:   dialectName,
		dialect:      d,
		logger:       logger.NoopLogger{},
		tracer:       tracer.NoopTracer{},
		stmtCapacity: cache.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(db)
	}
	db.queries = logger.NewQueryLogger(db.logger, db.sanitizer)
	return db, nil
}

// New returns a connection that renders statements for dialectName but
// cannot execute them.
func New(dialectName string, opts ...Option) (*DB, error) {
	return newDB(dialectName, opts)
}

// Open opens a pool with sqlx for driverName and dsn. The dialect is looked
// up by driver name.
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	db, err := newDB(driverName, opts)
	if err != nil {
		return nil, err
	}
	sdb, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.attach(sdb)
	return db, nil
}

// WrapDB uses an existing pool. Closing the returned DB closes sqlDB.
func WrapDB(sqlDB *sql.DB, driverName string, opts ...Option) (*DB, error) {
	db, err := newDB(driverName, opts)
	if err != nil {
		return nil, err
	}
	db.attach(sqlx.NewDb(sqlDB, driverName))
	return db, nil
}

func (db *DB) attach(sdb *sqlx.DB) {
	if db.maxOpen > 0 {
		sdb.SetMaxOpenConns(db.maxOpen)
	}
	if db.maxIdle > 0 {
		sdb.SetMaxIdleConns(db.maxIdle)
	}
	db.sqlx = sdb
}

// Dialect returns the connection's dialect.
func (db *DB) Dialect() dialects.Dialect { return db.dialect }

// Metadata returns the metadata provider, if any.
func (db *DB) Metadata() metadata.Provider { return db.metadata }

// SQLX returns the underlying pool, nil for render-only connections.
func (db *DB) SQLX() *sqlx.DB { return db.sqlx }

// Close closes the pool.
func (db *DB) Close() error {
	if db.sqlx == nil {
		return nil
	}
	return db.sqlx.Close()
}

// CreateQueryBuilder starts a builder. An optional runner is borrowed by the
// builder and everything derived from it; the caller releases it.
func (db *DB) CreateQueryBuilder(r ...QueryRunner) *QueryBuilder {
	var qr QueryRunner
	if len(r) > 0 {
		qr = r[0]
	}
	return newQueryBuilder(db, qr)
}

// CreateQueryRunner returns a runner pinned to one pooled connection.
func (db *DB) CreateQueryRunner() (QueryRunner, error) {
	if db.sqlx == nil {
		return nil, ErrNoConnection
	}
	return runner.New(db.sqlx, db.stmtCapacity), nil
}

// validateFragment checks a raw fragment when validation is enabled.
func (db *DB) validateFragment(fragment string) error {
	if db.validator == nil || fragment == "" {
		return nil
	}
	if err := db.validator.ValidateFragment(fragment); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsafeFragment, err)
	}
	return nil
}

// execInfo describes a statement for logs, spans and hooks.
type execInfo struct {
	operation string
	table     string
}

func (qb *QueryBuilder) execInfo() execInfo {
	info := execInfo{operation: "SELECT"}
	switch qb.expr.QueryType {
	case QueryTypeInsert:
		info.operation = "INSERT"
	case QueryTypeUpdate, QueryTypeSoftDelete, QueryTypeRestore:
		info.operation = "UPDATE"
	case QueryTypeDelete:
		info.operation = "DELETE"
	}
	if main := qb.expr.MainAlias; main != nil {
		info.table = main.Table()
	}
	return info
}

// run executes one statement on r with logging, tracing, auditing and the
// query hook around it. Driver errors are returned unchanged.
func (db *DB) run(ctx context.Context, r QueryRunner, info execInfo, sql string, args []any) (*runner.Result, error) {
	queryID := uuid.NewString()
	ctx, span := db.tracer.StartSpan(ctx, tracer.SpanExecute)
	defer span.End()

	start := time.Now()
	res, err := r.Query(ctx, sql, args)
	elapsed := time.Since(start)

	var affected int64
	if res != nil {
		affected = res.Affected
	}

	ql := db.queries.With("query_id", queryID, "database", db.driverName)
	if err != nil {
		ql.LogQueryError(err, sql, args, "duration_ms", elapsed.Milliseconds())
	} else {
		ql.LogQuery(sql, args, "duration_ms", elapsed.Milliseconds(), "rows_affected", affected)
	}
	if db.slowQuery > 0 && elapsed > db.slowQuery {
		ql.LogQuerySlow(elapsed, sql, args)
	}

	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		QueryID:      queryID,
		SQL:          sql,
		ParamCount:   len(args),
		Duration:     elapsed,
		RowsAffected: affected,
		Error:        err,
		System:       db.driverName,
		Operation:    info.operation,
		Table:        info.table,
	})

	if db.auditor != nil {
		db.auditor.Record(ctx, security.AuditEvent{
			QueryID:      queryID,
			Operation:    info.operation,
			Table:        info.table,
			SQL:          sql,
			AffectedRows: affected,
			Duration:     elapsed,
			Err:          err,
		}, args)
	}

	db.invokeHook(ctx, QueryEvent{
		QueryID:      queryID,
		SQL:          sql,
		Args:         args,
		Duration:     elapsed,
		RowsAffected: affected,
		Error:        err,
		Operation:    info.operation,
		Table:        info.table,
	})

	return res, err
}
