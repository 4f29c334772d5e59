// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package analyzer reads query plans with EXPLAIN and reduces them to a
// common QueryPlan for PostgreSQL, MySQL and SQLite.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/runner"
)

// ErrUnsupported is returned for dialects without a plan reader, and by
// ExplainAnalyze where the database cannot execute and explain at once.
var ErrUnsupported = errors.New("query plan analysis is not supported")

// QueryPlan is a database-neutral summary of an execution plan.
type QueryPlan struct {
	Cost          float64       // estimated cost in the database's own units
	EstimatedRows int64         // estimated rows processed
	ActualRows    int64         // rows processed, ExplainAnalyze only
	ActualTime    time.Duration // execution time, ExplainAnalyze only

	UsesIndex bool
	IndexName string // first index seen in the plan
	FullScan  bool

	RawOutput string
	Database  string // "postgres", "mysql" or "sqlite"

	BuffersHit   int64 // PostgreSQL shared buffer hits
	BuffersMiss  int64 // PostgreSQL shared buffer reads
	RowsExamined int64 // MySQL
	RowsProduced int64 // MySQL
}

// Querier runs one statement. *runner.Runner satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, params []any) (*runner.Result, error)
}

// Analyzer explains statements rendered for one dialect.
type Analyzer interface {
	// Explain returns the estimated plan without running the statement.
	Explain(ctx context.Context, query string, args []any) (*QueryPlan, error)
	// ExplainAnalyze runs the statement and returns the measured plan.
	ExplainAnalyze(ctx context.Context, query string, args []any) (*QueryPlan, error)
}

// For returns the analyzer for d, running EXPLAIN statements on q.
func For(d dialects.Dialect, q Querier) (Analyzer, error) {
	switch d.Type() {
	case dialects.Postgres, dialects.AuroraPostgres:
		return &PostgresAnalyzer{q: q}, nil
	case dialects.MySQL, dialects.MariaDB, dialects.AuroraMySQL:
		return &MySQLAnalyzer{q: q}, nil
	case dialects.SQLite:
		return &SQLiteAnalyzer{q: q}, nil
	}
	return nil, fmt.Errorf("%w for %s", ErrUnsupported, d.Type())
}

// firstString returns the single text value of a one-column plan result.
func firstString(res *runner.Result) (string, error) {
	if len(res.Records) == 0 {
		return "", errors.New("empty EXPLAIN output")
	}
	for _, v := range res.Records[0] {
		if s, ok := v.(string); ok {
			return s, nil
		}
		return "", fmt.Errorf("unexpected EXPLAIN value %T", v)
	}
	return "", errors.New("empty EXPLAIN row")
}
