// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"context"

	"github.com/coregx/quarry/internal/analyzer"
	"github.com/coregx/quarry/internal/optimizer"
	"github.com/coregx/quarry/internal/runner"
)

// planQuerier sends EXPLAIN statements through DB.run so they are logged
// and traced like any other query.
type planQuerier struct {
	db    *DB
	r     QueryRunner
	table string
}

func (pq planQuerier) Query(ctx context.Context, sql string, params []any) (*runner.Result, error) {
	return pq.db.run(ctx, pq.r, execInfo{operation: "EXPLAIN", table: pq.table}, sql, params)
}

// Explain returns the database's estimated plan for the query.
func (sb *SelectQueryBuilder) Explain(ctx context.Context) (*analyzer.QueryPlan, error) {
	return sb.explain(ctx, false)
}

// ExplainAnalyze executes the query and returns the measured plan.
// SQLite does not support it.
func (sb *SelectQueryBuilder) ExplainAnalyze(ctx context.Context) (*analyzer.QueryPlan, error) {
	return sb.explain(ctx, true)
}

// Advise explains the query and suggests indexes and settings that would
// serve it.
func (sb *SelectQueryBuilder) Advise(ctx context.Context) (*optimizer.Analysis, []optimizer.Suggestion, error) {
	sql, args, err := sb.render(false)
	if err != nil {
		return nil, nil, err
	}

	var analysis *optimizer.Analysis
	var advisor *optimizer.Advisor
	err = sb.withAnalyzer(func(a analyzer.Analyzer) error {
		advisor = optimizer.NewAdvisor(a, sb.db.slowQuery)
		var aerr error
		analysis, aerr = advisor.Analyze(ctx, sql, args, 0)
		return aerr
	})
	if err != nil {
		return nil, nil, err
	}
	return analysis, advisor.Suggest(analysis), nil
}

func (sb *SelectQueryBuilder) explain(ctx context.Context, analyze bool) (*analyzer.QueryPlan, error) {
	sql, args, err := sb.render(false)
	if err != nil {
		return nil, err
	}

	var plan *analyzer.QueryPlan
	err = sb.withAnalyzer(func(a analyzer.Analyzer) error {
		var aerr error
		if analyze {
			plan, aerr = a.ExplainAnalyze(ctx, sql, args)
		} else {
			plan, aerr = a.Explain(ctx, sql, args)
		}
		return aerr
	})
	return plan, err
}

// withAnalyzer calls fn with an analyzer running on the builder's runner,
// or on a runner acquired for the call.
func (sb *SelectQueryBuilder) withAnalyzer(fn func(analyzer.Analyzer) error) (err error) {
	r := sb.runner
	if r == nil {
		owned, createErr := sb.db.CreateQueryRunner()
		if createErr != nil {
			return createErr
		}
		defer func() {
			if releaseErr := owned.Release(); releaseErr != nil && err == nil {
				err = releaseErr
			}
		}()
		r = owned
	}

	a, err := analyzer.For(sb.db.dialect, planQuerier{db: sb.db, r: r, table: sb.execInfo().table})
	if err != nil {
		return err
	}
	return fn(a)
}
