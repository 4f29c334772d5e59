// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// MySQLAnalyzer reads EXPLAIN FORMAT=JSON output.
type MySQLAnalyzer struct {
	q Querier
}

// Explain implements Analyzer.
func (ma *MySQLAnalyzer) Explain(ctx context.Context, query string, args []any) (*QueryPlan, error) {
	res, err := ma.q.Query(ctx, "EXPLAIN FORMAT=JSON "+query, args)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	raw, err := firstString(res)
	if err != nil {
		return nil, err
	}
	plan, err := parseMySQLExplain(raw)
	if err != nil {
		return nil, fmt.Errorf("parse explain output: %w", err)
	}
	plan.RawOutput = raw
	return plan, nil
}

// ExplainAnalyze implements Analyzer. MySQL prints EXPLAIN ANALYZE as a
// tree, so only the raw output is filled in.
func (ma *MySQLAnalyzer) ExplainAnalyze(ctx context.Context, query string, args []any) (*QueryPlan, error) {
	res, err := ma.q.Query(ctx, "EXPLAIN ANALYZE "+query, args)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	raw, err := firstString(res)
	if err != nil {
		return nil, err
	}
	return &QueryPlan{RawOutput: raw, Database: "mysql"}, nil
}

type mysqlExplainRoot struct {
	QueryBlock mysqlQueryBlock `json:"query_block"`
}

type mysqlQueryBlock struct {
	CostInfo   mysqlCostInfo     `json:"cost_info"`
	Table      *mysqlTableAccess `json:"table"`
	NestedLoop []mysqlLoopItem   `json:"nested_loop"`
	Grouping   *mysqlOperation   `json:"grouping_operation"`
	Ordering   *mysqlOperation   `json:"ordering_operation"`
}

type mysqlOperation struct {
	Table      *mysqlTableAccess `json:"table"`
	NestedLoop []mysqlLoopItem   `json:"nested_loop"`
	Grouping   *mysqlOperation   `json:"grouping_operation"`
}

type mysqlLoopItem struct {
	Table *mysqlTableAccess `json:"table"`
}

type mysqlTableAccess struct {
	TableName           string `json:"table_name"`
	AccessType          string `json:"access_type"`
	Key                 string `json:"key"`
	RowsExaminedPerScan int64  `json:"rows_examined_per_scan"`
	RowsProducedPerJoin int64  `json:"rows_produced_per_join"`
}

type mysqlCostInfo struct {
	QueryCost string `json:"query_cost"`
}

func parseMySQLExplain(raw string) (*QueryPlan, error) {
	var root mysqlExplainRoot
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil, err
	}

	plan := &QueryPlan{Database: "mysql"}
	if root.QueryBlock.CostInfo.QueryCost != "" {
		cost, err := strconv.ParseFloat(root.QueryBlock.CostInfo.QueryCost, 64)
		if err != nil {
			return nil, fmt.Errorf("query_cost: %w", err)
		}
		plan.Cost = cost
	}

	qb := root.QueryBlock
	walkMySQL(&mysqlOperation{Table: qb.Table, NestedLoop: qb.NestedLoop}, plan)
	walkMySQL(qb.Grouping, plan)
	walkMySQL(qb.Ordering, plan)
	return plan, nil
}

func walkMySQL(op *mysqlOperation, plan *QueryPlan) {
	if op == nil {
		return
	}
	addMySQLTable(op.Table, plan)
	for _, item := range op.NestedLoop {
		addMySQLTable(item.Table, plan)
	}
	walkMySQL(op.Grouping, plan)
}

func addMySQLTable(t *mysqlTableAccess, plan *QueryPlan) {
	if t == nil {
		return
	}
	if t.Key != "" {
		plan.UsesIndex = true
		if plan.IndexName == "" {
			plan.IndexName = t.Key
		}
	}
	if t.AccessType == "ALL" {
		plan.FullScan = true
	}
	plan.EstimatedRows += t.RowsExaminedPerScan
	plan.RowsExamined += t.RowsExaminedPerScan
	plan.RowsProduced += t.RowsProducedPerJoin
}
