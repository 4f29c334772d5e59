// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresAnalyzer reads EXPLAIN (FORMAT JSON) output.
type PostgresAnalyzer struct {
	q Querier
}

// Explain implements Analyzer.
func (pa *PostgresAnalyzer) Explain(ctx context.Context, query string, args []any) (*QueryPlan, error) {
	return pa.explain(ctx, "EXPLAIN (FORMAT JSON) "+query, args, false)
}

// ExplainAnalyze implements Analyzer. The statement is executed.
func (pa *PostgresAnalyzer) ExplainAnalyze(ctx context.Context, query string, args []any) (*QueryPlan, error) {
	return pa.explain(ctx, "EXPLAIN (ANALYZE, FORMAT JSON, BUFFERS) "+query, args, true)
}

func (pa *PostgresAnalyzer) explain(ctx context.Context, query string, args []any, analyze bool) (*QueryPlan, error) {
	res, err := pa.q.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	raw, err := firstString(res)
	if err != nil {
		return nil, err
	}
	plan, err := parsePostgresExplain(raw, analyze)
	if err != nil {
		return nil, fmt.Errorf("parse explain output: %w", err)
	}
	plan.RawOutput = raw
	return plan, nil
}

type postgresExplainRoot struct {
	Plan          postgresPlanNode `json:"Plan"`
	PlanningTime  float64          `json:"Planning Time"`
	ExecutionTime float64          `json:"Execution Time"`
}

type postgresPlanNode struct {
	NodeType         string             `json:"Node Type"`
	RelationName     string             `json:"Relation Name"`
	IndexName        string             `json:"Index Name"`
	TotalCost        float64            `json:"Total Cost"`
	PlanRows         int64              `json:"Plan Rows"`
	ActualRows       int64              `json:"Actual Rows"`
	ActualLoops      int64              `json:"Actual Loops"`
	SharedHitBlocks  int64              `json:"Shared Hit Blocks"`
	SharedReadBlocks int64              `json:"Shared Read Blocks"`
	Plans            []postgresPlanNode `json:"Plans"`
}

func parsePostgresExplain(raw string, analyze bool) (*QueryPlan, error) {
	var roots []postgresExplainRoot
	if err := json.Unmarshal([]byte(raw), &roots); err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, errors.New("empty plan list")
	}

	root := roots[0]
	plan := &QueryPlan{
		Cost:          root.Plan.TotalCost,
		EstimatedRows: root.Plan.PlanRows,
		Database:      "postgres",
	}
	walkPostgresPlan(&root.Plan, plan, analyze)
	if analyze && root.ExecutionTime > 0 {
		plan.ActualTime = time.Duration(root.ExecutionTime * float64(time.Millisecond))
	}
	return plan, nil
}

func walkPostgresPlan(node *postgresPlanNode, plan *QueryPlan, analyze bool) {
	if strings.Contains(node.NodeType, "Index Scan") || strings.Contains(node.NodeType, "Index Only Scan") {
		plan.UsesIndex = true
		if plan.IndexName == "" {
			plan.IndexName = node.IndexName
		}
	}
	if node.NodeType == "Seq Scan" {
		plan.FullScan = true
	}
	if analyze {
		loops := node.ActualLoops
		if loops == 0 {
			loops = 1
		}
		plan.ActualRows += node.ActualRows * loops
		plan.BuffersHit += node.SharedHitBlocks
		plan.BuffersMiss += node.SharedReadBlocks
	}
	for i := range node.Plans {
		walkPostgresPlan(&node.Plans[i], plan, analyze)
	}
}
