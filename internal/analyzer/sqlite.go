// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package analyzer

import (
	"context"
	"fmt"
	"strings"
)

// SQLiteAnalyzer reads EXPLAIN QUERY PLAN rows. SQLite reports neither
// cost nor row estimates.
type SQLiteAnalyzer struct {
	q Querier
}

// Explain implements Analyzer.
func (sa *SQLiteAnalyzer) Explain(ctx context.Context, query string, args []any) (*QueryPlan, error) {
	res, err := sa.q.Query(ctx, "EXPLAIN QUERY PLAN "+query, args)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	lines := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		if detail, ok := rec["detail"].(string); ok {
			lines = append(lines, detail)
		}
	}
	plan := parseSQLiteExplain(lines)
	plan.RawOutput = strings.Join(lines, "\n")
	return plan, nil
}

// ExplainAnalyze implements Analyzer; SQLite has no EXPLAIN ANALYZE.
func (sa *SQLiteAnalyzer) ExplainAnalyze(context.Context, string, []any) (*QueryPlan, error) {
	return nil, fmt.Errorf("%w: sqlite has no EXPLAIN ANALYZE", ErrUnsupported)
}

// parseSQLiteExplain reads detail lines such as
//
//	SCAN users
//	SEARCH users USING INDEX users_email (email=?)
//	SEARCH users USING INTEGER PRIMARY KEY (rowid=?)
func parseSQLiteExplain(lines []string) *QueryPlan {
	plan := &QueryPlan{Database: "sqlite"}
	for _, line := range lines {
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.Contains(upper, "USING COVERING INDEX "):
			markIndex(plan, indexAfter(line, "USING COVERING INDEX "))
		case strings.Contains(upper, "USING INDEX "):
			markIndex(plan, indexAfter(line, "USING INDEX "))
		case strings.Contains(upper, "USING INTEGER PRIMARY KEY"), strings.Contains(upper, "USING PRIMARY KEY"):
			markIndex(plan, "PRIMARY KEY")
		case strings.Contains(upper, "USING AUTOMATIC"):
			markIndex(plan, "AUTOMATIC INDEX")
		case strings.HasPrefix(upper, "SCAN "):
			plan.FullScan = true
		}
	}
	return plan
}

func markIndex(plan *QueryPlan, name string) {
	plan.UsesIndex = true
	if plan.IndexName == "" {
		plan.IndexName = name
	}
}

// indexAfter returns the word following marker in detail.
func indexAfter(detail, marker string) string {
	i := strings.Index(strings.ToUpper(detail), marker)
	if i < 0 {
		return ""
	}
	rest := strings.TrimSpace(detail[i+len(marker):])
	if end := strings.IndexAny(rest, " ("); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
