// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package optimizer turns query plans into index and tuning suggestions.
package optimizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coregx/quarry/internal/analyzer"
)

// DefaultSlowQueryThreshold applies when Advisor is given no threshold.
const DefaultSlowQueryThreshold = 100 * time.Millisecond

// Analysis is the plan of one statement together with what was inferred
// from its text.
type Analysis struct {
	SQL           string
	SlowQuery     bool
	ExecutionTime time.Duration
	QueryPlan     *analyzer.QueryPlan

	Table          string
	MissingIndexes []IndexRecommendation
	JoinIndexes    []IndexRecommendation
	Covering       *CoveringIndexAnalysis
}

// Suggestion is one actionable recommendation.
type Suggestion struct {
	Type     SuggestionType `json:"type"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	SQL      string         `json:"sql,omitempty"` // statement that applies the fix, if any
}

// String formats the suggestion for terminals.
func (s Suggestion) String() string {
	if s.SQL != "" {
		return fmt.Sprintf("%s: %s\n  Fix: %s", s.Severity, s.Message, s.SQL)
	}
	return fmt.Sprintf("%s: %s", s.Severity, s.Message)
}

// SuggestionType categorizes suggestions.
type SuggestionType string

const (
	SuggestionIndexMissing   SuggestionType = "index_missing"
	SuggestionSlowQuery      SuggestionType = "slow_query"
	SuggestionFullScan       SuggestionType = "full_scan"
	SuggestionCoveringIndex  SuggestionType = "covering_index"
	SuggestionJoinOptimize   SuggestionType = "join_optimize"
	SuggestionFunctionIndex  SuggestionType = "function_index"
	SuggestionPostgresStats  SuggestionType = "postgres_analyze"
	SuggestionPostgresCache  SuggestionType = "postgres_cache_hit"
	SuggestionMySQLIndexHint SuggestionType = "mysql_index_hint"
	SuggestionMySQLOptimize  SuggestionType = "mysql_optimize"
	SuggestionSQLiteStats    SuggestionType = "sqlite_analyze"
	SuggestionSQLiteWAL      SuggestionType = "sqlite_wal"
)

// Severity ranks suggestions.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// IndexRecommendation is an index that would serve the statement.
type IndexRecommendation struct {
	Table   string
	Columns []string
	Reason  string
}

// IndexName returns idx_<table>_<col1>_<col2>...
func (i IndexRecommendation) IndexName() string {
	if len(i.Columns) == 0 {
		return "idx_" + i.Table
	}
	return "idx_" + i.Table + "_" + strings.Join(i.Columns, "_")
}

// CreateSQL returns the CREATE INDEX statement for the recommendation.
func (i IndexRecommendation) CreateSQL() string {
	return fmt.Sprintf("CREATE INDEX %s ON %s(%s);", i.IndexName(), i.Table, strings.Join(i.Columns, ", "))
}

// Advisor explains statements and suggests improvements.
type Advisor struct {
	analyzer  analyzer.Analyzer
	threshold time.Duration
}

// NewAdvisor returns an Advisor. A non-positive threshold means
// DefaultSlowQueryThreshold.
func NewAdvisor(a analyzer.Analyzer, threshold time.Duration) *Advisor {
	if threshold <= 0 {
		threshold = DefaultSlowQueryThreshold
	}
	return &Advisor{analyzer: a, threshold: threshold}
}

// Analyze explains query and inspects its text. executionTime, when known,
// is compared with the slow query threshold.
func (a *Advisor) Analyze(ctx context.Context, query string, args []any, executionTime time.Duration) (*Analysis, error) {
	plan, err := a.analyzer.Explain(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("get query plan: %w", err)
	}

	sql := normalize(query)
	analysis := &Analysis{
		SQL:           query,
		SlowQuery:     executionTime > a.threshold,
		ExecutionTime: executionTime,
		QueryPlan:     plan,
		Table:         extractTableName(sql),
	}
	if plan.FullScan && analysis.Table != "" {
		if cols := whereColumns(sql); len(cols) > 0 {
			analysis.MissingIndexes = append(analysis.MissingIndexes, IndexRecommendation{
				Table:   analysis.Table,
				Columns: cols,
				Reason:  "WHERE clause filtering without index usage",
			})
		}
		analysis.JoinIndexes = joinIndexes(sql)
	}
	if !plan.UsesIndex || plan.FullScan {
		analysis.Covering = AnalyzeCoveringIndex(sql)
	}
	return analysis, nil
}

// Suggest lists recommendations for analysis, general ones first and then
// those specific to the database.
func (a *Advisor) Suggest(analysis *Analysis) []Suggestion {
	suggestions := make([]Suggestion, 0, 4)
	plan := analysis.QueryPlan

	if analysis.SlowQuery {
		suggestions = append(suggestions, Suggestion{
			Type:     SuggestionSlowQuery,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("query took %v (threshold %v)", analysis.ExecutionTime, a.threshold),
		})
	}
	if plan.FullScan {
		suggestions = append(suggestions, Suggestion{
			Type:     SuggestionFullScan,
			Severity: SeverityWarning,
			Message:  "query performs a full table scan",
		})
	}
	for _, idx := range analysis.MissingIndexes {
		suggestions = append(suggestions, Suggestion{
			Type:     SuggestionIndexMissing,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("consider an index on %s(%s): %s", idx.Table, strings.Join(idx.Columns, ", "), idx.Reason),
			SQL:      idx.CreateSQL(),
		})
	}
	for _, idx := range analysis.JoinIndexes {
		suggestions = append(suggestions, Suggestion{
			Type:     SuggestionJoinOptimize,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("join on %s.%s has no supporting index", idx.Table, idx.Columns[0]),
			SQL:      idx.CreateSQL(),
		})
	}
	for _, fn := range functionConditions(analysis.SQL) {
		suggestions = append(suggestions, Suggestion{
			Type:     SuggestionFunctionIndex,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%s(%s) in WHERE cannot use a plain index on %s", fn.Function, fn.Column, fn.Column),
		})
	}
	if c := analysis.Covering; c != nil && c.Recommended && analysis.Table != "" {
		idx := IndexRecommendation{Table: analysis.Table, Columns: c.Columns}
		suggestions = append(suggestions, Suggestion{
			Type:     SuggestionCoveringIndex,
			Severity: SeverityInfo,
			Message:  "covering index would allow an index-only scan",
			SQL:      idx.CreateSQL(),
		})
	}

	return append(suggestions, databaseHints(analysis)...)
}
