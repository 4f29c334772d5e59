// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package optimizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/quarry/internal/analyzer"
)

// stubAnalyzer returns a fixed plan.
type stubAnalyzer struct {
	plan *analyzer.QueryPlan
	err  error
}

func (s *stubAnalyzer) Explain(context.Context, string, []any) (*analyzer.QueryPlan, error) {
	return s.plan, s.err
}

func (s *stubAnalyzer) ExplainAnalyze(ctx context.Context, q string, args []any) (*analyzer.QueryPlan, error) {
	return s.Explain(ctx, q, args)
}

const postsByStatus = `SELECT "p"."id" AS "p_id", "p"."title" AS "p_title" FROM "posts" "p" WHERE "p"."status" = $1`

func suggestionTypes(s []Suggestion) []SuggestionType {
	out := make([]SuggestionType, len(s))
	for i, x := range s {
		out[i] = x.Type
	}
	return out
}

// ============================================================================
// Advisor
// ============================================================================

func TestNewAdvisor_Threshold(t *testing.T) {
	assert.Equal(t, DefaultSlowQueryThreshold, NewAdvisor(&stubAnalyzer{}, 0).threshold)
	assert.Equal(t, DefaultSlowQueryThreshold, NewAdvisor(&stubAnalyzer{}, -time.Second).threshold)
	assert.Equal(t, time.Second, NewAdvisor(&stubAnalyzer{}, time.Second).threshold)
}

func TestAdvisor_FullScan(t *testing.T) {
	a := NewAdvisor(&stubAnalyzer{plan: &analyzer.QueryPlan{FullScan: true, Database: "postgres"}}, 0)

	analysis, err := a.Analyze(context.Background(), postsByStatus, []any{"draft"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "posts", analysis.Table)
	assert.False(t, analysis.SlowQuery)
	require.Len(t, analysis.MissingIndexes, 1)
	assert.Equal(t, []string{"status"}, analysis.MissingIndexes[0].Columns)
	require.NotNil(t, analysis.Covering)
	assert.True(t, analysis.Covering.Recommended)
	assert.Equal(t, []string{"status", "id", "title"}, analysis.Covering.Columns)

	s := a.Suggest(analysis)
	assert.Equal(t, []SuggestionType{
		SuggestionFullScan,
		SuggestionIndexMissing,
		SuggestionCoveringIndex,
		SuggestionPostgresStats,
	}, suggestionTypes(s))
	assert.Equal(t, "CREATE INDEX idx_posts_status ON posts(status);", s[1].SQL)
	assert.Equal(t, "CREATE INDEX idx_posts_status_id_title ON posts(status, id, title);", s[2].SQL)
	assert.Equal(t, "ANALYZE posts;", s[3].SQL)
}

func TestAdvisor_IndexedFastQuery(t *testing.T) {
	a := NewAdvisor(&stubAnalyzer{plan: &analyzer.QueryPlan{UsesIndex: true, IndexName: "posts_pkey", Database: "postgres"}}, 0)

	analysis, err := a.Analyze(context.Background(), postsByStatus, nil, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, analysis.MissingIndexes)
	assert.Nil(t, analysis.Covering)
	assert.Empty(t, a.Suggest(analysis))
}

func TestAdvisor_SlowQuery(t *testing.T) {
	a := NewAdvisor(&stubAnalyzer{plan: &analyzer.QueryPlan{UsesIndex: true, Database: "sqlite"}}, 50*time.Millisecond)

	analysis, err := a.Analyze(context.Background(), postsByStatus, nil, 80*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, analysis.SlowQuery)

	s := a.Suggest(analysis)
	assert.Equal(t, []SuggestionType{SuggestionSlowQuery, SuggestionSQLiteWAL}, suggestionTypes(s))
	assert.Contains(t, s[0].Message, "80ms")
}

func TestAdvisor_JoinAndFunction(t *testing.T) {
	a := NewAdvisor(&stubAnalyzer{plan: &analyzer.QueryPlan{FullScan: true, Database: "mysql"}}, 0)
	query := "SELECT `u`.`name` AS `u_name` FROM `users` `u` " +
		"LEFT JOIN `posts` `p` ON `p`.`author_id`=`u`.`id` " +
		"WHERE LOWER(`u`.`email`) = ? AND `u`.`status` = ?"

	analysis, err := a.Analyze(context.Background(), query, nil, 0)
	require.NoError(t, err)
	require.Len(t, analysis.JoinIndexes, 1)
	assert.Equal(t, "posts", analysis.JoinIndexes[0].Table)
	assert.Equal(t, []string{"author_id"}, analysis.JoinIndexes[0].Columns)
	require.Len(t, analysis.MissingIndexes, 1)
	assert.Equal(t, []string{"status"}, analysis.MissingIndexes[0].Columns)

	types := suggestionTypes(a.Suggest(analysis))
	assert.Contains(t, types, SuggestionJoinOptimize)
	assert.Contains(t, types, SuggestionFunctionIndex)
	assert.Contains(t, types, SuggestionMySQLIndexHint)
}

func TestAdvisor_ExplainError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewAdvisor(&stubAnalyzer{err: boom}, 0).Analyze(context.Background(), "SELECT 1", nil, 0)
	assert.ErrorIs(t, err, boom)
}

func TestSuggestion_String(t *testing.T) {
	s := Suggestion{Severity: SeverityWarning, Message: "full scan"}
	assert.Equal(t, "warning: full scan", s.String())
	s.SQL = "ANALYZE;"
	assert.Equal(t, "warning: full scan\n  Fix: ANALYZE;", s.String())
}

// ============================================================================
// Database hints
// ============================================================================

func TestDatabaseHints(t *testing.T) {
	t.Run("postgres cache ratio", func(t *testing.T) {
		s := databaseHints(&Analysis{QueryPlan: &analyzer.QueryPlan{Database: "postgres", BuffersHit: 50, BuffersMiss: 50}})
		require.Len(t, s, 1)
		assert.Equal(t, SuggestionPostgresCache, s[0].Type)
		assert.Contains(t, s[0].Message, "50.0%")
	})

	t.Run("postgres healthy cache", func(t *testing.T) {
		assert.Empty(t, databaseHints(&Analysis{QueryPlan: &analyzer.QueryPlan{Database: "postgres", BuffersHit: 99, BuffersMiss: 1}}))
	})

	t.Run("mysql examined rows", func(t *testing.T) {
		s := databaseHints(&Analysis{
			Table:     "users",
			QueryPlan: &analyzer.QueryPlan{Database: "mysql", RowsExamined: 50000, RowsProduced: 10},
		})
		require.Len(t, s, 1)
		assert.Equal(t, SuggestionMySQLOptimize, s[0].Type)
		assert.Equal(t, "OPTIMIZE TABLE users;", s[0].SQL)
		assert.Contains(t, s[0].Message, "5000x")
	})

	t.Run("unknown database", func(t *testing.T) {
		assert.Nil(t, databaseHints(&Analysis{QueryPlan: &analyzer.QueryPlan{FullScan: true}}))
	})
}
