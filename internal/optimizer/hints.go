// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package optimizer

import "fmt"

// databaseHints returns suggestions that only apply to the database that
// produced the plan.
func databaseHints(analysis *Analysis) []Suggestion {
	switch analysis.QueryPlan.Database {
	case "postgres":
		return postgresHints(analysis)
	case "mysql":
		return mysqlHints(analysis)
	case "sqlite":
		return sqliteHints(analysis)
	}
	return nil
}

func tableOr(analysis *Analysis, fallback string) string {
	if analysis.Table != "" {
		return analysis.Table
	}
	return fallback
}

func postgresHints(analysis *Analysis) []Suggestion {
	var out []Suggestion
	plan := analysis.QueryPlan

	if plan.FullScan {
		out = append(out, Suggestion{
			Type:     SuggestionPostgresStats,
			Severity: SeverityInfo,
			Message:  "full scan detected, table statistics may be stale",
			SQL:      fmt.Sprintf("ANALYZE %s;", tableOr(analysis, "table_name")),
		})
	}
	if total := plan.BuffersHit + plan.BuffersMiss; plan.BuffersMiss > 0 && total > 0 {
		ratio := float64(plan.BuffersHit) / float64(total)
		if ratio < 0.90 {
			out = append(out, Suggestion{
				Type:     SuggestionPostgresCache,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("buffer cache hit ratio %.1f%%, consider raising shared_buffers", ratio*100),
			})
		}
	}
	return out
}

func mysqlHints(analysis *Analysis) []Suggestion {
	var out []Suggestion
	plan := analysis.QueryPlan

	if plan.FullScan && len(analysis.MissingIndexes) > 0 {
		out = append(out, Suggestion{
			Type:     SuggestionMySQLIndexHint,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("after creating the index, USE INDEX (%s) forces its use", analysis.MissingIndexes[0].IndexName()),
		})
	}
	if plan.RowsExamined > 10000 && plan.RowsExamined > plan.RowsProduced*10 {
		produced := max(plan.RowsProduced, 1)
		out = append(out, Suggestion{
			Type:     SuggestionMySQLOptimize,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("examining %dx more rows than produced", plan.RowsExamined/produced),
			SQL:      fmt.Sprintf("OPTIMIZE TABLE %s;", tableOr(analysis, "table_name")),
		})
	}
	return out
}

func sqliteHints(analysis *Analysis) []Suggestion {
	var out []Suggestion
	if analysis.QueryPlan.FullScan {
		out = append(out, Suggestion{
			Type:     SuggestionSQLiteStats,
			Severity: SeverityInfo,
			Message:  "full scan detected, ANALYZE gives the planner statistics",
			SQL:      "ANALYZE;",
		})
	}
	if analysis.SlowQuery {
		out = append(out, Suggestion{
			Type:     SuggestionSQLiteWAL,
			Severity: SeverityInfo,
			Message:  "slow query, WAL mode reduces reader and writer contention",
			SQL:      "PRAGMA journal_mode = WAL;",
		})
	}
	return out
}
