// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package optimizer

import (
	"regexp"
	"strings"
)

// Condition is one column comparison found in a WHERE clause.
type Condition struct {
	Column   string
	Operator string
	Function string // wrapping function, upper-cased, e.g. LOWER
}

var (
	identQuotes = strings.NewReplacer(`"`, "", "`", "", "[", "", "]", "")
	fromTable   = regexp.MustCompile(`\bfrom\s+([a-z_][a-z0-9_]*)\b`)
	funcCond    = regexp.MustCompile(`([a-z_][a-z0-9_]*)\s*\(\s*(?:[a-z_][a-z0-9_]*\.)?([a-z_][a-z0-9_]*)\s*\)\s*(=|!=|<>|>=|<=|>|<|\blike\b|\bin\b|\bnot\s+in\b|\bbetween\b)`)
	simpleCond  = regexp.MustCompile(`([a-z_][a-z0-9_]*)\s*(=|!=|<>|>=|<=|>|<|\blike\b|\bilike\b|\bin\b|\bnot\s+in\b|\bbetween\b|\bis\b)`)
	joinOn      = regexp.MustCompile(`join\s+([a-z_][a-z0-9_]*)(?:\s+(?:as\s+)?([a-z_][a-z0-9_]*))?\s+on\s+([a-z_][a-z0-9_.]+)\s*=\s*([a-z_][a-z0-9_.]+)`)
	selectItem  = regexp.MustCompile(`^([a-z_][a-z0-9_.]*)(?:\s+as\s+[a-z_][a-z0-9_]*)?$`)
)

var sqlKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "null": true,
	"true": true, "false": true, "case": true, "when": true,
	"then": true, "else": true, "end": true, "exists": true,
	"where": true, "on": true,
}

// normalize lower-cases sql and strips identifier quoting so rendered
// statements of every dialect read alike.
func normalize(sql string) string {
	return identQuotes.Replace(strings.ToLower(strings.TrimSpace(sql)))
}

func extractTableName(sql string) string {
	if m := fromTable.FindStringSubmatch(sql); m != nil {
		return m[1]
	}
	return ""
}

// whereText returns the WHERE clause body without trailing clauses.
func whereText(sql string) string {
	i := strings.Index(sql, " where ")
	if i < 0 {
		return ""
	}
	where := sql[i+len(" where "):]
	for _, term := range []string{" group by", " order by", " having", " limit", " offset", " fetch", " for update", ";"} {
		if j := strings.Index(where, term); j >= 0 {
			where = where[:j]
		}
	}
	return strings.TrimSpace(where)
}

// ParseConditions returns the column comparisons in the WHERE clause of
// sql. Functions are reported once with their argument column.
func ParseConditions(sql string) []Condition {
	where := whereText(normalize(sql))
	if where == "" {
		return nil
	}

	var conds []Condition
	for _, m := range funcCond.FindAllStringSubmatch(where, -1) {
		if sqlKeywords[m[2]] || sqlKeywords[m[1]] {
			continue
		}
		conds = append(conds, Condition{Column: m[2], Operator: normalizeOperator(m[3]), Function: strings.ToUpper(m[1])})
	}
	rest := funcCond.ReplaceAllString(where, "")
	for _, m := range simpleCond.FindAllStringSubmatch(rest, -1) {
		if sqlKeywords[m[1]] {
			continue
		}
		conds = append(conds, Condition{Column: m[1], Operator: normalizeOperator(m[2])})
	}
	return conds
}

func normalizeOperator(op string) string {
	op = strings.Join(strings.Fields(strings.ToUpper(op)), " ")
	switch op {
	case "<>":
		return "!="
	case "NOT IN":
		return "NOT_IN"
	}
	return op
}

func whereColumns(sql string) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, c := range ParseConditions(sql) {
		if c.Function == "" && !seen[c.Column] {
			seen[c.Column] = true
			cols = append(cols, c.Column)
		}
	}
	return cols
}

func functionConditions(sql string) []Condition {
	var out []Condition
	for _, c := range ParseConditions(sql) {
		if c.Function != "" {
			out = append(out, c)
		}
	}
	return out
}

// joinIndexes recommends an index on the joined table's side of every
// equality join.
func joinIndexes(sql string) []IndexRecommendation {
	var recs []IndexRecommendation
	for _, m := range joinOn.FindAllStringSubmatch(sql, -1) {
		table, alias := m[1], m[2]
		if alias == "" || sqlKeywords[alias] {
			alias = table
		}
		for _, side := range []string{m[3], m[4]} {
			qualifier, column, ok := strings.Cut(side, ".")
			if ok && qualifier == alias {
				recs = append(recs, IndexRecommendation{
					Table:   table,
					Columns: []string{column},
					Reason:  "join condition",
				})
				break
			}
		}
	}
	return recs
}

// selectColumns returns the plain columns of the select list, or ["*"]
// for SELECT *. Expressions are skipped.
func selectColumns(sql string) []string {
	i := strings.Index(sql, "select ")
	if i < 0 {
		return nil
	}
	body := sql[i+len("select "):]
	j := strings.Index(body, " from ")
	if j < 0 {
		return nil
	}
	body = strings.TrimPrefix(strings.TrimSpace(body[:j]), "distinct ")
	if body == "*" {
		return []string{"*"}
	}

	var cols []string
	for _, part := range strings.Split(body, ",") {
		m := selectItem.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		col := m[1]
		if k := strings.LastIndex(col, "."); k >= 0 {
			col = col[k+1:]
		}
		if col != "*" && !sqlKeywords[col] {
			cols = append(cols, col)
		}
	}
	return cols
}
