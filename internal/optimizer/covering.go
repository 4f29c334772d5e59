// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package optimizer

// CoveringIndexAnalysis reports whether one index could hold every column
// a statement reads.
type CoveringIndexAnalysis struct {
	Recommended bool
	Columns     []string // WHERE columns first, then selected columns
	Benefit     string
}

// AnalyzeCoveringIndex inspects a SELECT statement. Two to five columns
// with at least one filter column qualify.
func AnalyzeCoveringIndex(sql string) *CoveringIndexAnalysis {
	sql = normalize(sql)
	where := whereColumns(sql)
	selected := selectColumns(sql)

	if len(selected) == 1 && selected[0] == "*" {
		return &CoveringIndexAnalysis{Benefit: "SELECT * cannot be covered by an index"}
	}

	cols := append([]string(nil), where...)
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	for _, c := range selected {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}

	switch {
	case len(where) == 0:
		return &CoveringIndexAnalysis{Benefit: "no WHERE clause to benefit from an index"}
	case len(cols) < 2:
		return &CoveringIndexAnalysis{Benefit: "too few columns for a covering index"}
	case len(cols) > 5:
		return &CoveringIndexAnalysis{Benefit: "too many columns, a wide index would be inefficient"}
	}
	return &CoveringIndexAnalysis{
		Recommended: true,
		Columns:     cols,
		Benefit:     "index-only scan without table access",
	}
}
