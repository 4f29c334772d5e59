// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Mask replaces parameter values the Sanitizer considers sensitive.
const Mask = "***REDACTED***"

// DefaultSensitiveFields are column name fragments whose bound values are
// never written to logs.
var DefaultSensitiveFields = []string{
	"password", "passwd", "pwd",
	"token", "api_key", "apikey", "api_token",
	"secret", "authorization",
	"credit_card", "card_number", "cvv", "cvc",
	"ssn", "private_key",
}

// comparison matches `column <op> placeholder` for every placeholder style
// the dialects emit: $1, ?, @p1, @param0, :1.
var comparison = regexp.MustCompile(`(?i)([A-Za-z0-9_]+)["\x60\]]?\s*(?:=|<>|!=|\bLIKE\b|\bILIKE\b)\s*(\$\d+|\?|@p\d+|@param\d+|:\d+)`)

var placeholder = regexp.MustCompile(`\$\d+|\?|@p\d+|@param\d+|:\d+`)

// Sanitizer masks positional parameters bound to sensitive columns before
// they reach a log line.
type Sanitizer struct {
	fields   []string
	patterns []*regexp.Regexp
}

// NewSanitizer returns a sanitizer for the given column name fragments, or
// for DefaultSensitiveFields when none are given.
func NewSanitizer(fields ...string) *Sanitizer {
	if len(fields) == 0 {
		fields = DefaultSensitiveFields
	}
	patterns := make([]*regexp.Regexp, len(fields))
	for i, f := range fields {
		patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(f) + `\b`)
	}
	return &Sanitizer{fields: fields, patterns: patterns}
}

func (s *Sanitizer) sensitive(name string) bool {
	for _, p := range s.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// MaskParams returns a copy of params with sensitive values replaced by
// Mask. Parameters compared or assigned to a sensitive column are masked by
// position. When the statement names a sensitive column but no position can
// be attributed, as in INSERT column lists, every string parameter is masked.
// params itself is never modified.
func (s *Sanitizer) MaskParams(sql string, params []any) []any {
	if len(params) == 0 || !s.sensitive(sql) {
		return params
	}

	masked := make([]any, len(params))
	copy(masked, params)

	positions := placeholderPositions(sql)
	found := false
	for _, m := range comparison.FindAllStringSubmatchIndex(sql, -1) {
		column := sql[m[2]:m[3]]
		if !s.sensitive(column) {
			continue
		}
		idx, ok := positions[m[4]]
		if ok && idx < len(masked) {
			masked[idx] = Mask
			found = true
		}
	}
	if found {
		return masked
	}

	for i, p := range masked {
		if _, ok := p.(string); ok {
			masked[i] = Mask
		}
	}
	return masked
}

// placeholderPositions maps the byte offset of each placeholder in sql to
// the index of the parameter it binds.
func placeholderPositions(sql string) map[int]int {
	out := make(map[int]int)
	question := 0
	for _, loc := range placeholder.FindAllStringIndex(sql, -1) {
		tok := sql[loc[0]:loc[1]]
		switch {
		case tok == "?":
			out[loc[0]] = question
			question++
		case strings.HasPrefix(tok, "@param"):
			n, _ := strconv.Atoi(tok[len("@param"):])
			out[loc[0]] = n
		case strings.HasPrefix(tok, "@p"):
			n, _ := strconv.Atoi(tok[2:])
			out[loc[0]] = n - 1
		default: // $n, :n
			n, _ := strconv.Atoi(tok[1:])
			out[loc[0]] = n - 1
		}
	}
	return out
}

// FormatParams renders params for a log line, truncating long values.
func (s *Sanitizer) FormatParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = formatValue(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	str := fmt.Sprintf("%v", v)
	const maxLen = 100
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}
