// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"strings"
)

const (
	// tokenDelimiters separate property tokens in raw fragments.
	tokenDelimiters = " =(),"
	tokenLeading    = " =("
	tokenTrailing   = " =),"
)

// replacePropertyNames rewrites property references such as u.firstName in a
// raw fragment to escaped column references such as "u"."first_name".
// Quoted string literals and function names are left alone.
func (rc *renderContext) replacePropertyNames(b *QueryBuilder, statement string) string {
	for _, alias := range b.expr.Aliases {
		if !alias.HasMetadata() {
			continue
		}
		prefix, replacementPrefix := "", ""
		if b.expr.PropertyPrefixing {
			prefix = alias.Name + "."
			replacementPrefix = rc.escape(alias.Name) + "."
		}
		replacements := propertyReplacements(alias)
		statement = rewriteTokens(statement, func(token string) (string, bool) {
			if !strings.HasPrefix(token, prefix) {
				return "", false
			}
			column, ok := replacements[token[len(prefix):]]
			if !ok {
				return "", false
			}
			return replacementPrefix + rc.escape(column), true
		})
	}
	return statement
}

// propertyReplacements maps every name a property may be referenced by to
// its column. Later entries win: relation paths, relation key paths,
// column names, property names, property paths.
func propertyReplacements(alias *Alias) map[string]string {
	m := alias.Metadata
	replacements := make(map[string]string)
	for _, rel := range m.Relations {
		if len(rel.JoinColumns) > 0 {
			replacements[rel.PropertyPath()] = rel.JoinColumns[0].DatabaseName
		}
	}
	for _, rel := range m.Relations {
		for _, jc := range rel.JoinColumns {
			if jc.ReferencedColumn == nil {
				continue
			}
			replacements[rel.PropertyPath()+"."+jc.ReferencedColumn.PropertyPath()] = jc.DatabaseName
		}
	}
	for _, c := range m.Columns {
		replacements[c.DatabaseName] = c.DatabaseName
	}
	for _, c := range m.Columns {
		if c.Relation == nil {
			replacements[c.PropertyName] = c.DatabaseName
		}
	}
	for _, c := range m.Columns {
		if c.Relation == nil {
			replacements[c.PropertyPath()] = c.DatabaseName
		}
	}
	return replacements
}

// rewriteTokens calls replace for every token that starts at the beginning
// of s or after one of " =(" and ends at the end of s or before one of
// " =),". Tokens inside single-quoted literals are skipped.
func rewriteTokens(s string, replace func(token string) (string, bool)) string {
	var sb strings.Builder
	sb.Grow(len(s))

	i := 0
	for i < len(s) {
		ch := s[i]
		if ch == '\'' {
			end := closingQuote(s, i)
			sb.WriteString(s[i:end])
			i = end
			continue
		}
		if strings.IndexByte(tokenDelimiters, ch) >= 0 {
			sb.WriteByte(ch)
			i++
			continue
		}

		start := i
		for i < len(s) && s[i] != '\'' && strings.IndexByte(tokenDelimiters, s[i]) < 0 {
			i++
		}
		token := s[start:i]

		leading := start == 0 || strings.IndexByte(tokenLeading, s[start-1]) >= 0
		trailing := i == len(s) || strings.IndexByte(tokenTrailing, s[i]) >= 0
		if leading && trailing {
			if out, ok := replace(token); ok {
				sb.WriteString(out)
				continue
			}
		}
		sb.WriteString(token)
	}
	return sb.String()
}

// closingQuote returns the index just past the literal opened at s[start].
// Doubled quotes inside the literal are escapes.
func closingQuote(s string, start int) int {
	i := start + 1
	for i < len(s) {
		if s[i] == '\'' {
			if i+1 < len(s) && s[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(s)
}
