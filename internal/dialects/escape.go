// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dialects

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// parameterPattern matches :name and :...name references in rendered SQL.
var parameterPattern = regexp.MustCompile(`:(\.\.\.)?([A-Za-z0-9_.]+)`)

// EscapeQueryWithParameters replaces named parameter references in sql with
// positional placeholders of dialect d and returns the matching value list.
//
// Native parameters are bound first, in key order, and are not referenced
// from the SQL text. Named references are then consumed left to right:
//
//	:name      binds a single value (slices bind as arrays where supported)
//	:...name   spreads a slice into one placeholder per element, or NULL
//	           when the slice is empty
//
// References to names absent from params are left untouched, which keeps
// casts such as ::jsonb intact.
func EscapeQueryWithParameters(d Dialect, sql string, params, native map[string]any) (string, []any) {
	f := d.Features()
	escaped := make([]any, 0, len(params)+len(native))
	for _, key := range sortedKeys(native) {
		escaped = append(escaped, d.BindValue(native[key]))
	}
	if len(params) == 0 {
		return sql, escaped
	}

	positions := make(map[string]int)
	result := parameterPattern.ReplaceAllStringFunc(sql, func(match string) string {
		sub := parameterPattern.FindStringSubmatch(match)
		spread, key := sub[1] != "", sub[2]
		value, ok := params[key]
		if !ok {
			return match
		}

		if spread || (!f.ArrayParameters && isList(value)) {
			items := listItems(value)
			if len(items) == 0 {
				// IN () is a syntax error everywhere; IN (NULL) matches nothing
				return "NULL"
			}
			placeholders := make([]string, len(items))
			for i, item := range items {
				escaped = append(escaped, d.BindValue(item))
				placeholders[i] = d.Placeholder(len(escaped))
			}
			return strings.Join(placeholders, ", ")
		}

		if f.ReusePlaceholders {
			if pos, seen := positions[key]; seen {
				return d.Placeholder(pos)
			}
		}
		escaped = append(escaped, d.BindValue(value))
		positions[key] = len(escaped)
		return d.Placeholder(len(escaped))
	})
	return result, escaped
}

// Escape quotes a possibly schema-qualified identifier, quoting each dotted part.
func Escape(d Dialect, identifier string) string {
	parts := strings.Split(identifier, ".")
	for i, part := range parts {
		parts[i] = d.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func listItems(v any) []any {
	if !isList(v) {
		return []any{v}
	}
	rv := reflect.ValueOf(v)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
