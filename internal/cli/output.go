// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// statement is the rendered form of a query document.
type statement struct {
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params,omitempty"`
	Args   []any          `json:"args,omitempty"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeStatement prints the SQL followed by one comment line per parameter.
func writeStatement(w io.Writer, format string, st statement) error {
	if format == "json" {
		return writeJSON(w, st)
	}

	var sb strings.Builder
	sb.WriteString(st.SQL)
	sb.WriteByte('\n')
	if st.Args != nil {
		for i, a := range st.Args {
			fmt.Fprintf(&sb, "-- [%d] = %s\n", i+1, literal(a))
		}
	} else {
		keys := make([]string, 0, len(st.Params))
		for k := range st.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "-- :%s = %s\n", k, literal(st.Params[k]))
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func literal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
