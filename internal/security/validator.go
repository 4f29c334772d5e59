// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package security checks raw SQL fragments handed to query builders and
// records audit events for executed statements.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator rejects raw where, having and join fragments that carry
// statement-level constructs. Fragments are pieces of one expression, so a
// stacked statement, a comment or a UNION can only come from injected input.
type Validator struct {
	rules []rule
}

type rule struct {
	re   *regexp.Regexp
	name string
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithPattern adds a rule rejecting fragments that match pattern. The
// pattern is matched against the upper-cased fragment.
func WithPattern(name, pattern string) ValidatorOption {
	return func(v *Validator) {
		v.rules = append(v.rules, rule{re: regexp.MustCompile(pattern), name: name})
	}
}

var defaultRules = []struct{ name, pattern string }{
	{"statement separator", `;`},
	{"line comment", `--`},
	{"block comment", `/\*|\*/`},
	{"mysql comment", `#\s`},
	{"union", `\bUNION\b(\s+ALL)?\s+SELECT\b`},
	{"procedure call", `\bEXEC(UTE)?\b|\bXP_\w+|\bSP_EXECUTESQL\b`},
	{"metadata access", `\bINFORMATION_SCHEMA\b|\bPG_CATALOG\b|\bSQLITE_MASTER\b`},
	{"timing function", `\bPG_SLEEP\s*\(|\bBENCHMARK\s*\(|\bWAITFOR\s+DELAY\b|\bSLEEP\s*\(`},
	{"tautology", `\bOR\s+(1\s*=\s*1|'1'\s*=\s*'1'|TRUE)\b`},
}

// NewValidator returns a validator with the default rules plus any added
// by opts.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{rules: make([]rule, 0, len(defaultRules))}
	for _, r := range defaultRules {
		v.rules = append(v.rules, rule{re: regexp.MustCompile(r.pattern), name: r.name})
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// UnsafeFragmentError names the rule a fragment broke.
type UnsafeFragmentError struct {
	Fragment string
	Rule     string
}

func (e *UnsafeFragmentError) Error() string {
	return fmt.Sprintf("fragment %q contains a %s", e.Fragment, e.Rule)
}

// ValidateFragment returns an *UnsafeFragmentError for the first rule the
// fragment breaks. Quoted string literals are not inspected.
func (v *Validator) ValidateFragment(fragment string) error {
	normalized := strings.ToUpper(stripLiterals(fragment))
	for _, r := range v.rules {
		if r.re.MatchString(normalized) {
			return &UnsafeFragmentError{Fragment: fragment, Rule: r.name}
		}
	}
	return nil
}

// stripLiterals blanks the contents of single-quoted literals so values
// such as 'a;b' do not trip the rules. An unterminated literal is kept
// as is, which leaves it to be inspected.
func stripLiterals(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\'' {
			sb.WriteByte(s[i])
			continue
		}
		end := literalEnd(s, i)
		if end < 0 {
			sb.WriteString(s[i:])
			break
		}
		sb.WriteString("''")
		i = end
	}
	return sb.String()
}

// literalEnd returns the index of the quote closing the literal opened at
// start, or -1. Doubled quotes are escapes.
func literalEnd(s string, start int) int {
	for j := start + 1; j < len(s); j++ {
		if s[j] != '\'' {
			continue
		}
		if j+1 < len(s) && s[j+1] == '\'' {
			j++
			continue
		}
		return j
	}
	return -1
}
