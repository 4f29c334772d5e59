// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidateFragment(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		wantRule string
	}{
		// legitimate fragments
		{"comparison", "u.age > :age", ""},
		{"function call", "LOWER(u.name) = :name", ""},
		{"and or", "u.status = 'active' OR u.role = :role", ""},
		{"semicolon in literal", "u.note = 'a;b -- c'", ""},
		{"doubled quote literal", "u.name = 'O''Brien; DROP'", ""},
		{"json operator", "data #> '{a,b}' IS NOT NULL", ""},
		{"union in literal", "u.bio = 'UNION SELECT'", ""},

		// rejected fragments
		{"stacked statement", "1=1; DROP TABLE users", "statement separator"},
		{"line comment", "u.name = 'admin'-- AND u.pw = 'x'", "line comment"},
		{"block comment", "u.id = 1 /* x */", "block comment"},
		{"mysql comment", "u.id = 1# AND 1", "mysql comment"},
		{"mysql comment spaced", "u.id = 1 # rest", "mysql comment"},
		{"union select", "u.id = 1 UNION SELECT password FROM users", "union"},
		{"union all", "u.id = 1 union all select 1", "union"},
		{"exec", "EXEC xp_cmdshell 'dir'", "procedure call"},
		{"information schema", "u.id IN (SELECT 1 FROM information_schema.tables)", "metadata access"},
		{"pg sleep", "u.id = 1 AND pg_sleep(5) IS NULL", "timing function"},
		{"waitfor", "1=1 WAITFOR DELAY '0:0:5'", "timing function"},
		{"tautology", "u.name = 'x' OR 1=1", "tautology"},
		{"unterminated literal", "u.name = 'x; DROP", "statement separator"},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateFragment(tt.fragment)
			if tt.wantRule == "" {
				assert.NoError(t, err)
				return
			}
			var unsafe *UnsafeFragmentError
			require.True(t, errors.As(err, &unsafe), "expected UnsafeFragmentError, got %v", err)
			assert.Equal(t, tt.wantRule, unsafe.Rule)
			assert.Equal(t, tt.fragment, unsafe.Fragment)
		})
	}
}

func TestValidator_WithPattern(t *testing.T) {
	v := NewValidator(WithPattern("subquery", `\(\s*SELECT\b`))

	assert.NoError(t, v.ValidateFragment("u.id = :id"))
	err := v.ValidateFragment("u.id IN (select id from admins)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subquery")
}

func BenchmarkValidator_ValidateFragment(b *testing.B) {
	v := NewValidator()
	for i := 0; i < b.N; i++ {
		_ = v.ValidateFragment("u.status = 'active' AND u.age > :age")
	}
}
