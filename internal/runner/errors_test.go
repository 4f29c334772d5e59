// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package runner

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

type fakeSQLiteError struct{ code int }

func (e *fakeSQLiteError) Error() string { return fmt.Sprintf("sqlite error %d", e.code) }
func (e *fakeSQLiteError) Code() int     { return e.code }

func TestConstraintClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		unique     bool
		foreignKey bool
		notNull    bool
	}{
		{"nil", nil, false, false, false},
		{"plain", errors.New("connection refused"), false, false, false},
		{"pq unique", &pq.Error{Code: "23505"}, true, false, false},
		{"pq foreign key", &pq.Error{Code: "23503"}, false, true, false},
		{"pq not null", &pq.Error{Code: "23502"}, false, false, true},
		{"pq wrapped", fmt.Errorf("insert user: %w", &pq.Error{Code: "23505"}), true, false, false},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true, false, false},
		{"mysql parent row", &mysql.MySQLError{Number: 1451}, false, true, false},
		{"mysql child row", &mysql.MySQLError{Number: 1452}, false, true, false},
		{"mysql bad null", &mysql.MySQLError{Number: 1048}, false, false, true},
		{"sqlite unique", &fakeSQLiteError{code: 2067}, true, false, false},
		{"sqlite primary key", &fakeSQLiteError{code: 1555}, true, false, false},
		{"sqlite foreign key", &fakeSQLiteError{code: 787}, false, true, false},
		{"sqlite not null", &fakeSQLiteError{code: 1299}, false, false, true},
		{"sqlite message", errors.New("UNIQUE constraint failed: users.email"), true, false, false},
		{"sqlite fk message", errors.New("FOREIGN KEY constraint failed"), false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err), "unique")
			assert.Equal(t, tt.foreignKey, IsForeignKeyViolation(tt.err), "foreign key")
			assert.Equal(t, tt.notNull, IsNotNullViolation(tt.err), "not null")
			assert.Equal(t, tt.unique || tt.foreignKey || tt.notNull, IsConstraintViolation(tt.err))
		})
	}
}
