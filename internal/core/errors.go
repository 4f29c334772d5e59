// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"errors"
	"fmt"

	"github.com/coregx/quarry/internal/metadata"
)

// Predefined errors returned by query builders. Builders record the first
// error of a fluent chain and return it from GetQuery, GetQueryAndParameters
// and Execute; no SQL is produced once an error is recorded.
var (
	// ErrMissingMainAlias is returned when an alias-dependent call runs before From/Into/Update.
	ErrMissingMainAlias = errors.New("main alias is not set")
	// ErrDuplicateAlias is returned when an explicit alias name is registered twice.
	ErrDuplicateAlias = errors.New("alias is already registered")
	// ErrInvalidParameterKey is returned for parameter names outside [A-Za-z0-9_.].
	ErrInvalidParameterKey = errors.New("parameter key contains invalid characters")
	// ErrFunctionParameter is returned when a function is passed as a parameter value.
	ErrFunctionParameter = errors.New("function parameter is not supported")
	// ErrParameterConflict is returned when merged builders bind one name to different values.
	ErrParameterConflict = errors.New("parameter bound to different values")
	// ErrPropertyNotFound is returned when a property path does not resolve to a column.
	ErrPropertyNotFound = errors.New("property not found")
	// ErrMissingJoinAlias is returned when a where path crosses a relation that was not joined.
	ErrMissingJoinAlias = errors.New("cannot find alias for relation")
	// ErrToManyTraversal is returned when a filter traverses a one-to-many or many-to-many relation.
	ErrToManyTraversal = errors.New("cannot query across to-many relation")
	// ErrInvalidCondition is returned for where inputs of an unsupported type.
	ErrInvalidCondition = errors.New("unsupported where condition")
	// ErrUnsafeFragment is returned when raw fragment validation rejects a where string.
	ErrUnsafeFragment = errors.New("raw SQL fragment rejected")
	// ErrUnknownOperator is returned when the renderer meets an operator it has no rule for.
	ErrUnknownOperator = errors.New("unknown where operator")
	// ErrNestedCTE is returned when a common table expression body declares its own CTEs.
	ErrNestedCTE = errors.New("nested common table expressions are not supported")
	// ErrReadOnlyCTE is returned for a non-select CTE body on a dialect with read-only CTEs.
	ErrReadOnlyCTE = errors.New("only select queries are supported in common table expressions")
	// ErrCTEColumnCount is returned when a CTE column list does not match its select list.
	ErrCTEColumnCount = errors.New("common table expression column count mismatch")
	// ErrCTEUnsupported is returned when the dialect has no WITH support.
	ErrCTEUnsupported = errors.New("common table expressions are not supported")
	// ErrUpdateValuesMissing is returned when an update has nothing to set.
	ErrUpdateValuesMissing = errors.New("cannot perform update query because update values are not defined")
	// ErrMissingDeleteDateColumn is returned by soft delete and restore on entities without a delete date column.
	ErrMissingDeleteDateColumn = errors.New("entity has no delete date column")
	// ErrReturningUnsupported is returned when a returning clause is requested on a dialect without one.
	ErrReturningUnsupported = errors.New("returning clause is not supported")
	// ErrUpsertUnsupported is returned when OrIgnore/OrUpdate is used on a dialect without upsert syntax.
	ErrUpsertUnsupported = errors.New("upsert is not supported")
	// ErrRelationOperation is returned for relation builder operations invalid for the relation type.
	ErrRelationOperation = errors.New("invalid relation operation")
	// ErrNoConnection is returned by Execute on a render-only DB.
	ErrNoConnection = errors.New("no database connection")
	// ErrNoRows is returned by GetRawOne when the query returns no rows.
	ErrNoRows = errors.New("no rows in result set")
	// ErrUnsupportedDialect is returned when an unsupported database dialect is specified.
	ErrUnsupportedDialect = errors.New("unsupported database dialect")
)

// PropertyNotFoundError reports a property path that does not resolve on an entity.
type PropertyNotFoundError struct {
	Path   string
	Entity string
}

func (e *PropertyNotFoundError) Error() string {
	return fmt.Sprintf("property %q was not found in %s; make sure the property name is spelled correctly", e.Path, e.Entity)
}

// Is matches ErrPropertyNotFound.
func (e *PropertyNotFoundError) Is(target error) bool {
	return target == ErrPropertyNotFound
}

// RelationTraversalError reports a filter crossing a to-many relation.
type RelationTraversalError struct {
	Path string
	Type metadata.RelationType
}

func (e *RelationTraversalError) Error() string {
	return fmt.Sprintf("cannot query across %s for property %s", e.Type, e.Path)
}

// Is matches ErrToManyTraversal.
func (e *RelationTraversalError) Is(target error) bool {
	return target == ErrToManyTraversal
}

// CTEError reports an invalid common table expression.
type CTEError struct {
	Alias string
	Err   error
}

func (e *CTEError) Error() string {
	if errors.Is(e.Err, ErrCTEColumnCount) {
		return fmt.Sprintf("cte %s should have the same number of columns as the query", e.Alias)
	}
	return fmt.Sprintf("cte %s: %v", e.Alias, e.Err)
}

func (e *CTEError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with additional context message.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
