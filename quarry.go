// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package quarry renders and executes SQL for entity-mapped tables. Queries
// are built fluently against entity metadata, rendered for one of several
// SQL dialects and run over database/sql with prepared statement caching,
// structured logging and OpenTelemetry tracing.
package quarry

import (
	"github.com/coregx/quarry/internal/analyzer"
	"github.com/coregx/quarry/internal/core"
	"github.com/coregx/quarry/internal/metadata"
	"github.com/coregx/quarry/internal/optimizer"
	"github.com/coregx/quarry/internal/runner"
	"github.com/coregx/quarry/internal/security"
)

type (
	// DB is a dialect-bound connection that creates query builders.
	DB = core.DB
	// Option configures DB.
	Option = core.Option
	// QueryBuilder is the root builder returned by DB.CreateQueryBuilder.
	QueryBuilder = core.QueryBuilder
	// SelectQueryBuilder builds SELECT statements.
	SelectQueryBuilder = core.SelectQueryBuilder
	// InsertQueryBuilder builds INSERT statements.
	InsertQueryBuilder = core.InsertQueryBuilder
	// UpdateQueryBuilder builds UPDATE statements.
	UpdateQueryBuilder = core.UpdateQueryBuilder
	// DeleteQueryBuilder builds DELETE statements.
	DeleteQueryBuilder = core.DeleteQueryBuilder
	// SoftDeleteQueryBuilder builds soft delete and restore statements.
	SoftDeleteQueryBuilder = core.SoftDeleteQueryBuilder
	// RelationQueryBuilder changes relation links.
	RelationQueryBuilder = core.RelationQueryBuilder
	// Builder is implemented by every query builder.
	Builder = core.Builder
	// QueryRunner executes rendered statements.
	QueryRunner = core.QueryRunner
	// Runner is the QueryRunner returned by DB.CreateQueryRunner.
	Runner = runner.Runner
	// Result holds the rows or affected count of an execution.
	Result = runner.Result
	// QueryPlan summarizes an EXPLAIN result.
	QueryPlan = analyzer.QueryPlan
	// Suggestion is an index or tuning recommendation from Advise.
	Suggestion = optimizer.Suggestion

	Filter       = core.Filter
	FindOperator = core.FindOperator
	Params       = core.Params
	Brackets     = core.Brackets
	CTEOptions   = core.CTEOptions
	CTEError     = core.CTEError
	Order        = core.Order
	Nulls        = core.Nulls

	// QueryEvent is passed to query hooks after every execution.
	QueryEvent = core.QueryEvent
	QueryHook  = core.QueryHook

	// Registry holds entity metadata.
	Registry       = metadata.Registry
	EntitySchema   = metadata.EntitySchema
	ColumnSchema   = metadata.ColumnSchema
	RelationSchema = metadata.RelationSchema

	PropertyNotFoundError = core.PropertyNotFoundError
)

const (
	Asc        = core.Asc
	Desc       = core.Desc
	NullsFirst = core.NullsFirst
	NullsLast  = core.NullsLast

	AuditNone   = security.AuditNone
	AuditWrites = security.AuditWrites
	AuditAll    = security.AuditAll
)

var (
	New    = core.New
	Open   = core.Open
	WrapDB = core.WrapDB

	NewRegistry      = metadata.NewRegistry
	NewAuditor       = security.NewAuditor
	NewValidator     = security.NewValidator
	SchemaFromStruct = metadata.SchemaFromStruct

	WithLogger                = core.WithLogger
	WithSlogLogger            = core.WithSlogLogger
	WithSensitiveFields       = core.WithSensitiveFields
	WithTracer                = core.WithTracer
	WithMetadata              = core.WithMetadata
	WithSlowQueryThreshold    = core.WithSlowQueryThreshold
	WithStmtCacheCapacity     = core.WithStmtCacheCapacity
	WithRawFragmentValidation = core.WithRawFragmentValidation
	WithAuditor               = core.WithAuditor
	WithQueryHook             = core.WithQueryHook
	WithMaxOpenConns          = core.WithMaxOpenConns
	WithMaxIdleConns          = core.WithMaxIdleConns

	// Find operators
	Not              = core.Not
	LessThan         = core.LessThan
	LessThanOrEqual  = core.LessThanOrEqual
	MoreThan         = core.MoreThan
	MoreThanOrEqual  = core.MoreThanOrEqual
	Equal            = core.Equal
	Like             = core.Like
	ILike            = core.ILike
	Between          = core.Between
	In               = core.In
	Any              = core.Any
	IsNull           = core.IsNull
	Raw              = core.Raw
	ArrayContains    = core.ArrayContains
	ArrayContainedBy = core.ArrayContainedBy
	ArrayOverlap     = core.ArrayOverlap
	JSONContains     = core.JSONContains
	And              = core.And
	Or               = core.Or
	NewBrackets      = core.NewBrackets
	NewNotBrackets   = core.NewNotBrackets

	IsUniqueViolation     = runner.IsUniqueViolation
	IsForeignKeyViolation = runner.IsForeignKeyViolation
	WithUser              = security.WithUser
	WithRequestID         = security.WithRequestID
)

// Errors returned by builders and execution.
var (
	ErrMissingMainAlias        = core.ErrMissingMainAlias
	ErrDuplicateAlias          = core.ErrDuplicateAlias
	ErrInvalidParameterKey     = core.ErrInvalidParameterKey
	ErrParameterConflict       = core.ErrParameterConflict
	ErrPropertyNotFound        = core.ErrPropertyNotFound
	ErrMissingJoinAlias        = core.ErrMissingJoinAlias
	ErrToManyTraversal         = core.ErrToManyTraversal
	ErrUnsafeFragment          = core.ErrUnsafeFragment
	ErrReadOnlyCTE             = core.ErrReadOnlyCTE
	ErrUpdateValuesMissing     = core.ErrUpdateValuesMissing
	ErrMissingDeleteDateColumn = core.ErrMissingDeleteDateColumn
	ErrReturningUnsupported    = core.ErrReturningUnsupported
	ErrUpsertUnsupported       = core.ErrUpsertUnsupported
	ErrRelationOperation       = core.ErrRelationOperation
	ErrNoConnection            = core.ErrNoConnection
	ErrNoRows                  = core.ErrNoRows
	ErrUnsupportedDialect      = core.ErrUnsupportedDialect
	ErrPlanUnsupported         = analyzer.ErrUnsupported
)
