// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/coregx/quarry/internal/metadata"
)

// blogRegistry loads the shared blog schema: User, Profile, Post, Tag and
// the Content/Photo/Video inheritance tree.
func blogRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	r := metadata.NewRegistry()
	require.NoError(t, r.LoadYAMLFile("../metadata/testdata/blog.yaml"))
	require.NoError(t, r.Build())
	return r
}

// renderDB returns a render-only connection with the blog schema.
func renderDB(t *testing.T, dialect string, opts ...Option) *DB {
	t.Helper()
	db, err := New(dialect, append([]Option{WithMetadata(blogRegistry(t))}, opts...)...)
	require.NoError(t, err)
	return db
}

// mockDB returns a postgres connection backed by sqlmock.
func mockDB(t *testing.T, opts ...Option) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db, err := WrapDB(sqlDB, "postgres", append([]Option{WithMetadata(blogRegistry(t))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func mustQuery(t *testing.T, b Builder) string {
	t.Helper()
	sql, err := b.GetQuery()
	require.NoError(t, err)
	return sql
}

// whereOf returns the part of a rendered statement after WHERE.
func whereOf(t *testing.T, b Builder) string {
	t.Helper()
	parts := strings.SplitN(mustQuery(t, b), " WHERE ", 2)
	require.Len(t, parts, 2, "statement has no WHERE clause")
	return parts[1]
}
