// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build integration

// Run with: go test -tags=integration ./internal/runner/...

package runner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "quarry",
			},
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=quarry sslmode=disable", host, port.Port())
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	db.MustExec(`CREATE TABLE "users" ("id" serial PRIMARY KEY, "email" text NOT NULL UNIQUE, "tags" text[])`)
	return db
}

func TestPostgres_Runner(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	r := New(db, 16)
	defer func() { _ = r.Release() }()

	res, err := r.Query(ctx, `INSERT INTO "users"("email") VALUES ($1) RETURNING "id"`, []any{"a@example.com"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.EqualValues(t, 1, res.Records[0]["id"])

	_, err = r.Query(ctx, `INSERT INTO "users"("email") VALUES ($1)`, []any{"a@example.com"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	res, err = r.Query(ctx, `SELECT "email" FROM "users" WHERE "id" = $1`, []any{1})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "a@example.com", res.Records[0]["email"])
}

func TestPostgres_RunnerTransaction(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	r := New(db, 16)
	require.NoError(t, r.StartTransaction(ctx, nil))
	_, err := r.Query(ctx, `INSERT INTO "users"("email") VALUES ($1)`, []any{"tx@example.com"})
	require.NoError(t, err)
	require.NoError(t, r.Rollback())

	res, err := r.Query(ctx, `SELECT COUNT(*) AS "cnt" FROM "users"`, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Records[0]["cnt"])
	require.NoError(t, r.Release())
}
