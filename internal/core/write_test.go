// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/quarry/internal/metadata"
)

// ============================================================================
// Insert
// ============================================================================

func TestInsert_Entity(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("single row", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Insert().Into("Tag").Values(Filter{"id": 1, "name": "go"})
		assert.Equal(t, `INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1)`, mustQuery(t, qb))

		sql, args, err := qb.GetQueryAndParameters()
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "tags"("id", "name") VALUES ($1, $2)`, sql)
		assert.Equal(t, []any{1, "go"}, args)
	})

	t.Run("missing values", func(t *testing.T) {
		rows := []map[string]any{{"id": 1, "name": "go"}, {"id": 2}}
		qb := db.CreateQueryBuilder().Insert().Into("Tag").Values(rows)
		assert.Equal(t,
			`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1), (:orm_param_2, DEFAULT)`,
			mustQuery(t, qb))

		lite := renderDB(t, "sqlite")
		qb = lite.CreateQueryBuilder().Insert().Into("Tag").Values(rows)
		assert.Equal(t,
			`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1), (:orm_param_2, NULL)`,
			mustQuery(t, qb))
	})

	t.Run("generated key is skipped", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Insert().Into("Post").
			Values(Filter{"title": "Hi", "status": "draft", "author": Filter{"id": 7}})
		assert.Equal(t,
			`INSERT INTO "posts"("title", "status", "author_id") VALUES (:orm_param_0, :orm_param_1, :orm_param_2)`,
			mustQuery(t, qb))
		assert.Equal(t, Params{"orm_param_0": "Hi", "orm_param_1": "draft", "orm_param_2": 7}, qb.GetParameters())
	})

	t.Run("explicit generated value is kept", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Insert().Into("Post").Values(Filter{"id": 9, "title": "Hi", "author": 7})
		assert.Equal(t,
			`INSERT INTO "posts"("id", "title", "status", "author_id") VALUES (:orm_param_0, :orm_param_1, DEFAULT, :orm_param_2)`,
			mustQuery(t, qb))
	})

	t.Run("embedded, version and defaults", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Insert().Into("User").
			Values(Filter{"name": "Ann", "email": "ann@example.com", "address": Filter{"city": "Oslo"}})
		assert.Equal(t,
			`INSERT INTO "users"("name", "email", "status", "created_at", "updated_at", "deleted_at", "version", "address_street", "address_city", "profile_id") `+
				`VALUES (:orm_param_0, :orm_param_1, DEFAULT, DEFAULT, DEFAULT, DEFAULT, 1, DEFAULT, :orm_param_2, DEFAULT)`,
			mustQuery(t, qb))
	})

	t.Run("column subset", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Insert().Into("User", "name", "address.city").
			Values(Filter{"name": "Ann", "email": "ignored", "address": Filter{"city": "Oslo"}})
		assert.Equal(t,
			`INSERT INTO "users"("name", "address_city") VALUES (:orm_param_0, :orm_param_1)`,
			mustQuery(t, qb))
	})

	t.Run("raw value", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Insert().Into("Tag").
			Values(Filter{"id": 1, "name": func() string { return "UPPER('go')" }})
		assert.Equal(t, `INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, UPPER('go'))`, mustQuery(t, qb))
	})

	t.Run("discriminator value", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Insert().Into("Photo").Values(Filter{"id": 1, "title": "sunset", "size": 3})
		sql := mustQuery(t, qb)
		assert.Contains(t, sql, `"kind"`)
		assert.Contains(t, sql, `INSERT INTO "contents"(`)

		var values []any
		for _, v := range qb.GetParameters() {
			values = append(values, v)
		}
		assert.Contains(t, values, "photo")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := db.CreateQueryBuilder().Insert().Into("Tag").Values(42).GetQuery()
		assert.Error(t, err)
	})
}

func TestInsert_Table(t *testing.T) {
	db := renderDB(t, "postgres")

	qb := db.CreateQueryBuilder().Insert().Into("audit_log").Values(Filter{"b": 2, "a": 1})
	assert.Equal(t, `INSERT INTO "audit_log"("a", "b") VALUES (:orm_param_0, :orm_param_1)`, mustQuery(t, qb))

	qb = db.CreateQueryBuilder().Insert().Into("audit_log").Values(Filter{"at": func() string { return "NOW()" }})
	assert.Equal(t, `INSERT INTO "audit_log"("at") VALUES (NOW())`, mustQuery(t, qb))

	qb = db.CreateQueryBuilder().Insert().Into("audit_log").Values(Filter{})
	assert.Equal(t, `INSERT INTO "audit_log" DEFAULT VALUES`, mustQuery(t, qb))

	my := renderDB(t, "mysql")
	qb = my.CreateQueryBuilder().Insert().Into("audit_log").Values(Filter{})
	assert.Equal(t, "INSERT INTO `audit_log`() VALUES ()", mustQuery(t, qb))
}

func TestInsert_ClientSideUUID(t *testing.T) {
	r := metadata.NewRegistry().Register(metadata.EntitySchema{
		Name:  "Token",
		Table: "tokens",
		Columns: []metadata.ColumnSchema{
			{Property: "id", Primary: true, Generated: true, Type: "uuid"},
			{Property: "value"},
		},
	})
	require.NoError(t, r.Build())

	lite, err := New("sqlite", WithMetadata(r))
	require.NoError(t, err)
	sql, args, err := lite.CreateQueryBuilder().Insert().Into("Token").Values(Filter{"value": "x"}).GetQueryAndParameters()
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "tokens"("id", "value") VALUES (?, ?)`, sql)
	require.Len(t, args, 2)
	_, err = uuid.Parse(args[0].(string))
	assert.NoError(t, err)

	pg, err := New("postgres", WithMetadata(r))
	require.NoError(t, err)
	sql, err = pg.CreateQueryBuilder().Insert().Into("Token").Values(Filter{"value": "x"}).GetQuery()
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "tokens"("value") VALUES (:orm_param_0)`, sql)
}

func TestInsert_Upsert(t *testing.T) {
	values := Filter{"id": 1, "name": "go"}

	tests := []struct {
		name    string
		dialect string
		build   func(*InsertQueryBuilder) *InsertQueryBuilder
		want    string
	}{
		{"postgres update", "postgres",
			func(ib *InsertQueryBuilder) *InsertQueryBuilder { return ib.OrUpdate([]string{"name"}) },
			`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1) ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name"`},
		{"postgres explicit target", "postgres",
			func(ib *InsertQueryBuilder) *InsertQueryBuilder { return ib.OrUpdate([]string{"id"}, "name") },
			`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1) ON CONFLICT ("name") DO UPDATE SET "id" = EXCLUDED."id"`},
		{"postgres ignore", "postgres",
			func(ib *InsertQueryBuilder) *InsertQueryBuilder { return ib.OrIgnore() },
			`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1) ON CONFLICT DO NOTHING`},
		{"sqlite update", "sqlite",
			func(ib *InsertQueryBuilder) *InsertQueryBuilder { return ib.OrUpdate([]string{"name"}) },
			`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1) ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name"`},
		{"mysql ignore", "mysql",
			func(ib *InsertQueryBuilder) *InsertQueryBuilder { return ib.OrIgnore() },
			"INSERT IGNORE INTO `tags`(`id`, `name`) VALUES (:orm_param_0, :orm_param_1)"},
		{"mysql update", "mysql",
			func(ib *InsertQueryBuilder) *InsertQueryBuilder { return ib.OrUpdate([]string{"name"}) },
			"INSERT INTO `tags`(`id`, `name`) VALUES (:orm_param_0, :orm_param_1) ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := renderDB(t, tt.dialect)
			qb := tt.build(db.CreateQueryBuilder().Insert().Into("Tag").Values(values))
			assert.Equal(t, tt.want, mustQuery(t, qb))
		})
	}

	for _, dialect := range []string{"mssql", "oracle"} {
		t.Run(dialect+" unsupported", func(t *testing.T) {
			db := renderDB(t, dialect)
			_, err := db.CreateQueryBuilder().Insert().Into("Tag").Values(values).OrIgnore().GetQuery()
			assert.ErrorIs(t, err, ErrUpsertUnsupported)
		})
	}
}

func TestInsert_Returning(t *testing.T) {
	values := Filter{"id": 1, "name": "go"}

	t.Run("postgres", func(t *testing.T) {
		db := renderDB(t, "postgres")
		qb := db.CreateQueryBuilder().Insert().Into("Tag").Values(values).Returning("id", "now() AS at")
		assert.Equal(t,
			`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1) RETURNING "id", now() AS at`,
			mustQuery(t, qb))
	})

	t.Run("mssql output", func(t *testing.T) {
		db := renderDB(t, "mssql")
		qb := db.CreateQueryBuilder().Insert().Into("Tag").Values(values).Returning("id")
		assert.Equal(t,
			`INSERT INTO [tags]([id], [name]) OUTPUT INSERTED.[id] VALUES (:orm_param_0, :orm_param_1)`,
			mustQuery(t, qb))
	})

	t.Run("oracle into", func(t *testing.T) {
		db := renderDB(t, "oracle")
		qb := db.CreateQueryBuilder().Insert().Into("Tag").Values(values).Returning("id")
		assert.Equal(t,
			`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1) RETURNING "id" INTO :orm_param_2`,
			mustQuery(t, qb))
		assert.IsType(t, sql.Out{}, qb.GetParameters()["orm_param_2"])
	})

	t.Run("oracle into binds raw expressions", func(t *testing.T) {
		tests := []struct {
			name      string
			returning []string
			want      string
			outs      []string
		}{
			{
				"column and raw",
				[]string{"id", "SYSDATE"},
				`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1) RETURNING "id", SYSDATE INTO :orm_param_2, :orm_param_3`,
				[]string{"orm_param_2", "orm_param_3"},
			},
			{
				"raw only",
				[]string{"SYSDATE"},
				`INSERT INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1) RETURNING SYSDATE INTO :orm_param_2`,
				[]string{"orm_param_2"},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				db := renderDB(t, "oracle")
				qb := db.CreateQueryBuilder().Insert().Into("Tag").Values(values).Returning(tt.returning...)
				assert.Equal(t, tt.want, mustQuery(t, qb))

				params := qb.GetParameters()
				assert.Len(t, params, 2+len(tt.returning))
				for _, name := range tt.outs {
					assert.IsType(t, sql.Out{}, params[name])
				}
			})
		}
	})

	t.Run("oracle insert all", func(t *testing.T) {
		db := renderDB(t, "oracle")
		rows := []map[string]any{{"id": 1, "name": "go"}, {"id": 2, "name": "rust"}}
		qb := db.CreateQueryBuilder().Insert().Into("Tag").Values(rows)
		assert.Equal(t,
			`INSERT ALL INTO "tags"("id", "name") VALUES (:orm_param_0, :orm_param_1) INTO "tags"("id", "name") VALUES (:orm_param_2, :orm_param_3) SELECT 1 FROM DUAL`,
			mustQuery(t, qb))

		_, err := qb.Returning("id").GetQuery()
		assert.ErrorIs(t, err, ErrReturningUnsupported)
	})

	t.Run("mysql", func(t *testing.T) {
		db := renderDB(t, "mysql")
		_, err := db.CreateQueryBuilder().Insert().Into("Tag").Values(values).Returning("id").GetQuery()
		assert.ErrorIs(t, err, ErrReturningUnsupported)
	})

	t.Run("hydration", func(t *testing.T) {
		db := renderDB(t, "postgres")
		qb := db.CreateQueryBuilder().Insert().Into("Post").Values(Filter{"title": "Hi"})
		sql, _, err := qb.render(true)
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "posts"("title", "status", "author_id") VALUES ($1, DEFAULT, DEFAULT) RETURNING "id"`, sql)

		qb = db.CreateQueryBuilder().Insert().Into("User").Values(Filter{"name": "Ann"})
		sql, _, err = qb.render(true)
		require.NoError(t, err)
		assert.Contains(t, sql, `RETURNING "id", "created_at", "updated_at", "version"`)

		my := renderDB(t, "mysql")
		sql, _, err = my.CreateQueryBuilder().Insert().Into("Post").Values(Filter{"title": "Hi"}).render(true)
		require.NoError(t, err)
		assert.NotContains(t, sql, "RETURNING")
	})
}

// ============================================================================
// Update
// ============================================================================

func TestUpdate(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("set parameters follow where parameters", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Update("Tag").Set(Filter{"name": "rust"}).Where(Filter{"id": 1})
		assert.Equal(t, `UPDATE "tags" SET "name" = :orm_param_1 WHERE "id" = :orm_param_0`, mustQuery(t, qb))
		assert.Equal(t, Params{"orm_param_0": 1, "orm_param_1": "rust"}, qb.GetParameters())

		sql, args, err := qb.GetQueryAndParameters()
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "tags" SET "name" = $1 WHERE "id" = $2`, sql)
		assert.Equal(t, []any{"rust", 1}, args)
	})

	t.Run("version and update date", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Update("User").
			Set(Filter{"name": "Ann", "address": Filter{"city": "Rome"}}).
			WhereInIds(5)
		assert.Equal(t,
			`UPDATE "users" SET "address_city" = :orm_param_1, "name" = :orm_param_2, "version" = "version" + 1, "updated_at" = CURRENT_TIMESTAMP WHERE "id" IN (:orm_param_0)`,
			mustQuery(t, qb))
	})

	t.Run("explicit version is not bumped", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Update("User").
			Set(Filter{"version": func() string { return "version + 5" }}).
			WhereInIds(5)
		assert.Equal(t,
			`UPDATE "users" SET "version" = version + 5, "updated_at" = CURRENT_TIMESTAMP WHERE "id" IN (:orm_param_0)`,
			mustQuery(t, qb))
	})

	t.Run("relation value", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Update("Post").Set(Filter{"author": Filter{"id": 3}}).WhereInIds(1)
		assert.Equal(t, `UPDATE "posts" SET "author_id" = :orm_param_1 WHERE "id" IN (:orm_param_0)`, mustQuery(t, qb))
	})

	t.Run("table without metadata", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Update("audit_log").Set(Filter{"seen": true}).Where("id = :id", Params{"id": 4})
		assert.Equal(t, `UPDATE "audit_log" SET "seen" = :orm_param_0 WHERE id = :id`, mustQuery(t, qb))
	})

	t.Run("inheritance child", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Update("Photo").Set(Filter{"title": "x"})
		assert.Equal(t,
			`UPDATE "contents" SET "title" = :orm_param_0 WHERE "kind" IN (:...discriminatorColumnValues)`,
			mustQuery(t, qb))

		sql, args, err := qb.GetQueryAndParameters()
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "contents" SET "title" = $1 WHERE "kind" IN ($2)`, sql)
		assert.Equal(t, []any{"x", "photo"}, args)
	})

	t.Run("returning", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Update("Tag").Set(Filter{"name": "rust"}).Where(Filter{"id": 1}).Returning("id", "name")
		assert.Equal(t,
			`UPDATE "tags" SET "name" = :orm_param_1 WHERE "id" = :orm_param_0 RETURNING "id", "name"`,
			mustQuery(t, qb))

		ms := renderDB(t, "mssql")
		qb = ms.CreateQueryBuilder().Update("Tag").Set(Filter{"name": "rust"}).Where(Filter{"id": 1}).Returning("name")
		assert.Equal(t,
			`UPDATE [tags] SET [name] = :orm_param_1 OUTPUT INSERTED.[name] WHERE [id] = :orm_param_0`,
			mustQuery(t, qb))

		my := renderDB(t, "mysql")
		_, err := my.CreateQueryBuilder().Update("Tag").Set(Filter{"name": "rust"}).Returning("id").GetQuery()
		assert.ErrorIs(t, err, ErrReturningUnsupported)
	})

	t.Run("hydration", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Update("User").Set(Filter{"name": "Ann"}).WhereInIds(1)
		sql, _, err := qb.render(true)
		require.NoError(t, err)
		assert.Equal(t,
			`UPDATE "users" SET "name" = $1, "version" = "version" + 1, "updated_at" = CURRENT_TIMESTAMP WHERE "id" IN ($2) RETURNING "updated_at", "version"`,
			sql)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := db.CreateQueryBuilder().Update("Tag").Where(Filter{"id": 1}).GetQuery()
		assert.ErrorIs(t, err, ErrUpdateValuesMissing)

		_, err = db.CreateQueryBuilder().Update("Tag").Set(Filter{"colour": "red"}).GetQuery()
		assert.ErrorIs(t, err, ErrPropertyNotFound)
	})

	t.Run("rendering does not mutate the builder", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Update("Tag").Set(Filter{"name": "rust"}).Where(Filter{"id": 1})
		first := mustQuery(t, qb)
		assert.Equal(t, first, mustQuery(t, qb))
		assert.Equal(t, Params{"orm_param_0": 1}, qb.ExpressionMap().Parameters)
	})
}

// ============================================================================
// Delete, soft delete, restore
// ============================================================================

func TestDelete(t *testing.T) {
	db := renderDB(t, "postgres")

	qb := db.CreateQueryBuilder().Delete().From("Post").Where(Filter{"status": "spam"})
	assert.Equal(t, `DELETE FROM "posts" WHERE "status" = :orm_param_0`, mustQuery(t, qb))

	qb = db.CreateQueryBuilder().Delete().From("User").WhereInIds(1)
	assert.Equal(t, `DELETE FROM "users" WHERE "id" IN (:orm_param_0)`, mustQuery(t, qb))

	qb = db.CreateQueryBuilder().Delete().From("Post").Where(Filter{"status": "spam"}).Returning("id").Comment("cleanup")
	assert.Equal(t, `/* cleanup */ DELETE FROM "posts" WHERE "status" = :orm_param_0 RETURNING "id"`, mustQuery(t, qb))

	ms := renderDB(t, "mssql")
	qb = ms.CreateQueryBuilder().Delete().From("Post").Where(Filter{"status": "spam"}).Returning("id")
	assert.Equal(t, `DELETE FROM [posts] OUTPUT DELETED.[id] WHERE [status] = :orm_param_0`, mustQuery(t, qb))

	_, err := db.CreateQueryBuilder().Delete().GetQuery()
	assert.ErrorIs(t, err, ErrMissingMainAlias)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	db := renderDB(t, "postgres")

	qb := db.CreateQueryBuilder().SoftDelete().From("User").WhereInIds(3)
	assert.Equal(t,
		`UPDATE "users" SET "deleted_at" = CURRENT_TIMESTAMP, "version" = "version" + 1, "updated_at" = CURRENT_TIMESTAMP WHERE "id" IN (:orm_param_0)`,
		mustQuery(t, qb))

	qb = db.CreateQueryBuilder().Restore().From("User").WhereInIds(3)
	assert.Equal(t,
		`UPDATE "users" SET "deleted_at" = NULL, "version" = "version" + 1, "updated_at" = CURRENT_TIMESTAMP WHERE "id" IN (:orm_param_0)`,
		mustQuery(t, qb))

	_, err := db.CreateQueryBuilder().SoftDelete().From("Tag").WhereInIds(1).GetQuery()
	assert.ErrorIs(t, err, ErrMissingDeleteDateColumn)

	_, err = db.CreateQueryBuilder().SoftDelete().From("audit_log").GetQuery()
	assert.ErrorIs(t, err, ErrMissingDeleteDateColumn)
}
