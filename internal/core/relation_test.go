// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Statement plans
// ============================================================================

func TestRelation_SetQuery(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("many-to-one", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("Post", "author").Of(1).SetQuery(2)
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "posts" SET "author_id" = :orm_param_1 WHERE "id" IN (:orm_param_0)`, mustQuery(t, b))
		assert.Equal(t, Params{"orm_param_0": 1, "orm_param_1": 2}, b.GetParameters())
	})

	t.Run("owning one-to-one cleared", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("User", "profile").Of(1).SetQuery(nil)
		require.NoError(t, err)
		assert.Equal(t,
			`UPDATE "users" SET "profile_id" = :orm_param_1, "version" = "version" + 1, "updated_at" = CURRENT_TIMESTAMP WHERE "id" IN (:orm_param_0)`,
			mustQuery(t, b))
		assert.Nil(t, b.GetParameters()["orm_param_1"])
	})

	t.Run("inverse one-to-one", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("Profile", "user").Of(1).SetQuery(7)
		require.NoError(t, err)
		assert.Equal(t,
			`UPDATE "users" SET "profile_id" = :orm_param_1, "version" = "version" + 1, "updated_at" = CURRENT_TIMESTAMP WHERE "id" IN (:orm_param_0)`,
			mustQuery(t, b))
		assert.Equal(t, Params{"orm_param_0": 7, "orm_param_1": 1}, b.GetParameters())
	})

	t.Run("inverse one-to-one cleared", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("Profile", "user").Of(1).SetQuery(nil)
		require.NoError(t, err)
		sql := mustQuery(t, b)
		assert.Contains(t, sql, `UPDATE "users" SET "profile_id" = :orm_param_1`)
		assert.Contains(t, sql, `"profile_id" = :orm_param_0`)
	})

	t.Run("id maps", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("Post", "author").Of(Filter{"id": 1}).SetQuery(Filter{"id": 2})
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "posts" SET "author_id" = :orm_param_1 WHERE "id" IN (:orm_param_0)`, mustQuery(t, b))
		assert.Equal(t, 2, b.GetParameters()["orm_param_1"])
	})
}

func TestRelation_AddQuery(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("one-to-many", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("User", "posts").Of(1).AddQuery(10, 11)
		require.NoError(t, err)
		assert.Equal(t,
			`UPDATE "posts" SET "author_id" = :orm_param_2 WHERE "id" IN (:orm_param_0, :orm_param_1)`,
			mustQuery(t, b))
		assert.Equal(t, Params{"orm_param_0": 10, "orm_param_1": 11, "orm_param_2": 1}, b.GetParameters())
	})

	t.Run("owning many-to-many", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("Post", "tags").Of(1).AddQuery(3, 4)
		require.NoError(t, err)
		assert.Equal(t,
			`INSERT INTO "posts_tags"("post_id", "tag_id") VALUES (:orm_param_0, :orm_param_1), (:orm_param_2, :orm_param_3)`,
			mustQuery(t, b))
		assert.Equal(t, Params{"orm_param_0": 1, "orm_param_1": 3, "orm_param_2": 1, "orm_param_3": 4}, b.GetParameters())
	})

	t.Run("inverse many-to-many", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("Tag", "posts").Of(3).AddQuery(1)
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "posts_tags"("post_id", "tag_id") VALUES (:orm_param_0, :orm_param_1)`, mustQuery(t, b))
		assert.Equal(t, Params{"orm_param_0": 1, "orm_param_1": 3}, b.GetParameters())
	})

	t.Run("several owners", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("Post", "tags").Of(1, 2).AddQuery(3)
		require.NoError(t, err)
		assert.Equal(t,
			`INSERT INTO "posts_tags"("post_id", "tag_id") VALUES (:orm_param_0, :orm_param_1), (:orm_param_2, :orm_param_3)`,
			mustQuery(t, b))
	})
}

func TestRelation_RemoveQuery(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("one-to-many", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("User", "posts").Of(1).RemoveQuery(10)
		require.NoError(t, err)
		assert.Equal(t,
			`UPDATE "posts" SET "author_id" = :orm_param_2 WHERE ("author_id" = :orm_param_0 AND "id" = :orm_param_1)`,
			mustQuery(t, b))
		params := b.GetParameters()
		assert.Equal(t, 1, params["orm_param_0"])
		assert.Equal(t, 10, params["orm_param_1"])
		assert.Nil(t, params["orm_param_2"])
	})

	t.Run("many-to-many", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("Post", "tags").Of(1).RemoveQuery(3)
		require.NoError(t, err)
		assert.Equal(t,
			`DELETE FROM "posts_tags" WHERE ("post_id" = :orm_param_0 AND "tag_id" = :orm_param_1)`,
			mustQuery(t, b))
	})

	t.Run("several values", func(t *testing.T) {
		b, err := db.CreateQueryBuilder().Relation("Post", "tags").Of(1).RemoveQuery(3, 4)
		require.NoError(t, err)
		assert.Equal(t,
			`DELETE FROM "posts_tags" WHERE (("post_id" = :orm_param_0 AND "tag_id" = :orm_param_1) OR ("post_id" = :orm_param_2 AND "tag_id" = :orm_param_3))`,
			mustQuery(t, b))
	})
}

// ============================================================================
// Errors
// ============================================================================

func TestRelation_Errors(t *testing.T) {
	db := renderDB(t, "postgres")
	rel := func(target, path string) *RelationQueryBuilder {
		return db.CreateQueryBuilder().Relation(target, path)
	}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"set on to-many", func() error { _, err := rel("User", "posts").Of(1).SetQuery(2); return err }, ErrRelationOperation},
		{"add on to-one", func() error { _, err := rel("Post", "author").Of(1).AddQuery(2); return err }, ErrRelationOperation},
		{"remove on to-one", func() error { _, err := rel("Post", "author").Of(1).RemoveQuery(2); return err }, ErrRelationOperation},
		{"unknown relation", func() error { _, err := rel("Post", "comments").Of(1).SetQuery(2); return err }, ErrPropertyNotFound},
		{"table without metadata", func() error { _, err := rel("audit_log", "x").Of(1).SetQuery(2); return err }, ErrRelationOperation},
		{"missing of", func() error { _, err := rel("Post", "author").SetQuery(2); return err }, ErrRelationOperation},
		{"several owners of one-to-many", func() error { _, err := rel("User", "posts").Of(1, 2).AddQuery(10); return err }, ErrRelationOperation},
		{"nothing to link", func() error { _, err := rel("Post", "tags").AddQuery(3); return err }, ErrRelationOperation},
		{"remove many-to-many without of", func() error { _, err := rel("Post", "tags").RemoveQuery(3); return err }, ErrRelationOperation},
		{"remove one-to-many without of", func() error { _, err := rel("User", "posts").RemoveQuery(10); return err }, ErrRelationOperation},
		{"remove without values", func() error { _, err := rel("Post", "tags").Of(1).RemoveQuery(); return err }, ErrRelationOperation},
		{"add and remove without of", func() error { return rel("Post", "tags").AddAndRemove(context.Background(), nil, []any{3}) }, ErrRelationOperation},
		{"render", func() error { _, err := rel("Post", "tags").Of(1).GetQuery(); return err }, ErrRelationOperation},
		{"execute", func() error { _, err := rel("Post", "tags").Of(1).Execute(context.Background()); return err }, ErrRelationOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}
}

func TestRelation_EmptyValuesAreNoops(t *testing.T) {
	db := renderDB(t, "postgres")
	ctx := context.Background()

	rb := db.CreateQueryBuilder().Relation("Post", "tags").Of(1)
	assert.NoError(t, rb.Add(ctx))
	assert.NoError(t, rb.Remove(ctx))

	assert.ErrorIs(t, rb.Set(ctx, 1), ErrRelationOperation)
	assert.ErrorIs(t, rb.AddAndRemove(ctx, []any{3}, nil), ErrNoConnection)
}
