// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/metadata"
)

func selectTags(db *DB) *SelectQueryBuilder {
	return db.CreateQueryBuilder().Select("t").From("Tag", "t")
}

// ============================================================================
// Filter objects
// ============================================================================

func TestWhere_FilterScenario(t *testing.T) {
	db := renderDB(t, "postgres")
	qb := selectTags(db).Where(Filter{"name": "active"})

	assert.Equal(t,
		`SELECT "t"."id" AS "t_id", "t"."name" AS "t_name" FROM "tags" "t" WHERE "t"."name" = :orm_param_0`,
		mustQuery(t, qb))
	assert.Equal(t, Params{"orm_param_0": "active"}, qb.GetParameters())

	sql, args, err := qb.GetQueryAndParameters()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "t"."id" AS "t_id", "t"."name" AS "t_name" FROM "tags" "t" WHERE "t"."name" = $1`, sql)
	assert.Equal(t, []any{"active"}, args)
}

func TestWhere_FilterIsConjunction(t *testing.T) {
	db := renderDB(t, "postgres")
	qb := selectTags(db).Where(Filter{"name": "go", "id": 7})

	assert.Equal(t, `("t"."id" = :orm_param_0 AND "t"."name" = :orm_param_1)`, whereOf(t, qb))
	assert.Equal(t, Params{"orm_param_0": 7, "orm_param_1": "go"}, qb.GetParameters())
}

func TestWhere_FilterListIsDisjunction(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("slice of filters", func(t *testing.T) {
		qb := selectTags(db).Where([]Filter{{"name": "a"}, {"name": "b", "id": 2}})
		assert.Equal(t,
			`("t"."name" = :orm_param_0 OR ("t"."id" = :orm_param_1 AND "t"."name" = :orm_param_2))`,
			whereOf(t, qb))
	})

	t.Run("where then or where", func(t *testing.T) {
		qb := selectTags(db).Where(Filter{"id": 1}).OrWhere(Filter{"name": "b"})
		assert.Equal(t, `"t"."id" = :orm_param_0 OR "t"."name" = :orm_param_1`, whereOf(t, qb))
	})

	t.Run("maps of any named type", func(t *testing.T) {
		qb := selectTags(db).Where([]map[string]any{{"id": 1}, {"id": 2}})
		assert.Equal(t, `("t"."id" = :orm_param_0 OR "t"."id" = :orm_param_1)`, whereOf(t, qb))
	})
}

func TestWhere_SoftDeleteFilter(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("added without other conditions", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("u.name").From("User", "u")
		assert.Equal(t,
			`SELECT "u"."name" AS "u_name" FROM "users" "u" WHERE "u"."deleted_at" IS NULL`,
			mustQuery(t, qb))
	})

	t.Run("combined with conditions", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("u.name").From("User", "u").Where(Filter{"status": "active"})
		assert.Equal(t, `( "u"."status" = :orm_param_0 ) AND ( "u"."deleted_at" IS NULL )`, whereOf(t, qb))
	})

	t.Run("with deleted", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("u.name").From("User", "u").WithDeleted()
		assert.Equal(t, `SELECT "u"."name" AS "u_name" FROM "users" "u"`, mustQuery(t, qb))
	})
}

func TestWhere_DiscriminatorFilter(t *testing.T) {
	db := renderDB(t, "postgres")
	qb := db.CreateQueryBuilder().Select("p.title").From("Photo", "p")

	assert.Equal(t,
		`SELECT "p"."title" AS "p_title" FROM "contents" "p" WHERE "p"."kind" IN (:...discriminatorColumnValues)`,
		mustQuery(t, qb))

	sql, args, err := qb.GetQueryAndParameters()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "p"."title" AS "p_title" FROM "contents" "p" WHERE "p"."kind" IN ($1)`, sql)
	assert.Equal(t, []any{"photo"}, args)
}

func TestWhere_EmbeddedsAndRelations(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("embedded", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("u.name").From("User", "u").
			Where(Filter{"address": Filter{"city": "Oslo"}})
		assert.Equal(t, `( "u"."address_city" = :orm_param_0 ) AND ( "u"."deleted_at" IS NULL )`, whereOf(t, qb))
	})

	t.Run("relation by key map", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("p.title").From("Post", "p").
			Where(Filter{"author": Filter{"id": 3}})
		assert.Equal(t, `"p"."author_id" = :orm_param_0`, whereOf(t, qb))
		assert.Equal(t, Params{"orm_param_0": 3}, qb.GetParameters())
	})

	t.Run("relation by scalar", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("p.title").From("Post", "p").Where(Filter{"author": 3})
		assert.Equal(t, `"p"."author_id" = :orm_param_0`, whereOf(t, qb))
	})

	t.Run("joined relation property", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("p.title").From("Post", "p").
			LeftJoin("p.author", "a", "").
			Where(Filter{"author": Filter{"name": "Ann"}})
		assert.Equal(t,
			`SELECT "p"."title" AS "p_title" FROM "posts" "p" LEFT JOIN "users" "a" ON "a"."id"="p"."author_id" WHERE "a"."name" = :orm_param_0`,
			mustQuery(t, qb))
	})

	t.Run("relation property without join", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("p.title").From("Post", "p").
			Where(Filter{"author": Filter{"name": "Ann"}})
		_, err := qb.GetQuery()
		assert.ErrorIs(t, err, ErrMissingJoinAlias)
	})

	t.Run("to-many traversal", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("u.name").From("User", "u").
			Where(Filter{"posts": Filter{"title": "x"}})
		_, err := qb.GetQuery()
		require.ErrorIs(t, err, ErrToManyTraversal)

		var traversal *RelationTraversalError
		require.ErrorAs(t, err, &traversal)
		assert.Equal(t, "posts", traversal.Path)
		assert.Equal(t, metadata.OneToMany, traversal.Type)
	})

	t.Run("unknown property", func(t *testing.T) {
		_, err := selectTags(db).Where(Filter{"colour": "red"}).GetQuery()
		require.ErrorIs(t, err, ErrPropertyNotFound)
		assert.Contains(t, err.Error(), `"colour"`)
	})
}

func TestWhere_TableWithoutMetadata(t *testing.T) {
	db := renderDB(t, "postgres")
	qb := db.CreateQueryBuilder().Select("*").From("audit_log", "l").Where(Filter{"level": "warn", "actor": nil})

	assert.Equal(t,
		`SELECT * FROM "audit_log" "l" WHERE ("l"."actor" IS NULL AND "l"."level" = :orm_param_0)`,
		mustQuery(t, qb))
}

// ============================================================================
// Operators
// ============================================================================

func TestWhere_Operators(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		filter  Filter
		want    string
	}{
		{"equal", "postgres", Filter{"name": "go"}, `"t"."name" = :orm_param_0`},
		{"equal nil", "postgres", Filter{"name": Equal(nil)}, `"t"."name" IS NULL`},
		{"nil value", "postgres", Filter{"name": nil}, `"t"."name" IS NULL`},
		{"is null", "postgres", Filter{"name": IsNull()}, `"t"."name" IS NULL`},
		{"not", "postgres", Filter{"name": Not("go")}, `"t"."name" != :orm_param_0`},
		{"not nil", "postgres", Filter{"name": Not(nil)}, `NOT("t"."name" IS NULL)`},
		{"not in", "postgres", Filter{"id": Not(In(1, 2))}, `NOT("t"."id" IN (:orm_param_0, :orm_param_1))`},
		{"less than", "postgres", Filter{"id": LessThan(5)}, `"t"."id" < :orm_param_0`},
		{"less than or equal", "postgres", Filter{"id": LessThanOrEqual(5)}, `"t"."id" <= :orm_param_0`},
		{"more than", "postgres", Filter{"id": MoreThan(5)}, `"t"."id" > :orm_param_0`},
		{"more than or equal", "postgres", Filter{"id": MoreThanOrEqual(5)}, `"t"."id" >= :orm_param_0`},
		{"like", "postgres", Filter{"name": Like("g%")}, `"t"."name" LIKE :orm_param_0`},
		{"ilike native", "postgres", Filter{"name": ILike("g%")}, `"t"."name" ILIKE :orm_param_0`},
		{"ilike emulated", "sqlite", Filter{"name": ILike("g%")}, `UPPER("t"."name") LIKE UPPER(:orm_param_0)`},
		{"between", "postgres", Filter{"id": Between(1, 5)}, `"t"."id" BETWEEN :orm_param_0 AND :orm_param_1`},
		{"in", "postgres", Filter{"id": In(1, 2, 3)}, `"t"."id" IN (:orm_param_0, :orm_param_1, :orm_param_2)`},
		{"in slice", "postgres", Filter{"id": In([]int{1, 2})}, `"t"."id" IN (:orm_param_0, :orm_param_1)`},
		{"in empty", "postgres", Filter{"id": In()}, `0=1`},
		{"any", "postgres", Filter{"id": Any([]int64{1, 2})}, `"t"."id" = ANY(:orm_param_0)`},
		{"any cast", "cockroachdb", Filter{"id": Any([]int64{1, 2})}, `"t"."id"::STRING = ANY(:orm_param_0::STRING[])`},
		{"array contains", "postgres", Filter{"name": ArrayContains([]string{"a"})}, `"t"."name" @> :orm_param_0`},
		{"array contained by", "postgres", Filter{"name": ArrayContainedBy([]string{"a"})}, `"t"."name" <@ :orm_param_0`},
		{"array overlap", "postgres", Filter{"name": ArrayOverlap([]string{"a"})}, `"t"."name" && :orm_param_0`},
		{"json contains", "postgres", Filter{"name": JSONContains(map[string]any{"a": 1})}, `"t"."name" ::jsonb @> :orm_param_0`},
		{"raw value", "postgres", Filter{"name": Raw("LOWER('GO')")}, `"t"."name" = LOWER('GO')`},
		{"raw func", "postgres", Filter{"id": Raw(func(col string) string { return col + " > :min" }, Params{"min": 3})}, `"t"."id" > :min`},
		{"and", "postgres", Filter{"id": And(MoreThan(1), LessThan(5))}, `("t"."id" > :orm_param_0 AND "t"."id" < :orm_param_1)`},
		{"or", "postgres", Filter{"id": Or(Equal(1), IsNull())}, `("t"."id" = :orm_param_0 OR "t"."id" IS NULL)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := renderDB(t, tt.dialect)
			assert.Equal(t, tt.want, whereOf(t, selectTags(db).Where(tt.filter)))
		})
	}
}

func TestWhere_OperatorParameters(t *testing.T) {
	db := renderDB(t, "postgres")

	qb := selectTags(db).Where(Filter{"name": JSONContains(map[string]any{"a": 1})})
	assert.Equal(t, Params{"orm_param_0": `{"a":1}`}, qb.GetParameters())

	qb = selectTags(db).Where(Filter{"id": Raw(func(col string) string { return col + " > :min" }, Params{"min": 3})})
	assert.Equal(t, Params{"min": 3}, qb.GetParameters())

	qb = selectTags(db).Where(Filter{"id": Between(1, 5)})
	_, args, err := qb.GetQueryAndParameters()
	require.NoError(t, err)
	assert.Equal(t, []any{1, 5}, args)
}

func TestConditionSQL_Trivial(t *testing.T) {
	d := dialects.GetDialect("postgres")

	sql, err := conditionSQL(d, ClauseList{})
	require.NoError(t, err)
	assert.Equal(t, "1=1", sql)

	sql, err = conditionSQL(d, OperatorCondition{Operator: OpIn, Parameters: []string{`"t"."id"`}})
	require.NoError(t, err)
	assert.Equal(t, "0=1", sql)

	_, err = conditionSQL(d, OperatorCondition{Operator: Operator("regexp"), Parameters: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestWhere_EmptyFilter(t *testing.T) {
	db := renderDB(t, "postgres")

	qb := selectTags(db).Where(Filter{})
	assert.Equal(t, `SELECT "t"."id" AS "t_id", "t"."name" AS "t_name" FROM "tags" "t"`, mustQuery(t, qb))

	qb = selectTags(db).Where(Filter{}).AndWhere("t.id = 1")
	assert.Equal(t, `1=1 AND "t"."id" = 1`, whereOf(t, qb))
}

// ============================================================================
// Raw conditions and brackets
// ============================================================================

func TestWhere_RawConditions(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("property names are rewritten", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("u.name").From("User", "u").
			Where("u.createdAt > :since AND u.address.city = :city", Params{"since": "2024-01-01", "city": "Oslo"})
		assert.Equal(t,
			`( "u"."created_at" > :since AND "u"."address_city" = :city ) AND ( "u"."deleted_at" IS NULL )`,
			whereOf(t, qb))
	})

	t.Run("relation paths become join columns", func(t *testing.T) {
		qb := db.CreateQueryBuilder().Select("p.title").From("Post", "p").
			Where("p.author = :a OR p.author.id = :b", Params{"a": 1, "b": 2})
		assert.Equal(t, `"p"."author_id" = :a OR "p"."author_id" = :b`, whereOf(t, qb))
	})

	t.Run("literals are left alone", func(t *testing.T) {
		qb := selectTags(db).Where("t.name = 't.name'")
		assert.Equal(t, `"t"."name" = 't.name'`, whereOf(t, qb))
	})

	t.Run("function calls", func(t *testing.T) {
		qb := selectTags(db).Where("LOWER(t.name) = :n", Params{"n": "go"})
		assert.Equal(t, `LOWER("t"."name") = :n`, whereOf(t, qb))
	})

	t.Run("and or chain", func(t *testing.T) {
		qb := selectTags(db).Where("t.id = 1").AndWhere("t.name = 'x'").OrWhere("t.id = 2")
		assert.Equal(t, `"t"."id" = 1 AND "t"."name" = 'x' OR "t"."id" = 2`, whereOf(t, qb))
	})

	t.Run("condition func", func(t *testing.T) {
		qb := selectTags(db).Where(ConditionFunc(func(qb *QueryBuilder) (string, error) {
			return "t.id > 10", nil
		}))
		assert.Equal(t, `"t"."id" > 10`, whereOf(t, qb))
	})

	t.Run("unsupported input", func(t *testing.T) {
		_, err := selectTags(db).Where(42).GetQuery()
		assert.ErrorIs(t, err, ErrInvalidCondition)
	})
}

func TestWhere_Brackets(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("brackets", func(t *testing.T) {
		qb := selectTags(db).Where("t.id = 1").AndWhere(NewBrackets(func(wb *WhereBuilder) {
			wb.Where("t.name = 'a'").OrWhere("t.name = 'b'")
		}))
		assert.Equal(t, `"t"."id" = 1 AND ("t"."name" = 'a' OR "t"."name" = 'b')`, whereOf(t, qb))
	})

	t.Run("single clause is still wrapped", func(t *testing.T) {
		qb := selectTags(db).Where(NewBrackets(func(wb *WhereBuilder) {
			wb.Where("x = 1")
		}))
		assert.Equal(t, `(x = 1)`, whereOf(t, qb))
	})

	t.Run("not brackets", func(t *testing.T) {
		qb := selectTags(db).Where(NewNotBrackets(func(wb *WhereBuilder) {
			wb.Where("x = 1")
		}))
		assert.Equal(t, `NOT((x = 1))`, whereOf(t, qb))
	})

	t.Run("filters inside brackets share the parameter counter", func(t *testing.T) {
		qb := selectTags(db).Where(Filter{"id": 1}).AndWhere(NewBrackets(func(wb *WhereBuilder) {
			wb.Where(Filter{"name": "a"}).OrWhere(Filter{"name": "b"})
		})).AndWhere(Filter{"id": 2})

		assert.Equal(t,
			`"t"."id" = :orm_param_0 AND ("t"."name" = :orm_param_1 OR "t"."name" = :orm_param_2) AND "t"."id" = :orm_param_3`,
			whereOf(t, qb))
		assert.Equal(t, Params{"orm_param_0": 1, "orm_param_1": "a", "orm_param_2": "b", "orm_param_3": 2}, qb.GetParameters())
	})

	t.Run("errors inside brackets surface", func(t *testing.T) {
		qb := selectTags(db).Where(NewBrackets(func(wb *WhereBuilder) {
			wb.Where(Filter{"missing": 1})
		}))
		_, err := qb.GetQuery()
		assert.ErrorIs(t, err, ErrPropertyNotFound)
	})
}

func TestWhere_InIds(t *testing.T) {
	db := renderDB(t, "postgres")

	t.Run("single key", func(t *testing.T) {
		qb := selectTags(db).WhereInIds(1, 2)
		assert.Equal(t, `"t"."id" IN (:orm_param_0, :orm_param_1)`, whereOf(t, qb))
	})

	t.Run("slice and maps", func(t *testing.T) {
		qb := selectTags(db).WhereInIds([]any{Filter{"id": 4}, 5})
		assert.Equal(t, `"t"."id" IN (:orm_param_0, :orm_param_1)`, whereOf(t, qb))
		assert.Equal(t, Params{"orm_param_0": 4, "orm_param_1": 5}, qb.GetParameters())
	})

	t.Run("composite keys", func(t *testing.T) {
		r := metadata.NewRegistry().Register(metadata.EntitySchema{
			Name:  "Membership",
			Table: "memberships",
			Columns: []metadata.ColumnSchema{
				{Property: "userId", Primary: true},
				{Property: "groupId", Primary: true},
				{Property: "role"},
			},
		})
		require.NoError(t, r.Build())
		cdb, err := New("postgres", WithMetadata(r))
		require.NoError(t, err)

		qb := cdb.CreateQueryBuilder().Select("m.role").From("Membership", "m").
			WhereInIds(Filter{"userId": 1, "groupId": 2}, Filter{"userId": 3, "groupId": 4})
		assert.Equal(t,
			`(((`+`"m"."group_id" = :orm_param_0 AND "m"."user_id" = :orm_param_1)) OR (("m"."group_id" = :orm_param_2 AND "m"."user_id" = :orm_param_3)))`,
			whereOf(t, qb))

		_, err = cdb.CreateQueryBuilder().Select("m.role").From("Membership", "m").WhereInIds(1).GetQuery()
		assert.Error(t, err)
	})

	t.Run("needs metadata", func(t *testing.T) {
		_, err := db.CreateQueryBuilder().Select("*").From("audit_log", "l").WhereInIds(1).GetQuery()
		assert.ErrorIs(t, err, ErrPropertyNotFound)
	})

	t.Run("needs a main alias", func(t *testing.T) {
		_, err := db.CreateQueryBuilder().Select("*").WhereInIds(1).GetQuery()
		assert.ErrorIs(t, err, ErrMissingMainAlias)
	})
}

func TestWhere_FragmentValidation(t *testing.T) {
	db := renderDB(t, "postgres", WithRawFragmentValidation(nil))

	_, err := selectTags(db).Where("t.id = 1; DROP TABLE tags").GetQuery()
	assert.ErrorIs(t, err, ErrUnsafeFragment)

	_, err = selectTags(db).Where("t.id = 1 UNION SELECT password FROM users").GetQuery()
	assert.ErrorIs(t, err, ErrUnsafeFragment)

	sql, err := selectTags(db).Where("t.name = :name", Params{"name": "'; --"}).GetQuery()
	require.NoError(t, err)
	assert.Contains(t, sql, `"t"."name" = :name`)

	_, err = db.CreateQueryBuilder().Select("t.name").From("Tag", "t").
		GroupBy("t.name").Having("COUNT(*) > 1 -- all").GetQuery()
	assert.ErrorIs(t, err, ErrUnsafeFragment)
}
