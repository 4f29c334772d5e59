// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"context"
	"fmt"

	"github.com/coregx/quarry/internal/metadata"
)

// RelationQueryBuilder changes which rows a relation points at without
// loading the entities. Ids may be scalars for single-column keys or
// property maps.
//
// Example:
//
//	err := db.CreateQueryBuilder().
//	    Relation("Post", "tags").
//	    Of(postID).
//	    Add(ctx, tagID1, tagID2)
type RelationQueryBuilder struct {
	*QueryBuilder
}

// Of selects the entities whose relation is changed.
func (rb *RelationQueryBuilder) Of(ids ...any) *RelationQueryBuilder {
	rb.expr.RelationEntityIDs = ids
	return rb
}

// relation resolves the relation the builder operates on.
func (rb *RelationQueryBuilder) relation() (*metadata.RelationMetadata, error) {
	if rb.err != nil {
		return nil, rb.err
	}
	main := rb.expr.MainAlias
	if main == nil {
		return nil, ErrMissingMainAlias
	}
	if !main.HasMetadata() {
		return nil, fmt.Errorf("%w: relation target %s has no metadata", ErrRelationOperation, main.Name)
	}
	rel := main.Metadata.FindRelationWithPropertyPath(rb.expr.RelationPropertyPath)
	if rel == nil {
		return nil, &PropertyNotFoundError{Path: rb.expr.RelationPropertyPath, Entity: main.Metadata.Name}
	}
	return rel, nil
}

// SetQuery returns the statement that makes a to-one relation point at
// value. A nil value clears it.
func (rb *RelationQueryBuilder) SetQuery(value any) (Builder, error) {
	rel, err := rb.relation()
	if err != nil {
		return nil, err
	}
	if rel.IsToMany() {
		return nil, fmt.Errorf("%w: Set supports many-to-one and one-to-one relations, %s is %s; use Add", ErrRelationOperation, rel.PropertyPath(), rel.Type)
	}
	return rb.updateQuery(rel, value)
}

// AddQuery returns the statement that adds values to a to-many relation.
func (rb *RelationQueryBuilder) AddQuery(values ...any) (Builder, error) {
	rel, err := rb.relation()
	if err != nil {
		return nil, err
	}
	if !rel.IsToMany() {
		return nil, fmt.Errorf("%w: Add supports one-to-many and many-to-many relations, %s is %s; use Set", ErrRelationOperation, rel.PropertyPath(), rel.Type)
	}
	if rel.Type == metadata.ManyToMany {
		return rb.junctionInsert(rel, values)
	}
	return rb.updateQuery(rel, values)
}

// RemoveQuery returns the statement that removes values from a to-many
// relation.
func (rb *RelationQueryBuilder) RemoveQuery(values ...any) (Builder, error) {
	rel, err := rb.relation()
	if err != nil {
		return nil, err
	}
	ofs := rb.expr.RelationEntityIDs
	if len(ofs) == 0 {
		return nil, fmt.Errorf("%w: Of was not called", ErrRelationOperation)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: nothing to remove", ErrRelationOperation)
	}
	switch rel.Type {
	case metadata.OneToMany:
		inv := rel.InverseRelation
		filters := make([]map[string]any, 0, len(ofs)*len(values))
		for _, of := range ofs {
			for _, value := range values {
				f, err := rel.Target.EnsureIDMap(value)
				if err != nil {
					return nil, err
				}
				f = cloneValues(f)
				f[inv.PropertyName] = of
				filters = append(filters, f)
			}
		}
		nulls := map[string]any{inv.PropertyName: nil}
		return rb.CreateQueryBuilder().Update(rel.Target).Set(nulls).Where(filters), nil

	case metadata.ManyToMany:
		filters := make([]map[string]any, 0, len(ofs)*len(values))
		for _, of := range ofs {
			for _, value := range values {
				filters = append(filters, junctionRow(rel, of, value))
			}
		}
		return rb.CreateQueryBuilder().Delete().From(junctionPath(rel)).Where(filters), nil
	}
	return nil, fmt.Errorf("%w: Remove supports one-to-many and many-to-many relations, %s is %s; use Set(nil)", ErrRelationOperation, rel.PropertyPath(), rel.Type)
}

// updateQuery rewrites foreign keys for Set and one-to-many Add.
func (rb *RelationQueryBuilder) updateQuery(rel *metadata.RelationMetadata, value any) (Builder, error) {
	ofs := rb.expr.RelationEntityIDs
	if len(ofs) == 0 {
		return nil, fmt.Errorf("%w: Of was not called", ErrRelationOperation)
	}

	if rel.IsOwning() {
		set := rel.JoinColumns[0].ValueMap(value)
		return rb.CreateQueryBuilder().Update(rel.Entity).Set(set).WhereInIds(ofs...), nil
	}

	inv := rel.InverseRelation
	if inv == nil || len(inv.JoinColumns) == 0 {
		return nil, fmt.Errorf("%w: relation %s has no owning side", ErrRelationOperation, rel.PropertyPath())
	}
	if value == nil {
		filters := make([]map[string]any, len(ofs))
		for i, of := range ofs {
			filters[i] = map[string]any{inv.PropertyName: of}
		}
		nulls := map[string]any{inv.PropertyName: nil}
		return rb.CreateQueryBuilder().Update(rel.Target).Set(nulls).Where(filters), nil
	}
	if len(ofs) != 1 {
		return nil, fmt.Errorf("%w: relations of several entities cannot point at the same related rows; pass a single id to Of", ErrRelationOperation)
	}
	ids := []any{value}
	if items, ok := sliceItems(value); ok {
		ids = items
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no related ids given", ErrRelationOperation)
	}
	set := inv.JoinColumns[0].ValueMap(ofs[0])
	return rb.CreateQueryBuilder().Update(rel.Target).Set(set).WhereInIds(ids...), nil
}

// junctionInsert links every Of id to every value through the junction table.
func (rb *RelationQueryBuilder) junctionInsert(rel *metadata.RelationMetadata, values []any) (Builder, error) {
	ofs := rb.expr.RelationEntityIDs
	if len(ofs) == 0 {
		return nil, fmt.Errorf("%w: Of was not called", ErrRelationOperation)
	}
	rows := make([]map[string]any, 0, len(ofs)*len(values))
	for _, of := range ofs {
		for _, value := range values {
			rows = append(rows, junctionRow(rel, of, value))
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: nothing to add", ErrRelationOperation)
	}
	return rb.CreateQueryBuilder().Insert().Into(junctionPath(rel)).Values(rows), nil
}

// junctionRow maps junction column names to the key values of both sides.
func junctionRow(rel *metadata.RelationMetadata, of, value any) map[string]any {
	row := make(map[string]any, len(rel.JunctionOwnerColumns)+len(rel.JunctionInverseColumns))
	for _, c := range rel.JunctionOwnerColumns {
		row[c.DatabaseName] = referencedValue(c, of)
	}
	for _, c := range rel.JunctionInverseColumns {
		row[c.DatabaseName] = referencedValue(c, value)
	}
	return row
}

// referencedValue reads the value of c's referenced column from an id map,
// or returns a scalar id unchanged.
func referencedValue(c *metadata.ColumnMetadata, id any) any {
	if m, ok := metadata.AsMap(id); ok && c.ReferencedColumn != nil {
		v, _ := c.ReferencedColumn.GetEntityValue(m)
		return v
	}
	return id
}

// Set points a to-one relation at value, or clears it when value is nil.
func (rb *RelationQueryBuilder) Set(ctx context.Context, value any) error {
	b, err := rb.SetQuery(value)
	if err != nil {
		return err
	}
	return rb.run(ctx, b)
}

// Add links values to a to-many relation.
func (rb *RelationQueryBuilder) Add(ctx context.Context, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	b, err := rb.AddQuery(values...)
	if err != nil {
		return err
	}
	return rb.run(ctx, b)
}

// Remove unlinks values from a to-many relation.
func (rb *RelationQueryBuilder) Remove(ctx context.Context, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	b, err := rb.RemoveQuery(values...)
	if err != nil {
		return err
	}
	return rb.run(ctx, b)
}

// AddAndRemove removes then adds, both on one runner.
func (rb *RelationQueryBuilder) AddAndRemove(ctx context.Context, added, removed []any) error {
	var plan []Builder
	if len(removed) > 0 {
		b, err := rb.RemoveQuery(removed...)
		if err != nil {
			return err
		}
		plan = append(plan, b)
	}
	if len(added) > 0 {
		b, err := rb.AddQuery(added...)
		if err != nil {
			return err
		}
		plan = append(plan, b)
	}
	return rb.run(ctx, plan...)
}

// run executes the statements on the builder's runner, or on one runner
// acquired for the whole batch and released afterwards.
func (rb *RelationQueryBuilder) run(ctx context.Context, plan ...Builder) (err error) {
	r := rb.runner
	if r == nil {
		owned, createErr := rb.db.CreateQueryRunner()
		if createErr != nil {
			return createErr
		}
		defer func() {
			if releaseErr := owned.Release(); releaseErr != nil && err == nil {
				err = releaseErr
			}
		}()
		r = owned
	}
	for i, b := range plan {
		qb := b.base()
		qb.runner = r
		qb.expr.UpdateEntity = false
		if _, err := qb.Execute(ctx); err != nil {
			if len(plan) > 1 {
				return WrapError(err, fmt.Sprintf("relation %s: statement %d of %d", rb.expr.RelationPropertyPath, i+1, len(plan)))
			}
			return err
		}
	}
	return nil
}
