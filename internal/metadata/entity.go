// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metadata describes mapped entities: their tables, columns, embedded
// groups, relations and special columns. Query builders consult it through
// the Provider interface to resolve property paths into physical columns.
package metadata

import (
	"fmt"
	"reflect"
	"strings"
)

// RelationType is the cardinality of a relation.
type RelationType string

// Relation cardinalities.
const (
	ManyToOne  RelationType = "many-to-one"
	OneToOne   RelationType = "one-to-one"
	OneToMany  RelationType = "one-to-many"
	ManyToMany RelationType = "many-to-many"
)

// EntityMetadata is the resolved mapping of one entity.
type EntityMetadata struct {
	Name      string
	TableName string
	Schema    string
	GoType    reflect.Type

	// Columns holds every column, including embedded and implicit join columns.
	Columns []*ColumnMetadata
	// Relations holds every relation, including those declared in embeddeds.
	Relations []*RelationMetadata
	// Embeddeds holds the top-level embedded groups.
	Embeddeds []*EmbeddedMetadata

	PrimaryColumns      []*ColumnMetadata
	CreateDateColumn    *ColumnMetadata
	UpdateDateColumn    *ColumnMetadata
	DeleteDateColumn    *ColumnMetadata
	VersionColumn       *ColumnMetadata
	DiscriminatorColumn *ColumnMetadata
	DiscriminatorValue  string

	// Parent is set for single-table-inheritance children.
	Parent   *EntityMetadata
	Children []*EntityMetadata

	HasTriggers bool
}

// TablePath returns the schema-qualified table name.
func (e *EntityMetadata) TablePath() string {
	if e.Schema != "" {
		return e.Schema + "." + e.TableName
	}
	return e.TableName
}

// HasMultiplePrimaryKeys reports whether the entity has a composite primary key.
func (e *EntityMetadata) HasMultiplePrimaryKeys() bool {
	return len(e.PrimaryColumns) > 1
}

// FindColumnsWithPropertyPath returns the columns addressed by path: the join
// columns of an owning to-one relation, or the single column with that path.
func (e *EntityMetadata) FindColumnsWithPropertyPath(path string) []*ColumnMetadata {
	if rel := e.FindRelationWithPropertyPath(path); rel != nil && len(rel.JoinColumns) > 0 {
		return rel.JoinColumns
	}
	if c := e.FindColumnWithPropertyPath(path); c != nil {
		return []*ColumnMetadata{c}
	}
	return nil
}

// FindColumnWithPropertyPath returns the column whose property path is path.
func (e *EntityMetadata) FindColumnWithPropertyPath(path string) *ColumnMetadata {
	for _, c := range e.Columns {
		if c.PropertyPath() == path {
			return c
		}
	}
	return nil
}

// FindColumnWithDatabaseName returns the column stored under name.
func (e *EntityMetadata) FindColumnWithDatabaseName(name string) *ColumnMetadata {
	for _, c := range e.Columns {
		if c.DatabaseName == name {
			return c
		}
	}
	return nil
}

// FindRelationWithPropertyPath returns the relation declared at path.
func (e *EntityMetadata) FindRelationWithPropertyPath(path string) *RelationMetadata {
	for _, r := range e.Relations {
		if r.PropertyPath() == path {
			return r
		}
	}
	return nil
}

// HasRelationWithPropertyPath reports whether a relation is declared at path.
func (e *EntityMetadata) HasRelationWithPropertyPath(path string) bool {
	return e.FindRelationWithPropertyPath(path) != nil
}

// FindEmbeddedWithPropertyPath returns the embedded group declared at path.
func (e *EntityMetadata) FindEmbeddedWithPropertyPath(path string) *EmbeddedMetadata {
	var walk func([]*EmbeddedMetadata) *EmbeddedMetadata
	walk = func(list []*EmbeddedMetadata) *EmbeddedMetadata {
		for _, em := range list {
			if em.PropertyPath() == path {
				return em
			}
			if found := walk(em.Embeddeds); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(e.Embeddeds)
}

// HasEmbeddedWithPropertyPath reports whether an embedded group is declared at path.
func (e *EntityMetadata) HasEmbeddedWithPropertyPath(path string) bool {
	return e.FindEmbeddedWithPropertyPath(path) != nil
}

// ChildDiscriminatorValues returns the discriminator values of every
// descendant that carries a discriminator column, followed by the entity's own.
func (e *EntityMetadata) ChildDiscriminatorValues() []any {
	var values []any
	var walk func(*EntityMetadata)
	walk = func(m *EntityMetadata) {
		for _, child := range m.Children {
			if child.DiscriminatorColumn != nil {
				values = append(values, child.DiscriminatorValue)
			}
			walk(child)
		}
	}
	walk(e)
	return append(values, e.DiscriminatorValue)
}

// ValueOf returns the value for column c found in values. Columns that share
// their storage with a relation join column also accept the relation's value.
func (e *EntityMetadata) ValueOf(c *ColumnMetadata, values map[string]any) (any, bool) {
	if v, ok := c.GetEntityValue(values); ok {
		return v, true
	}
	for _, rel := range e.Relations {
		for _, jc := range rel.JoinColumns {
			if jc != c && jc.DatabaseName == c.DatabaseName {
				if v, ok := jc.GetEntityValue(values); ok {
					return v, true
				}
			}
		}
	}
	return nil, false
}

// HasAllPrimaryKeys reports whether values carries a non-nil value for every
// primary column.
func (e *EntityMetadata) HasAllPrimaryKeys(values map[string]any) bool {
	if len(e.PrimaryColumns) == 0 {
		return false
	}
	for _, pk := range e.PrimaryColumns {
		v, ok := pk.GetEntityValue(values)
		if !ok || v == nil {
			return false
		}
	}
	return true
}

// EnsureIDMap normalizes an entity id into a property map. Maps pass through;
// scalars are accepted only for single-column primary keys.
func (e *EntityMetadata) EnsureIDMap(id any) (map[string]any, error) {
	if m, ok := AsMap(id); ok {
		return m, nil
	}
	if len(e.PrimaryColumns) != 1 {
		return nil, fmt.Errorf("entity %s has %d primary columns, a scalar id cannot address it", e.Name, len(e.PrimaryColumns))
	}
	return e.PrimaryColumns[0].ValueMap(id), nil
}

// ColumnMetadata describes one physical column.
type ColumnMetadata struct {
	Entity   *EntityMetadata
	Embedded *EmbeddedMetadata
	// Relation is set for join columns of owning to-one relations.
	Relation *RelationMetadata
	// ReferencedColumn is the column a join column points at.
	ReferencedColumn *ColumnMetadata

	PropertyName string
	DatabaseName string
	Type         string

	IsPrimary       bool
	IsGenerated     bool
	IsNullable      bool
	IsCreateDate    bool
	IsUpdateDate    bool
	IsDeleteDate    bool
	IsVersion       bool
	IsDiscriminator bool
}

// PropertyPath returns the dotted path of the column from the entity root.
func (c *ColumnMetadata) PropertyPath() string {
	if c.Embedded != nil {
		return c.Embedded.PropertyPath() + "." + c.PropertyName
	}
	return c.PropertyName
}

// GetEntityValue reads the column value from a property map. For relation
// join columns a nested map yields the referenced column's value and any
// other value is returned as is.
func (c *ColumnMetadata) GetEntityValue(values map[string]any) (any, bool) {
	m := values
	if c.Embedded != nil {
		for _, part := range c.Embedded.pathParts() {
			next, ok := AsMap(m[part])
			if !ok {
				return nil, false
			}
			m = next
		}
	}
	if c.Relation != nil && c.ReferencedColumn != nil {
		v, ok := m[c.Relation.PropertyName]
		if !ok {
			return nil, false
		}
		if nested, isMap := AsMap(v); isMap {
			return c.ReferencedColumn.GetEntityValue(nested)
		}
		return v, true
	}
	v, ok := m[c.PropertyName]
	return v, ok
}

// ValueMap builds a property map holding value at the column's property path.
func (c *ColumnMetadata) ValueMap(value any) map[string]any {
	leaf := map[string]any{c.PropertyName: value}
	if c.Embedded == nil {
		return leaf
	}
	parts := c.Embedded.pathParts()
	for i := len(parts) - 1; i >= 0; i-- {
		leaf = map[string]any{parts[i]: leaf}
	}
	return leaf
}

// EmbeddedMetadata is a group of columns stored inline with a shared prefix.
type EmbeddedMetadata struct {
	Parent       *EmbeddedMetadata
	PropertyName string
	Prefix       string
	Columns      []*ColumnMetadata
	Relations    []*RelationMetadata
	Embeddeds    []*EmbeddedMetadata
}

// PropertyPath returns the dotted path of the embedded group.
func (em *EmbeddedMetadata) PropertyPath() string {
	return strings.Join(em.pathParts(), ".")
}

func (em *EmbeddedMetadata) pathParts() []string {
	if em.Parent == nil {
		return []string{em.PropertyName}
	}
	return append(em.Parent.pathParts(), em.PropertyName)
}

// RelationMetadata describes a relation between two entities.
type RelationMetadata struct {
	Entity   *EntityMetadata
	Embedded *EmbeddedMetadata

	PropertyName string
	Type         RelationType
	TargetName   string
	// Target is the entity on the other side.
	Target *EntityMetadata

	InverseSidePropertyPath string
	InverseRelation         *RelationMetadata

	// JoinColumns are the foreign key columns on the owning entity's table
	// (many-to-one and owning one-to-one only).
	JoinColumns []*ColumnMetadata

	// Junction describes the join table of a many-to-many relation. Owner
	// columns reference this entity, inverse columns reference Target.
	JunctionTable          string
	JunctionOwnerColumns   []*ColumnMetadata
	JunctionInverseColumns []*ColumnMetadata

	ownsJunction bool
}

// PropertyPath returns the dotted path of the relation from the entity root.
func (r *RelationMetadata) PropertyPath() string {
	if r.Embedded != nil {
		return r.Embedded.PropertyPath() + "." + r.PropertyName
	}
	return r.PropertyName
}

// IsToMany reports whether the relation yields a collection.
func (r *RelationMetadata) IsToMany() bool {
	return r.Type == OneToMany || r.Type == ManyToMany
}

// IsOwning reports whether this side stores the foreign key.
func (r *RelationMetadata) IsOwning() bool {
	switch r.Type {
	case ManyToOne:
		return true
	case OneToOne:
		return len(r.JoinColumns) > 0
	case ManyToMany:
		return r.ownsJunction
	}
	return false
}

// AsMap converts property maps of any named map type with string keys to
// map[string]any.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
