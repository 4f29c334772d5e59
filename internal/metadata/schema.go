// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metadata

import "reflect"

// EntitySchema declares one entity. It is the common input of the
// programmatic, struct-tag and YAML front ends.
type EntitySchema struct {
	Name               string           `yaml:"name"`
	Table              string           `yaml:"table,omitempty"`
	Schema             string           `yaml:"schema,omitempty"`
	Columns            []ColumnSchema   `yaml:"columns,omitempty"`
	Embeddeds          []EmbeddedSchema `yaml:"embeddeds,omitempty"`
	Relations          []RelationSchema `yaml:"relations,omitempty"`
	Discriminator      string           `yaml:"discriminator,omitempty"`
	DiscriminatorValue string           `yaml:"discriminatorValue,omitempty"`
	Extends            string           `yaml:"extends,omitempty"`
	Triggers           bool             `yaml:"triggers,omitempty"`

	goType reflect.Type
}

// ColumnSchema declares a column.
type ColumnSchema struct {
	Property   string `yaml:"property"`
	Name       string `yaml:"name,omitempty"`
	Type       string `yaml:"type,omitempty"`
	Primary    bool   `yaml:"primary,omitempty"`
	Generated  bool   `yaml:"generated,omitempty"`
	Nullable   bool   `yaml:"nullable,omitempty"`
	CreateDate bool   `yaml:"createDate,omitempty"`
	UpdateDate bool   `yaml:"updateDate,omitempty"`
	DeleteDate bool   `yaml:"deleteDate,omitempty"`
	Version    bool   `yaml:"version,omitempty"`
}

// EmbeddedSchema declares an embedded column group.
type EmbeddedSchema struct {
	Property  string           `yaml:"property"`
	Prefix    *string          `yaml:"prefix,omitempty"`
	Columns   []ColumnSchema   `yaml:"columns,omitempty"`
	Embeddeds []EmbeddedSchema `yaml:"embeddeds,omitempty"`
	Relations []RelationSchema `yaml:"relations,omitempty"`
}

// RelationSchema declares a relation.
type RelationSchema struct {
	Property    string             `yaml:"property"`
	Type        RelationType       `yaml:"type"`
	Target      string             `yaml:"target"`
	Inverse     string             `yaml:"inverse,omitempty"`
	JoinColumns []JoinColumnSchema `yaml:"joinColumns,omitempty"`
	JoinTable   *JoinTableSchema   `yaml:"joinTable,omitempty"`
}

// JoinColumnSchema names a foreign key column and the column it references.
type JoinColumnSchema struct {
	Name       string `yaml:"name"`
	Referenced string `yaml:"referenced,omitempty"`
}

// JoinTableSchema declares the junction table of an owning many-to-many relation.
type JoinTableSchema struct {
	Name               string             `yaml:"name,omitempty"`
	JoinColumns        []JoinColumnSchema `yaml:"joinColumns,omitempty"`
	InverseJoinColumns []JoinColumnSchema `yaml:"inverseJoinColumns,omitempty"`
}

// Document is the root of a YAML schema file.
type Document struct {
	Entities []EntitySchema `yaml:"entities"`
}
