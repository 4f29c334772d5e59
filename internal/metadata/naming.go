// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metadata

import "github.com/go-openapi/inflect"

// NamingStrategy derives physical names for entities that do not declare them.
type NamingStrategy interface {
	TableName(entityName string) string
	ColumnName(propertyName, prefix string) string
	JoinColumnName(relationName, referencedColumn string) string
	JoinTableName(ownerTable, propertyName, targetTable string) string
	JoinTableColumnName(tableName, columnName string) string
}

// SnakeNamingStrategy maps Go-style names to snake_case, pluralizing tables:
// entity BlogPost becomes table blog_posts, property createdAt column created_at.
type SnakeNamingStrategy struct{}

// TableName pluralizes and underscores the entity name.
func (SnakeNamingStrategy) TableName(entityName string) string {
	return inflect.Underscore(inflect.Pluralize(entityName))
}

// ColumnName underscores the property name and applies the embedded prefix.
func (SnakeNamingStrategy) ColumnName(propertyName, prefix string) string {
	return prefix + inflect.Underscore(propertyName)
}

// JoinColumnName returns e.g. author_id for relation author referencing id.
func (SnakeNamingStrategy) JoinColumnName(relationName, referencedColumn string) string {
	return inflect.Underscore(relationName) + "_" + referencedColumn
}

// JoinTableName returns e.g. posts_tags for property tags on table posts.
func (SnakeNamingStrategy) JoinTableName(ownerTable, propertyName, _ string) string {
	return ownerTable + "_" + inflect.Underscore(propertyName)
}

// JoinTableColumnName returns e.g. post_id for column id of table posts.
func (SnakeNamingStrategy) JoinTableColumnName(tableName, columnName string) string {
	return inflect.Singularize(tableName) + "_" + columnName
}
