// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metadata

import (
	"errors"
	"reflect"
	"strings"
	"time"
	"unicode"
)

// Tabler is implemented by models that choose their own table name.
type Tabler interface {
	TableName() string
}

var timeType = reflect.TypeOf(time.Time{})

// RegisterStruct derives schemas from tagged Go structs and registers them.
func (r *Registry) RegisterStruct(models ...any) error {
	schemas := make([]EntitySchema, 0, len(models))
	for _, model := range models {
		s, err := SchemaFromStruct(model)
		if err != nil {
			return err
		}
		schemas = append(schemas, s)
	}
	r.Register(schemas...)
	return nil
}

// SchemaFromStruct builds an entity schema from struct tags.
//
// Supported tags:
//   - db:"column"                 column name
//   - db:"column,pk"              primary key column
//   - db:"-"                      skip field
//   - quarry:"generated,nullable,createDate,updateDate,deleteDate,version,discriminator"
//   - quarry:"type=uuid"          column type hint
//   - quarry:"embedded,prefix=addr_"
//   - quarry:"relation=many-to-one,target=User,inverse=posts,joinColumn=author_id"
//   - quarry:"relation=many-to-many,joinTable=post_tags"
//
// A field named ID is the primary key when no field is tagged pk.
// Anonymous struct fields are flattened into the entity.
func SchemaFromStruct(model any) (EntitySchema, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return EntitySchema{}, errors.New("SchemaFromStruct: nil model")
	}
	t = indirect(t)
	if t.Kind() != reflect.Struct {
		return EntitySchema{}, errors.New("SchemaFromStruct: expected struct, got " + t.Kind().String())
	}

	s := EntitySchema{Name: t.Name(), goType: t}
	if tabler, ok := reflect.New(t).Interface().(Tabler); ok {
		s.Table = tabler.TableName()
	}

	cols, embeddeds, relations, discriminator := structFields(t)
	s.Columns, s.Embeddeds, s.Relations, s.Discriminator = cols, embeddeds, relations, discriminator

	hasPK := false
	for _, c := range s.Columns {
		hasPK = hasPK || c.Primary
	}
	if !hasPK {
		for i := range s.Columns {
			if s.Columns[i].Property == "id" {
				s.Columns[i].Primary = true
				break
			}
		}
	}
	return s, nil
}

func structFields(t reflect.Type) ([]ColumnSchema, []EmbeddedSchema, []RelationSchema, string) {
	var (
		cols          []ColumnSchema
		embeddeds     []EmbeddedSchema
		relations     []RelationSchema
		discriminator string
	)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		dbTag, hasDB := field.Tag.Lookup("db")
		column, isPK := parseDBTag(dbTag)
		if hasDB && column == "-" {
			continue
		}
		opts := parseOptions(field.Tag.Get("quarry"))
		prop := opts.get("property", propertyName(field.Name))

		ft := indirect(field.Type)
		if field.Anonymous && ft.Kind() == reflect.Struct && !opts.has("embedded") {
			c, e, r, d := structFields(ft)
			cols, embeddeds, relations = append(cols, c...), append(embeddeds, e...), append(relations, r...)
			if d != "" {
				discriminator = d
			}
			continue
		}

		if kind, ok := opts.lookup("relation"); ok {
			rel := RelationSchema{
				Property: prop,
				Type:     RelationType(kind),
				Target:   opts.get("target", elemType(field.Type).Name()),
				Inverse:  opts.get("inverse", ""),
			}
			if jc, ok := opts.lookup("joinColumn"); ok {
				rel.JoinColumns = []JoinColumnSchema{{Name: jc}}
			}
			if jt, ok := opts.lookup("joinTable"); ok {
				rel.JoinTable = &JoinTableSchema{Name: jt}
			}
			relations = append(relations, rel)
			continue
		}

		if opts.has("embedded") && ft.Kind() == reflect.Struct {
			c, e, r, _ := structFields(ft)
			em := EmbeddedSchema{Property: prop, Columns: c, Embeddeds: e, Relations: r}
			if prefix, ok := opts.lookup("prefix"); ok {
				em.Prefix = &prefix
			}
			embeddeds = append(embeddeds, em)
			continue
		}

		cols = append(cols, ColumnSchema{
			Property:   prop,
			Name:       column,
			Type:       opts.get("type", ""),
			Primary:    isPK || opts.has("primary"),
			Generated:  opts.has("generated"),
			Nullable:   opts.has("nullable") || field.Type.Kind() == reflect.Ptr,
			CreateDate: opts.has("createDate"),
			UpdateDate: opts.has("updateDate"),
			DeleteDate: opts.has("deleteDate"),
			Version:    opts.has("version"),
		})
		if opts.has("discriminator") {
			discriminator = prop
		}
	}
	return cols, embeddeds, relations, discriminator
}

// ValuesFromStruct converts a tagged model into a property map suitable for
// insert values, update sets and where filters. Zero-valued generated and
// date columns are omitted so the database can fill them.
func ValuesFromStruct(model any) (map[string]any, error) {
	v := reflect.ValueOf(model)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, errors.New("ValuesFromStruct: nil pointer")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, errors.New("ValuesFromStruct: expected struct, got " + v.Kind().String())
	}
	return structValues(v), nil
}

func structValues(v reflect.Value) map[string]any {
	t := v.Type()
	result := make(map[string]any)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if tag, ok := field.Tag.Lookup("db"); ok {
			if column, _ := parseDBTag(tag); column == "-" {
				continue
			}
		}
		fv := v.Field(i)
		opts := parseOptions(field.Tag.Get("quarry"))
		prop := opts.get("property", propertyName(field.Name))

		if field.Anonymous && indirect(field.Type).Kind() == reflect.Struct && !opts.has("embedded") {
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			for k, val := range structValues(fv) {
				result[k] = val
			}
			continue
		}

		if opts.has("embedded") || opts.has("relation") {
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct && fv.Type() != timeType {
				result[prop] = structValues(fv)
			}
			continue
		}

		if fv.IsZero() && (opts.has("generated") || opts.has("createDate") || opts.has("updateDate") ||
			opts.has("deleteDate") || opts.has("version")) {
			continue
		}
		result[prop] = fv.Interface()
	}
	return result
}

// parseDBTag parses db tag to extract column name and pk flag.
//
// Supported formats:
//   - "column"       -> column="column", isPK=false
//   - "column,pk"    -> column="column", isPK=true
//   - "-"            -> column="-", isPK=false (skip field)
func parseDBTag(tag string) (column string, isPK bool) {
	parts := strings.Split(tag, ",")
	column = strings.TrimSpace(parts[0])
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "pk" {
			isPK = true
			break
		}
	}
	return column, isPK
}

type tagOptions map[string]string

func parseOptions(tag string) tagOptions {
	opts := make(tagOptions)
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		opts[key] = value
	}
	return opts
}

func (o tagOptions) has(key string) bool {
	_, ok := o[key]
	return ok
}

func (o tagOptions) lookup(key string) (string, bool) {
	v, ok := o[key]
	return v, ok && v != ""
}

func (o tagOptions) get(key, fallback string) string {
	if v, ok := o.lookup(key); ok {
		return v
	}
	return fallback
}

func elemType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	return t
}

// propertyName lowers the leading upper-case run of a Go field name:
// ID -> id, UserID -> userID, CreatedAt -> createdAt, URLPath -> urlPath.
func propertyName(field string) string {
	runes := []rune(field)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n == 0 {
		return field
	}
	if n > 1 && n < len(runes) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
