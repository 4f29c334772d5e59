// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metadata

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ErrEntityNotFound is returned when no metadata is registered for a target.
var ErrEntityNotFound = errors.New("entity metadata not found")

// Provider gives query builders access to entity metadata. A target is an
// entity name, a table name, a reflect.Type, a model value or pointer, or
// an *EntityMetadata.
type Provider interface {
	GetMetadata(target any) (*EntityMetadata, error)
	HasMetadata(target any) bool
}

// Registry is an in-memory Provider. Schemas may be registered in any order;
// relations are resolved on first lookup after a registration.
type Registry struct {
	mu      sync.RWMutex
	naming  NamingStrategy
	schemas []EntitySchema
	byName  map[string]*EntityMetadata
	byTable map[string]*EntityMetadata
	byType  map[reflect.Type]*EntityMetadata
	dirty   bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNamingStrategy overrides the default snake_case naming.
func WithNamingStrategy(ns NamingStrategy) RegistryOption {
	return func(r *Registry) {
		r.naming = ns
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{naming: SnakeNamingStrategy{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds entity schemas.
func (r *Registry) Register(schemas ...EntitySchema) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas = append(r.schemas, schemas...)
	r.dirty = true
	return r
}

// Build resolves every registered schema and reports the first mapping error.
func (r *Registry) Build() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buildLocked()
}

// GetMetadata returns the metadata registered for target.
func (r *Registry) GetMetadata(target any) (*EntityMetadata, error) {
	if m, ok := target.(*EntityMetadata); ok {
		return m, nil
	}
	if err := r.Build(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	switch t := target.(type) {
	case string:
		if m, ok := r.byName[t]; ok {
			return m, nil
		}
		if m, ok := r.byTable[t]; ok {
			return m, nil
		}
	case reflect.Type:
		if m, ok := r.byType[indirect(t)]; ok {
			return m, nil
		}
	case nil:
	default:
		rt := indirect(reflect.TypeOf(target))
		if m, ok := r.byType[rt]; ok {
			return m, nil
		}
		if m, ok := r.byName[rt.Name()]; ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrEntityNotFound, target)
}

// HasMetadata reports whether target resolves to registered metadata.
func (r *Registry) HasMetadata(target any) bool {
	_, err := r.GetMetadata(target)
	return err == nil
}

// Entities returns every resolved entity ordered by name.
func (r *Registry) Entities() ([]*EntityMetadata, error) {
	if err := r.Build(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*EntityMetadata, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Registry) buildLocked() error {
	if !r.dirty && r.byName != nil {
		return nil
	}

	b := &builder{
		naming:  r.naming,
		byName:  make(map[string]*EntityMetadata, len(r.schemas)),
		schemas: make(map[*EntityMetadata]*EntitySchema, len(r.schemas)),
		rels:    make(map[*RelationMetadata]RelationSchema),
	}
	if err := b.build(r.schemas); err != nil {
		return err
	}

	r.byName = b.byName
	r.byTable = make(map[string]*EntityMetadata, len(b.byName))
	r.byType = make(map[reflect.Type]*EntityMetadata)
	for _, m := range b.byName {
		if m.Parent == nil {
			r.byTable[m.TablePath()] = m
		}
		if m.GoType != nil {
			r.byType[m.GoType] = m
		}
	}
	r.dirty = false
	return nil
}

// builder resolves a batch of schemas into linked metadata.
type builder struct {
	naming  NamingStrategy
	byName  map[string]*EntityMetadata
	schemas map[*EntityMetadata]*EntitySchema
	rels    map[*RelationMetadata]RelationSchema
}

func (b *builder) build(schemas []EntitySchema) error {
	ordered := make([]*EntityMetadata, 0, len(schemas))
	for i := range schemas {
		s := &schemas[i]
		if s.Name == "" {
			return errors.New("metadata: entity without a name")
		}
		if _, dup := b.byName[s.Name]; dup {
			return fmt.Errorf("metadata: entity %s registered twice", s.Name)
		}
		m, err := b.newEntity(s)
		if err != nil {
			return err
		}
		b.byName[s.Name] = m
		b.schemas[m] = s
		ordered = append(ordered, m)
	}

	done := make(map[*EntityMetadata]bool)
	for _, m := range ordered {
		if err := b.inherit(m, done, nil); err != nil {
			return err
		}
	}
	for _, m := range ordered {
		b.deriveSpecialColumns(m)
	}

	for _, m := range ordered {
		for _, rel := range m.Relations {
			if err := b.resolveOwner(m, rel); err != nil {
				return err
			}
		}
	}
	for _, m := range ordered {
		for _, rel := range m.Relations {
			if err := b.linkInverse(m, rel); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) newEntity(s *EntitySchema) (*EntityMetadata, error) {
	m := &EntityMetadata{
		Name:               s.Name,
		TableName:          s.Table,
		Schema:             s.Schema,
		GoType:             s.goType,
		DiscriminatorValue: s.DiscriminatorValue,
		HasTriggers:        s.Triggers,
	}
	if m.TableName == "" {
		m.TableName = b.naming.TableName(s.Name)
	}
	if m.DiscriminatorValue == "" {
		m.DiscriminatorValue = s.Name
	}

	for _, cs := range s.Columns {
		if err := b.addColumn(m, nil, cs, ""); err != nil {
			return nil, err
		}
	}
	for _, es := range s.Embeddeds {
		em, err := b.newEmbedded(m, nil, es)
		if err != nil {
			return nil, err
		}
		m.Embeddeds = append(m.Embeddeds, em)
	}
	for _, rs := range s.Relations {
		m.Relations = append(m.Relations, b.newRelation(m, nil, rs))
	}

	if s.Discriminator != "" {
		col := m.FindColumnWithPropertyPath(s.Discriminator)
		if col == nil {
			col = &ColumnMetadata{
				Entity:       m,
				PropertyName: s.Discriminator,
				DatabaseName: b.naming.ColumnName(s.Discriminator, ""),
			}
			m.Columns = append(m.Columns, col)
		}
		col.IsDiscriminator = true
	}
	return m, nil
}

func (b *builder) addColumn(m *EntityMetadata, em *EmbeddedMetadata, cs ColumnSchema, prefix string) error {
	if cs.Property == "" {
		return fmt.Errorf("metadata: entity %s declares a column without a property", m.Name)
	}
	col := &ColumnMetadata{
		Entity:       m,
		Embedded:     em,
		PropertyName: cs.Property,
		DatabaseName: cs.Name,
		Type:         cs.Type,
		IsPrimary:    cs.Primary,
		IsGenerated:  cs.Generated,
		IsNullable:   cs.Nullable || cs.DeleteDate,
		IsCreateDate: cs.CreateDate,
		IsUpdateDate: cs.UpdateDate,
		IsDeleteDate: cs.DeleteDate,
		IsVersion:    cs.Version,
	}
	if col.DatabaseName == "" {
		col.DatabaseName = b.naming.ColumnName(cs.Property, prefix)
	} else {
		col.DatabaseName = prefix + col.DatabaseName
	}
	if m.FindColumnWithPropertyPath(col.PropertyPath()) != nil {
		return fmt.Errorf("metadata: entity %s declares property %s twice", m.Name, col.PropertyPath())
	}
	m.Columns = append(m.Columns, col)
	if em != nil {
		em.Columns = append(em.Columns, col)
	}
	return nil
}

func (b *builder) newEmbedded(m *EntityMetadata, parent *EmbeddedMetadata, es EmbeddedSchema) (*EmbeddedMetadata, error) {
	em := &EmbeddedMetadata{Parent: parent, PropertyName: es.Property}
	if es.Prefix != nil {
		em.Prefix = *es.Prefix
	} else {
		em.Prefix = b.naming.ColumnName(es.Property, "") + "_"
	}
	prefix := em.Prefix
	if parent != nil {
		prefix = parent.fullPrefix() + prefix
	}

	for _, cs := range es.Columns {
		if err := b.addColumn(m, em, cs, prefix); err != nil {
			return nil, err
		}
	}
	for _, child := range es.Embeddeds {
		sub, err := b.newEmbedded(m, em, child)
		if err != nil {
			return nil, err
		}
		em.Embeddeds = append(em.Embeddeds, sub)
	}
	for _, rs := range es.Relations {
		rel := b.newRelation(m, em, rs)
		em.Relations = append(em.Relations, rel)
		m.Relations = append(m.Relations, rel)
	}
	return em, nil
}

func (em *EmbeddedMetadata) fullPrefix() string {
	if em.Parent == nil {
		return em.Prefix
	}
	return em.Parent.fullPrefix() + em.Prefix
}

func (b *builder) newRelation(m *EntityMetadata, em *EmbeddedMetadata, rs RelationSchema) *RelationMetadata {
	rel := &RelationMetadata{
		Entity:                  m,
		Embedded:                em,
		PropertyName:            rs.Property,
		Type:                    rs.Type,
		TargetName:              rs.Target,
		InverseSidePropertyPath: rs.Inverse,
	}
	b.rels[rel] = rs
	return rel
}

// inherit copies the parent's columns and relations into a single table
// inheritance child, parents first.
func (b *builder) inherit(m *EntityMetadata, done map[*EntityMetadata]bool, visiting []string) error {
	if done[m] {
		return nil
	}
	s := b.schemas[m]
	if s.Extends == "" {
		done[m] = true
		return nil
	}
	for _, name := range visiting {
		if name == m.Name {
			return fmt.Errorf("metadata: inheritance cycle through %s", m.Name)
		}
	}
	parent, ok := b.byName[s.Extends]
	if !ok {
		return fmt.Errorf("metadata: entity %s extends unknown entity %s", m.Name, s.Extends)
	}
	if err := b.inherit(parent, done, append(visiting, m.Name)); err != nil {
		return err
	}

	m.Parent = parent
	parent.Children = append(parent.Children, m)
	m.TableName = parent.TableName
	m.Schema = parent.Schema

	inherited := make([]*ColumnMetadata, 0, len(parent.Columns)+len(m.Columns))
	for _, pc := range parent.Columns {
		c := *pc
		c.Entity = m
		inherited = append(inherited, &c)
	}
	m.Columns = append(inherited, m.Columns...)

	rels := make([]*RelationMetadata, 0, len(parent.Relations)+len(m.Relations))
	for _, pr := range parent.Relations {
		r := *pr
		r.Entity = m
		b.rels[&r] = b.rels[pr]
		rels = append(rels, &r)
	}
	m.Relations = append(rels, m.Relations...)
	m.Embeddeds = append(append([]*EmbeddedMetadata{}, parent.Embeddeds...), m.Embeddeds...)
	done[m] = true
	return nil
}

func (b *builder) deriveSpecialColumns(m *EntityMetadata) {
	m.PrimaryColumns = nil
	for _, c := range m.Columns {
		switch {
		case c.IsPrimary:
			m.PrimaryColumns = append(m.PrimaryColumns, c)
		case c.IsCreateDate:
			m.CreateDateColumn = c
		case c.IsUpdateDate:
			m.UpdateDateColumn = c
		case c.IsDeleteDate:
			m.DeleteDateColumn = c
		case c.IsVersion:
			m.VersionColumn = c
		case c.IsDiscriminator:
			m.DiscriminatorColumn = c
		}
	}
}

// resolveOwner links the target entity and builds join columns or the
// junction table for the owning side of a relation.
func (b *builder) resolveOwner(m *EntityMetadata, rel *RelationMetadata) error {
	rs := b.rels[rel]
	target, ok := b.byName[rel.TargetName]
	if !ok {
		return fmt.Errorf("metadata: relation %s.%s targets unknown entity %q", m.Name, rel.PropertyPath(), rel.TargetName)
	}
	rel.Target = target

	switch rel.Type {
	case ManyToOne:
		return b.joinColumns(m, rel, rs.JoinColumns)
	case OneToOne:
		if len(rs.JoinColumns) > 0 || rs.Inverse == "" {
			return b.joinColumns(m, rel, rs.JoinColumns)
		}
	case OneToMany:
		if rs.Inverse == "" {
			return fmt.Errorf("metadata: one-to-many relation %s.%s needs an inverse side", m.Name, rel.PropertyPath())
		}
	case ManyToMany:
		if rs.JoinTable != nil || rs.Inverse == "" {
			return b.junction(m, rel, rs.JoinTable)
		}
	default:
		return fmt.Errorf("metadata: relation %s.%s has unknown type %q", m.Name, rel.PropertyPath(), rel.Type)
	}
	return nil
}

func (b *builder) joinColumns(m *EntityMetadata, rel *RelationMetadata, decl []JoinColumnSchema) error {
	target := rel.Target
	if len(decl) == 0 {
		for _, pk := range target.PrimaryColumns {
			decl = append(decl, JoinColumnSchema{
				Name:       b.naming.JoinColumnName(rel.PropertyName, pk.DatabaseName),
				Referenced: pk.DatabaseName,
			})
		}
	}
	if len(decl) == 0 {
		return fmt.Errorf("metadata: relation %s.%s: entity %s has no primary column to reference", m.Name, rel.PropertyPath(), target.Name)
	}

	for _, jc := range decl {
		ref := jc.Referenced
		if ref == "" && len(target.PrimaryColumns) > 0 {
			ref = target.PrimaryColumns[0].DatabaseName
		}
		referenced := target.FindColumnWithDatabaseName(ref)
		if referenced == nil {
			return fmt.Errorf("metadata: relation %s.%s references unknown column %s.%s", m.Name, rel.PropertyPath(), target.Name, ref)
		}
		col := &ColumnMetadata{
			Entity:           m,
			Embedded:         rel.Embedded,
			Relation:         rel,
			ReferencedColumn: referenced,
			PropertyName:     rel.PropertyName,
			DatabaseName:     jc.Name,
			Type:             referenced.Type,
			IsNullable:       true,
		}
		if existing := m.FindColumnWithDatabaseName(jc.Name); existing != nil {
			col.IsPrimary = existing.IsPrimary
			col.IsNullable = existing.IsNullable
		} else {
			m.Columns = append(m.Columns, col)
		}
		rel.JoinColumns = append(rel.JoinColumns, col)
	}
	return nil
}

func (b *builder) junction(m *EntityMetadata, rel *RelationMetadata, jt *JoinTableSchema) error {
	if jt == nil {
		jt = &JoinTableSchema{}
	}
	rel.JunctionTable = jt.Name
	if rel.JunctionTable == "" {
		rel.JunctionTable = b.naming.JoinTableName(m.TableName, rel.PropertyName, rel.Target.TableName)
	}

	owner, err := b.junctionColumns(m, jt.JoinColumns)
	if err != nil {
		return fmt.Errorf("metadata: relation %s.%s: %w", m.Name, rel.PropertyPath(), err)
	}
	inverse, err := b.junctionColumns(rel.Target, jt.InverseJoinColumns)
	if err != nil {
		return fmt.Errorf("metadata: relation %s.%s: %w", m.Name, rel.PropertyPath(), err)
	}
	rel.JunctionOwnerColumns = owner
	rel.JunctionInverseColumns = inverse
	rel.ownsJunction = true
	return nil
}

func (b *builder) junctionColumns(side *EntityMetadata, decl []JoinColumnSchema) ([]*ColumnMetadata, error) {
	if len(decl) == 0 {
		for _, pk := range side.PrimaryColumns {
			decl = append(decl, JoinColumnSchema{
				Name:       b.naming.JoinTableColumnName(side.TableName, pk.DatabaseName),
				Referenced: pk.DatabaseName,
			})
		}
	}
	if len(decl) == 0 {
		return nil, fmt.Errorf("entity %s has no primary column to reference", side.Name)
	}
	cols := make([]*ColumnMetadata, 0, len(decl))
	for _, jc := range decl {
		ref := jc.Referenced
		if ref == "" {
			ref = side.PrimaryColumns[0].DatabaseName
		}
		referenced := side.FindColumnWithDatabaseName(ref)
		if referenced == nil {
			return nil, fmt.Errorf("unknown referenced column %s.%s", side.Name, ref)
		}
		cols = append(cols, &ColumnMetadata{
			PropertyName:     jc.Name,
			DatabaseName:     jc.Name,
			Type:             referenced.Type,
			ReferencedColumn: referenced,
		})
	}
	return cols, nil
}

// linkInverse connects a relation to its inverse side and completes the
// non-owning side of one-to-one, one-to-many and many-to-many relations.
func (b *builder) linkInverse(m *EntityMetadata, rel *RelationMetadata) error {
	if rel.InverseSidePropertyPath == "" {
		return nil
	}
	inv := rel.Target.FindRelationWithPropertyPath(rel.InverseSidePropertyPath)
	if inv == nil {
		return fmt.Errorf("metadata: relation %s.%s: inverse side %s.%s not found",
			m.Name, rel.PropertyPath(), rel.Target.Name, rel.InverseSidePropertyPath)
	}
	rel.InverseRelation = inv

	switch rel.Type {
	case OneToMany:
		if inv.Type != ManyToOne {
			return fmt.Errorf("metadata: inverse side of one-to-many %s.%s must be many-to-one", m.Name, rel.PropertyPath())
		}
	case OneToOne:
		if !rel.IsOwning() && !inv.IsOwning() {
			return fmt.Errorf("metadata: neither side of one-to-one %s.%s owns join columns", m.Name, rel.PropertyPath())
		}
	case ManyToMany:
		if rel.ownsJunction {
			return nil
		}
		if !inv.ownsJunction {
			return fmt.Errorf("metadata: neither side of many-to-many %s.%s declares a join table", m.Name, rel.PropertyPath())
		}
		rel.JunctionTable = inv.JunctionTable
		rel.JunctionOwnerColumns = inv.JunctionInverseColumns
		rel.JunctionInverseColumns = inv.JunctionOwnerColumns
	}
	return nil
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
