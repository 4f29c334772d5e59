// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/quarry/internal/metadata"
)

// AliasType tells where an alias was introduced.
type AliasType string

// Alias types.
const (
	AliasFrom  AliasType = "from"
	AliasJoin  AliasType = "join"
	AliasOther AliasType = "other"
)

// Alias names a table, sub-query or entity within one query. Exactly one of
// Metadata, TablePath and SubQuery is the source of rows.
type Alias struct {
	Type     AliasType
	Name     string
	Metadata *metadata.EntityMetadata
	// TablePath is a literal, possibly schema-qualified, table name.
	TablePath string
	// SubQuery is rendered SQL, already wrapped in parentheses.
	SubQuery string
}

// HasMetadata reports whether the alias refers to a mapped entity.
func (a *Alias) HasMetadata() bool {
	return a.Metadata != nil
}

// Table returns the table the alias reads from, "" for sub-queries.
func (a *Alias) Table() string {
	if a.TablePath != "" {
		return a.TablePath
	}
	if a.Metadata != nil {
		return a.Metadata.TablePath()
	}
	return ""
}

// AliasOptions describes an alias to register.
type AliasOptions struct {
	Type      AliasType
	Name      string
	Metadata  *metadata.EntityMetadata
	TablePath string
	SubQuery  string
}

// CreateAlias registers a new alias. Without a name, one is derived from the
// table or entity and suffixed with _1, _2, ... until it is unique.
func (e *ExpressionMap) CreateAlias(opts AliasOptions) (*Alias, error) {
	name := opts.Name
	if name == "" {
		name = e.uniqueAliasName(aliasBase(opts))
	} else if _, exists := e.FindAliasByName(name); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAlias, name)
	}

	alias := &Alias{
		Type:      opts.Type,
		Name:      name,
		Metadata:  opts.Metadata,
		TablePath: opts.TablePath,
		SubQuery:  opts.SubQuery,
	}
	if alias.Type == "" {
		alias.Type = AliasOther
	}
	e.Aliases = append(e.Aliases, alias)
	return alias, nil
}

// FindAliasByName returns the alias registered under name.
func (e *ExpressionMap) FindAliasByName(name string) (*Alias, bool) {
	for _, a := range e.Aliases {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

func (e *ExpressionMap) uniqueAliasName(base string) string {
	if _, taken := e.FindAliasByName(base); !taken {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if _, taken := e.FindAliasByName(candidate); !taken {
			return candidate
		}
	}
}

func aliasBase(opts AliasOptions) string {
	switch {
	case opts.TablePath != "":
		parts := strings.Split(opts.TablePath, ".")
		return parts[len(parts)-1]
	case opts.Metadata != nil:
		return opts.Metadata.TableName
	case opts.SubQuery != "":
		return "subquery"
	}
	return "alias"
}
