// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metadata

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a schema document. Unknown keys are rejected.
func ParseYAML(r io.Reader) ([]EntitySchema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("metadata: decode schema: %w", err)
	}
	return doc.Entities, nil
}

// LoadYAML registers every entity of a YAML schema document.
func (r *Registry) LoadYAML(rd io.Reader) error {
	schemas, err := ParseYAML(rd)
	if err != nil {
		return err
	}
	r.Register(schemas...)
	return nil
}

// LoadYAMLFile registers every entity of the YAML schema file at path.
func (r *Registry) LoadYAMLFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.LoadYAML(f)
}
