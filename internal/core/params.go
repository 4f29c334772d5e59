// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
)

// Params maps parameter names to values. Rendered SQL references a
// parameter as :name, or :...name to spread a slice.
//
// Example:
//
//	qb.Where("u.createdAt > :since", quarry.Params{"since": since})
type Params map[string]any

// parameterPrefix names parameters minted for filter values.
const parameterPrefix = "orm_param_"

// discriminatorParameter holds the discriminator values of an inheritance child.
const discriminatorParameter = "discriminatorColumnValues"

var parameterKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// validateParameter checks the key syntax and rejects function values.
func validateParameter(key string, value any) error {
	if value != nil && reflect.TypeOf(value).Kind() == reflect.Func {
		return fmt.Errorf("%w: %s", ErrFunctionParameter, key)
	}
	if !parameterKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidParameterKey, key)
	}
	return nil
}

// setParameter validates and stores a parameter here and in every ancestor.
func (qb *QueryBuilder) setParameter(key string, value any) error {
	if err := validateParameter(key, value); err != nil {
		return err
	}
	if qb.parent != nil {
		if err := qb.parent.setParameter(key, value); err != nil {
			return err
		}
	}
	qb.expr.Parameters[key] = value
	return nil
}

// HasParameter reports whether key is bound on this builder or an ancestor.
func (qb *QueryBuilder) HasParameter(key string) bool {
	if qb.parent != nil && qb.parent.HasParameter(key) {
		return true
	}
	_, ok := qb.expr.Parameters[key]
	return ok
}

// SetParameter binds a named parameter.
func (qb *QueryBuilder) SetParameter(key string, value any) *QueryBuilder {
	qb.fail(qb.setParameter(key, value))
	return qb
}

// SetParameters binds several named parameters.
func (qb *QueryBuilder) SetParameters(params Params) *QueryBuilder {
	for _, key := range sortedKeys(params) {
		if err := qb.setParameter(key, params[key]); err != nil {
			qb.fail(err)
			break
		}
	}
	return qb
}

// SetNativeParameters binds driver parameters that bypass :name
// substitution. They are bound ahead of named parameters.
func (qb *QueryBuilder) SetNativeParameters(params Params) *QueryBuilder {
	if qb.parent != nil {
		qb.parent.SetNativeParameters(params)
	}
	for key, value := range params {
		qb.expr.NativeParameters[key] = value
	}
	return qb
}

// createParameter binds value under a fresh orm_param_N name and returns
// the :name reference.
func (qb *QueryBuilder) createParameter(value any) (string, error) {
	var name string
	for {
		name = parameterPrefix + strconv.Itoa(qb.paramIndex)
		qb.paramIndex++
		if !qb.HasParameter(name) {
			break
		}
	}
	if err := qb.setParameter(name, value); err != nil {
		return "", err
	}
	return ":" + name, nil
}

// GetParameters returns every parameter the rendered query references,
// including values minted while rendering insert and update statements.
func (qb *QueryBuilder) GetParameters() Params {
	rc := qb.newRenderContext(false)
	if _, err := rc.statement(qb, true); err != nil {
		return qb.buildParameters()
	}
	return rc.params
}

// buildParameters copies the parameters collected while building and adds
// the discriminator values of an inheritance child.
func (qb *QueryBuilder) buildParameters() Params {
	params := make(Params, len(qb.expr.Parameters)+1)
	for k, v := range qb.expr.Parameters {
		params[k] = v
	}
	if main := qb.expr.MainAlias; main != nil && main.HasMetadata() {
		if m := main.Metadata; m.DiscriminatorColumn != nil && m.Parent != nil {
			params[discriminatorParameter] = m.ChildDiscriminatorValues()
		}
	}
	return params
}
