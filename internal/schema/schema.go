// Copyright 2021 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package schema is a small, hand-built GraphQL type system used by the
// engine and the live-query store. It is not generated from SDL; schemas
// are assembled in Go with the builder methods below.
package schema

import (
	"context"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
)

// TypeKind classifies a Type.
type TypeKind string

// The kinds of type a Type can be.
const (
	Scalar      TypeKind = "SCALAR"
	Object      TypeKind = "OBJECT"
	Interface   TypeKind = "INTERFACE"
	Union       TypeKind = "UNION"
	Enum        TypeKind = "ENUM"
	InputObject TypeKind = "INPUT_OBJECT"
	List        TypeKind = "LIST"
	NonNull     TypeKind = "NON_NULL"
)

// Resolver produces the value of a single field.
type Resolver func(ctx context.Context, root any, args map[string]any) (any, error)

// LiveQueryExtension is the field extension a schema author attaches to
// contribute extra resource identifiers beyond the schema coordinate the
// extractor derives automatically. See the identifier extractor in
// internal/livequery.
type LiveQueryExtension struct {
	// CollectResourceIdentifiers is invoked with the field's resolved root
	// value and argument values. Its return is merged, string by string,
	// into the live query's identifier set. Empty strings are dropped.
	CollectResourceIdentifiers func(root any, args map[string]any) []string
}

// TypeRef is a (possibly wrapped) reference to a named type: NonNull and
// List wrap an inner TypeRef; everything else names a Type directly.
type TypeRef struct {
	Kind   TypeKind
	OfType *TypeRef
	Name   string
}

// Named constructs a reference to the type with the given name.
func Named(name string) *TypeRef { return &TypeRef{Kind: Object, Name: name} }

// NonNullOf wraps a TypeRef as non-null.
func NonNullOf(t *TypeRef) *TypeRef { return &TypeRef{Kind: NonNull, OfType: t} }

// ListOf wraps a TypeRef as a list.
func ListOf(t *TypeRef) *TypeRef { return &TypeRef{Kind: List, OfType: t} }

// IsNonNull reports whether t is a non-null wrapper.
func IsNonNull(t *TypeRef) bool { return t != nil && t.Kind == NonNull }

// IsList reports whether t is a list wrapper.
func IsList(t *TypeRef) bool { return t != nil && t.Kind == List }

// Unwrap strips a single layer of NonNull or List, returning the inner type.
// It returns t unchanged if t names a type directly.
func Unwrap(t *TypeRef) *TypeRef {
	if t == nil || t.OfType == nil {
		return t
	}
	return t.OfType
}

// NamedType strips every List and NonNull wrapper and returns the innermost
// named reference.
func NamedType(t *TypeRef) *TypeRef {
	for t != nil && t.OfType != nil {
		t = t.OfType
	}
	return t
}

// InputValue describes an argument or input field.
type InputValue struct {
	Name         string
	Type         *TypeRef
	DefaultValue any
}

// Field describes one field of an Object or Interface type.
type Field struct {
	Name       string
	Type       *TypeRef
	Args       map[string]*InputValue
	Resolve    Resolver
	Extensions map[string]any
}

// LiveQuery returns the field's live query extension, or nil if it has none.
func (f *Field) LiveQuery() *LiveQueryExtension {
	if f == nil || f.Extensions == nil {
		return nil
	}
	ext, _ := f.Extensions["liveQuery"].(*LiveQueryExtension)
	return ext
}

// EnumValue is one member of an Enum type.
type EnumValue struct {
	Name string
}

// Type is a named type in the schema: an object, interface, union, enum,
// input object, or scalar.
type Type struct {
	Name        string
	Kind        TypeKind
	Description string
	Fields      map[string]*Field
	Interfaces  []string
	EnumValues  map[string]*EnumValue
	InputFields map[string]*InputValue

	// IDFieldName names the field on this type that, when selected and
	// non-null, yields an object identifier (TypeName:idValue). Empty means
	// the live-query store's configured ID field name applies.
	IDFieldName string
}

// AddField registers a field on an Object or Interface type and returns the
// type, so calls can be chained.
func (t *Type) AddField(f *Field) *Type {
	if t.Fields == nil {
		t.Fields = map[string]*Field{}
	}
	t.Fields[f.Name] = f
	return t
}

// WithIDField marks fieldName as this type's object-identifier field.
func (t *Type) WithIDField(fieldName string) *Type {
	t.IDFieldName = fieldName
	return t
}

// Directive describes a schema directive definition.
type Directive struct {
	Name string
	Args map[string]*InputValue
}

// Schema is a complete GraphQL type system: root operation types, every
// named type reachable from them, and the directives it recognizes.
type Schema struct {
	Query        *Type
	Mutation     *Type
	Subscription *Type
	Types        map[string]*Type
	Directives   map[string]*Directive
}

// New returns an empty Schema pre-populated with the built-in scalar types
// and directives every schema carries.
func New() *Schema {
	s := &Schema{
		Types:      map[string]*Type{},
		Directives: map[string]*Directive{},
	}
	for _, t := range builtinScalars() {
		s.Types[t.Name] = t
	}
	for _, d := range builtinDirectives() {
		s.Directives[d.Name] = d
	}
	return s
}

// AddType registers t in the schema and returns it, so calls can be chained
// into further AddField calls.
func (s *Schema) AddType(t *Type) *Type {
	s.Types[t.Name] = t
	return t
}

// SetQueryType designates t as the schema's query root, registering it if
// necessary.
func (s *Schema) SetQueryType(t *Type) *Schema {
	s.Query = t
	s.Types[t.Name] = t
	return s
}

// SetMutationType designates t as the schema's mutation root, registering it
// if necessary.
func (s *Schema) SetMutationType(t *Type) *Schema {
	s.Mutation = t
	s.Types[t.Name] = t
	return s
}

// NewType constructs an empty Object type with the given name.
func NewType(name string) *Type {
	return &Type{Name: name, Kind: Object, Fields: map[string]*Field{}}
}

// NewScalarType constructs a scalar type with the given name.
func NewScalarType(name string) *Type {
	return &Type{Name: name, Kind: Scalar}
}

// TypeByName looks up a registered type, returning an error if it is
// unknown.
func (s *Schema) TypeByName(name string) (*Type, error) {
	t, ok := s.Types[name]
	if !ok {
		return nil, errors.Errorf("unknown type %q", name)
	}
	return t, nil
}

func builtinScalars() []*Type {
	return []*Type{
		NewScalarType("String"),
		NewScalarType("Int"),
		NewScalarType("Float"),
		NewScalarType("Boolean"),
		NewScalarType("ID"),
	}
}

func builtinDirectives() []*Directive {
	return []*Directive{
		{Name: "skip", Args: map[string]*InputValue{"if": {Name: "if", Type: NonNullOf(Named("Boolean"))}}},
		{Name: "include", Args: map[string]*InputValue{"if": {Name: "if", Type: NonNullOf(Named("Boolean"))}}},
		{Name: "live", Args: map[string]*InputValue{}},
		{Name: "defer", Args: map[string]*InputValue{"label": {Name: "label", Type: Named("String")}}},
		{Name: "stream", Args: map[string]*InputValue{"label": {Name: "label", Type: Named("String")}}},
	}
}
