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

// Package livequery is the live-query store: the resource-identifier
// extractor, the record and its output channel, the identifier index, the
// per-record coalescing scheduler, and the execute dispatcher that ties
// them together. Everything in this package is pure bookkeeping around a
// caller-supplied engine.Execute call; it never parses or resolves a
// GraphQL document itself.
package livequery

import (
	"encoding/json"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/upbound/livequery/internal/schema"
)

// identifierSet is a set of non-empty resource identifier strings.
type identifierSet map[string]struct{}

func newIdentifierSet() identifierSet { return identifierSet{} }

func (s identifierSet) add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}

func (s identifierSet) addAll(ids []string) {
	for _, id := range ids {
		s.add(id)
	}
}

// sorted returns the set's members in lexicographic order, with no
// duplicates, in a stable order across calls.
func (s identifierSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// extractIdentifiers walks op's selection set against data and returns the
// full set of resource identifiers the result depends on: schema
// coordinates (plain and argument-qualified) for the operation's top-level
// fields, object identifiers and field-extension identifiers at any depth.
func extractIdentifiers(sch *schema.Schema, flatten fieldFlattener, rootType *schema.Type, set ast.SelectionSet, vars map[string]any, root any, data map[string]any, idFieldName string) []string {
	ids := newIdentifierSet()
	walkSelectionSet(sch, flatten, rootType, set, vars, root, data, idFieldName, true, ids)
	return ids.sorted()
}

// fieldFlattener flattens a selection set into concrete fields, inlining
// fragments and applying @skip/@include. Implemented by engine.Collector;
// kept as a narrow interface here so the extractor depends only on the AST
// shapes and this one seam, not on the rest of the engine package.
type fieldFlattener interface {
	CollectFields(parentType *schema.Type, set ast.SelectionSet) ([]*ast.Field, gqlerror.List)
}

func walkSelectionSet(sch *schema.Schema, flatten fieldFlattener, parentType *schema.Type, set ast.SelectionSet, vars map[string]any, root any, data map[string]any, idFieldName string, topLevel bool, ids identifierSet) {
	if parentType == nil || data == nil {
		return
	}

	objectIdentifier(parentType, data, idFieldName, ids)

	fields, errs := flatten.CollectFields(parentType, set)
	if len(errs) > 0 {
		return
	}

	for _, f := range fields {
		if f.Name == "__typename" {
			continue
		}
		fieldDef := parentType.Fields[f.Name]
		if fieldDef == nil {
			continue
		}

		key := f.Alias
		if key == "" {
			key = f.Name
		}

		args := argumentValues(f, vars)
		if topLevel {
			ids.add(parentType.Name + "." + f.Name)
			if len(args) > 0 {
				ids.add(coordinateWithArgs(parentType.Name, f.Name, args))
			}
		}

		if ext := fieldDef.LiveQuery(); ext != nil && ext.CollectResourceIdentifiers != nil {
			ids.addAll(ext.CollectResourceIdentifiers(root, args))
		}

		child, ok := data[key]
		if !ok || child == nil {
			continue
		}

		childType := resolveNamedType(sch, fieldDef.Type)
		if childType == nil {
			continue
		}

		switch v := child.(type) {
		case map[string]any:
			walkSelectionSet(sch, flatten, childType, f.SelectionSet, vars, child, v, idFieldName, false, ids)
		case []any:
			for _, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				walkSelectionSet(sch, flatten, childType, f.SelectionSet, vars, item, m, idFieldName, false, ids)
			}
		}
	}
}

// objectIdentifier emits TypeName:idValue when data carries a non-nil
// value for the configured (or type-local) ID field and the type declares
// that field as non-null.
func objectIdentifier(t *schema.Type, data map[string]any, idFieldName string, ids identifierSet) {
	name := t.IDFieldName
	if name == "" {
		name = idFieldName
	}
	if name == "" {
		return
	}
	fieldDef, ok := t.Fields[name]
	if !ok || !schema.IsNonNull(fieldDef.Type) {
		return
	}
	v, ok := data[name]
	if !ok || v == nil {
		return
	}
	ids.add(t.Name + ":" + stringify(v))
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func resolveNamedType(sch *schema.Schema, t *schema.TypeRef) *schema.Type {
	named := schema.NamedType(t)
	if named == nil {
		return nil
	}
	return sch.Types[named.Name]
}

// argumentValues evaluates a field's arguments against variable values,
// using the same canonical-JSON-ready Go values the engine itself produces.
func argumentValues(f *ast.Field, vars map[string]any) map[string]any {
	if len(f.Arguments) == 0 {
		return nil
	}
	out := make(map[string]any, len(f.Arguments))
	for _, arg := range f.Arguments {
		v, err := arg.Value.Value(vars)
		if err != nil {
			continue
		}
		out[arg.Name] = v
	}
	return out
}

// coordinateWithArgs renders TypeName.fieldName(arg:json,arg:json,...)
// with arguments sorted lexicographically by name and values rendered as
// canonical JSON (encoding/json already emits map keys in sorted order and
// no incidental whitespace, so no third-party canonicalizer is needed here;
// see DESIGN.md).
func coordinateWithArgs(typeName, fieldName string, args map[string]any) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	out := typeName + "." + fieldName + "("
	for i, name := range names {
		if i > 0 {
			out += ","
		}
		b, err := json.Marshal(args[name])
		if err != nil {
			b = []byte("null")
		}
		out += name + ":" + string(b)
	}
	out += ")"
	return out
}
