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

package engine

import (
	"context"
	"reflect"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/upbound/livequery/internal/schema"
)

// Result is the outcome of one executeOnce call: the completed data tree
// and any errors gathered along the way. It is also the shape the scheduler
// wraps into a LiveResult.
type Result struct {
	Data   map[string]any
	Errors gqlerror.List
}

// Execute runs op synchronously against sch, the document it came from (for
// fragment lookups), variable values, a root value, and an arbitrary
// context value resolvers may read out of ctx. Callers that want live
// re-execution on invalidation wrap this as their single-shot run step.
func Execute(ctx context.Context, doc *ast.QueryDocument, sch *schema.Schema, op *ast.OperationDefinition, vars map[string]any, root any, contextValue any) *Result {
	rootType := sch.Query
	switch op.Operation {
	case ast.Mutation:
		rootType = sch.Mutation
	case ast.Subscription:
		rootType = sch.Subscription
	}

	ctx = withContextValue(ctx, contextValue)

	e := &execState{doc: doc, sch: sch, vars: vars}
	data, errs := e.executeSelectionSet(ctx, rootType, op.SelectionSet, root, ast.Path{})
	return &Result{Data: data, Errors: errs}
}

type execState struct {
	doc  *ast.QueryDocument
	sch  *schema.Schema
	vars map[string]any

	spreading map[string]bool // fragments being inlined, for cycle detection
}

// executeSelectionSet resolves every field in set against parentType and
// root, merging fragment spreads and inline fragments in along the way.
func (e *execState) executeSelectionSet(ctx context.Context, parentType *schema.Type, set ast.SelectionSet, root any, path ast.Path) (map[string]any, gqlerror.List) {
	fields, errs := e.collectFields(parentType, set)
	if len(errs) > 0 {
		return nil, errs
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		key := f.Alias
		if key == "" {
			key = f.Name
		}
		fieldPath := appendPath(path, ast.PathName(key))

		if f.Name == "__typename" {
			out[key] = parentType.Name
			continue
		}

		fieldDef := parentType.Fields[f.Name]
		if fieldDef == nil {
			errs = append(errs, &gqlerror.Error{
				Message: "field " + f.Name + " is not defined on type " + parentType.Name,
				Path:    fieldPath,
			})
			continue
		}

		args, aerrs := e.coerceArguments(f.Arguments, fieldDef.Args)
		if len(aerrs) > 0 {
			errs = append(errs, aerrs...)
			continue
		}

		var value any
		var err error
		if fieldDef.Resolve != nil {
			value, err = fieldDef.Resolve(ctx, root, args)
		}
		if err != nil {
			errs = append(errs, &gqlerror.Error{Message: err.Error(), Path: fieldPath})
			if schema.IsNonNull(fieldDef.Type) {
				return nil, errs
			}
			out[key] = nil
			continue
		}

		completed, cerrs := e.completeValue(ctx, fieldDef.Type, f.SelectionSet, value, fieldPath)
		if len(cerrs) > 0 {
			errs = append(errs, cerrs...)
			if schema.IsNonNull(fieldDef.Type) && completed == nil {
				return nil, errs
			}
		}
		out[key] = completed
	}
	return out, errs
}

// completeValue coerces a resolved value into its final shape, descending
// into objects and lists as the field's type demands.
func (e *execState) completeValue(ctx context.Context, t *schema.TypeRef, sel ast.SelectionSet, value any, path ast.Path) (any, gqlerror.List) {
	if schema.IsNonNull(t) {
		inner := schema.Unwrap(t)
		if value == nil {
			return nil, gqlerror.List{&gqlerror.Error{Message: "must not be null", Path: path}}
		}
		return e.completeValue(ctx, inner, sel, value, path)
	}
	if value == nil {
		return nil, nil
	}
	if schema.IsList(t) {
		return e.completeList(ctx, schema.Unwrap(t), sel, value, path)
	}

	named := schema.NamedType(t)
	typ, ok := e.sch.Types[named.Name]
	if !ok {
		return nil, gqlerror.List{&gqlerror.Error{Message: "unknown type " + named.Name, Path: path}}
	}

	switch typ.Kind {
	case schema.Object, schema.Interface:
		if sel == nil {
			return nil, nil
		}
		return e.executeSelectionSet(ctx, typ, sel, value, path)
	default:
		// Scalars and enums pass through verbatim; serialization to wire
		// format is a transport concern, not the engine's.
		return value, nil
	}
}

func (e *execState) completeList(ctx context.Context, elemType *schema.TypeRef, sel ast.SelectionSet, value any, path ast.Path) (any, gqlerror.List) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, gqlerror.List{&gqlerror.Error{Message: "resolved value is not a list", Path: path}}
	}

	var errs gqlerror.List
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		itemPath := appendPath(path, ast.PathIndex(i))
		item, ierrs := e.completeValue(ctx, elemType, sel, rv.Index(i).Interface(), itemPath)
		errs = append(errs, ierrs...)
		out[i] = item
	}
	return out, errs
}

// collectFields flattens fragment spreads and inline fragments into a flat
// list of fields to resolve, honoring @skip/@include and type conditions.
// Grounded on a general-purpose executor's selection-set collection pass,
// simplified for a synchronous single-result engine (no field merging
// across aliases is needed since every live query recomputes in full).
func (e *execState) collectFields(parentType *schema.Type, set ast.SelectionSet) ([]*ast.Field, gqlerror.List) {
	var fields []*ast.Field
	for _, sel := range set {
		if !e.shouldInclude(selectionDirectives(sel)) {
			continue
		}
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.InlineFragment:
			if s.TypeCondition != "" && !e.typeConditionMatches(parentType, s.TypeCondition) {
				continue
			}
			inner, errs := e.collectFields(parentType, s.SelectionSet)
			if len(errs) > 0 {
				return nil, errs
			}
			fields = append(fields, inner...)
		case *ast.FragmentSpread:
			frag := e.doc.Fragments.ForName(s.Name)
			if frag == nil {
				return nil, gqlerror.List{&gqlerror.Error{Message: "unknown fragment " + s.Name}}
			}
			if frag.TypeCondition != "" && !e.typeConditionMatches(parentType, frag.TypeCondition) {
				continue
			}
			if e.spreading[s.Name] {
				return nil, gqlerror.List{&gqlerror.Error{Message: "fragment " + s.Name + " spreads itself"}}
			}
			if e.spreading == nil {
				e.spreading = map[string]bool{}
			}
			e.spreading[s.Name] = true
			inner, errs := e.collectFields(parentType, frag.SelectionSet)
			delete(e.spreading, s.Name)
			if len(errs) > 0 {
				return nil, errs
			}
			fields = append(fields, inner...)
		}
	}
	return fields, nil
}

func (e *execState) typeConditionMatches(parentType *schema.Type, typeCondition string) bool {
	if typeCondition == parentType.Name {
		return true
	}
	for _, iface := range parentType.Interfaces {
		if iface == typeCondition {
			return true
		}
	}
	return false
}

func selectionDirectives(sel ast.Selection) ast.DirectiveList {
	switch s := sel.(type) {
	case *ast.Field:
		return s.Directives
	case *ast.InlineFragment:
		return s.Directives
	case *ast.FragmentSpread:
		return s.Directives
	}
	return nil
}

func (e *execState) shouldInclude(directives ast.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil {
		if v, ok := e.directiveBoolArg(d, "if"); ok && v {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if v, ok := e.directiveBoolArg(d, "if"); ok && !v {
			return false
		}
	}
	return true
}

func (e *execState) directiveBoolArg(d *ast.Directive, name string) (bool, bool) {
	arg := d.Arguments.ForName(name)
	if arg == nil {
		return false, false
	}
	v, err := arg.Value.Value(e.vars)
	if err != nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// coerceArguments evaluates an argument list against variable values,
// producing the Go-native argument map a Resolver and a
// collectResourceIdentifiers hook both receive.
func (e *execState) coerceArguments(args ast.ArgumentList, defs map[string]*schema.InputValue) (map[string]any, gqlerror.List) {
	out := make(map[string]any, len(args))
	var errs gqlerror.List
	for _, arg := range args {
		v, err := arg.Value.Value(e.vars)
		if err != nil {
			errs = append(errs, &gqlerror.Error{Message: "cannot coerce argument " + arg.Name + ": " + err.Error()})
			continue
		}
		out[arg.Name] = v
	}
	for name, def := range defs {
		if _, ok := out[name]; !ok && def.DefaultValue != nil {
			out[name] = def.DefaultValue
		}
	}
	return out, errs
}

// Collector flattens selection sets, honoring @skip/@include and fragment
// spreads/inline fragments. It is shared by the engine's own execution and
// by the live-query identifier extractor, which walks the same selection
// set shape against already-resolved data instead of live resolvers.
type Collector struct {
	Doc  *ast.QueryDocument
	Vars map[string]any
}

// CollectFields returns the flattened, skip/include-filtered, fragment-
// inlined field list for set under parentType.
func (c *Collector) CollectFields(parentType *schema.Type, set ast.SelectionSet) ([]*ast.Field, gqlerror.List) {
	e := &execState{doc: c.Doc, vars: c.Vars}
	return e.collectFields(parentType, set)
}

// appendPath returns path with elem appended without risking that a later
// sibling append clobbers an earlier one through a shared backing array.
func appendPath(path ast.Path, elem ast.PathElement) ast.Path {
	p := make(ast.Path, len(path), len(path)+1)
	copy(p, path)
	return append(p, elem)
}

type contextValueKey struct{}

func withContextValue(ctx context.Context, v any) context.Context {
	if v == nil {
		return ctx
	}
	return context.WithValue(ctx, contextValueKey{}, v)
}

// ContextValue recovers the contextValue passed to Execute, the way a
// resolver reaches request-scoped collaborators (loaders, auth, clients).
func ContextValue(ctx context.Context) any {
	return ctx.Value(contextValueKey{})
}
