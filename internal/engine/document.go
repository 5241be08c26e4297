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

// Package engine is the GraphQL execution engine the live-query store
// treats as an external collaborator: document parsing, operation
// selection, and synchronous execution against an internal/schema.Schema.
package engine

import (
	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

const (
	errNoOperation     = "document contains no operations"
	errAmbiguousOp     = "document contains multiple operations; operationName must select one"
	errUnknownOp       = "no operation named %q in document"
	errDirectiveLive   = "live"
	errDirectiveDefer  = "defer"
	errDirectiveStream = "stream"
)

// ParseDocument parses a query document. It does not validate the document
// against a schema; Execute reports fields its schema does not define, and
// passes arguments a field does not declare to its resolver unchecked.
func ParseDocument(query string) (*ast.QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query, Name: "query"})
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse document")
	}
	return doc, nil
}

// SelectOperation returns the operation a caller selected by name, or the
// document's sole operation if it contains exactly one and no name was
// given. It returns a gqlerror.List suitable for returning verbatim when
// the document is ambiguous or empty, per the document-level error kind.
func SelectOperation(doc *ast.QueryDocument, operationName string) (*ast.OperationDefinition, gqlerror.List) {
	if len(doc.Operations) == 0 {
		return nil, gqlerror.List{gqlerror.Errorf(errNoOperation)}
	}
	if operationName == "" {
		if len(doc.Operations) > 1 {
			return nil, gqlerror.List{gqlerror.Errorf(errAmbiguousOp)}
		}
		return doc.Operations[0], nil
	}
	for _, op := range doc.Operations {
		if op.Name == operationName {
			return op, nil
		}
	}
	return nil, gqlerror.List{gqlerror.Errorf(errUnknownOp, operationName)}
}

// HasDirective reports whether op carries a directive with the given name.
func HasDirective(op *ast.OperationDefinition, name string) bool {
	return op.Directives.ForName(name) != nil
}

// IsLive reports whether op is annotated with @live.
func IsLive(op *ast.OperationDefinition) bool {
	return HasDirective(op, errDirectiveLive)
}

// HasDeferOrStream reports whether op mixes @defer or @stream with its
// selection. A validated document should never pair these with @live; see
// the scheduler's step 2 handling of this case.
func HasDeferOrStream(op *ast.OperationDefinition) bool {
	return hasDeferOrStreamSelection(op.SelectionSet)
}

func hasDeferOrStreamSelection(set ast.SelectionSet) bool {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Directives.ForName(errDirectiveStream) != nil {
				return true
			}
			if hasDeferOrStreamSelection(s.SelectionSet) {
				return true
			}
		case *ast.InlineFragment:
			if s.Directives.ForName(errDirectiveDefer) != nil {
				return true
			}
			if hasDeferOrStreamSelection(s.SelectionSet) {
				return true
			}
		case *ast.FragmentSpread:
			if s.Directives.ForName(errDirectiveDefer) != nil {
				return true
			}
		}
	}
	return false
}
