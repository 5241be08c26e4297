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

package livequery_test

import (
	"context"

	"github.com/upbound/livequery/internal/schema"
)

// testPost is the backing store a createTestSchema schema's Query.post
// resolver reads, mutable between pulls so tests can simulate underlying
// state changes between live re-executions.
type testPost struct {
	id    string
	title string
}

// testState is the small piece of mutable state a createTestSchema schema
// closes over: foo's current value and the post by id.
type testState struct {
	foo   string
	posts map[string]*testPost
}

func newTestState() *testState {
	return &testState{
		foo: "queried",
		posts: map[string]*testPost{
			"1": {id: "1", title: "lel"},
		},
	}
}

// createTestSchema builds the schema used throughout this package's tests:
// Query.foo, Query.post(id), and Query.ping(id) (whose field extension
// contributes args["id"] as an extra resource identifier). idFieldName
// lets a caller exercise a non-default object-identifier field name.
func createTestSchema(state *testState, idFieldName string) *schema.Schema {
	if idFieldName == "" {
		idFieldName = "id"
	}

	postType := schema.NewType("Post")
	postType.AddField(&schema.Field{
		Name: idFieldName,
		Type: schema.NonNullOf(schema.Named("ID")),
		Resolve: func(_ context.Context, root any, _ map[string]any) (any, error) {
			return root.(*testPost).id, nil
		},
	})
	postType.AddField(&schema.Field{
		Name: "title",
		Type: schema.Named("String"),
		Resolve: func(_ context.Context, root any, _ map[string]any) (any, error) {
			return root.(*testPost).title, nil
		},
	})

	query := schema.NewType("Query")
	query.AddField(&schema.Field{
		Name: "foo",
		Type: schema.Named("String"),
		Resolve: func(_ context.Context, _ any, _ map[string]any) (any, error) {
			return state.foo, nil
		},
	})
	query.AddField(&schema.Field{
		Name: "post",
		Type: schema.Named("Post"),
		Args: map[string]*schema.InputValue{
			"id": {Name: "id", Type: schema.NonNullOf(schema.Named("ID"))},
		},
		Resolve: func(_ context.Context, _ any, args map[string]any) (any, error) {
			id, _ := args["id"].(string)
			return state.posts[id], nil
		},
	})
	query.AddField(&schema.Field{
		Name: "ping",
		Type: schema.Named("String"),
		Args: map[string]*schema.InputValue{
			"id": {Name: "id", Type: schema.NonNullOf(schema.Named("ID"))},
		},
		Resolve: func(_ context.Context, _ any, args map[string]any) (any, error) {
			return "pong", nil
		},
		Extensions: map[string]any{
			"liveQuery": &schema.LiveQueryExtension{
				CollectResourceIdentifiers: func(_ any, args map[string]any) []string {
					id, _ := args["id"].(string)
					return []string{id}
				},
			},
		},
	})

	sch := schema.New()
	sch.AddType(postType)
	sch.SetQueryType(query)
	return sch
}
