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

// Package demo provides a small, self-contained schema and backing store for
// operators exploring the live-query transport without wiring up a schema of
// their own, selected by the cmd entry point's --demo-schema flag.
package demo

import (
	"context"
	"sync"

	"github.com/upbound/livequery/internal/schema"
)

// Counter is the demo's mutable state: a single named counter whose value
// changes over time, read by Query.counter and bumped by Mutation.increment.
type Counter struct {
	mu    sync.Mutex
	value int
}

// Value returns the counter's current value.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Increment adds delta to the counter and returns its new value.
func (c *Counter) Increment(delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += delta
	return c.value
}

// intArg coerces a coerced argument value to int. gqlparser's ast.Value.Value
// returns int64 for integer literals but variable-sourced values arrive as
// whatever the caller's JSON decoder produced (float64, from encoding/json).
func intArg(v any, fallback int) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

// Schema builds the demo schema closing over counter: a Query.counter field
// (identified by the schema coordinate "Query.counter") and a
// Mutation.increment field that mutates it. Callers are expected to call
// Store.Invalidate(ctx, "Query.counter") themselves after a successful
// increment, the way any mutation-driven invalidation source would.
func Schema(counter *Counter) *schema.Schema {
	query := schema.NewType("Query")
	query.AddField(&schema.Field{
		Name: "counter",
		Type: schema.NonNullOf(schema.Named("Int")),
		Resolve: func(_ context.Context, _ any, _ map[string]any) (any, error) {
			return counter.Value(), nil
		},
	})

	mutation := schema.NewType("Mutation")
	mutation.AddField(&schema.Field{
		Name: "increment",
		Type: schema.NonNullOf(schema.Named("Int")),
		Args: map[string]*schema.InputValue{
			"delta": {Name: "delta", Type: schema.Named("Int"), DefaultValue: 1},
		},
		Resolve: func(_ context.Context, _ any, args map[string]any) (any, error) {
			return counter.Increment(intArg(args["delta"], 1)), nil
		},
	})

	sch := schema.New()
	sch.SetQueryType(query)
	sch.SetMutationType(mutation)
	return sch
}
