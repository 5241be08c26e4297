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

package livequery

import (
	"context"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/upbound/livequery/internal/engine"
	"github.com/upbound/livequery/internal/schema"
)

const defaultIDFieldName = "id"

// Option configures a Store at construction time.
type Option func(*Store)

// WithIncludeIdentifierExtension makes every live result carry
// extensions.liveResourceIdentifier, the sorted identifier list it depends
// on. Off by default.
func WithIncludeIdentifierExtension(include bool) Option {
	return func(s *Store) { s.includeIdentifierExtension = include }
}

// WithIDFieldName overrides the field name ("id" by default) the object
// identifier rule looks for on each type.
func WithIDFieldName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.idFieldName = name
		}
	}
}

// Instrumentation lets an observability layer (see internal/opentelemetry)
// observe the store's runs and invalidations without the store importing
// any tracing or metrics package itself.
type Instrumentation interface {
	RecordCreated()
	RecordTerminated()
	// RunStarted begins tracking one scheduler run and returns a handle
	// whose Complete must be called exactly once when that run finishes.
	RunStarted(operationName string) RunHandle
	Invalidated(ids []string)
}

// RunHandle closes out the span/metrics recording started by
// Instrumentation.RunStarted.
type RunHandle interface {
	Complete(identifierCount int, failed bool)
}

// WithInstrumentation attaches an Instrumentation sink.
func WithInstrumentation(i Instrumentation) Option {
	return func(s *Store) { s.instrumentation = i }
}

// Store is an in-process live-query store: the identifier index, the
// per-record coalescing scheduler, and the execute dispatcher, all guarded
// by a single mutex. Multiple Stores coexist with independent state; there
// is no process-wide singleton.
type Store struct {
	mu   sync.Mutex
	cond *sync.Cond
	idx  *index

	includeIdentifierExtension bool
	idFieldName                string
	instrumentation            Instrumentation
}

// New constructs a Store. With no options, idFieldName defaults to "id"
// and includeIdentifierExtension defaults to false.
func New(opts ...Option) *Store {
	s := &Store{
		idx:         newIndex(),
		idFieldName: defaultIDFieldName,
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExecuteParams is the dispatcher's single options struct.
type ExecuteParams struct {
	Schema         *schema.Schema
	Document       string
	VariableValues map[string]any
	OperationName  string
	RootValue      any
	ContextValue   any
}

// Execute parses and runs a document. Exactly one of the two return values
// is non-nil: a plain *engine.Result for documents without @live (or that
// fail to parse/select an operation), or a *LiveSequence whose first value
// has already been produced by the time Execute returns.
func (s *Store) Execute(ctx context.Context, p ExecuteParams) (*engine.Result, *LiveSequence) {
	doc, err := engine.ParseDocument(p.Document)
	if err != nil {
		return &engine.Result{Errors: gqlerror.List{gqlerror.Errorf("%s", err.Error())}}, nil
	}

	op, errs := engine.SelectOperation(doc, p.OperationName)
	if len(errs) > 0 {
		return &engine.Result{Errors: errs}, nil
	}

	if !engine.IsLive(op) {
		return engine.Execute(ctx, doc, p.Schema, op, p.VariableValues, p.RootValue, p.ContextValue), nil
	}

	r := &record{
		schema:        p.Schema,
		doc:           doc,
		op:            op,
		variables:     p.VariableValues,
		operationName: p.OperationName,
		rootValue:     p.RootValue,
		appContext:    p.ContextValue,
		identifiers:   newIdentifierSet(),
	}
	r.seq = newLiveSequence(r, s)

	s.mu.Lock()
	r.pendingRun = true
	s.mu.Unlock()
	if s.instrumentation != nil {
		s.instrumentation.RecordCreated()
	}

	// Produce the initial result synchronously; later invalidations go
	// through the ordinary scheduler path.
	s.runLoop(r)

	return nil, r.seq
}

// Invalidate is the scheduler's public invalidate(ids) operation: it
// normalizes ids, gathers the affected records from the index, schedules
// each (coalescing with anything already pending or in flight), and
// returns a channel that closes once every run this call triggered has
// completed. Callers that don't need that determinism may discard it.
func (s *Store) Invalidate(ctx context.Context, ids ...string) <-chan struct{} {
	done := make(chan struct{})

	normalized := newIdentifierSet()
	normalized.addAll(ids)
	if len(normalized) == 0 {
		close(done)
		return done
	}

	if s.instrumentation != nil {
		s.instrumentation.Invalidated(normalized.sorted())
	}

	s.mu.Lock()
	affected := map[*record]struct{}{}
	for id := range normalized {
		for _, r := range s.idx.lookup(id) {
			affected[r] = struct{}{}
		}
	}

	targets := make(map[*record]int, len(affected))
	var toSpawn []*record
	for r := range affected {
		if r.terminated {
			continue
		}
		// A run already executing when this call arrives can't reflect it:
		// that run started reading state before this invalidation happened.
		// schedule forces a follow-up run in that case, so the target is
		// the run after next; otherwise (idle, or queued but not yet
		// started) the very next completed run reflects current state.
		wasRunning := r.running
		spawn := s.schedule(r)
		if wasRunning {
			targets[r] = r.gen + 2
		} else {
			targets[r] = r.gen + 1
		}
		if spawn {
			toSpawn = append(toSpawn, r)
		}
	}
	s.mu.Unlock()

	for _, r := range toSpawn {
		go s.runLoop(r)
	}

	go func() {
		s.mu.Lock()
		for r, want := range targets {
			for r.gen < want {
				s.cond.Wait()
			}
		}
		s.mu.Unlock()
		close(done)
	}()

	return done
}

// terminate marks r terminated, removes it from the index, and is called
// by LiveSequence.Dispose on consumer-initiated cancellation. An in-flight
// run is allowed to complete; its result is discarded by run's
// post-execution check.
func (s *Store) terminate(r *record) {
	s.mu.Lock()
	r.terminated = true
	s.idx.clear(r)
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.instrumentation != nil {
		s.instrumentation.RecordTerminated()
	}
}

func rootTypeFor(sch *schema.Schema, op *ast.OperationDefinition) *schema.Type {
	switch op.Operation {
	case ast.Mutation:
		return sch.Mutation
	case ast.Subscription:
		return sch.Subscription
	default:
		return sch.Query
	}
}
