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

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/livequery/internal/engine"
)

const errMixedDeferStream = "live query engine returned an asynchronous sequence; " +
	"the NoLiveMixedWithDeferStreamRule validation rule appears to have been skipped"

// schedule implements the three-state coalescing handshake: idle (spawn a
// new run), queued-but-not-started (do nothing — the queued run hasn't read
// any state yet and will pick up whatever is current once it starts), and
// running (queue exactly one follow-up run). Must be called with s.mu held.
func (s *Store) schedule(r *record) (spawn bool) {
	if r.terminated {
		return false
	}
	if !r.pendingRun {
		r.pendingRun = true
		return true
	}
	if r.running {
		r.rerunAfter = true
	}
	// Queued but not yet running: no-op, same as the teacher's debounce
	// loop marking a fire against an armed (not yet resolving) query.
	return false
}

// runLoop owns a record's pendingRun slot for as long as runs keep getting
// coalesced into it. It is spawned at most once per record at a time: by
// Execute for the first run, or by Invalidate/schedule for every
// subsequent one. Each iteration performs run(record); the record's
// rerunAfter flag, set by a concurrent Invalidate while a run was actually
// in flight, decides whether to loop instead of releasing pendingRun, so a
// burst of concurrent invalidations collapses into at most one follow-up.
func (s *Store) runLoop(r *record) {
	for {
		s.run(r)

		s.mu.Lock()
		r.gen++
		s.cond.Broadcast()
		if r.terminated || !r.rerunAfter {
			r.pendingRun = false
			r.running = false
			s.mu.Unlock()
			return
		}
		r.rerunAfter = false
		// Back to queued-but-not-started until the next run() begins, so an
		// Invalidate arriving in between is a no-op rather than a rerun
		// request that run() would clear on entry.
		r.running = false
		s.mu.Unlock()
	}
}

// run executes a record once: running and rerunAfter are set/reset before
// the engine runs, under the same lock, so a concurrent Invalidate either
// observes running (and queues a follow-up) or observes the pre-running
// queued state (and is a no-op, since this run hasn't read anything yet).
// The subsequent extract/register/compose/push steps happen after, guarded
// again by the store's mutex only for the bookkeeping that touches the
// shared index.
func (s *Store) run(r *record) {
	s.mu.Lock()
	if r.terminated {
		s.mu.Unlock()
		return
	}
	r.running = true
	r.rerunAfter = false
	s.mu.Unlock()

	var handle RunHandle
	if s.instrumentation != nil {
		handle = s.instrumentation.RunStarted(r.operationName)
	}

	if engine.HasDeferOrStream(r.op) {
		// A @live operation also selecting @defer/@stream would need the
		// engine to return an asynchronous sequence, which this scheduler
		// does not model. Leave identifiers untouched and surface a
		// synthetic error instead of crashing the scheduler.
		r.seq.push(LiveResult{
			Errors: []error{errors.New(errMixedDeferStream)},
			IsLive: true,
		})
		if handle != nil {
			handle.Complete(len(r.currentIdentifiers()), true)
		}
		return
	}

	result := engine.Execute(context.Background(), r.doc, r.schema, r.op, r.variables, r.rootValue, r.appContext)

	flatten := &engine.Collector{Doc: r.doc, Vars: r.variables}
	ids := extractIdentifiers(r.schema, flatten, rootTypeFor(r.schema, r.op), r.op.SelectionSet, r.variables, r.rootValue, result.Data, s.idFieldName)

	s.mu.Lock()
	if r.terminated {
		s.mu.Unlock()
		if handle != nil {
			handle.Complete(len(ids), len(result.Errors) > 0)
		}
		return
	}
	s.idx.register(r, ids)
	s.mu.Unlock()
	r.setIdentifiers(ids)

	live := LiveResult{Data: result.Data, IsLive: true}
	if len(result.Errors) > 0 {
		errs := make([]error, len(result.Errors))
		for i, e := range result.Errors {
			errs[i] = e
		}
		live.Errors = errs
	}
	if s.includeIdentifierExtension {
		live.Extensions = map[string]any{"liveResourceIdentifier": ids}
	}
	r.seq.push(live)

	if handle != nil {
		handle.Complete(len(ids), len(result.Errors) > 0)
	}
}
