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
	"sync"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/upbound/livequery/internal/schema"
)

// record is one live subscription's in-memory state. Its scheduling fields
// (pendingRun, running, rerunAfter, terminated) are guarded by the owning
// Store's mutex, never by a per-record lock, so the index and every
// record's bookkeeping stay consistent under one conceptual event loop.
type record struct {
	schema        *schema.Schema
	doc           *ast.QueryDocument
	op            *ast.OperationDefinition
	variables     map[string]any
	operationName string
	rootValue     any
	appContext    any

	seq *LiveSequence

	mu sync.Mutex // protects only identifiers; read by the scheduler's run

	identifiers identifierSet

	// pendingRun is true while a goroutine owns this record's run loop,
	// either queued to start executeOnce or already running it.
	pendingRun bool
	// running is true only once that goroutine has actually entered
	// executeOnce, as opposed to merely being queued to run it. Queued
	// invalidations need not force a rerun: the queued run hasn't read any
	// state yet and will pick up whatever is current once it starts.
	running bool
	// rerunAfter records that an invalidation arrived while running was
	// true; the in-flight run loop checks it after each executeOnce and
	// loops instead of exiting, coalescing the burst into one follow-up.
	rerunAfter bool
	terminated bool

	// gen counts completed runs. Invalidate waits for gen to reach a target
	// value to know every run it triggered has finished; see Store.cond.
	gen int
}

func (r *record) currentIdentifiers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identifiers.sorted()
}

func (r *record) setIdentifiers(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := newIdentifierSet()
	set.addAll(ids)
	r.identifiers = set
}
