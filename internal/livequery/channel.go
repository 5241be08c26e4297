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
)

// LiveResult is one value emitted on a live query's sequence: a completed
// execution result plus the isLive marker and, when the store is
// configured with includeIdentifierExtension, the sorted identifier list
// that produced it.
type LiveResult struct {
	Data       map[string]any
	Errors     []error
	Extensions map[string]any
	IsLive     bool
}

// LiveSequence is the pull-based, single-producer/single-consumer output
// channel for a live query: a small buffer of emitted results, with
// graceful termination on either side.
type LiveSequence struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []LiveResult
	closed bool

	record *record
	store  *Store
}

func newLiveSequence(r *record, s *Store) *LiveSequence {
	seq := &LiveSequence{record: r, store: s}
	seq.cond = sync.NewCond(&seq.mu)
	return seq
}

// push enqueues a result for delivery. Discarded silently once closed, per
// the channel's close() contract.
func (seq *LiveSequence) push(r LiveResult) {
	seq.mu.Lock()
	defer seq.mu.Unlock()
	if seq.closed {
		return
	}
	seq.buf = append(seq.buf, r)
	seq.cond.Signal()
}

// close causes any pending and future Pull to resolve terminal.
func (seq *LiveSequence) close() {
	seq.mu.Lock()
	defer seq.mu.Unlock()
	if seq.closed {
		return
	}
	seq.closed = true
	seq.cond.Broadcast()
}

// Pull returns the next emitted result, blocking until one is available,
// the sequence is closed, or ctx is done. The boolean return is false once
// the sequence is exhausted (closed with nothing left buffered).
func (seq *LiveSequence) Pull(ctx context.Context) (LiveResult, bool) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			seq.mu.Lock()
			seq.cond.Broadcast()
			seq.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	seq.mu.Lock()
	defer seq.mu.Unlock()
	for len(seq.buf) == 0 && !seq.closed {
		select {
		case <-ctx.Done():
			return LiveResult{}, false
		default:
		}
		seq.cond.Wait()
	}
	if len(seq.buf) == 0 {
		return LiveResult{}, false
	}
	next := seq.buf[0]
	seq.buf = seq.buf[1:]
	return next, true
}

// Dispose signals disinterest: it terminates the backing record, removes it
// from the index, and closes the channel. Safe to call more than once and
// safe to call concurrently with an in-flight run, whose result is simply
// discarded once it completes (see the scheduler's termination check).
func (seq *LiveSequence) Dispose() {
	seq.store.terminate(seq.record)
	seq.close()
}
