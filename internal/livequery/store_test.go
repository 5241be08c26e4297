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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/upbound/livequery/internal/livequery"
)

func mustPull(t *testing.T, ctx context.Context, seq *livequery.LiveSequence) livequery.LiveResult {
	t.Helper()
	v, ok := seq.Pull(ctx)
	if !ok {
		t.Fatalf("Pull: sequence ended unexpectedly")
	}
	return v
}

// TestExecuteNonLivePassThrough checks that a document without @live
// returns the engine's plain result, never a sequence.
func TestExecuteNonLivePassThrough(t *testing.T) {
	store := livequery.New()
	sch := createTestSchema(newTestState(), "")

	res, seq := store.Execute(context.Background(), livequery.ExecuteParams{
		Schema:   sch,
		Document: `query { foo }`,
	})
	if seq != nil {
		t.Fatalf("non-live execute returned a sequence")
	}
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	want := map[string]any{"foo": "queried"}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("unexpected data (-want +got):\n%s", diff)
	}
}

// TestLiveFooInvalidation checks that the first value reflects the initial
// state, and invalidating the identifier the first result depended on
// produces a second value reflecting new state.
func TestLiveFooInvalidation(t *testing.T) {
	ctx := context.Background()
	state := newTestState()
	store := livequery.New()
	sch := createTestSchema(state, "")

	res, seq := store.Execute(ctx, livequery.ExecuteParams{
		Schema:   sch,
		Document: `query @live { foo }`,
	})
	if res != nil {
		t.Fatalf("live execute returned a plain result")
	}
	defer seq.Dispose()

	first := mustPull(t, ctx, seq)
	if !first.IsLive {
		t.Fatalf("first result is not marked isLive")
	}
	if diff := cmp.Diff(map[string]any{"foo": "queried"}, first.Data); diff != "" {
		t.Errorf("unexpected first data (-want +got):\n%s", diff)
	}

	state.foo = "changed"
	<-store.Invalidate(ctx, "Query.foo")

	second := mustPull(t, ctx, seq)
	if diff := cmp.Diff(map[string]any{"foo": "changed"}, second.Data); diff != "" {
		t.Errorf("unexpected second data (-want +got):\n%s", diff)
	}
}

// TestLivePostLifecycle checks that re-execution dropping an identifier
// isolates further invalidations of it, and that terminating the consumer
// stops delivery for good.
func TestLivePostLifecycle(t *testing.T) {
	ctx := context.Background()
	state := newTestState()
	store := livequery.New()
	sch := createTestSchema(state, "")

	_, seq := store.Execute(ctx, livequery.ExecuteParams{
		Schema:   sch,
		Document: `query @live { post(id:"1") { id title } }`,
	})

	first := mustPull(t, ctx, seq)
	wantFirst := map[string]any{"post": map[string]any{"id": "1", "title": "lel"}}
	if diff := cmp.Diff(wantFirst, first.Data); diff != "" {
		t.Errorf("unexpected first data (-want +got):\n%s", diff)
	}

	<-store.Invalidate(ctx, "Post:1")
	second := mustPull(t, ctx, seq)
	if diff := cmp.Diff(wantFirst, second.Data); diff != "" {
		t.Errorf("unexpected second data (-want +got):\n%s", diff)
	}

	state.posts["1"].id = "2"
	<-store.Invalidate(ctx, "Post:1")
	third := mustPull(t, ctx, seq)
	wantThird := map[string]any{"post": map[string]any{"id": "2", "title": "lel"}}
	if diff := cmp.Diff(wantThird, third.Data); diff != "" {
		t.Errorf("unexpected third data (-want +got):\n%s", diff)
	}

	// Post:1 is no longer in the record's identifier set (it re-registered
	// as Post:2), so invalidating it again must not deliver a new value.
	<-store.Invalidate(ctx, "Post:1")

	// Terminate the consumer; Pull must now return terminal.
	seq.Dispose()
	if _, ok := seq.Pull(ctx); ok {
		t.Fatalf("Pull returned a value after Dispose")
	}
}

// TestLiveFieldExtensionIdentifier checks that a field's contributed
// identifier (beyond the object-identifier rule) alone can trigger a
// re-execution.
func TestLiveFieldExtensionIdentifier(t *testing.T) {
	ctx := context.Background()
	store := livequery.New()
	sch := createTestSchema(newTestState(), "")

	_, seq := store.Execute(ctx, livequery.ExecuteParams{
		Schema:   sch,
		Document: `query @live { ping(id:"1") }`,
	})
	defer seq.Dispose()

	_ = mustPull(t, ctx, seq)

	<-store.Invalidate(ctx, "1")
	second := mustPull(t, ctx, seq)
	if diff := cmp.Diff(map[string]any{"ping": "pong"}, second.Data); diff != "" {
		t.Errorf("unexpected second data (-want +got):\n%s", diff)
	}
}

// TestLiveIdentifierExtensionSorted checks that the identifier extension
// lists every identifier the result depends on, in lexicographic order.
func TestLiveIdentifierExtensionSorted(t *testing.T) {
	ctx := context.Background()
	store := livequery.New(livequery.WithIncludeIdentifierExtension(true))
	sch := createTestSchema(newTestState(), "")

	_, seq := store.Execute(ctx, livequery.ExecuteParams{
		Schema:         sch,
		Document:       `query($id:ID!) @live { post(id:$id) { id title } }`,
		VariableValues: map[string]any{"id": "1"},
	})
	defer seq.Dispose()

	first := mustPull(t, ctx, seq)
	got, _ := first.Extensions["liveResourceIdentifier"].([]string)
	want := []string{"Post:1", "Query.post", `Query.post(id:"1")`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected identifier list (-want +got):\n%s", diff)
	}
}

// TestLiveConfigurableIDFieldName checks that the object-identifier rule
// honors a store-wide configured field name.
func TestLiveConfigurableIDFieldName(t *testing.T) {
	ctx := context.Background()
	store := livequery.New(
		livequery.WithIncludeIdentifierExtension(true),
		livequery.WithIDFieldName("whateverIWant"),
	)
	sch := createTestSchema(newTestState(), "whateverIWant")

	_, seq := store.Execute(ctx, livequery.ExecuteParams{
		Schema:         sch,
		Document:       `query($id:ID!) @live { post(id:$id) { whateverIWant title } }`,
		VariableValues: map[string]any{"id": "1"},
	})
	defer seq.Dispose()

	first := mustPull(t, ctx, seq)
	got, _ := first.Extensions["liveResourceIdentifier"].([]string)
	found := false
	for _, id := range got {
		if id == "Post:1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Post:1 among identifiers, got %v", got)
	}
}

// TestInvalidateCoalescing checks that a burst of back-to-back
// invalidations for the same idle record collapses into the single run the
// first of them queues, rather than one run per call.
func TestInvalidateCoalescing(t *testing.T) {
	ctx := context.Background()
	state := newTestState()
	store := livequery.New()
	sch := createTestSchema(state, "")

	_, seq := store.Execute(ctx, livequery.ExecuteParams{
		Schema:   sch,
		Document: `query @live { foo }`,
	})
	defer seq.Dispose()

	_ = mustPull(t, ctx, seq)

	const bursts = 5
	dones := make([]<-chan struct{}, bursts)
	for i := 0; i < bursts; i++ {
		dones[i] = store.Invalidate(ctx, "Query.foo")
	}
	for _, d := range dones {
		select {
		case <-d:
		case <-time.After(time.Second):
			t.Fatalf("Invalidate did not complete")
		}
	}

	// Exactly one follow-up result should be pending, not five.
	seen := mustPull(t, ctx, seq)
	if diff := cmp.Diff(map[string]any{"foo": "queried"}, seen.Data); diff != "" {
		t.Errorf("unexpected coalesced data (-want +got):\n%s", diff)
	}

	resultCh := make(chan livequery.LiveResult, 1)
	go func() {
		v, ok := seq.Pull(ctx)
		if ok {
			resultCh <- v
		}
	}()
	select {
	case v := <-resultCh:
		t.Fatalf("unexpected extra result after coalesced burst: %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestInvalidateUnrelatedIdentifierIsNoop checks that invalidating an
// identifier no record depends on is harmless.
func TestInvalidateUnrelatedIdentifierIsNoop(t *testing.T) {
	ctx := context.Background()
	store := livequery.New()
	<-store.Invalidate(ctx, "Nothing:1")
}
