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

package transport_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/livequery/internal/livequery"
	"github.com/upbound/livequery/internal/schema"
	"github.com/upbound/livequery/internal/transport"
)

func testSchema(foo *string) *schema.Schema {
	query := schema.NewType("Query")
	query.AddField(&schema.Field{
		Name: "foo",
		Type: schema.Named("String"),
		Resolve: func(_ context.Context, _ any, _ map[string]any) (any, error) {
			return *foo, nil
		},
	})
	sch := schema.New()
	sch.SetQueryType(query)
	return sch
}

func TestHandleQueryNonLive(t *testing.T) {
	foo := "queried"
	sch := testSchema(&foo)
	srv := transport.Server(transport.Options{Port: 0}, livequery.New(), sch, logging.NewNopLogger())

	body := `{"query":"{ foo }"}`
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		Data map[string]any `json:"Data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("cannot decode response: %v", err)
	}
	if got.Data["foo"] != "queried" {
		t.Errorf("unexpected data: %v", got.Data)
	}
}

func TestHandleQueryLiveStreamsSSE(t *testing.T) {
	foo := "queried"
	sch := testSchema(&foo)
	store := livequery.New()
	srv := transport.Server(transport.Options{Port: 0}, store, sch, logging.NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	body := `{"query":"query @live { foo }"}`
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body)).WithContext(ctx)
	rec := newFlushRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}

	scanner := bufio.NewScanner(bytes.NewReader(rec.Body.Bytes()))
	var sawNext bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: next") {
			sawNext = true
		}
	}
	if !sawNext {
		t.Errorf("expected at least one event: next line, got body %q", rec.Body.String())
	}
}

func TestHandleInvalidate(t *testing.T) {
	store := livequery.New()
	sch := testSchema(new(string))
	srv := transport.Server(transport.Options{Port: 0}, store, sch, logging.NewNopLogger())

	body := `{"ids":["Query.foo"]}`
	req := httptest.NewRequest(http.MethodPost, "/invalidate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
}

// flushRecorder is an httptest.ResponseRecorder that also implements
// http.Flusher, since the SSE handler requires one.
type flushRecorder struct {
	*httptest.ResponseRecorder
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (f *flushRecorder) Flush() {}
