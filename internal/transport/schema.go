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

package transport

import (
	"context"
	"net/http"

	"github.com/upbound/livequery/internal/schema"
)

type schemaContextKey struct{}

// WithSchema returns middleware that attaches sch to every request's
// context, so HandleQuery and the WebSocket handler can execute against it
// without threading it through every call site.
func WithSchema(sch *schema.Schema) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), schemaContextKey{}, sch)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SchemaFromContext recovers the schema WithSchema attached to ctx.
func SchemaFromContext(ctx context.Context) (*schema.Schema, bool) {
	sch, ok := ctx.Value(schemaContextKey{}).(*schema.Schema)
	return sch, ok
}
