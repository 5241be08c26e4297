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
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/livequery/internal/livequery"
	"github.com/upbound/livequery/internal/request"
	"github.com/upbound/livequery/internal/schema"
	"github.com/upbound/livequery/internal/version"
)

// Options configures the main transport server.
type Options struct {
	Port int `default:"8080" help:"Port for the live-query HTTP and WebSocket transport."`
}

// Server builds the chi-routed *http.Server exposing store over sch.
func Server(opts Options, store *livequery.Store, sch *schema.Schema, log logging.Logger) *http.Server {
	h := &Handler{Store: store, Log: log}

	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.Recoverer)
	r.Use(chimid.RequestLogger(&request.Formatter{Log: log}))
	r.Use(chimid.Compress(5))
	r.Use(version.Middleware)
	r.Use(WithSchema(sch))

	r.Post("/query", h.HandleQuery)
	r.Get("/subscriptions", h.HandleSubscriptions)
	r.Post("/invalidate", h.HandleInvalidate)
	r.Handle("/version", version.Handler())

	return &http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%d", opts.Port),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// @live queries stream indefinitely over SSE/WebSocket; there is no
		// overall write deadline on this server.
	}
}
