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

// Package transport exposes a *livequery.Store over HTTP: a POST /query
// endpoint that streams Server-Sent Events for @live operations and a plain
// JSON response otherwise, a GET /subscriptions WebSocket endpoint speaking
// a minimal start/stop protocol, and a POST /invalidate endpoint for
// operators and integration tests to drive invalidations without an
// in-process handle on the store.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/livequery/internal/livequery"
)

type queryRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Handler serves a *livequery.Store over HTTP.
type Handler struct {
	Store *livequery.Store
	Log   logging.Logger
}

// HandleQuery implements POST /query.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("cannot decode request body: %v", err), http.StatusBadRequest)
		return
	}

	sch, ok := SchemaFromContext(r.Context())
	if !ok {
		http.Error(w, "no schema configured for this endpoint", http.StatusInternalServerError)
		return
	}

	res, seq := h.Store.Execute(r.Context(), livequery.ExecuteParams{
		Schema:         sch,
		Document:       req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		ContextValue:   r.Context(),
	})

	if seq == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}

	h.streamSSE(w, r, seq)
}

func (h *Handler) streamSSE(w http.ResponseWriter, r *http.Request, seq *livequery.LiveSequence) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		seq.Dispose()
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	defer seq.Dispose()

	ctx := r.Context()
	for {
		v, ok := seq.Pull(ctx)
		if !ok {
			fmt.Fprint(w, "event: complete\ndata: {}\n\n")
			flusher.Flush()
			return
		}
		b, err := json.Marshal(v)
		if err != nil {
			h.Log.Debug("Cannot marshal live result", "error", err)
			continue
		}
		fmt.Fprintf(w, "event: next\ndata: %s\n\n", b)
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
