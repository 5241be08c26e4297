// Copyright 2022 Upbound Inc
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

package health

import (
	"net/http"
	"sync/atomic"

	"github.com/crossplane/crossplane-runtime/pkg/logging"
)

// Handler answers liveness and readiness probes. Readiness can be flipped
// by the caller (e.g. once the store and transport are listening) via
// SetReady; liveness is always true once the process is up to serve it.
type Handler struct {
	log   logging.Logger
	ready atomic.Bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger attaches a logger used for probe-failure diagnostics.
func WithLogger(log logging.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// New constructs a Handler. It reports not-ready until SetReady(true) is
// called.
func New(opts ...Option) *Handler {
	h := &Handler{log: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetReady flips the readiness probe's answer.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// GetLiveness always answers 200; if this handler cannot serve, the
// process isn't alive to answer at all.
func (h *Handler) GetLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// GetReadiness answers 200 once SetReady(true) has been called, 503
// otherwise.
func (h *Handler) GetReadiness(w http.ResponseWriter, _ *http.Request) {
	if !h.ready.Load() {
		h.log.Debug("Not ready")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
