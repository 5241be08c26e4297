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
	"encoding/json"
	"fmt"
	"net/http"
)

type invalidateRequest struct {
	IDs []string `json:"ids"`
}

// HandleInvalidate implements POST /invalidate. It blocks until every run
// triggered by the call has completed, then responds 204.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("cannot decode request body: %v", err), http.StatusBadRequest)
		return
	}

	select {
	case <-h.Store.Invalidate(r.Context(), req.IDs...):
	case <-r.Context().Done():
	}
	w.WriteHeader(http.StatusNoContent)
}
