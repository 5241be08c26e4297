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
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/upbound/livequery/internal/livequery"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Subscriptions are driven by the module's own transport clients, not
	// arbitrary browser origins; cross-origin checks belong to whatever
	// reverse proxy fronts this service in a given deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsStartPayload is the payload of a "start" message: the same shape
// POST /query accepts in its JSON body.
type wsStartPayload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// HandleSubscriptions implements GET /subscriptions: a WebSocket upgrade
// speaking a minimal start/stop protocol. A "start" message submits
// ExecuteParams as its payload and streams LiveResults back as "data"
// frames; a "stop" message or socket close disposes the sequence.
func (h *Handler) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Debug("Cannot upgrade to websocket", "error", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	sch, ok := SchemaFromContext(r.Context())
	if !ok {
		h.Log.Debug("No schema configured for this endpoint")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var seq *livequery.LiveSequence
	defer func() {
		if seq != nil {
			seq.Dispose()
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "start":
			var payload wsStartPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				h.writeError(conn, err)
				continue
			}
			params := livequery.ExecuteParams{
				Schema:         sch,
				Document:       payload.Query,
				VariableValues: payload.Variables,
				OperationName:  payload.OperationName,
				ContextValue:   ctx,
			}

			if seq != nil {
				seq.Dispose()
				seq = nil
			}

			res, s := h.Store.Execute(ctx, params)
			if s == nil {
				h.writeData(conn, res)
				continue
			}
			seq = s
			go h.pumpSequence(conn, seq)

		case "stop":
			if seq != nil {
				seq.Dispose()
				seq = nil
			}
		}
	}
}

func (h *Handler) pumpSequence(conn *websocket.Conn, seq *livequery.LiveSequence) {
	ctx := context.Background()
	for {
		v, ok := seq.Pull(ctx)
		if !ok {
			return
		}
		h.writeData(conn, v)
	}
}

func (h *Handler) writeData(conn *websocket.Conn, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		h.Log.Debug("Cannot marshal websocket payload", "error", err)
		return
	}
	if err := conn.WriteJSON(wsMessage{Type: "data", Payload: b}); err != nil {
		h.Log.Debug("Cannot write websocket frame", "error", err)
	}
}

func (h *Handler) writeError(conn *websocket.Conn, err error) {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	_ = conn.WriteJSON(wsMessage{Type: "error", Payload: b})
}
