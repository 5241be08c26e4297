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

package engine_test

import (
	"testing"

	"github.com/upbound/livequery/internal/engine"
)

func TestSelectOperation(t *testing.T) {
	cases := map[string]struct {
		document      string
		operationName string
		wantName      string
		wantErr       bool
	}{
		"SingleAnonymous": {
			document: `{ foo }`,
			wantName: "",
		},
		"SingleNamedNoSelector": {
			document: `query Foo { foo }`,
			wantName: "Foo",
		},
		"Ambiguous": {
			document: `query A { foo } query B { foo }`,
			wantErr:  true,
		},
		"SelectsByName": {
			document:      `query A { foo } query B { foo }`,
			operationName: "B",
			wantName:      "B",
		},
		"UnknownName": {
			document:      `query A { foo }`,
			operationName: "C",
			wantErr:       true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc, err := engine.ParseDocument(tc.document)
			if err != nil {
				t.Fatalf("ParseDocument: %v", err)
			}
			op, errs := engine.SelectOperation(doc, tc.operationName)
			if tc.wantErr {
				if len(errs) == 0 {
					t.Fatalf("SelectOperation: expected error, got none")
				}
				return
			}
			if len(errs) > 0 {
				t.Fatalf("SelectOperation: unexpected errors %v", errs)
			}
			if op.Name != tc.wantName {
				t.Errorf("SelectOperation: got name %q, want %q", op.Name, tc.wantName)
			}
		})
	}
}

func TestNoOperations(t *testing.T) {
	doc, err := engine.ParseDocument(`fragment F on Query { foo }`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if _, errs := engine.SelectOperation(doc, ""); len(errs) == 0 {
		t.Fatalf("SelectOperation: expected error for document with no operations")
	}
}

func TestIsLive(t *testing.T) {
	cases := map[string]struct {
		document string
		want     bool
	}{
		"NotLive": {document: `query { foo }`, want: false},
		"Live":    {document: `query @live { foo }`, want: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc, err := engine.ParseDocument(tc.document)
			if err != nil {
				t.Fatalf("ParseDocument: %v", err)
			}
			op, errs := engine.SelectOperation(doc, "")
			if len(errs) > 0 {
				t.Fatalf("SelectOperation: %v", errs)
			}
			if got := engine.IsLive(op); got != tc.want {
				t.Errorf("IsLive: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHasDeferOrStream(t *testing.T) {
	cases := map[string]struct {
		document string
		want     bool
	}{
		"Plain":  {document: `query { foo }`, want: false},
		"Stream": {document: `query { foo @stream }`, want: true},
		"Defer":  {document: `query { ... on Query @defer { foo } }`, want: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc, err := engine.ParseDocument(tc.document)
			if err != nil {
				t.Fatalf("ParseDocument: %v", err)
			}
			op, errs := engine.SelectOperation(doc, "")
			if len(errs) > 0 {
				t.Fatalf("SelectOperation: %v", errs)
			}
			if got := engine.HasDeferOrStream(op); got != tc.want {
				t.Errorf("HasDeferOrStream: got %v, want %v", got, tc.want)
			}
		})
	}
}
