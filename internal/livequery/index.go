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

// index is the bidirectional identifier↔record mapping. It is not safe for
// concurrent use on its own; the Store serializes every call behind its
// mutex.
type index struct {
	byID     map[string]map[*record]struct{}
	byRecord map[*record]map[string]struct{}
}

func newIndex() *index {
	return &index{
		byID:     map[string]map[*record]struct{}{},
		byRecord: map[*record]map[string]struct{}{},
	}
}

// register associates r with each of ids, first clearing any prior
// association so the index always reflects only the most recent run.
func (ix *index) register(r *record, ids []string) {
	ix.clear(r)
	if len(ids) == 0 {
		return
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
		bucket, ok := ix.byID[id]
		if !ok {
			bucket = map[*record]struct{}{}
			ix.byID[id] = bucket
		}
		bucket[r] = struct{}{}
	}
	ix.byRecord[r] = set
}

// clear removes r from every bucket it currently appears in, deleting any
// identifier bucket left empty so the index does not grow unboundedly
// under high-churn identifier sets.
func (ix *index) clear(r *record) {
	prev, ok := ix.byRecord[r]
	if !ok {
		return
	}
	for id := range prev {
		bucket := ix.byID[id]
		delete(bucket, r)
		if len(bucket) == 0 {
			delete(ix.byID, id)
		}
	}
	delete(ix.byRecord, r)
}

// lookup returns the records currently associated with id.
func (ix *index) lookup(id string) []*record {
	bucket, ok := ix.byID[id]
	if !ok {
		return nil
	}
	out := make([]*record, 0, len(bucket))
	for r := range bucket {
		out = append(out, r)
	}
	return out
}
