/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package upload

import (
	"encoding/json"
	"fmt"

	"helm.sh/chartrepo/pkg/content"
)

// Response maps the storage paths written by an upload to their assets, in
// the order the payloads were submitted.
type Response struct {
	paths    []string
	contents map[string]*content.Handle
}

// NewResponse returns an empty Response.
func NewResponse() *Response {
	return &Response{contents: map[string]*content.Handle{}}
}

// Put records the asset stored at path. A path written twice keeps its
// first position and the last handle.
func (r *Response) Put(path string, h *content.Handle) {
	if _, ok := r.contents[path]; !ok {
		r.paths = append(r.paths, path)
	}
	r.contents[path] = h
}

// Get returns the asset recorded for path.
func (r *Response) Get(path string) (*content.Handle, bool) {
	h, ok := r.contents[path]
	return h, ok
}

// Len is the number of distinct paths.
func (r *Response) Len() int { return len(r.paths) }

// Paths returns the recorded paths in submission order.
func (r *Response) Paths() []string {
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// Contents returns the recorded assets in submission order.
func (r *Response) Contents() []*content.Handle {
	out := make([]*content.Handle, 0, len(r.paths))
	for _, p := range r.paths {
		out = append(out, r.contents[p])
	}
	return out
}

// MarshalJSON encodes the response as its ordered paths and assets.
func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Paths    []string          `json:"paths"`
		Contents []*content.Handle `json:"contents"`
	}{r.Paths(), r.Contents()})
}

// BatchError reports the payload that stopped an upload. Payloads before it
// were stored; payloads after it were not read.
type BatchError struct {
	// Index is the position of the failing payload.
	Index int
	// Filename is the payload's declared name.
	Filename string
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upload of payload %d (%q) failed: %v", e.Index, e.Filename, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
