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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helm.sh/chartrepo/pkg/asset"
	"helm.sh/chartrepo/pkg/content"
	"helm.sh/chartrepo/pkg/errdefs"
)

func TestResponsePut(t *testing.T) {
	r := NewResponse()
	first := &content.Handle{ID: "1", Path: "a-1.0.0.tgz", Kind: asset.Package}
	second := &content.Handle{ID: "2", Path: "a-1.0.0.tgz.prov", Kind: asset.Provenance}
	again := &content.Handle{ID: "3", Path: "a-1.0.0.tgz", Kind: asset.Package}

	r.Put(first.Path, first)
	r.Put(second.Path, second)
	r.Put(again.Path, again)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a-1.0.0.tgz", "a-1.0.0.tgz.prov"}, r.Paths())
	assert.Equal(t, []*content.Handle{again, second}, r.Contents())

	h, ok := r.Get("a-1.0.0.tgz")
	require.True(t, ok)
	assert.Equal(t, "3", h.ID)

	_, ok = r.Get("missing.tgz")
	assert.False(t, ok)
}

func TestResponsePathsIsACopy(t *testing.T) {
	r := NewResponse()
	r.Put("a-1.0.0.tgz", &content.Handle{})

	paths := r.Paths()
	paths[0] = "changed"
	assert.Equal(t, []string{"a-1.0.0.tgz"}, r.Paths())
}

func TestResponseMarshalJSON(t *testing.T) {
	r := NewResponse()
	r.Put("a-1.0.0.tgz", &content.Handle{ID: "1", Path: "a-1.0.0.tgz", Kind: asset.Package})

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded struct {
		Paths    []string `json:"paths"`
		Contents []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"a-1.0.0.tgz"}, decoded.Paths)
	require.Len(t, decoded.Contents, 1)
	assert.Equal(t, "HELM_PACKAGE", decoded.Contents[0].Kind)

	empty, err := json.Marshal(NewResponse())
	require.NoError(t, err)
	assert.JSONEq(t, `{"paths":[],"contents":[]}`, string(empty))
}

func TestBatchError(t *testing.T) {
	cause := errdefs.ErrValidation(MissingNameMessage)
	err := error(&BatchError{Index: 2, Filename: "x.tgz", Err: cause})

	assert.Equal(t, `upload of payload 2 ("x.tgz") failed: Metadata is missing the name attribute`, err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errdefs.IsValidation(err))
}
