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

package output

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/gosuri/uitable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helm.sh/chartrepo/pkg/asset"
)

type row struct {
	Path string `json:"path"`
}

type rows []row

func (r rows) WriteTable(out io.Writer) error {
	t := uitable.New()
	t.AddRow("PATH")
	for _, x := range r {
		t.AddRow(x.Path)
	}
	return EncodeTable(out, t)
}

func (r rows) WriteJSON(out io.Writer) error { return EncodeJSON(out, r) }
func (r rows) WriteYAML(out io.Writer) error { return EncodeYAML(out, r) }

func TestFormatWrite(t *testing.T) {
	data := rows{{Path: "a-1.0.0.tgz"}}
	tests := []struct {
		format Format
		want   string
	}{
		{JSON, `[{"path":"a-1.0.0.tgz"}]` + "\n"},
		{YAML, "- path: a-1.0.0.tgz\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tt.format.Write(&buf, data))
			assert.Equal(t, tt.want, buf.String())
		})
	}

	var buf bytes.Buffer
	require.NoError(t, Table.Write(&buf, data))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "PATH", strings.TrimSpace(lines[0]))
	assert.Equal(t, "a-1.0.0.tgz", strings.TrimSpace(lines[1]))

	assert.ErrorIs(t, Format("xml").Write(io.Discard, data), ErrInvalidFormatType)
}

func TestParseFormat(t *testing.T) {
	for _, s := range Formats() {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, s, f.String())
	}

	var f Format
	assert.Error(t, f.Set("xml"))
	require.NoError(t, f.Set("json"))
	assert.Equal(t, JSON, f)
}

func TestColorize(t *testing.T) {
	for _, k := range []asset.Kind{asset.Package, asset.Provenance, asset.Index} {
		assert.Equal(t, k.String(), ColorizeKind(k, true))
		assert.True(t, strings.Contains(ColorizeKind(k, false), k.String()))
	}
	assert.Equal(t, "PATH", ColorizeHeader("PATH", true))
	assert.Equal(t, "boom", ColorizeError("boom", true))
}
