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

package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helm.sh/chartrepo/pkg/errdefs"
)

func TestFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		kind     Kind
		wantErr  bool
	}{
		{"chart-1.2.3.tgz", Package, false},
		{"chart-1.2.3.tgz.prov", Provenance, false},
		{"index.yaml", Index, false},
		{"nested/dir/index.yaml", Index, false},
		{"charts/chart-1.2.3.tgz", Package, false},
		{"readme.txt", Unknown, true},
		{"bogus.zip", Unknown, true},
		{"chart-1.2.3.TGZ", Unknown, true},
		{"Index.yaml", Unknown, true},
		{"my-index.yaml", Unknown, true},
		{"chart.tgz.sig", Unknown, true},
		{"", Unknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			kind, err := FromFilename(tt.filename)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errdefs.IsUnsupportedExtension(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestPath(t *testing.T) {
	names := []string{"mychart", "a", "nginx-ingress", "x.y"}
	versions := []string{"0.1.0", "1.0.0-rc.1", "2.3.4+build.5", "1"}

	for _, n := range names {
		for _, v := range versions {
			p, err := Path(Package, n, v)
			require.NoError(t, err)
			assert.Equal(t, n+"-"+v+".tgz", p)

			prov, err := Path(Provenance, n, v)
			require.NoError(t, err)
			assert.Equal(t, p+".prov", prov)

			kind, err := FromFilename(p)
			require.NoError(t, err)
			assert.Equal(t, Package, kind)

			assert.Equal(t, n, ComponentName(Package, p, v))
			assert.Equal(t, n, ComponentName(Provenance, prov, v))
		}
	}

	_, err := Path(Index, "mychart", "0.1.0")
	assert.Error(t, err)
}

func TestPathRejectsPathElements(t *testing.T) {
	tests := []struct {
		name, version string
	}{
		{"../prod/nginx", "1.0.0"},
		{"prod/nginx", "1.0.0"},
		{`prod\nginx`, "1.0.0"},
		{"..", "1.0.0"},
		{".", "1.0.0"},
		{"nginx", "../1.0.0"},
		{"nginx", "1.0.0/../x"},
		{"nginx", "1..0"},
	}
	for _, tt := range tests {
		for _, kind := range []Kind{Package, Provenance} {
			_, err := Path(kind, tt.name, tt.version)
			require.Error(t, err, "%s %s", tt.name, tt.version)
			assert.True(t, errdefs.IsValidation(err), err.Error())
		}
	}

	assert.True(t, IsCleanPath("charts/index.yaml"))
	assert.True(t, IsCleanPath("/index.yaml"))
	assert.False(t, IsCleanPath("team/../prod/index.yaml"))
	assert.False(t, IsCleanPath("charts//index.yaml"))
	assert.False(t, IsCleanPath(`charts\index.yaml`))
	assert.False(t, IsCleanPath("/"))

	assert.True(t, IsSegment("nginx-ingress"))
	assert.True(t, IsSegment("1.0.0+build.5"))
	assert.False(t, IsSegment(""))
}

func TestKindStrings(t *testing.T) {
	for _, k := range []Kind{Package, Provenance, Index} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("HELM_CHART")
	assert.Error(t, err)

	assert.Equal(t, "UNKNOWN", Unknown.String())
	assert.Equal(t, "", Unknown.Extension())
	assert.Equal(t, "index.yaml", Index.Extension())
	assert.Equal(t, "application/pgp-signature", Provenance.ContentType())
}
