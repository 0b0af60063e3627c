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
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helm.sh/chartrepo/internal/test"
	"helm.sh/chartrepo/pkg/asset"
	"helm.sh/chartrepo/pkg/content"
	"helm.sh/chartrepo/pkg/content/driver"
	"helm.sh/chartrepo/pkg/errdefs"
	"helm.sh/chartrepo/pkg/permission"
	"helm.sh/chartrepo/pkg/repo"
)

const repository = "helm-hosted"

// spyStore counts the mutating calls made on a store.
type spyStore struct {
	content.Store
	ingested, puts int
	tempDir        string
}

func (s *spyStore) IngestTemp(ctx context.Context, r io.Reader, algs ...content.HashAlgorithm) (*content.TempBlob, error) {
	s.ingested++
	return s.Store.IngestTemp(ctx, r, algs...)
}

func (s *spyStore) PutComponent(ctx context.Context, path string, body io.Reader, kind asset.Kind) (*content.Handle, error) {
	s.puts++
	return s.Store.PutComponent(ctx, path, body, kind)
}

// trackedBody records whether it was read or closed.
type trackedBody struct {
	io.Reader
	read, closed bool
}

func (b *trackedBody) Read(p []byte) (int, error) {
	b.read = true
	return b.Reader.Read(p)
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

// failingDriver refuses every write.
type failingDriver struct {
	*driver.Memory
}

func (failingDriver) Put(*driver.Record) error {
	return errors.New("disk full")
}

func newFixture(t *testing.T, checker permission.Checker, opts ...Option) (*Handler, *spyStore, *driver.Memory) {
	t.Helper()
	d := driver.NewMemory()
	h, store := newFixtureOn(t, d, checker, opts...)
	return h, store, d
}

func newFixtureOn(t *testing.T, d driver.Driver, checker permission.Checker, opts ...Option) (*Handler, *spyStore) {
	t.Helper()
	store := &spyStore{tempDir: t.TempDir()}
	store.Store = content.New(d,
		content.WithRepository(repo.Context{Repository: repository}),
		content.WithTempDir(store.tempDir),
	)
	return NewHandler(StoreMap{repository: store}, checker, opts...), store
}

// assertReleased checks that no staged upload is left in the store's
// temporary directory.
func assertReleased(t *testing.T, store *spyStore) {
	t.Helper()
	entries, err := os.ReadDir(store.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged uploads should be removed")
}

func payload(name string, data []byte) Payload {
	return Payload{Name: name, Body: io.NopCloser(bytes.NewReader(data))}
}

func chartPayloads(t *testing.T, name, version string) (pkg, prov Payload) {
	chartYaml := test.ChartYaml(name, version)
	archive := test.ChartArchive(t, name, chartYaml)
	filename := name + "-" + version + ".tgz"
	signed := test.Provenance(t, test.Signer(t), chartYaml, filename, archive)
	return payload(filename, archive), payload(filename+".prov", signed)
}

func TestHandlePackage(t *testing.T) {
	h, _, d := newFixture(t, permission.AllowAll)
	pkg, _ := chartPayloads(t, "mychart", "0.1.0")

	resp, err := h.Handle(context.Background(), repository, []Payload{pkg})
	require.NoError(t, err)

	assert.Equal(t, []string{"mychart-0.1.0.tgz"}, resp.Paths())
	handle, ok := resp.Get("mychart-0.1.0.tgz")
	require.True(t, ok)
	assert.Equal(t, asset.Package, handle.Kind)
	assert.Equal(t, "0.1.0", handle.Component.Version)

	_, err = d.Get(repository + "/mychart-0.1.0.tgz")
	assert.NoError(t, err)
}

func TestHandlePackageAndProvenance(t *testing.T) {
	h, _, _ := newFixture(t, permission.AllowAll)
	pkg, prov := chartPayloads(t, "a", "1.0.0")

	resp, err := h.Handle(context.Background(), repository, []Payload{pkg, prov})
	require.NoError(t, err)

	assert.Equal(t, []string{"a-1.0.0.tgz", "a-1.0.0.tgz.prov"}, resp.Paths())
	contents := resp.Contents()
	require.Len(t, contents, 2)
	assert.Equal(t, asset.Package, contents[0].Kind)
	assert.Equal(t, asset.Provenance, contents[1].Kind)
}

func TestHandleKeepsSubmissionOrder(t *testing.T) {
	h, _, _ := newFixture(t, permission.AllowAll)

	var payloads []Payload
	var want []string
	for _, v := range []string{"3.0.0", "1.0.0", "2.0.0"} {
		pkg, _ := chartPayloads(t, "ordered", v)
		payloads = append(payloads, pkg)
		want = append(want, "ordered-"+v+".tgz")
	}

	resp, err := h.Handle(context.Background(), repository, payloads)
	require.NoError(t, err)
	assert.Equal(t, want, resp.Paths())
}

func TestHandleUnsupportedExtension(t *testing.T) {
	for _, name := range []string{"bogus.zip", "readme.txt", "index.yaml", "", "CHART-1.0.0.TGZ"} {
		t.Run(name, func(t *testing.T) {
			h, store, d := newFixture(t, permission.AllowAll)
			body := &trackedBody{Reader: strings.NewReader("whatever")}

			resp, err := h.Handle(context.Background(), repository, []Payload{{Name: name, Body: body}})
			require.Error(t, err)
			assert.True(t, errdefs.IsUnsupportedExtension(err))
			assert.Contains(t, err.Error(), UnsupportedExtensionMessage)
			assert.Equal(t, 0, resp.Len())

			assert.Zero(t, store.ingested)
			assert.Zero(t, store.puts)
			ls, _ := d.List(func(*driver.Record) bool { return true })
			assert.Empty(t, ls)
			assert.False(t, body.read)
			assert.True(t, body.closed)
		})
	}
}

func TestHandleMissingAttributes(t *testing.T) {
	tests := []struct {
		name, chartName, version, message string
	}{
		{"blank name", "", "0.1.0", MissingNameMessage},
		{"blank version", "nameless", "", MissingVersionMessage},
		{"whitespace name", "  ", "0.1.0", MissingNameMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _ := newFixture(t, permission.AllowAll)
			archive := test.ChartArchive(t, "chart", test.ChartYaml(tt.chartName, tt.version))

			_, err := h.Handle(context.Background(), repository, []Payload{payload("upload.tgz", archive)})
			require.Error(t, err)
			assert.True(t, errdefs.IsValidation(err))

			var batchErr *BatchError
			require.True(t, errors.As(err, &batchErr))
			assert.Equal(t, tt.message, batchErr.Err.Error())
			assert.Zero(t, store.puts)
			assertReleased(t, store)
		})
	}
}

func TestHandleMalformedPackage(t *testing.T) {
	h, store, _ := newFixture(t, permission.AllowAll)

	_, err := h.Handle(context.Background(), repository, []Payload{payload("broken.tgz", []byte("not gzip"))})
	assert.True(t, errdefs.IsMetadataParse(err))
	assert.Equal(t, 1, store.ingested)
	assert.Zero(t, store.puts)
	assertReleased(t, store)
}

func TestHandleStoreFailure(t *testing.T) {
	h, store := newFixtureOn(t, failingDriver{driver.NewMemory()}, permission.AllowAll)
	pkg, prov := chartPayloads(t, "mychart", "0.1.0")

	resp, err := h.Handle(context.Background(), repository, []Payload{pkg, prov})
	require.Error(t, err)
	assert.True(t, errdefs.IsStorage(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, resp.Len())
	assert.Equal(t, 1, store.puts)
	assertReleased(t, store)
}

func TestHandleRejectsPathElementsInMetadata(t *testing.T) {
	d, err := driver.NewDisk(t.TempDir())
	require.NoError(t, err)
	team := content.New(d, content.WithRepository(repo.Context{Repository: "team"}), content.WithTempDir(t.TempDir()))
	prod := content.New(d, content.WithRepository(repo.Context{Repository: "prod"}), content.WithTempDir(t.TempDir()))
	rules, err := permission.NewRules(permission.Rule{Repository: "team", Allow: true})
	require.NoError(t, err)
	h := NewHandler(StoreMap{"team": team, "prod": prod}, rules)
	ctx := context.Background()

	for _, md := range []struct{ name, version string }{
		{"../prod/nginx", "1.0.0"},
		{"nginx", "1.0.0/../../prod/nginx-1.0.0"},
		{`..\prod\nginx`, "1.0.0"},
	} {
		archive := test.ChartArchive(t, "nginx", test.ChartYaml(md.name, md.version))

		resp, err := h.Handle(ctx, "team", []Payload{payload("nginx-1.0.0.tgz", archive)})
		require.Error(t, err, md.name)
		assert.True(t, errdefs.IsValidation(err), err.Error())
		assert.Equal(t, 0, resp.Len())
	}

	_, err = h.PutFile(ctx, "team", "../prod/index.yaml", strings.NewReader(remoteIndex))
	assert.True(t, errdefs.IsValidation(err))
	_, err = h.Delete(ctx, "team", "../prod/nginx-1.0.0.tgz")
	assert.True(t, errdefs.IsValidation(err))

	ls, err := d.List(func(*driver.Record) bool { return true })
	require.NoError(t, err)
	assert.Empty(t, ls)
	_, ok, err := prod.GetAsset(ctx, "nginx-1.0.0.tgz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandleChecksPermissionOncePerPath(t *testing.T) {
	var checked []string
	checker := permission.CheckerFunc(func(_ context.Context, repo, format, path string, _ map[string]string) error {
		assert.Equal(t, repository, repo)
		assert.Equal(t, Format, format)
		checked = append(checked, path)
		return nil
	})
	h, _, _ := newFixture(t, checker)
	pkg, prov := chartPayloads(t, "a", "1.0.0")

	_, err := h.Handle(context.Background(), repository, []Payload{pkg, prov})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1.0.0.tgz", "a-1.0.0.tgz.prov"}, checked)
}

func TestHandlePartialFailure(t *testing.T) {
	rules, err := permission.NewRules(permission.Rule{Path: "good-*", Allow: true})
	require.NoError(t, err)
	h, store, _ := newFixture(t, rules)

	good, _ := chartPayloads(t, "good", "1.0.0")
	bad, _ := chartPayloads(t, "bad", "1.0.0")
	rest := &trackedBody{Reader: strings.NewReader("never read")}

	resp, err := h.Handle(context.Background(), repository, []Payload{good, bad, {Name: "later.tgz", Body: rest}})
	require.Error(t, err)
	assert.True(t, errdefs.IsPermissionDenied(err))

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 1, batchErr.Index)
	assert.Equal(t, "bad-1.0.0.tgz", batchErr.Filename)

	assert.Equal(t, []string{"good-1.0.0.tgz"}, resp.Paths())
	assert.Equal(t, 1, store.puts)
	assert.False(t, rest.read)
	assert.True(t, rest.closed)
	assertReleased(t, store)
}

func TestHandleDuplicatePathLastWriteWins(t *testing.T) {
	h, _, _ := newFixture(t, permission.AllowAll)
	first, _ := chartPayloads(t, "dup", "1.0.0")
	other, _ := chartPayloads(t, "other", "1.0.0")
	second, _ := chartPayloads(t, "dup", "1.0.0")

	resp, err := h.Handle(context.Background(), repository, []Payload{first, other, second})
	require.NoError(t, err)
	assert.Equal(t, []string{"dup-1.0.0.tgz", "other-1.0.0.tgz"}, resp.Paths())

	stored, err := h.Get(context.Background(), repository, "dup-1.0.0.tgz")
	require.NoError(t, err)
	recorded, _ := resp.Get("dup-1.0.0.tgz")
	assert.Equal(t, stored.ID, recorded.ID)
}

func TestHandleStrictMetadata(t *testing.T) {
	h, _, _ := newFixture(t, permission.AllowAll, WithStrictMetadata(true))
	archive := test.ChartArchive(t, "loose", test.ChartYaml("loose", "not-semver"))

	_, err := h.Handle(context.Background(), repository, []Payload{payload("loose.tgz", archive)})
	assert.True(t, errdefs.IsValidation(err))

	lenient, _, _ := newFixture(t, permission.AllowAll)
	archive = test.ChartArchive(t, "loose", test.ChartYaml("loose", "not-semver"))
	resp, err := lenient.Handle(context.Background(), repository, []Payload{payload("loose.tgz", archive)})
	require.NoError(t, err)
	assert.Equal(t, []string{"loose-not-semver.tgz"}, resp.Paths())
}

func TestHandleProvenanceChecksum(t *testing.T) {
	chartYaml := test.ChartYaml("signed", "1.0.0")
	archive := test.ChartArchive(t, "signed", chartYaml)
	signer := test.Signer(t)
	matching := test.Provenance(t, signer, chartYaml, "signed-1.0.0.tgz", archive)
	stale := test.Provenance(t, signer, chartYaml, "signed-1.0.0.tgz", []byte("an older archive"))

	h, _, _ := newFixture(t, permission.AllowAll, WithStrictMetadata(true))
	resp, err := h.Handle(context.Background(), repository, []Payload{
		payload("signed-1.0.0.tgz", archive),
		payload("signed-1.0.0.tgz.prov", matching),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"signed-1.0.0.tgz", "signed-1.0.0.tgz.prov"}, resp.Paths())

	_, err = h.Handle(context.Background(), repository, []Payload{payload("signed-1.0.0.tgz.prov", stale)})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
	assert.Contains(t, err.Error(), "does not match stored package signed-1.0.0.tgz")

	lenient, store, _ := newFixture(t, permission.AllowAll)
	_, err = lenient.Handle(context.Background(), repository, []Payload{payload("signed-1.0.0.tgz", archive)})
	require.NoError(t, err)
	resp, err = lenient.Handle(context.Background(), repository, []Payload{payload("signed-1.0.0.tgz.prov", stale)})
	require.NoError(t, err)
	assert.Equal(t, []string{"signed-1.0.0.tgz.prov"}, resp.Paths())
	assertReleased(t, store)
}

func TestHandleProvenanceWithoutPackage(t *testing.T) {
	h, _, _ := newFixture(t, permission.AllowAll, WithStrictMetadata(true))
	_, prov := chartPayloads(t, "orphan", "1.0.0")

	resp, err := h.Handle(context.Background(), repository, []Payload{prov})
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan-1.0.0.tgz.prov"}, resp.Paths())
}

func TestHandleUnknownRepository(t *testing.T) {
	h, _, _ := newFixture(t, permission.AllowAll)
	pkg, _ := chartPayloads(t, "mychart", "0.1.0")

	_, err := h.Handle(context.Background(), "missing", []Payload{pkg})
	assert.True(t, errdefs.IsNotFound(err))
}

func TestHandleCancelled(t *testing.T) {
	h, store, _ := newFixture(t, permission.AllowAll)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	body := &trackedBody{Reader: strings.NewReader("x")}

	_, err := h.Handle(ctx, repository, []Payload{{Name: "a-1.0.0.tgz", Body: body}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, body.closed)
	assert.Zero(t, store.ingested)
}

const remoteIndex = `apiVersion: v1
entries:
  mychart:
  - apiVersion: v2
    name: mychart
    urls:
    - https://charts.example.com/mychart-0.1.0.tgz
    version: 0.1.0
generated: "2020-01-01T00:00:00Z"
`

func TestPutFileIndex(t *testing.T) {
	h, _, _ := newFixture(t, permission.AllowAll)

	handle, err := h.PutFile(context.Background(), repository, "index.yaml", strings.NewReader(remoteIndex))
	require.NoError(t, err)
	assert.Equal(t, asset.Index, handle.Kind)

	r, _ := handle.Open()
	data, _ := io.ReadAll(r)
	assert.Contains(t, string(data), "- mychart-0.1.0.tgz")
	assert.NotContains(t, string(data), "https://charts.example.com")
}

func TestPutFileErrors(t *testing.T) {
	h, _, _ := newFixture(t, permission.AllowAll)
	ctx := context.Background()

	_, err := h.PutFile(ctx, repository, "docs/readme.txt", strings.NewReader("hi"))
	assert.True(t, errdefs.IsUnsupportedExtension(err))

	_, err = h.PutFile(ctx, repository, "index.yaml", strings.NewReader("entries: {}\n"))
	assert.True(t, errdefs.IsMetadataParse(err))

	denied, _, _ := newFixture(t, permission.DenyAll)
	_, err = denied.PutFile(ctx, repository, "index.yaml", strings.NewReader(remoteIndex))
	assert.True(t, errdefs.IsPermissionDenied(err))
}

func TestDeleteAndGet(t *testing.T) {
	h, _, _ := newFixture(t, permission.AllowAll)
	ctx := context.Background()

	_, err := h.PutFile(ctx, repository, "index.yaml", strings.NewReader(remoteIndex))
	require.NoError(t, err)

	_, err = h.Get(ctx, repository, "index.yaml")
	require.NoError(t, err)

	deleted, err := h.Delete(ctx, repository, "index.yaml")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = h.Get(ctx, repository, "index.yaml")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestDefinition(t *testing.T) {
	h, _, _ := newFixture(t, nil)
	d := h.Definition()
	assert.Same(t, d, h.Definition())
	assert.Equal(t, Format, d.Format)
	assert.False(t, d.MultipleUpload)
	assert.Empty(t, d.ComponentFields)
	require.Len(t, d.AssetFields, 1)
	assert.Equal(t, "asset", d.AssetFields[0].Name)

	shared := NewDefinition()
	h2, _, _ := newFixture(t, nil, WithDefinition(shared))
	assert.Same(t, shared, h2.Definition())
}
