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

/*Package content stores the assets of a hosted Helm repository.

A Store stages uploaded bytes, records their checksums and attributes, and
persists them through a storage driver. Index documents are passed through a
URL rewriter before they are stored so every chart URL they list is relative
to the repository.
*/
package content // import "helm.sh/chartrepo/pkg/content"

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"helm.sh/chartrepo/pkg/asset"
	"helm.sh/chartrepo/pkg/attributes"
	"helm.sh/chartrepo/pkg/content/driver"
	"helm.sh/chartrepo/pkg/errdefs"
	"helm.sh/chartrepo/pkg/repo"
)

// Store is the content API consumed by upload handling.
type Store interface {
	// IngestTemp stages r and computes the requested checksums. The caller
	// must Close the returned blob.
	IngestTemp(ctx context.Context, r io.Reader, algs ...HashAlgorithm) (*TempBlob, error)
	// PutIndex stores body at path. Index documents are rewritten first;
	// other kinds are stored as they are.
	PutIndex(ctx context.Context, path string, body io.Reader, kind asset.Kind) (*Handle, error)
	// PutComponent stores body at path and binds it to the chart version
	// read from its own metadata.
	PutComponent(ctx context.Context, path string, body io.Reader, kind asset.Kind) (*Handle, error)
	// Delete removes the asset at path and reports whether one existed.
	Delete(ctx context.Context, path string) (bool, error)
	// GetAsset returns the asset at path, if any.
	GetAsset(ctx context.Context, path string) (*Handle, bool, error)
	// Components lists the stored versions of a chart, newest first.
	Components(ctx context.Context, name string) ([]*Component, error)
}

var _ Store = (*Storage)(nil)

// Storage is a Store for one repository over a storage driver. Several
// repositories may share a driver; each keeps its assets under its own name.
type Storage struct {
	driver   driver.Driver
	rewriter *repo.URLRewriter
	parser   attributes.Parser
	tempDir  string
	now      func() time.Time

	Log logrus.FieldLogger
}

// Option configures a Storage.
type Option func(*Storage)

// WithRepository binds the storage to a repository.
func WithRepository(ctx repo.Context) Option {
	return func(s *Storage) {
		s.rewriter = repo.NewURLRewriter(ctx)
	}
}

// WithTempDir sets the directory staged content is written to. The system
// temporary directory is used by default.
func WithTempDir(dir string) Option {
	return func(s *Storage) {
		s.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Storage) {
		s.Log = l
	}
}

// New returns a Storage over d. A nil driver selects an in-memory one.
func New(d driver.Driver, opts ...Option) *Storage {
	if d == nil {
		d = driver.NewMemory()
	}
	discard := logrus.New()
	discard.Out = io.Discard
	s := &Storage{
		driver:   d,
		rewriter: repo.NewURLRewriter(repo.Context{}),
		now:      time.Now,
		Log:      discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository is the name of the repository the storage belongs to.
func (s *Storage) Repository() string {
	return s.rewriter.Context.Repository
}

// IngestTemp stages r in a temporary file. The sha256 checksum is always
// computed in addition to algs.
func (s *Storage) IngestTemp(ctx context.Context, r io.Reader, algs ...HashAlgorithm) (*TempBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newTempBlob(s.tempDir, r, algs)
}

// PutIndex stores body at path as an asset of the given kind.
func (s *Storage) PutIndex(ctx context.Context, path string, body io.Reader, kind asset.Kind) (*Handle, error) {
	if kind == asset.Index {
		rewritten, err := s.rewriter.Rewrite(body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(rewritten)
	}

	blob, release, err := s.stage(ctx, body)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.put(path, kind, blob, nil)
}

// PutComponent stores body at path and records the chart name and version
// read from it. The component name is the path without version and
// extension.
func (s *Storage) PutComponent(ctx context.Context, path string, body io.Reader, kind asset.Kind) (*Handle, error) {
	blob, release, err := s.stage(ctx, body)
	if err != nil {
		return nil, err
	}
	defer release()

	r, err := blob.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	md, err := s.parser.Parse(kind, r)
	if err != nil {
		return nil, err
	}
	return s.put(path, kind, blob, func(rec *driver.Record) {
		rec.Attributes = md
		rec.Component = &driver.Component{
			Name:    asset.ComponentName(kind, path, md.Version),
			Version: md.Version,
		}
	})
}

// Delete removes the asset at path.
func (s *Storage) Delete(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key, err := s.key(path)
	if err != nil {
		return false, err
	}
	err = s.driver.Delete(key)
	switch {
	case errors.Is(err, driver.ErrAssetNotFound):
		return false, nil
	case err != nil:
		return false, errdefs.ErrStorage(err, "cannot delete %s", path)
	}
	s.Log.WithField("path", path).Debug("deleted asset")
	return true, nil
}

// GetAsset returns the asset at path. The boolean is false when there is none.
func (s *Storage) GetAsset(ctx context.Context, path string) (*Handle, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	key, err := s.key(path)
	if err != nil {
		return nil, false, err
	}
	rec, err := s.driver.Get(key)
	switch {
	case errors.Is(err, driver.ErrAssetNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, errdefs.ErrStorage(err, "cannot read %s", path)
	}
	rec.Path = path
	return newHandle(rec), true, nil
}

// Components lists the distinct versions stored for the named chart, newest
// first. Versions that are not semantic versions sort last.
func (s *Storage) Components(ctx context.Context, name string) ([]*Component, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var prefix string
	if r := s.Repository(); r != "" {
		prefix = r + "/"
	}
	recs, err := s.driver.List(func(rec *driver.Record) bool {
		return strings.HasPrefix(rec.Path, prefix) && rec.Component != nil && rec.Component.Name == name
	})
	if err != nil {
		return nil, errdefs.ErrStorage(err, "cannot list components of %s", name)
	}

	seen := map[string]bool{}
	var out []*Component
	for _, rec := range recs {
		if seen[rec.Component.Version] {
			continue
		}
		seen[rec.Component.Version] = true
		out = append(out, &Component{Name: rec.Component.Name, Version: rec.Component.Version})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, aerr := semver.NewVersion(out[i].Version)
		b, berr := semver.NewVersion(out[j].Version)
		switch {
		case aerr != nil:
			return false
		case berr != nil:
			return true
		}
		return a.GreaterThan(b)
	})
	return out, nil
}

// stage returns body as a TempBlob. A TempBlob passed in is used as it is and
// stays owned by the caller; anything else is staged and released by the
// returned func.
func (s *Storage) stage(ctx context.Context, body io.Reader) (*TempBlob, func(), error) {
	if blob, ok := body.(*TempBlob); ok {
		return blob, func() {}, nil
	}
	blob, err := s.IngestTemp(ctx, body, DefaultHashAlgorithms...)
	if err != nil {
		return nil, nil, err
	}
	return blob, func() { blob.Close() }, nil
}

func (s *Storage) put(path string, kind asset.Kind, blob *TempBlob, bind func(*driver.Record)) (*Handle, error) {
	key, err := s.key(path)
	if err != nil {
		return nil, err
	}
	data, err := blob.Bytes()
	if err != nil {
		return nil, err
	}
	rec := &driver.Record{
		ID:           uuid.New().String(),
		Path:         key,
		Kind:         kind.String(),
		ContentType:  kind.ContentType(),
		Size:         blob.Size(),
		Checksums:    blob.Checksums(),
		LastModified: s.now().UTC(),
		Data:         data,
	}
	if bind != nil {
		bind(rec)
	}
	if err := s.driver.Put(rec); err != nil {
		return nil, errdefs.ErrStorage(err, "cannot store %s", path)
	}

	s.Log.WithFields(logrus.Fields{
		"path":   path,
		"kind":   kind,
		"driver": s.driver.Name(),
	}).Debug("stored asset")

	rec.Path = path
	return newHandle(rec), nil
}

// key is the driver path of a repository path. Paths that are empty, not
// clean or reach outside the repository are rejected.
func (s *Storage) key(p string) (string, error) {
	if !asset.IsCleanPath(p) {
		return "", errdefs.ErrValidation(fmt.Sprintf("invalid asset path %q", p))
	}
	rel := strings.TrimPrefix(p, "/")
	if r := s.Repository(); r != "" {
		return r + "/" + rel, nil
	}
	return rel, nil
}
