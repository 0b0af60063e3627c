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

/*Package upload ingests chart packages and provenance files into hosted
Helm repositories.

A Handler classifies each uploaded file by name, reads the chart name and
version embedded in it, derives the canonical storage path from them, checks
that the caller may write that path and stores the file. Files are handled
one at a time in submission order.
*/
package upload // import "helm.sh/chartrepo/pkg/upload"

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"helm.sh/chartrepo/internal/logging"
	"helm.sh/chartrepo/internal/metrics"
	"helm.sh/chartrepo/pkg/asset"
	"helm.sh/chartrepo/pkg/attributes"
	"helm.sh/chartrepo/pkg/content"
	"helm.sh/chartrepo/pkg/errdefs"
	"helm.sh/chartrepo/pkg/permission"
	"helm.sh/chartrepo/pkg/provenance"
)

// Format is the repository format name passed to permission checks.
const Format = "helm"

// Messages of the errors returned for rejected payloads.
const (
	UnsupportedExtensionMessage = "Unsupported extension. Extension must be .tgz or .tgz.prov"
	MissingNameMessage          = "Metadata is missing the name attribute"
	MissingVersionMessage       = "Metadata is missing the version attribute"
)

// Payload is one uploaded file.
type Payload struct {
	// Name is the declared filename. It may be empty.
	Name string
	// Body is read at most once and always closed by the Handler.
	Body io.ReadCloser
}

// Repositories resolves the content store of a repository by name.
type Repositories interface {
	Store(repository string) (content.Store, bool)
}

// StoreMap is a fixed set of repositories.
type StoreMap map[string]content.Store

// Store implements Repositories.
func (m StoreMap) Store(repository string) (content.Store, bool) {
	s, ok := m[repository]
	return s, ok
}

// Handler ingests uploads.
type Handler struct {
	repos      Repositories
	checker    permission.Checker
	parser     attributes.Parser
	definition *Definition
	metrics    metrics.Metrics
	strict     bool

	Log logrus.FieldLogger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Handler) {
		h.Log = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithDefinition sets the upload definition reported by the handler.
func WithDefinition(d *Definition) Option {
	return func(h *Handler) {
		h.definition = d
	}
}

// WithStrictMetadata makes uploads fail unless their Chart.yaml passes full
// validation, not only the name and version checks.
func WithStrictMetadata(strict bool) Option {
	return func(h *Handler) {
		h.strict = strict
	}
}

// NewHandler returns a Handler storing into repos. A nil checker allows
// every write.
func NewHandler(repos Repositories, checker permission.Checker, opts ...Option) *Handler {
	if checker == nil {
		checker = permission.AllowAll
	}
	h := &Handler{
		repos:   repos,
		checker: checker,
		metrics: metrics.Noop{},
		Log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.definition == nil {
		h.definition = NewDefinition()
	}
	return h
}

// Definition returns the upload definition.
func (h *Handler) Definition() *Definition {
	return h.definition
}

// Handle stores each payload in order at the path derived from its chart
// metadata.
//
// Processing stops at the first payload that fails. The returned Response
// then holds the payloads stored before it, and the error is a *BatchError
// naming the failing payload. Payloads after it are closed unread.
func (h *Handler) Handle(ctx context.Context, repository string, payloads []Payload) (*Response, error) {
	response := NewResponse()
	for i, p := range payloads {
		err := ctx.Err()
		if err == nil {
			err = h.ingest(ctx, repository, p, response)
		} else {
			closeBody(p)
		}
		if err != nil {
			for _, rest := range payloads[i+1:] {
				closeBody(rest)
			}
			h.failed(repository, p.Name, err)
			return response, &BatchError{Index: i, Filename: p.Name, Err: err}
		}
	}
	return response, nil
}

func (h *Handler) ingest(ctx context.Context, repository string, p Payload, response *Response) error {
	defer closeBody(p)

	store, err := h.store(repository)
	if err != nil {
		return err
	}

	kind, err := asset.FromFilename(p.Name)
	if err != nil || (kind != asset.Package && kind != asset.Provenance) {
		return errdefs.ErrUnsupportedExtension(UnsupportedExtensionMessage)
	}

	var body io.Reader = strings.NewReader("")
	if p.Body != nil {
		body = p.Body
	}
	blob, err := store.IngestTemp(ctx, body, content.MD5, content.SHA1)
	if err != nil {
		return err
	}
	defer blob.Close()

	r, err := blob.Open()
	if err != nil {
		return err
	}
	md, err := h.parser.Parse(kind, r)
	r.Close()
	if err != nil {
		return err
	}

	if strings.TrimSpace(md.Name) == "" {
		return errdefs.ErrValidation(MissingNameMessage)
	}
	if strings.TrimSpace(md.Version) == "" {
		return errdefs.ErrValidation(MissingVersionMessage)
	}
	if h.strict {
		if err := md.Validate(); err != nil {
			return errdefs.ErrValidation(err.Error())
		}
	}

	target, err := asset.Path(kind, md.Name, md.Version)
	if err != nil {
		return err
	}
	if err := h.checker.EnsurePermitted(ctx, repository, Format, target, nil); err != nil {
		return err
	}
	if kind == asset.Provenance {
		if err := h.checkProvenance(ctx, store, repository, target, blob); err != nil {
			return err
		}
	}

	handle, err := store.PutComponent(ctx, target, blob, kind)
	if err != nil {
		return err
	}
	response.Put(target, handle)
	h.stored(repository, target, kind)
	return nil
}

// checkProvenance compares the archive checksum declared by a provenance file
// with the package already stored beside it. Strict handlers reject a
// mismatch; otherwise it is only logged. Nothing is checked when the package
// is absent or the file declares no checksum for it.
func (h *Handler) checkProvenance(ctx context.Context, store content.Store, repository, target string, blob *content.TempBlob) error {
	pkgPath := strings.TrimSuffix(target, asset.Provenance.Extension()) + asset.Package.Extension()
	pkg, ok, err := store.GetAsset(ctx, pkgPath)
	if err != nil || !ok {
		return err
	}

	r, err := blob.Open()
	if err != nil {
		return err
	}
	sums, err := provenance.ParseSums(r)
	r.Close()
	if err != nil {
		h.Log.WithField("path", target).WithError(err).Debug("provenance checksums unreadable")
		return nil
	}
	declared, ok := sums.Files[path.Base(pkgPath)]
	if !ok {
		return nil
	}
	actual := string(content.SHA256) + ":" + pkg.Checksums[string(content.SHA256)]
	if declared == actual {
		return nil
	}
	if h.strict {
		return errdefs.ErrValidation(fmt.Sprintf("provenance checksum %s does not match stored package %s", declared, pkgPath))
	}
	h.Log.WithFields(logrus.Fields{
		"repository": repository,
		"path":       target,
		"declared":   declared,
		"actual":     actual,
	}).Warn("provenance checksum does not match stored package")
	return nil
}

// PutFile stores body at path without deriving a path from chart metadata.
// Index documents are rewritten by the store so their chart URLs become
// relative.
func (h *Handler) PutFile(ctx context.Context, repository, filePath string, body io.Reader) (*content.Handle, error) {
	handle, err := h.putFile(ctx, repository, filePath, body)
	if err != nil {
		h.failed(repository, filePath, err)
		return nil, err
	}
	h.stored(repository, filePath, handle.Kind)
	return handle, nil
}

func (h *Handler) putFile(ctx context.Context, repository, filePath string, body io.Reader) (*content.Handle, error) {
	store, err := h.store(repository)
	if err != nil {
		return nil, err
	}
	if err := checkPath(filePath); err != nil {
		return nil, err
	}
	if err := h.checker.EnsurePermitted(ctx, repository, Format, filePath, nil); err != nil {
		return nil, err
	}
	kind, err := asset.FromFilename(path.Base(filePath))
	if err != nil {
		return nil, err
	}
	return store.PutIndex(ctx, filePath, body, kind)
}

// Delete removes the asset at filePath and reports whether it existed.
func (h *Handler) Delete(ctx context.Context, repository, filePath string) (bool, error) {
	store, err := h.store(repository)
	if err != nil {
		return false, err
	}
	if err := checkPath(filePath); err != nil {
		return false, err
	}
	if err := h.checker.EnsurePermitted(ctx, repository, Format, filePath, nil); err != nil {
		return false, err
	}
	return store.Delete(ctx, filePath)
}

// Get returns the asset at filePath.
func (h *Handler) Get(ctx context.Context, repository, filePath string) (*content.Handle, error) {
	store, err := h.store(repository)
	if err != nil {
		return nil, err
	}
	handle, ok, err := store.GetAsset(ctx, filePath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errdefs.ErrNotFound("%s not found in repository %s", filePath, repository)
	}
	return handle, nil
}

func (h *Handler) store(repository string) (content.Store, error) {
	if h.repos != nil {
		if s, ok := h.repos.Store(repository); ok {
			return s, nil
		}
	}
	return nil, errdefs.ErrNotFound("repository %s not found", repository)
}

func (h *Handler) stored(repository, filePath string, kind asset.Kind) {
	h.metrics.IncAssetsStored(repository, kind.String())
	h.Log.WithFields(logrus.Fields{
		"repository": repository,
		"path":       filePath,
		"kind":       kind,
	}).Debug("stored upload")
}

func (h *Handler) failed(repository, filename string, err error) {
	reason := strings.ReplaceAll(errdefs.KindOf(err).String(), " ", "_")
	h.metrics.IncUploadFailures(repository, reason)
	h.Log.WithFields(logrus.Fields{
		"repository": repository,
		"filename":   filename,
		"reason":     reason,
	}).WithError(err).Warn("upload rejected")
}

func checkPath(p string) error {
	if !asset.IsCleanPath(p) {
		return errdefs.ErrValidation(fmt.Sprintf("invalid asset path %q", p))
	}
	return nil
}

func closeBody(p Payload) {
	if p.Body != nil {
		p.Body.Close()
	}
}
