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

package repo

import (
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/mitchellh/copystructure"
	"github.com/pkg/errors"

	"helm.sh/chartrepo/pkg/errdefs"
)

// Context identifies the hosted repository an index document is stored in.
type Context struct {
	// Repository is the name of the hosted repository.
	Repository string
	// BaseURL is the public URL the repository is served from, if known.
	// URLs below it keep their sub path when made relative.
	BaseURL string
}

// URLRewriter turns the absolute chart URLs of an index document into URLs
// relative to the repository that serves it.
type URLRewriter struct {
	Context Context
}

// NewURLRewriter returns a rewriter for the given repository context.
func NewURLRewriter(ctx Context) *URLRewriter {
	return &URLRewriter{Context: ctx}
}

// Rewrite reads an index document and returns its rewritten canonical form.
// Rewriting an already rewritten document yields the same bytes.
func (w *URLRewriter) Rewrite(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errdefs.ErrStorage(err, "cannot read index document")
	}
	idx, err := LoadIndex(data)
	if err != nil {
		return nil, err
	}
	out, err := w.RewriteIndex(idx)
	if err != nil {
		return nil, err
	}
	return out.Marshal()
}

// RewriteIndex returns a copy of i with every absolute chart URL made
// relative and each chart's versions sorted newest first. i is not modified.
func (w *URLRewriter) RewriteIndex(i *IndexFile) (*IndexFile, error) {
	c, err := copystructure.Copy(i)
	if err != nil {
		return nil, errors.Wrap(err, "cannot copy index document")
	}
	out := c.(*IndexFile)
	for _, versions := range out.Entries {
		for _, cv := range versions {
			for n, u := range cv.URLs {
				cv.URLs[n] = w.RewriteURL(u)
			}
		}
	}
	out.SortEntries()
	return out, nil
}

// RewriteURL makes a single chart URL repository relative. Relative URLs and
// strings that do not parse are returned unchanged.
func (w *URLRewriter) RewriteURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	if base := strings.TrimSuffix(w.Context.BaseURL, "/"); base != "" {
		if rest := strings.TrimPrefix(raw, base+"/"); rest != raw && rest != "" {
			return rest
		}
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return raw
	}
	return name
}
