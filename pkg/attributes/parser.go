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

// Package attributes extracts chart metadata from uploaded repository files.
package attributes // import "helm.sh/chartrepo/pkg/attributes"

import (
	"io"

	"helm.sh/chartrepo/pkg/asset"
	"helm.sh/chartrepo/pkg/chart"
	"helm.sh/chartrepo/pkg/chart/loader"
	"helm.sh/chartrepo/pkg/errdefs"
	"helm.sh/chartrepo/pkg/provenance"
)

// Parser reads chart attributes from packages and provenance files.
//
// A Parser is stateless; the zero value is ready to use. It never closes the
// reader it is given.
type Parser struct{}

// Parse returns the chart metadata embedded in r. Blank name or version are
// not treated as errors here; callers decide how to report them.
func (Parser) Parse(kind asset.Kind, r io.Reader) (*chart.Metadata, error) {
	var (
		md  *chart.Metadata
		err error
	)
	switch kind {
	case asset.Package:
		md, err = loader.LoadArchiveMetadata(r)
	case asset.Provenance:
		md, err = provenance.ParseMetadata(r)
	case asset.Index:
		return nil, errdefs.ErrMetadataParse(nil, "metadata extraction does not apply to index documents")
	default:
		return nil, errdefs.ErrUnsupportedExtension("cannot read attributes of asset kind %s", kind)
	}
	if err != nil {
		return nil, errdefs.ErrMetadataParse(err, "unable to read %s metadata", kindLabel(kind))
	}
	md.Sanitize()
	return md, nil
}

func kindLabel(kind asset.Kind) string {
	if kind == asset.Provenance {
		return "provenance"
	}
	return "chart package"
}
