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

/*Package asset classifies Helm repository files and derives their storage paths.

Every file a hosted Helm repository holds is one of three kinds: a chart
package, the provenance file that signs it, or the repository index. Packages
and provenance files live at the repository root under a name computed from
the chart's own metadata, so two uploads of the same chart version always
land on the same path.
*/
package asset // import "helm.sh/chartrepo/pkg/asset"

import (
	"fmt"
	"path"
	"strings"

	"helm.sh/chartrepo/pkg/errdefs"
)

// Kind is the classification tag stored with every asset.
type Kind int

const (
	// Unknown is the zero Kind.
	Unknown Kind = iota
	// Package is a gzipped chart archive.
	Package
	// Provenance is a clear-signed provenance file for a chart archive.
	Provenance
	// Index is a repository index document.
	Index
)

const (
	// PackageExtension is the filename suffix of chart archives.
	PackageExtension = ".tgz"
	// ProvenanceExtension is the filename suffix of provenance files.
	ProvenanceExtension = ".tgz.prov"
	// IndexFilename is the well-known name of the repository index.
	IndexFilename = "index.yaml"
)

var kindNames = map[Kind]string{
	Package:    "HELM_PACKAGE",
	Provenance: "HELM_PROVENANCE",
	Index:      "HELM_INDEX",
}

// String returns the persisted name of the kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "UNKNOWN"
}

// Extension returns the filename suffix for packages and provenance files and
// the index filename for Index.
func (k Kind) Extension() string {
	switch k {
	case Package:
		return PackageExtension
	case Provenance:
		return ProvenanceExtension
	case Index:
		return IndexFilename
	}
	return ""
}

// ContentType returns the media type served for the kind.
func (k Kind) ContentType() string {
	switch k {
	case Package:
		return "application/x-tar"
	case Provenance:
		return "application/pgp-signature"
	case Index:
		return "text/x-yaml"
	}
	return "application/octet-stream"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return Unknown, fmt.Errorf("unknown asset kind %q", s)
}

// FromFilename classifies a file by its name. Only the base name is
// inspected and the comparison is case sensitive.
func FromFilename(filename string) (Kind, error) {
	base := path.Base(filename)
	switch {
	case strings.HasSuffix(base, ProvenanceExtension):
		return Provenance, nil
	case strings.HasSuffix(base, PackageExtension):
		return Package, nil
	case base == IndexFilename:
		return Index, nil
	}
	return Unknown, errdefs.ErrUnsupportedExtension("unsupported file extension for %q", filename)
}

// Path returns the canonical storage path of a package or provenance file,
// "<name>-<version><extension>". Index documents have no derived path; they
// are stored at the path they were uploaded to.
//
// Name and version must each be a single path segment, so a derived path
// always stays at the repository root.
func Path(kind Kind, name, version string) (string, error) {
	switch kind {
	case Package, Provenance:
		if !IsSegment(name) {
			return "", errdefs.ErrValidation(fmt.Sprintf("Metadata name %q is not a valid file name", name))
		}
		if !IsSegment(version) {
			return "", errdefs.ErrValidation(fmt.Sprintf("Metadata version %q is not a valid file name", version))
		}
		return fmt.Sprintf("%s-%s%s", name, version, kind.Extension()), nil
	}
	return "", fmt.Errorf("no derived path for asset kind %s", kind)
}

// IsCleanPath reports whether p is a non-empty storage path without empty,
// "." or ".." elements. A leading slash is ignored.
func IsCleanPath(p string) bool {
	rel := strings.TrimPrefix(p, "/")
	return rel != "" && !strings.Contains(rel, `\`) && path.Clean("/"+rel) == "/"+rel
}

// IsSegment reports whether s can be used as one element of a storage path.
func IsSegment(s string) bool {
	if s == "" || s == "." || s == ".." || strings.Contains(s, "..") {
		return false
	}
	return !strings.ContainsAny(s, "/\\") && path.Base(s) == s
}

// ComponentName recovers the component name from a derived path by removing
// the kind's extension and the trailing "-<version>".
func ComponentName(kind Kind, p, version string) string {
	n := strings.TrimSuffix(path.Base(p), kind.Extension())
	return strings.TrimSuffix(n, "-"+version)
}

// MarshalText encodes the kind as its persisted name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a persisted kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
