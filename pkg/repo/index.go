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

package repo // import "helm.sh/chartrepo/pkg/repo"

import (
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"helm.sh/chartrepo/pkg/chart"
	"helm.sh/chartrepo/pkg/errdefs"
)

// APIVersionV1 is the v1 API version for index and repository files.
const APIVersionV1 = "v1"

// IndexFile represents the index file in a chart repository
type IndexFile struct {
	// This is used ONLY for validation against chartmuseum's index files and is discarded after validation.
	ServerInfo  map[string]interface{}   `json:"serverInfo,omitempty"`
	APIVersion  string                   `json:"apiVersion"`
	Generated   time.Time                `json:"generated"`
	Entries     map[string]ChartVersions `json:"entries"`
	PublicKeys  []string                 `json:"publicKeys,omitempty"`
	Annotations map[string]string        `json:"annotations,omitempty"`
}

// ChartVersions is a list of versioned chart references.
// Implements a sorter on Version.
type ChartVersions []*ChartVersion

// Len returns the length.
func (c ChartVersions) Len() int { return len(c) }

// Swap swaps the position of two items in the versions slice.
func (c ChartVersions) Swap(i, j int) { c[i], c[j] = c[j], c[i] }

// Less returns true if the version of entry a is less than the version of entry b.
// Versions that fail to parse are less than any valid version and equal to
// each other.
func (c ChartVersions) Less(a, b int) bool {
	i, ierr := semver.NewVersion(c[a].Version)
	j, jerr := semver.NewVersion(c[b].Version)
	switch {
	case ierr != nil:
		return jerr == nil
	case jerr != nil:
		return false
	}
	return i.LessThan(j)
}

// ChartVersion represents a chart entry in the IndexFile
type ChartVersion struct {
	*chart.Metadata
	URLs    []string  `json:"urls"`
	Created time.Time `json:"created,omitempty"`
	Removed bool      `json:"removed,omitempty"`
	Digest  string    `json:"digest,omitempty"`
}

// LoadIndex loads an index file and does minimal validity checking.
func LoadIndex(data []byte) (*IndexFile, error) {
	i := &IndexFile{}
	if len(data) == 0 {
		return i, errdefs.ErrMetadataParse(nil, "index document is empty")
	}
	if err := yaml.Unmarshal(data, i); err != nil {
		return i, errdefs.ErrMetadataParse(err, "cannot parse index document")
	}
	if i.APIVersion == "" {
		return i, errdefs.ErrMetadataParse(nil, "no API version specified in index document")
	}
	for name, cvs := range i.Entries {
		kept := cvs[:0]
		for _, cv := range cvs {
			// Skip nil nodes; a version without chart fields still has URLs.
			if cv == nil {
				continue
			}
			if cv.Metadata == nil {
				cv.Metadata = &chart.Metadata{}
			}
			kept = append(kept, cv)
		}
		i.Entries[name] = kept
	}
	return i, nil
}

// SortEntries sorts the entries by version in descending order.
//
// In canonical form, the individual version records should be sorted so that
// the most recent release for every version is in the 0th slot in the
// Entries.ChartVersions array. That way, tooling can predict the newest
// version without needing to parse SemVers.
func (i IndexFile) SortEntries() {
	for _, versions := range i.Entries {
		sort.Stable(sort.Reverse(versions))
	}
}

// Marshal renders the index in its canonical YAML form. Map keys are emitted
// in sorted order so equal indexes produce identical bytes.
func (i *IndexFile) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(i)
	return out, errors.Wrap(err, "cannot marshal index document")
}
