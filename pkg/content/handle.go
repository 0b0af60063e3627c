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

package content

import (
	"bytes"
	"io"
	"time"

	"helm.sh/chartrepo/pkg/asset"
	"helm.sh/chartrepo/pkg/chart"
	"helm.sh/chartrepo/pkg/content/driver"
)

// Component identifies the chart version an asset belongs to.
type Component struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Handle is a stored asset. Its content can be opened any number of times.
type Handle struct {
	ID           string            `json:"id"`
	Path         string            `json:"path"`
	Kind         asset.Kind        `json:"kind"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"contentType"`
	Checksums    map[string]string `json:"checksum,omitempty"`
	Attributes   *chart.Metadata   `json:"attributes,omitempty"`
	Component    *Component        `json:"component,omitempty"`
	LastModified time.Time         `json:"lastModified"`

	data []byte
}

// Open returns a reader over the asset's bytes.
func (h *Handle) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(h.data)), nil
}

func newHandle(rec *driver.Record) *Handle {
	kind, _ := asset.ParseKind(rec.Kind)
	h := &Handle{
		ID:           rec.ID,
		Path:         rec.Path,
		Kind:         kind,
		Size:         rec.Size,
		ContentType:  rec.ContentType,
		Checksums:    rec.Checksums,
		Attributes:   rec.Attributes,
		LastModified: rec.LastModified,
		data:         rec.Data,
	}
	if rec.Component != nil {
		h.Component = &Component{Name: rec.Component.Name, Version: rec.Component.Version}
	}
	return h
}
