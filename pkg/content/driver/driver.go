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

package driver // import "helm.sh/chartrepo/pkg/content/driver"

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"helm.sh/chartrepo/pkg/chart"
)

var (
	// ErrAssetNotFound indicates that no asset is stored at a path.
	ErrAssetNotFound = errors.New("asset: not found")
	// ErrInvalidPath indicates a storage path that is empty or escapes the store.
	ErrInvalidPath = errors.New("asset: invalid path")
)

// StorageDriverError records an error and the asset path that caused it
type StorageDriverError struct {
	Path string
	Err  error
}

func (e *StorageDriverError) Error() string {
	return fmt.Sprintf("%q %s", e.Path, e.Err.Error())
}

func (e *StorageDriverError) Unwrap() error { return e.Err }

func newErrAssetNotFound(path string) error {
	return &StorageDriverError{Path: path, Err: ErrAssetNotFound}
}

// Component is the versioned component an asset belongs to.
type Component struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Record is a stored asset: its bytes together with what is known about them.
type Record struct {
	ID           string            `json:"id"`
	Path         string            `json:"path"`
	Kind         string            `json:"kind"`
	ContentType  string            `json:"contentType"`
	Size         int64             `json:"size"`
	Checksums    map[string]string `json:"checksums,omitempty"`
	Component    *Component        `json:"component,omitempty"`
	Attributes   *chart.Metadata   `json:"attributes,omitempty"`
	LastModified time.Time         `json:"lastModified"`

	Data []byte `json:"-"`
}

// Putter is the interface that wraps the Put method.
//
// Put stores the record at rec.Path. An existing record at the same path is
// replaced, so concurrent writers of one path resolve to the last one.
type Putter interface {
	Put(rec *Record) error
}

// Getter is the interface that wraps the Get method.
//
// Get returns the record stored at path or ErrAssetNotFound.
type Getter interface {
	Get(path string) (*Record, error)
}

// Deletor is the interface that wraps the Delete method.
//
// Delete removes the record stored at path or returns ErrAssetNotFound.
type Deletor interface {
	Delete(path string) error
}

// Lister is the interface that wraps the List method.
//
// List returns every record for which filter returns true. Record data is
// not loaded.
type Lister interface {
	List(filter func(*Record) bool) ([]*Record, error)
}

// Driver is the interface composed of Putter, Getter, Deletor and Lister
// for storing repository assets.
type Driver interface {
	Putter
	Getter
	Deletor
	Lister
	Name() string
}
