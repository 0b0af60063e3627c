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

package errdefs // import "helm.sh/chartrepo/pkg/errdefs"

import (
	"errors"
	"fmt"
)

// Kind classifies an upload failure.
type Kind int

const (
	// Unknown is the zero Kind and is never produced by the constructors below.
	Unknown Kind = iota
	// UnsupportedExtension indicates a filename whose suffix is not a known asset kind.
	UnsupportedExtension
	// MetadataParse indicates an archive, provenance file or index that could not be read.
	MetadataParse
	// Validation indicates a required metadata attribute is blank.
	Validation
	// PermissionDenied indicates the acting principal may not write the path.
	PermissionDenied
	// Storage indicates a failure in the content store.
	Storage
	// NotFound indicates that an asset does not exist.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case UnsupportedExtension:
		return "unsupported extension"
	case MetadataParse:
		return "metadata parse"
	case Validation:
		return "validation"
	case PermissionDenied:
		return "permission denied"
	case Storage:
		return "storage"
	case NotFound:
		return "not found"
	}
	return "unknown"
}

// Error records a classified failure and its cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.String()
	case e.Msg == "":
		return e.Err.Error()
	case e.Err == nil:
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrUnsupportedExtension creates an UnsupportedExtension error.
func ErrUnsupportedExtension(format string, args ...interface{}) error {
	return &Error{Kind: UnsupportedExtension, Msg: fmt.Sprintf(format, args...)}
}

// ErrMetadataParse creates a MetadataParse error wrapping err. err may be nil.
func ErrMetadataParse(err error, format string, args ...interface{}) error {
	return &Error{Kind: MetadataParse, Msg: fmt.Sprintf(format, args...), Err: err}
}

// ErrValidation creates a Validation error carrying a user facing message.
func ErrValidation(msg string) error {
	return &Error{Kind: Validation, Msg: msg}
}

// ErrPermissionDenied creates a PermissionDenied error.
func ErrPermissionDenied(format string, args ...interface{}) error {
	return &Error{Kind: PermissionDenied, Msg: fmt.Sprintf(format, args...)}
}

// ErrStorage wraps a content store failure.
func ErrStorage(err error, format string, args ...interface{}) error {
	return &Error{Kind: Storage, Msg: fmt.Sprintf(format, args...), Err: err}
}

// ErrNotFound creates a NotFound error.
func ErrNotFound(format string, args ...interface{}) error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the outermost classified error in err's chain,
// or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsUnsupportedExtension reports whether err is an UnsupportedExtension error.
func IsUnsupportedExtension(err error) bool { return KindOf(err) == UnsupportedExtension }

// IsMetadataParse reports whether err is a MetadataParse error.
func IsMetadataParse(err error) bool { return KindOf(err) == MetadataParse }

// IsValidation reports whether err is a Validation error.
func IsValidation(err error) bool { return KindOf(err) == Validation }

// IsPermissionDenied reports whether err is a PermissionDenied error.
func IsPermissionDenied(err error) bool { return KindOf(err) == PermissionDenied }

// IsStorage reports whether err is a Storage error.
func IsStorage(err error) bool { return KindOf(err) == Storage }

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return KindOf(err) == NotFound }
