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

package output

import (
	"github.com/fatih/color"

	"helm.sh/chartrepo/pkg/asset"
)

// ColorizeKind returns the kind's name colored by kind.
func ColorizeKind(kind asset.Kind, noColor bool) string {
	if noColor {
		return kind.String()
	}

	switch kind {
	case asset.Package:
		return color.GreenString(kind.String())
	case asset.Provenance:
		return color.CyanString(kind.String())
	case asset.Index:
		return color.YellowString(kind.String())
	default:
		return color.RedString(kind.String())
	}
}

// ColorizeError returns a colorized error message.
func ColorizeError(msg string, noColor bool) string {
	if noColor {
		return msg
	}
	return color.RedString(msg)
}

// ColorizeHeader returns a colorized version of a header string
func ColorizeHeader(header string, noColor bool) string {
	if noColor {
		return header
	}

	// Use bold for headers
	return color.New(color.Bold).Sprint(header)
}
