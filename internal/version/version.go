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

// Package version reports the build of the chartrepo binaries.
package version // import "helm.sh/chartrepo/internal/version"

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// version is overridden at link time with
// -ldflags "-X helm.sh/chartrepo/internal/version.version=v1.2.3".
var version = "v0.1"

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version      string `json:"version,omitempty"`
	GitCommit    string `json:"git_commit,omitempty"`
	GitTreeState string `json:"git_tree_state,omitempty"`
	GoVersion    string `json:"go_version,omitempty"`
}

// Get returns the build info. The commit and tree state come from the VCS
// stamp the go tool embeds and are empty when the binary was built without one.
func Get() BuildInfo {
	v := BuildInfo{Version: version, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			v.GitCommit = s.Value
		case "vcs.modified":
			v.GitTreeState = "clean"
			if s.Value == "true" {
				v.GitTreeState = "dirty"
			}
		}
	}
	return v
}

// GetUserAgent returns the User-Agent sent by the upload client.
func GetUserAgent() string {
	return "chartrepo/" + strings.TrimPrefix(version, "v")
}
