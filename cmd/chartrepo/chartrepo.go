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

package main // import "helm.sh/chartrepo/cmd/chartrepo"

import (
	"fmt"
	"io"
	"os"

	"helm.sh/chartrepo/internal/logging"
	"helm.sh/chartrepo/pkg/cli"
)

// environment is the state shared by all commands of one invocation.
type environment struct {
	settings *cli.EnvSettings
	logging.LogHolder
}

func newEnvironment() *environment {
	env := &environment{settings: cli.New()}
	env.SetLogger(logging.NewLogger(func() bool { return env.settings.Debug }))
	return env
}

func warning(out io.Writer, format string, v ...interface{}) {
	fmt.Fprintf(out, "WARNING: "+format+"\n", v...)
}

func main() {
	cmd := newRootCmd(newEnvironment(), os.Stdout)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
