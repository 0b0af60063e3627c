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

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"helm.sh/chartrepo/pkg/cli/require"
	"helm.sh/chartrepo/pkg/uploader"
)

type deleteOptions struct {
	env      *environment
	username string
	password string
	paths    []string
}

func newDeleteCmd(env *environment, out io.Writer) *cobra.Command {
	o := &deleteOptions{env: env}

	cmd := &cobra.Command{
		Use:   "delete PATH...",
		Short: "delete files from a repository",
		Args:  require.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.paths = args
			return o.run(out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.username, "username", "", "user name sent to the server")
	f.StringVar(&o.password, "password", "", "password sent to the server")
	return cmd
}

func (o *deleteOptions) run(out io.Writer) error {
	c := &uploader.ChartUploader{
		URL:      o.env.settings.Address,
		Username: o.username,
		Password: o.password,
	}
	for _, p := range o.paths {
		if err := c.Delete(o.env.settings.Repository, p); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s deleted from %s\n", p, o.env.settings.Repository)
	}
	return nil
}
