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
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"helm.sh/chartrepo/pkg/cli/require"
	"helm.sh/chartrepo/pkg/repo"
)

const rewriteIndexDesc = `
Rewrite the chart URLs of an index.yaml file so they are relative to the
repository serving it, the same way the server does on upload.

URLs under --base-url keep the rest of their path. Other absolute URLs keep
only their last path segment. Relative URLs are left alone, so running the
command twice gives the same result.
`

type rewriteIndexOptions struct {
	env     *environment
	file    string
	outFile string
}

func newRewriteIndexCmd(env *environment, out io.Writer) *cobra.Command {
	o := &rewriteIndexOptions{env: env}

	cmd := &cobra.Command{
		Use:   "rewrite-index FILE",
		Short: "make the chart URLs of an index file repository relative",
		Long:  rewriteIndexDesc,
		Args:  require.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.file = args[0]
			return o.run(out)
		},
	}

	cmd.Flags().StringVar(&o.outFile, "output-file", "", "write the rewritten index to this file instead of stdout")
	return cmd
}

func (o *rewriteIndexOptions) run(out io.Writer) error {
	f, err := os.Open(o.file)
	if err != nil {
		return err
	}
	defer f.Close()

	w := repo.NewURLRewriter(repo.Context{
		Repository: o.env.settings.Repository,
		BaseURL:    o.env.settings.BaseURL,
	})
	data, err := w.Rewrite(f)
	if err != nil {
		return errors.Wrapf(err, "cannot rewrite %s", o.file)
	}

	if o.outFile == "" {
		_, err = out.Write(data)
		return err
	}
	return os.WriteFile(o.outFile, data, 0644)
}
