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

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"helm.sh/chartrepo/internal/cli/output"
	"helm.sh/chartrepo/pkg/cli/require"
	"helm.sh/chartrepo/pkg/uploader"
)

const uploadDesc = `
Upload chart packages (.tgz) and provenance files (.tgz.prov) to a running
chart repository server.

The server stores each file under the name and version in its Chart.yaml,
whatever the local filename. Files are stored in the order given; when one
is rejected, the files before it stay stored and the rest are not sent on.
`

type uploadOptions struct {
	env        *environment
	username   string
	password   string
	outfmt     output.Format
	noColor    bool
	repository string
	files      []string
}

func newUploadCmd(env *environment, out io.Writer) *cobra.Command {
	o := &uploadOptions{env: env, outfmt: output.Table}

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "upload chart packages and provenance files",
		Long:  uploadDesc,
		Args:  require.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.files = args
			o.repository = env.settings.Repository
			return o.run(out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.username, "username", "", "user name sent to the server")
	f.StringVar(&o.password, "password", "", "password sent to the server")
	f.BoolVar(&o.noColor, "no-color", false, "disable colored output")
	f.VarP(&o.outfmt, "output", "o", fmt.Sprintf("prints the output in the specified format. Allowed values: %v", output.Formats()))
	return cmd
}

func (o *uploadOptions) run(out io.Writer) error {
	c := &uploader.ChartUploader{
		URL:      o.env.settings.Address,
		Username: o.username,
		Password: o.password,
	}
	result, err := c.UploadTo(o.repository, o.files...)
	if result != nil {
		if werr := o.outfmt.Write(out, &uploadWriter{result: result, noColor: o.noColor}); werr != nil {
			return werr
		}
	}
	return err
}

type uploadWriter struct {
	result  *uploader.Result
	noColor bool
}

func (w *uploadWriter) WriteTable(out io.Writer) error {
	table := uitable.New()
	table.AddRow(
		output.ColorizeHeader("PATH", w.noColor),
		output.ColorizeHeader("KIND", w.noColor),
		output.ColorizeHeader("SIZE", w.noColor),
		output.ColorizeHeader("SHA256", w.noColor),
	)
	for _, h := range w.result.Contents {
		table.AddRow(h.Path, output.ColorizeKind(h.Kind, w.noColor), h.Size, h.Checksums["sha256"])
	}
	if w.result.Error != "" {
		table.AddRow(output.ColorizeError("ERROR: "+w.result.Error, w.noColor))
	}
	return output.EncodeTable(out, table)
}

func (w *uploadWriter) WriteJSON(out io.Writer) error {
	return output.EncodeJSON(out, w.result)
}

func (w *uploadWriter) WriteYAML(out io.Writer) error {
	return output.EncodeYAML(out, w.result)
}
