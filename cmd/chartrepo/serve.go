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
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"helm.sh/chartrepo/internal/metrics"
	"helm.sh/chartrepo/internal/server"
	"helm.sh/chartrepo/pkg/cli/require"
)

const serveDesc = `
Serve the configured repositories over HTTP.

Charts are uploaded with a multipart POST to /service/rest/v1/components
with the target repository in the "repository" query parameter. Files are
read, written and deleted under /repository/<repository>/<path>, and
Prometheus metrics are served on /metrics.
`

type serveOptions struct {
	env *environment
}

func newServeCmd(env *environment, out io.Writer) *cobra.Command {
	o := &serveOptions{env: env}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve chart repositories over HTTP",
		Long:  serveDesc,
		Args:  require.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.run(ctx, out)
		},
	}
	return cmd
}

func (o *serveOptions) run(ctx context.Context, out io.Writer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewProm("chartrepo", reg)

	h, err := newHandler(o.env, prom)
	if err != nil {
		return err
	}

	log := o.env.Logger()
	srv := server.New(h,
		server.WithLogger(log),
		server.WithMetrics(prom),
		server.WithGatherer(reg),
	)
	if o.env.settings.BaseURL == "" && o.env.settings.ConfigFile == "" {
		warning(out, "no base URL set; only the last path segment of absolute index URLs is kept")
	}
	return srv.ListenAndServe(ctx, o.env.settings.Address)
}
