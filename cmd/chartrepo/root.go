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

	"github.com/spf13/cobra"
)

var globalUsage = `Host Helm chart repositories and upload charts to them.

Uploaded chart packages (.tgz) and provenance files (.tgz.prov) are stored
under "<name>-<version>" taken from the Chart.yaml inside them. Uploaded
index.yaml files have their chart URLs made relative to the repository.

Environment variables:

| Name                       | Description                                          |
|----------------------------|------------------------------------------------------|
| $CHARTREPO_DEBUG           | enable verbose output                                |
| $CHARTREPO_ADDRESS         | address the server listens on and the client calls   |
| $CHARTREPO_REPOSITORY      | repository used when none is configured              |
| $CHARTREPO_STORAGE         | storage driver: memory, disk, sql or s3              |
| $CHARTREPO_STORAGE_DIR     | root directory of the disk driver                    |
| $CHARTREPO_SQL_DIALECT     | database driver of the sql driver                    |
| $CHARTREPO_SQL_CONNECTION  | connection string of the sql driver                  |
| $CHARTREPO_S3_BUCKET       | bucket of the s3 driver                              |
| $CHARTREPO_S3_PREFIX       | key prefix of the s3 driver                          |
| $CHARTREPO_S3_ENDPOINT     | endpoint of an S3 compatible store                   |
| $CHARTREPO_S3_PATH_STYLE   | use path style bucket addressing                     |
| $CHARTREPO_TEMP_DIR        | directory for staged uploads                         |
| $CHARTREPO_BASE_URL        | public URL stripped from index chart URLs            |
| $CHARTREPO_CONFIG          | repositories and permissions file (YAML or TOML)     |
| $CHARTREPO_STRICT_METADATA | reject charts whose Chart.yaml fails validation      |
`

func newRootCmd(env *environment, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chartrepo",
		Short:         "Helm chart repository server and upload client",
		Long:          globalUsage,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	env.settings.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newServeCmd(env, out),
		newUploadCmd(env, out),
		newDeleteCmd(env, out),
		newRewriteIndexCmd(env, out),
		newVersionCmd(out),
	)
	return cmd
}
