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

package cli

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helm.sh/chartrepo/pkg/permission"
)

func TestSettingsValidation(t *testing.T) {
	valid := func() EnvSettings {
		return EnvSettings{
			Address:    defaultAddress,
			Repository: defaultRepository,
			Storage:    StorageMemory,
		}
	}

	tests := []struct {
		name   string
		modify func(*EnvSettings)
		errs   []string
	}{
		{
			name:   "memory",
			modify: func(*EnvSettings) {},
		},
		{
			name: "missing address and repository",
			modify: func(s *EnvSettings) {
				s.Address = ""
				s.Repository = ""
			},
			errs: []string{
				"missing config error: Address param missing from configuration",
				"missing config error: Repository param missing from configuration",
			},
		},
		{
			name: "disk without directory",
			modify: func(s *EnvSettings) {
				s.Storage = StorageDisk
			},
			errs: []string{"missing config error: StorageDir param missing from configuration"},
		},
		{
			name: "sql without connection",
			modify: func(s *EnvSettings) {
				s.Storage = StorageSQL
				s.SQLDialect = "postgres"
			},
			errs: []string{"missing config error: SQLConnection param missing from configuration"},
		},
		{
			name: "s3 without bucket",
			modify: func(s *EnvSettings) {
				s.Storage = StorageS3
				s.S3Endpoint = "minio:9000"
			},
			errs: []string{
				"missing config error: S3Bucket param missing from configuration",
				`base URL "minio:9000" must be an absolute URL`,
			},
		},
		{
			name: "s3 with bucket",
			modify: func(s *EnvSettings) {
				s.Storage = StorageS3
				s.S3Bucket = "charts"
				s.S3Endpoint = "http://minio:9000"
			},
		},
		{
			name: "unknown driver and relative base URL",
			modify: func(s *EnvSettings) {
				s.Storage = "gcs"
				s.BaseURL = "/charts"
			},
			errs: []string{
				`unknown storage driver "gcs"`,
				`base URL "/charts" must be an absolute URL`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := valid()
			tt.modify(&settings)

			err := settings.Validate()
			if len(tt.errs) == 0 {
				assert.NoError(t, err)
				return
			}

			var merr *multierror.Error
			require.True(t, errors.As(err, &merr))
			var got []string
			for _, e := range merr.Errors {
				got = append(got, e.Error())
			}
			assert.Equal(t, tt.errs, got)
		})
	}
}

func TestMissingConfigError(t *testing.T) {
	err := (&EnvSettings{Storage: StorageMemory}).Validate()
	require.Error(t, err)

	var missing MissingConfigError
	assert.True(t, errors.As(err, &missing))
}

func TestConfigValidation(t *testing.T) {
	c := &Config{
		Repositories: []Repository{
			{Name: "stable", BaseURL: "https://charts.example.com/stable"},
			{Name: ""},
			{Name: "a/b"},
			{Name: "stable"},
			{Name: "incubator", BaseURL: "charts"},
		},
		Permissions: []permission.Rule{{Path: "[unterminated", Allow: true}},
	}

	err := c.Validate()
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 5)
	assert.Contains(t, err.Error(), "repository 1 has no name")
	assert.Contains(t, err.Error(), `repository name "a/b" must not contain '/'`)
	assert.Contains(t, err.Error(), `repository "stable" is declared twice`)
	assert.Contains(t, err.Error(), `base URL "charts" must be an absolute URL`)
	assert.Contains(t, err.Error(), "rule 0: invalid path pattern")
}
