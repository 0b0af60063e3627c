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
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"

	"helm.sh/chartrepo/pkg/permission"
)

// MissingConfigError reports a setting that is required but empty.
type MissingConfigError struct {
	string
}

func (e MissingConfigError) Error() string {
	return fmt.Sprintf("missing config error: %s param missing from configuration", e.string)
}

// Validate ensures the settings are complete for the selected storage
// driver. All problems are reported together.
func (s *EnvSettings) Validate() error {
	var result *multierror.Error

	if s.Address == "" {
		result = multierror.Append(result, MissingConfigError{"Address"})
	}
	if s.Repository == "" {
		result = multierror.Append(result, MissingConfigError{"Repository"})
	}
	switch s.Storage {
	case StorageMemory:
	case StorageDisk:
		if s.StorageDir == "" {
			result = multierror.Append(result, MissingConfigError{"StorageDir"})
		}
	case StorageSQL:
		if s.SQLDialect == "" {
			result = multierror.Append(result, MissingConfigError{"SQLDialect"})
		}
		if s.SQLConnection == "" {
			result = multierror.Append(result, MissingConfigError{"SQLConnection"})
		}
	case StorageS3:
		if s.S3Bucket == "" {
			result = multierror.Append(result, MissingConfigError{"S3Bucket"})
		}
		if s.S3Endpoint != "" {
			if err := validateBaseURL(s.S3Endpoint); err != nil {
				result = multierror.Append(result, err)
			}
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown storage driver %q", s.Storage))
	}
	if err := validateBaseURL(s.BaseURL); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Validate checks repository names and base URLs and compiles the
// permission rules.
func (c *Config) Validate() error {
	var result *multierror.Error

	seen := map[string]bool{}
	for i, r := range c.Repositories {
		switch {
		case r.Name == "":
			result = multierror.Append(result, fmt.Errorf("repository %d has no name", i))
		case strings.Contains(r.Name, "/"):
			result = multierror.Append(result, fmt.Errorf("repository name %q must not contain '/'", r.Name))
		case seen[r.Name]:
			result = multierror.Append(result, fmt.Errorf("repository %q is declared twice", r.Name))
		}
		seen[r.Name] = true
		if err := validateBaseURL(r.BaseURL); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if _, err := permission.NewRules(c.Permissions...); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("base URL %q must be an absolute URL", raw)
	}
	return nil
}
