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
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"helm.sh/chartrepo/pkg/permission"
)

// Repository declares one hosted repository.
type Repository struct {
	Name string `json:"name" toml:"name"`
	// BaseURL is the public URL of the repository. Optional.
	BaseURL string `json:"baseURL,omitempty" toml:"baseURL"`
}

// Config is the content of the configuration file.
type Config struct {
	Repositories []Repository `json:"repositories,omitempty" toml:"repositories"`
	// Permissions are evaluated in order and the first match wins. With no
	// rules every write is allowed.
	Permissions []permission.Rule `json:"permissions,omitempty" toml:"permissions"`
}

// LoadConfigFile reads a configuration file. Files ending in .toml are read
// as TOML and anything else as YAML.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't read config file %q", path)
	}

	c := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), c); err != nil {
			return nil, errors.Wrapf(err, "couldn't parse %q", path)
		}
		return c, nil
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, errors.Wrapf(err, "couldn't parse %q", path)
	}
	return c, nil
}

// LoadConfig returns the configuration named by the settings. Without a
// configuration file, or when the file declares no repositories, the
// settings' repository and base URL make up the only repository.
func (s *EnvSettings) LoadConfig() (*Config, error) {
	c := &Config{}
	if s.ConfigFile != "" {
		var err error
		if c, err = LoadConfigFile(s.ConfigFile); err != nil {
			return nil, err
		}
	}
	if len(c.Repositories) == 0 {
		c.Repositories = []Repository{{Name: s.Repository, BaseURL: s.BaseURL}}
	}
	return c, c.Validate()
}

// Checker compiles the permission rules.
func (c *Config) Checker() (permission.Checker, error) {
	if len(c.Permissions) == 0 {
		return permission.AllowAll, nil
	}
	return permission.NewRules(c.Permissions...)
}
