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

/*Package cli describes the operating environment of the chart repository
server and its command line client.

Settings are read from CHARTREPO_* environment variables and may be
overridden by flags. Repositories and permission rules come from an optional
YAML or TOML configuration file.
*/
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"
)

// Storage drivers selectable with CHARTREPO_STORAGE.
const (
	StorageMemory = "memory"
	StorageDisk   = "disk"
	StorageSQL    = "sql"
	StorageS3     = "s3"
)

const (
	defaultAddress    = "127.0.0.1:8080"
	defaultRepository = "helm-hosted"
	defaultSQLDialect = "postgres"
)

// EnvSettings describes all of the environment settings.
type EnvSettings struct {
	// Debug enables debug logging.
	Debug bool
	// Address is the host:port the server listens on and the client talks to.
	Address string
	// Repository is the repository used when a command names none.
	Repository string
	// Storage is the content driver: memory, disk, sql or s3.
	Storage string
	// StorageDir is the root directory of the disk driver.
	StorageDir string
	// SQLDialect is the database/sql driver name of the sql driver.
	SQLDialect string
	// SQLConnection is the connection string of the sql driver.
	SQLConnection string
	// S3Bucket is the bucket of the s3 driver.
	S3Bucket string
	// S3Prefix is the key prefix of the s3 driver.
	S3Prefix string
	// S3Endpoint overrides the S3 endpoint for S3 compatible stores.
	S3Endpoint string
	// S3PathStyle addresses buckets by path instead of virtual host.
	S3PathStyle bool
	// TempDir holds staged uploads. Empty means the system default.
	TempDir string
	// BaseURL is the public URL of the default repository. Index URLs under
	// it are rewritten to the remainder of the URL.
	BaseURL string
	// ConfigFile is the path of the optional configuration file.
	ConfigFile string
	// StrictMetadata rejects uploads whose Chart.yaml fails full validation.
	StrictMetadata bool
}

// New returns the settings taken from the environment.
func New() *EnvSettings {
	env := &EnvSettings{
		Address:       envOr("CHARTREPO_ADDRESS", defaultAddress),
		Repository:    envOr("CHARTREPO_REPOSITORY", defaultRepository),
		Storage:       envOr("CHARTREPO_STORAGE", StorageMemory),
		StorageDir:    envOr("CHARTREPO_STORAGE_DIR", filepath.Join(os.TempDir(), "chartrepo")),
		SQLDialect:    envOr("CHARTREPO_SQL_DIALECT", defaultSQLDialect),
		SQLConnection: os.Getenv("CHARTREPO_SQL_CONNECTION"),
		S3Bucket:      os.Getenv("CHARTREPO_S3_BUCKET"),
		S3Prefix:      os.Getenv("CHARTREPO_S3_PREFIX"),
		S3Endpoint:    os.Getenv("CHARTREPO_S3_ENDPOINT"),
		TempDir:       os.Getenv("CHARTREPO_TEMP_DIR"),
		BaseURL:       os.Getenv("CHARTREPO_BASE_URL"),
		ConfigFile:    os.Getenv("CHARTREPO_CONFIG"),

		Debug:          envOrBool("CHARTREPO_DEBUG", false),
		S3PathStyle:    envOrBool("CHARTREPO_S3_PATH_STYLE", false),
		StrictMetadata: envOrBool("CHARTREPO_STRICT_METADATA", false),
	}
	return env
}

// AddFlags binds flags to the given flagset.
func (s *EnvSettings) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&s.Debug, "debug", s.Debug, "enable verbose output")
	fs.StringVar(&s.Address, "address", s.Address, "address of the chart repository server")
	fs.StringVarP(&s.Repository, "repository", "r", s.Repository, "name of the hosted repository")
	fs.StringVar(&s.Storage, "storage", s.Storage, "content storage driver: memory, disk, sql or s3")
	fs.StringVar(&s.StorageDir, "storage-dir", s.StorageDir, "root directory of the disk storage driver")
	fs.StringVar(&s.SQLDialect, "sql-dialect", s.SQLDialect, "database driver of the sql storage driver")
	fs.StringVar(&s.SQLConnection, "sql-connection", s.SQLConnection, "connection string of the sql storage driver")
	fs.StringVar(&s.S3Bucket, "s3-bucket", s.S3Bucket, "bucket of the s3 storage driver")
	fs.StringVar(&s.S3Prefix, "s3-prefix", s.S3Prefix, "key prefix of the s3 storage driver")
	fs.StringVar(&s.S3Endpoint, "s3-endpoint", s.S3Endpoint, "endpoint of an S3 compatible store")
	fs.BoolVar(&s.S3PathStyle, "s3-path-style", s.S3PathStyle, "use path style bucket addressing")
	fs.StringVar(&s.TempDir, "temp-dir", s.TempDir, "directory for staged uploads")
	fs.StringVar(&s.BaseURL, "base-url", s.BaseURL, "public URL of the repository, stripped from index chart URLs")
	fs.StringVar(&s.ConfigFile, "config", s.ConfigFile, "path to the repositories and permissions file")
	fs.BoolVar(&s.StrictMetadata, "strict-metadata", s.StrictMetadata, "reject charts whose Chart.yaml fails validation")
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func envOrBool(name string, def bool) bool {
	if name == "" {
		return def
	}
	envVal := envOr(name, strconv.FormatBool(def))
	ret, err := strconv.ParseBool(envVal)
	if err != nil {
		return def
	}
	return ret
}

// EnvVars returns the settings as CHARTREPO_* variables. The SQL connection
// string is left out since it may carry credentials.
func (s *EnvSettings) EnvVars() map[string]string {
	return map[string]string{
		"CHARTREPO_DEBUG":           fmt.Sprint(s.Debug),
		"CHARTREPO_ADDRESS":         s.Address,
		"CHARTREPO_REPOSITORY":      s.Repository,
		"CHARTREPO_STORAGE":         s.Storage,
		"CHARTREPO_STORAGE_DIR":     s.StorageDir,
		"CHARTREPO_SQL_DIALECT":     s.SQLDialect,
		"CHARTREPO_S3_BUCKET":       s.S3Bucket,
		"CHARTREPO_S3_PREFIX":       s.S3Prefix,
		"CHARTREPO_S3_ENDPOINT":     s.S3Endpoint,
		"CHARTREPO_S3_PATH_STYLE":   fmt.Sprint(s.S3PathStyle),
		"CHARTREPO_TEMP_DIR":        s.TempDir,
		"CHARTREPO_BASE_URL":        s.BaseURL,
		"CHARTREPO_CONFIG":          s.ConfigFile,
		"CHARTREPO_STRICT_METADATA": fmt.Sprint(s.StrictMetadata),
	}
}
