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

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"helm.sh/chartrepo/internal/metrics"
	"helm.sh/chartrepo/pkg/cli"
	"helm.sh/chartrepo/pkg/content"
	"helm.sh/chartrepo/pkg/content/driver"
	"helm.sh/chartrepo/pkg/repo"
	"helm.sh/chartrepo/pkg/upload"
)

// newDriver opens the storage driver selected by the settings.
func newDriver(s *cli.EnvSettings, log logrus.FieldLogger) (driver.Driver, error) {
	switch s.Storage {
	case cli.StorageMemory:
		return driver.NewMemory(), nil
	case cli.StorageDisk:
		d, err := driver.NewDisk(s.StorageDir)
		if err != nil {
			return nil, err
		}
		d.Log = log.WithField("driver", d.Name()).Debugf
		return d, nil
	case cli.StorageSQL:
		d, err := driver.NewSQL(s.SQLDialect, s.SQLConnection, log.WithField("driver", driver.SQLDriverName).Debugf)
		if err != nil {
			return nil, errors.Wrap(err, "unable to open the sql storage driver")
		}
		return d, nil
	case cli.StorageS3:
		d, err := driver.NewS3(context.Background(), driver.S3Options{
			Bucket:       s.S3Bucket,
			Prefix:       s.S3Prefix,
			Endpoint:     s.S3Endpoint,
			UsePathStyle: s.S3PathStyle,
		}, log.WithField("driver", driver.S3DriverName).Debugf)
		if err != nil {
			return nil, errors.Wrap(err, "unable to open the s3 storage driver")
		}
		return d, nil
	}
	return nil, errors.Errorf("unknown storage driver %q", s.Storage)
}

// newHandler wires the configured repositories over one driver.
func newHandler(env *environment, m metrics.Metrics) (*upload.Handler, error) {
	s := env.settings
	log := env.Logger()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	config, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	checker, err := config.Checker()
	if err != nil {
		return nil, err
	}
	d, err := newDriver(s, log)
	if err != nil {
		return nil, err
	}

	stores := upload.StoreMap{}
	for _, r := range config.Repositories {
		stores[r.Name] = content.New(d,
			content.WithRepository(repo.Context{Repository: r.Name, BaseURL: r.BaseURL}),
			content.WithTempDir(s.TempDir),
			content.WithLogger(log.WithField("repository", r.Name)),
		)
	}

	return upload.NewHandler(stores, checker,
		upload.WithLogger(log),
		upload.WithMetrics(m),
		upload.WithStrictMetadata(s.StrictMetadata),
	), nil
}
