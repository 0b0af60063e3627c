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

package driver

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"helm.sh/chartrepo/pkg/chart"
)

func recordStub(path, name, version string) *Record {
	return &Record{
		ID:          "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Path:        path,
		Kind:        "HELM_PACKAGE",
		ContentType: "application/x-tar",
		Size:        4,
		Checksums:   map[string]string{"sha1": "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3"},
		Component:   &Component{Name: name, Version: version},
		Attributes:  &chart.Metadata{APIVersion: "v2", Name: name, Version: version},
		// Whole seconds survive every driver unchanged.
		LastModified: time.Unix(1600000000, 0).UTC(),
		Data:         []byte("test"),
	}
}

func tsFixtureMemory(t *testing.T) *Memory {
	recs := []*Record{
		recordStub("alpine-0.1.0.tgz", "alpine", "0.1.0"),
		recordStub("alpine-0.2.0.tgz", "alpine", "0.2.0"),
		recordStub("nginx-1.0.0.tgz", "nginx", "1.0.0"),
	}

	mem := NewMemory()
	for _, rec := range recs {
		if err := mem.Put(rec); err != nil {
			t.Fatalf("Test setup failed to put: %s\n", err)
		}
	}
	return mem
}

// newTestFixtureSQL mocks the SQL database (for testing purposes)
func newTestFixtureSQL(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error when opening stub database connection: %v", err)
	}

	sqlxDB := sqlx.NewDb(sqlDB, "sqlmock")
	return &SQL{
		db:               sqlxDB,
		Log:              func(a string, b ...interface{}) {},
		statementBuilder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, mock
}
