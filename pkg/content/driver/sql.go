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
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"

	// Import pq for postgres dialect
	_ "github.com/lib/pq"

	"helm.sh/chartrepo/pkg/chart"
)

var _ Driver = (*SQL)(nil)

var supportedSQLDialects = map[string]struct{}{
	"postgres": {},
}

// SQLDriverName is the string name of this driver.
const SQLDriverName = "SQL"

const (
	sqlAssetTableName = "chartrepo_assets"

	sqlAssetTablePathColumn             = "path"
	sqlAssetTableIDColumn               = "id"
	sqlAssetTableKindColumn             = "kind"
	sqlAssetTableContentTypeColumn      = "content_type"
	sqlAssetTableSizeColumn             = "size"
	sqlAssetTableChecksumsColumn        = "checksums"
	sqlAssetTableComponentNameColumn    = "component_name"
	sqlAssetTableComponentVersionColumn = "component_version"
	sqlAssetTableAttributesColumn       = "attributes"
	sqlAssetTableModifiedAtColumn       = "modified_at"
	sqlAssetTableBodyColumn             = "body"
)

const (
	sqlAssetPathMaxLen        = 1024
	sqlComponentNameMaxLen    = 253
	sqlComponentVersionMaxLen = 128
)

var sqlRecordColumns = []string{
	sqlAssetTablePathColumn,
	sqlAssetTableIDColumn,
	sqlAssetTableKindColumn,
	sqlAssetTableContentTypeColumn,
	sqlAssetTableSizeColumn,
	sqlAssetTableChecksumsColumn,
	sqlAssetTableComponentNameColumn,
	sqlAssetTableComponentVersionColumn,
	sqlAssetTableAttributesColumn,
	sqlAssetTableModifiedAtColumn,
}

// The columns written on insert; reads of single assets select them as well.
var sqlRecordColumnsWithBody = append(append([]string{}, sqlRecordColumns...), sqlAssetTableBodyColumn)

// SQL is the sql storage driver implementation.
type SQL struct {
	db               *sqlx.DB
	statementBuilder sq.StatementBuilderType

	Log func(string, ...interface{})
}

// Name returns the name of the driver.
func (s *SQL) Name() string {
	return SQLDriverName
}

func (s *SQL) ensureDBSetup() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "init",
				Up: []string{
					fmt.Sprintf(`
						CREATE TABLE %s (
							%s VARCHAR(%d) PRIMARY KEY,
							%s VARCHAR(36) NOT NULL,
							%s VARCHAR(32) NOT NULL,
							%s VARCHAR(128) NOT NULL,
							%s BIGINT NOT NULL,
							%s TEXT NOT NULL,
							%s VARCHAR(%d) NOT NULL DEFAULT '',
							%s VARCHAR(%d) NOT NULL DEFAULT '',
							%s TEXT NOT NULL,
							%s BIGINT NOT NULL,
							%s TEXT NOT NULL
						);
						CREATE INDEX ON %s (%s, %s);
					`,
						sqlAssetTableName,
						sqlAssetTablePathColumn, sqlAssetPathMaxLen,
						sqlAssetTableIDColumn,
						sqlAssetTableKindColumn,
						sqlAssetTableContentTypeColumn,
						sqlAssetTableSizeColumn,
						sqlAssetTableChecksumsColumn,
						sqlAssetTableComponentNameColumn, sqlComponentNameMaxLen,
						sqlAssetTableComponentVersionColumn, sqlComponentVersionMaxLen,
						sqlAssetTableAttributesColumn,
						sqlAssetTableModifiedAtColumn,
						sqlAssetTableBodyColumn,
						sqlAssetTableName, sqlAssetTableComponentNameColumn, sqlAssetTableComponentVersionColumn,
					),
				},
				Down: []string{
					fmt.Sprintf(`
						DROP TABLE %s;
					`, sqlAssetTableName),
				},
			},
		},
	}

	_, err := migrate.Exec(s.db.DB, "postgres", migrations, migrate.Up)
	return err
}

// SQLAssetWrapper describes how assets are stored in an SQL database
type SQLAssetWrapper struct {
	// The primary key, the storage path of the asset
	Path        string `db:"path"`
	ID          string `db:"id"`
	Kind        string `db:"kind"`
	ContentType string `db:"content_type"`
	Size        int64  `db:"size"`

	// JSON encoded map of algorithm to hex digest
	Checksums string `db:"checksums"`

	ComponentName    string `db:"component_name"`
	ComponentVersion string `db:"component_version"`

	// JSON encoded chart metadata, "null" when the asset has none
	Attributes string `db:"attributes"`

	ModifiedAt int64 `db:"modified_at"`

	// The asset bytes, as a base64-encoded string
	Body string `db:"body"`
}

// NewSQL initializes a new sql driver.
func NewSQL(dialect, connectionString string, logger func(string, ...interface{})) (*SQL, error) {
	if _, ok := supportedSQLDialects[dialect]; !ok {
		return nil, fmt.Errorf("%s dialect isn't supported, only \"postgres\" is available for now", dialect)
	}

	db, err := sqlx.Connect(dialect, connectionString)
	if err != nil {
		return nil, err
	}

	driver := &SQL{
		db:               db,
		Log:              logger,
		statementBuilder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}

	if err := driver.ensureDBSetup(); err != nil {
		return nil, err
	}

	return driver, nil
}

// Get returns the record stored at path or returns ErrAssetNotFound.
func (s *SQL) Get(path string) (*Record, error) {
	query, args, err := s.statementBuilder.
		Select(sqlRecordColumnsWithBody...).
		From(sqlAssetTableName).
		Where(sq.Eq{sqlAssetTablePathColumn: path}).
		ToSql()
	if err != nil {
		s.Log("failed to build query: %v", err)
		return nil, err
	}

	var w SQLAssetWrapper
	// Get will return an error if the result is empty
	if err := s.db.Get(&w, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, newErrAssetNotFound(path)
		}
		s.Log("got SQL error when getting asset %s: %v", path, err)
		return nil, err
	}

	rec, err := w.record()
	if err != nil {
		s.Log("get: failed to decode asset %q: %v", path, err)
		return nil, err
	}
	return rec, nil
}

// List returns the list of all records such that filter(record) == true,
// ordered by path.
func (s *SQL) List(filter func(*Record) bool) ([]*Record, error) {
	query, args, err := s.statementBuilder.
		Select(sqlRecordColumns...).
		From(sqlAssetTableName).
		OrderBy(sqlAssetTablePathColumn).
		ToSql()
	if err != nil {
		s.Log("failed to build query: %v", err)
		return nil, err
	}

	var wrappers = []SQLAssetWrapper{}
	if err := s.db.Select(&wrappers, query, args...); err != nil {
		s.Log("list: failed to list: %v", err)
		return nil, err
	}

	var ls []*Record
	for _, w := range wrappers {
		rec, err := w.record()
		if err != nil {
			s.Log("list: failed to decode asset %s: %v", w.Path, err)
			continue
		}
		if filter(rec) {
			ls = append(ls, rec)
		}
	}
	return ls, nil
}

// Put stores rec, replacing any record at the same path.
func (s *SQL) Put(rec *Record) error {
	if rec.Path == "" {
		return ErrInvalidPath
	}
	w, err := wrapRecord(rec)
	if err != nil {
		s.Log("failed to encode asset: %v", err)
		return err
	}

	query, args, err := s.statementBuilder.
		Insert(sqlAssetTableName).
		Columns(sqlRecordColumnsWithBody...).
		Values(w.Path, w.ID, w.Kind, w.ContentType, w.Size, w.Checksums, w.ComponentName, w.ComponentVersion, w.Attributes, w.ModifiedAt, w.Body).
		Suffix(upsertSuffix()).
		ToSql()
	if err != nil {
		s.Log("failed to build insert query: %v", err)
		return err
	}

	transaction, err := s.db.Beginx()
	if err != nil {
		s.Log("failed to start SQL transaction: %v", err)
		return fmt.Errorf("error beginning transaction: %v", err)
	}

	if _, err := transaction.Exec(query, args...); err != nil {
		defer transaction.Rollback()
		s.Log("failed to store asset %s in SQL database: %v", rec.Path, err)
		return err
	}
	return transaction.Commit()
}

// Delete deletes the record at path or returns ErrAssetNotFound.
func (s *SQL) Delete(path string) error {
	query, args, err := s.statementBuilder.
		Delete(sqlAssetTableName).
		Where(sq.Eq{sqlAssetTablePathColumn: path}).
		ToSql()
	if err != nil {
		s.Log("failed to build delete query: %v", err)
		return err
	}

	transaction, err := s.db.Beginx()
	if err != nil {
		s.Log("failed to start SQL transaction: %v", err)
		return fmt.Errorf("error beginning transaction: %v", err)
	}

	result, err := transaction.Exec(query, args...)
	if err != nil {
		defer transaction.Rollback()
		s.Log("failed to delete asset %s: %v", path, err)
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		defer transaction.Rollback()
		return newErrAssetNotFound(path)
	}
	return transaction.Commit()
}

// upsertSuffix makes an insert replace the row of an existing path.
func upsertSuffix() string {
	suffix := "ON CONFLICT (" + sqlAssetTablePathColumn + ") DO UPDATE SET "
	for i, c := range sqlRecordColumnsWithBody[1:] {
		if i > 0 {
			suffix += ", "
		}
		suffix += c + " = EXCLUDED." + c
	}
	return suffix
}

func wrapRecord(rec *Record) (*SQLAssetWrapper, error) {
	checksums, err := json.Marshal(rec.Checksums)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode checksums")
	}
	attributes, err := json.Marshal(rec.Attributes)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode attributes")
	}
	w := &SQLAssetWrapper{
		Path:        rec.Path,
		ID:          rec.ID,
		Kind:        rec.Kind,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		Checksums:   string(checksums),
		Attributes:  string(attributes),
		ModifiedAt:  rec.LastModified.Unix(),
		Body:        base64.StdEncoding.EncodeToString(rec.Data),
	}
	if rec.Component != nil {
		w.ComponentName = rec.Component.Name
		w.ComponentVersion = rec.Component.Version
	}
	return w, nil
}

func (w *SQLAssetWrapper) record() (*Record, error) {
	rec := &Record{
		Path:         w.Path,
		ID:           w.ID,
		Kind:         w.Kind,
		ContentType:  w.ContentType,
		Size:         w.Size,
		LastModified: time.Unix(w.ModifiedAt, 0).UTC(),
	}
	if w.Checksums != "" {
		if err := json.Unmarshal([]byte(w.Checksums), &rec.Checksums); err != nil {
			return nil, errors.Wrap(err, "unable to decode checksums")
		}
	}
	if w.Attributes != "" && w.Attributes != "null" {
		rec.Attributes = new(chart.Metadata)
		if err := json.Unmarshal([]byte(w.Attributes), rec.Attributes); err != nil {
			return nil, errors.Wrap(err, "unable to decode attributes")
		}
	}
	if w.ComponentName != "" {
		rec.Component = &Component{Name: w.ComponentName, Version: w.ComponentVersion}
	}
	if w.Body != "" {
		data, err := base64.StdEncoding.DecodeString(w.Body)
		if err != nil {
			return nil, errors.Wrap(err, "unable to decode asset body")
		}
		rec.Data = data
	}
	return rec, nil
}
