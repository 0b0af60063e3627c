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
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	pathpkg "path"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

var _ Driver = (*Disk)(nil)

// DiskDriverName is the string name of this driver.
const DiskDriverName = "Disk"

const (
	diskBlobDir = "blobs"
	diskMetaDir = "meta"
	diskMetaExt = ".json"
)

// Disk is the on-disk storage driver implementation.
//
// Asset bytes live under <dir>/blobs/<path> and their records under
// <dir>/meta/<path>.json. Writers hold an exclusive file lock so several
// processes may share one directory.
type Disk struct {
	dir  string
	lock *flock.Flock
	Log  func(string, ...interface{})
}

// NewDisk initializes a new Disk driver rooted at dir.
func NewDisk(dir string) (*Disk, error) {
	disk := &Disk{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
		Log:  func(_ string, _ ...interface{}) {},
	}
	for _, d := range []string{diskBlobDir, diskMetaDir} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0755); err != nil {
			return nil, errors.Wrapf(err, "unable to create storage directory %s", dir)
		}
	}
	return disk, nil
}

// Name returns the name of the driver.
func (disk *Disk) Name() string {
	return DiskDriverName
}

// Get returns the record stored at path or returns ErrAssetNotFound.
func (disk *Disk) Get(path string) (*Record, error) {
	blobFile, metaFile, err := disk.files(path)
	if err != nil {
		return nil, err
	}
	rec, err := readRecord(metaFile)
	if os.IsNotExist(errors.Cause(err)) {
		return nil, newErrAssetNotFound(path)
	}
	if err != nil {
		return nil, err
	}
	if rec.Data, err = os.ReadFile(blobFile); err != nil {
		disk.Log("unable to read asset %s: %v", path, err)
		if os.IsNotExist(err) {
			return nil, newErrAssetNotFound(path)
		}
		return nil, errors.Wrapf(err, "unable to read asset %s", path)
	}
	return rec, nil
}

// List returns the list of all records such that filter(record) == true,
// ordered by path.
func (disk *Disk) List(filter func(*Record) bool) ([]*Record, error) {
	root := filepath.Join(disk.dir, diskMetaDir)
	var ls []*Record
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, diskMetaExt) {
			return nil
		}
		rec, err := readRecord(p)
		if err != nil {
			disk.Log("list: skipping unreadable record %s: %v", p, err)
			return nil
		}
		if filter(rec) {
			ls = append(ls, rec)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list files in %s", root)
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Path < ls[j].Path })
	return ls, nil
}

// Put stores rec, replacing any record at the same path. Both files are
// written to a temporary name and renamed into place.
func (disk *Disk) Put(rec *Record) error {
	blobFile, metaFile, err := disk.files(rec.Path)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "unable to convert record to json")
	}

	if err := disk.lock.Lock(); err != nil {
		return errors.Wrap(err, "unable to lock storage directory")
	}
	defer disk.lock.Unlock()

	if err := atomicWrite(blobFile, rec.Data); err != nil {
		disk.Log("unable to write asset %s: %v", rec.Path, err)
		return err
	}
	if err := atomicWrite(metaFile, meta); err != nil {
		disk.Log("unable to write record %s: %v", rec.Path, err)
		return err
	}
	return nil
}

// Delete deletes the record at path or returns ErrAssetNotFound.
func (disk *Disk) Delete(path string) error {
	blobFile, metaFile, err := disk.files(path)
	if err != nil {
		return err
	}

	if err := disk.lock.Lock(); err != nil {
		return errors.Wrap(err, "unable to lock storage directory")
	}
	defer disk.lock.Unlock()

	if err := os.Remove(metaFile); err != nil {
		if os.IsNotExist(err) {
			return newErrAssetNotFound(path)
		}
		return errors.Wrapf(err, "unable to delete file %s", metaFile)
	}
	if err := os.Remove(blobFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unable to delete file %s", blobFile)
	}
	return nil
}

// files resolves the blob and record file of a storage path inside the
// driver's directory. Paths with parent references are refused rather than
// resolved, so one key can never land on another.
func (disk *Disk) files(path string) (string, string, error) {
	rel := strings.TrimPrefix(path, "/")
	if rel == "" {
		return "", "", ErrInvalidPath
	}
	if pathpkg.Clean("/"+rel) != "/"+rel {
		return "", "", &StorageDriverError{Path: path, Err: ErrInvalidPath}
	}
	blobFile, err := securejoin.SecureJoin(filepath.Join(disk.dir, diskBlobDir), path)
	if err != nil {
		return "", "", &StorageDriverError{Path: path, Err: ErrInvalidPath}
	}
	metaFile, err := securejoin.SecureJoin(filepath.Join(disk.dir, diskMetaDir), path+diskMetaExt)
	if err != nil {
		return "", "", &StorageDriverError{Path: path, Err: ErrInvalidPath}
	}
	return blobFile, metaFile, nil
}

func readRecord(file string) (*Record, error) {
	d, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read file %s", file)
	}
	rec := &Record{}
	if err := json.Unmarshal(d, rec); err != nil {
		return nil, errors.Wrapf(err, "unable to unmarshal file %s", file)
	}
	return rec, nil
}

func atomicWrite(file string, data []byte) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "unable to create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s-*", filepath.Base(file)))
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", file)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "unable to write %s", file)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "unable to write %s", file)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), file), "unable to write %s", file)
}
