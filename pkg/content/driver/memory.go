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
	"sort"
	"sync"
)

var _ Driver = (*Memory)(nil)

// MemoryDriverName is the string name of this driver.
const MemoryDriverName = "Memory"

// Memory is the in-memory storage driver implementation.
type Memory struct {
	sync.RWMutex
	// A map of storage paths to records
	cache map[string]*Record
}

// NewMemory initializes a new memory driver.
func NewMemory() *Memory {
	return &Memory{cache: map[string]*Record{}}
}

// Name returns the name of the driver.
func (mem *Memory) Name() string {
	return MemoryDriverName
}

// Get returns the record stored at path or returns ErrAssetNotFound.
func (mem *Memory) Get(path string) (*Record, error) {
	defer unlock(mem.rlock())

	rec, ok := mem.cache[path]
	if !ok {
		return nil, newErrAssetNotFound(path)
	}
	return rec.clone(true), nil
}

// List returns the list of all records such that filter(record) == true,
// ordered by path.
func (mem *Memory) List(filter func(*Record) bool) ([]*Record, error) {
	defer unlock(mem.rlock())

	var ls []*Record
	for _, rec := range mem.cache {
		if c := rec.clone(false); filter(c) {
			ls = append(ls, c)
		}
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Path < ls[j].Path })
	return ls, nil
}

// Put stores rec, replacing any record at the same path.
func (mem *Memory) Put(rec *Record) error {
	if rec.Path == "" {
		return ErrInvalidPath
	}
	defer unlock(mem.wlock())

	mem.cache[rec.Path] = rec.clone(true)
	return nil
}

// Delete deletes the record at path or returns ErrAssetNotFound.
func (mem *Memory) Delete(path string) error {
	defer unlock(mem.wlock())

	if _, ok := mem.cache[path]; !ok {
		return newErrAssetNotFound(path)
	}
	delete(mem.cache, path)
	return nil
}

// wlock locks mem for writing
func (mem *Memory) wlock() func() {
	mem.Lock()
	return func() { mem.Unlock() }
}

// rlock locks mem for reading
func (mem *Memory) rlock() func() {
	mem.RLock()
	return func() { mem.RUnlock() }
}

// unlock calls fn which reverses a mem.rlock or mem.wlock. e.g:
// ```defer unlock(mem.rlock())```, locks mem for reading at the
// call point of defer and unlocks upon exiting the block.
func unlock(fn func()) { fn() }

// clone returns a shallow copy of rec that callers may modify without
// affecting the stored record. Data is shared since it is never mutated.
func (rec *Record) clone(withData bool) *Record {
	c := *rec
	if rec.Checksums != nil {
		c.Checksums = make(map[string]string, len(rec.Checksums))
		for k, v := range rec.Checksums {
			c.Checksums[k] = v
		}
	}
	if rec.Component != nil {
		comp := *rec.Component
		c.Component = &comp
	}
	if !withData {
		c.Data = nil
	}
	return &c
}
