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
	"errors"
	"sync"
	"testing"
)

func TestMemoryName(t *testing.T) {
	if mem := NewMemory(); mem.Name() != MemoryDriverName {
		t.Errorf("Expected name to be %q, got %q", MemoryDriverName, mem.Name())
	}
}

func TestMemoryGet(t *testing.T) {
	var tests = []struct {
		desc string
		path string
		err  bool
	}{
		{"existing asset should be found", "alpine-0.1.0.tgz", false},
		{"missing asset should not be found", "alpine-9.9.9.tgz", true},
	}

	ts := tsFixtureMemory(t)
	for _, tt := range tests {
		rec, err := ts.Get(tt.path)
		if (err != nil) != tt.err {
			t.Fatalf("%q failed: %s", tt.desc, err)
		}
		if tt.err {
			if !errors.Is(err, ErrAssetNotFound) {
				t.Errorf("%q: expected ErrAssetNotFound, got %v", tt.desc, err)
			}
			continue
		}
		if string(rec.Data) != "test" {
			t.Errorf("%q: unexpected data %q", tt.desc, rec.Data)
		}
	}
}

func TestMemoryPutOverwrites(t *testing.T) {
	ts := tsFixtureMemory(t)

	rec := recordStub("alpine-0.1.0.tgz", "alpine", "0.1.0")
	rec.Data = []byte("newer")
	if err := ts.Put(rec); err != nil {
		t.Fatalf("failed to put: %s", err)
	}

	got, err := ts.Get("alpine-0.1.0.tgz")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Data) != "newer" {
		t.Errorf("expected the last write to win, got %q", got.Data)
	}

	if err := ts.Put(&Record{}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}

func TestMemoryGetReturnsCopies(t *testing.T) {
	ts := tsFixtureMemory(t)

	rec, _ := ts.Get("nginx-1.0.0.tgz")
	rec.Checksums["sha1"] = "tampered"
	rec.Component.Version = "6.6.6"

	again, _ := ts.Get("nginx-1.0.0.tgz")
	if again.Checksums["sha1"] == "tampered" || again.Component.Version != "1.0.0" {
		t.Error("stored record was modified through a returned copy")
	}
}

func TestMemoryList(t *testing.T) {
	ts := tsFixtureMemory(t)

	alpines, err := ts.List(func(rec *Record) bool { return rec.Component.Name == "alpine" })
	if err != nil {
		t.Fatal(err)
	}
	if len(alpines) != 2 {
		t.Fatalf("Expected 2 alpine records, got %d", len(alpines))
	}
	if alpines[0].Path != "alpine-0.1.0.tgz" || alpines[1].Path != "alpine-0.2.0.tgz" {
		t.Errorf("records not ordered by path: %s, %s", alpines[0].Path, alpines[1].Path)
	}
	if alpines[0].Data != nil {
		t.Error("List should not load record data")
	}
}

func TestMemoryDelete(t *testing.T) {
	ts := tsFixtureMemory(t)

	if err := ts.Delete("nginx-1.0.0.tgz"); err != nil {
		t.Fatalf("failed to delete: %s", err)
	}
	if _, err := ts.Get("nginx-1.0.0.tgz"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected deleted asset to be gone, got %v", err)
	}
	if err := ts.Delete("nginx-1.0.0.tgz"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound on second delete, got %v", err)
	}
}

func TestMemoryConcurrentPuts(t *testing.T) {
	ts := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ts.Put(recordStub("race-1.0.0.tgz", "race", "1.0.0"))
		}()
	}
	wg.Wait()

	ls, _ := ts.List(func(*Record) bool { return true })
	if len(ls) != 1 {
		t.Errorf("expected a single winner, got %d records", len(ls))
	}
}
