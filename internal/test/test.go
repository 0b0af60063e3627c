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

// Package test builds chart archives and provenance files for tests.
package test

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/clearsign"
	"golang.org/x/crypto/openpgp/packet"
)

// TestingT describes a testing object compatible with the critical functions from the testing.T type
type TestingT interface {
	Fatal(...interface{})
	Fatalf(string, ...interface{})
	HelperT
}

// HelperT describes a test with a helper function
type HelperT interface {
	Helper()
}

// File is one entry of a generated archive. Name is relative to the archive root.
type File struct {
	Name string
	Data string
}

// ChartYaml renders a minimal Chart.yaml.
func ChartYaml(name, version string) string {
	var b bytes.Buffer
	b.WriteString("apiVersion: v2\n")
	if name != "" {
		fmt.Fprintf(&b, "name: %s\n", name)
	}
	if version != "" {
		fmt.Fprintf(&b, "version: %s\n", version)
	}
	b.WriteString("description: A Helm chart for Kubernetes\n")
	return b.String()
}

// ChartArchive returns a gzipped chart archive with the given Chart.yaml and a
// single template, rooted at dir/.
func ChartArchive(t TestingT, dir, chartYaml string) []byte {
	t.Helper()
	return Archive(t,
		File{Name: dir + "/Chart.yaml", Data: chartYaml},
		File{Name: dir + "/values.yaml", Data: "replicaCount: 1\n"},
		File{Name: dir + "/templates/service.yaml", Data: "kind: Service\n"},
	)
}

// Archive writes the files into a gzipped tarball.
func Archive(t TestingT, files ...File) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	gzw := gzip.NewWriter(buf)
	tw := tar.NewWriter(gzw)
	for _, f := range files {
		err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     f.Name,
			Mode:     0644,
			Size:     int64(len(f.Data)),
			ModTime:  time.Unix(0, 0),
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(f.Data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// Signer generates a throwaway OpenPGP key for clear-signing provenance files.
func Signer(t TestingT) *openpgp.Entity {
	t.Helper()
	e, err := openpgp.NewEntity("Test Signer", "", "signer@example.com", &packet.Config{RSABits: 1024})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// Provenance returns a clear-signed provenance file for the archive, in the
// layout written by "helm package --sign".
func Provenance(t TestingT, signer *openpgp.Entity, chartYaml, filename string, archive []byte) []byte {
	t.Helper()

	sum := sha256.Sum256(archive)
	var msg bytes.Buffer
	msg.WriteString(chartYaml)
	msg.WriteString("\n...\n")
	fmt.Fprintf(&msg, "files:\n  %s: sha256:%s\n", filename, hex.EncodeToString(sum[:]))

	out := &bytes.Buffer{}
	w, err := clearsign.Encode(out, signer.PrivateKey, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(msg.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}
