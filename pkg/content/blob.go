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

package content

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"helm.sh/chartrepo/pkg/errdefs"
)

// HashAlgorithm names a checksum computed while staging content.
type HashAlgorithm string

const (
	// MD5 is the md5 checksum.
	MD5 HashAlgorithm = "md5"
	// SHA1 is the sha1 checksum.
	SHA1 HashAlgorithm = "sha1"
	// SHA256 is the sha256 checksum. It is always computed.
	SHA256 HashAlgorithm = "sha256"
)

// DefaultHashAlgorithms are the checksums recorded for every stored asset.
var DefaultHashAlgorithms = []HashAlgorithm{MD5, SHA1}

func (a HashAlgorithm) hasher() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return digest.SHA256.Hash(), nil
	}
	return nil, errors.Errorf("unsupported hash algorithm %q", a)
}

// TempBlob is content staged in a temporary file together with its
// checksums. It can be opened any number of times until it is closed.
//
// TempBlob is also an io.Reader over the staged bytes so it can be handed
// to the store as the body of a put without copying it again.
type TempBlob struct {
	file      string
	size      int64
	checksums map[HashAlgorithm]string
	digest    digest.Digest

	mu     sync.Mutex
	reader *os.File

	once     sync.Once
	closeErr error
}

// newTempBlob copies r into a new file in dir, hashing it on the way.
func newTempBlob(dir string, r io.Reader, algs []HashAlgorithm) (*TempBlob, error) {
	f, err := os.CreateTemp(dir, "chartrepo-blob-*")
	if err != nil {
		return nil, errdefs.ErrStorage(err, "cannot create temporary blob")
	}
	blob := &TempBlob{file: f.Name(), checksums: map[HashAlgorithm]string{}}

	digester := digest.Canonical.Digester()
	hashers := map[HashAlgorithm]hash.Hash{}
	writers := []io.Writer{f, digester.Hash()}
	for _, a := range algs {
		if a == SHA256 {
			continue
		}
		h, err := a.hasher()
		if err != nil {
			f.Close()
			blob.Close()
			return nil, err
		}
		hashers[a] = h
		writers = append(writers, h)
	}

	n, err := io.Copy(io.MultiWriter(writers...), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		blob.Close()
		return nil, errdefs.ErrStorage(err, "cannot stage content")
	}

	blob.size = n
	blob.digest = digester.Digest()
	blob.checksums[SHA256] = blob.digest.Encoded()
	for a, h := range hashers {
		blob.checksums[a] = hex.EncodeToString(h.Sum(nil))
	}
	return blob, nil
}

// Open returns a new reader positioned at the start of the staged bytes.
func (b *TempBlob) Open() (io.ReadCloser, error) {
	f, err := os.Open(b.file)
	if err != nil {
		return nil, errdefs.ErrStorage(err, "cannot open temporary blob")
	}
	return f, nil
}

// Read reads the staged bytes from the start, once.
func (b *TempBlob) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reader == nil {
		f, err := os.Open(b.file)
		if err != nil {
			return 0, errdefs.ErrStorage(err, "cannot open temporary blob")
		}
		b.reader = f
	}
	return b.reader.Read(p)
}

// Bytes returns the staged bytes.
func (b *TempBlob) Bytes() ([]byte, error) {
	data, err := os.ReadFile(b.file)
	if err != nil {
		return nil, errdefs.ErrStorage(err, "cannot read temporary blob")
	}
	return data, nil
}

// Size is the number of staged bytes.
func (b *TempBlob) Size() int64 { return b.size }

// Digest is the canonical digest of the staged bytes.
func (b *TempBlob) Digest() digest.Digest { return b.digest }

// Checksums returns the hex encoded checksums by algorithm name.
func (b *TempBlob) Checksums() map[string]string {
	out := make(map[string]string, len(b.checksums))
	for a, sum := range b.checksums {
		out[string(a)] = sum
	}
	return out
}

// Close removes the temporary file. Only the first call has an effect.
func (b *TempBlob) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		if b.reader != nil {
			b.reader.Close()
		}
		b.mu.Unlock()
		if err := os.Remove(b.file); err != nil && !os.IsNotExist(err) {
			b.closeErr = errdefs.ErrStorage(err, "cannot remove temporary blob")
		}
	})
	return b.closeErr
}
