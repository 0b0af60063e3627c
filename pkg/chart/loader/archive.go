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

package loader

import (
	"archive/tar"
	"bufio"
	"bytes"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"helm.sh/chartrepo/pkg/chart"
)

// MaxDecompressedFileSize is the largest Chart.yaml that will be read out of
// an archive.
var MaxDecompressedFileSize int64 = 5 * 1024 * 1024

var drivePathPattern = regexp.MustCompile(`^[a-zA-Z]:/`)

// ErrNoChartYaml is returned when an archive has no Chart.yaml in its base directory.
var ErrNoChartYaml = errors.New("Chart.yaml file is missing")

// BufferedFile represents an archive file buffered for later processing.
type BufferedFile struct {
	Name string
	Data []byte
}

// LoadArchiveMetadata reads a gzipped chart archive and returns the parsed
// Chart.yaml found in the chart's base directory. Reading stops as soon as
// the file is found; files belonging to subcharts are skipped.
func LoadArchiveMetadata(in io.Reader) (*chart.Metadata, error) {
	var md *chart.Metadata
	err := walkArchive(in, func(f *BufferedFile) (bool, error) {
		if f.Name != "Chart.yaml" {
			return false, nil
		}
		md = new(chart.Metadata)
		if err := yaml.Unmarshal(f.Data, md); err != nil {
			return true, errors.Wrap(err, "cannot load Chart.yaml")
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if md == nil {
		return nil, ErrNoChartYaml
	}
	return md, nil
}

// ensureArchive returns an informative error if the stream does not appear to
// be a gzipped archive. Sometimes users upload a values.yaml or a zip file
// under a .tgz name.
func ensureArchive(br *bufio.Reader) error {
	buffer, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return errors.Wrap(err, "archive cannot be read")
	}
	if len(buffer) == 0 {
		return errors.New("archive is empty")
	}
	if contentType := http.DetectContentType(buffer); contentType != "application/x-gzip" {
		return errors.Errorf("file does not appear to be a gzipped archive; got '%s'", contentType)
	}
	return nil
}

// walkArchive visits every regular file of a chart archive with its path
// relative to the chart directory. fn returns true to stop the walk.
func walkArchive(in io.Reader, fn func(*BufferedFile) (bool, error)) error {
	br := bufio.NewReaderSize(in, 512)
	if err := ensureArchive(br); err != nil {
		return err
	}

	unzipped, err := gzip.NewReader(br)
	if err != nil {
		return err
	}
	defer unzipped.Close()

	tr := tar.NewReader(unzipped)
	for {
		hd, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if hd.FileInfo().IsDir() {
			// Use this instead of hd.Typeflag because we don't have to do any
			// inference chasing.
			continue
		}

		switch hd.Typeflag {
		// We don't want to process these extension header files.
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
			continue
		}

		n, err := cleanArchivePath(hd.Name)
		if err != nil {
			return err
		}

		if hd.Size > MaxDecompressedFileSize && n == "Chart.yaml" {
			return errors.Errorf("decompressed chart file %q is larger than the maximum file size %d", hd.Name, MaxDecompressedFileSize)
		}

		b := bytes.NewBuffer(nil)
		if _, err := io.Copy(b, io.LimitReader(tr, MaxDecompressedFileSize)); err != nil {
			return err
		}

		stop, err := fn(&BufferedFile{Name: n, Data: b.Bytes()})
		if err != nil || stop {
			return err
		}
	}
}

// cleanArchivePath strips the chart directory from an archive entry name and
// rejects names that escape it.
func cleanArchivePath(name string) (string, error) {
	// Archive could contain \ if generated on Windows
	delimiter := "/"
	if strings.ContainsRune(name, '\\') {
		delimiter = "\\"
	}

	parts := strings.Split(name, delimiter)
	if parts[0] == "Chart.yaml" {
		return "", errors.New("chart yaml not in base directory")
	}
	n := strings.Join(parts[1:], delimiter)

	// Normalize the path to the / delimiter
	n = strings.ReplaceAll(n, delimiter, "/")

	if path.IsAbs(n) {
		return "", errors.New("chart illegally contains absolute paths")
	}

	n = path.Clean(n)
	if n == "." {
		// In this case, the original path was relative when it should have been absolute.
		return "", errors.Errorf("chart illegally contains content outside the base directory: %q", name)
	}
	if strings.HasPrefix(n, "..") {
		return "", errors.New("chart illegally references parent directory")
	}

	// In some particularly arcane acts of path creativity, it is possible to intermix
	// UNIX and Windows style paths in such a way that you produce a result of the form
	// c:/foo even after all the built-in absolute path checks. So we explicitly check
	// for this condition.
	if drivePathPattern.MatchString(n) {
		return "", errors.New("chart contains illegally named files")
	}
	return n, nil
}
