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

/*Package provenance reads the provenance files that accompany signed charts.

A provenance file is an OpenPGP clear-signed message whose body holds the
chart's Chart.yaml followed by a YAML document of file checksums:

	-----BEGIN PGP SIGNED MESSAGE-----
	Hash: SHA512

	apiVersion: v2
	name: mychart
	version: 0.1.0
	...
	files:
	  mychart-0.1.0.tgz: sha256:...
	-----BEGIN PGP SIGNATURE-----
*/
package provenance

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp/clearsign"
	"sigs.k8s.io/yaml"

	"helm.sh/chartrepo/pkg/chart"
)

const (
	signedMessageHeader = "-----BEGIN PGP SIGNED MESSAGE-----"
	signatureHeader     = "-----BEGIN PGP SIGNATURE-----"
)

// SumCollection represents a collection of file and image checksums.
//
// Files are of the form:
//
//	FILENAME: "sha256:SUM"
//
// Images are of the form:
//
//	"IMAGE:TAG": "sha256:SUM"
//
// Docker optionally supports sha512, and if this is the case, the hash marker
// will be 'sha512' instead of 'sha256'.
type SumCollection struct {
	Files  map[string]string `json:"files"`
	Images map[string]string `json:"images,omitempty"`
}

// ParseMetadata reads a provenance file and returns the chart metadata it
// carries. The signature itself is not verified.
func ParseMetadata(in io.Reader) (*chart.Metadata, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}

	md := new(chart.Metadata)
	if err := ParseMessageBlock(messageBody(data), md, nil); err != nil {
		return nil, err
	}
	return md, nil
}

// ParseSums reads a provenance file and returns the checksums it declares
// for the chart archive and its images.
func ParseSums(in io.Reader) (*SumCollection, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}

	sums := new(SumCollection)
	if err := ParseMessageBlock(messageBody(data), nil, sums); err != nil {
		return nil, err
	}
	return sums, nil
}

// messageBody returns the signed plaintext of a provenance file. Files with a
// well formed signature are decoded with the clearsign reader; anything else
// has its armor header lines skipped by hand.
func messageBody(data []byte) []byte {
	if block, _ := clearsign.Decode(data); block != nil {
		return block.Plaintext
	}

	var out bytes.Buffer
	s := bufio.NewScanner(bytes.NewReader(data))
	s.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	inHeader := false
	for s.Scan() {
		line := s.Text()
		switch {
		case line == signedMessageHeader:
			// Armor headers ("Hash: SHA512") run until the first blank line.
			inHeader = true
			continue
		case inHeader:
			if strings.TrimSpace(line) == "" {
				inHeader = false
			}
			continue
		case line == signatureHeader:
			return out.Bytes()
		}
		// Dash-escaped lines start with "- ".
		out.WriteString(strings.TrimPrefix(line, "- "))
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// ParseMessageBlock parses a message block containing metadata and checksums.
//
// Either of metadata or sums may be nil, in which case that part is skipped.
// The checksum part is optional when only metadata is requested.
func ParseMessageBlock(data []byte, metadata interface{}, sums *SumCollection) error {
	parts := bytes.SplitN(data, []byte("\n...\n"), 2)
	if len(bytes.TrimSpace(parts[0])) == 0 {
		return errors.New("message block has no metadata")
	}

	if metadata != nil {
		if err := yaml.Unmarshal(parts[0], metadata); err != nil {
			return errors.Wrap(err, "cannot parse provenance metadata")
		}
	}
	if sums == nil {
		return nil
	}
	if len(parts) < 2 {
		return errors.New("message block must have at least two parts")
	}
	return yaml.Unmarshal(parts[1], sums)
}
