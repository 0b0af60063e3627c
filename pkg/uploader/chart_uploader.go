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

// Package uploader is the client side of chart repository uploads.
package uploader

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"helm.sh/chartrepo/internal/version"
	"helm.sh/chartrepo/pkg/content"
)

// AssetField is the multipart field uploaded files are sent in.
const AssetField = "asset"

// Result is the server's answer to an upload.
type Result struct {
	Paths    []string          `json:"paths"`
	Contents []*content.Handle `json:"contents"`
	Error    string            `json:"error,omitempty"`
}

// ChartUploader uploads chart files to a chart repository server.
type ChartUploader struct {
	// URL is the base URL of the server, e.g. http://127.0.0.1:8080.
	URL string
	// Username and Password are sent as basic auth when Username is set.
	Username string
	Password string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// UploadTo uploads files to repository in one request. When the server
// rejects a file the Result still lists the files stored before it.
func (c *ChartUploader) UploadTo(repository string, files ...string) (*Result, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, f := range files {
		if err := addFile(mw, f); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	u, err := c.endpoint("/service/rest/v1/components")
	if err != nil {
		return nil, err
	}
	u.RawQuery = url.Values{"repository": {repository}}.Encode()

	req, err := c.newRequest(http.MethodPost, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upload failed")
	}
	defer resp.Body.Close()

	result := &Result{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, errors.Wrapf(err, "unexpected response to upload (%s)", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return result, errors.Errorf("upload failed (%s): %s", resp.Status, result.Error)
	}
	return result, nil
}

// Delete removes the file at path from repository.
func (c *ChartUploader) Delete(repository, path string) error {
	u, err := c.endpoint("/repository/" + url.PathEscape(repository) + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return err
	}
	req, err := c.newRequest(http.MethodDelete, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return errors.Wrap(err, "delete failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return errors.Errorf("delete failed (%s): %s", resp.Status, e.Error)
	}
	return nil
}

func addFile(mw *multipart.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := mw.CreateFormFile(AssetField, filepath.Base(name))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func (c *ChartUploader) endpoint(p string) (*url.URL, error) {
	base := c.URL
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/") + p)
	if err != nil {
		return nil, errors.Errorf("invalid server URL %q", c.URL)
	}
	return u, nil
}

func (c *ChartUploader) newRequest(method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.GetUserAgent())
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
	return req, nil
}

func (c *ChartUploader) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}
