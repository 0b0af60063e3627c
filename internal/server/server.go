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

/*Package server exposes chart uploads and hosted repository content over
HTTP.
*/
package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"helm.sh/chartrepo/internal/logging"
	"helm.sh/chartrepo/internal/metrics"
	"helm.sh/chartrepo/pkg/content"
	"helm.sh/chartrepo/pkg/errdefs"
	"helm.sh/chartrepo/pkg/permission"
	"helm.sh/chartrepo/pkg/upload"
)

// Routes served by the Server.
const (
	ComponentsRoute = "/service/rest/v1/components"
	RepositoryRoute = "/repository/{repository}/{path:.+}"
	MetricsRoute    = "/metrics"
)

// PrincipalHeader names the caller when the request carries no basic auth.
const PrincipalHeader = "X-Chartrepo-User"

const defaultMaxMemory = 32 << 20

// Server routes HTTP requests to an upload.Handler.
type Server struct {
	handler   *upload.Handler
	metrics   metrics.HTTPMetrics
	gatherer  prometheus.Gatherer
	maxMemory int64
	router    *mux.Router

	Log logrus.FieldLogger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) {
		s.Log = l
	}
}

// WithMetrics records request counts and latencies in m.
func WithMetrics(m metrics.HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMaxMemory sets how much of a multipart upload is kept in memory before
// spilling to disk.
func WithMaxMemory(n int64) Option {
	return func(s *Server) {
		s.maxMemory = n
	}
}

// New returns a Server for h.
func New(h *upload.Handler, opts ...Option) *Server {
	s := &Server{
		handler:   h,
		metrics:   metrics.Noop{},
		maxMemory: defaultMaxMemory,
		Log:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Use(s.authenticate, s.instrument)
	r.HandleFunc(ComponentsRoute, s.uploadComponents).Methods(http.MethodPost)
	r.HandleFunc(RepositoryRoute, s.putAsset).Methods(http.MethodPut)
	r.HandleFunc(RepositoryRoute, s.getAsset).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(RepositoryRoute, s.deleteAsset).Methods(http.MethodDelete)
	r.Handle(MetricsRoute, metrics.Handler(s.gatherer)).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.Log.WithField("address", addr).Info("serving chart repository")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != http.ErrServerClosed {
		return err
	}
	return nil
}

type uploadResult struct {
	Paths    []string          `json:"paths"`
	Contents []*content.Handle `json:"contents"`
	Error    string            `json:"error,omitempty"`
}

func (s *Server) uploadComponents(w http.ResponseWriter, r *http.Request) {
	repository := r.URL.Query().Get("repository")
	if repository == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "the repository query parameter is required"})
		return
	}
	payloads, err := formPayloads(r, s.maxMemory)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(payloads) == 0 {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "no asset file in upload"})
		return
	}

	resp, err := s.handler.Handle(r.Context(), repository, payloads)
	result := uploadResult{Paths: resp.Paths(), Contents: resp.Contents()}
	if err != nil {
		result.Error = err.Error()
		s.writeJSON(w, statusOf(err), result)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// formPayloads reads the file parts of a multipart upload in the order they
// were sent, whatever their field names. Parts are held in memory until
// maxMemory bytes are used and spill to temporary files after that. Other
// form values are skipped.
func formPayloads(r *http.Request, maxMemory int64) ([]upload.Payload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errdefs.ErrValidation(fmt.Sprintf("invalid multipart upload: %v", err))
	}

	var payloads []upload.Payload
	fail := func(err error) ([]upload.Payload, error) {
		for _, p := range payloads {
			p.Body.Close()
		}
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return payloads, nil
		}
		if err != nil {
			return fail(errdefs.ErrValidation(fmt.Sprintf("invalid multipart upload: %v", err)))
		}
		name := part.FileName()
		if name == "" {
			part.Close()
			continue
		}
		body, buffered, err := bufferPart(part, maxMemory)
		part.Close()
		if err != nil {
			return fail(err)
		}
		maxMemory -= buffered
		payloads = append(payloads, upload.Payload{Name: name, Body: body})
	}
}

// bufferPart reads r into memory when it fits in limit bytes and into a
// temporary file otherwise. It returns the number of bytes kept in memory.
func bufferPart(r io.Reader, limit int64) (io.ReadCloser, int64, error) {
	if limit < 0 {
		limit = 0
	}
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r, limit+1)
	if err != nil && err != io.EOF {
		return nil, 0, errdefs.ErrValidation(fmt.Sprintf("invalid multipart upload: %v", err))
	}
	if n <= limit {
		return io.NopCloser(&buf), n, nil
	}

	f, err := os.CreateTemp("", "chartrepo-upload-*")
	if err != nil {
		return nil, 0, errdefs.ErrStorage(err, "cannot stage uploaded file")
	}
	spilled := &spilledPart{f}
	if _, err := io.Copy(f, io.MultiReader(&buf, r)); err != nil {
		spilled.Close()
		return nil, 0, errdefs.ErrValidation(fmt.Sprintf("invalid multipart upload: %v", err))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		spilled.Close()
		return nil, 0, errdefs.ErrStorage(err, "cannot stage uploaded file")
	}
	return spilled, 0, nil
}

// spilledPart is an uploaded file staged on disk. Close removes it.
type spilledPart struct {
	*os.File
}

func (p *spilledPart) Close() error {
	err := p.File.Close()
	os.Remove(p.File.Name())
	return err
}

func (s *Server) putAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	defer r.Body.Close()

	handle, err := s.handler.PutFile(r.Context(), vars["repository"], vars["path"], r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, handle)
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	handle, err := s.handler.Get(r.Context(), vars["repository"], vars["path"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	body, err := handle.Open()
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", handle.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(handle.Size, 10))
	if sum, ok := handle.Checksums["sha256"]; ok {
		w.Header().Set("ETag", strconv.Quote(sum))
	}
	w.Header().Set("Last-Modified", handle.LastModified.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		s.Log.WithError(err).Debug("client went away while reading asset")
	}
}

func (s *Server) deleteAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	deleted, err := s.handler.Delete(r.Context(), vars["repository"], vars["path"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !deleted {
		s.writeError(w, errdefs.ErrNotFound("%s not found in repository %s", vars["path"], vars["repository"]))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authenticate puts the caller's name in the request context. Credentials
// are not verified here.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _, ok := r.BasicAuth()
		if !ok || principal == "" {
			principal = r.Header.Get(PrincipalHeader)
		}
		if principal != "" {
			r = r.WithContext(permission.WithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

// instrument records request metrics under the route's path template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		s.metrics.ObserveRequest(r.Method, route, strconv.Itoa(rec.status), elapsed.Seconds())
		s.Log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": elapsed,
		}).Debug("handled request")
	})
}
