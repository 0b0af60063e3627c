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

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for upload handling.
type Metrics interface {
	IncAssetsStored(repository, kind string)
	IncUploadFailures(repository, reason string)
}

// HTTPMetrics captures request metrics for the repository server.
type HTTPMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Metrics and HTTPMetrics without emitting anything.
type Noop struct{}

func (Noop) IncAssetsStored(string, string)                 {}
func (Noop) IncUploadFailures(string, string)               {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements Metrics and HTTPMetrics backed by Prometheus collectors.
type Prom struct {
	assetsStored   *prometheus.CounterVec
	uploadFailures *prometheus.CounterVec
	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	once           sync.Once
}

// NewProm creates the collectors and registers them with reg. A nil reg
// selects the default registerer.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		assetsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_stored_total",
			Help:      "Assets stored by repository and kind",
		}, []string{"repository", "kind"}),
		uploadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_failures_total",
			Help:      "Rejected uploads by repository and reason",
		}, []string{"repository", "reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p.register(reg)
	return p
}

func (p *Prom) register(reg prometheus.Registerer) {
	p.once.Do(func() {
		reg.MustRegister(p.assetsStored, p.uploadFailures, p.requests, p.latency)
	})
}

func (p *Prom) IncAssetsStored(repository, kind string) {
	p.assetsStored.WithLabelValues(repository, kind).Inc()
}

func (p *Prom) IncUploadFailures(repository, reason string) {
	p.uploadFailures.WithLabelValues(repository, reason).Inc()
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics serving g. A nil g serves the
// default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
