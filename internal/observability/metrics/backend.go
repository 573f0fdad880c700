package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics counts outgoing backend requests.
type BackendMetrics struct {
	requests *prometheus.CounterVec
}

// NewBackendMetrics creates and registers the backend request counter.
func NewBackendMetrics(registry prometheus.Registerer) (*BackendMetrics, error) {
	m := &BackendMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_backend_requests_total",
			Help: "Backend requests by method and response status class",
		}, []string{"method", "status_class"}),
	}
	if err := registry.Register(m.requests); err != nil {
		return nil, fmt.Errorf("failed to register backend metrics: %w", err)
	}
	return m, nil
}

// RecordRequest counts one request. statusCode 0 means no response.
func (m *BackendMetrics) RecordRequest(method string, statusCode int) {
	m.requests.WithLabelValues(method, StatusClass(statusCode)).Inc()
}

// AfterResponseHook adapts RecordRequest to an httpclient after-response hook.
func (m *BackendMetrics) AfterResponseHook() func(*http.Request, *http.Response, error) {
	return func(req *http.Request, resp *http.Response, err error) {
		code := 0
		if err == nil && resp != nil {
			code = resp.StatusCode
		}
		m.RecordRequest(req.Method, code)
	}
}

// StatusClass maps a status code to "2xx".."5xx", or "error" for none.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return fmt.Sprintf("%dxx", code/100)
}
