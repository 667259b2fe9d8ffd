// Package metrics exposes Prometheus collectors for the HTTP layer and the
// BMI use cases.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bmitracker/internal/domain"
)

// Collector owns a private registry so several servers can coexist in one
// process (tests).
type Collector struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	EvaluationsTotal    *prometheus.CounterVec
	RecordsAppended     prometheus.Counter
}

// NewCollector creates and registers every collector under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0},
			},
			[]string{"route"},
		),
		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bmi_evaluations_total",
				Help:      "Total number of BMI evaluations by resulting category",
			},
			[]string{"category"},
		),
		RecordsAppended: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bmi_records_appended_total",
				Help:      "Total number of BMI records stored",
			},
		),
	}
	reg.MustRegister(
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
		c.EvaluationsTotal,
		c.RecordsAppended,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest counts one finished request and observes its duration.
func (c *Collector) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	c.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveEvaluation counts one evaluation.
func (c *Collector) ObserveEvaluation(category domain.Category) {
	c.EvaluationsTotal.WithLabelValues(string(category)).Inc()
}

// ObserveRecordAppended counts one stored record.
func (c *Collector) ObserveRecordAppended() {
	c.RecordsAppended.Inc()
}
