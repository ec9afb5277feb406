// Package metrics holds the Prometheus collectors for recognition and attendance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "face_attendance"

// Metrics groups all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	recognitions    *prometheus.CounterVec
	matchDistance   prometheus.Histogram
	passDuration    prometheus.Histogram
	enrollments     prometheus.Counter
	attendance      *prometheus.CounterVec
	galleryIdentity prometheus.Gauge
	httpRequests    *prometheus.CounterVec
}

// New registers collectors on reg. Pass nil to get a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		recognitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognitions_total",
			Help:      "Faces processed by recognition passes, by outcome",
		}, []string{"outcome", "algorithm"}),
		matchDistance: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance",
			Help:      "Distance to the nearest gallery identity",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 1.0, 1.2, 1.5, 2.0},
		}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of a recognition pass",
			Buckets:   prometheus.DefBuckets,
		}),
		enrollments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Identities enrolled",
		}),
		attendance: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_events_total",
			Help:      "Attendance record attempts, by result",
		}, []string{"result"}),
		galleryIdentity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gallery_identities",
			Help:      "Identities in the gallery snapshot of the last pass",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status",
		}, []string{"method", "route", "status"}),
	}
}

// ObserveFace counts one face outcome. Distance is observed only when finite.
func (m *Metrics) ObserveFace(outcome, algorithm string, distance float64, compared bool) {
	if m == nil {
		return
	}
	m.recognitions.WithLabelValues(outcome, algorithm).Inc()
	if compared {
		m.matchDistance.Observe(distance)
	}
}

// ObservePass records pass duration in seconds and the snapshot size.
func (m *Metrics) ObservePass(seconds float64, gallerySize int) {
	if m == nil {
		return
	}
	m.passDuration.Observe(seconds)
	m.galleryIdentity.Set(float64(gallerySize))
}

// Enrolled counts one successful enrollment.
func (m *Metrics) Enrolled() {
	if m == nil {
		return
	}
	m.enrollments.Inc()
}

// Attendance counts a record attempt; result is "recorded", "deduplicated" or "error".
func (m *Metrics) Attendance(result string) {
	if m == nil {
		return
	}
	m.attendance.WithLabelValues(result).Inc()
}

// HTTPRequest counts one served request.
func (m *Metrics) HTTPRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}
