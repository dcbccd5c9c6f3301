// Package metrics exposes Prometheus counters for activity play, submissions,
// grading, generation and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter     *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	SessionsStarted    *prometheus.CounterVec
	SessionsActive     prometheus.Gauge
	Submissions        *prometheus.CounterVec
	Grades             prometheus.Counter
	DefaultedAnswers   prometheus.Counter
	GeneratedQuestions *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"method", "endpoint"},
		),
		SessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classroom_sessions_started_total",
				Help: "Activity sessions started, by kind (custom or assigned)",
			},
			[]string{"kind"},
		),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "classroom_sessions_active",
			Help: "Activity sessions currently held in memory",
		}),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classroom_submissions_total",
				Help: "Finished sessions handed to the recorder, by outcome",
			},
			[]string{"outcome"},
		),
		Grades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_grades_total",
			Help: "Grades written by teachers",
		}),
		DefaultedAnswers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_defaulted_answers_total",
			Help: "Generated questions whose correct letter could not be resolved",
		}),
		GeneratedQuestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classroom_generated_questions_total",
				Help: "Generated questions, by result (stored or skipped)",
			},
			[]string{"result"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestCounter,
		m.RequestDuration,
		m.SessionsStarted,
		m.SessionsActive,
		m.Submissions,
		m.Grades,
		m.DefaultedAnswers,
		m.GeneratedQuestions,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}
