package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// import batches and grade entry.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	importRows      *prometheus.CounterVec
	importDuration  *prometheus.HistogramVec
	importJobs      *prometheus.CounterVec
	gradeEdits      *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_rows_total",
		Help: "Imported rows by entity kind and outcome code",
	}, []string{"kind", "code"})

	importDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "import_sheet_duration_seconds",
		Help:    "Time spent importing one sheet",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})

	importJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_jobs_total",
		Help: "Workbook imports by final status",
	}, []string{"status"})

	gradeEdits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_edits_total",
		Help: "Grade edits by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, importRows, importDuration, importJobs, gradeEdits, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		importRows:      importRows,
		importDuration:  importDuration,
		importJobs:      importJobs,
		gradeEdits:      gradeEdits,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveImport records the outcome of one imported sheet.
func (m *MetricsService) ObserveImport(result *models.KindResult, duration time.Duration) {
	if m == nil || result == nil {
		return
	}
	kind := string(result.Kind)
	for _, outcome := range result.Results {
		m.importRows.WithLabelValues(kind, string(outcome.Code)).Inc()
	}
	m.importDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveImportJob counts finished workbook imports.
func (m *MetricsService) ObserveImportJob(status models.ImportStatus) {
	if m == nil {
		return
	}
	m.importJobs.WithLabelValues(string(status)).Inc()
}

// ObserveGradeEdits counts saved and failed grade edits.
func (m *MetricsService) ObserveGradeEdits(saved, failed int) {
	if m == nil {
		return
	}
	m.gradeEdits.WithLabelValues("saved").Add(float64(saved))
	m.gradeEdits.WithLabelValues("failed").Add(float64(failed))
}
