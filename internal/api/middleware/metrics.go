// metrics.go — Prometheus HTTP метрики для Upload Module.
// Регистрирует метрики: um_http_requests_total, um_http_request_duration_seconds.
// Бизнес-метрики (um_upload_sessions_active, um_chunks_received_total и др.)
// регистрируются в соответствующих пакетах и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "um_http_requests_total",
			Help: "Общее количество HTTP-запросов к Upload Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	// Верхние бакеты расширены: загрузка chunk'а в 100 MiB может занимать десятки секунд.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "um_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Upload Module в секундах",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет UUID-сегменты пути на {id} для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/uploads/a1b2c3d4-e5f6-7890-abcd-ef1234567890/chunks → /api/v1/uploads/{id}/chunks
func normalizePath(path string) string {
	switch {
	case path == "/health/live":
		return "/health/live"
	case path == "/health/ready":
		return "/health/ready"
	case path == "/metrics":
		return "/metrics"
	case path == "/api/v1/openapi.json":
		return "/api/v1/openapi.json"
	case path == "/api/v1/uploads":
		return "/api/v1/uploads"
	case path == "/api/v1/files/check-duplicate":
		return "/api/v1/files/check-duplicate"
	case path == "/api/v1/files/validate":
		return "/api/v1/files/validate"
	case len(path) > len("/api/v1/uploads/") && isUUIDSegment(path, "/api/v1/uploads/"):
		// /api/v1/uploads/{uuid}, /chunks, /finalize, /progress
		suffix := path[len("/api/v1/uploads/")+36:]
		switch suffix {
		case "":
			return "/api/v1/uploads/{id}"
		case "/chunks":
			return "/api/v1/uploads/{id}/chunks"
		case "/finalize":
			return "/api/v1/uploads/{id}/finalize"
		case "/progress":
			return "/api/v1/uploads/{id}/progress"
		}
	}
	return path
}

// isUUIDSegment проверяет, начинается ли сегмент пути после prefix с UUID.
func isUUIDSegment(path, prefix string) bool {
	if len(path) < len(prefix)+36 {
		return false
	}
	segment := path[len(prefix) : len(prefix)+36]
	// Проверяем формат UUID: 8-4-4-4-12
	if len(segment) != 36 {
		return false
	}
	for i, c := range segment {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
		} else {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
				return false
			}
		}
	}
	return true
}
