// metrics.go — Prometheus HTTP метрики для Portal Module.
// Регистрирует метрики: pm_http_requests_total, pm_http_request_duration_seconds.
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
			Name: "pm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Portal Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Portal Module в секундах",
			Buckets: prometheus.DefBuckets,
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
// /api/v1/results/a1b2c3d4-... → /api/v1/results/{id}
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/session",
		"/api/v1/session/sync",
		"/api/v1/wizard",
		"/api/v1/wizard/next",
		"/api/v1/wizard/prev",
		"/api/v1/wizard/reset",
		"/api/v1/wizard/calculate",
		"/api/v1/uploads/progress",
		"/api/v1/uploads/presign",
		"/api/v1/results",
		"/api/v1/admin/users",
		"/api/v1/admin/results",
		"/api/v1/admin/config":
		return path
	}

	// Динамические пути с UUID
	prefixes := []struct {
		prefix string
		result string
	}{
		{"/api/v1/results/", "/api/v1/results/{id}"},
		{"/api/v1/orders/", "/api/v1/orders/{id}"},
		{"/api/v1/admin/users/", "/api/v1/admin/users/{id}"},
		{"/api/v1/admin/results/", "/api/v1/admin/results/{id}"},
	}

	for _, p := range prefixes {
		if len(path) > len(p.prefix) && path[:len(p.prefix)] == p.prefix {
			suffix := ""
			// Проверяем суффиксы после UUID (36 символов)
			if len(path) > len(p.prefix)+36 {
				suffix = path[len(p.prefix)+36:]
			}
			switch suffix {
			case "/enabled":
				return p.result + "/enabled"
			case "/status":
				return p.result + "/status"
			case "/measurements":
				return p.result + "/measurements"
			case "/images":
				return p.result + "/images"
			case "/submit":
				return p.result + "/submit"
			default:
				return p.result
			}
		}
	}

	// Пути с нефиксированными сегментами (slot, orderId_slot)
	for _, p := range []struct{ prefix, result string }{
		{"/api/v1/wizard/photos/", "/api/v1/wizard/photos/{slot}"},
		{"/api/v1/uploads/", "/api/v1/uploads/{key}"},
	} {
		if len(path) > len(p.prefix) && path[:len(p.prefix)] == p.prefix {
			return p.result
		}
	}

	return path
}
