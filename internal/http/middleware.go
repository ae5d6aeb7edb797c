package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shortontech/featurefp/internal/metrics"
	"github.com/shortontech/featurefp/internal/report"
	"github.com/shortontech/featurefp/pkg/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("http: request",
				logger.F("method", r.Method),
				logger.F("path", r.URL.Path),
				logger.F("status", rec.status),
				logger.F("ua", r.UserAgent()),
				logger.F("dur", time.Since(start).String()))
		})
	}
}

// MetricsMiddleware counts requests and observes latency. A nil m disables it.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			endpoint := endpointLabel(r.URL.Path)
			m.IncrementHTTPRequests(endpoint, r.Method, strconv.Itoa(rec.status))
			m.ObserveHTTPDuration(endpoint, r.Method, time.Since(start))
		})
	}
}

// endpointLabel keeps label cardinality bounded: report paths collapse to
// their segment and unknown paths to "other".
func endpointLabel(path string) string {
	switch {
	case strings.HasSuffix(path, "/"+report.FeatureSegment):
		return "/" + report.FeatureSegment
	case strings.HasSuffix(path, "/"+report.EngineSegment):
		return "/" + report.EngineSegment
	case path == collectorPath, path == "/healthz", path == "/readyz":
		return path
	}
	return "other"
}

func cors(headerName string, origins []string) func(http.Handler) http.Handler {
	allowHeaders := "Content-Type"
	if headerName != "" {
		allowHeaders += ", " + headerName
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSuffix(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				w.Header().Add("Vary", "Origin")
				// Credentials are needed for the CSRF cookie, which rules out "*".
				if allowed["*"] || allowed[origin] {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
