package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shortontech/featurefp/pkg/logger"
)

// Metrics holds the Prometheus collectors shared by the intake server,
// the reporter and the probe.
type Metrics struct {
	// Counters
	EventsIngested  *prometheus.CounterVec
	SinkErrors      *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	ReportsReceived *prometheus.CounterVec
	ReportsRejected *prometheus.CounterVec
	ReportsSent     *prometheus.CounterVec
	CheckFaults     *prometheus.CounterVec

	// Gauges
	CatalogVersions prometheus.Gauge

	// Histograms
	HTTPDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// Config holds configuration for the metrics server
type Config struct {
	Enabled     bool
	Addr        string
	TLSCert     string
	TLSKey      string
	ClientCA    string
	RequireTLS  bool
	RequireAuth bool
}

// LoadConfig loads metrics configuration from environment variables
func LoadConfig() Config {
	return Config{
		Enabled:     getBool("METRICS_ENABLED", false),
		Addr:        getOr("METRICS_ADDR", "127.0.0.1:9090"),
		TLSCert:     getOr("METRICS_TLS_CERT", ""),
		TLSKey:      getOr("METRICS_TLS_KEY", ""),
		ClientCA:    getOr("METRICS_CLIENT_CA", ""),
		RequireTLS:  getBool("METRICS_REQUIRE_TLS", false),
		RequireAuth: getBool("METRICS_REQUIRE_AUTH", false),
	}
}

// NewMetrics creates the collectors and registers them with reg. A fresh
// prometheus.NewRegistry() keeps tests independent of the global registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		EventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurefp_events_ingested_total",
				Help: "Total report events accepted by sink",
			},
			[]string{"sink"},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurefp_sink_errors_total",
				Help: "Total errors writing to a sink",
			},
			[]string{"sink", "error_type"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurefp_http_requests_total",
				Help: "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		ReportsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurefp_reports_received_total",
				Help: "Reports that decoded and were handed to the sinks",
			},
			[]string{"kind"},
		),

		ReportsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurefp_reports_rejected_total",
				Help: "Reports refused at intake by reason",
			},
			[]string{"kind", "reason"},
		),

		ReportsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurefp_reports_sent_total",
				Help: "Reports delivered by the outbound reporter by outcome",
			},
			[]string{"kind", "outcome"},
		),

		CheckFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurefp_check_faults_total",
				Help: "Automation checks that errored and were reported as 0",
			},
			[]string{"check"},
		),

		CatalogVersions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "featurefp_catalog_versions",
				Help: "Number of catalog versions the intake server knows",
			},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "featurefp_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method"},
		),

		gatherer: reg,
	}

	reg.MustRegister(
		m.EventsIngested,
		m.SinkErrors,
		m.HTTPRequests,
		m.ReportsReceived,
		m.ReportsRejected,
		m.ReportsSent,
		m.CheckFaults,
		m.CatalogVersions,
		m.HTTPDuration,
	)
	return m
}

// Handler exposes the collectors registered by NewMetrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Server represents the metrics HTTP server
type Server struct {
	server *http.Server
	config Config
	log    logger.Logger
}

// NewServer creates a metrics server for m. TLS material is read eagerly so
// a bad client CA is reported here rather than on the first scrape.
func NewServer(config Config, m *Metrics, log logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if config.RequireTLS {
		if config.TLSCert == "" || config.TLSKey == "" {
			return nil, errors.New("metrics: METRICS_REQUIRE_TLS needs METRICS_TLS_CERT and METRICS_TLS_KEY")
		}
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if config.ClientCA != "" {
			pool, err := loadCertPool(config.ClientCA)
			if err != nil {
				return nil, fmt.Errorf("metrics: client CA: %w", err)
			}
			tlsConfig.ClientCAs = pool
			tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
			log.Info("metrics: mTLS enabled", logger.F("client_ca", config.ClientCA))
		} else if config.RequireAuth {
			return nil, errors.New("metrics: METRICS_REQUIRE_AUTH needs METRICS_CLIENT_CA")
		}
		srv.TLSConfig = tlsConfig
	} else if config.RequireAuth {
		return nil, errors.New("metrics: METRICS_REQUIRE_AUTH needs METRICS_REQUIRE_TLS")
	}

	return &Server{server: srv, config: config, log: log}, nil
}

// Start serves in a separate goroutine. It is a no-op when disabled.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("metrics: disabled (METRICS_ENABLED=false)")
		return nil
	}

	go func() {
		var err error
		if s.config.RequireTLS {
			s.log.Info("metrics: HTTPS server listening", logger.F("addr", s.config.Addr))
			err = s.server.ListenAndServeTLS(s.config.TLSCert, s.config.TLSKey)
		} else {
			s.log.Info("metrics: HTTP server listening", logger.F("addr", s.config.Addr))
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics: server error", logger.Err(err))
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}
	s.log.Info("metrics: shutting down server")
	return s.server.Shutdown(ctx)
}

func getOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func loadCertPool(certFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", certFile)
	}
	return pool, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics. Its registry also carries the Go
// runtime and process collectors.
func Default() *Metrics {
	defaultOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		defaultMetrics = NewMetrics(reg)
	})
	return defaultMetrics
}

func (m *Metrics) IncrementEventsIngested(sink string) {
	m.EventsIngested.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncrementSinkErrors(sink, errorType string) {
	m.SinkErrors.WithLabelValues(sink, errorType).Inc()
}

func (m *Metrics) IncrementHTTPRequests(endpoint, method, status string) {
	m.HTTPRequests.WithLabelValues(endpoint, method, status).Inc()
}

func (m *Metrics) ObserveHTTPDuration(endpoint, method string, duration time.Duration) {
	m.HTTPDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (m *Metrics) ReportReceived(kind string) {
	m.ReportsReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReportRejected(kind, reason string) {
	m.ReportsRejected.WithLabelValues(kind, reason).Inc()
}

// ReportSent satisfies report.Observer.
func (m *Metrics) ReportSent(kind, outcome string) {
	m.ReportsSent.WithLabelValues(kind, outcome).Inc()
}

// CheckFault matches probe.FaultHook.
func (m *Metrics) CheckFault(check string, _ error) {
	m.CheckFaults.WithLabelValues(check).Inc()
}

func (m *Metrics) SetCatalogVersions(n int) {
	m.CatalogVersions.Set(float64(n))
}
