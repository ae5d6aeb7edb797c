package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shortontech/featurefp/internal/catalog"
	"github.com/shortontech/featurefp/internal/event"
	"github.com/shortontech/featurefp/internal/metrics"
	"github.com/shortontech/featurefp/internal/report"
	cfg "github.com/shortontech/featurefp/pkg/config"
	"github.com/shortontech/featurefp/pkg/logger"
)

// Rejection reasons recorded in featurefp_reports_rejected_total.
const (
	reasonMethod    = "method"
	reasonMedia     = "content_type"
	reasonCSRF      = "csrf"
	reasonTooLarge  = "too_large"
	reasonMalformed = "malformed"
	reasonLength    = "signature_length"
)

type Env struct {
	Cfg       cfg.Config
	Emit      func(event.Event) // injected sink fan-out
	Registry  *catalog.Registry // known catalog versions
	Collector []byte            // rendered /featurefp.js
	Metrics   *metrics.Metrics
	Log       logger.Logger
}

func (e Env) logger() logger.Logger {
	if e.Log == nil {
		return logger.Default()
	}
	return e.Log
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz reports ready once a collector script and a catalog registry are loaded.
func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	if e.Registry == nil || len(e.Collector) == 0 {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (e Env) CollectorJS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(e.Collector) == 0 {
		http.Error(w, "collector not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(e.Collector)
}

// Reports routes POSTs whose path ends in a report segment. The collector
// posts relative to the page it runs on, so any prefix is accepted.
func (e Env) Reports(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/"+report.FeatureSegment):
		e.handleReport(w, r, report.KindFeature, e.decodeFeature)
	case strings.HasSuffix(r.URL.Path, "/"+report.EngineSegment):
		e.handleReport(w, r, report.KindEngine, decodeEngine)
	default:
		http.NotFound(w, r)
	}
}

// reportError carries the status a decoder wants returned.
type reportError struct {
	status int
	reason string
	err    error
}

func (e *reportError) Error() string { return e.err.Error() }
func (e *reportError) Unwrap() error { return e.err }

type decodeFunc func(body []byte) (event.Event, error)

func (e Env) decodeFeature(body []byte) (event.Event, error) {
	rep, err := report.DecodeFeatureReport(body)
	if err != nil {
		return event.Event{}, &reportError{http.StatusBadRequest, reasonMalformed, err}
	}
	evt := event.NewFeature(rep)
	if e.Registry == nil {
		return evt, nil
	}
	cat, err := e.Registry.Lookup(rep.Version)
	switch {
	case errors.Is(err, catalog.ErrNotAvailable):
		return evt, nil
	case err != nil:
		return event.Event{}, err
	}
	if len(rep.Features) != cat.Len() {
		return event.Event{}, &reportError{
			status: http.StatusUnprocessableEntity,
			reason: reasonLength,
			err:    errors.New("features length does not match catalog " + cat.Version()),
		}
	}
	evt.CatalogKnown = true
	return evt, nil
}

func decodeEngine(body []byte) (event.Event, error) {
	rep, err := report.DecodeEngineReport(body)
	if err != nil {
		return event.Event{}, &reportError{http.StatusBadRequest, reasonMalformed, err}
	}
	return event.NewEngine(rep), nil
}

func (e Env) handleReport(w http.ResponseWriter, r *http.Request, kind string, decode decodeFunc) {
	log := e.logger().WithField("kind", kind)
	if r.Method != http.MethodPost {
		e.reject(w, kind, reasonMethod, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		e.reject(w, kind, reasonMedia, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}
	if e.Cfg.CSRFEnforce && !csrfMatches(r, e.Cfg.CSRFCookie, e.Cfg.CSRFHeader) {
		e.reject(w, kind, reasonCSRF, http.StatusForbidden, "csrf token mismatch")
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.Cfg.MaxBodyBytes))
	if err != nil {
		e.reject(w, kind, reasonTooLarge, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	evt, err := decode(body)
	if err != nil {
		var re *reportError
		if errors.As(err, &re) {
			log.Debug("intake: report rejected", logger.F("reason", re.reason), logger.Err(err))
			e.reject(w, kind, re.reason, re.status, err.Error())
			return
		}
		log.Error("intake: decode failed", logger.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !evt.CatalogKnown && kind == report.KindFeature {
		log.Warn("intake: unknown catalog version", logger.F("catalog_version", evt.CatalogVersion))
	}

	event.EnrichServerFields(r, &evt, e.Cfg)
	if e.Emit != nil {
		e.Emit(evt)
	}
	if e.Metrics != nil {
		e.Metrics.ReportReceived(kind)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "event_id": evt.EventID})
}

func (e Env) reject(w http.ResponseWriter, kind, reason string, status int, msg string) {
	if e.Metrics != nil {
		e.Metrics.ReportRejected(kind, reason)
	}
	http.Error(w, msg, status)
}

// csrfMatches implements the double-submit check: the header must repeat
// the cookie value and neither may be empty.
func csrfMatches(r *http.Request, cookieName, headerName string) bool {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return false
	}
	return r.Header.Get(headerName) == c.Value
}
