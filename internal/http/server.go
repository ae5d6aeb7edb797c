package httpx

import (
	"net/http"
)

const collectorPath = "/featurefp.js"

func NewMux(e Env) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)
	mux.HandleFunc(collectorPath, e.CollectorJS)
	// Report endpoints live under the page path that posted them.
	mux.HandleFunc("/", e.Reports)

	return RequestLogger(e.logger())(MetricsMiddleware(e.Metrics)(cors(e.Cfg.CSRFHeader, e.Cfg.CORSOrigins)(mux)))
}
