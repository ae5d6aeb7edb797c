package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/shortontech/featurefp/pkg/logger"
)

const (
	FeatureSegment = "browser_info/"
	EngineSegment  = "fingerprint/"

	DefaultCookieName    = "csrftoken"
	DefaultHeaderName    = "X-CSRFToken"
	DefaultEngineVersion = "3.4.1"

	KindFeature = "feature"
	KindEngine  = "engine"
)

// ErrAlreadySent is returned when a visit tries to report a second time.
var ErrAlreadySent = errors.New("report already sent for this visit")

// Observer is told how each delivery went. outcome is "ok", "rejected" or
// "error".
type Observer interface {
	ReportSent(kind, outcome string)
}

type Options struct {
	FeatureSegment string
	EngineSegment  string
	CookieName     string
	HeaderName     string
	// Timeout bounds a single delivery. Zero means 10s.
	Timeout  time.Duration
	Observer Observer
	Logger   logger.Logger
}

func (o Options) withDefaults() Options {
	if o.FeatureSegment == "" {
		o.FeatureSegment = FeatureSegment
	}
	if o.EngineSegment == "" {
		o.EngineSegment = EngineSegment
	}
	if o.CookieName == "" {
		o.CookieName = DefaultCookieName
	}
	if o.HeaderName == "" {
		o.HeaderName = DefaultHeaderName
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	return o
}

// NewClient returns an HTTP client with a cookie jar, so cookies handed to
// Visit travel with the report the way a browser's would.
func NewClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

// Reporter delivers reports without blocking the caller. Delivery is a single
// attempt; failures are logged and counted, never surfaced.
type Reporter struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	inflight int
	idle     []chan struct{}
}

func NewReporter(client *http.Client, opts Options) *Reporter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Reporter{client: client, opts: opts.withDefaults()}
}

// Visit is one page load. It sends at most one report.
type Visit struct {
	r      *Reporter
	page   string
	cookie string
	sent   atomic.Bool
}

// Visit starts a visit for pageURL. cookieHeader is the page's cookie string;
// it supplies the CSRF token and seeds the client's jar.
func (r *Reporter) Visit(pageURL, cookieHeader string) *Visit {
	if r.client.Jar != nil && cookieHeader != "" {
		if u, err := url.Parse(pageURL); err == nil {
			hdr := http.Header{"Cookie": {cookieHeader}}
			r.client.Jar.SetCookies(u, (&http.Request{Header: hdr}).Cookies())
		}
	}
	return &Visit{r: r, page: pageURL, cookie: cookieHeader}
}

// SendFeatures posts a feature report. Only the claim on the visit and the
// encoding can fail synchronously; delivery happens in the background.
func (v *Visit) SendFeatures(rep FeatureReport) error {
	return v.send(KindFeature, v.r.opts.FeatureSegment, rep)
}

// SendEngine posts an external-engine report.
func (v *Visit) SendEngine(rep EngineReport) error {
	if rep.EngineVersion == "" {
		rep.EngineVersion = DefaultEngineVersion
	}
	if rep.VisitedURL == "" {
		rep.VisitedURL = v.page
	}
	return v.send(KindEngine, v.r.opts.EngineSegment, rep)
}

func (v *Visit) send(kind, segment string, payload json.Marshaler) error {
	if v.sent.Load() {
		return ErrAlreadySent
	}
	body, err := payload.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode %s report: %w", kind, err)
	}
	endpoint, err := Endpoint(v.page, segment)
	if err != nil {
		return err
	}
	token := CSRFToken(v.cookie, v.r.opts.CookieName)

	// The visit is spent only once a request is actually going out.
	if !v.sent.CompareAndSwap(false, true) {
		return ErrAlreadySent
	}
	v.r.begin()
	go func() {
		defer v.r.finish()
		v.r.deliver(kind, endpoint, token, body)
	}()
	return nil
}

func (r *Reporter) begin() {
	r.mu.Lock()
	r.inflight++
	r.mu.Unlock()
}

func (r *Reporter) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight--
	if r.inflight > 0 {
		return
	}
	for _, ch := range r.idle {
		close(ch)
	}
	r.idle = nil
}

func (r *Reporter) deliver(kind, endpoint, token string, body []byte) {
	log := r.opts.Logger.WithFields(logger.Fields{"kind": kind, "endpoint": endpoint})
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Error("reporter: failed to build request", logger.Err(err))
		r.observe(kind, "error")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(r.opts.HeaderName, token)

	resp, err := r.client.Do(req)
	if err != nil {
		log.Warn("reporter: delivery failed", logger.Err(err))
		r.observe(kind, "error")
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("reporter: report rejected", logger.F("status", strconv.Itoa(resp.StatusCode)))
		r.observe(kind, "rejected")
		return
	}
	log.Debug("reporter: report delivered", logger.F("bytes", len(body)))
	r.observe(kind, "ok")
}

func (r *Reporter) observe(kind, outcome string) {
	if r.opts.Observer != nil {
		r.opts.Observer.ReportSent(kind, outcome)
	}
}

// Done is closed the next time no delivery is in flight. It is safe to call
// while other goroutines are still sending; a send that starts before the
// channel closes is waited for too.
func (r *Reporter) Done() <-chan struct{} {
	ch := make(chan struct{})
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight == 0 {
		close(ch)
		return ch
	}
	r.idle = append(r.idle, ch)
	return ch
}
