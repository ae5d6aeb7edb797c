package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/shortontech/featurefp/internal/report"
)

const (
	MethodFeature = report.KindFeature
	MethodEngine  = report.KindEngine
)

// Event is the envelope handed to sinks for every accepted report. Exactly
// one of Feature and Engine is set.
type Event struct {
	EventID    string `json:"event_id"`
	TS         string `json:"ts"` // ISO8601
	Method     string `json:"method"`
	VisitedURL string `json:"visited_url,omitempty"`

	// CatalogKnown is false when the report names a catalog version this
	// server has not registered; its signature length was not checked.
	CatalogVersion string `json:"catalog_version,omitempty"`
	CatalogKnown   bool   `json:"catalog_known,omitempty"`

	Feature *report.FeatureReport `json:"feature,omitempty"`
	Engine  *report.EngineReport  `json:"engine,omitempty"`

	Server ServerMeta `json:"server"`
}

// --- Server enrich ---

type ServerMeta struct {
	IP       string        `json:"ip,omitempty"`
	UA       string        `json:"ua,omitempty"`
	ParsedUA ParsedUA      `json:"parsed_ua"`
	Referrer string        `json:"referrer,omitempty"`
	Signals  HeaderSignals `json:"signals"`
}

type ParsedUA struct {
	Browser string `json:"browser,omitempty"`
	Version string `json:"version,omitempty"`
	Major   string `json:"major,omitempty"`
	OS      string `json:"os,omitempty"`
	Mobile  bool   `json:"mobile,omitempty"`
	Bot     bool   `json:"bot,omitempty"`
}

// NewFeature wraps a decoded feature report.
func NewFeature(r report.FeatureReport) Event {
	e := newEvent(MethodFeature, r.VisitedURL)
	e.CatalogVersion = r.Version
	e.Feature = &r
	return e
}

// NewEngine wraps a decoded external-engine report.
func NewEngine(r report.EngineReport) Event {
	e := newEvent(MethodEngine, r.VisitedURL)
	e.Engine = &r
	return e
}

func newEvent(method, visited string) Event {
	return Event{
		EventID:    uuid.NewString(),
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
		Method:     method,
		VisitedURL: visited,
	}
}
