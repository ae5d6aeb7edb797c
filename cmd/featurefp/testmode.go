package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shortontech/featurefp/internal/event"
	"github.com/shortontech/featurefp/internal/probe"
	"github.com/shortontech/featurefp/internal/report"
	"github.com/shortontech/featurefp/pkg/logger"
)

// sampleEnvironments are canned page environments: a desktop Chrome, an
// automated headless Chrome and a bare page with almost nothing defined.
func sampleEnvironments(plan probe.Plan) []*probe.Static {
	results := func(truthy ...string) map[string]probe.Result {
		want := make(map[string]bool, len(truthy))
		for _, n := range truthy {
			want[n] = true
		}
		out := make(map[string]probe.Result, len(plan.Checks))
		for _, c := range plan.Checks {
			if c.Script == "" {
				continue
			}
			out[c.Script] = probe.Result{Value: want[c.Name]}
		}
		return out
	}
	navigator := func(ua string, webdriver bool) map[string]any {
		return map[string]any{
			"userAgent": ua,
			"platform":  "Linux x86_64",
			"vendor":    "Google Inc.",
			"languages": []any{"en-US", "en"},
			"webdriver": webdriver,
			"plugins": []any{
				map[string]any{"name": "PDF Viewer"},
				map[string]any{"name": "Chrome PDF Viewer"},
			},
		}
	}
	chromeNames := plan.Catalog.Names()

	return []*probe.Static{
		{
			Present: chromeNames,
			Window: map[string]any{
				"navigator":   navigator("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36", false),
				"outerWidth":  1920,
				"outerHeight": 1050,
				"innerWidth":  1920,
				"innerHeight": 947,
			},
			Results: results("chrome", "chrome_like", "es5", "es6", "es7", "es8", "es9", "es10"),
			URL:     "https://shop.example/",
			Cookie:  "csrftoken=testmode",
		},
		{
			Present: chromeNames,
			Window: map[string]any{
				"navigator":   navigator("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/112.0.0.0 Safari/537.36", true),
				"outerWidth":  800,
				"outerHeight": 600,
				"innerWidth":  800,
				"innerHeight": 600,
			},
			Results: results("chrome", "webdriver", "automation", "es5", "es6"),
			URL:     "https://shop.example/checkout",
		},
		{
			Present: []string{"Array", "Object", "JSON"},
			URL:     "https://shop.example/legacy",
		},
	}
}

func sampleEngineReport() report.EngineReport {
	return report.EngineReport{
		EngineVersion: report.DefaultEngineVersion,
		VisitedURL:    "https://shop.example/",
		VisitorID:     "f3c1d7a9b2e04e5f8a6b9c0d1e2f3a4b",
		Components:    json.RawMessage(`{"timezone":{"value":"Europe/Berlin","duration":1}}`),
	}
}

// runTestMode emits one event per sample environment and one engine event.
func runTestMode(ctx context.Context, plan probe.Plan, emit func(event.Event), log logger.Logger) {
	log.Info("featurefp: test mode, emitting sample reports")

	events := make([]event.Event, 0, 4)
	for _, env := range sampleEnvironments(plan) {
		e := event.NewFeature(probe.Collect(plan, env))
		e.CatalogKnown = true
		if ua, err := probe.Resolve(env, "navigator.userAgent"); err == nil {
			if s, ok := ua.(string); ok {
				e.Server.UA = s
				e.Server.ParsedUA = event.ParseUA(s)
			}
		}
		events = append(events, e)
	}
	events = append(events, event.NewEngine(sampleEngineReport()))

	for i, e := range events {
		select {
		case <-ctx.Done():
			return
		default:
		}
		log.Info("featurefp: sample report",
			logger.F("n", i+1), logger.F("of", len(events)),
			logger.F("method", e.Method), logger.F("event_id", e.EventID))
		emit(e)
		if i < len(events)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
	log.Info("featurefp: test mode done")
}
