// Package assets renders the JavaScript shipped to pages and to the headless
// browser.
package assets

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"text/template"

	"github.com/shortontech/featurefp/internal/probe"
	"github.com/shortontech/featurefp/internal/report"
)

//go:embed js/*.tmpl
var files embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"json": toJSON,
}).ParseFS(files, "js/*.tmpl"))

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Options are the page-side reporting settings.
type Options struct {
	Segment    string
	CookieName string
	HeaderName string
}

type attributeSpec struct {
	Name  string   `json:"name"`
	Kind  string   `json:"kind"`
	Paths []string `json:"paths"`
	Sep   string   `json:"sep"`
}

type checkSpec struct {
	Name   string
	Script string
}

type collectorData struct {
	Options
	Version    string
	Names      []string
	Attributes []attributeSpec
	Checks     []checkSpec
}

// RenderCollector writes the page collector for plan. Checks without a
// page-side script are left out.
func RenderCollector(w io.Writer, plan probe.Plan, opts Options) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	if opts.Segment == "" {
		opts.Segment = report.FeatureSegment
	}
	if opts.CookieName == "" {
		opts.CookieName = report.DefaultCookieName
	}
	if opts.HeaderName == "" {
		opts.HeaderName = report.DefaultHeaderName
	}
	data := collectorData{
		Options: opts,
		Version: plan.Catalog.Version(),
		Names:   plan.Catalog.Names(),
	}
	for _, a := range plan.Attributes {
		data.Attributes = append(data.Attributes, attributeSpec{Name: a.Name, Kind: a.Kind.String(), Paths: a.Paths, Sep: a.Sep})
	}
	for _, c := range plan.Checks {
		if c.Script != "" {
			data.Checks = append(data.Checks, checkSpec{Name: c.Name, Script: c.Script})
		}
	}
	if err := templates.ExecuteTemplate(w, "collector.js.tmpl", data); err != nil {
		return fmt.Errorf("failed to render collector: %w", err)
	}
	return nil
}

// Collector renders the collector into memory.
func Collector(plan probe.Plan, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderCollector(&buf, plan, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderSnapshot returns a single synchronous expression that evaluates to a
// snapshot of the page, decodable with probe.ParseSnapshot. The snapshot
// records presence for the catalog names followed by any extra names not in
// the catalog, such as a compatibility table key used to regenerate it.
func RenderSnapshot(plan probe.Plan, extra ...string) (string, error) {
	if err := plan.Validate(); err != nil {
		return "", err
	}
	data := struct {
		Names   []string
		Paths   []string
		Scripts []string
	}{
		Names:   snapshotNames(plan.Catalog.Names(), extra),
		Paths:   nonNil(plan.Paths()),
		Scripts: nonNil(plan.Scripts()),
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "snapshot.js.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to render snapshot script: %w", err)
	}
	return buf.String(), nil
}

func snapshotNames(names, extra []string) []string {
	if len(extra) == 0 {
		return names
	}
	seen := make(map[string]struct{}, len(names)+len(extra))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	for _, n := range extra {
		if _, ok := seen[n]; ok || n == "" {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	return names
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
