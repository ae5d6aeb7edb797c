// Package report holds the wire formats a page sends back after collection and
// the client that sends them.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	VersionKey    = "feature_fp_version"
	FeaturesKey   = "features"
	VisitedURLKey = "visited_url"

	EngineVersionKey = "fingerprintjs_version"
	VisitorIDKey     = "visitor_id"
	ComponentsKey    = "components"
)

// ErrMalformed wraps every decode failure.
var ErrMalformed = errors.New("malformed report")

// Pair is one named probe value. It marshals as a two element array.
type Pair struct {
	Name  string
	Value string
}

func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Name, p.Value})
}

func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw [2]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: pair: %v", ErrMalformed, err)
	}
	p.Name, p.Value = raw[0], raw[1]
	return nil
}

// FeatureReport is the feature-probe payload: the catalog version, the
// signature, the auxiliary probes in collection order and the page URL.
type FeatureReport struct {
	Version    string
	Features   string
	Probes     []Pair
	VisitedURL string
}

// Pairs returns the report in wire order.
func (r FeatureReport) Pairs() []Pair {
	out := make([]Pair, 0, len(r.Probes)+3)
	out = append(out, Pair{VersionKey, r.Version}, Pair{FeaturesKey, r.Features})
	out = append(out, r.Probes...)
	return append(out, Pair{VisitedURLKey, r.VisitedURL})
}

func (r FeatureReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Pairs())
}

// Probe returns the value of a named auxiliary probe.
func (r FeatureReport) Probe(name string) (string, bool) {
	for _, p := range r.Probes {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// DecodeFeatureReport parses and validates a feature-probe payload.
func DecodeFeatureReport(data []byte) (FeatureReport, error) {
	var r FeatureReport
	if !gjson.ValidBytes(data) {
		return r, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return r, fmt.Errorf("%w: expected an array of pairs", ErrMalformed)
	}
	rows := root.Array()
	if len(rows) < 3 {
		return r, fmt.Errorf("%w: expected at least %s, %s and %s", ErrMalformed, VersionKey, FeaturesKey, VisitedURLKey)
	}

	pairs := make([]Pair, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		kv := row.Array()
		if !row.IsArray() || len(kv) != 2 || kv[0].Type != gjson.String || kv[1].Type != gjson.String {
			return r, fmt.Errorf("%w: entry %d is not a [name, value] string pair", ErrMalformed, i)
		}
		name := kv[0].Str
		if seen[name] {
			return r, fmt.Errorf("%w: duplicate name %q", ErrMalformed, name)
		}
		seen[name] = true
		pairs = append(pairs, Pair{Name: name, Value: kv[1].Str})
	}

	if pairs[0].Name != VersionKey {
		return r, fmt.Errorf("%w: first entry must be %s", ErrMalformed, VersionKey)
	}
	if pairs[1].Name != FeaturesKey {
		return r, fmt.Errorf("%w: second entry must be %s", ErrMalformed, FeaturesKey)
	}
	if !IsSignature(pairs[1].Value) {
		return r, fmt.Errorf("%w: %s must only hold 0 and 1", ErrMalformed, FeaturesKey)
	}
	last := pairs[len(pairs)-1]
	if last.Name != VisitedURLKey {
		return r, fmt.Errorf("%w: last entry must be %s", ErrMalformed, VisitedURLKey)
	}

	r.Version = pairs[0].Value
	r.Features = pairs[1].Value
	r.VisitedURL = last.Value
	r.Probes = pairs[2 : len(pairs)-1]
	return r, nil
}

// IsSignature reports whether s is made only of '0' and '1'. The empty
// signature of an empty catalog is valid.
func IsSignature(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '1' {
			return false
		}
	}
	return true
}

// EngineResult is what the external engine's get() resolves to.
type EngineResult struct {
	VisitorID  string          `json:"visitorId"`
	Components json.RawMessage `json:"components"`
}

// EngineReport is the external-engine payload.
type EngineReport struct {
	EngineVersion string
	VisitedURL    string
	VisitorID     string
	Components    json.RawMessage
}

// MarshalJSON writes the four single-key objects in their fixed order.
func (r EngineReport) MarshalJSON() ([]byte, error) {
	comps := r.Components
	if len(bytes.TrimSpace(comps)) == 0 {
		comps = json.RawMessage(`{}`)
	} else if !gjson.ValidBytes(comps) || !gjson.ParseBytes(comps).IsObject() {
		return nil, fmt.Errorf("engine report: components must be a json object")
	}
	return json.Marshal([]map[string]any{
		{EngineVersionKey: r.EngineVersion},
		{VisitedURLKey: r.VisitedURL},
		{VisitorIDKey: r.VisitorID},
		{ComponentsKey: comps},
	})
}

// DecodeEngineReport parses and validates an external-engine payload.
func DecodeEngineReport(data []byte) (EngineReport, error) {
	var r EngineReport
	if !gjson.ValidBytes(data) {
		return r, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	rows := root.Array()
	if !root.IsArray() || len(rows) != 4 {
		return r, fmt.Errorf("%w: expected an array of four objects", ErrMalformed)
	}
	keys := [4]string{EngineVersionKey, VisitedURLKey, VisitorIDKey, ComponentsKey}
	for i, key := range keys {
		row := rows[i]
		if !row.IsObject() || len(row.Map()) != 1 {
			return r, fmt.Errorf("%w: entry %d must be a single-key object", ErrMalformed, i)
		}
		v := row.Get(key)
		if !v.Exists() {
			return r, fmt.Errorf("%w: entry %d must be %s", ErrMalformed, i, key)
		}
		if key == ComponentsKey {
			if !v.IsObject() {
				return r, fmt.Errorf("%w: %s must be an object", ErrMalformed, key)
			}
			r.Components = json.RawMessage(v.Raw)
			continue
		}
		if v.Type != gjson.String {
			return r, fmt.Errorf("%w: %s must be a string", ErrMalformed, key)
		}
		switch key {
		case EngineVersionKey:
			r.EngineVersion = v.Str
		case VisitedURLKey:
			r.VisitedURL = v.Str
		case VisitorIDKey:
			r.VisitorID = v.Str
		}
	}
	return r, nil
}
