// Package probe collects a feature signature and auxiliary probes from a
// JavaScript environment.
package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrNotFound means a dotted path stopped resolving at some segment.
	ErrNotFound = errors.New("property not found")
	// ErrNotEvaluated means the environment has no result for a script.
	ErrNotEvaluated = errors.New("script not evaluated")
)

// ScriptError is a script that threw.
type ScriptError struct {
	Script  string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %q threw: %s", e.Script, e.Message)
}

// Environment is a view of a page's global namespace.
type Environment interface {
	// Has reports whether name is a property of the global object.
	Has(name string) bool
	// Global returns a global property's value.
	Global(name string) (any, bool)
	// Property returns a property of a value previously obtained from the
	// environment. It fails for null and undefined.
	Property(obj any, name string) (any, bool)
	// Eval runs a script and returns its completion value.
	Eval(script string) (any, error)
	// Href is the page URL.
	Href() string
}

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined is a property that exists with the value undefined.
var Undefined any = undefined{}

// Result is a captured script outcome.
type Result struct {
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

// Static is an environment captured ahead of time. Window holds the values
// needed for attribute paths, Present the names found on the global object,
// and Results the outcome of every check script.
type Static struct {
	Present []string          `json:"present"`
	Window  map[string]any    `json:"window"`
	Results map[string]Result `json:"results"`
	URL     string            `json:"href"`
	Cookie  string            `json:"cookie"`

	present map[string]struct{}
}

// LoadSnapshot reads a snapshot written as JSON.
func LoadSnapshot(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	return ParseSnapshot(data)
}

func ParseSnapshot(data []byte) (*Static, error) {
	var s Static
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}

func (s *Static) index() map[string]struct{} {
	if s.present == nil || len(s.present) != len(s.Present) {
		s.present = make(map[string]struct{}, len(s.Present))
		for _, n := range s.Present {
			s.present[n] = struct{}{}
		}
	}
	return s.present
}

func (s *Static) Has(name string) bool {
	if _, ok := s.index()[name]; ok {
		return true
	}
	_, ok := s.Window[name]
	return ok
}

func (s *Static) Global(name string) (any, bool) {
	if v, ok := s.Window[name]; ok {
		return v, true
	}
	if _, ok := s.index()[name]; ok {
		return Undefined, true
	}
	return nil, false
}

func (s *Static) Property(obj any, name string) (any, bool) {
	switch o := obj.(type) {
	case map[string]any:
		v, ok := o[name]
		return v, ok
	case []any:
		if name == "length" {
			return float64(len(o)), true
		}
		if i, ok := arrayIndex(name); ok && i < len(o) {
			return o[i], true
		}
	case string:
		if name == "length" {
			return float64(len(o)), true
		}
	}
	return nil, false
}

func (s *Static) Eval(script string) (any, error) {
	r, ok := s.Results[script]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotEvaluated, script)
	}
	if r.Error != "" {
		return nil, &ScriptError{Script: script, Message: r.Error}
	}
	return r.Value, nil
}

func (s *Static) Href() string { return s.URL }

func arrayIndex(name string) (int, bool) {
	if name == "" || len(name) > 9 || (len(name) > 1 && name[0] == '0') {
		return 0, false
	}
	n := 0
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// Resolve walks a dotted path from the global object. Any missing segment
// fails the whole path with ErrNotFound; no partial value is returned.
func Resolve(env Environment, path string) (any, error) {
	segs := strings.Split(path, ".")
	v, ok := env.Global(segs[0])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	for _, seg := range segs[1:] {
		v, ok = env.Property(v, seg)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
	}
	return v, nil
}
