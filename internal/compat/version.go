package compat

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// VersionPolicy turns a raw version_added value into an integer version.
// ok is false when the value carries no usable version.
type VersionPolicy interface {
	Name() string
	Version(raw gjson.Result) (v int, ok bool)
}

const (
	PolicyFloor = "floor"
	PolicyCeil  = "ceil"
)

// PolicyByName resolves a configured policy. An empty name selects floor.
func PolicyByName(name string) (VersionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyFloor:
		return Floor{}, nil
	case PolicyCeil:
		return Ceil{}, nil
	default:
		return nil, fmt.Errorf("unknown version policy %q (want %s or %s)", name, PolicyFloor, PolicyCeil)
	}
}

// Floor collapses sub-integer versions to their integer floor, so "12.1" and
// "12.9" both count from 12. Vendors with fractional major numbering lose
// precision here; published tables have always been built this way.
type Floor struct{}

func (Floor) Name() string { return PolicyFloor }

func (Floor) Version(raw gjson.Result) (int, bool) {
	return roundVersion(raw, math.Floor)
}

// Ceil only counts a fractional version from the next whole version.
type Ceil struct{}

func (Ceil) Name() string { return PolicyCeil }

func (Ceil) Version(raw gjson.Result) (int, bool) {
	return roundVersion(raw, math.Ceil)
}

// roundVersion applies numeric coercion: numbers and numeric strings convert,
// true is 1, and false, null, zero and text such as "preview" or "≤37" are
// unknown.
func roundVersion(raw gjson.Result, round func(float64) float64) (int, bool) {
	var f float64
	switch raw.Type {
	case gjson.Number:
		f = raw.Num
	case gjson.String:
		s := strings.TrimSpace(raw.Str)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	case gjson.True:
		f = 1
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	v := round(f)
	if v == 0 {
		return 0, false
	}
	return int(v), true
}
