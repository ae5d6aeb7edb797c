package compat

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// DefaultRoots are the dataset sections whose direct children are probed as
// global names: Web APIs and JavaScript builtins.
var DefaultRoots = []string{"api", "javascript.builtins"}

// Builder runs the range fill over a compatibility dataset.
type Builder struct {
	Roots   []string
	Windows Windows
	// Scope restricts processing to these names. Nil means no filter, which is
	// only wanted when regenerating a catalog.
	Scope  []string
	Policy VersionPolicy
}

// Stats counts what the build did with each record and family.
type Stats struct {
	Records    int `json:"records"`
	OutOfScope int `json:"out_of_scope"`
	NoCompat   int `json:"no_compat"`
	NoSupport  int `json:"no_support"`
	Unknown    int `json:"unknown_version"`
	AboveMax   int `json:"above_max"`
	Filled     int `json:"filled"`
}

// Build fills a table from the dataset. Records without compatibility data,
// families without support statements and unusable versions are skipped; they
// mean "no claim", not failure.
func (b Builder) Build(dataset []byte) (*Table, Stats, error) {
	var stats Stats
	if len(b.Windows) == 0 {
		return nil, stats, fmt.Errorf("compat build: no browser windows configured")
	}
	if !gjson.ValidBytes(dataset) {
		return nil, stats, fmt.Errorf("compat build: dataset is not valid json")
	}
	policy := b.Policy
	if policy == nil {
		policy = Floor{}
	}
	roots := b.Roots
	if len(roots) == 0 {
		roots = DefaultRoots
	}

	var scope map[string]struct{}
	if b.Scope != nil {
		scope = make(map[string]struct{}, len(b.Scope))
		for _, n := range b.Scope {
			scope[n] = struct{}{}
		}
	}

	table := NewTable(b.Windows)
	for _, root := range roots {
		section := gjson.GetBytes(dataset, root)
		if !section.IsObject() {
			return nil, stats, fmt.Errorf("compat build: dataset section %q missing or not an object", root)
		}
		section.ForEach(func(name, record gjson.Result) bool {
			stats.Records++
			if scope != nil {
				if _, ok := scope[name.Str]; !ok {
					stats.OutOfScope++
					return true
				}
			}
			b.fillRecord(table, policy, name.Str, record, &stats)
			return true
		})
	}
	return table, stats, nil
}

func (b Builder) fillRecord(t *Table, policy VersionPolicy, name string, record gjson.Result, stats *Stats) {
	compat := record.Get(`__compat`)
	if !compat.Exists() {
		stats.NoCompat++
		return
	}
	support := compat.Get("support")
	for _, w := range b.Windows {
		entry, ok := ParseSupport(support.Get(gjson.Escape(w.Family))).Authoritative()
		if !ok {
			stats.NoSupport++
			continue
		}
		v, ok := policy.Version(entry.VersionAdded)
		if !ok {
			stats.Unknown++
			continue
		}
		if v < w.Min {
			v = w.Min
		}
		if v > w.Max {
			stats.AboveMax++
			continue
		}
		for ; v <= w.Max; v++ {
			t.add(Key(w.Family, v), name)
		}
		stats.Filled++
	}
}
