// Package compat builds the compatibility table: for every tracked browser
// family and version, the set of API and builtin names supported there.
package compat

import "github.com/tidwall/gjson"

// SupportKind discriminates the shapes a dataset support value can take.
type SupportKind int

const (
	SupportAbsent SupportKind = iota
	SupportSingle
	SupportList
)

func (k SupportKind) String() string {
	switch k {
	case SupportSingle:
		return "single"
	case SupportList:
		return "list"
	default:
		return "absent"
	}
}

// Entry is one support statement for a family.
type Entry struct {
	VersionAdded gjson.Result
}

// Support is the resolved support value for one family of one record.
type Support struct {
	Kind    SupportKind
	Entries []Entry
}

// ParseSupport classifies v. Lists keep their order; an empty list or any
// non-object scalar counts as absent.
func ParseSupport(v gjson.Result) Support {
	switch {
	case !v.Exists():
		return Support{Kind: SupportAbsent}
	case v.IsArray():
		var entries []Entry
		for _, e := range v.Array() {
			entries = append(entries, Entry{VersionAdded: e.Get("version_added")})
		}
		if len(entries) == 0 {
			return Support{Kind: SupportAbsent}
		}
		return Support{Kind: SupportList, Entries: entries}
	case v.IsObject():
		return Support{Kind: SupportSingle, Entries: []Entry{{VersionAdded: v.Get("version_added")}}}
	default:
		return Support{Kind: SupportAbsent}
	}
}

// Authoritative returns the entry that decides support: the only entry of a
// single value, the first entry of a list.
func (s Support) Authoritative() (Entry, bool) {
	if s.Kind == SupportAbsent || len(s.Entries) == 0 {
		return Entry{}, false
	}
	return s.Entries[0], true
}
