package probe

import (
	"strconv"
	"strings"
)

type AttributeKind int

const (
	AttrPath AttributeKind = iota
	AttrJoined
	AttrPlugins
)

func (k AttributeKind) String() string {
	switch k {
	case AttrPath:
		return "path"
	case AttrJoined:
		return "joined"
	case AttrPlugins:
		return "plugins"
	}
	return "unknown"
}

// PluginsPath is where the plugin registry lives.
const PluginsPath = "navigator.plugins"

// Attribute is a named string read from the environment. Every failure
// produces "".
type Attribute struct {
	Name  string
	Kind  AttributeKind
	Paths []string
	Sep   string
}

// Path reads one dotted path and stringifies it.
func Path(name, path string) Attribute {
	return Attribute{Name: name, Kind: AttrPath, Paths: []string{path}}
}

// Joined concatenates several paths with sep. One failing path empties the
// whole value.
func Joined(name, sep string, paths ...string) Attribute {
	return Attribute{Name: name, Kind: AttrJoined, Paths: paths, Sep: sep}
}

// Plugins lists the names of the installed plugins, comma separated. A
// missing registry and an empty one both read as "".
func Plugins(name string) Attribute {
	return Attribute{Name: name, Kind: AttrPlugins, Paths: []string{PluginsPath}}
}

func (a Attribute) Value(env Environment) string {
	switch a.Kind {
	case AttrPath:
		if len(a.Paths) != 1 {
			return ""
		}
		s, ok := stringAt(env, a.Paths[0])
		if !ok {
			return ""
		}
		return s
	case AttrJoined:
		parts := make([]string, 0, len(a.Paths))
		for _, p := range a.Paths {
			s, ok := stringAt(env, p)
			if !ok {
				return ""
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, a.Sep)
	case AttrPlugins:
		return pluginNames(env)
	}
	return ""
}

func stringAt(env Environment, path string) (string, bool) {
	v, err := Resolve(env, path)
	if err != nil {
		return "", false
	}
	s, err := Stringify(v)
	if err != nil {
		return "", false
	}
	return s, true
}

func pluginNames(env Environment) string {
	registry, err := Resolve(env, PluginsPath)
	if err != nil || registry == Undefined {
		return ""
	}
	lv, ok := env.Property(registry, "length")
	if !ok {
		return ""
	}
	n, ok := lv.(float64)
	if !ok || n < 0 {
		return ""
	}
	names := make([]string, 0, int(n))
	for i := 0; i < int(n); i++ {
		item, ok := env.Property(registry, strconv.Itoa(i))
		if !ok {
			return ""
		}
		nv, ok := env.Property(item, "name")
		if !ok {
			return ""
		}
		s, err := Stringify(nv)
		if err != nil {
			return ""
		}
		names = append(names, s)
	}
	return strings.Join(names, ",")
}

// DefaultAttributes is the deployed attribute set, in report order.
func DefaultAttributes() []Attribute {
	return []Attribute{
		Path("client_ua", "navigator.userAgent"),
		Path("platform", "navigator.platform"),
		Path("vendor", "navigator.vendor"),
		Path("languages", "navigator.languages"),
		Joined("outer_res", "x", "outerWidth", "outerHeight"),
		Joined("inner_res", "x", "innerWidth", "innerHeight"),
		Plugins("plugins"),
	}
}
