package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"sync"
)

// DefaultVersion is the tag of the catalog shipped with the collector.
const DefaultVersion = "2023-05-11_feature"

//go:embed data/2023-05-11_feature.txt
var defaultNames []byte

var (
	defaultOnce sync.Once
	defaultCat  Catalog
)

// Default returns the embedded frozen catalog. It panics if the embedded data
// is invalid, which can only happen through a broken build.
func Default() Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(DefaultVersion, bytes.NewReader(defaultNames))
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded %s: %v", DefaultVersion, err))
		}
		defaultCat = c
	})
	return defaultCat
}

// Registry maps version tags to frozen catalogs.
type Registry struct {
	mu       sync.RWMutex
	versions map[string]Catalog
}

func NewRegistry(cats ...Catalog) *Registry {
	r := &Registry{versions: make(map[string]Catalog, len(cats))}
	for _, c := range cats {
		r.versions[c.Version()] = c
	}
	return r
}

// DefaultRegistry holds only the embedded catalog.
func DefaultRegistry() *Registry { return NewRegistry(Default()) }

// Register adds c. Re-registering a tag with a different list is refused.
func (r *Registry) Register(c Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.versions[c.Version()]; ok && !sameNames(old, c) {
		return fmt.Errorf("catalog: version %s already registered with a different list", c.Version())
	}
	r.versions[c.Version()] = c
	return nil
}

func (r *Registry) Lookup(version string) (Catalog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.versions[version]
	if !ok {
		return Catalog{}, fmt.Errorf("%w: %s", ErrNotAvailable, version)
	}
	return c, nil
}

// Versions returns the registered tags, sorted.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.versions))
	for v := range r.versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func sameNames(a, b Catalog) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.names {
		if a.names[i] != b.names[i] {
			return false
		}
	}
	return true
}
