package catalog

import "fmt"

// FeatureSource yields the feature set of a compatibility table key, in the
// order the names appear in the dataset.
type FeatureSource interface {
	Features(key string) ([]string, bool)
}

// Namespace answers global-name membership for a live environment.
type Namespace interface {
	Has(name string) bool
}

// Regenerate seeds a new catalog version from the names of table key that are
// present in env. Names keep the order of the table key, so a new catalog
// lists them as the dataset does. It is a manual maintenance step; nothing
// calls it during a normal build.
func Regenerate(version string, table FeatureSource, key string, env Namespace) (Catalog, error) {
	candidates, ok := table.Features(key)
	if !ok {
		return Catalog{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	present := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if env.Has(name) {
			present = append(present, name)
		}
	}
	return New(version, present)
}
