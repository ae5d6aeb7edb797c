package probe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shortontech/featurefp/internal/catalog"
	"github.com/shortontech/featurefp/internal/report"
)

// ErrNoCatalog is reported for a plan that names no catalog version.
var ErrNoCatalog = errors.New("probe plan: no catalog")

// Signature is one '0' or '1' per catalog position.
type Signature string

func (s Signature) Len() int { return len(s) }

// Has reports whether position i is set.
func (s Signature) Has(i int) bool { return i >= 0 && i < len(s) && s[i] == '1' }

// Encode checks every catalog name for membership in the global namespace.
func Encode(cat catalog.Catalog, env Environment) Signature {
	var b strings.Builder
	b.Grow(cat.Len())
	for i := 0; i < cat.Len(); i++ {
		if env.Has(cat.At(i)) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return Signature(b.String())
}

// Plan is what Collect gathers.
type Plan struct {
	Catalog    catalog.Catalog
	Attributes []Attribute
	Checks     []Check
	OnFault    FaultHook
}

// DefaultPlan uses the embedded catalog and the deployed probe set.
func DefaultPlan() Plan {
	return Plan{
		Catalog:    catalog.Default(),
		Attributes: DefaultAttributes(),
		Checks:     DefaultChecks(),
	}
}

var reserved = map[string]bool{
	report.VersionKey:    true,
	report.FeaturesKey:   true,
	report.VisitedURLKey: true,
}

// Validate rejects plans whose report would carry ambiguous names.
func (p Plan) Validate() error {
	if p.Catalog.Version() == "" {
		return ErrNoCatalog
	}
	seen := make(map[string]bool)
	claim := func(name string) error {
		if name == "" {
			return fmt.Errorf("probe plan: empty probe name")
		}
		if reserved[name] {
			return fmt.Errorf("probe plan: %q is reserved", name)
		}
		if seen[name] {
			return fmt.Errorf("probe plan: %q used twice", name)
		}
		seen[name] = true
		return nil
	}
	for _, a := range p.Attributes {
		if err := claim(a.Name); err != nil {
			return err
		}
		if len(a.Paths) == 0 {
			return fmt.Errorf("probe plan: attribute %q reads no path", a.Name)
		}
	}
	for _, c := range p.Checks {
		if err := claim(c.Name); err != nil {
			return err
		}
	}
	return nil
}

// Paths lists the distinct dotted paths the attributes read.
func (p Plan) Paths() []string {
	var out []string
	seen := make(map[string]bool)
	for _, a := range p.Attributes {
		for _, path := range a.Paths {
			if !seen[path] {
				seen[path] = true
				out = append(out, path)
			}
		}
	}
	return out
}

// Scripts lists the page-side sources of the script checks.
func (p Plan) Scripts() []string {
	var out []string
	for _, c := range p.Checks {
		if c.Script != "" {
			out = append(out, c.Script)
		}
	}
	return out
}

// Collect gathers the signature, attributes and checks into a report.
// It never fails: anything that cannot be read becomes "" or "0". A plan
// without a catalog yields an empty version and signature, and the fault goes
// to OnFault under the "features" name.
func Collect(p Plan, env Environment) report.FeatureReport {
	cat := p.Catalog
	if cat.Version() == "" && p.OnFault != nil {
		p.OnFault(report.FeaturesKey, ErrNoCatalog)
	}
	probes := make([]report.Pair, 0, len(p.Attributes)+len(p.Checks))
	for _, a := range p.Attributes {
		probes = append(probes, report.Pair{Name: a.Name, Value: a.Value(env)})
	}
	probes = append(probes, RunChecks(env, p.Checks, p.OnFault)...)
	return report.FeatureReport{
		Version:    cat.Version(),
		Features:   string(Encode(cat, env)),
		Probes:     probes,
		VisitedURL: env.Href(),
	}
}
