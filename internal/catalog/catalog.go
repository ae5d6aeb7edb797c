// Package catalog holds the frozen, versioned list of global symbol names that
// positions a feature signature. Position i of a catalog version always names
// the same symbol; a changed list is a new version.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrDuplicate    = errors.New("catalog: duplicate name")
	ErrEmpty        = errors.New("catalog: no names")
	ErrNoVersion    = errors.New("catalog: missing version tag")
	ErrUnknownKey   = errors.New("catalog: unknown table key")
	ErrNotAvailable = errors.New("catalog: version not registered")
)

// Catalog is immutable after construction.
type Catalog struct {
	version string
	names   []string
	index   map[string]int
}

// New copies names into a catalog tagged with version.
func New(version string, names []string) (Catalog, error) {
	if strings.TrimSpace(version) == "" {
		return Catalog{}, ErrNoVersion
	}
	if len(names) == 0 {
		return Catalog{}, ErrEmpty
	}
	c := Catalog{
		version: version,
		names:   make([]string, len(names)),
		index:   make(map[string]int, len(names)),
	}
	for i, n := range names {
		if n == "" {
			return Catalog{}, fmt.Errorf("catalog: empty name at position %d", i)
		}
		if prev, ok := c.index[n]; ok {
			return Catalog{}, fmt.Errorf("%w: %q at positions %d and %d", ErrDuplicate, n, prev, i)
		}
		c.names[i] = n
		c.index[n] = i
	}
	return c, nil
}

// Parse reads a newline-delimited catalog. Blank lines are ignored.
func Parse(version string, r io.Reader) (Catalog, error) {
	names, err := ReadLines(r)
	if err != nil {
		return Catalog{}, err
	}
	return New(version, names)
}

// ReadLines returns the non-blank lines of r, trimmed.
func ReadLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read names: %w", err)
	}
	return out, nil
}

func (c Catalog) Version() string { return c.version }
func (c Catalog) Len() int        { return len(c.names) }
func (c Catalog) At(i int) string { return c.names[i] }

// Names returns a copy of the ordered names.
func (c Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Index returns the position of name, or -1.
func (c Catalog) Index(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	return -1
}

func (c Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Write emits the catalog one name per line.
func (c Catalog) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, n := range c.names {
		if _, err := bw.WriteString(n + "\n"); err != nil {
			return fmt.Errorf("failed to write catalog: %w", err)
		}
	}
	return bw.Flush()
}
