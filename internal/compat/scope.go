package compat

import (
	"fmt"
	"os"

	"github.com/shortontech/featurefp/internal/catalog"
)

// LoadScope reads a newline-delimited scope list. A trailing blank line (and
// any other blank line) is ignored.
func LoadScope(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scope %s: %w", path, err)
	}
	defer f.Close()
	names, err := catalog.ReadLines(f)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
