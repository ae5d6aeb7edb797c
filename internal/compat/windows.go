package compat

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Window is the inclusive version range tracked for one browser family.
type Window struct {
	Family string `yaml:"-"`
	Min    int    `yaml:"min"`
	Max    int    `yaml:"max"`
}

// Windows keeps the order the families were configured in.
type Windows []Window

// LoadWindows reads a YAML (or JSON) mapping of family to {min, max}.
func LoadWindows(path string) (Windows, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read browser windows %s: %w", path, err)
	}
	return ParseWindows(data)
}

// ParseWindows decodes the mapping, keeping document order.
func ParseWindows(data []byte) (Windows, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse browser windows: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("browser windows: empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("browser windows: top level must be a mapping of family to {min, max}")
	}

	out := make(Windows, 0, len(root.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		family := strings.TrimSpace(root.Content[i].Value)
		if err := validFamily(family); err != nil {
			return nil, err
		}
		if seen[family] {
			return nil, fmt.Errorf("browser windows: family %q listed twice", family)
		}
		seen[family] = true

		var w Window
		if err := root.Content[i+1].Decode(&w); err != nil {
			return nil, fmt.Errorf("browser windows: family %q: %w", family, err)
		}
		w.Family = family
		if w.Min > w.Max {
			return nil, fmt.Errorf("browser windows: family %q has min %d > max %d", family, w.Min, w.Max)
		}
		out = append(out, w)
	}
	return out, nil
}

// Lookup returns the window configured for family.
func (ws Windows) Lookup(family string) (Window, bool) {
	for _, w := range ws {
		if w.Family == family {
			return w, true
		}
	}
	return Window{}, false
}

// Key is the table key for family at version: the two concatenated.
func Key(family string, version int) string {
	return family + strconv.Itoa(version)
}

// SplitKey separates the trailing version digits from a table key.
func SplitKey(key string) (family string, version int, ok bool) {
	i := len(key)
	for i > 0 && key[i-1] >= '0' && key[i-1] <= '9' {
		i--
	}
	if i == 0 || i == len(key) {
		return "", 0, false
	}
	v, err := strconv.Atoi(key[i:])
	if err != nil {
		return "", 0, false
	}
	return key[:i], v, true
}

// Family names must not end in a digit, otherwise keys stop being reversible.
func validFamily(f string) error {
	if f == "" {
		return fmt.Errorf("browser windows: empty family name")
	}
	if unicode.IsDigit(rune(f[len(f)-1])) {
		return fmt.Errorf("browser windows: family %q must not end in a digit", f)
	}
	return nil
}
