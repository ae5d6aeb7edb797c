package compat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// Table maps "family+version" keys to the names supported at that version.
// Keys keep insertion order, and so do the names within a key: a fill walks
// the dataset roots in order, so each key lists names in dataset order.
type Table struct {
	keys  []string
	names map[string][]string
	sets  map[string]map[string]struct{}
}

// NewTable creates an empty set for every version in every window.
func NewTable(windows Windows) *Table {
	t := &Table{}
	for _, w := range windows {
		for v := w.Min; v <= w.Max; v++ {
			t.ensure(Key(w.Family, v))
		}
	}
	return t
}

func (t *Table) ensure(key string) map[string]struct{} {
	if t.sets == nil {
		t.sets = make(map[string]map[string]struct{})
		t.names = make(map[string][]string)
	}
	if s, ok := t.sets[key]; ok {
		return s
	}
	s := make(map[string]struct{})
	t.sets[key] = s
	t.keys = append(t.keys, key)
	return s
}

func (t *Table) add(key, name string) {
	set := t.ensure(key)
	if _, ok := set[name]; ok {
		return
	}
	set[name] = struct{}{}
	t.names[key] = append(t.names[key], name)
}

// Append adds key after the existing keys if it is new, then adds names to it.
func (t *Table) Append(key string, names ...string) {
	t.ensure(key)
	for _, n := range names {
		t.add(key, n)
	}
}

// Keys returns the table keys in order.
func (t *Table) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

func (t *Table) Len() int { return len(t.keys) }

// Features returns the names of key in the order they were added.
func (t *Table) Features(key string) ([]string, bool) {
	if _, ok := t.sets[key]; !ok {
		return nil, false
	}
	out := make([]string, len(t.names[key]))
	copy(out, t.names[key])
	return out, true
}

func (t *Table) Has(key, name string) bool {
	_, ok := t.sets[key][name]
	return ok
}

// MarshalJSON writes [[key, [name, ...]], ...].
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, key := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		names, _ := t.Features(key)
		row, err := json.Marshal([]any{key, names})
		if err != nil {
			return nil, err
		}
		buf.Write(row)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the format written by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("compat table: invalid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return fmt.Errorf("compat table: top level must be an array")
	}
	fresh := &Table{}
	var perr error
	root.ForEach(func(idx, row gjson.Result) bool {
		pair := row.Array()
		if !row.IsArray() || len(pair) != 2 || pair[0].Type != gjson.String || !pair[1].IsArray() {
			perr = fmt.Errorf("compat table: row %d is not [key, [names]]", idx.Int())
			return false
		}
		key := pair[0].Str
		fresh.ensure(key)
		for _, n := range pair[1].Array() {
			if n.Type != gjson.String {
				perr = fmt.Errorf("compat table: row %q holds a non-string name", key)
				return false
			}
			fresh.add(key, n.Str)
		}
		return true
	})
	if perr != nil {
		return perr
	}
	*t = *fresh
	return nil
}

// LoadTable reads a serialized table from path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", path, err)
	}
	t := &Table{}
	if err := t.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return t, nil
}

// WriteFile replaces path with the serialized table. The content goes to a
// temporary file in the same directory first, so path either holds the full
// new table or is left untouched.
func (t *Table) WriteFile(path string) (err error) {
	data, err := t.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode table: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync table: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close table: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move table into place at %s: %w", path, err)
	}
	return nil
}
