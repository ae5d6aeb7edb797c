package catalog

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		version string
		names   []string
		wantErr error
	}{
		{name: "valid", version: "v1", names: []string{"fetch", "atob", "XRSession"}},
		{name: "missing version", version: " ", names: []string{"fetch"}, wantErr: ErrNoVersion},
		{name: "no names", version: "v1", names: nil, wantErr: ErrEmpty},
		{name: "duplicate", version: "v1", names: []string{"fetch", "atob", "fetch"}, wantErr: ErrDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.version, tt.names)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	src := []string{"fetch", "atob"}
	c, err := New("v1", src)
	if err != nil {
		t.Fatal(err)
	}
	src[0] = "changed"
	if c.At(0) != "fetch" {
		t.Errorf("At(0) = %q after mutating input, want fetch", c.At(0))
	}
	names := c.Names()
	names[1] = "changed"
	if c.At(1) != "atob" {
		t.Errorf("At(1) = %q after mutating Names(), want atob", c.At(1))
	}
}

func TestIndexAndContains(t *testing.T) {
	c, _ := New("v1", []string{"fetch", "atob", "XRSession"})
	if got := c.Index("XRSession"); got != 2 {
		t.Errorf("Index(XRSession) = %d, want 2", got)
	}
	if got := c.Index("missing"); got != -1 {
		t.Errorf("Index(missing) = %d, want -1", got)
	}
	if !c.Contains("atob") || c.Contains("btoa") {
		t.Error("Contains returned wrong membership")
	}
}

func TestParseAndWrite(t *testing.T) {
	in := "fetch\natob\n\nXRSession\n"
	c, err := Parse("v1", strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "fetch\natob\nXRSession\n" {
		t.Errorf("Write = %q", buf.String())
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Version() != DefaultVersion {
		t.Errorf("Version = %q, want %q", c.Version(), DefaultVersion)
	}
	if c.Len() != 788 {
		t.Errorf("Len = %d, want 788", c.Len())
	}
	if c.At(0) != "AbortController" {
		t.Errorf("At(0) = %q, want AbortController", c.At(0))
	}
	if c.At(c.Len()-1) != "WebAssembly" {
		t.Errorf("last = %q, want WebAssembly", c.At(c.Len()-1))
	}
	if Default().At(10) != c.At(10) {
		t.Error("Default is not stable across calls")
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	if _, err := r.Lookup(DefaultVersion); err != nil {
		t.Fatalf("Lookup default: %v", err)
	}
	if _, err := r.Lookup("nope"); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Lookup(nope) error = %v, want ErrNotAvailable", err)
	}

	v2, _ := New("v2", []string{"fetch"})
	if err := r.Register(v2); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(v2); err != nil {
		t.Errorf("re-registering identical list: %v", err)
	}
	other, _ := New("v2", []string{"atob"})
	if err := r.Register(other); err == nil {
		t.Error("expected conflict when re-registering v2 with a different list")
	}
	if got := r.Versions(); len(got) != 2 || got[0] != DefaultVersion || got[1] != "v2" {
		t.Errorf("Versions = %v", got)
	}
}

type stubTable map[string][]string

func (s stubTable) Features(key string) ([]string, bool) {
	f, ok := s[key]
	return f, ok
}

type stubEnv map[string]bool

func (s stubEnv) Has(name string) bool { return s[name] }

func TestRegenerate(t *testing.T) {
	table := stubTable{"chrome112": {"fetch", "XRSession", "atob", "Atob2", "console"}}
	env := stubEnv{"fetch": true, "atob": true, "console": true, "Atob2": true}

	c, err := Regenerate("2024-01-01_feature", table, "chrome112", env)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"fetch", "atob", "Atob2", "console"}
	got := c.Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := Regenerate("v", table, "firefox1", env); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key error = %v, want ErrUnknownKey", err)
	}
}

func TestRegenerateReproducesDeployedOrder(t *testing.T) {
	deployed := Default().Names()
	env := stubEnv{}
	for _, n := range deployed {
		env[n] = true
	}
	c, err := Regenerate("next", stubTable{"chrome112": deployed}, "chrome112", env)
	if err != nil {
		t.Fatal(err)
	}
	got := c.Names()
	if len(got) != len(deployed) {
		t.Fatalf("len = %d, want %d", len(got), len(deployed))
	}
	for i := range deployed {
		if got[i] != deployed[i] {
			t.Fatalf("position %d = %q, want %q", i, got[i], deployed[i])
		}
	}
}
