package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`{"chunks":{"main":"bundle.js"},"marked":{"a/b.jpg":"hash1.jpg","c/d.ttf":"hash2.ttf"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Count() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Count())
	}
	if got, ok := m.Lookup("a/b.jpg"); !ok || got != "hash1.jpg" {
		t.Fatalf("lookup a/b.jpg = %q, %v", got, ok)
	}
	if _, ok := m.Lookup("a/b"); ok {
		t.Fatal("unexpected hit for a/b")
	}
	if m.Chunks["main"] != "bundle.js" {
		t.Fatalf("chunks not kept: %v", m.Chunks)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind error
	}{
		{"malformed", "bad", ErrSyntax},
		{"truncated", `{"marked": {`, ErrSyntax},
		{"empty", "", ErrNotObject},
		{"null", "null", ErrNotObject},
		{"array", `[1,2]`, ErrNotObject},
		{"string", `"marked"`, ErrNotObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected error")
			}
			if m != nil {
				t.Fatal("expected nil manifest alongside error")
			}
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
		})
	}
}

func TestParseIgnoresNonStringValues(t *testing.T) {
	m, err := Parse([]byte(`{"marked":{"a.png":"x.png","b.png":3,"c.png":null}}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Count() != 1 {
		t.Fatalf("expected only string entries, got %v", m.Marked)
	}
}

func TestSetNonObjectClears(t *testing.T) {
	m, _ := Parse([]byte(`{"marked":{"a.png":"x.png"}}`))
	for _, v := range []any{nil, "str", []any{"a"}, 42} {
		m.Set(map[string]any{"a.png": "x.png"})
		m.Set(v)
		if m.Count() != 0 {
			t.Fatalf("Set(%v): expected 0 entries, got %d", v, m.Count())
		}
	}

	var nilManifest *Manifest
	nilManifest.Set(nil)
	if nilManifest.Count() != 0 {
		t.Fatal("nil manifest should count 0")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in, err := Parse([]byte(`{"chunks":{"main":"bundle.js"},"marked":{"a/b.jpg":"hash1.jpg"}}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}
	out, err := Parse(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.Chunks["main"] != "bundle.js" || out.Marked["a/b.jpg"] != "hash1.jpg" {
		t.Fatalf("round trip lost data: %s", b)
	}
}

func TestCloneIsolated(t *testing.T) {
	in, _ := Parse([]byte(`{"marked":{"a.png":"x.png"}}`))
	c := in.Clone()
	c.Marked["b.png"] = "y.png"
	if in.Count() != 1 {
		t.Fatal("clone shares storage with original")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFile(filepath.Join(dir, "missing.json")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
	p := filepath.Join(dir, "assets.json")
	if err := os.WriteFile(p, []byte(`{"marked":{"a.png":"x.png"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1, got %d", m.Count())
	}
}
