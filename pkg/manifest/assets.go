// Package manifest holds the in-memory form of the build tool's asset manifest:
// original source path -> content-hashed output filename.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joeydtaylor/steeze-assets/pkg/codec"
)

var (
	ErrSyntax    = errors.New("manifest is not valid JSON")
	ErrNotObject = errors.New("manifest is not a JSON object")
)

// ParseError is returned by Parse for payloads that cannot become a Manifest.
type ParseError struct {
	Kind error
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Manifest mirrors the manifest file:
//
//	{"chunks": {"main": "bundle.js"}, "marked": {"a/b.jpg": "<hash>.jpg"}}
//
// Marked keys are POSIX paths relative to the project root, without query suffix.
// Chunks is not used for resolution but round-trips through Encode.
type Manifest struct {
	Chunks map[string]string `json:"chunks,omitempty"`
	Marked map[string]string `json:"marked"`
}

// Parse decodes raw bytes. Callers never get a partial manifest alongside an error.
func Parse(raw []byte) (*Manifest, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, &ParseError{Kind: ErrNotObject}
	}
	var v any
	if err := codec.JSON.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, &ParseError{Kind: ErrSyntax, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &ParseError{Kind: ErrNotObject, Err: fmt.Errorf("got %T", v)}
	}
	m := &Manifest{}
	m.Chunks = stringMap(obj["chunks"])
	m.Set(obj["marked"])
	return m, nil
}

// LoadFile reads and parses path. Read errors come back unwrapped so that
// errors.Is(err, fs.ErrNotExist) works for callers.
func LoadFile(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Set replaces the asset map from a decoded JSON value. Anything that is not an
// object clears the manifest.
func (m *Manifest) Set(v any) {
	if m == nil {
		return
	}
	switch t := v.(type) {
	case map[string]string:
		m.Marked = make(map[string]string, len(t))
		for k, s := range t {
			m.Marked[k] = s
		}
	case map[string]any:
		m.Marked = stringMap(t)
	default:
		m.Marked = map[string]string{}
	}
}

// Lookup returns the hashed filename for key.
func (m *Manifest) Lookup(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.Marked[key]
	return v, ok
}

// Count is the number of asset entries.
func (m *Manifest) Count() int {
	if m == nil {
		return 0
	}
	return len(m.Marked)
}

func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return &Manifest{Marked: map[string]string{}}
	}
	out := &Manifest{Marked: make(map[string]string, len(m.Marked))}
	for k, v := range m.Marked {
		out.Marked[k] = v
	}
	if m.Chunks != nil {
		out.Chunks = make(map[string]string, len(m.Chunks))
		for k, v := range m.Chunks {
			out.Chunks[k] = v
		}
	}
	return out
}

func (m *Manifest) Encode() ([]byte, error) {
	if m == nil {
		m = &Manifest{}
	}
	if m.Marked == nil {
		m = &Manifest{Chunks: m.Chunks, Marked: map[string]string{}}
	}
	return codec.JSON.Marshal(m)
}

// stringMap keeps only string values; non-object input yields an empty map.
func stringMap(v any) map[string]string {
	obj, ok := v.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(obj))
	for k, raw := range obj {
		if s, ok := raw.(string); ok {
			out[k] = s
		}
	}
	return out
}
