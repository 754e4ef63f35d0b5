package codec

import (
	"strings"
	"testing"
)

type doc struct {
	Name string `json:"name" toml:"name"`
	URL  string `json:"url" toml:"url"`
}

func TestJSONStrictRejectsUnknownAndTrailing(t *testing.T) {
	var d doc
	if err := JSONStrict.Unmarshal([]byte(`{"name":"a","extra":1}`), &d); err == nil {
		t.Fatal("unknown field accepted")
	}
	if err := JSONStrict.Unmarshal([]byte(`{"name":"a"} {}`), &d); err == nil {
		t.Fatal("trailing content accepted")
	}
	if err := JSONStrict.Unmarshal([]byte(`{"name":"a"}`), &d); err != nil || d.Name != "a" {
		t.Fatalf("d=%+v err=%v", d, err)
	}
}

func TestJSONLenientIgnoresUnknown(t *testing.T) {
	var d doc
	if err := JSON.Unmarshal([]byte(`{"name":"a","webpackDev":{"port":8080}}`), &d); err != nil || d.Name != "a" {
		t.Fatalf("d=%+v err=%v", d, err)
	}
}

func TestMarshalKeepsHTMLAndNoNewline(t *testing.T) {
	b, err := JSON.Marshal(doc{URL: "/static/a.jpg?x=1&y=<2>"})
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if strings.HasSuffix(s, "\n") || !strings.Contains(s, "&y=<2>") {
		t.Fatalf("encoded = %q", s)
	}
}

func TestTOML(t *testing.T) {
	var d doc
	if err := TOML.Unmarshal([]byte("name = \"assets\"\n"), &d); err != nil || d.Name != "assets" {
		t.Fatalf("d=%+v err=%v", d, err)
	}
	if err := TOML.Unmarshal([]byte("name = "), &d); err == nil {
		t.Fatal("bad toml accepted")
	}
	if TOML.ContentType() != "application/toml" || JSONStrict.ContentType() != "application/json" {
		t.Fatal("content types")
	}
}
