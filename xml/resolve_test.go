package xml_test

import (
	"errors"
	"io"
	"testing"
	"testing/fstest"

	"github.com/midbel/docbook/xml"
)

func TestJoinLocation(t *testing.T) {
	tests := []struct {
		Base string
		Ref  string
		Want string
	}{
		{Base: "doc/index.xml", Ref: "chapter.xml", Want: "doc/chapter.xml"},
		{Base: "doc/index.xml", Ref: "/abs/chapter.xml", Want: "/abs/chapter.xml"},
		{Base: "doc/", Ref: "images/", Want: "doc/images/"},
		{Base: "bundle:xsl/html/docbook.xsl", Ref: "../common/common.xsl", Want: "bundle:xsl/common/common.xsl"},
		{Base: "bundle:xsl/", Ref: "html/", Want: "bundle:xsl/html/"},
		{Base: "bundle:xsl/html/docbook.xsl", Ref: "/images/note.svg", Want: "bundle:images/note.svg"},
		{Base: "http://example.org/a/b.xml", Ref: "c.xml", Want: "http://example.org/a/c.xml"},
		{Base: "doc/index.xml", Ref: "file:///tmp/x.xml", Want: "file:///tmp/x.xml"},
		{Base: "", Ref: "a.xml", Want: "a.xml"},
		{Base: "doc/index.xml", Ref: "", Want: "doc/index.xml"},
	}
	for _, tt := range tests {
		if got := xml.JoinLocation(tt.Base, tt.Ref); got != tt.Want {
			t.Errorf("join(%q, %q): want %q, got %q", tt.Base, tt.Ref, tt.Want, got)
		}
	}
}

func TestScheme(t *testing.T) {
	tests := map[string]string{
		"index.xml":             "",
		"C:\\docs\\index.xml":   "",
		"bundle:xsl/chunk.xsl":  "bundle",
		"HTTP://example.org":    "http",
		"file:///tmp/index.xml": "file",
	}
	for input, want := range tests {
		if got := xml.Scheme(input); got != want {
			t.Errorf("%s: scheme mismatched: want %q, got %q", input, want, got)
		}
	}
}

func TestOpen(t *testing.T) {
	fsys := fstest.MapFS{
		"xsl/common.xsl": &fstest.MapFile{
			Data: []byte("<xsl:stylesheet/>"),
		},
	}
	rc, err := xml.Open(fsys, "bundle:xsl/common.xsl")
	if err != nil {
		t.Fatalf("fail to open bundled file: %s", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "<xsl:stylesheet/>" {
		t.Errorf("content mismatched: %s", data)
	}
	if _, err := xml.Open(fsys, "https://example.org/docbook.xsl"); !errors.Is(err, xml.ErrRemote) {
		t.Errorf("remote location should be refused, got %v", err)
	}
	if _, err := xml.Open(nil, "bundle:xsl/common.xsl"); err == nil {
		t.Errorf("bundle location opened without bundle")
	}
}

type mapResolver map[string]string

func (m mapResolver) Resolve(_, systemID string) (string, bool) {
	loc, ok := m[systemID]
	return loc, ok
}

func (m mapResolver) Open(location string) (io.ReadCloser, error) {
	return xml.Open(nil, location)
}

func TestLocate(t *testing.T) {
	res := mapResolver{
		"http://example.org/db.xsl": "bundle:xsl/db.xsl",
		"doc/common.xml":            "bundle:doc/common.xml",
	}
	tests := []struct {
		Base  string
		Ref   string
		Want  string
		Found bool
	}{
		{Base: "doc/index.xml", Ref: "http://example.org/db.xsl", Want: "bundle:xsl/db.xsl", Found: true},
		{Base: "doc/index.xml", Ref: "common.xml", Want: "bundle:doc/common.xml", Found: true},
		{Base: "doc/index.xml", Ref: "other.xml", Want: "doc/other.xml"},
	}
	for _, tt := range tests {
		got, ok := xml.Locate(res, tt.Base, tt.Ref)
		if got != tt.Want || ok != tt.Found {
			t.Errorf("locate(%q): want %q (%t), got %q (%t)", tt.Ref, tt.Want, tt.Found, got, ok)
		}
	}
}
