package bundle_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/midbel/docbook/bundle"
	"github.com/midbel/docbook/catalog"
	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xslt"
)

func TestBundledFiles(t *testing.T) {
	files := []string{
		bundle.Catalog,
		bundle.HighlightConfig,
		"docbook/dtd/docbookx.dtd",
		"xsl/html/docbook.xsl",
		"xsl/html/chunk.xsl",
		"xsl/common/common.xsl",
		"images/note.svg",
		"images/warning.svg",
	}
	for _, f := range files {
		if _, err := fs.Stat(bundle.FS(), f); err != nil {
			t.Errorf("%s: %s", f, err)
		}
	}
}

func TestBundledCatalog(t *testing.T) {
	cat, err := catalog.Build(bundle.Catalog, catalog.WithBundle(bundle.FS()))
	if err != nil {
		t.Fatalf("error building catalog: %s", err)
	}
	tests := []struct {
		Public string
		System string
		Want   string
	}{
		{
			Public: "-//OASIS//DTD DocBook XML V4.5//EN",
			System: "http://www.oasis-open.org/docbook/xml/4.5/docbookx.dtd",
			Want:   "bundle:docbook/dtd/docbookx.dtd",
		},
		{
			System: "http://docbook.sourceforge.net/release/xsl/current/html/chunk.xsl",
			Want:   bundle.StylesheetChunk,
		},
		{
			System: "urn:docbook:highlighting:config",
			Want:   "bundle:" + bundle.HighlightConfig,
		},
	}
	for _, tt := range tests {
		got, ok := cat.Resolve(tt.Public, tt.System)
		if !ok || got != tt.Want {
			t.Errorf("%s: want %s, got %s", tt.System, tt.Want, got)
		}
	}
}

func TestBundledStylesheets(t *testing.T) {
	cat, err := catalog.Build(bundle.Catalog, catalog.WithBundle(bundle.FS()))
	if err != nil {
		t.Fatalf("error building catalog: %s", err)
	}
	for _, loc := range []string{bundle.StylesheetHTML, bundle.StylesheetChunk} {
		sheet, err := xslt.Load(loc, cat)
		if err != nil {
			t.Errorf("%s: error loading stylesheet: %s", loc, err)
			continue
		}
		if !slices.Contains(sheet.Params(), "admon.graphics") {
			t.Errorf("%s: admon.graphics parameter not declared", loc)
		}
	}
}

func TestBundledEntities(t *testing.T) {
	cat, err := catalog.Build(bundle.Catalog, catalog.WithBundle(bundle.FS()))
	if err != nil {
		t.Fatalf("error building catalog: %s", err)
	}
	const doc = `<?xml version="1.0"?>
<!DOCTYPE article PUBLIC "-//OASIS//DTD DocBook XML V4.5//EN" "http://www.oasis-open.org/docbook/xml/4.5/docbookx.dtd">
<article><para>a&mdash;b&copy;</para></article>`
	res, err := xml.ParseString(doc, xml.WithResolver(cat))
	if err != nil {
		t.Fatalf("error parsing document: %s", err)
	}
	if got, want := res.Root().Value(), "a—b©"; got != want {
		t.Errorf("entities mismatched: want %q, got %q", want, got)
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	list, err := bundle.Extract(bundle.ImagesDir, dir)
	if err != nil {
		t.Fatalf("error extracting images: %s", err)
	}
	if len(list) != 5 {
		t.Errorf("expected 5 images, got %d", len(list))
	}
	if _, err := os.Stat(filepath.Join(dir, "note.svg")); err != nil {
		t.Errorf("note.svg not extracted: %s", err)
	}
	list, err = bundle.Extract(bundle.HighlightConfig, dir)
	if err != nil {
		t.Fatalf("error extracting config: %s", err)
	}
	if len(list) != 1 || list[0] != filepath.Join(dir, "config.yaml") {
		t.Errorf("unexpected files extracted: %v", list)
	}
}

func TestJoin(t *testing.T) {
	dir := t.TempDir()
	valid := []string{"index.html", "chapters/ch01.html", "a/../b.html"}
	for _, name := range valid {
		if _, err := bundle.Join(dir, name); err != nil {
			t.Errorf("%s: unexpected error: %s", name, err)
		}
	}
	invalid := []string{"../out.html", "a/../../out.html", "/etc/passwd", "file:///tmp/x.html"}
	for _, name := range invalid {
		if _, err := bundle.Join(dir, name); !errors.Is(err, bundle.ErrEscape) {
			t.Errorf("%s: expected escape error, got %v", name, err)
		}
	}
}
