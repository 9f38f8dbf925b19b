package catalog_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/midbel/docbook/catalog"
	"github.com/midbel/docbook/xml"
)

const bundledCatalog = `<?xml version="1.0"?>
<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog" prefer="public">
	<public publicId="-//OASIS//DTD DocBook XML V4.5//EN" uri="dtd/docbookx.dtd"/>
	<system systemId="http://www.oasis-open.org/docbook/xml/4.5/docbookx.dtd" uri="dtd/docbookx.dtd"/>
	<rewriteSystem systemIdStartString="http://docbook.sourceforge.net/release/xsl/current/" rewritePrefix="../xsl/"/>
	<rewriteSystem systemIdStartString="http://docbook.sourceforge.net/release/" rewritePrefix="../release/"/>
	<systemSuffix systemIdSuffix="/entities.ent" uri="dtd/entities.ent"/>
	<uri name="http://example.org/common.xsl" uri="../xsl/common/common.xsl"/>
	<rewriteURI uriStartString="http://docbook.sourceforge.net/release/xsl/current/" rewritePrefix="../xsl/"/>
	<uriSuffix uriSuffix="/chunk.xsl" uri="../xsl/html/chunk.xsl"/>
	<group prefer="system" xml:base="../images/">
		<public publicId="-//EXAMPLE//IMAGES//EN" uri="images.ent"/>
	</group>
	<delegatePublic publicIdStartString="-//DELEGATED//" catalog="delegated.xml"/>
	<nextCatalog catalog="missing.xml"/>
	<nextCatalog catalog="next.xml"/>
	<unknown attr="value"/>
</catalog>`

const nextCatalog = `<?xml version="1.0"?>
<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog">
	<system systemId="next.dtd" uri="found/next.dtd"/>
</catalog>`

const delegatedCatalog = `<?xml version="1.0"?>
<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog">
	<public publicId="-//DELEGATED//DTD Sample//EN" uri="sample.dtd"/>
</catalog>`

const rootCatalog = `<?xml version="1.0"?>
<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog">
	<system systemId="http://www.oasis-open.org/docbook/xml/4.5/docbookx.dtd" uri="shadowed.dtd"/>
	<uri name="extra.xsl" uri="xsl/extra.xsl"/>
</catalog>`

func testBundle() fstest.MapFS {
	return fstest.MapFS{
		"docbook/catalog.xml":   {Data: []byte(bundledCatalog)},
		"docbook/next.xml":      {Data: []byte(nextCatalog)},
		"docbook/delegated.xml": {Data: []byte(delegatedCatalog)},
		"catalog.xml":           {Data: []byte(rootCatalog)},
		"xsl/html/chunk.xsl":    {Data: []byte("<xsl:stylesheet/>")},
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, catalog.CatalogName), []byte(rootCatalog), 0o644); err != nil {
		t.Fatalf("error writing catalog: %s", err)
	}
	cat, err := catalog.Build(catalog.BundledName, catalog.WithBundle(testBundle()), catalog.WithSearchPath(dir))
	if err != nil {
		t.Fatalf("error building catalog: %s", err)
	}
	want := []string{
		"bundle:docbook/catalog.xml",
		"bundle:catalog.xml",
		filepath.Join(dir, catalog.CatalogName),
	}
	if got := cat.Files(); !slices.Equal(got, want) {
		t.Errorf("files mismatched: want %v, got %v", want, got)
	}
}

func TestBuildMissing(t *testing.T) {
	_, err := catalog.Build(catalog.BundledName, catalog.WithBundle(fstest.MapFS{}), catalog.WithSearchPath(t.TempDir()))
	if !errors.Is(err, catalog.ErrBundledMissing) {
		t.Fatalf("expected missing catalog error, got %v", err)
	}
	bundle := fstest.MapFS{
		"docbook/catalog.xml": {Data: []byte("<catalog")},
	}
	_, err = catalog.Build("", catalog.WithBundle(bundle))
	if !errors.Is(err, catalog.ErrBundledMissing) {
		t.Fatalf("expected error for unreadable catalog, got %v", err)
	}
}

func TestBuildFromSearchPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "docbook"), 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "docbook", "catalog.xml")
	if err := os.WriteFile(file, []byte(nextCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Build(catalog.BundledName, catalog.WithSearchPath(dir))
	if err != nil {
		t.Fatalf("error building catalog: %s", err)
	}
	got, ok := cat.Resolve("", "next.dtd")
	if want := filepath.Join(dir, "docbook", "found", "next.dtd"); !ok || got != want {
		t.Errorf("resolution mismatched: want %s, got %s (%t)", want, got, ok)
	}
}

func TestResolve(t *testing.T) {
	cat, err := catalog.Build(catalog.BundledName, catalog.WithBundle(testBundle()))
	if err != nil {
		t.Fatalf("error building catalog: %s", err)
	}
	tests := []struct {
		Name   string
		Public string
		System string
		Want   string
	}{
		{
			Name:   "public",
			Public: "-//OASIS//DTD  DocBook XML V4.5//EN",
			System: "unknown.dtd",
			Want:   "bundle:docbook/dtd/docbookx.dtd",
		},
		{
			Name:   "system",
			System: "http://www.oasis-open.org/docbook/xml/4.5/docbookx.dtd",
			Want:   "bundle:docbook/dtd/docbookx.dtd",
		},
		{
			Name:   "rewrite-system/longest",
			System: "http://docbook.sourceforge.net/release/xsl/current/html/docbook.xsl",
			Want:   "bundle:xsl/html/docbook.xsl",
		},
		{
			Name:   "rewrite-system/shortest",
			System: "http://docbook.sourceforge.net/release/images/note.png",
			Want:   "bundle:release/images/note.png",
		},
		{
			Name:   "system-suffix",
			System: "http://example.org/any/entities.ent",
			Want:   "bundle:docbook/dtd/entities.ent",
		},
		{
			Name:   "uri",
			System: "http://example.org/common.xsl",
			Want:   "bundle:xsl/common/common.xsl",
		},
		{
			Name:   "uri-suffix",
			System: "http://example.org/styles/chunk.xsl",
			Want:   "bundle:xsl/html/chunk.xsl",
		},
		{
			Name:   "group/base",
			Public: "-//EXAMPLE//IMAGES//EN",
			Want:   "bundle:images/images.ent",
		},
		{
			Name:   "group/prefer-system",
			Public: "-//EXAMPLE//IMAGES//EN",
			System: "images.ent",
		},
		{
			Name:   "delegate-public",
			Public: "-//DELEGATED//DTD Sample//EN",
			Want:   "bundle:docbook/sample.dtd",
		},
		{
			Name:   "next-catalog",
			System: "next.dtd",
			Want:   "bundle:docbook/found/next.dtd",
		},
		{
			Name:   "second-catalog",
			System: "extra.xsl",
			Want:   "bundle:xsl/extra.xsl",
		},
		{
			Name:   "urn",
			System: "urn:publicid:-:OASIS:DTD+DocBook+XML+V4.5:EN",
			Want:   "bundle:docbook/dtd/docbookx.dtd",
		},
		{
			Name:   "unresolved",
			System: "http://example.org/unknown.dtd",
		},
		{
			Name: "empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			got, ok := cat.Resolve(tt.Public, tt.System)
			if tt.Want == "" {
				if ok {
					t.Errorf("expected no resolution, got %s", got)
				}
				return
			}
			if !ok {
				t.Fatalf("identifiers not resolved")
			}
			if got != tt.Want {
				t.Errorf("location mismatched: want %s, got %s", tt.Want, got)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	cat, err := catalog.Build(catalog.BundledName, catalog.WithBundle(testBundle()))
	if err != nil {
		t.Fatalf("error building catalog: %s", err)
	}
	loc, ok := cat.Resolve("", "http://example.org/styles/chunk.xsl")
	if !ok {
		t.Fatalf("uri not resolved")
	}
	r, err := cat.Open(loc)
	if err != nil {
		t.Fatalf("error opening %s: %s", loc, err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "<xsl:stylesheet/>" {
		t.Errorf("content mismatched: %s", data)
	}
	if _, err := cat.Open("http://example.org/remote.xml"); !errors.Is(err, xml.ErrRemote) {
		t.Errorf("expected remote error, got %v", err)
	}
}
