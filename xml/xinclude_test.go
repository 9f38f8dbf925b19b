package xml_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/midbel/docbook/xml"
)

var includeFS = fstest.MapFS{
	"doc/chapter.xml": &fstest.MapFile{
		Data: []byte(`<chapter><title>Chapter</title></chapter>`),
	},
	"doc/sections.xml": &fstest.MapFile{
		Data: []byte(`<chapter><section id="s1"><title>One</title></section><section xml:id="s2"><title>Two</title></section></chapter>`),
	},
	"doc/code.txt": &fstest.MapFile{
		Data: []byte("if a < b {\r\n}\n"),
	},
	"doc/nested.xml": &fstest.MapFile{
		Data: []byte(`<part xmlns:xi="http://www.w3.org/2001/XInclude"><xi:include href="chapter.xml"/></part>`),
	},
	"doc/loop.xml": &fstest.MapFile{
		Data: []byte(`<part xmlns:xi="http://www.w3.org/2001/XInclude"><xi:include href="index.xml"/></part>`),
	},
}

func parseInclude(body string, aware bool) (*xml.Document, error) {
	str := `<book xmlns:xi="http://www.w3.org/2001/XInclude">` + body + `</book>`
	return xml.ParseString(str,
		xml.WithLocation("bundle:doc/index.xml"),
		xml.WithResolver(xml.DefaultResolver(includeFS)),
		xml.WithXInclude(aware),
	)
}

func TestXInclude(t *testing.T) {
	tests := []struct {
		Name  string
		Body  string
		Names []string
		Value string
	}{
		{
			Name:  "include",
			Body:  `<title>Main</title><xi:include href="chapter.xml"/>`,
			Names: []string{"title", "chapter"},
			Value: "MainChapter",
		},
		{
			Name:  "nested",
			Body:  `<xi:include href="nested.xml"/>`,
			Names: []string{"part"},
			Value: "Chapter",
		},
		{
			Name:  "text",
			Body:  `<programlisting><xi:include href="code.txt" parse="text"/></programlisting>`,
			Names: []string{"programlisting"},
			Value: "if a < b {\n}\n",
		},
		{
			Name:  "xpointer/shorthand",
			Body:  `<xi:include href="sections.xml" xpointer="s2"/>`,
			Names: []string{"section"},
			Value: "Two",
		},
		{
			Name:  "xpointer/element",
			Body:  `<xi:include href="sections.xml" xpointer="element(/1/1)"/>`,
			Names: []string{"section"},
			Value: "One",
		},
		{
			Name:  "xpointer/id",
			Body:  `<xi:include href="sections.xml" xpointer="xpointer(id('s1'))"/>`,
			Names: []string{"section"},
			Value: "One",
		},
		{
			Name:  "fallback",
			Body:  `<xi:include href="missing.xml"><xi:fallback><para>none</para></xi:fallback></xi:include>`,
			Names: []string{"para"},
			Value: "none",
		},
		{
			Name:  "fallback/include",
			Body:  `<xi:include href="missing.xml"><xi:fallback><xi:include href="chapter.xml"/></xi:fallback></xi:include>`,
			Names: []string{"chapter"},
			Value: "Chapter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			doc, err := parseInclude(tt.Body, true)
			if err != nil {
				t.Fatalf("fail to parse document: %s", err)
			}
			root := doc.Root()
			elems := root.Elements()
			if len(elems) != len(tt.Names) {
				t.Fatalf("expected %d elements, got %d", len(tt.Names), len(elems))
			}
			for i := range elems {
				if elems[i].Name != tt.Names[i] {
					t.Errorf("element mismatched at %d: want %s, got %s", i, tt.Names[i], elems[i].Name)
				}
			}
			if got := root.Value(); got != tt.Value {
				t.Errorf("value mismatched: want %q, got %q", tt.Value, got)
			}
		})
	}
}

func TestXIncludeDisabled(t *testing.T) {
	doc, err := parseInclude(`<xi:include href="chapter.xml"/>`, false)
	if err != nil {
		t.Fatalf("fail to parse document: %s", err)
	}
	elems := doc.Root().Elements()
	if len(elems) != 1 {
		t.Fatalf("expected 1 element, got %d", len(elems))
	}
	if elems[0].Name != "include" || elems[0].Uri != xml.NamespaceXInclude {
		t.Errorf("xi:include should be kept as is, got %s", elems[0].ExpandedName())
	}
}

func TestXIncludeErrors(t *testing.T) {
	tests := []struct {
		Name      string
		Body      string
		Recursion bool
	}{
		{
			Name:      "self",
			Body:      `<xi:include href="index.xml"/>`,
			Recursion: true,
		},
		{
			Name:      "loop",
			Body:      `<xi:include href="loop.xml"/>`,
			Recursion: true,
		},
		{
			Name:      "loop/fallback",
			Body:      `<xi:include href="loop.xml"><xi:fallback>none</xi:fallback></xi:include>`,
			Recursion: true,
		},
		{
			Name: "missing",
			Body: `<xi:include href="missing.xml"/>`,
		},
		{
			Name: "no-href",
			Body: `<xi:include/>`,
		},
		{
			Name: "bad-parse",
			Body: `<xi:include href="chapter.xml" parse="json"/>`,
		},
		{
			Name: "text-pointer",
			Body: `<xi:include href="code.txt" parse="text" xpointer="s1"/>`,
		},
		{
			Name: "unknown-id",
			Body: `<xi:include href="sections.xml" xpointer="s3"/>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			_, err := parseInclude(tt.Body, true)
			if err == nil {
				t.Fatalf("invalid inclusion processed properly")
			}
			if tt.Recursion && !errors.Is(err, xml.ErrRecursion) {
				t.Errorf("expected recursion error, got %s", err)
			}
		})
	}
}
