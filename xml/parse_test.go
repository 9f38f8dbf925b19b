package xml_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/midbel/docbook/xml"
)

func TestParseValidDocument(t *testing.T) {
	doc, err := xml.ParseFile("testdata/sample.xml")
	if err != nil {
		t.Errorf("fail to parse sample file: %s", err)
		return
	}
	root := doc.Root()
	if root == nil {
		t.Fatalf("root element not found")
	}
	if root.Name != "article" || root.Uri != "http://docbook.org/ns/docbook" {
		t.Errorf("unexpected root element: %s", root.ExpandedName())
	}
	if doc.DocType == nil || doc.DocType.Name != "article" {
		t.Errorf("document type declaration not recorded")
	}
	if doc.Location != "testdata/sample.xml" {
		t.Errorf("location mismatched: %s", doc.Location)
	}
	if got := doc.GetElementById("sample"); got != root {
		t.Errorf("xml:id not recognized as an identifier")
	}
	elems := root.Elements()
	if len(elems) != 4 {
		t.Fatalf("expected 4 child elements, got %d", len(elems))
	}
	if got := elems[0].Value(); got != "Sample DocBook article" {
		t.Errorf("title mismatched: %q", got)
	}
	link := elems[1].Elements()[0]
	if a := link.GetAttributeNS(xml.ExpandedName("href", "", "http://www.w3.org/1999/xlink")); a == nil {
		t.Errorf("xlink:href not found on link")
	}
	if got, want := elems[2].Value(), "if a < b && b > c {\n\treturn\n}"; got != want {
		t.Errorf("cdata mismatched: want %q, got %q", want, got)
	}
	if got, want := elems[3].Value(), "Copyright © & \u00a0"; got != want {
		t.Errorf("references mismatched: want %q, got %q", want, got)
	}
}

const prolog = `<?xml version="1.0" encoding="UTF-8"?>`

func TestParseInvalidDocument(t *testing.T) {
	data := []struct {
		Xml        string
		Cause      string
		OmitProlog bool
	}{
		{
			Xml:   ``,
			Cause: "document without root element",
		},
		{
			Xml:   `<root empty-attr></root>`,
			Cause: "attribute without value",
		},
		{
			Xml:   `<root id="id-1" id="id-2"></root>`,
			Cause: "duplicate attribute",
		},
		{
			Xml:   `<root></other>`,
			Cause: "mismatched end tag",
		},
		{
			Xml:   `<root>`,
			Cause: "element not closed",
		},
		{
			Xml:   `<root/><other/>`,
			Cause: "more than one root",
		},
		{
			Xml:   `text<root/>`,
			Cause: "text outside root",
		},
		{
			Xml:   `<db:root/>`,
			Cause: "undeclared prefix",
		},
		{
			Xml:   `<root attr="a<b"/>`,
			Cause: "less than in attribute value",
		},
		{
			Xml:   `<root>&undefined;</root>`,
			Cause: "undefined entity",
		},
		{
			Xml:   `<root><!-- never closed </root>`,
			Cause: "unterminated comment",
		},
		{
			Xml:        `<root/>` + prolog,
			Cause:      "misplaced xml declaration",
			OmitProlog: true,
		},
	}
	for _, d := range data {
		if !d.OmitProlog {
			d.Xml = prolog + d.Xml
		}
		_, err := xml.ParseString(d.Xml)
		if err == nil {
			t.Errorf("%s: invalid document parsed properly!", d.Cause)
			continue
		}
		var perr xml.ParseError
		if !errors.As(err, &perr) {
			t.Errorf("%s: expected parse error, got %T", d.Cause, err)
		}
	}
}

func TestParseOptions(t *testing.T) {
	const str = `<root>
	<!-- comment -->
	<item>one</item>
	<?pi data?>
</root>`

	p := xml.NewParser(strings.NewReader(str))
	p.TrimSpace = true
	p.OmitComment = true
	doc, err := p.Parse()
	if err != nil {
		t.Fatalf("fail to parse document: %s", err)
	}
	nodes := doc.Root().Nodes
	if len(nodes) != 1 {
		t.Fatalf("expected only one node, got %d", len(nodes))
	}
	if nodes[0].LocalName() != "item" {
		t.Errorf("unexpected node %s", nodes[0].LocalName())
	}

	doc, err = xml.ParseString(str)
	if err != nil {
		t.Fatalf("fail to parse document: %s", err)
	}
	if n := len(doc.Root().Nodes); n != 7 {
		t.Errorf("expected 7 nodes when nothing is trimmed, got %d", n)
	}
}

func TestParseNamespaces(t *testing.T) {
	const str = `<root xmlns="urn:default" xmlns:a="urn:a"><a:item a:attr="1" plain="2"><inner xmlns=""/></a:item></root>`

	doc, err := xml.ParseString(str)
	if err != nil {
		t.Fatalf("fail to parse document: %s", err)
	}
	root := doc.Root()
	if root.Uri != "urn:default" {
		t.Errorf("default namespace not applied to root: %q", root.Uri)
	}
	item := root.Elements()[0]
	if item.Uri != "urn:a" {
		t.Errorf("prefixed namespace not applied: %q", item.Uri)
	}
	if a := item.GetAttribute("a:attr"); a == nil || a.Uri != "urn:a" {
		t.Errorf("prefixed attribute not resolved")
	}
	if a := item.GetAttribute("plain"); a == nil || a.Uri != "" {
		t.Errorf("unprefixed attribute should not be in a namespace")
	}
	inner := item.Elements()[0]
	if inner.Uri != "" {
		t.Errorf("default namespace not undeclared: %q", inner.Uri)
	}
	if uri, ok := inner.ResolveNS("a"); !ok || uri != "urn:a" {
		t.Errorf("prefix a not in scope of inner element")
	}
}
