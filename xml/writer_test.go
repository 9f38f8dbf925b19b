package xml_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/midbel/docbook/xml"
)

func TestWriterWrite(t *testing.T) {
	const str = `<?xml version="1.0" encoding="UTF-8"?><test:root xmlns:test="urn:test" id="1"><test:a attr="text">text</test:a><test:a attr="self"/></test:root>`

	doc, err := xml.ParseString(str)
	if err != nil {
		t.Errorf("fail to parse input document: %s", err)
		return
	}

	data := []struct {
		Want     string
		Indent   string
		NoProlog bool
	}{
		{
			Want:     `<test:root xmlns:test="urn:test" id="1"><test:a attr="text">text</test:a><test:a attr="self"/></test:root>` + "\n",
			NoProlog: true,
		},
		{
			Want: `<?xml version="1.0" encoding="UTF-8"?>` + "\n" + `<test:root xmlns:test="urn:test" id="1"><test:a attr="text">text</test:a><test:a attr="self"/></test:root>` + "\n",
		},
		{
			Want: strings.Join([]string{
				`<?xml version="1.0" encoding="UTF-8"?>`,
				`<test:root xmlns:test="urn:test" id="1">`,
				`    <test:a attr="text">text</test:a>`,
				`    <test:a attr="self"/>`,
				`</test:root>`,
				``,
			}, "\n"),
			Indent: "    ",
		},
	}

	for _, d := range data {
		var (
			buf strings.Builder
			ws  = xml.NewWriter(&buf)
		)
		ws.Indent = d.Indent
		if d.NoProlog {
			ws.WriterOptions |= xml.OptionNoProlog
		}
		if err := ws.Write(doc); err != nil {
			t.Errorf("error writing document: %s", err)
			return
		}
		got := buf.String()
		if got != d.Want {
			t.Errorf("result mismatched")
			t.Logf("want: %s", d.Want)
			t.Logf("got : %s", got)
		}
	}
}

func TestWriterHTML(t *testing.T) {
	const str = `<html><head><meta charset="utf-8"/><script>if (a &lt; b) {}</script></head><body><p class="a&amp;b">a &amp; b<br/></p><div/></body></html>`

	doc, err := xml.ParseString(str)
	if err != nil {
		t.Fatalf("fail to parse input document: %s", err)
	}
	var (
		buf strings.Builder
		ws  = xml.NewWriter(&buf)
	)
	ws.Method = xml.MethodHTML
	ws.DoctypeSystem = "about:legacy-compat"
	if err := ws.Write(doc); err != nil {
		t.Fatalf("error writing document: %s", err)
	}
	want := `<!DOCTYPE html SYSTEM "about:legacy-compat">` + "\n" +
		`<html><head><meta charset="utf-8"><script>if (a < b) {}</script></head><body><p class="a&amp;b">a &amp; b<br></p><div></div></body></html>` + "\n"
	if got := buf.String(); got != want {
		t.Errorf("result mismatched")
		t.Logf("want: %s", want)
		t.Logf("got : %s", got)
	}
}

func TestWriterText(t *testing.T) {
	doc, err := xml.ParseString(`<doc><a>hello</a> <b>world &amp; co</b></doc>`)
	if err != nil {
		t.Fatalf("fail to parse input document: %s", err)
	}
	var (
		buf strings.Builder
		ws  = xml.NewWriter(&buf)
	)
	ws.Method = xml.MethodText
	if err := ws.Write(doc); err != nil {
		t.Fatalf("error writing document: %s", err)
	}
	if got, want := buf.String(), "hello world & co"; got != want {
		t.Errorf("result mismatched: want %q, got %q", want, got)
	}
}

func TestWriterNamespaces(t *testing.T) {
	tests := []struct {
		Name string
		Node func() xml.Node
		Want string
	}{
		{
			Name: "prefix",
			Node: func() xml.Node {
				return xml.NewElement(xml.ExpandedName("book", "db", "http://docbook.org/ns/docbook"))
			},
			Want: `<db:book xmlns:db="http://docbook.org/ns/docbook"/>`,
		},
		{
			Name: "default/undeclare",
			Node: func() xml.Node {
				root := xml.NewElement(xml.ExpandedName("p", "", "urn:a"))
				root.Append(xml.NewElement(xml.LocalName("c")))
				return root
			},
			Want: `<p xmlns="urn:a"><c xmlns=""/></p>`,
		},
		{
			Name: "attribute",
			Node: func() xml.Node {
				root := xml.NewElement(xml.LocalName("a"))
				root.SetAttribute(xml.NewAttribute(xml.ExpandedName("href", "xlink", "http://www.w3.org/1999/xlink"), "#top"))
				root.Append(xml.NewText("a < b"))
				return root
			},
			Want: `<a xmlns:xlink="http://www.w3.org/1999/xlink" xlink:href="#top">a &lt; b</a>`,
		},
		{
			Name: "inherited",
			Node: func() xml.Node {
				root := xml.NewElement(xml.ExpandedName("r", "x", "urn:x"))
				root.Append(xml.NewElement(xml.ExpandedName("c", "x", "urn:x")))
				return root
			},
			Want: `<x:r xmlns:x="urn:x"><x:c/></x:r>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			if got := xml.WriteNode(tt.Node()); got != tt.Want {
				t.Errorf("result mismatched: want %s, got %s", tt.Want, got)
			}
		})
	}
}

func TestWriterEncoding(t *testing.T) {
	doc, err := xml.ParseString(`<p>café</p>`)
	if err != nil {
		t.Fatalf("fail to parse input document: %s", err)
	}
	var (
		buf bytes.Buffer
		ws  = xml.NewWriter(&buf)
	)
	ws.Encoding = "ISO-8859-1"
	if err := ws.Write(doc); err != nil {
		t.Fatalf("error writing document: %s", err)
	}
	want := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<p>caf\xe9</p>\n")
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("result mismatched: want %q, got %q", want, buf.Bytes())
	}
}
