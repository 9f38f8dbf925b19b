package xml

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
)

type WriterOptions uint64

const (
	OptionNoProlog WriterOptions = 1 << iota
	OptionNoComment
	OptionStandalone
)

func (w WriterOptions) NoComment() bool {
	return w&OptionNoComment > 0
}

func (w WriterOptions) NoProlog() bool {
	return w&OptionNoProlog > 0
}

func (w WriterOptions) Standalone() bool {
	return w&OptionStandalone > 0
}

const (
	MethodXML  = "xml"
	MethodHTML = "html"
	MethodText = "text"
)

var voidElements = []string{
	"area",
	"base",
	"basefont",
	"br",
	"col",
	"embed",
	"frame",
	"hr",
	"img",
	"input",
	"isindex",
	"link",
	"meta",
	"param",
	"source",
	"track",
	"wbr",
}

type Writer struct {
	out    io.Writer
	writer *bufio.Writer

	Method        string
	Indent        string
	Encoding      string
	DoctypePublic string
	DoctypeSystem string
	WriterOptions

	scopes []map[string]string
	gen    int
}

// WriteNode serializes node as XML and returns the result.
func WriteNode(node Node) string {
	var buf bytes.Buffer
	ws := NewWriter(&buf)
	ws.Method = MethodXML
	ws.WriterOptions |= OptionNoProlog
	ws.reset(&buf)
	ws.writeNode(node, 0)
	ws.writer.Flush()
	return buf.String()
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		out:    w,
		Method: MethodXML,
	}
}

func (w *Writer) Write(doc *Document) error {
	out, err := encodeOutput(w.out, w.Encoding)
	if err != nil {
		return err
	}
	w.reset(out)

	switch w.Method {
	case MethodText:
		w.writer.WriteString(doc.Value())
	case MethodHTML:
		w.writeDoctype(doc, "html")
		w.writeNodes(doc.Nodes, 0)
		w.writeNL()
	default:
		if !w.NoProlog() {
			w.writeProlog()
			w.writeNL()
		}
		if root := doc.Root(); root != nil {
			w.writeDoctype(doc, root.QualifiedName())
		}
		w.writeNodes(doc.Nodes, 0)
		w.writeNL()
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if c, ok := out.(io.Closer); ok && out != w.out {
		return c.Close()
	}
	return nil
}

func (w *Writer) reset(out io.Writer) {
	w.writer = bufio.NewWriter(out)
	w.scopes = []map[string]string{{"": "", "xml": NamespaceXML}}
	w.gen = 0
}

func (w *Writer) writeProlog() {
	encoding := w.Encoding
	if encoding == "" {
		encoding = SupportedEncoding
	}
	w.writer.WriteString("<?xml version=\"")
	w.writer.WriteString(SupportedVersion)
	w.writer.WriteString("\" encoding=\"")
	w.writer.WriteString(encoding)
	w.writer.WriteString("\"")
	if w.Standalone() {
		w.writer.WriteString(" standalone=\"yes\"")
	}
	w.writer.WriteString("?>")
}

func (w *Writer) writeDoctype(doc *Document, root string) {
	if w.DoctypePublic == "" && w.DoctypeSystem == "" {
		return
	}
	w.writer.WriteString("<!DOCTYPE ")
	w.writer.WriteString(root)
	if w.DoctypePublic != "" {
		fmt.Fprintf(w.writer, " PUBLIC \"%s\"", w.DoctypePublic)
		if w.DoctypeSystem != "" {
			fmt.Fprintf(w.writer, " \"%s\"", w.DoctypeSystem)
		}
	} else {
		fmt.Fprintf(w.writer, " SYSTEM \"%s\"", w.DoctypeSystem)
	}
	w.writer.WriteString(">")
	w.writeNL()
}

func (w *Writer) writeNodes(nodes []Node, depth int) {
	for i, n := range nodes {
		if i > 0 && w.Indent != "" && depth == 0 {
			w.writeNL()
		}
		w.writeNode(n, depth)
	}
}

func (w *Writer) writeNode(node Node, depth int) {
	switch n := node.(type) {
	case *Document:
		w.writeNodes(n.Nodes, depth)
	case *Element:
		w.writeElement(n, depth)
	case *Text:
		w.writeText(n, node.Parent())
	case *Comment:
		if w.NoComment() {
			return
		}
		w.writer.WriteString("<!--")
		w.writer.WriteString(n.Content)
		w.writer.WriteString("-->")
	case *Instruction:
		w.writer.WriteString("<?")
		w.writer.WriteString(n.Name)
		if n.Content != "" {
			w.writer.WriteString(" ")
			w.writer.WriteString(n.Content)
		}
		if w.Method == MethodHTML {
			w.writer.WriteString(">")
		} else {
			w.writer.WriteString("?>")
		}
	case *Attribute:
		w.writer.WriteString(escapeText(n.Datum))
	}
}

func (w *Writer) writeText(text *Text, parent Node) {
	if text.Raw || (w.Method == MethodHTML && isRawElement(parent)) {
		w.writer.WriteString(text.Content)
		return
	}
	w.writer.WriteString(escapeText(text.Content))
}

func (w *Writer) writeElement(el *Element, depth int) {
	decls := w.enterScope(el)
	defer w.leaveScope()

	name := el.QualifiedName()
	w.writer.WriteString("<")
	w.writer.WriteString(name)
	for _, ns := range decls {
		w.writer.WriteString(" xmlns")
		if ns.Prefix != "" {
			w.writer.WriteString(":")
			w.writer.WriteString(ns.Prefix)
		}
		w.writer.WriteString("=\"")
		w.writer.WriteString(escapeAttr(ns.Uri, false))
		w.writer.WriteString("\"")
	}
	for _, a := range el.Attrs {
		w.writer.WriteString(" ")
		w.writer.WriteString(a.QualifiedName())
		w.writer.WriteString("=\"")
		w.writer.WriteString(escapeAttr(a.Datum, w.Method == MethodHTML))
		w.writer.WriteString("\"")
	}
	if len(el.Nodes) == 0 {
		switch {
		case w.Method == MethodHTML && isVoidElement(el):
			w.writer.WriteString(">")
		case w.Method == MethodHTML:
			w.writer.WriteString("></")
			w.writer.WriteString(name)
			w.writer.WriteString(">")
		default:
			w.writer.WriteString("/>")
		}
		return
	}
	w.writer.WriteString(">")
	indent := w.Indent != "" && !hasText(el)
	for _, n := range el.Nodes {
		if indent {
			w.writeNL()
			w.writeIndent(depth + 1)
		}
		w.writeNode(n, depth+1)
	}
	if indent {
		w.writeNL()
		w.writeIndent(depth)
	}
	w.writer.WriteString("</")
	w.writer.WriteString(name)
	w.writer.WriteString(">")
}

// enterScope computes the namespace declarations the element needs given the
// declarations already written by its ancestors.
func (w *Writer) enterScope(el *Element) []NS {
	var (
		decls []NS
		scope = make(map[string]string)
	)
	lookup := func(prefix string) (string, bool) {
		if uri, ok := scope[prefix]; ok {
			return uri, true
		}
		for i := len(w.scopes) - 1; i >= 0; i-- {
			if uri, ok := w.scopes[i][prefix]; ok {
				return uri, true
			}
		}
		return "", false
	}
	declare := func(prefix, uri string) {
		if prefix == "xml" {
			return
		}
		if curr, ok := lookup(prefix); ok && curr == uri {
			return
		}
		if prefix != "" && uri == "" {
			return
		}
		scope[prefix] = uri
		decls = append(decls, NS{Prefix: prefix, Uri: uri})
	}
	for _, ns := range el.Namespaces {
		declare(ns.Prefix, ns.Uri)
	}
	declare(el.Space, el.Uri)
	for _, a := range el.Attrs {
		if a.Uri == "" {
			continue
		}
		if a.Space == "" {
			w.gen++
			a.Space = fmt.Sprintf("ns%d", w.gen)
		}
		declare(a.Space, a.Uri)
	}
	w.scopes = append(w.scopes, scope)
	return decls
}

func (w *Writer) leaveScope() {
	if n := len(w.scopes); n > 0 {
		w.scopes = w.scopes[:n-1]
	}
}

func (w *Writer) writeIndent(depth int) {
	w.writer.WriteString(strings.Repeat(w.Indent, depth))
}

func (w *Writer) writeNL() {
	w.writer.WriteString("\n")
}

func hasText(el *Element) bool {
	return slices.ContainsFunc(el.Nodes, func(n Node) bool {
		return n.Type() == TypeText
	})
}

func isVoidElement(el *Element) bool {
	return el.Uri == "" && slices.Contains(voidElements, strings.ToLower(el.Name))
}

func isRawElement(node Node) bool {
	el, ok := node.(*Element)
	if !ok || el.Uri != "" {
		return false
	}
	name := strings.ToLower(el.Name)
	return name == "script" || name == "style"
}

func escapeText(str string) string {
	if !strings.ContainsAny(str, "&<>") {
		return str
	}
	var buf strings.Builder
	for _, r := range str {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

func escapeAttr(str string, html bool) string {
	if !strings.ContainsAny(str, "&<\"\n\t") {
		return str
	}
	var buf strings.Builder
	for _, r := range str {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			if html {
				buf.WriteRune(r)
			} else {
				buf.WriteString("&lt;")
			}
		case '"':
			buf.WriteString("&quot;")
		case '\n':
			if html {
				buf.WriteRune(r)
			} else {
				buf.WriteString("&#10;")
			}
		case '\t':
			if html {
				buf.WriteRune(r)
			} else {
				buf.WriteString("&#9;")
			}
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}
