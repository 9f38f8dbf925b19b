package xslt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

// Execute applies the stylesheet to doc and returns the result tree. White
// space only text nodes are removed from doc as requested by xsl:strip-space.
func (s *Stylesheet) Execute(doc *xml.Document) (*xml.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("no source document")
	}
	s.stripSpace(doc)

	sess := createSession(s, doc)
	ctx := sess.start(s)
	seq, err := ctx.applyTemplate(doc, 1, 1, "", nil, nil)
	if err != nil {
		return nil, err
	}
	res := xml.EmptyDocument()
	appendDocument(res, seq)
	return res, nil
}

// Transform applies the stylesheet to doc and writes the result to w with
// the settings of xsl:output.
func (s *Stylesheet) Transform(w io.Writer, doc *xml.Document) error {
	res, err := s.Execute(doc)
	if err != nil {
		return err
	}
	return writeDocument(w, res, s.Output)
}

func (s *Stylesheet) stripSpace(doc *xml.Document) {
	if len(s.spaces) == 0 {
		return
	}
	ctx := xpath.NewContext(doc)

	var walk func(*xml.Element, bool)
	walk = func(el *xml.Element, preserve bool) {
		if a := el.GetAttributeNS(xml.ExpandedName("space", "xml", xml.NamespaceXML)); a != nil {
			preserve = a.Datum == "preserve"
		}
		strip := !preserve && s.stripElement(ctx, el)
		keep := make([]xml.Node, 0, len(el.Nodes))
		for _, n := range el.Nodes {
			switch c := n.(type) {
			case *xml.Text:
				if strip && c.Blank() {
					continue
				}
			case *xml.Element:
				walk(c, preserve)
			}
			keep = append(keep, n)
		}
		if len(keep) == len(el.Nodes) {
			return
		}
		el.Nodes = el.Nodes[:0]
		for _, n := range keep {
			el.Append(n)
		}
	}
	if root := doc.Root(); root != nil {
		walk(root, false)
	}
}

// stripElement reports whether the white space only texts of el are removed.
// The rule with the highest import precedence then the highest priority
// wins.
func (s *Stylesheet) stripElement(ctx xpath.Context, el *xml.Element) bool {
	var (
		best *spaceRule
		prio float64
	)
	for _, r := range s.spaces {
		if !r.test.Match(ctx, el) {
			continue
		}
		p := r.test.Priority()
		if best == nil || r.precedence > best.precedence || (r.precedence == best.precedence && p >= prio) {
			best, prio = r, p
		}
	}
	return best != nil && best.strip
}

// executeDocument writes its content into a secondary result document.
func executeDocument(ctx *Context) (xpath.Sequence, error) {
	href, ok, err := ctx.avt("href")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !ok || href == "" {
		return nil, ctx.errorWithContext(fmt.Errorf("missing attribute %q", "href"))
	}
	out, err := documentOutput(ctx)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	doc, err := createFragment(ctx, ctx.element().Nodes)
	if err != nil {
		return nil, err
	}
	open := ctx.Documents
	if open == nil {
		open = createFile
	}
	w, err := open(href)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if err := writeDocument(w, doc, out); err != nil {
		w.Close()
		return nil, ctx.errorWithContext(err)
	}
	if err := w.Close(); err != nil {
		return nil, ctx.errorWithContext(err)
	}
	ctx.Logger.Debug("result document written", "href", href)
	return nil, nil
}

func documentOutput(ctx *Context) (Output, error) {
	out := ctx.Output
	attrs := []string{
		"method",
		"encoding",
		"indent",
		"omit-xml-declaration",
		"doctype-public",
		"doctype-system",
	}
	for _, attr := range attrs {
		str, ok, err := ctx.avt(attr)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		switch attr {
		case "method":
			out.Method = str
		case "encoding":
			out.Encoding = str
		case "indent":
			out.Indent = str == "yes"
		case "omit-xml-declaration":
			out.OmitProlog = str == "yes"
		case "doctype-public":
			out.DoctypePublic = str
		case "doctype-system":
			out.DoctypeSystem = str
		}
	}
	return out, nil
}

func createFile(href string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(href), 0o755); err != nil {
		return nil, err
	}
	return os.Create(href)
}
