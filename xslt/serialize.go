package xslt

import (
	"io"
	"strings"

	"github.com/midbel/docbook/xml"
)

const indentSpace = "  "

// resolveMethod gives the output method of doc. Without explicit method, the
// html method is selected when the root element is html without namespace.
func (o Output) resolveMethod(doc *xml.Document) string {
	switch o.Method {
	case xml.MethodXML, xml.MethodHTML, xml.MethodText:
		return o.Method
	case "":
	default:
		return xml.MethodXML
	}
	root := doc.Root()
	if root == nil {
		return xml.MethodXML
	}
	if root.Uri == "" && strings.EqualFold(root.Name, "html") {
		for _, n := range doc.Nodes {
			if t, ok := n.(*xml.Text); ok && !t.Blank() {
				return xml.MethodXML
			}
			if n == root {
				break
			}
		}
		return xml.MethodHTML
	}
	return xml.MethodXML
}

func writeDocument(w io.Writer, doc *xml.Document, out Output) error {
	ws := xml.NewWriter(w)
	ws.Method = out.resolveMethod(doc)
	ws.Encoding = out.Encoding
	ws.DoctypePublic = out.DoctypePublic
	ws.DoctypeSystem = out.DoctypeSystem
	if out.Indent {
		ws.Indent = indentSpace
	}
	if out.OmitProlog {
		ws.WriterOptions |= xml.OptionNoProlog
	}
	if out.Standalone {
		ws.WriterOptions |= xml.OptionStandalone
	}
	return ws.Write(doc)
}
