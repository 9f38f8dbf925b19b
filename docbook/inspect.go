package docbook

import (
	"errors"
	"os"
	"slices"
	"strings"

	"github.com/midbel/docbook/xml"
)

const NamespaceUri = "http://docbook.org/ns/docbook"

// roots are the elements of documents that are rendered on their own.
var roots = []string{"set", "book", "article"}

// Info describes a document from its first elements.
type Info struct {
	Root  xml.QName
	Title string
}

// IsDocument reports whether the root element is the one of a DocBook set,
// book or article, with or without the DocBook namespace.
func (i Info) IsDocument() bool {
	if i.Root.Uri != "" && i.Root.Uri != NamespaceUri {
		return false
	}
	return slices.Contains(roots, i.Root.Name)
}

// Inspect reads the root element of the document at file and the text of its
// first title. Reading stops once the title is closed. External references
// are not followed.
func Inspect(file string) (Info, error) {
	var info Info
	r, err := os.Open(file)
	if err != nil {
		return info, inputError("inspect", file, err)
	}
	defer r.Close()

	rs := xml.NewReader(r, xml.WithLocation(file), xml.WithXInclude(false))
	rs.OnNode(xml.TypeElement, func(rs *xml.Reader, n xml.Node) error {
		if !info.Root.Zero() {
			return nil
		}
		el := n.(*xml.Element)
		info.Root = el.QName
		if !info.IsDocument() {
			return xml.ErrBreak
		}
		rs.OnOpen(xml.ExpandedName("title", "", el.Uri), readTitle(&info))
		return nil
	})
	if err := rs.Start(); err != nil {
		return info, inputError("inspect", file, err)
	}
	if info.Root.Zero() {
		return info, inputError("inspect", file, errors.New("root element not found"))
	}
	return info, nil
}

func readTitle(info *Info) xml.OnElementFunc {
	return func(rs *xml.Reader, el *xml.Element) error {
		var str strings.Builder
		rs.Push()
		rs.OnText(func(_ *xml.Reader, text string) error {
			str.WriteString(text)
			return nil
		})
		rs.OnClose(el.QName, func(rs *xml.Reader, _ *xml.Element) error {
			rs.Pop()
			info.Title = strings.Join(strings.Fields(str.String()), " ")
			return xml.ErrBreak
		})
		return nil
	}
}
