package xml

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

const (
	NamespaceXInclude     = "http://www.w3.org/2001/XInclude"
	NamespaceXIncludeOld  = "http://www.w3.org/2003/XInclude"
	xincludeInclude       = "include"
	xincludeFallback      = "fallback"
	xincludeParseXML      = "xml"
	xincludeParseText     = "text"
	maxIncludeNestedDepth = 64
)

func isXIncludeNS(uri string) bool {
	return uri == NamespaceXInclude || uri == NamespaceXIncludeOld
}

func isInclude(el *Element) bool {
	return el.Name == xincludeInclude && isXIncludeNS(el.Uri)
}

func isFallback(el *Element) bool {
	return el.Name == xincludeFallback && isXIncludeNS(el.Uri)
}

// include reads the remaining of the xi:include element then queues the
// events of the nodes that replace it.
func (r *Reader) include(inc *Element) error {
	if err := r.readSubtree(inc); err != nil {
		return err
	}
	nodes, err := r.processInclude(inc)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		r.enqueue(n)
	}
	return nil
}

func (r *Reader) readSubtree(root *Element) error {
	stack := []*Element{root}
	for len(stack) > 0 {
		node, err := r.read()
		if errors.Is(err, ErrClosed) {
			stack = stack[:len(stack)-1]
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		parent := stack[len(stack)-1]
		parent.Append(node)
		if el, ok := node.(*Element); ok {
			stack = append(stack, el)
		}
	}
	return nil
}

func (r *Reader) enqueue(node Node) {
	el, ok := node.(*Element)
	if !ok {
		r.queue = append(r.queue, event{node: node})
		return
	}
	copied := NewElement(el.QName)
	copied.Namespaces = slices.Clone(el.Namespaces)
	for _, a := range el.Attrs {
		copied.SetAttribute(NewAttribute(a.QName, a.Datum))
	}
	r.queue = append(r.queue, event{node: copied})
	for _, c := range el.Nodes {
		r.enqueue(c)
	}
	r.queue = append(r.queue, event{node: copied, closed: true})
}

func (r *Reader) processInclude(inc *Element) ([]Node, error) {
	var (
		href, _     = inc.AttributeValue("href")
		parse, _    = inc.AttributeValue("parse")
		pointer, _  = inc.AttributeValue("xpointer")
		encoding, _ = inc.AttributeValue("encoding")
	)
	if parse == "" {
		parse = xincludeParseXML
	}
	if parse != xincludeParseXML && parse != xincludeParseText {
		return nil, r.createError(inc.QualifiedName(), fmt.Sprintf("%s: invalid parse attribute", parse))
	}
	if href == "" {
		return nil, r.createError(inc.QualifiedName(), "href attribute is missing")
	}
	if parse == xincludeParseText && pointer != "" {
		return nil, r.createError(inc.QualifiedName(), "xpointer can not be used when parse is text")
	}
	location, _ := Locate(r.resolver, r.base(), href)
	if parse == xincludeParseXML && (location == r.location || slices.Contains(r.including, location)) {
		return nil, r.wrapError(inc.QualifiedName(), fmt.Errorf("%s: %w", href, ErrRecursion))
	}
	if len(r.including) >= maxIncludeNestedDepth {
		return nil, r.createError(inc.QualifiedName(), "maximum inclusion depth reached")
	}
	var (
		nodes []Node
		err   error
	)
	if parse == xincludeParseText {
		nodes, err = r.includeText(location, encoding)
	} else {
		nodes, err = r.includeXML(location, pointer)
	}
	if err == nil {
		return nodes, nil
	}
	if errors.Is(err, ErrRecursion) {
		return nil, err
	}
	for _, el := range inc.Elements() {
		if isFallback(el) {
			return r.expand(el.Nodes)
		}
	}
	return nil, r.wrapError(inc.QualifiedName(), fmt.Errorf("%s: %w", href, err))
}

func (r *Reader) includeText(location, encoding string) ([]Node, error) {
	rc, err := r.resolver.Open(location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var str string
	if encoding == "" || isUTF8(encoding) {
		str = strings.TrimPrefix(string(data), string(bomUTF8))
	} else {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, fmt.Errorf("%s: unsupported encoding", encoding)
		}
		if str, err = decodeWith(enc, data); err != nil {
			return nil, err
		}
	}
	return []Node{NewText(normalizeNewlines(str))}, nil
}

func (r *Reader) includeXML(location, pointer string) ([]Node, error) {
	rc, err := r.resolver.Open(location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	sub := NewReader(rc, WithResolver(r.resolver), WithXInclude(true), WithLocation(location))
	sub.including = append(slices.Clone(r.including), r.location)
	doc, err := Build(sub)
	if err != nil {
		return nil, err
	}
	if pointer == "" {
		return slices.Clone(doc.Nodes), nil
	}
	el, err := evalPointer(doc, pointer)
	if err != nil {
		return nil, err
	}
	el.Namespaces = el.InScopeNamespaces()
	return []Node{el}, nil
}

// expand replaces the xi:include elements found in nodes.
func (r *Reader) expand(nodes []Node) ([]Node, error) {
	var list []Node
	for _, n := range nodes {
		el, ok := n.(*Element)
		if !ok {
			list = append(list, n)
			continue
		}
		if isInclude(el) {
			others, err := r.processInclude(el)
			if err != nil {
				return nil, err
			}
			list = append(list, others...)
			continue
		}
		children, err := r.expand(el.Nodes)
		if err != nil {
			return nil, err
		}
		el.Nodes = nil
		for _, c := range children {
			el.Append(c)
		}
		list = append(list, el)
	}
	return list, nil
}

// evalPointer supports the shorthand pointer (a bare id), the element()
// scheme and the id() function of the xpointer() scheme.
func evalPointer(doc *Document, pointer string) (*Element, error) {
	pointer = strings.TrimSpace(pointer)
	notFound := func() error {
		return fmt.Errorf("%s: xpointer does not identify any element", pointer)
	}
	switch {
	case strings.HasPrefix(pointer, "element(") && strings.HasSuffix(pointer, ")"):
		expr := pointer[8 : len(pointer)-1]
		parts := strings.Split(expr, "/")
		var curr *Element
		if parts[0] != "" {
			curr = doc.GetElementById(parts[0])
			if curr == nil {
				return nil, notFound()
			}
			parts = parts[1:]
		} else {
			parts = parts[1:]
			if len(parts) == 0 || parts[0] != "1" {
				return nil, notFound()
			}
			curr = doc.Root()
			parts = parts[1:]
		}
		for _, p := range parts {
			ix, err := strconv.Atoi(p)
			if err != nil || ix <= 0 {
				return nil, fmt.Errorf("%s: invalid child sequence", pointer)
			}
			children := curr.Elements()
			if ix > len(children) {
				return nil, notFound()
			}
			curr = children[ix-1]
		}
		if curr == nil {
			return nil, notFound()
		}
		return curr, nil
	case strings.Contains(pointer, "xpointer(id("):
		ix := strings.Index(pointer, "xpointer(id(")
		rest := pointer[ix+12:]
		end := strings.Index(rest, ")")
		if end < 0 {
			return nil, fmt.Errorf("%s: invalid xpointer", pointer)
		}
		id := strings.Trim(rest[:end], "'\"")
		if el := doc.GetElementById(id); el != nil {
			return el, nil
		}
		return nil, notFound()
	default:
		if !isName(pointer) {
			return nil, fmt.Errorf("%s: unsupported xpointer", pointer)
		}
		if el := doc.GetElementById(pointer); el != nil {
			return el, nil
		}
		return nil, notFound()
	}
}
